package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfigJSON = `{
  "AutoPilot": {
    "gps_orientation_on_ship": 12.5,
    "indexing_table_orientation_on_ship": 0,
    "valid_indexing_table_orientation_limits": [-90, 90],
    "optimal_angle_away_from_sun": 135,
    "valid_angle_away_from_sun_limits": [90, 135],
    "minimum_distance_delta": 3.0
  },
  "Runner": {
    "operation_mode": "auto",
    "heading_source": "gps_relative_position",
    "min_sun_elevation": 20,
    "refresh": 5,
    "halt_host_on_exit": false
  },
  "DataLogger": {
    "file_length": 60,
    "filename_prefix": "SAS",
    "filename_ext": ".raw",
    "path_to_data": "/data/sas",
    "reopen_delay": "5s"
  },
  "HyperSAS": {
    "sip": "/etc/sas/HYPER.sip",
    "immersed": false,
    "path_to_device_files": "/etc/sas/devices"
  },
  "GPS": {
    "port": "/dev/ttyUSB0",
    "baudrate": 9600,
    "timeout": "1s"
  },
  "IndexingTable": {
    "port": "/dev/ttyUSB1",
    "baudrate": 19200,
    "relay_gpio_pin": 17
  }
}`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "autopilot.json")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ParsesNamedSectionsAndDevices(t *testing.T) {
	path := writeConfig(t, sampleConfigJSON)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.GetGPSOrientationOnShip(); got != 12.5 {
		t.Errorf("GetGPSOrientationOnShip() = %v, want 12.5", got)
	}
	if lo, hi := cfg.GetValidIndexingTableOrientationLimits(); lo != -90 || hi != 90 {
		t.Errorf("GetValidIndexingTableOrientationLimits() = %v,%v, want -90,90", lo, hi)
	}
	if got := cfg.GetOperationMode(); got != "auto" {
		t.Errorf("GetOperationMode() = %q, want auto", got)
	}
	if got := cfg.GetRefresh(); got != 5*time.Second {
		t.Errorf("GetRefresh() = %v, want 5s", got)
	}
	if got := cfg.GetFileLength(); got != 60*time.Minute {
		t.Errorf("GetFileLength() = %v, want 60m", got)
	}
	if got := cfg.GetSIP(); got != "/etc/sas/HYPER.sip" {
		t.Errorf("GetSIP() = %q", got)
	}

	gps, ok := cfg.Device("GPS")
	if !ok {
		t.Fatal("expected GPS device section")
	}
	if gps.GetPort() != "/dev/ttyUSB0" {
		t.Errorf("GPS port = %q, want /dev/ttyUSB0", gps.GetPort())
	}
	if gps.GetBaudRate() != 9600 {
		t.Errorf("GPS baudrate = %d, want 9600", gps.GetBaudRate())
	}

	table, ok := cfg.Device("IndexingTable")
	if !ok {
		t.Fatal("expected IndexingTable device section")
	}
	if table.GetRelayGPIOPin() != 17 {
		t.Errorf("IndexingTable relay_gpio_pin = %d, want 17", table.GetRelayGPIOPin())
	}

	if _, ok := cfg.Device("AutoPilot"); ok {
		t.Error("AutoPilot must not be treated as a device section")
	}
}

func TestGetters_FallBackWhenUnset(t *testing.T) {
	cfg := EmptyConfig()
	cfg.AutoPilot.ValidIndexingTableOrientationLimits = []float64{-180, 180}

	if got := cfg.GetGPSOrientationOnShip(); got != 0 {
		t.Errorf("GetGPSOrientationOnShip() = %v, want 0", got)
	}
	if got := cfg.GetOptimalAngleAwayFromSun(); got != 135 {
		t.Errorf("GetOptimalAngleAwayFromSun() = %v, want 135", got)
	}
	if lo, hi := cfg.GetValidAngleAwayFromSunLimits(); lo != 90 || hi != 135 {
		t.Errorf("GetValidAngleAwayFromSunLimits() = %v,%v, want 90,135", lo, hi)
	}
	if got := cfg.GetMinimumDistanceDelta(); got != 3.0 {
		t.Errorf("GetMinimumDistanceDelta() = %v, want 3.0", got)
	}
	if got := cfg.GetOperationMode(); got != "auto" {
		t.Errorf("GetOperationMode() = %q, want auto", got)
	}
	if got := cfg.GetHeadingSource(); got != "gps_relative_position" {
		t.Errorf("GetHeadingSource() = %q, want gps_relative_position", got)
	}
	if got := cfg.GetMinSunElevation(); got != 20 {
		t.Errorf("GetMinSunElevation() = %v, want 20", got)
	}
	if got := cfg.GetRefresh(); got != 5*time.Second {
		t.Errorf("GetRefresh() = %v, want 5s", got)
	}
	if got := cfg.GetHaltHostOnExit(); got != false {
		t.Errorf("GetHaltHostOnExit() = %v, want false", got)
	}
	if got := cfg.GetFileLength(); got != 60*time.Minute {
		t.Errorf("GetFileLength() = %v, want 60m", got)
	}
	if got := cfg.GetReopenDelay(); got != 5*time.Second {
		t.Errorf("GetReopenDelay() = %v, want 5s", got)
	}
	if got := cfg.GetImmersed(); got != false {
		t.Errorf("GetImmersed() = %v, want false", got)
	}

	dc := DeviceConfig{}
	if got := dc.GetBaudRate(); got != 19200 {
		t.Errorf("DeviceConfig.GetBaudRate() = %d, want 19200", got)
	}
	if got := dc.GetParity(); got != "N" {
		t.Errorf("DeviceConfig.GetParity() = %q, want N", got)
	}
	if got := dc.GetTimeout(); got != time.Second {
		t.Errorf("DeviceConfig.GetTimeout() = %v, want 1s", got)
	}
	if got := dc.GetRelayGPIOPin(); got != -1 {
		t.Errorf("DeviceConfig.GetRelayGPIOPin() = %d, want -1", got)
	}
	if got := dc.GetPathToData("/default"); got != "/default" {
		t.Errorf("DeviceConfig.GetPathToData() = %q, want /default", got)
	}
}

func TestValidate_RequiresTowerLimits(t *testing.T) {
	cfg := EmptyConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when valid_indexing_table_orientation_limits is missing")
	}

	cfg.AutoPilot.ValidIndexingTableOrientationLimits = []float64{-90, 90}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsUnknownOperationMode(t *testing.T) {
	cfg := EmptyConfig()
	cfg.AutoPilot.ValidIndexingTableOrientationLimits = []float64{-90, 90}
	bogus := "sideways"
	cfg.Runner.OperationMode = &bogus

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unrecognized operation_mode")
	}
}

func TestValidate_RejectsUnknownHeadingSource(t *testing.T) {
	cfg := EmptyConfig()
	cfg.AutoPilot.ValidIndexingTableOrientationLimits = []float64{-90, 90}
	bogus := "magic_compass"
	cfg.Runner.HeadingSource = &bogus

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unrecognized heading_source")
	}
}

func TestValidate_RejectsUnparsableDeviceTimeout(t *testing.T) {
	cfg := EmptyConfig()
	cfg.AutoPilot.ValidIndexingTableOrientationLimits = []float64{-90, 90}
	bad := "not-a-duration"
	cfg.Devices["GPS"] = DeviceConfig{Timeout: &bad}

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unparsable device timeout")
	}
}

func TestLoad_RejectsNonJSONExtension(t *testing.T) {
	if _, err := Load("/some/path/config.yaml"); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_RejectsLargeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large.json")
	large := make([]byte, 2*1024*1024)
	for i := range large {
		large[i] = ' '
	}
	if err := os.WriteFile(path, large, 0644); err != nil {
		t.Fatalf("failed to write large file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for file size over 1MB")
	}
}

func TestLoad_RejectsInvalidConfiguration(t *testing.T) {
	path := writeConfig(t, `{"Runner": {"operation_mode": "sideways"}}`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid configuration")
	}
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"AutoPilot": {`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
