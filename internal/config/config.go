// Package config loads the autopilot's JSON configuration (spec §6): the
// AutoPilot geometry section, the Runner mode/heading-source section, the
// DataLogger rotation section, a HyperSAS calibration section, and an
// arbitrary number of per-device serial sections keyed by device name.
// Generalized from the teacher's TuningConfig (pointer-per-optional-field,
// Load/Validate, path + size-limit checks) to this wider key space.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is searched by MustLoadDefaultConfig when no explicit
// path is given, mirroring the teacher's DefaultConfigPath convention.
const DefaultConfigPath = "config/autopilot.json"

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// AutoPilotConfig is the `AutoPilot.*` section (spec §6): tower geometry
// and steering preferences.
type AutoPilotConfig struct {
	GPSOrientationOnShip                *float64  `json:"gps_orientation_on_ship,omitempty"`
	IndexingTableOrientationOnShip      *float64  `json:"indexing_table_orientation_on_ship,omitempty"`
	ValidIndexingTableOrientationLimits []float64 `json:"valid_indexing_table_orientation_limits,omitempty"`
	OptimalAngleAwayFromSun             *float64  `json:"optimal_angle_away_from_sun,omitempty"`
	ValidAngleAwayFromSunLimits         []float64 `json:"valid_angle_away_from_sun_limits,omitempty"`
	MinimumDistanceDelta                *float64  `json:"minimum_distance_delta,omitempty"`
}

// RunnerConfig is the `Runner.*` section (spec §6): supervisor mode and
// cadence.
type RunnerConfig struct {
	OperationMode   *string  `json:"operation_mode,omitempty"`
	HeadingSource   *string  `json:"heading_source,omitempty"`
	MinSunElevation *float64 `json:"min_sun_elevation,omitempty"`
	Refresh         *int     `json:"refresh,omitempty"`
	HaltHostOnExit  *bool    `json:"halt_host_on_exit,omitempty"`
}

// DataLoggerConfig is the `DataLogger.*` section (spec §6): merged-log
// rotation and file naming.
type DataLoggerConfig struct {
	FileLength     *int    `json:"file_length,omitempty"`
	FilenamePrefix *string `json:"filename_prefix,omitempty"`
	FilenameExt    *string `json:"filename_ext,omitempty"`
	PathToData     *string `json:"path_to_data,omitempty"`
	ReopenDelay    *string `json:"reopen_delay,omitempty"`
}

// HyperSASConfig is the `HyperSAS.*` section (spec §6): calibration
// location and immersion state.
type HyperSASConfig struct {
	SIP               *string `json:"sip,omitempty"`
	Immersed          *bool   `json:"immersed,omitempty"`
	PathToDeviceFiles *string `json:"path_to_device_files,omitempty"`
}

// DeviceConfig is one per-device section (spec §6: "per-device:
// <Device>.port, baudrate, bytesize, parity, ..."). The config file keys
// these by device name (e.g. "GPS", "IndexingTable", "THS") at the
// top level, alongside AutoPilot/Runner/DataLogger/HyperSAS.
type DeviceConfig struct {
	Port         *string `json:"port,omitempty"`
	BaudRate     *int    `json:"baudrate,omitempty"`
	ByteSize     *int    `json:"bytesize,omitempty"`
	Parity       *string `json:"parity,omitempty"`
	StopBits     *int    `json:"stopbits,omitempty"`
	Timeout      *string `json:"timeout,omitempty"`
	XonXoff      *bool   `json:"xonxoff,omitempty"`
	RtsCts       *bool   `json:"rtscts,omitempty"`
	WriteTimeout *string `json:"write_timeout,omitempty"`
	DsrDtr       *bool   `json:"dsrdtr,omitempty"`
	RelayGPIOPin *int    `json:"relay_gpio_pin,omitempty"`
	PathToData   *string `json:"path_to_data,omitempty"`
	FileLength   *int    `json:"file_length,omitempty"`
}

// AutopilotConfig is the root configuration document. Devices holds every
// top-level key that isn't one of the four named sections, keyed by
// device name, since spec §6 leaves the device-name set open-ended.
type AutopilotConfig struct {
	AutoPilot  AutoPilotConfig
	Runner     RunnerConfig
	DataLogger DataLoggerConfig
	HyperSAS   HyperSASConfig
	Devices    map[string]DeviceConfig
}

// EmptyConfig returns a config with every optional field unset; Get*
// accessors then supply spec-defined fallbacks.
func EmptyConfig() *AutopilotConfig {
	return &AutopilotConfig{Devices: make(map[string]DeviceConfig)}
}

// UnmarshalJSON splits the four named sections out of the document and
// treats every remaining top-level key as a device section.
func (c *AutopilotConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["AutoPilot"]; ok {
		if err := json.Unmarshal(v, &c.AutoPilot); err != nil {
			return fmt.Errorf("config: AutoPilot section: %w", err)
		}
	}
	if v, ok := raw["Runner"]; ok {
		if err := json.Unmarshal(v, &c.Runner); err != nil {
			return fmt.Errorf("config: Runner section: %w", err)
		}
	}
	if v, ok := raw["DataLogger"]; ok {
		if err := json.Unmarshal(v, &c.DataLogger); err != nil {
			return fmt.Errorf("config: DataLogger section: %w", err)
		}
	}
	if v, ok := raw["HyperSAS"]; ok {
		if err := json.Unmarshal(v, &c.HyperSAS); err != nil {
			return fmt.Errorf("config: HyperSAS section: %w", err)
		}
	}

	c.Devices = make(map[string]DeviceConfig)
	for name, v := range raw {
		switch name {
		case "AutoPilot", "Runner", "DataLogger", "HyperSAS":
			continue
		}
		var dc DeviceConfig
		if err := json.Unmarshal(v, &dc); err != nil {
			return fmt.Errorf("config: device section %q: %w", name, err)
		}
		c.Devices[name] = dc
	}
	return nil
}

// MarshalJSON flattens the document back to the on-disk shape UnmarshalJSON
// expects: the four named sections plus one top-level key per device,
// rather than Go's default (which would nest Devices under its own key).
// This is what write_cfg round-trips through (spec §4.8 set_cfg_variable /
// write_cfg).
func (c *AutopilotConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, 4+len(c.Devices))

	sections := map[string]interface{}{
		"AutoPilot":  c.AutoPilot,
		"Runner":     c.Runner,
		"DataLogger": c.DataLogger,
		"HyperSAS":   c.HyperSAS,
	}
	for name, section := range sections {
		b, err := json.Marshal(section)
		if err != nil {
			return nil, fmt.Errorf("config: marshal %s section: %w", name, err)
		}
		out[name] = b
	}
	for name, dc := range c.Devices {
		b, err := json.Marshal(dc)
		if err != nil {
			return nil, fmt.Errorf("config: marshal device section %q: %w", name, err)
		}
		out[name] = b
	}
	return json.Marshal(out)
}

// Save validates cfg and writes it to path in the same flattened shape Load
// reads, mirroring pySAS Runner.write_cfg.
func Save(path string, cfg *AutopilotConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: refusing to save invalid configuration: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(filepath.Clean(path), data, 0644)
}

// Load reads and parses an AutopilotConfig from path, validating the path
// has a .json extension and the file is under maxConfigFileSize, mirroring
// the teacher's LoadTuningConfig path hygiene.
func Load(path string) (*AutopilotConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching up through
// parent directories. Panics on failure; intended for test setup only.
func MustLoadDefaultConfig() *AutopilotConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the invariants spec §6 calls out as required (as
// opposed to merely defaulted): the tower's mechanical limits must be
// supplied, and any enumerated values present must be recognized.
// Configuration errors here are fatal at supervisor startup (spec §7).
func (c *AutopilotConfig) Validate() error {
	if len(c.AutoPilot.ValidIndexingTableOrientationLimits) != 2 {
		return fmt.Errorf("AutoPilot.valid_indexing_table_orientation_limits is required and must be [a,b]")
	}
	if c.AutoPilot.ValidAngleAwayFromSunLimits != nil && len(c.AutoPilot.ValidAngleAwayFromSunLimits) != 2 {
		return fmt.Errorf("AutoPilot.valid_angle_away_from_sun_limits must be [a,b]")
	}

	if c.Runner.OperationMode != nil {
		switch *c.Runner.OperationMode {
		case "auto", "manual":
		default:
			return fmt.Errorf("Runner.operation_mode must be auto or manual, got %q", *c.Runner.OperationMode)
		}
	}
	if c.Runner.HeadingSource != nil {
		switch *c.Runner.HeadingSource {
		case "gps_relative_position", "gps_motion", "gps_vehicle", "ths_heading":
		default:
			return fmt.Errorf("Runner.heading_source %q not recognized", *c.Runner.HeadingSource)
		}
	}

	if c.DataLogger.ReopenDelay != nil && *c.DataLogger.ReopenDelay != "" {
		if _, err := time.ParseDuration(*c.DataLogger.ReopenDelay); err != nil {
			return fmt.Errorf("invalid DataLogger.reopen_delay %q: %w", *c.DataLogger.ReopenDelay, err)
		}
	}

	for name, dc := range c.Devices {
		if dc.Timeout != nil && *dc.Timeout != "" {
			if _, err := time.ParseDuration(*dc.Timeout); err != nil {
				return fmt.Errorf("invalid %s.timeout %q: %w", name, *dc.Timeout, err)
			}
		}
		if dc.WriteTimeout != nil && *dc.WriteTimeout != "" {
			if _, err := time.ParseDuration(*dc.WriteTimeout); err != nil {
				return fmt.Errorf("invalid %s.write_timeout %q: %w", name, *dc.WriteTimeout, err)
			}
		}
	}
	return nil
}

// GetGPSOrientationOnShip returns gps_orientation_on_ship or its fallback.
func (c *AutopilotConfig) GetGPSOrientationOnShip() float64 {
	if c.AutoPilot.GPSOrientationOnShip == nil {
		return 0
	}
	return *c.AutoPilot.GPSOrientationOnShip
}

// GetIndexingTableOrientationOnShip returns
// indexing_table_orientation_on_ship or its fallback.
func (c *AutopilotConfig) GetIndexingTableOrientationOnShip() float64 {
	if c.AutoPilot.IndexingTableOrientationOnShip == nil {
		return 0
	}
	return *c.AutoPilot.IndexingTableOrientationOnShip
}

// GetValidIndexingTableOrientationLimits returns the tower's mechanical
// limits. Validate guarantees this is always populated after Load.
func (c *AutopilotConfig) GetValidIndexingTableOrientationLimits() (lo, hi float64) {
	if len(c.AutoPilot.ValidIndexingTableOrientationLimits) != 2 {
		return -180, 180
	}
	return c.AutoPilot.ValidIndexingTableOrientationLimits[0], c.AutoPilot.ValidIndexingTableOrientationLimits[1]
}

// GetOptimalAngleAwayFromSun returns optimal_angle_away_from_sun or its
// fallback.
func (c *AutopilotConfig) GetOptimalAngleAwayFromSun() float64 {
	if c.AutoPilot.OptimalAngleAwayFromSun == nil {
		return 135
	}
	return *c.AutoPilot.OptimalAngleAwayFromSun
}

// GetValidAngleAwayFromSunLimits returns
// valid_angle_away_from_sun_limits or its fallback [90,135].
func (c *AutopilotConfig) GetValidAngleAwayFromSunLimits() (lo, hi float64) {
	if len(c.AutoPilot.ValidAngleAwayFromSunLimits) != 2 {
		return 90, 135
	}
	return c.AutoPilot.ValidAngleAwayFromSunLimits[0], c.AutoPilot.ValidAngleAwayFromSunLimits[1]
}

// GetMinimumDistanceDelta returns minimum_distance_delta or its fallback.
func (c *AutopilotConfig) GetMinimumDistanceDelta() float64 {
	if c.AutoPilot.MinimumDistanceDelta == nil {
		return 3.0
	}
	return *c.AutoPilot.MinimumDistanceDelta
}

// GetOperationMode returns operation_mode or its fallback "auto".
func (c *AutopilotConfig) GetOperationMode() string {
	if c.Runner.OperationMode == nil {
		return "auto"
	}
	return *c.Runner.OperationMode
}

// GetHeadingSource returns heading_source or its fallback, the first
// listed option.
func (c *AutopilotConfig) GetHeadingSource() string {
	if c.Runner.HeadingSource == nil {
		return "gps_relative_position"
	}
	return *c.Runner.HeadingSource
}

// GetMinSunElevation returns min_sun_elevation or its fallback.
func (c *AutopilotConfig) GetMinSunElevation() float64 {
	if c.Runner.MinSunElevation == nil {
		return 20
	}
	return *c.Runner.MinSunElevation
}

// GetRefresh returns the supervisor loop period, refresh or its fallback
// of 5 seconds.
func (c *AutopilotConfig) GetRefresh() time.Duration {
	if c.Runner.Refresh == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.Runner.Refresh) * time.Second
}

// GetHaltHostOnExit returns halt_host_on_exit or its fallback false.
func (c *AutopilotConfig) GetHaltHostOnExit() bool {
	if c.Runner.HaltHostOnExit == nil {
		return false
	}
	return *c.Runner.HaltHostOnExit
}

// GetFileLength returns the merged-log rotation period, file_length or
// its fallback of 60 minutes.
func (c *AutopilotConfig) GetFileLength() time.Duration {
	if c.DataLogger.FileLength == nil {
		return 60 * time.Minute
	}
	return time.Duration(*c.DataLogger.FileLength) * time.Minute
}

// GetFilenamePrefix returns filename_prefix; spec §6 gives no fallback for
// this key, so an unset value returns "".
func (c *AutopilotConfig) GetFilenamePrefix() string {
	if c.DataLogger.FilenamePrefix == nil {
		return ""
	}
	return *c.DataLogger.FilenamePrefix
}

// GetFilenameExt returns filename_ext, defaulting to "" when unset.
func (c *AutopilotConfig) GetFilenameExt() string {
	if c.DataLogger.FilenameExt == nil {
		return ""
	}
	return *c.DataLogger.FilenameExt
}

// GetPathToData returns path_to_data, defaulting to "." when unset.
func (c *AutopilotConfig) GetPathToData() string {
	if c.DataLogger.PathToData == nil {
		return "."
	}
	return *c.DataLogger.PathToData
}

// GetReopenDelay returns reopen_delay, defaulting to 5 seconds when unset
// or unparsable (Validate rejects an unparsable value already, so the
// parse failure branch here only guards direct struct construction).
func (c *AutopilotConfig) GetReopenDelay() time.Duration {
	if c.DataLogger.ReopenDelay == nil || *c.DataLogger.ReopenDelay == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.DataLogger.ReopenDelay)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetSIP returns HyperSAS.sip, the path to the calibration file.
func (c *AutopilotConfig) GetSIP() string {
	if c.HyperSAS.SIP == nil {
		return ""
	}
	return *c.HyperSAS.SIP
}

// GetImmersed returns HyperSAS.immersed or its fallback false.
func (c *AutopilotConfig) GetImmersed() bool {
	if c.HyperSAS.Immersed == nil {
		return false
	}
	return *c.HyperSAS.Immersed
}

// GetPathToDeviceFiles returns HyperSAS.path_to_device_files.
func (c *AutopilotConfig) GetPathToDeviceFiles() string {
	if c.HyperSAS.PathToDeviceFiles == nil {
		return ""
	}
	return *c.HyperSAS.PathToDeviceFiles
}

// SetOperationMode overwrites Runner.operation_mode in memory. Callers are
// responsible for calling Save to persist the change (spec §4.8
// set_cfg_variable/write_cfg).
func (c *AutopilotConfig) SetOperationMode(v string) { c.Runner.OperationMode = &v }

// SetHeadingSource overwrites Runner.heading_source in memory.
func (c *AutopilotConfig) SetHeadingSource(v string) { c.Runner.HeadingSource = &v }

// SetMinSunElevation overwrites Runner.min_sun_elevation in memory.
func (c *AutopilotConfig) SetMinSunElevation(v float64) { c.Runner.MinSunElevation = &v }

// Device returns the named per-device section and whether it was present
// in the config file at all.
func (c *AutopilotConfig) Device(name string) (DeviceConfig, bool) {
	dc, ok := c.Devices[name]
	return dc, ok
}

// GetPort returns the device's serial port path.
func (d DeviceConfig) GetPort() string {
	if d.Port == nil {
		return ""
	}
	return *d.Port
}

// GetBaudRate returns baudrate or the 19200 default also used by
// internal/serialmux.PortOptions.Normalize.
func (d DeviceConfig) GetBaudRate() int {
	if d.BaudRate == nil {
		return 19200
	}
	return *d.BaudRate
}

// GetByteSize returns bytesize or its default of 8.
func (d DeviceConfig) GetByteSize() int {
	if d.ByteSize == nil {
		return 8
	}
	return *d.ByteSize
}

// GetParity returns parity or its default "N".
func (d DeviceConfig) GetParity() string {
	if d.Parity == nil || *d.Parity == "" {
		return "N"
	}
	return *d.Parity
}

// GetStopBits returns stopbits or its default of 1.
func (d DeviceConfig) GetStopBits() int {
	if d.StopBits == nil {
		return 1
	}
	return *d.StopBits
}

// GetTimeout returns timeout or its default of 1 second.
func (d DeviceConfig) GetTimeout() time.Duration {
	if d.Timeout == nil || *d.Timeout == "" {
		return time.Second
	}
	if dur, err := time.ParseDuration(*d.Timeout); err == nil {
		return dur
	}
	return time.Second
}

// GetWriteTimeout returns write_timeout or its default of 1 second.
func (d DeviceConfig) GetWriteTimeout() time.Duration {
	if d.WriteTimeout == nil || *d.WriteTimeout == "" {
		return time.Second
	}
	if dur, err := time.ParseDuration(*d.WriteTimeout); err == nil {
		return dur
	}
	return time.Second
}

// GetXonXoff, GetRtsCts, GetDsrDtr return their respective flow-control
// flags, defaulting to false.
func (d DeviceConfig) GetXonXoff() bool { return d.XonXoff != nil && *d.XonXoff }
func (d DeviceConfig) GetRtsCts() bool  { return d.RtsCts != nil && *d.RtsCts }
func (d DeviceConfig) GetDsrDtr() bool  { return d.DsrDtr != nil && *d.DsrDtr }

// GetRelayGPIOPin returns relay_gpio_pin, or -1 if the device has no
// relay wired.
func (d DeviceConfig) GetRelayGPIOPin() int {
	if d.RelayGPIOPin == nil {
		return -1
	}
	return *d.RelayGPIOPin
}

// GetPathToData returns the device's own path_to_data override, falling
// back to the root-level value when unset.
func (d DeviceConfig) GetPathToData(rootDefault string) string {
	if d.PathToData == nil || *d.PathToData == "" {
		return rootDefault
	}
	return *d.PathToData
}

// GetFileLength returns the device's own file_length override, falling
// back to the root-level value when unset.
func (d DeviceConfig) GetFileLength(rootDefault time.Duration) time.Duration {
	if d.FileLength == nil {
		return rootDefault
	}
	return time.Duration(*d.FileLength) * time.Minute
}
