package reassemble

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/frame"
	"github.com/oceanoptics/sas-autopilot/internal/radiometer"
)

// fakeCalibration implements radiometer.Calibration with a single known
// header, enough to exercise frame splitting without real calibration
// data (consistent with radiometer.Calibration's role here as an
// external collaborator that reassemble doesn't otherwise depend on).
type fakeCalibration struct{ header []byte }

func (f fakeCalibration) Headers() [][]byte { return [][]byte{f.header} }
func (f fakeCalibration) Role(string) (radiometer.Role, bool) {
	return radiometer.RoleEs, true
}
func (f fakeCalibration) Wavelengths(radiometer.Role) []float64 { return nil }
func (f fakeCalibration) ParseVector(string, []byte) ([]float64, error) {
	return nil, nil
}
func (f fakeCalibration) ParseTHS(string, []byte) (float64, float64, float64, error) {
	return 0, 0, 0, nil
}

func TestReadRadiometerLog(t *testing.T) {
	cal := fakeCalibration{header: []byte("SATHSE0123")}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return ts.Add(time.Hour) }

	var data []byte
	data = append(data, []byte("garbage-before-any-header")...)
	data = append(data, cal.header...)
	payload := []byte("payload-one")
	stamp := frame.Pack7(ts)
	data = append(data, payload...)
	data = append(data, stamp[:]...)
	data = append(data, cal.header...)
	payload2 := []byte("payload-two")
	stamp2 := frame.Pack7(ts.Add(time.Minute))
	data = append(data, payload2...)
	data = append(data, stamp2[:]...)

	dir := t.TempDir()
	path := filepath.Join(dir, "HyperSAS_test.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	records, err := ReadRadiometerLog(path, cal, now)
	if err != nil {
		t.Fatalf("ReadRadiometerLog: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if string(records[0].Payload) != "payload-one" {
		t.Errorf("first payload = %q", records[0].Payload)
	}
	if !records[0].Timestamp.Equal(ts) {
		t.Errorf("first timestamp = %v, want %v", records[0].Timestamp, ts)
	}
	if !records[1].Timestamp.Equal(ts.Add(time.Minute)) {
		t.Errorf("second timestamp = %v", records[1].Timestamp)
	}
}

func TestReadRadiometerLog_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "HyperSAS_empty.bin")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	records, err := ReadRadiometerLog(path, fakeCalibration{header: []byte("X")}, time.Now)
	if err != nil {
		t.Fatalf("ReadRadiometerLog: %v", err)
	}
	if records != nil {
		t.Errorf("expected nil records for empty file, got %v", records)
	}
}

func TestReadRadiometerLog_MissingFile(t *testing.T) {
	_, err := ReadRadiometerLog("/nonexistent/path.bin", fakeCalibration{header: []byte("X")}, time.Now)
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}
