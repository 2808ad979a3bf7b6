package reassemble

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oceanoptics/sas-autopilot/internal/gps"
)

func writeTestGPSFile(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "GPS_test.csv")
	content := gps.CSVHeader()
	for _, l := range lines {
		content += l + "\r\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadGPSCSVFile(t *testing.T) {
	path := writeTestGPSFile(t,
		"2026/03/01 12:00:00.000,2026/03/01 12:00:00.000,0.1,true,45.5,0.2,true,46.1,47.2,0.3,true,5.5,0.1,36.1,-75.2,1.5,10.2,0.5,true,3,2026/03/01 12:00:00.000",
	)

	rows, err := ReadGPSCSVFile(path)
	if err != nil {
		t.Fatalf("ReadGPSCSVFile: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	r := rows[0]
	if r.Latitude != 36.1 || r.Longitude != -75.2 {
		t.Errorf("lat/lon = %v,%v", r.Latitude, r.Longitude)
	}
	if !r.FixOK || !r.DatetimeValid {
		t.Errorf("fix_ok/datetime_valid not parsed true: %+v", r)
	}
	if r.FixType != 3 {
		t.Errorf("fix_type = %d, want 3", r.FixType)
	}
	if r.Heading != 45.5 {
		t.Errorf("heading = %v, want 45.5", r.Heading)
	}
}

func TestReadGPSCSVFile_SkipsBadRows(t *testing.T) {
	path := writeTestGPSFile(t,
		"not,a,valid,row",
		"2026/03/01 12:00:01.000,2026/03/01 12:00:01.000,0.1,true,45.5,0.2,true,46.1,47.2,0.3,true,5.5,0.1,36.1,-75.2,1.5,10.2,0.5,true,3,2026/03/01 12:00:01.000",
	)

	rows, err := ReadGPSCSVFile(path)
	if err != nil {
		t.Fatalf("ReadGPSCSVFile: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (bad row should be skipped, not fatal)", len(rows))
	}
}

func TestReadGPSCSVFile_NoHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GPS_noheader.csv")
	content := "2026/03/01 12:00:02.000,2026/03/01 12:00:02.000,0.1,true,45.5,0.2,true,46.1,47.2,0.3,true,5.5,0.1,36.1,-75.2,1.5,10.2,0.5,true,3,2026/03/01 12:00:02.000\r\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rows, err := ReadGPSCSVFile(path)
	if err != nil {
		t.Fatalf("ReadGPSCSVFile: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestReadGPSCSVFile_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "GPS_empty.csv")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	rows, err := ReadGPSCSVFile(path)
	if err != nil {
		t.Fatalf("ReadGPSCSVFile: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
