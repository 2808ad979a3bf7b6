package reassemble

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/oceanoptics/sas-autopilot/internal/binlog"
	"github.com/oceanoptics/sas-autopilot/internal/frame"
)

// HeaderMeta supplies the cruise/operator metadata that has no per-row
// source in the raw logs (spec §6's SATHDR keys that come from the CLI
// or a config file, not from GPS/radiometer/table data). Fields left
// empty render as empty SATHDR values, matching binlog.BuildSATHDR's
// own handling of a key missing from its values map.
type HeaderMeta struct {
	Cruise       string
	Operator     string
	Investigator string
	Affiliation  string
	Contact      string
	Experiment   string
	Zone         string
	Comment      string
	Document     string
	StationID    string
	Cast         string
}

// boundingBox returns the GPS latitude/longitude extent covering rows,
// formatted as a single-point "LATITUDE"/"LONGITUDE" SATHDR value (the
// mean of the window rather than a range, since SATHDR has only one
// slot per key). Rows with an invalid fix are ignored; an all-invalid
// or empty rows yields (NaN, NaN).
func boundingBox(rows []GPSRow) (lat, lon float64) {
	var sumLat, sumLon float64
	var n int
	for _, r := range rows {
		if !r.FixOK {
			continue
		}
		sumLat += r.Latitude
		sumLon += r.Longitude
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	return sumLat / float64(n), sumLon / float64(n)
}

// WriteWindow renders one merged output file for window w: a
// binlog.BuildSATHDR file header (spec §6) followed by records, each
// sorted by timestamp and suffixed with frame.Pack7, exactly as
// binlog.Writer appends a timestamp to every live frame it writes.
//
// The returned path follows prefix + window.FilenameSuffix(mode) +
// ".bin" inside outDir (spec §6's output filename formats).
func WriteWindow(outDir, prefix string, w window, mode Mode, records []Record, meta HeaderMeta, gpsRows []GPSRow) (path string, frameCount int, err error) {
	sortRecords(records)

	lat, lon := boundingBox(gpsRows)
	values := map[string]string{
		"CRUISE-ID":    meta.Cruise,
		"OPERATOR":     meta.Operator,
		"INVESTIGATOR": meta.Investigator,
		"AFFILIATION":  meta.Affiliation,
		"CONTACT":      meta.Contact,
		"EXPERIMENT":   meta.Experiment,
		"ZONE":         meta.Zone,
		"COMMENT":      meta.Comment,
		"DOCUMENT":     meta.Document,
		"STATION-ID":   meta.StationID,
		"CAST":         meta.Cast,
	}
	if !math.IsNaN(lat) {
		values["LATITUDE"] = fmt.Sprintf("%.5f", lat)
	}
	if !math.IsNaN(lon) {
		values["LONGITUDE"] = fmt.Sprintf("%.5f", lon)
	}

	header := binlog.BuildSATHDR(values)

	out := make([]byte, 0, len(header)+len(records)*64)
	out = append(out, header...)
	for _, r := range records {
		ts7 := frame.Pack7(r.Timestamp)
		out = append(out, r.Payload...)
		out = append(out, ts7[:]...)
	}

	filename := prefix + w.FilenameSuffix(mode) + ".bin"
	path = filepath.Join(outDir, filename)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", 0, fmt.Errorf("reassemble: write window %s: %w", path, err)
	}
	return path, len(records), nil
}
