package reassemble

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/gps"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
)

// GPSRow is one parsed row of a GPS CSV log (spec §6), in the reader's
// own column order.
type GPSRow struct {
	Datetime         time.Time
	GPSDatetime      time.Time
	DatetimeAccuracy float64
	DatetimeValid    bool

	Heading         float64
	HeadingAccuracy float64
	HeadingValid    bool

	HeadingMotion          float64
	HeadingVehicle         float64
	HeadingVehicleAccuracy float64
	HeadingVehicleValid    bool

	Speed         float64
	SpeedAccuracy float64

	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
	Altitude           float64
	AltitudeAccuracy   float64

	FixOK   bool
	FixType int

	LastPacket time.Time
}

const gpsTimeLayout = "2006/01/02 15:04:05.000"

// ReadGPSCSVFile parses a whole GPS CSV log file (gps.Reader.writeRow's
// output). It recognizes and skips the two-line header gps.CSVHeader()
// writes (a file missing it is read just as well), skips blank lines,
// and drops any row it cannot parse with a warning rather than failing
// the whole file (spec §4.10 failure semantics).
func ReadGPSCSVFile(path string) ([]GPSRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reassemble: gps csv %s: %w", path, err)
	}
	defer f.Close()

	headerLines := strings.Split(strings.TrimRight(gps.CSVHeader(), "\r\n"), "\r\n")

	var rows []GPSRow
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if lineNum <= len(headerLines) && line == headerLines[lineNum-1] {
			continue
		}
		row, err := parseGPSRow(line)
		if err != nil {
			monitoring.Logf("reassemble: gps csv %s:%d: %v", path, lineNum, err)
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reassemble: gps csv %s: %w", path, err)
	}
	if len(rows) == 0 {
		monitoring.Logf("reassemble: gps csv %s has no usable rows, skipping", path)
	}
	return rows, nil
}

// fieldCursor walks a row's comma-separated fields in order, recording
// the first parse failure so callers can check it once at the end
// instead of after every field.
type fieldCursor struct {
	fields []string
	idx    int
	err    error
}

func (c *fieldCursor) next(name string) string {
	if c.idx >= len(c.fields) {
		if c.err == nil {
			c.err = fmt.Errorf("%s: missing column", name)
		}
		return ""
	}
	v := c.fields[c.idx]
	c.idx++
	return v
}

func (c *fieldCursor) float(name string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.next(name)), 64)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

func (c *fieldCursor) boolean(name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.next(name)))
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

func (c *fieldCursor) integer(name string) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.next(name)))
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

func (c *fieldCursor) timestamp(name string) time.Time {
	v, err := time.Parse(gpsTimeLayout, strings.TrimSpace(c.next(name)))
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

func parseGPSRow(line string) (GPSRow, error) {
	const wantColumns = 21
	fields := strings.Split(line, ",")
	if len(fields) != wantColumns {
		return GPSRow{}, fmt.Errorf("expected %d columns, got %d", wantColumns, len(fields))
	}

	c := &fieldCursor{fields: fields}
	var r GPSRow
	r.Datetime = c.timestamp("datetime")
	r.GPSDatetime = c.timestamp("gps_datetime")
	r.DatetimeAccuracy = c.float("datetime_accuracy")
	r.DatetimeValid = c.boolean("datetime_valid")
	r.Heading = c.float("heading")
	r.HeadingAccuracy = c.float("heading_accuracy")
	r.HeadingValid = c.boolean("heading_valid")
	r.HeadingMotion = c.float("heading_motion")
	r.HeadingVehicle = c.float("heading_vehicle")
	r.HeadingVehicleAccuracy = c.float("heading_vehicle_accuracy")
	r.HeadingVehicleValid = c.boolean("heading_vehicle_valid")
	r.Speed = c.float("speed")
	r.SpeedAccuracy = c.float("speed_accuracy")
	r.Latitude = c.float("latitude")
	r.Longitude = c.float("longitude")
	r.HorizontalAccuracy = c.float("horizontal_accuracy")
	r.Altitude = c.float("altitude")
	r.AltitudeAccuracy = c.float("altitude_accuracy")
	r.FixOK = c.boolean("fix_ok")
	r.FixType = c.integer("fix_type")
	r.LastPacket = c.timestamp("last_packet")

	if c.err != nil {
		return GPSRow{}, c.err
	}
	return r, nil
}
