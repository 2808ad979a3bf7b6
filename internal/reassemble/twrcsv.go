package reassemble

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/indexingtable"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
)

// TableRow is one parsed row of an indexing-table CSV log (spec §6).
// StallKnown is false for the "nan" stall_flag the driver logs on position
// and set/set_cfg rows (the driver records a real value only from
// GetStallFlag and ResetStallFlag) until fillStallFlags reconstructs one.
type TableRow struct {
	Datetime   time.Time
	Position   float64 // NaN if the row logged "nan"
	StallFlag  bool
	StallKnown bool
	Type       string // get|set|reset|set_cfg
}

// ReadTableCSVFile parses a whole indexing-table CSV log file
// (indexingtable.Driver.writeLog's output), reconstructs a usable stall
// flag for every row via fillStallFlags, and drops rows that still have
// no position or no stall flag afterward (pySAS Converter.read_twr).
func ReadTableCSVFile(path string) ([]TableRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reassemble: table csv %s: %w", path, err)
	}
	defer f.Close()

	headerLine := strings.TrimRight(indexingtable.CSVHeader(), "\r\n")

	var rows []TableRow
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if lineNum == 1 && line == headerLine {
			continue
		}
		row, err := parseTableRow(line)
		if err != nil {
			monitoring.Logf("reassemble: table csv %s:%d: %v", path, lineNum, err)
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reassemble: table csv %s: %w", path, err)
	}

	fillStallFlags(rows)

	out := rows[:0]
	for _, r := range rows {
		if math.IsNaN(r.Position) || !r.StallKnown {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		monitoring.Logf("reassemble: table csv %s has no usable rows, skipping", path)
	}
	return out, nil
}

func parseTableRow(line string) (TableRow, error) {
	const wantColumns = 4
	fields := strings.Split(line, ",")
	if len(fields) != wantColumns {
		return TableRow{}, fmt.Errorf("expected %d columns, got %d", wantColumns, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	dt, err := time.Parse(gpsTimeLayout, fields[0])
	if err != nil {
		return TableRow{}, fmt.Errorf("datetime: %w", err)
	}

	r := TableRow{Datetime: dt, Type: fields[3]}

	if fields[1] == "nan" {
		r.Position = math.NaN()
	} else if r.Position, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return TableRow{}, fmt.Errorf("position: %w", err)
	}

	switch fields[2] {
	case "nan":
		r.StallKnown = false
	case "True":
		r.StallFlag, r.StallKnown = true, true
	case "False":
		r.StallFlag, r.StallKnown = false, true
	default:
		return TableRow{}, fmt.Errorf("stall_flag: unrecognized value %q", fields[2])
	}

	return r, nil
}

// fillStallFlags reconstructs a usable stall flag for every row in
// place. The driver logs a real value only from GetStallFlag and
// ResetStallFlag; position and set/set_cfg rows log "nan". Forward-fill a known value onto up to
// 20 following unknown rows, then back-fill up to 3 remaining leading
// unknown rows from the nearest following value (pySAS
// Converter.read_twr's `fillna(ffill, limit=20)` then
// `fillna(bfill, limit=3)`).
func fillStallFlags(rows []TableRow) {
	const forwardLimit = 20
	const backwardLimit = 3

	have, last, streak := false, false, 0
	for i := range rows {
		if rows[i].StallKnown {
			have, last, streak = true, rows[i].StallFlag, 0
			continue
		}
		if have {
			streak++
			if streak <= forwardLimit {
				rows[i].StallFlag, rows[i].StallKnown = last, true
			}
		}
	}

	have, last, streak = false, false, 0
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].StallKnown {
			have, last, streak = true, rows[i].StallFlag, 0
			continue
		}
		if have {
			streak++
			if streak <= backwardLimit {
				rows[i].StallFlag, rows[i].StallKnown = last, true
			}
		}
	}
}
