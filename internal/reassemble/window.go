// Package reassemble implements the Offline Reassembler (spec §4.10):
// given a directory of per-sensor logs left behind by a live run (GPS
// CSVs, indexing-table CSVs, radiometer binaries), it reconstructs the
// same merged binary the online Supervisor would have written, split
// into calendar windows. Grounded on the original pySAS prepSAS
// Converter class (read_sat/read_gps/read_twr, make_gprmc, make_umtwr,
// run), ported to the teacher's collaborator-injection style rather
// than pandas.
package reassemble

import (
	"fmt"
	"time"
)

// Mode selects the reassembler's output windowing granularity (spec
// §4.10, §6 CLI `-m day|hour`).
type Mode int

const (
	Hour Mode = iota
	Day
)

// ParseMode parses the CLI's -m flag value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "hour":
		return Hour, nil
	case "day":
		return Day, nil
	default:
		return 0, fmt.Errorf("reassemble: unknown window mode %q, want day or hour", s)
	}
}

// window is one [Start, End) span of UTC wall-clock time a single output
// file covers.
type window struct {
	Start, End time.Time
}

// FilenameSuffix renders the window's start time the way pySAS's
// Converter.run names output files: YYYYMMDD for day mode, and
// YYYYMMDD_HHMMSS for hour mode.
func (w window) FilenameSuffix(mode Mode) string {
	if mode == Day {
		return w.Start.Format("20060102")
	}
	return w.Start.Format("20060102_150405")
}

// Contains reports whether ts falls in [w.Start, w.End).
func (w window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// windowsSpanning builds the consecutive day- or hour-aligned windows
// covering [minTS, maxTS], inclusive of the instant maxTS itself (spec
// §4.10; grounded on pySAS Converter.run's dt_start/dt_end/window loop,
// which rounds the first timestamp down to the window boundary and adds
// one second to the last so a frame landing exactly on maxTS is kept).
func windowsSpanning(minTS, maxTS time.Time, mode Mode) []window {
	if maxTS.Before(minTS) {
		return nil
	}
	minTS = minTS.UTC()
	maxTS = maxTS.UTC()

	var step time.Duration
	var start time.Time
	switch mode {
	case Day:
		step = 24 * time.Hour
		start = time.Date(minTS.Year(), minTS.Month(), minTS.Day(), 0, 0, 0, 0, time.UTC)
	default:
		step = time.Hour
		start = time.Date(minTS.Year(), minTS.Month(), minTS.Day(), minTS.Hour(), 0, 0, 0, time.UTC)
	}

	end := maxTS.Add(time.Second)

	var out []window
	for start.Before(end) {
		out = append(out, window{Start: start, End: start.Add(step)})
		start = start.Add(step)
	}
	return out
}
