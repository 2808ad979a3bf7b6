package reassemble

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
	"github.com/oceanoptics/sas-autopilot/internal/radiometer"
	"github.com/oceanoptics/sas-autopilot/internal/supervisor"
)

// Options configures one reassembly run (spec §4.10, §6 CLI surface).
type Options struct {
	InputDir       string
	OutputDir      string
	Mode           Mode
	FilenamePrefix string

	Calibration                    radiometer.Calibration
	Header                         HeaderMeta
	IndexingTableOrientationOnShip float64
	Altitude                       float64
	SunPosition                    supervisor.SunPosition
	GPRMC                          GPRMCConfig

	// RunIndexPath, if set, makes the run resumable: windows already
	// recorded there are skipped on a later invocation over the same
	// output directory (SPEC_FULL.md addition; see runindex.go).
	RunIndexPath string

	Now func() time.Time
}

// Summary reports what one Run call did.
type Summary struct {
	WindowsWritten int
	WindowsSkipped int
	FramesWritten  int
}

// Run discovers HyperSAS_*.bin, GPS_*.csv, and IndexingTable_*.csv files
// under opts.InputDir (spec §6's glob patterns), reconstructs GPRMC and
// UMTWR frames from the GPS and table logs, merges them with the
// passed-through radiometer frames, splits the result into calendar
// windows, and writes one merged output file per window (spec §4.10).
//
// Grounded on pySAS Converter.run: glob, read every input file in full,
// then window and write — there is no incremental/streaming mode in the
// original, and this port keeps that shape.
func Run(opts Options) (Summary, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	satFiles, err := filepath.Glob(filepath.Join(opts.InputDir, "HyperSAS_*.bin"))
	if err != nil {
		return Summary{}, fmt.Errorf("reassemble: glob HyperSAS_*.bin: %w", err)
	}
	gpsFiles, err := filepath.Glob(filepath.Join(opts.InputDir, "GPS_*.csv"))
	if err != nil {
		return Summary{}, fmt.Errorf("reassemble: glob GPS_*.csv: %w", err)
	}
	twrFiles, err := filepath.Glob(filepath.Join(opts.InputDir, "IndexingTable_*.csv"))
	if err != nil {
		return Summary{}, fmt.Errorf("reassemble: glob IndexingTable_*.csv: %w", err)
	}
	sort.Strings(satFiles)
	sort.Strings(gpsFiles)
	sort.Strings(twrFiles)

	var allRecords []Record
	if opts.Calibration == nil && len(satFiles) > 0 {
		monitoring.Logf("reassemble: %s has %d HyperSAS log(s) but no Calibration is configured, skipping radiometer frames (spec §7: calibration missing)", opts.InputDir, len(satFiles))
		satFiles = nil
	}
	for _, f := range satFiles {
		recs, err := ReadRadiometerLog(f, opts.Calibration, now)
		if err != nil {
			return Summary{}, err
		}
		allRecords = append(allRecords, recs...)
	}

	var gpsRows []GPSRow
	for _, f := range gpsFiles {
		rows, err := ReadGPSCSVFile(f)
		if err != nil {
			return Summary{}, err
		}
		gpsRows = append(gpsRows, rows...)
	}

	var tableRows []TableRow
	for _, f := range twrFiles {
		rows, err := ReadTableCSVFile(f)
		if err != nil {
			return Summary{}, err
		}
		tableRows = append(tableRows, rows...)
	}

	allRecords = append(allRecords, BuildGPRMC(gpsRows, opts.GPRMC)...)

	umtwrRecords, _ := BuildUMTWR(gpsRows, tableRows, UMTWRConfig{
		IndexingTableOrientationOnShip: opts.IndexingTableOrientationOnShip,
		SunPosition:                    opts.SunPosition,
		Altitude:                       opts.Altitude,
	})
	allRecords = append(allRecords, umtwrRecords...)

	if len(allRecords) == 0 {
		monitoring.Logf("reassemble: %s has no reconstructable frames, nothing written", opts.InputDir)
		return Summary{}, nil
	}

	minTS, maxTS := allRecords[0].Timestamp, allRecords[0].Timestamp
	for _, r := range allRecords {
		if r.Timestamp.Before(minTS) {
			minTS = r.Timestamp
		}
		if r.Timestamp.After(maxTS) {
			maxTS = r.Timestamp
		}
	}

	var runIdx *RunIndex
	if opts.RunIndexPath != "" {
		runIdx, err = OpenRunIndex(opts.RunIndexPath)
		if err != nil {
			return Summary{}, err
		}
		defer runIdx.Close()
	}

	var summary Summary
	for _, w := range windowsSpanning(minTS, maxTS, opts.Mode) {
		suffix := w.FilenameSuffix(opts.Mode)
		if runIdx != nil {
			done, err := runIdx.Done(suffix)
			if err != nil {
				return summary, err
			}
			if done {
				summary.WindowsSkipped++
				continue
			}
		}

		var windowRecords []Record
		for _, r := range allRecords {
			if w.Contains(r.Timestamp) {
				windowRecords = append(windowRecords, r)
			}
		}
		var windowGPS []GPSRow
		for _, r := range gpsRows {
			if w.Contains(r.Datetime) {
				windowGPS = append(windowGPS, r)
			}
		}
		if len(windowRecords) == 0 {
			continue
		}

		_, frameCount, err := WriteWindow(opts.OutputDir, opts.FilenamePrefix, w, opts.Mode, windowRecords, opts.Header, windowGPS)
		if err != nil {
			return summary, err
		}

		if runIdx != nil {
			if err := runIdx.Record(suffix, frameCount, now()); err != nil {
				return summary, err
			}
		}

		summary.WindowsWritten++
		summary.FramesWritten += frameCount
	}

	return summary, nil
}
