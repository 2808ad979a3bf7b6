package reassemble

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats summarizes the UMTWR samples reconstructed for one output
// window (SPEC_FULL.md's addition: the original prepSAS.py run left
// quick-look aggregation to a separate analysis step; folding it into
// reassembly gives each output file's header-adjacent log line
// something to report without a second pass over the data).
//
// Grounded on the teacher's internal/db.go RadarObjectsRollupRow
// aggregation, which reaches for gonum/stat for the same kind of
// per-bucket summary statistic rather than hand-rolling percentiles.
type WindowStats struct {
	Count             int
	MeanShipHeading   float64
	StdDevShipHeading float64
	MeanElevation     float64
	StdDevElevation   float64
	P50Elevation      float64
}

// SummarizeUMTWR computes WindowStats over samples. An empty slice
// yields a zero-value WindowStats with Count 0.
func SummarizeUMTWR(samples []UMTWRSample) WindowStats {
	if len(samples) == 0 {
		return WindowStats{}
	}

	headings := make([]float64, len(samples))
	elevations := make([]float64, len(samples))
	for i, s := range samples {
		headings[i] = s.ShipHeading
		elevations[i] = s.Elevation
	}

	sortedElevations := append([]float64(nil), elevations...)
	sort.Float64s(sortedElevations)

	meanHdg, stdHdg := stat.MeanStdDev(headings, nil)
	meanElev, stdElev := stat.MeanStdDev(elevations, nil)

	return WindowStats{
		Count:             len(samples),
		MeanShipHeading:   meanHdg,
		StdDevShipHeading: stdHdg,
		MeanElevation:     meanElev,
		StdDevElevation:   stdElev,
		P50Elevation:      stat.Quantile(0.5, stat.Empirical, sortedElevations, nil),
	}
}
