package reassemble

import (
	"math"
	"sort"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/supervisor"
)

// UMTWRConfig mirrors the Supervisor's tower-orientation and
// sun-position collaborators for reassembled UMTWR frames. There is no
// GPS-orientation field: the reassembled ship_hdg is the logged GPS
// heading-relative reading as is, while the live buildUMTWRFrame passes
// that reading through Pilot.GetShipHeading, which subtracts
// GPSOrientationOnShip. The two ship_hdg values (and the sas_hdg derived
// from them) differ whenever that offset is non-zero.
type UMTWRConfig struct {
	IndexingTableOrientationOnShip float64
	SunPosition                    supervisor.SunPosition
	Altitude                       float64
}

// UMTWRSample is the subset of a reassembled UMTWR row that stats.go
// needs, kept separate from the rendered Record so SummarizeUMTWR does
// not have to re-parse the wire format.
type UMTWRSample struct {
	Timestamp   time.Time
	ShipHeading float64
	Elevation   float64
}

type umtwrEvent struct {
	ts       time.Time
	gpsIdx   int
	tableIdx int
}

// BuildUMTWR reconstructs one UMTWR frame per merged GPS/table timestamp
// (spec §4.10), grounded on pySAS Converter.make_umtwr: GPS and table
// rows are merged on a shared, sorted timestamp axis; a GPS reference is
// forward-filled for up to 15 consecutive table-only events (idx.ig in
// the original), while the table reference is forward-filled without
// limit once a row has been seen at all. Sun position is computed once
// per distinct GPS row and cached, since it is expensive and the GPS fix
// rate is much lower than the table's.
//
// Unlike the live Supervisor, which emits TowerNoData when the table
// device is absent, the offline reassembler only ever has historical
// rows to work from: a merge point with no usable GPS or table reference
// is dropped rather than emitted with a synthesized "no data" status.
func BuildUMTWR(gpsRows []GPSRow, tableRows []TableRow, cfg UMTWRConfig) ([]Record, []UMTWRSample) {
	events := make([]umtwrEvent, 0, len(gpsRows)+len(tableRows))
	for i, r := range gpsRows {
		events = append(events, umtwrEvent{ts: r.Datetime, gpsIdx: i, tableIdx: -1})
	}
	for i, r := range tableRows {
		events = append(events, umtwrEvent{ts: r.Datetime, gpsIdx: -1, tableIdx: i})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].ts.Before(events[j].ts) })

	const gpsForwardFillLimit = 15

	type sunResult struct{ elev, az float64 }
	sunCache := make(map[int]sunResult)

	sunFor := func(idx int) (elev, az float64) {
		if res, ok := sunCache[idx]; ok {
			return res.elev, res.az
		}
		r := gpsRows[idx]
		if cfg.SunPosition == nil || !r.DatetimeValid || !r.FixOK {
			res := sunResult{elev: math.NaN(), az: math.NaN()}
			sunCache[idx] = res
			return res.elev, res.az
		}
		elev, az = cfg.SunPosition(r.Latitude, r.Longitude, r.GPSDatetime, cfg.Altitude)
		sunCache[idx] = sunResult{elev: elev, az: az}
		return elev, az
	}

	var records []Record
	var samples []UMTWRSample

	haveGPS, haveTable := false, false
	var curGPS, curTable int
	gpsAge := gpsForwardFillLimit + 1

	for _, ev := range events {
		if ev.gpsIdx >= 0 {
			curGPS, haveGPS, gpsAge = ev.gpsIdx, true, 0
		}
		if ev.tableIdx >= 0 {
			curTable, haveTable = ev.tableIdx, true
			gpsAge++
		}
		if !haveGPS || !haveTable || gpsAge > gpsForwardFillLimit {
			continue
		}

		g := gpsRows[curGPS]
		tr := tableRows[curTable]

		shipHdg := supervisor.Mod360(g.Heading)
		sasHdg := supervisor.Mod360(shipHdg - cfg.IndexingTableOrientationOnShip + tr.Position)

		status := byte(supervisor.TowerOK)
		if tr.StallKnown && tr.StallFlag {
			status = supervisor.TowerStalled
		}

		elev, az := sunFor(curGPS)

		line := supervisor.FormatUMTWR(
			sasHdg,
			shipHdg,
			g.HeadingAccuracy,
			supervisor.Mod360(g.HeadingMotion),
			g.SpeedAccuracy,
			tr.Position,
			status,
			supervisor.Mod360(az),
			elev,
		)

		records = append(records, Record{Timestamp: ev.ts, Payload: line})
		samples = append(samples, UMTWRSample{Timestamp: ev.ts, ShipHeading: shipHdg, Elevation: elev})
	}

	return records, samples
}
