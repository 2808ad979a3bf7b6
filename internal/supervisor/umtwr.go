package supervisor

import (
	"fmt"
	"math"
	"time"
)

// towerStatus summarizes the indexing table's condition for the UMTWR
// frame's single-letter status field (spec §4.9): O(k), S(talled), or
// N(o data).
type towerStatus byte

const (
	towerOK      towerStatus = TowerOK
	towerStalled towerStatus = TowerStalled
	towerNoData  towerStatus = TowerNoData
)

// Exported byte values of the UMTWR status field, shared with
// internal/reassemble so the offline reconstruction uses the same
// letters as the live frame.
const (
	TowerOK      = 'O'
	TowerStalled = 'S'
	TowerNoData  = 'N'
)

// Mod360 folds v into [0, 360), matching the frame's unsigned heading
// convention (distinct from internal/angle.SignedAngle's (-180,180]).
func Mod360(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}

// mod360 is the package-local spelling used by buildUMTWRFrame; kept so
// call sites below read the same as before the export.
func mod360(v float64) float64 { return Mod360(v) }

// FormatUMTWR renders the UMTWR telemetry line (spec §4.9) from its
// already-computed fields. It is the single source of truth for the wire
// format: the live Supervisor calls it from buildUMTWRFrame below, and
// internal/reassemble calls it directly when reconstructing UMTWR frames
// from logged GPS and indexing-table CSVs (spec §4.10).
func FormatUMTWR(sasHdg, shipHdg, shipHdgAcc, motionHdg, motionHdgAcc, towerPos float64, status byte, sunAz, sunEl float64) []byte {
	return []byte(fmt.Sprintf("UMTWR,%.2f,%.2f,%.2f,%.1f,%.1f,%.2f,%c,%.1f,%.1f\r\n",
		sasHdg, shipHdg, shipHdgAcc, motionHdg, motionHdgAcc, towerPos, status, sunAz, sunEl,
	))
}

// maxTime returns the latest of the given timestamps, ignoring zero
// values; it returns the zero Time if every argument is zero.
func maxTime(ts ...time.Time) time.Time {
	var max time.Time
	for _, t := range ts {
		if t.After(max) {
			max = t
		}
	}
	return max
}

// buildUMTWRFrame assembles one UMTWR telemetry line (spec §4.9) from the
// supervisor's latest GPS, sun, and table state, along with the clock time
// it should be logged under (the newest of the three contributing
// receive timestamps, or the current clock time if all three are zero).
//
// sas_hdg follows the frame's own ship_hdg field literally (spec §4.9's
// formula), not pySAS's internal self.ship_heading attribute — see
// DESIGN.md for why these two values can differ and which one this
// follows.
func (s *Supervisor) buildUMTWRFrame() (frame []byte, loggedAt time.Time) {
	var gpsSnap = struct {
		HeadingRel, HeadingRelAccuracy       float64
		HeadingValid                         bool
		HeadingMotion, HeadingMotionAccuracy float64
		FixOK                                bool
		PVTReceivedAt, RelposnedReceivedAt   time.Time
	}{}
	if s.devices.GPS != nil {
		snap := s.devices.GPS.Snapshot()
		gpsSnap.HeadingRel = float64(snap.HeadingRel)
		gpsSnap.HeadingRelAccuracy = snap.HeadingAccuracy
		gpsSnap.HeadingValid = snap.HeadingValid
		gpsSnap.HeadingMotion = float64(snap.HeadingMotion)
		gpsSnap.HeadingMotionAccuracy = snap.SpeedAccuracy
		gpsSnap.FixOK = snap.FixOK
		gpsSnap.PVTReceivedAt = snap.PVTReceivedAt
		gpsSnap.RelposnedReceivedAt = snap.RelposnedReceivedAt
	}

	elev, az := s.sunSnapshot()

	// Ship Heading: reported from the RTK relative-heading reading
	// regardless of the configured heading source (spec §4.9), routed
	// through Pilot.GetShipHeading the same as every other heading
	// source, and emitted as nan when stale or never valid (spec §4.9,
	// pySAS make_umtwr_frame).
	shipHdg := math.NaN()
	shipHdgAcc := math.NaN()
	if gpsSnap.HeadingValid && s.fresh(gpsSnap.RelposnedReceivedAt) {
		shipHdg = float64(s.pilot.GetShipHeading(gpsSnap.HeadingRel, nil).ToHeading())
		shipHdgAcc = gpsSnap.HeadingRelAccuracy
	}

	motionHdg := math.NaN()
	motionHdgAcc := math.NaN()
	if gpsSnap.FixOK && s.fresh(gpsSnap.PVTReceivedAt) {
		motionHdg = mod360(gpsSnap.HeadingMotion)
		motionHdgAcc = gpsSnap.HeadingMotionAccuracy
	}

	status := towerNoData
	towerPos := math.NaN()
	var tablePacketAt time.Time
	if s.devices.Table != nil {
		st := s.devices.Table.State()
		tablePacketAt = st.PacketReceived
		if st.Alive && s.fresh(st.PacketReceived) {
			towerPos = st.Position
			if st.StallKnown && st.StallFlag {
				status = towerStalled
			} else {
				status = towerOK
			}
		}
	}

	sasHdg := mod360(shipHdg - float64(s.pilot.TowerZero()) + towerPos)

	loggedAt = maxTime(gpsSnap.PVTReceivedAt, gpsSnap.RelposnedReceivedAt, tablePacketAt)
	if loggedAt.IsZero() {
		loggedAt = s.clock.Now()
	}

	line := FormatUMTWR(
		sasHdg,
		shipHdg,
		shipHdgAcc,
		motionHdg,
		motionHdgAcc,
		towerPos,
		byte(status),
		mod360(az),
		elev,
	)
	return line, loggedAt
}
