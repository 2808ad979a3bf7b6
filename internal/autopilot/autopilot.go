// Package autopilot implements the pure tower-orientation geometry: given a
// sun azimuth and a ship heading, select the indexing-table orientation that
// keeps the optics pointed away from the sun while staying inside the
// tower's mechanical limits. Ported verbatim (algorithm and hysteresis)
// from the original Python AutoPilot.steer.
package autopilot

import (
	"math"

	"github.com/oceanoptics/sas-autopilot/internal/angle"
)

// Limits is an inclusive angular range expressed in the tower frame. Lo and
// Hi are always normalized to (-180, +180] on construction, so a range
// declared as [-180, 180] collapses to Lo == Hi and is treated as
// unconstrained (the spec's degenerate case), matching the source's
// behavior of storing limits as already-normalized angles.
type Limits struct {
	Lo, Hi angle.SignedAngle
}

// NewLimits builds a Limits value, normalizing both bounds.
func NewLimits(lo, hi float64) Limits {
	return Limits{Lo: angle.Normalize(lo), Hi: angle.Normalize(hi)}
}

// Config holds the static geometry of one tower installation (spec §3
// AutopilotConfig).
type Config struct {
	GPSOrientationOnShip           angle.SignedAngle
	IndexingTableOrientationOnShip angle.SignedAngle
	TowerLimits                    Limits
	Target                         angle.SignedAngle
	TargetLimits                   Limits
	MinDistDelta                   float64
}

// Pilot wraps Config with the mutable hysteresis state (which of the two
// valid options was selected last).
type Pilot struct {
	cfg      Config
	selected *int
}

// New builds a Pilot with no prior selection.
func New(cfg Config) *Pilot {
	return &Pilot{cfg: cfg}
}

// inRange reports whether v lies in [lo,hi] (lo<hi), wraps around
// (lo>hi, valid iff v>=lo or v<=hi), or the range is degenerate (lo==hi,
// always valid).
func inRange(v, lo, hi angle.SignedAngle) bool {
	if lo == hi {
		return true
	}
	if lo < hi {
		return lo <= v && v <= hi
	}
	return v >= lo || v <= hi
}

// minDistanceToLimits returns the smaller of v's signed-normalized
// distances to the two limit boundaries.
func minDistanceToLimits(v angle.SignedAngle, limits Limits) float64 {
	d0 := math.Abs(float64(angle.Normalize(float64(v) - float64(limits.Lo))))
	d1 := math.Abs(float64(angle.Normalize(float64(v) - float64(limits.Hi))))
	if d0 < d1 {
		return d0
	}
	return d1
}

// Steer returns the target tower orientation, or NaN if no target can be
// reached given the current geometry (spec §4.7).
func (p *Pilot) Steer(sunAzimuth, shipHeading float64) angle.SignedAngle {
	cfg := p.cfg

	aimed := [2]float64{sunAzimuth + float64(cfg.Target), sunAzimuth - float64(cfg.Target)}
	towerZeroHeading := shipHeading - float64(cfg.IndexingTableOrientationOnShip)
	options := [2]angle.SignedAngle{
		angle.Normalize(aimed[0] - towerZeroHeading),
		angle.Normalize(aimed[1] - towerZeroHeading),
	}

	if cfg.TowerLimits.Lo == cfg.TowerLimits.Hi {
		return options[0]
	}

	valid := 0
	if inRange(options[0], cfg.TowerLimits.Lo, cfg.TowerLimits.Hi) {
		valid |= 1
	}
	if inRange(options[1], cfg.TowerLimits.Lo, cfg.TowerLimits.Hi) {
		valid |= 2
	}

	switch {
	case valid == 0:
		p.selected = nil
		if cfg.TargetLimits.Lo == cfg.TargetLimits.Hi {
			return angle.SignedAngle(math.NaN())
		}
		tolerated := [2]Limits{
			{
				Lo: angle.Normalize(sunAzimuth + float64(cfg.TargetLimits.Lo) - towerZeroHeading),
				Hi: angle.Normalize(sunAzimuth + float64(cfg.TargetLimits.Hi) - towerZeroHeading),
			},
			{
				Lo: angle.Normalize(sunAzimuth - float64(cfg.TargetLimits.Hi) - towerZeroHeading),
				Hi: angle.Normalize(sunAzimuth - float64(cfg.TargetLimits.Lo) - towerZeroHeading),
			},
		}
		for _, t := range [2]angle.SignedAngle{cfg.TowerLimits.Lo, cfg.TowerLimits.Hi} {
			if inRange(t, tolerated[0].Lo, tolerated[0].Hi) || inRange(t, tolerated[1].Lo, tolerated[1].Hi) {
				return t
			}
		}
		return angle.SignedAngle(math.NaN())

	case valid == 1 || valid == 2:
		idx := valid - 1
		p.selected = &idx
		return options[idx]

	default: // valid == 3: both candidates fall within the tower's limits
		dist := [2]float64{
			minDistanceToLimits(options[0], cfg.TowerLimits),
			minDistanceToLimits(options[1], cfg.TowerLimits),
		}
		maxIdx := 0
		if dist[1] > dist[0] {
			maxIdx = 1
		}
		if p.selected == nil || (*p.selected != maxIdx && math.Abs(dist[0]-dist[1]) > cfg.MinDistDelta) {
			p.selected = &maxIdx
		}
		return options[*p.selected]
	}
}

// Selected reports the currently-remembered option index (0 or 1), or -1 if
// no selection has been made yet (used by the admin status route).
func (p *Pilot) Selected() int {
	if p.selected == nil {
		return -1
	}
	return *p.selected
}

// TowerZero returns the tower's zero-offset on the ship (spec §4.9
// `tower_zero`), used by the supervisor to derive `sas_hdg` from the ship
// heading and the tower's current physical position.
func (p *Pilot) TowerZero() angle.SignedAngle {
	return p.cfg.IndexingTableOrientationOnShip
}

// GetShipHeading derives the ship's heading from a compass reading. When
// towerOrientation is nil the compass is mounted on the hull; otherwise it
// is mounted on the tower, and towerOrientation is the tower's current
// position (spec §4.7).
func (p *Pilot) GetShipHeading(compassHeading float64, towerOrientation *float64) angle.SignedAngle {
	if towerOrientation == nil {
		return angle.Normalize(compassHeading - float64(p.cfg.GPSOrientationOnShip))
	}
	return angle.Normalize(compassHeading + *towerOrientation - float64(p.cfg.IndexingTableOrientationOnShip) - float64(p.cfg.GPSOrientationOnShip))
}
