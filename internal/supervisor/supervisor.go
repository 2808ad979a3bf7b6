// Package supervisor implements the Supervisor State Machine (spec §4.8)
// and the UMTWR telemetry frame (spec §4.9): the real-time loop that
// ingests GPS and radiometer snapshots, computes sun position and tower
// target through internal/autopilot, drives the indexing table, and
// manages instrument power, logging, sleep/wake, and time synchronization.
// Grounded on pySAS's Runner class in runner.py (run_auto/run_manual,
// go_to_sleep/wakeup, get_time_sync/get_sun_position/get_ship_heading,
// make_umtwr_frame, set_cfg_variable/write_cfg, halt).
package supervisor

import (
	"fmt"
	"math"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/oceanoptics/sas-autopilot/internal/angle"
	"github.com/oceanoptics/sas-autopilot/internal/autopilot"
	"github.com/oceanoptics/sas-autopilot/internal/binlog"
	"github.com/oceanoptics/sas-autopilot/internal/config"
	"github.com/oceanoptics/sas-autopilot/internal/gps"
	"github.com/oceanoptics/sas-autopilot/internal/indexingtable"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
	"github.com/oceanoptics/sas-autopilot/internal/radiometer"
	"github.com/oceanoptics/sas-autopilot/internal/timeutil"
)

// Debounce and freshness constants (spec §4.8), exact pySAS values.
const (
	AsleepDelay      = 120 * time.Second
	WakeupDelay      = 20 * time.Second
	AsleepInterrupt  = 120 * time.Second
	DataExpiredDelay = 20 * time.Second
	HeadingTolerance = 0.2 // degrees
)

// Mode selects the supervisor's operating loop.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// HeadingSource selects which sensor feeds the ship heading used for
// steering (spec §4.8).
type HeadingSource string

const (
	HeadingGPSRelativePosition HeadingSource = "gps_relative_position"
	HeadingGPSMotion           HeadingSource = "gps_motion"
	HeadingGPSVehicle          HeadingSource = "gps_vehicle"
	HeadingTHS                 HeadingSource = "ths_heading"
)

// SunPosition computes the sun's elevation and azimuth for a ground
// position, time, and altitude. Per spec §1 the algorithm itself is an
// external pure-function collaborator; the supervisor only calls it.
type SunPosition func(lat, lon float64, t time.Time, altitude float64) (elevation, azimuth float64)

// Declination returns the local magnetic declination in degrees, used to
// true-north-correct a magnetic compass reading (spec §1's world magnetic
// model collaborator).
type Declination func(lat, lon, altitude float64, date time.Time) float64

// gpsSource is the slice of *gps.Reader the supervisor depends on, kept
// narrow so tests can substitute a fake GPS fix stream without opening a
// real serial port.
type gpsSource interface {
	Snapshot() gps.Snapshot
	Run()
	StartLogging()
	StopLogging()
}

// radiometerSource is the slice of *radiometer.Reader the supervisor and
// instrument wrapper depend on.
type radiometerSource interface {
	Snapshot() radiometer.Snapshot
	Run()
	Stop()
	Reset()
	SetCompassAdj(v float64)
}

// tableDriver is the slice of *indexingtable.Driver the supervisor depends
// on.
type tableDriver interface {
	State() indexingtable.State
	Start() error
	Stop() error
	GetPosition() float64
	SetPosition(theta float64, checkStall bool) bool
	GetStallFlag() (stalled bool, ok bool)
	SendRaw(id, command string) (reply string, err error)
}

// Devices bundles the physical device drivers the supervisor coordinates.
// Es and IMU are optional secondary radiometer instruments (pySAS
// Runner.es/Runner.imu); Table, Radiometer, and GPS are the core set every
// installation has. The concrete *gps.Reader, *radiometer.Reader, and
// *indexingtable.Driver types all satisfy these interfaces already; tests
// substitute lightweight fakes instead of driving a real serial port.
type Devices struct {
	GPS gpsSource

	Radiometer      radiometerSource
	RadiometerRelay indexingtable.Relay

	Es      radiometerSource
	EsRelay indexingtable.Relay

	IMU      radiometerSource
	IMURelay indexingtable.Relay

	Table tableDriver
}

// Supervisor is the autopilot's real-time control loop.
type Supervisor struct {
	cfg     *config.AutopilotConfig
	cfgPath string
	cfgMu   sync.Mutex

	pilot   *autopilot.Pilot
	devices Devices

	radiometerInst *instrument
	esInst         *instrument
	imuInst        *instrument

	sunPositionFn SunPosition
	declinationFn Declination

	clock timeutil.Clock
	log   *binlog.Writer

	checkInternet func() bool

	headingSource   HeadingSource
	minSunElevation float64
	refreshDelay    time.Duration
	haltHostOnExit  bool

	mu         sync.Mutex
	mode       Mode
	alive      bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	gpsStarted bool

	asleep       bool
	startSleepAt *time.Time
	stopSleepAt  *time.Time
	internet     bool
	timeSynced   *time.Time

	sunElevation, sunAzimuth float64
	sunPositionAt            time.Time
	shipHeading              angle.SignedAngle
	shipHeadingAt            time.Time

	rebootFromUI, interruptFromUI bool
}

// New builds a Supervisor. clock may be nil (defaults to RealClock); log
// may be nil to disable UMTWR frame logging (tests); checkInternet may be
// nil, in which case internet connectivity is assumed absent (the more
// conservative default, since that only ever causes an extra, harmless
// time-sync attempt).
func New(cfg *config.AutopilotConfig, cfgPath string, pilot *autopilot.Pilot, devices Devices,
	sunPositionFn SunPosition, declinationFn Declination,
	clock timeutil.Clock, log *binlog.Writer, checkInternet func() bool) *Supervisor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Supervisor{
		cfg:             cfg,
		cfgPath:         cfgPath,
		pilot:           pilot,
		devices:         devices,
		sunPositionFn:   sunPositionFn,
		declinationFn:   declinationFn,
		clock:           clock,
		log:             log,
		checkInternet:   checkInternet,
		headingSource:   HeadingSource(cfg.GetHeadingSource()),
		minSunElevation: cfg.GetMinSunElevation(),
		refreshDelay:    cfg.GetRefresh(),
		haltHostOnExit:  cfg.GetHaltHostOnExit(),
		sunElevation:    math.NaN(),
		sunAzimuth:      math.NaN(),
		shipHeading:     angle.SignedAngle(math.NaN()),
	}
	if devices.Radiometer != nil {
		s.radiometerInst = newInstrument(devices.RadiometerRelay, devices.Radiometer.Run, devices.Radiometer.Stop, devices.Radiometer.Reset)
	}
	if devices.Es != nil {
		s.esInst = newInstrument(devices.EsRelay, devices.Es.Run, devices.Es.Stop, devices.Es.Reset)
	}
	if devices.IMU != nil {
		s.imuInst = newInstrument(devices.IMURelay, devices.IMU.Run, devices.IMU.Stop, devices.IMU.Reset)
	}
	if checkInternet != nil {
		s.internet = checkInternet()
	}
	return s
}

// Start launches the supervisor in its configured operating mode
// (Runner.operation_mode).
func (s *Supervisor) Start() {
	s.SetMode(Mode(s.cfg.GetOperationMode()))
}

// SetMode stops whatever task is currently running and starts the given
// mode, falling back to auto for an unrecognized value (pySAS
// Runner.operation_mode setter).
func (s *Supervisor) SetMode(mode Mode) {
	if mode != ModeAuto && mode != ModeManual {
		monitoring.Logf("supervisor: invalid operation mode %q, falling back to auto", mode)
		mode = ModeAuto
	}
	s.Stop()

	s.mu.Lock()
	if s.alive {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	s.alive = true
	s.stopCh = make(chan struct{})
	startGPS := s.devices.GPS != nil && !s.gpsStarted
	if startGPS {
		s.gpsStarted = true
	}
	s.mu.Unlock()

	// GPS runs continuously for the life of the process (pySAS comment:
	// "could optimize to turn off at night" — never actually done).
	if startGPS {
		go s.devices.GPS.Run()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if mode == ModeAuto {
			s.runAuto()
		} else {
			s.runManual()
		}
	}()
}

// Stop halts the main task and joins it, mirroring pySAS Runner.stop.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

// Halt stops the main task and, when authorized via the admin UI and
// Runner.halt_host_on_exit allows it, shells out to reboot or shut down the
// host (spec §4.8 Shutdown, pySAS Runner.halt).
func (s *Supervisor) Halt() {
	s.Stop()
	if s.rebootFromUI && s.haltHostOnExit {
		if err := exec.Command("shutdown", "-r", "now").Run(); err != nil {
			monitoring.Logf("supervisor: reboot command failed: %v", err)
		}
	}
	if s.interruptFromUI && s.haltHostOnExit {
		if err := exec.Command("shutdown", "-h", "now").Run(); err != nil {
			monitoring.Logf("supervisor: shutdown command failed: %v", err)
		}
	}
}

// RequestReboot / RequestShutdown arm Halt's OS-level action, set by the
// admin UI before it calls Halt.
func (s *Supervisor) RequestReboot()   { s.rebootFromUI = true }
func (s *Supervisor) RequestShutdown() { s.interruptFromUI = true }

// fresh reports whether t is within DataExpiredDelay of the current clock
// time (spec §4.8 data-freshness gate). A zero time is never fresh.
func (s *Supervisor) fresh(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return s.clock.Since(t) < DataExpiredDelay
}

// CoreInstrumentName describes which optional sensors are wired in
// (pySAS Runner.core_instrument_name), reported on the admin status route.
func (s *Supervisor) CoreInstrumentName() string {
	name := "HyperSAS"
	if s.devices.Es != nil {
		name += "+Es"
	}
	if s.devices.IMU != nil {
		name += "+IMU"
	}
	return name
}

type autoFlags struct {
	sunPos, sunElev, noHeading, noPosition, stalled bool
}

// runAuto is the auto-mode main loop (spec §4.8 table, pySAS
// Runner.run_auto).
func (s *Supervisor) runAuto() {
	var f autoFlags
	firstIteration := true

	tableAlive := s.devices.Table != nil && s.devices.Table.State().Alive
	radiometerAlive := s.radiometerInst != nil && s.radiometerInst.Alive()
	s.mu.Lock()
	s.asleep = !(tableAlive && radiometerAlive)
	s.mu.Unlock()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		iterStart := s.clock.Now()
		skipWait := s.autoTick(firstIteration, &f)
		firstIteration = false
		if !skipWait {
			s.wait(iterStart)
		}
	}
}

// autoTick runs one auto-loop iteration and reports whether the caller
// should skip the end-of-iteration wait (used for the "super sleep" path,
// which already consumed AsleepInterrupt itself).
func (s *Supervisor) autoTick(firstIteration bool, f *autoFlags) (skipWait bool) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("supervisor: panic in auto tick: %v", r)
		}
	}()

	if !s.getSunPosition() {
		if !f.sunPos {
			monitoring.Logf("supervisor: no sun position")
			f.sunPos = true
		}
		return false
	}
	elev, az := s.sunSnapshot()

	switch {
	case elev < s.minSunElevation:
		s.goToSleep(firstIteration)
		if s.isAsleep() {
			if !f.sunElev {
				monitoring.Logf("supervisor: sun below minimum elevation %.1f < %.1f", elev, s.minSunElevation)
				f.sunElev = true
			}
			s.longSleep(AsleepInterrupt)
			return true
		}
		return false

	case math.IsNaN(az):
		s.goToSleep(firstIteration)
		if s.isAsleep() && !f.sunPos {
			monitoring.Logf("supervisor: no sun position")
			f.sunPos = true
		}
		return false

	default:
		f.sunElev, f.sunPos = false, false

		if !s.getShipHeading() {
			if !f.noHeading {
				monitoring.Logf("supervisor: no ship heading")
				f.noHeading = true
			}
			return false
		}
		f.noHeading = false

		target := s.pilot.Steer(az, float64(s.shipHeadingSnapshot()))
		if target.IsNaN() {
			if !f.noPosition {
				monitoring.Logf("supervisor: no orientation available")
				f.noPosition = true
			}
			s.goToSleep(firstIteration)
			return false
		}
		f.noPosition = false

		s.wakeup(firstIteration)
		if s.devices.Table == nil || !s.devices.Table.State().Alive {
			return false
		}

		pos := s.devices.Table.GetPosition()
		if stalled, ok := s.devices.Table.GetStallFlag(); ok && stalled {
			if !f.stalled {
				monitoring.Logf("supervisor: indexing table stalled")
				f.stalled = true
			}
		} else {
			if math.Abs(pos-float64(target)) > HeadingTolerance {
				s.devices.Table.SetPosition(float64(target), false)
			}
			f.stalled = false
		}

		s.writeUMTWRFrame()
		return false
	}
}

// runManual is the manual-mode main loop (pySAS Runner.run_manual): the
// table is never commanded, but position/stall are still polled for the
// UI, sun position is still computed, and telemetry is still logged while
// the radiometer is alive.
func (s *Supervisor) runManual() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		iterStart := s.clock.Now()
		s.manualTick()
		s.wait(iterStart)
	}
}

func (s *Supervisor) manualTick() {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("supervisor: panic in manual tick: %v", r)
		}
	}()

	if s.devices.Table != nil && s.devices.Table.State().Alive {
		s.devices.Table.GetPosition()
		s.devices.Table.GetStallFlag()
	}

	s.getSunPosition()

	radiometerAlive := s.radiometerInst != nil && s.radiometerInst.Alive()
	if !radiometerAlive {
		if s.devices.GPS != nil {
			s.devices.GPS.StopLogging()
		}
		return
	}

	if s.devices.GPS != nil {
		s.devices.GPS.StartLogging()
	}
	s.writeUMTWRFrame()
}

// wait sleeps until refreshDelay has elapsed since iterStart, in slices
// short enough that Stop is noticed promptly (spec §5 suspension points).
func (s *Supervisor) wait(iterStart time.Time) {
	if !s.isAlive() {
		return
	}
	delta := s.refreshDelay - s.clock.Since(iterStart)
	if delta <= 0 {
		monitoring.Logf("supervisor: cannot keep up with refresh rate, slowing down")
		s.sleepInterruptible(time.Second + absDuration(s.refreshDelay))
		return
	}
	s.sleepInterruptible(delta)
}

const waitSlice = 100 * time.Millisecond

func (s *Supervisor) sleepInterruptible(d time.Duration) {
	deadline := s.clock.Now().Add(d)
	for {
		if !s.isAlive() {
			return
		}
		remaining := s.clock.Until(deadline)
		if remaining <= 0 {
			return
		}
		step := waitSlice
		if remaining < step {
			step = remaining
		}
		select {
		case <-s.stopCh:
			return
		case <-s.clock.After(step):
		}
	}
}

// longSleep is the "super sleep" used while the sun stays below the
// minimum elevation, polled in 1s slices so Stop is still noticed
// (pySAS: `while self.alive and time() - t0 < ASLEEP_INTERRUPT: sleep(1)`).
func (s *Supervisor) longSleep(d time.Duration) {
	start := s.clock.Now()
	for s.clock.Since(start) < d {
		if !s.isAlive() {
			return
		}
		select {
		case <-s.stopCh:
			return
		case <-s.clock.After(time.Second):
		}
	}
}

func (s *Supervisor) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *Supervisor) isAsleep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asleep
}

// goToSleep stops all instruments except GPS reads (logging is cut too)
// once the "below" condition has persisted for AsleepDelay, or immediately
// if force is set (pySAS Runner.go_to_sleep).
func (s *Supervisor) goToSleep(force bool) {
	s.mu.Lock()
	wasAsleep := s.asleep
	if !wasAsleep && s.startSleepAt == nil {
		now := s.clock.Now()
		s.startSleepAt = &now
	}
	startAt := s.startSleepAt
	s.mu.Unlock()

	if !wasAsleep && (force || s.clock.Since(*startAt) > AsleepDelay) {
		monitoring.Logf("supervisor: stopping instruments")
		if s.devices.Table != nil {
			if err := s.devices.Table.Stop(); err != nil {
				monitoring.Logf("supervisor: indexing table stop failed: %v", err)
			}
		}
		if s.radiometerInst != nil {
			s.radiometerInst.Stop()
		}
		if s.esInst != nil {
			s.esInst.Stop()
		}
		if s.imuInst != nil {
			s.imuInst.Stop()
		}
		if s.devices.GPS != nil {
			s.devices.GPS.StopLogging()
		}
		s.mu.Lock()
		s.asleep = true
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asleep && s.stopSleepAt != nil && s.clock.Since(*s.stopSleepAt) > WakeupDelay+10*s.refreshDelay {
		monitoring.Logf("supervisor: still sleepy, resetting wake-up timer")
		s.stopSleepAt = nil
	}
}

// wakeup powers on and starts logging from every instrument once the
// "above" condition has persisted for WakeupDelay, or immediately if force
// is set (pySAS Runner.wakeup).
func (s *Supervisor) wakeup(force bool) {
	s.mu.Lock()
	asleep := s.asleep
	s.mu.Unlock()

	if asleep {
		s.mu.Lock()
		if s.stopSleepAt == nil {
			monitoring.Logf("supervisor: waking up triggered...")
			now := s.clock.Now()
			s.stopSleepAt = &now
		}
		stopAt := s.stopSleepAt
		s.mu.Unlock()

		if force || s.clock.Since(*stopAt) > WakeupDelay {
			monitoring.Logf("supervisor: starting instruments")
			radiometerAlive := s.radiometerInst != nil && s.radiometerInst.Alive()
			if !s.internet && !radiometerAlive {
				s.getTimeSync()
			}
			if s.devices.Table != nil {
				if err := s.devices.Table.Start(); err != nil {
					monitoring.Logf("supervisor: indexing table start failed: %v", err)
				}
			}
			if s.devices.GPS != nil {
				s.devices.GPS.StartLogging()
			}
			if s.esInst != nil {
				s.esInst.Start()
			}
			if s.imuInst != nil {
				s.imuInst.Start()
			}
			if s.radiometerInst != nil {
				s.radiometerInst.Start()
			}
			s.mu.Lock()
			s.asleep = false
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.startSleepAt = nil
	s.mu.Unlock()
}

// getTimeSync sets the system clock from a fresh GPS fix when there is no
// internet reachability to rely on NTP (spec §4.8, pySAS
// Runner.get_time_sync).
func (s *Supervisor) getTimeSync() bool {
	if s.devices.GPS == nil {
		return false
	}
	snap := s.devices.GPS.Snapshot()
	if !(snap.FixOK && snap.DatetimeValid && s.fresh(snap.PVTReceivedAt)) {
		monitoring.Logf("supervisor: unable to synchronize time")
		return false
	}
	preSync := s.clock.Now()
	target := snap.Datetime.Add(preSync.Sub(snap.PVTReceivedAt))
	if err := exec.Command("date", "-s", target.UTC().Format(time.RFC3339Nano)).Run(); err != nil {
		monitoring.Logf("supervisor: time sync command failed: %v", err)
		return false
	}
	synced := s.clock.Now()
	s.mu.Lock()
	s.timeSynced = &synced
	s.mu.Unlock()
	monitoring.Logf("supervisor: time synchronized from %s to %s",
		preSync.UTC().Format("2006/01/02 15:04:05"), synced.UTC().Format("2006/01/02 15:04:05"))
	return true
}

// getSunPosition computes sun elevation/azimuth from the latest fresh GPS
// fix (pySAS Runner.get_sun_position).
func (s *Supervisor) getSunPosition() bool {
	if s.devices.GPS == nil || s.sunPositionFn == nil {
		return false
	}
	snap := s.devices.GPS.Snapshot()
	if !(snap.FixOK && snap.DatetimeValid && s.fresh(snap.PVTReceivedAt)) {
		return false
	}
	elev, az := s.sunPositionFn(snap.Lat, snap.Lon, snap.Datetime, snap.AltitudeMSL)
	s.mu.Lock()
	s.sunElevation, s.sunAzimuth = elev, az
	s.sunPositionAt = s.clock.Now()
	s.mu.Unlock()
	return true
}

func (s *Supervisor) sunSnapshot() (elevation, azimuth float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sunElevation, s.sunAzimuth
}

func (s *Supervisor) shipHeadingSnapshot() angle.SignedAngle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shipHeading
}

func (s *Supervisor) setShipHeading(h angle.SignedAngle, at time.Time) {
	s.mu.Lock()
	s.shipHeading = h
	s.shipHeadingAt = at
	s.mu.Unlock()
}

// getShipHeading dispatches to the configured heading source, each gated
// on its own freshness window (spec §4.8, pySAS Runner.get_ship_heading).
func (s *Supervisor) getShipHeading() bool {
	if s.devices.GPS == nil {
		return false
	}
	gpsSnap := s.devices.GPS.Snapshot()

	switch s.headingSource {
	case HeadingGPSRelativePosition:
		if gpsSnap.HeadingValid && s.fresh(gpsSnap.RelposnedReceivedAt) {
			s.setShipHeading(s.pilot.GetShipHeading(float64(gpsSnap.HeadingRel), nil), gpsSnap.RelposnedReceivedAt)
			return true
		}
	case HeadingGPSMotion:
		if gpsSnap.FixOK && s.fresh(gpsSnap.PVTReceivedAt) {
			s.setShipHeading(s.pilot.GetShipHeading(float64(gpsSnap.HeadingMotion), nil), gpsSnap.PVTReceivedAt)
			return true
		}
	case HeadingGPSVehicle:
		if gpsSnap.FixOK && s.fresh(gpsSnap.PVTReceivedAt) {
			s.setShipHeading(s.pilot.GetShipHeading(float64(gpsSnap.HeadingVehicle), nil), gpsSnap.PVTReceivedAt)
			return true
		}
	case HeadingTHS:
		if s.devices.Radiometer == nil || s.devices.Table == nil {
			return false
		}
		radSnap := s.devices.Radiometer.Snapshot()
		if gpsSnap.FixOK && s.fresh(gpsSnap.PVTReceivedAt) &&
			!math.IsNaN(radSnap.Compass) && s.fresh(radSnap.THSParsedAt) {
			compassAdj := radSnap.Compass
			if s.declinationFn != nil {
				compassAdj += s.declinationFn(gpsSnap.Lat, gpsSnap.Lon, gpsSnap.AltitudeMSL, gpsSnap.Datetime)
			}
			s.devices.Radiometer.SetCompassAdj(compassAdj)
			towerPos := s.devices.Table.GetPosition()
			s.setShipHeading(s.pilot.GetShipHeading(compassAdj, &towerPos), radSnap.THSParsedAt)
			return true
		}
	default:
		monitoring.Logf("supervisor: invalid heading source %q", s.headingSource)
	}
	return false
}

func (s *Supervisor) writeUMTWRFrame() {
	if s.log == nil {
		return
	}
	frame, ts := s.buildUMTWRFrame()
	s.log.Write(frame, ts)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// SetCfgVariable updates one of the supervisor's live-tunable config
// values and, if uiUpdateCfg is set, immediately persists the whole
// document to disk (pySAS Runner.set_cfg_variable, critical-section
// config mutation). apply mutates the in-memory config; it runs under
// cfgMu so concurrent admin-route writers serialize.
func (s *Supervisor) SetCfgVariable(description string, apply func(*config.AutopilotConfig), uiUpdateCfg bool) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	monitoring.Logf("supervisor: set_cfg_variable(%s)", description)
	apply(s.cfg)
	if uiUpdateCfg {
		if err := s.WriteCfg(); err != nil {
			monitoring.Logf("supervisor: write_cfg failed: %v", err)
		}
	}
}

// WriteCfg persists the current in-memory configuration to cfgPath
// (pySAS Runner.write_cfg).
func (s *Supervisor) WriteCfg() error {
	if s.cfgPath == "" {
		return fmt.Errorf("supervisor: no config path to write to")
	}
	return config.Save(s.cfgPath, s.cfg)
}

// AttachAdminRoutes wires a /debug/ status endpoint into mux, matching the
// teacher's tsweb.Debugger admin-route pattern.
func (s *Supervisor) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("supervisor-status", "current supervisor state", func(w http.ResponseWriter, r *http.Request) {
		elev, az := s.sunSnapshot()
		tableState := indexingtable.State{}
		if s.devices.Table != nil {
			tableState = s.devices.Table.State()
		}
		fmt.Fprintf(w, "mode=%s asleep=%t alive=%t internet=%t instrument=%s\n",
			s.mode, s.isAsleep(), s.isAlive(), s.internet, s.CoreInstrumentName())
		fmt.Fprintf(w, "sun_elevation=%.2f sun_azimuth=%.2f ship_heading=%.2f\n",
			elev, az, float64(s.shipHeadingSnapshot()))
		fmt.Fprintf(w, "table_alive=%t table_position=%.2f table_stalled=%t\n",
			tableState.Alive, tableState.Position, tableState.StallFlag)
	})
	debug.HandleFunc("table-send-raw", "send a raw M-code command to the indexing table", func(w http.ResponseWriter, r *http.Request) {
		if s.devices.Table == nil {
			http.Error(w, "no indexing table configured", http.StatusNotFound)
			return
		}
		command := r.FormValue("command")
		if command == "" {
			fmt.Fprint(w, "usage: ?command=<M-code>")
			return
		}
		id := uuid.NewString()
		reply, err := s.devices.Table.SendRaw(id, command)
		if err != nil {
			monitoring.Logf("supervisor: table-send-raw %s: %v", id, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		monitoring.Logf("supervisor: table-send-raw %s: %q -> %q", id, command, reply)
		fmt.Fprintf(w, "[%s] %s\n", id, reply)
	})
}
