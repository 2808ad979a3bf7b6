// Package gps implements the GPS Reader (spec §4.4): a U-blox-style PVT /
// RELPOSNED binary protocol consumer that publishes a latest-value
// GPSSnapshot and optionally appends each received packet to a CSV log.
// Grounded on the original pySAS GPS(Sensor) class in interfaces.py (field
// scaling, 1s-retry-on-error loop, lock-guarded CSV write).
package gps

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/angle"
	"github.com/oceanoptics/sas-autopilot/internal/binlog"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
	"github.com/oceanoptics/sas-autopilot/internal/timeutil"
)

// FixType mirrors the u-blox NAV-PVT fixType enumeration (spec §3).
type FixType int

const (
	FixNone FixType = iota
	FixDeadReckoning
	Fix2D
	Fix3D
	FixGNSSDR
	FixTimeOnly
)

// Snapshot is the latest-wins GPS state, single-writer/many-readers
// (spec §3 GPSSnapshot).
type Snapshot struct {
	Datetime         time.Time
	DatetimeAccuracy time.Duration
	DatetimeValid    bool

	Lat, Lon           float64
	AltitudeMSL        float64
	AltitudeAccuracy   float64
	HorizontalAccuracy float64

	HeadingRel      angle.Heading
	HeadingAccuracy float64
	HeadingValid    bool

	HeadingMotion          angle.Heading
	HeadingVehicle         angle.Heading
	HeadingVehicleAccuracy float64
	HeadingVehicleValid    bool

	Speed         float64
	SpeedAccuracy float64

	FixOK   bool
	FixType FixType

	// PVTReceivedAt / RelposnedReceivedAt are the reader's own receive
	// timestamps (monotonic via time.Time), used for freshness gating
	// (spec §4.8 DATA_EXPIRED_DELAY).
	PVTReceivedAt       time.Time
	RelposnedReceivedAt time.Time
}

// Reader owns the GPS serial port and publishes Snapshot updates.
type Reader struct {
	port  io.Reader
	clock timeutil.Clock
	log   *binlog.TextLog

	mu       sync.RWMutex
	snapshot Snapshot

	loggingMu sync.Mutex
	logging   bool

	stop chan struct{}
}

// csvHeader matches spec §6's GPS CSV column layout exactly.
const csvHeader = "datetime,gps_datetime,datetime_accuracy,datetime_valid,heading,heading_accuracy,heading_valid," +
	"heading_motion,heading_vehicle,heading_vehicle_accuracy,heading_vehicle_valid,speed,speed_accuracy," +
	"latitude,longitude,horizontal_accuracy,altitude,altitude_accuracy,fix_ok,fix_type,last_packet\r\n" +
	"UTC,UTC,s,bool,deg,deg,bool,deg,deg,deg,bool,m/s,m/s,deg,deg,m,m,m,bool,enum,UTC\r\n"

// NewReader builds a GPS reader over an open serial port. log may be nil
// to disable CSV logging entirely.
func NewReader(port io.Reader, clock timeutil.Clock, log *binlog.TextLog) *Reader {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Reader{port: port, clock: clock, log: log, stop: make(chan struct{})}
}

// StartLogging / StopLogging gate whether received packets are appended
// to the CSV log (pySAS GPS.start_logging/stop_logging).
func (r *Reader) StartLogging() {
	r.loggingMu.Lock()
	r.logging = true
	r.loggingMu.Unlock()
}

func (r *Reader) StopLogging() {
	r.loggingMu.Lock()
	r.logging = false
	r.loggingMu.Unlock()
}

func (r *Reader) isLogging() bool {
	r.loggingMu.Lock()
	defer r.loggingMu.Unlock()
	return r.logging
}

// Snapshot returns a copy of the latest published state.
func (r *Reader) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Run consumes framed PVT/RELPOSNED messages until Stop is called.
// Decode and port errors are logged; the reader sleeps 1 second and
// retries rather than terminating itself (spec §4.4, §7).
func (r *Reader) Run() {
	buf := make([]byte, 0, 4096)
	read := make([]byte, 2048)

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n, err := r.port.Read(read)
		if err != nil {
			monitoring.Logf("gps: read error: %v", err)
			select {
			case <-r.stop:
				return
			case <-r.clock.After(time.Second):
			}
			continue
		}
		buf = append(buf, read[:n]...)

		for {
			msg, remaining, ok, ferr := findUBXFrame(buf)
			if ferr != nil {
				monitoring.Logf("gps: frame error: %v", ferr)
			}
			if !ok {
				buf = append(buf[:0], remaining...)
				break
			}
			buf = append(buf[:0], remaining...)
			r.handleMessage(msg)
		}
	}
}

// Stop signals Run to exit on its next loop iteration, cutting short a
// pending 1-second error backoff.
func (r *Reader) Stop() {
	close(r.stop)
}

func (r *Reader) handleMessage(msg ubxMessage) {
	now := r.clock.Now()
	switch {
	case msg.class == classNAV && msg.id == idNAVPVT && len(msg.payload) >= 92:
		r.handlePVT(msg.payload, now)
	case msg.class == classNAV && msg.id == idNAVRELPOSNED && len(msg.payload) >= 64:
		r.handleRELPOSNED(msg.payload, now)
	default:
		monitoring.Logf("gps: unrecognized message class=%#x id=%#x len=%d", msg.class, msg.id, len(msg.payload))
		return
	}
	if r.isLogging() && r.log != nil {
		r.writeRow(now)
	}
}

const (
	pvtFlagGNSSFixOK    = 0x01
	pvtFlagHeadVehValid = 0x20
	pvtValidDate        = 0x01
	pvtValidTime        = 0x02
)

func (r *Reader) handlePVT(p []byte, now time.Time) {
	year := int(u2(p[4:6]))
	month := int(p[6])
	day := int(p[7])
	hour := int(p[8])
	minute := int(p[9])
	sec := int(p[10])
	valid := p[11]
	tAcc := u4(p[12:16])
	nano := i4(p[16:20])
	fixType := int(p[20])
	flags := p[21]
	lon := float64(i4(p[24:28])) / 1e7
	lat := float64(i4(p[28:32])) / 1e7
	hMSL := float64(i4(p[36:40])) / 1000
	hAcc := float64(u4(p[40:44])) / 1000
	vAcc := float64(u4(p[44:48])) / 1000
	gSpeed := float64(i4(p[60:64])) / 1000
	headMot := float64(i4(p[64:68])) / 1e5
	sAcc := float64(u4(p[68:72])) / 1000
	headAcc := float64(u4(p[72:76])) / 1e5

	var headVeh float64
	if len(p) >= 88 {
		headVeh = float64(i4(p[84:88])) / 1e5
	}

	datetimeValid := valid&pvtValidDate != 0 && valid&pvtValidTime != 0
	dt := time.Date(year, time.Month(month), day, hour, minute, sec, int(nano), time.UTC)

	r.mu.Lock()
	r.snapshot.Datetime = dt
	r.snapshot.DatetimeAccuracy = time.Duration(tAcc) * time.Microsecond
	r.snapshot.DatetimeValid = datetimeValid
	r.snapshot.Lat = lat
	r.snapshot.Lon = lon
	r.snapshot.AltitudeMSL = hMSL
	r.snapshot.AltitudeAccuracy = vAcc
	r.snapshot.HorizontalAccuracy = hAcc
	r.snapshot.HeadingMotion = angle.Heading(headMot)
	r.snapshot.HeadingVehicle = angle.Heading(headVeh)
	r.snapshot.HeadingVehicleAccuracy = headAcc
	r.snapshot.HeadingVehicleValid = flags&pvtFlagHeadVehValid != 0
	r.snapshot.Speed = gSpeed
	r.snapshot.SpeedAccuracy = sAcc
	r.snapshot.FixOK = flags&pvtFlagGNSSFixOK != 0
	r.snapshot.FixType = FixType(fixType)
	r.snapshot.PVTReceivedAt = now
	r.mu.Unlock()
}

const (
	relposFlagGNSSFixOK          = 0x01
	relposFlagHeadingValid uint32 = 1 << 8
)

func (r *Reader) handleRELPOSNED(p []byte, now time.Time) {
	relPosHeading := float64(i4(p[24:28])) / 1e5
	accHeading := float64(u4(p[52:56])) / 1e5
	flags := u4(p[60:64])

	r.mu.Lock()
	r.snapshot.HeadingRel = angle.Heading(relPosHeading)
	r.snapshot.HeadingAccuracy = accHeading
	r.snapshot.HeadingValid = flags&relposFlagHeadingValid != 0
	if flags&relposFlagGNSSFixOK != 0 {
		r.snapshot.FixOK = true
	}
	r.snapshot.RelposnedReceivedAt = now
	r.mu.Unlock()
}

// writeRow appends one CSV row reflecting the current snapshot, guarded
// by the log's 0.5s try-acquire (spec §4.4, §5).
func (r *Reader) writeRow(now time.Time) {
	s := r.Snapshot()
	row := fmt.Sprintf(
		"%s,%s,%g,%t,%g,%g,%t,%g,%g,%g,%t,%g,%g,%g,%g,%g,%g,%g,%t,%d,%s\r\n",
		now.UTC().Format("2006/01/02 15:04:05.000"),
		s.Datetime.UTC().Format("2006/01/02 15:04:05.000"),
		s.DatetimeAccuracy.Seconds(), s.DatetimeValid,
		float64(s.HeadingRel), s.HeadingAccuracy, s.HeadingValid,
		float64(s.HeadingMotion), float64(s.HeadingVehicle), s.HeadingVehicleAccuracy, s.HeadingVehicleValid,
		s.Speed, s.SpeedAccuracy,
		s.Lat, s.Lon, s.HorizontalAccuracy, s.AltitudeMSL, s.AltitudeAccuracy,
		s.FixOK, int(s.FixType),
		now.UTC().Format("2006/01/02 15:04:05.000"),
	)
	const tryAcquireTimeout = 500 * time.Millisecond
	r.log.TryWrite(row, now, tryAcquireTimeout)
}

// CSVHeader exposes csvHeader for callers constructing a TextLog.
func CSVHeader() string { return csvHeader }
