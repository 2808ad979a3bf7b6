// Package radiometer implements the Radiometer Reader (spec §4.5): it owns
// the hyperspectral instrument port, dispatches incoming frames into
// per-channel latest-value slots by calibration-derived role, and parses
// lazily on demand. Grounded on pySAS's HyperOCR(Sensor) in interfaces.py
// (MAX_BUFFER_LENGTH, set_dispatcher/dispatch_packet, parse_packets'
// dark-subtraction and "received > parsed" lazy-parse test, and the capped
// dedup of unknown headers/dispatcher keys).
package radiometer

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/binlog"
	"github.com/oceanoptics/sas-autopilot/internal/frame"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
	"github.com/oceanoptics/sas-autopilot/internal/timeutil"
)

// Role is a calibration-derived frame classification.
type Role string

const (
	RoleLt     Role = "Lt"
	RoleLi     Role = "Li"
	RoleEs     Role = "Es"
	RoleLtDark Role = "Lt_dark"
	RoleLiDark Role = "Li_dark"
	RoleEsDark Role = "Es_dark"
	RoleTHS    Role = "THS"
)

// maxBuffer bounds the internal read buffer; on overflow it is cleared and
// a warning logged, preventing unbounded growth if calibration is missing
// or frames never complete (spec §4.5).
const maxBuffer = 16384

// missingHeaderCap bounds the dedup lists for unknown headers and unknown
// dispatcher keys (pySAS: "if len(...) > 100: reset").
const missingHeaderCap = 100

// Calibration is the external collaborator that governs dispatch and
// wavelength labeling (spec §1: "the radiometric calibration table...
// external, consulted by the parser for frame identification and
// wavelength labels"). Decoding the numeric payload of a frame is part of
// radiometric data reduction, a declared Non-goal, so Calibration both
// classifies frames and is the only thing that knows how to turn a raw
// payload into numbers.
type Calibration interface {
	// Headers returns every frame header this calibration recognizes,
	// for building the frame.Parser.
	Headers() [][]byte

	// Role classifies a frame header. ok is false for headers the
	// calibration does not recognize.
	Role(header string) (role Role, ok bool)

	// Wavelengths returns the wavelength labels for Lt/Li/Es, or nil if
	// not applicable to role.
	Wavelengths(role Role) []float64

	// ParseVector decodes a Lt/Li/Es/*_dark frame payload into a
	// wavelength-indexed vector.
	ParseVector(header string, payload []byte) ([]float64, error)

	// ParseTHS decodes a THS frame payload into roll/pitch/compass, all
	// degrees.
	ParseTHS(header string, payload []byte) (roll, pitch, compass float64, err error)
}

type channelSlot struct {
	header          string
	raw             []byte
	rxMonotonic     time.Time
	parsedMonotonic time.Time
}

func (s *channelSlot) hasUnparsedData() bool {
	return s.raw != nil && s.rxMonotonic.After(s.parsedMonotonic)
}

// Snapshot is the latest parsed state across all seven channels
// (spec §3 RadiometerSnapshot).
type Snapshot struct {
	Lt, LtDark []float64
	Li, LiDark []float64
	Es, EsDark []float64

	Roll, Pitch, Compass, CompassAdj float64
	THSParsedAt                      time.Time

	LtWavelength, LiWavelength, EsWavelength []float64
}

// Reader owns the radiometer serial port.
type Reader struct {
	port   io.Reader
	clock  timeutil.Clock
	writer *binlog.Writer
	cal    Calibration
	parser *frame.Parser

	mu      sync.Mutex
	buffer  []byte
	slots   map[Role]*channelSlot
	snap    Snapshot
	stop    chan struct{}

	missingMu      sync.Mutex
	missingHeaders []string
}

// NewReader builds a radiometer reader. writer may be nil to disable raw
// frame logging (tests).
func NewReader(port io.Reader, clock timeutil.Clock, writer *binlog.Writer, cal Calibration) *Reader {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Reader{
		port:   port,
		clock:  clock,
		writer: writer,
		cal:    cal,
		parser: frame.NewParser(cal.Headers(), nil),
		slots:  make(map[Role]*channelSlot),
		stop:   make(chan struct{}),
	}
}

// Snapshot returns a copy of the latest parsed state.
func (r *Reader) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Run drains the port, buffers, and dispatches frames until Stop is
// called. Mirrors pySAS HyperOCR.run: read errors are logged and retried
// after 1 second; the reader never terminates itself.
func (r *Reader) Run() {
	read := make([]byte, 2048)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n, err := r.port.Read(read)
		if err != nil {
			monitoring.Logf("radiometer: read error: %v", err)
			select {
			case <-r.stop:
				return
			case <-r.clock.After(time.Second):
			}
			continue
		}
		if n == 0 {
			continue
		}
		r.dataReceived(read[:n], r.clock.Now())
	}
}

// Stop signals Run to exit on its next loop iteration, cutting short a
// pending 1-second error backoff.
func (r *Reader) Stop() {
	close(r.stop)
}

func (r *Reader) dataReceived(data []byte, now time.Time) {
	r.mu.Lock()
	r.buffer = append(r.buffer, data...)
	if len(r.buffer) > maxBuffer {
		monitoring.Logf("radiometer: buffer exceeded %d bytes, cleared to prevent overflow", maxBuffer)
		r.buffer = r.buffer[:0]
		r.mu.Unlock()
		return
	}
	buf := r.buffer
	r.mu.Unlock()

	for {
		f, remaining, ok := r.parser.FindFrame(buf)
		if !ok {
			r.mu.Lock()
			r.buffer = append(r.buffer[:0], remaining...)
			r.mu.Unlock()
			return
		}
		buf = remaining
		r.handleFrame(f, now)
	}
}

func (r *Reader) handleFrame(f frame.Frame, now time.Time) {
	if r.writer != nil {
		r.writer.Write(f.Payload, now)
	}

	header := string(f.Header)
	role, ok := r.cal.Role(header)
	if !ok {
		r.rememberMissingHeader(header)
		return
	}

	r.mu.Lock()
	slot, ok := r.slots[role]
	if !ok {
		slot = &channelSlot{}
		r.slots[role] = slot
	}
	slot.header = header
	slot.raw = f.Payload
	slot.rxMonotonic = now
	r.mu.Unlock()
}

func (r *Reader) rememberMissingHeader(header string) {
	prefix := header
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	r.missingMu.Lock()
	defer r.missingMu.Unlock()
	for _, h := range r.missingHeaders {
		if h == prefix {
			return
		}
	}
	if len(r.missingHeaders) > missingHeaderCap {
		r.missingHeaders = r.missingHeaders[:0]
	}
	r.missingHeaders = append(r.missingHeaders, prefix)
	monitoring.Logf("radiometer: data logged not registered: %s...", prefix)
}

// ParseLatest parses every channel whose raw rx_monotonic exceeds its last
// parsed_monotonic (spec §4.5 "lazy" parsing), applying dark subtraction
// when both a dark and bright frame are available for the channel.
func (r *Reader) ParseLatest() {
	r.parseTHS()
	r.parseDarkThenBright(RoleLtDark, RoleLt, func(v []float64) { r.snap.LtDark = v }, func(v []float64) { r.snap.Lt = v })
	r.parseDarkThenBright(RoleLiDark, RoleLi, func(v []float64) { r.snap.LiDark = v }, func(v []float64) { r.snap.Li = v })
	r.parseDarkThenBright(RoleEsDark, RoleEs, func(v []float64) { r.snap.EsDark = v }, func(v []float64) { r.snap.Es = v })
}

func (r *Reader) parseTHS() {
	r.mu.Lock()
	slot, ok := r.slots[RoleTHS]
	if !ok || !slot.hasUnparsedData() {
		r.mu.Unlock()
		return
	}
	header, raw := slot.header, slot.raw
	r.mu.Unlock()

	roll, pitch, compass, err := r.cal.ParseTHS(header, raw)
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		monitoring.Logf("radiometer: THS parse error: %v", err)
		r.snap.Roll, r.snap.Pitch, r.snap.Compass = math.NaN(), math.NaN(), math.NaN()
		slot.rxMonotonic = time.Time{}
		return
	}
	slot.parsedMonotonic = now
	r.snap.Roll, r.snap.Pitch, r.snap.Compass = roll, pitch, compass
	r.snap.THSParsedAt = now
}

// SetCompassAdj stores the supervisor's declination-corrected compass
// reading (pySAS HyperOCR.compass_adj), published for logging/UI alongside
// the raw compass value.
func (r *Reader) SetCompassAdj(v float64) {
	r.mu.Lock()
	r.snap.CompassAdj = v
	r.mu.Unlock()
}

// Reset reinitializes the stop signal so Run can be invoked again after a
// prior Stop. Callers must ensure the previous Run has already returned
// before calling Reset (pySAS Sensor.start()/stop() toggle the same
// object's serial read thread repeatedly across sleep/wake cycles).
func (r *Reader) Reset() {
	r.stop = make(chan struct{})
}

// parseDarkThenBright parses the dark channel first (pySAS order), then
// the bright channel, subtracting the freshly parsed dark vector
// element-wise when present.
func (r *Reader) parseDarkThenBright(darkRole, brightRole Role, setDark, setBright func([]float64)) {
	darkVec := r.parseChannel(darkRole)
	if darkVec != nil {
		setDark(darkVec)
	}
	brightVec := r.parseChannel(brightRole)
	if brightVec == nil {
		return
	}
	r.mu.Lock()
	dark := currentDark(darkRole, &r.snap)
	r.mu.Unlock()
	if dark != nil && len(dark) == len(brightVec) {
		out := make([]float64, len(brightVec))
		for i := range brightVec {
			out[i] = brightVec[i] - dark[i]
		}
		setBright(out)
		return
	}
	setBright(brightVec)
}

func currentDark(darkRole Role, snap *Snapshot) []float64 {
	switch darkRole {
	case RoleLtDark:
		return snap.LtDark
	case RoleLiDark:
		return snap.LiDark
	case RoleEsDark:
		return snap.EsDark
	default:
		return nil
	}
}

func (r *Reader) parseChannel(role Role) []float64 {
	r.mu.Lock()
	slot, ok := r.slots[role]
	if !ok || !slot.hasUnparsedData() {
		r.mu.Unlock()
		return nil
	}
	header, raw := slot.header, slot.raw
	r.mu.Unlock()

	vec, err := r.cal.ParseVector(header, raw)
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		monitoring.Logf("radiometer: %s parse error: %v", role, err)
		slot.rxMonotonic = time.Time{}
		return nil
	}
	slot.parsedMonotonic = now
	return vec
}
