// Package indexingtable implements the Indexing Table Driver (spec §4.6):
// an ASCII M-code motion-controller protocol over RS-485, driving the
// stepper that orients the sensor tower. Grounded on pySAS's
// IndexingTable class in interfaces.py (configuration block, Latin-1 +
// backspace-registrator + CRLF framing, gear ratio, motion timeout,
// command-execution delay, stop/power-down sequence).
package indexingtable

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/oceanoptics/sas-autopilot/internal/binlog"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
	"github.com/oceanoptics/sas-autopilot/internal/serialmux"
	"github.com/oceanoptics/sas-autopilot/internal/timeutil"
)

const (
	// gearRatio converts degrees to motor steps (pySAS GEAR_BOX_RATIO).
	gearRatio = 200000.0 / 360.0

	positionMin = -180.0
	positionMax = 180.0

	motionTimeout = 10 * time.Second
	commandDelay  = 50 * time.Millisecond
	registrator   = "\x08" // backspace
	terminator    = "\r\n"

	// rotationISpeed / rotationDelay feed estimateMotionTime (pySAS
	// rotation_ispeed / rotation_delay measured constants).
	rotationISpeed = 0.02778 // sec / degree
	rotationDelay  = 0.1331 * 2
)

// Relay is the GPIO power relay powering the stepper motor (pySAS
// gpiozero.OutputDevice, wrapped here so tests can substitute a no-op).
type Relay interface {
	On()
	Off()
}

// NoopRelay implements Relay with no physical effect, for ports that have
// no relay wired or for tests.
type NoopRelay struct{}

func (NoopRelay) On()  {}
func (NoopRelay) Off() {}

// State is the latest-value snapshot the driver publishes for the
// Supervisor and UI (spec §4.6: "publishes its own latest
// IndexingTableState").
type State struct {
	Alive          bool
	Position       float64 // degrees; NaN if unknown
	StallFlag      bool
	StallKnown     bool
	PacketReceived time.Time // clock time of the last reply read from the controller
}

// csvHeader matches spec §6's indexing-table CSV column layout exactly.
const csvHeader = "datetime,position,stall_flag,type\r\n"

// CSVHeader exposes csvHeader for callers constructing a TextLog, and for
// internal/reassemble to recognize and skip a pre-existing header line.
func CSVHeader() string { return csvHeader }

var latin1Encoder = charmap.ISO8859_1.NewEncoder()
var latin1Decoder = charmap.ISO8859_1.NewDecoder()

// Driver owns one indexing table's serial port and relay.
type Driver struct {
	port  serialmux.SerialPorter
	relay Relay
	clock timeutil.Clock
	log   *binlog.TextLog

	alive          bool
	position       float64
	stalled        bool
	packetReceived time.Time
}

// New builds a Driver over an already-constructed port. log may be nil to
// disable the CSV log (tests). relay may be nil, defaulting to NoopRelay.
func New(port serialmux.SerialPorter, relay Relay, clock timeutil.Clock, log *binlog.TextLog) *Driver {
	if relay == nil {
		relay = NoopRelay{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Driver{port: port, relay: relay, clock: clock, log: log, position: math.NaN()}
}

// Start powers the relay, opens the configuration sequence, and leaves
// the driver ready to accept motion commands (pySAS
// IndexingTable.start/set_configuration).
func (d *Driver) Start() error {
	if d.alive {
		return nil
	}
	d.relay.On()
	d.clock.Sleep(commandDelay)

	if err := d.sendConfiguration(); err != nil {
		d.relay.Off()
		return fmt.Errorf("indexingtable: configuration failed: %w", err)
	}
	d.alive = true
	d.GetPosition()
	return nil
}

func (d *Driver) sendConfiguration() error {
	if err := d.writeRaw([]byte{0x03}); err != nil { // Ctrl-C soft reset
		return err
	}
	d.writeLog(nanStr(), "nan", "set_cfg")
	d.clock.Sleep(500 * time.Millisecond)

	commands := []string{"ee=1", "a=78125", "d=78125", "vi=78", "vm=20000", "em=1"}
	for i, c := range commands {
		var line string
		if i == 0 {
			line = c + terminator // first command needs no registrator
		} else {
			line = registrator + c + terminator
		}
		if err := d.writeRaw([]byte(line)); err != nil {
			return err
		}
		d.clock.Sleep(commandDelay)
	}
	d.flushRead()
	return nil
}

// Stop reads and clears any stall condition, returns the table to zero,
// closes the port, and drops the relay (pySAS IndexingTable.stop).
func (d *Driver) Stop() error {
	if !d.alive {
		return nil
	}
	stalled, ok := d.GetStallFlag()
	if ok && stalled {
		d.ResetStallFlag()
	}
	d.SetPosition(0, true)

	if d.log != nil {
		_ = d.log.Close(500 * time.Millisecond)
	}
	err := d.port.Close()
	d.relay.Off()
	d.alive = false
	return err
}

// SetPosition commands the table to theta degrees. theta outside
// [positionMin, positionMax] is rejected without sending a command — the
// driver never wraps (spec §4.6 invariant). If checkStall, the call
// blocks (via the driver's clock, so tests can fast-forward) until two
// consecutive position reads agree or motionTimeout elapses, then reads
// the stall flag.
func (d *Driver) SetPosition(theta float64, checkStall bool) bool {
	if !d.alive {
		monitoring.Logf("indexingtable: set_position: unable, not alive")
		return false
	}
	if theta < positionMin || theta > positionMax {
		monitoring.Logf("indexingtable: set_position: out of range %v", theta)
		return false
	}

	steps := int(theta * gearRatio)
	if err := d.writeRaw([]byte(fmt.Sprintf("%sma %d%s", registrator, steps, terminator))); err != nil {
		monitoring.Logf("indexingtable: set_position write failed: %v", err)
		return false
	}

	if checkStall {
		if !d.waitForStop(theta) {
			return false
		}
	} else {
		d.position = theta
	}
	d.writeLog(fmtPos(theta), "nan", "set")
	return true
}

func (d *Driver) waitForStop(target float64) bool {
	start := d.clock.Now()
	pre := d.GetPosition()
	if math.IsNaN(pre) {
		return false
	}
	d.clock.Sleep(commandDelay)
	for {
		cur := d.GetPosition()
		if cur == pre {
			break
		}
		if d.clock.Now().Sub(start) >= motionTimeout {
			break
		}
		pre = cur
		d.clock.Sleep(commandDelay)
	}
	stalled, ok := d.GetStallFlag()
	if ok && stalled {
		monitoring.Logf("indexingtable: stalled while moving to %v", target)
		return false
	}
	return true
}

// GetPosition asks the controller for its current position in steps and
// converts to degrees; a parse failure records NaN (pySAS get_position).
func (d *Driver) GetPosition() float64 {
	if !d.alive {
		d.position = math.NaN()
		return d.position
	}
	d.flushRead()
	if err := d.writeRaw([]byte(registrator + "pr p" + terminator)); err != nil {
		d.position = math.NaN()
		return d.position
	}
	d.clock.Sleep(commandDelay)
	reply, ok := d.readReply()
	if !ok {
		monitoring.Logf("indexingtable: unable to get position")
		d.position = math.NaN()
		return d.position
	}
	steps, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		monitoring.Logf("indexingtable: unable to parse position: %v", err)
		d.position = math.NaN()
	} else {
		d.position = float64(steps) / gearRatio
	}
	d.writeLog(fmtPos(d.position), "nan", "get")
	return d.position
}

// GetStallFlag reads the "st" flag. ok is false if the read/parse failed.
func (d *Driver) GetStallFlag() (stalled bool, ok bool) {
	stalled, ok = d.GetFlag("st")
	if ok {
		d.stalled = stalled
		d.writeLog("nan", flagStr(stalled), "get")
	}
	return stalled, ok
}

// GetFlag sends "pr <name>" and parses the boolean reply.
func (d *Driver) GetFlag(name string) (value bool, ok bool) {
	if !d.alive {
		monitoring.Logf("indexingtable: get_flag: unable, not alive")
		return false, false
	}
	d.flushRead()
	if err := d.writeRaw([]byte(registrator + "pr " + name + terminator)); err != nil {
		return false, false
	}
	d.clock.Sleep(commandDelay)
	reply, ok := d.readReply()
	if !ok {
		monitoring.Logf("indexingtable: unable to get flag %s", name)
		return false, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		monitoring.Logf("indexingtable: unable to parse flag %s: %v", name, err)
		return false, false
	}
	return n != 0, true
}

// ResetPositionZero tells the controller to treat its current physical
// position as zero (pySAS "p=0").
func (d *Driver) ResetPositionZero() {
	if !d.alive {
		monitoring.Logf("indexingtable: reset_position_zero: unable, not alive")
		return
	}
	_ = d.writeRaw([]byte(registrator + "p=0" + terminator))
	d.position = 0
	d.writeLog("0.00", "nan", "reset")
}

// ResetStallFlag clears the controller's stall latch ("st=0").
func (d *Driver) ResetStallFlag() {
	if !d.alive {
		monitoring.Logf("indexingtable: reset_stall_flag: unable, not alive")
		return
	}
	_ = d.writeRaw([]byte(registrator + "st=0" + terminator))
	d.stalled = false
	d.writeLog("nan", "False", "reset")
}

// State returns the driver's latest published snapshot.
func (d *Driver) State() State {
	return State{
		Alive:          d.alive,
		Position:       d.position,
		StallFlag:      d.stalled,
		StallKnown:     true,
		PacketReceived: d.packetReceived,
	}
}

// SendRaw writes command, CRLF-terminated, straight to the controller
// port and returns whatever the controller replies within one read cycle.
// id tags the request in the supervisor's admin log (spec's out-of-scope
// UI "send raw command" surface reduced to this one escape hatch for
// field diagnostics); the driver itself does not interpret the reply.
func (d *Driver) SendRaw(id, command string) (reply string, err error) {
	if !d.alive {
		return "", fmt.Errorf("indexingtable: send raw %s: not alive", id)
	}
	if err := d.writeRaw([]byte(registrator + command + terminator)); err != nil {
		return "", fmt.Errorf("indexingtable: send raw %s: %w", id, err)
	}
	d.clock.Sleep(commandDelay)
	reply, _ = d.readReply()
	return reply, nil
}

// EstimateMotionTime estimates, in seconds, how long a move from current
// to target will take given the measured rotation speed and settle delay
// (pySAS estimate_motion_time; supplemental — neither the driver nor the
// supervisor calls it).
func EstimateMotionTime(current, target float64) time.Duration {
	secs := rotationISpeed*math.Abs(target-current) + rotationDelay
	return time.Duration(secs * float64(time.Second))
}

func fmtPos(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func nanStr() string { return "nan" }

func flagStr(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func (d *Driver) writeLog(position, stallFlag, typ string) {
	if d.log == nil {
		return
	}
	now := d.clock.Now()
	row := fmt.Sprintf("%s,%s,%s,%s\r\n", now.UTC().Format("2006/01/02 15:04:05.000"), position, stallFlag, typ)
	d.log.TryWrite(row, now, 500*time.Millisecond)
}

// writeRaw Latin-1-encodes p (a no-op for the pure-ASCII M-code commands
// this driver emits) and writes it to the port.
func (d *Driver) writeRaw(p []byte) error {
	encoded, err := latin1Encoder.Bytes(p)
	if err != nil {
		return fmt.Errorf("indexingtable: latin-1 encode: %w", err)
	}
	_, err = d.port.Write(encoded)
	return err
}

func (d *Driver) flushRead() {
	_, _ = d.readReply()
}

// readReply drains whatever the port has buffered right now, Latin-1
// decoding it. ok is false if nothing was read.
func (d *Driver) readReply() (string, bool) {
	buf := make([]byte, 256)
	n, err := d.port.Read(buf)
	if err != nil || n == 0 {
		return "", false
	}
	decoded, derr := latin1Decoder.Bytes(buf[:n])
	if derr != nil {
		return "", false
	}
	d.packetReceived = d.clock.Now()
	return string(decoded), true
}
