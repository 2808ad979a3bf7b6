package radiometer

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/timeutil"
)

// fakeCalibration is a minimal test double: frames are "," separated ASCII
// floats, headers map directly to roles, and wavelengths are fixed.
type fakeCalibration struct {
	roles        map[string]Role
	waves        map[Role][]float64
	extraHeaders []string // recognized by the frame parser but absent from roles
}

func newFakeCalibration() *fakeCalibration {
	return &fakeCalibration{
		roles: map[string]Role{
			"SATHSL0001": RoleLt,
			"SATHLD0001": RoleLtDark,
			"SATHSL0002": RoleLi,
			"SATHLD0002": RoleLiDark,
			"SATHSE0001": RoleEs,
			"SATHED0001": RoleEsDark,
			"SATTHS0001": RoleTHS,
		},
		waves: map[Role][]float64{
			RoleLt: {400, 500, 600},
			RoleLi: {400, 500, 600},
			RoleEs: {400, 500, 600},
		},
	}
}

func (c *fakeCalibration) Headers() [][]byte {
	out := make([][]byte, 0, len(c.roles)+len(c.extraHeaders))
	for h := range c.roles {
		out = append(out, []byte(h))
	}
	for _, h := range c.extraHeaders {
		out = append(out, []byte(h))
	}
	return out
}

func (c *fakeCalibration) Role(header string) (Role, bool) {
	r, ok := c.roles[header]
	return r, ok
}

func (c *fakeCalibration) Wavelengths(role Role) []float64 { return c.waves[role] }

func (c *fakeCalibration) ParseVector(header string, payload []byte) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(string(payload)), ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *fakeCalibration) ParseTHS(header string, payload []byte) (roll, pitch, compass float64, err error) {
	fields := strings.Split(strings.TrimSpace(string(payload)), ",")
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("radiometer: want 3 THS fields, got %d", len(fields))
	}
	vals := make([]float64, 3)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, 0, 0, err
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

func buildFrame(header string, payload string) []byte {
	return []byte(header + payload)
}

type staticReader struct {
	chunks [][]byte
	idx    int
	block  chan struct{}
}

func (r *staticReader) Read(p []byte) (int, error) {
	if r.idx < len(r.chunks) {
		n := copy(p, r.chunks[r.idx])
		r.idx++
		return n, nil
	}
	<-r.block
	return 0, io.EOF
}

func TestReader_DispatchAndParseLatest(t *testing.T) {
	cal := newFakeCalibration()
	stream := bytes.Join([][]byte{
		buildFrame("SATHLD0001", "1,1,1"),
		buildFrame("SATHSL0001", "10,20,30"),
		buildFrame("SATTHS0001", "1.5,-2.5,180"),
		buildFrame("SATHSE0001", ""), // terminates the THS frame above
	}, nil)

	r := NewReader(bytes.NewReader(nil), timeutil.NewMockClock(time.Unix(0, 0)), nil, cal)
	r.dataReceived(stream, time.Unix(10, 0))
	r.ParseLatest()

	snap := r.Snapshot()
	if got, want := snap.LtDark, []float64{1, 1, 1}; !floatsEqual(got, want) {
		t.Errorf("LtDark = %v, want %v", got, want)
	}
	if got, want := snap.Lt, []float64{9, 19, 29}; !floatsEqual(got, want) {
		t.Errorf("Lt (dark-subtracted) = %v, want %v", got, want)
	}
	if snap.Roll != 1.5 || snap.Pitch != -2.5 || snap.Compass != 180 {
		t.Errorf("THS = %v/%v/%v, want 1.5/-2.5/180", snap.Roll, snap.Pitch, snap.Compass)
	}
}

func TestReader_LazyParseSkipsAlreadyParsedChannel(t *testing.T) {
	cal := newFakeCalibration()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r := NewReader(bytes.NewReader(nil), clock, nil, cal)

	stream := bytes.Join([][]byte{
		buildFrame("SATHSE0001", "100,200,300"),
		buildFrame("SATTHS0001", ""), // terminates the Es frame above
	}, nil)
	r.dataReceived(stream, time.Unix(5, 0))
	r.ParseLatest()
	first := r.Snapshot().Es

	// No new data arrived; re-parsing should not error or change the value,
	// and parseChannel should report nothing pending.
	r.ParseLatest()
	second := r.Snapshot().Es
	if !floatsEqual(first, second) {
		t.Errorf("Es changed across a no-op ParseLatest: %v -> %v", first, second)
	}
}

func TestReader_UnrecognizedDispatcherKeyIsAcceptedButNotDispatched(t *testing.T) {
	cal := newFakeCalibration()
	cal.extraHeaders = []string{"SATNOPE001"}
	r := NewReader(bytes.NewReader(nil), nil, nil, cal)

	stream := bytes.Join([][]byte{
		buildFrame("SATNOPE001", "99,99,99"),
		buildFrame("SATTHS0001", "1,2,3"), // terminates the first frame
	}, nil)
	r.dataReceived(stream, time.Unix(1, 0))

	r.mu.Lock()
	slotCount := len(r.slots)
	r.mu.Unlock()
	if slotCount != 0 {
		t.Fatalf("an undispatchable header must not create a channel slot, got %d slots", slotCount)
	}
	r.missingMu.Lock()
	n := len(r.missingHeaders)
	r.missingMu.Unlock()
	if n != 1 {
		t.Fatalf("missingHeaders count = %d, want 1", n)
	}
}

func TestReader_BufferOverflowClearsAndWarns(t *testing.T) {
	cal := newFakeCalibration()
	r := NewReader(bytes.NewReader(nil), nil, nil, cal)

	huge := bytes.Repeat([]byte("X"), maxBuffer+1)
	r.dataReceived(huge, time.Unix(1, 0))

	r.mu.Lock()
	got := len(r.buffer)
	r.mu.Unlock()
	if got != 0 {
		t.Errorf("buffer length = %d after overflow, want 0", got)
	}
}

func TestReader_RunStopsOnStop(t *testing.T) {
	sr := &staticReader{chunks: [][]byte{buildFrame("SATTHS0001", "1,2,3")}, block: make(chan struct{})}
	r := NewReader(sr, nil, nil, newFakeCalibration())

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	r.Stop()
	close(sr.block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
