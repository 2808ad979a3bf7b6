package supervisor

import (
	"sync"

	"github.com/oceanoptics/sas-autopilot/internal/gps"
	"github.com/oceanoptics/sas-autopilot/internal/indexingtable"
	"github.com/oceanoptics/sas-autopilot/internal/radiometer"
)

// fakeGPS is a gpsSource whose Snapshot is set directly by the test,
// standing in for a real *gps.Reader fed by a serial port.
type fakeGPS struct {
	mu             sync.Mutex
	snap           gps.Snapshot
	loggingStarted int
	loggingStopped int
}

func (f *fakeGPS) Snapshot() gps.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeGPS) setSnapshot(s gps.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func (f *fakeGPS) Run()          {}
func (f *fakeGPS) StartLogging() { f.loggingStarted++ }
func (f *fakeGPS) StopLogging()  { f.loggingStopped++ }

// fakeRadiometer is a radiometerSource whose Snapshot is set directly by
// the test.
type fakeRadiometer struct {
	mu         sync.Mutex
	snap       radiometer.Snapshot
	runCount   int
	stopCount  int
	resetCount int
	compassAdj float64
	ran        chan struct{}
	stop       chan struct{}
}

func newFakeRadiometer() *fakeRadiometer {
	return &fakeRadiometer{ran: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (f *fakeRadiometer) Snapshot() radiometer.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeRadiometer) setSnapshot(s radiometer.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func (f *fakeRadiometer) Run() {
	f.mu.Lock()
	f.runCount++
	f.mu.Unlock()
	select {
	case f.ran <- struct{}{}:
	default:
	}
	<-f.stop
}

func (f *fakeRadiometer) Stop() {
	f.mu.Lock()
	f.stopCount++
	f.mu.Unlock()
	close(f.stop)
}

func (f *fakeRadiometer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCount++
	f.stop = make(chan struct{})
}

func (f *fakeRadiometer) SetCompassAdj(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compassAdj = v
}

// fakeTable is a tableDriver driven directly by the test.
type fakeTable struct {
	mu            sync.Mutex
	state         indexingtable.State
	startCalled   int
	stopCalled    int
	lastSetTheta  float64
	setCalled     int
	startErr      error
	getPositionFn func() float64
	lastRawID     string
	lastRawCmd    string
	rawReply      string
}

func (f *fakeTable) State() indexingtable.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTable) setState(s indexingtable.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeTable) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalled++
	if f.startErr != nil {
		return f.startErr
	}
	f.state.Alive = true
	return nil
}

func (f *fakeTable) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalled++
	f.state.Alive = false
	return nil
}

func (f *fakeTable) GetPosition() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getPositionFn != nil {
		return f.getPositionFn()
	}
	return f.state.Position
}

func (f *fakeTable) SetPosition(theta float64, checkStall bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalled++
	f.lastSetTheta = theta
	f.state.Position = theta
	return true
}

func (f *fakeTable) GetStallFlag() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.StallFlag, f.state.StallKnown
}

func (f *fakeTable) SendRaw(id, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRawID = id
	f.lastRawCmd = command
	return f.rawReply, nil
}
