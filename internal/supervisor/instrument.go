package supervisor

import (
	"sync"

	"github.com/oceanoptics/sas-autopilot/internal/indexingtable"
)

// instrument pairs a restartable device read loop (radiometer.Reader's
// Run/Stop/Reset) with the GPIO relay that powers it, giving sensors that
// are otherwise pure stream parsers the same power-on/start-thread /
// stop-thread/power-off lifecycle pySAS's Sensor base class gives every
// instrument (HyperOCR, Es, IMU). The indexing table needs no such wrapper:
// its own Driver.Start/Stop already owns its relay and is restart-safe.
type instrument struct {
	relay indexingtable.Relay
	run   func()
	stop  func()
	reset func()

	mu    sync.Mutex
	alive bool
	wg    sync.WaitGroup
}

// newInstrument builds an instrument. relay may be nil, defaulting to
// indexingtable.NoopRelay.
func newInstrument(relay indexingtable.Relay, run, stop, reset func()) *instrument {
	if relay == nil {
		relay = indexingtable.NoopRelay{}
	}
	return &instrument{relay: relay, run: run, stop: stop, reset: reset}
}

// Start powers the relay and launches the read loop, if not already
// running.
func (i *instrument) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.alive {
		return
	}
	i.relay.On()
	i.reset()
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.run()
	}()
	i.alive = true
}

// Stop signals the read loop to exit, waits for it to return, then drops
// the relay.
func (i *instrument) Stop() {
	i.mu.Lock()
	if !i.alive {
		i.mu.Unlock()
		return
	}
	i.alive = false
	i.mu.Unlock()

	i.stop()
	i.wg.Wait()
	i.relay.Off()
}

// Alive reports whether the read loop is currently running.
func (i *instrument) Alive() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.alive
}
