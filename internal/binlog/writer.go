// Package binlog implements the thread-safe rotating log sinks described in
// spec §4.3 and §6: the asynchronous binary frame writer used by the
// radiometer reader and supervisor, and the mutex-guarded CSV-style text
// logger used by the GPS reader and indexing-table driver. Grounded on the
// original pySAS log.py (Log / LogText / LogBinary / SatlanticLogger) and,
// for the dedicated-sink-goroutine-with-unbounded-queue shape, the
// teacher's internal/lidar/recorder rotating writer.
package binlog

import (
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/frame"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"

	"sync"
)

type queueEntry struct {
	item     *writeItem
	closeAck chan struct{}
	shutdown bool
}

type writeItem struct {
	data []byte
	ts   time.Time
}

// Writer is the thread-safe append-only rotating binary frame sink
// (spec §4.3). Producers call Write and return immediately; a dedicated
// goroutine is the sole filesystem mutator, draining an unbounded queue in
// order.
type Writer struct {
	rf *rotatingFile

	mu   sync.Mutex
	cond *sync.Cond
	q    []queueEntry

	shuttingDown bool
	done         chan struct{}
}

// NewWriter starts a Writer's sink goroutine. The first file opens lazily
// on the first Write.
func NewWriter(opts Options) *Writer {
	w := &Writer{rf: newRotatingFile(opts), done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// Write enqueues data‖pack7(ts) for the sink goroutine to append; it never
// blocks on I/O (spec §4.3, §5 bounded-effort queue).
func (w *Writer) Write(data []byte, ts time.Time) {
	ts7 := frame.Pack7(ts)
	payload := make([]byte, 0, len(data)+len(ts7))
	payload = append(payload, data...)
	payload = append(payload, ts7[:]...)

	w.mu.Lock()
	w.q = append(w.q, queueEntry{item: &writeItem{data: payload, ts: ts}})
	w.cond.Signal()
	w.mu.Unlock()
}

// Close drains pending writes then closes the currently open file. It is
// safe to call concurrently with in-flight Write calls; a write enqueued
// after Close lazily reopens a new file on the next flush (spec §4.3).
// Close does not stop the sink goroutine — see Shutdown for that.
func (w *Writer) Close() error {
	ack := make(chan struct{})
	w.mu.Lock()
	w.q = append(w.q, queueEntry{closeAck: ack})
	w.cond.Signal()
	w.mu.Unlock()
	<-ack
	return nil
}

// Shutdown drains pending writes, closes the file, and stops the sink
// goroutine permanently. Used by cmd/autopilot on exit.
func (w *Writer) Shutdown() {
	w.mu.Lock()
	w.shuttingDown = true
	w.cond.Signal()
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run() {
	for {
		w.mu.Lock()
		for len(w.q) == 0 && !w.shuttingDown {
			w.cond.Wait()
		}
		if len(w.q) == 0 {
			w.mu.Unlock()
			w.rf.close()
			close(w.done)
			return
		}
		entry := w.q[0]
		w.q = w.q[1:]
		w.mu.Unlock()

		if entry.item != nil {
			if err := w.rf.ensure(entry.item.ts); err != nil {
				monitoring.Logf("binlog: %v", err)
			} else if err := w.rf.write(entry.item.data); err != nil {
				monitoring.Logf("binlog: write failed: %v", err)
			}
		}
		if entry.closeAck != nil {
			w.rf.close()
			close(entry.closeAck)
		}
	}
}
