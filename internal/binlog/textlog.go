package binlog

import (
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
)

// TextLog is a mutex-guarded, lazily-opened, rotating ASCII log file — the
// GPS and indexing-table CSV logs (spec §6). Unlike Writer, writes happen
// synchronously on the caller's goroutine; callers use TryWrite, which
// try-acquires the guard with a timeout and drops (and logs) the write on
// contention rather than blocking indefinitely (spec §5, "mutex-guarded
// serial file").
type TextLog struct {
	rf     *rotatingFile
	sem    chan struct{} // capacity 1; holding the token means "unlocked"
	header string        // written once per newly-opened file
}

// NewTextLog creates a TextLog. header, if non-empty, is written verbatim
// at the start of every new file (e.g. the GPS CSV's column-name and
// units lines).
func NewTextLog(opts Options, header string) *TextLog {
	l := &TextLog{rf: newRotatingFile(opts), sem: make(chan struct{}, 1), header: header}
	l.sem <- struct{}{}
	return l
}

func (l *TextLog) tryAcquire(timeout time.Duration) bool {
	select {
	case <-l.sem:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (l *TextLog) release() {
	l.sem <- struct{}{}
}

// TryWrite appends line to the current file, opening/rotating it first if
// needed. If the guard is contended past timeout the write is dropped and
// logged (spec §5: "the loss is logged, never silent").
func (l *TextLog) TryWrite(line string, ts time.Time, timeout time.Duration) bool {
	if !l.tryAcquire(timeout) {
		monitoring.Logf("binlog: dropped write, log contended past %s", timeout)
		return false
	}
	defer l.release()

	wasOpen := l.rf.file != nil
	if err := l.rf.ensure(ts); err != nil {
		monitoring.Logf("binlog: %v", err)
		return false
	}
	if !wasOpen && l.header != "" {
		if err := l.rf.write([]byte(l.header)); err != nil {
			monitoring.Logf("binlog: header write failed: %v", err)
		}
	}
	if err := l.rf.write([]byte(line)); err != nil {
		monitoring.Logf("binlog: write failed: %v", err)
		return false
	}
	return true
}

// StartLogging / StopLogging toggle a caller-owned enabled flag; TextLog
// itself is always ready to accept writes, matching the GPS reader's
// pattern of gating TryWrite calls on its own lock-guarded bool rather than
// on the log object (pySAS GPS.start_logging/stop_logging).

// Close closes the currently open file under the guard, waiting up to
// timeout for contention to clear.
func (l *TextLog) Close(timeout time.Duration) error {
	if !l.tryAcquire(timeout) {
		monitoring.Logf("binlog: close dropped, log contended past %s", timeout)
		return nil
	}
	defer l.release()
	return l.rf.close()
}
