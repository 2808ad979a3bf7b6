package binlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Options configures a log sink's file naming and rotation policy
// (spec §6 DataLogger.* / per-device configuration keys).
type Options struct {
	Dir               string
	FilenamePrefix    string
	FilenameExt       string
	FileLengthMinutes int
}

func (o Options) normalized() Options {
	if o.FileLengthMinutes <= 0 {
		o.FileLengthMinutes = 60
	}
	if o.FilenameExt == "" {
		o.FilenameExt = "raw"
	}
	return o
}

// rotatingFile owns a single *os.File, opening it lazily and rotating
// it when the UTC calendar day changes or the file has been open longer
// than FileLengthMinutes (spec §3 LogFile, §4.3). It is not itself
// concurrency-safe; callers (Writer's sink goroutine, TextLog's guarded
// section) serialize access.
type rotatingFile struct {
	opts Options

	file       *os.File
	openedAt   time.Time
	openedDate string
}

func newRotatingFile(opts Options) *rotatingFile {
	return &rotatingFile{opts: opts.normalized()}
}

// ensure opens a file if none is open, or rotates to a new one if the
// calendar day has changed or the file has been open too long.
func (r *rotatingFile) ensure(ts time.Time) error {
	utc := ts.UTC()
	date := utc.Format("20060102")

	if r.file != nil {
		age := utc.Sub(r.openedAt)
		if date != r.openedDate || age >= time.Duration(r.opts.FileLengthMinutes)*time.Minute {
			r.close()
		}
	}
	if r.file != nil {
		return nil
	}
	return r.openNew(utc, date)
}

func (r *rotatingFile) openNew(utc time.Time, date string) error {
	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("binlog: mkdir %s: %w", r.opts.Dir, err)
	}

	name := func(suffix string) string {
		if suffix == "" {
			return fmt.Sprintf("%s_%s_%s.%s", r.opts.FilenamePrefix, date, utc.Format("150405"), r.opts.FilenameExt)
		}
		return fmt.Sprintf("%s_%s_%s_%s.%s", r.opts.FilenamePrefix, date, utc.Format("150405"), suffix, r.opts.FilenameExt)
	}

	path := filepath.Join(r.opts.Dir, name(""))
	for seq := 1; ; seq++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(r.opts.Dir, name(fmt.Sprintf("%d", seq)))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("binlog: open %s: %w", path, err)
	}
	r.file = f
	r.openedAt = utc
	r.openedDate = date
	return nil
}

func (r *rotatingFile) write(p []byte) error {
	_, err := r.file.Write(p)
	return err
}

func (r *rotatingFile) close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
