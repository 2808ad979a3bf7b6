// Package frame implements the proprietary binary instrument protocol
// framing: splitting a byte stream into header-delimited frames and
// decoding/encoding the 7-byte trailing timestamp each frame carries
// (spec §4.2, §6). Grounded on the original pySAS SatlanticParser /
// pack_timestamp_satlantic and, for the streaming split-on-header-set
// style, the teacher's internal/lidar/parse packet extraction.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
	"time"
)

// SATHDRHeader is the file-header marker: recognized like any other
// header for splitting purposes but never surfaced as a Frame (spec §4.2
// step 4).
var SATHDRHeader = []byte("SATHDR")

const timestampLength = 7

// Frame is one parsed protocol unit.
type Frame struct {
	Header       []byte
	Payload      []byte
	Timestamp    time.Time
	HasTimestamp bool
}

// Parser splits a byte buffer into Frames using a calibration-derived
// header set.
type Parser struct {
	// headers is sorted longest-first so that a header which is a prefix
	// of another is never matched short.
	headers [][]byte
	now     func() time.Time
}

// NewParser builds a Parser over the given set of known frame headers.
// now supplies the plausibility-window upper bound for timestamp
// decoding and defaults to time.Now when nil.
func NewParser(headers [][]byte, now func() time.Time) *Parser {
	hs := make([][]byte, 0, len(headers)+1)
	hs = append(hs, headers...)
	hs = append(hs, SATHDRHeader)
	sort.Slice(hs, func(i, j int) bool { return len(hs[i]) > len(hs[j]) })
	if now == nil {
		now = time.Now
	}
	return &Parser{headers: hs, now: now}
}

func (p *Parser) matchAt(buf []byte, i int) []byte {
	for _, h := range p.headers {
		if len(h) == 0 {
			continue
		}
		if i+len(h) <= len(buf) && bytes.Equal(buf[i:i+len(h)], h) {
			return h
		}
	}
	return nil
}

type occurrence struct {
	idx    int
	header []byte
}

func (p *Parser) occurrences(buf []byte) []occurrence {
	var occs []occurrence
	i := 0
	for i < len(buf) {
		if h := p.matchAt(buf, i); h != nil {
			occs = append(occs, occurrence{idx: i, header: h})
			i += len(h)
			continue
		}
		i++
	}
	return occs
}

// maxIgnoredReport bounds how many leading unrecognized bytes are reported
// back to the caller for logging (spec §4.2 step 2).
const maxIgnoredReport = 1000

// Split scans buf for known headers and returns the frames found, plus any
// leading bytes preceding the first recognized header ("ignored",
// truncated to maxIgnoredReport for logging purposes). SATHDR markers are
// recognized as split points but dropped, never emitted as frames.
func (p *Parser) Split(buf []byte) (frames []Frame, ignored []byte) {
	occs := p.occurrences(buf)
	if len(occs) == 0 {
		if len(buf) > 0 {
			ignored = truncate(buf, maxIgnoredReport)
		}
		return nil, ignored
	}
	if occs[0].idx > 0 {
		ignored = truncate(buf[:occs[0].idx], maxIgnoredReport)
	}

	for k, occ := range occs {
		start := occ.idx + len(occ.header)
		end := len(buf)
		if k+1 < len(occs) {
			end = occs[k+1].idx
		}
		if bytes.Equal(occ.header, SATHDRHeader) {
			continue
		}
		frames = append(frames, newFrame(occ.header, buf[start:end], p.now()))
	}
	return frames, ignored
}

// FindFrame scans for the earliest header occurrence; if a following
// header has also arrived, the frame between them is complete and is
// returned along with the buffer remainder starting at that next header.
// If fewer than two headers are present yet, ok is false and the caller
// must refill the buffer before a frame can be completed (spec §4.2,
// streaming single-frame finder, used by the radiometer reader).
func (p *Parser) FindFrame(buf []byte) (f Frame, remaining []byte, ok bool) {
	occs := p.occurrences(buf)
	if len(occs) < 2 {
		return Frame{}, buf, false
	}
	start := occs[0].idx + len(occs[0].header)
	end := occs[1].idx
	remaining = buf[occs[1].idx:]
	if bytes.Equal(occs[0].header, SATHDRHeader) {
		return Frame{}, remaining, false
	}
	return newFrame(occs[0].header, buf[start:end], p.now()), remaining, true
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		n = len(b)
	}
	out := make([]byte, n)
	copy(out, b[:n])
	return out
}

func newFrame(header, payloadAndTime []byte, plausibleNow time.Time) Frame {
	f := Frame{Header: header, Payload: payloadAndTime}
	if len(payloadAndTime) >= timestampLength {
		var arr [timestampLength]byte
		copy(arr[:], payloadAndTime[len(payloadAndTime)-timestampLength:])
		if t, ok := decodeTimestamp(arr, plausibleNow); ok {
			f.Payload = payloadAndTime[:len(payloadAndTime)-timestampLength]
			f.Timestamp = t
			f.HasTimestamp = true
		}
	}
	return f
}

// Pack7 serializes the (YYYYDDD, HHMMSSmmm) pair derived from t (UTC) into
// the 7-byte on-wire timestamp: u32_be(YYYYDDD) with its always-zero
// leading byte dropped, followed by u32_be(HHMMSSmmm) (spec §4.3, §6).
func Pack7(t time.Time) [7]byte {
	t = t.UTC()
	yyyyddd := uint32(t.Year())*1000 + uint32(t.YearDay())
	hhmmssmmm := uint32(t.Hour())*10000000 + uint32(t.Minute())*100000 + uint32(t.Second())*1000 + uint32(t.Nanosecond()/1_000_000)

	var full [8]byte
	binary.BigEndian.PutUint32(full[0:4], yyyyddd)
	binary.BigEndian.PutUint32(full[4:8], hhmmssmmm)

	var out [7]byte
	copy(out[:], full[1:])
	return out
}

// Unpack7 is the inverse of Pack7.
func Unpack7(b [7]byte) (time.Time, error) {
	var full [8]byte
	copy(full[1:], b[:])
	yyyyddd := binary.BigEndian.Uint32(full[0:4])
	hhmmssmmm := binary.BigEndian.Uint32(full[4:8])

	year := yyyyddd / 1000
	doy := yyyyddd % 1000
	if doy == 0 || year == 0 {
		return time.Time{}, errors.New("frame: invalid YYYYDDD timestamp component")
	}
	hh := hhmmssmmm / 10000000
	mm := (hhmmssmmm / 100000) % 100
	ss := (hhmmssmmm / 1000) % 100
	ms := hhmmssmmm % 1000
	if hh > 23 || mm > 59 || ss > 59 {
		return time.Time{}, errors.New("frame: invalid HHMMSSmmm timestamp component")
	}

	base := time.Date(int(year), 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(doy)-1)
	return base.Add(time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(ms)*time.Millisecond), nil
}

// plausibilityFloor is the earliest timestamp the parser will accept
// (spec §4.2, §7).
var plausibilityFloor = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func decodeTimestamp(b [7]byte, now time.Time) (time.Time, bool) {
	t, err := Unpack7(b)
	if err != nil {
		return time.Time{}, false
	}
	if t.Before(plausibilityFloor) || t.After(now) {
		return time.Time{}, false
	}
	return t, true
}
