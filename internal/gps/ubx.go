package gps

import (
	"encoding/binary"
	"errors"
)

// UBX framing: 0xB5 0x62, class, id, u16-LE length, payload, 2-byte
// Fletcher-8 checksum over class..payload (u-blox protocol, as consumed
// by pySAS's UBXParser).
const (
	syncChar1 = 0xB5
	syncChar2 = 0x62

	classNAV = 0x01
	idNAVPVT = 0x07
	idNAVRELPOSNED = 0x3C
)

// ubxMessage is one decoded UBX frame.
type ubxMessage struct {
	class   byte
	id      byte
	payload []byte
}

var errIncomplete = errors.New("gps: incomplete ubx frame")
var errBadChecksum = errors.New("gps: ubx checksum mismatch")

// findUBXFrame scans buf for a complete UBX frame starting at the first
// sync-byte pair. It returns the decoded message, the buffer remainder
// after it, and ok=true on success. ok=false with a non-nil err means a
// malformed frame was skipped past; ok=false with a nil err means the
// buffer doesn't yet contain a complete frame and the caller should
// refill.
func findUBXFrame(buf []byte) (msg ubxMessage, remaining []byte, ok bool, err error) {
	start := -1
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == syncChar1 && buf[i+1] == syncChar2 {
			start = i
			break
		}
	}
	if start < 0 {
		// keep at most the last byte in case it's a split sync pair
		if len(buf) > 0 && buf[len(buf)-1] == syncChar1 {
			return ubxMessage{}, buf[len(buf)-1:], false, nil
		}
		return ubxMessage{}, nil, false, nil
	}
	rest := buf[start:]
	if len(rest) < 6 {
		return ubxMessage{}, rest, false, nil
	}
	length := int(binary.LittleEndian.Uint16(rest[4:6]))
	frameLen := 6 + length + 2
	if len(rest) < frameLen {
		return ubxMessage{}, rest, false, nil
	}

	ckA, ckB := fletcher8(rest[2 : 6+length])
	if rest[6+length] != ckA || rest[6+length+1] != ckB {
		return ubxMessage{}, rest[frameLen:], false, errBadChecksum
	}

	msg = ubxMessage{class: rest[2], id: rest[3], payload: rest[6 : 6+length]}
	return msg, rest[frameLen:], true, nil
}

func fletcher8(b []byte) (ckA, ckB byte) {
	for _, c := range b {
		ckA += c
		ckB += ckA
	}
	return ckA, ckB
}

func u2(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func u4(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func i4(b []byte) int32  { return int32(binary.LittleEndian.Uint32(b)) }
