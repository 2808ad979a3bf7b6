package reassemble

import (
	"sort"
	"time"
)

// Record is one synthesized or passed-through frame awaiting assembly
// into a merged output file. Payload is the frame's raw bytes with no
// trailing timestamp — WriteWindow appends frame.Pack7(Timestamp) itself
// at write time, exactly as binlog.Writer does for the live supervisor's
// log sink.
type Record struct {
	Timestamp time.Time
	Payload   []byte
}

// sortRecords orders records by Timestamp, satisfying spec §5's
// requirement that, unlike the live supervisor, the offline reassembler
// produce globally timestamp-sorted output across sensors.
func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
