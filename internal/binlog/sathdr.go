package binlog

import (
	"fmt"

	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
)

const sathdrSlotSize = 128

// SATHDRKeys is the fixed 25-key order for the merged log's file header
// (spec §6).
var SATHDRKeys = []string{
	"CRUISE-ID", "OPERATOR", "INVESTIGATOR", "AFFILIATION", "CONTACT",
	"EXPERIMENT", "LATITUDE", "LONGITUDE", "ZONE", "CLOUD_PERCENT",
	"WAVE_HEIGHT", "WIND_SPEED", "COMMENT", "DOCUMENT", "STATION-ID",
	"CAST", "TIME-STAMP", "MODE", "TIMETAG", "DATETAG", "TIMETAG2",
	"PROFILER", "REFERENCE", "PRO-DARK", "REF-DARK",
}

// BuildSATHDR renders the 25x128-byte file header block that prefixes
// every merged log file (spec §6). values supplies a value per key in
// SATHDRKeys; keys absent from values render with an empty value.
func BuildSATHDR(values map[string]string) []byte {
	out := make([]byte, 0, len(SATHDRKeys)*sathdrSlotSize)
	for _, key := range SATHDRKeys {
		out = append(out, sathdrSlot(key, values[key])...)
	}
	return out
}

func sathdrSlot(key, value string) []byte {
	slot := make([]byte, sathdrSlotSize)
	line := fmt.Sprintf("SATHDR %s (%s)\r\n", value, key)
	if len(line) > sathdrSlotSize {
		monitoring.Logf("binlog: SATHDR slot %q overruns %d bytes, truncating", key, sathdrSlotSize)
		line = line[:sathdrSlotSize]
	}
	copy(slot, line)
	return slot
}
