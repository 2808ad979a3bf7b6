package reassemble

import (
	"fmt"
	"os"
	"time"

	"github.com/oceanoptics/sas-autopilot/internal/frame"
	"github.com/oceanoptics/sas-autopilot/internal/monitoring"
	"github.com/oceanoptics/sas-autopilot/internal/radiometer"
)

// ReadRadiometerLog parses one raw HyperSAS binary log file in its
// entirety with the batch Frame Parser (spec §4.10: "use the streaming
// Frame Parser on the whole file"), returning every recognized frame's
// payload and embedded receive timestamp as a Record. Frames without a
// plausible trailing timestamp, and any leading bytes preceding the
// first recognized header, are dropped with a warning rather than
// failing the whole file (spec §4.10 failure semantics, §7).
func ReadRadiometerLog(path string, cal radiometer.Calibration, now func() time.Time) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reassemble: radiometer log %s: %w", path, err)
	}
	if len(data) == 0 {
		monitoring.Logf("reassemble: radiometer log %s is empty, skipping", path)
		return nil, nil
	}

	parser := frame.NewParser(cal.Headers(), now)
	frames, ignored := parser.Split(data)
	if len(ignored) > 0 {
		monitoring.Logf("reassemble: radiometer log %s: %d leading byte(s) not recognized as a frame header", path, len(ignored))
	}

	records := make([]Record, 0, len(frames))
	for _, f := range frames {
		if !f.HasTimestamp {
			monitoring.Logf("reassemble: radiometer log %s: dropping %s frame with no plausible timestamp", path, f.Header)
			continue
		}
		records = append(records, Record{Timestamp: f.Timestamp, Payload: f.Payload})
	}
	return records, nil
}
