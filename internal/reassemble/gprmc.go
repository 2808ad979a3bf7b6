package reassemble

import (
	"fmt"
	"math"

	"github.com/oceanoptics/sas-autopilot/internal/supervisor"
)

// GPRMCConfig controls the optional magnetic-variation field (spec
// §4.10: "magnetic variation optionally populated via the magnetic-model
// function"). Grounded on pySAS Converter.make_gprmc: when
// PerRowDeclination is false, Declination (if set at all) is still
// called once, from the first datetime-valid row, and that single value
// is reused for every sentence — full per-row precision is opt-in since
// it is the expensive path.
type GPRMCConfig struct {
	Declination       supervisor.Declination
	PerRowDeclination bool
}

// BuildGPRMC synthesizes one $GPRMC NMEA sentence per GPS row (spec
// §4.10, §6), timestamped at the row's own receipt time — the same
// "datetime" column the live GPS Reader stamps every CSV row with.
func BuildGPRMC(rows []GPSRow, cfg GPRMCConfig) []Record {
	records := make([]Record, 0, len(rows))

	var batchVar float64
	var batchLetter byte
	haveBatchVar := false
	if cfg.Declination != nil && !cfg.PerRowDeclination {
		for _, r := range rows {
			if r.DatetimeValid {
				batchVar, batchLetter = variation(cfg.Declination(r.Latitude, r.Longitude, r.Altitude, r.GPSDatetime))
				haveBatchVar = true
				break
			}
		}
	}

	for _, r := range rows {
		var magvar float64
		letter := byte('E')
		switch {
		case cfg.Declination == nil:
			// no collaborator wired: emit a neutral zero variation
		case cfg.PerRowDeclination:
			magvar, letter = variation(cfg.Declination(r.Latitude, r.Longitude, r.Altitude, r.GPSDatetime))
		case haveBatchVar:
			magvar, letter = batchVar, batchLetter
		}

		sentence := formatGPRMC(r, magvar, letter)
		records = append(records, Record{Timestamp: r.Datetime, Payload: []byte(sentence)})
	}
	return records
}

func variation(decl float64) (float64, byte) {
	if decl < 0 {
		return -decl, 'W'
	}
	return decl, 'E'
}

func formatGPRMC(r GPSRow, magvar float64, magLetter byte) string {
	valid := byte('V')
	if r.DatetimeValid && r.FixOK {
		valid = 'A'
	}

	latDeg, latMin := splitDegrees(math.Abs(r.Latitude))
	latHemi := byte('N')
	if r.Latitude < 0 {
		latHemi = 'S'
	}
	lonDeg, lonMin := splitDegrees(math.Abs(r.Longitude))
	lonHemi := byte('E')
	if r.Longitude < 0 {
		lonHemi = 'W'
	}

	speedKnots := r.Speed * 1.94384

	body := fmt.Sprintf("GPRMC,%02d%02d%02d,%c,%02d%07.4f,%c,%03d%07.4f,%c,%05.1f,%05.1f,%02d%02d%02d,%05.1f,%c",
		r.GPSDatetime.Hour(), r.GPSDatetime.Minute(), r.GPSDatetime.Second(),
		valid,
		latDeg, latMin, latHemi,
		lonDeg, lonMin, lonHemi,
		speedKnots,
		supervisor.Mod360(r.HeadingMotion),
		r.GPSDatetime.Day(), int(r.GPSDatetime.Month()), r.GPSDatetime.Year()%100,
		magvar, magLetter,
	)

	return fmt.Sprintf("$%s*%02x\r\n", body, nmeaChecksum(body))
}

func splitDegrees(abs float64) (deg int, min float64) {
	deg = int(abs)
	min = (abs - float64(deg)) * 60
	return deg, min
}

// nmeaChecksum XORs every byte strictly between '$' and '*' (spec §6).
func nmeaChecksum(body string) byte {
	var c byte
	for i := 0; i < len(body); i++ {
		c ^= body[i]
	}
	return c
}
