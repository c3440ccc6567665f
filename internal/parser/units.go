package parser

import (
	"strconv"
	"strings"
	"time"
)

// unitScale maps size unit suffixes to bytes. The tool prints binary units
// (KiB, MiB, GiB); decimal spellings are accepted as well.
var unitScale = map[string]float64{
	"b":   1,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
}

// ToBytes converts a magnitude with a unit suffix ("12.5", "MiB") to bytes.
// Unknown units report ok=false.
func ToBytes(value, unit string) (float64, bool) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	scale, ok := unitScale[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, false
	}
	return v * scale, true
}

// ParseClock converts "HH:MM:SS", "MM:SS" or "SS" into a duration.
// Fractional seconds are accepted in the last field.
func ParseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}

	var total float64
	for i, part := range parts {
		var v float64
		var err error
		if i == len(parts)-1 {
			v, err = strconv.ParseFloat(part, 64)
		} else {
			var n int64
			n, err = strconv.ParseInt(part, 10, 64)
			v = float64(n)
		}
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return time.Duration(total * float64(time.Second)), true
}
