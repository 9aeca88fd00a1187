package pool

import (
	"errors"
	"time"
)

// ErrInvalidTimestamp indicates a timestamp parsing error.
var ErrInvalidTimestamp = errors.New("invalid timestamp format")

// Fallback layouts ordered by likelihood. Layouts without a zone read as
// UTC.
var commonLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006/01/02 15:04:05",
	"01/02/2006",
	time.RFC3339Nano,
}

// ParseTimestamp parses b with layout when given, then with
// ParseTimestampNanosFast.
func ParseTimestamp(b []byte, layout string) (int64, error) {
	if layout != "" {
		if t, err := time.Parse(layout, BytesToString(b)); err == nil {
			return t.UnixNano(), nil
		}
	}
	return ParseTimestampNanosFast(b)
}

// ParseTimestampNanosFast parses a timestamp to nanoseconds since the epoch.
// ISO-8601 values take a byte-level fast path; plain numbers are Excel
// serial dates.
func ParseTimestampNanosFast(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, ErrInvalidTimestamp
	}
	if len(b) >= 10 && b[4] == '-' && b[7] == '-' {
		return parseISO8601Fast(b)
	}
	if isNumeric(b) {
		return parseExcelEpoch(b)
	}
	s := BytesToString(b)
	for _, layout := range commonLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}
	return 0, ErrInvalidTimestamp
}

// parseISO8601Fast parses YYYY-MM-DD[(T| )hh:mm:ss[.frac]][Z|±hh[:]mm]
// using direct byte arithmetic.
func parseISO8601Fast(b []byte) (int64, error) {
	if !isDigits(b[0:4]) || !isDigits(b[5:7]) || !isDigits(b[8:10]) {
		return 0, ErrInvalidTimestamp
	}
	year := parseInt4(b[0:4])
	month := parseInt2(b[5:7])
	day := parseInt2(b[8:10])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, ErrInvalidTimestamp
	}

	var hour, minute, second, nsec int
	loc := time.UTC
	if len(b) > 10 {
		if b[10] != 'T' && b[10] != ' ' || len(b) < 19 {
			return 0, ErrInvalidTimestamp
		}
		if !isDigits(b[11:13]) || !isDigits(b[14:16]) || !isDigits(b[17:19]) {
			return 0, ErrInvalidTimestamp
		}
		hour = parseInt2(b[11:13])
		minute = parseInt2(b[14:16])
		second = parseInt2(b[17:19])

		rest := b[19:]
		if len(rest) > 0 && rest[0] == '.' {
			end := 1
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			nsec = parseFraction(rest[1:end])
			rest = rest[end:]
		}
		switch {
		case len(rest) == 0:
		case rest[0] == 'Z' && len(rest) == 1:
		case rest[0] == '+' || rest[0] == '-':
			zone := rest[1:]
			if len(zone) == 5 && zone[2] == ':' {
				zone = append(append([]byte(nil), zone[:2]...), zone[3:]...)
			}
			if len(zone) != 4 || !isDigits(zone) {
				return 0, ErrInvalidTimestamp
			}
			offset := parseInt2(zone[0:2])*3600 + parseInt2(zone[2:4])*60
			if rest[0] == '-' {
				offset = -offset
			}
			loc = time.FixedZone("", offset)
		default:
			return 0, ErrInvalidTimestamp
		}
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc)
	return t.UnixNano(), nil
}

// parseExcelEpoch parses an Excel serial date: days since 1899-12-30.
func parseExcelEpoch(b []byte) (int64, error) {
	val, err := ParseFloat64(b)
	if err != nil {
		return 0, ErrInvalidTimestamp
	}
	days := int64(val)
	t := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(days))
	if fraction := val - float64(days); fraction > 0 {
		t = t.Add(time.Duration(fraction * 24 * float64(time.Hour)))
	}
	return t.UnixNano(), nil
}

func parseInt4(b []byte) int {
	return int(b[0]-'0')*1000 + int(b[1]-'0')*100 + int(b[2]-'0')*10 + int(b[3]-'0')
}

func parseInt2(b []byte) int {
	return int(b[0]-'0')*10 + int(b[1]-'0')
}

// parseFraction reads fractional seconds as nanoseconds; digits past the
// ninth are dropped.
func parseFraction(b []byte) int {
	result := 0
	multiplier := 100000000
	for i := 0; i < len(b) && i < 9; i++ {
		result += int(b[i]-'0') * multiplier
		multiplier /= 10
	}
	return result
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}

func isNumeric(b []byte) bool {
	dots := 0
	for i, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && dots == 0:
			dots++
		case c == '-' && i == 0:
		default:
			return false
		}
	}
	return len(b) > 0
}
