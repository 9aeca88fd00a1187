package pool

import (
	"strconv"
	"unsafe"
)

// BytesToString converts a byte slice to a string without allocation.
// The string shares memory with b; b must not change while it is used.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// ParseInt64 parses an int64 from a byte slice without allocation.
func ParseInt64(b []byte) (int64, error) {
	return strconv.ParseInt(BytesToString(b), 10, 64)
}

// ParseFloat64 parses a float64 from a byte slice without allocation.
func ParseFloat64(b []byte) (float64, error) {
	return strconv.ParseFloat(BytesToString(b), 64)
}

// ParseBool parses a boolean from a byte slice without allocation.
func ParseBool(b []byte) (bool, error) {
	return strconv.ParseBool(BytesToString(b))
}

// TrimLineEnding removes trailing \n and \r characters.
func TrimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
