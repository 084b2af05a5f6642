package util

import (
	"strconv"
	"strings"
)

func ParseInt(str string, fallback int) int {
	if v, err := strconv.Atoi(str); err == nil {
		return v
	}
	return fallback
}

func ParseBool(str string, fallback bool) bool {
	if v, err := strconv.ParseBool(str); err == nil {
		return v
	}
	return fallback
}

// ParseSegmentIndex parses a segment file name. Only plain decimal names count:
// no sign, no extension, no leading zeros except for "0" itself.
func ParseSegmentIndex(name string) (uint64, bool) {
	if name == "" || strings.TrimLeft(name, "0123456789") != "" {
		return 0, false
	}
	if len(name) > 1 && name[0] == '0' {
		return 0, false
	}
	v, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
