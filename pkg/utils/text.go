package utils

import (
	"math"
	"strconv"
	"strings"
)

// ParseLooseNumber converts a loosely typed submitted value to a number, the
// way a JSON client's runtime would: blank, "null" and "false" are 0, "true"
// is 1, decimal and exponent forms parse as floats, and unsigned 0x/0o/0b
// literals parse as integers. Anything else, hex floats and non-finite values
// included, reports ok=false.
func ParseLooseNumber(input string) (value float64, ok bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, true
	}
	switch input {
	case "true":
		return 1, true
	case "false", "null":
		return 0, true
	}

	if hasRadixPrefix(input) {
		if strings.Contains(input, "_") {
			return 0, false
		}
		n, err := strconv.ParseUint(input, 0, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}

	// ParseFloat also takes hex floats and underscores, which clients never
	// send as numbers.
	if strings.ContainsAny(input, "xX_") {
		return 0, false
	}
	value, err := strconv.ParseFloat(input, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func hasRadixPrefix(s string) bool {
	if len(s) < 2 || s[0] != '0' {
		return false
	}
	switch s[1] {
	case 'x', 'X', 'o', 'O', 'b', 'B':
		return true
	}
	return false
}
