// Package formatting converts byte sizes between counts and human-readable strings.
package formatting

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var units = []string{"B", "KB", "MB", "GB", "TB", "PB"}

var bytesPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// FormatBytes renders n using base-1024 units with the given decimal precision.
func FormatBytes(n int64, precision int) string {
	if n <= 0 {
		return "0 B"
	}
	precision = max(precision, 0)

	i := min(int(math.Log(float64(n))/math.Log(1024)), len(units)-1)
	size := float64(n) / math.Pow(1024, float64(i))

	return strconv.FormatFloat(size, 'f', precision, 64) + " " + units[i]
}

// ParseBytes parses sizes such as "10MB", "512 kb", "1.5GiB" or "2048" (bytes).
// Units are base-1024 and case-insensitive; the IEC "i" infix is accepted.
func ParseBytes(s string) (int64, error) {
	matches := bytesPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %w", err)
	}

	unit := strings.ToUpper(matches[2])
	if unit == "" {
		return int64(value), nil
	}
	if len(unit) == 3 && unit[1] == 'I' {
		unit = unit[:1] + unit[2:]
	}
	if len(unit) == 1 && unit != "B" {
		unit += "B"
	}

	idx := slices.Index(units, unit)
	if idx == -1 {
		return 0, fmt.Errorf("unknown byte size unit: %q", matches[2])
	}

	return int64(value * math.Pow(1024, float64(idx))), nil
}
