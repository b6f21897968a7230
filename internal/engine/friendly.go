package engine

import (
	"fmt"
	"strings"
	"time"
)

// Friendly renders a duration as a comma-joined list of its non-zero
// day/hour/minute/second components, pluralizing values above one.
// Zero components are omitted; an all-zero duration renders as "".
func Friendly(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	components := []struct {
		unit  string
		value int64
	}{
		{"day", total / 86400},
		{"hour", (total / 3600) % 24},
		{"minute", (total / 60) % 60},
		{"second", total % 60},
	}

	parts := make([]string, 0, len(components))
	for _, c := range components {
		if c.value == 0 {
			continue
		}
		plural := ""
		if c.value > 1 {
			plural = "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s%s", c.value, c.unit, plural))
	}
	return strings.Join(parts, ", ")
}
