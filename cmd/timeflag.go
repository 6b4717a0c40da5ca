package cmd

import (
	"fmt"
	"strings"
	"time"
)

// timeLayouts are accepted for --due and --submitted, most specific first.
// Layouts without a zone are read in local time.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime parses a user-supplied timestamp. An empty string yields nil.
func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q (use RFC3339 or YYYY-MM-DD[ HH:MM])", s)
}
