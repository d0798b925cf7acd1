package http

import (
    "time"

    xutil "RankPulse/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTime tries YYYY-MM-DD and RFC3339, truncating to UTC midnight. Returns (t, true) if either worked.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseDay(s) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseDayDefault(s, def) }
