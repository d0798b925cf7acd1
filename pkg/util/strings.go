package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns def if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParseBoolDefault parses "1"/"0"/"true"/"false" or returns def.
func ParseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

// NormalizeToken lowercases and trims a dimension value from a request.
func NormalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
