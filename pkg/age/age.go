// Package age classifies file records into modification-age buckets.
package age

import (
	"fmt"
	"strconv"
	"strings"
)

// Bucket is a logical age bucket identifier.
type Bucket uint8

// Buckets, youngest first.
const (
	Recent Bucket = iota // modified within Young days
	Aging                // between Young and Old days
	Old                  // beyond Old days, or unknown mtime
	NumBuckets
)

// Any selects all buckets in query filters.
const Any = -1

const secondsPerDay = 86_400

// Config holds the bucket thresholds in days.
type Config struct {
	Young int64
	Old   int64
}

// DefaultConfig returns the standard 60/600 day thresholds.
func DefaultConfig() Config {
	return Config{Young: 60, Old: 600}
}

// ParsePair parses a "YOUNG,OLD" threshold pair.
func ParsePair(s string) (Config, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Config{}, fmt.Errorf("expected two comma-separated integers, e.g. 60,600: %q", s)
	}
	young, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("YOUNG must be an integer: %q", parts[0])
	}
	old, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("OLD must be an integer: %q", parts[1])
	}
	if young <= 0 || old <= 0 || young >= old {
		return Config{}, fmt.Errorf("thresholds must be positive and increasing: %d,%d", young, old)
	}
	return Config{Young: young, Old: old}, nil
}

// BucketOf classifies a modification time against now.
//
// The boundaries are inclusive in seconds: a file modified exactly Young
// days ago is still Recent, one second older is Aging. An mtime of zero or
// less means the age is unknown and classifies as Old.
func (c Config) BucketOf(now, mtime int64) Bucket {
	if mtime <= 0 {
		return Old
	}
	ageSecs := now - mtime
	if ageSecs < 0 {
		ageSecs = 0
	}
	switch {
	case ageSecs <= c.Young*secondsPerDay:
		return Recent
	case ageSecs <= c.Old*secondsPerDay:
		return Aging
	default:
		return Old
	}
}

// SanitizeTime zeroes timestamps more than one day in the future, which
// show up on filesystems with broken clocks and would otherwise pin a
// record to the Recent bucket forever.
func SanitizeTime(now, ts int64) int64 {
	if ts > now+secondsPerDay {
		return 0
	}
	return ts
}

// ParseFilter parses a query-side age selector: -1 means all buckets.
func ParseFilter(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("age must be an integer: %q", s)
	}
	if v != Any && (v < 0 || v >= int(NumBuckets)) {
		return 0, fmt.Errorf("age must be -1, 0, 1 or 2: %d", v)
	}
	return v, nil
}
