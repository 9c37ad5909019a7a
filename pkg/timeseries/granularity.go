package timeseries

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// Day and Week complement the time package constants.
	Day  = 24 * time.Hour
	Week = 7 * Day

	// minCadencePoints is the fewest points from which a cadence is inferred.
	minCadencePoints = 3
	// dominantShare is the fraction of gaps that must agree on one cadence.
	dominantShare = 0.9
)

var unitAliases = map[string]time.Duration{
	"ns":      time.Nanosecond,
	"N":       time.Nanosecond,
	"us":      time.Microsecond,
	"U":       time.Microsecond,
	"ms":      time.Millisecond,
	"L":       time.Millisecond,
	"s":       time.Second,
	"S":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"T":       time.Minute,
	"m":       time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"H":       time.Hour,
	"hr":      time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       Day,
	"D":       Day,
	"day":     Day,
	"days":    Day,
	"w":       Week,
	"W":       Week,
	"week":    Week,
	"weeks":   Week,
}

// canonical labels, largest first
var unitLabels = []struct {
	label string
	unit  time.Duration
}{
	{"W", Week},
	{"D", Day},
	{"h", time.Hour},
	{"min", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
	{"us", time.Microsecond},
	{"ns", time.Nanosecond},
}

var timeUnitPattern = regexp.MustCompile(`^\s*(\d*)\s*([A-Za-z]+)\s*$`)

// ParseTimeUnit converts a time unit label such as "s", "D" or "5min" into a duration.
func ParseTimeUnit(label string) (time.Duration, error) {
	m := timeUnitPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, fmt.Errorf("invalid time unit %q", label)
	}
	unit, ok := unitAliases[m[2]]
	if !ok {
		return 0, fmt.Errorf("unsupported time unit %q", label)
	}
	if m[1] == "" {
		return unit, nil
	}
	k, err := strconv.Atoi(m[1])
	if err != nil || k <= 0 {
		return 0, fmt.Errorf("invalid time unit multiplier in %q", label)
	}
	return time.Duration(k) * unit, nil
}

// TimeUnitLabel renders a cadence as a time unit label, e.g. 24h -> "D", 48h -> "2D".
func TimeUnitLabel(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	for _, u := range unitLabels {
		if d%u.unit != 0 {
			continue
		}
		if k := d / u.unit; k > 1 {
			return strconv.FormatInt(int64(k), 10) + u.label
		}
		return u.label
	}
	return ""
}

// InferCadence returns the dominant spacing between consecutive timestamps.
// It fails on series shorter than three points and on irregular spacing.
func InferCadence(s *Series) (time.Duration, bool) {
	if s.Len() < minCadencePoints {
		return 0, false
	}

	counts := make(map[time.Duration]int)
	var best time.Duration
	for i := 1; i < s.Len(); i++ {
		d := s.Timestamps[i].Sub(s.Timestamps[i-1])
		counts[d]++
		if counts[d] > counts[best] || (counts[d] == counts[best] && d < best) {
			best = d
		}
	}

	gaps := s.Len() - 1
	if float64(counts[best]) < dominantShare*float64(gaps) {
		return 0, false
	}
	return best, true
}

// InferTimeUnit infers a time unit label from the cadence of s.
func InferTimeUnit(s *Series) (string, bool) {
	d, ok := InferCadence(s)
	if !ok {
		return "", false
	}
	return TimeUnitLabel(d), true
}
