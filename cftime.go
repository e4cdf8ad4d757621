/*
Copyright © 2020 the imos-tools authors.
This file is part of imos-tools.

imos-tools is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

imos-tools is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with imos-tools.  If not, see <http://www.gnu.org/licenses/>.
*/

package imostools

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// isoFormat is the layout of time attributes such as
	// time_coverage_start.
	isoFormat = "2006-01-02T15:04:05Z"

	// nameFormat is the layout of times in IMOS file names.
	nameFormat = "20060102T150405Z"

	defaultTimeUnits = "days since 1950-01-01 00:00:00 UTC"
)

// TimeUnits is a parsed CF time units attribute such as
// "days since 1950-01-01 00:00:00 UTC".
type TimeUnits struct {
	Step  time.Duration
	Epoch time.Time
	text  string
}

var unitSteps = map[string]time.Duration{
	"day": 24 * time.Hour, "days": 24 * time.Hour, "d": 24 * time.Hour,
	"hour": time.Hour, "hours": time.Hour, "h": time.Hour,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute,
	"second": time.Second, "seconds": time.Second, "s": time.Second, "sec": time.Second,
}

// ParseTimeUnits parses a CF time units string.
func ParseTimeUnits(s string) (TimeUnits, error) {
	fields := strings.SplitN(strings.TrimSpace(s), " since ", 2)
	if len(fields) != 2 {
		return TimeUnits{}, fmt.Errorf("imostools: invalid time units %q", s)
	}
	step, ok := unitSteps[strings.ToLower(strings.TrimSpace(fields[0]))]
	if !ok {
		return TimeUnits{}, fmt.Errorf("imostools: unsupported time unit in %q", s)
	}
	epoch, err := ParseISO(fields[1])
	if err != nil {
		return TimeUnits{}, fmt.Errorf("imostools: invalid time units %q: %v", s, err)
	}
	return TimeUnits{Step: step, Epoch: epoch, text: s}, nil
}

func (u TimeUnits) String() string { return u.text }

// Time converts a time value in units u to a time.Time, rounded to
// the nearest millisecond.
func (u TimeUnits) Time(v float64) time.Time {
	ms := math.Round(v * float64(u.Step) / float64(time.Millisecond))
	return u.Epoch.Add(time.Duration(ms) * time.Millisecond)
}

// Value converts t to a time value in units u.
func (u TimeUnits) Value(t time.Time) float64 {
	return float64(t.Sub(u.Epoch)) / float64(u.Step)
}

// Hours returns the length of v time steps in hours.
func (u TimeUnits) Hours(v float64) float64 {
	return v * u.Step.Hours()
}

// Convert converts a time value from units u to units to.
func (u TimeUnits) Convert(v float64, to TimeUnits) float64 {
	if u.Step == to.Step && u.Epoch.Equal(to.Epoch) {
		return v
	}
	offset := float64(u.Epoch.Sub(to.Epoch)) / float64(to.Step)
	return v*float64(u.Step)/float64(to.Step) + offset
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	nameFormat,
	"2006-01-02",
}

// ParseISO parses the ISO 8601 forms used in IMOS attributes. Times
// without a zone are UTC.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " UTC")
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.Parse(layout, strings.TrimSuffix(s, "Z")); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("imostools: cannot parse time %q", s)
}

// FormatISO formats t in the attribute layout.
func FormatISO(t time.Time) string { return t.UTC().Format(isoFormat) }

// formatName formats t in the file name layout.
func formatName(t time.Time) string { return t.UTC().Format(nameFormat) }
