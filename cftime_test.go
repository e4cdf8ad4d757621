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
	"math"
	"testing"
	"time"
)

func TestTimeUnits(t *testing.T) {
	days, err := ParseTimeUnits("days since 1950-01-01 00:00:00 UTC")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2018, 8, 1, 12, 0, 0, 0, time.UTC)
	v := days.Value(want)
	if v != 25049.5 {
		t.Errorf("Value = %v, want 25049.5", v)
	}
	if have := days.Time(v); !have.Equal(want) {
		t.Errorf("Time = %v, want %v", have, want)
	}
	if have := days.Hours(0.5); have != 12 {
		t.Errorf("Hours = %v", have)
	}

	secs, err := ParseTimeUnits("seconds since 1970-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if have := days.Convert(v, secs); math.Abs(have-float64(want.Unix())) > 1e-3 {
		t.Errorf("Convert = %v, want %v", have, want.Unix())
	}
	if have := secs.Convert(float64(want.Unix()), days); math.Abs(have-v) > 1e-9 {
		t.Errorf("Convert back = %v, want %v", have, v)
	}

	for _, bad := range []string{"days", "fortnights since 1950-01-01", "days since yesterday"} {
		if _, err := ParseTimeUnits(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}

func TestParseISO(t *testing.T) {
	want := time.Date(2018, 8, 1, 4, 5, 6, 0, time.UTC)
	for _, s := range []string{
		"2018-08-01T04:05:06Z",
		"2018-08-01T04:05:06",
		"2018-08-01 04:05:06 UTC",
		"20180801T040506Z",
		"2018-08-01T04:05:06+00:00",
	} {
		have, err := ParseISO(s)
		if err != nil {
			t.Errorf("%q: %v", s, err)
			continue
		}
		if !have.Equal(want) {
			t.Errorf("%q: have %v, want %v", s, have, want)
		}
	}
	if s := FormatISO(want); s != "2018-08-01T04:05:06Z" {
		t.Errorf("FormatISO = %s", s)
	}
	if s := formatName(want); s != "20180801T040506Z" {
		t.Errorf("formatName = %s", s)
	}
}

func TestFlags(t *testing.T) {
	for _, test := range []struct {
		flag, threshold Flag
		want            bool
	}{
		{FlagGood, FlagProbablyGood, true},
		{FlagProbablyGood, FlagProbablyGood, true},
		{FlagProbablyBad, FlagProbablyGood, false},
		{FlagUnknown, FlagGood, true},
		{FlagMissing, FlagMissing, false},
	} {
		if have := test.flag.Passes(test.threshold); have != test.want {
			t.Errorf("%v.Passes(%v) = %v", test.flag, test.threshold, have)
		}
	}
	if s := FlagInterpolated.String(); s != "interpolated" {
		t.Errorf("String = %s", s)
	}
	if f := flagOf(math.NaN()); f != FlagUnknown {
		t.Errorf("flagOf(NaN) = %v", f)
	}
}
