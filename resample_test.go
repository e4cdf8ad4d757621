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
	"path/filepath"
	"testing"

	"github.com/petejan/imos-tools-sub000/ncfile"
)

// resampleFile writes an instrument deployed from 00:30 to 04:00 with
// samples at the given hours of the day.
func resampleFile(t *testing.T, dir string) string {
	hours := []float64{0.4, 0.9, 1.2, 1.4, 2.0, 2.45, 4.0}
	times := make([]float64, len(hours))
	psal := make([]float64, len(hours))
	volt := make([]float64, len(hours))
	for i, h := range hours {
		times[i] = 10 + h/24
		psal[i] = 30 + h
		volt[i] = 1
	}
	return instrumentFile{
		name:   "IMOS_ABOS-SOTS_T_19500111T003000Z_SOFS_FV01_SOFS-9-2020-SBE37SM-100m_END-19500111T040000Z_C-20200101T000000Z.nc",
		model:  "SBE37SM",
		serial: "1",
		depth:  100,
		lat:    -46.9,
		times:  times,
		series: map[string][]float64{
			"TEMP": {50, 1, 3, 100, 5, 7, 9},
			"PSAL": psal,
			"VOLT": volt,
		},
		qc:    map[string][]float64{"TEMP": {1, 1, 1, 4, 1, 2, 1}},
		start: "1950-01-11T00:30:00Z",
		end:   "1950-01-11T04:00:00Z",
	}.write(t, dir)
}

func TestResample(t *testing.T) {
	dir := t.TempDir()
	in := resampleFile(t, dir)

	path, err := Resample(in, ResampleOptions{Now: fixedNow, OutputDir: filepath.Join(dir, "mean")})
	if err != nil {
		t.Fatal(err)
	}
	wantName := "IMOS_ABOS-SOTS_T_19500111T010000Z_SOFS_FV02_SOFS-9-2020-SBE37SM-100m-1h-mean_END-19500111T040000Z_C-20200102T030405Z.nc"
	if filepath.Base(path) != wantName {
		t.Errorf("name:\nhave %s\nwant %s", filepath.Base(path), wantName)
	}
	ds := mustOpen(t, path)
	for _, test := range []struct {
		name string
		want []float64
		tol  float64
	}{
		{"TIME", []float64{10 + 1.0/24, 10 + 2.0/24, 10 + 3.0/24, 10 + 4.0/24}, 1e-9},
		{"TEMP", []float64{2, 6, nan, 9}, 1e-6},
		{"TEMP_standard_deviation", []float64{1, 1, nan, 0}, 1e-6},
		{"TEMP_number_of_observations", []float64{2, 2, 0, 1}, 0},
		{"TEMP_quality_control", []float64{1, 2, 9, 1}, 0},
		{"PSAL_number_of_observations", []float64{3, 2, 0, 1}, 0},
		{"LATITUDE", []float64{-46.9}, 0},
		{"NOMINAL_DEPTH", []float64{100}, 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			if have := mustVar(t, ds, test.name); !equalNaN(have, test.want, test.tol) {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
	if ds.HasVar("VOLT") {
		t.Error("VOLT is not in the variable list and should be dropped")
	}
	for name, want := range map[string]string{
		"file_version":        "Level 2 - Derived Products",
		"time_coverage_start": "1950-01-11T01:00:00Z",
		"time_coverage_end":   "1950-01-11T04:00:00Z",
	} {
		if have, _ := ds.Attrs.String(name); have != want {
			t.Errorf("%s: have %q, want %q", name, have, want)
		}
	}
}

func TestResampleMethods(t *testing.T) {
	dir := t.TempDir()
	in := resampleFile(t, dir)
	for _, test := range []struct {
		method string
		name   string
		want   []float64
	}{
		{method: ResampleNearest, name: "TEMP", want: []float64{1, 5, nan, 9}},
		// PSAL is linear in time, so a local linear fit recovers it
		// where there are enough samples.
		{method: ResampleLowess, name: "PSAL", want: []float64{31, 32, nan, 34}},
	} {
		t.Run(test.method, func(t *testing.T) {
			path, err := Resample(in, ResampleOptions{
				Now: fixedNow, OutputDir: filepath.Join(dir, test.method), Method: test.method,
			})
			if err != nil {
				t.Fatal(err)
			}
			ds := mustOpen(t, path)
			if have := mustVar(t, ds, test.name); !equalNaN(have, test.want, 1e-4) {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
	t.Run("variables", func(t *testing.T) {
		path, err := Resample(in, ResampleOptions{Now: fixedNow, OutputDir: filepath.Join(dir, "vars"), Variables: []string{"TEMP"}})
		if err != nil {
			t.Fatal(err)
		}
		if ds := mustOpen(t, path); ds.HasVar("PSAL") || !ds.HasVar("TEMP") {
			t.Error("only TEMP should be resampled")
		}
	})
	t.Run("threshold", func(t *testing.T) {
		path, err := Resample(in, ResampleOptions{Now: fixedNow, OutputDir: filepath.Join(dir, "bad"), QCThreshold: Threshold(FlagBad)})
		if err != nil {
			t.Fatal(err)
		}
		ds := mustOpen(t, path)
		if have, want := mustVar(t, ds, "TEMP_number_of_observations"), []float64{3, 2, 0, 1}; !equalNaN(have, want, 0) {
			t.Errorf("have %v, want %v", have, want)
		}
	})
	t.Run("unknown flags only", func(t *testing.T) {
		path, err := Resample(in, ResampleOptions{Now: fixedNow, OutputDir: filepath.Join(dir, "unknown"), QCThreshold: Threshold(FlagUnknown)})
		if err != nil {
			t.Fatal(err)
		}
		ds := mustOpen(t, path)
		if have, want := mustVar(t, ds, "TEMP_number_of_observations"), []float64{0, 0, 0, 0}; !equalNaN(have, want, 0) {
			t.Errorf("TEMP: have %v, want %v", have, want)
		}
		// PSAL has no flags, so its samples are unknown and pass.
		if have, want := mustVar(t, ds, "PSAL_number_of_observations"), []float64{3, 2, 0, 1}; !equalNaN(have, want, 0) {
			t.Errorf("PSAL: have %v, want %v", have, want)
		}
	})
	t.Run("unknown method", func(t *testing.T) {
		if _, err := Resample(in, ResampleOptions{Method: "median"}); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestNearestCoordinate(t *testing.T) {
	v := ncfile.NewVariable("LATITUDE", ncfile.Double, []string{"TIME"}, []int{4})
	copy(v.Data.Elements, []float64{-46.0, nan, -46.5, -47.0})
	hours := []float64{0, 1, 2.2, 5}
	out := nearestCoordinate(v, hours, 4, 2)
	// Output times are 0, 2, 4 and 6 hours.
	if want := []float64{-46.0, -46.5, -47.0, -47.0}; !equalNaN(out.Values(), want, 0) {
		t.Errorf("have %v, want %v", out.Values(), want)
	}
}

func TestLowess(t *testing.T) {
	x := []float64{-0.5, -0.2, 0.1, 0.4}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 3 - 2*xi
	}
	if have := lowess(x, y, 0, 1); !equalNaN([]float64{have}, []float64{3}, 1e-9) {
		t.Errorf("linear data: have %v, want 3", have)
	}
	if have := lowess([]float64{0.5}, []float64{7}, 0, 1); have != 7 {
		t.Errorf("single sample: have %v, want 7", have)
	}
}
