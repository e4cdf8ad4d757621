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
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/petejan/imos-tools-sub000/ncfile"
)

// instrumentFile describes a single-instrument test file.
type instrumentFile struct {
	name          string
	model, serial string
	deployment    string
	depth         float64
	lat, lon      float64

	// times are in days since 1950-01-01.
	times []float64

	// series are float variables over TIME. A series X with an entry
	// in qc gets an X_quality_control variable.
	series map[string][]float64
	qc     map[string][]float64

	// profiles are variables over TIME and HEIGHT_ABOVE_SENSOR.
	profiles map[string][][]float64
	// statics are variables over HEIGHT_ABOVE_SENSOR only.
	statics map[string][]float64

	start, end    string
	noWindow      bool
	noTimeStdName bool
}

var fixedNow = func() time.Time { return time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC) }

func sortedKeys(m interface{}) []string {
	var keys []string
	switch t := m.(type) {
	case map[string][]float64:
		for k := range t {
			keys = append(keys, k)
		}
	case map[string][][]float64:
		for k := range t {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f instrumentFile) dataset() *ncfile.Dataset {
	ds := &ncfile.Dataset{Dims: []ncfile.Dim{{Name: "TIME", Len: len(f.times)}}}
	cells := 0
	for _, rows := range f.profiles {
		if len(rows) > 0 {
			cells = len(rows[0])
		}
	}
	for _, s := range f.statics {
		cells = len(s)
	}
	if cells > 0 {
		ds.Dims = append(ds.Dims, ncfile.Dim{Name: "HEIGHT_ABOVE_SENSOR", Len: cells})
	}

	ds.Attrs.Set("project", "Integrated Marine Observing System (IMOS)")
	ds.Attrs.Set("platform_code", "SOFS")
	if f.deployment != "" {
		ds.Attrs.Set("deployment_code", f.deployment)
	}
	ds.Attrs.Set("instrument", f.model)
	ds.Attrs.Set("instrument_serial_number", f.serial)
	ds.Attrs.Set("history", "parsed from raw file")
	ds.Attrs.Set("geospatial_lat_max", f.lat)
	if !f.noWindow {
		start, end := f.start, f.end
		if start == "" {
			start = "1950-01-01T00:00:00Z"
		}
		if end == "" {
			end = "1951-01-01T00:00:00Z"
		}
		ds.Attrs.Set("time_deployment_start", start)
		ds.Attrs.Set("time_deployment_end", end)
	}

	tv := ncfile.NewVariable("TIME", ncfile.Double, []string{"TIME"}, []int{len(f.times)})
	copy(tv.Data.Elements, f.times)
	if !f.noTimeStdName {
		tv.Attrs.Set("standard_name", "time")
	}
	tv.Attrs.Set("long_name", "time")
	tv.Attrs.Set("units", "days since 1950-01-01 00:00:00 UTC")
	tv.Attrs.Set("axis", "T")
	ds.AddVar(tv)

	scalar := func(name, stdName string, val float64) {
		v := ncfile.NewVariable(name, ncfile.Double, nil, nil)
		v.Data.Elements[0] = val
		v.Attrs.Set("standard_name", stdName)
		ds.AddVar(v)
	}
	scalar("LATITUDE", "latitude", f.lat)
	scalar("LONGITUDE", "longitude", f.lon)
	scalar("NOMINAL_DEPTH", "depth", f.depth)

	for _, name := range sortedKeys(f.series) {
		v := ncfile.NewVariable(name, ncfile.Float, []string{"TIME"}, []int{len(f.times)})
		copy(v.Data.Elements, f.series[name])
		v.Attrs.Set("units", "1")
		v.Attrs.Set("comment", "instrument specific")
		v.Attrs.Set("calibration_SerialNumber", f.serial)
		v.Attrs.Set("_FillValue", float32(999999))
		if flags, ok := f.qc[name]; ok {
			v.Attrs.Set("ancillary_variables", name+"_quality_control")
			q := newQCVariable(name, []string{"TIME"}, []int{len(f.times)})
			copy(q.Data.Elements, flags)
			ds.AddVar(v)
			ds.AddVar(q)
			continue
		}
		ds.AddVar(v)
	}
	for _, name := range sortedKeys(f.profiles) {
		rows := f.profiles[name]
		v := ncfile.NewVariable(name, ncfile.Double, []string{"TIME", "HEIGHT_ABOVE_SENSOR"}, []int{len(f.times), cells})
		for i, r := range rows {
			copy(v.Data.Elements[i*cells:(i+1)*cells], r)
		}
		ds.AddVar(v)
	}
	for _, name := range sortedKeys(f.statics) {
		v := ncfile.NewVariable(name, ncfile.Double, []string{"HEIGHT_ABOVE_SENSOR"}, []int{cells})
		copy(v.Data.Elements, f.statics[name])
		ds.AddVar(v)
	}
	return ds
}

func (f instrumentFile) write(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, f.name)
	if err := ncfile.Write(path, f.dataset()); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustOpen(t *testing.T, path string) *ncfile.Dataset {
	t.Helper()
	ds, err := ncfile.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func mustVar(t *testing.T, ds *ncfile.Dataset, name string) []float64 {
	t.Helper()
	v, err := ds.Var(name)
	if err != nil {
		t.Fatal(err)
	}
	return v.Values()
}

// equalNaN compares slices within tol, treating NaNs as equal.
func equalNaN(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			if math.IsNaN(a[i]) != math.IsNaN(b[i]) {
				return false
			}
			continue
		}
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

var nan = math.NaN()
