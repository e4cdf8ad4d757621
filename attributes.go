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
	"strings"
	"time"

	"github.com/petejan/imos-tools-sub000/ncfile"
	"gonum.org/v1/gonum/floats"
)

// mergedGlobalExclude lists the global attributes that describe a
// single instrument or time span. They are dropped when files are
// merged and recomputed where possible.
var mergedGlobalExclude = map[string]bool{
	"time_coverage_start":        true,
	"time_coverage_end":          true,
	"geospatial_lat_min":         true,
	"geospatial_lat_max":         true,
	"geospatial_lon_min":         true,
	"geospatial_lon_max":         true,
	"geospatial_vertical_min":    true,
	"geospatial_vertical_max":    true,
	"deployment_code":            true,
	"instrument":                 true,
	"instrument_model":           true,
	"instrument_serial_number":   true,
	"instrument_nominal_depth":   true,
	"instrument_sample_interval": true,
	"quality_control_log":        true,
	"history":                    true,
	"netcdf_version":             true,
	"date_created":               true,
}

// mergedGlobalAttributes copies the global attributes of the first
// input file that remain valid for a merged product.
func mergedGlobalAttributes(a ncfile.Attributes) ncfile.Attributes {
	var out ncfile.Attributes
	for _, att := range a {
		if !mergedGlobalExclude[att.Name] {
			out = append(out, att)
		}
	}
	return out
}

// mergedVarAttributes copies variable attributes, dropping those that
// cannot describe values from several instruments.
func mergedVarAttributes(a ncfile.Attributes) ncfile.Attributes {
	var out ncfile.Attributes
	for _, att := range a {
		if att.Name == "comment" || att.Name == "_FillValue" || strings.HasPrefix(att.Name, "calibration") {
			continue
		}
		out = append(out, att)
	}
	return out
}

// appendHistory adds a dated line to the history attribute.
func appendHistory(a *ncfile.Attributes, now time.Time, line string) {
	entry := FormatISO(now) + " " + line
	if h, ok := a.String("history"); ok && h != "" {
		entry = h + "\n" + entry
	}
	a.Set("history", entry)
}

// stringAttrs returns the text global attributes of ds.
func stringAttrs(ds *ncfile.Dataset) map[string]string {
	out := make(map[string]string)
	for _, a := range ds.Attrs {
		if s, ok := a.Value.(string); ok {
			out[a.Name] = s
		}
	}
	return out
}

var geospatialPrefix = map[string]string{
	"latitude":  "geospatial_lat",
	"longitude": "geospatial_lon",
	"depth":     "geospatial_vertical",
}

// setGeospatial sets the geospatial extent attributes from the
// variables whose standard_name is latitude, longitude or depth.
func setGeospatial(ds *ncfile.Dataset) {
	lo := make(map[string]float64)
	hi := make(map[string]float64)
	var order []string
	for _, v := range ds.Vars {
		sn, _ := v.Attrs.String("standard_name")
		prefix, ok := geospatialPrefix[sn]
		if !ok {
			continue
		}
		min, max, ok := finiteRange(v.Values())
		if !ok {
			continue
		}
		if _, seen := lo[prefix]; !seen {
			order = append(order, prefix)
			lo[prefix], hi[prefix] = min, max
			continue
		}
		lo[prefix] = math.Min(lo[prefix], min)
		hi[prefix] = math.Max(hi[prefix], max)
	}
	for _, prefix := range order {
		ds.Attrs.Set(prefix+"_min", lo[prefix])
		ds.Attrs.Set(prefix+"_max", hi[prefix])
	}
}

// finiteRange returns the extrema of the finite values in x.
func finiteRange(x []float64) (min, max float64, ok bool) {
	f := finite(x)
	if len(f) == 0 {
		return math.NaN(), math.NaN(), false
	}
	return floats.Min(f), floats.Max(f), true
}

func finite(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
