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
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/petejan/imos-tools-sub000/ncfile"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// PressureOptions holds the settings of InterpolatePressure.
type PressureOptions struct {
	// OutputDir is the directory the amended copies are written to.
	// The default is the directory of each target file.
	OutputDir string

	// Now returns the time stamped on the history attribute.
	Now func() time.Time

	Log logrus.FieldLogger
}

func (o *PressureOptions) setDefaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// InterpolatePressure fills the pressure record of each target
// instrument file from the pressure sensors of an aggregate file, and
// returns the paths of the amended copies in target order. The targets
// are not changed.
//
// At each target time the good (flag 1) pressure of every aggregate
// instrument is interpolated in time, a surface entry of 0 dbar at
// 0 m is added, and the resulting column is ordered by nominal depth.
// If the deepest entry is missing, missing values are extrapolated
// downward at 1 dbar per metre; otherwise they are interpolated
// linearly in depth. The target's pressure is the column value at its
// nominal depth. Existing PRES values are kept; filled values are
// flagged as interpolated and values that could not be filled as
// missing.
func InterpolatePressure(aggregatePath string, targets []string, opts PressureOptions) ([]string, error) {
	opts.setDefaults()
	agg, err := ncfile.Open(aggregatePath)
	if err != nil {
		return nil, err
	}
	units, sensors, err := pressureSensors(agg)
	if err != nil {
		return nil, fmt.Errorf("imostools: pressure: %w", err)
	}
	opts.Log.WithFields(logrus.Fields{
		"aggregate": filepath.Base(aggregatePath),
		"sensors":   len(sensors),
	}).Info("pressure: read pressure sensors")

	var out []string
	for i, target := range targets {
		path, err := interpolateTarget(target, i, aggregatePath, units, sensors, opts)
		if err != nil {
			return out, err
		}
		out = append(out, path)
	}
	return out, nil
}

// pressureSeries is the good pressure record of one instrument of an
// aggregate, sorted by time.
type pressureSeries struct {
	source string
	depth  float64
	time   []float64
	pres   []float64
	fit    *interp.PiecewiseLinear
}

// newPressureSeries sorts the samples by time and merges samples at
// equal times into their mean.
func newPressureSeries(source string, depth float64, t, p []float64) *pressureSeries {
	s := &pressureSeries{source: source, depth: depth}
	inds := make([]int, len(t))
	keys := append([]float64(nil), t...)
	floats.ArgsortStable(keys, inds)
	for i := 0; i < len(keys); {
		j, sum := i, 0.0
		for ; j < len(keys) && keys[j] == keys[i]; j++ {
			sum += p[inds[j]]
		}
		s.time = append(s.time, keys[i])
		s.pres = append(s.pres, sum/float64(j-i))
		i = j
	}
	if len(s.time) >= 2 {
		s.fit = new(interp.PiecewiseLinear)
		if err := s.fit.Fit(s.time, s.pres); err != nil {
			s.fit = nil
		}
	}
	return s
}

// at returns the pressure at time t, or NaN outside the record.
func (s *pressureSeries) at(t float64) float64 {
	n := len(s.time)
	if n == 0 || math.IsNaN(t) || t < s.time[0] || t > s.time[n-1] {
		return math.NaN()
	}
	if s.fit == nil {
		return s.pres[0]
	}
	return s.fit.Predict(t)
}

// pressureSensors reads the good pressure samples of every instrument
// of an aggregate with a known nominal depth.
func pressureSensors(agg *ncfile.Dataset) (TimeUnits, []*pressureSeries, error) {
	tv, err := agg.Var("TIME")
	if err != nil {
		return TimeUnits{}, nil, err
	}
	u, ok := tv.Attrs.String("units")
	if !ok {
		u = defaultTimeUnits
	}
	units, err := ParseTimeUnits(u)
	if err != nil {
		return TimeUnits{}, nil, err
	}
	index, err := agg.Var("instrument_index")
	if err != nil {
		return units, nil, err
	}
	pres, err := agg.Var("PRES")
	if err != nil {
		return units, nil, err
	}
	depth, err := agg.Var("NOMINAL_DEPTH")
	if err != nil {
		return units, nil, err
	}
	var flags []float64
	if qc, err := agg.Var("PRES_quality_control"); err == nil {
		flags = qc.Values()
	}
	var sources []string
	if src, err := agg.Var("source_file"); err == nil {
		sources = src.Strings(strlen)
	}

	times, idx, p := tv.Values(), index.Values(), pres.Values()
	if len(idx) != len(times) || len(p) != len(times) {
		return units, nil, fmt.Errorf("%w: TIME, instrument_index and PRES differ in length", ErrShapeMismatch)
	}
	depths := depth.Values()
	st := make([][]float64, len(depths))
	sp := make([][]float64, len(depths))
	for k, t := range times {
		i := int(idx[k])
		if i < 0 || i >= len(depths) || math.IsNaN(t) || math.IsNaN(p[k]) {
			continue
		}
		if flags != nil && flagOf(flags[k]) != FlagGood {
			continue
		}
		st[i] = append(st[i], t)
		sp[i] = append(sp[i], p[k])
	}
	var out []*pressureSeries
	for i, d := range depths {
		if math.IsNaN(d) || len(st[i]) == 0 {
			continue
		}
		var source string
		if i < len(sources) {
			source = sources[i]
		}
		out = append(out, newPressureSeries(source, d, st[i], sp[i]))
	}
	return units, out, nil
}

type depthPressure struct {
	depth, pres float64
}

// pressureColumn sorts entries by depth and merges entries at equal
// depths into the mean of their finite pressures.
func pressureColumn(entries []depthPressure) (depth, pres []float64) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].depth < entries[j].depth })
	for i := 0; i < len(entries); {
		j, sum, n := i, 0.0, 0
		for ; j < len(entries) && entries[j].depth == entries[i].depth; j++ {
			if !math.IsNaN(entries[j].pres) {
				sum += entries[j].pres
				n++
			}
		}
		p := math.NaN()
		if n > 0 {
			p = sum / float64(n)
		}
		depth = append(depth, entries[i].depth)
		pres = append(pres, p)
		i = j
	}
	return depth, pres
}

// fillColumn fills the missing values of a depth-sorted column in
// place.
func fillColumn(depth, pres []float64) {
	n := len(pres)
	if n == 0 {
		return
	}
	if math.IsNaN(pres[n-1]) {
		for i := 1; i < n; i++ {
			if math.IsNaN(pres[i]) && !math.IsNaN(pres[i-1]) {
				pres[i] = pres[i-1] + depth[i] - depth[i-1]
			}
		}
		return
	}
	var xs, ys []float64
	for i, p := range pres {
		if !math.IsNaN(p) {
			xs = append(xs, depth[i])
			ys = append(ys, p)
		}
	}
	if len(xs) < 2 {
		return
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return
	}
	for i, p := range pres {
		if math.IsNaN(p) && depth[i] > xs[0] && depth[i] < xs[len(xs)-1] {
			pres[i] = pl.Predict(depth[i])
		}
	}
}

// pressureAt returns the pressure at nominal depth d and time t.
func pressureAt(sensors []*pressureSeries, d, t float64) float64 {
	buf := []depthPressure{{0, 0}}
	haveTarget := false
	for _, s := range sensors {
		buf = append(buf, depthPressure{s.depth, s.at(t)})
		if s.depth == d {
			haveTarget = true
		}
	}
	if !haveTarget && d != 0 {
		buf = append(buf, depthPressure{d, math.NaN()})
	}
	depth, pres := pressureColumn(buf)
	fillColumn(depth, pres)
	i := sort.SearchFloat64s(depth, d)
	if i < len(depth) && depth[i] == d {
		return pres[i]
	}
	return math.NaN()
}

// interpolateTarget writes the amended copy of one target file.
func interpolateTarget(target string, index int, aggregatePath string, units TimeUnits, sensors []*pressureSeries, opts PressureOptions) (string, error) {
	ds, err := ncfile.Open(target)
	if err != nil {
		return "", err
	}
	in, err := readInstrument(ds, index)
	if err != nil {
		return "", err
	}
	if math.IsNaN(in.NominalDepth) {
		return "", fmt.Errorf("imostools: pressure: %w: no nominal depth in %s", ncfile.ErrNoVariable, target)
	}
	var others []*pressureSeries
	for _, s := range sensors {
		if s.source != in.SourceFile {
			others = append(others, s)
		}
	}

	out := ds.Copy()
	n := len(in.Time)
	pres, qc, err := pressureVariables(out, in)
	if err != nil {
		return "", err
	}
	p := pres.Data.Elements
	flags := qc.Data.Elements

	filled, missing := 0, 0
	times := in.timesIn(units)
	for i := 0; i < n; i++ {
		if !math.IsNaN(p[i]) {
			continue
		}
		p[i] = pressureAt(others, in.NominalDepth, times[i])
		if math.IsNaN(p[i]) {
			flags[i] = float64(FlagMissing)
			missing++
			continue
		}
		flags[i] = float64(FlagInterpolated)
		filled++
	}
	out.AddVar(pres)
	out.AddVar(qc)
	appendHistory(&out.Attrs, opts.Now(), fmt.Sprintf("PRES interpolated from %s, %d values filled",
		filepath.Base(aggregatePath), filled))

	dir := opts.OutputDir
	if dir == "" {
		dir = filepath.Dir(target)
	}
	path := filepath.Join(dir, pressureName(target))
	if filepath.Clean(path) == filepath.Clean(target) {
		return "", fmt.Errorf("imostools: pressure: output would overwrite %s", target)
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("imostools: creating output directory: %v", err)
	}
	if err := ncfile.Write(path, out); err != nil {
		return "", err
	}
	opts.Log.WithFields(logrus.Fields{
		"file":          path,
		"nominal_depth": in.NominalDepth,
		"filled":        filled,
		"missing":       missing,
	}).Info("pressure: wrote amended copy")
	return path, nil
}

// pressureVariables returns the PRES and PRES_quality_control
// variables of a target, starting from any existing values.
func pressureVariables(ds *ncfile.Dataset, in *Instrument) (pres, qc *ncfile.Variable, err error) {
	n := len(in.Time)
	dims := []string{in.TimeDim}
	if v, err := ds.Var("PRES"); err == nil {
		if len(v.Dims) != 1 || v.Dims[0] != in.TimeDim {
			return nil, nil, fmt.Errorf("%w: PRES in %s is not over %s", ErrShapeMismatch, ds.Path, in.TimeDim)
		}
		pres = v
	} else {
		pres = ncfile.NewVariable("PRES", ncfile.Float, dims, []int{n})
		pres.Attrs.Set("standard_name", "sea_water_pressure_due_to_sea_water")
		pres.Attrs.Set("long_name", "sea_water_pressure_due_to_sea_water")
		pres.Attrs.Set("units", "dbar")
		pres.Attrs.Set("_FillValue", float32(999999))
		pres.Attrs.Set("comment", "interpolated from the nominal depth and the mooring pressure sensors")
	}
	pres.Attrs.Set("ancillary_variables", "PRES_quality_control")

	qc = newQCVariable("PRES", dims, []int{n})
	var old []float64
	if v, err := ds.Var("PRES_quality_control"); err == nil && len(v.Values()) == n {
		old = v.Values()
		qc.Attrs = v.Attrs.Copy()
	}
	for i, x := range pres.Values() {
		if math.IsNaN(x) {
			continue
		}
		if old != nil {
			qc.Data.Elements[i] = float64(flagOf(old[i]))
		} else {
			qc.Data.Elements[i] = float64(FlagUnknown)
		}
	}
	return pres, qc, nil
}
