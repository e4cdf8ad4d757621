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
	"time"

	"github.com/petejan/imos-tools-sub000/ncfile"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BinOptions holds the settings of Bin.
type BinOptions struct {
	// OutputDir is the directory the binned file is written to. The
	// default is the directory of the aggregate.
	OutputDir string

	// TimeBinHours is the width of the time bins. The default is 1.
	TimeBinHours float64

	// PresBin is the width of the pressure bins in dbar. The default
	// is 10.
	PresBin float64

	// QCThreshold is the worst flag a sample may carry and still be
	// binned. Nil means FlagProbablyGood.
	QCThreshold *Flag

	// NoNominalDepth disables the use of the nominal depth of an
	// instrument as its pressure where PRES is missing.
	NoNominalDepth bool

	// Now returns the creation time stamped on the output.
	Now func() time.Time

	Log logrus.FieldLogger
}

func (o *BinOptions) setDefaults(aggregatePath string) {
	if o.OutputDir == "" {
		o.OutputDir = filepath.Dir(aggregatePath)
	}
	if o.TimeBinHours <= 0 {
		o.TimeBinHours = 1
	}
	if o.PresBin <= 0 {
		o.PresBin = 10
	}
	if o.QCThreshold == nil {
		o.QCThreshold = Threshold(FlagProbablyGood)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// binIndex returns the bin of x for bins of width w centred on
// multiples of w: a value is assigned to the nearest bin centre.
func binIndex(x, w float64) int {
	return int(math.Floor((x + w/2) / w))
}

// timeBinIndex returns the time bin of a sample dt hours after the
// start of the axis. dt is first rounded to the nearest second.
func timeBinIndex(dt, w float64) int {
	return binIndex(math.Round(dt*3600)/3600, w)
}

// binSample is a sample that passed the bin filters.
type binSample struct {
	cell  int
	value float64
	flag  Flag
}

// Bin grids one OBS variable of an aggregate onto time bins of
// TimeBinHours and pressure bins of PresBin dbar and returns the path
// of the new file. Each cell holds the mean, the number of samples,
// the standard error of the mean and the worst flag of the samples in
// it. Samples whose flag is worse than QCThreshold are not used. The
// time axis starts at the first sample; the pressure axis is anchored
// at 0 dbar.
func Bin(aggregatePath, varName string, opts BinOptions) (string, error) {
	opts.setDefaults(aggregatePath)
	agg, err := ncfile.Open(aggregatePath)
	if err != nil {
		return "", err
	}
	src, err := agg.Var(varName)
	if err != nil {
		return "", fmt.Errorf("imostools: bin: %w", err)
	}
	obs, _ := agg.DimLen("OBS")
	if len(src.Dims) != 1 || src.Dims[0] != "OBS" {
		return "", fmt.Errorf("%w: %s is not an OBS variable", ErrShapeMismatch, varName)
	}
	tv, err := agg.Var("TIME")
	if err != nil {
		return "", fmt.Errorf("imostools: bin: %w", err)
	}
	u, ok := tv.Attrs.String("units")
	if !ok {
		u = defaultTimeUnits
	}
	units, err := ParseTimeUnits(u)
	if err != nil {
		return "", err
	}
	pres, err := samplePressure(agg, obs, !opts.NoNominalDepth)
	if err != nil {
		return "", fmt.Errorf("imostools: bin: %w", err)
	}
	flags := make([]float64, obs)
	if qc, err := agg.Var(varName + "_quality_control"); err == nil && len(qc.Values()) == obs {
		copy(flags, qc.Values())
	}

	times, values := tv.Values(), src.Values()
	t0, _, ok := finiteRange(times)
	if !ok {
		return "", fmt.Errorf("imostools: bin: no valid times in %s", aggregatePath)
	}

	// Bin indices of the usable samples.
	var ti, pi []int
	var keep []int
	for k := 0; k < obs; k++ {
		f := flagOf(flags[k])
		if math.IsNaN(times[k]) || math.IsNaN(values[k]) || math.IsNaN(pres[k]) || !f.Passes(*opts.QCThreshold) {
			continue
		}
		ti = append(ti, timeBinIndex(units.Hours(times[k]-t0), opts.TimeBinHours))
		pi = append(pi, binIndex(pres[k], opts.PresBin))
		keep = append(keep, k)
	}
	if len(keep) == 0 {
		return "", fmt.Errorf("imostools: bin: no %s samples pass quality control in %s", varName, aggregatePath)
	}
	nTime := ti[0]
	pMin, pMax := pi[0], pi[0]
	for j := range keep {
		if ti[j] > nTime {
			nTime = ti[j]
		}
		if pi[j] < pMin {
			pMin = pi[j]
		}
		if pi[j] > pMax {
			pMax = pi[j]
		}
	}
	nTime++
	nBin := pMax - pMin + 1

	out := binnedDataset(agg, src, units, t0, nTime, pMin, nBin, opts)
	mean, _ := out.Var(varName)
	count, _ := out.Var(varName + "_count")
	se, _ := out.Var(varName + "_standard_error")
	qc, _ := out.Var(varName + "_quality_control")
	for i := range count.Data.Elements {
		count.Data.Elements[i] = 0
	}

	samples := make([]binSample, len(keep))
	for j, k := range keep {
		samples[j] = binSample{
			cell:  count.Data.Index1d(ti[j], pi[j]-pMin),
			value: values[k],
			flag:  flagOf(flags[k]),
		}
	}
	forEachCell(samples, func(cell int, vals []float64, worst Flag) {
		m, std := stat.PopMeanStdDev(vals, nil)
		n := float64(len(vals))
		mean.Data.Elements[cell] = m
		count.Data.Elements[cell] = n
		se.Data.Elements[cell] = stat.StdErr(std, n)
		qc.Data.Elements[cell] = float64(worst)
	})

	now := opts.Now()
	out.Attrs.Set("date_created", FormatISO(now))
	appendHistory(&out.Attrs, now, fmt.Sprintf("%s binned to %g hour and %g dbar bins from %s",
		varName, opts.TimeBinHours, opts.PresBin, filepath.Base(aggregatePath)))

	if err := os.MkdirAll(opts.OutputDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("imostools: creating output directory: %v", err)
	}
	path := filepath.Join(opts.OutputDir, binnedName(aggregatePath))
	if err := ncfile.Write(path, out); err != nil {
		return "", err
	}
	opts.Log.WithFields(logrus.Fields{
		"file":     path,
		"variable": varName,
		"samples":  len(samples),
		"time":     nTime,
		"bins":     nBin,
	}).Info("bin: wrote binned file")
	return path, nil
}

// forEachCell groups samples by cell, in cell order, and calls fn with
// the values and the worst flag of each occupied cell.
func forEachCell(samples []binSample, fn func(cell int, vals []float64, worst Flag)) {
	keys := make([]float64, len(samples))
	for i, s := range samples {
		keys[i] = float64(s.cell)
	}
	inds := make([]int, len(keys))
	floats.ArgsortStable(keys, inds)
	var vals []float64
	for i := 0; i < len(inds); {
		cell := samples[inds[i]].cell
		vals = vals[:0]
		worst := FlagUnknown
		j := i
		for ; j < len(inds) && samples[inds[j]].cell == cell; j++ {
			s := samples[inds[j]]
			vals = append(vals, s.value)
			if s.flag > worst {
				worst = s.flag
			}
		}
		fn(cell, vals, worst)
		i = j
	}
}

// samplePressure returns the pressure of every OBS sample: PRES where
// it is present and finite, and otherwise, if nominal is set, the
// nominal depth of the sample's instrument.
func samplePressure(agg *ncfile.Dataset, obs int, nominal bool) ([]float64, error) {
	out := make([]float64, obs)
	for i := range out {
		out[i] = math.NaN()
	}
	if v, err := agg.Var("PRES"); err == nil && len(v.Values()) == obs {
		copy(out, v.Values())
	}
	if !nominal {
		return out, nil
	}
	index, err := agg.Var("instrument_index")
	if err != nil {
		return nil, err
	}
	depth, err := agg.Var("NOMINAL_DEPTH")
	if err != nil {
		return out, nil
	}
	idx, d := index.Values(), depth.Values()
	for k := range out {
		if !math.IsNaN(out[k]) || k >= len(idx) {
			continue
		}
		if i := int(idx[k]); i >= 0 && i < len(d) {
			out[k] = d[i]
		}
	}
	return out, nil
}

// binnedDataset returns the output dataset with its coordinate
// variables set and its data variables filled with NaN.
func binnedDataset(agg *ncfile.Dataset, src *ncfile.Variable, units TimeUnits, t0 float64, nTime, pMin, nBin int, opts BinOptions) *ncfile.Dataset {
	out := &ncfile.Dataset{Dims: []ncfile.Dim{{Name: "TIME", Len: nTime}, {Name: "BIN", Len: nBin}}}
	out.Attrs = agg.Attrs.Copy()

	tv, _ := agg.Var("TIME")
	timeVar := ncfile.NewVariable("TIME", ncfile.Double, []string{"TIME"}, []int{nTime})
	timeVar.Attrs = tv.Attrs.Copy()
	timeVar.Attrs.Set("comment", "time bin centre")
	step := opts.TimeBinHours / units.Hours(1)
	for i := range timeVar.Data.Elements {
		timeVar.Data.Elements[i] = t0 + float64(i)*step
	}
	out.AddVar(timeVar)

	binVar := ncfile.NewVariable("BIN", ncfile.Double, []string{"BIN"}, []int{nBin})
	binVar.Attrs.Set("long_name", "pressure bin centre")
	binVar.Attrs.Set("units", "dbar")
	binVar.Attrs.Set("positive", "down")
	binVar.Attrs.Set("axis", "Z")
	for i := range binVar.Data.Elements {
		binVar.Data.Elements[i] = float64(pMin+i) * opts.PresBin
	}
	out.AddVar(binVar)

	typ := ncfile.Double
	if src.Type == ncfile.Float {
		typ = ncfile.Float
	}
	dims, shape := []string{"TIME", "BIN"}, []int{nTime, nBin}
	mean := ncfile.NewVariable(src.Name, typ, dims, shape)
	mean.Attrs = src.Attrs.Copy()
	mean.Attrs.Set("cell_methods", "TIME: mean BIN: mean")
	mean.Attrs.Set("ancillary_variables", fmt.Sprintf("%[1]s_count %[1]s_standard_error %[1]s_quality_control", src.Name))
	out.AddVar(mean)

	count := ncfile.NewVariable(src.Name+"_count", ncfile.Int, dims, shape)
	count.Attrs.Set("long_name", "number of samples in bin for "+src.Name)
	out.AddVar(count)

	se := ncfile.NewVariable(src.Name+"_standard_error", typ, dims, shape)
	se.Attrs.Set("long_name", "standard error of the mean of "+src.Name)
	if u, ok := src.Attrs.String("units"); ok {
		se.Attrs.Set("units", u)
	}
	out.AddVar(se)

	out.AddVar(newQCVariable(src.Name, dims, shape))

	out.Attrs.Set("time_coverage_start", FormatISO(units.Time(t0)))
	out.Attrs.Set("time_coverage_end", FormatISO(units.Time(timeVar.Data.Elements[nTime-1])))
	out.Attrs.Set("geospatial_vertical_min", binVar.Data.Elements[0])
	out.Attrs.Set("geospatial_vertical_max", binVar.Data.Elements[nBin-1])
	return out
}
