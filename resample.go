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
	"gonum.org/v1/gonum/stat"
)

// Resampling methods.
const (
	ResampleMean    = "mean"
	ResampleNearest = "nearest"
	ResampleLowess  = "lowess"
)

// resampleVariables are the variables resampled by default.
var resampleVariables = []string{
	"TEMP", "PSAL", "CNDC", "PRES", "PRES_REL", "DEPTH", "DENSITY", "SIGMA_T0",
	"DOX", "DOX2", "DOXS", "DOXY", "CPHL", "CHLF", "TURB", "BB", "PAR",
	"UCUR", "VCUR", "WCUR", "NTRI", "PHOS", "SLCA", "PCO2", "XCO2_WATER",
}

// coordinateVariables are copied, or sampled at the nearest time if
// they vary in time.
var coordinateVariables = []string{"LATITUDE", "LONGITUDE", "NOMINAL_DEPTH"}

// ResampleOptions holds the settings of Resample.
type ResampleOptions struct {
	// OutputDir is the directory the resampled file is written to. The
	// default is the directory of the input file.
	OutputDir string

	// SampleHours is the spacing of the output time axis. The
	// default is 1.
	SampleHours float64

	// Method is one of ResampleMean (the default), ResampleNearest or
	// ResampleLowess.
	Method string

	// QCThreshold is the worst flag a sample may carry and still be
	// used. Nil means FlagProbablyGood.
	QCThreshold *Flag

	// Variables lists the variables to resample. The default is a
	// table of IMOS variable names.
	Variables []string

	// Now returns the creation time stamped on the output.
	Now func() time.Time

	Log logrus.FieldLogger
}

func (o *ResampleOptions) setDefaults(path string) error {
	if o.OutputDir == "" {
		o.OutputDir = filepath.Dir(path)
	}
	if o.SampleHours <= 0 {
		o.SampleHours = 1
	}
	switch o.Method {
	case "":
		o.Method = ResampleMean
	case ResampleMean, ResampleNearest, ResampleLowess:
	default:
		return fmt.Errorf("imostools: unknown resampling method %q", o.Method)
	}
	if o.QCThreshold == nil {
		o.QCThreshold = Threshold(FlagProbablyGood)
	}
	if len(o.Variables) == 0 {
		o.Variables = resampleVariables
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return nil
}

// Resample computes one instrument file on a regular time axis of
// SampleHours spacing spanning the deployment and returns the path of
// the new file. The axis starts at the first whole hour of the
// deployment. Each output time summarises the good samples within
// half a spacing of it with the chosen method, together with their
// standard deviation, their number and their worst flag. Times with
// no samples are NaN.
func Resample(path string, opts ResampleOptions) (string, error) {
	if err := opts.setDefaults(path); err != nil {
		return "", err
	}
	ds, err := ncfile.Open(path)
	if err != nil {
		return "", err
	}
	in, err := readInstrument(ds, 0)
	if err != nil {
		return "", err
	}
	start := in.DeploymentStart.Truncate(time.Hour)
	if start.Before(in.DeploymentStart) {
		start = start.Add(time.Hour)
	}
	step := time.Duration(opts.SampleHours * float64(time.Hour))
	n := int(in.DeploymentEnd.Sub(start)/step) + 1
	if in.DeploymentEnd.Before(start) || n <= 0 {
		return "", fmt.Errorf("imostools: resample: deployment of %s is shorter than one sample", path)
	}
	// Sample times in hours from the start of the axis.
	offset := in.Units.Value(start)
	hours := make([]float64, len(in.Time))
	for i, t := range in.Time {
		hours[i] = in.Units.Hours(t - offset)
	}

	out := &ncfile.Dataset{}
	for _, d := range ds.Dims {
		if d.Name == in.TimeDim {
			d.Len = n
		}
		out.Dims = append(out.Dims, d)
	}
	out.Attrs = ds.Attrs.Copy()

	tv, _ := ds.Var(in.TimeName)
	timeVar := ncfile.NewVariable(in.TimeName, ncfile.Double, []string{in.TimeDim}, []int{n})
	timeVar.Attrs = tv.Attrs.Copy()
	for k := range timeVar.Data.Elements {
		timeVar.Data.Elements[k] = in.Units.Value(start.Add(time.Duration(k) * step))
	}
	out.AddVar(timeVar)

	allowed := make(map[string]bool)
	for _, v := range opts.Variables {
		allowed[v] = true
	}
	coord := make(map[string]bool)
	for _, v := range coordinateVariables {
		coord[v] = true
	}

	var resampled []string
	for _, v := range ds.Vars {
		timed := len(v.Dims) > 0 && v.Dims[0] == in.TimeDim
		switch {
		case v.Name == in.TimeName:
		case coord[v.Name] && timed:
			out.AddVar(nearestCoordinate(v, hours, n, opts.SampleHours))
		case !timed:
			out.AddVar(v.Copy())
		case allowed[v.Name] && len(v.Dims) == 1 && v.Type != ncfile.Char:
			var flags []float64
			if qc, err := ds.Var(v.Name + "_quality_control"); err == nil && len(qc.Values()) == len(hours) {
				flags = qc.Values()
			}
			for _, r := range resampleVariable(v, flags, hours, n, opts) {
				out.AddVar(r)
			}
			resampled = append(resampled, v.Name)
		}
	}

	now := opts.Now()
	end := start.Add(time.Duration(n-1) * step)
	out.Attrs.Set("file_version", "Level 2 - Derived Products")
	out.Attrs.Set("time_coverage_start", FormatISO(start))
	out.Attrs.Set("time_coverage_end", FormatISO(end))
	out.Attrs.Set("date_created", FormatISO(now))
	appendHistory(&out.Attrs, now, fmt.Sprintf("resampled to %g hour %s from %s",
		opts.SampleHours, opts.Method, filepath.Base(path)))

	if err := os.MkdirAll(opts.OutputDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("imostools: creating output directory: %v", err)
	}
	name := resampledName(path, opts.SampleHours, opts.Method, start, end, now)
	outPath := filepath.Join(opts.OutputDir, name)
	if filepath.Clean(outPath) == filepath.Clean(path) {
		return "", fmt.Errorf("imostools: resample: output would overwrite %s", path)
	}
	if err := ncfile.Write(outPath, out); err != nil {
		return "", err
	}
	opts.Log.WithFields(logrus.Fields{
		"file":      outPath,
		"method":    opts.Method,
		"samples":   n,
		"variables": resampled,
	}).Info("resample: wrote resampled file")
	return outPath, nil
}

// resampleVariable returns the resampled variable and its companions.
func resampleVariable(v *ncfile.Variable, flags, hours []float64, n int, opts ResampleOptions) []*ncfile.Variable {
	dims, shape := []string{v.Dims[0]}, []int{n}
	typ := ncfile.Double
	if v.Type == ncfile.Float {
		typ = ncfile.Float
	}
	value := ncfile.NewVariable(v.Name, typ, dims, shape)
	value.Attrs = v.Attrs.Copy()
	value.Attrs.Delete("_FillValue")
	value.Attrs.Set("cell_methods", fmt.Sprintf("%s: %s", v.Dims[0], opts.Method))
	value.Attrs.Set("ancillary_variables", fmt.Sprintf(
		"%[1]s_standard_deviation %[1]s_number_of_observations %[1]s_quality_control", v.Name))

	std := ncfile.NewVariable(v.Name+"_standard_deviation", typ, dims, shape)
	std.Attrs.Set("long_name", "standard deviation of "+v.Name)
	if u, ok := v.Attrs.String("units"); ok {
		std.Attrs.Set("units", u)
	}
	count := ncfile.NewVariable(v.Name+"_number_of_observations", ncfile.Int, dims, shape)
	count.Attrs.Set("long_name", "number of observations of "+v.Name)
	qc := newQCVariable(v.Name, dims, shape)

	// Usable samples, sorted by time.
	var x, y []float64
	var f []Flag
	vals := v.Values()
	for i, h := range hours {
		flag := FlagUnknown
		if flags != nil {
			flag = flagOf(flags[i])
		}
		if math.IsNaN(h) || math.IsNaN(vals[i]) || !flag.Passes(*opts.QCThreshold) {
			continue
		}
		x = append(x, h)
		y = append(y, vals[i])
		f = append(f, flag)
	}
	inds := make([]int, len(x))
	floats.ArgsortStable(x, inds)
	ys := make([]float64, len(y))
	fs := make([]Flag, len(f))
	for k, i := range inds {
		ys[k], fs[k] = y[i], f[i]
	}

	w := opts.SampleHours
	for k := 0; k < n; k++ {
		centre := float64(k) * w
		// Times are rounded to the second before binning.
		lo := sort.SearchFloat64s(x, centre-w/2-1.0/3600)
		for lo < len(x) && timeBinIndex(x[lo]-centre, w) < 0 {
			lo++
		}
		hi := lo
		for hi < len(x) && timeBinIndex(x[hi]-centre, w) == 0 {
			hi++
		}
		count.Data.Elements[k] = float64(hi - lo)
		if hi == lo {
			continue
		}
		worst := FlagUnknown
		for _, fl := range fs[lo:hi] {
			if fl > worst {
				worst = fl
			}
		}
		qc.Data.Elements[k] = float64(worst)
		m, sd := stat.PopMeanStdDev(ys[lo:hi], nil)
		std.Data.Elements[k] = sd
		switch opts.Method {
		case ResampleMean:
			value.Data.Elements[k] = m
		case ResampleNearest:
			value.Data.Elements[k] = nearest(x[lo:hi], ys[lo:hi], centre)
		case ResampleLowess:
			a := sort.SearchFloat64s(x, centre-w)
			b := sort.SearchFloat64s(x, centre+w)
			value.Data.Elements[k] = lowess(x[a:b], ys[a:b], centre, w)
		}
	}
	return []*ncfile.Variable{value, std, count, qc}
}

// nearest returns the y of the x closest to centre. x is sorted; ties
// go to the earlier sample.
func nearest(x, y []float64, centre float64) float64 {
	best := 0
	for i := range x {
		if math.Abs(x[i]-centre) < math.Abs(x[best]-centre) {
			best = i
		}
	}
	return y[best]
}

// lowess returns the value at centre of a tricube-weighted local
// linear fit over samples within span of centre, falling back to the
// weighted mean when the fit is degenerate.
func lowess(x, y []float64, centre, span float64) float64 {
	dx := make([]float64, len(x))
	w := make([]float64, len(x))
	for i := range x {
		dx[i] = x[i] - centre
		d := math.Abs(dx[i]) / span
		if d < 1 {
			c := 1 - d*d*d
			w[i] = c * c * c
		}
	}
	if len(x) >= 3 {
		alpha, _ := stat.LinearRegression(dx, y, w, false)
		if !math.IsNaN(alpha) && !math.IsInf(alpha, 0) {
			return alpha
		}
	}
	return stat.Mean(y, w)
}

// nearestCoordinate samples a time-varying coordinate at the nearest
// finite value to each output time.
func nearestCoordinate(v *ncfile.Variable, hours []float64, n int, step float64) *ncfile.Variable {
	out := ncfile.NewVariable(v.Name, v.Type, v.Dims[:1], []int{n})
	out.Attrs = v.Attrs.Copy()
	vals := v.Values()
	var x, y []float64
	for i, h := range hours {
		if !math.IsNaN(h) && i < len(vals) && !math.IsNaN(vals[i]) {
			x = append(x, h)
			y = append(y, vals[i])
		}
	}
	if len(x) == 0 {
		return out
	}
	inds := make([]int, len(x))
	floats.ArgsortStable(x, inds)
	ys := make([]float64, len(y))
	for k, i := range inds {
		ys[k] = y[i]
	}
	for k := range out.Data.Elements {
		centre := float64(k) * step
		i := sort.SearchFloat64s(x, centre)
		switch {
		case i == len(x):
			i--
		case i > 0 && centre-x[i-1] <= x[i]-centre:
			i--
		}
		out.Data.Elements[k] = ys[i]
	}
	return out
}
