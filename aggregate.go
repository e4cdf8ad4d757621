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
	"strings"
	"time"

	"github.com/petejan/imos-tools-sub000/ncfile"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// strlen is the width of the text variables of merged files.
const strlen = 256

// forcedVariables are always carried into merged files.
var forcedVariables = []string{"LATITUDE", "LONGITUDE", "NOMINAL_DEPTH"}

// reservedNames are written by the merge itself.
var reservedNames = map[string]bool{
	"TIME": true, "instrument_index": true, "source_file": true, "instrument_type": true,
}

// AggregateOptions holds the settings of Aggregate.
type AggregateOptions struct {
	// OutputDir is the directory the merged file is written to.
	// The default is the directory of the first input file.
	OutputDir string

	// DeploymentWindow excludes samples outside each file's
	// time_deployment_start and time_deployment_end. By default
	// all samples are kept.
	DeploymentWindow bool

	// Now returns the creation time stamped on the output.
	Now func() time.Time

	Log logrus.FieldLogger
}

func (o *AggregateOptions) setDefaults(files []string) {
	if o.OutputDir == "" && len(files) > 0 {
		o.OutputDir = filepath.Dir(files[0])
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// Aggregate merges the instrument files into one time-sorted file
// with an OBS dimension for samples and an instrument dimension for
// per-file metadata, and returns the path of the new file. The order
// of files sets the instrument index of each file. Only the named
// variables, their ancillary variables, LATITUDE, LONGITUDE and
// NOMINAL_DEPTH are kept. Every file must have a variable with
// standard_name time and the time_deployment_start and
// time_deployment_end global attributes.
func Aggregate(files []string, varNames []string, opts AggregateOptions) (string, error) {
	opts.setDefaults(files)
	datasets, instruments, err := readInstruments(files, opts.Log)
	if err != nil {
		return "", err
	}
	ds, err := merge(datasets, instruments, varNames, opts)
	if err != nil {
		return "", err
	}

	name := aggregateName(datasets[0], ds, varNames, opts.Now())
	if err := os.MkdirAll(opts.OutputDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("imostools: creating output directory: %v", err)
	}
	path := filepath.Join(opts.OutputDir, name)
	if err := ncfile.Write(path, ds); err != nil {
		return "", err
	}
	opts.Log.WithFields(logrus.Fields{
		"file":        path,
		"instruments": len(files),
		"obs":         ds.Vars[0].Data.Shape[0],
	}).Info("aggregate: wrote merged file")
	return path, nil
}

// readInstruments opens every file and reads its instrument record.
func readInstruments(files []string, log logrus.FieldLogger) ([]*ncfile.Dataset, []*Instrument, error) {
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("imostools: no input files")
	}
	datasets := make([]*ncfile.Dataset, len(files))
	instruments := make([]*Instrument, len(files))
	for i, f := range files {
		ds, err := ncfile.Open(f)
		if err != nil {
			return nil, nil, err
		}
		in, err := readInstrument(ds, i)
		if err != nil {
			return nil, nil, err
		}
		datasets[i], instruments[i] = ds, in
		log.WithFields(logrus.Fields{
			"file":          in.SourceFile,
			"index":         i,
			"instrument":    in.Type(),
			"nominal_depth": in.NominalDepth,
			"samples":       len(in.Time),
		}).Info("aggregate: read instrument")
	}
	return datasets, instruments, nil
}

// retainedVariables expands the requested names with their ancillary
// variables and the forced coordinate variables.
func retainedVariables(varNames []string, datasets []*ncfile.Dataset) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		if n == "" || seen[n] || reservedNames[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
	}
	for _, name := range varNames {
		add(name)
		for _, ds := range datasets {
			v, err := ds.Var(name)
			if err != nil {
				continue
			}
			if anc, ok := v.Attrs.String("ancillary_variables"); ok {
				for _, a := range strings.Fields(anc) {
					add(a)
				}
			}
			break
		}
	}
	for _, n := range forcedVariables {
		add(n)
	}
	return out
}

// mergeOrder concatenates the sample times of all instruments and
// sorts them once. Masked samples (non-finite times, and times outside
// the deployment window when the window is applied) are dropped.
func mergeOrder(instruments []*Instrument, units TimeUnits, window bool) (*merged, []float64) {
	m := &merged{nFiles: len(instruments)}
	var times []float64
	for i, in := range instruments {
		start, end := in.deploymentWindow(units)
		for j, t := range in.timesIn(units) {
			m.file = append(m.file, i)
			m.offset = append(m.offset, j)
			times = append(times, t)
			if math.IsNaN(t) || math.IsInf(t, 0) {
				continue
			}
			if window && (t < start || t > end) {
				continue
			}
			m.order = append(m.order, len(times)-1)
		}
	}
	keys := make([]float64, len(m.order))
	for k, p := range m.order {
		keys[k] = times[p]
	}
	inds := make([]int, len(keys))
	floats.ArgsortStable(keys, inds)
	order := make([]int, len(inds))
	for k, i := range inds {
		order[k] = m.order[i]
	}
	m.order = order
	return m, keys
}

// merge builds the merged dataset in memory.
func merge(datasets []*ncfile.Dataset, instruments []*Instrument, varNames []string, opts AggregateOptions) (*ncfile.Dataset, error) {
	first := datasets[0]
	units := instruments[0].Units
	m, times := mergeOrder(instruments, units, opts.DeploymentWindow)
	if len(times) == 0 {
		return nil, fmt.Errorf("imostools: no valid samples in %d files", len(datasets))
	}

	out := &ncfile.Dataset{
		Dims: []ncfile.Dim{
			{Name: "OBS", Len: len(times)},
			{Name: "instrument", Len: len(datasets)},
			{Name: "strlen", Len: strlen},
		},
	}

	tv, _ := first.Var(instruments[0].TimeName)
	timeVar := ncfile.NewVariable("TIME", ncfile.Double, []string{"OBS"}, []int{len(times)})
	copy(timeVar.Data.Elements, times)
	timeVar.Attrs = mergedVarAttributes(tv.Attrs)
	out.AddVar(timeVar)

	index := ncfile.NewVariable("instrument_index", ncfile.Int, []string{"OBS"}, []int{len(times)})
	for k, p := range m.order {
		index.Data.Elements[k] = float64(m.file[p])
	}
	index.Attrs.Set("long_name", "which instrument this obs is for")
	index.Attrs.Set("instance_dimension", "instrument")
	out.AddVar(index)

	sources := make([]string, len(instruments))
	types := make([]string, len(instruments))
	for i, in := range instruments {
		sources[i] = in.SourceFile
		types[i] = in.Type()
	}
	src := ncfile.NewTextVariable("source_file", [2]string{"instrument", "strlen"}, sources, strlen)
	src.Attrs.Set("long_name", "source file for this instrument")
	out.AddVar(src)
	typ := ncfile.NewTextVariable("instrument_type", [2]string{"instrument", "strlen"}, types, strlen)
	typ.Attrs.Set("long_name", "source instrument make, model, serial_number")
	out.AddVar(typ)

	requested := make(map[string]bool)
	for _, n := range varNames {
		requested[n] = true
	}
	for _, name := range retainedVariables(varNames, datasets) {
		l, found, err := resolveLayout(name, datasets, instruments)
		if err != nil {
			return nil, err
		}
		if !found {
			if requested[name] {
				return nil, fmt.Errorf("imostools: %w: %s is not in any input file", ncfile.ErrNoVariable, name)
			}
			continue
		}
		if l.kind == profileLayout || l.kind == staticLayout {
			if n, ok := out.DimLen(l.dim); ok && n != l.n {
				return nil, fmt.Errorf("%w: dimension %s has lengths %d and %d", ErrShapeMismatch, l.dim, n, l.n)
			}
			out.SetDim(l.dim, l.n)
		}
		out.AddVar(l.build(datasets, m))
		opts.Log.WithFields(logrus.Fields{
			"variable": name,
			"layout":   l.kind.String(),
		}).Debug("aggregate: merged variable")
	}

	out.Attrs = mergedGlobalAttributes(first.Attrs)
	now := opts.Now()
	out.Attrs.Set("data_mode", "A")
	out.Attrs.Set("time_coverage_start", FormatISO(units.Time(times[0])))
	out.Attrs.Set("time_coverage_end", FormatISO(units.Time(times[len(times)-1])))
	setGeospatial(out)
	out.Attrs.Set("date_created", FormatISO(now))
	appendHistory(&out.Attrs, now, fmt.Sprintf("created from %d files: %s",
		len(datasets), strings.Join(varNames, ", ")))
	return out, nil
}

// aggregateName returns the IMOS name of a merged file.
func aggregateName(first, out *ncfile.Dataset, varNames []string, now time.Time) string {
	attrs := stringAttrs(first)
	fn := fileNameFor(first.Path, attrs)
	deployment := attrs["deployment_code"]
	if deployment == "" {
		deployment = fn.Platform
	}
	start, _ := out.Attrs.String("time_coverage_start")
	end, _ := out.Attrs.String("time_coverage_end")
	fn.Version = "FV02"
	fn.Product = deployment + "-Aggregate-" + strings.Join(varNames, "-")
	fn.Start = nameTime(start)
	fn.End = nameTime(end)
	fn.Created = formatName(now)
	return fn.String()
}

// nameTime converts an attribute time to the file name layout.
func nameTime(iso string) string {
	t, err := ParseISO(iso)
	if err != nil {
		return iso
	}
	return formatName(t)
}
