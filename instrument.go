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
	"path/filepath"
	"time"

	"github.com/petejan/imos-tools-sub000/ncfile"
)

// Instrument describes one input file: one instrument deployed at a
// fixed nominal depth.
type Instrument struct {
	Index        int
	Model        string
	Serial       string
	NominalDepth float64
	SourceFile   string

	// TimeName is the name of the variable whose standard_name is
	// time, and TimeDim its dimension.
	TimeName string
	TimeDim  string
	Units    TimeUnits

	// Time holds the sample times in Units.
	Time []float64

	DeploymentStart time.Time
	DeploymentEnd   time.Time
}

// Type returns the instrument description stored in aggregate files.
func (in *Instrument) Type() string {
	return in.Model + "-" + in.Serial
}

// readInstrument extracts the instrument record of a dataset. The
// time variable and the deployment window attributes are required.
func readInstrument(ds *ncfile.Dataset, index int) (*Instrument, error) {
	in := &Instrument{
		Index:        index,
		SourceFile:   filepath.Base(ds.Path),
		NominalDepth: math.NaN(),
	}
	tv, err := ds.VarByStandardName("time")
	if err != nil {
		return nil, fmt.Errorf("imostools: reading instrument %d: %w", index, err)
	}
	if len(tv.Dims) != 1 {
		return nil, fmt.Errorf("imostools: time variable %s in %s is not one dimensional", tv.Name, ds.Path)
	}
	in.TimeName = tv.Name
	in.TimeDim = tv.Dims[0]
	units, ok := tv.Attrs.String("units")
	if !ok {
		units = defaultTimeUnits
	}
	if in.Units, err = ParseTimeUnits(units); err != nil {
		return nil, err
	}
	in.Time = tv.Values()

	start, err := ds.StringAttr("time_deployment_start")
	if err != nil {
		return nil, fmt.Errorf("imostools: reading instrument %d: %w", index, err)
	}
	end, err := ds.StringAttr("time_deployment_end")
	if err != nil {
		return nil, fmt.Errorf("imostools: reading instrument %d: %w", index, err)
	}
	if in.DeploymentStart, err = ParseISO(start); err != nil {
		return nil, err
	}
	if in.DeploymentEnd, err = ParseISO(end); err != nil {
		return nil, err
	}

	in.Model, _ = ds.Attrs.String("instrument")
	if in.Model == "" {
		in.Model, _ = ds.Attrs.String("instrument_model")
	}
	in.Serial, _ = ds.Attrs.String("instrument_serial_number")

	if v, err := ds.Var("NOMINAL_DEPTH"); err == nil {
		in.NominalDepth = v.Scalar()
	} else if d, ok := ds.Attrs.Float("instrument_nominal_depth"); ok {
		in.NominalDepth = d
	}
	return in, nil
}

// timesIn returns the sample times converted to units u.
func (in *Instrument) timesIn(u TimeUnits) []float64 {
	out := make([]float64, len(in.Time))
	for i, t := range in.Time {
		out[i] = in.Units.Convert(t, u)
	}
	return out
}

// deploymentWindow returns the deployment window in units u.
func (in *Instrument) deploymentWindow(u TimeUnits) (start, end float64) {
	return u.Value(in.DeploymentStart), u.Value(in.DeploymentEnd)
}
