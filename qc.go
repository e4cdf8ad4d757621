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

	"github.com/petejan/imos-tools-sub000/ncfile"
)

// Flag is an IMOS quality control flag.
type Flag int

// IMOS quality control flag values.
const (
	FlagUnknown      Flag = 0
	FlagGood         Flag = 1
	FlagProbablyGood Flag = 2
	FlagProbablyBad  Flag = 3
	FlagBad          Flag = 4
	FlagNotDeployed  Flag = 6
	FlagInterpolated Flag = 7
	FlagMissing      Flag = 9
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagUnknown, "unknown"},
	{FlagGood, "good_data"},
	{FlagProbablyGood, "probably_good_data"},
	{FlagProbablyBad, "probably_bad_data"},
	{FlagBad, "bad_data"},
	{FlagNotDeployed, "not_deployed"},
	{FlagInterpolated, "interpolated"},
	{FlagMissing, "missing_value"},
}

func (f Flag) String() string {
	for _, n := range flagNames {
		if n.flag == f {
			return n.name
		}
	}
	return "invalid"
}

// Passes reports whether f is no worse than threshold. Missing
// flags never pass.
func (f Flag) Passes(threshold Flag) bool {
	return f != FlagMissing && f <= threshold
}

// Threshold returns a pointer to f, for the QCThreshold options.
func Threshold(f Flag) *Flag { return &f }

// flagOf converts a stored flag value. NaN (a fill value on disk)
// is treated as unknown.
func flagOf(v float64) Flag {
	if math.IsNaN(v) {
		return FlagUnknown
	}
	return Flag(v)
}

// qcAttributes returns the attributes of a quality control variable
// for the variable named varName.
func qcAttributes(varName string) ncfile.Attributes {
	values := make([]uint8, len(flagNames))
	meanings := ""
	for i, n := range flagNames {
		values[i] = uint8(n.flag)
		if i > 0 {
			meanings += " "
		}
		meanings += n.name
	}
	var a ncfile.Attributes
	a.Set("long_name", "quality_code for "+varName)
	a.Set("_FillValue", int8(99))
	a.Set("quality_control_conventions", "IMOS standard flags")
	a.Set("flag_values", values)
	a.Set("flag_meanings", meanings)
	return a
}

// newQCVariable returns a byte flag variable initialised to missing.
func newQCVariable(varName string, dims []string, shape []int) *ncfile.Variable {
	v := ncfile.NewVariable(varName+"_quality_control", ncfile.Byte, dims, shape)
	for i := range v.Data.Elements {
		v.Data.Elements[i] = float64(FlagMissing)
	}
	v.Attrs = qcAttributes(varName)
	return v
}
