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

package ncfile

import (
	"io"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/pkg/errors"
)

// Write creates a new classic-format netCDF file at path holding the
// contents of ds. Variables and attributes are written in the order
// they appear in ds, so identical datasets produce identical files.
// NaN values of integer variables are written as the variable's fill
// value.
func Write(path string, ds *Dataset) error {
	h, err := header(ds)
	if err != nil {
		return errors.Wrapf(err, "ncfile: defining %s", path)
	}

	w, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "ncfile: creating output file")
	}
	defer w.Close()

	f, err := cdf.Create(w, h)
	if err != nil {
		return errors.Wrapf(err, "ncfile: writing header of %s", path)
	}
	for _, v := range ds.Vars {
		size := 1
		for _, d := range v.Dims {
			n, _ := ds.DimLen(d)
			size *= n
		}
		if err := writeVar(f, v, size); err != nil {
			return errors.Wrapf(err, "ncfile: writing variable %s to %s", v.Name, path)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		return errors.Wrapf(err, "ncfile: finishing %s", path)
	}
	return w.Close()
}

// header builds a cdf header. The cdf package panics on invalid
// definitions, so they are checked here first.
func header(ds *Dataset) (*cdf.Header, error) {
	if len(ds.Vars) == 0 {
		return nil, errors.New("dataset has no variables")
	}
	names := make([]string, len(ds.Dims))
	lengths := make([]int, len(ds.Dims))
	records := 0
	for i, d := range ds.Dims {
		names[i] = d.Name
		lengths[i] = d.Len
		if d.Len == 0 {
			records++
		}
	}
	if records > 1 {
		return nil, errors.New("more than one dimension has zero length")
	}
	h := cdf.NewHeader(names, lengths)
	for _, a := range ds.Attrs {
		val, err := attrValue(a.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "global attribute %s", a.Name)
		}
		h.AddAttribute("", a.Name, val)
	}
	seen := make(map[string]bool)
	for _, v := range ds.Vars {
		if seen[v.Name] {
			return nil, errors.Errorf("repeated variable %s", v.Name)
		}
		seen[v.Name] = true
		for i, d := range v.Dims {
			n, ok := ds.DimLen(d)
			if !ok {
				return nil, errors.Errorf("variable %s uses undefined dimension %s", v.Name, d)
			}
			if n == 0 && i != 0 {
				return nil, errors.Errorf("variable %s: zero-length dimension %s is not outermost", v.Name, d)
			}
			if v.Type != Char && v.Data != nil && v.Data.Shape[i] != n {
				return nil, errors.Errorf("variable %s: dimension %s has length %d but data has %d",
					v.Name, d, n, v.Data.Shape[i])
			}
		}
		h.AddVariable(v.Name, v.Dims, zeroOf(v.Type))
		attSeen := make(map[string]bool)
		for _, a := range v.Attrs {
			if attSeen[a.Name] {
				continue
			}
			attSeen[a.Name] = true
			val, err := attrValue(a.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "attribute %s:%s", v.Name, a.Name)
			}
			if a.Name == "_FillValue" || a.Name == "valid_min" || a.Name == "valid_max" {
				val = typedAttr(v.Type, val)
			}
			h.AddAttribute(v.Name, a.Name, val)
		}
	}
	h.Define()
	return h, nil
}

func zeroOf(t Type) interface{} {
	switch t {
	case Byte:
		return []uint8{0}
	case Char:
		return ""
	case Short:
		return []int16{0}
	case Int:
		return []int32{0}
	case Float:
		return []float32{0}
	}
	return []float64{0}
}

// typedAttr converts a numeric attribute to the storage type of its
// variable.
func typedAttr(t Type, v interface{}) interface{} {
	f := attrFloats(v)
	if f == nil || t == Char {
		return v
	}
	switch t {
	case Byte:
		o := make([]uint8, len(f))
		for i, x := range f {
			o[i] = uint8(int8(x))
		}
		return o
	case Short:
		o := make([]int16, len(f))
		for i, x := range f {
			o[i] = int16(x)
		}
		return o
	case Int:
		o := make([]int32, len(f))
		for i, x := range f {
			o[i] = int32(x)
		}
		return o
	case Float:
		o := make([]float32, len(f))
		for i, x := range f {
			o[i] = float32(x)
		}
		return o
	}
	return f
}

func attrValue(v interface{}) (interface{}, error) {
	v = normalizeAttr(v)
	switch v.(type) {
	case string, []uint8, []int16, []int32, []float32, []float64:
		return v, nil
	}
	return nil, errors.Errorf("unsupported attribute type %T", v)
}

func writeVar(f *cdf.File, v *Variable, size int) error {
	var data interface{}
	n := size
	if v.Type == Char {
		text := make([]byte, size)
		copy(text, v.Text)
		data = text
	} else {
		vals := v.Values()
		if len(vals) != size {
			return errors.Errorf("have %d values, want %d", len(vals), size)
		}
		fill := writeFill(v)
		switch v.Type {
		case Byte:
			o := make([]uint8, n)
			for i, x := range vals {
				if math.IsNaN(x) {
					x = fill
				}
				o[i] = uint8(int8(x))
			}
			data = o
		case Short:
			o := make([]int16, n)
			for i, x := range vals {
				if math.IsNaN(x) {
					x = fill
				}
				o[i] = int16(x)
			}
			data = o
		case Int:
			o := make([]int32, n)
			for i, x := range vals {
				if math.IsNaN(x) {
					x = fill
				}
				o[i] = int32(x)
			}
			data = o
		case Float:
			o := make([]float32, n)
			for i, x := range vals {
				if math.IsNaN(x) {
					x = fill
				}
				o[i] = float32(x)
			}
			data = o
		default:
			o := make([]float64, n)
			for i, x := range vals {
				if math.IsNaN(x) {
					x = fill
				}
				o[i] = x
			}
			data = o
		}
	}
	if n == 0 {
		return nil
	}
	w := f.Writer(v.Name, nil, nil)
	// Writing up to the end of a fixed-size variable reports io.EOF.
	if _, err := w.Write(data); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// writeFill returns the value written in place of NaN: the _FillValue
// attribute if set, otherwise the type default for integer types and
// NaN for floating point types.
func writeFill(v *Variable) float64 {
	if f, ok := v.Attrs.Float("_FillValue"); ok {
		return f
	}
	switch v.Type {
	case Float, Double:
		return math.NaN()
	}
	return defaultFill(v.Type)
}
