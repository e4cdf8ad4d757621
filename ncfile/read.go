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
	"bytes"
	"io"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/pkg/errors"
)

var (
	classicMagic = []byte("CDF")
	hdf5Magic    = []byte("\x89HDF")
)

// Open reads the netCDF file at path into memory. Classic (CDF-1 and
// CDF-2) files and netCDF-4 (HDF5) files are supported. The file is
// closed before Open returns.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "ncfile: opening file")
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, errors.Wrapf(err, "ncfile: reading header of %s", path)
	}
	switch {
	case bytes.HasPrefix(magic, classicMagic):
		ds, err := readClassic(f)
		if err != nil {
			return nil, errors.Wrapf(err, "ncfile: reading %s", path)
		}
		ds.Path = path
		return ds, nil
	case bytes.Equal(magic, hdf5Magic):
		f.Close()
		ds, err := readHDF5(path)
		if err != nil {
			return nil, errors.Wrapf(err, "ncfile: reading %s", path)
		}
		ds.Path = path
		return ds, nil
	}
	return nil, errors.Errorf("ncfile: %s is not a netCDF file", path)
}

func readClassic(f *os.File) (*Dataset, error) {
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	h := nc.Header
	nrec := int(h.NumRecs(fi.Size()))

	ds := new(Dataset)
	for i, name := range h.Dimensions("") {
		n := h.Lengths("")[i]
		if n == 0 {
			n = nrec
		}
		ds.Dims = append(ds.Dims, Dim{Name: name, Len: n})
	}
	for _, a := range h.Attributes("") {
		ds.Attrs = append(ds.Attrs, Attribute{Name: a, Value: h.GetAttribute("", a)})
	}

	for _, name := range h.Variables() {
		v := &Variable{Name: name, Dims: h.Dimensions(name)}
		for _, a := range h.Attributes(name) {
			v.Attrs = append(v.Attrs, Attribute{Name: a, Value: h.GetAttribute(name, a)})
		}
		shape := append([]int(nil), h.Lengths(name)...)
		if h.IsRecordVariable(name) {
			shape[0] = nrec
		}
		n := 1
		for _, l := range shape {
			n *= l
		}

		var end []int
		if h.IsRecordVariable(name) && n > 0 {
			end = make([]int, len(shape))
			for i, l := range shape {
				end[i] = l - 1
			}
		}

		var raw interface{}
		switch h.ZeroValue(name, 0).(type) {
		case string:
			v.Type = Char
			raw = make([]uint8, n)
		case []uint8:
			v.Type = Byte
			raw = make([]uint8, n)
		case []int16:
			v.Type = Short
			raw = make([]int16, n)
		case []int32:
			v.Type = Int
			raw = make([]int32, n)
		case []float32:
			v.Type = Float
			raw = make([]float32, n)
		case []float64:
			v.Type = Double
			raw = make([]float64, n)
		default:
			return nil, errors.Errorf("variable %s has an unsupported type", name)
		}
		if n > 0 {
			r := nc.Reader(name, nil, end)
			if _, err := r.Read(raw); err != nil && err != io.EOF {
				return nil, errors.Wrapf(err, "reading variable %s", name)
			}
		}
		if v.Type == Char {
			v.Text = raw.([]uint8)
		} else {
			v.Data = sparse.ZerosDense(shape...)
			fill := fillValue(v.Type, h.FillValue(name), v.Attrs)
			decode(v.Data.Elements, raw, fill)
		}
		ds.Vars = append(ds.Vars, v)
	}
	return ds, nil
}

// fillValue returns the missing-data marker for a variable as float64.
func fillValue(t Type, fv interface{}, attrs Attributes) []float64 {
	var out []float64
	switch x := fv.(type) {
	case int8:
		out = append(out, float64(x))
	case uint8:
		out = append(out, float64(int8(x)))
	case int16:
		out = append(out, float64(x))
	case int32:
		out = append(out, float64(x))
	case float32:
		out = append(out, float64(x))
	case float64:
		out = append(out, x)
	}
	if mv, ok := attrs.Get("missing_value"); ok {
		out = append(out, attrFloats(mv)...)
	}
	if t == Float || t == Double {
		out = append(out, defaultFill(Double))
	}
	return out
}

// defaultFill returns the netCDF default fill value of type t.
func defaultFill(t Type) float64 {
	switch t {
	case Byte:
		return -127
	case Short:
		return -32767
	case Int:
		return -2147483647
	case Float:
		return float64(float32(9.9692099683868690e+36))
	}
	return 9.9692099683868690e+36
}

func isFill(x float64, fill []float64) bool {
	for _, f := range fill {
		if x == f {
			return true
		}
	}
	return false
}

// decode converts raw values to float64, replacing fill values by NaN.
func decode(dst []float64, raw interface{}, fill []float64) {
	set := func(i int, x float64) {
		if isFill(x, fill) {
			x = math.NaN()
		}
		dst[i] = x
	}
	switch r := raw.(type) {
	case []uint8:
		for i, x := range r {
			set(i, float64(int8(x)))
		}
	case []int16:
		for i, x := range r {
			set(i, float64(x))
		}
	case []int32:
		for i, x := range r {
			set(i, float64(x))
		}
	case []float32:
		for i, x := range r {
			set(i, float64(x))
		}
	case []float64:
		for i, x := range r {
			set(i, x)
		}
	}
}
