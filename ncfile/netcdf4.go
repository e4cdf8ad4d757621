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
	"fmt"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"
	"github.com/pkg/errors"
)

// readHDF5 reads a netCDF-4 file. Nested slices returned by the
// decoder are flattened in row-major order.
func readHDF5(path string) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	ds := new(Dataset)
	ds.Attrs = nativeAttributes(nc.Attributes())

	for _, name := range nc.ListVariables() {
		vr, err := nc.GetVariable(name)
		if err != nil {
			return nil, errors.Wrapf(err, "reading variable %s", name)
		}
		v := &Variable{
			Name:  name,
			Dims:  append([]string(nil), vr.Dimensions...),
			Attrs: nativeAttributes(vr.Attributes),
		}
		var fl flattener
		fl.collect(reflect.ValueOf(vr.Values), 0)
		v.Type = fl.typ
		shape := fl.shape
		if fl.typ == Char {
			v.Text = fl.text
			switch {
			case len(v.Dims) > len(shape):
				// The last dimension holds the characters.
				if n, ok := ds.DimLen(v.Dims[len(v.Dims)-1]); ok && n > fl.width {
					fl.width = n
				}
				shape = append(shape, fl.width)
				v.Text = fl.padded()
			case len(shape) > 0:
				// Variable-length strings are stored at their longest length.
				shape = append(shape, fl.width)
				v.Text = fl.padded()
				if len(v.Dims) > 0 {
					v.Dims = append(v.Dims, name+"_strlen")
				}
			}
		} else if len(fl.values) == 0 && len(shape) < len(v.Dims) {
			// Empty record variables carry no inner slices.
			for _, dim := range v.Dims[len(shape):] {
				n, _ := ds.DimLen(dim)
				shape = append(shape, n)
			}
		} else if n := product(shape); n != len(fl.values) {
			return nil, errors.Errorf("variable %s: ragged data, shape %v holds %d values, have %d",
				name, shape, n, len(fl.values))
		}
		if len(v.Dims) == 0 && len(shape) > 0 {
			// Datasets without dimension scales.
			v.Dims = ds.phonyDims(shape)
		}
		if err := ds.recordDims(name, v.Dims, shape); err != nil {
			return nil, err
		}
		if fl.typ != Char {
			v.Data = sparse.ZerosDense(append([]int(nil), shape...)...)
			var fv interface{}
			if f, ok := v.Attrs.Float("_FillValue"); ok {
				fv = f
			}
			decode(v.Data.Elements, fl.values, fillValue(v.Type, fv, v.Attrs))
		}
		ds.Vars = append(ds.Vars, v)
	}
	return ds, nil
}

// recordDims adds any dimensions of a variable not yet known and
// checks the lengths of those that are.
func (d *Dataset) recordDims(name string, dims []string, shape []int) error {
	if len(dims) != len(shape) {
		return errors.Errorf("variable %s has dimensions %v but data of shape %v", name, dims, shape)
	}
	for i, dim := range dims {
		n, ok := d.DimLen(dim)
		switch {
		case !ok:
			d.Dims = append(d.Dims, Dim{Name: dim, Len: shape[i]})
		case n != shape[i]:
			return errors.Errorf("variable %s: dimension %s has length %d but data has %d", name, dim, n, shape[i])
		}
	}
	return nil
}

// phonyDims names the axes of a variable stored without dimension
// scales, reusing phony dimensions of the same length.
func (d *Dataset) phonyDims(shape []int) []string {
	used := make(map[string]bool)
	out := make([]string, len(shape))
	for i, n := range shape {
		for _, dim := range d.Dims {
			if strings.HasPrefix(dim.Name, "phony_dim_") && dim.Len == n && !used[dim.Name] {
				out[i] = dim.Name
				break
			}
		}
		if out[i] == "" {
			k := 0
			for _, dim := range d.Dims {
				if strings.HasPrefix(dim.Name, "phony_dim_") {
					k++
				}
			}
			out[i] = fmt.Sprintf("phony_dim_%d", k)
			d.Dims = append(d.Dims, Dim{Name: out[i], Len: n})
		}
		used[out[i]] = true
	}
	return out
}

func product(shape []int) int {
	n := 1
	for _, l := range shape {
		n *= l
	}
	return n
}

func nativeAttributes(m api.AttributeMap) Attributes {
	if m == nil {
		return nil
	}
	var out Attributes
	for _, k := range m.Keys() {
		v, ok := m.Get(k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			out = append(out, Attribute{Name: k, Value: t})
		case []string:
			s := ""
			for i, x := range t {
				if i > 0 {
					s += "\n"
				}
				s += x
			}
			out = append(out, Attribute{Name: k, Value: s})
		default:
			var fl flattener
			fl.collect(reflect.ValueOf(v), 0)
			out = append(out, Attribute{Name: k, Value: fl.values})
		}
	}
	return out
}

// flattener walks nested slices, recording the shape and collecting
// leaf values.
type flattener struct {
	shape  []int
	values []float64
	text   []byte
	rows   []string
	width  int
	typ    Type
}

func (f *flattener) collect(rv reflect.Value, depth int) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if len(f.shape) == depth {
			f.shape = append(f.shape, rv.Len())
		}
		if rv.Len() == 0 && f.typ == 0 {
			f.typ = leafType(rv.Type())
		}
		for i := 0; i < rv.Len(); i++ {
			f.collect(rv.Index(i), depth+1)
		}
	case reflect.String:
		f.typ = Char
		s := rv.String()
		f.text = append(f.text, s...)
		f.rows = append(f.rows, s)
		if len(s) > f.width {
			f.width = len(s)
		}
	case reflect.Float64:
		f.typ = Double
		f.values = append(f.values, rv.Float())
	case reflect.Float32:
		f.typ = Float
		f.values = append(f.values, rv.Float())
	case reflect.Int8, reflect.Uint8:
		f.typ = Byte
		if rv.Kind() == reflect.Int8 {
			f.values = append(f.values, float64(rv.Int()))
		} else {
			f.values = append(f.values, float64(int8(rv.Uint())))
		}
	case reflect.Int16, reflect.Uint16:
		f.typ = Short
		f.values = append(f.values, intValue(rv))
	case reflect.Int32, reflect.Uint32, reflect.Int64, reflect.Uint64, reflect.Int:
		f.typ = Int
		f.values = append(f.values, intValue(rv))
	}
}

func intValue(rv reflect.Value) float64 {
	switch rv.Kind() {
	case reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	}
	return float64(rv.Int())
}

// padded returns the collected strings as fixed-width rows.
func (f *flattener) padded() []byte {
	out := make([]byte, len(f.rows)*f.width)
	for i, r := range f.rows {
		copy(out[i*f.width:], r)
	}
	return out
}

// leafType returns the storage type of the elements of a possibly
// nested slice type.
func leafType(t reflect.Type) Type {
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return Char
	case reflect.Float32:
		return Float
	case reflect.Int8, reflect.Uint8:
		return Byte
	case reflect.Int16, reflect.Uint16:
		return Short
	case reflect.Float64:
		return Double
	}
	return Int
}
