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

// Package ncfile holds netCDF files in memory. A file is read completely
// into a Dataset value and closed before Open returns; Write creates a new
// file from a Dataset. Missing values are represented as NaN in memory.
package ncfile

import (
	"math"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/pkg/errors"
)

var (
	// ErrNoVariable is returned when a required variable is not present
	// in a dataset.
	ErrNoVariable = errors.New("ncfile: no such variable")

	// ErrNoAttribute is returned when a required attribute is not present.
	ErrNoAttribute = errors.New("ncfile: no such attribute")
)

// Type is the storage type of a variable.
type Type int

// These are the netCDF classic storage types.
const (
	Byte Type = iota + 1
	Char
	Short
	Int
	Float
	Double
)

func (t Type) String() string {
	switch t {
	case Byte:
		return "byte"
	case Char:
		return "char"
	case Short:
		return "short"
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	}
	return "unknown"
}

// Dim is a named dimension.
type Dim struct {
	Name string
	Len  int
}

// Attribute is a named attribute value. Value is one of string,
// []float64, []float32, []int32, []int16 or []uint8.
type Attribute struct {
	Name  string
	Value interface{}
}

// Attributes is an ordered list of attributes.
type Attributes []Attribute

// Get returns the value of the named attribute.
func (a Attributes) Get(name string) (interface{}, bool) {
	for _, att := range a {
		if att.Name == name {
			return att.Value, true
		}
	}
	return nil, false
}

// String returns the named attribute if it holds text.
func (a Attributes) String(name string) (string, bool) {
	v, ok := a.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return strings.TrimRight(s, "\x00"), ok
}

// Float returns the first element of a numeric attribute.
func (a Attributes) Float(name string) (float64, bool) {
	v, ok := a.Get(name)
	if !ok {
		return math.NaN(), false
	}
	f := attrFloats(v)
	if len(f) == 0 {
		return math.NaN(), false
	}
	return f[0], true
}

// Set replaces the value of the named attribute, appending it if it
// is not already present. Scalar numbers and ints are stored as
// one-element slices.
func (a *Attributes) Set(name string, value interface{}) {
	value = normalizeAttr(value)
	for i, att := range *a {
		if att.Name == name {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Value: value})
}

// Delete removes the named attribute.
func (a *Attributes) Delete(name string) {
	out := (*a)[:0]
	for _, att := range *a {
		if att.Name != name {
			out = append(out, att)
		}
	}
	*a = out
}

// Copy returns a copy of a. Slice values are shared.
func (a Attributes) Copy() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

func normalizeAttr(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		return []float64{t}
	case float32:
		return []float32{t}
	case int:
		return []int32{int32(t)}
	case int32:
		return []int32{t}
	case int16:
		return []int16{t}
	case int8:
		return []uint8{uint8(t)}
	case uint8:
		return []uint8{t}
	case []int:
		o := make([]int32, len(t))
		for i, x := range t {
			o[i] = int32(x)
		}
		return o
	case []int8:
		o := make([]uint8, len(t))
		for i, x := range t {
			o[i] = uint8(x)
		}
		return o
	}
	return v
}

// attrFloats converts a numeric attribute value to float64s.
// Byte attributes are treated as signed.
func attrFloats(v interface{}) []float64 {
	switch t := v.(type) {
	case []float64:
		return t
	case []float32:
		o := make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
		return o
	case []int32:
		o := make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
		return o
	case []int16:
		o := make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
		return o
	case []uint8:
		o := make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(int8(x))
		}
		return o
	case []int64:
		o := make([]float64, len(t))
		for i, x := range t {
			o[i] = float64(x)
		}
		return o
	}
	return nil
}

// Variable is a netCDF variable held in memory.
type Variable struct {
	Name  string
	Dims  []string
	Type  Type
	Attrs Attributes

	// Data holds the values of numeric variables, with Data.Shape
	// equal to the dimension lengths. Scalar variables hold
	// one element.
	Data *sparse.DenseArray

	// Text holds the contents of Char variables in row-major order.
	Text []byte
}

// NewVariable returns a numeric variable with the given dimensions
// and shape whose values are all NaN.
func NewVariable(name string, typ Type, dims []string, shape []int) *Variable {
	s := make([]int, len(shape))
	copy(s, shape)
	data := sparse.ZerosDense(s...)
	for i := range data.Elements {
		data.Elements[i] = math.NaN()
	}
	d := make([]string, len(dims))
	copy(d, dims)
	return &Variable{Name: name, Type: typ, Dims: d, Data: data}
}

// NewTextVariable returns a two dimensional Char variable holding
// one row of the given width per string. Strings longer than width
// are truncated.
func NewTextVariable(name string, dims [2]string, rows []string, width int) *Variable {
	text := make([]byte, len(rows)*width)
	for i, r := range rows {
		copy(text[i*width:(i+1)*width], r)
	}
	return &Variable{Name: name, Type: Char, Dims: []string{dims[0], dims[1]}, Text: text}
}

// Values returns the flattened numeric values of v.
func (v *Variable) Values() []float64 {
	if v.Data == nil {
		return nil
	}
	return v.Data.Elements
}

// Shape returns the dimension lengths of v.
func (v *Variable) Shape() []int {
	if v.Data == nil {
		return nil
	}
	return v.Data.Shape
}

// IsScalar reports whether v has no dimensions.
func (v *Variable) IsScalar() bool { return len(v.Dims) == 0 }

// Scalar returns the first value of v.
func (v *Variable) Scalar() float64 {
	if v.Data == nil || len(v.Data.Elements) == 0 {
		return math.NaN()
	}
	return v.Data.Elements[0]
}

// Strings splits a Char variable into rows along its last dimension,
// trimming trailing NUL bytes and spaces.
func (v *Variable) Strings(width int) []string {
	if width <= 0 {
		return []string{strings.TrimRight(string(v.Text), "\x00 ")}
	}
	var out []string
	for i := 0; i+width <= len(v.Text); i += width {
		out = append(out, strings.TrimRight(string(v.Text[i:i+width]), "\x00 "))
	}
	return out
}

// Copy returns a deep copy of v.
func (v *Variable) Copy() *Variable {
	o := &Variable{
		Name:  v.Name,
		Type:  v.Type,
		Dims:  append([]string(nil), v.Dims...),
		Attrs: v.Attrs.Copy(),
	}
	if v.Data != nil {
		o.Data = v.Data.Copy()
	}
	if v.Text != nil {
		o.Text = append([]byte(nil), v.Text...)
	}
	return o
}

// Dataset is the in-memory contents of a netCDF file.
type Dataset struct {
	// Path is the file the dataset was read from, if any.
	Path  string
	Dims  []Dim
	Attrs Attributes
	Vars  []*Variable
}

// DimLen returns the length of the named dimension.
func (d *Dataset) DimLen(name string) (int, bool) {
	for _, dim := range d.Dims {
		if dim.Name == name {
			return dim.Len, true
		}
	}
	return 0, false
}

// SetDim adds a dimension or changes the length of an existing one.
func (d *Dataset) SetDim(name string, n int) {
	for i, dim := range d.Dims {
		if dim.Name == name {
			d.Dims[i].Len = n
			return
		}
	}
	d.Dims = append(d.Dims, Dim{Name: name, Len: n})
}

// Var returns the named variable, or an error wrapping ErrNoVariable.
func (d *Dataset) Var(name string) (*Variable, error) {
	for _, v := range d.Vars {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, errors.Wrapf(ErrNoVariable, "%s in %s", name, d.Path)
}

// HasVar reports whether the named variable is present.
func (d *Dataset) HasVar(name string) bool {
	_, err := d.Var(name)
	return err == nil
}

// VarByStandardName returns the first variable whose standard_name
// attribute equals name.
func (d *Dataset) VarByStandardName(name string) (*Variable, error) {
	for _, v := range d.Vars {
		if s, ok := v.Attrs.String("standard_name"); ok && s == name {
			return v, nil
		}
	}
	return nil, errors.Wrapf(ErrNoVariable, "standard_name %q in %s", name, d.Path)
}

// AddVar adds v, replacing any variable of the same name.
func (d *Dataset) AddVar(v *Variable) {
	for i, old := range d.Vars {
		if old.Name == v.Name {
			d.Vars[i] = v
			return
		}
	}
	d.Vars = append(d.Vars, v)
}

// StringAttr returns the named global text attribute, or an error
// wrapping ErrNoAttribute.
func (d *Dataset) StringAttr(name string) (string, error) {
	s, ok := d.Attrs.String(name)
	if !ok {
		return "", errors.Wrapf(ErrNoAttribute, "%s in %s", name, d.Path)
	}
	return s, nil
}

// Copy returns a deep copy of d.
func (d *Dataset) Copy() *Dataset {
	o := &Dataset{
		Path:  d.Path,
		Dims:  append([]Dim(nil), d.Dims...),
		Attrs: d.Attrs.Copy(),
	}
	for _, v := range d.Vars {
		o.Vars = append(o.Vars, v.Copy())
	}
	return o
}
