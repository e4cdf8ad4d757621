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
	"math"
	"path/filepath"
	"testing"
)

// testdata/types.nc is an HDF5 file without dimension scales holding
// scalar, one-element and 2×2 variables of every numeric type.
func TestOpenNetCDF4(t *testing.T) {
	ds, err := Open("testdata/types.nc")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		typ   Type
		shape []int
		want  []float64
	}{
		{name: "f64", typ: Double, want: []float64{-10.1}},
		{name: "i16", typ: Short, want: []float64{-10000}},
		{name: "f32x1", typ: Float, shape: []int{1}, want: []float64{-10.1}},
		{name: "f32x2", typ: Float, shape: []int{2, 2}, want: []float64{-10.1, 10.1, -20.2, 20.2}},
		{name: "f64x2", typ: Double, shape: []int{2, 2}, want: []float64{-10.1, 10.1, -20.2, 20.2}},
		{name: "i8x2", typ: Byte, shape: []int{2, 2}, want: []float64{-10, 10, -20, 20}},
		{name: "ui16x2", typ: Short, shape: []int{2, 2}, want: []float64{10000, 20000, 20000, 30000}},
		{name: "i32x2", typ: Int, shape: []int{2, 2}, want: []float64{-1e7, 1e7, -2e7, 2e7}},
		{name: "ui64x2", typ: Int, shape: []int{2, 2}, want: []float64{1e10, 2e10, 2e10, 3e10}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := ds.Var(test.name)
			if err != nil {
				t.Fatal(err)
			}
			if v.Type != test.typ {
				t.Errorf("type %v, want %v", v.Type, test.typ)
			}
			if len(v.Dims) != len(test.shape) {
				t.Fatalf("dims %v, want %d", v.Dims, len(test.shape))
			}
			for i, d := range v.Dims {
				if n, ok := ds.DimLen(d); !ok || n != test.shape[i] {
					t.Errorf("dimension %s has length %d, want %d", d, n, test.shape[i])
				}
			}
			if len(v.Dims) == 2 && v.Dims[0] == v.Dims[1] {
				t.Errorf("both axes share dimension %s", v.Dims[0])
			}
			got := v.Values()
			if len(got) != len(test.want) {
				t.Fatalf("values %v, want %v", got, test.want)
			}
			for i := range got {
				if math.Abs(got[i]-test.want[i]) > 1e-5 {
					t.Errorf("value %d: %g != %g", i, got[i], test.want[i])
				}
			}
		})
	}
	if v, _ := ds.Var("f64"); !v.IsScalar() {
		t.Errorf("f64 has dimensions %v", v.Dims)
	}
}

func TestWriteNoVariables(t *testing.T) {
	ds, err := Open("testdata/novars.nc")
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Vars) != 0 {
		t.Fatalf("have %d variables", len(ds.Vars))
	}
	if err := Write(filepath.Join(t.TempDir(), "empty.nc"), ds); err == nil {
		t.Error("expected an error for a dataset without variables")
	}
}

func TestPhonyDims(t *testing.T) {
	ds := new(Dataset)
	a := ds.phonyDims([]int{2, 2})
	b := ds.phonyDims([]int{2, 3})
	if a[0] == a[1] {
		t.Errorf("axes of one variable share %s", a[0])
	}
	if b[0] != a[0] {
		t.Errorf("length-2 dimension not reused: %v, %v", a, b)
	}
	if n, _ := ds.DimLen(b[1]); n != 3 {
		t.Errorf("%s has length %d", b[1], n)
	}
	if err := ds.recordDims("x", []string{"phony_dim_0"}, []int{5}); err == nil {
		t.Error("expected an error for a conflicting dimension length")
	}
	if err := ds.recordDims("x", nil, []int{2, 2}); err == nil {
		t.Error("expected an error for a shape without dimensions")
	}
}
