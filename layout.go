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

	"github.com/petejan/imos-tools-sub000/ncfile"
	"github.com/pkg/errors"
)

// ErrShapeMismatch is returned when a variable has different shapes
// in the files being merged.
var ErrShapeMismatch = errors.New("imostools: variable shape differs between files")

// layoutKind is the way a variable is stored in a merged file.
type layoutKind int

const (
	// scalarLayout is a 0-D variable, stored once per instrument.
	scalarLayout layoutKind = iota
	// seriesLayout is a variable over time, stored along OBS.
	seriesLayout
	// profileLayout is a variable over time and a second dimension
	// such as a current meter cell, stored along OBS × cell.
	profileLayout
	// staticLayout is a 1-D variable over a dimension other than
	// time, stored along instrument × dimension.
	staticLayout
)

func (k layoutKind) String() string {
	return [...]string{"scalar", "series", "profile", "static"}[k]
}

// varLayout is the merged layout of one variable, resolved from all
// input files before any data are copied.
type varLayout struct {
	name  string
	kind  layoutKind
	typ   ncfile.Type
	attrs ncfile.Attributes

	// dim and n are the inner dimension of profile and static
	// variables.
	dim string
	n   int

	// from is the file that defined the layout.
	from string
}

// classify returns the layout of v in a file whose time dimension is
// timeDim.
func classify(v *ncfile.Variable, timeDim string) (kind layoutKind, dim string, n int, err error) {
	switch {
	case len(v.Dims) == 0:
		return scalarLayout, "", 0, nil
	case len(v.Dims) == 1 && v.Dims[0] == timeDim:
		return seriesLayout, "", 0, nil
	case len(v.Dims) == 2 && v.Dims[0] == timeDim:
		return profileLayout, v.Dims[1], v.Shape()[1], nil
	case len(v.Dims) == 1:
		return staticLayout, v.Dims[0], v.Shape()[0], nil
	}
	return 0, "", 0, fmt.Errorf("imostools: variable %s has unsupported dimensions %v", v.Name, v.Dims)
}

// resolveLayout finds the layout of the named variable. The first
// file holding the variable supplies its type and attributes; every
// other file holding it must agree. found is false if no file holds
// the variable.
func resolveLayout(name string, datasets []*ncfile.Dataset, instruments []*Instrument) (l *varLayout, found bool, err error) {
	for i, ds := range datasets {
		v, err := ds.Var(name)
		if err != nil {
			continue
		}
		if v.Type == ncfile.Char {
			return nil, true, fmt.Errorf("imostools: text variable %s cannot be merged", name)
		}
		kind, dim, n, err := classify(v, instruments[i].TimeDim)
		if err != nil {
			return nil, true, err
		}
		if kind == seriesLayout || kind == profileLayout {
			if v.Shape()[0] != len(instruments[i].Time) {
				return nil, true, fmt.Errorf("%w: %s in %s has %d samples but time has %d",
					ErrShapeMismatch, name, ds.Path, v.Shape()[0], len(instruments[i].Time))
			}
		}
		if l == nil {
			l = &varLayout{
				name:  name,
				kind:  kind,
				typ:   v.Type,
				attrs: mergedVarAttributes(v.Attrs),
				dim:   dim,
				n:     n,
				from:  ds.Path,
			}
			continue
		}
		if kind != l.kind || n != l.n {
			return nil, true, fmt.Errorf("%w: %s is %s[%d] in %s but %s[%d] in %s", ErrShapeMismatch,
				name, kind, n, ds.Path, l.kind, l.n, l.from)
		}
	}
	return l, l != nil, nil
}

// merged holds the global sample order of a merge.
type merged struct {
	// order lists, for each OBS position, the position of the sample
	// in the concatenation of all input files.
	order []int
	// file and offset map a concatenated position to its file and
	// the sample index within that file.
	file   []int
	offset []int
	nFiles int
}

// build copies the variable's values from every file into its merged
// layout. Files lacking the variable contribute NaN.
func (l *varLayout) build(datasets []*ncfile.Dataset, m *merged) *ncfile.Variable {
	var out *ncfile.Variable
	switch l.kind {
	case scalarLayout:
		out = ncfile.NewVariable(l.name, l.typ, []string{"instrument"}, []int{m.nFiles})
		for i, ds := range datasets {
			if v, err := ds.Var(l.name); err == nil {
				out.Data.Elements[i] = v.Scalar()
			}
		}
	case staticLayout:
		out = ncfile.NewVariable(l.name, l.typ, []string{"instrument", l.dim}, []int{m.nFiles, l.n})
		for i, ds := range datasets {
			if v, err := ds.Var(l.name); err == nil {
				copy(out.Data.Elements[i*l.n:(i+1)*l.n], v.Values())
			}
		}
	case seriesLayout:
		out = ncfile.NewVariable(l.name, l.typ, []string{"OBS"}, []int{len(m.order)})
		vals := sourceValues(l.name, datasets)
		for k, p := range m.order {
			if src := vals[m.file[p]]; src != nil {
				out.Data.Elements[k] = src[m.offset[p]]
			}
		}
	case profileLayout:
		out = ncfile.NewVariable(l.name, l.typ, []string{"OBS", l.dim}, []int{len(m.order), l.n})
		vals := sourceValues(l.name, datasets)
		for k, p := range m.order {
			if src := vals[m.file[p]]; src != nil {
				j := m.offset[p]
				copy(out.Data.Elements[k*l.n:(k+1)*l.n], src[j*l.n:(j+1)*l.n])
			}
		}
	}
	out.Attrs = l.attrs.Copy()
	return out
}

func sourceValues(name string, datasets []*ncfile.Dataset) [][]float64 {
	out := make([][]float64, len(datasets))
	for i, ds := range datasets {
		if v, err := ds.Var(name); err == nil {
			out[i] = v.Values()
		}
	}
	return out
}
