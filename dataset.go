/*
Copyright © 2021 the co2diag authors.
This file is part of co2diag.

co2diag is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

co2diag is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with co2diag.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package co2diag harmonizes CO2 output from climate models and surface
// station observations onto comparable time, space, and unit bases and
// carries them through a staged processing pipeline.
package co2diag

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "0.4.0"

// Canonical time representation used once a dataset's time coordinate
// has been normalized.
const (
	CanonicalTimeUnits    = "seconds since 1970-01-01 00:00:00"
	CanonicalTimeCalendar = "proleptic_gregorian"
)

// Variable is a named N-dimensional array with labeled dimensions.
// Data is stored in row-major order and has one axis per entry in Dims.
// Missing values are NaN.
type Variable struct {
	Dims  []string
	Attrs map[string]string
	Data  *sparse.DenseArray

	// Labels holds string labels for one-dimensional coordinates
	// whose values are not numeric (e.g., ensemble member names).
	// When it is set, Data holds the label positions.
	Labels []string
}

// NewVariable creates a new variable with the given dimension names and
// shape. If vals is not nil it is copied into the variable, and it must
// have the same number of elements as the shape.
func NewVariable(dims []string, shape []int, vals []float64) *Variable {
	if len(dims) != len(shape) {
		panic(fmt.Errorf("co2diag: %d dimensions but %d lengths", len(dims), len(shape)))
	}
	s := make([]int, len(shape))
	copy(s, shape)
	v := &Variable{
		Dims:  append([]string{}, dims...),
		Attrs: make(map[string]string),
		Data:  sparse.ZerosDense(s...),
	}
	if vals != nil {
		if len(vals) != len(v.Data.Elements) {
			panic(fmt.Errorf("co2diag: shape %v holds %d values but %d were given",
				shape, len(v.Data.Elements), len(vals)))
		}
		copy(v.Data.Elements, vals)
	}
	return v
}

// NewCoord creates a one-dimensional coordinate variable along dim.
func NewCoord(dim string, vals []float64) *Variable {
	return NewVariable([]string{dim}, []int{len(vals)}, vals)
}

// NewLabelCoord creates a one-dimensional coordinate holding string labels.
func NewLabelCoord(dim string, labels []string) *Variable {
	vals := make([]float64, len(labels))
	for i := range vals {
		vals[i] = float64(i)
	}
	v := NewCoord(dim, vals)
	v.Labels = append([]string{}, labels...)
	return v
}

// NewScalar creates a zero-dimensional variable.
func NewScalar(val float64) *Variable {
	return NewVariable(nil, nil, []float64{val})
}

// Values returns the underlying data in row-major order.
func (v *Variable) Values() []float64 { return v.Data.Elements }

// Shape returns the length of each dimension.
func (v *Variable) Shape() []int { return v.Data.Shape }

// Len returns the total number of elements.
func (v *Variable) Len() int { return len(v.Data.Elements) }

// Units returns the "units" attribute, or "" if there isn't one.
func (v *Variable) Units() string { return v.Attrs["units"] }

// Axis returns the position of dim in v.Dims, or -1.
func (v *Variable) Axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Label returns the label at position i, or the formatted numeric value
// if the variable has no labels.
func (v *Variable) Label(i int) string {
	if v.Labels != nil {
		return v.Labels[i]
	}
	return fmt.Sprintf("%g", v.Data.Elements[i])
}

// Copy returns a deep copy of v.
func (v *Variable) Copy() *Variable {
	o := NewVariable(v.Dims, v.Data.Shape, v.Data.Elements)
	for k, a := range v.Attrs {
		o.Attrs[k] = a
	}
	if v.Labels != nil {
		o.Labels = append([]string{}, v.Labels...)
	}
	return o
}

// Dataset is a collection of variables that share named dimensions,
// along with the coordinates that label those dimensions.
type Dataset struct {
	// Vars holds the data variables.
	Vars map[string]*Variable

	// Coords holds coordinate variables. A coordinate named after its
	// only dimension is a dimension coordinate; others (for example
	// lat(ncol) on an unstructured mesh) are auxiliary coordinates.
	Coords map[string]*Variable

	// Attrs holds dataset-level metadata.
	Attrs map[string]string
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Vars:   make(map[string]*Variable),
		Coords: make(map[string]*Variable),
		Attrs:  make(map[string]string),
	}
}

// AddVariable adds or replaces data variable name.
func (ds *Dataset) AddVariable(name string, v *Variable) {
	delete(ds.Coords, name)
	ds.Vars[name] = v
}

// AddCoord adds or replaces coordinate name.
func (ds *Dataset) AddCoord(name string, v *Variable) {
	delete(ds.Vars, name)
	ds.Coords[name] = v
}

// Get returns the data variable or coordinate with the given name.
func (ds *Dataset) Get(name string) (*Variable, bool) {
	if v, ok := ds.Vars[name]; ok {
		return v, true
	}
	v, ok := ds.Coords[name]
	return v, ok
}

// Var returns data variable or coordinate name, or an error if
// it does not exist.
func (ds *Dataset) Var(name string) (*Variable, error) {
	v, ok := ds.Get(name)
	if !ok {
		return nil, fmt.Errorf("co2diag: dataset has no variable %q", name)
	}
	return v, nil
}

// Names returns the sorted names of the data variables.
func (ds *Dataset) Names() []string { return sortedKeys(ds.Vars) }

// CoordNames returns the sorted names of the coordinates.
func (ds *Dataset) CoordNames() []string { return sortedKeys(ds.Coords) }

func sortedKeys(m map[string]*Variable) []string {
	o := make([]string, 0, len(m))
	for k := range m {
		o = append(o, k)
	}
	sort.Strings(o)
	return o
}

// all returns every variable and coordinate in a deterministic order.
func (ds *Dataset) all() []*Variable {
	o := make([]*Variable, 0, len(ds.Vars)+len(ds.Coords))
	for _, n := range ds.CoordNames() {
		o = append(o, ds.Coords[n])
	}
	for _, n := range ds.Names() {
		o = append(o, ds.Vars[n])
	}
	return o
}

// Dims returns the length of every dimension used in the dataset.
// If a dimension has conflicting lengths the first one found is returned;
// Validate reports the conflict.
func (ds *Dataset) Dims() map[string]int {
	o := make(map[string]int)
	for _, v := range ds.all() {
		for i, d := range v.Dims {
			if _, ok := o[d]; !ok {
				o[d] = v.Data.Shape[i]
			}
		}
	}
	return o
}

// HasDim returns whether any variable in the dataset uses dimension dim.
func (ds *Dataset) HasDim(dim string) bool {
	_, ok := ds.Dims()[dim]
	return ok
}

// DimCoord returns the dimension coordinate for dim, if there is one.
func (ds *Dataset) DimCoord(dim string) (*Variable, bool) {
	c, ok := ds.Coords[dim]
	if !ok || len(c.Dims) != 1 || c.Dims[0] != dim {
		return nil, false
	}
	return c, true
}

// Validate checks that every dimension used by a variable has a dimension
// coordinate of matching length, that dimension lengths are consistent,
// and that a normalized time coordinate is monotonically non-decreasing.
func (ds *Dataset) Validate() error {
	lengths := make(map[string]int)
	names := append(ds.CoordNames(), ds.Names()...)
	for _, name := range names {
		v, _ := ds.Get(name)
		if len(v.Dims) != len(v.Data.Shape) {
			return fmt.Errorf("co2diag: variable %s has %d dimensions but data shape %v",
				name, len(v.Dims), v.Data.Shape)
		}
		if v.Labels != nil && len(v.Labels) != v.Len() {
			return fmt.Errorf("co2diag: variable %s has %d labels for %d values", name, len(v.Labels), v.Len())
		}
		for i, d := range v.Dims {
			n := v.Data.Shape[i]
			if l, ok := lengths[d]; ok && l != n {
				return fmt.Errorf("co2diag: dimension %s has length %d in variable %s but %d elsewhere",
					d, n, name, l)
			}
			lengths[d] = n
		}
	}
	for d, n := range lengths {
		c, ok := ds.DimCoord(d)
		if !ok {
			return fmt.Errorf("co2diag: dimension %s has no coordinate", d)
		}
		if c.Len() != n {
			return fmt.Errorf("co2diag: coordinate %s has length %d but dimension has length %d",
				d, c.Len(), n)
		}
	}
	if t, ok := ds.DimCoord("time"); ok && t.Units() == CanonicalTimeUnits {
		vals := t.Values()
		for i := 1; i < len(vals); i++ {
			if vals[i] < vals[i-1] {
				return fmt.Errorf("co2diag: time coordinate is not monotonic at position %d", i)
			}
		}
	}
	return nil
}

// AddIndexCoords adds an integer index coordinate for every dimension
// that does not already have a dimension coordinate.
func (ds *Dataset) AddIndexCoords() {
	for d, n := range ds.Dims() {
		if _, ok := ds.DimCoord(d); ok {
			continue
		}
		if _, ok := ds.Get(d); ok {
			// A variable with this name exists but is not a dimension
			// coordinate; leave it for the caller to resolve.
			continue
		}
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = float64(i)
		}
		ds.Coords[d] = NewCoord(d, vals)
	}
}

// Copy returns a deep copy of the dataset.
func (ds *Dataset) Copy() *Dataset {
	o := NewDataset()
	for k, v := range ds.Vars {
		o.Vars[k] = v.Copy()
	}
	for k, v := range ds.Coords {
		o.Coords[k] = v.Copy()
	}
	for k, a := range ds.Attrs {
		o.Attrs[k] = a
	}
	return o
}

// SetCoords returns a copy of the dataset in which the named data
// variables have become coordinates.
func (ds *Dataset) SetCoords(names ...string) (*Dataset, error) {
	o := ds.Copy()
	for _, n := range names {
		if _, ok := o.Coords[n]; ok {
			continue
		}
		v, ok := o.Vars[n]
		if !ok {
			return nil, fmt.Errorf("co2diag: SetCoords: no variable %q", n)
		}
		o.AddCoord(n, v)
	}
	return o, nil
}

// Rename returns a copy of the dataset in which the variable, coordinate,
// or dimension named old is called new.
func (ds *Dataset) Rename(old, new string) (*Dataset, error) {
	o := ds.Copy()
	found := false
	if v, ok := o.Vars[old]; ok {
		delete(o.Vars, old)
		o.Vars[new] = v
		found = true
	}
	if v, ok := o.Coords[old]; ok {
		delete(o.Coords, old)
		o.Coords[new] = v
		found = true
	}
	for _, v := range o.all() {
		for i, d := range v.Dims {
			if d == old {
				v.Dims[i] = new
				found = true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("co2diag: Rename: no variable or dimension %q", old)
	}
	return o, nil
}

// Times returns the normalized time coordinate as time.Time values.
func (ds *Dataset) Times() ([]time.Time, error) {
	t, ok := ds.Coords["time"]
	if !ok {
		return nil, fmt.Errorf("co2diag: dataset has no time coordinate")
	}
	if t.Units() != CanonicalTimeUnits {
		return nil, fmt.Errorf("co2diag: time coordinate has not been normalized (units %q)", t.Units())
	}
	o := make([]time.Time, t.Len())
	for i, s := range t.Values() {
		o[i] = secondsToTime(s)
	}
	return o, nil
}

// TimeRange returns the first and last normalized time values,
// ignoring missing values.
func (ds *Dataset) TimeRange() (start, end time.Time, err error) {
	times, err := ds.Times()
	if err != nil {
		return
	}
	first := true
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if first || t.Before(start) {
			start = t
		}
		if first || t.After(end) {
			end = t
		}
		first = false
	}
	if first {
		err = fmt.Errorf("co2diag: time coordinate is empty")
	}
	return
}

func secondsToTime(s float64) time.Time {
	if math.IsNaN(s) {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func timeToSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
