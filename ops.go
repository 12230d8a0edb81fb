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

package co2diag

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/sparse"
)

// labelTolerance is the relative tolerance used when matching
// coordinate labels.
const labelTolerance = 1.e-9

// takeVar returns v restricted to positions idx along axis.
func takeVar(v *Variable, axis int, idx []int) *Variable {
	o := &Variable{
		Dims:  append([]string{}, v.Dims...),
		Attrs: copyAttrs(v.Attrs),
		Data:  takeAxis(v.Data, axis, idx),
	}
	if v.Labels != nil {
		o.Labels = make([]string, len(idx))
		for i, ix := range idx {
			o.Labels[i] = v.Labels[ix]
		}
	}
	return o
}

// dropVar returns v at position i along axis with that axis removed.
func dropVar(v *Variable, axis, i int) *Variable {
	dims := make([]string, 0, len(v.Dims)-1)
	dims = append(dims, v.Dims[:axis]...)
	dims = append(dims, v.Dims[axis+1:]...)
	o := &Variable{
		Dims:  dims,
		Attrs: copyAttrs(v.Attrs),
		Data:  dropAxis(v.Data, axis, i),
	}
	if v.Labels != nil {
		o.Labels = []string{v.Labels[i]}
	}
	return o
}

func copyAttrs(a map[string]string) map[string]string {
	o := make(map[string]string, len(a))
	for k, v := range a {
		o[k] = v
	}
	return o
}

// mapDim returns a new dataset in which f has been applied to every
// variable and coordinate that uses dim. Others are copied unchanged.
func (ds *Dataset) mapDim(dim string, f func(v *Variable, axis int) *Variable) *Dataset {
	o := NewDataset()
	o.Attrs = copyAttrs(ds.Attrs)
	apply := func(v *Variable) *Variable {
		if ax := v.Axis(dim); ax >= 0 {
			return f(v, ax)
		}
		return v.Copy()
	}
	for k, v := range ds.Vars {
		o.Vars[k] = apply(v)
	}
	for k, v := range ds.Coords {
		o.Coords[k] = apply(v)
	}
	return o
}

func (ds *Dataset) dimLen(dim string) (int, error) {
	n, ok := ds.Dims()[dim]
	if !ok {
		return 0, fmt.Errorf("co2diag: dataset has no dimension %q", dim)
	}
	return n, nil
}

// ISel returns the dataset at integer position i along dim. The
// dimension is removed and its coordinate becomes a scalar coordinate.
// Negative positions count back from the end.
func (ds *Dataset) ISel(dim string, i int) (*Dataset, error) {
	n, err := ds.dimLen(dim)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("co2diag: index %d out of range for dimension %s of length %d", i, dim, n)
	}
	return ds.mapDim(dim, func(v *Variable, axis int) *Variable {
		return dropVar(v, axis, i)
	}), nil
}

// ISlice returns the dataset restricted to positions [start, stop) along
// dim.
func (ds *Dataset) ISlice(dim string, start, stop int) (*Dataset, error) {
	n, err := ds.dimLen(dim)
	if err != nil {
		return nil, err
	}
	if stop > n {
		stop = n
	}
	if start < 0 || start > stop {
		return nil, fmt.Errorf("co2diag: invalid index range [%d, %d) for dimension %s", start, stop, dim)
	}
	idx := make([]int, stop-start)
	for i := range idx {
		idx[i] = start + i
	}
	return ds.Take(dim, idx)
}

// Take returns the dataset restricted to the given positions along dim,
// in the given order.
func (ds *Dataset) Take(dim string, idx []int) (*Dataset, error) {
	n, err := ds.dimLen(dim)
	if err != nil {
		return nil, err
	}
	for _, i := range idx {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("co2diag: index %d out of range for dimension %s of length %d", i, dim, n)
		}
	}
	return ds.mapDim(dim, func(v *Variable, axis int) *Variable {
		return takeVar(v, axis, idx)
	}), nil
}

// Where returns the dataset restricted to the positions along dim where
// mask is true.
func (ds *Dataset) Where(dim string, mask []bool) (*Dataset, error) {
	n, err := ds.dimLen(dim)
	if err != nil {
		return nil, err
	}
	if len(mask) != n {
		return nil, fmt.Errorf("co2diag: mask has length %d but dimension %s has length %d", len(mask), dim, n)
	}
	var idx []int
	for i, m := range mask {
		if m {
			idx = append(idx, i)
		}
	}
	return ds.Take(dim, idx)
}

func (ds *Dataset) dimCoordValues(dim string) ([]float64, error) {
	if _, err := ds.dimLen(dim); err != nil {
		return nil, err
	}
	c, ok := ds.DimCoord(dim)
	if !ok {
		return nil, fmt.Errorf("co2diag: dimension %s has no coordinate", dim)
	}
	return c.Values(), nil
}

// Sel returns the dataset at the coordinate label val along dim. The label
// must match a coordinate value to within a small relative tolerance.
func (ds *Dataset) Sel(dim string, val float64) (*Dataset, error) {
	vals, err := ds.dimCoordValues(dim)
	if err != nil {
		return nil, err
	}
	tol := labelTolerance * math.Max(1, math.Abs(val))
	for i, c := range vals {
		if math.Abs(c-val) <= tol {
			return ds.ISel(dim, i)
		}
	}
	return nil, fmt.Errorf("co2diag: value %g not found in coordinate %s", val, dim)
}

// SelLabel returns the dataset at the string label along dim.
func (ds *Dataset) SelLabel(dim, label string) (*Dataset, error) {
	if _, err := ds.dimLen(dim); err != nil {
		return nil, err
	}
	c, ok := ds.DimCoord(dim)
	if !ok || c.Labels == nil {
		return nil, fmt.Errorf("co2diag: dimension %s has no label coordinate", dim)
	}
	for i, l := range c.Labels {
		if l == label {
			return ds.ISel(dim, i)
		}
	}
	return nil, fmt.Errorf("co2diag: label %q not found in coordinate %s", label, dim)
}

// Slice returns the dataset restricted to coordinate labels in the
// closed range [lo, hi] along dim. Infinite bounds leave that side open.
func (ds *Dataset) Slice(dim string, lo, hi float64) (*Dataset, error) {
	vals, err := ds.dimCoordValues(dim)
	if err != nil {
		return nil, err
	}
	mask := make([]bool, len(vals))
	for i, c := range vals {
		mask[i] = c >= lo && c <= hi
	}
	return ds.Where(dim, mask)
}

// Mean returns the mean over the given dimensions, skipping missing
// values. Coordinates that depend on a reduced dimension are dropped.
func (ds *Dataset) Mean(dims ...string) (*Dataset, error) {
	have := ds.Dims()
	reduce := make(map[string]bool)
	for _, d := range dims {
		if _, ok := have[d]; !ok {
			return nil, fmt.Errorf("co2diag: cannot average over dimension %q: not in dataset", d)
		}
		reduce[d] = true
	}
	o := NewDataset()
	o.Attrs = copyAttrs(ds.Attrs)
	for k, c := range ds.Coords {
		keep := true
		for _, d := range c.Dims {
			if reduce[d] {
				keep = false
			}
		}
		if keep {
			o.Coords[k] = c.Copy()
		}
	}
	for k, v := range ds.Vars {
		flags := make([]bool, len(v.Dims))
		var outDims []string
		touched := false
		for i, d := range v.Dims {
			flags[i] = reduce[d]
			if flags[i] {
				touched = true
			} else {
				outDims = append(outDims, d)
			}
		}
		if !touched {
			o.Vars[k] = v.Copy()
			continue
		}
		o.Vars[k] = &Variable{
			Dims:  outDims,
			Attrs: copyAttrs(v.Attrs),
			Data:  meanAxes(v.Data, flags),
		}
	}
	return o, nil
}

// SortBy returns the dataset sorted in ascending order of the dimension
// coordinate dim. The sort is stable and missing values sort last.
func (ds *Dataset) SortBy(dim string) (*Dataset, error) {
	vals, err := ds.dimCoordValues(dim)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := vals[idx[a]], vals[idx[b]]
		if math.IsNaN(vb) {
			return !math.IsNaN(va)
		}
		return va < vb
	})
	return ds.Take(dim, idx)
}

// SwapDims replaces dimension old with new, where new is a
// one-dimensional variable or coordinate along old. The new dimension's
// variable becomes its dimension coordinate.
func (ds *Dataset) SwapDims(old, new string) (*Dataset, error) {
	v, ok := ds.Get(new)
	if !ok || len(v.Dims) != 1 || v.Dims[0] != old {
		return nil, fmt.Errorf("co2diag: SwapDims: %q is not a one-dimensional variable along %q", new, old)
	}
	o := ds.Copy()
	if nv, ok := o.Vars[new]; ok {
		o.AddCoord(new, nv)
	}
	for _, vv := range o.all() {
		for i, d := range vv.Dims {
			if d == old {
				vv.Dims[i] = new
			}
		}
	}
	return o, nil
}

// Concat joins datasets along an existing dimension dim. Variables that
// do not use dim are taken from the first dataset.
func Concat(dim string, dss ...*Dataset) (*Dataset, error) {
	if len(dss) == 0 {
		return nil, fmt.Errorf("co2diag: Concat: no datasets")
	}
	if len(dss) == 1 {
		return dss[0].Copy(), nil
	}
	first := dss[0]
	o := NewDataset()
	o.Attrs = copyAttrs(first.Attrs)
	join := func(name string, v *Variable, get func(*Dataset) (*Variable, bool)) (*Variable, error) {
		ax := v.Axis(dim)
		if ax < 0 {
			return v.Copy(), nil
		}
		arrays := make([]*sparse.DenseArray, len(dss))
		var labels []string
		for i, d := range dss {
			dv, ok := get(d)
			if !ok {
				return nil, fmt.Errorf("co2diag: Concat: variable %s missing from dataset %d", name, i)
			}
			if !sameDims(dv.Dims, v.Dims) {
				return nil, fmt.Errorf("co2diag: Concat: variable %s has dimensions %v in dataset %d but %v in dataset 0",
					name, dv.Dims, i, v.Dims)
			}
			for j, n := range dv.Data.Shape {
				if j != ax && n != v.Data.Shape[j] {
					return nil, fmt.Errorf("co2diag: Concat: variable %s has shape %v in dataset %d but %v in dataset 0",
						name, dv.Data.Shape, i, v.Data.Shape)
				}
			}
			arrays[i] = dv.Data
			labels = append(labels, dv.Labels...)
		}
		out := &Variable{
			Dims:  append([]string{}, v.Dims...),
			Attrs: copyAttrs(v.Attrs),
			Data:  concatAxis(arrays, ax),
		}
		if v.Labels != nil {
			out.Labels = labels
		}
		return out, nil
	}
	for _, name := range first.CoordNames() {
		v, err := join(name, first.Coords[name], func(d *Dataset) (*Variable, bool) {
			c, ok := d.Coords[name]
			return c, ok
		})
		if err != nil {
			return nil, err
		}
		o.Coords[name] = v
	}
	for _, name := range first.Names() {
		v, err := join(name, first.Vars[name], func(d *Dataset) (*Variable, bool) {
			c, ok := d.Vars[name]
			return c, ok
		})
		if err != nil {
			return nil, err
		}
		o.Vars[name] = v
	}
	return o, nil
}

// Stack joins equally shaped datasets along a new leading dimension dim
// labeled by labels. Coordinates are taken from the first dataset.
func Stack(dim string, labels []string, dss ...*Dataset) (*Dataset, error) {
	if len(dss) == 0 || len(dss) != len(labels) {
		return nil, fmt.Errorf("co2diag: Stack: %d datasets but %d labels", len(dss), len(labels))
	}
	first := dss[0]
	o := NewDataset()
	o.Attrs = copyAttrs(first.Attrs)
	for k, c := range first.Coords {
		o.Coords[k] = c.Copy()
	}
	for _, name := range first.Names() {
		v := first.Vars[name]
		arrays := make([]*sparse.DenseArray, len(dss))
		for i, d := range dss {
			dv, ok := d.Vars[name]
			if !ok {
				return nil, fmt.Errorf("co2diag: Stack: variable %s missing from dataset %s", name, labels[i])
			}
			if !sameDims(dv.Dims, v.Dims) || !sameShape(dv.Data.Shape, v.Data.Shape) {
				return nil, fmt.Errorf("co2diag: Stack: variable %s in dataset %s has shape %v%v; want %v%v",
					name, labels[i], dv.Dims, dv.Data.Shape, v.Dims, v.Data.Shape)
			}
			arrays[i] = dv.Data
		}
		o.Vars[name] = &Variable{
			Dims:  append([]string{dim}, v.Dims...),
			Attrs: copyAttrs(v.Attrs),
			Data:  stackNew(arrays),
		}
	}
	o.Coords[dim] = NewLabelCoord(dim, labels)
	return o, nil
}

func sameDims(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
