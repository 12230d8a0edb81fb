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
	"math"

	"github.com/ctessum/sparse"
)

// prod returns the product of the values in s (1 for an empty slice).
func prod(s []int) int {
	n := 1
	for _, v := range s {
		n *= v
	}
	return n
}

// takeAxis returns a new array holding the positions idx along axis of a.
func takeAxis(a *sparse.DenseArray, axis int, idx []int) *sparse.DenseArray {
	shape := append([]int{}, a.Shape...)
	outer := prod(shape[:axis])
	inner := prod(shape[axis+1:])
	n := shape[axis]
	shape[axis] = len(idx)
	o := sparse.ZerosDense(shape...)
	for i := 0; i < outer; i++ {
		for j, ix := range idx {
			src := (i*n + ix) * inner
			dst := (i*len(idx) + j) * inner
			copy(o.Elements[dst:dst+inner], a.Elements[src:src+inner])
		}
	}
	return o
}

// dropAxis returns the slice of a at position i along axis, with that
// axis removed.
func dropAxis(a *sparse.DenseArray, axis, i int) *sparse.DenseArray {
	t := takeAxis(a, axis, []int{i})
	shape := make([]int, 0, len(a.Shape)-1)
	shape = append(shape, a.Shape[:axis]...)
	shape = append(shape, a.Shape[axis+1:]...)
	o := sparse.ZerosDense(shape...)
	copy(o.Elements, t.Elements)
	return o
}

// meanAxes averages a over the axes marked true in reduce, skipping
// missing (NaN) values. Output cells with no valid input are NaN.
func meanAxes(a *sparse.DenseArray, reduce []bool) *sparse.DenseArray {
	var outShape []int
	for i, n := range a.Shape {
		if !reduce[i] {
			outShape = append(outShape, n)
		}
	}
	o := sparse.ZerosDense(outShape...)
	count := make([]int, len(o.Elements))

	ndims := len(a.Shape)
	idx := make([]int, ndims)
	for flat, val := range a.Elements {
		// Compute the output index by skipping the reduced axes.
		rem := flat
		for d := ndims - 1; d >= 0; d-- {
			idx[d] = rem % a.Shape[d]
			rem /= a.Shape[d]
		}
		if math.IsNaN(val) {
			continue
		}
		out := 0
		for d := 0; d < ndims; d++ {
			if reduce[d] {
				continue
			}
			out = out*a.Shape[d] + idx[d]
		}
		o.Elements[out] += val
		count[out]++
	}
	for i, c := range count {
		if c == 0 {
			o.Elements[i] = math.NaN()
		} else {
			o.Elements[i] /= float64(c)
		}
	}
	return o
}

// concatAxis joins arrays along axis. All other axes must match.
func concatAxis(arrays []*sparse.DenseArray, axis int) *sparse.DenseArray {
	shape := append([]int{}, arrays[0].Shape...)
	total := 0
	for _, a := range arrays {
		total += a.Shape[axis]
	}
	outer := prod(shape[:axis])
	inner := prod(shape[axis+1:])
	shape[axis] = total
	o := sparse.ZerosDense(shape...)
	dst := 0
	for i := 0; i < outer; i++ {
		for _, a := range arrays {
			n := a.Shape[axis] * inner
			copy(o.Elements[dst:dst+n], a.Elements[i*n:(i+1)*n])
			dst += n
		}
	}
	return o
}

// stackNew joins equally shaped arrays along a new leading axis.
func stackNew(arrays []*sparse.DenseArray) *sparse.DenseArray {
	shape := append([]int{len(arrays)}, arrays[0].Shape...)
	o := sparse.ZerosDense(shape...)
	n := len(arrays[0].Elements)
	for i, a := range arrays {
		copy(o.Elements[i*n:(i+1)*n], a.Elements)
	}
	return o
}

// broadcastTo expands a, whose axes are named dims, to the axes named
// outDims with lengths outShape. Every name in dims must be in outDims.
func broadcastTo(a *sparse.DenseArray, dims, outDims []string, outShape []int) *sparse.DenseArray {
	pos := make([]int, len(dims))
	for i, d := range dims {
		pos[i] = -1
		for j, od := range outDims {
			if od == d {
				pos[i] = j
			}
		}
		if pos[i] < 0 {
			panic("co2diag: broadcast to missing dimension " + d)
		}
	}
	o := sparse.ZerosDense(append([]int{}, outShape...)...)
	idx := make([]int, len(outShape))
	for flat := range o.Elements {
		rem := flat
		for d := len(outShape) - 1; d >= 0; d-- {
			idx[d] = rem % outShape[d]
			rem /= outShape[d]
		}
		src := 0
		for i := range dims {
			src = src*a.Shape[i] + idx[pos[i]]
		}
		o.Elements[flat] = a.Elements[src]
	}
	return o
}
