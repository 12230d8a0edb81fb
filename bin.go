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
	"strconv"
	"time"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// FillValue marks masked bins in binned output.
const FillValue = -999.9

// Grid2D holds point data accumulated onto a regular two-dimensional grid.
// Sum and Count have shape (len(XEdges)-1, len(YEdges)-1).
type Grid2D struct {
	Sum, Count     *sparse.DenseArray
	XEdges, YEdges []float64
}

// Bin2D accumulates values v located at (x, y) onto an nx by ny grid
// whose edges span the range of the data. As in a histogram, each bin
// includes its lower edge, and the last bin also includes its upper edge.
// Points where x, y or v is missing are skipped. If there are no valid
// points, ErrNoData is returned.
func Bin2D(x, y, v []float64, nx, ny int) (*Grid2D, error) {
	if len(x) != len(y) || len(x) != len(v) {
		return nil, fmt.Errorf("co2diag: Bin2D: lengths %d, %d and %d differ", len(x), len(y), len(v))
	}
	var vx, vy []float64
	for i := range x {
		if !math.IsNaN(x[i]) && !math.IsNaN(y[i]) && !math.IsNaN(v[i]) {
			vx = append(vx, x[i])
			vy = append(vy, y[i])
		}
	}
	if len(vx) == 0 {
		return nil, ErrNoData
	}
	return Bin2DEdges(x, y, v, HistogramEdges(vx, nx), HistogramEdges(vy, ny))
}

// HistogramEdges returns n+1 evenly spaced edges spanning the range of
// vals, ignoring missing values. If all values are equal the range is
// widened by 0.5 on each side.
func HistogramEdges(vals []float64, n int) []float64 {
	var v []float64
	for _, f := range vals {
		if !math.IsNaN(f) {
			v = append(v, f)
		}
	}
	lo, hi := 0., 1.
	if len(v) > 0 {
		lo, hi = floats.Min(v), floats.Max(v)
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	return floats.Span(make([]float64, n+1), lo, hi)
}

// Bin2DEdges is like Bin2D but uses the given bin edges. Points outside
// the edges are skipped.
func Bin2DEdges(x, y, v []float64, xEdges, yEdges []float64) (*Grid2D, error) {
	if len(x) != len(y) || len(x) != len(v) {
		return nil, fmt.Errorf("co2diag: Bin2D: lengths %d, %d and %d differ", len(x), len(y), len(v))
	}
	if len(xEdges) < 2 || len(yEdges) < 2 {
		return nil, fmt.Errorf("co2diag: Bin2D: at least one bin is required along each axis")
	}
	nx, ny := len(xEdges)-1, len(yEdges)-1
	g := &Grid2D{
		Sum:    sparse.ZerosDense(nx, ny),
		Count:  sparse.ZerosDense(nx, ny),
		XEdges: append([]float64{}, xEdges...),
		YEdges: append([]float64{}, yEdges...),
	}
	for i := range x {
		if math.IsNaN(v[i]) {
			continue
		}
		ix := binIndex(xEdges, x[i])
		iy := binIndex(yEdges, y[i])
		if ix < 0 || iy < 0 {
			continue
		}
		g.Sum.AddVal(v[i], ix, iy)
		g.Count.AddVal(1, ix, iy)
	}
	return g, nil
}

// binIndex returns the bin of edges that contains val, or -1. Bins are
// closed on the left, except the last which is closed on both sides.
func binIndex(edges []float64, val float64) int {
	n := len(edges) - 1
	if math.IsNaN(val) || val < edges[0] || val > edges[n] {
		return -1
	}
	i := sort.Search(len(edges), func(k int) bool { return edges[k] > val }) - 1
	if i >= n {
		i = n - 1
	}
	return i
}

// Shape returns the number of bins along x and y.
func (g *Grid2D) Shape() (nx, ny int) {
	return len(g.XEdges) - 1, len(g.YEdges) - 1
}

// Masked returns whether bin (i, j) received no points.
func (g *Grid2D) Masked(i, j int) bool {
	return g.Count.Get(i, j) == 0
}

// Mean returns the mean of the points in bin (i, j). ok is false if the
// bin is masked.
func (g *Grid2D) Mean(i, j int) (mean float64, ok bool) {
	c := g.Count.Get(i, j)
	if c == 0 {
		return 0, false
	}
	return g.Sum.Get(i, j) / c, true
}

// Values returns the bin means, with NaN in masked bins.
func (g *Grid2D) Values() *sparse.DenseArray {
	nx, ny := g.Shape()
	o := sparse.ZerosDense(nx, ny)
	for i, s := range g.Sum.Elements {
		if c := g.Count.Elements[i]; c > 0 {
			o.Elements[i] = s / c
		} else {
			o.Elements[i] = math.NaN()
		}
	}
	return o
}

// centers returns the midpoints between consecutive edges.
func centers(edges []float64) []float64 {
	o := make([]float64, len(edges)-1)
	for i := range o {
		o[i] = 0.5 * (edges[i] + edges[i+1])
	}
	return o
}

// boundsVar returns a (dim, nbnds) variable holding the lower and upper
// edge of each bin.
func boundsVar(dim string, edges []float64) *Variable {
	n := len(edges) - 1
	v := NewVariable([]string{dim, "nbnds"}, []int{n, 2}, nil)
	for i := 0; i < n; i++ {
		v.Data.Elements[2*i] = edges[i]
		v.Data.Elements[2*i+1] = edges[i+1]
	}
	return v
}

// pointValues returns the values of the named variables, which must all
// be one-dimensional along the same dimension.
func pointValues(ds *Dataset, names ...string) ([][]float64, string, error) {
	o := make([][]float64, len(names))
	var dim string
	for i, n := range names {
		v, ok := ds.Get(n)
		if !ok {
			return nil, "", fmt.Errorf("co2diag: dataset has no variable %q", n)
		}
		if len(v.Dims) != 1 {
			return nil, "", fmt.Errorf("co2diag: variable %s has dimensions %v; point data must be one-dimensional", n, v.Dims)
		}
		if i == 0 {
			dim = v.Dims[0]
		} else if v.Dims[0] != dim {
			return nil, "", fmt.Errorf("co2diag: variable %s is along %s but %s is along %s", n, v.Dims[0], names[0], dim)
		}
		o[i] = v.Values()
	}
	return o, dim, nil
}

func gridDataset(g *Grid2D, name, xDim, yDim string, attrs map[string]string) *Dataset {
	o := NewDataset()
	v := &Variable{Dims: []string{xDim, yDim}, Attrs: copyAttrs(attrs), Data: g.Values()}
	v.Attrs["_FillValue"] = strconv.FormatFloat(FillValue, 'g', -1, 64)
	o.AddVariable(name, v)
	o.AddVariable("count", &Variable{Dims: []string{xDim, yDim}, Attrs: map[string]string{}, Data: g.Count})
	o.AddCoord(xDim, NewCoord(xDim, centers(g.XEdges)))
	o.AddCoord(yDim, NewCoord(yDim, centers(g.YEdges)))
	o.AddCoord(xDim+"_edges", boundsVar(xDim, g.XEdges))
	o.AddCoord(yDim+"_edges", boundsVar(yDim, g.YEdges))
	o.AddCoord("nbnds", NewCoord("nbnds", []float64{0, 1}))
	return o
}

// BinTimeLat bins point observations of variable name onto an nLat by
// nTime grid of latitude and normalized time.
func BinTimeLat(ds *Dataset, nLat, nTime int, name string) (*Dataset, error) {
	latName := firstPresent(ds, "latitude", "lat")
	if latName == "" {
		return nil, &NoCoordinateDataError{Missing: "latitude"}
	}
	vals, _, err := pointValues(ds, latName, "time", name)
	if err != nil {
		return nil, fmt.Errorf("co2diag: BinTimeLat: %v", err)
	}
	g, err := Bin2D(vals[0], vals[1], vals[2], nLat, nTime)
	if err != nil {
		return nil, err
	}
	v, _ := ds.Get(name)
	o := gridDataset(g, name, "lat", "time", v.Attrs)
	if t, ok := ds.Get("time"); ok {
		o.Coords["time"].Attrs = copyAttrs(t.Attrs)
	}
	return o, nil
}

// BinLonLat bins point observations of variable name onto an nLat by nLon
// grid of latitude and longitude.
func BinLonLat(ds *Dataset, nLat, nLon int, name string) (*Dataset, error) {
	latName, lonName, err := latLonNames(ds)
	if err != nil {
		return nil, err
	}
	vals, _, err := pointValues(ds, latName, lonName, name)
	if err != nil {
		return nil, fmt.Errorf("co2diag: BinLonLat: %v", err)
	}
	g, err := Bin2D(vals[0], vals[1], vals[2], nLat, nLon)
	if err != nil {
		return nil, err
	}
	v, _ := ds.Get(name)
	return gridDataset(g, name, "lat", "lon", v.Attrs), nil
}

// firstPresent returns the first of names that is in ds, or "".
func firstPresent(ds *Dataset, names ...string) string {
	for _, n := range names {
		if _, ok := ds.Get(n); ok {
			return n
		}
	}
	return ""
}

func latLonNames(ds *Dataset) (lat, lon string, err error) {
	if lat = firstPresent(ds, "latitude", "lat"); lat == "" {
		return "", "", &NoCoordinateDataError{Missing: "latitude"}
	}
	if lon = firstPresent(ds, "longitude", "lon"); lon == "" {
		return "", "", &NoCoordinateDataError{Missing: "longitude"}
	}
	return lat, lon, nil
}

// Bin3D bins point observations of variable name onto a vertical by
// latitude by longitude grid. Vertical bins are given by verticalEdges
// (compared against the altitude variable) and include their upper edge
// but not their lower edge. The nLat by nLon horizontal grid spans the
// range of the whole input, so every vertical level shares it.
//
// The result holds name(vertical, lat, lon), with NaN in bins without
// data and a _FillValue attribute, and the bin edges in vertical_edges,
// lat_edges and lon_edges.
func Bin3D(ds *Dataset, verticalEdges []float64, nLat, nLon int, name string) (*Dataset, error) {
	if len(verticalEdges) < 2 {
		return nil, fmt.Errorf("co2diag: Bin3D: at least two vertical edges are required")
	}
	for i := 1; i < len(verticalEdges); i++ {
		if verticalEdges[i] <= verticalEdges[i-1] {
			return nil, fmt.Errorf("co2diag: Bin3D: vertical edges %v are not increasing", verticalEdges)
		}
	}
	latName, lonName, err := latLonNames(ds)
	if err != nil {
		return nil, err
	}
	vals, _, err := pointValues(ds, latName, lonName, "altitude", name)
	if err != nil {
		return nil, fmt.Errorf("co2diag: Bin3D: %v", err)
	}
	lat, lon, alt, val := vals[0], vals[1], vals[2], vals[3]
	latEdges := HistogramEdges(lat, nLat)
	lonEdges := HistogramEdges(lon, nLon)

	nv := len(verticalEdges) - 1
	out := sparse.ZerosDense(nv, nLat, nLon)
	count := sparse.ZerosDense(nv, nLat, nLon)
	slab := nLat * nLon
	for k := 0; k < nv; k++ {
		l0, l1 := verticalEdges[k], verticalEdges[k+1]
		var x, y, v []float64
		for i, a := range alt {
			if a > l0 && a <= l1 {
				x = append(x, lat[i])
				y = append(y, lon[i])
				v = append(v, val[i])
			}
		}
		g, err := Bin2DEdges(x, y, v, latEdges, lonEdges)
		if err != nil {
			return nil, err
		}
		copy(out.Elements[k*slab:(k+1)*slab], g.Values().Elements)
		copy(count.Elements[k*slab:(k+1)*slab], g.Count.Elements)
	}

	o := NewDataset()
	src, _ := ds.Get(name)
	dims := []string{"vertical", "lat", "lon"}
	v := &Variable{Dims: dims, Attrs: copyAttrs(src.Attrs), Data: out}
	v.Attrs["_FillValue"] = strconv.FormatFloat(FillValue, 'g', -1, 64)
	o.AddVariable(name, v)
	o.AddVariable("count", &Variable{Dims: dims, Attrs: map[string]string{}, Data: count})
	o.AddCoord("vertical", NewCoord("vertical", centers(verticalEdges)))
	o.AddCoord("lat", NewCoord("lat", centers(latEdges)))
	o.AddCoord("lon", NewCoord("lon", centers(lonEdges)))
	o.AddCoord("nbnds", NewCoord("nbnds", []float64{0, 1}))
	o.AddCoord("vertical_edges", boundsVar("vertical", verticalEdges))
	o.AddCoord("lat_edges", boundsVar("lat", latEdges))
	o.AddCoord("lon_edges", boundsVar("lon", lonEdges))
	if a, ok := ds.Get("altitude"); ok && a.Units() != "" {
		o.Coords["vertical"].Attrs["units"] = a.Units()
	}
	return o, nil
}

// ByDecimalYear returns the points of ds whose decimal year is in
// [start, end). If there are none, ErrNoData is returned.
func ByDecimalYear(ds *Dataset, start, end float64) (*Dataset, error) {
	dy, err := DecimalYears(ds)
	if err != nil {
		return nil, fmt.Errorf("co2diag: ByDecimalYear: %v", err)
	}
	mask := make([]bool, len(dy))
	for i, y := range dy {
		mask[i] = y >= start && y < end
	}
	return whereTime(ds, "time_decimal", mask)
}

// ByDatetime returns the points of ds whose normalized time is in
// [start, end). If there are none, ErrNoData is returned.
func ByDatetime(ds *Dataset, start, end time.Time) (*Dataset, error) {
	times, err := ds.Times()
	if err != nil {
		return nil, fmt.Errorf("co2diag: ByDatetime: %v", err)
	}
	mask := make([]bool, len(times))
	for i, t := range times {
		mask[i] = !t.IsZero() && !t.Before(start) && t.Before(end)
	}
	return whereTime(ds, "time", mask)
}

// whereTime applies mask along the dimension of the time variable.
func whereTime(ds *Dataset, name string, mask []bool) (*Dataset, error) {
	v, ok := ds.Get(name)
	if !ok {
		v, ok = ds.Get("time")
	}
	if !ok || len(v.Dims) != 1 {
		return nil, fmt.Errorf("co2diag: dataset has no one-dimensional time variable")
	}
	found := false
	for _, m := range mask {
		if m {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoData
	}
	return ds.Where(v.Dims[0], mask)
}

// BinByYearAndVertical subsets ds to the given calendar year and bins it
// with Bin3D.
func BinByYearAndVertical(ds *Dataset, year int, verticalEdges []float64, nLat, nLon int, name string) (*Dataset, error) {
	sub, err := ByDecimalYear(ds, float64(year), float64(year+1))
	if err != nil {
		return nil, err
	}
	return Bin3D(sub, verticalEdges, nLat, nLon, name)
}
