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

	"github.com/ctessum/geom"
)

// EarthRadius is the mean radius of the Earth in km.
const EarthRadius = 6371.

// distTolerance is the relative tolerance within which two distances are
// considered equal when searching for the nearest cell.
const distTolerance = 1.e-12

// A Metric computes the distance between two points whose X coordinates
// are longitudes and Y coordinates are latitudes, in degrees.
type Metric interface {
	Distance(a, b geom.Point) float64
}

// GreatCircle is the haversine great-circle distance in km.
type GreatCircle struct{}

// Distance implements Metric.
func (GreatCircle) Distance(a, b geom.Point) float64 {
	const rad = math.Pi / 180
	dLat := (b.Y - a.Y) * rad
	dLon := (b.X - a.X) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Y*rad)*math.Cos(b.Y*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Planar is the Euclidean distance in degrees, taking the shorter way
// around in longitude.
type Planar struct{}

// Distance implements Metric.
func (Planar) Distance(a, b geom.Point) float64 {
	dx := math.Abs(NormalizeLon360(a.X) - NormalizeLon360(b.X))
	if dx > 180 {
		dx = 360 - dx
	}
	return math.Hypot(dx, b.Y-a.Y)
}

// NormalizeLon360 returns lon in the range [0, 360).
func NormalizeLon360(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	if lon >= 360 {
		lon = 0
	}
	return lon
}

// CellMatch is the result of a nearest-cell search.
type CellMatch struct {
	// Dims are the dimensions Index refers to: (lat, lon) for separate
	// one-dimensional coordinates, the shared dimensions otherwise.
	Dims []string

	// Index is the position of the matched cell along each of Dims.
	Index []int

	// Flat is the row-major position of the matched cell.
	Flat int

	// Distance is the distance from the query point to the cell center,
	// in the units of the Metric.
	Distance float64

	// Outside is true if the query point is outside the bounding box of
	// the dataset's coordinates.
	Outside bool
}

// lookupCoord finds a coordinate or variable under any of names.
func lookupCoord(ds *Dataset, names ...string) (*Variable, bool) {
	for _, n := range names {
		if v, ok := ds.Get(n); ok {
			return v, true
		}
	}
	return nil, false
}

// LatLon returns the latitude and longitude coordinates of ds, which may
// be called lat/latitude and lon/longitude.
func LatLon(ds *Dataset) (lat, lon *Variable, err error) {
	lat, ok := lookupCoord(ds, "lat", "latitude")
	if !ok {
		return nil, nil, &NoCoordinateDataError{Missing: "latitude"}
	}
	lon, ok = lookupCoord(ds, "lon", "longitude")
	if !ok {
		return nil, nil, &NoCoordinateDataError{Missing: "longitude"}
	}
	return lat, lon, nil
}

// NearestCell finds the grid cell of ds whose center is nearest to the
// query point. Latitude and longitude may be separate one-dimensional
// coordinates, in which case the match is a (lat, lon) index pair, or they
// may share dimensions, as on an unstructured mesh (one dimension) or a
// curvilinear grid (two). Longitudes of both the query and the dataset are
// normalized to [0, 360) before comparison. When several cells are
// equally near, the first in row-major order wins.
func NearestCell(ds *Dataset, lat, lon float64, metric Metric) (CellMatch, error) {
	latV, lonV, err := LatLon(ds)
	if err != nil {
		return CellMatch{}, err
	}
	if metric == nil {
		metric = GreatCircle{}
	}
	q := geom.Point{X: NormalizeLon360(lon), Y: lat}

	var m CellMatch
	var cells int
	var at func(flat int) geom.Point
	switch {
	case len(latV.Dims) == 1 && len(lonV.Dims) == 1 && latV.Dims[0] != lonV.Dims[0]:
		nlon := lonV.Len()
		m.Dims = []string{latV.Dims[0], lonV.Dims[0]}
		cells = latV.Len() * nlon
		at = func(flat int) geom.Point {
			return geom.Point{X: lonV.Data.Elements[flat%nlon], Y: latV.Data.Elements[flat/nlon]}
		}
	case sameDims(latV.Dims, lonV.Dims) && sameShape(latV.Shape(), lonV.Shape()):
		m.Dims = append([]string{}, latV.Dims...)
		cells = latV.Len()
		at = func(flat int) geom.Point {
			return geom.Point{X: lonV.Data.Elements[flat], Y: latV.Data.Elements[flat]}
		}
	default:
		return CellMatch{}, fmt.Errorf("co2diag: NearestCell: latitude%v and longitude%v are not a recognized grid",
			latV.Dims, lonV.Dims)
	}

	b := geom.NewBounds()
	lons := make([]float64, 0, cells)
	m.Flat = -1
	m.Distance = math.Inf(1)
	for i := 0; i < cells; i++ {
		p := at(i)
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		p.X = NormalizeLon360(p.X)
		b.Extend(p.Bounds())
		lons = append(lons, p.X)
		d := metric.Distance(q, p)
		if d < m.Distance-distTolerance*math.Max(1, m.Distance) || m.Flat < 0 {
			m.Flat = i
			m.Distance = d
		}
	}
	if m.Flat < 0 {
		return CellMatch{}, &NoCoordinateDataError{Missing: "latitude/longitude"}
	}
	m.Outside = q.Y < b.Min.Y || q.Y > b.Max.Y || outsideLon(lons, q.X)
	if len(m.Dims) == 2 && latV.Dims[0] != lonV.Dims[0] {
		nlon := lonV.Len()
		m.Index = []int{m.Flat / nlon, m.Flat % nlon}
	} else {
		m.Index = unravel(m.Flat, latV.Shape())
	}
	return m, nil
}

// outsideLon reports whether lon, in [0, 360), falls in the widest gap
// between the grid longitudes going around the circle, and that gap is
// more than twice the median spacing. A global grid has no such gap, so
// points near the 0/360 seam are inside it.
func outsideLon(lons []float64, lon float64) bool {
	if len(lons) == 0 {
		return true
	}
	u := append([]float64{}, lons...)
	sort.Float64s(u)
	n := 1
	for _, x := range u[1:] {
		if x-u[n-1] > distTolerance {
			u[n] = x
			n++
		}
	}
	u = u[:n]
	if n == 1 {
		return math.Abs(lon-u[0]) > distTolerance
	}
	gaps := make([]float64, n)
	widest := 0
	for i := range u {
		next := u[(i+1)%n]
		if i == n-1 {
			next += 360
		}
		gaps[i] = next - u[i]
		if gaps[i] > gaps[widest] {
			widest = i
		}
	}
	lo, hi := u[widest], u[widest]+gaps[widest]
	sorted := append([]float64{}, gaps...)
	sort.Float64s(sorted)
	if gaps[widest] <= 2*sorted[n/2] {
		return false
	}
	if lon < lo {
		lon += 360
	}
	return lon > lo && lon < hi
}

// unravel converts a row-major flat index to per-axis positions.
func unravel(flat int, shape []int) []int {
	o := make([]int, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		o[d] = flat % shape[d]
		flat /= shape[d]
	}
	return o
}

// SelectNearest returns ds reduced to the grid cell nearest the query
// point, along with the match.
func SelectNearest(ds *Dataset, lat, lon float64, metric Metric) (*Dataset, CellMatch, error) {
	m, err := NearestCell(ds, lat, lon, metric)
	if err != nil {
		return nil, m, err
	}
	o := ds
	for i, d := range m.Dims {
		if o, err = o.ISel(d, m.Index[i]); err != nil {
			return nil, m, fmt.Errorf("co2diag: SelectNearest: %v", err)
		}
	}
	return o, m, nil
}
