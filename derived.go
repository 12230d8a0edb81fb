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
	"time"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/ctessum/sparse"
)

// timeSeries returns variable name of ds and the position of its time
// axis.
func timeSeries(ds *Dataset, name string) (*Variable, int, []time.Time, error) {
	v, err := ds.Var(name)
	if err != nil {
		return nil, 0, nil, err
	}
	ax := v.Axis("time")
	if ax < 0 {
		return nil, 0, nil, fmt.Errorf("co2diag: variable %s has no time dimension", name)
	}
	times, err := ds.Times()
	if err != nil {
		return nil, 0, nil, err
	}
	return v, ax, times, nil
}

// allNaN reports whether every element of a is missing.
func allNaN(a *sparse.DenseArray) bool {
	for _, e := range a.Elements {
		if !math.IsNaN(e) {
			return false
		}
	}
	return true
}

// ResampleMonthly returns the calendar-month means of variable name,
// labeled by the first instant of each month. Months without data are
// left out. Other dimensions of the variable are kept.
func ResampleMonthly(ds *Dataset, name string) (*Dataset, error) {
	v, ax, times, err := timeSeries(ds, name)
	if err != nil {
		return nil, fmt.Errorf("co2diag: ResampleMonthly: %v", err)
	}
	type month struct {
		y int
		m time.Month
	}
	var order []month
	groups := make(map[month][]int)
	for i, t := range times {
		if t.IsZero() {
			continue
		}
		k := month{t.Year(), t.Month()}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	reduce := make([]bool, len(v.Dims))
	reduce[ax] = true
	var means []*sparse.DenseArray
	var labels []float64
	for _, k := range order {
		m := meanAxes(takeAxis(v.Data, ax, groups[k]), reduce)
		if allNaN(m) {
			continue
		}
		means = append(means, m)
		labels = append(labels, timeToSeconds(time.Date(k.y, k.m, 1, 0, 0, 0, 0, time.UTC)))
	}
	return seriesDataset(ds, v, name, ax, means, labels)
}

// seriesDataset assembles a dataset from per-time slabs of v, with time
// as the leading dimension.
func seriesDataset(ds *Dataset, v *Variable, name string, ax int, slabs []*sparse.DenseArray, times []float64) (*Dataset, error) {
	if len(slabs) == 0 {
		return nil, ErrNoData
	}
	dims := []string{"time"}
	dims = append(dims, v.Dims[:ax]...)
	dims = append(dims, v.Dims[ax+1:]...)
	o := NewDataset()
	o.Attrs = copyAttrs(ds.Attrs)
	o.AddVariable(name, &Variable{Dims: dims, Attrs: copyAttrs(v.Attrs), Data: stackNew(slabs)})
	tc := NewCoord("time", times)
	tc.Attrs["units"] = CanonicalTimeUnits
	tc.Attrs["calendar"] = CanonicalTimeCalendar
	o.AddCoord("time", tc)
	for _, d := range dims[1:] {
		if c, ok := ds.DimCoord(d); ok {
			o.AddCoord(d, c.Copy())
		}
	}
	return o, nil
}

// Difference returns a minus b for variable name at the times the two
// datasets share. Times where the difference is entirely missing are
// left out.
func Difference(a, b *Dataset, name string) (*Dataset, error) {
	va, axA, ta, err := timeSeries(a, name)
	if err != nil {
		return nil, fmt.Errorf("co2diag: Difference: %v", err)
	}
	vb, axB, tb, err := timeSeries(b, name)
	if err != nil {
		return nil, fmt.Errorf("co2diag: Difference: %v", err)
	}
	idx := make(map[int64]int, len(tb))
	for i, t := range tb {
		if !t.IsZero() {
			idx[t.UnixNano()] = i
		}
	}
	var slabs []*sparse.DenseArray
	var times []float64
	for i, t := range ta {
		j, ok := idx[t.UnixNano()]
		if t.IsZero() || !ok {
			continue
		}
		sa := dropAxis(va.Data, axA, i)
		sb := dropAxis(vb.Data, axB, j)
		if !sameShape(sa.Shape, sb.Shape) {
			return nil, fmt.Errorf("co2diag: Difference: variable %s has shape %v in one dataset and %v in the other",
				name, va.Shape(), vb.Shape())
		}
		for k := range sa.Elements {
			sa.Elements[k] -= sb.Elements[k]
		}
		if allNaN(sa) {
			continue
		}
		slabs = append(slabs, sa)
		times = append(times, timeToSeconds(t))
	}
	return seriesDataset(a, va, name, axA, slabs, times)
}

// Trend is a least-squares linear fit of a time series against decimal
// year.
type Trend struct {
	Slope     float64 // units per year
	Intercept float64
	RSquared  float64
	N         int
}

// LinearTrend fits a line to the one-dimensional time series name.
func LinearTrend(ds *Dataset, name string) (Trend, error) {
	v, _, times, err := timeSeries(ds, name)
	if err != nil {
		return Trend{}, fmt.Errorf("co2diag: LinearTrend: %v", err)
	}
	if len(v.Dims) != 1 {
		return Trend{}, fmt.Errorf("co2diag: LinearTrend: variable %s has dimensions %v; want (time)", name, v.Dims)
	}
	var x, y []float64
	for i, t := range times {
		val := v.Data.Elements[i]
		if t.IsZero() || math.IsNaN(val) {
			continue
		}
		x = append(x, DecimalYear(t))
		y = append(y, val)
	}
	if len(x) < 2 {
		return Trend{}, ErrNoData
	}
	var tr Trend
	tr.Slope, tr.Intercept, tr.RSquared, tr.N, _, _ = stats.LinearRegression(x, y)
	return tr, nil
}

// Anomalies computes the seasonal anomalies of the one-dimensional time
// series name. The mean annual cycle has dimension moy (month of year,
// 1 to 12) and holds each month's mean minus the mean of the whole
// series. The yearly anomalies have dimensions (year, moy) and hold each
// monthly mean minus the mean of its year. Months without data are
// missing.
func Anomalies(ds *Dataset, name string) (cycle, yearly *Dataset, err error) {
	monthly, err := ResampleMonthly(ds, name)
	if err != nil {
		return nil, nil, fmt.Errorf("co2diag: Anomalies: %v", err)
	}
	v := monthly.Vars[name]
	if len(v.Dims) != 1 {
		return nil, nil, fmt.Errorf("co2diag: Anomalies: variable %s has dimensions %v; want (time)", name, v.Dims)
	}
	times, _ := monthly.Times()
	vals := v.Values()

	firstYear, lastYear := times[0].Year(), times[len(times)-1].Year()
	nYears := lastYear - firstYear + 1
	grid := make([]float64, nYears*12)
	for i := range grid {
		grid[i] = math.NaN()
	}
	for i, t := range times {
		grid[(t.Year()-firstYear)*12+int(t.Month())-1] = vals[i]
	}
	overall := nanMean(vals)

	moy := make([]float64, 12)
	cyc := make([]float64, 12)
	for m := 0; m < 12; m++ {
		moy[m] = float64(m + 1)
		col := make([]float64, nYears)
		for y := 0; y < nYears; y++ {
			col[y] = grid[y*12+m]
		}
		cyc[m] = nanMean(col) - overall
	}
	years := make([]float64, nYears)
	yr := make([]float64, len(grid))
	for y := 0; y < nYears; y++ {
		years[y] = float64(firstYear + y)
		row := grid[y*12 : (y+1)*12]
		mean := nanMean(row)
		for m, x := range row {
			yr[y*12+m] = x - mean
		}
	}

	cycle = NewDataset()
	cv := NewVariable([]string{"moy"}, []int{12}, cyc)
	cv.Attrs = copyAttrs(v.Attrs)
	cycle.AddVariable(name, cv)
	cycle.AddCoord("moy", NewCoord("moy", moy))

	yearly = NewDataset()
	yv := NewVariable([]string{"year", "moy"}, []int{nYears, 12}, yr)
	yv.Attrs = copyAttrs(v.Attrs)
	yearly.AddVariable(name, yv)
	yearly.AddCoord("year", NewCoord("year", years))
	yearly.AddCoord("moy", NewCoord("moy", moy))
	return cycle, yearly, nil
}
