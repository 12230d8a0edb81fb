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
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

// gridDataset3x4 has co2(lat, lon) on a regular grid, with each value
// encoding its position.
func gridDataset3x4() *Dataset {
	ds := NewDataset()
	ds.AddCoord("lat", NewCoord("lat", []float64{-10, 0, 10}))
	ds.AddCoord("lon", NewCoord("lon", []float64{0, 10, 20, 30}))
	vals := make([]float64, 12)
	for i := range vals {
		vals[i] = float64(i)
	}
	ds.AddVariable("co2", NewVariable([]string{"lat", "lon"}, []int{3, 4}, vals))
	return ds
}

func TestNearestCell(t *testing.T) {
	ds := gridDataset3x4()

	t.Run("exact", func(t *testing.T) {
		m, err := NearestCell(ds, 0, 10, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(m.Index, []int{1, 1}) {
			t.Errorf("index: have %v, want [1 1]", m.Index)
		}
		if m.Distance != 0 {
			t.Errorf("distance: have %g, want 0", m.Distance)
		}
		if m.Outside {
			t.Error("point should be inside the grid")
		}
	})

	t.Run("tie", func(t *testing.T) {
		// Halfway between two cells the first in row-major order wins.
		m, err := NearestCell(ds, 0, 5, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(m.Index, []int{1, 0}) {
			t.Errorf("index: have %v, want [1 0]", m.Index)
		}
	})

	t.Run("longitude wrap", func(t *testing.T) {
		m, err := NearestCell(ds, 10, -340, Planar{})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(m.Index, []int{2, 2}) {
			t.Errorf("index: have %v, want [2 2]", m.Index)
		}
		if m.Distance > 1e-9 {
			t.Errorf("distance: have %g, want 0", m.Distance)
		}
	})

	t.Run("outside", func(t *testing.T) {
		m, err := NearestCell(ds, 50, 10, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !m.Outside {
			t.Error("point should be outside the grid")
		}
		if !reflect.DeepEqual(m.Index, []int{2, 1}) {
			t.Errorf("index: have %v, want [2 1]", m.Index)
		}
	})

	t.Run("longitude seam", func(t *testing.T) {
		global := NewDataset()
		lons := make([]float64, 144)
		for i := range lons {
			lons[i] = 2.5 * float64(i)
		}
		global.AddCoord("lat", NewCoord("lat", []float64{-10, 0, 10}))
		global.AddCoord("lon", NewCoord("lon", lons))
		regional := NewDataset()
		regional.AddCoord("lat", NewCoord("lat", []float64{-10, 0, 10}))
		regional.AddCoord("lon", NewCoord("lon", []float64{350, 0, 10, 20}))

		for _, tc := range []struct {
			name    string
			ds      *Dataset
			lon     float64
			outside bool
		}{
			{"global east of last", global, 359, false},
			{"global west of zero", global, -0.5, false},
			{"regional across seam", regional, -5, false},
			{"regional inside", regional, 15, false},
			{"regional east", regional, 40, true},
			{"regional far west", regional, 300, true},
			{"grid 3x4 beyond east edge", gridDataset3x4(), 45, true},
			{"grid 3x4 across seam", gridDataset3x4(), -5, true},
		} {
			m, err := NearestCell(tc.ds, 0, tc.lon, nil)
			if err != nil {
				t.Fatal(err)
			}
			if m.Outside != tc.outside {
				t.Errorf("%s: outside is %v, want %v", tc.name, m.Outside, tc.outside)
			}
		}
	})

	t.Run("unstructured", func(t *testing.T) {
		u := NewDataset()
		u.AddCoord("ncol", NewCoord("ncol", []float64{0, 1, 2}))
		u.AddCoord("lat", NewVariable([]string{"ncol"}, []int{3}, []float64{-45, 0, 45}))
		u.AddCoord("lon", NewVariable([]string{"ncol"}, []int{3}, []float64{90, 180, 270}))
		u.AddVariable("CO2", NewVariable([]string{"ncol"}, []int{3}, []float64{1, 2, 3}))
		o, m, err := SelectNearest(u, 40, -80, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(m.Index, []int{2}) {
			t.Errorf("index: have %v, want [2]", m.Index)
		}
		if have := o.Vars["CO2"].Values(); len(have) != 1 || have[0] != 3 {
			t.Errorf("value: have %v, want [3]", have)
		}
	})

	t.Run("no coordinates", func(t *testing.T) {
		_, err := NearestCell(NewDataset(), 0, 0, nil)
		var nc *NoCoordinateDataError
		if !errors.As(err, &nc) {
			t.Errorf("have %v, want NoCoordinateDataError", err)
		}
	})
}

func TestSelectNearest(t *testing.T) {
	o, _, err := SelectNearest(gridDataset3x4(), 9, 21, nil)
	if err != nil {
		t.Fatal(err)
	}
	v := o.Vars["co2"]
	if len(v.Dims) != 0 || v.Values()[0] != 10 {
		t.Errorf("have %v%v, want scalar 10", v.Dims, v.Values())
	}
}

func TestGreatCircle(t *testing.T) {
	// A quarter of the way around the equator.
	d := GreatCircle{}.Distance(geom.Point{X: 0, Y: 0}, geom.Point{X: 90, Y: 0})
	if want := math.Pi / 2 * EarthRadius; math.Abs(d-want) > 1e-6 {
		t.Errorf("have %g, want %g", d, want)
	}
}

func TestNormalizeLon360(t *testing.T) {
	for _, tc := range []struct{ in, want float64 }{
		{0, 0}, {-10, 350}, {360, 0}, {725, 5}, {-360, 0},
	} {
		if have := NormalizeLon360(tc.in); have != tc.want {
			t.Errorf("%g: have %g, want %g", tc.in, have, tc.want)
		}
	}
}
