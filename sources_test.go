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
	"reflect"
	"testing"
)

// e3smDataset is E3SM atmosphere output on two levels and three columns,
// with its two times stored out of order.
func e3smDataset() *Dataset {
	ds := NewDataset()
	tc := NewCoord("time", []float64{31, 0})
	tc.Attrs["units"] = "days since 2015-01-01 00:00:00"
	tc.Attrs["calendar"] = "noleap"
	ds.AddCoord("time", tc)
	ds.AddCoord("lev", NewCoord("lev", []float64{500, 1000}))
	ds.AddCoord("ncol", NewCoord("ncol", []float64{0, 1, 2}))
	ds.AddVariable("lat", NewCoord("ncol", []float64{-30, 0, 30}))
	ds.AddVariable("lon", NewCoord("ncol", []float64{0, 120, 240}))
	ds.AddVariable("hyam", NewCoord("lev", []float64{0.5, 0}))
	ds.AddVariable("hybm", NewCoord("lev", []float64{0, 1}))
	ds.AddVariable("P0", NewScalar(100000))
	ds.AddVariable("PS", NewVariable([]string{"time", "ncol"}, []int{2, 3},
		[]float64{90000, 95000, 100000, 80000, 85000, 90000}))
	co2 := NewVariable([]string{"time", "lev", "ncol"}, []int{2, 2, 3}, nil)
	for i := range co2.Data.Elements {
		co2.Data.Elements[i] = 6.e-4
	}
	co2.Attrs["units"] = "kg/kg"
	ds.AddVariable("CO2", co2)
	return ds
}

func TestMidLevelPressure(t *testing.T) {
	p, err := MidLevelPressure(e3smDataset())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p.Dims, []string{"time", "lev", "ncol"}) {
		t.Fatalf("dims: have %v", p.Dims)
	}
	want := []float64{
		50000, 50000, 50000, 90000, 95000, 100000,
		50000, 50000, 50000, 80000, 85000, 90000,
	}
	if !equalFloats(p.Values(), want, 1e-9) {
		t.Errorf("have %v, want %v", p.Values(), want)
	}
	if p.Units() != "Pa" {
		t.Errorf("units: have %q", p.Units())
	}

	bad := e3smDataset()
	delete(bad.Vars, "hybm")
	if _, err := MidLevelPressure(bad); err == nil {
		t.Error("missing coefficients should fail")
	}
}

func TestE3SMPreprocess(t *testing.T) {
	ds, err := E3SMPreprocess("e3sm", e3smDataset())
	if err != nil {
		t.Fatal(err)
	}
	times, err := ds.Times()
	if err != nil {
		t.Fatal(err)
	}
	if !times[0].Equal(date(2015, 1, 1)) || !times[1].Equal(date(2015, 2, 1)) {
		t.Errorf("times: have %v", times)
	}
	pmid, ok := ds.Coords["PMID"]
	if !ok {
		t.Fatal("PMID is not a coordinate")
	}
	// Sorting by time moves the second surface pressure record first.
	if have := pmid.Data.Get(0, 1, 2); have != 90000 {
		t.Errorf("PMID at the first time: have %g, want 90000", have)
	}
	if _, ok := ds.Coords["lat"]; !ok {
		t.Error("lat is not a coordinate")
	}
	co2 := ds.Vars["CO2"]
	want := 6.e-4 * 1.e6 * MWa / MWco2
	if co2.Units() != PPM || math.Abs(co2.Values()[0]-want) > 1e-9 {
		t.Errorf("CO2: have %g %s, want %g ppm", co2.Values()[0], co2.Units(), want)
	}
}

func TestObsPackPreprocess(t *testing.T) {
	ds, err := ObsPackPreprocess("tst", obsPackDataset(date(2010, 1, 1), 4, 40, -105, 1500))
	if err != nil {
		t.Fatal(err)
	}
	co2, ok := ds.Vars["co2"]
	if !ok {
		t.Fatalf("no co2 variable in %v", ds.Names())
	}
	if !reflect.DeepEqual(co2.Dims, []string{"time"}) {
		t.Errorf("dims: have %v", co2.Dims)
	}
	if !equalFloats(co2.Values(), []float64{380, 381, 382, 383}, 1e-9) {
		t.Errorf("values: have %v", co2.Values())
	}
	for _, c := range []string{"latitude", "longitude", "altitude"} {
		if _, ok := ds.Coords[c]; !ok {
			t.Errorf("%s is not a coordinate", c)
		}
	}
	start, _, err := ds.TimeRange()
	if err != nil || !start.Equal(date(2010, 1, 1)) {
		t.Errorf("start: have %v, %v", start, err)
	}
}

func TestCMIPCriteria(t *testing.T) {
	c := CMIPCriteria()
	row := map[string]string{"experiment_id": "esm-hist", "table_id": "Amon", "variable_id": "co2", "source_id": "CanESM5"}
	if !c.Match(row) {
		t.Error("an esm-hist Amon co2 row should match")
	}
	if CMIPCriteria("GFDL-ESM4", "MIROC-ES2L").Match(row) {
		t.Error("restricted criteria should not match other models")
	}
	row["table_id"] = "Omon"
	if c.Match(row) {
		t.Error("an ocean table should not match")
	}
}
