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
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// writeTestNCF writes ds to name in dir and returns the path.
func writeTestNCF(t *testing.T, dir, name string, ds *Dataset) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteNCF(f, ds); err != nil {
		f.Close()
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// obsPackDataset is a raw ObsPack station file: one record per
// observation along obs, with the mole fraction in value.
func obsPackDataset(start time.Time, n int, lat, lon, alt float64) *Dataset {
	ds := NewDataset()
	obs := make([]float64, n)
	times := make([]float64, n)
	lats := make([]float64, n)
	lons := make([]float64, n)
	alts := make([]float64, n)
	vals := make([]float64, n)
	for i := range obs {
		obs[i] = float64(i)
		// Records are stored newest first.
		times[i] = timeToSeconds(start.AddDate(0, n-1-i, 0))
		lats[i], lons[i], alts[i] = lat, lon, alt
		vals[i] = (380 + float64(n-1-i)) * 1.e-6
	}
	ds.AddCoord("obs", NewCoord("obs", obs))
	add := func(name, units string, v []float64) {
		vv := NewCoord("obs", v)
		if units != "" {
			vv.Attrs["units"] = units
		}
		ds.AddVariable(name, vv)
	}
	add("time", "seconds since 1970-01-01 00:00:00", times)
	add("latitude", "degrees_north", lats)
	add("longitude", "degrees_east", lons)
	add("altitude", "m", alts)
	add("value", "mol mol-1", vals)
	ds.Attrs["site_code"] = "TST"
	return ds
}

func TestNCFRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "co2diag_ncf")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ds := NewDataset()
	ds.Attrs["title"] = "round trip"
	tc := NewCoord("time", []float64{0, 86400, 172800})
	tc.Attrs["units"] = CanonicalTimeUnits
	ds.AddCoord("time", tc)
	ds.AddCoord("lat", NewCoord("lat", []float64{-45, 45}))
	ds.AddCoord("member_id", NewLabelCoord("member_id", []string{"r1i1p1f1", "r2i1p1f1"}))
	co2 := NewVariable([]string{"member_id", "time", "lat"}, []int{2, 3, 2},
		[]float64{1, 2, 3, 4, 5, 6, 7, 8, math.NaN(), 10, 11, 12})
	co2.Attrs["units"] = PPM
	co2.Attrs["_FillValue"] = "-999"
	ds.AddVariable("co2", co2)

	path := writeTestNCF(t, dir, "rt.nc", ds)
	o, err := OpenNCF(path)
	if err != nil {
		t.Fatal(err)
	}
	if o.Attrs["title"] != "round trip" {
		t.Errorf("title: have %q", o.Attrs["title"])
	}
	v, err := o.Var("co2")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v.Dims, co2.Dims) {
		t.Errorf("dims: have %v, want %v", v.Dims, co2.Dims)
	}
	if v.Units() != PPM {
		t.Errorf("units: have %q", v.Units())
	}
	for i, want := range co2.Values() {
		have := v.Values()[i]
		if math.IsNaN(want) != math.IsNaN(have) || (!math.IsNaN(want) && have != want) {
			t.Errorf("value %d: have %g, want %g", i, have, want)
		}
	}
	m, ok := o.DimCoord("member_id")
	if !ok {
		t.Fatal("member_id is not a coordinate")
	}
	if !reflect.DeepEqual(m.Labels, []string{"r1i1p1f1", "r2i1p1f1"}) {
		t.Errorf("labels: have %v", m.Labels)
	}
	times, err := o.Times()
	if err != nil {
		t.Fatal(err)
	}
	if !times[2].Equal(date(1970, 1, 3)) {
		t.Errorf("times: have %v", times)
	}
}

func TestWriteNCFInvalid(t *testing.T) {
	f, err := ioutil.TempFile("", "co2diag_invalid")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	ds := NewDataset()
	ds.AddVariable("co2", NewVariable([]string{"time"}, []int{2}, []float64{1, 2}))
	if err := WriteNCF(f, ds); err == nil {
		t.Error("a dimension without a coordinate should not write")
	}
}

func TestOpenNCFMissing(t *testing.T) {
	if _, err := OpenNCF(filepath.Join(os.TempDir(), "co2diag_does_not_exist.nc")); err == nil {
		t.Error("opening a missing file should fail")
	}
}

func TestWriteNCFOneDimension(t *testing.T) {
	dir, err := ioutil.TempDir("", "co2diag")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ds := NewDataset()
	ds.AddCoord("lat", NewCoord("lat", []float64{-45, 45}))
	ds.AddVariable("co2", NewVariable([]string{"lat"}, []int{2}, []float64{401, 403}))
	path := writeTestNCF(t, dir, "plain.nc", ds)

	o, err := OpenNCF(path)
	if err != nil {
		t.Fatal(err)
	}
	if have := o.Vars["co2"].Values(); !equalFloats(have, []float64{401, 403}, 0) {
		t.Errorf("co2: have %v, want [401 403]", have)
	}
	if have := o.Coords["lat"].Values(); !equalFloats(have, []float64{-45, 45}, 0) {
		t.Errorf("lat: have %v, want [-45 45]", have)
	}
}
