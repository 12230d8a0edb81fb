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

package co2util

import (
	"context"
	"errors"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spatialmodel/co2diag"
)

func writeNCF(t *testing.T, path string, ds *co2diag.Dataset) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := co2diag.WriteNCF(f, ds); err != nil {
		f.Close()
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// obsPackFile writes a station file with two observations per month for
// the given number of months, starting in January 2000. The observed mole
// fraction in month i is (380 + i) ppm.
func obsPackFile(t *testing.T, path string, months int, lat, lon, alt float64) {
	t.Helper()
	n := 2 * months
	cols := map[string][]float64{}
	for _, c := range []string{"obs", "time", "latitude", "longitude", "altitude", "value"} {
		cols[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		m := i / 2
		day := 1 + 14*(i%2)
		cols["obs"][i] = float64(i)
		cols["time"][i] = float64(time.Date(2000, time.Month(1+m), day, 0, 0, 0, 0, time.UTC).Unix())
		cols["latitude"][i] = lat
		cols["longitude"][i] = lon
		cols["altitude"][i] = alt
		cols["value"][i] = (380 + float64(m)) * 1.e-6
	}
	ds := co2diag.NewDataset()
	ds.AddCoord("obs", co2diag.NewCoord("obs", cols["obs"]))
	units := map[string]string{
		"time":     co2diag.CanonicalTimeUnits,
		"altitude": "m",
		"value":    "mol mol-1",
	}
	for _, c := range []string{"time", "latitude", "longitude", "altitude", "value"} {
		v := co2diag.NewCoord("obs", cols[c])
		if u, ok := units[c]; ok {
			v.Attrs["units"] = u
		}
		ds.AddVariable(c, v)
	}
	writeNCF(t, path, ds)
}

func TestObsTimeseriesCommand(t *testing.T) {
	dir, err := ioutil.TempDir("", "co2util_obs")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	obsPackFile(t, filepath.Join(dir, "co2_mlo_surface-insitu_1_allvalid.nc"), 24, 19.5, -155.6, 3397)
	out := filepath.Join(dir, "out.nc")

	Root.SetArgs([]string{"obs-timeseries",
		"--ref_data", dir,
		"--station_code", "mlo",
		"--start_yr", "2001",
		"--end_yr", "none",
		"--output", out,
	})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	ds, err := co2diag.OpenNCF(out)
	if err != nil {
		t.Fatal(err)
	}
	co2, err := ds.Var("co2")
	if err != nil {
		t.Fatal(err)
	}
	if co2.Len() != 12 {
		t.Fatalf("months: have %d, want 12", co2.Len())
	}
	for i, v := range co2.Values() {
		if want := 392 + float64(i); math.Abs(v-want) > 1e-9 {
			t.Errorf("month %d: have %g, want %g", i, v, want)
		}
	}
}

func TestObsTimeseriesUnknownStation(t *testing.T) {
	o := &SurfaceOptions{RefData: os.TempDir(), StationCode: "xyz"}
	if _, err := ObsTimeseries(context.Background(), o, "", helperLog()); err == nil {
		t.Error("an unknown station should fail")
	}
}

func TestBin3DRecipe(t *testing.T) {
	dir, err := ioutil.TempDir("", "co2util_bin3d")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "aircraft.nc")
	obsPackFile(t, path, 24, 40, -105, 1500)

	ds, err := Bin3D(context.Background(), &BinOptions{
		RefData:       path,
		Year:          2000,
		VerticalEdges: []float64{0, 1000, 2000},
		NLat:          2,
		NLon:          2,
	}, helperLog())
	if err != nil {
		t.Fatal(err)
	}
	co2, err := ds.Var("co2")
	if err != nil {
		t.Fatal(err)
	}
	var found int
	for _, v := range co2.Values() {
		if v != co2diag.FillValue && !math.IsNaN(v) {
			found++
			// The mean of the first twelve months.
			if math.Abs(v-385.5) > 1e-9 {
				t.Errorf("bin mean: have %g, want 385.5", v)
			}
		}
	}
	if found != 1 {
		t.Errorf("filled bins: have %d, want 1", found)
	}
}

func TestMemberMean(t *testing.T) {
	ds := co2diag.NewDataset()
	ds.AddCoord("member_id", co2diag.NewLabelCoord("member_id", []string{"r1", "r2", "r3"}))
	ds.AddCoord("lat", co2diag.NewCoord("lat", []float64{0, 10}))
	ds.AddVariable("co2", co2diag.NewVariable([]string{"member_id", "lat"}, []int{3, 2},
		[]float64{1, 2, 3, 4, 8, 9}))

	all, err := memberMean(ds, nil, helperLog())
	if err != nil {
		t.Fatal(err)
	}
	if have := all.Vars["co2"].Values(); have[0] != 4 || have[1] != 5 {
		t.Errorf("all members: have %v", have)
	}
	some, err := memberMean(ds, []string{"r1", "r2"}, helperLog())
	if err != nil {
		t.Fatal(err)
	}
	if have := some.Vars["co2"].Values(); have[0] != 2 || have[1] != 3 {
		t.Errorf("r1 and r2: have %v", have)
	}
	_, err = memberMean(ds, []string{"r9"}, helperLog())
	var ke *co2diag.KeyError
	if !errors.As(err, &ke) || ke.Key != "r9" {
		t.Errorf("have %v, want KeyError for r9", err)
	}

	noMembers := co2diag.NewDataset()
	if o, err := memberMean(noMembers, []string{"r1"}, helperLog()); err != nil || o != noMembers {
		t.Errorf("a dataset without members should pass through: %v", err)
	}
}

func TestE3SMTimeseries(t *testing.T) {
	dir, err := ioutil.TempDir("", "co2util_e3sm")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ds := co2diag.NewDataset()
	tc := co2diag.NewCoord("time", []float64{0, 31, 59})
	tc.Attrs["units"] = "days since 2015-01-01 00:00:00"
	tc.Attrs["calendar"] = "noleap"
	ds.AddCoord("time", tc)
	ds.AddCoord("lev", co2diag.NewCoord("lev", []float64{500, 1000}))
	ds.AddCoord("ncol", co2diag.NewCoord("ncol", []float64{0, 1}))
	ds.AddCoord("one", co2diag.NewCoord("one", []float64{0}))
	ds.AddVariable("lat", co2diag.NewCoord("ncol", []float64{-30, 30}))
	ds.AddVariable("lon", co2diag.NewCoord("ncol", []float64{0, 180}))
	ds.AddVariable("hyam", co2diag.NewCoord("lev", []float64{0.5, 0}))
	ds.AddVariable("hybm", co2diag.NewCoord("lev", []float64{0, 1}))
	ds.AddVariable("P0", co2diag.NewCoord("one", []float64{100000}))
	ds.AddVariable("PS", co2diag.NewVariable([]string{"time", "ncol"}, []int{3, 2}, []float64{
		100000, 90000, 100000, 90000, 100000, 90000}))
	co2 := co2diag.NewVariable([]string{"time", "lev", "ncol"}, []int{3, 2, 2}, []float64{
		1e-4, 1e-4, 5e-4, 7e-4,
		1e-4, 1e-4, 5e-4, 7e-4,
		1e-4, 1e-4, 5e-4, 7e-4,
	})
	co2.Attrs["units"] = "kg kg-1"
	ds.AddVariable("CO2", co2)
	path := filepath.Join(dir, "e3sm.nc")
	writeNCF(t, path, ds)

	o, err := E3SMTimeseries(context.Background(), &E3SMOptions{TestData: path}, "", helperLog())
	if err != nil {
		t.Fatal(err)
	}
	v, err := o.Var("CO2")
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 3 {
		t.Fatalf("times: have %d, want 3", v.Len())
	}
	want := 6e-4 * 1e6 * co2diag.MWa / co2diag.MWco2
	for i, x := range v.Values() {
		if math.Abs(x-want) > 1e-9 {
			t.Errorf("time %d: have %g, want %g", i, x, want)
		}
	}

	first := 0
	o, err = E3SMTimeseries(context.Background(), &E3SMOptions{TestData: path, LevIndex: &first}, "", helperLog())
	if err != nil {
		t.Fatal(err)
	}
	want = 1e-4 * 1e6 * co2diag.MWa / co2diag.MWco2
	if x := o.Vars["CO2"].Values()[0]; math.Abs(x-want) > 1e-9 {
		t.Errorf("top level: have %g, want %g", x, want)
	}
}
