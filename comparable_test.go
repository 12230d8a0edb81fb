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
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// stationDataset has monthly co2 at a fixed location, in the layout
// produced by ObsPackPreprocess.
func stationDataset(start time.Time, months int, lat, lon, alt float64) *Dataset {
	times := make([]float64, months)
	co2 := make([]float64, months)
	lats := make([]float64, months)
	lons := make([]float64, months)
	alts := make([]float64, months)
	for i := range times {
		times[i] = timeToSeconds(start.AddDate(0, i, 0))
		co2[i] = 370 + 2*float64(i)/12
		lats[i], lons[i], alts[i] = lat, lon, alt
	}
	ds := NewDataset()
	tc := NewCoord("time", times)
	tc.Attrs["units"] = CanonicalTimeUnits
	tc.Attrs["calendar"] = CanonicalTimeCalendar
	ds.AddCoord("time", tc)
	ds.AddCoord("latitude", NewCoord("time", lats))
	ds.AddCoord("longitude", NewCoord("time", lons))
	a := NewCoord("time", alts)
	a.Attrs["units"] = "m"
	ds.AddCoord("altitude", a)
	v := NewCoord("time", co2)
	v.Attrs["units"] = PPM
	ds.AddVariable("co2", v)
	ds.AddVariable("qcflag", NewCoord("time", make([]float64, months)))
	return ds
}

func TestMakeComparable(t *testing.T) {
	obs := stationDataset(date(2000, 1, 1), 132, 19.5, -155.6, 3397)
	mdl := modelDataset(date(1995, 1, 1), 132)

	t.Run("station", func(t *testing.T) {
		o, m, err := MakeComparable(obs, mdl, CompareOptions{
			Lat: 19.5, Lon: -155.6, Altitude: 3397,
			AltitudeMethod: AltitudeLowest,
			Var:            "co2",
		})
		if err != nil {
			t.Fatal(err)
		}
		if have := o.Dims()["time"]; have != 72 {
			t.Errorf("observation times: have %d, want 72", have)
		}
		if have := m.Dims()["time"]; have != 72 {
			t.Errorf("model times: have %d, want 72", have)
		}
		if !reflect.DeepEqual(m.Vars["co2"].Dims, []string{"time"}) {
			t.Errorf("model dims: have %v", m.Vars["co2"].Dims)
		}
		if p := m.Coords["plev"].Values()[0]; p != 100000 {
			t.Errorf("lowest level: have %g, want 100000", p)
		}
		if lat := m.Coords["lat"].Values()[0]; lat != 45 {
			t.Errorf("lat: have %g, want 45", lat)
		}
		if _, ok := o.Vars["qcflag"]; ok {
			t.Error("other variables should be dropped")
		}
		oStart, oEnd, _ := o.TimeRange()
		mStart, mEnd, _ := m.TimeRange()
		if !oStart.Equal(mStart) || !oEnd.Equal(mEnd) {
			t.Errorf("windows differ: %v-%v and %v-%v", oStart, oEnd, mStart, mEnd)
		}
	})

	t.Run("nearest altitude", func(t *testing.T) {
		_, m, err := MakeComparable(obs, mdl, CompareOptions{
			Lat: 19.5, Lon: -155.6, Altitude: 3397,
			AltitudeMethod: AltitudeNearest,
		})
		if err != nil {
			t.Fatal(err)
		}
		if p := m.Coords["plev"].Values()[0]; p != 50000 {
			t.Errorf("level: have %g, want 50000", p)
		}
	})

	t.Run("window", func(t *testing.T) {
		o, _, err := MakeComparable(obs, mdl, CompareOptions{
			Start:          date(2001, 1, 1),
			End:            date(2002, 1, 1),
			AltitudeMethod: AltitudeLowest,
		})
		if err != nil {
			t.Fatal(err)
		}
		if have := o.Dims()["time"]; have != 13 {
			t.Errorf("times: have %d, want 13", have)
		}
	})

	t.Run("global mean", func(t *testing.T) {
		o, m, err := MakeComparable(obs, mdl, CompareOptions{
			GlobalMean:     true,
			AltitudeMethod: AltitudeLowest,
			Var:            "co2",
		})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(m.Vars["co2"].Dims, []string{"time"}) {
			t.Errorf("model dims: have %v", m.Vars["co2"].Dims)
		}
		if !reflect.DeepEqual(o.Vars["co2"].Dims, []string{"time"}) {
			t.Errorf("observation dims: have %v", o.Vars["co2"].Dims)
		}
	})

	t.Run("outside grid", func(t *testing.T) {
		log, hook := test.NewNullLogger()
		_, m, err := MakeComparable(obs, mdl, CompareOptions{
			Lat: 82.5, Lon: -62.5,
			AltitudeMethod: AltitudeLowest,
			Log:            log,
		})
		if err != nil {
			t.Fatal(err)
		}
		if lat := m.Coords["lat"].Values()[0]; lat != 45 {
			t.Errorf("lat: have %g, want 45", lat)
		}
		e := hook.LastEntry()
		if e == nil || e.Level != logrus.WarnLevel {
			t.Fatalf("want a warning, have %v", e)
		}
		hook.Reset()
		if _, _, err = MakeComparable(obs, mdl, CompareOptions{
			Lat: 19.5, Lon: -155.6,
			AltitudeMethod: AltitudeLowest,
			Log:            log,
		}); err != nil {
			t.Fatal(err)
		}
		if e := hook.LastEntry(); e != nil {
			t.Errorf("unexpected log entry %q", e.Message)
		}
	})

	t.Run("no overlap", func(t *testing.T) {
		late := stationDataset(date(2015, 1, 1), 60, 19.5, -155.6, 3397)
		early := modelDataset(date(2000, 1, 1), 120)
		_, _, err := MakeComparable(late, early, CompareOptions{})
		var no *NoOverlapError
		if !errors.As(err, &no) {
			t.Fatalf("have %v, want NoOverlapError", err)
		}
		if no.ObsStart.Year() != 2015 || no.ModelEnd.Year() != 2009 {
			t.Errorf("periods: %v", no)
		}
	})
}
