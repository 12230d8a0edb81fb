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
	"strings"
	"testing"

	"github.com/kr/pretty"
)

const testStations = `
[mlo]
name = "Mauna Loa Observatory"
lat = 19.5
lon = -155.6
country = "United States"
file_pattern = "co2_mlo_surface*.nc"

[spo]
name = "South Pole"
lat = -89.98
lon = -24.8
`

func TestLoadStationDict(t *testing.T) {
	sd, err := LoadStationDict(strings.NewReader(testStations))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sd.Codes(), []string{"mlo", "spo"}) {
		t.Errorf("codes: have %v", sd.Codes())
	}
	want := StationDict{
		"mlo": {
			Name: "Mauna Loa Observatory", Lat: 19.5, Lon: -155.6,
			Country: "United States", FilePattern: "co2_mlo_surface*.nc",
		},
		"spo": {Name: "South Pole", Lat: -89.98, Lon: -24.8},
	}
	if diff := pretty.Diff(sd, want); len(diff) != 0 {
		t.Error(diff)
	}
	patterns := map[string]string{"mlo": "co2_mlo_surface*.nc", "spo": DefaultStationPattern}
	if have := sd.Patterns(); !reflect.DeepEqual(have, patterns) {
		t.Errorf("patterns: have %v, want %v", have, patterns)
	}

	c := sd.Copy()
	delete(c, "mlo")
	if _, ok := sd["mlo"]; !ok {
		t.Error("Copy shares storage with the original")
	}
	if StationDict(nil).Copy() != nil {
		t.Error("copy of nil should be nil")
	}

	if _, err := LoadStationDict(strings.NewReader("[mlo\nname=")); err == nil {
		t.Error("malformed TOML should fail")
	}
}

func TestNewStationMetadata(t *testing.T) {
	ds := stationDataset(date(2000, 1, 1), 3, -89.98, -24.8, 2810)
	ds.Coords["latitude"].Data.Elements[1] = math.NaN()
	m, err := NewStationMetadata("spo", Station{Name: "South Pole"}, ds)
	if err != nil {
		t.Fatal(err)
	}
	if m.Code != "spo" || m.Name != "South Pole" {
		t.Errorf("identity: %+v", m)
	}
	if math.Abs(m.Lat+89.98) > 1e-9 {
		t.Errorf("lat: have %g", m.Lat)
	}
	if math.Abs(m.Lon-335.2) > 1e-9 {
		t.Errorf("lon: have %g, want 335.2", m.Lon)
	}

	t.Run("altitude units", func(t *testing.T) {
		bad := ds.Copy()
		bad.Coords["altitude"].Attrs["units"] = "km"
		_, err := NewStationMetadata("spo", Station{}, bad)
		var um *UnitMismatchError
		if !errors.As(err, &um) {
			t.Errorf("have %v, want UnitMismatchError", err)
		}
	})

	t.Run("missing coordinate", func(t *testing.T) {
		bad := ds.Copy()
		delete(bad.Coords, "longitude")
		_, err := NewStationMetadata("spo", Station{}, bad)
		var nc *NoCoordinateDataError
		if !errors.As(err, &nc) || nc.Missing != "longitude" {
			t.Errorf("have %v, want NoCoordinateDataError for longitude", err)
		}
	})
}
