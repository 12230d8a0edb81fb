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
	"io"
	"math"
	"sort"

	"github.com/BurntSushi/toml"
	"gonum.org/v1/gonum/stat"
)

// Station holds the static description of a surface observing station.
type Station struct {
	Name    string  `toml:"name"`
	Lat     float64 `toml:"lat"`
	Lon     float64 `toml:"lon"`
	Country string  `toml:"country"`

	// FilePattern is the file name pattern for the station's data files,
	// e.g. "co2_mlo_surface*.nc". If it is empty, DefaultStationPattern is used.
	FilePattern string `toml:"file_pattern"`
}

// StationDict maps station codes to station descriptions.
type StationDict map[string]Station

// LoadStationDict reads a station dictionary in TOML format, where each
// table is a station code:
//
//	[mlo]
//	name = "Mauna Loa Observatory"
//	lat = 19.5
//	lon = -155.6
//	country = "United States"
//	file_pattern = "co2_mlo_surface*.nc"
func LoadStationDict(r io.Reader) (StationDict, error) {
	var sd StationDict
	if _, err := toml.DecodeReader(r, &sd); err != nil {
		return nil, fmt.Errorf("co2diag: reading station dictionary: %v", err)
	}
	return sd, nil
}

// Copy returns a copy of sd.
func (sd StationDict) Copy() StationDict {
	if sd == nil {
		return nil
	}
	o := make(StationDict, len(sd))
	for k, v := range sd {
		o[k] = v
	}
	return o
}

// Codes returns the sorted station codes.
func (sd StationDict) Codes() []string {
	o := make([]string, 0, len(sd))
	for k := range sd {
		o = append(o, k)
	}
	sort.Strings(o)
	return o
}

// Patterns returns the file pattern for every station, keyed by code.
func (sd StationDict) Patterns() map[string]string {
	o := make(map[string]string, len(sd))
	for k, s := range sd {
		o[k] = s.FilePattern
		if s.FilePattern == "" {
			o[k] = DefaultStationPattern
		}
	}
	return o
}

// StationMetadata is the location of a station as measured by its
// observations. It is computed once when the station's data are loaded.
type StationMetadata struct {
	Station
	Code string

	// Lat and Lon are the mean observed position. Lon is in [0, 360).
	Lat, Lon float64

	// Altitude is the mean observed altitude in meters.
	Altitude float64
}

// NewStationMetadata computes the metadata for station code from its
// observations in ds, which must contain latitude, longitude and altitude
// variables. Altitude must be in meters.
func NewStationMetadata(code string, st Station, ds *Dataset) (StationMetadata, error) {
	get := func(names ...string) (*Variable, error) {
		for _, n := range names {
			if v, ok := ds.Get(n); ok {
				return v, nil
			}
		}
		return nil, &NoCoordinateDataError{Missing: names[0]}
	}
	lat, err := get("latitude", "lat")
	if err != nil {
		return StationMetadata{}, err
	}
	lon, err := get("longitude", "lon")
	if err != nil {
		return StationMetadata{}, err
	}
	alt, err := get("altitude", "alt")
	if err != nil {
		return StationMetadata{}, err
	}
	if u := alt.Units(); u != "m" {
		return StationMetadata{}, &UnitMismatchError{Var: "altitude", Got: u, Want: []string{"m"}}
	}
	m := StationMetadata{
		Station:  st,
		Code:     code,
		Lat:      nanMean(lat.Values()),
		Lon:      nanMean(lon.Values()),
		Altitude: nanMean(alt.Values()),
	}
	if m.Lon < 0 {
		m.Lon += 360
	}
	return m, nil
}

// nanMean returns the mean of the non-missing values in x, or NaN if there
// are none.
func nanMean(x []float64) float64 {
	v := make([]float64, 0, len(x))
	for _, f := range x {
		if !math.IsNaN(f) {
			v = append(v, f)
		}
	}
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}
