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
	"strings"
)

// CMIPCriteria returns the catalog search criteria for monthly
// atmospheric CO2 from the emission-driven historical experiment,
// optionally restricted to the given models.
func CMIPCriteria(sourceIDs ...string) Criteria {
	c := Criteria{
		"experiment_id": {"esm-hist"},
		"table_id":      {"Amon"},
		"variable_id":   {"co2"},
	}
	if len(sourceIDs) > 0 {
		c["source_id"] = append([]string{}, sourceIDs...)
	}
	return c
}

// normalizeAndSort normalizes the time coordinate of ds and sorts by it.
func normalizeAndSort(ds *Dataset) (*Dataset, error) {
	ds, err := NormalizeTime(ds)
	if err != nil {
		return nil, err
	}
	if _, ok := ds.DimCoord("time"); !ok {
		return ds, nil
	}
	return ds.SortBy("time")
}

// DefaultPreprocess normalizes and sorts time if the dataset has a time
// variable, and converts the variables co2 and CO2 to ppm according to
// their units.
func DefaultPreprocess(key string, ds *Dataset) (*Dataset, error) {
	var err error
	if _, ok := lookupCoord(ds, "time", "time_decimal"); ok {
		if ds, err = normalizeAndSort(ds); err != nil {
			return nil, err
		}
	}
	for _, name := range []string{"co2", "CO2"} {
		v, ok := ds.Vars[name]
		if !ok {
			continue
		}
		switch u := strings.TrimSpace(v.Units()); {
		case unitIn(u, kgFracUnits):
			ds, err = KgFracToPPM(ds, name)
		case u == PPM:
		default:
			ds, err = MolFracToPPM(ds, name)
		}
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// ObsPackPreprocess prepares an ObsPack surface station file: the
// position and time variables become coordinates, time becomes the
// dimension in place of obs, and value is renamed co2 and converted to
// ppm.
func ObsPackPreprocess(key string, ds *Dataset) (*Dataset, error) {
	var coords []string
	for _, n := range []string{"time", "time_decimal", "latitude", "longitude", "altitude"} {
		if _, ok := ds.Get(n); ok {
			coords = append(coords, n)
		}
	}
	ds, err := ds.SetCoords(coords...)
	if err != nil {
		return nil, err
	}
	if ds, err = NormalizeTime(ds); err != nil {
		return nil, err
	}
	if ds.HasDim("obs") {
		if ds, err = ds.SwapDims("obs", "time"); err != nil {
			return nil, err
		}
	}
	if ds, err = ds.SortBy("time"); err != nil {
		return nil, err
	}
	if _, ok := ds.Vars["value"]; ok {
		if ds, err = ds.Rename("value", "co2"); err != nil {
			return nil, err
		}
	}
	return MolFracToPPM(ds, "co2")
}

// CMIPPreprocess converts co2 from mole fraction to ppm and normalizes
// and sorts time.
func CMIPPreprocess(key string, ds *Dataset) (*Dataset, error) {
	ds, err := MolFracToPPM(ds, "co2")
	if err != nil {
		return nil, err
	}
	return normalizeAndSort(ds)
}

// E3SMPreprocess prepares E3SM atmosphere output: it computes the
// mid-level pressure PMID from the hybrid coefficients, makes the time,
// position and pressure variables coordinates, normalizes and sorts time,
// and converts CO2 from mass fraction to ppm.
func E3SMPreprocess(key string, ds *Dataset) (*Dataset, error) {
	pmid, err := MidLevelPressure(ds)
	if err != nil {
		return nil, err
	}
	ds = ds.Copy()
	ds.AddVariable("PMID", pmid)
	coords := []string{"PMID"}
	for _, n := range []string{"time", "lat", "lon"} {
		if _, ok := ds.Vars[n]; ok {
			coords = append(coords, n)
		}
	}
	if ds, err = ds.SetCoords(coords...); err != nil {
		return nil, err
	}
	if ds, err = normalizeAndSort(ds); err != nil {
		return nil, err
	}
	return KgFracToPPM(ds, "CO2")
}

// MidLevelPressure returns the pressure in Pa at the midpoint of each
// level of a hybrid sigma-pressure grid:
//  PMID = hyam·P0 + hybm·PS
// where hyam and hybm are the level coefficients, P0 is the reference
// pressure, and PS is the surface pressure. The result has the
// dimensions of PS with the level dimension inserted after time.
func MidLevelPressure(ds *Dataset) (*Variable, error) {
	var vars [4]*Variable
	for i, n := range []string{"hyam", "hybm", "P0", "PS"} {
		v, err := ds.Var(n)
		if err != nil {
			return nil, fmt.Errorf("co2diag: MidLevelPressure: %v", err)
		}
		vars[i] = v
	}
	hyam, hybm, p0, ps := vars[0], vars[1], vars[2], vars[3]
	if len(hyam.Dims) != 1 || !sameDims(hyam.Dims, hybm.Dims) || hyam.Len() != hybm.Len() {
		return nil, fmt.Errorf("co2diag: MidLevelPressure: hyam%v and hybm%v must share one level dimension",
			hyam.Dims, hybm.Dims)
	}
	if p0.Len() != 1 {
		return nil, fmt.Errorf("co2diag: MidLevelPressure: P0 must be a scalar")
	}
	lev := hyam.Dims[0]
	if ps.Axis(lev) >= 0 {
		return nil, fmt.Errorf("co2diag: MidLevelPressure: PS already has level dimension %s", lev)
	}

	at := 0
	if len(ps.Dims) > 0 && ps.Dims[0] == "time" {
		at = 1
	}
	dims := append(append(append([]string{}, ps.Dims[:at]...), lev), ps.Dims[at:]...)
	shape := append(append(append([]int{}, ps.Shape()[:at]...), hyam.Len()), ps.Shape()[at:]...)

	a := broadcastTo(hyam.Data, hyam.Dims, dims, shape)
	b := broadcastTo(hybm.Data, hybm.Dims, dims, shape)
	p := broadcastTo(ps.Data, ps.Dims, dims, shape)
	ref := p0.Data.Elements[0]
	for i := range a.Elements {
		a.Elements[i] = a.Elements[i]*ref + b.Elements[i]*p.Elements[i]
	}
	return &Variable{
		Dims: dims,
		Attrs: map[string]string{
			"units":     "Pa",
			"long_name": "mid-level pressure",
		},
		Data: a,
	}, nil
}
