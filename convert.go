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
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Physical constants
const (
	MWa   = 28.97 // g/mol, molar mass of dry air
	MWco2 = 44.01 // g/mol, molar mass of CO2
)

// PPM is the canonical concentration unit.
const PPM = "ppm"

var (
	molFracUnits = []string{"mol mol-1", "mol/mol", "mol mol^-1", "1", "mole fraction"}
	kgFracUnits  = []string{"kg kg-1", "kg/kg", "kg kg^-1"}
)

// molToPPM is the factor converting mole fraction to parts per million.
const molToPPM = 1.e6

// kgToPPM returns the factor converting a mass fraction of a gas with
// molar mass mw to parts per million by volume.
func kgToPPM(mw float64) float64 {
	return molToPPM * MWa / mw
}

// MolFracToPPM returns a copy of ds in which variable name has been
// converted from mole fraction (mol/mol) to ppm.
// If the variable is already in ppm it is returned unchanged. If it has
// some other unit, a *UnitMismatchError is returned.
func MolFracToPPM(ds *Dataset, name string) (*Dataset, error) {
	return scaleToPPM(ds, name, molToPPM, molFracUnits)
}

// KgFracToPPM returns a copy of ds in which variable name has been
// converted from CO2 mass fraction (kg/kg) to ppm, using the molar masses
// of dry air and CO2.
// If the variable is already in ppm it is returned unchanged. If it has
// some other unit, a *UnitMismatchError is returned.
func KgFracToPPM(ds *Dataset, name string) (*Dataset, error) {
	return scaleToPPM(ds, name, kgToPPM(MWco2), kgFracUnits)
}

func scaleToPPM(ds *Dataset, name string, factor float64, accept []string) (*Dataset, error) {
	v, err := ds.Var(name)
	if err != nil {
		return nil, err
	}
	u, hasUnits := v.Attrs["units"]
	u = strings.TrimSpace(u)
	if hasUnits && u == PPM {
		return ds.Copy(), nil
	}
	if hasUnits && u != "" && !unitIn(u, accept) {
		return nil, &UnitMismatchError{Var: name, Got: u, Want: accept}
	}
	o := ds.Copy()
	ov, _ := o.Get(name)
	floats.Scale(factor, ov.Data.Elements)
	ov.Attrs["units"] = PPM
	return o, nil
}

func unitIn(u string, accept []string) bool {
	for _, a := range accept {
		if strings.EqualFold(u, a) {
			return true
		}
	}
	return false
}
