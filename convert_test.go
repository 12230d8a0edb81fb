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
	"testing"
)

func unitDataset(units string, vals ...float64) *Dataset {
	ds := NewDataset()
	ds.AddCoord("obs", NewCoord("obs", make([]float64, len(vals))))
	v := NewVariable([]string{"obs"}, []int{len(vals)}, vals)
	if units != "" {
		v.Attrs["units"] = units
	}
	ds.AddVariable("co2", v)
	return ds
}

func TestMolFracToPPM(t *testing.T) {
	in := unitDataset("mol mol-1", 4.e-4, math.NaN())
	o, err := MolFracToPPM(in, "co2")
	if err != nil {
		t.Fatal(err)
	}
	v := o.Vars["co2"]
	if math.Abs(v.Values()[0]-400) > 1e-9 || !math.IsNaN(v.Values()[1]) {
		t.Errorf("have %v, want [400 NaN]", v.Values())
	}
	if v.Units() != PPM {
		t.Errorf("units: have %q", v.Units())
	}
	if in.Vars["co2"].Values()[0] != 4.e-4 {
		t.Error("input was modified")
	}

	t.Run("idempotent", func(t *testing.T) {
		o2, err := MolFracToPPM(o, "co2")
		if err != nil {
			t.Fatal(err)
		}
		if o2.Vars["co2"].Values()[0] != v.Values()[0] {
			t.Errorf("second conversion changed %g to %g", v.Values()[0], o2.Vars["co2"].Values()[0])
		}
		o3, err := KgFracToPPM(o, "co2")
		if err != nil {
			t.Fatal(err)
		}
		if o3.Vars["co2"].Values()[0] != v.Values()[0] {
			t.Error("mass fraction conversion of ppm data changed it")
		}
	})

	t.Run("no units", func(t *testing.T) {
		o, err := MolFracToPPM(unitDataset("", 1.e-6), "co2")
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(o.Vars["co2"].Values()[0]-1) > 1e-12 {
			t.Errorf("have %g, want 1", o.Vars["co2"].Values()[0])
		}
	})

	t.Run("wrong units", func(t *testing.T) {
		_, err := MolFracToPPM(unitDataset("K", 300), "co2")
		var um *UnitMismatchError
		if !errors.As(err, &um) {
			t.Fatalf("have %v, want UnitMismatchError", err)
		}
		if um.Got != "K" {
			t.Errorf("got units: have %q", um.Got)
		}
	})

	t.Run("missing variable", func(t *testing.T) {
		if _, err := MolFracToPPM(unitDataset("ppm", 1), "CO2"); err == nil {
			t.Error("missing variable should fail")
		}
	})
}

func TestKgFracToPPM(t *testing.T) {
	const x = 6.e-4
	o, err := KgFracToPPM(unitDataset("kg/kg", x), "co2")
	if err != nil {
		t.Fatal(err)
	}
	want := x * 1.e6 * MWa / MWco2
	if have := o.Vars["co2"].Values()[0]; math.Abs(have-want) > 1e-9 {
		t.Errorf("have %g, want %g", have, want)
	}
	if _, err := KgFracToPPM(unitDataset("mol mol-1", x), "co2"); err == nil {
		t.Error("mole fraction input should fail")
	}
}

func TestDefaultPreprocessUnits(t *testing.T) {
	for _, tc := range []struct {
		units string
		in    float64
		want  float64
	}{
		{"mol mol-1", 4.e-4, 400},
		{"1", 4.e-4, 400},
		{"kg kg-1", 6.e-4, 6.e-4 * 1.e6 * MWa / MWco2},
		{"ppm", 400, 400},
	} {
		t.Run(tc.units, func(t *testing.T) {
			o, err := DefaultPreprocess("k", unitDataset(tc.units, tc.in))
			if err != nil {
				t.Fatal(err)
			}
			if have := o.Vars["co2"].Values()[0]; math.Abs(have-tc.want) > 1e-9 {
				t.Errorf("have %g, want %g", have, tc.want)
			}
		})
	}
}
