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

package hash

import "testing"

func TestHash(t *testing.T) {
	a := Hash("gs://cmip6/a.nc", 3)
	b := Hash("gs://cmip6/a.nc", 3)
	c := Hash("gs://cmip6/b.nc", 3)
	if a != b {
		t.Errorf("equal inputs gave %s and %s", a, b)
	}
	if a == c {
		t.Errorf("different inputs gave the same key %s", a)
	}
	if len(a) != 32 {
		t.Errorf("key %s has length %d; want 32", a, len(a))
	}
}

func TestHashNotGobEncodable(t *testing.T) {
	var p *struct{ X int }
	if Hash(p) != Hash(p) {
		t.Error("nil pointer keys differ")
	}
	if Hash(p) == Hash(&struct{ X int }{X: 1}) {
		t.Error("nil and non-nil pointers gave the same key")
	}
	if Hash(nil) != Hash(nil) {
		t.Error("nil keys differ")
	}
	if Hash("a", p) == Hash("b", p) {
		t.Error("keys ignore values before the nil pointer")
	}
	ch := make(chan int)
	if Hash(ch) != Hash(ch) {
		t.Error("channel keys differ")
	}
}
