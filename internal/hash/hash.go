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

// Package hash creates cache keys for requests.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"reflect"

	"github.com/davecgh/go-spew/spew"
)

// Hash returns a hex-encoded key for the given objects, suitable for use
// as a file name. Equal objects give equal keys.
func Hash(objects ...interface{}) string {
	h := fnv.New128a()
	e := gob.NewEncoder(h)
	ok := true
	for _, o := range objects {
		if err := encode(e, o); err != nil {
			ok = false
			break
		}
	}
	if !ok {
		// Some values, such as nil pointers, cannot be
		// gob-encoded, so use spew instead.
		h.Reset()
		printer := spew.ConfigState{
			Indent:                  " ",
			SortKeys:                true,
			DisableMethods:          true,
			SpewKeys:                true,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
		}
		for _, o := range objects {
			printer.Fprintf(h, "%#v", o)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// encode gob-encodes o, returning an error instead of panicking for
// values gob rejects, such as nil pointers.
func encode(e *gob.Encoder, o interface{}) (err error) {
	if v := reflect.ValueOf(o); !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
		return fmt.Errorf("hash: cannot gob-encode %T", o)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hash: %v", r)
		}
	}()
	return e.Encode(o)
}
