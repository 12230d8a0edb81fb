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

// DatasetDict is an ordered mapping from a source key (e.g., a model
// identifier or station code) to a Dataset. Keys are unique.
type DatasetDict struct {
	keys []string
	data map[string]*Dataset
}

// NewDatasetDict returns an empty DatasetDict.
func NewDatasetDict() *DatasetDict {
	return &DatasetDict{data: make(map[string]*Dataset)}
}

// Set adds ds under key. Replacing an existing key keeps its position.
func (dd *DatasetDict) Set(key string, ds *Dataset) {
	if _, ok := dd.data[key]; !ok {
		dd.keys = append(dd.keys, key)
	}
	dd.data[key] = ds
}

// Get returns the dataset stored under key.
func (dd *DatasetDict) Get(key string) (*Dataset, bool) {
	ds, ok := dd.data[key]
	return ds, ok
}

// Lookup returns the dataset stored under key or a *KeyError.
func (dd *DatasetDict) Lookup(key string) (*Dataset, error) {
	ds, ok := dd.data[key]
	if !ok {
		return nil, &KeyError{Key: key}
	}
	return ds, nil
}

// Delete removes key if it is present.
func (dd *DatasetDict) Delete(key string) {
	if _, ok := dd.data[key]; !ok {
		return
	}
	delete(dd.data, key)
	for i, k := range dd.keys {
		if k == key {
			dd.keys = append(dd.keys[:i], dd.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (dd *DatasetDict) Keys() []string {
	return append([]string{}, dd.keys...)
}

// Len returns the number of datasets.
func (dd *DatasetDict) Len() int {
	if dd == nil {
		return 0
	}
	return len(dd.keys)
}

// Copy returns a deep copy.
func (dd *DatasetDict) Copy() *DatasetDict {
	o := NewDatasetDict()
	for _, k := range dd.keys {
		o.Set(k, dd.data[k].Copy())
	}
	return o
}

// Subset returns a new DatasetDict holding only the given keys, in the
// given order. The datasets are shared, not copied. A missing key is
// an error.
func (dd *DatasetDict) Subset(keys ...string) (*DatasetDict, error) {
	o := NewDatasetDict()
	for _, k := range keys {
		ds, err := dd.Lookup(k)
		if err != nil {
			return nil, err
		}
		o.Set(k, ds)
	}
	return o, nil
}

// Apply returns a new DatasetDict holding the result of f for each
// dataset. Failed keys are omitted from the result and reported in an
// *ExecutionError; the remaining keys are still processed.
func (dd *DatasetDict) Apply(op string, f func(key string, ds *Dataset) (*Dataset, error)) (*DatasetDict, error) {
	o := NewDatasetDict()
	var failed *ExecutionError
	for _, k := range dd.keys {
		r, err := f(k, dd.data[k])
		if err != nil {
			failed = failed.add(op, k, err)
			continue
		}
		o.Set(k, r)
	}
	if failed != nil {
		return o, failed
	}
	return o, nil
}
