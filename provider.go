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
	"context"
	"fmt"
	"sort"
	"strings"
)

// Criteria selects datasets from a provider. Each facet (e.g.
// "source_id" or "station") maps to the accepted values; an empty or
// missing facet accepts anything.
type Criteria map[string][]string

// Match returns whether facets satisfies every criterion.
func (c Criteria) Match(facets map[string]string) bool {
	for k, accept := range c {
		if len(accept) == 0 {
			continue
		}
		v, ok := facets[k]
		if !ok {
			return false
		}
		found := false
		for _, a := range accept {
			if a == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c Criteria) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p := make([]string, len(keys))
	for i, k := range keys {
		p[i] = fmt.Sprintf("%s=%s", k, strings.Join(c[k], "|"))
	}
	return "{" + strings.Join(p, " ") + "}"
}

// CatalogEntry describes one dataset a provider can materialize.
type CatalogEntry struct {
	// Key is the stable name of the dataset, e.g.
	// "CMIP.NOAA-GFDL.GFDL-ESM4.esm-hist.Amon.gr1" or a station code.
	Key string

	// Members holds the ensemble member of each path, or is empty if
	// the dataset has no ensemble dimension.
	Members []string

	// Paths holds the locations of the files or objects that make up the
	// dataset.
	Paths []string

	// Facets holds descriptive fields used for searching.
	Facets map[string]string
}

// Catalog is the result of a provider search.
type Catalog struct {
	Entries []CatalogEntry
}

// Keys returns the keys of the catalog entries in order.
func (c *Catalog) Keys() []string {
	o := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		o[i] = e.Key
	}
	return o
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// Provider is a source of datasets, such as a directory of files or a
// remote data catalog. Calls are blocking and safe to retry.
type Provider interface {
	// Search returns the datasets matching the given criteria.
	Search(ctx context.Context, c Criteria) (*Catalog, error)

	// Materialize reads the datasets in the catalog. Datasets that fail
	// to load are left out of the result and reported in an
	// *ExecutionError.
	Materialize(ctx context.Context, c *Catalog) (*DatasetDict, error)
}
