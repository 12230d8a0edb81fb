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
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultStationPattern is the file name pattern of station files.
const DefaultStationPattern = "co2_[KEY]*.nc"

// DefaultModelPattern is the file name pattern of model output files,
// for keys of the form "source.experiment".
const DefaultModelPattern = "*[SOURCE]*[EXPERIMENT]*.nc"

// LocalFileProvider reads datasets from NetCDF files in a directory.
// File name patterns may contain the following wildcards:
//  [KEY]        the dataset key
//  [SOURCE]     the source (model) name of a dotted key
//  [EXPERIMENT] the experiment name of a dotted key
// in addition to the usual glob syntax. All files that match the pattern
// of a key are joined along their record dimension.
type LocalFileProvider struct {
	// Dir is the directory holding the files. Environment variables
	// are expanded.
	Dir string

	// Pattern is the file name pattern used for keys not in Patterns.
	Pattern string

	// Patterns holds per-key patterns, e.g. from a station dictionary.
	Patterns map[string]string
}

// keyParts splits a dotted dataset key into its source and experiment.
// Keys are either "source.experiment" or the six-part CMIP form
// "activity.institution.source.experiment.table.grid".
func keyParts(key string) (source, experiment string) {
	p := strings.Split(key, ".")
	switch {
	case len(p) >= 6:
		return p[2], p[3]
	case len(p) >= 2:
		return p[0], p[1]
	}
	return key, ""
}

// expandPattern replaces the wildcards in pattern for key.
func expandPattern(pattern, key string) string {
	source, experiment := keyParts(key)
	r := strings.NewReplacer("[KEY]", key, "[SOURCE]", source, "[EXPERIMENT]", experiment)
	return r.Replace(pattern)
}

// keys returns the dataset keys to search for. The "key" criterion wins,
// then per-key patterns.
func (p *LocalFileProvider) keys(c Criteria) []string {
	if k, ok := c["key"]; ok {
		return k
	}
	keys := make([]string, 0, len(p.Patterns))
	for k := range p.Patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Search implements Provider. Keys without any matching files are left
// out of the catalog. Criteria other than "key" are matched against the
// facets "key", "source_id" and "experiment_id".
func (p *LocalFileProvider) Search(ctx context.Context, c Criteria) (*Catalog, error) {
	keys := p.keys(c)
	if len(keys) == 0 {
		return nil, fmt.Errorf("co2diag: LocalFileProvider: no dataset keys to search for")
	}
	dir := os.ExpandEnv(p.Dir)
	facetCriteria := make(Criteria)
	for k, v := range c {
		if k != "key" {
			facetCriteria[k] = v
		}
	}
	cat := new(Catalog)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pattern, ok := p.Patterns[key]
		if !ok {
			pattern = p.Pattern
		}
		if pattern == "" {
			return nil, fmt.Errorf("co2diag: LocalFileProvider: no file pattern for key %s", key)
		}
		paths, err := filepath.Glob(filepath.Join(dir, expandPattern(pattern, key)))
		if err != nil {
			return nil, fmt.Errorf("co2diag: LocalFileProvider: key %s: %v", key, err)
		}
		if len(paths) == 0 {
			continue
		}
		sort.Strings(paths)
		source, experiment := keyParts(key)
		facets := map[string]string{"key": key, "source_id": source, "experiment_id": experiment}
		if !facetCriteria.Match(facets) {
			continue
		}
		cat.Entries = append(cat.Entries, CatalogEntry{Key: key, Paths: paths, Facets: facets})
	}
	return cat, nil
}

// Materialize implements Provider.
func (p *LocalFileProvider) Materialize(ctx context.Context, cat *Catalog) (*DatasetDict, error) {
	dd := NewDatasetDict()
	var failed *ExecutionError
	for _, e := range cat.Entries {
		if err := ctx.Err(); err != nil {
			return dd, err
		}
		ds, err := openFiles(e.Paths)
		if err != nil {
			failed = failed.add("materialize", e.Key, err)
			continue
		}
		dd.Set(e.Key, ds)
	}
	if failed != nil {
		return dd, failed
	}
	return dd, nil
}

// openFiles reads and joins a set of NetCDF files along the record
// dimension of the first.
func openFiles(paths []string) (*Dataset, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("co2diag: no files")
	}
	dss := make([]*Dataset, len(paths))
	for i, path := range paths {
		ds, err := OpenNCF(path)
		if err != nil {
			return nil, err
		}
		dss[i] = ds
	}
	return Concat(recordDim(dss[0]), dss...)
}

// recordDim returns the dimension files of ds are joined along.
func recordDim(ds *Dataset) string {
	if d, ok := ds.Attrs[UnlimitedDimAttr]; ok {
		return d
	}
	if ds.HasDim("time") {
		return "time"
	}
	return "obs"
}
