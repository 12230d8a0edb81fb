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
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/co2diag/cloud"
	"github.com/spatialmodel/co2diag/internal/hash"
	"github.com/spatialmodel/co2diag/internal/metrics"
)

// keyFacets are the catalog columns that make up a dataset key, in order.
var keyFacets = []string{"activity_id", "institution_id", "source_id", "experiment_id", "table_id", "grid_label"}

// catalogPathColumn is the catalog column holding file locations.
const catalogPathColumn = "path"

// RemoteCatalogProvider searches a CSV data catalog, such as the
// Pangeo CMIP6 catalog, and downloads the NetCDF files it lists. The
// catalog must have a header row with at least the columns
// activity_id, institution_id, source_id, experiment_id, member_id,
// table_id, grid_label and path. Locations in the path column may be
// blob storage locations (gs://, s3://, file://), http(s) URLs, or local
// files.
//
// Rows that share every key column make up one dataset, keyed
// "activity.institution.source.experiment.table.grid", whose ensemble
// members are stacked along the member_id dimension.
type RemoteCatalogProvider struct {
	// CatalogURL is the location of the catalog.
	CatalogURL string

	// CacheDir, if set, is a directory in which downloaded datasets are
	// kept between runs.
	CacheDir string

	// MemoryCacheSize is the number of downloaded datasets kept in
	// memory. The default is 10.
	MemoryCacheSize int

	// Workers is the number of concurrent downloads. The default is
	// the number of processors.
	Workers int

	// MaxRetries is the number of times a failed download is retried.
	// The default is 5.
	MaxRetries uint64

	Log logrus.FieldLogger

	initOnce sync.Once
	cache    *requestcache.Cache
	initErr  error
}

func (p *RemoteCatalogProvider) init() {
	p.initOnce.Do(func() {
		if p.Log == nil {
			p.Log = logrus.StandardLogger()
		}
		workers := p.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(-1)
		}
		memSize := p.MemoryCacheSize
		if memSize <= 0 {
			memSize = 10
		}
		funcs := []requestcache.CacheFunc{requestcache.Deduplicate(), requestcache.Memory(memSize)}
		if p.CacheDir != "" {
			if err := os.MkdirAll(p.CacheDir, os.ModePerm); err != nil {
				p.initErr = fmt.Errorf("co2diag: creating cache directory: %v", err)
				return
			}
			funcs = append(funcs, requestcache.Disk(p.CacheDir, requestcache.MarshalGob, unmarshalDataset))
		}
		p.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			return p.fetch(ctx, request.(string))
		}, workers, funcs...)
	})
}

// unmarshalDataset decodes a dataset from the disk cache.
func unmarshalDataset(b []byte) (interface{}, error) {
	v, err := requestcache.UnmarshalGob(b)
	if err != nil {
		return nil, err
	}
	ds, ok := v.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("co2diag: cached object has type %T; want *Dataset", v)
	}
	ds.fixArrays()
	return ds, nil
}

func (p *RemoteCatalogProvider) retries() uint64 {
	if p.MaxRetries == 0 {
		return 5
	}
	return p.MaxRetries
}

// catalogRow is one line of the catalog.
type catalogRow map[string]string

func (r catalogRow) key() string {
	parts := make([]string, len(keyFacets))
	for i, f := range keyFacets {
		parts[i] = r[f]
	}
	return strings.Join(parts, ".")
}

// readCatalog downloads and parses the catalog.
func (p *RemoteCatalogProvider) readCatalog(ctx context.Context) ([]catalogRow, error) {
	var b []byte
	err := p.retry(ctx, p.CatalogURL, func() (bool, error) {
		var err error
		b, err = cloud.ReadAll(ctx, p.CatalogURL)
		return retryable(p.CatalogURL, err), err
	})
	if err != nil {
		return nil, err
	}
	return parseCatalog(bytes.NewReader(b))
}

// parseCatalog reads a CSV catalog with a header row.
func parseCatalog(r io.Reader) ([]catalogRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("co2diag: reading catalog header: %v", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	required := append(append([]string{}, keyFacets...), "member_id", catalogPathColumn)
	for _, c := range required {
		found := false
		for _, h := range header {
			if h == c {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("co2diag: catalog is missing column %s", c)
		}
	}
	var rows []catalogRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("co2diag: reading catalog: %v", err)
		}
		row := make(catalogRow, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		if row[catalogPathColumn] == "" {
			return nil, fmt.Errorf("co2diag: catalog line %d has no path", line)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Search implements Provider. Each criterion is matched against the
// catalog column of the same name.
func (p *RemoteCatalogProvider) Search(ctx context.Context, c Criteria) (*Catalog, error) {
	p.init()
	if p.initErr != nil {
		return nil, p.initErr
	}
	rows, err := p.readCatalog(ctx)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]*CatalogEntry)
	for _, r := range rows {
		if !c.Match(r) {
			continue
		}
		k := r.key()
		e, ok := entries[k]
		if !ok {
			e = &CatalogEntry{Key: k, Facets: make(map[string]string)}
			for _, f := range keyFacets {
				e.Facets[f] = r[f]
			}
			if v, ok := r["variable_id"]; ok {
				e.Facets["variable_id"] = v
			}
			entries[k] = e
		}
		e.Members = append(e.Members, r["member_id"])
		e.Paths = append(e.Paths, r[catalogPathColumn])
	}
	cat := new(Catalog)
	for _, e := range entries {
		cat.Entries = append(cat.Entries, *e)
	}
	sort.Slice(cat.Entries, func(i, j int) bool { return cat.Entries[i].Key < cat.Entries[j].Key })
	return cat, nil
}

// Materialize implements Provider. Files are downloaded concurrently.
// Files belonging to the same member are joined along their record
// dimension, and members are stacked along member_id.
func (p *RemoteCatalogProvider) Materialize(ctx context.Context, cat *Catalog) (*DatasetDict, error) {
	p.init()
	if p.initErr != nil {
		return nil, p.initErr
	}
	reqs := make([][]*requestcache.Request, len(cat.Entries))
	for i, e := range cat.Entries {
		reqs[i] = make([]*requestcache.Request, len(e.Paths))
		for j, path := range e.Paths {
			reqs[i][j] = p.cache.NewRequest(ctx, path, hash.Hash(path))
		}
	}
	dd := NewDatasetDict()
	var failed *ExecutionError
	for i, e := range cat.Entries {
		ds, err := p.assemble(e, reqs[i])
		if err != nil {
			failed = failed.add("materialize", e.Key, err)
			continue
		}
		p.Log.WithFields(logrus.Fields{
			"key":     e.Key,
			"files":   len(e.Paths),
			"members": len(ds.Coords["member_id"].Labels),
		}).Info("co2diag materialized dataset")
		dd.Set(e.Key, ds)
	}
	if failed != nil {
		return dd, failed
	}
	return dd, nil
}

// assemble joins the downloaded files of catalog entry e.
func (p *RemoteCatalogProvider) assemble(e CatalogEntry, reqs []*requestcache.Request) (*Dataset, error) {
	var members []string
	files := make(map[string][]*Dataset)
	for j, req := range reqs {
		result, err := req.Result()
		if err != nil {
			return nil, err
		}
		m := ""
		if j < len(e.Members) {
			m = e.Members[j]
		}
		if _, ok := files[m]; !ok {
			members = append(members, m)
		}
		// Cached results are shared, so work on a copy.
		files[m] = append(files[m], result.(*Dataset).Copy())
	}
	dss := make([]*Dataset, len(members))
	for i, m := range members {
		parts := files[m]
		sortByStartTime(parts)
		ds, err := Concat(recordDim(parts[0]), parts...)
		if err != nil {
			return nil, fmt.Errorf("member %s: %v", m, err)
		}
		dss[i] = ds
	}
	ds, err := Stack("member_id", members, dss...)
	if err != nil {
		return nil, err
	}
	delete(ds.Attrs, UnlimitedDimAttr)
	for k, v := range e.Facets {
		ds.Attrs[k] = v
	}
	return ds, nil
}

// sortByStartTime orders the files of one member by their first time, so
// that they are joined in time order. Files without times keep their
// order.
func sortByStartTime(dss []*Dataset) {
	start := func(ds *Dataset) time.Time {
		s, _, err := ds.TimeRange()
		if err != nil {
			return time.Time{}
		}
		return s
	}
	sort.SliceStable(dss, func(i, j int) bool { return start(dss[i]).Before(start(dss[j])) })
}

// fetch downloads and reads one file.
func (p *RemoteCatalogProvider) fetch(ctx context.Context, path string) (*Dataset, error) {
	var ds *Dataset
	err := p.retry(ctx, path, func() (bool, error) {
		tmp, err := cloud.Download(ctx, path)
		if err != nil {
			return retryable(path, err), err
		}
		defer os.Remove(tmp)
		ds, err = OpenNCF(tmp)
		return false, err
	})
	return ds, err
}

// retry runs f until it succeeds, it reports a permanent error, or the
// retries run out.
func (p *RemoteCatalogProvider) retry(ctx context.Context, path string, f func() (retry bool, err error)) error {
	var permanent error
	err := backoff.RetryNotify(
		func() error {
			if err := ctx.Err(); err != nil {
				permanent = err
				return nil
			}
			retry, err := f()
			if err != nil && !retry {
				permanent = err
				return nil
			}
			return err
		},
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.retries()),
		func(err error, d time.Duration) {
			metrics.FetchRetries.WithLabelValues(bucketOf(path)).Inc()
			p.Log.WithFields(logrus.Fields{
				"path":  path,
				"delay": d,
			}).WithError(err).Warn("co2diag fetch failed; retrying")
		},
	)
	if permanent != nil {
		return permanent
	}
	return err
}

// retryable reports whether a failed read of path might succeed if tried
// again. Local files and client errors are not retried.
func retryable(path string, err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*cloud.StatusError); ok {
		return se.Temporary()
	}
	return cloud.IsHTTP(path) || (cloud.IsBlob(path) && !strings.HasPrefix(path, "file://"))
}

// bucketOf returns the bucket or host part of path, for labeling metrics.
func bucketOf(path string) string {
	if cloud.IsBlob(path) {
		if b, _, err := cloud.SplitBlob(path); err == nil {
			return b
		}
	}
	if cloud.IsHTTP(path) {
		s := strings.SplitN(path, "/", 4)
		if len(s) >= 3 {
			return s[0] + "//" + s[2]
		}
	}
	return "local"
}

// KeyCriteria returns the criteria that select the dataset with the given
// six-part key, "activity.institution.source.experiment.table.grid".
func KeyCriteria(key string) (Criteria, error) {
	parts := strings.Split(key, ".")
	if len(parts) != len(keyFacets) {
		return nil, fmt.Errorf("co2diag: dataset key %q does not have the form %s", key, strings.Join(keyFacets, "."))
	}
	c := make(Criteria, len(parts))
	for i, f := range keyFacets {
		c[f] = []string{parts[i]}
	}
	return c, nil
}
