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
	"encoding/gob"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/co2diag/cloud"
)

func init() {
	gob.Register(&Dataset{})
}

// savedMultiset is the on-disk form of a Multiset.
type savedMultiset struct {
	Version  string
	Stage    Stage
	Keys     []string
	Datasets []*Dataset
	Stations map[string]StationMetadata
}

// Save writes the most advanced stage of the Multiset, which must be
// prepped or executed, to w. The saved collection can be restored with
// LoadMultiset to skip loading and preprocessing on later runs.
func (m *Multiset) Save(w io.Writer) error {
	if m.stage < StagePrepped {
		return &StagePreconditionError{Op: "save", Have: m.stage, Want: StagePrepped}
	}
	dd := m.stages[m.stage]
	s := savedMultiset{
		Version:  Version,
		Stage:    m.stage,
		Keys:     dd.Keys(),
		Stations: m.meta,
	}
	for _, k := range s.Keys {
		ds, _ := dd.Get(k)
		s.Datasets = append(s.Datasets, ds)
	}
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("co2diag: Multiset.Save: %v", err)
	}
	return nil
}

// LoadMultiset restores a Multiset written by Save. Only the saved stage
// is populated; the earlier stages are not.
func LoadMultiset(r io.Reader, cfg Config) (*Multiset, error) {
	var s savedMultiset
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("co2diag: LoadMultiset: %v", err)
	}
	if s.Stage < StagePrepped || s.Stage > StageExecuted {
		return nil, fmt.Errorf("co2diag: LoadMultiset: invalid saved stage %v", s.Stage)
	}
	if len(s.Keys) != len(s.Datasets) {
		return nil, fmt.Errorf("co2diag: LoadMultiset: %d keys but %d datasets", len(s.Keys), len(s.Datasets))
	}
	m := NewMultiset(cfg)
	if s.Version != Version {
		m.Log.WithFields(logrus.Fields{
			"saved":   s.Version,
			"current": Version,
		}).Warn("co2diag loading a cache written by a different version")
	}
	dd := NewDatasetDict()
	for i, k := range s.Keys {
		ds := s.Datasets[i]
		if ds == nil {
			ds = NewDataset()
		}
		ds.fixArrays()
		dd.Set(k, ds)
	}
	m.stages[s.Stage] = dd
	m.stage = s.Stage
	for k, meta := range s.Stations {
		m.meta[k] = meta
	}
	m.Log.WithFields(logrus.Fields{
		"stage":    s.Stage.String(),
		"datasets": dd.Len(),
	}).Info("co2diag loaded cached datasets")
	return m, nil
}

// SaveToBucket saves the Multiset to path, which may be a blob storage
// location such as "gs://bucket/cache.gob" or a local file.
func (m *Multiset) SaveToBucket(ctx context.Context, path string) error {
	var b bytes.Buffer
	if err := m.Save(&b); err != nil {
		return err
	}
	return cloud.Write(ctx, path, b.Bytes())
}

// LoadFromBucket restores a Multiset saved with SaveToBucket.
func LoadFromBucket(ctx context.Context, path string, cfg Config) (*Multiset, error) {
	b, err := cloud.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	return LoadMultiset(bytes.NewReader(b), cfg)
}

// fixArrays restores the parts of a dataset that are lost when it is
// gob-decoded: the unexported array fields and empty maps.
func (ds *Dataset) fixArrays() {
	if ds.Vars == nil {
		ds.Vars = make(map[string]*Variable)
	}
	if ds.Coords == nil {
		ds.Coords = make(map[string]*Variable)
	}
	if ds.Attrs == nil {
		ds.Attrs = make(map[string]string)
	}
	for _, v := range ds.all() {
		if v.Attrs == nil {
			v.Attrs = make(map[string]string)
		}
		if v.Data.Shape == nil {
			v.Data.Shape = []int{}
		}
		v.Data.Fix()
	}
}
