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
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/co2diag/internal/metrics"
)

// Stage is a phase of the processing pipeline.
type Stage int

// These are the pipeline stages, in order.
const (
	StageNone         Stage = iota // nothing loaded
	StageOriginal                  // A: as loaded from the provider
	StagePreprocessed              // B: units converted, time normalized
	StagePrepped                   // C: selections and reductions applied
	StageExecuted                  // D: executed
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageOriginal:
		return "original"
	case StagePreprocessed:
		return "preprocessed"
	case StagePrepped:
		return "prepped"
	case StageExecuted:
		return "executed"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// PreprocessFunc converts a raw dataset to the preprocessed stage. It must
// not modify its input.
type PreprocessFunc func(key string, ds *Dataset) (*Dataset, error)

// Config holds the settings for a Multiset.
type Config struct {
	// Stations holds the stations whose metadata should be computed
	// when datasets are loaded. It may be nil for model datasets.
	Stations StationDict

	// Preprocess is applied to every dataset by Multiset.Preprocess.
	// If it is nil, DefaultPreprocess is used.
	Preprocess PreprocessFunc

	// Log receives progress messages. If it is nil,
	// logrus.StandardLogger() is used.
	Log logrus.FieldLogger
}

// MemberCount is the number of ensemble members of one dataset.
type MemberCount struct {
	Key     string
	Members int
}

// Multiset holds a collection of datasets at each stage of the processing
// pipeline. Advancing to a stage never modifies earlier stages, which are
// kept for inspection. A Multiset must not be used concurrently.
type Multiset struct {
	Log logrus.FieldLogger

	stations   StationDict
	preprocess PreprocessFunc

	stages [StageExecuted + 1]*DatasetDict
	stage  Stage
	queue  *Queue

	meta map[string]StationMetadata
}

// NewMultiset returns an empty Multiset. The station dictionary in cfg
// is copied.
func NewMultiset(cfg Config) *Multiset {
	m := &Multiset{
		Log:        cfg.Log,
		stations:   cfg.Stations.Copy(),
		preprocess: cfg.Preprocess,
		queue:      new(Queue),
		meta:       make(map[string]StationMetadata),
	}
	if m.Log == nil {
		m.Log = logrus.StandardLogger()
	}
	if m.preprocess == nil {
		m.preprocess = DefaultPreprocess
	}
	return m
}

// Stage returns the most advanced populated stage.
func (m *Multiset) Stage() Stage { return m.stage }

// Datasets returns the collection at stage s, or nil if that stage is
// not populated.
func (m *Multiset) Datasets(s Stage) *DatasetDict {
	if s <= StageNone || s > StageExecuted {
		return nil
	}
	return m.stages[s]
}

// Current returns the collection at the most advanced populated stage.
func (m *Multiset) Current() *DatasetDict { return m.Datasets(m.stage) }

// Station returns the metadata computed for station code at load time.
func (m *Multiset) Station(code string) (StationMetadata, bool) {
	s, ok := m.meta[code]
	return s, ok
}

// Stations returns the station dictionary the Multiset was created with.
func (m *Multiset) Stations() StationDict { return m.stations.Copy() }

func (m *Multiset) require(op string, want Stage) error {
	if m.stage != want || m.stages[want] == nil {
		return &StagePreconditionError{Op: op, Have: m.stage, Want: want}
	}
	return nil
}

func (m *Multiset) advance(s Stage, dd *DatasetDict, start time.Time) {
	m.stages[s] = dd
	m.stage = s
	metrics.StageDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())
	m.Log.WithFields(logrus.Fields{
		"stage":    s.String(),
		"datasets": dd.Len(),
	}).Info("co2diag advanced stage")
}

func (m *Multiset) logFailures(err error) {
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		return
	}
	metrics.DatasetFailures.WithLabelValues(ee.Op).Add(float64(len(ee.Failed)))
	for _, k := range ee.Keys() {
		m.Log.WithFields(logrus.Fields{
			"op":  ee.Op,
			"key": k,
		}).WithError(ee.Failed[k]).Warn("co2diag dataset failed")
	}
}

// Load populates the original stage from provider p. It returns a
// *LoadError if the provider yields no datasets. If some datasets fail to
// load, the others are kept and an *ExecutionError is returned.
// When the Multiset has a station dictionary, the metadata of every
// loaded station is computed here.
func (m *Multiset) Load(ctx context.Context, p Provider, c Criteria) error {
	if m.stage != StageNone {
		return &StagePreconditionError{Op: "load", Have: m.stage, Want: StageNone}
	}
	start := time.Now()
	name := fmt.Sprintf("%T", p)
	cat, err := p.Search(ctx, c)
	if err != nil {
		return &LoadError{Provider: name, Criteria: c, Err: err}
	}
	if cat.Len() == 0 {
		return &LoadError{Provider: name, Criteria: c}
	}
	m.Log.WithFields(logrus.Fields{
		"provider": name,
		"criteria": c.String(),
		"entries":  cat.Len(),
	}).Info("co2diag loading datasets")
	dd, err := p.Materialize(ctx, cat)
	var partial *ExecutionError
	if err != nil && !errors.As(err, &partial) {
		return &LoadError{Provider: name, Criteria: c, Err: err}
	}
	if dd.Len() == 0 {
		return &LoadError{Provider: name, Criteria: c, Err: err}
	}
	metrics.DatasetsLoaded.WithLabelValues(name).Add(float64(dd.Len()))

	if m.stations != nil {
		for _, k := range dd.Keys() {
			st, ok := m.stations[k]
			if !ok {
				continue
			}
			ds, _ := dd.Get(k)
			meta, merr := NewStationMetadata(k, st, ds)
			if merr != nil {
				partial = partial.add("load", k, merr)
				dd.Delete(k)
				continue
			}
			m.meta[k] = meta
		}
	}
	if dd.Len() == 0 {
		return &LoadError{Provider: name, Criteria: c, Err: partial}
	}
	m.advance(StageOriginal, dd, start)
	if partial != nil {
		m.logFailures(partial)
		return partial
	}
	return nil
}

// SetOriginal populates the original stage directly from dd, for
// callers that obtained their datasets without a Provider.
func (m *Multiset) SetOriginal(dd *DatasetDict) error {
	if m.stage != StageNone {
		return &StagePreconditionError{Op: "load", Have: m.stage, Want: StageNone}
	}
	if dd.Len() == 0 {
		return &LoadError{Provider: "direct"}
	}
	m.advance(StageOriginal, dd, time.Now())
	return nil
}

// Preprocess applies the preprocessing function to a copy of every
// original dataset, populating the preprocessed stage.
func (m *Multiset) Preprocess() error {
	if err := m.require("preprocess", StageOriginal); err != nil {
		return err
	}
	start := time.Now()
	dd, err := m.stages[StageOriginal].Apply("preprocess", func(k string, ds *Dataset) (*Dataset, error) {
		return m.preprocess(k, ds.Copy())
	})
	return m.finish(StagePreprocessed, dd, err, start)
}

// finish advances to stage s if at least one dataset succeeded.
func (m *Multiset) finish(s Stage, dd *DatasetDict, err error, start time.Time) error {
	if err != nil {
		m.logFailures(err)
		var ee *ExecutionError
		if !errors.As(err, &ee) {
			return err
		}
	}
	if dd.Len() > 0 {
		m.advance(s, dd, start)
	}
	return err
}

// QueueSelection records a selection to be applied by the next call to
// ExecuteAll. No data are touched.
func (m *Multiset) QueueSelection(sel Selection, indexBased bool) error {
	return m.queue.Select(sel, indexBased)
}

// QueueMean records a mean over dims to be applied by the next call to
// ExecuteAll.
func (m *Multiset) QueueMean(dims ...string) error {
	return m.queue.Mean(dims...)
}

// Queued returns the pending operations.
func (m *Multiset) Queued() []Operation { return m.queue.Ops() }

// ExecuteAll runs the pending operations over the current stage. From the
// preprocessed stage it produces the prepped stage, which requires at least
// one queued operation; from the prepped stage it produces the executed
// stage, and the queue may be empty. Datasets that fail are reported in an
// *ExecutionError and the rest still advance. The queue is consumed.
func (m *Multiset) ExecuteAll() error {
	var next Stage
	switch m.stage {
	case StagePreprocessed:
		if m.queue.Len() == 0 {
			return &StagePreconditionError{Op: "execute", Have: m.stage, Want: StagePreprocessed,
				Msg: "no operations have been queued"}
		}
		next = StagePrepped
	case StagePrepped:
		next = StageExecuted
	default:
		return &StagePreconditionError{Op: "execute", Have: m.stage, Want: StagePreprocessed}
	}
	start := time.Now()
	q := m.queue
	m.queue = new(Queue)
	m.Log.WithFields(logrus.Fields{
		"from":       m.stage.String(),
		"operations": fmt.Sprint(q.Ops()),
	}).Debug("co2diag executing queue")
	dd, err := q.Execute(m.stages[m.stage])
	return m.finish(next, dd, err, start)
}

// CountMembers reports the number of datasets in the most advanced
// populated stage, and the size of the member_id dimension of each (zero
// if it has none).
func (m *Multiset) CountMembers() (int, []MemberCount) {
	dd := m.Current()
	if dd == nil {
		return 0, nil
	}
	o := make([]MemberCount, 0, dd.Len())
	for _, k := range dd.Keys() {
		ds, _ := dd.Get(k)
		o = append(o, MemberCount{Key: k, Members: ds.Dims()["member_id"]})
	}
	for _, mc := range o {
		m.Log.WithFields(logrus.Fields{"key": mc.Key, "members": mc.Members}).Debug("co2diag member count")
	}
	return dd.Len(), o
}
