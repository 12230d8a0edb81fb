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
	"fmt"
	"math"
	"strings"
	"time"
)

// OpKind is the kind of a deferred operation.
type OpKind int

// These are the kinds of operations that can be queued.
const (
	OpSelectLabel OpKind = iota // select by coordinate label
	OpSelectIndex               // select by integer position
	OpMean                      // reduce by mean
)

func (k OpKind) String() string {
	switch k {
	case OpSelectLabel:
		return "select-by-label"
	case OpSelectIndex:
		return "select-by-index"
	case OpMean:
		return "mean"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// TermKind specifies how a SelTerm picks positions along its dimension.
type TermKind int

// These are the kinds of selection terms.
const (
	TermValue      TermKind = iota // a single coordinate value
	TermRange                      // a closed range of coordinate values
	TermLabel                      // a single string label
	TermIndex                      // a single integer position
	TermIndexRange                 // a half-open range of positions
)

// SelTerm is a selection along a single dimension. Its fields are exported
// so that queued operations can be serialized and hashed.
type SelTerm struct {
	Dim         string
	Kind        TermKind
	Value       float64
	Lo, Hi      float64
	Label       string
	Index       int
	Start, Stop int
}

func (t SelTerm) indexBased() bool {
	return t.Kind == TermIndex || t.Kind == TermIndexRange
}

func (t SelTerm) apply(ds *Dataset) (*Dataset, error) {
	switch t.Kind {
	case TermValue:
		return ds.Sel(t.Dim, t.Value)
	case TermRange:
		return ds.Slice(t.Dim, t.Lo, t.Hi)
	case TermLabel:
		return ds.SelLabel(t.Dim, t.Label)
	case TermIndex:
		return ds.ISel(t.Dim, t.Index)
	case TermIndexRange:
		return ds.ISlice(t.Dim, t.Start, t.Stop)
	}
	return nil, fmt.Errorf("co2diag: invalid selection kind %d", t.Kind)
}

func (t SelTerm) String() string {
	switch t.Kind {
	case TermValue:
		return fmt.Sprintf("%s=%g", t.Dim, t.Value)
	case TermRange:
		return fmt.Sprintf("%s=[%g,%g]", t.Dim, t.Lo, t.Hi)
	case TermLabel:
		return fmt.Sprintf("%s=%q", t.Dim, t.Label)
	case TermIndex:
		return fmt.Sprintf("%s[%d]", t.Dim, t.Index)
	default:
		return fmt.Sprintf("%s[%d:%d]", t.Dim, t.Start, t.Stop)
	}
}

// Selection is a set of per-dimension selections that are applied
// together, e.g. a time window and a pressure level.
type Selection struct {
	Terms []SelTerm
}

// SelectValue selects the position along dim whose coordinate equals v.
// The dimension is dropped from the result.
func SelectValue(dim string, v float64) Selection {
	return Selection{Terms: []SelTerm{{Dim: dim, Kind: TermValue, Value: v}}}
}

// SelectRange selects positions along dim whose coordinates are within
// [lo, hi]. Use ±Inf for an open bound.
func SelectRange(dim string, lo, hi float64) Selection {
	return Selection{Terms: []SelTerm{{Dim: dim, Kind: TermRange, Lo: lo, Hi: hi}}}
}

// SelectTimeRange selects normalized times within [start, end]. A zero
// start or end leaves that side open.
func SelectTimeRange(start, end time.Time) Selection {
	lo, hi := math.Inf(-1), math.Inf(1)
	if !start.IsZero() {
		lo = timeToSeconds(start)
	}
	if !end.IsZero() {
		hi = timeToSeconds(end)
	}
	return SelectRange("time", lo, hi)
}

// SelectLabel selects the position along dim with the given string label.
func SelectLabel(dim, label string) Selection {
	return Selection{Terms: []SelTerm{{Dim: dim, Kind: TermLabel, Label: label}}}
}

// SelectIndex selects integer position i along dim. Negative positions
// count back from the end.
func SelectIndex(dim string, i int) Selection {
	return Selection{Terms: []SelTerm{{Dim: dim, Kind: TermIndex, Index: i}}}
}

// SelectIndexRange selects positions [start, stop) along dim.
func SelectIndexRange(dim string, start, stop int) Selection {
	return Selection{Terms: []SelTerm{{Dim: dim, Kind: TermIndexRange, Start: start, Stop: stop}}}
}

// And returns a selection applying both s and o, s first.
func (s Selection) And(o Selection) Selection {
	terms := make([]SelTerm, 0, len(s.Terms)+len(o.Terms))
	terms = append(terms, s.Terms...)
	return Selection{Terms: append(terms, o.Terms...)}
}

// IndexBased reports whether the terms of s select by integer position.
// It returns an error if s mixes label and position terms.
func (s Selection) IndexBased() (bool, error) {
	if len(s.Terms) == 0 {
		return false, fmt.Errorf("co2diag: empty selection")
	}
	ib := s.Terms[0].indexBased()
	for _, t := range s.Terms[1:] {
		if t.indexBased() != ib {
			return false, fmt.Errorf("co2diag: selection %v mixes label and index terms", s)
		}
	}
	return ib, nil
}

// Apply returns ds with every term of s applied in order.
func (s Selection) Apply(ds *Dataset) (*Dataset, error) {
	var err error
	for _, t := range s.Terms {
		if ds, err = t.apply(ds); err != nil {
			return nil, fmt.Errorf("selecting %v: %v", t, err)
		}
	}
	return ds, nil
}

func (s Selection) String() string {
	p := make([]string, len(s.Terms))
	for i, t := range s.Terms {
		p[i] = t.String()
	}
	return strings.Join(p, ",")
}

// Operation is a deferred selection or reduction.
type Operation struct {
	Kind OpKind
	Sel  Selection
	Dims []string
}

// Apply applies the operation to ds.
func (op Operation) Apply(ds *Dataset) (*Dataset, error) {
	switch op.Kind {
	case OpSelectLabel, OpSelectIndex:
		return op.Sel.Apply(ds)
	case OpMean:
		return ds.Mean(op.Dims...)
	}
	return nil, fmt.Errorf("co2diag: invalid operation %v", op.Kind)
}

func (op Operation) String() string {
	if op.Kind == OpMean {
		return fmt.Sprintf("mean(%s)", strings.Join(op.Dims, ","))
	}
	return fmt.Sprintf("%v(%v)", op.Kind, op.Sel)
}

// Queue is an ordered list of deferred operations. Nothing is computed
// until Execute is called, and a Queue can only be executed once.
type Queue struct {
	ops      []Operation
	executed bool
}

// Select records a selection. indexBased must agree with the kind of
// selection terms in sel.
func (q *Queue) Select(sel Selection, indexBased bool) error {
	ib, err := sel.IndexBased()
	if err != nil {
		return err
	}
	if ib != indexBased {
		return fmt.Errorf("co2diag: selection %v is index-based=%v, but index-based=%v was requested", sel, ib, indexBased)
	}
	kind := OpSelectLabel
	if indexBased {
		kind = OpSelectIndex
	}
	q.ops = append(q.ops, Operation{Kind: kind, Sel: sel})
	return nil
}

// Mean records a mean over dims.
func (q *Queue) Mean(dims ...string) error {
	if len(dims) == 0 {
		return fmt.Errorf("co2diag: mean requires at least one dimension")
	}
	q.ops = append(q.ops, Operation{Kind: OpMean, Dims: append([]string{}, dims...)})
	return nil
}

// Ops returns the queued operations in order.
func (q *Queue) Ops() []Operation { return append([]Operation{}, q.ops...) }

// Len returns the number of queued operations.
func (q *Queue) Len() int { return len(q.ops) }

// Apply applies the queued operations in order to a copy of ds. It does
// not consume the queue.
func (q *Queue) Apply(ds *Dataset) (*Dataset, error) {
	o := ds.Copy()
	var err error
	for _, op := range q.ops {
		if o, err = op.Apply(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Execute applies the queue to every dataset in dd, returning a new
// collection. Datasets the operations cannot be applied to are left out of
// the result and reported in an *ExecutionError. A queue that has already
// been executed returns ErrQueueExecuted.
func (q *Queue) Execute(dd *DatasetDict) (*DatasetDict, error) {
	if q.executed {
		return nil, ErrQueueExecuted
	}
	q.executed = true
	return dd.Apply("execute", func(_ string, ds *Dataset) (*Dataset, error) {
		return q.Apply(ds)
	})
}
