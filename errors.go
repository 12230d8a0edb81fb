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
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNoData is returned by subsetting functions when no points fall
// within the requested window. It distinguishes "ran and found nothing"
// from an empty but valid result.
var ErrNoData = errors.New("co2diag: no data in the requested window")

// ErrQueueExecuted is returned when a Queue that has already been
// executed is executed again.
var ErrQueueExecuted = errors.New("co2diag: queue has already been executed")

// LoadError is returned when a provider yields no datasets.
type LoadError struct {
	Provider string
	Criteria Criteria
	Err      error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("co2diag: provider %s returned no datasets for %v", e.Provider, e.Criteria)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// UnitMismatchError is returned when a variable's declared units are
// not what a converter expects.
type UnitMismatchError struct {
	Var  string
	Got  string
	Want []string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("co2diag: variable %s has units %q; expected one of %q", e.Var, e.Got, e.Want)
}

// StagePreconditionError is returned when a Multiset operation is invoked
// on a stage it cannot act on.
type StagePreconditionError struct {
	Op   string
	Have Stage
	Want Stage
	Msg  string
}

func (e *StagePreconditionError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("co2diag: %s: %s (current stage %s)", e.Op, e.Msg, e.Have)
	}
	return fmt.Sprintf("co2diag: %s requires stage %s but current stage is %s", e.Op, e.Want, e.Have)
}

// ExecutionError reports per-dataset failures in a batch operation.
// Datasets that are not listed were processed successfully.
type ExecutionError struct {
	Op     string
	Failed map[string]error
}

func (e *ExecutionError) Error() string {
	keys := e.Keys()
	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = fmt.Sprintf("%s: %v", k, e.Failed[k])
	}
	return fmt.Sprintf("co2diag: %s failed for %d dataset(s): %s", e.Op, len(keys), strings.Join(msgs, "; "))
}

// Keys returns the sorted keys of the failed datasets.
func (e *ExecutionError) Keys() []string {
	o := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		o = append(o, k)
	}
	sort.Strings(o)
	return o
}

// add records a failure, creating e if necessary.
func (e *ExecutionError) add(op, key string, err error) *ExecutionError {
	if e == nil {
		e = &ExecutionError{Op: op, Failed: make(map[string]error)}
	}
	e.Failed[key] = err
	return e
}

// NoCoordinateDataError is returned when a dataset lacks the latitude and
// longitude coordinates needed for geographic matching.
type NoCoordinateDataError struct {
	Missing string
}

func (e *NoCoordinateDataError) Error() string {
	return fmt.Sprintf("co2diag: dataset has no resolvable %s coordinate", e.Missing)
}

// NoOverlapError is returned when two series have no common time window.
type NoOverlapError struct {
	ObsStart, ObsEnd, ModelStart, ModelEnd time.Time
}

func (e *NoOverlapError) Error() string {
	const f = "2006-01-02"
	return fmt.Sprintf("co2diag: observation period %s to %s does not overlap model period %s to %s",
		e.ObsStart.Format(f), e.ObsEnd.Format(f), e.ModelStart.Format(f), e.ModelEnd.Format(f))
}

// KeyError is returned when a requested dataset key is not present.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("co2diag: no dataset with key %q", e.Key)
}
