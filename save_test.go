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
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// preppedMultiset returns a Multiset at the prepped stage holding the
// global mean surface series of two models.
func preppedMultiset(t *testing.T) *Multiset {
	t.Helper()
	dd := NewDatasetDict()
	dd.Set("a", rawModel())
	dd.Set("b", rawModel())
	m := NewMultiset(Config{Log: quietLogger()})
	if err := m.SetOriginal(dd); err != nil {
		t.Fatal(err)
	}
	if err := m.Preprocess(); err != nil {
		t.Fatal(err)
	}
	m.QueueSelection(SelectValue("plev", 100000), false)
	m.QueueMean("lat", "lon")
	if err := m.ExecuteAll(); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSaveLoad(t *testing.T) {
	m := preppedMultiset(t)
	m.meta["a"] = StationMetadata{Code: "a", Lat: 1, Lon: 2, Altitude: 3}

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatal(err)
	}
	m2, err := LoadMultiset(&buf, Config{Log: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if m2.Stage() != StagePrepped {
		t.Errorf("stage: have %v", m2.Stage())
	}
	if m2.Datasets(StageOriginal) != nil {
		t.Error("earlier stages should not be restored")
	}
	if !reflect.DeepEqual(m2.Current().Keys(), []string{"a", "b"}) {
		t.Errorf("keys: have %v", m2.Current().Keys())
	}
	want, _ := m.Current().Get("b")
	have, _ := m2.Current().Get("b")
	if !equalFloats(have.Vars["co2"].Values(), want.Vars["co2"].Values(), 0) {
		t.Error("values changed")
	}
	if have.Vars["co2"].Units() != PPM {
		t.Errorf("units: have %q", have.Vars["co2"].Units())
	}
	if err := have.Validate(); err != nil {
		t.Error(err)
	}
	if meta, ok := m2.Station("a"); !ok || meta.Altitude != 3 {
		t.Errorf("station metadata: have %+v", meta)
	}

	// The restored collection carries on through the remaining stages.
	m2.QueueSelection(SelectIndex("time", 0), true)
	if err := m2.ExecuteAll(); err != nil {
		t.Fatal(err)
	}
	done, _ := m2.Current().Get("a")
	if n := done.Dims()["time"]; n != 0 {
		t.Errorf("time should have been dropped, have length %d", n)
	}
}

func TestSaveTooEarly(t *testing.T) {
	dd := NewDatasetDict()
	dd.Set("a", rawModel())
	m := NewMultiset(Config{Log: quietLogger()})
	if err := m.SetOriginal(dd); err != nil {
		t.Fatal(err)
	}
	var spe *StagePreconditionError
	if err := m.Save(ioutil.Discard); !errors.As(err, &spe) {
		t.Errorf("have %v, want StagePreconditionError", err)
	}
	if _, err := LoadMultiset(bytes.NewReader([]byte("not a cache")), Config{}); err == nil {
		t.Error("loading garbage should fail")
	}
}

func TestSaveToBucket(t *testing.T) {
	dir, err := ioutil.TempDir("", "co2diag_save")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	ctx := context.Background()
	path := "file://" + filepath.Join(dir, "cache.gob")

	m := preppedMultiset(t)
	if err := m.SaveToBucket(ctx, path); err != nil {
		t.Fatal(err)
	}
	m2, err := LoadFromBucket(ctx, path, Config{Log: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if m2.Current().Len() != 2 {
		t.Errorf("datasets: have %d, want 2", m2.Current().Len())
	}
	if _, err := LoadFromBucket(ctx, "file://"+filepath.Join(dir, "missing.gob"), Config{}); err == nil {
		t.Error("loading a missing cache should fail")
	}
}
