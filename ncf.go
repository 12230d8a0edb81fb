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
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
)

// UnlimitedDimAttr is the dataset attribute in which ReadNCF records the
// name of the file's record (unlimited) dimension, if it has one.
const UnlimitedDimAttr = "unlimited_dim"

// labelsAttr holds the string labels of a label coordinate in a NetCDF
// file.
const labelsAttr = "labels"

// numericAttrs are attributes that are written as numbers rather than
// text.
var numericAttrs = map[string]bool{
	"_FillValue": true, "missing_value": true, "scale_factor": true,
	"add_offset": true, "valid_min": true, "valid_max": true,
}

// OpenNCF reads the NetCDF file at path.
func OpenNCF(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("co2diag: %v", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("co2diag: %v", err)
	}
	ds, err := ReadNCF(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("co2diag: reading %s: %v", path, err)
	}
	return ds, nil
}

// ReadNCF reads a dataset from a NetCDF classic file of the given size.
// Packed and missing values are decoded, so that missing values are NaN.
// Variables named after their only dimension become dimension coordinates,
// as do variables listed in a "coordinates" attribute. Character
// variables are skipped.
func ReadNCF(rw cdf.ReaderWriterAt, size int64) (*Dataset, error) {
	ff, err := cdf.Open(rw)
	if err != nil {
		return nil, err
	}
	h := ff.Header
	ds := NewDataset()
	for _, a := range h.Attributes("") {
		ds.Attrs[a] = attrString(h.GetAttribute("", a))
	}
	nrec := int(h.NumRecs(size))
	dimNames := h.Dimensions("")
	for i, l := range h.Lengths("") {
		if l == 0 {
			ds.Attrs[UnlimitedDimAttr] = dimNames[i]
		}
	}

	auxCoords := make(map[string]bool)
	for _, name := range h.Variables() {
		if _, ok := h.ZeroValue(name, 0).(string); ok {
			continue
		}
		v, err := readNCFVar(ff, name, nrec)
		if err != nil {
			return nil, fmt.Errorf("reading variable %s: %v", name, err)
		}
		if c, ok := v.Attrs["coordinates"]; ok {
			for _, n := range strings.Fields(c) {
				auxCoords[n] = true
			}
		}
		if len(v.Dims) == 1 && v.Dims[0] == name {
			ds.AddCoord(name, v)
		} else {
			ds.AddVariable(name, v)
		}
	}
	for n := range auxCoords {
		if v, ok := ds.Vars[n]; ok {
			ds.AddCoord(n, v)
		}
	}
	return ds, nil
}

// readNCFVar reads variable name from ff. nrec is the number of records
// in the file.
func readNCFVar(ff *cdf.File, name string, nrec int) (*Variable, error) {
	h := ff.Header
	dims := h.Dimensions(name)
	shape := append([]int{}, h.Lengths(name)...)
	record := h.IsRecordVariable(name)
	if record {
		shape[0] = nrec
	}
	v := NewVariable(dims, shape, nil)
	for _, a := range h.Attributes(name) {
		v.Attrs[a] = attrString(h.GetAttribute(name, a))
	}

	if !record {
		r := ff.Reader(name, nil, nil)
		buf := r.Zero(-1)
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
		vals, err := toFloats(buf)
		if err != nil {
			return nil, err
		}
		copy(v.Data.Elements, vals)
	} else {
		nread := prod(shape[1:])
		for rec := 0; rec < nrec; rec++ {
			start, end := make([]int, len(shape)), make([]int, len(shape))
			start[0], end[0] = rec, rec+1
			r := ff.Reader(name, start, end)
			buf := r.Zero(nread)
			if _, err := r.Read(buf); err != nil {
				return nil, err
			}
			vals, err := toFloats(buf)
			if err != nil {
				return nil, err
			}
			copy(v.Data.Elements[rec*nread:(rec+1)*nread], vals)
		}
	}
	decodeVar(v)
	if l, ok := v.Attrs[labelsAttr]; ok && len(v.Dims) == 1 {
		labels := strings.Split(l, ",")
		if len(labels) == v.Len() {
			v.Labels = labels
			delete(v.Attrs, labelsAttr)
		}
	}
	return v, nil
}

// decodeVar replaces fill values with NaN and unpacks scaled values.
func decodeVar(v *Variable) {
	var fills []float64
	for _, a := range []string{"_FillValue", "missing_value"} {
		if s, ok := v.Attrs[a]; ok {
			for _, f := range strings.Fields(s) {
				if x, err := strconv.ParseFloat(f, 64); err == nil {
					fills = append(fills, x)
				}
			}
		}
	}
	scale, offset := 1., 0.
	if s, ok := v.Attrs["scale_factor"]; ok {
		if x, err := strconv.ParseFloat(s, 64); err == nil {
			scale = x
		}
		delete(v.Attrs, "scale_factor")
	}
	if s, ok := v.Attrs["add_offset"]; ok {
		if x, err := strconv.ParseFloat(s, 64); err == nil {
			offset = x
		}
		delete(v.Attrs, "add_offset")
	}
	for i, e := range v.Data.Elements {
		for _, f := range fills {
			if e == f || (f != 0 && math.Abs(e-f) <= 1e-6*math.Abs(f)) {
				e = math.NaN()
				break
			}
		}
		v.Data.Elements[i] = e*scale + offset
	}
}

// toFloats converts a buffer read from a NetCDF file to float64.
func toFloats(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(x)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(x)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(x)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(b))
		for i, x := range b {
			o[i] = float64(int8(x))
		}
		return o, nil
	}
	return nil, fmt.Errorf("unsupported data type %T", buf)
}

// attrString formats a NetCDF attribute value as text.
func attrString(val interface{}) string {
	var vals []string
	switch a := val.(type) {
	case string:
		return strings.TrimRight(a, "\x00")
	case []float64:
		for _, x := range a {
			vals = append(vals, strconv.FormatFloat(x, 'g', -1, 64))
		}
	case []float32:
		for _, x := range a {
			vals = append(vals, strconv.FormatFloat(float64(x), 'g', -1, 32))
		}
	case []int32:
		for _, x := range a {
			vals = append(vals, strconv.Itoa(int(x)))
		}
	case []int16:
		for _, x := range a {
			vals = append(vals, strconv.Itoa(int(x)))
		}
	case []uint8:
		for _, x := range a {
			vals = append(vals, strconv.Itoa(int(int8(x))))
		}
	default:
		return fmt.Sprint(val)
	}
	return strings.Join(vals, " ")
}

// WriteNCF writes ds to w as a NetCDF classic file. All variables are
// written in double precision, with missing values replaced by the
// variable's _FillValue if it has one. Label coordinates are written as
// positions with a "labels" attribute.
func WriteNCF(w *os.File, ds *Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	dimLens := ds.Dims()
	dims := make([]string, 0, len(dimLens))
	for d := range dimLens {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	lengths := make([]int, len(dims))
	for i, d := range dims {
		lengths[i] = dimLens[d]
		if lengths[i] == 0 {
			return fmt.Errorf("co2diag: cannot write empty dimension %s to netcdf file", d)
		}
	}
	h := cdf.NewHeader(dims, lengths)

	attrNames := func(a map[string]string) []string {
		o := make([]string, 0, len(a))
		for k := range a {
			o = append(o, k)
		}
		sort.Strings(o)
		return o
	}
	for _, a := range attrNames(ds.Attrs) {
		if a == UnlimitedDimAttr {
			continue
		}
		h.AddAttribute("", a, ds.Attrs[a])
	}

	// Sort the names so they write in the same order every time.
	names := append(ds.CoordNames(), ds.Names()...)
	sort.Strings(names)
	for _, name := range names {
		v, _ := ds.Get(name)
		h.AddVariable(name, v.Dims, []float64{0})
		for _, a := range attrNames(v.Attrs) {
			val := v.Attrs[a]
			if numericAttrs[a] {
				x, err := strconv.ParseFloat(strings.Fields(val + " 0")[0], 64)
				if err != nil {
					return fmt.Errorf("co2diag: attribute %s:%s is not numeric: %q", name, a, val)
				}
				h.AddAttribute(name, a, []float64{x})
				continue
			}
			h.AddAttribute(name, a, val)
		}
		if v.Labels != nil {
			h.AddAttribute(name, labelsAttr, strings.Join(v.Labels, ","))
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, name := range names {
		v, _ := ds.Get(name)
		if err = writeNCF(f, name, v); err != nil {
			return fmt.Errorf("co2diag: writing variable %s to netcdf file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, name string, v *Variable) error {
	data := v.Data
	if n := prod(data.Shape); len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	out := make([]float64, len(data.Elements))
	copy(out, data.Elements)
	if s, ok := v.Attrs["_FillValue"]; ok {
		if fill, err := strconv.ParseFloat(strings.Fields(s + " 0")[0], 64); err == nil {
			for i, e := range out {
				if math.IsNaN(e) {
					out[i] = fill
				}
			}
		}
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(out)
	return err
}
