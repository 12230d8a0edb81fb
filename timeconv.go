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
	"strconv"
	"strings"
	"time"
)

// DecimalYearUnits is the units attribute used for time values given as
// fractional years.
const DecimalYearUnits = "decimal year"

var unitSeconds = map[string]float64{
	"seconds": 1, "second": 1, "secs": 1, "sec": 1, "s": 1,
	"minutes": 60, "minute": 60, "mins": 60, "min": 60,
	"hours": 3600, "hour": 3600, "hrs": 3600, "hr": 3600, "h": 3600,
	"days": 86400, "day": 86400, "d": 86400,
}

// cumulative days before each month
var (
	cumDays365 = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}
	cumDays366 = [12]int{0, 31, 60, 91, 121, 152, 182, 213, 244, 274, 305, 335}
)

// NormalizeTime returns a copy of ds whose time coordinate is in the
// canonical representation (seconds since 1970-01-01 in the proleptic
// Gregorian calendar). Supported inputs are CF-style "<unit> since <date>"
// encodings in the standard, noleap, all_leap and 360_day calendar
// families, decimal years, and already-normalized times. If there is no
// time variable but there is a time_decimal variable, time is created from
// it.
//
// NormalizeTime does not sort. Dates that do not exist in the Gregorian
// calendar (e.g., February 30 in a 360-day calendar) are an error.
func NormalizeTime(ds *Dataset) (*Dataset, error) {
	o := ds.Copy()
	v, ok := o.Get("time")
	if !ok {
		td, ok := o.Get("time_decimal")
		if !ok {
			return nil, fmt.Errorf("co2diag: NormalizeTime: dataset has no time or time_decimal variable")
		}
		v = td.Copy()
		v.Attrs["units"] = DecimalYearUnits
		o.AddCoord("time", v)
	}
	units := strings.TrimSpace(v.Attrs["units"])
	calendar := strings.ToLower(strings.TrimSpace(v.Attrs["calendar"]))
	if units == CanonicalTimeUnits && (calendar == "" || calendar == CanonicalTimeCalendar) {
		v.Attrs["calendar"] = CanonicalTimeCalendar
		return o, nil
	}
	secs, err := DecodeTimes(v.Values(), units, calendar)
	if err != nil {
		return nil, fmt.Errorf("co2diag: NormalizeTime: %v", err)
	}
	copy(v.Data.Elements, secs)
	v.Attrs["units"] = CanonicalTimeUnits
	v.Attrs["calendar"] = CanonicalTimeCalendar
	return o, nil
}

// DecodeTimes converts encoded time values to seconds since
// 1970-01-01T00:00:00Z. Missing (NaN) values stay missing.
func DecodeTimes(vals []float64, units, calendar string) ([]float64, error) {
	o := make([]float64, len(vals))
	if isDecimalYearUnits(units) {
		for i, y := range vals {
			if math.IsNaN(y) {
				o[i] = math.NaN()
				continue
			}
			o[i] = timeToSeconds(FromDecimalYear(y))
		}
		return o, nil
	}
	step, ref, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	cal, err := newCalendar(calendar)
	if err != nil {
		return nil, err
	}
	for i, val := range vals {
		if math.IsNaN(val) {
			o[i] = math.NaN()
			continue
		}
		t, err := cal.add(ref, val*step)
		if err != nil {
			return nil, err
		}
		o[i] = timeToSeconds(t)
	}
	return o, nil
}

func isDecimalYearUnits(u string) bool {
	switch strings.ToLower(u) {
	case DecimalYearUnits, "decimal_year", "decimal years", "year", "years", "yr":
		return true
	}
	return false
}

// refDate is a calendar-agnostic date and time of day.
type refDate struct {
	year, month, day int
	sec              float64 // seconds into the day
}

// parseTimeUnits parses a CF time units string such as
// "days since 1850-01-01 00:00:00".
func parseTimeUnits(units string) (float64, refDate, error) {
	parts := strings.SplitN(units, " since ", 2)
	if len(parts) != 2 {
		return 0, refDate{}, fmt.Errorf("unsupported time units %q", units)
	}
	step, ok := unitSeconds[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, refDate{}, fmt.Errorf("unsupported time step %q in units %q", parts[0], units)
	}
	ref, err := parseRefDate(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, refDate{}, fmt.Errorf("time units %q: %v", units, err)
	}
	return step, ref, nil
}

func parseRefDate(s string) (refDate, error) {
	s = strings.TrimSuffix(strings.TrimSuffix(s, "UTC"), "Z")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == ':' || r == 'T' || r == ' '
	})
	if len(fields) < 3 {
		return refDate{}, fmt.Errorf("invalid reference date %q", s)
	}
	var r refDate
	var err error
	ints := []*int{&r.year, &r.month, &r.day}
	for i, p := range ints {
		if *p, err = strconv.Atoi(fields[i]); err != nil {
			return refDate{}, fmt.Errorf("invalid reference date %q", s)
		}
	}
	mult := []float64{3600, 60, 1}
	for i, f := range fields[3:] {
		if i >= len(mult) {
			break
		}
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return refDate{}, fmt.Errorf("invalid reference time %q", s)
		}
		r.sec += x * mult[i]
	}
	if r.month < 1 || r.month > 12 || r.day < 1 || r.day > 31 {
		return refDate{}, fmt.Errorf("invalid reference date %q", s)
	}
	return r, nil
}

// calendar adds an offset in seconds to a reference date.
type calendar interface {
	add(ref refDate, seconds float64) (time.Time, error)
}

func newCalendar(name string) (calendar, error) {
	switch name {
	case "", "standard", "gregorian", "proleptic_gregorian", "julian":
		return gregorian{}, nil
	case "noleap", "365_day":
		return fixedYear{cum: cumDays365, yearDays: 365}, nil
	case "all_leap", "366_day":
		return fixedYear{cum: cumDays366, yearDays: 366}, nil
	case "360_day":
		return day360{}, nil
	}
	return nil, fmt.Errorf("unsupported calendar %q", name)
}

type gregorian struct{}

func (gregorian) add(ref refDate, seconds float64) (time.Time, error) {
	t0 := time.Date(ref.year, time.Month(ref.month), ref.day, 0, 0, 0, 0, time.UTC)
	return addSeconds(t0, ref.sec+seconds), nil
}

// addSeconds adds a possibly large, fractional number of seconds to t
// without overflowing time.Duration.
func addSeconds(t time.Time, s float64) time.Time {
	days := math.Floor(s / 86400)
	rem := s - days*86400
	t = t.AddDate(0, 0, int(days))
	return t.Add(time.Duration(math.Round(rem * 1e9)))
}

// fixedYear is a calendar in which every year has the same length.
type fixedYear struct {
	cum      [12]int
	yearDays int
}

func (c fixedYear) add(ref refDate, seconds float64) (time.Time, error) {
	dayNum := float64(ref.year*c.yearDays+c.cum[ref.month-1]+ref.day-1) + (ref.sec+seconds)/86400
	whole := math.Floor(dayNum)
	secOfDay := (dayNum - whole) * 86400
	n := int(whole)
	year := floorDiv(n, c.yearDays)
	doy := n - year*c.yearDays
	month := 11
	for month > 0 && c.cum[month] > doy {
		month--
	}
	day := doy - c.cum[month] + 1
	return gregorianDate(year, month+1, day, secOfDay)
}

// day360 is a calendar of twelve 30-day months.
type day360 struct{}

func (day360) add(ref refDate, seconds float64) (time.Time, error) {
	dayNum := float64(ref.year*360+(ref.month-1)*30+ref.day-1) + (ref.sec+seconds)/86400
	whole := math.Floor(dayNum)
	secOfDay := (dayNum - whole) * 86400
	n := int(whole)
	year := floorDiv(n, 360)
	doy := n - year*360
	return gregorianDate(year, doy/30+1, doy%30+1, secOfDay)
}

// gregorianDate builds a Gregorian time, returning an error if the date
// does not exist in that calendar.
func gregorianDate(year, month, day int, sec float64) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("date %04d-%02d-%02d does not exist in the Gregorian calendar", year, month, day)
	}
	return t.Add(time.Duration(math.Round(sec * 1e9))), nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// DecimalYear returns t as a fractional year, e.g. 2001.5 for the middle
// of 2001.
func DecimalYear(t time.Time) float64 {
	t = t.UTC()
	start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	return float64(t.Year()) + t.Sub(start).Seconds()/end.Sub(start).Seconds()
}

// FromDecimalYear is the inverse of DecimalYear.
func FromDecimalYear(y float64) time.Time {
	year := math.Floor(y)
	start := time.Date(int(year), 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(int(year)+1, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration(math.Round((y - year) * float64(end.Sub(start)))))
}

// DecimalYears returns the normalized time coordinate of ds as decimal
// years. If the dataset has a time_decimal variable it is used directly.
func DecimalYears(ds *Dataset) ([]float64, error) {
	if td, ok := ds.Get("time_decimal"); ok {
		return td.Values(), nil
	}
	times, err := ds.Times()
	if err != nil {
		return nil, err
	}
	o := make([]float64, len(times))
	for i, t := range times {
		if t.IsZero() {
			o[i] = math.NaN()
			continue
		}
		o[i] = DecimalYear(t)
	}
	return o, nil
}
