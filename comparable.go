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

	"github.com/sirupsen/logrus"
)

// AltitudeMethod specifies how a model level is matched to an altitude.
type AltitudeMethod int

const (
	// AltitudeNearest picks the level closest to the requested altitude.
	AltitudeNearest AltitudeMethod = iota

	// AltitudeLowest picks the level closest to the surface, which
	// is used for comparisons with surface stations.
	AltitudeLowest
)

// ScaleHeight is the atmospheric scale height in m used to convert
// pressure levels to altitude.
const ScaleHeight = 7400.

// SurfacePressure is the standard sea-level pressure in Pa.
const SurfacePressure = 101325.

// verticalDims are the names recognized as vertical dimensions, in order
// of preference.
var verticalDims = []string{"plev", "lev", "level", "altitude", "height", "alt"}

// CompareOptions specify how MakeComparable aligns two datasets.
type CompareOptions struct {
	// Start and End restrict the common time window. Zero values leave
	// the window open on that side.
	Start, End time.Time

	// Lat, Lon and Altitude (m) locate the comparison point.
	Lat, Lon, Altitude float64

	AltitudeMethod AltitudeMethod

	// GlobalMean averages both datasets over all spatial dimensions
	// instead of matching a point.
	GlobalMean bool

	// Var, if set, is the only data variable kept in the results.
	Var string

	// Metric is the distance used to find the nearest cell. The default
	// is GreatCircle.
	Metric Metric

	// Log receives a warning when the comparison point lies outside the
	// model grid. The default is logrus.StandardLogger().
	Log logrus.FieldLogger
}

// MakeComparable restricts an observation dataset and a model dataset to
// their common time window, and then either matches the model to the
// observation location or averages both over the whole domain. The model
// level is then chosen by the altitude method. Model ensemble members are
// kept. If the time windows do not
// intersect a *NoOverlapError is returned.
func MakeComparable(obs, mdl *Dataset, opts CompareOptions) (*Dataset, *Dataset, error) {
	oStart, oEnd, err := obs.TimeRange()
	if err != nil {
		return nil, nil, fmt.Errorf("co2diag: MakeComparable: observations: %v", err)
	}
	mStart, mEnd, err := mdl.TimeRange()
	if err != nil {
		return nil, nil, fmt.Errorf("co2diag: MakeComparable: model: %v", err)
	}
	lo, hi := later(oStart, mStart), earlier(oEnd, mEnd)
	if !opts.Start.IsZero() {
		lo = later(lo, opts.Start)
	}
	if !opts.End.IsZero() {
		hi = earlier(hi, opts.End)
	}
	if hi.Before(lo) {
		return nil, nil, &NoOverlapError{ObsStart: oStart, ObsEnd: oEnd, ModelStart: mStart, ModelEnd: mEnd}
	}
	window := SelectTimeRange(lo, hi)
	if obs, err = window.Apply(obs); err != nil {
		return nil, nil, fmt.Errorf("co2diag: MakeComparable: observations: %v", err)
	}
	if mdl, err = window.Apply(mdl); err != nil {
		return nil, nil, fmt.Errorf("co2diag: MakeComparable: model: %v", err)
	}

	if opts.GlobalMean {
		if obs, err = spatialMean(obs); err != nil {
			return nil, nil, fmt.Errorf("co2diag: MakeComparable: observations: %v", err)
		}
		if mdl, err = spatialMean(mdl); err != nil {
			return nil, nil, fmt.Errorf("co2diag: MakeComparable: model: %v", err)
		}
	} else {
		var match CellMatch
		if mdl, match, err = SelectNearest(mdl, opts.Lat, opts.Lon, opts.Metric); err != nil {
			return nil, nil, err
		}
		if match.Outside {
			log := opts.Log
			if log == nil {
				log = logrus.StandardLogger()
			}
			log.WithFields(logrus.Fields{
				"lat":      opts.Lat,
				"lon":      opts.Lon,
				"index":    match.Index,
				"distance": match.Distance,
			}).Warn("co2diag: comparison point is outside the model grid; using the nearest edge cell")
		}
	}
	if mdl, err = selectLevel(mdl, opts.Altitude, opts.AltitudeMethod); err != nil {
		return nil, nil, err
	}
	if opts.Var != "" {
		if obs, err = keepVars(obs, opts.Var); err != nil {
			return nil, nil, fmt.Errorf("co2diag: MakeComparable: observations: %v", err)
		}
		if mdl, err = keepVars(mdl, opts.Var); err != nil {
			return nil, nil, fmt.Errorf("co2diag: MakeComparable: model: %v", err)
		}
	}
	return obs, mdl, nil
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// spatialMean averages ds over the dimensions of its horizontal
// coordinates. A dataset without gridded coordinates is returned as is.
func spatialMean(ds *Dataset) (*Dataset, error) {
	lat, lon, err := LatLon(ds)
	if err != nil {
		return ds, nil
	}
	var dims []string
	seen := make(map[string]bool)
	for _, d := range append(append([]string{}, lat.Dims...), lon.Dims...) {
		if d != "time" && !seen[d] {
			dims = append(dims, d)
			seen[d] = true
		}
	}
	if len(dims) == 0 {
		return ds, nil
	}
	return ds.Mean(dims...)
}

// verticalDim returns the vertical dimension of ds, or "".
func verticalDim(ds *Dataset) string {
	dims := ds.Dims()
	for _, d := range verticalDims {
		if _, ok := dims[d]; ok {
			if _, ok := ds.DimCoord(d); ok {
				return d
			}
		}
	}
	return ""
}

// isPressure reports whether vertical coordinate v of dimension dim holds
// pressures, and the factor that converts them to Pa.
func isPressure(dim string, v *Variable) (bool, float64) {
	switch strings.ToLower(v.Units()) {
	case "pa":
		return true, 1
	case "hpa", "mb", "mbar", "millibar":
		return true, 100
	case "m", "km", "meters", "metres":
		return false, 0
	}
	if dim == "plev" || dim == "lev" || dim == "level" {
		if strings.EqualFold(v.Attrs["positive"], "up") {
			return false, 0
		}
		return true, 1
	}
	return false, 0
}

// levelAltitudes returns the approximate altitude in m of each vertical
// level.
func levelAltitudes(dim string, v *Variable) []float64 {
	vals := v.Values()
	o := make([]float64, len(vals))
	pressure, factor := isPressure(dim, v)
	for i, x := range vals {
		switch {
		case pressure:
			o[i] = -ScaleHeight * math.Log(x*factor/SurfacePressure)
		case strings.EqualFold(v.Units(), "km"):
			o[i] = x * 1000
		default:
			o[i] = x
		}
	}
	return o
}

// selectLevel picks one vertical level of ds according to method. A
// dataset without a vertical dimension is returned as is.
func selectLevel(ds *Dataset, altitude float64, method AltitudeMethod) (*Dataset, error) {
	dim := verticalDim(ds)
	if dim == "" {
		return ds, nil
	}
	c, _ := ds.DimCoord(dim)
	alts := levelAltitudes(dim, c)
	best := -1
	bestVal := math.Inf(1)
	for i, z := range alts {
		if math.IsNaN(z) {
			continue
		}
		var score float64
		switch method {
		case AltitudeLowest:
			score = z
		case AltitudeNearest:
			score = math.Abs(z - altitude)
		default:
			return nil, fmt.Errorf("co2diag: invalid altitude method %d", method)
		}
		if score < bestVal {
			best, bestVal = i, score
		}
	}
	if best < 0 {
		return nil, &NoCoordinateDataError{Missing: dim}
	}
	return ds.ISel(dim, best)
}

// keepVars returns ds with only the named data variables.
func keepVars(ds *Dataset, names ...string) (*Dataset, error) {
	o := NewDataset()
	o.Attrs = copyAttrs(ds.Attrs)
	for k, c := range ds.Coords {
		o.Coords[k] = c.Copy()
	}
	for _, n := range names {
		v, ok := ds.Vars[n]
		if !ok {
			return nil, fmt.Errorf("co2diag: dataset has no data variable %q", n)
		}
		o.Vars[n] = v.Copy()
	}
	return o, nil
}
