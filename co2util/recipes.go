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

package co2util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/co2diag"
)

// DefaultStations is the built-in dictionary of surface observing
// stations.
const DefaultStations = `
[brw]
name = "Barrow Atmospheric Baseline Observatory"
lat = 71.323
lon = -156.611
country = "United States"

[mlo]
name = "Mauna Loa Observatory"
lat = 19.536
lon = -155.576
country = "United States"

[smo]
name = "Tutuila"
lat = -14.247
lon = -170.564
country = "United States"

[spo]
name = "South Pole"
lat = -89.98
lon = -24.8
country = "United States"

[zep]
name = "Ny-Alesund, Zeppelin Station"
lat = 78.907
lon = 11.888
country = "Norway"

[psa]
name = "Palmer Station"
lat = -64.774
lon = -64.053
country = "United States"

[cgo]
name = "Cape Grim"
lat = -40.683
lon = 144.69
country = "Australia"

[alt]
name = "Alert"
lat = 82.451
lon = -62.507
country = "Canada"
`

// step checks the result of a Multiset operation that should have advanced
// the Multiset to stage want. Partial failures have already been logged by
// the Multiset and are not an error as long as some datasets advanced.
func step(m *co2diag.Multiset, want co2diag.Stage, err error) error {
	if err == nil {
		return nil
	}
	var ee *co2diag.ExecutionError
	if errors.As(err, &ee) && m.Stage() == want {
		return nil
	}
	return err
}

// prepared returns the Multiset saved at cache if there is one, and
// otherwise builds it and saves it there.
func prepared(ctx context.Context, cache string, log logrus.FieldLogger, build func() (*co2diag.Multiset, error)) (*co2diag.Multiset, error) {
	if cache != "" {
		m, err := co2diag.LoadFromBucket(ctx, cache, co2diag.Config{Log: log})
		if err == nil {
			return m, nil
		}
		log.WithField("cache", cache).WithError(err).Debug("co2diag cache not used")
	}
	m, err := build()
	if err != nil {
		return nil, err
	}
	if cache != "" {
		if err := m.SaveToBucket(ctx, cache); err != nil {
			log.WithField("cache", cache).WithError(err).Warn("co2diag could not save cache")
		}
	}
	return m, nil
}

// loadCMIP loads and preprocesses the model named in o.
func loadCMIP(ctx context.Context, o *CMIPOptions, log logrus.FieldLogger) (*co2diag.Multiset, error) {
	var p co2diag.Provider
	var c co2diag.Criteria
	switch o.LoadMethod {
	case "remote":
		p = &co2diag.RemoteCatalogProvider{CatalogURL: o.CatalogURL, CacheDir: o.DownloadCache, Log: log}
		var err error
		if c, err = co2diag.KeyCriteria(o.ModelName); err != nil {
			return nil, err
		}
		c["variable_id"] = []string{"co2"}
	case "local":
		p = &co2diag.LocalFileProvider{Dir: o.DataPath, Pattern: co2diag.DefaultModelPattern}
		c = co2diag.Criteria{"key": {o.ModelName}}
	default:
		return nil, fmt.Errorf("co2diag: invalid load method %q", o.LoadMethod)
	}
	m := co2diag.NewMultiset(co2diag.Config{Preprocess: co2diag.CMIPPreprocess, Log: log})
	if err := step(m, co2diag.StageOriginal, m.Load(ctx, p, c)); err != nil {
		return nil, err
	}
	if err := step(m, co2diag.StagePreprocessed, m.Preprocess()); err != nil {
		return nil, err
	}
	return m, nil
}

// cmipPrepped runs the selection and means over the model named in o and
// returns the prepped dataset.
func cmipPrepped(ctx context.Context, o *CMIPOptions, withPlev bool, means []string, cache string, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	m, err := prepared(ctx, cache, log, func() (*co2diag.Multiset, error) {
		m, err := loadCMIP(ctx, o, log)
		if err != nil {
			return nil, err
		}
		sel := co2diag.SelectTimeRange(o.Start, o.End)
		if withPlev && o.Plev != nil {
			sel = sel.And(co2diag.SelectValue("plev", float64(*o.Plev)))
		}
		if err = m.QueueSelection(sel, false); err != nil {
			return nil, err
		}
		if err = m.QueueMean(means...); err != nil {
			return nil, err
		}
		if err = step(m, co2diag.StagePrepped, m.ExecuteAll()); err != nil {
			return nil, err
		}
		m.CountMembers()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return m.Current().Lookup(o.ModelName)
}

// Timeseries is the CMIP time series recipe: the model is restricted to
// the time window and pressure level and averaged over longitude and
// latitude.
func Timeseries(ctx context.Context, o *CMIPOptions, cache string, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	return cmipPrepped(ctx, o, true, []string{"lon", "lat"}, cache, log)
}

// VerticalProfile is the CMIP vertical profile recipe: the model is
// averaged over longitude, latitude and the time window.
func VerticalProfile(ctx context.Context, o *CMIPOptions, cache string, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	return cmipPrepped(ctx, o, false, []string{"lon", "lat", "time"}, cache, log)
}

// ZonalMean is the CMIP zonal mean recipe: the model is averaged over
// longitude, the time window and the selected ensemble members.
func ZonalMean(ctx context.Context, o *CMIPOptions, cache string, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	ds, err := cmipPrepped(ctx, o, false, []string{"lon", "time"}, cache, log)
	if err != nil {
		return nil, err
	}
	return memberMean(ds, o.MemberKeys, log)
}

// AnnualSeries is the CMIP annual series recipe. It returns the mean
// annual cycle and the yearly anomalies of the selected members' mean
// time series at the chosen pressure level.
func AnnualSeries(ctx context.Context, o *CMIPOptions, cache string, log logrus.FieldLogger) (cycle, yearly *co2diag.Dataset, err error) {
	ds, err := cmipPrepped(ctx, o, true, []string{"lon", "lat"}, cache, log)
	if err != nil {
		return nil, nil, err
	}
	if ds, err = memberMean(ds, o.MemberKeys, log); err != nil {
		return nil, nil, err
	}
	return co2diag.Anomalies(ds, "co2")
}

// memberMean averages ds over the ensemble members named in keys, or over
// all members if keys is empty. Datasets without members are returned as
// they are.
func memberMean(ds *co2diag.Dataset, keys []string, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	c, ok := ds.DimCoord("member_id")
	if !ok {
		return ds, nil
	}
	if len(keys) > 0 {
		idx := make([]int, len(keys))
		for i, k := range keys {
			idx[i] = -1
			for j := 0; j < c.Len(); j++ {
				if c.Label(j) == k {
					idx[i] = j
					break
				}
			}
			if idx[i] < 0 {
				return nil, &co2diag.KeyError{Key: k}
			}
		}
		var err error
		if ds, err = ds.Take("member_id", idx); err != nil {
			return nil, err
		}
	} else {
		log.WithField("members", strings.Join(c.Labels, ",")).Debug("co2diag averaging over all members")
	}
	return ds.Mean("member_id")
}

// E3SMOptions configure the E3SM time series recipe.
type E3SMOptions struct {
	TimeOptions

	// TestData is the E3SM output file.
	TestData string `validate:"required"`

	// LevIndex is the model level to use. The last (lowest) level is
	// used if it is nil.
	LevIndex *int `validate:"omitempty,gte=0"`
}

// E3SMTimeseries is the E3SM time series recipe: one model level in the
// time window, averaged over the unstructured columns.
func E3SMTimeseries(ctx context.Context, o *E3SMOptions, cache string, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	m, err := prepared(ctx, cache, log, func() (*co2diag.Multiset, error) {
		raw, err := co2diag.OpenNCF(maybeDownload(ctx, o.TestData, log))
		if err != nil {
			return nil, err
		}
		dd := co2diag.NewDatasetDict()
		dd.Set("main", raw)
		m := co2diag.NewMultiset(co2diag.Config{Preprocess: co2diag.E3SMPreprocess, Log: log})
		if err = m.SetOriginal(dd); err != nil {
			return nil, err
		}
		if err = step(m, co2diag.StagePreprocessed, m.Preprocess()); err != nil {
			return nil, err
		}
		b, _ := m.Current().Get("main")
		lev := b.Dims()["lev"] - 1
		if o.LevIndex != nil {
			lev = *o.LevIndex
		}
		if err = m.QueueSelection(co2diag.SelectTimeRange(o.Start, o.End), false); err != nil {
			return nil, err
		}
		if err = m.QueueSelection(co2diag.SelectIndex("lev", lev), true); err != nil {
			return nil, err
		}
		if err = step(m, co2diag.StagePrepped, m.ExecuteAll()); err != nil {
			return nil, err
		}
		if err = m.QueueMean("ncol"); err != nil {
			return nil, err
		}
		if err = step(m, co2diag.StageExecuted, m.ExecuteAll()); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return m.Current().Lookup("main")
}

// loadStations reads the station dictionary and checks that code is in
// it.
func loadStations(o *SurfaceOptions) (co2diag.StationDict, error) {
	var sd co2diag.StationDict
	var err error
	if o.StationsFile != "" {
		f, ferr := os.Open(o.StationsFile)
		if ferr != nil {
			return nil, fmt.Errorf("co2diag: %v", ferr)
		}
		defer f.Close()
		sd, err = co2diag.LoadStationDict(f)
	} else {
		sd, err = co2diag.LoadStationDict(strings.NewReader(DefaultStations))
	}
	if err != nil {
		return nil, err
	}
	if _, ok := sd[o.StationCode]; !ok {
		return nil, fmt.Errorf("co2diag: unknown station %q; choose from %v", o.StationCode, sd.Codes())
	}
	return sd, nil
}

// loadObs loads and preprocesses the observations of the station named
// in o.
func loadObs(ctx context.Context, o *SurfaceOptions, log logrus.FieldLogger) (*co2diag.Multiset, error) {
	sd, err := loadStations(o)
	if err != nil {
		return nil, err
	}
	m := co2diag.NewMultiset(co2diag.Config{
		Stations:   sd,
		Preprocess: co2diag.ObsPackPreprocess,
		Log:        log,
	})
	p := &co2diag.LocalFileProvider{
		Dir:      o.RefData,
		Pattern:  co2diag.DefaultStationPattern,
		Patterns: sd.Patterns(),
	}
	if err := step(m, co2diag.StageOriginal, m.Load(ctx, p, co2diag.Criteria{"key": {o.StationCode}})); err != nil {
		return nil, err
	}
	if err := step(m, co2diag.StagePreprocessed, m.Preprocess()); err != nil {
		return nil, err
	}
	if meta, ok := m.Station(o.StationCode); ok {
		log.WithFields(logrus.Fields{
			"station":  meta.Code,
			"name":     meta.Name,
			"lat":      meta.Lat,
			"lon":      meta.Lon,
			"altitude": meta.Altitude,
		}).Info("co2diag station")
	}
	return m, nil
}

// ObsTimeseries is the station time series recipe: the observations in
// the time window, resampled to monthly means.
func ObsTimeseries(ctx context.Context, o *SurfaceOptions, cache string, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	m, err := prepared(ctx, cache, log, func() (*co2diag.Multiset, error) {
		m, err := loadObs(ctx, o, log)
		if err != nil {
			return nil, err
		}
		if err = m.QueueSelection(co2diag.SelectTimeRange(o.Start, o.End), false); err != nil {
			return nil, err
		}
		if err = step(m, co2diag.StagePrepped, m.ExecuteAll()); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	ds, err := m.Current().Lookup(o.StationCode)
	if err != nil {
		return nil, err
	}
	return co2diag.ResampleMonthly(ds, "co2")
}

// SurfaceTrends is the multidecadal trends recipe. The model is matched
// to the station location and its lowest level (or both are averaged
// globally), over the common time window. If difference is true, the
// results are monthly means and include the model minus observation
// difference under the key "diff".
func SurfaceTrends(ctx context.Context, obsOpts *SurfaceOptions, mdlOpts *CMIPOptions, difference, globalMean bool, log logrus.FieldLogger) (map[string]*co2diag.Dataset, error) {
	om, err := loadObs(ctx, obsOpts, log)
	if err != nil {
		return nil, err
	}
	obs, err := om.Current().Lookup(obsOpts.StationCode)
	if err != nil {
		return nil, err
	}
	mm, err := loadCMIP(ctx, mdlOpts, log)
	if err != nil {
		return nil, err
	}
	mdl, err := mm.Current().Lookup(mdlOpts.ModelName)
	if err != nil {
		return nil, err
	}
	meta, ok := om.Station(obsOpts.StationCode)
	if !ok {
		return nil, fmt.Errorf("co2diag: no metadata for station %s", obsOpts.StationCode)
	}
	obs, mdl, err = co2diag.MakeComparable(obs, mdl, co2diag.CompareOptions{
		Start:          obsOpts.Start,
		End:            obsOpts.End,
		Lat:            meta.Lat,
		Lon:            meta.Lon,
		Altitude:       meta.Altitude,
		AltitudeMethod: co2diag.AltitudeLowest,
		GlobalMean:     globalMean,
		Var:            "co2",
		Log:            log,
	})
	if err != nil {
		return nil, err
	}
	if mdl, err = memberMean(mdl, mdlOpts.MemberKeys, log); err != nil {
		return nil, err
	}
	for name, ds := range map[string]*co2diag.Dataset{"obs": obs, "model": mdl} {
		if tr, err := co2diag.LinearTrend(ds, "co2"); err == nil {
			log.WithFields(logrus.Fields{
				"series": name,
				"slope":  tr.Slope,
				"r2":     tr.RSquared,
				"n":      tr.N,
			}).Info("co2diag trend (ppm/yr)")
		}
	}
	if !difference {
		return map[string]*co2diag.Dataset{"model": mdl, "obs": obs}, nil
	}
	mdlRs, err := co2diag.ResampleMonthly(mdl, "co2")
	if err != nil {
		return nil, err
	}
	obsRs, err := co2diag.ResampleMonthly(obs, "co2")
	if err != nil {
		return nil, err
	}
	diff, err := co2diag.Difference(mdlRs, obsRs, "co2")
	if err != nil {
		return nil, err
	}
	return map[string]*co2diag.Dataset{"model": mdlRs, "obs": obsRs, "diff": diff}, nil
}

// Bin3D is the three-dimensional binning recipe: observations from one
// year are binned by vertical level, latitude and longitude.
func Bin3D(ctx context.Context, o *BinOptions, log logrus.FieldLogger) (*co2diag.Dataset, error) {
	raw, err := co2diag.OpenNCF(maybeDownload(ctx, o.RefData, log))
	if err != nil {
		return nil, err
	}
	ds, err := co2diag.ObsPackPreprocess("bin3d", raw)
	if err != nil {
		return nil, err
	}
	return co2diag.BinByYearAndVertical(ds, o.Year, o.VerticalEdges, o.NLat, o.NLon, "co2")
}
