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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/spatialmodel/co2diag/cloud"
)

var validate = validator.New()

// IsSomeNone returns whether v is nil or a string spelling of "none".
func IsSomeNone(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), "none")
}

// ValidYearString checks that s is a year between 1 and 9999. An empty
// string or "none" gives an empty result, which means no limit.
func ValidYearString(s string) (string, error) {
	if s == "" || IsSomeNone(s) {
		return "", nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1 || y > 9999 {
		return "", fmt.Errorf("co2diag: %q is not a valid year", s)
	}
	return s, nil
}

// yearTime converts a year string checked by ValidYearString to the first
// instant of that year. An empty year gives the zero time.
func yearTime(s string) (time.Time, error) {
	s, err := ValidYearString(s)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	y, _ := strconv.Atoi(s)
	return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), nil
}

// NullableString returns nil if v is nil or "none", and v otherwise.
// v must be a string.
func NullableString(v interface{}) (*string, error) {
	if IsSomeNone(v) {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("co2diag: %v (%T) is not a string", v, v)
	}
	return &s, nil
}

// NullableInt returns nil if v is nil or "none", and v as an integer
// otherwise.
func NullableInt(v interface{}) (*int, error) {
	if IsSomeNone(v) {
		return nil, nil
	}
	switch v.(type) {
	case int, int32, int64, string:
	default:
		return nil, fmt.Errorf("co2diag: %v (%T) is not an integer", v, v)
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return nil, fmt.Errorf("co2diag: %v is not an integer", v)
	}
	return &i, nil
}

// ValidExistingPath checks that path exists, after expanding environment
// variables.
func ValidExistingPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if _, err := os.Stat(path); err != nil {
		return path, fmt.Errorf("co2diag: %v", err)
	}
	return path, nil
}

// ValidWritablePath checks that a file can be created at path, after
// expanding environment variables. Blob storage locations are checked by
// opening their bucket.
func ValidWritablePath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if path == "" {
		return path, fmt.Errorf("co2diag: no output path was specified")
	}
	if cloud.IsBlob(path) {
		bucket, _, err := cloud.SplitBlob(path)
		if err != nil {
			return path, err
		}
		if _, err = cloud.OpenBucket(context.TODO(), bucket); err != nil {
			return path, fmt.Errorf("co2diag: checking output location: %v", err)
		}
		return path, nil
	}
	f, err := ioutil.TempFile(filepath.Dir(path), ".co2diag")
	if err != nil {
		return path, fmt.Errorf("co2diag: output directory is not writable: %v", err)
	}
	f.Close()
	os.Remove(f.Name())
	return path, nil
}

// OptionsToArgs converts recipe options to command-line arguments, in
// sorted order of the option names.
func OptionsToArgs(options map[string]interface{}) []string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var o []string
	for _, k := range keys {
		v := options[k]
		s := "none"
		if v != nil {
			s = cast.ToString(v)
			if b, ok := v.(bool); ok {
				s = strconv.FormatBool(b)
			}
		}
		o = append(o, "--"+k, s)
	}
	return o
}

// ParseVerbose converts a verbosity setting to a log level. It accepts
// true (debug), false (warnings only), or a level name such as "INFO".
func ParseVerbose(v string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false":
		return logrus.WarnLevel, nil
	case "true":
		return logrus.DebugLevel, nil
	}
	l, err := logrus.ParseLevel(v)
	if err != nil {
		return l, fmt.Errorf("co2diag: invalid verbosity %q: %v", v, err)
	}
	return l, nil
}

// TimeOptions is the time window shared by the recipes.
type TimeOptions struct {
	// Start and End are the first instants of the start and end years.
	// Zero values leave the window open.
	Start, End time.Time
}

// timeOptions reads start_yr and end_yr from cfg.
func timeOptions(cfg *viper.Viper) (TimeOptions, error) {
	start, err := yearTime(os.ExpandEnv(cfg.GetString("start_yr")))
	if err != nil {
		return TimeOptions{}, err
	}
	end, err := yearTime(os.ExpandEnv(cfg.GetString("end_yr")))
	if err != nil {
		return TimeOptions{}, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return TimeOptions{}, fmt.Errorf("co2diag: end year %d is before start year %d", end.Year(), start.Year())
	}
	return TimeOptions{Start: start, End: end}, nil
}

// CMIPOptions configure the recipes that use CMIP model output.
type CMIPOptions struct {
	TimeOptions

	// LoadMethod is "remote" to read a data catalog or "local" to read
	// files from DataPath.
	LoadMethod string `validate:"oneof=remote local"`
	CatalogURL string `validate:"required_if=LoadMethod remote"`
	DataPath   string `validate:"required_if=LoadMethod local"`

	// DownloadCache is where downloaded model files are kept.
	DownloadCache string

	// ModelName is the dataset key, e.g.
	// "CMIP.NOAA-GFDL.GFDL-ESM4.esm-hist.Amon.gr1".
	ModelName string `validate:"required"`

	// Plev is the pressure level in Pa to select, if any.
	Plev *int `validate:"omitempty,gt=0"`

	// MemberKeys are the ensemble members to use. All members are used
	// if it is empty.
	MemberKeys []string
}

// cmipOptions reads and validates CMIPOptions from cfg.
func cmipOptions(cfg *viper.Viper) (*CMIPOptions, error) {
	t, err := timeOptions(cfg)
	if err != nil {
		return nil, err
	}
	plev, err := NullableInt(cfg.GetString("plev"))
	if err != nil {
		return nil, err
	}
	var members []string
	for _, m := range cfg.GetStringSlice("member_key") {
		if !IsSomeNone(m) && m != "" {
			members = append(members, m)
		}
	}
	o := &CMIPOptions{
		TimeOptions:   t,
		LoadMethod:    cfg.GetString("cmip_load_method"),
		CatalogURL:    os.ExpandEnv(cfg.GetString("catalog_url")),
		DataPath:      os.ExpandEnv(cfg.GetString("cmip_data_path")),
		DownloadCache: os.ExpandEnv(cfg.GetString("download_cache")),
		ModelName:     cfg.GetString("model_name"),
		Plev:          plev,
		MemberKeys:    members,
	}
	if err := validate.Struct(o); err != nil {
		return nil, fmt.Errorf("co2diag: invalid CMIP options: %v", err)
	}
	return o, nil
}

// SurfaceOptions configure the recipes that use surface station
// observations.
type SurfaceOptions struct {
	TimeOptions

	// RefData is the directory holding the station files.
	RefData string `validate:"required"`

	// StationCode is the station to use, e.g. "mlo".
	StationCode string `validate:"required,alphanum"`

	// StationsFile is an optional TOML station dictionary that replaces
	// the built-in one.
	StationsFile string
}

// surfaceOptions reads and validates SurfaceOptions from cfg.
func surfaceOptions(cfg *viper.Viper) (*SurfaceOptions, error) {
	t, err := timeOptions(cfg)
	if err != nil {
		return nil, err
	}
	o := &SurfaceOptions{
		TimeOptions:  t,
		RefData:      os.ExpandEnv(cfg.GetString("ref_data")),
		StationCode:  strings.ToLower(cfg.GetString("station_code")),
		StationsFile: os.ExpandEnv(cfg.GetString("stations_file")),
	}
	if err := validate.Struct(o); err != nil {
		return nil, fmt.Errorf("co2diag: invalid station options: %v", err)
	}
	return o, nil
}

// BinOptions configure the bin3d recipe.
type BinOptions struct {
	RefData       string    `validate:"required"`
	Year          int       `validate:"gte=1,lte=9999"`
	VerticalEdges []float64 `validate:"min=2"`
	NLat          int       `validate:"gte=1"`
	NLon          int       `validate:"gte=1"`
}

// binOptions reads and validates BinOptions from cfg.
func binOptions(cfg *viper.Viper) (*BinOptions, error) {
	var edges []float64
	for _, e := range cfg.GetStringSlice("vertical_edges") {
		f, err := cast.ToFloat64E(strings.TrimSpace(e))
		if err != nil {
			return nil, fmt.Errorf("co2diag: invalid vertical bin edge %q", e)
		}
		edges = append(edges, f)
	}
	o := &BinOptions{
		RefData:       os.ExpandEnv(cfg.GetString("ref_data")),
		Year:          cfg.GetInt("year"),
		VerticalEdges: edges,
		NLat:          cfg.GetInt("n_lat"),
		NLon:          cfg.GetInt("n_lon"),
	}
	if err := validate.Struct(o); err != nil {
		return nil, fmt.Errorf("co2diag: invalid binning options: %v", err)
	}
	return o, nil
}

// appendBeforeExtension inserts suffix before the extension of path:
// "out.nc" and "cycle" give "out_cycle.nc".
func appendBeforeExtension(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}

// e3smOptions reads and validates E3SMOptions from cfg.
func e3smOptions(cfg *viper.Viper) (*E3SMOptions, error) {
	t, err := timeOptions(cfg)
	if err != nil {
		return nil, err
	}
	lev, err := NullableInt(cfg.GetString("lev_index"))
	if err != nil {
		return nil, err
	}
	o := &E3SMOptions{
		TimeOptions: t,
		TestData:    os.ExpandEnv(cfg.GetString("test_data")),
		LevIndex:    lev,
	}
	if err := validate.Struct(o); err != nil {
		return nil, fmt.Errorf("co2diag: invalid E3SM options: %v", err)
	}
	return o, nil
}
