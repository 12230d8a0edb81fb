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

// Package co2util is the command-line interface to the co2diag recipes.
package co2util

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/co2diag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	cmipSets := func() []*pflag.FlagSet {
		return []*pflag.FlagSet{timeseriesCmd.Flags(), verticalProfileCmd.Flags(),
			zonalMeanCmd.Flags(), annualSeriesCmd.Flags(), surfaceTrendsCmd.Flags()}
	}
	timeSets := func() []*pflag.FlagSet {
		return append(cmipSets(), e3smCmd.Flags(), obsCmd.Flags())
	}
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose sets the logging level. It can be true (debug),
              false (warnings only), or a level name such as info.`,
			shorthand:  "v",
			defaultVal: "false",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "cache",
			usage: `
              cache specifies a file or blob storage location where the
              prepared datasets are saved. If the location already holds
              saved datasets they are used instead of loading and
              processing the input data again.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "output",
			usage: `
              output specifies the NetCDF output file or blob storage
              location. Environment variables are expanded.`,
			shorthand:  "o",
			defaultVal: "co2diag_output.nc",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "start_yr",
			usage: `
              start_yr is the first year of the time window, or none.`,
			defaultVal: "1960",
			flagsets:   timeSets(),
		},
		{
			name: "end_yr",
			usage: `
              end_yr is the year the time window ends, or none.`,
			defaultVal: "none",
			flagsets:   timeSets(),
		},
		{
			name: "model_name",
			usage: `
              model_name is the key of the model dataset in the form
              activity.institution.source.experiment.table.grid.`,
			defaultVal: "CMIP.NOAA-GFDL.GFDL-ESM4.esm-hist.Amon.gr1",
			flagsets:   cmipSets(),
		},
		{
			name: "cmip_load_method",
			usage: `
              cmip_load_method is remote to search a data catalog or local
              to read model files from cmip_data_path.`,
			defaultVal: "remote",
			flagsets:   cmipSets(),
		},
		{
			name: "catalog_url",
			usage: `
              catalog_url is the location of the CSV data catalog used
              when cmip_load_method is remote.`,
			defaultVal: "https://storage.googleapis.com/cmip6/pangeo-cmip6-noQC.csv",
			flagsets:   cmipSets(),
		},
		{
			name: "cmip_data_path",
			usage: `
              cmip_data_path is the directory holding model files when
              cmip_load_method is local.`,
			defaultVal: "",
			flagsets:   cmipSets(),
		},
		{
			name: "download_cache",
			usage: `
              download_cache is a directory where downloaded model files
              are kept between runs. If it is empty, files are only kept
              in memory.`,
			defaultVal: "",
			flagsets:   cmipSets(),
		},
		{
			name: "plev",
			usage: `
              plev is the pressure level in Pa to select, or none.`,
			defaultVal: "100000",
			flagsets:   []*pflag.FlagSet{timeseriesCmd.Flags(), annualSeriesCmd.Flags()},
		},
		{
			name: "member_key",
			usage: `
              member_key lists the ensemble members to average. All
              members are used if it is empty.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{zonalMeanCmd.Flags(), annualSeriesCmd.Flags(), surfaceTrendsCmd.Flags()},
		},
		{
			name: "ref_data",
			usage: `
              ref_data is the directory holding station observation files,
              or, for bin3d, the observation file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{obsCmd.Flags(), surfaceTrendsCmd.Flags(), bin3dCmd.Flags()},
		},
		{
			name: "station_code",
			usage: `
              station_code is the code of the surface station to use.`,
			defaultVal: "mlo",
			flagsets:   []*pflag.FlagSet{obsCmd.Flags(), surfaceTrendsCmd.Flags()},
		},
		{
			name: "stations_file",
			usage: `
              stations_file is a TOML station dictionary to use in place
              of the built-in one.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{obsCmd.Flags(), surfaceTrendsCmd.Flags()},
		},
		{
			name: "difference",
			usage: `
              difference specifies whether to output monthly means and the
              model minus observation difference.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{surfaceTrendsCmd.Flags()},
		},
		{
			name: "globalmean",
			usage: `
              globalmean specifies whether to compare global means instead
              of the model at the station location.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{surfaceTrendsCmd.Flags()},
		},
		{
			name: "test_data",
			usage: `
              test_data is the E3SM output file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{e3smCmd.Flags()},
		},
		{
			name: "lev_index",
			usage: `
              lev_index is the E3SM model level to use, or none for the
              lowest level.`,
			defaultVal: "none",
			flagsets:   []*pflag.FlagSet{e3smCmd.Flags()},
		},
		{
			name: "year",
			usage: `
              year is the year of observations to bin.`,
			defaultVal: 2017,
			flagsets:   []*pflag.FlagSet{bin3dCmd.Flags()},
		},
		{
			name: "vertical_edges",
			usage: `
              vertical_edges are the edges of the vertical bins in meters.`,
			defaultVal: []string{"0", "1000", "2000", "4000", "6000", "8000", "10000"},
			flagsets:   []*pflag.FlagSet{bin3dCmd.Flags()},
		},
		{
			name: "n_lat",
			usage: `
              n_lat is the number of latitude bins.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{bin3dCmd.Flags()},
		},
		{
			name: "n_lon",
			usage: `
              n_lon is the number of longitude bins.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{bin3dCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("CO2DIAG")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // The flag only needs to be created once.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	Root.AddCommand(versionCmd)
	Root.AddCommand(timeseriesCmd)
	Root.AddCommand(verticalProfileCmd)
	Root.AddCommand(zonalMeanCmd)
	Root.AddCommand(annualSeriesCmd)
	Root.AddCommand(e3smCmd)
	Root.AddCommand(obsCmd)
	Root.AddCommand(surfaceTrendsCmd)
	Root.AddCommand(bin3dCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the logging level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("co2diag: problem reading configuration file: %v", err)
		}
	}
	level, err := ParseVerbose(Cfg.GetString("verbose"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}

// logger returns the logger the commands report to.
func logger(cmd *cobra.Command) logrus.FieldLogger {
	return logrus.WithField("cmd", cmd.Name())
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "co2diag",
	Short: "Diagnostics of atmospheric CO2 in climate models.",
	Long: `co2diag compares atmospheric CO2 from climate model output with
surface station and aircraft observations. Use the subcommands specified
below to run a diagnostic recipe; each writes its result to a NetCDF file.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'CO2DIAG_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of co2diag.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("co2diag v%s\n", co2diag.Version)
	},
	DisableAutoGenTag: true,
}

// cmipCommand creates a command that runs a recipe over CMIP model output
// and writes the result.
func cmipCommand(use, short, long string, recipe func(context.Context, *CMIPOptions, string, logrus.FieldLogger) (*co2diag.Dataset, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			log := logger(cmd)
			o, err := cmipOptions(Cfg)
			if err != nil {
				return err
			}
			out, err := ValidWritablePath(Cfg.GetString("output"))
			if err != nil {
				return err
			}
			ds, err := recipe(ctx, o, os.ExpandEnv(Cfg.GetString("cache")), log)
			if err != nil {
				return err
			}
			return writeOutput(ctx, out, ds, log)
		},
		DisableAutoGenTag: true,
	}
}

var timeseriesCmd = cmipCommand("timeseries", "Model CO2 time series",
	`timeseries writes the model CO2 time series at one pressure level,
averaged over latitude and longitude.`, Timeseries)

var verticalProfileCmd = cmipCommand("vertical-profile", "Model CO2 vertical profile",
	`vertical-profile writes the model CO2 profile over pressure levels,
averaged over latitude, longitude and the time window.`, VerticalProfile)

var zonalMeanCmd = cmipCommand("zonal-mean", "Model CO2 zonal mean",
	`zonal-mean writes the model CO2 over latitude and pressure level,
averaged over longitude, the time window and the ensemble members.`, ZonalMean)

var annualSeriesCmd = &cobra.Command{
	Use:   "annual-series",
	Short: "Model CO2 seasonal cycle",
	Long: `annual-series writes the mean annual cycle of model CO2 at one
pressure level to the output file with "_cycle" added to its name, and the
anomalies of each year to the output file with "_yearly" added.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		log := logger(cmd)
		o, err := cmipOptions(Cfg)
		if err != nil {
			return err
		}
		out, err := ValidWritablePath(Cfg.GetString("output"))
		if err != nil {
			return err
		}
		cycle, yearly, err := AnnualSeries(ctx, o, os.ExpandEnv(Cfg.GetString("cache")), log)
		if err != nil {
			return err
		}
		if err = writeOutput(ctx, appendBeforeExtension(out, "cycle"), cycle, log); err != nil {
			return err
		}
		return writeOutput(ctx, appendBeforeExtension(out, "yearly"), yearly, log)
	},
	DisableAutoGenTag: true,
}

var e3smCmd = &cobra.Command{
	Use:   "e3sm-timeseries",
	Short: "E3SM CO2 time series",
	Long: `e3sm-timeseries writes the CO2 time series of one E3SM model level,
averaged over all columns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		log := logger(cmd)
		o, err := e3smOptions(Cfg)
		if err != nil {
			return err
		}
		out, err := ValidWritablePath(Cfg.GetString("output"))
		if err != nil {
			return err
		}
		ds, err := E3SMTimeseries(ctx, o, os.ExpandEnv(Cfg.GetString("cache")), log)
		if err != nil {
			return err
		}
		return writeOutput(ctx, out, ds, log)
	},
	DisableAutoGenTag: true,
}

var obsCmd = &cobra.Command{
	Use:   "obs-timeseries",
	Short: "Surface station CO2 time series",
	Long: `obs-timeseries writes the monthly mean CO2 observed at a surface
station.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		log := logger(cmd)
		o, err := surfaceOptions(Cfg)
		if err != nil {
			return err
		}
		out, err := ValidWritablePath(Cfg.GetString("output"))
		if err != nil {
			return err
		}
		ds, err := ObsTimeseries(ctx, o, os.ExpandEnv(Cfg.GetString("cache")), log)
		if err != nil {
			return err
		}
		return writeOutput(ctx, out, ds, log)
	},
	DisableAutoGenTag: true,
}

var surfaceTrendsCmd = &cobra.Command{
	Use:   "surface-trends",
	Short: "Compare model and station CO2 trends",
	Long: `surface-trends matches the model to a surface station over their
common time window and writes both series, each to the output file with
"_model" or "_obs" added to its name. With --difference the series are
monthly means and the model minus observation difference is written with
"_diff" added.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		log := logger(cmd)
		so, err := surfaceOptions(Cfg)
		if err != nil {
			return err
		}
		mo, err := cmipOptions(Cfg)
		if err != nil {
			return err
		}
		out, err := ValidWritablePath(Cfg.GetString("output"))
		if err != nil {
			return err
		}
		r, err := SurfaceTrends(ctx, so, mo, Cfg.GetBool("difference"), Cfg.GetBool("globalmean"), log)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(r))
		for n := range r {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if err := writeOutput(ctx, appendBeforeExtension(out, n), r[n], log); err != nil {
				return err
			}
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var bin3dCmd = &cobra.Command{
	Use:   "bin3d",
	Short: "Bin aircraft CO2 observations",
	Long: `bin3d bins one year of observations by altitude, latitude and
longitude and writes the bin means and counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		log := logger(cmd)
		o, err := binOptions(Cfg)
		if err != nil {
			return err
		}
		out, err := ValidWritablePath(Cfg.GetString("output"))
		if err != nil {
			return err
		}
		ds, err := Bin3D(ctx, o, log)
		if err != nil {
			return err
		}
		return writeOutput(ctx, out, ds, log)
	},
	DisableAutoGenTag: true,
}
