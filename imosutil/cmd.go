/*
Copyright © 2020 the imos-tools authors.
This file is part of imos-tools.

imos-tools is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

imos-tools is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with imos-tools.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package imosutil holds the command-line interface of imos-tools.
package imosutil

import (
	"fmt"
	"time"

	"github.com/lnashier/viper"
	imostools "github.com/petejan/imos-tools-sub000"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log is the logger handed to the processing steps.
var Log = logrus.StandardLogger()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to imos-tools.
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
			name: "OutputDir",
			usage: `
              OutputDir is the directory output files are written to. By
              default each output file is written next to its input.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the logging level: one of debug, info, warning
              or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Aggregate.Variables",
			usage: `
              Aggregate.Variables lists the variables to carry into the
              aggregate file. Their ancillary variables, LATITUDE,
              LONGITUDE and NOMINAL_DEPTH are always included.`,
			shorthand:  "v",
			defaultVal: []string{"TEMP"},
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Aggregate.DeploymentWindow",
			usage: `
              Aggregate.DeploymentWindow excludes samples outside each
              file's time_deployment_start and time_deployment_end.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Pressure.Aggregate",
			usage: `
              Pressure.Aggregate is the aggregate file holding the PRES
              records of the mooring's pressure sensors.`,
			shorthand:  "a",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{pressureCmd.Flags()},
		},
		{
			name: "Bin.Variable",
			usage: `
              Bin.Variable is the aggregate variable to bin.`,
			shorthand:  "v",
			defaultVal: "TEMP",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Bin.TimeBinHours",
			usage: `
              Bin.TimeBinHours is the width of the time bins in hours.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Bin.PresBin",
			usage: `
              Bin.PresBin is the width of the pressure bins in dbar.`,
			defaultVal: 10.0,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Bin.QCThreshold",
			usage: `
              Bin.QCThreshold is the worst quality control flag a sample
              may carry and still be binned. 0 keeps only samples
              flagged as not yet checked.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Bin.NominalDepth",
			usage: `
              Bin.NominalDepth specifies whether the nominal depth of an
              instrument is used as its pressure where PRES is missing.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Resample.SampleHours",
			usage: `
              Resample.SampleHours is the spacing of the output time axis
              in hours.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{resampleCmd.Flags()},
		},
		{
			name: "Resample.Method",
			usage: `
              Resample.Method is the statistic computed at each output
              time: mean, nearest or lowess.`,
			shorthand:  "m",
			defaultVal: imostools.ResampleMean,
			flagsets:   []*pflag.FlagSet{resampleCmd.Flags()},
		},
		{
			name: "Resample.QCThreshold",
			usage: `
              Resample.QCThreshold is the worst quality control flag a
              sample may carry and still be used. 0 keeps only samples
              flagged as not yet checked.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{resampleCmd.Flags()},
		},
		{
			name: "Resample.Variables",
			usage: `
              Resample.Variables lists the variables to resample. If it is
              empty, a built-in table of IMOS variable names is used.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{resampleCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("IMOS")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(aggregateCmd)
	Root.AddCommand(pressureCmd)
	Root.AddCommand(binCmd)
	Root.AddCommand(resampleCmd)
}

// setConfig reads the configuration file, if one is given, and sets up
// logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("imostools: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("imostools: invalid LogLevel: %v", err)
	}
	Log.SetLevel(level)
	Log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "imostools",
	Short: "Aggregation, pressure interpolation and binning of mooring data.",
	Long: `imostools merges the per-instrument netCDF files of an IMOS mooring
deployment into aggregate files, fills in missing pressure records from
the mooring's pressure sensors, and grids the results onto regular time
and pressure axes. Use the subcommands specified below to access this
functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'IMOS_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of imos-tools.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("imos-tools v%s\n", imostools.Version)
	},
	DisableAutoGenTag: true,
}

// aggregateCmd merges instrument files.
var aggregateCmd = &cobra.Command{
	Use:   "aggregate file...",
	Short: "Merge instrument files into one time-sorted file.",
	Long: `aggregate merges per-instrument netCDF files into one file holding
every sample of the chosen variables in time order, with the index of the
instrument each sample came from. The order of the files sets the
instrument indices. Every file needs a variable with standard_name time
and the time_deployment_start and time_deployment_end attributes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandFiles(args)
		if err != nil {
			return err
		}
		vars, err := cast.ToStringSliceE(Cfg.Get("Aggregate.Variables"))
		if err != nil {
			return fmt.Errorf("imostools: invalid Aggregate.Variables: %v", err)
		}
		path, err := imostools.Aggregate(files, expandStringSlice(vars), imostools.AggregateOptions{
			OutputDir:        outputDir(),
			DeploymentWindow: Cfg.GetBool("Aggregate.DeploymentWindow"),
			Log:              Log,
		})
		if err != nil {
			return err
		}
		cmd.Printf("%s\n", path)
		return nil
	},
	DisableAutoGenTag: true,
}

// pressureCmd fills missing pressure records.
var pressureCmd = &cobra.Command{
	Use:   "pressure file...",
	Short: "Interpolate pressure for instruments without a pressure sensor.",
	Long: `pressure writes a copy of each instrument file with PRES filled in
from the pressure sensors of an aggregate file (--Pressure.Aggregate),
interpolating between the sensors above and below the instrument's
nominal depth. A Z is added to the data code of each new file name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agg := Cfg.GetString("Pressure.Aggregate")
		if agg == "" {
			return fmt.Errorf("imostools: you need to specify an aggregate file (for example: --Pressure.Aggregate=PRES-aggregate.nc)")
		}
		files, err := expandFiles(args)
		if err != nil {
			return err
		}
		paths, err := imostools.InterpolatePressure(expandPath(agg), files, imostools.PressureOptions{
			OutputDir: outputDir(),
			Log:       Log,
		})
		for _, p := range paths {
			cmd.Printf("%s\n", p)
		}
		return err
	},
	DisableAutoGenTag: true,
}

// binCmd grids an aggregate variable.
var binCmd = &cobra.Command{
	Use:   "bin aggregate",
	Short: "Bin an aggregate variable by time and pressure.",
	Long: `bin grids one variable of an aggregate file onto time bins of
Bin.TimeBinHours and pressure bins of Bin.PresBin dbar, writing the mean,
count, standard error and worst quality control flag of each bin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qc, err := cast.ToIntE(Cfg.Get("Bin.QCThreshold"))
		if err != nil {
			return fmt.Errorf("imostools: invalid Bin.QCThreshold: %v", err)
		}
		path, err := imostools.Bin(expandPath(args[0]), Cfg.GetString("Bin.Variable"), imostools.BinOptions{
			OutputDir:      outputDir(),
			TimeBinHours:   Cfg.GetFloat64("Bin.TimeBinHours"),
			PresBin:        Cfg.GetFloat64("Bin.PresBin"),
			QCThreshold:    imostools.Threshold(imostools.Flag(qc)),
			NoNominalDepth: !Cfg.GetBool("Bin.NominalDepth"),
			Log:            Log,
		})
		if err != nil {
			return err
		}
		cmd.Printf("%s\n", path)
		return nil
	},
	DisableAutoGenTag: true,
}

// resampleCmd puts instrument files on a regular time axis.
var resampleCmd = &cobra.Command{
	Use:   "resample file...",
	Short: "Resample instrument files onto a regular time axis.",
	Long: `resample computes each instrument file on a regular time axis of
Resample.SampleHours spacing covering the deployment, using the mean, the
nearest sample or a local linear fit (lowess) of the good samples near
each output time.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandFiles(args)
		if err != nil {
			return err
		}
		qc, err := cast.ToIntE(Cfg.Get("Resample.QCThreshold"))
		if err != nil {
			return fmt.Errorf("imostools: invalid Resample.QCThreshold: %v", err)
		}
		vars, err := cast.ToStringSliceE(Cfg.Get("Resample.Variables"))
		if err != nil {
			return fmt.Errorf("imostools: invalid Resample.Variables: %v", err)
		}
		for _, f := range files {
			path, err := imostools.Resample(f, imostools.ResampleOptions{
				OutputDir:   outputDir(),
				SampleHours: Cfg.GetFloat64("Resample.SampleHours"),
				Method:      Cfg.GetString("Resample.Method"),
				QCThreshold: imostools.Threshold(imostools.Flag(qc)),
				Variables:   vars,
				Log:         Log,
			})
			if err != nil {
				return err
			}
			cmd.Printf("%s\n", path)
		}
		return nil
	},
	DisableAutoGenTag: true,
}
