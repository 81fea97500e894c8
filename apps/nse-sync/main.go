// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command nse-sync keeps a local directory of NSE daily bhavcopy files current
// over a rolling window and merges them into a single master dataset.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/stockparfait/bhavcopy/db"
	"github.com/stockparfait/bhavcopy/fetcher"
	"github.com/stockparfait/bhavcopy/merger"
	"github.com/stockparfait/bhavcopy/nse"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

type Flags struct {
	DataDir    string // daily files and the master dataset
	ConfigFile string // default: <DataDir>/config.toml, if present
	Fast       bool   // start from the fast preset
	Fetch      bool
	Merge      bool
	LogLevel   logging.Level
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("nse-sync", flag.ExitOnError)
	fs.StringVar(&flags.DataDir, "data", "data", "directory for daily files and the master dataset")
	fs.StringVar(&flags.ConfigFile, "conf", "",
		"TOML config file (default: <data>/config.toml when it exists)")
	fs.BoolVar(&flags.Fast, "fast", false, "fast preset: one week, no delay, no validation")
	fs.BoolVar(&flags.Fetch, "fetch", true, "download the daily files")
	fs.BoolVar(&flags.Merge, "merge", true, "merge the daily files into the master dataset")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Reason("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if !flags.Fetch && !flags.Merge {
		return nil, errors.Reason("nothing to do: both -fetch and -merge are off")
	}
	return &flags, nil
}

type Config struct {
	RollingDays         int              `toml:"rolling_days"`          // window length, days
	RequestDelaySeconds int              `toml:"request_delay_seconds"` // between downloads
	ValidateBeforeParse bool             `toml:"validate_before_parse"`
	Patterns            []string         `toml:"patterns"` // daily file globs
	Master              string           `toml:"master"`   // master dataset file name
	BaseURL             string           `toml:"base_url"` // archive server
	SQLite              string           `toml:"sqlite"`   // optional mirror database
	Schedule            string           `toml:"schedule"` // optional cron spec
	Columns             *db.ColumnConfig `toml:"columns"`  // header alias overrides
}

// FullConfig is the preset for the regular sync.
func FullConfig() *Config {
	return &Config{
		RollingDays:         730,
		RequestDelaySeconds: 3,
		ValidateBeforeParse: true,
	}
}

// FastConfig is the preset for quick manual checks.
func FastConfig() *Config {
	return &Config{
		RollingDays:         7,
		RequestDelaySeconds: 0,
		ValidateBeforeParse: false,
	}
}

func (c *Config) Validate() error {
	if c.RollingDays < 0 {
		return errors.Reason("rolling_days must be >= 0, got %d", c.RollingDays)
	}
	if c.RequestDelaySeconds < 0 {
		return errors.Reason("request_delay_seconds must be >= 0, got %d",
			c.RequestDelaySeconds)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return errors.Annotate(err, "bad schedule '%s'", c.Schedule)
		}
	}
	return nil
}

// parseConfig reads the config file on top of the preset selected by the flags.
func parseConfig(flags *Flags) (*Config, error) {
	c := FullConfig()
	if flags.Fast {
		c = FastConfig()
	}
	filePath := flags.ConfigFile
	if filePath == "" {
		filePath = filepath.Join(flags.DataDir, "config.toml")
		if _, err := os.Stat(filePath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return c, c.Validate()
			}
			return nil, errors.Annotate(err,
				"cannot check config file for existence: '%s'", filePath)
		}
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	d.DisallowUnknownFields()
	if err := d.Decode(c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid config file %s", filePath)
	}
	return c, nil
}

// timeNow is replaced in tests.
var timeNow = time.Now

func openSession(ctx context.Context) (fetcher.Provider, error) {
	s, err := nse.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func fetchDaily(ctx context.Context, flags *Flags, c *Config) error {
	r, err := db.NewRollingRange(db.DateInIST(timeNow()), c.RollingDays)
	if err != nil {
		return errors.Annotate(err, "failed to compute date range")
	}
	cfg := &fetcher.Config{
		Range:        r,
		Dir:          flags.DataDir,
		RequestDelay: time.Duration(c.RequestDelaySeconds) * time.Second,
	}
	ctx = nse.UseClient(ctx, c.BaseURL)
	if _, err := fetcher.Fetch(ctx, cfg, openSession); err != nil {
		return errors.Annotate(err, "failed to fetch daily files")
	}
	return nil
}

func mergeDaily(ctx context.Context, flags *Flags, c *Config) error {
	cfg := &merger.Config{
		Dir:                 flags.DataDir,
		Patterns:            c.Patterns,
		Master:              c.Master,
		ValidateBeforeParse: c.ValidateBeforeParse,
		Columns:             db.NewColumnConfig().Override(c.Columns),
	}
	if c.SQLite != "" {
		s, err := db.OpenSQLite(c.SQLite)
		if err != nil {
			return errors.Annotate(err, "failed to open mirror")
		}
		defer s.Close()
		cfg.Mirror = s
	}
	_, err := merger.Merge(ctx, cfg)
	if errors.Is(err, merger.ErrNoData) {
		return nil // already reported
	}
	if err != nil {
		return errors.Annotate(err, "failed to merge daily files")
	}
	return nil
}

// syncOnce runs the enabled phases, fetch first.
func syncOnce(ctx context.Context, flags *Flags, c *Config) error {
	if flags.Fetch {
		if err := fetchDaily(ctx, flags, c); err != nil {
			return err
		}
	}
	if flags.Merge {
		if err := mergeDaily(ctx, flags, c); err != nil {
			return err
		}
	}
	return nil
}

// cronLogger sends the scheduler's messages to the context logger.
type cronLogger struct {
	ctx context.Context
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debugf(l.ctx, "cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Errorf(l.ctx, "cron: %s: %s %v", msg, err.Error(), keysAndValues)
}

// schedule runs syncOnce on the configured schedule, in the exchange's
// timezone, until ctx is canceled. A run is skipped while the previous one is
// still in progress.
func schedule(ctx context.Context, flags *Flags, c *Config) error {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return errors.Annotate(err, "failed to load exchange timezone")
	}
	logger := cronLogger{ctx: ctx}
	cr := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err = cr.AddFunc(c.Schedule, func() {
		if err := syncOnce(ctx, flags, c); err != nil {
			logging.Errorf(ctx, "scheduled sync failed: %s", err.Error())
		}
	})
	if err != nil {
		return errors.Annotate(err, "failed to schedule '%s'", c.Schedule)
	}
	cr.Start()
	logging.Infof(ctx, "sync scheduled at '%s' (%s)", c.Schedule, loc)
	<-ctx.Done()
	<-cr.Stop().Done()
	logging.Infof(ctx, "scheduler stopped")
	return nil
}

func run(ctx context.Context, flags *Flags) error {
	c, err := parseConfig(flags)
	if err != nil {
		return errors.Annotate(err, "failed to parse config")
	}
	if c.Schedule != "" {
		return schedule(ctx, flags, c)
	}
	return syncOnce(ctx, flags, c)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := run(ctx, flags); err != nil {
		logging.Errorf(ctx, "%s", err.Error())
		stop()
		os.Exit(1)
	}
}
