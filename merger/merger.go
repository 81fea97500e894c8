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

// Package merger combines the daily files found in a directory into a single
// master dataset sorted by symbol and date.
package merger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/stockparfait/bhavcopy/db"
	"github.com/stockparfait/bhavcopy/table"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"

	"golang.org/x/exp/slices"
)

// Defaults for Config.
const (
	DefaultMaster = "nse_daily_master.csv"
	previewRows   = 5
)

// DefaultPatterns match both the historical and the UDiFF daily file names.
var DefaultPatterns = []string{"cm*.csv", "*CM*.csv"}

// ErrNoData is returned by Merge when none of the files could be used. No
// output is written in this case.
var ErrNoData = errors.Reason("no data files found")

// Mirror receives a copy of the master dataset, e.g. db.SQLite.
type Mirror interface {
	Replace(ctx context.Context, records []db.Record) error
}

// Config for Merge.
type Config struct {
	Dir                 string
	Patterns            []string // file name globs; default: DefaultPatterns
	Master              string   // output file name in Dir; default: DefaultMaster
	ValidateBeforeParse bool     // skip empty and TIMESTAMP-less files upfront
	Columns             *db.ColumnConfig
	Mirror              Mirror // optional
}

func (c *Config) patterns() []string {
	if len(c.Patterns) == 0 {
		return DefaultPatterns
	}
	return c.Patterns
}

func (c *Config) master() string {
	if c.Master == "" {
		return DefaultMaster
	}
	return c.Master
}

func (c *Config) columns() *db.ColumnConfig {
	if c.Columns == nil {
		return db.NewColumnConfig()
	}
	return c.Columns
}

// Validate the config.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.Reason("directory is required")
	}
	for _, p := range c.patterns() {
		if _, err := filepath.Match(p, ""); err != nil {
			return errors.Annotate(err, "bad pattern '%s'", p)
		}
	}
	if m := c.master(); filepath.Base(m) != m {
		return errors.Reason("master must be a file name, got '%s'", m)
	}
	return nil
}

// Result summarizes a Merge run.
type Result struct {
	Files   []string // discovered files
	Used    []string // files that contributed to the dataset
	Skipped []string // files excluded with a warning
	Rows    int      // rows in the master dataset
	Output  string   // path to the master dataset; empty if nothing was written
}

// Discover lists the regular files in dir with a base name matching any of the
// patterns, except the master file itself. The list is sorted by name. A
// missing directory has no files.
func Discover(dir string, patterns []string, master string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Annotate(err, "failed to list '%s'", dir)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == master {
			continue
		}
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, e.Name()); ok {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	return files, nil
}

// readFile parses a single daily file. A non-empty reason means the file is to
// be skipped.
func readFile(fileName string, cfg *Config) (records []db.Record, reason string) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err.Error()
	}
	defer f.Close()

	header, rows, err := db.ReadCSV(f)
	if err != nil {
		return nil, err.Error()
	}
	cols := cfg.columns()
	if cfg.ValidateBeforeParse && (len(rows) == 0 || !cols.HasTimestamp(header)) {
		return nil, "missing TIMESTAMP or empty file"
	}
	records, err = cols.ParseRecords(header, rows)
	if err != nil {
		return nil, err.Error()
	}
	return records, ""
}

func compareRecords(a, b db.Record) int {
	if c := strings.Compare(a.Symbol, b.Symbol); c != 0 {
		return c
	}
	return a.Timestamp.Compare(b.Timestamp)
}

// Merge reads all the daily files in the directory, sorts the rows by symbol
// and date and writes the master dataset, replacing the previous one. Files
// that cannot be used are logged and skipped. When no file can be used, Merge
// returns ErrNoData and writes nothing.
func Merge(ctx context.Context, cfg *Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid config")
	}
	files, err := Discover(cfg.Dir, cfg.patterns(), cfg.master())
	if err != nil {
		return nil, errors.Annotate(err, "failed to discover daily files")
	}
	res := &Result{Files: files}
	logging.Infof(ctx, "merging %d daily files from %s", len(files), cfg.Dir)

	var records []db.Record
	for _, fileName := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := filepath.Base(fileName)
		rs, reason := readFile(fileName, cfg)
		if reason != "" {
			logging.Warningf(ctx, "skipped %s: %s", name, reason)
			res.Skipped = append(res.Skipped, fileName)
			continue
		}
		logging.Debugf(ctx, "%s: %d rows", name, len(rs))
		res.Used = append(res.Used, fileName)
		records = append(records, rs...)
	}
	if len(res.Used) == 0 {
		logging.Errorf(ctx, "no data files found")
		return res, ErrNoData
	}

	slices.SortStableFunc(records, compareRecords)
	res.Rows = len(records)
	output := filepath.Join(cfg.Dir, cfg.master())
	if err := db.WriteMaster(output, records); err != nil {
		return res, errors.Annotate(err, "failed to write master dataset")
	}
	res.Output = output
	logging.Infof(ctx, "saved %d rows from %d files to %s", res.Rows, len(res.Used), output)

	var buf bytes.Buffer
	if err := db.MasterTable(records).WriteText(&buf, table.Params{Tail: previewRows}); err != nil {
		return res, errors.Annotate(err, "failed to render preview")
	}
	logging.Infof(ctx, "last rows:\n%s", buf.String())

	if cfg.Mirror != nil {
		if err := cfg.Mirror.Replace(ctx, records); err != nil {
			return res, errors.Annotate(err, "failed to update mirror")
		}
		logging.Infof(ctx, "mirrored %d rows", res.Rows)
	}
	return res, nil
}
