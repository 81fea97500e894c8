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

// Package fetcher downloads one daily file per calendar day of a date range.
package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/stockparfait/bhavcopy/db"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

// Provider of daily files, such as nse.Session.
type Provider interface {
	// Bhavcopy saves the daily file for the date into dir and returns its path.
	Bhavcopy(ctx context.Context, date db.Date, dir string) (string, error)
	Close() error
}

// OpenFunc acquires a Provider for the duration of a single Fetch.
type OpenFunc func(ctx context.Context) (Provider, error)

// Config for Fetch.
type Config struct {
	Range        db.DateRange
	Dir          string        // where to save the daily files
	RequestDelay time.Duration // pause after a request before the next one
}

// Validate the config.
func (c *Config) Validate() error {
	if c.Range.Start.IsZero() || c.Range.End.IsZero() {
		return errors.Reason("date range is not set")
	}
	if c.Range.End.Before(c.Range.Start) {
		return errors.Reason("invalid date range %s", c.Range)
	}
	if c.Dir == "" {
		return errors.Reason("directory is required")
	}
	if c.RequestDelay < 0 {
		return errors.Reason("request delay must be >= 0, got %s", c.RequestDelay)
	}
	return nil
}

// Report summarizes a Fetch run.
type Report struct {
	Attempted int       // number of dates requested
	Saved     []string  // paths of the saved files, in date order
	Failed    []db.Date // dates with no file
}

// pause blocks for d, or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch attempts to download the daily file for every date in the range,
// exactly once per date, oldest first. A failed date is logged and skipped.
//
// The returned error is non-nil only when the run could not start, or when ctx
// was canceled; in the latter case the partial report is returned as well.
func Fetch(ctx context.Context, cfg *Config, open OpenFunc) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid config")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, errors.Annotate(err, "failed to create directory '%s'", cfg.Dir)
	}
	p, err := open(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open provider")
	}
	defer func() {
		if err := p.Close(); err != nil {
			logging.Warningf(ctx, "failed to close provider: %s", err.Error())
		}
	}()

	logging.Infof(ctx, "fetching %d daily files for %s", cfg.Range.Len(), cfg.Range)
	var report Report
	var delay time.Duration // the first request goes out immediately
	it := cfg.Range.Dates()
	for d, ok := it.Next(); ok; d, ok = it.Next() {
		if err := pause(ctx, delay); err != nil {
			logging.Warningf(ctx, "fetch stopped before %s", d)
			return &report, err
		}
		delay = cfg.RequestDelay
		report.Attempted++
		fileName, err := p.Bhavcopy(ctx, d, cfg.Dir)
		if err != nil {
			logging.Warningf(ctx, "%s: %s", d, err.Error())
			report.Failed = append(report.Failed, d)
			continue
		}
		logging.Infof(ctx, "%s → %s", d, filepath.Base(fileName))
		report.Saved = append(report.Saved, fileName)
	}
	logging.Infof(ctx, "saved %d of %d daily files in %s",
		len(report.Saved), report.Attempted, cfg.Dir)
	return &report, nil
}
