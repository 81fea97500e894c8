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

package db

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stockparfait/errors"
)

// ColumnConfig lists, for each master dataset column, the input CSV headers
// that may carry it. The first header present in a file wins. The exchange
// changed its file layout over time, so the defaults accept both the
// historical bhavcopy headers and the current UDiFF ones.
type ColumnConfig struct {
	Symbol    []string `toml:"SYMBOL"`
	Series    []string `toml:"SERIES"`
	Open      []string `toml:"OPEN"`
	High      []string `toml:"HIGH"`
	Low       []string `toml:"LOW"`
	Close     []string `toml:"CLOSE"`
	TotTrdQty []string `toml:"TOTTRDQTY"`
	TotTrdVal []string `toml:"TOTTRDVAL"`
	Timestamp []string `toml:"TIMESTAMP"`
}

// NewColumnConfig creates a ColumnConfig with the default header aliases.
func NewColumnConfig() *ColumnConfig {
	return &ColumnConfig{
		Symbol:    []string{ColSymbol, "TckrSymb"},
		Series:    []string{ColSeries, "SctySrs"},
		Open:      []string{ColOpen, "OpnPric"},
		High:      []string{ColHigh, "HghPric"},
		Low:       []string{ColLow, "LwPric"},
		Close:     []string{ColClose, "ClsPric"},
		TotTrdQty: []string{ColTotTrdQty, "TtlTradgVol"},
		TotTrdVal: []string{ColTotTrdVal, "TtlTrfVal"},
		Timestamp: []string{ColTimestamp, "TradDt"},
	}
}

// Override returns a copy of c where every non-empty alias list of o replaces
// the corresponding list of c.
func (c *ColumnConfig) Override(o *ColumnConfig) *ColumnConfig {
	res := *c
	if o == nil {
		return &res
	}
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	pick(&res.Symbol, o.Symbol)
	pick(&res.Series, o.Series)
	pick(&res.Open, o.Open)
	pick(&res.High, o.High)
	pick(&res.Low, o.Low)
	pick(&res.Close, o.Close)
	pick(&res.TotTrdQty, o.TotTrdQty)
	pick(&res.TotTrdVal, o.TotTrdVal)
	pick(&res.Timestamp, o.Timestamp)
	return &res
}

// aliases in the order of RecordHeader().
func (c *ColumnConfig) aliases() [][]string {
	return [][]string{
		c.Symbol,
		c.Series,
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.TotTrdQty,
		c.TotTrdVal,
		c.Timestamp,
	}
}

func findColumn(header []string, names []string) int {
	for _, n := range names {
		for i, h := range header {
			if h == n {
				return i
			}
		}
	}
	return -1
}

// HasTimestamp checks the header for a column carrying the trading date.
func (c *ColumnConfig) HasTimestamp(header []string) bool {
	return findColumn(header, c.Timestamp) >= 0
}

// MapColumns maps each master dataset column, in RecordHeader() order, to its
// index in the header. All the columns must be present.
func (c *ColumnConfig) MapColumns(header []string) ([]int, error) {
	names := RecordHeader()
	m := make([]int, len(names))
	missing := []string{}
	for j, a := range c.aliases() {
		m[j] = findColumn(header, a)
		if m[j] < 0 {
			missing = append(missing, names[j])
		}
	}
	if len(missing) > 0 {
		return nil, errors.Reason("missing columns: %s", strings.Join(missing, ", "))
	}
	return m, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseInt(s string) (int64, error) {
	if s == "" || s == "-" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// Parse a single CSV row using the column map from MapColumns.
func (c *ColumnConfig) Parse(row []string, colMap []int) (r Record, err error) {
	cell := func(j int) string {
		if colMap[j] >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[colMap[j]])
	}
	r.Symbol = cell(0)
	r.Series = cell(1)
	prices := []*decimal.Decimal{&r.Open, &r.High, &r.Low, &r.Close}
	for i, p := range prices {
		if *p, err = parseDecimal(cell(2 + i)); err != nil {
			err = errors.Annotate(err, "failed to parse %s: '%s'",
				RecordHeader()[2+i], cell(2+i))
			return
		}
	}
	if r.TotalTradedQty, err = parseInt(cell(6)); err != nil {
		err = errors.Annotate(err, "failed to parse %s: '%s'", ColTotTrdQty, cell(6))
		return
	}
	if r.TotalTradedValue, err = parseDecimal(cell(7)); err != nil {
		err = errors.Annotate(err, "failed to parse %s: '%s'", ColTotTrdVal, cell(7))
		return
	}
	if r.Timestamp, err = NewDateFromString(cell(8)); err != nil {
		err = errors.Annotate(err, "failed to parse %s", ColTimestamp)
		return
	}
	return
}

// ReadCSV reads the entire CSV and splits off its header. Header cells are
// trimmed of spaces and a leading byte order mark. An empty input yields a nil
// header and no rows.
func ReadCSV(r io.Reader) (header []string, rows [][]string, err error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true
	all, err := csvReader.ReadAll()
	if err != nil {
		return nil, nil, errors.Annotate(err, "failed to read CSV")
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	header = make([]string, len(all[0]))
	for i, h := range all[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}
	return header, all[1:], nil
}

// ParseRecords converts raw CSV rows into Records. Any bad row fails the
// whole batch.
func (c *ColumnConfig) ParseRecords(header []string, rows [][]string) ([]Record, error) {
	colMap, err := c.MapColumns(header)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue // blank line
		}
		r, err := c.Parse(row, colMap)
		if err != nil {
			return nil, errors.Annotate(err, "failed to parse row %d", i+1)
		}
		records = append(records, r)
	}
	return records, nil
}

// ReadCSVRecords reads a daily file and converts it to Records.
func ReadCSVRecords(r io.Reader, c *ColumnConfig) ([]Record, error) {
	header, rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return c.ParseRecords(header, rows)
}
