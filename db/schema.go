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
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	_ "time/tzdata" // exchange timezone must resolve on hosts without zoneinfo

	"github.com/shopspring/decimal"
	"github.com/stockparfait/bhavcopy/table"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
)

// lessLex is a lexicographic ordering on the slices of int.
func lessLex(x, y []int) bool {
	l := len(x)
	if len(y) < l {
		l = len(y)
	}
	for i := 0; i < l; i++ {
		if x[i] < y[i] {
			return true
		}
		if x[i] > y[i] {
			return false
		}
	}
	return len(x) < len(y)
}

// parseTime accepts the date and time formats found in exchange files. Month
// names are matched case-insensitively, so "01-JAN-2024" parses.
func parseTime(s string) (time.Time, error) {
	if s == "0000-00-00" || s == "0000-00-00T00:00:00.000" {
		return time.Time{}, nil
	}
	formats := []string{
		"2006-01-02 15:04:05.999",
		"2006-01-02T15:04:05.999",
		"2006-01-02T15:04:05.999Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"02-Jan-2006",
		"2-Jan-2006",
		"20060102",
	}
	var err error
	for _, f := range formats {
		var tm time.Time
		if tm, err = time.Parse(f, s); err == nil {
			return tm, nil
		}
	}
	return time.Time{}, err
}

// Date records a calendar date as year, month and day. The struct is designed
// to fit into 4 bytes.
type Date struct {
	YearVal  uint16
	MonthVal uint8
	DayVal   uint8
}

var _ json.Marshaler = Date{}
var _ json.Unmarshaler = &Date{}

// NewDate is the constructor for Date.
func NewDate(year uint16, month, day uint8) Date {
	return Date{year, month, day}
}

// NewDateFromTime creates a Date instance from a time.Time value in its own
// location.
func NewDateFromTime(t time.Time) Date {
	return Date{
		YearVal:  uint16(t.Year()),
		MonthVal: uint8(t.Month()),
		DayVal:   uint8(t.Day()),
	}
}

// NewDateFromString creates a Date instance from a string representation.
func NewDateFromString(s string) (Date, error) {
	t, err := parseTime(s)
	if err != nil {
		return Date{}, errors.Annotate(err, "failed to parse a Date string: '%s'", s)
	}
	return NewDateFromTime(t), nil
}

// DateInIST returns today's date in the exchange's timezone (Asia/Kolkata).
func DateInIST(now time.Time) Date {
	tz := "Asia/Kolkata"
	location, err := time.LoadLocation(tz)
	if err != nil {
		panic(errors.Annotate(err, "failed to load timezone %s", tz))
	}
	return NewDateFromTime(now.In(location))
}

func (d Date) Year() uint16 { return d.YearVal }
func (d Date) Month() uint8 { return d.MonthVal }
func (d Date) Day() uint8   { return d.DayVal }

// String representation of the value.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year(), d.Month(), d.Day())
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. NOTE: unlike other methods, this
// is a pointer method.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Annotate(err, "Date JSON must be a string")
	}
	date, err := NewDateFromString(s)
	if err != nil {
		return errors.Annotate(err, "failed to parse Date string")
	}
	*d = date
	return nil
}

// ToTime converts Date to Time in UTC.
func (d Date) ToTime() time.Time {
	return time.Date(int(d.Year()), time.Month(d.Month()), int(d.Day()), 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return NewDateFromTime(d.ToTime().AddDate(0, 0, n))
}

// Before compares two Date objects for strict inequality (self < d2).
func (d Date) Before(d2 Date) bool {
	return lessLex([]int{int(d.Year()), int(d.Month()), int(d.Day())},
		[]int{int(d2.Year()), int(d2.Month()), int(d2.Day())})
}

// After compares two Date objects for strict inequality, self > d2.
func (d Date) After(d2 Date) bool {
	return d2.Before(d)
}

// Compare returns -1, 0 or 1 when d is before, equal to or after d2.
func (d Date) Compare(d2 Date) int {
	switch {
	case d.Before(d2):
		return -1
	case d.After(d2):
		return 1
	}
	return 0
}

// IsZero checks whether the date has a zero value.
func (d Date) IsZero() bool {
	return d.Year() == 0 && d.Month() == 0 && d.Day() == 0
}

// InRange checks if d is in the inclusive date range. Any of the bounds may be
// zero value, in which case it's ignored.
func (d Date) InRange(start, end Date) bool {
	if d.IsZero() {
		return false
	}
	if !start.IsZero() && start.After(d) {
		return false
	}
	if !end.IsZero() && end.Before(d) {
		return false
	}
	return true
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start Date
	End   Date
}

// NewDateRange checks that start <= end and both are set.
func NewDateRange(start, end Date) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, errors.Reason("date range bounds must be set: [%s, %s]",
			start, end)
	}
	if start.After(end) {
		return DateRange{}, errors.Reason("start %s is after end %s", start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// NewRollingRange is the window of the given number of days ending today,
// i.e. [today - days, today].
func NewRollingRange(today Date, days int) (DateRange, error) {
	if days < 0 {
		return DateRange{}, errors.Reason("rolling days = %d must be >= 0", days)
	}
	return NewDateRange(today.AddDays(-days), today)
}

// Len is the number of calendar days in the range, both ends included.
func (r DateRange) Len() int {
	return int(r.End.ToTime().Sub(r.Start.ToTime()).Hours()/24) + 1
}

// String representation of the range.
func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start, r.End)
}

type dateIter struct {
	next Date
	end  Date
	done bool
}

var _ iterator.Iterator[Date] = &dateIter{}

func (it *dateIter) Next() (Date, bool) {
	if it.done || it.next.After(it.end) {
		it.done = true
		return Date{}, false
	}
	d := it.next
	it.next = d.AddDays(1)
	return d, true
}

// Dates iterates over every calendar day of the range in ascending order,
// weekends and holidays included.
func (r DateRange) Dates() iterator.Iterator[Date] {
	return &dateIter{next: r.Start, end: r.End}
}

// Record is one row of the master dataset.
type Record struct {
	Symbol           string
	Series           string
	Open             decimal.Decimal
	High             decimal.Decimal
	Low              decimal.Decimal
	Close            decimal.Decimal
	TotalTradedQty   int64
	TotalTradedValue decimal.Decimal
	Timestamp        Date
}

var _ table.Row = Record{}

// Master dataset column names, in output order.
const (
	ColSymbol    = "SYMBOL"
	ColSeries    = "SERIES"
	ColOpen      = "OPEN"
	ColHigh      = "HIGH"
	ColLow       = "LOW"
	ColClose     = "CLOSE"
	ColTotTrdQty = "TOTTRDQTY"
	ColTotTrdVal = "TOTTRDVAL"
	ColTimestamp = "TIMESTAMP"
)

// RecordHeader is the CSV header of the master dataset.
func RecordHeader() []string {
	return []string{
		ColSymbol,
		ColSeries,
		ColOpen,
		ColHigh,
		ColLow,
		ColClose,
		ColTotTrdQty,
		ColTotTrdVal,
		ColTimestamp,
	}
}

// CSV implements table.Row.
func (r Record) CSV() []string {
	return []string{
		r.Symbol,
		r.Series,
		r.Open.String(),
		r.High.String(),
		r.Low.String(),
		r.Close.String(),
		strconv.FormatInt(r.TotalTradedQty, 10),
		r.TotalTradedValue.String(),
		r.Timestamp.String(),
	}
}

// TestRecord creates a Record for use in tests. Prices are decimal strings;
// open, high and low are set to close.
func TestRecord(symbol, series string, date Date, close string, qty int64) Record {
	c := decimal.RequireFromString(close)
	return Record{
		Symbol:           symbol,
		Series:           series,
		Open:             c,
		High:             c,
		Low:              c,
		Close:            c,
		TotalTradedQty:   qty,
		TotalTradedValue: c.Mul(decimal.NewFromInt(qty)),
		Timestamp:        date,
	}
}
