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

package table

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type testRow struct {
	Symbol string
	Series string
}

func (r testRow) CSV() []string { return []string{r.Symbol, r.Series} }

func TestTable(t *testing.T) {
	t.Parallel()

	Convey("Table methods work", t, func() {
		t := NewTable("SYMBOL", "SERIES")
		headless := NewTable()

		So(t.Header, ShouldResemble, []string{"SYMBOL", "SERIES"})
		rows := []Row{
			testRow{"INFY", "EQ"},
			testRow{"RELIANCE", "EQ"},
			testRow{"TATAGOLD", "ETF"},
		}
		t.AddRow(rows...)
		headless.AddRow(rows...)

		Convey("AddRow worked", func() {
			So(len(t.Rows), ShouldEqual, 3)
			So(len(headless.Rows), ShouldEqual, 3)
		})

		Convey("WriteCSV", func() {
			Convey("Default Params", func() {
				var buf bytes.Buffer
				So(t.WriteCSV(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
SYMBOL,SERIES
INFY,EQ
RELIANCE,EQ
TATAGOLD,ETF
`)
			})

			Convey("Default Params, headless", func() {
				var buf bytes.Buffer
				So(headless.WriteCSV(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
INFY,EQ
RELIANCE,EQ
TATAGOLD,ETF
`)
			})

			Convey("Limited rows, no header", func() {
				var buf bytes.Buffer
				So(t.WriteCSV(&buf, Params{Rows: 1, NoHeader: true}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
INFY,EQ
`)
			})

			Convey("Tail", func() {
				var buf bytes.Buffer
				So(t.WriteCSV(&buf, Params{Tail: 2}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
SYMBOL,SERIES
RELIANCE,EQ
TATAGOLD,ETF
`)
			})

			Convey("Tail longer than the table", func() {
				var buf bytes.Buffer
				So(t.WriteCSV(&buf, Params{Tail: 5, NoHeader: true}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
INFY,EQ
RELIANCE,EQ
TATAGOLD,ETF
`)
			})
		})

		Convey("WriteText", func() {
			Convey("Default Params", func() {
				var buf bytes.Buffer
				So(t.WriteText(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
  SYMBOL | SERIES
-------- | ------
    INFY |     EQ
RELIANCE |     EQ
TATAGOLD |    ETF
`)
			})

			Convey("Default Params, headless", func() {
				var buf bytes.Buffer
				So(headless.WriteText(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
    INFY |  EQ
RELIANCE |  EQ
TATAGOLD | ETF
`)
			})

			Convey("Tail with header", func() {
				var buf bytes.Buffer
				So(t.WriteText(&buf, Params{Tail: 1}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
  SYMBOL | SERIES
-------- | ------
TATAGOLD |    ETF
`)
			})

			Convey("Limited rows and width, no header", func() {
				var buf bytes.Buffer
				So(t.WriteText(&buf, Params{Rows: 2, NoHeader: true, MaxColWidth: 4}), ShouldBeNil)
				So("\n"+buf.String(), ShouldResemble, `
INFY | EQ
RE.. | EQ
`)
			})

			Convey("Invalid width", func() {
				var buf bytes.Buffer
				So(t.WriteText(&buf, Params{MaxColWidth: 3}), ShouldNotBeNil)
			})
		})
	})
}
