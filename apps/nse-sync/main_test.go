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

package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockparfait/bhavcopy/db"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

func zipFile(name, content string) (string, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	if err != nil {
		return "", err
	}
	if _, err := f.Write([]byte(content)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func TestMain(t *testing.T) {
	t.Parallel()

	Convey("parseFlags", t, func() {
		Convey("defaults", func() {
			flags, err := parseFlags([]string{})
			So(err, ShouldBeNil)
			So(flags.DataDir, ShouldEqual, "data")
			So(flags.ConfigFile, ShouldEqual, "")
			So(flags.Fast, ShouldBeFalse)
			So(flags.Fetch, ShouldBeTrue)
			So(flags.Merge, ShouldBeTrue)
			So(flags.LogLevel, ShouldEqual, logging.Info)
		})

		Convey("all flags", func() {
			flags, err := parseFlags([]string{
				"-data", "path/to/data", "-conf", "my.toml", "-fast",
				"-fetch=false", "-log-level", "warning"})
			So(err, ShouldBeNil)
			So(flags.DataDir, ShouldEqual, "path/to/data")
			So(flags.ConfigFile, ShouldEqual, "my.toml")
			So(flags.Fast, ShouldBeTrue)
			So(flags.Fetch, ShouldBeFalse)
			So(flags.Merge, ShouldBeTrue)
			So(flags.LogLevel, ShouldEqual, logging.Warning)
		})

		Convey("nothing to do", func() {
			_, err := parseFlags([]string{"-fetch=false", "-merge=false"})
			So(err, ShouldNotBeNil)
		})

		Convey("extra arguments", func() {
			_, err := parseFlags([]string{"-fast", "now"})
			So(err, ShouldNotBeNil)
		})
	})

	tmpdir, tmpdirErr := os.MkdirTemp("", "testmain")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("parseConfig", t, func() {
		dir := filepath.Join(tmpdir, "config")
		So(os.MkdirAll(dir, 0755), ShouldBeNil)
		confFile := filepath.Join(dir, "config.toml")
		defer os.Remove(confFile)

		Convey("no config file means the full preset", func() {
			c, err := parseConfig(&Flags{DataDir: dir})
			So(err, ShouldBeNil)
			So(c, ShouldResemble, FullConfig())
		})

		Convey("fast preset", func() {
			c, err := parseConfig(&Flags{DataDir: dir, Fast: true})
			So(err, ShouldBeNil)
			So(c, ShouldResemble, &Config{RollingDays: 7})
		})

		Convey("file values override the preset", func() {
			So(testutil.WriteFile(confFile, `
rolling_days = 30
patterns = ["cm*.csv"]
sqlite = "mirror.db"
schedule = "30 19 * * 1-5"

[columns]
TIMESTAMP = ["DATE"]
`), ShouldBeNil)
			c, err := parseConfig(&Flags{DataDir: dir})
			So(err, ShouldBeNil)
			So(c, ShouldResemble, &Config{
				RollingDays:         30,
				RequestDelaySeconds: 3,
				ValidateBeforeParse: true,
				Patterns:            []string{"cm*.csv"},
				SQLite:              "mirror.db",
				Schedule:            "30 19 * * 1-5",
				Columns:             &db.ColumnConfig{Timestamp: []string{"DATE"}},
			})
		})

		Convey("explicit config file", func() {
			other := filepath.Join(tmpdir, "other.toml")
			So(testutil.WriteFile(other, "request_delay_seconds = 0\n"), ShouldBeNil)
			c, err := parseConfig(&Flags{DataDir: dir, ConfigFile: other})
			So(err, ShouldBeNil)
			So(c.RequestDelaySeconds, ShouldEqual, 0)
			So(c.RollingDays, ShouldEqual, 730)
		})

		Convey("missing explicit config file", func() {
			_, err := parseConfig(&Flags{DataDir: dir, ConfigFile: filepath.Join(dir, "none.toml")})
			So(err, ShouldNotBeNil)
		})

		Convey("unknown keys are rejected", func() {
			So(testutil.WriteFile(confFile, "rolling_dayz = 3\n"), ShouldBeNil)
			_, err := parseConfig(&Flags{DataDir: dir})
			So(err, ShouldNotBeNil)
		})

		Convey("invalid values are rejected", func() {
			So(testutil.WriteFile(confFile, "rolling_days = -1\n"), ShouldBeNil)
			_, err := parseConfig(&Flags{DataDir: dir})
			So(err, ShouldNotBeNil)

			So(testutil.WriteFile(confFile, "request_delay_seconds = -1\n"), ShouldBeNil)
			_, err = parseConfig(&Flags{DataDir: dir})
			So(err, ShouldNotBeNil)

			So(testutil.WriteFile(confFile, `schedule = "every day"`+"\n"), ShouldBeNil)
			_, err = parseConfig(&Flags{DataDir: dir})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("run works", t, func() {
		server := testutil.NewTestServer()
		defer server.Close()
		ctx := fetch.UseClient(context.Background(), server.Client())
		timeNow = func() time.Time {
			return time.Date(2024, time.January, 2, 12, 0, 0, 0, time.UTC)
		}
		defer func() { timeNow = time.Now }()

		dataDir := filepath.Join(tmpdir, "data")
		So(os.MkdirAll(dataDir, 0755), ShouldBeNil)
		defer os.RemoveAll(dataDir)
		mirror := filepath.Join(dataDir, "mirror.db")

		So(testutil.WriteFile(filepath.Join(dataDir, "config.toml"), fmt.Sprintf(`
rolling_days = 0
request_delay_seconds = 0
base_url = "%s"
sqlite = "%s"
`, server.URL(), mirror)), ShouldBeNil)

		Convey("fetch and merge", func() {
			archive, err := zipFile("cm02JAN2024bhav.csv",
				"SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE,LAST,PREVCLOSE,TOTTRDQTY,TOTTRDVAL,TIMESTAMP,TOTALTRADES,ISIN,\n"+
					"XYZ,EQ,20,21,19,20.5,20.5,20,200,4100,02-JAN-2024,7,INE000B01010,\n"+
					"ABC,EQ,10,11,9,10.5,10.5,10,100,1050,02-JAN-2024,5,INE000A01010,\n")
			So(err, ShouldBeNil)
			server.ResponseBody = []string{archive}

			flags, err := parseFlags([]string{"-data", dataDir})
			So(err, ShouldBeNil)
			So(run(ctx, flags), ShouldBeNil)
			So(server.RequestPath, ShouldEqual,
				"/content/historical/EQUITIES/2024/JAN/cm02JAN2024bhav.csv.zip")

			masterFile := filepath.Join(dataDir, "nse_daily_master.csv")
			So(testutil.FileExists(masterFile), ShouldBeTrue)
			So("\n"+testutil.ReadFile(masterFile), ShouldEqual, `
SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE,TOTTRDQTY,TOTTRDVAL,TIMESTAMP
ABC,EQ,10,11,9,10.5,100,1050,2024-01-02
XYZ,EQ,20,21,19,20.5,200,4100,2024-01-02
`)
			s, err := db.OpenSQLite(mirror)
			So(err, ShouldBeNil)
			defer s.Close()
			n, err := s.Count(context.Background())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
		})

		Convey("merge only with no daily files is not an error", func() {
			flags, err := parseFlags([]string{"-data", dataDir, "-fetch=false"})
			So(err, ShouldBeNil)
			So(run(ctx, flags), ShouldBeNil)
			So(testutil.FileExists(filepath.Join(dataDir, "nse_daily_master.csv")), ShouldBeFalse)
		})

		Convey("schedule stops with the context", func() {
			flags, err := parseFlags([]string{"-data", dataDir})
			So(err, ShouldBeNil)
			c := FastConfig()
			c.Schedule = "0 0 1 1 *"
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(schedule(cctx, flags, c), ShouldBeNil)
		})
	})
}
