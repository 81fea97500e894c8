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
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/stockparfait/bhavcopy/table"
	"github.com/stockparfait/errors"
)

// writeFileAtomic writes to a temporary file in the target directory and
// renames it over fileName, so readers never see a partial file.
func writeFileAtomic(fileName string, write func(w io.Writer) error) (err error) {
	dir, base := filepath.Split(fileName)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return errors.Annotate(err, "failed to create temp file for '%s'", fileName)
	}
	tmpName := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpName)
		}
	}()
	w := bufio.NewWriter(f)
	if err = write(w); err != nil {
		return errors.Annotate(err, "failed to write '%s'", tmpName)
	}
	if err = w.Flush(); err != nil {
		return errors.Annotate(err, "failed to flush '%s'", tmpName)
	}
	if err = f.Close(); err != nil {
		return errors.Annotate(err, "failed to close '%s'", tmpName)
	}
	if err = os.Chmod(tmpName, 0644); err != nil {
		return errors.Annotate(err, "failed to set permissions on '%s'", tmpName)
	}
	if err = os.Rename(tmpName, fileName); err != nil {
		return errors.Annotate(err, "failed to rename '%s' to '%s'", tmpName, fileName)
	}
	return nil
}

// MasterTable wraps the records into a table with the master dataset header.
func MasterTable(records []Record) *table.Table {
	rows := make([]table.Row, len(records))
	for i, r := range records {
		rows[i] = r
	}
	t := table.NewTable(RecordHeader()...)
	t.AddRow(rows...)
	return t
}

// WriteMaster writes the records as CSV with a header, replacing fileName.
func WriteMaster(fileName string, records []Record) error {
	t := MasterTable(records)
	return writeFileAtomic(fileName, func(w io.Writer) error {
		return t.WriteCSV(w, table.Params{})
	})
}

// ReadMaster reads back a master dataset file.
func ReadMaster(fileName string) ([]Record, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open file for reading: '%s'", fileName)
	}
	defer f.Close()
	records, err := ReadCSVRecords(f, NewColumnConfig())
	if err != nil {
		return nil, errors.Annotate(err, "failed to read from '%s'", fileName)
	}
	return records, nil
}
