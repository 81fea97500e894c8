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
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"github.com/stockparfait/errors"

	_ "modernc.org/sqlite"
)

// SQLite mirrors the master dataset into a "bhavcopy" table, for querying the
// data with SQL tools. Like the CSV master, the table is rebuilt from scratch
// on every Replace.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and migrates its schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open sqlite '%s'", path)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "failed to set WAL mode")
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "failed to migrate '%s'", path)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bhavcopy (
			symbol    TEXT NOT NULL,
			series    TEXT NOT NULL,
			open      TEXT NOT NULL,
			high      TEXT NOT NULL,
			low       TEXT NOT NULL,
			close     TEXT NOT NULL,
			tottrdqty INTEGER NOT NULL,
			tottrdval TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bhavcopy_symbol_ts ON bhavcopy(symbol, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Annotate(err, "failed to execute %q", stmt[:40])
		}
	}
	return nil
}

// Replace the contents of the table with records in a single transaction.
// Prices are stored as decimal strings to keep them exact.
func (s *SQLite) Replace(ctx context.Context, records []Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM bhavcopy`); err != nil {
		return errors.Annotate(err, "failed to clear bhavcopy table")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bhavcopy
		(symbol, series, open, high, low, close, tottrdqty, tottrdval, timestamp)
		VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return errors.Annotate(err, "failed to prepare insert")
	}
	defer stmt.Close()
	for i, r := range records {
		_, err = stmt.ExecContext(ctx, r.Symbol, r.Series,
			r.Open.String(), r.High.String(), r.Low.String(), r.Close.String(),
			r.TotalTradedQty, r.TotalTradedValue.String(), r.Timestamp.String())
		if err != nil {
			return errors.Annotate(err, "failed to insert row %d (%s %s)",
				i, r.Symbol, r.Timestamp)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Annotate(err, "failed to commit")
	}
	return nil
}

// Count the rows in the table.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bhavcopy`).Scan(&n); err != nil {
		return 0, errors.Annotate(err, "failed to count rows")
	}
	return n, nil
}

// Records reads the table back ordered by symbol and timestamp.
func (s *SQLite) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		symbol, series, open, high, low, close, tottrdqty, tottrdval, timestamp
		FROM bhavcopy ORDER BY symbol, timestamp, rowid`)
	if err != nil {
		return nil, errors.Annotate(err, "failed to query bhavcopy")
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var r Record
		var open, high, low, close, val, ts string
		if err := rows.Scan(&r.Symbol, &r.Series, &open, &high, &low, &close,
			&r.TotalTradedQty, &val, &ts); err != nil {
			return nil, errors.Annotate(err, "failed to scan row")
		}
		dst := []*decimal.Decimal{&r.Open, &r.High, &r.Low, &r.Close, &r.TotalTradedValue}
		for i, v := range []string{open, high, low, close, val} {
			if *dst[i], err = decimal.NewFromString(v); err != nil {
				return nil, errors.Annotate(err, "bad decimal in row: '%s'", v)
			}
		}
		if r.Timestamp, err = NewDateFromString(ts); err != nil {
			return nil, errors.Annotate(err, "bad timestamp in row")
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Annotate(err, "failed to iterate rows")
	}
	return res, nil
}

// Close the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
