// internal/sheet/sql.go
//
// MySQL-backed sheet.
//
// Context
// -------
// Sites that cannot reach Google keep the Q&A table in MySQL instead.  To
// preserve spreadsheet semantics (dense 1-based rows, later rows shifting
// up on delete) every row is stored with an explicit position:
//
//	sheet_row (sheet, pos, cells)
//
// `cells` is a JSON array of strings.  Deletes and appends run inside a
// transaction so positions stay dense.
//
// Notes
// -----
//   - Renumbering after a delete uses `ORDER BY pos` so the primary key
//     never collides mid-update.
//   - Queries use `?` bindvars (go-sql-driver/mysql).
//   - Oxford commas, two spaces after periods.
package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the backing table.  Safe to run repeatedly.
const Schema = `CREATE TABLE IF NOT EXISTS sheet_row (
    sheet VARCHAR(64) NOT NULL,
    pos   INT         NOT NULL,
    cells JSON        NOT NULL,
    PRIMARY KEY (sheet, pos)
)`

// SQL implements Store on top of a sqlx pool.  One database can host many
// sheets; each SQL value is bound to one sheet name.
type SQL struct {
	db    *sqlx.DB
	sheet string
}

// NewSQL binds a Store to sheet name within db.
func NewSQL(db *sqlx.DB, sheet string) *SQL {
	return &SQL{db: db, sheet: sheet}
}

// Migrate creates the backing table if it is missing.
func (s *SQL) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func (s *SQL) ReadAll(ctx context.Context) ([][]string, error) {
	const q = `SELECT pos, cells FROM sheet_row WHERE sheet = ? ORDER BY pos`

	var rows []struct {
		Pos   int    `db:"pos"`
		Cells string `db:"cells"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, s.sheet); err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		// Positions are dense by construction; pad defensively so indexes
		// always equal physical rows.
		for len(out) < r.Pos-1 {
			out = append(out, nil)
		}
		var cells []string
		if err := json.Unmarshal([]byte(r.Cells), &cells); err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", s.sheet, r.Pos, err)
		}
		out = append(out, cells)
	}
	return out, nil
}

func (s *SQL) AppendRow(ctx context.Context, row []string) error {
	cells, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var last int
		if err := tx.GetContext(ctx, &last,
			`SELECT COALESCE(MAX(pos), 0) FROM sheet_row WHERE sheet = ? FOR UPDATE`, s.sheet); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sheet_row (sheet, pos, cells) VALUES (?, ?, ?)`, s.sheet, last+1, string(cells))
		return err
	})
}

func (s *SQL) UpdateCell(ctx context.Context, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%w: R%dC%d", ErrOutOfRange, row, col)
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var raw string
		err := tx.GetContext(ctx, &raw,
			`SELECT cells FROM sheet_row WHERE sheet = ? AND pos = ? FOR UPDATE`, s.sheet, row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: R%dC%d", ErrOutOfRange, row, col)
		}
		if err != nil {
			return err
		}

		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", s.sheet, row, err)
		}
		for len(cells) < col {
			cells = append(cells, "")
		}
		cells[col-1] = value

		b, err := json.Marshal(cells)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE sheet_row SET cells = ? WHERE sheet = ? AND pos = ?`, string(b), s.sheet, row)
		return err
	})
}

func (s *SQL) DeleteRow(ctx context.Context, row int) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sheet_row WHERE sheet = ? AND pos = ?`, s.sheet, row)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: row %d", ErrOutOfRange, row)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE sheet_row SET pos = pos - 1 WHERE sheet = ? AND pos > ? ORDER BY pos`, s.sheet, row)
		return err
	})
}

func (s *SQL) FindCell(ctx context.Context, col int, value string) ([]int, error) {
	if col < 1 {
		return nil, fmt.Errorf("%w: column %d", ErrOutOfRange, col)
	}
	const q = `SELECT pos FROM sheet_row
                WHERE sheet = ? AND JSON_UNQUOTE(JSON_EXTRACT(cells, ?)) = ?
                ORDER BY pos`

	var hits []int
	path := fmt.Sprintf("$[%d]", col-1)
	if err := s.db.SelectContext(ctx, &hits, q, s.sheet, path, value); err != nil {
		return nil, err
	}
	return hits, nil
}

// inTx runs fn in a transaction, committing on nil and rolling back
// otherwise.
func (s *SQL) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
