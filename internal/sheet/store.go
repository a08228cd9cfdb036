// internal/sheet/store.go
//
// Tabular store contract.
//
// Context
// -------
// Records live in a sheet-shaped store: an ordered list of rows, each an
// ordered list of text cells.  Row and column coordinates are 1-based and
// physical, exactly as a spreadsheet UI shows them.  Deleting a row shifts
// every later row up by one.
//
// The service layer only ever needs whole-sheet reads plus single-row or
// single-cell writes, so the interface stays this small.  Three backends
// implement it:
//
//   - Memory  – in-process, used by tests and the "memory" backend.
//   - SQL     – a MySQL table emulating a sheet (sqlx).
//   - Google  – Google Sheets v4.
//
// Notes
// -----
//   - FindCell returns every matching row so callers can detect ambiguous
//     identity values instead of silently taking the first hit.
//   - Oxford commas, two spaces after periods.
package sheet

import (
	"context"
	"errors"
)

// ErrOutOfRange is returned when a row or column does not exist.
var ErrOutOfRange = errors.New("sheet: coordinate out of range")

// Store is the external tabular store collaborator.
type Store interface {
	// ReadAll returns every row, header included, in physical order.
	ReadAll(ctx context.Context) ([][]string, error)
	// AppendRow adds one row after the last row.
	AppendRow(ctx context.Context, row []string) error
	// UpdateCell overwrites a single cell.
	UpdateCell(ctx context.Context, row, col int, value string) error
	// DeleteRow removes a row; later rows shift up by one.
	DeleteRow(ctx context.Context, row int) error
	// FindCell returns the physical rows whose cell in col equals value.
	FindCell(ctx context.Context, col int, value string) ([]int, error)
}
