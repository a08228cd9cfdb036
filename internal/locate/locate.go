// internal/locate/locate.go
//
// Record Locator: logical sequence number → physical sheet row.
//
// Context
// -------
// Edits and deletes address the store by physical row, while users pick
// records by their logical sequence number from a list that may have been
// searched, filtered, or re-sorted.  Using a filtered view's position as a
// row number is the classic bug here: once a search removes rows, the
// view's index no longer matches the sheet.
//
// Two strategies are supported, and exactly one is used per mutation:
//
//   - Position – resolve against an *unfiltered* Snapshot.  Each record
//     carries the physical row it was decoded from (header rows + 1 +
//     index), so the answer needs no extra round-trip.
//   - Search   – ask the store which rows hold the sequence number in the
//     identity column.  Immune to any local filtering, costs one call.
//
// Both strategies refuse to guess.  No hit is ErrNotFound, more than one
// hit is ErrAmbiguous, and nothing is mutated in either case.
//
// Any mutation invalidates every Snapshot taken before it.  Batches must
// either re-read between mutations or resolve all rows first and delete
// bottom-up (see DeletionOrder).
//
// Notes
// -----
//   - Oxford commas, two spaces after periods.
package locate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/yanizio/mqa/internal/record"
)

var (
	// ErrNotFound means no live record carries the sequence number.
	ErrNotFound = errors.New("record not found")
	// ErrAmbiguous means more than one row carries the sequence number.
	ErrAmbiguous = errors.New("record identity is ambiguous")
	// ErrFilteredView means a position lookup was attempted on a filtered
	// snapshot.
	ErrFilteredView = errors.New("position lookup requires an unfiltered snapshot")
	// ErrMalformed means the target row exists but does not decode.
	ErrMalformed = errors.New("record row is malformed")
)

// Strategy selects how Locate resolves rows.
type Strategy string

const (
	StrategyPosition Strategy = "position"
	StrategySearch   Strategy = "search"
)

// CellFinder is the subset of sheet.Store the search strategy needs.
type CellFinder interface {
	FindCell(ctx context.Context, col int, value string) ([]int, error)
}

// ByPosition returns the physical row of seq inside an unfiltered snapshot.
func ByPosition(snap Snapshot, seq int) (int, error) {
	if snap.filtered {
		return 0, ErrFilteredView
	}
	row, hits := 0, 0
	for _, r := range snap.Records {
		if r.Seq == seq {
			row = r.Row
			hits++
		}
	}
	broken := 0
	for _, m := range snap.Malformed {
		if n, err := strconv.Atoi(m.SeqRaw); err == nil && n == seq {
			row = m.Row
			broken++
		}
	}
	switch {
	case hits+broken == 0:
		return 0, fmt.Errorf("%w: sequence %d", ErrNotFound, seq)
	case hits+broken > 1:
		return 0, fmt.Errorf("%w: sequence %d appears %d times", ErrAmbiguous, seq, hits+broken)
	case broken == 1:
		return 0, fmt.Errorf("%w: sequence %d on row %d", ErrMalformed, seq, row)
	}
	return row, nil
}

// BySearch asks the store for the row holding seq in the identity column.
func BySearch(ctx context.Context, f CellFinder, seq int) (int, error) {
	rows, err := f.FindCell(ctx, record.ColSeq, strconv.Itoa(seq))
	if err != nil {
		return 0, err
	}
	var data []int
	for _, r := range rows {
		if r > record.HeaderRows {
			data = append(data, r)
		}
	}
	switch len(data) {
	case 0:
		return 0, fmt.Errorf("%w: sequence %d", ErrNotFound, seq)
	case 1:
		return data[0], nil
	default:
		return 0, fmt.Errorf("%w: sequence %d found on rows %v", ErrAmbiguous, seq, data)
	}
}

// Locator binds a strategy to its collaborator.
type Locator struct {
	Strategy Strategy
	Finder   CellFinder // required for StrategySearch
}

// Locate resolves seq with the configured strategy.  The search strategy
// only consults snap to refuse rows it could not decode.
func (l Locator) Locate(ctx context.Context, snap Snapshot, seq int) (int, error) {
	switch l.Strategy {
	case StrategySearch:
		if l.Finder == nil {
			return 0, errors.New("locate: search strategy without a finder")
		}
		row, err := BySearch(ctx, l.Finder, seq)
		if err == nil && snap.IsMalformed(row) {
			return 0, fmt.Errorf("%w: sequence %d on row %d", ErrMalformed, seq, row)
		}
		return row, err
	case StrategyPosition, "":
		return ByPosition(snap, seq)
	default:
		return 0, fmt.Errorf("locate: unknown strategy %q", l.Strategy)
	}
}

// LocateAll resolves every seq against the same store state and returns
// the rows in safe deletion order.  It fails without partial results if
// any seq is missing or ambiguous.
func (l Locator) LocateAll(ctx context.Context, snap Snapshot, seqs []int) ([]int, error) {
	rows := make([]int, 0, len(seqs))
	for _, seq := range seqs {
		row, err := l.Locate(ctx, snap, seq)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return DeletionOrder(rows), nil
}

// DeletionOrder de-duplicates rows and sorts them descending, so deleting
// in order never shifts a row that is still pending.
func DeletionOrder(rows []int) []int {
	seen := make(map[int]struct{}, len(rows))
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
