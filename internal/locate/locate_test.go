// internal/locate/locate_test.go
//
// Unit-tests for the Record Locator.
//
// The batch-delete tests exercise the row-shift hazard directly: rows are
// resolved once, then deleted against a live Memory sheet without a
// re-read in between.
//
// Run: go test ./internal/locate -v

package locate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/yanizio/mqa/internal/record"
	"github.com/yanizio/mqa/internal/sheet"
)

func seedRows() [][]string {
	return [][]string{
		record.Header(),
		{"1", "Q1", "A1", "X", "2025-01-01"},
		{"2", "Q2", "A2", "Y", "2025-01-02"},
		{"3", "Q3", "A3", "Z", "2025-01-03"},
		{"5", "Q5", "A5", "X", "2025-01-05"},
	}
}

func mustSnapshot(t *testing.T, rows [][]string) Snapshot {
	t.Helper()
	snap := FromRows(rows)
	if len(snap.Malformed) > 0 {
		t.Fatalf("FromRows: unexpected malformed rows %+v", snap.Malformed)
	}
	return snap
}

func TestFromRows_AnnotatesPhysicalRows(t *testing.T) {
	rows := seedRows()
	rows = append(rows[:3], append([][]string{{"", ""}}, rows[3:]...)...) // blank row 4
	snap := mustSnapshot(t, rows)

	if snap.Len() != 4 {
		t.Fatalf("len = %d, want 4", snap.Len())
	}
	want := map[int]int{1: 2, 2: 3, 3: 5, 5: 6}
	for _, r := range snap.Records {
		if r.Row != want[r.Seq] {
			t.Errorf("seq %d row = %d, want %d", r.Seq, r.Row, want[r.Seq])
		}
	}
}

func TestFromRows_SetsAsideMalformedRows(t *testing.T) {
	rows := [][]string{
		record.Header(),
		{"1", "Q1", "A1", "X", "2025-01-01"},
		{"메모", "note to self"},
		{"3", "Q3", "A3", "Z", "2025-01-03", "{broken"},
		{"4", "Q4", "A4", "Z", "2025-01-04"},
	}
	snap := FromRows(rows)

	if got := seqsOf(snap); !reflect.DeepEqual(got, []int{1, 4}) {
		t.Fatalf("decoded seqs = %v, want [1 4]", got)
	}
	if len(snap.Malformed) != 2 || !snap.IsMalformed(3) || !snap.IsMalformed(4) || snap.IsMalformed(2) {
		t.Fatalf("malformed = %+v", snap.Malformed)
	}
	if snap.Records[1].Row != 5 {
		t.Fatalf("row after broken rows = %d, want 5", snap.Records[1].Row)
	}
	if n := snap.NextSeq(); n != 5 {
		t.Fatalf("NextSeq = %d, want 5", n)
	}

	if row, err := ByPosition(snap, 4); err != nil || row != 5 {
		t.Fatalf("ByPosition(4) = %d, %v; want 5", row, err)
	}
	if _, err := ByPosition(snap, 3); !errors.Is(err, ErrMalformed) {
		t.Fatalf("broken target: err = %v, want ErrMalformed", err)
	}

	l := Locator{Strategy: StrategySearch, Finder: sheet.NewMemory(rows...)}
	if _, err := l.Locate(context.Background(), snap, 3); !errors.Is(err, ErrMalformed) {
		t.Fatalf("search on broken target: err = %v, want ErrMalformed", err)
	}
	if row, err := l.Locate(context.Background(), snap, 1); err != nil || row != 2 {
		t.Fatalf("search Locate(1) = %d, %v; want 2", row, err)
	}
}

func seqsOf(s Snapshot) []int {
	out := make([]int, 0, len(s.Records))
	for _, r := range s.Records {
		out = append(out, r.Seq)
	}
	return out
}

func TestByPosition(t *testing.T) {
	snap := mustSnapshot(t, seedRows())

	row, err := ByPosition(snap, 3)
	if err != nil || row != 4 {
		t.Fatalf("ByPosition(3) = %d, %v; want 4", row, err)
	}
	if _, err := ByPosition(snap, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing seq: err = %v", err)
	}
}

func TestByPosition_RefusesFilteredView(t *testing.T) {
	view := mustSnapshot(t, seedRows()).Search("Q5")
	if !view.Filtered() || view.Len() != 1 {
		t.Fatalf("unexpected view: %#v", view)
	}
	// The view keeps the physical annotation even though its index is 0.
	if view.Records[0].Row != 5 {
		t.Fatalf("annotation lost: row = %d", view.Records[0].Row)
	}
	if _, err := ByPosition(view, 5); !errors.Is(err, ErrFilteredView) {
		t.Fatalf("err = %v, want ErrFilteredView", err)
	}
}

func TestByPosition_Ambiguous(t *testing.T) {
	rows := append(seedRows(), []string{"2", "dup", "", "", ""})
	if _, err := ByPosition(mustSnapshot(t, rows), 2); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}
}

func TestBySearch(t *testing.T) {
	ctx := context.Background()
	store := sheet.NewMemory(seedRows()...)

	row, err := BySearch(ctx, store, 5)
	if err != nil || row != 5 {
		t.Fatalf("BySearch(5) = %d, %v; want 5", row, err)
	}
	if _, err := BySearch(ctx, store, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing seq: err = %v", err)
	}

	_ = store.AppendRow(ctx, []string{"5", "dup"})
	if _, err := BySearch(ctx, store, 5); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("duplicate seq: err = %v, want ErrAmbiguous", err)
	}
}

func TestLocator_StrategiesAgree(t *testing.T) {
	ctx := context.Background()
	rows := seedRows()
	store := sheet.NewMemory(rows...)
	snap := mustSnapshot(t, rows)

	pos := Locator{Strategy: StrategyPosition}
	srch := Locator{Strategy: StrategySearch, Finder: store}
	for _, seq := range []int{1, 2, 3, 5} {
		a, errA := pos.Locate(ctx, snap, seq)
		b, errB := srch.Locate(ctx, snap, seq)
		if errA != nil || errB != nil || a != b {
			t.Errorf("seq %d: position=%d (%v) search=%d (%v)", seq, a, errA, b, errB)
		}
	}
}

func TestDeletionOrder(t *testing.T) {
	got := DeletionOrder([]int{3, 7, 3, 2})
	if !reflect.DeepEqual(got, []int{7, 3, 2}) {
		t.Fatalf("DeletionOrder = %v", got)
	}
}

func TestLocateAll_BottomUpBatchDelete(t *testing.T) {
	ctx := context.Background()
	rows := seedRows()
	store := sheet.NewMemory(rows...)
	snap := mustSnapshot(t, rows)

	targets, err := Locator{Strategy: StrategyPosition}.LocateAll(ctx, snap, []int{1, 3})
	if err != nil {
		t.Fatalf("LocateAll: %v", err)
	}
	for _, row := range targets {
		if err := store.DeleteRow(ctx, row); err != nil {
			t.Fatalf("DeleteRow(%d): %v", row, err)
		}
	}

	after, _ := store.ReadAll(ctx)
	left := mustSnapshot(t, after)
	var seqs []int
	for _, r := range left.Records {
		seqs = append(seqs, r.Seq)
	}
	if !reflect.DeepEqual(seqs, []int{2, 5}) {
		t.Fatalf("remaining seqs = %v, want [2 5]", seqs)
	}
}

func TestTopDownDeleteHitsWrongRecord(t *testing.T) {
	// Documents the hazard DeletionOrder prevents: deleting row 2 first
	// shifts seq 3 from row 4 to row 3, so the stale row 4 now holds seq 5.
	ctx := context.Background()
	store := sheet.NewMemory(seedRows()...)

	_ = store.DeleteRow(ctx, 2)
	_ = store.DeleteRow(ctx, 4)

	after, _ := store.ReadAll(ctx)
	left := mustSnapshot(t, after)
	if _, ok := left.Find(3); !ok {
		t.Fatal("expected seq 3 to survive a top-down delete with stale rows")
	}
	if _, ok := left.Find(5); ok {
		t.Fatal("expected seq 5 to be the unintended casualty")
	}
}

func TestLocateAll_FailsWholeBatch(t *testing.T) {
	snap := mustSnapshot(t, seedRows())
	rows, err := Locator{}.LocateAll(context.Background(), snap, []int{1, 99})
	if !errors.Is(err, ErrNotFound) || rows != nil {
		t.Fatalf("LocateAll = %v, %v; want nil, ErrNotFound", rows, err)
	}
}
