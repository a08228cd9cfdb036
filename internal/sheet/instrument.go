package sheet

import (
	"context"
	"time"

	"github.com/yanizio/mqa/internal/metrics"
)

// Instrumented wraps a Store and records latency and failures per
// operation in Prometheus.
type Instrumented struct{ next Store }

// Instrument decorates s with metrics.
func Instrument(s Store) *Instrumented { return &Instrumented{next: s} }

func (i *Instrumented) ReadAll(ctx context.Context) ([][]string, error) {
	defer observe("read_all", time.Now())
	rows, err := i.next.ReadAll(ctx)
	countErr("read_all", err)
	return rows, err
}

func (i *Instrumented) AppendRow(ctx context.Context, row []string) error {
	defer observe("append_row", time.Now())
	err := i.next.AppendRow(ctx, row)
	countErr("append_row", err)
	return err
}

func (i *Instrumented) UpdateCell(ctx context.Context, row, col int, value string) error {
	defer observe("update_cell", time.Now())
	err := i.next.UpdateCell(ctx, row, col, value)
	countErr("update_cell", err)
	return err
}

func (i *Instrumented) DeleteRow(ctx context.Context, row int) error {
	defer observe("delete_row", time.Now())
	err := i.next.DeleteRow(ctx, row)
	countErr("delete_row", err)
	return err
}

func (i *Instrumented) FindCell(ctx context.Context, col int, value string) ([]int, error) {
	defer observe("find_cell", time.Now())
	rows, err := i.next.FindCell(ctx, col, value)
	countErr("find_cell", err)
	return rows, err
}

func observe(op string, start time.Time) {
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func countErr(op string, err error) {
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	}
}
