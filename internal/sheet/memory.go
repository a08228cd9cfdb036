package sheet

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store.  It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	rows [][]string
}

// NewMemory returns a Memory store seeded with rows (copied).
func NewMemory(rows ...[]string) *Memory {
	m := &Memory{}
	for _, r := range rows {
		m.rows = append(m.rows, append([]string(nil), r...))
	}
	return m
}

func (m *Memory) ReadAll(_ context.Context) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (m *Memory) AppendRow(_ context.Context, row []string) error {
	m.mu.Lock()
	m.rows = append(m.rows, append([]string(nil), row...))
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdateCell(_ context.Context, row, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row < 1 || row > len(m.rows) || col < 1 {
		return fmt.Errorf("%w: R%dC%d", ErrOutOfRange, row, col)
	}
	cells := m.rows[row-1]
	for len(cells) < col {
		cells = append(cells, "")
	}
	cells[col-1] = value
	m.rows[row-1] = cells
	return nil
}

func (m *Memory) DeleteRow(_ context.Context, row int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row < 1 || row > len(m.rows) {
		return fmt.Errorf("%w: row %d", ErrOutOfRange, row)
	}
	m.rows = append(m.rows[:row-1], m.rows[row:]...)
	return nil
}

func (m *Memory) FindCell(_ context.Context, col int, value string) ([]int, error) {
	if col < 1 {
		return nil, fmt.Errorf("%w: column %d", ErrOutOfRange, col)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []int
	for i, r := range m.rows {
		if col <= len(r) && r[col-1] == value {
			hits = append(hits, i+1)
		}
	}
	return hits, nil
}
