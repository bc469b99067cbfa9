package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Workbook. Sheets keep insertion order.
type Memory struct {
	mu     sync.Mutex
	order  []string
	sheets map[string][][]string
	writes int
	// FailWrites makes WriteCells return this error without applying anything.
	FailWrites error
}

func NewMemory() *Memory {
	return &Memory{sheets: make(map[string][][]string)}
}

// AddSheet stores a copy of grid under name, replacing an existing sheet.
func (m *Memory) AddSheet(name string, grid [][]string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[name]; !ok {
		m.order = append(m.order, name)
	}
	m.sheets[name] = copyGrid(grid)
	return m
}

func (m *Memory) SheetNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), nil
}

func (m *Memory) ReadSheet(ctx context.Context, sheet string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grid, ok := m.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %s not found", sheet)
	}
	return copyGrid(grid), nil
}

func (m *Memory) WriteCells(ctx context.Context, sheet string, updates []CellUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	grid, ok := m.sheets[sheet]
	if !ok {
		return fmt.Errorf("sheet %s not found", sheet)
	}
	for _, u := range updates {
		for len(grid) < u.Row {
			grid = append(grid, nil)
		}
		row := grid[u.Row-1]
		for len(row) <= u.Col {
			row = append(row, "")
		}
		row[u.Col] = u.Value
		grid[u.Row-1] = row
	}
	m.sheets[sheet] = grid
	if len(updates) > 0 {
		m.writes++
	}
	return nil
}

// Cell returns the value at a 1-based row and 0-based column.
func (m *Memory) Cell(sheet string, row, col int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	grid := m.sheets[sheet]
	if row < 1 || row > len(grid) || col >= len(grid[row-1]) {
		return ""
	}
	return grid[row-1][col]
}

// Writes counts WriteCells calls that changed something.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func copyGrid(grid [][]string) [][]string {
	out := make([][]string, len(grid))
	for i, row := range grid {
		out[i] = append([]string(nil), row...)
	}
	return out
}
