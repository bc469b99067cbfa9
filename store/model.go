package store

import (
	"context"
	"strconv"
	"strings"
)

// Workbook is the tabular system of record: named sheets of string cells
// where row 0 of ReadSheet is the header row.
type Workbook interface {
	SheetNames(ctx context.Context) ([]string, error)
	ReadSheet(ctx context.Context, sheet string) ([][]string, error)
	// WriteCells writes every update in one call. Callers group updates by row.
	WriteCells(ctx context.Context, sheet string, updates []CellUpdate) error
}

// CellUpdate addresses a cell by 1-based row and 0-based column index.
type CellUpdate struct {
	Row   int
	Col   int
	Value string
}

// ColumnLetters converts a 0-based column index to spreadsheet letters (0 -> A, 26 -> AA).
func ColumnLetters(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// A1 returns the A1 reference of a cell in sheet, quoting the sheet title.
func A1(sheet string, row, col int) string {
	return QuoteSheet(sheet) + "!" + ColumnLetters(col) + strconv.Itoa(row)
}

func QuoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}
