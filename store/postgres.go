package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"consultaprocessual/pkg/logger"
)

// Postgres is a Workbook kept in a single table, for offices that track cases
// in a database-backed sheet instead of Google Sheets:
//
//	CREATE TABLE workbook_rows (
//	    id         BIGSERIAL PRIMARY KEY,
//	    workbook   TEXT    NOT NULL,
//	    sheet      TEXT    NOT NULL,
//	    row_number INTEGER NOT NULL,
//	    cells      JSONB   NOT NULL,
//	    UNIQUE (workbook, sheet, row_number)
//	);
//
// Row 1 of each sheet is its header. Rows are created externally; the bot
// only rewrites cells of existing rows.
type Postgres struct {
	DB       *sql.DB
	Workbook string
}

func NewPostgres(db *sql.DB, workbook string) *Postgres {
	return &Postgres{DB: db, Workbook: workbook}
}

func (p *Postgres) SheetNames(ctx context.Context) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT sheet FROM workbook_rows WHERE workbook = $1 GROUP BY sheet ORDER BY MIN(id)`, p.Workbook)
	if err != nil {
		logger.Sugar.Errorf("Failed to list sheets of workbook %s: %v", p.Workbook, err)
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (p *Postgres) ReadSheet(ctx context.Context, sheet string) ([][]string, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT row_number, cells FROM workbook_rows WHERE workbook = $1 AND sheet = $2 ORDER BY row_number`,
		p.Workbook, sheet)
	if err != nil {
		logger.Sugar.Errorf("Failed to read sheet %s: %v", sheet, err)
		return nil, err
	}
	defer rows.Close()

	var grid [][]string
	for rows.Next() {
		var rowNumber int
		var raw []byte
		if err := rows.Scan(&rowNumber, &raw); err != nil {
			return nil, err
		}
		if rowNumber < 1 {
			continue
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", sheet, rowNumber, err)
		}
		// Keep grid index == row_number-1 even when the table has gaps.
		for len(grid) < rowNumber-1 {
			grid = append(grid, nil)
		}
		grid = append(grid, cells)
	}
	return grid, rows.Err()
}

func (p *Postgres) WriteCells(ctx context.Context, sheet string, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	byRow := make(map[int][]CellUpdate)
	for _, u := range updates {
		byRow[u.Row] = append(byRow[u.Row], u)
	}
	rowNumbers := make([]int, 0, len(byRow))
	for r := range byRow {
		rowNumbers = append(rowNumbers, r)
	}
	sort.Ints(rowNumbers)

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rowNumber := range rowNumbers {
		var raw []byte
		err := tx.QueryRowContext(ctx,
			`SELECT cells FROM workbook_rows WHERE workbook = $1 AND sheet = $2 AND row_number = $3 FOR UPDATE`,
			p.Workbook, sheet, rowNumber).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sheet %s has no row %d", sheet, rowNumber)
		}
		if err != nil {
			return err
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, rowNumber, err)
		}
		for _, u := range byRow[rowNumber] {
			for len(cells) <= u.Col {
				cells = append(cells, "")
			}
			cells[u.Col] = u.Value
		}
		encoded, err := json.Marshal(cells)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE workbook_rows SET cells = $1 WHERE workbook = $2 AND sheet = $3 AND row_number = $4`,
			string(encoded), p.Workbook, sheet, rowNumber); err != nil {
			logger.Sugar.Errorf("Failed to update sheet %s row %d: %v", sheet, rowNumber, err)
			return err
		}
	}
	return tx.Commit()
}

// decodeCells accepts a JSON array of scalars and renders each as a string.
func decodeCells(raw []byte) ([]string, error) {
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("cells is not a JSON array: %w", err)
	}
	cells := make([]string, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case nil:
		case string:
			cells[i] = t
		case float64:
			cells[i] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			cells[i] = strconv.FormatBool(t)
		default:
			b, _ := json.Marshal(t)
			cells[i] = string(b)
		}
	}
	return cells, nil
}
