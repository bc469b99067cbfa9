package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"consultaprocessual/config"
	"consultaprocessual/internal/caserecord/model"
	"consultaprocessual/pkg/logger"
	"consultaprocessual/store"
)

// minCaseDigits filters out cells that are clearly not case numbers
// (notes, totals, section titles).
const minCaseDigits = 15

type Formats struct {
	Date      string
	Timestamp string
	Location  *time.Location
}

// WriteError reports a failed row write. Fields already written by the
// backend are not rolled back.
type WriteError struct {
	Sheet string
	Row   int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write sheet %s row %d: %v", e.Sheet, e.Row, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type layout struct {
	caseNumber  int
	status      int
	lastChecked int
	summary     int
	pubDate     int
	pubType     int
}

type CaseRepository struct {
	Book    store.Workbook
	Columns config.Columns
	Formats Formats
	// DryRun computes and logs writes without sending them.
	DryRun bool

	layouts map[string]layout
}

func NewCaseRepository(book store.Workbook, columns config.Columns, formats Formats, dryRun bool) *CaseRepository {
	if formats.Location == nil {
		formats.Location = time.Local
	}
	return &CaseRepository{
		Book:    book,
		Columns: columns,
		Formats: formats,
		DryRun:  dryRun,
		layouts: make(map[string]layout),
	}
}

// ResolveSheets picks the sheets to read. A filter wins over the configured
// list, which wins over workbook discovery order. explicit reports whether the
// user named the sheets, which makes a sheet without the case column an error.
func (r *CaseRepository) ResolveSheets(ctx context.Context, filter string, configured []string) (names []string, explicit bool, err error) {
	available, err := r.Book.SheetNames(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list sheets: %w", err)
	}

	var wanted []string
	switch {
	case filter != "":
		wanted = []string{filter}
	case len(configured) > 0:
		wanted = configured
	default:
		return available, false, nil
	}

	for _, w := range wanted {
		match, ok := findSheet(available, w)
		if !ok {
			return nil, true, config.Errorf("sheet %q not found (available: %s)", w, strings.Join(available, ", "))
		}
		names = append(names, match)
	}
	return names, true, nil
}

func findSheet(available []string, name string) (string, bool) {
	for _, a := range available {
		if a == name {
			return a, true
		}
	}
	for _, a := range available {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(name)) {
			return a, true
		}
	}
	return "", false
}

// ListCases reads every case row of the given sheets in sheet order, then row
// order. It reads only; a missing required column is a ConfigurationError.
func (r *CaseRepository) ListCases(ctx context.Context, sheets []string, explicit bool) ([]model.CaseRecord, error) {
	var cases []model.CaseRecord
	for _, sheet := range sheets {
		grid, err := r.Book.ReadSheet(ctx, sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(grid) == 0 {
			logger.Sugar.Warnf("Sheet %s is empty, skipping", sheet)
			continue
		}

		lay := r.resolveLayout(grid[0])
		if lay.caseNumber < 0 {
			if explicit {
				return nil, config.Errorf("sheet %s: column %q not found in header", sheet, r.Columns.CaseNumber)
			}
			logger.Sugar.Warnf("Sheet %s has no %q column, skipping", sheet, r.Columns.CaseNumber)
			continue
		}
		if missing := r.missingRequired(lay); len(missing) > 0 {
			return nil, config.Errorf("sheet %s: required columns not found in header: %s", sheet, strings.Join(missing, ", "))
		}
		r.layouts[sheet] = lay

		for i, row := range grid[1:] {
			rowNumber := i + 2
			number := strings.TrimSpace(cell(row, lay.caseNumber))
			if number == "" {
				continue
			}
			if len(model.DigitsOnly(number)) < minCaseDigits {
				logger.Sugar.Debugf("Sheet %s row %d: %q does not look like a case number, skipping", sheet, rowNumber, number)
				continue
			}

			rec := model.CaseRecord{
				Sheet:               sheet,
				Row:                 rowNumber,
				CaseNumber:          number,
				CurrentStatus:       strings.TrimSpace(cell(row, lay.status)),
				LastChecked:         strings.TrimSpace(cell(row, lay.lastChecked)),
				Summary:             cell(row, lay.summary),
				LastPublicationType: strings.TrimSpace(cell(row, lay.pubType)),
			}
			if raw := strings.TrimSpace(cell(row, lay.pubDate)); raw != "" {
				d, ok := ParseDate(raw, r.Formats.Date)
				if !ok {
					logger.Sugar.Warnf("Sheet %s row %d: unreadable %s %q, treating every publication as new",
						sheet, rowNumber, r.Columns.LastPublicationDate, raw)
				}
				rec.LastPublicationDate = d
			}
			cases = append(cases, rec)
		}
	}
	return cases, nil
}

func (r *CaseRepository) resolveLayout(header []string) layout {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := config.NormalizeHeader(h)
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}
	find := func(name string) int {
		if i, ok := index[config.NormalizeHeader(name)]; ok {
			return i
		}
		return -1
	}
	return layout{
		caseNumber:  find(r.Columns.CaseNumber),
		status:      find(r.Columns.CurrentStatus),
		lastChecked: find(r.Columns.LastChecked),
		summary:     find(r.Columns.Summary),
		pubDate:     find(r.Columns.LastPublicationDate),
		pubType:     find(r.Columns.LastPublicationType),
	}
}

// missingRequired lists required columns absent from the header. The summary
// and publication type columns are optional.
func (r *CaseRepository) missingRequired(lay layout) []string {
	var missing []string
	if lay.status < 0 {
		missing = append(missing, r.Columns.CurrentStatus)
	}
	if lay.lastChecked < 0 {
		missing = append(missing, r.Columns.LastChecked)
	}
	if lay.pubDate < 0 {
		missing = append(missing, r.Columns.LastPublicationDate)
	}
	return missing
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Apply writes the non-empty fields of upd into the record's row in a single
// batch. It returns whether anything was sent to the workbook.
func (r *CaseRepository) Apply(ctx context.Context, rec model.CaseRecord, upd model.Update) (bool, error) {
	lay, ok := r.layouts[rec.Sheet]
	if !ok {
		grid, err := r.Book.ReadSheet(ctx, rec.Sheet)
		if err == nil && len(grid) == 0 {
			err = fmt.Errorf("sheet has no header row")
		}
		if err != nil {
			return false, &WriteError{Sheet: rec.Sheet, Row: rec.Row, Err: err}
		}
		lay = r.resolveLayout(grid[0])
		r.layouts[rec.Sheet] = lay
	}

	cells := r.cellsFor(lay, rec.Row, upd)
	if len(cells) == 0 {
		return false, nil
	}

	if r.DryRun {
		for _, c := range cells {
			logger.Sugar.Infow("Dry run: would write cell",
				"sheet", rec.Sheet, "cell", store.A1(rec.Sheet, c.Row, c.Col), "value", c.Value)
		}
		return false, nil
	}

	if err := r.Book.WriteCells(ctx, rec.Sheet, cells); err != nil {
		logger.Sugar.Errorf("Failed to update sheet %s row %d: %v", rec.Sheet, rec.Row, err)
		return false, &WriteError{Sheet: rec.Sheet, Row: rec.Row, Err: err}
	}
	return true, nil
}

func (r *CaseRepository) cellsFor(lay layout, row int, upd model.Update) []store.CellUpdate {
	var cells []store.CellUpdate
	add := func(col int, value string) {
		if col >= 0 && value != "" {
			cells = append(cells, store.CellUpdate{Row: row, Col: col, Value: value})
		}
	}
	add(lay.status, upd.Status)
	if !upd.LastChecked.IsZero() {
		add(lay.lastChecked, upd.LastChecked.In(r.Formats.Location).Format(r.Formats.Timestamp))
	}
	add(lay.summary, upd.Summary)
	if upd.HasPublication() {
		add(lay.pubDate, upd.PublicationDate.Format(r.Formats.Date))
	}
	add(lay.pubType, upd.PublicationType)
	return cells
}

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	time.RFC3339,
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2/1/2006",
	"2/1/2006 15:04",
}

// ParseDate reads a sheet date into a UTC midnight value. preferred is tried
// first. The zero time and false are returned when nothing matches.
func ParseDate(raw, preferred string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	layouts := dateLayouts
	if preferred != "" {
		layouts = append([]string{preferred}, dateLayouts...)
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
