package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"consultaprocessual/pkg/logger"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const spreadsheetMime = "application/vnd.google-apps.spreadsheet"

var GoogleScopes = []string{
	sheets.SpreadsheetsScope,
	drive.DriveReadonlyScope,
}

var ErrSpreadsheetNotFound = errors.New("spreadsheet not found")

// GoogleSheets is a Workbook backed by the Sheets v4 API.
type GoogleSheets struct {
	sheets        *sheets.Service
	spreadsheetID string
}

type googleEndpoints struct {
	sheets string
	drive  string
}

type GoogleOption func(*googleEndpoints)

// WithSheetsEndpoint points the Sheets client somewhere other than sheets.googleapis.com.
func WithSheetsEndpoint(u string) GoogleOption {
	return func(e *googleEndpoints) { e.sheets = strings.TrimSuffix(u, "/") + "/" }
}

func WithDriveEndpoint(u string) GoogleOption {
	return func(e *googleEndpoints) { e.drive = strings.TrimSuffix(u, "/") + "/" }
}

// OpenGoogleSheets authenticates with the service account credentials file and
// opens the spreadsheet by id, or by name through Drive when id is empty.
// The spreadsheet must be shared with the service account email.
func OpenGoogleSheets(ctx context.Context, credentialsFile, id, name string, opts ...GoogleOption) (*GoogleSheets, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, GoogleScopes...)
	if err != nil {
		return nil, fmt.Errorf("credentials file %s: %w", credentialsFile, err)
	}
	logger.Sugar.Debugf("Authenticating to Google as %s", cfg.Email)
	return NewGoogleSheets(ctx, cfg.Client(ctx), id, name, opts...)
}

// NewGoogleSheets uses an already authorised HTTP client.
func NewGoogleSheets(ctx context.Context, client *http.Client, id, name string, opts ...GoogleOption) (*GoogleSheets, error) {
	var ep googleEndpoints
	for _, opt := range opts {
		opt(&ep)
	}

	svc, err := sheets.NewService(ctx, clientOptions(client, ep.sheets)...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	g := &GoogleSheets{sheets: svc, spreadsheetID: id}

	if g.spreadsheetID == "" {
		files, err := drive.NewService(ctx, clientOptions(client, ep.drive)...)
		if err != nil {
			return nil, fmt.Errorf("drive client: %w", err)
		}
		if g.spreadsheetID, err = findByName(ctx, files, name); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func clientOptions(client *http.Client, endpoint string) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func (g *GoogleSheets) SpreadsheetID() string { return g.spreadsheetID }

func findByName(ctx context.Context, files *drive.Service, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no spreadsheet id or name configured", ErrSpreadsheetNotFound)
	}
	escaped := strings.ReplaceAll(strings.ReplaceAll(name, `\`, `\\`), `'`, `\'`)
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escaped, spreadsheetMime)

	list, err := files.Files.List().
		Q(q).
		Fields("files(id,name)").
		PageSize(10).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("find spreadsheet: %w", err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("%w: %q (check the name and that it is shared with the service account)", ErrSpreadsheetNotFound, name)
	}
	if len(list.Files) > 1 {
		logger.Sugar.Warnf("%d spreadsheets named %q are visible; using %s", len(list.Files), name, list.Files[0].Id)
	}
	return list.Files[0].Id, nil
}

func (g *GoogleSheets) SheetNames(ctx context.Context) ([]string, error) {
	ss, err := g.sheets.Spreadsheets.Get(g.spreadsheetID).
		Fields(googleapi.Field("sheets.properties.title")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	names := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			names = append(names, s.Properties.Title)
		}
	}
	return names, nil
}

func (g *GoogleSheets) ReadSheet(ctx context.Context, sheet string) ([][]string, error) {
	vr, err := g.sheets.Spreadsheets.Values.Get(g.spreadsheetID, QuoteSheet(sheet)).
		MajorDimension("ROWS").
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = fmt.Sprint(v)
		}
	}
	return rows, nil
}

// WriteCells sends every update in one values.batchUpdate call.
func (g *GoogleSheets) WriteCells(ctx context.Context, sheet string, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, u := range updates {
		req.Data = append(req.Data, &sheets.ValueRange{
			Range:  A1(sheet, u.Row, u.Col),
			Values: [][]interface{}{{u.Value}},
		})
	}
	if _, err := g.sheets.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	return nil
}
