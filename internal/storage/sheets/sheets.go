// Package sheets stores report tables in a Google Sheets spreadsheet, one
// dated tab per run.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// ensure sheetsBackend implements storage.Backend
var _ storage.Backend = (*sheetsBackend)(nil)

// TabLayout is the time layout of tab titles created by Save.
const TabLayout = "2006-01-02"

var (
	goodColor = &gsheets.Color{Red: 0xC6 / 255.0, Green: 0xEF / 255.0, Blue: 0xCE / 255.0}
	badColor  = &gsheets.Color{Red: 0xFF / 255.0, Green: 0xC7 / 255.0, Blue: 0xCE / 255.0}
)

// Config configures the Sheets backend.
type Config struct {
	SpreadsheetID string
	// CredentialsFile is a service account or authorized user JSON key.
	// Ignored when Options are given.
	CredentialsFile string
	// Tab is the tab Load reads. Empty means the last tab.
	Tab string
	// Options override client construction, e.g. for a custom endpoint.
	Options []option.ClientOption
	Now     func() time.Time
	Logger  *slog.Logger
}

type sheetsBackend struct {
	svc    *gsheets.Service
	id     string
	tab    string
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Sheets-backed storage.Backend.
func New(ctx context.Context, cfg Config) (storage.Backend, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}

	opts := cfg.Options
	if len(opts) == 0 {
		if cfg.CredentialsFile == "" {
			return nil, errors.New("sheets: credentials file is required")
		}
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, gsheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheets: parse credentials: %w", err)
		}
		opts = []option.ClientOption{option.WithCredentials(creds)}
	}

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}

	b := &sheetsBackend{
		svc:    svc,
		id:     cfg.SpreadsheetID,
		tab:    cfg.Tab,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

func (b *sheetsBackend) Save(ctx context.Context, table *storage.Table) error {
	titles, err := b.titles(ctx)
	if err != nil {
		return err
	}
	title := UniqueTitle(b.now().Format(TabLayout), titles)

	added, err := b.svc.Spreadsheets.BatchUpdate(b.id, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: title}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: add tab %q: %w", title, err)
	}
	if len(added.Replies) == 0 || added.Replies[0].AddSheet == nil {
		return fmt.Errorf("sheets: add tab %q: empty reply", title)
	}
	sheetID := added.Replies[0].AddSheet.Properties.SheetId

	values := make([][]any, 0, len(table.Rows)+1)
	values = append(values, toCells(table.Columns))
	for _, r := range table.Rows {
		cells := make([]string, len(table.Columns))
		for i := range table.Columns {
			cells[i] = r.Value(i)
		}
		values = append(values, toCells(cells))
	}

	_, err = b.svc.Spreadsheets.Values.Update(b.id, QuoteTitle(title)+"!A1", &gsheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: write values: %w", err)
	}

	if reqs := formatRequests(sheetID, table); len(reqs) > 0 {
		_, err = b.svc.Spreadsheets.BatchUpdate(b.id, &gsheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("sheets: format tab: %w", err)
		}
	}

	b.logger.Info("report written to spreadsheet", "spreadsheet", b.id, "tab", title, "rows", len(table.Rows))
	return nil
}

func (b *sheetsBackend) Load(ctx context.Context) (*storage.Table, error) {
	tab := b.tab
	if tab == "" {
		titles, err := b.titles(ctx)
		if err != nil {
			return nil, err
		}
		if len(titles) == 0 {
			return nil, errors.New("sheets: spreadsheet has no tabs")
		}
		tab = titles[len(titles)-1]
	}

	vr, err := b.svc.Spreadsheets.Values.Get(b.id, QuoteTitle(tab)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read tab %q: %w", tab, err)
	}

	table := &storage.Table{}
	if len(vr.Values) == 0 {
		return table, nil
	}
	table.Columns = fromCells(vr.Values[0])
	for _, r := range vr.Values[1:] {
		table.Rows = append(table.Rows, storage.Row{Values: fromCells(r)})
	}
	table.Normalize()
	return table, nil
}

func (b *sheetsBackend) Close() error {
	return nil
}

func (b *sheetsBackend) titles(ctx context.Context) ([]string, error) {
	ss, err := b.svc.Spreadsheets.Get(b.id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get spreadsheet: %w", err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// UniqueTitle returns base, or base with the first free "-N" suffix
// (starting at 2) when a tab of that name exists.
func UniqueTitle(base string, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		taken[t] = true
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		title := base + "-" + strconv.Itoa(n)
		if !taken[title] {
			return title
		}
	}
}

// QuoteTitle quotes a tab title for use in A1 notation.
func QuoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func formatRequests(sheetID int64, table *storage.Table) []*gsheets.Request {
	reqs := []*gsheets.Request{{
		RepeatCell: &gsheets.RepeatCellRequest{
			Range: gridRange(sheetID, 0, 0, int64(len(table.Columns))),
			Cell: &gsheets.CellData{UserEnteredFormat: &gsheets.CellFormat{
				TextFormat: &gsheets.TextFormat{Bold: true},
			}},
			Fields: "userEnteredFormat.textFormat.bold",
		},
	}}

	col := table.ColumnIndex(table.HighlightColumn)
	if table.HighlightColumn == "" || col < 0 {
		return reqs
	}
	for i, r := range table.Rows {
		var color *gsheets.Color
		switch r.Highlight {
		case storage.HighlightGood:
			color = goodColor
		case storage.HighlightBad:
			color = badColor
		default:
			continue
		}
		row := int64(i + 1)
		reqs = append(reqs, &gsheets.Request{
			RepeatCell: &gsheets.RepeatCellRequest{
				Range: gridRange(sheetID, row, int64(col), int64(col)+1),
				Cell: &gsheets.CellData{UserEnteredFormat: &gsheets.CellFormat{
					BackgroundColor: color,
				}},
				Fields: "userEnteredFormat.backgroundColor",
			},
		})
	}
	return reqs
}

func gridRange(sheetID, row, startCol, endCol int64) *gsheets.GridRange {
	return &gsheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    row,
		EndRowIndex:      row + 1,
		StartColumnIndex: startCol,
		EndColumnIndex:   endCol,
		// zero indexes are meaningful here
		ForceSendFields: []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func fromCells(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}
