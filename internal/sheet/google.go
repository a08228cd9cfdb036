// internal/sheet/google.go
//
// Google Sheets backend.
//
// Context
// -------
// Production data lives in a Google spreadsheet owned by the regional office.
// The service account behind the credentials must have editor access to the
// spreadsheet.  All calls go through the Sheets v4 values API, except row
// deletion, which needs a batchUpdate DeleteDimension request addressed by
// the numeric sheet id.
//
// Notes
// -----
//   - Cell values are written RAW so "007" or "=1+1" are stored verbatim.
//   - Reads return formatted values; every cell is stringified.
//   - Oxford commas, two spaces after periods.
package sheet

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Google implements Store against one tab of a Google spreadsheet.
type Google struct {
	svc           *sheets.Service
	spreadsheetID string
	title         string
	sheetID       int64
}

// NewGoogle resolves the tab named title (first tab when empty) and returns
// a ready Store.  opts usually carries option.WithCredentialsFile.
func NewGoogle(ctx context.Context, spreadsheetID, title string, opts ...option.ClientOption) (*Google, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	ss, err := svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no tabs", spreadsheetID)
	}

	var props *sheets.SheetProperties
	if title == "" {
		props = ss.Sheets[0].Properties
	} else {
		for _, sh := range ss.Sheets {
			if sh.Properties != nil && sh.Properties.Title == title {
				props = sh.Properties
				break
			}
		}
	}
	if props == nil {
		return nil, fmt.Errorf("spreadsheet %s: tab %q not found", spreadsheetID, title)
	}

	return &Google{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		title:         props.Title,
		sheetID:       props.SheetId,
	}, nil
}

func (g *Google) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, quoteTitle(g.title)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

func (g *Google) AppendRow(ctx context.Context, row []string) error {
	vals := make([]interface{}, len(row))
	for i, c := range row {
		vals[i] = c
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{vals}}
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, quoteTitle(g.title), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (g *Google) UpdateCell(ctx context.Context, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%w: R%dC%d", ErrOutOfRange, row, col)
	}
	a1 := fmt.Sprintf("%s!%s%d", quoteTitle(g.title), columnLetter(col), row)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (g *Google) DeleteRow(ctx context.Context, row int) error {
	if row < 1 {
		return fmt.Errorf("%w: row %d", ErrOutOfRange, row)
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    g.sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1), // zero-based, inclusive
					EndIndex:   int64(row),     // exclusive
				},
			},
		}},
	}
	_, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
	return err
}

func (g *Google) FindCell(ctx context.Context, col int, value string) ([]int, error) {
	if col < 1 {
		return nil, fmt.Errorf("%w: column %d", ErrOutOfRange, col)
	}
	letter := columnLetter(col)
	rng := fmt.Sprintf("%s!%s:%s", quoteTitle(g.title), letter, letter)
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	var hits []int
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == value {
			hits = append(hits, i+1)
		}
	}
	return hits, nil
}

// quoteTitle renders a tab title for A1 notation: 'Q&A 2025'.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// columnLetter converts a 1-based column index to A1 letters (1 → A,
// 27 → AA).
func columnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}
