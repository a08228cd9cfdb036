// internal/record/record.go
//
// Q&A record model and its positional row codec.
//
// Context
// -------
// The system of record is a sheet with one fixed header row followed by one
// data row per record:
//
//	[sequence_number, question, answer, author, created_date, attachments_json]
//
// Physical rows and columns are 1-based, so the first record lives on row 2.
// Record.Row carries that physical coordinate from the moment a snapshot is
// decoded, which lets filtered or re-sorted views still address the right
// row in the store.
//
// Notes
// -----
//   - Sequence numbers are assigned max+1, never from the row count, so
//     numbering survives deletions without collisions.
//   - Sheets drop trailing empty cells, so Decode pads short rows.
//   - Oxford commas, two spaces after periods.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Physical layout constants.
const (
	HeaderRows = 1 // fixed header rows above the first record

	ColSeq         = 1
	ColQuestion    = 2
	ColAnswer      = 3
	ColAuthor      = 4
	ColCreated     = 5
	ColAttachments = 6

	NumCols = 6

	// DateLayout is how created_date is written to the store.
	DateLayout = "2006-01-02"
)

// ErrMalformedRow is wrapped by Decode when a row cannot be parsed.
var ErrMalformedRow = errors.New("malformed record row")

// Attachment describes one uploaded file referenced by a record.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIME     string `json:"mime_type"`
	ViewURL  string `json:"view_url"`
	EmbedURL string `json:"embed_url"`
	IsImage  bool   `json:"is_image"`
}

// Record is one question/answer entry.
type Record struct {
	Seq         int
	Question    string
	Answer      string
	Author      string
	Created     time.Time
	Attachments []Attachment

	// Row is the physical sheet row this record was read from.  Zero for
	// records that have not been written yet.
	Row int
}

// Header returns the fixed header row written to an empty sheet.
func Header() []string {
	return []string{"sequence_number", "question", "answer", "author", "created_date", "attachments_json"}
}

// Encode converts r into the positional row layout.
func Encode(r Record) ([]string, error) {
	att := ""
	if len(r.Attachments) > 0 {
		b, err := json.Marshal(r.Attachments)
		if err != nil {
			return nil, fmt.Errorf("encode attachments: %w", err)
		}
		att = string(b)
	}
	created := ""
	if !r.Created.IsZero() {
		created = r.Created.Format(DateLayout)
	}
	return []string{
		strconv.Itoa(r.Seq),
		r.Question,
		r.Answer,
		r.Author,
		created,
		att,
	}, nil
}

// EncodeAttachments renders the attachments cell on its own, used by edits
// that only touch that column.
func EncodeAttachments(list []Attachment) (string, error) {
	if len(list) == 0 {
		return "", nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(b), nil
}

// Decode parses one data row read from physical row physRow.
func Decode(row []string, physRow int) (Record, error) {
	cells := make([]string, NumCols)
	copy(cells, row)

	seq, err := strconv.Atoi(strings.TrimSpace(cells[ColSeq-1]))
	if err != nil {
		return Record{}, fmt.Errorf("%w: row %d: sequence %q", ErrMalformedRow, physRow, cells[ColSeq-1])
	}

	rec := Record{
		Seq:      seq,
		Question: cells[ColQuestion-1],
		Answer:   cells[ColAnswer-1],
		Author:   cells[ColAuthor-1],
		Row:      physRow,
	}

	if s := strings.TrimSpace(cells[ColCreated-1]); s != "" {
		rec.Created, err = parseDate(s)
		if err != nil {
			return Record{}, fmt.Errorf("%w: row %d: created %q", ErrMalformedRow, physRow, s)
		}
	}

	if s := strings.TrimSpace(cells[ColAttachments-1]); s != "" {
		if err := json.Unmarshal([]byte(s), &rec.Attachments); err != nil {
			return Record{}, fmt.Errorf("%w: row %d: attachments: %v", ErrMalformedRow, physRow, err)
		}
	}
	return rec, nil
}

// IsBlank reports whether every cell of row is empty after trimming.
func IsBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// NextSeq returns max(Seq)+1, or 1 for an empty table.
func NextSeq(records []Record) int {
	max := 0
	for _, r := range records {
		if r.Seq > max {
			max = r.Seq
		}
	}
	return max + 1
}

// parseDate accepts the canonical date plus the timestamp form some older
// rows were written with.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
