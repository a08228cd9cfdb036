package locate

import (
	"strconv"
	"strings"

	"github.com/yanizio/mqa/internal/record"
)

// Snapshot is one decoded read of the whole sheet.  Every record carries
// its physical row, and that annotation survives Filter so any view can
// still be traced back to the store.
type Snapshot struct {
	Records   []record.Record
	Malformed []Malformed // hand-edited rows that did not decode
	filtered  bool
}

// Malformed is a non-blank data row that could not be decoded.  It keeps
// its physical row so neighbours stay addressable.
type Malformed struct {
	Row    int
	SeqRaw string // trimmed identity cell as found
	Err    error
}

// FromRows decodes a ReadAll result.  Header rows and fully blank rows are
// skipped; rows that fail to decode are set aside in Malformed.  Physical
// rows are preserved on each record.
func FromRows(rows [][]string) Snapshot {
	var snap Snapshot
	for i, row := range rows {
		if i < record.HeaderRows || record.IsBlank(row) {
			continue
		}
		rec, err := record.Decode(row, i+1)
		if err != nil {
			raw := ""
			if len(row) >= record.ColSeq {
				raw = strings.TrimSpace(row[record.ColSeq-1])
			}
			snap.Malformed = append(snap.Malformed, Malformed{Row: i + 1, SeqRaw: raw, Err: err})
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap
}

// IsMalformed reports whether physical row was set aside by FromRows.
func (s Snapshot) IsMalformed(row int) bool {
	for _, m := range s.Malformed {
		if m.Row == row {
			return true
		}
	}
	return false
}

// NextSeq is max+1 over decoded records and every malformed row whose
// identity cell still reads as a number, so a broken row never has its
// sequence number handed out again.
func (s Snapshot) NextSeq() int {
	next := record.NextSeq(s.Records)
	for _, m := range s.Malformed {
		if n, err := strconv.Atoi(m.SeqRaw); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

// Filtered reports whether this snapshot is a derived view.
func (s Snapshot) Filtered() bool { return s.filtered }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.Records) }

// Filter returns a view holding the records keep accepts.
func (s Snapshot) Filter(keep func(record.Record) bool) Snapshot {
	out := Snapshot{Malformed: s.Malformed, filtered: true}
	for _, r := range s.Records {
		if keep(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Search returns a view of records whose question, answer, or author
// contains query, case-insensitively.  A blank query returns s unchanged.
func (s Snapshot) Search(query string) Snapshot {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s
	}
	return s.Filter(func(r record.Record) bool {
		return strings.Contains(strings.ToLower(r.Question), q) ||
			strings.Contains(strings.ToLower(r.Answer), q) ||
			strings.Contains(strings.ToLower(r.Author), q)
	})
}

// Questions returns the question column in snapshot order.
func (s Snapshot) Questions() []string {
	out := make([]string, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Question
	}
	return out
}

// Find returns the record carrying seq, if exactly one does.
func (s Snapshot) Find(seq int) (record.Record, bool) {
	var (
		hit   record.Record
		count int
	)
	for _, r := range s.Records {
		if r.Seq == seq {
			hit = r
			count++
		}
	}
	return hit, count == 1
}
