// internal/qna/service.go
//
// Q&A registration service.
//
// Context
// -------
// Service is the only caller of the tabular store and the drive.  Each
// operation is one read-modify-write cycle against a fresh read of the
// sheet:
//
//	ReadAll → Snapshot → Similarity check / Record Locator → mutation
//
// There is no locking and no retry.  Two users racing on the same sheet
// get last-write-wins, and every error ends the current action.  Read-only
// calls that arrive in the same instant share one ReadAll through
// singleflight; mutations always read for themselves.
//
// Notes
// -----
//   - Near-duplicate matches are advisory and travel in RegisterResult.
//   - Attachment uploads run one at a time; a failed file is reported and
//     the record is still written.  Files uploaded ahead of a failed sheet
//     write are logged as orphaned rather than deleted.
//   - Oxford commas, two spaces after periods.
package qna

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/mqa/internal/drive"
	"github.com/yanizio/mqa/internal/form"
	"github.com/yanizio/mqa/internal/locate"
	"github.com/yanizio/mqa/internal/logger"
	"github.com/yanizio/mqa/internal/metrics"
	"github.com/yanizio/mqa/internal/record"
	"github.com/yanizio/mqa/internal/sheet"
	"github.com/yanizio/mqa/internal/similarity"
)

// -----------------------------------------------------------------------------
// Inputs and results
// -----------------------------------------------------------------------------

// File is one attachment posted with a submission.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Submission carries the user-editable fields of a record.  It is used for
// both registration and edit.
type Submission struct {
	Question string `form:"question" validate:"required,max=2000"`
	Answer   string `form:"answer" validate:"max=10000"`
	Author   string `form:"author" validate:"required,max=100"`
	Files    []File `form:"files" validate:"-"`
}

// Suggestion is an existing record similar to a candidate question.
type Suggestion struct {
	Record record.Record
	Ratio  float64
}

// RegisterResult reports a successful registration.
type RegisterResult struct {
	Record       record.Record
	Similar      []Suggestion // advisory near matches, best first
	UploadErrors []*UploadError
}

// EditResult reports a successful edit.
type EditResult struct {
	Record       record.Record
	UploadErrors []*UploadError
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Options tunes a Service.
type Options struct {
	Policy           similarity.Policy
	SuggestThreshold float64 // minimum ratio for Similar
	RecentLimit      int     // default n for Recent when n <= 0
	AnswerRequired   bool
	Strategy         locate.Strategy
	MaxUploadBytes   int64 // per file, 0 means unlimited
	Now              func() time.Time
}

// DefaultOptions mirrors conf/mqa.yaml.
func DefaultOptions() Options {
	return Options{
		Policy:           similarity.DefaultPolicy(),
		SuggestThreshold: 0.65,
		RecentLimit:      5,
		AnswerRequired:   true,
		Strategy:         locate.StrategyPosition,
		MaxUploadBytes:   10 << 20,
		Now:              time.Now,
	}
}

// Service implements register, browse, edit, and delete.
type Service struct {
	store    sheet.Store
	uploader drive.Uploader
	opts     Options
	locator  locate.Locator
	validate *validator.Validate
	reads    singleflight.Group
}

// New builds a Service.  uploader may be nil, in which case attachments are
// refused per file.
func New(store sheet.Store, uploader drive.Uploader, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 5
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})

	return &Service{
		store:    store,
		uploader: uploader,
		opts:     opts,
		locator:  locate.Locator{Strategy: opts.Strategy, Finder: store},
		validate: v,
	}
}

// Strategy reports the locate strategy in use.
func (s *Service) Strategy() locate.Strategy {
	if s.opts.Strategy == "" {
		return locate.StrategyPosition
	}
	return s.opts.Strategy
}

// -----------------------------------------------------------------------------
// Read paths
// -----------------------------------------------------------------------------

// Snapshot returns an unfiltered read of the sheet.  Concurrent callers may
// share one read.  The returned records must not be modified.
func (s *Service) Snapshot(ctx context.Context) (locate.Snapshot, error) {
	// The shared read must not die with whichever caller started it.
	v, err, _ := s.reads.Do("snapshot", func() (any, error) {
		_, snap, err := s.fresh(context.WithoutCancel(ctx))
		return snap, err
	})
	if err != nil {
		return locate.Snapshot{}, err
	}
	return v.(locate.Snapshot), nil
}

// List returns every record in sheet order.
func (s *Service) List(ctx context.Context) ([]record.Record, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// Recent returns the last n records in sheet order.  n <= 0 uses the
// configured default.
func (s *Service) Recent(ctx context.Context, n int) ([]record.Record, error) {
	if n <= 0 {
		n = s.opts.RecentLimit
	}
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Search filters records by a case-insensitive substring over question,
// answer, and author.  Each result keeps its physical row.
func (s *Service) Search(ctx context.Context, query string) ([]record.Record, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Search(query).Records, nil
}

// Similar ranks existing questions against text for the as-you-type hint.
func (s *Service) Similar(ctx context.Context, text string) ([]Suggestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p := s.opts.Policy
	ms := similarity.Rank(text, snap.Questions(), s.opts.SuggestThreshold, p.Limit, p.FoldCase)
	return suggestions(snap, ms), nil
}

// Get returns the record holding seq.
func (s *Service) Get(ctx context.Context, seq int) (record.Record, error) {
	_, snap, err := s.fresh(ctx)
	if err != nil {
		return record.Record{}, err
	}
	row, err := s.locate(ctx, snap, seq)
	if err != nil {
		return record.Record{}, err
	}
	return recordAt(snap, row, seq)
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// Register validates sub, refuses exact duplicates, uploads attachments, and
// appends the record with the next sequence number.
func (s *Service) Register(ctx context.Context, sub Submission) (RegisterResult, error) {
	log := logger.FromContext(ctx)
	sub = sub.trimmed()

	if err := s.check(sub); err != nil {
		metrics.RegisterTotal.WithLabelValues("invalid").Inc()
		return RegisterResult{}, err
	}

	rows, snap, err := s.fresh(ctx)
	if err != nil {
		metrics.RegisterTotal.WithLabelValues("error").Inc()
		return RegisterResult{}, err
	}

	verdict := similarity.Classify(sub.Question, snap.Questions(), s.opts.Policy)
	if verdict.Kind == similarity.Exact {
		dup := &DuplicateError{Matches: suggestions(snap, verdict.Matches)}
		metrics.RegisterTotal.WithLabelValues("duplicate").Inc()
		log.Infow("duplicate question rejected", "existing_seq", dup.Matches[0].Record.Seq)
		return RegisterResult{}, dup
	}

	atts, upErrs := s.upload(ctx, sub.Files)

	rec := record.Record{
		Seq:         snap.NextSeq(),
		Question:    sub.Question,
		Answer:      sub.Answer,
		Author:      sub.Author,
		Created:     s.opts.Now(),
		Attachments: atts,
	}
	cells, err := record.Encode(rec)
	if err != nil {
		metrics.RegisterTotal.WithLabelValues("error").Inc()
		return RegisterResult{}, err
	}

	if len(rows) == 0 {
		if err := s.store.AppendRow(ctx, record.Header()); err != nil {
			metrics.RegisterTotal.WithLabelValues("error").Inc()
			orphaned(log, "append_row", atts)
			return RegisterResult{}, &StoreError{Op: "append_row", Err: err}
		}
		rows = [][]string{record.Header()}
	}
	if err := s.store.AppendRow(ctx, cells); err != nil {
		metrics.RegisterTotal.WithLabelValues("error").Inc()
		orphaned(log, "append_row", atts)
		return RegisterResult{}, &StoreError{Op: "append_row", Err: err}
	}
	rec.Row = len(rows) + 1

	res := RegisterResult{Record: rec, UploadErrors: upErrs}
	if verdict.Kind == similarity.Near {
		res.Similar = suggestions(snap, verdict.Matches)
		metrics.NearMatchTotal.Inc()
	}
	metrics.RegisterTotal.WithLabelValues("created").Inc()

	log.Infow("record registered",
		"seq", rec.Seq,
		"row", rec.Row,
		"attachments", len(atts),
		"upload_errors", len(upErrs),
		"near_matches", len(res.Similar),
	)
	return res, nil
}

// Edit overwrites the question, answer, and author of record seq and
// appends any new attachments.  Seq and Created are preserved.  A question
// that exactly equals another record's question is refused.
func (s *Service) Edit(ctx context.Context, seq int, sub Submission) (EditResult, error) {
	log := logger.FromContext(ctx)
	sub = sub.trimmed()

	if err := s.check(sub); err != nil {
		return EditResult{}, err
	}

	_, snap, err := s.fresh(ctx)
	if err != nil {
		return EditResult{}, err
	}
	row, err := s.locate(ctx, snap, seq)
	if err != nil {
		return EditResult{}, err
	}
	cur, err := recordAt(snap, row, seq)
	if err != nil {
		return EditResult{}, err
	}

	others := snap.Filter(func(r record.Record) bool { return r.Row != row })
	if v := similarity.Classify(sub.Question, others.Questions(), s.opts.Policy); v.Kind == similarity.Exact {
		return EditResult{}, &DuplicateError{Matches: suggestions(others, v.Matches)}
	}

	atts, upErrs := s.upload(ctx, sub.Files)

	updates := []struct {
		col       int
		old, next string
	}{
		{record.ColQuestion, cur.Question, sub.Question},
		{record.ColAnswer, cur.Answer, sub.Answer},
		{record.ColAuthor, cur.Author, sub.Author},
	}
	for _, u := range updates {
		if u.old == u.next {
			continue
		}
		if err := s.store.UpdateCell(ctx, row, u.col, u.next); err != nil {
			orphaned(log, "update_cell", atts)
			return EditResult{}, &StoreError{Op: "update_cell", Err: err}
		}
	}

	cur.Question, cur.Answer, cur.Author = sub.Question, sub.Answer, sub.Author
	if len(atts) > 0 {
		cur.Attachments = append(append([]record.Attachment(nil), cur.Attachments...), atts...)
		cell, err := record.EncodeAttachments(cur.Attachments)
		if err != nil {
			return EditResult{}, err
		}
		if err := s.store.UpdateCell(ctx, row, record.ColAttachments, cell); err != nil {
			orphaned(log, "update_cell", atts)
			return EditResult{}, &StoreError{Op: "update_cell", Err: err}
		}
	}

	metrics.EditTotal.Inc()
	log.Infow("record edited", "seq", seq, "row", row, "strategy", s.Strategy(), "attachments_added", len(atts))
	return EditResult{Record: cur, UploadErrors: upErrs}, nil
}

// Delete removes record seq.
func (s *Service) Delete(ctx context.Context, seq int) error {
	_, snap, err := s.fresh(ctx)
	if err != nil {
		return err
	}
	row, err := s.locate(ctx, snap, seq)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRow(ctx, row); err != nil {
		return &StoreError{Op: "delete_row", Err: err}
	}

	metrics.DeleteTotal.Inc()
	logger.FromContext(ctx).Infow("record deleted", "seq", seq, "row", row, "strategy", s.Strategy())
	return nil
}

// DeleteMany removes every record in seqs.  All rows are resolved against
// one read before anything is deleted, then removed bottom-up.  If any seq
// cannot be resolved nothing is deleted.  The count of deleted rows is
// returned even on a store failure part-way through.
func (s *Service) DeleteMany(ctx context.Context, seqs []int) (int, error) {
	if len(seqs) == 0 {
		return 0, nil
	}
	_, snap, err := s.fresh(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := s.locator.LocateAll(ctx, snap, seqs)
	if err != nil {
		return 0, s.locateErr(err)
	}

	deleted := 0
	for _, row := range rows {
		if err := s.store.DeleteRow(ctx, row); err != nil {
			metrics.DeleteTotal.Add(float64(deleted))
			return deleted, &StoreError{Op: "delete_row", Err: err}
		}
		deleted++
	}

	metrics.DeleteTotal.Add(float64(deleted))
	logger.FromContext(ctx).Infow("records deleted", "seqs", seqs, "rows", rows, "strategy", s.Strategy())
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// fresh reads the whole sheet and decodes it.
func (s *Service) fresh(ctx context.Context) ([][]string, locate.Snapshot, error) {
	rows, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, locate.Snapshot{}, &StoreError{Op: "read_all", Err: err}
	}
	snap := locate.FromRows(rows)
	metrics.MalformedRows.Set(float64(len(snap.Malformed)))
	if len(snap.Malformed) > 0 {
		bad := make([]int, 0, len(snap.Malformed))
		for _, m := range snap.Malformed {
			bad = append(bad, m.Row)
		}
		logger.FromContext(ctx).Warnw("malformed rows skipped", "rows", bad, "first_err", snap.Malformed[0].Err)
	}
	return rows, snap, nil
}

func (s *Service) locate(ctx context.Context, snap locate.Snapshot, seq int) (int, error) {
	row, err := s.locator.Locate(ctx, snap, seq)
	if err != nil {
		return 0, s.locateErr(err)
	}
	return row, nil
}

// locateErr counts refusals and wraps store failures from the search
// strategy.
func (s *Service) locateErr(err error) error {
	switch {
	case errors.Is(err, locate.ErrNotFound):
		metrics.LocateErrorsTotal.WithLabelValues("not_found").Inc()
	case errors.Is(err, locate.ErrAmbiguous):
		metrics.LocateErrorsTotal.WithLabelValues("ambiguous").Inc()
	case errors.Is(err, locate.ErrFilteredView):
		metrics.LocateErrorsTotal.WithLabelValues("filtered_view").Inc()
	case errors.Is(err, locate.ErrMalformed):
		metrics.LocateErrorsTotal.WithLabelValues("malformed").Inc()
	default:
		return &StoreError{Op: "find_cell", Err: err}
	}
	return err
}

// upload pushes files one at a time.
func (s *Service) upload(ctx context.Context, files []File) ([]record.Attachment, []*UploadError) {
	var (
		atts []record.Attachment
		errs []*UploadError
	)
	fail := func(name string, err error) {
		errs = append(errs, &UploadError{File: name, Err: err})
		metrics.UploadTotal.WithLabelValues("error").Inc()
		logger.FromContext(ctx).Warnw("attachment upload failed", "file", name, "err", err)
	}

	for _, f := range files {
		switch {
		case s.uploader == nil:
			fail(f.Name, ErrNoUploader)
			continue
		case s.opts.MaxUploadBytes > 0 && int64(len(f.Data)) > s.opts.MaxUploadBytes:
			fail(f.Name, ErrTooLarge)
			continue
		}
		att, err := s.uploader.Upload(ctx, f.Data, f.Name, f.MIME)
		if err != nil {
			fail(f.Name, err)
			continue
		}
		atts = append(atts, att)
		metrics.UploadTotal.WithLabelValues("ok").Inc()
	}
	return atts, errs
}

// orphaned records attachments that were uploaded but never reached the
// sheet, so an operator can remove them from the drive.  Drives are not
// asked to delete: the write may have landed despite the error.
func orphaned(log *zap.SugaredLogger, op string, atts []record.Attachment) {
	if len(atts) == 0 {
		return
	}
	ids := make([]string, len(atts))
	for i, a := range atts {
		ids[i] = a.ID
	}
	metrics.UploadTotal.WithLabelValues("orphaned").Add(float64(len(atts)))
	log.Warnw("attachments orphaned by failed write", "op", op, "ids", ids)
}

// check runs the struct rules plus the configurable answer requirement.
func (s *Service) check(sub Submission) error {
	var fields []form.ErrorField
	if err := s.validate.Struct(sub); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return err
		}
		for _, fe := range ves {
			fields = append(fields, form.ErrorField{Name: fe.Field(), Message: fieldMessage(fe)})
		}
	}
	if s.opts.AnswerRequired && sub.Answer == "" {
		fields = append(fields, form.ErrorField{Name: "answer", Message: "This field is required."})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return "Must be at most " + fe.Param() + " characters."
	default:
		return "Invalid input."
	}
}

func (sub Submission) trimmed() Submission {
	sub.Question = strings.TrimSpace(sub.Question)
	sub.Answer = strings.TrimSpace(sub.Answer)
	sub.Author = strings.TrimSpace(sub.Author)
	return sub
}

// recordAt finds the record decoded from physical row.
func recordAt(snap locate.Snapshot, row, seq int) (record.Record, error) {
	for _, r := range snap.Records {
		if r.Row == row {
			return r, nil
		}
	}
	return record.Record{}, &StoreError{Op: "read_all", Err: fmt.Errorf("row %d for sequence %d is not a record", row, seq)}
}

func suggestions(snap locate.Snapshot, ms []similarity.Match) []Suggestion {
	out := make([]Suggestion, 0, len(ms))
	for _, m := range ms {
		out = append(out, Suggestion{Record: snap.Records[m.Index], Ratio: m.Ratio})
	}
	return out
}
