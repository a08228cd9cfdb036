// components/qna/handlers.go
//
// HTTP handlers for the Q&A pages.
//
// Notes
// -----
//   - Edit and delete are two-step: the GET marks the record as pending in
//     the session, the POST only proceeds when the pending action still
//     names the same record.  Any outcome other than a correctable form
//     error clears it.
//   - Forms are re-rendered in place with field errors (422), duplicate
//     matches (409), or a flash message mapped from the service error.
//   - Oxford commas, two spaces after periods.
package qna

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/mqa/internal/form"
	"github.com/yanizio/mqa/internal/locate"
	"github.com/yanizio/mqa/internal/logger"
	service "github.com/yanizio/mqa/internal/qna"
	"github.com/yanizio/mqa/internal/record"
	"github.com/yanizio/mqa/internal/session"
)

const multipartMemory = 8 << 20

const (
	msgRegistered = "✅ 질의응답이 성공적으로 등록되었습니다!"
	msgEdited     = "✅ 질의응답이 수정되었습니다."
	msgDeleted    = "🗑 질의응답이 삭제되었습니다."
	msgNoneChosen = "삭제할 질문을 선택해주세요."
	msgStale      = "진행 중인 작업이 만료되었습니다.  목록에서 다시 선택해주세요."
	msgBadToken   = "보안 토큰이 유효하지 않습니다.  새로고침 후 다시 시도해주세요."
	msgNotFound   = "해당 번호의 질문을 찾을 수 없습니다.  목록을 새로고침해주세요."
	msgAmbiguous  = "같은 번호의 행이 여러 개 있습니다.  시트를 직접 확인해주세요."
	msgFiltered   = "검색 결과 화면에서는 수정하거나 삭제할 수 없습니다."
	msgMalformed  = "시트의 해당 행 형식이 올바르지 않습니다.  시트를 직접 확인해주세요."
	msgDuplicate  = "⚠ 이미 동일한 질문이 등록되어 있습니다.  다시 확인해주세요."
	msgStore      = "시트 저장소와 통신하지 못했습니다.  잠시 후 다시 시도해주세요."
	msgInternal   = "알 수 없는 오류가 발생했습니다."
	msgTooLarge   = "첨부 파일이 너무 큽니다."
	msgBadRequest = "요청을 처리할 수 없습니다."
)

type flash struct {
	Kind string // success, warning, error
	Text string
}

// page is the data handed to every template.
type page struct {
	Title        string
	Flash        *flash
	Form         template.HTML
	Multipart    bool
	Similar      []service.Suggestion
	Duplicates   []service.Suggestion
	UploadErrors []*service.UploadError
	Records      []record.Record
	Record       record.Record
	Query        string
}

// -----------------------------------------------------------------------------
// Register
// -----------------------------------------------------------------------------

func (c *Comp) index(w http.ResponseWriter, r *http.Request) {
	c.renderIndex(w, r, http.StatusOK, page{}, form.RenderOptions{})
}

func (c *Comp) register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, c.maxBody)

	in, err := form.HandleSubmit(formRegister, r, multipartMemory)
	if err != nil {
		if !form.IsValidationError(err) {
			badRequest(w, r, err)
			return
		}
		c.renderIndex(w, r, http.StatusUnprocessableEntity, page{},
			form.RenderOptions{Prefill: posted(r), Errors: form.FieldErrors(err)})
		return
	}

	sub, err := submission(in)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	res, err := c.svc.Register(r.Context(), sub)
	if err != nil {
		var (
			ve  *service.ValidationError
			dup *service.DuplicateError
		)
		opts := form.RenderOptions{Prefill: posted(r)}
		switch {
		case errors.As(err, &ve):
			opts.Errors = ve.Fields
			c.renderIndex(w, r, http.StatusUnprocessableEntity, page{}, opts)
		case errors.As(err, &dup):
			c.renderIndex(w, r, http.StatusConflict, page{Duplicates: dup.Matches}, opts)
		default:
			status, msg := errStatus(r, err)
			c.renderIndex(w, r, status, page{Flash: &flash{"error", msg}}, opts)
		}
		return
	}

	c.renderIndex(w, r, http.StatusOK, page{
		Flash:        &flash{"success", msgRegistered},
		Similar:      res.Similar,
		UploadErrors: res.UploadErrors,
	}, form.RenderOptions{})
}

func (c *Comp) renderIndex(w http.ResponseWriter, r *http.Request, status int, p page, opts form.RenderOptions) {
	html, err := form.RenderForm(formRegister, opts)
	if err != nil {
		c.internal(w, r, err)
		return
	}
	p.Title = "질의응답 등록"
	p.Form = html
	p.Multipart = hasFiles(formRegister)

	recent, err := c.svc.Recent(r.Context(), 0)
	if err != nil {
		logger.FromContext(r.Context()).Warnw("recent records unavailable", "err", err)
		if p.Flash == nil {
			p.Flash = &flash{"error", msgStore}
		}
	}
	p.Records = recent
	c.render(w, r, status, "index", p)
}

// -----------------------------------------------------------------------------
// Browse
// -----------------------------------------------------------------------------

func (c *Comp) records(w http.ResponseWriter, r *http.Request) {
	c.renderRecords(w, r, http.StatusOK, page{})
}

func (c *Comp) renderRecords(w http.ResponseWriter, r *http.Request, status int, p page) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	recs, err := c.svc.Search(r.Context(), q)
	if err != nil {
		logger.FromContext(r.Context()).Warnw("records unavailable", "err", err)
		if p.Flash == nil {
			status = http.StatusBadGateway
			p.Flash = &flash{"error", msgStore}
		}
	}
	p.Title = "등록된 질의응답"
	p.Records = recs
	p.Query = q
	c.render(w, r, status, "records", p)
}

// similarItem is one entry of the /api/similar response.
type similarItem struct {
	Seq      int     `json:"seq"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Ratio    float64 `json:"ratio"`
}

func (c *Comp) similar(w http.ResponseWriter, r *http.Request) {
	ms, err := c.svc.Similar(r.Context(), r.URL.Query().Get("q"))
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		logger.FromContext(r.Context()).Warnw("similar lookup failed", "err", err)
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": msgStore})
		return
	}

	out := make([]similarItem, 0, len(ms))
	for _, m := range ms {
		out = append(out, similarItem{
			Seq:      m.Record.Seq,
			Question: m.Record.Question,
			Answer:   m.Record.Answer,
			Ratio:    m.Ratio,
		})
	}
	json.NewEncoder(w).Encode(out)
}

// -----------------------------------------------------------------------------
// Edit
// -----------------------------------------------------------------------------

func (c *Comp) editForm(w http.ResponseWriter, r *http.Request) {
	seq, ok := seqParam(r)
	if !ok {
		c.renderRecords(w, r, http.StatusNotFound, page{Flash: &flash{"error", msgNotFound}})
		return
	}
	rec, err := c.svc.Get(r.Context(), seq)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	sid := c.sess.ID(w, r)
	c.sess.Set(sid, session.Pending{Kind: session.PendingEditing, Seq: seq})
	c.renderEdit(w, r, http.StatusOK, rec, page{}, form.RenderOptions{Prefill: prefill(rec)})
}

func (c *Comp) saveEdit(w http.ResponseWriter, r *http.Request) {
	seq, ok := seqParam(r)
	if !ok {
		c.renderRecords(w, r, http.StatusNotFound, page{Flash: &flash{"error", msgNotFound}})
		return
	}
	sid := c.sess.ID(w, r)
	if !c.sess.Get(sid).Matches(session.PendingEditing, seq) {
		c.renderRecords(w, r, http.StatusConflict, page{Flash: &flash{"warning", msgStale}})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, c.maxBody)
	in, err := form.HandleSubmit(formEdit, r, multipartMemory)
	if err != nil {
		if !form.IsValidationError(err) {
			badRequest(w, r, err)
			return
		}
		c.reEdit(w, r, seq, http.StatusUnprocessableEntity, page{},
			form.RenderOptions{Prefill: posted(r), Errors: form.FieldErrors(err)})
		return
	}

	sub, err := submission(in)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	res, err := c.svc.Edit(r.Context(), seq, sub)
	if err != nil {
		var (
			ve  *service.ValidationError
			dup *service.DuplicateError
		)
		opts := form.RenderOptions{Prefill: posted(r)}
		switch {
		case errors.As(err, &ve):
			opts.Errors = ve.Fields
			c.reEdit(w, r, seq, http.StatusUnprocessableEntity, page{}, opts)
		case errors.As(err, &dup):
			c.reEdit(w, r, seq, http.StatusConflict,
				page{Flash: &flash{"error", msgDuplicate}, Duplicates: dup.Matches}, opts)
		default:
			c.sess.Clear(sid)
			c.fail(w, r, err)
		}
		return
	}

	c.sess.Clear(sid)
	c.renderRecords(w, r, http.StatusOK, page{
		Flash:        &flash{"success", msgEdited},
		UploadErrors: res.UploadErrors,
	})
}

// reEdit re-reads the record and shows the edit form again.
func (c *Comp) reEdit(w http.ResponseWriter, r *http.Request, seq, status int, p page, opts form.RenderOptions) {
	rec, err := c.svc.Get(r.Context(), seq)
	if err != nil {
		c.sess.Clear(c.sess.ID(w, r))
		c.fail(w, r, err)
		return
	}
	c.renderEdit(w, r, status, rec, p, opts)
}

func (c *Comp) renderEdit(w http.ResponseWriter, r *http.Request, status int, rec record.Record, p page, opts form.RenderOptions) {
	html, err := form.RenderForm(formEdit, opts)
	if err != nil {
		c.internal(w, r, err)
		return
	}
	p.Title = fmt.Sprintf("질의응답 수정 #%d", rec.Seq)
	p.Form = html
	p.Multipart = hasFiles(formEdit)
	p.Record = rec
	c.render(w, r, status, "edit", p)
}

// -----------------------------------------------------------------------------
// Delete
// -----------------------------------------------------------------------------

func (c *Comp) confirmDelete(w http.ResponseWriter, r *http.Request) {
	seq, ok := seqParam(r)
	if !ok {
		c.renderRecords(w, r, http.StatusNotFound, page{Flash: &flash{"error", msgNotFound}})
		return
	}
	rec, err := c.svc.Get(r.Context(), seq)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	sid := c.sess.ID(w, r)
	c.sess.Set(sid, session.Pending{Kind: session.PendingConfirmDelete, Seq: seq})
	c.render(w, r, http.StatusOK, "delete", page{Title: fmt.Sprintf("삭제 확인 #%d", seq), Record: rec})
}

func (c *Comp) deleteOne(w http.ResponseWriter, r *http.Request) {
	seq, ok := seqParam(r)
	if !ok {
		c.renderRecords(w, r, http.StatusNotFound, page{Flash: &flash{"error", msgNotFound}})
		return
	}
	if !c.tokenOK(w, r) {
		return
	}
	sid := c.sess.ID(w, r)
	if !c.sess.Get(sid).Matches(session.PendingConfirmDelete, seq) {
		c.renderRecords(w, r, http.StatusConflict, page{Flash: &flash{"warning", msgStale}})
		return
	}

	err := c.svc.Delete(r.Context(), seq)
	c.sess.Clear(sid)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.renderRecords(w, r, http.StatusOK, page{Flash: &flash{"success", msgDeleted}})
}

func (c *Comp) deleteMany(w http.ResponseWriter, r *http.Request) {
	if !c.tokenOK(w, r) {
		return
	}

	var seqs []int
	for _, raw := range r.PostForm["seq"] {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n <= 0 {
			c.renderRecords(w, r, http.StatusBadRequest, page{Flash: &flash{"error", msgBadRequest}})
			return
		}
		seqs = append(seqs, n)
	}
	if len(seqs) == 0 {
		c.renderRecords(w, r, http.StatusBadRequest, page{Flash: &flash{"warning", msgNoneChosen}})
		return
	}

	n, err := c.svc.DeleteMany(r.Context(), seqs)
	if err != nil {
		status, msg := errStatus(r, err)
		if n > 0 {
			msg = fmt.Sprintf("%s  (%d건은 이미 삭제되었습니다.)", msg, n)
		}
		c.renderRecords(w, r, status, page{Flash: &flash{"error", msg}})
		return
	}
	c.renderRecords(w, r, http.StatusOK, page{Flash: &flash{"success", fmt.Sprintf("🗑 %d건이 삭제되었습니다.", n)}})
}

func (c *Comp) cancel(w http.ResponseWriter, r *http.Request) {
	if !c.tokenOK(w, r) {
		return
	}
	c.sess.Clear(c.sess.ID(w, r))
	http.Redirect(w, r, "/records", http.StatusSeeOther)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (c *Comp) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	if err := c.views.Render(w, status, name, p); err != nil {
		logger.FromContext(r.Context()).Errorw("render failed", "page", name, "err", err)
	}
}

// fail shows the record list with the message mapped from err.
func (c *Comp) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errStatus(r, err)
	c.renderRecords(w, r, status, page{Flash: &flash{"error", msg}})
}

func (c *Comp) internal(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Errorw("page failed", "path", r.URL.Path, "err", err)
	http.Error(w, msgInternal, http.StatusInternalServerError)
}

// tokenOK checks the CSRF token of the small confirm/cancel/batch forms.
func (c *Comp) tokenOK(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil || !form.VerifyToken(r.PostFormValue("csrf_token")) {
		c.renderRecords(w, r, http.StatusForbidden, page{Flash: &flash{"error", msgBadToken}})
		return false
	}
	return true
}

// errStatus maps a service error to a status code and user message.
func errStatus(r *http.Request, err error) (int, string) {
	var se *service.StoreError
	switch {
	case errors.Is(err, locate.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, locate.ErrAmbiguous):
		return http.StatusConflict, msgAmbiguous
	case errors.Is(err, locate.ErrFilteredView):
		return http.StatusConflict, msgFiltered
	case errors.Is(err, locate.ErrMalformed):
		return http.StatusConflict, msgMalformed
	case errors.Is(err, service.ErrDuplicate):
		return http.StatusConflict, msgDuplicate
	case errors.As(err, &se):
		logger.FromContext(r.Context()).Errorw("store failure", "op", se.Op, "err", se.Err)
		return http.StatusBadGateway, msgStore
	default:
		logger.FromContext(r.Context()).Errorw("unexpected failure", "err", err)
		return http.StatusInternalServerError, msgInternal
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		http.Error(w, msgTooLarge, http.StatusRequestEntityTooLarge)
		return
	}
	logger.FromContext(r.Context()).Infow("bad request", "path", r.URL.Path, "err", err)
	http.Error(w, msgBadRequest, http.StatusBadRequest)
}

func seqParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "seq"))
	return n, err == nil && n > 0
}

func hasFiles(formID string) bool {
	fd, ok := form.GetFormDef(formID)
	return ok && fd.HasFileFields()
}

// posted returns the submitted text fields for re-rendering.
func posted(r *http.Request) map[string]string {
	return map[string]string{
		"question": r.PostFormValue("question"),
		"answer":   r.PostFormValue("answer"),
		"author":   r.PostFormValue("author"),
	}
}

func prefill(rec record.Record) map[string]string {
	return map[string]string{
		"question": rec.Question,
		"answer":   rec.Answer,
		"author":   rec.Author,
	}
}

// submission turns validated form input into a service submission.
func submission(in form.Submission) (service.Submission, error) {
	files, err := readFiles(in.Files["attachments"])
	if err != nil {
		return service.Submission{}, err
	}
	return service.Submission{
		Question: in.Values["question"],
		Answer:   in.Values["answer"],
		Author:   in.Values["author"],
		Files:    files,
	}, nil
}

func readFiles(hs []*multipart.FileHeader) ([]service.File, error) {
	out := make([]service.File, 0, len(hs))
	for _, h := range hs {
		f, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", h.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", h.Filename, err)
		}
		out = append(out, service.File{Name: h.Filename, MIME: h.Header.Get("Content-Type"), Data: data})
	}
	return out, nil
}
