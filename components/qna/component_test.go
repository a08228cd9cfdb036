package qna

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yanizio/mqa/internal/component"
	"github.com/yanizio/mqa/internal/drive"
	"github.com/yanizio/mqa/internal/form"
	service "github.com/yanizio/mqa/internal/qna"
	"github.com/yanizio/mqa/internal/record"
	"github.com/yanizio/mqa/internal/session"
	"github.com/yanizio/mqa/internal/sheet"
)

var seedDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func seedRow(t *testing.T, seq int, q, a, who string) []string {
	t.Helper()
	row, err := record.Encode(record.Record{Seq: seq, Question: q, Answer: a, Author: who, Created: seedDay})
	if err != nil {
		t.Fatal(err)
	}
	return row
}

type harness struct {
	srv   *httptest.Server
	cl    *http.Client
	store *sheet.Memory
}

func newHarness(t *testing.T, up drive.Uploader, rows ...[]string) *harness {
	t.Helper()
	form.SetTiming(0, time.Hour)

	store := sheet.NewMemory(append([][]string{record.Header()}, rows...)...)
	c := &Comp{}
	err := c.Init(component.Deps{
		Service:  service.New(store, up, service.DefaultOptions()),
		Sessions: session.NewStore(16, false),
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	srv := httptest.NewServer(c.Routes())
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	cl := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{srv: srv, cl: cl, store: store}
}

func defaultHarness(t *testing.T) *harness {
	return newHarness(t, nil,
		seedRow(t, 1, "자동이체 신청은 어떻게 하나요?", "KB홈페이지에서 신청 가능합니다.", "박유림"),
		seedRow(t, 2, "보험금 청구 서류는 무엇인가요?", "진단서와 영수증입니다.", "김민수"),
	)
}

func token(t *testing.T) string {
	t.Helper()
	tok, err := form.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// formValues carries a valid token and render timestamp.
func formValues(t *testing.T, kv ...string) url.Values {
	v := url.Values{}
	v.Set("csrf_token", token(t))
	v.Set("render_ts", strconv.FormatInt(time.Now().Add(-5*time.Second).UnixMicro(), 10))
	for i := 0; i+1 < len(kv); i += 2 {
		v.Add(kv[i], kv[i+1])
	}
	return v
}

func (h *harness) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := h.cl.Get(h.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return readBody(t, resp)
}

func (h *harness) post(t *testing.T, path string, v url.Values) (int, string) {
	t.Helper()
	resp, err := h.cl.PostForm(h.srv.URL+path, v)
	if err != nil {
		t.Fatal(err)
	}
	return readBody(t, resp)
}

func (h *harness) rows(t *testing.T) [][]string {
	t.Helper()
	rows, err := h.store.ReadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func readBody(t *testing.T, resp *http.Response) (int, string) {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}

func TestIndex_FormAndRecent(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.get(t, "/")
	if code != http.StatusOK {
		t.Fatalf("GET / = %d", code)
	}
	for _, want := range []string{`id="fld-question"`, `enctype="multipart/form-data"`, "보험금 청구 서류는 무엇인가요?", "csrf_token"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestRegister_Created(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.post(t, "/", formValues(t,
		"author", "이지은",
		"question", "해지 환급금은 언제 입금되나요?",
		"answer", "영업일 기준 3일 이내입니다."))
	if code != http.StatusOK || !strings.Contains(body, msgRegistered) {
		t.Fatalf("register = %d, success flash missing", code)
	}
	rows := h.rows(t)
	if len(rows) != 4 || rows[3][0] != "3" || rows[3][3] != "이지은" {
		t.Fatalf("rows after register = %v", rows)
	}
}

func TestRegister_ExactDuplicateRefused(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.post(t, "/", formValues(t,
		"author", "이지은",
		"question", "  자동이체 신청은 어떻게 하나요?  ",
		"answer", "중복"))
	if code != http.StatusConflict || !strings.Contains(body, "이미 동일한") {
		t.Fatalf("duplicate = %d", code)
	}
	if n := len(h.rows(t)); n != 3 {
		t.Fatalf("duplicate was written: %d rows", n)
	}
}

func TestRegister_NearMatchWarns(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.post(t, "/", formValues(t,
		"author", "이지은",
		"question", "자동이체는 어떻게 신청하나요?",
		"answer", "앱에서도 됩니다."))
	if code != http.StatusOK {
		t.Fatalf("near match = %d", code)
	}
	if !strings.Contains(body, msgRegistered) || !strings.Contains(body, "유사한 질문") || !strings.Contains(body, "#1 ") {
		t.Fatal("near match should register and list #1")
	}
	if !strings.Contains(body, "KB홈페이지에서 신청 가능합니다.") {
		t.Fatal("near match should show the existing answer")
	}
	if n := len(h.rows(t)); n != 4 {
		t.Fatalf("rows = %d, want 4", n)
	}
}

func TestRegister_ValidationRerenders(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.post(t, "/", formValues(t,
		"question", "작성자가 없는 질문",
		"answer", "답"))
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("missing author = %d", code)
	}
	if !strings.Contains(body, "작성자가 없는 질문") || !strings.Contains(body, "This field is required.") {
		t.Fatal("form should keep input and show the field error")
	}
	if n := len(h.rows(t)); n != 3 {
		t.Fatalf("invalid submission was written: %d rows", n)
	}
}

func TestRegister_BadTokenRefused(t *testing.T) {
	h := defaultHarness(t)
	v := formValues(t, "author", "a", "question", "q", "answer", "a")
	v.Set("csrf_token", "forged")
	code, body := h.post(t, "/", v)
	if code != http.StatusUnprocessableEntity || !strings.Contains(body, "Security token invalid") {
		t.Fatalf("forged token = %d", code)
	}
}

func TestRegister_MultipartAttachment(t *testing.T) {
	up, err := drive.NewLocal(t.TempDir(), "/files")
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, up)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range formValues(t, "author", "박유림", "question", "첨부 테스트", "answer", "파일 참고") {
		mw.WriteField(k, vs[0])
	}
	fw, err := mw.CreateFormFile("attachments", "note.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("hello attachment"))
	mw.Close()

	resp, err := h.cl.Post(h.srv.URL+"/", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	code, _ := readBody(t, resp)
	if code != http.StatusOK {
		t.Fatalf("multipart register = %d", code)
	}

	rows := h.rows(t)
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	var atts []record.Attachment
	if err := json.Unmarshal([]byte(rows[1][record.ColAttachments-1]), &atts); err != nil {
		t.Fatalf("attachments cell: %v", err)
	}
	if len(atts) != 1 || atts[0].Name != "note.txt" || atts[0].MIME != "text/plain" {
		t.Fatalf("attachments = %+v", atts)
	}
}

func TestRecords_Search(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.get(t, "/records?q="+url.QueryEscape("보험금"))
	if code != http.StatusOK {
		t.Fatalf("GET /records = %d", code)
	}
	if !strings.Contains(body, "보험금 청구") || strings.Contains(body, "자동이체 신청은") {
		t.Fatal("search should only list the matching record")
	}
}

func TestEdit_Flow(t *testing.T) {
	h := defaultHarness(t)

	code, body := h.get(t, "/records/1/edit")
	if code != http.StatusOK || !strings.Contains(body, "KB홈페이지에서 신청 가능합니다.") {
		t.Fatalf("edit form = %d", code)
	}

	code, body = h.post(t, "/records/1", formValues(t,
		"author", "박유림",
		"question", "자동이체 신청은 어떻게 하나요?",
		"answer", "모바일 앱에서도 신청 가능합니다."))
	if code != http.StatusOK || !strings.Contains(body, msgEdited) {
		t.Fatalf("save edit = %d", code)
	}
	if got := h.rows(t)[1][record.ColAnswer-1]; got != "모바일 앱에서도 신청 가능합니다." {
		t.Fatalf("answer = %q", got)
	}

	// The pending action was consumed.
	code, _ = h.post(t, "/records/1", formValues(t, "author", "x", "question", "y", "answer", "z"))
	if code != http.StatusConflict {
		t.Fatalf("second save = %d, want 409", code)
	}
}

func TestEdit_RequiresPending(t *testing.T) {
	h := defaultHarness(t)
	h.get(t, "/records/2/edit")

	code, body := h.post(t, "/records/1", formValues(t, "author", "x", "question", "y", "answer", "z"))
	if code != http.StatusConflict || !strings.Contains(body, msgStale) {
		t.Fatalf("save without matching pending = %d", code)
	}
	if got := h.rows(t)[1][record.ColQuestion-1]; got != "자동이체 신청은 어떻게 하나요?" {
		t.Fatalf("record changed without pending edit: %q", got)
	}
}

func TestEdit_DuplicateOfOtherRecord(t *testing.T) {
	h := defaultHarness(t)
	h.get(t, "/records/2/edit")

	code, body := h.post(t, "/records/2", formValues(t,
		"author", "김민수",
		"question", "자동이체 신청은 어떻게 하나요?",
		"answer", "중복"))
	if code != http.StatusConflict || !strings.Contains(body, msgDuplicate) {
		t.Fatalf("duplicate edit = %d", code)
	}

	// Still editing, so a corrected save goes through.
	code, _ = h.post(t, "/records/2", formValues(t,
		"author", "김민수",
		"question", "보험금 청구 서류는 어디서 받나요?",
		"answer", "지점에서 받습니다."))
	if code != http.StatusOK {
		t.Fatalf("corrected save = %d", code)
	}
}

func TestEdit_UnknownRecord(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.get(t, "/records/99/edit")
	if code != http.StatusNotFound || !strings.Contains(body, msgNotFound) {
		t.Fatalf("edit unknown = %d", code)
	}
	if code, _ := h.get(t, "/records/abc/edit"); code != http.StatusNotFound {
		t.Fatalf("edit non-numeric = %d", code)
	}
}

func TestDelete_Flow(t *testing.T) {
	h := defaultHarness(t)

	code, body := h.get(t, "/records/1/delete")
	if code != http.StatusOK || !strings.Contains(body, "삭제 확인") {
		t.Fatalf("confirm page = %d", code)
	}

	// Token is required.
	if code, _ := h.post(t, "/records/1/delete", url.Values{}); code != http.StatusForbidden {
		t.Fatalf("delete without token = %d", code)
	}

	code, body = h.post(t, "/records/1/delete", url.Values{"csrf_token": {token(t)}})
	if code != http.StatusOK || !strings.Contains(body, msgDeleted) {
		t.Fatalf("delete = %d", code)
	}
	rows := h.rows(t)
	if len(rows) != 2 || rows[1][0] != "2" {
		t.Fatalf("rows after delete = %v", rows)
	}
}

func TestDelete_RequiresConfirm(t *testing.T) {
	h := defaultHarness(t)
	code, _ := h.post(t, "/records/1/delete", url.Values{"csrf_token": {token(t)}})
	if code != http.StatusConflict {
		t.Fatalf("unconfirmed delete = %d", code)
	}
	if n := len(h.rows(t)); n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}
}

func TestDeleteMany(t *testing.T) {
	h := newHarness(t, nil,
		seedRow(t, 1, "첫 번째", "a", "x"),
		seedRow(t, 2, "두 번째", "b", "y"),
		seedRow(t, 3, "세 번째", "c", "z"),
	)

	code, body := h.post(t, "/records/delete", url.Values{
		"csrf_token": {token(t)},
		"seq":        {"1", "3"},
	})
	if code != http.StatusOK || !strings.Contains(body, "2건이 삭제되었습니다") {
		t.Fatalf("batch delete = %d", code)
	}
	rows := h.rows(t)
	if len(rows) != 2 || rows[1][0] != "2" {
		t.Fatalf("rows after batch delete = %v", rows)
	}

	if code, _ := h.post(t, "/records/delete", url.Values{"csrf_token": {token(t)}}); code != http.StatusBadRequest {
		t.Fatalf("empty batch = %d", code)
	}
	if code, _ := h.post(t, "/records/delete", url.Values{"csrf_token": {token(t)}, "seq": {"2", "7"}}); code != http.StatusNotFound {
		t.Fatalf("batch with unknown seq = %d", code)
	}
	if n := len(h.rows(t)); n != 2 {
		t.Fatalf("partial batch deleted rows: %d", n)
	}
}

func TestCancel_ClearsPending(t *testing.T) {
	h := defaultHarness(t)
	h.get(t, "/records/1/edit")

	code, _ := h.post(t, "/cancel", url.Values{"csrf_token": {token(t)}})
	if code != http.StatusSeeOther {
		t.Fatalf("cancel = %d", code)
	}

	code, _ = h.post(t, "/records/1", formValues(t, "author", "x", "question", "y", "answer", "z"))
	if code != http.StatusConflict {
		t.Fatalf("save after cancel = %d", code)
	}
}

func TestSimilarAPI(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.get(t, "/api/similar?q="+url.QueryEscape("자동이체는 어떻게 신청하나요?"))
	if code != http.StatusOK {
		t.Fatalf("GET /api/similar = %d", code)
	}
	var items []similarItem
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Seq != 1 || items[0].Ratio < 0.65 {
		t.Fatalf("similar = %+v", items)
	}
	if items[0].Answer != "KB홈페이지에서 신청 가능합니다." {
		t.Fatalf("similar answer = %q", items[0].Answer)
	}

	_, body = h.get(t, "/api/similar?q=")
	if strings.TrimSpace(body) != "[]" {
		t.Fatalf("blank query = %q, want []", body)
	}
}

func TestStaticAssets(t *testing.T) {
	h := defaultHarness(t)
	code, body := h.get(t, "/static/app.js")
	if code != http.StatusOK || !strings.Contains(body, "/api/similar") {
		t.Fatalf("GET /static/app.js = %d", code)
	}
}
