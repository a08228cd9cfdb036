package form

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

const testDef = `
id: test/ask
title: Ask
fields:
  - name: question
    label: Question
    type: textarea
    required: true
    maxlength: 20
  - name: author
    label: Author
    type: text
    required: true
  - name: files
    label: Files
    type: file
    multiple: true
`

func registerTestForm(t *testing.T) {
	t.Helper()
	fsys := fstest.MapFS{"forms/ask.yaml": {Data: []byte(testDef)}}
	if err := RegisterFS(fsys, "forms"); err != nil {
		t.Fatalf("RegisterFS: %v", err)
	}
	SetTiming(0, 30*time.Minute)
}

func validPost(t *testing.T) url.Values {
	t.Helper()
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	v := url.Values{}
	v.Set("csrf_token", tok)
	v.Set("render_ts", strconv.FormatInt(time.Now().Add(-5*time.Second).UnixMicro(), 10))
	return v
}

func TestParseFormDef_Rules(t *testing.T) {
	cases := map[string]string{
		"no id":     "fields: [{name: a, label: A, type: text}]",
		"no fields": "id: x/y",
		"dup field": "id: x/y\nfields: [{name: a, label: A, type: text}, {name: a, label: B, type: text}]",
		"bad type":  "id: x/y\nfields: [{name: a, label: A, type: rocket}]",
		"bad regex": "id: x/y\nfields: [{name: a, label: A, type: text, pattern: '('}]",
		"min > max": "id: x/y\nfields: [{name: a, label: A, type: text, minlength: 5, maxlength: 2}]",
		"no label":  "id: x/y\nfields: [{name: a, type: text}]",
	}
	for name, doc := range cases {
		if _, err := ParseFormDef([]byte(doc), name); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestValidateForm_OK(t *testing.T) {
	registerTestForm(t)
	v := validPost(t)
	v.Set("question", "  <b>why?</b>  ")
	v.Set("author", "kim")

	clean, files, errs := ValidateForm("test/ask", v, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if clean["question"] != "<b>why?</b>" {
		t.Fatalf("question = %q, want trimmed and unescaped", clean["question"])
	}
	if len(files) != 0 {
		t.Fatalf("files = %v, want none", files)
	}
}

func TestValidateForm_FieldErrors(t *testing.T) {
	registerTestForm(t)
	v := validPost(t)
	v.Set("question", strings.Repeat("가", 21))
	v.Set("author", "   ")

	_, _, errs := ValidateForm("test/ask", v, nil)
	got := map[string]bool{}
	for _, e := range errs {
		got[e.Name] = true
	}
	if !got["question"] || !got["author"] || len(errs) != 2 {
		t.Fatalf("errors = %+v", errs)
	}
}

func TestValidateForm_CSRFAndTiming(t *testing.T) {
	registerTestForm(t)

	v := validPost(t)
	v.Set("csrf_token", "forged")
	if _, _, errs := ValidateForm("test/ask", v, nil); len(errs) != 1 || errs[0].Name != "" {
		t.Fatalf("forged token: %+v", errs)
	}

	SetTiming(time.Minute, 30*time.Minute)
	defer SetTiming(0, 30*time.Minute)
	v = validPost(t)
	v.Set("question", "q")
	v.Set("author", "a")
	if _, _, errs := ValidateForm("test/ask", v, nil); len(errs) != 1 {
		t.Fatalf("too fast: %+v", errs)
	}
}

func TestHandleSubmit_Multipart(t *testing.T) {
	registerTestForm(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, vs := range validPost(t) {
		_ = mw.WriteField(k, vs[0])
	}
	_ = mw.WriteField("question", "q?")
	_ = mw.WriteField("author", "lee")
	fw, _ := mw.CreateFormFile("files", "a.txt")
	_, _ = fw.Write([]byte("hello"))
	fw, _ = mw.CreateFormFile("files", "b.txt")
	_, _ = fw.Write([]byte("world"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	sub, err := HandleSubmit("test/ask", req, 1<<20)
	if err != nil {
		t.Fatalf("HandleSubmit: %v", err)
	}
	if sub.Values["author"] != "lee" || len(sub.Files["files"]) != 2 {
		t.Fatalf("submission = %+v", sub)
	}
}

func TestHandleSubmit_ValidationError(t *testing.T) {
	registerTestForm(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validPost(t).Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := HandleSubmit("test/ask", req, 1<<20)
	if !IsValidationError(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(FieldErrors(err)) != 2 {
		t.Fatalf("field errors = %+v", FieldErrors(err))
	}
}

func TestRenderForm(t *testing.T) {
	registerTestForm(t)
	out, err := RenderForm("test/ask", RenderOptions{
		Prefill: map[string]string{"author": `"kim"`},
		Errors:  []ErrorField{{Name: "question", Message: "This field is required."}},
	})
	if err != nil {
		t.Fatalf("RenderForm: %v", err)
	}
	s := string(out)
	for _, want := range []string{
		`name="csrf_token"`,
		`name="render_ts"`,
		`type="file"`,
		` multiple`,
		`value="&#34;kim&#34;"`,
		`This field is required.`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("rendered form missing %q", want)
		}
	}
}

func TestCSRF_RoundTrip(t *testing.T) {
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if !VerifyToken(tok) {
		t.Fatal("fresh token rejected")
	}
	b := []byte(tok)
	if b[40] == 'A' {
		b[40] = 'B'
	} else {
		b[40] = 'A'
	}
	if VerifyToken(string(b)) {
		t.Fatal("tampered token accepted")
	}
}
