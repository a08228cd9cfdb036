package drive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestDetectMIME(t *testing.T) {
	if got := DetectMIME(tinyPNG, "application/octet-stream"); got != "image/png" {
		t.Fatalf("sniffed = %q, want image/png", got)
	}
	if got := DetectMIME(tinyPNG, ""); got != "image/png" {
		t.Fatalf("sniffed = %q, want image/png", got)
	}
	if got := DetectMIME([]byte("hello"), "text/plain; charset=utf-8"); got != "text/plain" {
		t.Fatalf("declared = %q, want text/plain", got)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] || len(id) != 26 || id != strings.ToLower(id) {
			t.Fatalf("bad id %q", id)
		}
		seen[id] = true
	}
}

func TestObjectKey(t *testing.T) {
	if got := objectKey("abc", `C:\Users\me\guide.pdf`); got != "attachments/abc/guide.pdf" {
		t.Fatalf("objectKey = %q", got)
	}
	if got := objectKey("abc", ""); got != "attachments/abc/file" {
		t.Fatalf("objectKey = %q", got)
	}
}

func TestLocal_Upload(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "/files/")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	att, err := l.Upload(context.Background(), tinyPNG, "dot.png", "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !att.IsImage || att.MIME != "image/png" || att.Name != "dot.png" {
		t.Fatalf("unexpected attachment: %#v", att)
	}
	if !strings.HasPrefix(att.ViewURL, "/files/attachments/") {
		t.Fatalf("view url = %q", att.ViewURL)
	}

	key := strings.TrimPrefix(att.ViewURL, "/files/")
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil || len(b) != len(tinyPNG) {
		t.Fatalf("stored file: %v (len %d)", err, len(b))
	}

	if _, err := l.Upload(context.Background(), nil, "empty.txt", ""); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("empty upload err = %v", err)
	}
}

func TestLocal_HandlerSandboxesFiles(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	page, err := l.Upload(ctx, []byte("<script src=\"x.js\"></script>"), "evil.html", "text/html")
	if err != nil {
		t.Fatal(err)
	}
	img, err := l.Upload(ctx, tinyPNG, "dot.png", "")
	if err != nil {
		t.Fatal(err)
	}

	serve := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		l.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(url, "/files"), nil))
		return rec
	}

	rec := serve(page.ViewURL)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET html = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Fatalf("html Content-Disposition = %q, want attachment", cd)
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.HasPrefix(csp, "sandbox") {
		t.Fatalf("html CSP = %q, want sandbox", csp)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("nosniff missing")
	}

	rec = serve(img.ViewURL)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Disposition") != "" {
		t.Fatalf("png = %d, disposition %q; want inline", rec.Code, rec.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Security-Policy"), "sandbox") {
		t.Fatal("png CSP missing sandbox")
	}

	if rec := serve("/files/attachments/"); rec.Code != http.StatusNotFound {
		t.Fatalf("directory listing = %d, want 404", rec.Code)
	}
}
