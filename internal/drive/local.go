package drive

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yanizio/mqa/internal/record"
)

// Local writes attachments under a directory that the web server exposes
// at URLPrefix.
type Local struct {
	dir       string
	urlPrefix string
}

// NewLocal creates dir if needed.
func NewLocal(dir, urlPrefix string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("drive: local_path is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &Local{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// Dir returns the backing directory.
func (l *Local) Dir() string { return l.dir }

// filesCSP keeps an uploaded document from running script or pulling
// same-origin resources when opened directly.
const filesCSP = "sandbox; default-src 'none'; img-src 'self' data:; style-src 'unsafe-inline'"

// Handler serves the stored files.  Every response is sandboxed, only
// raster images are shown inline, and directory listings are refused.
func (l *Local) Handler() http.Handler {
	files := http.FileServer(http.Dir(l.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", filesCSP)
		if !inlineSafe(r.URL.Path) {
			h.Set("Content-Disposition", "attachment")
		}
		files.ServeHTTP(w, r)
	})
}

// inlineSafe reports whether the file type may render in the browser.
// SVG is excluded because it can carry script.
func inlineSafe(p string) bool {
	t := mime.TypeByExtension(strings.ToLower(path.Ext(p)))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return IsImage(t) && t != "image/svg+xml"
}

func (l *Local) Upload(_ context.Context, data []byte, filename, mime string) (record.Attachment, error) {
	if len(data) == 0 {
		return record.Attachment{}, ErrEmptyFile
	}
	mime = DetectMIME(data, mime)
	id := NewID()
	key := objectKey(id, filename)

	full := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return record.Attachment{}, fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return record.Attachment{}, fmt.Errorf("write %s: %w", key, err)
	}

	url := l.urlPrefix + "/" + key
	return record.Attachment{
		ID:       id,
		Name:     filename,
		MIME:     mime,
		ViewURL:  url,
		EmbedURL: url,
		IsImage:  IsImage(mime),
	}, nil
}
