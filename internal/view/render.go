// internal/view/render.go
//
// Central view engine: template lookup, func-map injection, and an LRU of
// parsed *template.Template* sets.
//
// Public helpers
// --------------
//   - Render         – write rendered HTML to an http.ResponseWriter.
//   - RenderToString – return template.HTML (fragments, tests).
//
// Layout
// ------
// Each component embeds its templates and hands the fs.FS to New.  A page
// named "records" is parsed as one set together with every shared file
// whose name starts with an underscore (“_layout.html”, “_flash.html”),
// so pages can {{ define "content" }} and reuse partials out-of-the-box.
//
// execName() chooses the template to execute:
//   – If the set defines "layout", we run that (the page filled its blocks).
//   – Else if it contains "<name>.html", we run that file.
//   – Else we fall back to "<name>" (root template defined via {{ define }}).
//
// Rendering is buffered, so a template error becomes a clean 500 instead
// of a half-written page.
//
// Style
// -----
// • Oxford commas, two spaces after periods.

package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/yanizio/mqa/internal/cache"
)

//
// engine
//

// Engine renders the templates of one component.
type Engine struct {
	fsys  fs.FS
	dir   string
	funcs template.FuncMap
	sets  *cache.LRU[string, *template.Template]
}

// New builds an engine over fsys/dir.  extra is merged over the built-in
// helpers.
func New(fsys fs.FS, dir string, extra template.FuncMap) *Engine {
	fm := template.FuncMap{
		"dict":    dict,
		"date":    formatDate,
		"percent": percent,
		"trim":    trimmed,
	}
	for k, v := range extra {
		fm[k] = v
	}
	return &Engine{
		fsys:  fsys,
		dir:   dir,
		funcs: fm,
		sets:  cache.New[string, *template.Template](64),
	}
}

//
// public helpers
//

// Render executes the named page and streams it to w with status code.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := e.execute(&buf, name, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderToString executes and returns HTML.  It mirrors Render, but writes
// to a buffer instead of w.
func (e *Engine) RenderToString(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := e.execute(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

//
// internal: load
//

func (e *Engine) execute(buf *bytes.Buffer, name string, data any) error {
	t, err := e.load(name)
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(buf, execName(t, name), data)
}

// load finds and (if necessary) parses the template set for name.
func (e *Engine) load(name string) (*template.Template, error) {
	if t, ok := e.sets.Get(name); ok {
		return t, nil
	}

	page := path.Join(e.dir, name+".html")
	if _, err := fs.Stat(e.fsys, page); err != nil {
		return nil, fmt.Errorf("view: template %q: %w", name, err)
	}

	shared, err := fs.Glob(e.fsys, path.Join(e.dir, "_*.html"))
	if err != nil {
		return nil, err
	}

	t, err := template.New(name).Funcs(e.funcs).ParseFS(e.fsys, append(shared, page)...)
	if err != nil {
		return nil, err
	}

	e.sets.Add(name, t)
	return t, nil
}

//
// helpers
//

// execName picks the template name to execute.
func execName(t *template.Template, name string) string {
	if t.Lookup("layout") != nil {
		return "layout"
	}
	if t.Lookup(name+".html") != nil {
		return name + ".html"
	}
	return name
}

// dict builds a map in templates: {{ dict "k" 1 "k2" "v" }}.
func dict(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		m[key] = kv[i+1]
	}
	return m
}

// formatDate renders a date as YYYY-MM-DD; the zero time renders empty.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// percent renders a ratio in [0, 1] as a whole percentage.
func percent(r float64) string {
	return fmt.Sprintf("%d%%", int(r*100+0.5))
}

// trimmed shortens s to n runes for table cells.
func trimmed(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
