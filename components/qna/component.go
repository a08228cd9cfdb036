// components/qna/component.go
//
// Q&A component – registration page, record browser, edit and delete
// flows, and the similar-question JSON helper.
//
// Context
// -------
// Forms, templates, and static assets are embedded so the binary is the
// whole deployment.  Init registers the YAML form definitions and builds
// the view engine; Routes wires the HTTP surface onto the shared
// *qna.Service and the pending-action *session.Store.
package qna

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/mqa/internal/component"
	"github.com/yanizio/mqa/internal/form"
	service "github.com/yanizio/mqa/internal/qna"
	"github.com/yanizio/mqa/internal/session"
	"github.com/yanizio/mqa/internal/view"
)

//go:embed forms/*.yaml templates/*.html static/*
var assets embed.FS

const (
	formRegister = "qna/register"
	formEdit     = "qna/edit"

	defaultMaxBody = 32 << 20
)

// compile-time assertions
var (
	_ component.Component   = (*Comp)(nil)
	_ component.Initializer = (*Comp)(nil)
)

// Comp implements component.Component.
type Comp struct {
	svc     *service.Service
	sess    *session.Store
	views   *view.Engine
	maxBody int64
}

func init() { component.Register(&Comp{}) }

func (c *Comp) Name() string { return "qna" }

// Init loads the embedded forms and templates.
func (c *Comp) Init(d component.Deps) error {
	if d.Service == nil || d.Sessions == nil {
		return errors.New("qna: service and session store are required")
	}
	if err := form.RegisterFS(assets, "forms"); err != nil {
		return err
	}

	c.svc = d.Service
	c.sess = d.Sessions
	c.maxBody = d.MaxUploadBytes
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBody
	}
	c.views = view.New(assets, "templates", template.FuncMap{"csrf": csrfToken})
	return nil
}

func (c *Comp) Routes() chi.Router {
	r := chi.NewRouter()

	// Pages
	r.Get("/", c.index)
	r.Post("/", c.register)
	r.Get("/records", c.records)
	r.Post("/records/delete", c.deleteMany)
	r.Get("/records/{seq}/edit", c.editForm)
	r.Post("/records/{seq}", c.saveEdit)
	r.Get("/records/{seq}/delete", c.confirmDelete)
	r.Post("/records/{seq}/delete", c.deleteOne)
	r.Post("/cancel", c.cancel)

	// JSON
	r.Get("/api/similar", c.similar)

	// Assets
	static, _ := fs.Sub(assets, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	return r
}

// csrfToken feeds the hidden token of the small confirm/cancel forms.
func csrfToken() string {
	tok, err := form.GenerateToken()
	if err != nil {
		return ""
	}
	return tok
}
