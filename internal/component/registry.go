// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web blank-imports the
// components it ships, calls InitAll once the shared services exist, and
// mounts every component’s Routes() at “/”.

package component

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/mqa/internal/qna"
	"github.com/yanizio/mqa/internal/session"
)

// Deps carries the process-wide services a component may use.
type Deps struct {
	Service        *qna.Service
	Sessions       *session.Store
	MaxUploadBytes int64 // total multipart body, 0 means 32 MiB
}

// Initializer is optional.  If a Component implements it, InitAll calls
// Init(deps) once before any route is mounted.
type Initializer interface {
	Init(Deps) error
}

// Component contract.
//
// Routes() should mount BOTH page and API endpoints, e.g:
//
//	r := chi.NewRouter()
//	r.Get("/records", listRecords)
//	r.Route("/api", func(api chi.Router) { ... })
//	return r
type Component interface {
	Name() string
	Routes() chi.Router
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component ordered by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// InitAll initialises every registered component that implements
// Initializer.  All failures are reported together.
func InitAll(d Deps) error {
	var errs []error
	for _, c := range All() {
		if in, ok := c.(Initializer); ok {
			if err := in.Init(d); err != nil {
				errs = append(errs, fmt.Errorf("component %s: %w", c.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Mount copies every component’s routes onto r.  Routes are re-registered
// one by one so several components can share the root path.
func Mount(r chi.Router) error {
	for _, c := range All() {
		err := chi.Walk(c.Routes(), func(method, route string, h http.Handler, mws ...func(http.Handler) http.Handler) error {
			r.With(mws...).Method(method, route, h)
			return nil
		})
		if err != nil {
			return fmt.Errorf("component %s: %w", c.Name(), err)
		}
	}
	return nil
}
