// internal/session/session.go
//
// mqa – Pending-action sessions.
//
// Context
//   Edit and delete are two-step interactions: the user picks a record, then
//   either saves the edit form or confirms the deletion.  The "which record
//   is being acted on" state lives here, scoped to one browser session and
//   cleared on completion or cancellation.  At most one action is pending
//   per session.
//
//   The browser carries only a random id in the “mqa_session” cookie; the
//   pending action itself stays server-side in a bounded LRU, so an
//   abandoned session simply ages out.
//
// Style
//   Two-space sentence spacing, Oxford comma, terse inline notes.
//
//------------------------------------------------------------------------------

package session

import (
	"crypto/rand"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/yanizio/mqa/internal/cache"
)

// CookieName is the session cookie.
const CookieName = "mqa_session"

// PendingKind enumerates the two-step interactions.
type PendingKind int

const (
	PendingNone PendingKind = iota
	PendingEditing
	PendingConfirmDelete
)

func (k PendingKind) String() string {
	switch k {
	case PendingEditing:
		return "editing"
	case PendingConfirmDelete:
		return "confirm_delete"
	default:
		return "none"
	}
}

// Pending is the in-progress action of one session.
type Pending struct {
	Kind PendingKind
	Seq  int
}

// Matches reports whether p is kind k on record seq.
func (p Pending) Matches(k PendingKind, seq int) bool {
	return p.Kind == k && p.Seq == seq
}

// Store maps session ids to pending actions.
type Store struct {
	lru    *cache.LRU[string, Pending]
	secure bool
}

// NewStore keeps at most capacity sessions.  secure marks the cookie
// Secure, for deployments behind HTTPS.
func NewStore(capacity int, secure bool) *Store {
	return &Store{lru: cache.New[string, Pending](capacity), secure: secure}
}

// ID returns the request's session id, issuing a new cookie when absent.
func (s *Store) ID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := ulid.MustNew(ulid.Now(), rand.Reader).String()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Get returns the pending action; the zero Pending means none.
func (s *Store) Get(id string) Pending {
	p, _ := s.lru.Get(id)
	return p
}

// Set replaces the pending action.
func (s *Store) Set(id string, p Pending) {
	if p.Kind == PendingNone {
		s.lru.Remove(id)
		return
	}
	s.lru.Add(id, p)
}

// Clear drops the pending action.
func (s *Store) Clear(id string) { s.lru.Remove(id) }
