package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func TestSecurity_HeadersSent(t *testing.T) {
	rec := httptest.NewRecorder()
	Security(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, h := range []string{
		"Strict-Transport-Security",
		"Content-Security-Policy",
		"X-Frame-Options",
		"X-Content-Type-Options",
		"Referrer-Policy",
		"Permissions-Policy",
	} {
		if rec.Result().Header.Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

func TestForceHTTPS(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		proto  string
		status int
	}{
		{"plain http redirects", "http://qna.example.com/records?q=a", "", http.StatusPermanentRedirect},
		{"proxy https passes", "http://qna.example.com/", "https", http.StatusOK},
		{"localhost passes", "http://localhost:8080/", "", http.StatusOK},
		{"healthz passes", "http://qna.example.com/healthz", "", http.StatusOK},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, c.url, nil)
		if c.proto != "" {
			r.Header.Set("X-Forwarded-Proto", c.proto)
		}
		rec := httptest.NewRecorder()
		ForceHTTPS(ok).ServeHTTP(rec, r)
		if rec.Code != c.status {
			t.Errorf("%s: status = %d, want %d", c.name, rec.Code, c.status)
		}
		if c.status == http.StatusPermanentRedirect {
			if loc := rec.Header().Get("Location"); loc != "https://qna.example.com/records?q=a" {
				t.Errorf("%s: Location = %q", c.name, loc)
			}
		}
	}
}
