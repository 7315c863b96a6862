package safety

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/config"
)

func newTestChecker(endpoint, apiKey string) *Checker {
	return NewChecker(config.SafetyConfig{
		APIKey:   apiKey,
		Endpoint: endpoint,
		ClientID: "onyx-test",
		Timeout:  2 * time.Second,
	}, "test")
}

func TestIsUnsafe_FlagsMatchedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if r.URL.Query().Get("key") != "k123" {
			t.Errorf("got key %q, want k123", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matches":[{"threatType":"MALWARE"}]}`))
	}))
	defer srv.Close()

	c := newTestChecker(srv.URL, "k123")

	unsafe, err := c.IsUnsafe(context.Background(), "https://evil.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !unsafe {
		t.Error("expected URL to be flagged unsafe")
	}
}

func TestIsUnsafe_CleanURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestChecker(srv.URL, "k123")

	unsafe, err := c.IsUnsafe(context.Background(), "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if unsafe {
		t.Error("expected clean URL to pass")
	}
}

func TestIsUnsafe_NoAPIKeySkipsLookup(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := newTestChecker(srv.URL, "")

	unsafe, err := c.IsUnsafe(context.Background(), "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if unsafe {
		t.Error("expected pass-through with no API key")
	}
	if called {
		t.Error("expected no lookup request without an API key")
	}
}

func TestIsUnsafe_UnreachableBackendFailsOpen(t *testing.T) {
	// Point at a server that is already closed.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c := newTestChecker(endpoint, "k123")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	unsafe, err := c.IsUnsafe(ctx, "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if unsafe {
		t.Error("expected fail-open (safe) when backend is unreachable")
	}
}

func TestIsUnsafe_MalformedResponseFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := newTestChecker(srv.URL, "k123")

	unsafe, err := c.IsUnsafe(context.Background(), "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if unsafe {
		t.Error("expected fail-open (safe) on malformed response")
	}
}
