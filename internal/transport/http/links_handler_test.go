package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/config"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
)

type memoryRepo struct {
	byCode map[string]*links.Link
	err    error
}

func newMemoryRepo(stored ...*links.Link) *memoryRepo {
	r := &memoryRepo{byCode: make(map[string]*links.Link)}
	for _, l := range stored {
		r.byCode[l.ShortCode] = l
	}
	return r
}

func (r *memoryRepo) Insert(_ context.Context, link *links.Link) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.byCode[link.ShortCode]; ok {
		return links.ErrCodeTaken
	}
	link.ID = "id-" + link.ShortCode
	r.byCode[link.ShortCode] = link
	return nil
}

func (r *memoryRepo) FindByCode(_ context.Context, code string) (*links.Link, error) {
	if r.err != nil {
		return nil, r.err
	}
	link, ok := r.byCode[code]
	if !ok {
		return nil, links.ErrNotFound
	}
	return link, nil
}

func (r *memoryRepo) IncClickCount(context.Context, string) error { return nil }

type stubGenerator struct{ codes []string }

func (g *stubGenerator) Generate(int) (string, error) {
	if len(g.codes) == 0 {
		return "fallback", nil
	}
	code := g.codes[0]
	g.codes = g.codes[1:]
	return code, nil
}

type stubAdmitter struct{ adm links.Admission }

func (a *stubAdmitter) Admit(context.Context, string) links.Admission { return a.adm }

type stubVerifier struct{ err error }

func (v *stubVerifier) Verify(context.Context, links.AccessPolicy, string) error { return v.err }

type stubRecorder struct{ calls []string }

func (r *stubRecorder) Record(urlID, code, _, _ string) {
	r.calls = append(r.calls, code)
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "onyx-shortener-test"},
		Shortener: config.ShortenerConfig{
			BaseURL:        "https://onyx.test",
			CodeLength:     7,
			RedirectStatus: http.StatusFound,
			ExpiredPath:    "/expired",
			UnlockPath:     "/unlock",
			ErrorPath:      "/?error=server_error",
		},
	}
}

func newTestRouter(svc *links.Service) http.Handler {
	return NewRouterWithOptions(testConfig(), svc, RouterOptions{})
}

const (
	testWallet   = "0x1111111111111111111111111111111111112222"
	testContract = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABBBBBB"
)

func gatedLink(code string) *links.Link {
	return &links.Link{
		ID:          "id-" + code,
		ShortCode:   code,
		OriginalURL: "https://example.com/secret",
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		AccessPolicy: &links.AccessPolicy{
			Type:            links.PolicyToken,
			ContractAddress: testContract,
			MinBalance:      "100",
		},
	}
}

func openLink(code string) *links.Link {
	return &links.Link{
		ID:          "id-" + code,
		ShortCode:   code,
		OriginalURL: "https://example.com/page",
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		admission  *links.Admission
		wantStatus int
		wantError  string
	}{
		{
			name:       "happy path",
			body:       `{"url":"https://example.com/page"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid url scheme",
			body:       `{"url":"ftp://example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "INVALID_URL",
		},
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantError:  "INVALID_REQUEST",
		},
		{
			name:       "bad wallet shape",
			body:       `{"url":"https://example.com","walletAddress":"0x123"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "INVALID_WALLET",
		},
		{
			name:       "bad policy contract",
			body:       `{"url":"https://example.com","accessPolicy":{"type":"token","contractAddress":"nope","minBalance":"1"}}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "INVALID_POLICY",
		},
		{
			name:       "unknown policy type",
			body:       `{"url":"https://example.com","accessPolicy":{"type":"dao","contractAddress":"` + testContract + `","minBalance":"1"}}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "INVALID_POLICY",
		},
		{
			name:       "quota exceeded",
			body:       `{"url":"https://example.com/page"}`,
			admission:  &links.Admission{Allowed: false, Scope: "daily", Limit: 5, ResetAt: time.Unix(1_750_000_000, 0)},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "RATE_LIMITED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var admitter links.Admitter
			if tt.admission != nil {
				admitter = &stubAdmitter{adm: *tt.admission}
			}
			svc := links.NewService(newMemoryRepo(), &stubGenerator{codes: []string{"abc1234"}}, admitter, nil, nil, nil, 7, 0)
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantError != "" && !strings.Contains(rec.Body.String(), tt.wantError) {
				t.Errorf("body %s missing error code %s", rec.Body.String(), tt.wantError)
			}
		})
	}
}

func TestCreate_ResponseShape(t *testing.T) {
	svc := links.NewService(newMemoryRepo(), &stubGenerator{codes: []string{"abc1234"}},
		&stubAdmitter{adm: links.Admission{Allowed: true, Scope: "daily", Remaining: 4, Limit: 5, ResetAt: time.Unix(1_750_000_000, 0)}},
		nil, nil, nil, 7, 0)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(`{"url":"https://example.com/page#frag"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.Bytes()

	var envelope struct {
		Success bool               `json:"success"`
		Code    string             `json:"code"`
		Data    createLinkResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	var raw struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("decode raw response: %v", err)
	}
	for _, key := range []string{"id", "shortCode", "originalUrl", "shortUrl"} {
		if _, ok := raw.Data[key]; !ok {
			t.Errorf("data.%s missing from payload", key)
		}
	}
	if !envelope.Success || envelope.Code != "LINK_CREATED" {
		t.Errorf("envelope = %+v", envelope)
	}
	if envelope.Data.ID != "id-abc1234" {
		t.Errorf("id = %q", envelope.Data.ID)
	}
	if envelope.Data.ShortCode != "abc1234" {
		t.Errorf("shortCode = %q", envelope.Data.ShortCode)
	}
	if envelope.Data.ShortURL != "https://onyx.test/abc1234" {
		t.Errorf("shortUrl = %q", envelope.Data.ShortURL)
	}
	if envelope.Data.OriginalURL != "https://example.com/page#frag" {
		t.Errorf("originalUrl = %q, destination must round-trip verbatim", envelope.Data.OriginalURL)
	}
	if envelope.Data.Quota == nil || envelope.Data.Quota.Remaining != 4 || envelope.Data.Quota.Limit != 5 {
		t.Errorf("quota = %+v", envelope.Data.Quota)
	}
}

func TestRedirect(t *testing.T) {
	expired := time.Now().UTC().Add(-time.Hour)
	expiredLink := openLink("expired1")
	expiredLink.ExpiresAt = &expired
	inactiveLink := openLink("dead1234")
	inactiveLink.IsActive = false

	repo := newMemoryRepo(openLink("abc1234"), gatedLink("gated123"), expiredLink, inactiveLink)

	tests := []struct {
		name         string
		path         string
		wantStatus   int
		wantLocation string
	}{
		{"open link", "/abc1234", http.StatusFound, "https://example.com/page"},
		{"gated link diverts to unlock", "/gated123", http.StatusFound, "/unlock/gated123"},
		{"unknown code", "/nope9999", http.StatusFound, "/expired?code=nope9999&reason=not_found"},
		{"expired link", "/expired1", http.StatusFound, "/expired?code=expired1"},
		{"inactive link", "/dead1234", http.StatusFound, "/expired?code=dead1234&reason=inactive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &stubRecorder{}
			svc := links.NewService(repo, &stubGenerator{}, nil, nil, nil, recorder, 7, 0)
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if loc := rec.Header().Get("Location"); loc != tt.wantLocation {
				t.Errorf("location = %q, want %q", loc, tt.wantLocation)
			}
		})
	}
}

func TestRedirect_StorageFaultGoesToErrorPage(t *testing.T) {
	repo := newMemoryRepo()
	repo.err = context.DeadlineExceeded
	svc := links.NewService(repo, &stubGenerator{}, nil, nil, nil, nil, 7, 0)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/abc1234", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/?error=server_error" {
		t.Errorf("location = %q", loc)
	}
}

func TestRedirectPost_Returns204(t *testing.T) {
	svc := links.NewService(newMemoryRepo(openLink("abc1234")), &stubGenerator{}, nil, nil, nil, nil, 7, 0)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/abc1234", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestUnlock(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		verifierErr error
		wantStatus  int
		wantError   string
	}{
		{
			name:       "gate passed returns destination",
			body:       `{"shortCode":"gated123","walletAddress":"` + testWallet + `"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:        "gate denied",
			body:        `{"shortCode":"gated123","walletAddress":"` + testWallet + `"}`,
			verifierErr: links.ErrGateDenied,
			wantStatus:  http.StatusForbidden,
			wantError:   "GATE_DENIED",
		},
		{
			name:        "verification fault",
			body:        `{"shortCode":"gated123","walletAddress":"` + testWallet + `"}`,
			verifierErr: links.ErrVerification,
			wantStatus:  http.StatusInternalServerError,
			wantError:   "VERIFICATION_FAILED",
		},
		{
			name:       "unknown code",
			body:       `{"shortCode":"nope9999","walletAddress":"` + testWallet + `"}`,
			wantStatus: http.StatusNotFound,
			wantError:  "LINK_NOT_FOUND",
		},
		{
			name:       "bad wallet",
			body:       `{"shortCode":"gated123","walletAddress":"not-an-address"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "INVALID_WALLET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepo(gatedLink("gated123"))
			svc := links.NewService(repo, &stubGenerator{}, nil, nil, &stubVerifier{err: tt.verifierErr}, nil, 7, 0)
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/unlock", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantError != "" && !strings.Contains(rec.Body.String(), tt.wantError) {
				t.Errorf("body %s missing error code %s", rec.Body.String(), tt.wantError)
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(rec.Body.String(), "https://example.com/secret") {
				t.Errorf("body %s missing destination", rec.Body.String())
			}
		})
	}
}

func TestDetails_NeverLeaksDestination(t *testing.T) {
	repo := newMemoryRepo(gatedLink("gated123"))
	svc := links.NewService(repo, &stubGenerator{}, nil, nil, nil, nil, 7, 0)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/link-details?slug=gated123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if strings.Contains(body, "example.com/secret") {
		t.Fatal("details response leaked the destination URL")
	}
	if !strings.Contains(body, `"gated":true`) {
		t.Errorf("body %s missing gated flag", body)
	}
	if !strings.Contains(body, testContract) {
		t.Errorf("body %s missing policy contract", body)
	}
}

func TestDetails_MissingSlug(t *testing.T) {
	svc := links.NewService(newMemoryRepo(), &stubGenerator{}, nil, nil, nil, nil, 7, 0)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/link-details", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
