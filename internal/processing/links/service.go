package links

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// codeAttempts bounds the allocation retry loop. Collisions over the 62^7
// code space are birthday-rare; the bound only converts a near-impossible
// infinite loop into a reportable ErrCodeExhausted.
const codeAttempts = 3

type Service struct {
	linkRepo  LinkRepository
	generator CodeGenerator
	admitter  Admitter
	safety    SafetyChecker
	verifier  GateVerifier
	recorder  ClickRecorder

	codeLength        int
	defaultExpiryDays int
	now               func() time.Time
}

// NewService wires the creation and redirect pipelines. admitter, safety,
// verifier and recorder may be nil: admission and safety then pass everything
// through (fail open), telemetry is skipped, and unlock attempts report a
// verification failure.
func NewService(linkRepo LinkRepository, generator CodeGenerator, admitter Admitter, safety SafetyChecker, verifier GateVerifier, recorder ClickRecorder, codeLength, defaultExpiryDays int) *Service {
	if codeLength <= 0 {
		codeLength = 7
	}
	if defaultExpiryDays < 0 {
		defaultExpiryDays = 0
	}

	return &Service{
		linkRepo:          linkRepo,
		generator:         generator,
		admitter:          admitter,
		safety:            safety,
		verifier:          verifier,
		recorder:          recorder,
		codeLength:        codeLength,
		defaultExpiryDays: defaultExpiryDays,
		now:               time.Now,
	}
}

// QuotaIdentity builds the rate-limit key for a creation request. Wallet
// identities get the higher tier; anonymous requests are keyed by client IP.
func QuotaIdentity(wallet, clientIP string) string {
	wallet = strings.TrimSpace(wallet)
	if wallet != "" {
		return "wallet_" + strings.ToLower(wallet)
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "ip_" + clientIP
}

// CreateLink runs the creation pipeline: validate, admit, screen, allocate.
// The returned Admission is populated whenever admission ran, including on
// ErrRateLimited, so callers can report quota state either way.
func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput) (*Link, Admission, error) {
	adm := Admission{Allowed: true, Scope: "none", Remaining: -1}

	destURL, err := validateURL(in.URL)
	if err != nil {
		return nil, adm, ErrInvalidURL
	}

	wallet := strings.TrimSpace(in.CreatorWallet)
	if wallet != "" && !hexAddressPattern.MatchString(wallet) {
		return nil, adm, ErrInvalidWallet
	}

	if err := in.Policy.Validate(); err != nil {
		return nil, adm, err
	}

	if s.admitter != nil {
		adm = s.admitter.Admit(ctx, QuotaIdentity(wallet, in.ClientIP))
		if !adm.Allowed {
			return nil, adm, ErrRateLimited
		}
	}

	if s.safety != nil {
		// The checker fails open on its own errors; a hard error here still
		// must not block creation, so only a definitive flag rejects.
		unsafe, err := s.safety.IsUnsafe(ctx, destURL)
		if err == nil && unsafe {
			return nil, adm, ErrUnsafeURL
		}
	}

	link := &Link{
		OriginalURL:   destURL,
		Title:         strings.TrimSpace(in.Title),
		CreatedAt:     s.now().UTC(),
		ExpiresAt:     s.resolveExpiry(in),
		IsActive:      true,
		CreatorWallet: wallet,
	}
	if !in.Policy.Empty() {
		link.AccessPolicy = in.Policy
	}

	for range codeAttempts {
		code, err := s.generator.Generate(s.codeLength)
		if err != nil {
			return nil, adm, err
		}
		link.ShortCode = code

		if err := s.linkRepo.Insert(ctx, link); err != nil {
			if err == ErrCodeTaken {
				continue
			}
			return nil, adm, err
		}

		return link, adm, nil
	}

	return nil, adm, ErrCodeExhausted
}

// Resolve is the redirect decision state machine: a single pass through
// lookup, expiry, active, telemetry and gate checks. A non-nil error means
// the lookup itself failed; callers surface that as a generic error page and
// keep the cause in logs only.
func (s *Service) Resolve(ctx context.Context, code string, meta ClickMeta) (RedirectDecision, error) {
	decision := RedirectDecision{ShortCode: code}

	code = strings.TrimSpace(code)
	if code == "" {
		decision.State = DecisionNotFound
		decision.Reason = "not_found"
		return decision, nil
	}

	link, err := s.linkRepo.FindByCode(ctx, code)
	if err != nil {
		if err == ErrNotFound {
			decision.State = DecisionNotFound
			decision.Reason = "not_found"
			return decision, nil
		}
		return decision, err
	}

	if link.ExpiresAt != nil && s.now().UTC().After(link.ExpiresAt.UTC()) {
		decision.State = DecisionExpired
		return decision, nil
	}

	if !link.IsActive {
		decision.State = DecisionExpired
		decision.Reason = "inactive"
		return decision, nil
	}

	// The attempt itself is the trackable event, so gated links count too.
	// Dead links above deliberately do not, to keep click counts honest.
	if s.recorder != nil {
		s.recorder.Record(link.ID, link.ShortCode, meta.Referrer, meta.UserAgent)
	}

	if link.Gated() {
		decision.State = DecisionGated
		return decision, nil
	}

	decision.State = DecisionOpen
	decision.OriginalURL = link.OriginalURL
	return decision, nil
}

// Unlock verifies holder against the link's access policy and returns the
// destination on success. An empty policy passes through: the resolver should
// never send such links here, but the verifier must not assume that.
func (s *Service) Unlock(ctx context.Context, code, holder string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrNotFound
	}
	if !hexAddressPattern.MatchString(strings.TrimSpace(holder)) {
		return "", ErrInvalidWallet
	}

	link, err := s.linkRepo.FindByCode(ctx, code)
	if err != nil {
		return "", err
	}

	if !link.Gated() {
		return link.OriginalURL, nil
	}

	if s.verifier == nil {
		return "", ErrVerification
	}
	if err := s.verifier.Verify(ctx, *link.AccessPolicy, strings.TrimSpace(holder)); err != nil {
		return "", err
	}

	return link.OriginalURL, nil
}

// Details returns the link for the public pre-unlock projection. Callers must
// expose only non-sensitive fields; OriginalURL stays behind the gate.
func (s *Service) Details(ctx context.Context, code string) (*Link, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}
	return s.linkRepo.FindByCode(ctx, code)
}

func (s *Service) resolveExpiry(in CreateLinkInput) *time.Time {
	if in.ExpiresIn > 0 {
		t := s.now().UTC().AddDate(0, 0, in.ExpiresIn)
		return &t
	}
	if in.ExpiresAt != nil {
		t := in.ExpiresAt.UTC()
		return &t
	}
	if s.defaultExpiryDays == 0 {
		return nil
	}
	t := s.now().UTC().AddDate(0, 0, s.defaultExpiryDays)
	return &t
}

// validateURL checks the destination and returns it as submitted, minus
// surrounding whitespace. The stored URL is never rewritten.
func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 2048 {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", ErrInvalidURL
	}

	return raw, nil
}
