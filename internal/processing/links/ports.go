package links

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("link not found")
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidPolicy = errors.New("invalid access policy")
	ErrInvalidWallet = errors.New("invalid wallet address")
	ErrCodeTaken     = errors.New("short code taken")
	ErrCodeExhausted = errors.New("short code allocation exhausted")
	ErrUnsafeURL     = errors.New("url flagged as unsafe")
	ErrRateLimited   = errors.New("creation rate limit exceeded")

	// ErrGateDenied is a definitive policy outcome: the holder does not meet
	// the threshold. ErrVerification is a transient on-chain read failure;
	// callers may retry. The two must never be conflated.
	ErrGateDenied   = errors.New("access policy requirement not met")
	ErrVerification = errors.New("on-chain verification failed")
)

type LinkRepository interface {
	// Insert persists a new link, returning ErrCodeTaken when the short code
	// collides with an existing one. The unique index is the sole source of
	// truth for collision detection.
	Insert(ctx context.Context, link *Link) error
	FindByCode(ctx context.Context, code string) (*Link, error)
	// IncClickCount must be an atomic storage-level increment, never a
	// read-modify-write in application memory.
	IncClickCount(ctx context.Context, id string) error
}

type CodeGenerator interface {
	Generate(length int) (string, error)
}

// SafetyChecker screens destination URLs against threat intelligence.
// Implementations fail open: an unreachable backend reports the URL as safe.
type SafetyChecker interface {
	IsUnsafe(ctx context.Context, url string) (bool, error)
}

// Admitter decides whether an identity may create another link right now.
// Implementations fail open when their backing store is unavailable.
type Admitter interface {
	Admit(ctx context.Context, identity string) Admission
}

// GateVerifier checks a holder address against an access policy. It returns
// nil on pass, ErrGateDenied on a definitive failure, and ErrVerification
// (wrapped) when the on-chain read itself failed.
type GateVerifier interface {
	Verify(ctx context.Context, policy AccessPolicy, holder string) error
}

// ClickRecorder schedules best-effort telemetry for a redirect attempt. It
// must return immediately and never surface failures to the caller.
type ClickRecorder interface {
	Record(urlID, code, referrer, userAgent string)
}
