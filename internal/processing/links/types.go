package links

import (
	"math/big"
	"regexp"
	"strings"
	"time"
)

// PolicyType tags the access policy variant.
type PolicyType string

const (
	PolicyToken PolicyType = "token"
	PolicyNFT   PolicyType = "nft"
)

var hexAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// AccessPolicy is the on-chain requirement a holder must satisfy before a
// gated link reveals its destination. MinBalance is a human-readable decimal
// string; for token policies it is scaled by the token's decimals at
// verification time, for nft policies it is an ownership count.
type AccessPolicy struct {
	Type            PolicyType `bson:"type" json:"type"`
	ContractAddress string     `bson:"contractAddress" json:"contractAddress"`
	MinBalance      string     `bson:"minBalance" json:"minBalance"`
	ChainID         int64      `bson:"chainId,omitempty" json:"chainId,omitempty"`
}

// Empty reports whether the policy imposes no requirement. A link with an
// empty policy resolves directly to its destination.
func (p *AccessPolicy) Empty() bool {
	return p == nil || p.Type == ""
}

// Validate checks the tagged variant at the creation boundary so the policy
// is never trusted as an opaque blob internally.
func (p *AccessPolicy) Validate() error {
	if p.Empty() {
		return nil
	}
	if p.Type != PolicyToken && p.Type != PolicyNFT {
		return ErrInvalidPolicy
	}
	if !hexAddressPattern.MatchString(strings.TrimSpace(p.ContractAddress)) {
		return ErrInvalidPolicy
	}
	if _, err := p.MinBalanceInt(); err != nil {
		return ErrInvalidPolicy
	}
	return nil
}

// MinBalanceInt parses MinBalance as a non-negative integer. An empty string
// counts as zero, matching how absent thresholds behave on the unlock path.
func (p *AccessPolicy) MinBalanceInt() (*big.Int, error) {
	raw := strings.TrimSpace(p.MinBalance)
	if raw == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, ErrInvalidPolicy
	}
	return n, nil
}

// Link is a stored short link. ID and ShortCode are immutable once assigned;
// ClickCount is mutated only through the storage layer's atomic increment.
type Link struct {
	ID            string
	ShortCode     string
	OriginalURL   string
	Title         string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	IsActive      bool
	ClickCount    int64
	CreatorWallet string
	AccessPolicy  *AccessPolicy
}

// Gated reports whether resolving this link must divert to the unlock
// challenge instead of the destination.
func (l *Link) Gated() bool {
	return !l.AccessPolicy.Empty()
}

// ClickEvent is one redirect attempt, recorded append-only. Referrer and
// UserAgent come straight from the client and are never used for
// authorization decisions.
type ClickEvent struct {
	EventID   string
	URLID     string
	Referrer  string
	UserAgent string
	ClickedAt time.Time
}

// CreateLinkInput carries everything the creation pipeline needs, including
// the caller identity material used for quota admission.
type CreateLinkInput struct {
	URL           string
	Title         string
	ExpiresIn     int // days from now; wins over ExpiresAt when > 0
	ExpiresAt     *time.Time
	CreatorWallet string
	Policy        *AccessPolicy
	ClientIP      string
}

// ClickMeta is the request context attached to a redirect attempt.
type ClickMeta struct {
	Referrer  string
	UserAgent string
}

// DecisionState enumerates the terminal states of the redirect resolver.
type DecisionState int

const (
	// DecisionNotFound: the code maps to nothing.
	DecisionNotFound DecisionState = iota
	// DecisionExpired: the link exists but is gone forever (expired or
	// deactivated; both collapse to one caller-visible outcome).
	DecisionExpired
	// DecisionGated: the caller must pass the unlock challenge first.
	DecisionGated
	// DecisionOpen: redirect straight to OriginalURL.
	DecisionOpen
)

func (s DecisionState) String() string {
	switch s {
	case DecisionNotFound:
		return "not_found"
	case DecisionExpired:
		return "expired"
	case DecisionGated:
		return "gated"
	case DecisionOpen:
		return "open"
	default:
		return "unknown"
	}
}

// RedirectDecision is the resolver's verdict for one redirect attempt.
// OriginalURL is populated only for DecisionOpen; gated links never expose
// their destination through this path.
type RedirectDecision struct {
	State       DecisionState
	ShortCode   string
	Reason      string // query-string hint: "not_found", "inactive", ""
	OriginalURL string
}

// Admission is the rate limiter's verdict for one creation attempt.
// Remaining is the binding constraint across windows; -1 means the quota
// backend was unavailable and the request was admitted fail-open.
type Admission struct {
	Allowed   bool
	Scope     string // exhausted window on denial ("daily", "minute"); "none" when allowed
	Remaining int64
	Limit     int64
	ResetAt   time.Time
}
