package constants

// Error codes used in API responses.
// These are the machine-readable codes returned in the "error" field.
const (
	// Common error codes
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeRateLimited    = "RATE_LIMITED"

	// Shortener-specific codes
	CodeInvalidURL    = "INVALID_URL"
	CodeInvalidPolicy = "INVALID_POLICY"
	CodeInvalidWallet = "INVALID_WALLET"
	CodeLinkNotFound  = "LINK_NOT_FOUND"
	CodeUnsafeURL     = "UNSAFE_URL"
	CodeExhausted     = "CODE_EXHAUSTED"

	// Gate codes
	CodeGateDenied         = "GATE_DENIED"
	CodeVerificationFailed = "VERIFICATION_FAILED"

	// Success codes
	CodeLinkCreated = "LINK_CREATED"
	CodeLinkFound   = "LINK_FOUND"
	CodeGatePassed  = "GATE_PASSED"
)
