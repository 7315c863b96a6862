package constants

// Error messages used in API responses.
// These are the human-readable messages returned in the "message" field.
const (
	// Common messages
	MsgInvalidRequestBody = "Invalid request body"
	MsgInternalError      = "An internal error occurred"

	// Shortener-specific messages
	MsgInvalidURL    = "Invalid URL (must be http or https, max 2048 characters)"
	MsgInvalidPolicy = "Invalid access policy"
	MsgInvalidWallet = "Invalid wallet address"
	MsgLinkNotFound  = "Link not found"
	MsgUnsafeURL     = "URL was flagged as unsafe"
	MsgExhausted     = "Failed to generate a unique short code. Please try again."

	// Gate messages
	MsgGateDenied         = "Insufficient balance to unlock this link"
	MsgVerificationFailed = "Failed to verify balance on-chain"
)
