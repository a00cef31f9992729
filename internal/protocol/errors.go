// Package protocol defines the wire error taxonomy for the AgentPI
// connect flow. Every rejection a handler can produce is an *Error
// carrying a stable code, an HTTP status, and optional structured
// detail; httpx.WriteAPIError translates it exactly once at the
// handler boundary.
package protocol

import "fmt"

// Stable error codes. Conformance clients match on these.
const (
	CodeUnauthorized          = "unauthorized"
	CodeInvalidGrant          = "invalid_grant"
	CodeScopesNotAllowed      = "scopes_not_allowed"
	CodeMissingIdempotencyKey = "missing_idempotency_key"
	CodeIdempotencyConflict   = "idempotency_conflict"
	CodeBadRequest            = "bad_request"
	CodeForbidden             = "forbidden"
	CodeInternal              = "internal_error"
)

// Verification reason codes reported under detail.reason for
// invalid_grant errors.
const (
	ReasonExpired           = "expired"
	ReasonAudMismatch       = "aud_mismatch"
	ReasonIssMismatch       = "iss_mismatch"
	ReasonBadSignature      = "bad_signature"
	ReasonClaimValidation   = "claim_validation"
	ReasonVerificationError = "verification_error"
	ReasonMissingClaim      = "missing_claim"
)

// Error is a tagged protocol failure.
type Error struct {
	Status  int
	Code    string
	Message string
	Detail  map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Body is the wire shape of every error response.
type Body struct {
	Error BodyError `json:"error"`
}

type BodyError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// WireBody returns the JSON-serializable response for e.
func (e *Error) WireBody() Body {
	return Body{Error: BodyError{Code: e.Code, Message: e.Message, Detail: e.Detail}}
}

func Unauthorized(msg string) *Error {
	return &Error{Status: 401, Code: CodeUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Status: 403, Code: CodeForbidden, Message: msg}
}

func BadRequest(msg string, detail map[string]any) *Error {
	return &Error{Status: 400, Code: CodeBadRequest, Message: msg, Detail: detail}
}

func InvalidGrant(msg string, detail map[string]any) *Error {
	if msg == "" {
		msg = "Invalid or expired connect grant"
	}
	return &Error{Status: 401, Code: CodeInvalidGrant, Message: msg, Detail: detail}
}

func ScopesNotAllowed(rejected, allowed []string) *Error {
	return &Error{
		Status:  403,
		Code:    CodeScopesNotAllowed,
		Message: "Requested scopes exceed tool maximum",
		Detail:  map[string]any{"rejected": rejected, "allowed": allowed},
	}
}

func MissingIdempotencyKey(header string) *Error {
	return &Error{
		Status:  400,
		Code:    CodeMissingIdempotencyKey,
		Message: fmt.Sprintf("Header %s is required", header),
	}
}

func IdempotencyConflict() *Error {
	return &Error{
		Status:  409,
		Code:    CodeIdempotencyConflict,
		Message: "Idempotency key reused with different inputs",
	}
}

func Replay() *Error {
	return &Error{
		Status:  401,
		Code:    CodeInvalidGrant,
		Message: "Connect grant has already been used (replay)",
	}
}

func Internal() *Error {
	return &Error{Status: 500, Code: CodeInternal, Message: "An unexpected error occurred"}
}
