package services

import "fmt"

// ErrorKind classifies a service error for the transport layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindValidation
	KindNotFound
	KindConflict
	KindGateway
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a failure the caller is allowed to see.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and message so wrapped copies of a sentinel compare
// equal to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == e.Message
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Fields: e.Fields, Err: cause}
}

var (
	ErrInvalidMerchantKey = &Error{Kind: KindUnauthorized, Message: "invalid merchant API key"}

	ErrMissingIdempotencyKey = &Error{Kind: KindValidation, Message: "Idempotency-Key header is required"}
	ErrMalformedWebhook      = &Error{Kind: KindValidation, Message: "malformed webhook payload"}

	ErrTransactionNotFound = &Error{Kind: KindNotFound, Message: "transaction not found"}

	ErrDuplicateMerchantRef = &Error{Kind: KindConflict, Message: "merchant reference already used"}
	ErrAmbiguousReference   = &Error{Kind: KindConflict, Message: "webhook reference matches more than one merchant"}
	ErrIdempotencyKeyFailed = &Error{Kind: KindConflict, Message: "transaction for this Idempotency-Key failed; retry with a new key"}
	ErrIdempotencyKeyReused = &Error{Kind: KindConflict, Message: "Idempotency-Key already used by another merchant"}

	ErrGatewayFailure = &Error{Kind: KindGateway, Message: "payment gateway unavailable"}

	ErrRateLimited = &Error{Kind: KindRateLimited, Message: "Rate limit exceeded. Try again later."}
)

// ValidationError reports per-field problems.
func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}
