// Package apperr holds the error kinds the payment core reports to its callers.
//
// Every failure leaving the core is one of these types so a caller can tell
// "the gateway said no" apart from "the gateway could not be reached" with
// errors.As instead of string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindValidation       Kind = "validation"
	KindGatewayRejection Kind = "gateway_rejection"
	KindTransport        Kind = "transport"
	KindPersistence      Kind = "persistence"
	KindTenantNotFound   Kind = "tenant_not_found"
	KindAuthentication   Kind = "authentication"
)

// ErrAmountMismatch is wrapped by a ValidationError when the gateway reports a
// different amount than the one pinned locally.
var ErrAmountMismatch = errors.New("amount mismatch")

type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// GatewayRejection is a well-formed gateway response whose code is non-zero.
type GatewayRejection struct {
	Op      string
	Code    int
	Message string
}

func (e *GatewayRejection) Error() string {
	return fmt.Sprintf("%s: gateway rejected request (code=%d): %s", e.Op, e.Code, e.Message)
}

// TransportError covers network failures, timeouts and bodies that are not a
// gateway envelope.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence error: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type TenantNotFoundError struct {
	SiteID string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("tenant %q not found or inactive", e.SiteID)
}

// AuthenticationError wraps the rejection or transport failure of a
// credential exchange.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("gateway authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// KindOf reports the outermost kind found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		validation  *ValidationError
		auth        *AuthenticationError
		rejection   *GatewayRejection
		transport   *TransportError
		persistence *PersistenceError
		tenant      *TenantNotFoundError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &tenant):
		return KindTenantNotFound
	case errors.As(err, &auth):
		return KindAuthentication
	case errors.As(err, &rejection):
		return KindGatewayRejection
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &persistence):
		return KindPersistence
	}
	return KindUnknown
}
