package application

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Kind is the closed set of failure kinds reported by application operations.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindDependency      Kind = "dependency"
	KindInternal        Kind = "internal"
)

// Text codes carried by errors so callers can tell conflict variants apart.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeForbidden         = "FORBIDDEN"
	CodePremiumRequired   = "PREMIUM_REQUIRED"
	CodeNotFound          = "NOT_FOUND"
	CodeDependencyFailure = "DEPENDENCY_FAILURE"
	CodeInternal          = "INTERNAL"

	CodeListingSold            = "LISTING_SOLD"
	CodeListingDeleted         = "LISTING_DELETED"
	CodeListingNotActive       = "LISTING_NOT_ACTIVE"
	CodeListingModified        = "LISTING_MODIFIED"
	CodeListingLimitReached    = "LISTING_LIMIT_REACHED"
	CodeCredentialNotSubmitted = "CREDENTIAL_NOT_SUBMITTED"
	CodeCredentialVerified     = "CREDENTIAL_ALREADY_VERIFIED"
	CodeCredentialNotVerified  = "CREDENTIAL_NOT_VERIFIED"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeMessageNotFailed       = "MESSAGE_NOT_FAILED"
)

// KindOf classifies err. Errors that did not originate in this package are internal.
func KindOf(err error) Kind {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return KindInternal
	}

	switch rich.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return KindValidation
	case goerrors.CategoryAuth:
		return KindUnauthenticated
	case goerrors.CategoryAuthz:
		return KindAuthorization
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryConflict:
		return KindConflict
	case goerrors.CategoryExternal:
		return KindDependency
	default:
		return KindInternal
	}
}

// TextCodeOf returns the text code attached to err, or CodeInternal.
func TextCodeOf(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return rich.TextCode
	}
	return CodeInternal
}

func validationError(message string, fields ...goerrors.FieldError) error {
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeValidationFailed)
}

func fieldError(field, message string) goerrors.FieldError {
	return goerrors.FieldError{Field: field, Message: message}
}

// NewUnauthenticatedError reports a missing or rejected bearer token.
func NewUnauthenticatedError(source error) error {
	if source == nil {
		source = driven.ErrUnauthenticated
	}
	return goerrors.Wrap(source, goerrors.CategoryAuth, "authentication required").
		WithCode(http.StatusUnauthorized).
		WithTextCode(CodeUnauthenticated)
}

func authorizationError(message, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func notFoundError(resource, id string) error {
	return goerrors.New(resource+" not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(CodeNotFound).
		WithMetadata(map[string]any{"resource": resource, "id": id})
}

func conflictError(textCode, message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func dependencyError(source error, message string) error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(CodeDependencyFailure)
}

// translate converts errors surfacing from driven ports into the kinds above.
// Errors already classified pass through unchanged.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}

	switch {
	case errors.Is(err, driven.ErrStaleListing):
		return goerrors.Wrap(err, goerrors.CategoryConflict, "listing was modified concurrently").
			WithCode(http.StatusConflict).
			WithTextCode(CodeListingModified)
	case errors.Is(err, driven.ErrListingNotFound):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "listing not found").
			WithCode(http.StatusNotFound).
			WithTextCode(CodeNotFound)
	case errors.Is(err, driven.ErrUserNotFound):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "user not found").
			WithCode(http.StatusNotFound).
			WithTextCode(CodeNotFound)
	case errors.Is(err, driven.ErrOutboxMessageNotFound):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "outbox message not found").
			WithCode(http.StatusNotFound).
			WithTextCode(CodeNotFound)
	case errors.Is(err, driven.ErrInsufficientBalance):
		return goerrors.Wrap(err, goerrors.CategoryConflict, "insufficient balance").
			WithCode(http.StatusConflict).
			WithTextCode(CodeInsufficientBalance)
	case errors.Is(err, driven.ErrUnauthenticated):
		return NewUnauthenticatedError(err)
	default:
		return dependencyError(err, message)
	}
}

// ErrorDetails is the part of a classified error that is safe to show a caller.
type ErrorDetails struct {
	Kind     Kind
	Code     string
	Message  string
	Fields   map[string]string
	Metadata map[string]any
}

// DetailsOf describes err for a response body. Internal errors reveal nothing.
func DetailsOf(err error) ErrorDetails {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || KindOf(err) == KindInternal {
		return ErrorDetails{Kind: KindInternal, Code: CodeInternal, Message: "internal server error"}
	}

	d := ErrorDetails{
		Kind:     KindOf(err),
		Code:     TextCodeOf(err),
		Message:  rich.Message,
		Metadata: rich.Metadata,
	}
	if len(rich.ValidationErrors) > 0 {
		d.Fields = make(map[string]string, len(rich.ValidationErrors))
		for _, fe := range rich.ValidationErrors {
			d.Fields[fe.Field] = fe.Message
		}
	}
	return d
}
