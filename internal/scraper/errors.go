package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cheapfinder/backend/internal/model"
)

// Kind classifies a scrape failure.
type Kind int

const (
	KindTransient Kind = iota
	KindNotFound
	KindParse
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindParse:
		return "parse-error"
	case KindBlocked:
		return "blocked"
	default:
		return "network-error"
	}
}

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindBlocked
}

// Outcome maps the kind to the observation outcome it is recorded as.
func (k Kind) Outcome() model.Outcome {
	switch k {
	case KindNotFound:
		return model.OutcomeNotFound
	case KindParse:
		return model.OutcomeParseError
	case KindBlocked:
		return model.OutcomeBlocked
	default:
		return model.OutcomeNetworkError
	}
}

// Sentinel errors, one per kind.
var (
	ErrNotFound  = errors.New("product not found")
	ErrParse     = errors.New("page layout not recognised")
	ErrBlocked   = errors.New("blocked by retailer")
	ErrTransient = errors.New("transient network failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindParse:
		return ErrParse
	case KindBlocked:
		return ErrBlocked
	default:
		return ErrTransient
	}
}

// Error represents a classified failure while scraping a retailer.
type Error struct {
	Retailer   string
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
	// Page is the raw response for parse failures, used for snapshots.
	Page []byte
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Retailer, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NewError creates a classified error.
func NewError(retailer, op string, kind Kind, err error) *Error {
	return &Error{Retailer: retailer, Op: op, Kind: kind, Err: err}
}

// NotFound reports a missing or unavailable product.
func NotFound(retailer, op string, err error) *Error {
	return NewError(retailer, op, KindNotFound, err)
}

// ParseFailure reports a page whose layout could not be read. page is kept
// for snapshots.
func ParseFailure(retailer, op string, err error, page []byte) *Error {
	e := NewError(retailer, op, KindParse, err)
	e.Page = page
	return e
}

// Blocked reports a block, captcha or rate-limit response.
func Blocked(retailer, op string, err error) *Error {
	return NewError(retailer, op, KindBlocked, err)
}

// Transient reports a timeout, 5xx or connection error.
func Transient(retailer, op string, err error) *Error {
	return NewError(retailer, op, KindTransient, err)
}

// FromStatus classifies a non-200 HTTP status.
func FromStatus(retailer, op string, status int) *Error {
	var kind Kind
	switch {
	case status == http.StatusNotFound, status == http.StatusGone:
		kind = KindNotFound
	case status == http.StatusForbidden, status == http.StatusTooManyRequests, status == http.StatusUnauthorized:
		kind = KindBlocked
	case status >= 500, status == http.StatusRequestTimeout:
		kind = KindTransient
	default:
		kind = KindParse
	}
	e := NewError(retailer, op, kind, fmt.Errorf("unexpected status code: %d", status))
	e.StatusCode = status
	return e
}

// KindOf classifies any error. Unclassified errors count as transient network
// failures; context errors are reported as transient but callers check the
// context before retrying.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrBlocked):
		return KindBlocked
	}
	return KindTransient
}

// PageOf returns the raw page attached to a parse failure, if any.
func PageOf(err error) []byte {
	var se *Error
	if errors.As(err, &se) {
		return se.Page
	}
	return nil
}

// IsContextError reports whether err came from a cancelled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
