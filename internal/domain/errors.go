package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline failures by the stage that raised them.
type ErrorKind string

const (
	KindUnsupportedSource ErrorKind = "unsupported_source"
	KindScraping          ErrorKind = "scraping"
	KindPolicyViolation   ErrorKind = "policy_violation"
	KindTransform         ErrorKind = "transform"
	KindPublish           ErrorKind = "publish"
	KindAuth              ErrorKind = "auth"
	KindUncategorized     ErrorKind = "uncategorized"
)

// Error is the taxonomy error returned by collaborators.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so sentinel comparisons such as
// errors.Is(err, &Error{Kind: KindAuth}) work across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf extracts the taxonomy kind, KindUncategorized for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUncategorized
}

func UnsupportedSource(url string) *Error {
	return &Error{Kind: KindUnsupportedSource, Message: fmt.Sprintf("no scraper handles %s", url)}
}

func ScrapingError(msg string, err error) *Error {
	return &Error{Kind: KindScraping, Message: msg, Err: err}
}

// PolicyViolation reports a blocked brand together with the violation reasons.
func PolicyViolation(brand string, violations []string) *Error {
	return &Error{
		Kind:    KindPolicyViolation,
		Message: fmt.Sprintf("brand '%s': %s", brand, strings.Join(violations, ", ")),
	}
}

func TransformError(msg string, err error) *Error {
	return &Error{Kind: KindTransform, Message: msg, Err: err}
}

func PublishError(msg string, err error) *Error {
	return &Error{Kind: KindPublish, Message: msg, Err: err}
}

func AuthError(msg string, err error) *Error {
	return &Error{Kind: KindAuth, Message: msg, Err: err}
}
