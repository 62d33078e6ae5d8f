package archiver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of ways a resolution attempt can fail.
type ErrorKind int

// Resolution error kinds. The zero value is never produced.
const (
	// KindTransport covers network, DNS and TLS failures.
	KindTransport ErrorKind = iota + 1
	// KindMalformedResponse means the service payload did not have the expected shape.
	KindMalformedResponse
	// KindMalformedTimestamp means a snapshot timestamp could not be decoded.
	KindMalformedTimestamp
	// KindNoExistingSnapshot means the availability query listed no candidates.
	KindNoExistingSnapshot
	// KindRateLimited means the service asked us to slow down. Retryable.
	KindRateLimited
	// KindPermanentFailure means the service declined or errored on this URL.
	KindPermanentFailure
	// KindUnknownFailure is any response we do not know how to classify.
	KindUnknownFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindMalformedResponse:
		return "malformed_response"
	case KindMalformedTimestamp:
		return "malformed_timestamp"
	case KindNoExistingSnapshot:
		return "no_existing_snapshot"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanentFailure:
		return "permanent_failure"
	case KindUnknownFailure:
		return "unknown_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ResolutionError describes a failed step of the archival workflow.
type ResolutionError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Detail string
	Err    error
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " at %s", e.URL)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is matches another *ResolutionError by kind so callers can use errors.Is with a template.
func (e *ResolutionError) Is(target error) bool {
	var t *ResolutionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.URL == "" && t.Status == 0 && t.Detail == "" && t.Err == nil
}

// NewError builds a ResolutionError without a cause.
func NewError(kind ErrorKind, url string, format string, args ...any) *ResolutionError {
	return &ResolutionError{Kind: kind, URL: url, Detail: fmt.Sprintf(format, args...)}
}

// WrapError builds a ResolutionError around cause.
func WrapError(kind ErrorKind, url string, cause error) *ResolutionError {
	return &ResolutionError{Kind: kind, URL: url, Err: cause}
}

// KindOf extracts the ErrorKind of err. Errors outside the workflow report KindUnknownFailure;
// nil reports 0.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknownFailure
}
