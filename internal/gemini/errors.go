package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies a failed call to the OCR service so the retry policy
// never has to inspect upstream error strings.
type ErrorKind int

const (
	// KindUnknown covers failures with no structured signal. Treated
	// conservatively as retryable on the short schedule.
	KindUnknown ErrorKind = iota
	// KindQuota means the active credential is over its rate or quota limit.
	KindQuota
	// KindTransient covers timeouts, connection failures and server
	// unavailability.
	KindTransient
	// KindInvalidInput means the payload itself was rejected (oversized or
	// structurally invalid). Retrying the same payload cannot succeed.
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindTransient:
		return "transient"
	case KindInvalidInput:
		return "invalid-input"
	default:
		return "unknown"
	}
}

// CallError wraps a failure from the external service with its classification.
type CallError struct {
	Kind ErrorKind
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Classify maps an error from the call boundary to an ErrorKind using
// structured status information only.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return KindQuota
		case http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return KindTransient
		case http.StatusRequestEntityTooLarge:
			return KindInvalidInput
		}
		return KindUnknown
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		switch st.Code() {
		case codes.ResourceExhausted:
			return KindQuota
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return KindTransient
		case codes.InvalidArgument, codes.OutOfRange:
			return KindInvalidInput
		case codes.Unknown:
			// status.FromError wraps plain errors as Unknown; fall through to
			// the generic checks below.
		default:
			return KindUnknown
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	return KindUnknown
}

// wrap attaches a classification to an error from the service.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &CallError{Kind: Classify(err), Err: err}
}
