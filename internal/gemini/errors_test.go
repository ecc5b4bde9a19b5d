package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"http 429", &googleapi.Error{Code: 429}, KindQuota},
		{"http 503", &googleapi.Error{Code: 503}, KindTransient},
		{"http 500", &googleapi.Error{Code: 500}, KindTransient},
		{"http 413", &googleapi.Error{Code: 413}, KindInvalidInput},
		{"http 403", &googleapi.Error{Code: 403}, KindUnknown},
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "quota exceeded"), KindQuota},
		{"grpc unavailable", status.Error(codes.Unavailable, "try later"), KindTransient},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "too slow"), KindTransient},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "image too large"), KindInvalidInput},
		{"grpc permission denied", status.Error(codes.PermissionDenied, "nope"), KindUnknown},
		{"context deadline", context.DeadlineExceeded, KindTransient},
		{"plain error", errors.New("something odd"), KindUnknown},
		{"wrapped googleapi error", fmt.Errorf("call failed: %w", &googleapi.Error{Code: 429}), KindQuota},
		{"call error passthrough", &CallError{Kind: KindInvalidInput, Err: errors.New("refused")}, KindInvalidInput},
		{"wrapped call error", fmt.Errorf("page 3: %w", &CallError{Kind: KindQuota, Err: errors.New("limit")}), KindQuota},
		{"nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := wrap(inner)
	assert.ErrorIs(t, err, inner)

	var callErr *CallError
	assert.ErrorAs(t, err, &callErr)
	assert.Equal(t, KindUnknown, callErr.Kind)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "quota", KindQuota.String())
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "invalid-input", KindInvalidInput.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
