package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "Without cause",
			err:  New(ErrCodeNotFound, "user not found"),
			want: "NOT_FOUND: user not found",
		},
		{
			name: "With cause",
			err:  Wrap(fmt.Errorf("connection refused"), ErrCodeInternalError, "failed to get user"),
			want: "INTERNAL_ERROR: failed to get user (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	cause := fmt.Errorf("boom")
	wrapped := fmt.Errorf("outer: %w", Wrap(cause, ErrCodeConflict, "tx conflict"))

	if got := CodeOf(wrapped); got != ErrCodeConflict {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCodeConflict)
	}
	if got := CodeOf(cause); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("errors.Is() should see the wrapped cause")
	}
	if HasCode(nil, ErrCodeConflict) {
		t.Error("HasCode(nil) = true, want false")
	}
}
