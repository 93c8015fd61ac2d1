package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("missing"), KindNotFound},
		{"forbidden", Forbidden("nope"), KindForbidden},
		{"invalid", InvalidArgument("bad"), KindInvalidArgument},
		{"poll inactive", PollInactive("closed"), KindPollInactive},
		{"conflict", Conflict("dup"), KindConflict},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil-adjacent wrap", fmt.Errorf("outer: %w", NotFound("inner")), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Forbidden("no"))
	if !IsKind(err, KindForbidden) {
		t.Fatal("IsKind missed wrapped Forbidden")
	}
	if IsKind(err, KindNotFound) {
		t.Fatal("IsKind matched wrong kind")
	}
	if IsKind(nil, KindNotFound) {
		t.Fatal("IsKind matched nil")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("io failure")
	err := Wrap(KindInternal, "load session", cause)
	if !errors.Is(err, cause) {
		t.Fatal("Unwrap lost the cause")
	}
	if err.Error() == "" {
		t.Fatal("empty error string")
	}
}
