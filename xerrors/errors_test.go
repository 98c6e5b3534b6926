package xerrors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	derived := ErrInvalidRange.WithDetail("from %d > to %d", 5, 2).WithContext("op", 3)

	if ErrInvalidRange.Detail != "from must not exceed to" {
		t.Errorf("sentinel detail changed to %q", ErrInvalidRange.Detail)
	}
	if _, ok := ErrInvalidRange.Context["op"]; ok {
		t.Error("sentinel context changed")
	}
	if !errors.Is(derived, ErrInvalidRange) {
		t.Error("derived error does not match sentinel")
	}
	if errors.Is(derived, ErrEmptySequence) {
		t.Error("derived error matches an unrelated sentinel")
	}
	if !strings.Contains(derived.Error(), "from 5 > to 2") {
		t.Errorf("Error() = %q", derived.Error())
	}
	if len(derived.Stack) == 0 {
		t.Error("derived error has no stack")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrInternal, "noop") != nil {
		t.Error("Wrap(nil) != nil")
	}

	plain := Wrap(io.ErrUnexpectedEOF, ErrInternal, "read input")
	if !errors.Is(plain, io.ErrUnexpectedEOF) || plain.Type != ErrInternal {
		t.Errorf("Wrap(plain) = %v", plain)
	}

	typed := Wrap(ErrMalformedInput.WithDetail("token 3"), ErrInternal, "parse")
	if typed.Type != ErrInvalidArg || typed.Message != "parse" {
		t.Errorf("Wrap(typed) = %+v", typed)
	}
	if !errors.Is(typed, ErrMalformedInput) {
		t.Error("wrapped error lost its code")
	}
	if ErrMalformedInput.Message != "malformed input" {
		t.Error("Wrap mutated the sentinel")
	}
}

func TestFromErrorFollowsChain(t *testing.T) {
	err := fmt.Errorf("cli: %w", ErrUnknownOp)
	e, ok := FromError(err)
	if !ok || e.Code != ErrUnknownOp.Code {
		t.Fatalf("FromError() = %v, %v", e, ok)
	}
	if _, ok := FromError(nil); ok {
		t.Error("FromError(nil) reported ok")
	}
	if _, ok := FromError(io.EOF); ok {
		t.Error("FromError(io.EOF) reported ok")
	}
}

func TestCodeAndExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
		exit int
	}{
		{"nil", nil, codes.OK, 0},
		{"invalid range", ErrInvalidRange, codes.InvalidArgument, ExitUsage},
		{"wrapped invalid arg", fmt.Errorf("cli: %w", ErrMalformedInput.WithDetail("token 2")), codes.InvalidArgument, ExitUsage},
		{"corrupt tree", ErrCorruptTree, codes.Internal, ExitFailure},
		{"not found", New(ErrNotFound, 404, "missing", "", nil), codes.NotFound, ExitFailure},
		{"execution canceled", ErrExecutionCanceled.WithCause(context.Canceled), codes.Canceled, ExitCanceled},
		{"bare context canceled", fmt.Errorf("run: %w", context.Canceled), codes.Canceled, ExitCanceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded, ExitFailure},
		{"plain error", io.EOF, codes.Unknown, ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Code(tc.err); got != tc.code {
				t.Errorf("Code() = %v, want %v", got, tc.code)
			}
			if got := ExitCode(tc.err); got != tc.exit {
				t.Errorf("ExitCode() = %d, want %d", got, tc.exit)
			}
		})
	}
}

func TestErrorTypeString(t *testing.T) {
	if ErrInvalidArg.String() != "InvalidArg" || ErrorType(42).String() != "Unknown" {
		t.Errorf("String() = %q, %q", ErrInvalidArg.String(), ErrorType(42).String())
	}
}
