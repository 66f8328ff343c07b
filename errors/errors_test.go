package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:      PhaseConvert,
				Kind:       KindTypeMismatch,
				Path:       []string{"Person", "address", "zip"},
				GoType:     "string",
				NativeType: "int",
				Detail:     "cannot convert",
			},
			contains: []string{"[convert]", "type_mismatch", "Person.address.zip", "string", "int", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindInvalidData,
			},
			contains: []string{"[decode]", "invalid_data"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEncode,
				Kind:   KindAllocation,
				Detail: "memory full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[encode]", "allocation", "memory full", "caused by", "underlying error"},
		},
		{
			name:     "native error",
			err:      Native("app", 50, "invalid username/password"),
			contains: []string{"[native]", "native", "(app/50)", "invalid username/password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseNative, KindNative, cause, "open failed")

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should find the cause")
	}
	if err.Unwrap() != cause {
		t.Fatal("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := StaleObject("Person", 1, 2)

	if !errors.Is(err, ErrStaleObject) {
		t.Fatal("sentinel without phase should match on kind")
	}
	if errors.Is(err, ErrInvalidHandle) {
		t.Fatal("different kind must not match")
	}
	if !errors.Is(err, &Error{Phase: PhaseConvert, Kind: KindStaleObject}) {
		t.Fatal("phase+kind target should match")
	}
	if errors.Is(err, &Error{Phase: PhaseImport, Kind: KindStaleObject}) {
		t.Fatal("different phase must not match")
	}
}

func TestError_As(t *testing.T) {
	var wrapped error = Wrap(PhaseOpen, KindNative, Native("file", 2, "no such file"), "open")

	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should succeed")
	}
	if target.Phase != PhaseOpen {
		t.Fatalf("expected outer error, got phase %s", target.Phase)
	}

	if !errors.Is(wrapped, ErrNative) {
		t.Fatal("native cause should be reachable")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseQuery, KindUnsupportedType).
		Path("args", "0").
		GoType("chan int").
		Value(1).
		Detail("argument %d has unsupported type", 0).
		Build()

	if err.Kind != KindUnsupportedType || err.Phase != PhaseQuery {
		t.Fatalf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if err.Detail != "argument 0 has unsupported type" {
		t.Fatalf("unexpected detail %q", err.Detail)
	}
	if !strings.Contains(err.Error(), "args.0") {
		t.Fatalf("path missing from %q", err.Error())
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"unsupported", UnsupportedType(PhaseConvert, "complex128"), KindUnsupportedType},
		{"unsupported native", UnsupportedNativeType(PhaseDecode, "decimal128"), KindUnsupportedType},
		{"overflow", Overflow(PhaseConvert, nil, 300, "int8"), KindOverflow},
		{"invalid handle", InvalidHandle("object released"), KindInvalidHandle},
		{"double release", DoubleRelease("object"), KindDoubleRelease},
		{"consistency", Consistency([]string{"insertions"}, "want %d got %d", 3, 2), KindConsistency},
		{"in use", ResourceInUse("/tmp/a.db", 2), KindResourceInUse},
		{"exists", AlreadyExists("Person", 1), KindAlreadyExists},
		{"cancelled", Cancelled(PhaseCallback, "login"), KindCancelled},
		{"closed", Closed(PhaseOpen, "store"), KindClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, tt.err.Kind)
			}
			if tt.err.Error() == "" {
				t.Fatal("empty message")
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	inner := Overflow(PhaseConvert, nil, 300, "int8")
	wrapped := fmt.Errorf("set age: %w", inner)

	if got := KindOf(wrapped); got != KindOverflow {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindOverflow)
	}
	if got := KindOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}
