package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknown, "unknown"},
		{KindInvalidReference, "invalid_reference"},
		{KindNotFound, "not_found"},
		{KindConflict, "conflict"},
		{KindStorage, "storage"},
		{Kind(99), "unknown"}, // Invalid kind
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("Kind.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "op and message and err",
			err:      &Error{Op: "graph.ResolveOrCreate", Message: "resolve failed", Err: fmt.Errorf("disk I/O error")},
			expected: "graph.ResolveOrCreate: resolve failed: disk I/O error",
		},
		{
			name:     "op and message",
			err:      &Error{Op: "graph.ResolveOrCreate", Message: "resolve failed"},
			expected: "graph.ResolveOrCreate: resolve failed",
		},
		{
			name:     "message and err",
			err:      &Error{Message: "resolve failed", Err: fmt.Errorf("disk I/O error")},
			expected: "resolve failed: disk I/O error",
		},
		{
			name:     "message only",
			err:      &Error{Message: "resolve failed"},
			expected: "resolve failed",
		},
		{
			name:     "err only",
			err:      &Error{Err: fmt.Errorf("disk I/O error")},
			expected: "disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestE(t *testing.T) {
	underlying := fmt.Errorf("boom")
	err := E(KindStorage, "storage.InsertPackage", "insert failed", underlying)

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("E() did not produce *Error")
	}
	if e.Kind != KindStorage {
		t.Errorf("Kind = %v, want %v", e.Kind, KindStorage)
	}
	if e.Op != "storage.InsertPackage" {
		t.Errorf("Op = %q", e.Op)
	}
	if e.Message != "insert failed" {
		t.Errorf("Message = %q", e.Message)
	}
	if !errors.Is(err, &Error{Kind: KindStorage}) {
		t.Errorf("errors.Is failed to match on Kind")
	}
	if errors.Unwrap(e) != underlying {
		t.Errorf("Unwrap did not return the underlying error")
	}
}

func TestWrap_PreservesKind(t *testing.T) {
	inner := InvalidReference("purl.Parse", "not-a-purl", nil)
	wrapped := Wrap(inner, "sbom.Relate")

	if !IsInvalidReference(wrapped) {
		t.Errorf("Wrap() lost the inner Kind: got %v", GetKind(wrapped))
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "op") != nil {
		t.Errorf("Wrap(nil) should be nil")
	}
	if Storage("op", nil) != nil {
		t.Errorf("Storage(op, nil) should be nil")
	}
}

func TestCheckers(t *testing.T) {
	if !IsNotFound(ErrNotFound) {
		t.Errorf("IsNotFound(ErrNotFound) = false")
	}
	if !IsConflict(ErrConflict) {
		t.Errorf("IsConflict(ErrConflict) = false")
	}
	if !IsStorage(Storage("op", fmt.Errorf("x"))) {
		t.Errorf("IsStorage failed")
	}
	if !IsInvalidReference(InvalidReference("op", "ref", nil)) {
		t.Errorf("IsInvalidReference failed")
	}
	if IsNotFound(fmt.Errorf("plain")) {
		t.Errorf("plain error misclassified as not found")
	}
}
