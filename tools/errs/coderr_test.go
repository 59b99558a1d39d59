package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeErrorMatchingSurvivesWrapAndDetail(t *testing.T) {
	err := ErrConflict.WithDetail("request already settled")
	if !errors.Is(err, ErrConflict) {
		t.Fatal("detail variant must match the sentinel")
	}
	wrapped := Wrap(err, "accept request")
	if !IsConflict(wrapped) {
		t.Fatal("wrapping must not hide the code")
	}
	deeper := fmt.Errorf("outer: %w", wrapped)
	if !IsConflict(deeper) {
		t.Fatal("fmt wrapping must not hide the code")
	}
	if IsAuth(deeper) || IsTimeout(deeper) {
		t.Fatal("wrong code matched")
	}
}

func TestCodeErrorDetailAccumulates(t *testing.T) {
	e := ErrNotFound.WithDetail("conversation c1").WithDetail("during reload")
	if e.Detail != "conversation c1, during reload" {
		t.Fatalf("detail = %q", e.Detail)
	}
	// Sentinel stays pristine.
	if ErrNotFound.Detail != "" {
		t.Fatalf("sentinel mutated: %q", ErrNotFound.Detail)
	}
	if !strings.Contains(e.Error(), "1103") || !strings.Contains(e.Error(), "conversation c1") {
		t.Fatalf("error string = %q", e.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("wrapping nil must stay nil")
	}
}

func TestHelpersRejectForeignErrors(t *testing.T) {
	plain := errors.New("boom")
	if IsAuth(plain) || IsNetwork(plain) || IsNotFound(plain) ||
		IsConflict(plain) || IsTimeout(plain) || IsClosed(plain) {
		t.Fatal("plain error matched a code")
	}
	if IsAuth(nil) {
		t.Fatal("nil matched")
	}
}
