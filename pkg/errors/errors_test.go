package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(KindAdapter, "backend_unreachable", "pacs backend unreachable", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("wrapped cause should satisfy errors.Is")
	}
	if KindOf(err) != KindAdapter {
		t.Fatalf("KindOf = %s, want adapter", KindOf(err))
	}
	if CodeOf(err) != "backend_unreachable" {
		t.Fatalf("CodeOf = %s", CodeOf(err))
	}
}

func TestDetailHidesCause(t *testing.T) {
	cause := stderrors.New("pq: password authentication failed for user gateway")
	err := Wrap(KindInfrastructure, "audit_write_failed", "audit record could not be persisted", cause)
	if strings.Contains(err.Detail(), "password") {
		t.Fatalf("Detail leaked cause: %s", err.Detail())
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(stderrors.New("boom")) != KindInfrastructure {
		t.Fatal("plain errors default to infrastructure kind")
	}
}
