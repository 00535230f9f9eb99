package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFrom(t *testing.T) {
	wrapped := fmt.Errorf("check in: %w", AlreadyCheckedIn)
	if got := From(wrapped); got.Code != "ALREADY_CHECKED_IN" || got.Status != http.StatusConflict {
		t.Fatalf("From(wrapped) = %+v", got)
	}
	if got := From(errors.New("connection reset")); got.Code != StorageFailure.Code {
		t.Fatalf("From(plain) = %+v, want storage failure", got)
	}
	if !IsInternal(errors.New("boom")) || IsInternal(NotOwner) {
		t.Fatal("IsInternal mismatch")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	custom := InvalidInput.WithMessage("file is empty")
	if !errors.Is(custom, InvalidInput) {
		t.Fatal("expected custom message to still match INVALID_INPUT")
	}
	if errors.Is(custom, NoData) {
		t.Fatal("unexpected match across codes")
	}
	if custom.Error() != "file is empty" {
		t.Fatalf("Error() = %q", custom.Error())
	}
}
