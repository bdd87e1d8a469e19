package store

import (
	"errors"
	"fmt"
	"testing"
)

// Compile-time checks that the interfaces are importable and usable.
func TestLocalStoreInterfaceExists(t *testing.T) {
	var _ LocalStore
	var _ Outbox
	_ = BatchResult{}

	wrapped := fmt.Errorf("writing wallet: %w", ErrInvalidRecord)
	if !errors.Is(wrapped, ErrInvalidRecord) {
		t.Errorf("Expected wrapped error to match ErrInvalidRecord")
	}
}
