package testutil

import (
	"testing"

	"snapsync/internal/database"
	"snapsync/internal/snap"
)

// NewTestRunStore creates an in-memory run store with the schema applied.
// The store is closed when the test completes.
func NewTestRunStore(t *testing.T) snap.RunStore {
	t.Helper()

	s, err := database.NewSQLiteRunStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open run store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}
