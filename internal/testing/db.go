// Package testing provides testing utilities and helpers for the bookkeeper project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/bookkeeper/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a SQLite database for testing with the bookkeeper schema
// applied. Returns the database instance and a cleanup function that closes
// the connection. The cleanup function is idempotent and can be called
// multiple times safely.
//
// A temporary file is used rather than :memory: so that the WAL pragmas in
// the standard profile behave the same way they do in production.
func NewTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_bookkeeper_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "bookkeeper",
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			// Log error but don't fail test - cleanup should be idempotent
			t.Logf("Warning: Failed to close test database: %v", err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}

		// WAL sidecar files may linger after close
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(fmt.Sprintf("%s%s", tmpPath, suffix))
		}
	}
}
