// Package testutil provides shared test helpers for setting up schema
// directories and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/dtokit/internal/storage"
	"github.com/starford/dtokit/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dtokit-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSchemaDir creates a temporary schema directory with a storage.Provider
// and writes the given documents (path → YAML) into it.
func TestSchemaDir(t *testing.T, docs map[string]string) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for path, doc := range docs {
		if err := fs.Write(path, []byte(doc)); err != nil {
			t.Fatal(err)
		}
	}
	return dir, fs
}
