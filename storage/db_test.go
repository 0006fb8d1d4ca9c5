package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, key := range []string{"run/2024-03-02", "run/2024-03-01", "meta/version"} {
		if err := db.Put([]byte(key), []byte("v:"+key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	value, err := db.Get([]byte("run/2024-03-01"))
	if err != nil || string(value) != "v:run/2024-03-01" {
		t.Fatalf("unexpected get result %q %v", value, err)
	}
	ok, err := db.Has([]byte("meta/version"))
	if err != nil || !ok {
		t.Fatalf("expected key to exist: %v", err)
	}
	keys, err := db.Keys([]byte("run/"))
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || string(keys[0]) != "run/2024-03-01" || string(keys[1]) != "run/2024-03-02" {
		t.Fatalf("unexpected keys %q", keys)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}
