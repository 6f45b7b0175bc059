package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/accesstime/internal/storage"
	"github.com/goodtune/accesstime/internal/storage/storagetest"
	"go.etcd.io/bbolt"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTestStore(t)
	})
}

func TestViewReturnsBoltReadOnlyError(t *testing.T) {
	store := openTestStore(t)

	err := store.View(context.Background(), func(tx storage.Tx) error {
		return tx.PutSequence("alice", 1)
	})
	if !errors.Is(err, bbolt.ErrTxNotWritable) {
		t.Fatalf("expected ErrTxNotWritable, got %v", err)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "accesstime.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = store.Close()
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "accesstime.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
