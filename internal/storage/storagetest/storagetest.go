// Package storagetest holds behaviour checks shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/goodtune/accesstime/internal/storage"
)

// Run exercises a backend. newStore must return an empty store and arrange
// for it to be closed when the test ends.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("UpdateCommitsAndViewReads", func(t *testing.T) { testUpdateCommitsAndViewReads(t, newStore) })
	t.Run("UpdateRollsBackOnError", func(t *testing.T) { testUpdateRollsBackOnError(t, newStore) })
	t.Run("InsertOrderRejectsDuplicate", func(t *testing.T) { testInsertOrderRejectsDuplicate(t, newStore) })
	t.Run("OrdersListedInSequenceOrder", func(t *testing.T) { testOrdersListedInSequenceOrder(t, newStore) })
	t.Run("ViewRejectsWrites", func(t *testing.T) { testViewRejectsWrites(t, newStore) })
	t.Run("PackagesListedByID", func(t *testing.T) { testPackagesListedByID(t, newStore) })
}

func testUpdateCommitsAndViewReads(t *testing.T, newStore func(t *testing.T) storage.Store) {
	store := newStore(t)

	ctx := context.Background()
	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutSettings(storage.Settings{Admin: "admin", Token: "token"}); err != nil {
			return err
		}
		return tx.PutPackage(storage.Package{ID: 1, Price: 10, DurationSecs: 3600})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = store.View(ctx, func(tx storage.Tx) error {
		settings, err := tx.Settings()
		if err != nil {
			return err
		}
		if settings.Admin != "admin" || settings.Token != "token" {
			t.Errorf("unexpected settings: %+v", settings)
		}
		pkg, err := tx.Package(1)
		if err != nil {
			return err
		}
		if pkg.Price != 10 || pkg.DurationSecs != 3600 {
			t.Errorf("unexpected package: %+v", pkg)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testUpdateRollsBackOnError(t *testing.T, newStore func(t *testing.T) storage.Store) {
	store := newStore(t)

	ctx := context.Background()
	boom := errors.New("boom")
	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutSequence("alice", 1); err != nil {
			return err
		}
		if err := tx.InsertOrder(storage.Order{Owner: "alice", SequenceID: 1, PackageID: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.View(ctx, func(tx storage.Tx) error {
		seq, err := tx.Sequence("alice")
		if err != nil {
			return err
		}
		if seq != 0 {
			t.Errorf("expected sequence 0 after rollback, got %d", seq)
		}
		if _, err := tx.Order("alice", 1); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after rollback, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testInsertOrderRejectsDuplicate(t *testing.T, newStore func(t *testing.T) storage.Store) {
	store := newStore(t)

	ctx := context.Background()
	order := storage.Order{Owner: "alice", SequenceID: 1, PackageID: 1}
	if err := store.Update(ctx, func(tx storage.Tx) error { return tx.InsertOrder(order) }); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.Update(ctx, func(tx storage.Tx) error { return tx.InsertOrder(order) })
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func testOrdersListedInSequenceOrder(t *testing.T, newStore func(t *testing.T) storage.Store) {
	store := newStore(t)

	ctx := context.Background()
	err := store.Update(ctx, func(tx storage.Tx) error {
		for _, seq := range []uint64{10, 2, 1} {
			if err := tx.InsertOrder(storage.Order{Owner: "alice", SequenceID: seq, PackageID: 1}); err != nil {
				return err
			}
		}
		// Shares the "alice/" prefix but belongs to someone else.
		return tx.InsertOrder(storage.Order{Owner: "alice/bob", SequenceID: 1, PackageID: 1})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	var orders []storage.Order
	err = store.View(ctx, func(tx storage.Tx) error {
		var err error
		orders, err = tx.Orders("alice")
		return err
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	for i, want := range []uint64{1, 2, 10} {
		if orders[i].SequenceID != want {
			t.Errorf("orders[%d] = %d, want %d", i, orders[i].SequenceID, want)
		}
	}
}

func testViewRejectsWrites(t *testing.T, newStore func(t *testing.T) storage.Store) {
	store := newStore(t)

	err := store.View(context.Background(), func(tx storage.Tx) error {
		return tx.PutSession(storage.Session{Owner: "alice", RemainingSecs: 1})
	})
	if err == nil {
		t.Fatal("expected write inside View to fail")
	}
}

func testPackagesListedByID(t *testing.T, newStore func(t *testing.T) storage.Store) {
	store := newStore(t)

	ctx := context.Background()
	err := store.Update(ctx, func(tx storage.Tx) error {
		for _, id := range []uint32{30, 2, 100} {
			if err := tx.PutPackage(storage.Package{ID: id, Price: uint64(id), DurationSecs: 1}); err != nil {
				return err
			}
		}
		// Overwrite keeps a single entry.
		return tx.PutPackage(storage.Package{ID: 2, Price: 5, DurationSecs: 1})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	var packages []storage.Package
	err = store.View(ctx, func(tx storage.Tx) error {
		var err error
		packages, err = tx.Packages()
		return err
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(packages) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(packages))
	}
	for i, want := range []uint32{2, 30, 100} {
		if packages[i].ID != want {
			t.Errorf("packages[%d] = %d, want %d", i, packages[i].ID, want)
		}
	}
	if packages[0].Price != 5 {
		t.Errorf("expected overwritten price 5, got %d", packages[0].Price)
	}
}
