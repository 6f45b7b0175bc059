package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrAlreadyExists is returned when an insert-only record is written twice.
	ErrAlreadyExists = errors.New("storage: record already exists")
)

// Store is the root storage interface. Every state change happens inside
// Update, which runs fn as one serialized transaction: either everything fn
// wrote is committed, or (when fn or the commit fails) nothing is.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Exclusive is implemented by stores that a single process holds open at a
// time. Only then can a process-local read cache never miss another writer.
type Exclusive interface {
	Exclusive() bool
}

// IsExclusive reports whether s is held by this process alone.
func IsExclusive(s Store) bool {
	e, ok := s.(Exclusive)
	return ok && e.Exclusive()
}

// Tx exposes the records of a single transaction.
//
// Lookups of absent records return ErrNotFound, except Sequence which
// defaults to zero.
type Tx interface {
	Settings() (*Settings, error)
	PutSettings(settings Settings) error

	Package(id uint32) (*Package, error)
	PutPackage(pkg Package) error
	Packages() ([]Package, error)

	Session(owner string) (*Session, error)
	PutSession(session Session) error

	Sequence(owner string) (uint64, error)
	PutSequence(owner string, value uint64) error

	Order(owner string, sequenceID uint64) (*Order, error)
	// InsertOrder fails with ErrAlreadyExists if the key is taken.
	InsertOrder(order Order) error
	PutOrder(order Order) error
	// Orders lists an owner's orders in sequence order.
	Orders(owner string) ([]Order, error)
}
