package bolt

import (
	"bytes"
	"fmt"

	"github.com/goodtune/accesstime/internal/storage"
	"go.etcd.io/bbolt"
)

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) Settings() (*storage.Settings, error) {
	return getBucketValue[storage.Settings](t.tx, bucketSettings, settingsKey)
}

func (t *boltTx) PutSettings(settings storage.Settings) error {
	return putBucketValue(t.tx, bucketSettings, settingsKey, settings)
}

func (t *boltTx) Package(id uint32) (*storage.Package, error) {
	return getBucketValue[storage.Package](t.tx, bucketPackages, packageKey(id))
}

func (t *boltTx) PutPackage(pkg storage.Package) error {
	return putBucketValue(t.tx, bucketPackages, packageKey(pkg.ID), pkg)
}

func (t *boltTx) Packages() ([]storage.Package, error) {
	packages := make([]storage.Package, 0)
	b := t.tx.Bucket([]byte(bucketPackages))
	if b == nil {
		return packages, nil
	}
	err := b.ForEach(func(_, v []byte) error {
		var pkg storage.Package
		if err := unmarshal(v, &pkg); err != nil {
			return err
		}
		packages = append(packages, pkg)
		return nil
	})
	return packages, err
}

func (t *boltTx) Session(owner string) (*storage.Session, error) {
	return getBucketValue[storage.Session](t.tx, bucketSessions, owner)
}

func (t *boltTx) PutSession(session storage.Session) error {
	if session.Owner == "" {
		return fmt.Errorf("session owner is required")
	}
	return putBucketValue(t.tx, bucketSessions, session.Owner, session)
}

func (t *boltTx) Sequence(owner string) (uint64, error) {
	value, err := getBucketValue[uint64](t.tx, bucketSequences, owner)
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return *value, nil
}

func (t *boltTx) PutSequence(owner string, value uint64) error {
	return putBucketValue(t.tx, bucketSequences, owner, value)
}

func (t *boltTx) Order(owner string, sequenceID uint64) (*storage.Order, error) {
	return getBucketValue[storage.Order](t.tx, bucketOrders, storage.OrderKey(owner, sequenceID))
}

func (t *boltTx) InsertOrder(order storage.Order) error {
	b := t.tx.Bucket([]byte(bucketOrders))
	if b == nil {
		return fmt.Errorf("bucket missing: %s", bucketOrders)
	}
	if b.Get([]byte(storage.OrderKey(order.Owner, order.SequenceID))) != nil {
		return storage.ErrAlreadyExists
	}
	return t.PutOrder(order)
}

func (t *boltTx) PutOrder(order storage.Order) error {
	if order.Owner == "" {
		return fmt.Errorf("order owner is required")
	}
	return putBucketValue(t.tx, bucketOrders, storage.OrderKey(order.Owner, order.SequenceID), order)
}

func (t *boltTx) Orders(owner string) ([]storage.Order, error) {
	orders := make([]storage.Order, 0)
	b := t.tx.Bucket([]byte(bucketOrders))
	if b == nil {
		return orders, nil
	}
	prefix := []byte(storage.OrderPrefix(owner))
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var order storage.Order
		if err := unmarshal(v, &order); err != nil {
			return nil, err
		}
		// Owners may themselves contain the separator.
		if order.Owner != owner {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func packageKey(id uint32) string {
	return fmt.Sprintf("%010d", id)
}
