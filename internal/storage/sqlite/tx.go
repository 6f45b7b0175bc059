package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goodtune/accesstime/internal/storage"
)

type sqliteTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) exec(query string, args ...interface{}) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, query, args...)
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func (t *sqliteTx) Settings() (*storage.Settings, error) {
	var settings storage.Settings
	err := t.tx.QueryRowContext(t.ctx, "SELECT admin, token FROM settings WHERE id = 1").
		Scan(&settings.Admin, &settings.Token)
	if err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

func (t *sqliteTx) PutSettings(settings storage.Settings) error {
	err := t.exec(`
		INSERT INTO settings (id, admin, token) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET admin = excluded.admin, token = excluded.token
	`, settings.Admin, settings.Token)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (t *sqliteTx) Package(id uint32) (*storage.Package, error) {
	var price, duration int64
	err := t.tx.QueryRowContext(t.ctx, "SELECT price, duration_secs FROM packages WHERE id = ?", id).
		Scan(&price, &duration)
	if err != nil {
		return nil, notFound(err)
	}
	return &storage.Package{ID: id, Price: uint64(price), DurationSecs: uint64(duration)}, nil
}

func (t *sqliteTx) PutPackage(pkg storage.Package) error {
	err := t.exec(`
		INSERT INTO packages (id, price, duration_secs) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET price = excluded.price, duration_secs = excluded.duration_secs
	`, pkg.ID, int64(pkg.Price), int64(pkg.DurationSecs))
	if err != nil {
		return fmt.Errorf("failed to save package: %w", err)
	}
	return nil
}

func (t *sqliteTx) Packages() ([]storage.Package, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT id, price, duration_secs FROM packages ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	packages := make([]storage.Package, 0)
	for rows.Next() {
		var id uint32
		var price, duration int64
		if err := rows.Scan(&id, &price, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, storage.Package{ID: id, Price: uint64(price), DurationSecs: uint64(duration)})
	}
	return packages, rows.Err()
}

func (t *sqliteTx) Session(owner string) (*storage.Session, error) {
	var remaining, started int64
	err := t.tx.QueryRowContext(t.ctx, "SELECT remaining_secs, started_at FROM sessions WHERE owner = ?", owner).
		Scan(&remaining, &started)
	if err != nil {
		return nil, notFound(err)
	}
	return &storage.Session{Owner: owner, RemainingSecs: uint64(remaining), StartedAt: uint64(started)}, nil
}

func (t *sqliteTx) PutSession(session storage.Session) error {
	if session.Owner == "" {
		return fmt.Errorf("session owner is required")
	}
	err := t.exec(`
		INSERT INTO sessions (owner, remaining_secs, started_at) VALUES (?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET remaining_secs = excluded.remaining_secs, started_at = excluded.started_at
	`, session.Owner, int64(session.RemainingSecs), int64(session.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (t *sqliteTx) Sequence(owner string) (uint64, error) {
	var value int64
	err := t.tx.QueryRowContext(t.ctx, "SELECT value FROM sequences WHERE owner = ?", owner).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return uint64(value), nil
}

func (t *sqliteTx) PutSequence(owner string, value uint64) error {
	err := t.exec(`
		INSERT INTO sequences (owner, value) VALUES (?, ?)
		ON CONFLICT(owner) DO UPDATE SET value = excluded.value
	`, owner, int64(value))
	if err != nil {
		return fmt.Errorf("failed to save sequence: %w", err)
	}
	return nil
}

func (t *sqliteTx) Order(owner string, sequenceID uint64) (*storage.Order, error) {
	var packageID uint32
	var credited bool
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT package_id, credited FROM orders WHERE owner = ? AND sequence_key = ?",
		owner, sequenceKey(sequenceID),
	).Scan(&packageID, &credited)
	if err != nil {
		return nil, notFound(err)
	}
	return &storage.Order{Owner: owner, SequenceID: sequenceID, PackageID: packageID, Credited: credited}, nil
}

func (t *sqliteTx) InsertOrder(order storage.Order) error {
	if _, err := t.Order(order.Owner, order.SequenceID); err == nil {
		return storage.ErrAlreadyExists
	} else if err != storage.ErrNotFound {
		return err
	}
	return t.PutOrder(order)
}

func (t *sqliteTx) PutOrder(order storage.Order) error {
	if order.Owner == "" {
		return fmt.Errorf("order owner is required")
	}
	err := t.exec(`
		INSERT INTO orders (owner, sequence_key, sequence_id, package_id, credited) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner, sequence_key) DO UPDATE SET package_id = excluded.package_id, credited = excluded.credited
	`, order.Owner, sequenceKey(order.SequenceID), int64(order.SequenceID), order.PackageID, order.Credited)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (t *sqliteTx) Orders(owner string) ([]storage.Order, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT sequence_id, package_id, credited FROM orders WHERE owner = ? ORDER BY sequence_key",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]storage.Order, 0)
	for rows.Next() {
		var seq int64
		order := storage.Order{Owner: owner}
		if err := rows.Scan(&seq, &order.PackageID, &order.Credited); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		order.SequenceID = uint64(seq)
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func sequenceKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
