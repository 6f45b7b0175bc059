package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/goodtune/accesstime/internal/storage"
)

// nextSequence allocates the owner's next order id.
func nextSequence(tx storage.Tx, owner string) (uint64, error) {
	current, err := tx.Sequence(owner)
	if err != nil {
		return 0, fmt.Errorf("load sequence: %w", err)
	}
	if current == math.MaxUint64 {
		return 0, ErrSequenceExhausted
	}

	next := current + 1
	if err := tx.PutSequence(owner, next); err != nil {
		return 0, fmt.Errorf("save sequence: %w", err)
	}
	return next, nil
}

// recordOrder stores a new uncredited order. A record already at the key
// means the sequence counter and order table disagree.
func recordOrder(tx storage.Tx, owner string, sequenceID uint64, packageID uint32) error {
	err := tx.InsertOrder(storage.Order{
		Owner:      owner,
		SequenceID: sequenceID,
		PackageID:  packageID,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return fmt.Errorf("order %s already recorded: sequence out of step", storage.OrderKey(owner, sequenceID))
	}
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}
	return nil
}

// markCredited flips an order's credited flag.
func markCredited(tx storage.Tx, order storage.Order) error {
	order.Credited = true
	if err := tx.PutOrder(order); err != nil {
		return fmt.Errorf("mark order credited: %w", err)
	}
	return nil
}

func loadOrder(tx storage.Tx, owner string, sequenceID uint64) (*storage.Order, error) {
	order, err := tx.Order(owner, sequenceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

// GetOrder returns one of owner's orders.
func (s *Service) GetOrder(ctx context.Context, owner string, sequenceID uint64) (*storage.Order, error) {
	var order *storage.Order
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		order, err = loadOrder(tx, owner, sequenceID)
		return err
	})
	return order, err
}

// ListOrders returns owner's orders in sequence order.
func (s *Service) ListOrders(ctx context.Context, owner string) ([]storage.Order, error) {
	var orders []storage.Order
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		orders, err = tx.Orders(owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
