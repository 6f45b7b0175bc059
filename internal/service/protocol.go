package service

import (
	"context"
	"fmt"

	"github.com/goodtune/accesstime/internal/audit"
	"github.com/goodtune/accesstime/internal/metrics"
	"github.com/goodtune/accesstime/internal/policy"
	"github.com/goodtune/accesstime/internal/storage"
	"github.com/goodtune/accesstime/internal/usage"
)

// Purchase pays for a package and records an uncredited order, returning
// its id. The session is not touched; see Grant.
//
// The transfer is the last step of the transaction, so every local check has
// passed before money moves. Ledger errors are returned unchanged. The
// configured ledger settles the payment; the token reference recorded at init
// is carried on the purchase event for reconciliation.
func (s *Service) Purchase(ctx context.Context, owner string, packageID uint32) (uint64, error) {
	if err := authenticate(ctx, owner); err != nil {
		s.observe("purchase", err)
		return 0, err
	}

	var (
		orderID uint64
		price   uint64
		paid    bool
	)
	err := s.update(ctx, "purchase", func(tx storage.Tx, events *audit.Buffer) error {
		st, err := settings(tx)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, policy.ActionPurchase, owner, owner, st.Admin); err != nil {
			return err
		}

		pkg, err := loadPackage(tx, packageID)
		if err != nil {
			return err
		}
		price = pkg.Price

		balance, err := s.ledger.Balance(ctx, owner)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		if balance < pkg.Price {
			return ErrInsufficientBalance
		}

		orderID, err = nextSequence(tx, owner)
		if err != nil {
			return err
		}
		if err := recordOrder(tx, owner, orderID, packageID); err != nil {
			return err
		}

		if err := s.ledger.Transfer(ctx, owner, st.Admin, pkg.Price); err != nil {
			return err
		}
		paid = true

		s.event(events, audit.TopicPurchaseCreated, map[string]any{
			"owner":      owner,
			"package_id": packageID,
			"order_id":   orderID,
			"price":      pkg.Price,
			"token":      st.Token,
		})
		return nil
	})
	if err != nil {
		if paid {
			metrics.UnrecordedPayments.Inc()
			s.logger.Error().Err(err).
				Str("owner", owner).
				Uint32("package_id", packageID).
				Uint64("price", price).
				Msg("Payment settled but order was not committed")
		}
		return 0, err
	}

	metrics.PurchaseVolume.Add(float64(price))
	s.logger.Info().
		Str("owner", owner).
		Uint32("package_id", packageID).
		Uint64("order_id", orderID).
		Uint64("price", price).
		Msg("Purchase recorded")
	return orderID, nil
}

// Grant credits a purchased order's duration to the owner's session. The
// caller must be the owner or the administrator. The package is resolved
// at grant time, so catalog edits since the purchase apply. Returns the
// session's new stored balance.
func (s *Service) Grant(ctx context.Context, caller, owner string, orderID uint64) (uint64, error) {
	if err := authenticate(ctx, caller); err != nil {
		s.observe("grant", err)
		return 0, err
	}

	var (
		remaining uint64
		credited  uint64
	)
	err := s.update(ctx, "grant", func(tx storage.Tx, events *audit.Buffer) error {
		st, err := settings(tx)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, policy.ActionGrant, caller, owner, st.Admin); err != nil {
			return err
		}

		order, err := loadOrder(tx, owner, orderID)
		if err != nil {
			return err
		}
		if order.Credited {
			return ErrAlreadyGranted
		}

		pkg, err := loadPackage(tx, order.PackageID)
		if err != nil {
			return err
		}

		session, err := loadSession(tx, owner)
		if err != nil {
			return err
		}
		remaining = usage.Credit(&session, pkg.DurationSecs)
		credited = pkg.DurationSecs
		if err := tx.PutSession(session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		if err := markCredited(tx, *order); err != nil {
			return err
		}

		s.event(events, audit.TopicGrant, map[string]any{
			"owner":     owner,
			"order_id":  orderID,
			"remaining": remaining,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.CreditedSeconds.Add(float64(credited))
	s.logger.Info().
		Str("caller", caller).
		Str("owner", owner).
		Uint64("order_id", orderID).
		Uint64("remaining_secs", remaining).
		Msg("Order granted")
	return remaining, nil
}
