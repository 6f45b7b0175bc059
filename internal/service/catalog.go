package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/accesstime/internal/audit"
	"github.com/goodtune/accesstime/internal/auth"
	"github.com/goodtune/accesstime/internal/metrics"
	"github.com/goodtune/accesstime/internal/policy"
	"github.com/goodtune/accesstime/internal/storage"
)

// Init records the administrator and the token reference. It can run once,
// authenticated as the administrator being configured.
func (s *Service) Init(ctx context.Context, admin, tokenRef string) error {
	if admin == "" || tokenRef == "" {
		return fmt.Errorf("admin and token are required")
	}
	if err := authenticate(ctx, admin); err != nil {
		s.observe("init", err)
		return err
	}

	err := s.update(ctx, "init", func(tx storage.Tx, events *audit.Buffer) error {
		_, err := tx.Settings()
		if err == nil {
			return ErrAlreadyInitialized
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load settings: %w", err)
		}

		if err := tx.PutSettings(storage.Settings{Admin: admin, Token: tokenRef}); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}

		s.event(events, audit.TopicInit, map[string]any{
			"admin": admin,
			"token": tokenRef,
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("admin", admin).Str("token", tokenRef).Msg("Initialized")
	return nil
}

// Settings returns the administrator and token reference.
func (s *Service) Settings(ctx context.Context) (*storage.Settings, error) {
	var st *storage.Settings
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		st, err = settings(tx)
		return err
	})
	return st, err
}

// Admin returns the configured administrator.
func (s *Service) Admin(ctx context.Context) (string, error) {
	st, err := s.Settings(ctx)
	if err != nil {
		return "", err
	}
	return st.Admin, nil
}

// Token returns the configured token reference.
func (s *Service) Token(ctx context.Context) (string, error) {
	st, err := s.Settings(ctx)
	if err != nil {
		return "", err
	}
	return st.Token, nil
}

// SetPackage inserts or overwrites a catalog entry. Only the administrator
// may call it.
func (s *Service) SetPackage(ctx context.Context, id uint32, price, durationSecs uint64) error {
	pkg := storage.Package{ID: id, Price: price, DurationSecs: durationSecs}

	err := s.update(ctx, "set_package", func(tx storage.Tx, events *audit.Buffer) error {
		st, err := settings(tx)
		if err != nil {
			return err
		}

		caller, ok := auth.PrincipalFrom(ctx)
		if !ok {
			return unauthorized("no authenticated principal")
		}
		if err := s.authorize(ctx, policy.ActionSetPackage, caller, "", st.Admin); err != nil {
			return err
		}

		if err := tx.PutPackage(pkg); err != nil {
			return fmt.Errorf("save package: %w", err)
		}

		s.event(events, audit.TopicPackageSet, map[string]any{
			"id":            id,
			"price":         price,
			"duration_secs": durationSecs,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Add(id, pkg)
	}
	s.logger.Info().Uint32("package_id", id).Uint64("price", price).Uint64("duration_secs", durationSecs).Msg("Package set")
	return nil
}

// GetPackage returns a catalog entry.
func (s *Service) GetPackage(ctx context.Context, id uint32) (*storage.Package, error) {
	if s.cache != nil {
		if pkg, ok := s.cache.Get(id); ok {
			metrics.CatalogCacheHits.Inc()
			return &pkg, nil
		}
		metrics.CatalogCacheMisses.Inc()
	}

	var pkg *storage.Package
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		pkg, err = loadPackage(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(id, *pkg)
	}
	return pkg, nil
}

// ListPackages returns the whole catalog ordered by id.
func (s *Service) ListPackages(ctx context.Context) ([]storage.Package, error) {
	var packages []storage.Package
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		packages, err = tx.Packages()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}
