// Package service implements the catalog, order ledger, session accounting
// and the purchase/grant protocol on top of a transactional store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/accesstime/internal/audit"
	"github.com/goodtune/accesstime/internal/auth"
	"github.com/goodtune/accesstime/internal/clock"
	"github.com/goodtune/accesstime/internal/metrics"
	"github.com/goodtune/accesstime/internal/policy"
	"github.com/goodtune/accesstime/internal/storage"
	"github.com/goodtune/accesstime/internal/token"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

const (
	// DefaultCacheSize is the default number of cached catalog entries.
	DefaultCacheSize = 256

	// DefaultCacheTTL is how long a cached catalog entry is trusted.
	DefaultCacheTTL = 5 * time.Minute

	publishTimeout = 5 * time.Second
)

// Authorizer decides whether a principal may perform an action.
type Authorizer interface {
	Allow(ctx context.Context, in policy.Input) (bool, error)
}

// Config holds service tuning.
type Config struct {
	CacheSize int // zero disables the catalog cache; so does a shared store
	CacheTTL  time.Duration
}

// Dependencies are the collaborators the service is built on.
type Dependencies struct {
	Store      storage.Store
	Ledger     token.Ledger
	Authorizer Authorizer
	Clock      clock.Clock
	Sink       audit.Sink
}

// Service runs every operation as one store transaction. Events emitted by
// an operation are published only after it commits.
type Service struct {
	store  storage.Store
	ledger token.Ledger
	authz  Authorizer
	clock  clock.Clock
	sink   audit.Sink
	cache  *expirable.LRU[uint32, storage.Package]
	logger zerolog.Logger
}

// New creates a new service.
func New(deps Dependencies, cfg Config, logger zerolog.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	logger = logger.With().Str("component", "service").Logger()
	if deps.Sink == nil {
		deps.Sink = audit.NewLogSink(logger)
	}

	s := &Service{
		store:  deps.Store,
		ledger: deps.Ledger,
		authz:  deps.Authorizer,
		clock:  deps.Clock,
		sink:   deps.Sink,
		logger: logger,
	}
	switch {
	case cfg.CacheSize <= 0:
	case !storage.IsExclusive(deps.Store):
		// Other processes may rewrite the catalog; read through every time.
		logger.Debug().Msg("Catalog cache disabled for shared store")
	default:
		s.cache = expirable.NewLRU[uint32, storage.Package](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s
}

// update runs fn in a write transaction and publishes its events after a
// successful commit.
func (s *Service) update(ctx context.Context, op string, fn func(tx storage.Tx, events *audit.Buffer) error) error {
	var events audit.Buffer
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		events.Reset()
		return fn(tx, &events)
	})
	s.observe(op, err)
	if err != nil {
		return err
	}

	s.publish(events.Events())
	return nil
}

func (s *Service) view(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.store.View(ctx, fn)
}

// publish hands events to the sink. Failures are logged and counted; they
// never undo a committed operation.
func (s *Service) publish(events []audit.Event) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	for _, event := range events {
		if err := s.sink.Publish(ctx, event); err != nil {
			metrics.AuditPublishErrors.Inc()
			s.logger.Error().Err(err).
				Str("topic", string(event.Topic)).
				Str("event_id", event.ID).
				Msg("Failed to publish audit event")
		}
	}
}

func (s *Service) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if domainErr, ok := AsError(err); ok {
			result = domainErr.Name
		} else if errors.Is(err, token.ErrInsufficientFunds) {
			result = "InsufficientFunds"
		} else if errors.Is(err, token.ErrUnauthorized) {
			result = "TransferUnauthorized"
		}
	}
	metrics.OperationsTotal.WithLabelValues(op, result).Inc()

	switch {
	case err == nil:
	case result == "error":
		s.logger.Error().Err(err).Str("operation", op).Msg("Operation failed")
	default:
		s.logger.Warn().Err(err).Str("operation", op).Msg("Operation rejected")
	}
}

func (s *Service) event(events *audit.Buffer, topic audit.Topic, payload map[string]any) {
	events.Add(audit.NewEvent(topic, payload, s.clock.Now()))
}

func (s *Service) now() uint64 {
	return clock.Seconds(s.clock)
}

// authenticate returns the principal carried by ctx, which must be want.
func authenticate(ctx context.Context, want string) error {
	if err := auth.Require(ctx, want); err != nil {
		return unauthorized("%s is not authenticated", want)
	}
	return nil
}

// authorize asks the policy whether caller may act on owner's behalf.
func (s *Service) authorize(ctx context.Context, action policy.Action, caller, owner, admin string) error {
	allowed, err := s.authz.Allow(ctx, policy.Input{
		Action: action,
		Caller: caller,
		Owner:  owner,
		Admin:  admin,
	})
	if err != nil {
		return fmt.Errorf("authorize %s: %w", action, err)
	}
	if !allowed {
		return unauthorized("%s may not %s for %s", caller, action, owner)
	}
	return nil
}

// settings loads the singleton settings record.
func settings(tx storage.Tx) (*storage.Settings, error) {
	st, err := tx.Settings()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return st, nil
}

// adminOrEmpty returns the administrator, or "" before init.
func adminOrEmpty(tx storage.Tx) (string, error) {
	st, err := settings(tx)
	if errors.Is(err, ErrNotInitialized) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return st.Admin, nil
}

func loadPackage(tx storage.Tx, id uint32) (*storage.Package, error) {
	pkg, err := tx.Package(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load package %d: %w", id, err)
	}
	return pkg, nil
}
