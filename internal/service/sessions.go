package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/accesstime/internal/audit"
	"github.com/goodtune/accesstime/internal/policy"
	"github.com/goodtune/accesstime/internal/storage"
	"github.com/goodtune/accesstime/internal/usage"
)

// Access is the derived expiry of an owner's running session.
type Access struct {
	Owner     string `json:"owner"`
	ExpiresAt uint64 `json:"expires_at"` // 0 while paused
}

// loadSession returns owner's session, defaulting to an empty paused one.
func loadSession(tx storage.Tx, owner string) (storage.Session, error) {
	session, err := tx.Session(owner)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Session{Owner: owner}, nil
	}
	if err != nil {
		return storage.Session{}, fmt.Errorf("load session: %w", err)
	}
	return *session, nil
}

// Start runs owner's session clock from now. Sessions already running or
// with no balance are left as they are.
func (s *Service) Start(ctx context.Context, owner string) (storage.Session, usage.Transition, error) {
	return s.transition(ctx, "start", policy.ActionStart, owner, func(session *storage.Session, now uint64) usage.Transition {
		return usage.Start(session, now)
	})
}

// Pause stops owner's session clock, keeping what is left.
func (s *Service) Pause(ctx context.Context, owner string) (storage.Session, usage.Transition, error) {
	return s.transition(ctx, "pause", policy.ActionPause, owner, func(session *storage.Session, now uint64) usage.Transition {
		return usage.Pause(session, now)
	})
}

func (s *Service) transition(
	ctx context.Context,
	op string,
	action policy.Action,
	owner string,
	apply func(session *storage.Session, now uint64) usage.Transition,
) (storage.Session, usage.Transition, error) {
	if err := authenticate(ctx, owner); err != nil {
		s.observe(op, err)
		return storage.Session{}, usage.Unchanged, err
	}

	var (
		session storage.Session
		result  usage.Transition
	)
	err := s.update(ctx, op, func(tx storage.Tx, events *audit.Buffer) error {
		admin, err := adminOrEmpty(tx)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, action, owner, owner, admin); err != nil {
			return err
		}

		session, err = loadSession(tx, owner)
		if err != nil {
			return err
		}

		now := s.now()
		result = apply(&session, now)
		if result == usage.Unchanged {
			return nil
		}

		if err := tx.PutSession(session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		switch result {
		case usage.Started:
			s.event(events, audit.TopicStart, map[string]any{
				"owner":      owner,
				"started_at": session.StartedAt,
				"remaining":  session.RemainingSecs,
			})
		case usage.Paused:
			s.event(events, audit.TopicPause, map[string]any{
				"owner":     owner,
				"remaining": session.RemainingSecs,
			})
		}
		return nil
	})
	if err != nil {
		return storage.Session{}, usage.Unchanged, err
	}

	if result == usage.Unchanged {
		s.logger.Debug().Str("owner", owner).Str("operation", op).Msg("Session unchanged")
	} else {
		s.logger.Info().
			Str("owner", owner).
			Str("transition", result.String()).
			Uint64("remaining_secs", session.RemainingSecs).
			Uint64("started_at", session.StartedAt).
			Msg("Session transition")
	}
	return session, result, nil
}

// Session returns owner's stored session.
func (s *Service) Session(ctx context.Context, owner string) (storage.Session, error) {
	var session storage.Session
	err := s.view(ctx, func(tx storage.Tx) error {
		var err error
		session, err = loadSession(tx, owner)
		return err
	})
	return session, err
}

// Access returns when owner's running session expires.
func (s *Service) Access(ctx context.Context, owner string) (Access, error) {
	session, err := s.Session(ctx, owner)
	if err != nil {
		return Access{}, err
	}
	return Access{Owner: owner, ExpiresAt: usage.ExpiresAt(session)}, nil
}

// Remaining returns owner's effective balance at now.
func (s *Service) Remaining(ctx context.Context, owner string, now uint64) (uint64, error) {
	session, err := s.Session(ctx, owner)
	if err != nil {
		return 0, err
	}
	return usage.Remaining(session, now), nil
}

// IsActive reports whether owner's session is running with time left at now.
func (s *Service) IsActive(ctx context.Context, owner string, now uint64) (bool, error) {
	session, err := s.Session(ctx, owner)
	if err != nil {
		return false, err
	}
	return usage.IsActive(session, now), nil
}

// Now returns the service clock in seconds, for callers that query
// Remaining or IsActive without a time of their own.
func (s *Service) Now() uint64 {
	return s.now()
}
