package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/store"
)

type Config struct {
	Store store.Store
	Now   func() time.Time
}

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// GetActiveSession returns the session currently accepting registrations and scores.
func (s *Service) GetActiveSession(ctx context.Context) (*domain.Session, error) {
	var ss domain.Session
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ss, err = tx.ActiveSession(ctx, store.LockNone)
		return err
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Newf(errors.ReasonNoActiveSession, "no active quiz session")
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}

	return &ss, nil
}

// Bootstrap creates an active session when none exists, e.g. on a fresh database.
// It returns the active session either way.
func (s *Service) Bootstrap(ctx context.Context) (*domain.Session, error) {
	var (
		ss      domain.Session
		created bool
	)

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ss, err = tx.ActiveSession(ctx, store.LockShare)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, store.ErrNotFound) {
			return err
		}

		ss, err = New(s.now())
		if err != nil {
			return err
		}

		created = true
		return tx.CreateSession(ctx, ss)
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap session: %w", err)
	}

	if created {
		slog.InfoContext(ctx, "session: created initial session", "session_id", ss.SessionID)
	}

	return &ss, nil
}

// New returns a fresh active session for the given day.
func New(now time.Time) (domain.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Session{}, fmt.Errorf("generate session ID: %w", err)
	}

	y, m, d := now.Date()
	return domain.Session{
		SessionID: id.String(),
		QuizDate:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Active:    true,
		CreatedAt: now,
	}, nil
}

type Stats struct {
	Session        domain.Session
	TotalTeams     int
	ActiveVenues   int
	NextQuizNumber int
}

// GetStats summarizes the active session as it would be archived now.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ss, err := tx.ActiveSession(ctx, store.LockNone)
		if err != nil {
			return err
		}

		teams, err := tx.ListTeams(ctx, ss.SessionID)
		if err != nil {
			return err
		}

		last, err := tx.LastArchiveNumber(ctx)
		if err != nil {
			return err
		}

		venues := make(map[string]struct{})
		for _, t := range teams {
			venues[t.VenueID] = struct{}{}
		}

		st = Stats{
			Session:        ss,
			TotalTeams:     len(teams),
			ActiveVenues:   len(venues),
			NextQuizNumber: last + 1,
		}
		return nil
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Newf(errors.ReasonNoActiveSession, "no active quiz session")
	}
	if err != nil {
		return nil, fmt.Errorf("get session stats: %w", err)
	}

	return &st, nil
}
