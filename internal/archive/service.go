// Package archive closes quiz sessions into immutable archives and manages the archives afterwards.
package archive

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/session"
	"github.com/victornm/pubquiz/internal/store"
	"github.com/victornm/pubquiz/internal/telemetry"
)

type Config struct {
	Store    store.Store
	EventBus *event.Bus
	Now      func() time.Time
}

type Service struct {
	store store.Store
	eb    *event.Bus
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		eb:    c.EventBus,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type RolloverResult struct {
	ArchivedTeams  int
	ArchivedVenues int
	QuizTitle      string
	ArchiveID      string
	NewSessionID   string
}

// ArchiveCurrentQuiz snapshots the active session into a new archive, deactivates it and starts an empty
// session, all in one transaction. Registrations and submissions racing with it either land in the
// snapshot or fail with NoActiveSession.
func (s *Service) ArchiveCurrentQuiz(ctx context.Context) (res *RolloverResult, err error) {
	start := time.Now()
	defer func() { telemetry.ObserveRollover(start, err) }()

	now := s.now()

	archiveID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate archive ID: %w", err)
	}

	next, err := session.New(now)
	if err != nil {
		return nil, err
	}

	var a domain.Archive
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		closing, err := tx.ActiveSession(ctx, store.LockUpdate)
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.Newf(errors.ReasonNoActiveSession, "no active quiz session")
		}
		if err != nil {
			return fmt.Errorf("lock active session: %w", err)
		}

		teams, err := tx.ListTeams(ctx, closing.SessionID)
		if err != nil {
			return fmt.Errorf("list teams: %w", err)
		}

		venues, err := tx.ListVenues(ctx)
		if err != nil {
			return fmt.Errorf("list venues: %w", err)
		}

		last, err := tx.LastArchiveNumber(ctx)
		if err != nil {
			return fmt.Errorf("last archive number: %w", err)
		}

		snap := takeSnapshot(teams, venues)
		a = snap.archive(archiveID.String(), closing, last+1, now)

		if err := tx.InsertArchive(ctx, a); err != nil {
			return fmt.Errorf("insert archive: %w", err)
		}

		if err := tx.InsertArchivedRows(ctx, snap.rowsFor(a.ArchiveID)); err != nil {
			return fmt.Errorf("insert archived rows: %w", err)
		}

		if err := tx.DeactivateSession(ctx, closing.SessionID); err != nil {
			return fmt.Errorf("deactivate session: %w", err)
		}

		if err := tx.CreateSession(ctx, next); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ReasonNoActiveSession) {
			return nil, err
		}

		slog.ErrorContext(ctx, "archive: rollover failed", "error", err)
		return nil, errors.TransactionFailure(err)
	}

	slog.InfoContext(ctx, "archive: quiz archived",
		"archive_id", a.ArchiveID,
		"title", a.Title,
		"teams", a.TotalTeams,
		"venues", a.TotalVenues,
		"new_session_id", next.SessionID,
	)

	s.eb.Publish(ctx, domain.EventQuizArchived{
		Archive:    a,
		NewSession: next,
	})

	return &RolloverResult{
		ArchivedTeams:  a.TotalTeams,
		ArchivedVenues: a.TotalVenues,
		QuizTitle:      a.Title,
		ArchiveID:      a.ArchiveID,
		NewSessionID:   next.SessionID,
	}, nil
}

type DeleteArchiveRequest struct {
	ArchiveID string
}

type DeleteArchiveResult struct {
	DeletedArchive string
	DeletedTeams   int
}

// DeleteArchive removes an archive together with both of its leaderboard projections.
func (s *Service) DeleteArchive(ctx context.Context, req DeleteArchiveRequest) (res *DeleteArchiveResult, err error) {
	defer func() { telemetry.ObserveArchiveDeletion(err) }()

	if _, err := uuid.Parse(req.ArchiveID); err != nil {
		return nil, errors.Newf(errors.ReasonArchiveNotFound, "archive not found: archive=%s", req.ArchiveID)
	}

	var (
		a       domain.Archive
		deleted int
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = tx.Archive(ctx, req.ArchiveID, store.LockUpdate)
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.Newf(errors.ReasonArchiveNotFound, "archive not found: archive=%s", req.ArchiveID)
		}
		if err != nil {
			return fmt.Errorf("lock archive: %w", err)
		}

		deleted, err = tx.DeleteArchive(ctx, req.ArchiveID)
		if err != nil {
			return fmt.Errorf("delete archive: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ReasonArchiveNotFound) {
			return nil, err
		}

		slog.ErrorContext(ctx, "archive: delete failed", "archive_id", req.ArchiveID, "error", err)
		return nil, errors.TransactionFailure(err)
	}

	slog.InfoContext(ctx, "archive: archive deleted", "archive_id", a.ArchiveID, "title", a.Title, "teams", deleted)

	s.eb.Publish(ctx, domain.EventArchiveDeleted{
		Archive:      a,
		DeletedTeams: deleted,
	})

	return &DeleteArchiveResult{
		DeletedArchive: a.Title,
		DeletedTeams:   deleted,
	}, nil
}

// ListArchives returns every archive, most recent first.
func (s *Service) ListArchives(ctx context.Context) ([]domain.Archive, error) {
	var archives []domain.Archive
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		archives, err = tx.ListArchives(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	return archives, nil
}

type GetArchiveResultsRequest struct {
	ArchiveID string
}

type Results struct {
	Archive   domain.Archive
	TotalRows []domain.ArchivedRow
	VenueRows []domain.ArchivedRow
}

func (s *Service) GetArchiveResults(ctx context.Context, req GetArchiveResultsRequest) (*Results, error) {
	if _, err := uuid.Parse(req.ArchiveID); err != nil {
		return nil, errors.Newf(errors.ReasonArchiveNotFound, "archive not found: archive=%s", req.ArchiveID)
	}

	var res Results
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res.Archive, err = tx.Archive(ctx, req.ArchiveID, store.LockNone)
		if err != nil {
			return err
		}

		res.TotalRows, err = tx.ArchivedRows(ctx, req.ArchiveID, domain.ScopeTotal)
		if err != nil {
			return err
		}

		res.VenueRows, err = tx.ArchivedRows(ctx, req.ArchiveID, domain.ScopeVenue)
		return err
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Newf(errors.ReasonArchiveNotFound, "archive not found: archive=%s", req.ArchiveID)
	}
	if err != nil {
		return nil, fmt.Errorf("get archive results: %w", err)
	}

	return &res, nil
}
