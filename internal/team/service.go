package team

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/store"
	"github.com/victornm/pubquiz/internal/telemetry"
)

const maxTeamNameLen = 100

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

// RegisterTeamRequest represents a request to register a team at a venue.
type RegisterTeamRequest struct {
	// SessionID is optional. When set, it must name the active session.
	SessionID string
	VenueID   string
	TeamName  string
	// EntryAnswer is the team's answer to the entry question.
	EntryAnswer *int64
}

// RegisterTeam registers a team against the active session. The name must be unique at the venue within the session.
func (s *Service) RegisterTeam(ctx context.Context, req RegisterTeamRequest) (t *domain.Team, err error) {
	defer func() { telemetry.ObserveTeamRegistration(err) }()

	name := strings.TrimSpace(req.TeamName)
	switch {
	case name == "":
		return nil, errors.Newf(errors.ReasonInvalidArgument, "team name is required")
	case utf8.RuneCountInString(name) > maxTeamNameLen:
		return nil, errors.Newf(errors.ReasonInvalidArgument, "team name exceeds %d characters", maxTeamNameLen)
	case req.EntryAnswer == nil:
		return nil, errors.Newf(errors.ReasonInvalidArgument, "entry answer is required")
	}

	if _, err := uuid.Parse(req.VenueID); err != nil {
		return nil, errors.Newf(errors.ReasonVenueNotFound, "venue not found: venue=%s", req.VenueID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate team ID: %w", err)
	}

	team := domain.Team{
		TeamID:      id.String(),
		VenueID:     req.VenueID,
		TeamName:    name,
		EntryAnswer: *req.EntryAnswer,
		CreatedAt:   s.now(),
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ss, err := tx.ActiveSession(ctx, store.LockShare)
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.Newf(errors.ReasonNoActiveSession, "no active quiz session")
		}
		if err != nil {
			return err
		}

		if req.SessionID != "" && req.SessionID != ss.SessionID {
			return errors.Newf(errors.ReasonNoActiveSession, "session is no longer active: session=%s", req.SessionID)
		}

		if _, err := tx.Venue(ctx, req.VenueID); stderrors.Is(err, store.ErrNotFound) {
			return errors.Newf(errors.ReasonVenueNotFound, "venue not found: venue=%s", req.VenueID)
		} else if err != nil {
			return err
		}

		team.SessionID = ss.SessionID
		err = tx.InsertTeam(ctx, team)
		if stderrors.Is(err, store.ErrConflict) {
			return errors.New(errors.CodeAlreadyExists,
				errors.WithReason(errors.ReasonDuplicateTeamName),
				errors.WithMessagef("team name is already taken at this venue: team=%s", name),
				errors.WithCause(err),
			)
		}
		return err
	})
	if err != nil {
		return nil, wrapTx(err)
	}

	s.eb.Publish(ctx, domain.EventTeamRegistered{Team: team})

	return &team, nil
}

type GetTeamRequest struct {
	TeamID string
}

func (s *Service) GetTeam(ctx context.Context, req GetTeamRequest) (*domain.Team, error) {
	if _, err := uuid.Parse(req.TeamID); err != nil {
		return nil, errors.Newf(errors.ReasonTeamNotFound, "team not found: team=%s", req.TeamID)
	}

	var t domain.Team
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = tx.Team(ctx, req.TeamID, store.LockNone)
		return err
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Newf(errors.ReasonTeamNotFound, "team not found: team=%s", req.TeamID)
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}

	return &t, nil
}

// wrapTx keeps domain errors as they are and reports anything else as a failed transaction.
func wrapTx(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}

	return errors.TransactionFailure(err)
}
