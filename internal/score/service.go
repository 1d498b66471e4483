package score

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/store"
	"github.com/victornm/pubquiz/internal/telemetry"
)

// maxScoreDecimals matches the NUMERIC(10,2) score columns.
const maxScoreDecimals = 2

var maxScore = decimal.New(1, 8)

type Config struct {
	EventBus *event.Bus
	Store    store.Store
}

type Service struct {
	eb    *event.Bus
	store store.Store
}

func NewService(c Config) *Service {
	return &Service{
		eb:    c.EventBus,
		store: c.Store,
	}
}

type SubmitRoundScoreRequest struct {
	TeamID string
	Round  string
	// Score is the decimal text entered by the host, e.g. "7.5".
	Score string
}

// SubmitRoundScore records the score of one round for a team. A round can be submitted once per team,
// and only while the team's session is active.
func (s *Service) SubmitRoundScore(ctx context.Context, req SubmitRoundScoreRequest) (t *domain.Team, err error) {
	round, perr := domain.ParseRound(req.Round)

	label := string(round)
	if perr != nil {
		label = "unknown"
	}
	defer func() { telemetry.ObserveScoreSubmission(label, err) }()

	if perr != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidArgument),
			errors.WithMessagef("invalid round: %s", req.Round),
			errors.WithCause(perr),
		)
	}

	score, err := ParseScore(req.Score)
	if err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(req.TeamID); err != nil {
		return nil, errors.Newf(errors.ReasonTeamNotFound, "team not found: team=%s", req.TeamID)
	}

	var team domain.Team
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		team, err = tx.Team(ctx, req.TeamID, store.LockUpdate)
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.Newf(errors.ReasonTeamNotFound, "team not found: team=%s", req.TeamID)
		}
		if err != nil {
			return err
		}

		ss, err := tx.Session(ctx, team.SessionID, store.LockShare)
		if err != nil {
			return err
		}
		if !ss.Active {
			return errors.Newf(errors.ReasonNoActiveSession, "session is no longer active: session=%s", ss.SessionID)
		}

		if team.Round(round).Submitted {
			return errors.Newf(errors.ReasonAlreadySubmitted, "%s score already submitted: team=%s", round, team.TeamID)
		}

		if err := tx.SubmitRound(ctx, team.TeamID, round, score); err != nil {
			return err
		}

		team, err = tx.Team(ctx, team.TeamID, store.LockNone)
		return err
	})
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			return nil, e
		}
		return nil, errors.TransactionFailure(err)
	}

	s.eb.Publish(ctx, domain.EventScoreSubmitted{
		Team:  team,
		Round: round,
	})

	return &team, nil
}

// ParseScore parses a round score: a non-negative decimal with at most two decimal places.
func ParseScore(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidScore),
			errors.WithMessagef("score is not a number: %q", v),
			errors.WithCause(err),
		)
	}

	switch {
	case d.IsNegative():
		return decimal.Zero, errors.Newf(errors.ReasonInvalidScore, "score must not be negative: %s", v)
	case !d.Equal(d.Truncate(maxScoreDecimals)):
		return decimal.Zero, errors.Newf(errors.ReasonInvalidScore, "score has more than %d decimal places: %s", maxScoreDecimals, v)
	case d.GreaterThanOrEqual(maxScore):
		return decimal.Zero, errors.Newf(errors.ReasonInvalidScore, "score is too large: %s", v)
	}

	return d, nil
}
