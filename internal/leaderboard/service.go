package leaderboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/store"
	"github.com/victornm/pubquiz/internal/telemetry"
)

const (
	defaultPublishInterval = 200 * time.Millisecond
	defaultCacheTTL        = 30 * time.Second
	versionTTL             = 24 * time.Hour
)

type Config struct {
	EventBus        *event.Bus
	Store           store.Store
	Redis           redis.UniversalClient
	Prefix          string
	CacheTTL        time.Duration
	PublishInterval time.Duration
}

type Service struct {
	eb              *event.Bus
	store           store.Store
	redis           redis.UniversalClient
	prefix          string
	cacheTTL        time.Duration
	publishInterval time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:              c.EventBus,
		store:           c.Store,
		redis:           c.Redis,
		prefix:          c.Prefix,
		cacheTTL:        c.CacheTTL,
		publishInterval: c.PublishInterval,
	}

	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultCacheTTL
	}
	if s.publishInterval <= 0 {
		s.publishInterval = defaultPublishInterval
	}

	s.eb.Subscribe(domain.EventNameTeamRegistered, func(ctx context.Context, e event.Event) error {
		return s.Refresh(ctx, e.(domain.EventTeamRegistered).Team.SessionID)
	})
	s.eb.Subscribe(domain.EventNameScoreSubmitted, func(ctx context.Context, e event.Event) error {
		return s.Refresh(ctx, e.(domain.EventScoreSubmitted).Team.SessionID)
	})
	s.eb.Subscribe(domain.EventNameQuizArchived, func(ctx context.Context, e event.Event) error {
		qa := e.(domain.EventQuizArchived)
		if err := s.invalidate(ctx, qa.Archive.SessionID); err != nil {
			return err
		}
		return s.Refresh(ctx, qa.NewSession.SessionID)
	})
	s.eb.Subscribe(domain.EventNameVenueUpdated, func(ctx context.Context, _ event.Event) error {
		ss, err := s.activeSession(ctx)
		if err != nil {
			return err
		}
		return s.invalidate(ctx, ss.SessionID)
	})

	return s
}

type GetLeaderboardRequest struct {
	Scope domain.Scope
	// Key is the venue ID or region name. An empty key returns every group of the scope.
	Key string
}

// GetLeaderboard returns the ranked teams of the active session within a scope.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	switch req.Scope {
	case domain.ScopeTotal, domain.ScopeVenue, domain.ScopeRegion:
	default:
		return nil, errors.Newf(errors.ReasonInvalidArgument, "unknown leaderboard scope: %s", req.Scope)
	}

	ss, err := s.activeSession(ctx)
	if err != nil {
		return nil, err
	}

	return s.getLeaderboard(ctx, ss.SessionID, req.Scope, req.Key)
}

func (s *Service) getLeaderboard(ctx context.Context, sessionID string, scope domain.Scope, key string) (*domain.Leaderboard, error) {
	l := &domain.Leaderboard{
		SessionID: sessionID,
		Scope:     scope,
		Key:       key,
	}

	// The version is read before the store so that an invalidation racing with this read orphans the
	// entry written below instead of leaving a stale one.
	version, entries, ok := s.cached(ctx, sessionID, scope, key)
	telemetry.ObserveLeaderboardCache(ok)
	if ok {
		l.Entries = entries
		return l, nil
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		entries, err = tx.Leaderboard(ctx, sessionID, scope, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if version >= 0 {
		s.cache(ctx, sessionID, version, scope, key, entries)
	}

	l.Entries = entries
	return l, nil
}

func (s *Service) activeSession(ctx context.Context) (domain.Session, error) {
	var ss domain.Session
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ss, err = tx.ActiveSession(ctx, store.LockNone)
		return err
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return domain.Session{}, errors.Newf(errors.ReasonNoActiveSession, "no active quiz session")
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get active session: %w", err)
	}

	return ss, nil
}

// Refresh drops the cached leaderboards of a session and schedules a leaderboard.updated event.
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	if err := s.invalidate(ctx, sessionID); err != nil {
		return err
	}

	return s.schedulePublishLeaderboard(ctx, sessionID)
}

// schedulePublishLeaderboard publishes the total leaderboard at most once per publish interval.
// Scores arrive in bursts at the end of a round, so publishing on every change would flood subscribers.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, sessionID string) error {
	// SETNX keeps several instances from publishing the same window, but the window is only as precise as the key TTL.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(sessionID), time.Now().UnixMilli(), s.publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, sessionID)
}

func (s *Service) publishLeaderboard(ctx context.Context, sessionID string) error {
	l, err := s.getLeaderboard(ctx, sessionID, domain.ScopeTotal, "")
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", sessionID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(sessionID), time.Now().UnixMilli(), s.publishInterval).Err()
}

// cached reports a miss on any Redis failure, with a negative version when nothing should be cached.
// The store stays the source of truth.
func (s *Service) cached(ctx context.Context, sessionID string, scope domain.Scope, key string) (int64, []domain.LeaderboardEntry, bool) {
	version, err := s.redis.Get(ctx, s.getLeaderboardVersionKey(sessionID)).Int64()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "leaderboard: read cache version failed", "session_id", sessionID, "error", err)
		return -1, nil, false
	}

	b, err := s.redis.HGet(ctx, s.getLeaderboardKey(sessionID), field(version, scope, key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return version, nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: read cache failed", "session_id", sessionID, "error", err)
		return -1, nil, false
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		slog.WarnContext(ctx, "leaderboard: decode cache failed", "session_id", sessionID, "error", err)
		return version, nil, false
	}

	return version, entries, true
}

func (s *Service) cache(ctx context.Context, sessionID string, version int64, scope domain.Scope, key string, entries []domain.LeaderboardEntry) {
	b, err := json.Marshal(entries)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: encode cache failed", "session_id", sessionID, "error", err)
		return
	}

	k := s.getLeaderboardKey(sessionID)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, field(version, scope, key), b)
		p.Expire(ctx, k, s.cacheTTL)
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: write cache failed", "session_id", sessionID, "error", err)
	}
}

// invalidate bumps the cache version of a session and drops the entries cached under older versions.
func (s *Service) invalidate(ctx context.Context, sessionID string) error {
	vk := s.getLeaderboardVersionKey(sessionID)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, vk)
		p.Expire(ctx, vk, versionTTL)
		p.Del(ctx, s.getLeaderboardKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate leaderboard: %w", err)
	}
	return nil
}

func field(version int64, scope domain.Scope, key string) string {
	return fmt.Sprintf("%d|%s:%s", version, scope, key)
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardVersionKey(session string) string {
	return fmt.Sprintf("%s:%s:version", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}
