// Package memory is an in-process Store. Transactions are serialized by one mutex and work on a copy of
// the state that replaces the committed state only when the transaction succeeds.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/store"
)

type state struct {
	sessions map[string]domain.Session
	venues   map[string]domain.Venue
	teams    map[string]domain.Team
	archives map[string]domain.Archive
	rows     map[string][]domain.ArchivedRow
}

func (s *state) clone() *state {
	c := &state{
		sessions: maps.Clone(s.sessions),
		venues:   maps.Clone(s.venues),
		teams:    maps.Clone(s.teams),
		archives: maps.Clone(s.archives),
		rows:     make(map[string][]domain.ArchivedRow, len(s.rows)),
	}
	for id, rows := range s.rows {
		c.rows[id] = append([]domain.ArchivedRow(nil), rows...)
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		state: &state{
			sessions: make(map[string]domain.Session),
			venues:   make(map[string]domain.Venue),
			teams:    make(map[string]domain.Team),
			archives: make(map[string]domain.Archive),
			rows:     make(map[string][]domain.ArchivedRow),
		},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &tx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.state = tx.state
	return nil
}

func (*Store) Ping(context.Context) error { return nil }

type tx struct {
	state *state
}

func (t *tx) ActiveSession(_ context.Context, _ store.Lock) (domain.Session, error) {
	for _, ss := range t.state.sessions {
		if ss.Active {
			return ss, nil
		}
	}
	return domain.Session{}, store.ErrNotFound
}

func (t *tx) Session(_ context.Context, sessionID string, _ store.Lock) (domain.Session, error) {
	ss, ok := t.state.sessions[sessionID]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	return ss, nil
}

func (t *tx) CreateSession(ctx context.Context, ss domain.Session) error {
	if _, ok := t.state.sessions[ss.SessionID]; ok {
		return fmt.Errorf("session %s: %w", ss.SessionID, store.ErrConflict)
	}
	if ss.Active {
		if _, err := t.ActiveSession(ctx, store.LockNone); err == nil {
			return fmt.Errorf("second active session: %w", store.ErrConflict)
		}
	}
	if ss.CreatedAt.IsZero() {
		ss.CreatedAt = time.Now()
	}
	t.state.sessions[ss.SessionID] = ss
	return nil
}

func (t *tx) DeactivateSession(_ context.Context, sessionID string) error {
	ss, ok := t.state.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	ss.Active = false
	t.state.sessions[sessionID] = ss
	return nil
}

func (t *tx) Venue(_ context.Context, venueID string) (domain.Venue, error) {
	v, ok := t.state.venues[venueID]
	if !ok {
		return domain.Venue{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) ListVenues(context.Context) ([]domain.Venue, error) {
	venues := make([]domain.Venue, 0, len(t.state.venues))
	for _, v := range t.state.venues {
		venues = append(venues, v)
	}
	sort.Slice(venues, func(i, j int) bool {
		if venues[i].Name != venues[j].Name {
			return venues[i].Name < venues[j].Name
		}
		return venues[i].VenueID < venues[j].VenueID
	})
	return venues, nil
}

func (t *tx) CreateVenue(_ context.Context, v domain.Venue) error {
	for _, existing := range t.state.venues {
		if existing.VenueID == v.VenueID || existing.Name == v.Name {
			return fmt.Errorf("venue %s: %w", v.Name, store.ErrConflict)
		}
	}
	t.state.venues[v.VenueID] = v
	return nil
}

func (t *tx) UpdateVenueBranding(_ context.Context, venueID string, b domain.Branding) error {
	v, ok := t.state.venues[venueID]
	if !ok {
		return store.ErrNotFound
	}
	v.Branding = b
	t.state.venues[venueID] = v
	return nil
}

func (t *tx) InsertTeam(_ context.Context, team domain.Team) error {
	if _, ok := t.state.sessions[team.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", team.SessionID, store.ErrNotFound)
	}
	if _, ok := t.state.venues[team.VenueID]; !ok {
		return fmt.Errorf("venue %s: %w", team.VenueID, store.ErrNotFound)
	}
	for _, existing := range t.state.teams {
		if existing.TeamID == team.TeamID {
			return fmt.Errorf("team %s: %w", team.TeamID, store.ErrConflict)
		}
		if existing.SessionID == team.SessionID && existing.VenueID == team.VenueID && existing.TeamName == team.TeamName {
			return fmt.Errorf("team name %q: %w", team.TeamName, store.ErrConflict)
		}
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now()
	}
	t.state.teams[team.TeamID] = team
	return nil
}

func (t *tx) Team(_ context.Context, teamID string, _ store.Lock) (domain.Team, error) {
	team, ok := t.state.teams[teamID]
	if !ok {
		return domain.Team{}, store.ErrNotFound
	}
	return team, nil
}

func (t *tx) SubmitRound(_ context.Context, teamID string, r domain.Round, score decimal.Decimal) error {
	team, ok := t.state.teams[teamID]
	if !ok {
		return store.ErrNotFound
	}
	rs := team.Round(r)
	if rs == nil {
		return fmt.Errorf("unknown round %q", r)
	}
	*rs = domain.RoundScore{Score: score, Submitted: true}
	t.state.teams[teamID] = team
	return nil
}

func (t *tx) ListTeams(_ context.Context, sessionID string) ([]domain.Team, error) {
	var teams []domain.Team
	for _, team := range t.state.teams {
		if team.SessionID == sessionID {
			teams = append(teams, team)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].TeamID < teams[j].TeamID })
	return teams, nil
}

func (t *tx) Leaderboard(ctx context.Context, sessionID string, scope domain.Scope, key string) ([]domain.LeaderboardEntry, error) {
	teams, err := t.ListTeams(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	group := store.GroupKey(scope)
	entries := store.Rank(teams, t.state.venues, group)
	if group == nil || key == "" {
		return entries, nil
	}

	filtered := entries[:0]
	for _, e := range entries {
		if group(e) == key {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (t *tx) LastArchiveNumber(context.Context) (int, error) {
	var n int
	for _, a := range t.state.archives {
		n = max(n, a.Number)
	}
	return n, nil
}

func (t *tx) InsertArchive(_ context.Context, a domain.Archive) error {
	for _, existing := range t.state.archives {
		if existing.ArchiveID == a.ArchiveID || existing.Number == a.Number {
			return fmt.Errorf("archive #%d: %w", a.Number, store.ErrConflict)
		}
	}
	t.state.archives[a.ArchiveID] = a
	return nil
}

func (t *tx) InsertArchivedRows(_ context.Context, rows []domain.ArchivedRow) error {
	for _, r := range rows {
		if _, ok := t.state.archives[r.ArchiveID]; !ok {
			return fmt.Errorf("archive %s: %w", r.ArchiveID, store.ErrNotFound)
		}
		t.state.rows[r.ArchiveID] = append(t.state.rows[r.ArchiveID], r)
	}
	return nil
}

func (t *tx) Archive(_ context.Context, archiveID string, _ store.Lock) (domain.Archive, error) {
	a, ok := t.state.archives[archiveID]
	if !ok {
		return domain.Archive{}, store.ErrNotFound
	}
	return a, nil
}

func (t *tx) ListArchives(context.Context) ([]domain.Archive, error) {
	archives := make([]domain.Archive, 0, len(t.state.archives))
	for _, a := range t.state.archives {
		archives = append(archives, a)
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Number > archives[j].Number })
	return archives, nil
}

func (t *tx) ArchivedRows(_ context.Context, archiveID string, scope domain.Scope) ([]domain.ArchivedRow, error) {
	var rows []domain.ArchivedRow
	for _, r := range t.state.rows[archiveID] {
		if r.Scope == scope {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if scope == domain.ScopeVenue && rows[i].VenueName != rows[j].VenueName {
			return rows[i].VenueName < rows[j].VenueName
		}
		return rows[i].Rank < rows[j].Rank
	})
	return rows, nil
}

func (t *tx) DeleteArchive(_ context.Context, archiveID string) (int, error) {
	if _, ok := t.state.archives[archiveID]; !ok {
		return 0, store.ErrNotFound
	}

	var n int
	for _, r := range t.state.rows[archiveID] {
		if r.Scope == domain.ScopeTotal {
			n++
		}
	}
	delete(t.state.rows, archiveID)
	delete(t.state.archives, archiveID)
	return n, nil
}
