package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/store"
)

const codeUniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// InTx runs fn in a READ COMMITTED transaction. Writers racing on the active session are serialized
// by the row locks requested through store.Lock.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	ptx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, ptx.Rollback(ctx))
		}
	}()

	if err = fn(ctx, &tx{tx: ptx}); err != nil {
		return err
	}

	if err = ptx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

type tx struct {
	tx pgx.Tx
}

func lockClause(l store.Lock) string {
	switch l {
	case store.LockShare:
		return " FOR SHARE"
	case store.LockUpdate:
		return " FOR UPDATE"
	default:
		return ""
	}
}

func notFound(err error) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func conflict(err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrConflict)
	}
	return err
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

const sessionColumns = `session_id, quiz_date, is_active, created_at`

func scanSession(row pgx.Row) (domain.Session, error) {
	var ss domain.Session
	err := row.Scan(&ss.SessionID, &ss.QuizDate, &ss.Active, &ss.CreatedAt)
	return ss, notFound(err)
}

func (t *tx) ActiveSession(ctx context.Context, lock store.Lock) (domain.Session, error) {
	stmt := `SELECT ` + sessionColumns + ` FROM quiz_sessions WHERE is_active` + lockClause(lock)
	return scanSession(t.tx.QueryRow(ctx, stmt))
}

func (t *tx) Session(ctx context.Context, sessionID string, lock store.Lock) (domain.Session, error) {
	stmt := `SELECT ` + sessionColumns + ` FROM quiz_sessions WHERE session_id = $1` + lockClause(lock)
	return scanSession(t.tx.QueryRow(ctx, stmt, sessionID))
}

func (t *tx) CreateSession(ctx context.Context, ss domain.Session) error {
	const stmt = `INSERT INTO quiz_sessions (session_id, quiz_date, is_active) VALUES ($1, $2, $3);`

	_, err := t.tx.Exec(ctx, stmt, ss.SessionID, ss.QuizDate, ss.Active)
	if err != nil {
		return fmt.Errorf("insert session: %w", conflict(err))
	}
	return nil
}

func (t *tx) DeactivateSession(ctx context.Context, sessionID string) error {
	const stmt = `UPDATE quiz_sessions SET is_active = FALSE WHERE session_id = $1;`

	tag, err := t.tx.Exec(ctx, stmt, sessionID)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const venueColumns = `venue_id, name, region, logo_url, primary_color, secondary_color,
	background_gradient_start, background_gradient_end, text_color`

func scanVenue(row pgx.Row) (domain.Venue, error) {
	var v domain.Venue
	err := row.Scan(&v.VenueID, &v.Name, &v.Region,
		&v.Branding.LogoURL, &v.Branding.PrimaryColor, &v.Branding.SecondaryColor,
		&v.Branding.GradientStart, &v.Branding.GradientEnd, &v.Branding.TextColor)
	return v, notFound(err)
}

func (t *tx) Venue(ctx context.Context, venueID string) (domain.Venue, error) {
	return scanVenue(t.tx.QueryRow(ctx, `SELECT `+venueColumns+` FROM venues WHERE venue_id = $1`, venueID))
}

func (t *tx) ListVenues(ctx context.Context) ([]domain.Venue, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+venueColumns+` FROM venues ORDER BY name, venue_id`)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Venue, error) {
		return scanVenue(r)
	})
}

func (t *tx) CreateVenue(ctx context.Context, v domain.Venue) error {
	stmt := `INSERT INTO venues (` + venueColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	b := v.Branding
	_, err := t.tx.Exec(ctx, stmt, v.VenueID, v.Name, v.Region,
		b.LogoURL, b.PrimaryColor, b.SecondaryColor, b.GradientStart, b.GradientEnd, b.TextColor)
	if err != nil {
		return fmt.Errorf("insert venue: %w", conflict(err))
	}
	return nil
}

func (t *tx) UpdateVenueBranding(ctx context.Context, venueID string, b domain.Branding) error {
	const stmt = `
UPDATE venues
SET logo_url = $2, primary_color = $3, secondary_color = $4,
    background_gradient_start = $5, background_gradient_end = $6, text_color = $7
WHERE venue_id = $1;`

	tag, err := t.tx.Exec(ctx, stmt, venueID,
		b.LogoURL, b.PrimaryColor, b.SecondaryColor, b.GradientStart, b.GradientEnd, b.TextColor)
	if err != nil {
		return fmt.Errorf("update venue branding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const teamColumns = `team_id, session_id, venue_id, team_name, entry_answer,
	round1_score, round1_submitted, round2_score, round2_submitted, bonus_score, bonus_submitted, created_at`

func scanTeam(row pgx.Row) (domain.Team, error) {
	var (
		tm         domain.Team
		r1, r2, bn pgtype.Numeric
	)

	err := row.Scan(&tm.TeamID, &tm.SessionID, &tm.VenueID, &tm.TeamName, &tm.EntryAnswer,
		&r1, &tm.Round1.Submitted, &r2, &tm.Round2.Submitted, &bn, &tm.Bonus.Submitted, &tm.CreatedAt)
	if err != nil {
		return domain.Team{}, notFound(err)
	}

	tm.Round1.Score = fromNumeric(r1)
	tm.Round2.Score = fromNumeric(r2)
	tm.Bonus.Score = fromNumeric(bn)
	return tm, nil
}

func (t *tx) InsertTeam(ctx context.Context, tm domain.Team) error {
	const stmt = `
INSERT INTO teams (team_id, session_id, venue_id, team_name, entry_answer)
VALUES ($1, $2, $3, $4, $5);`

	_, err := t.tx.Exec(ctx, stmt, tm.TeamID, tm.SessionID, tm.VenueID, tm.TeamName, tm.EntryAnswer)
	if err != nil {
		return fmt.Errorf("insert team: %w", conflict(err))
	}
	return nil
}

func (t *tx) Team(ctx context.Context, teamID string, lock store.Lock) (domain.Team, error) {
	stmt := `SELECT ` + teamColumns + ` FROM teams WHERE team_id = $1` + lockClause(lock)
	return scanTeam(t.tx.QueryRow(ctx, stmt, teamID))
}

func (t *tx) SubmitRound(ctx context.Context, teamID string, r domain.Round, score decimal.Decimal) error {
	var stmt string
	switch r {
	case domain.RoundOne:
		stmt = `UPDATE teams SET round1_score = $2, round1_submitted = TRUE WHERE team_id = $1;`
	case domain.RoundTwo:
		stmt = `UPDATE teams SET round2_score = $2, round2_submitted = TRUE WHERE team_id = $1;`
	case domain.RoundBonus:
		stmt = `UPDATE teams SET bonus_score = $2, bonus_submitted = TRUE WHERE team_id = $1;`
	default:
		return fmt.Errorf("unknown round %q", r)
	}

	tag, err := t.tx.Exec(ctx, stmt, teamID, numeric(score))
	if err != nil {
		return fmt.Errorf("submit %s: %w", r, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) ListTeams(ctx context.Context, sessionID string) ([]domain.Team, error) {
	stmt := `SELECT ` + teamColumns + ` FROM teams WHERE session_id = $1 ORDER BY team_id`

	rows, err := t.tx.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Team, error) {
		return scanTeam(r)
	})
}

func (t *tx) Leaderboard(ctx context.Context, sessionID string, scope domain.Scope, key string) ([]domain.LeaderboardEntry, error) {
	const columns = `team_id, team_name, venue_id, venue_name, region, round1_score, round2_score, bonus_score, total_score`

	var stmt string
	switch scope {
	case domain.ScopeTotal:
		stmt = `SELECT total_rank, ` + columns + ` FROM total_leaderboard
WHERE session_id = $1 AND $2 = ''
ORDER BY total_rank, team_id`
	case domain.ScopeVenue:
		stmt = `SELECT venue_rank, ` + columns + ` FROM venue_leaderboard
WHERE session_id = $1 AND ($2 = '' OR venue_id::text = $2)
ORDER BY venue_id, venue_rank, team_id`
	case domain.ScopeRegion:
		stmt = `SELECT region_rank, ` + columns + ` FROM region_leaderboard
WHERE session_id = $1 AND ($2 = '' OR region = $2)
ORDER BY region, region_rank, team_id`
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	if scope == domain.ScopeTotal {
		key = ""
	}

	rows, err := t.tx.Query(ctx, stmt, sessionID, key)
	if err != nil {
		return nil, fmt.Errorf("query %s leaderboard: %w", scope, err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var (
			e             domain.LeaderboardEntry
			r1, r2, bn, tot pgtype.Numeric
		)
		if err := r.Scan(&e.Rank, &e.TeamID, &e.TeamName, &e.VenueID, &e.VenueName, &e.Region, &r1, &r2, &bn, &tot); err != nil {
			return domain.LeaderboardEntry{}, err
		}
		e.Round1, e.Round2, e.Bonus, e.Total = fromNumeric(r1), fromNumeric(r2), fromNumeric(bn), fromNumeric(tot)
		return e, nil
	})
}

func (t *tx) LastArchiveNumber(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(quiz_number), 0) FROM quiz_archives`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("last archive number: %w", err)
	}
	return n, nil
}

func (t *tx) InsertArchive(ctx context.Context, a domain.Archive) error {
	const stmt = `
INSERT INTO quiz_archives (archive_id, session_id, quiz_date, quiz_week, quiz_year, quiz_number, quiz_title,
	total_teams, total_venues, winner_team, winner_venue, winner_score, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	var (
		winnerTeam, winnerVenue pgtype.Text
		winnerScore             pgtype.Numeric
	)
	if a.Winner != nil {
		winnerTeam = pgtype.Text{String: a.Winner.TeamName, Valid: true}
		winnerVenue = pgtype.Text{String: a.Winner.VenueName, Valid: true}
		winnerScore = numeric(a.Winner.Score)
	}

	_, err := t.tx.Exec(ctx, stmt, a.ArchiveID, a.SessionID, a.QuizDate, a.Week, a.Year, a.Number, a.Title,
		a.TotalTeams, a.TotalVenues, winnerTeam, winnerVenue, winnerScore, a.ArchivedAt)
	if err != nil {
		return fmt.Errorf("insert archive: %w", conflict(err))
	}
	return nil
}

// InsertArchivedRows bulk-copies the rows of both projections with the COPY protocol.
func (t *tx) InsertArchivedRows(ctx context.Context, rows []domain.ArchivedRow) error {
	byScope := map[domain.Scope][]domain.ArchivedRow{}
	for _, r := range rows {
		byScope[r.Scope] = append(byScope[r.Scope], r)
	}

	tables := []struct {
		scope   domain.Scope
		table   string
		rankCol string
	}{
		{domain.ScopeTotal, "archived_total_leaderboard", "total_rank"},
		{domain.ScopeVenue, "archived_venue_leaderboard", "venue_rank"},
	}

	for _, tb := range tables {
		rs := byScope[tb.scope]
		if len(rs) == 0 {
			continue
		}

		columns := []string{"archive_id", tb.rankCol, "team_id", "team_name", "venue_id", "venue_name", "region",
			"round1_score", "round2_score", "bonus_score", "total_score"}

		n, err := t.tx.CopyFrom(ctx, pgx.Identifier{tb.table}, columns, pgx.CopyFromSlice(len(rs), func(i int) ([]any, error) {
			r := rs[i]
			return []any{r.ArchiveID, r.Rank, r.TeamID, r.TeamName, r.VenueID, r.VenueName, r.Region,
				numeric(r.Round1), numeric(r.Round2), numeric(r.Bonus), numeric(r.Total)}, nil
		}))
		if err != nil {
			return fmt.Errorf("copy %s: %w", tb.table, conflict(err))
		}
		if int(n) != len(rs) {
			return fmt.Errorf("copy %s: copied %d of %d rows", tb.table, n, len(rs))
		}
	}

	return nil
}

const archiveColumns = `archive_id, session_id, quiz_date, quiz_week, quiz_year, quiz_number, quiz_title,
	total_teams, total_venues, winner_team, winner_venue, winner_score, archived_at`

func scanArchive(row pgx.Row) (domain.Archive, error) {
	var (
		a                       domain.Archive
		winnerTeam, winnerVenue pgtype.Text
		winnerScore             pgtype.Numeric
	)

	err := row.Scan(&a.ArchiveID, &a.SessionID, &a.QuizDate, &a.Week, &a.Year, &a.Number, &a.Title,
		&a.TotalTeams, &a.TotalVenues, &winnerTeam, &winnerVenue, &winnerScore, &a.ArchivedAt)
	if err != nil {
		return domain.Archive{}, notFound(err)
	}

	if winnerTeam.Valid {
		a.Winner = &domain.Winner{
			TeamName:  winnerTeam.String,
			VenueName: winnerVenue.String,
			Score:     fromNumeric(winnerScore),
		}
	}
	return a, nil
}

func (t *tx) Archive(ctx context.Context, archiveID string, lock store.Lock) (domain.Archive, error) {
	stmt := `SELECT ` + archiveColumns + ` FROM quiz_archives WHERE archive_id = $1` + lockClause(lock)
	return scanArchive(t.tx.QueryRow(ctx, stmt, archiveID))
}

func (t *tx) ListArchives(ctx context.Context) ([]domain.Archive, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+archiveColumns+` FROM quiz_archives ORDER BY quiz_number DESC`)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Archive, error) {
		return scanArchive(r)
	})
}

func (t *tx) ArchivedRows(ctx context.Context, archiveID string, scope domain.Scope) ([]domain.ArchivedRow, error) {
	const columns = `team_id, team_name, venue_id, venue_name, region, round1_score, round2_score, bonus_score, total_score`

	var stmt string
	switch scope {
	case domain.ScopeTotal:
		stmt = `SELECT total_rank, ` + columns + ` FROM archived_total_leaderboard WHERE archive_id = $1 ORDER BY total_rank, team_id`
	case domain.ScopeVenue:
		stmt = `SELECT venue_rank, ` + columns + ` FROM archived_venue_leaderboard WHERE archive_id = $1 ORDER BY venue_name, venue_rank, team_id`
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	rows, err := t.tx.Query(ctx, stmt, archiveID)
	if err != nil {
		return nil, fmt.Errorf("query archived %s rows: %w", scope, err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ArchivedRow, error) {
		var (
			ar             domain.ArchivedRow
			r1, r2, bn, tot pgtype.Numeric
		)
		if err := r.Scan(&ar.Rank, &ar.TeamID, &ar.TeamName, &ar.VenueID, &ar.VenueName, &ar.Region, &r1, &r2, &bn, &tot); err != nil {
			return domain.ArchivedRow{}, err
		}
		ar.ArchiveID, ar.Scope = archiveID, scope
		ar.Round1, ar.Round2, ar.Bonus, ar.Total = fromNumeric(r1), fromNumeric(r2), fromNumeric(bn), fromNumeric(tot)
		return ar, nil
	})
}

// DeleteArchive deletes the rows of both projections before the archive itself, so the result does not
// depend on the cascade being present.
func (t *tx) DeleteArchive(ctx context.Context, archiveID string) (int, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM archived_total_leaderboard WHERE archive_id = $1`, archiveID)
	if err != nil {
		return 0, fmt.Errorf("delete archived total rows: %w", err)
	}
	n := int(tag.RowsAffected())

	if _, err := t.tx.Exec(ctx, `DELETE FROM archived_venue_leaderboard WHERE archive_id = $1`, archiveID); err != nil {
		return 0, fmt.Errorf("delete archived venue rows: %w", err)
	}

	tag, err = t.tx.Exec(ctx, `DELETE FROM quiz_archives WHERE archive_id = $1`, archiveID)
	if err != nil {
		return 0, fmt.Errorf("delete archive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, store.ErrNotFound
	}

	return n, nil
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
