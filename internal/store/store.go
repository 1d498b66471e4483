// Package store defines the persistence contract of the quiz: sessions, teams, venues and archives.
//
// Every read and write goes through Store.InTx. A transaction either commits all of its effects or none,
// and row locks taken through Lock serialize the writes racing on the active session.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/victornm/pubquiz/internal/domain"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// Lock is the row lock taken by a read inside a transaction.
type Lock int

const (
	LockNone Lock = iota
	// LockShare blocks concurrent LockUpdate holders but not other readers.
	LockShare
	// LockUpdate blocks every other locking reader of the row.
	LockUpdate
)

type Store interface {
	// InTx runs fn in a transaction. The transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

type Tx interface {
	// ActiveSession returns the active session, or ErrNotFound.
	ActiveSession(ctx context.Context, lock Lock) (domain.Session, error)
	Session(ctx context.Context, sessionID string, lock Lock) (domain.Session, error)
	CreateSession(ctx context.Context, s domain.Session) error
	DeactivateSession(ctx context.Context, sessionID string) error

	Venue(ctx context.Context, venueID string) (domain.Venue, error)
	ListVenues(ctx context.Context) ([]domain.Venue, error)
	CreateVenue(ctx context.Context, v domain.Venue) error
	UpdateVenueBranding(ctx context.Context, venueID string, b domain.Branding) error

	// InsertTeam returns ErrConflict when the name is taken at the venue within the session.
	InsertTeam(ctx context.Context, t domain.Team) error
	Team(ctx context.Context, teamID string, lock Lock) (domain.Team, error)
	// SubmitRound sets the score and the submission flag of one round in a single update.
	SubmitRound(ctx context.Context, teamID string, r domain.Round, score decimal.Decimal) error
	// ListTeams returns the teams of a session in registration order.
	ListTeams(ctx context.Context, sessionID string) ([]domain.Team, error)

	// Leaderboard ranks the teams of a session within a scope. key selects the venue ID or region.
	Leaderboard(ctx context.Context, sessionID string, scope domain.Scope, key string) ([]domain.LeaderboardEntry, error)

	// LastArchiveNumber returns the highest archived quiz number, 0 when nothing was archived.
	LastArchiveNumber(ctx context.Context) (int, error)
	InsertArchive(ctx context.Context, a domain.Archive) error
	InsertArchivedRows(ctx context.Context, rows []domain.ArchivedRow) error
	Archive(ctx context.Context, archiveID string, lock Lock) (domain.Archive, error)
	// ListArchives returns archives most recent first.
	ListArchives(ctx context.Context) ([]domain.Archive, error)
	// ArchivedRows returns the rows of one projection ordered by rank.
	ArchivedRows(ctx context.Context, archiveID string, scope domain.Scope) ([]domain.ArchivedRow, error)
	// DeleteArchive removes the archive with its rows and returns the number of total-leaderboard rows removed.
	DeleteArchive(ctx context.Context, archiveID string) (int, error)
}
