package archive_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/pubquiz/internal/archive"
	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/score"
	"github.com/victornm/pubquiz/internal/session"
	"github.com/victornm/pubquiz/internal/store"
	"github.com/victornm/pubquiz/internal/store/memory"
	"github.com/victornm/pubquiz/internal/team"
)

// 2026-10-15 is a Thursday in ISO week 42.
var quizDay = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

type fixture struct {
	store   store.Store
	eb      *event.Bus
	archive *archive.Service
	session *session.Service
	team    *team.Service
	score   *score.Service
	venues  map[string]string
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()

	ctx := context.Background()
	eb := event.NewBus()
	t.Cleanup(eb.Stop)
	now := func() time.Time { return quizDay }

	f := &fixture{
		store:   st,
		eb:      eb,
		archive: archive.NewService(archive.Config{Store: st, EventBus: eb, Now: now}),
		session: session.NewService(session.Config{Store: st, Now: now}),
		team:    team.NewService(team.Config{Store: st, EventBus: eb, Now: now}),
		score:   score.NewService(score.Config{Store: st, EventBus: eb}),
		venues:  make(map[string]string),
	}

	_, err := f.session.Bootstrap(ctx)
	require.NoError(t, err)

	for _, v := range []domain.Venue{
		{VenueID: uuid.NewString(), Name: "venue1", Region: "North"},
		{VenueID: uuid.NewString(), Name: "venue2", Region: "South"},
	} {
		require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.CreateVenue(ctx, v)
		}))
		f.venues[v.Name] = v.VenueID
	}

	return f
}

// addTeam registers a team and submits round1 with the given score.
func (f *fixture) addTeam(t *testing.T, venue, name string, round1 string) *domain.Team {
	t.Helper()

	ctx := context.Background()
	entry := int64(0)
	tm, err := f.team.RegisterTeam(ctx, team.RegisterTeamRequest{VenueID: f.venues[venue], TeamName: name, EntryAnswer: &entry})
	require.NoError(t, err)

	tm, err = f.score.SubmitRoundScore(ctx, score.SubmitRoundScoreRequest{TeamID: tm.TeamID, Round: "round1", Score: round1})
	require.NoError(t, err)

	return tm
}

func TestService_ArchiveCurrentQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	before, err := f.session.GetActiveSession(ctx)
	require.NoError(t, err)

	f.addTeam(t, "venue1", "A", "10")
	f.addTeam(t, "venue1", "B", "7")
	f.addTeam(t, "venue2", "C", "15")

	archived := make(chan domain.EventQuizArchived, 1)
	f.eb.Subscribe(domain.EventNameQuizArchived, func(_ context.Context, e event.Event) error {
		archived <- e.(domain.EventQuizArchived)
		return nil
	})

	res, err := f.archive.ArchiveCurrentQuiz(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.ArchivedTeams)
	require.Equal(t, 2, res.ArchivedVenues)
	require.Equal(t, "Quiz #1 - Week 42 2026", res.QuizTitle)

	results, err := f.archive.GetArchiveResults(ctx, archive.GetArchiveResultsRequest{ArchiveID: res.ArchiveID})
	require.NoError(t, err)
	require.Equal(t, before.SessionID, results.Archive.SessionID)
	require.NotNil(t, results.Archive.Winner)
	require.Equal(t, "C", results.Archive.Winner.TeamName)
	require.Equal(t, "venue2", results.Archive.Winner.VenueName)
	require.True(t, decimal.NewFromInt(15).Equal(results.Archive.Winner.Score))
	require.Equal(t, 42, results.Archive.Week)
	require.Equal(t, 2026, results.Archive.Year)

	require.Len(t, results.TotalRows, 3)
	require.Equal(t, []string{"C", "A", "B"}, names(results.TotalRows))
	require.Equal(t, []int{1, 2, 3}, ranks(results.TotalRows))

	require.Len(t, results.VenueRows, 3)
	require.Equal(t, []string{"A", "B", "C"}, names(results.VenueRows))
	require.Equal(t, []int{1, 2, 1}, ranks(results.VenueRows))

	next, err := f.session.GetActiveSession(ctx)
	require.NoError(t, err)
	require.Equal(t, res.NewSessionID, next.SessionID)
	require.NotEqual(t, before.SessionID, next.SessionID)

	stats, err := f.session.GetStats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalTeams)
	require.Equal(t, 2, stats.NextQuizNumber)

	require.NoError(t, f.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := tx.Session(ctx, before.SessionID, store.LockNone)
		require.NoError(t, err)
		require.False(t, old.Active)
		return nil
	}))

	f.eb.Wait()
	e := <-archived
	require.Equal(t, res.ArchiveID, e.Archive.ArchiveID)
	require.Equal(t, res.NewSessionID, e.NewSession.SessionID)
}

func TestService_ArchiveCurrentQuiz_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	want := decimal.Zero
	for i, s := range []string{"3.5", "12", "0", "8.25", "12"} {
		venue := "venue1"
		if i%2 == 1 {
			venue = "venue2"
		}
		tm := f.addTeam(t, venue, fmt.Sprintf("team-%d", i), s)

		tm, err := f.score.SubmitRoundScore(ctx, score.SubmitRoundScoreRequest{TeamID: tm.TeamID, Round: "bonus", Score: "1.5"})
		require.NoError(t, err)
		want = want.Add(tm.Total())
	}

	res, err := f.archive.ArchiveCurrentQuiz(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, res.ArchivedTeams)
	require.Equal(t, 2, res.ArchivedVenues)

	results, err := f.archive.GetArchiveResults(ctx, archive.GetArchiveResultsRequest{ArchiveID: res.ArchiveID})
	require.NoError(t, err)

	require.True(t, want.Equal(sum(results.TotalRows)), "want %s, got %s", want, sum(results.TotalRows))
	require.True(t, want.Equal(sum(results.VenueRows)), "want %s, got %s", want, sum(results.VenueRows))

	// Equal totals share a rank, the earlier registration is listed first.
	require.Equal(t, []string{"team-1", "team-4"}, names(results.TotalRows[:2]))
	require.Equal(t, []int{1, 1, 3, 4, 5}, ranks(results.TotalRows))
}

func TestService_ArchiveCurrentQuiz_Sequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	first, err := f.archive.ArchiveCurrentQuiz(ctx)
	require.NoError(t, err)
	require.Zero(t, first.ArchivedTeams)
	require.Equal(t, "Quiz #1 - Week 42 2026", first.QuizTitle)

	f.addTeam(t, "venue2", "A", "1")

	second, err := f.archive.ArchiveCurrentQuiz(ctx)
	require.NoError(t, err)
	require.Equal(t, "Quiz #2 - Week 42 2026", second.QuizTitle)

	archives, err := f.archive.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 2)
	require.Equal(t, second.ArchiveID, archives[0].ArchiveID)
	require.Equal(t, first.ArchiveID, archives[1].ArchiveID)
	require.Nil(t, archives[1].Winner)
}

func TestService_ArchiveCurrentQuiz_NoActiveSession(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s := archive.NewService(archive.Config{Store: st, EventBus: event.NewBus()})

	_, err := s.ArchiveCurrentQuiz(ctx)
	require.True(t, errors.Is(err, errors.ReasonNoActiveSession), "got %v", err)

	archives, err := s.ListArchives(ctx)
	require.NoError(t, err)
	require.Empty(t, archives)
}

func TestService_ArchiveCurrentQuiz_Rollback(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: memory.New(), err: stderrors.New("disk full")}
	f := newFixture(t, st)

	before, err := f.session.GetActiveSession(ctx)
	require.NoError(t, err)
	f.addTeam(t, "venue1", "A", "10")

	st.failRows = true
	_, err = f.archive.ArchiveCurrentQuiz(ctx)
	require.True(t, errors.Is(err, errors.ReasonTransactionFailure), "got %v", err)
	require.ErrorIs(t, err, st.err)

	after, err := f.session.GetActiveSession(ctx)
	require.NoError(t, err)
	require.Equal(t, before.SessionID, after.SessionID)

	archives, err := f.archive.ListArchives(ctx)
	require.NoError(t, err)
	require.Empty(t, archives)

	stats, err := f.session.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalTeams)
}

func TestService_ArchiveCurrentQuiz_ConcurrentSubmissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	const n = 20
	teams := make([]*domain.Team, n)
	for i := range teams {
		entry := int64(i)
		tm, err := f.team.RegisterTeam(ctx, team.RegisterTeamRequest{VenueID: f.venues["venue1"], TeamName: fmt.Sprintf("team-%d", i), EntryAnswer: &entry})
		require.NoError(t, err)
		teams[i] = tm
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded = make(map[string]bool)
		rollover  *archive.RolloverResult
	)

	wg.Add(n + 1)
	for _, tm := range teams {
		go func() {
			defer wg.Done()

			_, err := f.score.SubmitRoundScore(ctx, score.SubmitRoundScoreRequest{TeamID: tm.TeamID, Round: "round1", Score: "5"})
			if err != nil {
				assert.True(t, errors.Is(err, errors.ReasonNoActiveSession), "got %v", err)
				return
			}

			mu.Lock()
			succeeded[tm.TeamID] = true
			mu.Unlock()
		}()
	}
	go func() {
		defer wg.Done()

		res, err := f.archive.ArchiveCurrentQuiz(ctx)
		assert.NoError(t, err)
		rollover = res
	}()
	wg.Wait()
	require.NotNil(t, rollover)

	results, err := f.archive.GetArchiveResults(ctx, archive.GetArchiveResultsRequest{ArchiveID: rollover.ArchiveID})
	require.NoError(t, err)
	require.Len(t, results.TotalRows, n)

	for _, r := range results.TotalRows {
		if succeeded[r.TeamID] {
			require.True(t, decimal.NewFromInt(5).Equal(r.Round1), "team %s lost its submission", r.TeamName)
		} else {
			require.True(t, r.Round1.IsZero(), "team %s has a rejected submission", r.TeamName)
		}
	}
}

func TestService_DeleteArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	f.addTeam(t, "venue1", "A", "10")
	f.addTeam(t, "venue2", "B", "3")
	keep, err := f.archive.ArchiveCurrentQuiz(ctx)
	require.NoError(t, err)

	f.addTeam(t, "venue1", "C", "1")
	res, err := f.archive.ArchiveCurrentQuiz(ctx)
	require.NoError(t, err)

	deleted, err := f.archive.DeleteArchive(ctx, archive.DeleteArchiveRequest{ArchiveID: keep.ArchiveID})
	require.NoError(t, err)
	require.Equal(t, keep.QuizTitle, deleted.DeletedArchive)
	require.Equal(t, 2, deleted.DeletedTeams)

	archives, err := f.archive.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, res.ArchiveID, archives[0].ArchiveID)

	require.NoError(t, f.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, scope := range []domain.Scope{domain.ScopeTotal, domain.ScopeVenue} {
			rows, err := tx.ArchivedRows(ctx, keep.ArchiveID, scope)
			require.NoError(t, err)
			require.Empty(t, rows)
		}
		return nil
	}))

	_, err = f.archive.GetArchiveResults(ctx, archive.GetArchiveResultsRequest{ArchiveID: keep.ArchiveID})
	require.True(t, errors.Is(err, errors.ReasonArchiveNotFound), "got %v", err)

	_, err = f.archive.DeleteArchive(ctx, archive.DeleteArchiveRequest{ArchiveID: keep.ArchiveID})
	require.True(t, errors.Is(err, errors.ReasonArchiveNotFound), "got %v", err)

	_, err = f.archive.DeleteArchive(ctx, archive.DeleteArchiveRequest{ArchiveID: "bogus"})
	require.True(t, errors.Is(err, errors.ReasonArchiveNotFound), "got %v", err)

	// The remaining archive is untouched.
	results, err := f.archive.GetArchiveResults(ctx, archive.GetArchiveResultsRequest{ArchiveID: res.ArchiveID})
	require.NoError(t, err)
	require.Len(t, results.TotalRows, 1)
}

func TestTitle(t *testing.T) {
	require.Equal(t, "Quiz #7 - Week 1 2027", archive.Title(7, 1, 2027))
}

// failingStore fails InsertArchivedRows once failRows is set.
type failingStore struct {
	store.Store
	err      error
	failRows bool
}

func (s *failingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, s: s})
	})
}

type failingTx struct {
	store.Tx
	s *failingStore
}

func (t *failingTx) InsertArchivedRows(ctx context.Context, rows []domain.ArchivedRow) error {
	if t.s.failRows {
		return t.s.err
	}
	return t.Tx.InsertArchivedRows(ctx, rows)
}

func names(rows []domain.ArchivedRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.TeamName)
	}
	return out
}

func ranks(rows []domain.ArchivedRow) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Rank)
	}
	return out
}

func sum(rows []domain.ArchivedRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Total)
	}
	return total
}
