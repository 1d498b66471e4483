package archive

import (
	"fmt"
	"time"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/store"
)

// Title formats the display title of an archive, e.g. "Quiz #12 - Week 41 2026".
func Title(number, week, year int) string {
	return fmt.Sprintf("Quiz #%d - Week %d %d", number, week, year)
}

// snapshot is the point-in-time copy of a closing session.
type snapshot struct {
	teams     int
	venues    int
	winner    *domain.Winner
	totalRows []domain.ArchivedRow
	venueRows []domain.ArchivedRow
}

func takeSnapshot(teams []domain.Team, venues []domain.Venue) snapshot {
	byID := make(map[string]domain.Venue, len(venues))
	for _, v := range venues {
		byID[v.VenueID] = v
	}

	seen := make(map[string]struct{})
	for _, t := range teams {
		seen[t.VenueID] = struct{}{}
	}

	total := store.Rank(teams, byID, nil)
	s := snapshot{
		teams:     len(teams),
		venues:    len(seen),
		totalRows: rows(domain.ScopeTotal, total),
		venueRows: rows(domain.ScopeVenue, store.Rank(teams, byID, store.GroupKey(domain.ScopeVenue))),
	}

	if len(total) > 0 {
		s.winner = &domain.Winner{
			TeamName:  total[0].TeamName,
			VenueName: total[0].VenueName,
			Score:     total[0].Total,
		}
	}

	return s
}

// rows copies ranked entries into archived rows. ArchiveID is set by rowsFor.
func rows(scope domain.Scope, entries []domain.LeaderboardEntry) []domain.ArchivedRow {
	out := make([]domain.ArchivedRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.ArchivedRow{
			Scope:     scope,
			Rank:      e.Rank,
			TeamID:    e.TeamID,
			TeamName:  e.TeamName,
			VenueID:   e.VenueID,
			VenueName: e.VenueName,
			Region:    e.Region,
			Round1:    e.Round1,
			Round2:    e.Round2,
			Bonus:     e.Bonus,
			Total:     e.Total,
		})
	}
	return out
}

func (s snapshot) archive(id string, ss domain.Session, number int, now time.Time) domain.Archive {
	year, week := ss.QuizDate.ISOWeek()
	return domain.Archive{
		ArchiveID:   id,
		SessionID:   ss.SessionID,
		QuizDate:    ss.QuizDate,
		Week:        week,
		Year:        year,
		Number:      number,
		Title:       Title(number, week, year),
		TotalTeams:  s.teams,
		TotalVenues: s.venues,
		Winner:      s.winner,
		ArchivedAt:  now,
	}
}

func (s snapshot) rowsFor(archiveID string) []domain.ArchivedRow {
	all := make([]domain.ArchivedRow, 0, len(s.totalRows)+len(s.venueRows))
	for _, rs := range [][]domain.ArchivedRow{s.totalRows, s.venueRows} {
		for _, r := range rs {
			r.ArchiveID = archiveID
			all = append(all, r)
		}
	}
	return all
}
