package store

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/victornm/pubquiz/internal/domain"
)

// Rank orders teams by total score desc, then by team ID asc, and assigns competition ranks (1, 1, 3)
// within each group returned by groupKey. A nil groupKey ranks all teams together.
//
// Team IDs are UUIDv7, so ID order is registration order: on equal totals the earlier team comes first.
func Rank(teams []domain.Team, venues map[string]domain.Venue, groupKey func(domain.LeaderboardEntry) string) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(teams))
	for _, t := range teams {
		v := venues[t.VenueID]
		entries = append(entries, domain.LeaderboardEntry{
			TeamID:    t.TeamID,
			TeamName:  t.TeamName,
			VenueID:   t.VenueID,
			VenueName: v.Name,
			Region:    v.Region,
			Round1:    submitted(t.Round1),
			Round2:    submitted(t.Round2),
			Bonus:     submitted(t.Bonus),
			Total:     t.Total(),
		})
	}

	if groupKey == nil {
		groupKey = func(domain.LeaderboardEntry) string { return "" }
	}

	sort.SliceStable(entries, func(i, j int) bool {
		gi, gj := groupKey(entries[i]), groupKey(entries[j])
		if gi != gj {
			return gi < gj
		}
		if c := entries[i].Total.Cmp(entries[j].Total); c != 0 {
			return c > 0
		}
		return entries[i].TeamID < entries[j].TeamID
	})

	for i := range entries {
		switch {
		case i == 0 || groupKey(entries[i]) != groupKey(entries[i-1]):
			entries[i].Rank = 1
		case entries[i].Total.Equal(entries[i-1].Total):
			entries[i].Rank = entries[i-1].Rank
		default:
			entries[i].Rank = rankInGroup(entries, i, groupKey)
		}
	}

	return entries
}

// GroupKey returns the grouping used by a leaderboard scope.
func GroupKey(scope domain.Scope) func(domain.LeaderboardEntry) string {
	switch scope {
	case domain.ScopeVenue:
		return func(e domain.LeaderboardEntry) string { return e.VenueID }
	case domain.ScopeRegion:
		return func(e domain.LeaderboardEntry) string { return e.Region }
	default:
		return nil
	}
}

func rankInGroup(entries []domain.LeaderboardEntry, i int, groupKey func(domain.LeaderboardEntry) string) int {
	pos := 1
	for j := i - 1; j >= 0 && groupKey(entries[j]) == groupKey(entries[i]); j-- {
		pos++
	}
	return pos
}

func submitted(rs domain.RoundScore) decimal.Decimal {
	if !rs.Submitted {
		return decimal.Zero
	}
	return rs.Score
}
