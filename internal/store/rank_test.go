package store_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/store"
)

func TestRank(t *testing.T) {
	venues := map[string]domain.Venue{
		"v1": {VenueID: "v1", Name: "Pub One", Region: "East"},
		"v2": {VenueID: "v2", Name: "Pub Two", Region: "West"},
	}
	teams := []domain.Team{
		makeTeam("t1", "v1", 10),
		makeTeam("t2", "v1", 7),
		makeTeam("t3", "v2", 15),
		makeTeam("t4", "v2", 10),
	}

	type row struct {
		team string
		rank int
	}

	collect := func(entries []domain.LeaderboardEntry) []row {
		var rows []row
		for _, e := range entries {
			rows = append(rows, row{team: e.TeamID, rank: e.Rank})
		}
		return rows
	}

	tests := map[string]struct {
		scope domain.Scope
		want  []row
	}{
		"total ranks ties equally and breaks them by team ID": {
			scope: domain.ScopeTotal,
			want:  []row{{"t3", 1}, {"t1", 2}, {"t4", 2}, {"t2", 4}},
		},
		"venue ranks restart for every venue": {
			scope: domain.ScopeVenue,
			want:  []row{{"t1", 1}, {"t2", 2}, {"t3", 1}, {"t4", 2}},
		},
		"region ranks restart for every region": {
			scope: domain.ScopeRegion,
			want:  []row{{"t1", 1}, {"t2", 2}, {"t3", 1}, {"t4", 2}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := store.Rank(teams, venues, store.GroupKey(tt.scope))
			assert.Equal(t, tt.want, collect(got))
		})
	}
}

func TestRank_CopiesVenueAttributes(t *testing.T) {
	venues := map[string]domain.Venue{"v1": {VenueID: "v1", Name: "Pub One", Region: "East"}}
	team := makeTeam("t1", "v1", 4)
	team.Round2 = domain.RoundScore{Score: decimal.NewFromInt(99)}

	got := store.Rank([]domain.Team{team}, venues, nil)

	assert.Equal(t, "Pub One", got[0].VenueName)
	assert.Equal(t, "East", got[0].Region)
	assert.True(t, got[0].Round2.IsZero(), "unsubmitted rounds should be reported as zero")
	assert.Equal(t, "4", got[0].Total.String())
}

func makeTeam(id, venue string, total int64) domain.Team {
	return domain.Team{
		TeamID:   id,
		VenueID:  venue,
		TeamName: "team " + id,
		Round1:   domain.RoundScore{Score: decimal.NewFromInt(total), Submitted: true},
	}
}
