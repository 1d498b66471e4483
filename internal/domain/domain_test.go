package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/pubquiz/internal/domain"
)

func TestTeam_Total(t *testing.T) {
	tests := map[string]struct {
		team domain.Team
		want string
	}{
		"no rounds submitted": {
			team: domain.Team{},
			want: "0",
		},
		"only submitted rounds are counted": {
			team: domain.Team{
				Round1: domain.RoundScore{Score: decimal.NewFromInt(7), Submitted: true},
				Round2: domain.RoundScore{Score: decimal.NewFromInt(9), Submitted: false},
				Bonus:  domain.RoundScore{Score: decimal.RequireFromString("2.5"), Submitted: true},
			},
			want: "9.5",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.team.Total().String())
		})
	}
}

func TestParseRound(t *testing.T) {
	for _, r := range domain.Rounds {
		got, err := domain.ParseRound(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := domain.ParseRound("round3")
	require.Error(t, err)
}

func TestTeam_Round(t *testing.T) {
	var team domain.Team
	team.Round(domain.RoundBonus).Score = decimal.NewFromInt(3)
	team.Round(domain.RoundBonus).Submitted = true

	assert.True(t, team.Bonus.Submitted)
	assert.Nil(t, team.Round("round3"))
}
