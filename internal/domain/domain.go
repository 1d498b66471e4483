package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Session represents one live quiz competition window. At most one session is active at any time.
type Session struct {
	SessionID string
	QuizDate  time.Time
	Active    bool
	CreatedAt time.Time
}

// Round names one scored part of the quiz.
type Round string

const (
	RoundOne   Round = "round1"
	RoundTwo   Round = "round2"
	RoundBonus Round = "bonus"
)

var Rounds = []Round{RoundOne, RoundTwo, RoundBonus}

func ParseRound(s string) (Round, error) {
	for _, r := range Rounds {
		if string(r) == s {
			return r, nil
		}
	}

	return "", fmt.Errorf("unknown round %q", s)
}

// RoundScore is a score together with its submission flag. Score is zero until submitted.
type RoundScore struct {
	Score     decimal.Decimal
	Submitted bool
}

// Team is one competing unit at one venue within one session.
type Team struct {
	TeamID      string
	SessionID   string
	VenueID     string
	TeamName    string
	EntryAnswer int64
	Round1      RoundScore
	Round2      RoundScore
	Bonus       RoundScore
	CreatedAt   time.Time
}

// Round returns the score slot of r.
func (t *Team) Round(r Round) *RoundScore {
	switch r {
	case RoundOne:
		return &t.Round1
	case RoundTwo:
		return &t.Round2
	case RoundBonus:
		return &t.Bonus
	default:
		return nil
	}
}

// Total sums the submitted rounds only.
func (t Team) Total() decimal.Decimal {
	total := decimal.Zero
	for _, rs := range []RoundScore{t.Round1, t.Round2, t.Bonus} {
		if rs.Submitted {
			total = total.Add(rs.Score)
		}
	}

	return total
}

// Branding holds the presentation attributes of a venue.
type Branding struct {
	LogoURL        string
	PrimaryColor   string
	SecondaryColor string
	GradientStart  string
	GradientEnd    string
	TextColor      string
}

type Venue struct {
	VenueID  string
	Name     string
	Region   string
	Branding Branding
}

// Archive is an immutable snapshot of a finished session.
type Archive struct {
	ArchiveID   string
	SessionID   string
	QuizDate    time.Time
	Week        int
	Year        int
	Number      int
	Title       string
	TotalTeams  int
	TotalVenues int
	Winner      *Winner
	ArchivedAt  time.Time
}

type Winner struct {
	TeamName  string
	VenueName string
	Score     decimal.Decimal
}

// Scope selects a leaderboard projection.
type Scope string

const (
	ScopeTotal  Scope = "total"
	ScopeVenue  Scope = "venue"
	ScopeRegion Scope = "region"
)

// ArchivedRow is one team result copied into an archive. Values are copies, never references to live teams.
type ArchivedRow struct {
	ArchiveID string
	Scope     Scope
	Rank      int
	TeamID    string
	TeamName  string
	VenueID   string
	VenueName string
	Region    string
	Round1    decimal.Decimal
	Round2    decimal.Decimal
	Bonus     decimal.Decimal
	Total     decimal.Decimal
}

// Leaderboard represents the ranked teams of a session within one scope.
// Key is the venue ID or region name for scoped boards and empty for the total board.
type Leaderboard struct {
	SessionID string
	Scope     Scope
	Key       string
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank      int
	TeamID    string
	TeamName  string
	VenueID   string
	VenueName string
	Region    string
	Round1    decimal.Decimal
	Round2    decimal.Decimal
	Bonus     decimal.Decimal
	Total     decimal.Decimal
}
