package domain

const (
	EventNameTeamRegistered     = "team.registered"
	EventNameScoreSubmitted     = "score.submitted"
	EventNameQuizArchived       = "quiz.archived"
	EventNameArchiveDeleted     = "archive.deleted"
	EventNameVenueUpdated       = "venue.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventTeamRegistered struct {
	Team Team
}

func (EventTeamRegistered) Name() string { return EventNameTeamRegistered }

type EventScoreSubmitted struct {
	Team  Team
	Round Round
}

func (EventScoreSubmitted) Name() string { return EventNameScoreSubmitted }

// EventQuizArchived is published after a rollover has committed.
type EventQuizArchived struct {
	Archive    Archive
	NewSession Session
}

func (EventQuizArchived) Name() string { return EventNameQuizArchived }

type EventArchiveDeleted struct {
	Archive      Archive
	DeletedTeams int
}

func (EventArchiveDeleted) Name() string { return EventNameArchiveDeleted }

type EventVenueUpdated struct {
	Venue Venue
}

func (EventVenueUpdated) Name() string { return EventNameVenueUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
