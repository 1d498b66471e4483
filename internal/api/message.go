package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
)

const dateLayout = "2006-01-02"

type (
	Failure struct {
		Success bool          `json:"success"`
		Reason  errors.Reason `json:"reason,omitempty"`
		Message string        `json:"message"`
	}

	Session struct {
		SessionID string `json:"session_id"`
		QuizDate  string `json:"quiz_date"`
		Active    bool   `json:"is_active"`
	}

	SessionResponse struct {
		Success bool    `json:"success"`
		Session Session `json:"session"`
	}

	StatsResponse struct {
		Success        bool   `json:"success"`
		SessionID      string `json:"session_id"`
		QuizDate       string `json:"quiz_date"`
		TotalTeams     int    `json:"total_teams"`
		ActiveVenues   int    `json:"active_venues"`
		NextQuizNumber int    `json:"next_quiz_number"`
	}

	RoundScore struct {
		Score     decimal.Decimal `json:"score"`
		Submitted bool            `json:"submitted"`
	}

	Team struct {
		TeamID      string          `json:"team_id"`
		SessionID   string          `json:"session_id"`
		VenueID     string          `json:"venue_id"`
		TeamName    string          `json:"team_name"`
		EntryAnswer int64           `json:"entry_answer"`
		Round1      RoundScore      `json:"round1"`
		Round2      RoundScore      `json:"round2"`
		Bonus       RoundScore      `json:"bonus"`
		TotalScore  decimal.Decimal `json:"total_score"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	TeamResponse struct {
		Success bool `json:"success"`
		Team    Team `json:"team"`
	}

	RegisterTeamRequest struct {
		SessionID   string `json:"session_id"`
		VenueID     string `json:"venue_id" binding:"required"`
		TeamName    string `json:"team_name"`
		EntryAnswer *int64 `json:"entry_answer"`
	}

	SubmitRoundScoreRequest struct {
		Score ScoreValue `json:"score"`
	}

	Branding struct {
		LogoURL        string `json:"logo_url"`
		PrimaryColor   string `json:"primary_color"`
		SecondaryColor string `json:"secondary_color"`
		GradientStart  string `json:"gradient_start"`
		GradientEnd    string `json:"gradient_end"`
		TextColor      string `json:"text_color"`
	}

	Venue struct {
		VenueID  string   `json:"venue_id"`
		Name     string   `json:"name"`
		Region   string   `json:"region"`
		Branding Branding `json:"branding"`
	}

	VenueResponse struct {
		Success bool  `json:"success"`
		Venue   Venue `json:"venue"`
	}

	VenuesResponse struct {
		Success bool    `json:"success"`
		Venues  []Venue `json:"venues"`
	}

	CreateVenueRequest struct {
		Name     string   `json:"name" binding:"required"`
		Region   string   `json:"region"`
		Branding Branding `json:"branding"`
	}

	LeaderboardEntry struct {
		Rank      int             `json:"rank"`
		TeamID    string          `json:"team_id"`
		TeamName  string          `json:"team_name"`
		VenueID   string          `json:"venue_id"`
		VenueName string          `json:"venue_name"`
		Region    string          `json:"region"`
		Round1    decimal.Decimal `json:"round1"`
		Round2    decimal.Decimal `json:"round2"`
		Bonus     decimal.Decimal `json:"bonus"`
		Total     decimal.Decimal `json:"total_score"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id"`
		Scope     domain.Scope       `json:"scope"`
		Key       string             `json:"key,omitempty"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardResponse struct {
		Success     bool        `json:"success"`
		Leaderboard Leaderboard `json:"leaderboard"`
	}

	Winner struct {
		TeamName  string          `json:"team_name"`
		VenueName string          `json:"venue_name"`
		Score     decimal.Decimal `json:"score"`
	}

	Archive struct {
		ArchiveID   string    `json:"archive_id"`
		QuizNumber  int       `json:"quiz_number"`
		Title       string    `json:"title"`
		QuizDate    string    `json:"quiz_date"`
		Week        int       `json:"week"`
		Year        int       `json:"year"`
		TotalTeams  int       `json:"total_teams"`
		TotalVenues int       `json:"total_venues"`
		Winner      *Winner   `json:"winner"`
		ArchivedAt  time.Time `json:"archived_at"`
	}

	ArchivesResponse struct {
		Success  bool      `json:"success"`
		Archives []Archive `json:"archives"`
	}

	ArchivedRow struct {
		Rank      int             `json:"rank"`
		TeamName  string          `json:"team_name"`
		VenueName string          `json:"venue_name"`
		Region    string          `json:"region"`
		Round1    decimal.Decimal `json:"round1"`
		Round2    decimal.Decimal `json:"round2"`
		Bonus     decimal.Decimal `json:"bonus"`
		Total     decimal.Decimal `json:"total_score"`
	}

	ArchiveResultsResponse struct {
		Success   bool          `json:"success"`
		Archive   Archive       `json:"archive_info"`
		TotalRows []ArchivedRow `json:"total_rows"`
		VenueRows []ArchivedRow `json:"venue_rows"`
	}

	RolloverResponse struct {
		Success        bool   `json:"success"`
		ArchivedTeams  int    `json:"archived_teams"`
		ArchivedVenues int    `json:"archived_venues"`
		QuizTitle      string `json:"quiz_title"`
		ArchiveID      string `json:"archive_id"`
		NewSessionID   string `json:"new_session_id"`
	}

	DeleteArchiveResponse struct {
		Success        bool   `json:"success"`
		DeletedArchive string `json:"deleted_archive"`
		DeletedTeams   int    `json:"deleted_teams"`
	}

	LoginRequest struct {
		Password string `json:"password" binding:"required"`
	}

	LoginResponse struct {
		Success   bool      `json:"success"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	MeResponse struct {
		Success       bool      `json:"success"`
		Authenticated bool      `json:"authenticated"`
		ExpiresAt     time.Time `json:"expires_at"`
	}

	SuccessResponse struct {
		Success bool `json:"success"`
	}
)

// ScoreValue accepts a score sent either as a JSON number or as a string, so "7.5" and 7.5 are equivalent.
type ScoreValue string

func (v *ScoreValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = ScoreValue(s)
		return nil
	}

	*v = ScoreValue(b)
	return nil
}

func toSession(ss domain.Session) Session {
	return Session{
		SessionID: ss.SessionID,
		QuizDate:  ss.QuizDate.Format(dateLayout),
		Active:    ss.Active,
	}
}

func toTeam(t domain.Team) Team {
	rs := func(r domain.RoundScore) RoundScore {
		return RoundScore{Score: r.Score, Submitted: r.Submitted}
	}

	return Team{
		TeamID:      t.TeamID,
		SessionID:   t.SessionID,
		VenueID:     t.VenueID,
		TeamName:    t.TeamName,
		EntryAnswer: t.EntryAnswer,
		Round1:      rs(t.Round1),
		Round2:      rs(t.Round2),
		Bonus:       rs(t.Bonus),
		TotalScore:  t.Total(),
		CreatedAt:   t.CreatedAt,
	}
}

func toVenue(v domain.Venue) Venue {
	return Venue{
		VenueID: v.VenueID,
		Name:    v.Name,
		Region:  v.Region,
		Branding: Branding{
			LogoURL:        v.Branding.LogoURL,
			PrimaryColor:   v.Branding.PrimaryColor,
			SecondaryColor: v.Branding.SecondaryColor,
			GradientStart:  v.Branding.GradientStart,
			GradientEnd:    v.Branding.GradientEnd,
			TextColor:      v.Branding.TextColor,
		},
	}
}

func (b Branding) toDomain() domain.Branding {
	return domain.Branding{
		LogoURL:        b.LogoURL,
		PrimaryColor:   b.PrimaryColor,
		SecondaryColor: b.SecondaryColor,
		GradientStart:  b.GradientStart,
		GradientEnd:    b.GradientEnd,
		TextColor:      b.TextColor,
	}
}

func toLeaderboard(l domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		SessionID: l.SessionID,
		Scope:     l.Scope,
		Key:       l.Key,
		Entries:   make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, e := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{
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

func toArchive(a domain.Archive) Archive {
	out := Archive{
		ArchiveID:   a.ArchiveID,
		QuizNumber:  a.Number,
		Title:       a.Title,
		QuizDate:    a.QuizDate.Format(dateLayout),
		Week:        a.Week,
		Year:        a.Year,
		TotalTeams:  a.TotalTeams,
		TotalVenues: a.TotalVenues,
		ArchivedAt:  a.ArchivedAt,
	}

	if a.Winner != nil {
		out.Winner = &Winner{
			TeamName:  a.Winner.TeamName,
			VenueName: a.Winner.VenueName,
			Score:     a.Winner.Score,
		}
	}

	return out
}

func toArchivedRows(rows []domain.ArchivedRow) []ArchivedRow {
	out := make([]ArchivedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, ArchivedRow{
			Rank:      r.Rank,
			TeamName:  r.TeamName,
			VenueName: r.VenueName,
			Region:    r.Region,
			Round1:    r.Round1,
			Round2:    r.Round2,
			Bonus:     r.Bonus,
			Total:     r.Total,
		})
	}
	return out
}
