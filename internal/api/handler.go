package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/pubquiz/internal/archive"
	"github.com/victornm/pubquiz/internal/auth"
	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/leaderboard"
	"github.com/victornm/pubquiz/internal/score"
	"github.com/victornm/pubquiz/internal/team"
	"github.com/victornm/pubquiz/internal/venue"
)

func (a *API) GetActiveSession(c *gin.Context) {
	ss, err := a.qss.GetActiveSession(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionResponse{Success: true, Session: toSession(*ss)})
}

func (a *API) GetStats(c *gin.Context) {
	st, err := a.qss.GetStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		Success:        true,
		SessionID:      st.Session.SessionID,
		QuizDate:       st.Session.QuizDate.Format(dateLayout),
		TotalTeams:     st.TotalTeams,
		ActiveVenues:   st.ActiveVenues,
		NextQuizNumber: st.NextQuizNumber,
	})
}

func (a *API) RegisterTeam(c *gin.Context) {
	var req RegisterTeamRequest
	if !bind(c, &req) {
		return
	}

	t, err := a.ts.RegisterTeam(c.Request.Context(), team.RegisterTeamRequest{
		SessionID:   req.SessionID,
		VenueID:     req.VenueID,
		TeamName:    req.TeamName,
		EntryAnswer: req.EntryAnswer,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, TeamResponse{Success: true, Team: toTeam(*t)})
}

func (a *API) GetTeam(c *gin.Context) {
	t, err := a.ts.GetTeam(c.Request.Context(), team.GetTeamRequest{TeamID: c.Param("id")})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, TeamResponse{Success: true, Team: toTeam(*t)})
}

func (a *API) SubmitRoundScore(c *gin.Context) {
	var req SubmitRoundScoreRequest
	if !bind(c, &req) {
		return
	}

	t, err := a.ss.SubmitRoundScore(c.Request.Context(), score.SubmitRoundScoreRequest{
		TeamID: c.Param("id"),
		Round:  c.Param("round"),
		Score:  string(req.Score),
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, TeamResponse{Success: true, Team: toTeam(*t)})
}

func (a *API) ListVenues(c *gin.Context) {
	venues, err := a.vs.ListVenues(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	resp := VenuesResponse{Success: true, Venues: make([]Venue, 0, len(venues))}
	for _, v := range venues {
		resp.Venues = append(resp.Venues, toVenue(v))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetVenue(c *gin.Context) {
	v, err := a.vs.GetVenue(c.Request.Context(), venue.GetVenueRequest{VenueID: c.Param("id")})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, VenueResponse{Success: true, Venue: toVenue(*v)})
}

func (a *API) CreateVenue(c *gin.Context) {
	var req CreateVenueRequest
	if !bind(c, &req) {
		return
	}

	v, err := a.vs.CreateVenue(c.Request.Context(), venue.CreateVenueRequest{
		Name:     req.Name,
		Region:   req.Region,
		Branding: req.Branding.toDomain(),
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, VenueResponse{Success: true, Venue: toVenue(*v)})
}

func (a *API) UpdateBranding(c *gin.Context) {
	var req Branding
	if !bind(c, &req) {
		return
	}

	v, err := a.vs.UpdateBranding(c.Request.Context(), venue.UpdateBrandingRequest{
		VenueID:  c.Param("id"),
		Branding: req.toDomain(),
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, VenueResponse{Success: true, Venue: toVenue(*v)})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Scope: domain.Scope(c.Param("scope")),
		Key:   c.Query("key"),
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, LeaderboardResponse{Success: true, Leaderboard: toLeaderboard(*l)})
}

func (a *API) ListArchives(c *gin.Context) {
	archives, err := a.as.ListArchives(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	resp := ArchivesResponse{Success: true, Archives: make([]Archive, 0, len(archives))}
	for _, ar := range archives {
		resp.Archives = append(resp.Archives, toArchive(ar))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) GetArchiveResults(c *gin.Context) {
	res, err := a.as.GetArchiveResults(c.Request.Context(), archive.GetArchiveResultsRequest{ArchiveID: c.Param("id")})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ArchiveResultsResponse{
		Success:   true,
		Archive:   toArchive(res.Archive),
		TotalRows: toArchivedRows(res.TotalRows),
		VenueRows: toArchivedRows(res.VenueRows),
	})
}

func (a *API) ArchiveCurrentQuiz(c *gin.Context) {
	res, err := a.as.ArchiveCurrentQuiz(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, RolloverResponse{
		Success:        true,
		ArchivedTeams:  res.ArchivedTeams,
		ArchivedVenues: res.ArchivedVenues,
		QuizTitle:      res.QuizTitle,
		ArchiveID:      res.ArchiveID,
		NewSessionID:   res.NewSessionID,
	})
}

func (a *API) DeleteArchive(c *gin.Context) {
	res, err := a.as.DeleteArchive(c.Request.Context(), archive.DeleteArchiveRequest{ArchiveID: c.Param("id")})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteArchiveResponse{
		Success:        true,
		DeletedArchive: res.DeletedArchive,
		DeletedTeams:   res.DeletedTeams,
	})
}

func (a *API) Login(c *gin.Context) {
	var req LoginRequest
	if !bind(c, &req) {
		return
	}

	tok, err := a.auth.Login(auth.LoginRequest{Password: req.Password})
	if err != nil {
		fail(c, err)
		return
	}

	a.setAdminCookie(c, tok.Value, int(tok.ExpiresAt.Sub(a.now()).Seconds()))
	c.JSON(http.StatusOK, LoginResponse{Success: true, Token: tok.Value, ExpiresAt: tok.ExpiresAt})
}

func (a *API) Me(c *gin.Context) {
	c.JSON(http.StatusOK, MeResponse{
		Success:       true,
		Authenticated: true,
		ExpiresAt:     c.GetTime(ctxKeyAdminExpiry),
	})
}

// Logout clears the admin cookie. Tokens are stateless and stay valid until they expire.
func (a *API) Logout(c *gin.Context) {
	a.setAdminCookie(c, "", -1)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (a *API) setAdminCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(adminCookie, value, maxAge, "/", "", a.secureCookie, true)
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidArgument),
			errors.WithMessagef("invalid request body: %v", err),
			errors.WithCause(err),
		))
		return false
	}

	return true
}

// fail renders err as a Failure. Internal errors are logged and their details kept out of the response.
func fail(c *gin.Context, err error) {
	e := errors.Convert(err)

	msg := e.Message
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"request_id", c.GetString(ctxKeyRequestID),
			"path", c.FullPath(),
			"error", err,
		)
		msg = "internal error"
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), Failure{
		Success: false,
		Reason:  e.Reason,
		Message: msg,
	})
}
