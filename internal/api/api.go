// Package api exposes the quiz over HTTP and fans domain events out to Redis pub/sub channels.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/pubquiz/internal/archive"
	"github.com/victornm/pubquiz/internal/auth"
	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/leaderboard"
	"github.com/victornm/pubquiz/internal/score"
	"github.com/victornm/pubquiz/internal/session"
	"github.com/victornm/pubquiz/internal/team"
	"github.com/victornm/pubquiz/internal/venue"
)

const adminCookie = "admin_token"

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	Team         *team.Service
	Score        *score.Service
	Venue        *venue.Service
	Leaderboard  *leaderboard.Service
	Archive      *archive.Service
	Auth         *auth.Service
	Redis        Redis
	PubsubPrefix string
	// SecureCookie marks the admin cookie Secure. Enable it behind TLS.
	SecureCookie bool
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qss  *session.Service
	ts   *team.Service
	ss   *score.Service
	vs   *venue.Service
	ls   *leaderboard.Service
	as   *archive.Service
	auth *auth.Service

	redis        Redis
	prefix       string
	secureCookie bool
	now          func() time.Time
}

func New(c Config) *API {
	a := &API{
		qss:          c.Session,
		ts:           c.Team,
		ss:           c.Score,
		vs:           c.Venue,
		ls:           c.Leaderboard,
		as:           c.Archive,
		auth:         c.Auth,
		redis:        c.Redis,
		prefix:       c.PubsubPrefix,
		secureCookie: c.SecureCookie,
		now:          time.Now,
	}

	// HTTP APIs
	a.register(c.Router)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameQuizArchived, func(ctx context.Context, e event.Event) error {
		return a.PublishQuizArchived(ctx, e.(domain.EventQuizArchived))
	})
	c.EventBus.Subscribe(domain.EventNameArchiveDeleted, func(ctx context.Context, e event.Event) error {
		return a.PublishArchiveDeleted(ctx, e.(domain.EventArchiveDeleted))
	})
	c.EventBus.Subscribe(domain.EventNameVenueUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishVenueUpdated(ctx, e.(domain.EventVenueUpdated))
	})

	return a
}

func (a *API) register(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	v1.GET("/session", a.GetActiveSession)
	v1.POST("/teams", a.RegisterTeam)
	v1.GET("/teams/:id", a.GetTeam)
	v1.POST("/teams/:id/rounds/:round", a.SubmitRoundScore)
	v1.GET("/venues", a.ListVenues)
	v1.GET("/venues/:id", a.GetVenue)
	v1.GET("/leaderboard/:scope", a.GetLeaderboard)
	v1.GET("/archives", a.ListArchives)
	v1.GET("/archives/:id", a.GetArchiveResults)

	v1.POST("/admin/login", a.Login)

	admin := v1.Group("/admin", a.RequireAdmin)
	admin.GET("/me", a.Me)
	admin.POST("/logout", a.Logout)
	admin.GET("/stats", a.GetStats)
	admin.POST("/archives", a.ArchiveCurrentQuiz)
	admin.DELETE("/archives/:id", a.DeleteArchive)
	admin.POST("/venues", a.CreateVenue)
	admin.PUT("/venues/:id/branding", a.UpdateBranding)
}
