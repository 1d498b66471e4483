package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/pubquiz/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated sends the total leaderboard to the leaderboard channel, and to every venue
// channel the slice of the board with that venue's teams.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(e.Leaderboard)

	byVenue := make(map[string][]LeaderboardEntry)
	for _, entry := range data.Entries {
		byVenue[entry.VenueID] = append(byVenue[entry.VenueID], entry)
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.publishNotification(ctx, a.channel("leaderboard"), e.Name(), data)
	})

	for venueID, entries := range byVenue {
		eg.Go(func() error {
			vl := Leaderboard{
				SessionID: data.SessionID,
				Scope:     domain.ScopeVenue,
				Key:       venueID,
				Entries:   entries,
			}
			return a.publishNotification(ctx, a.channel("venue", venueID), e.Name(), vl)
		})
	}

	return eg.Wait()
}

func (a *API) PublishQuizArchived(ctx context.Context, e domain.EventQuizArchived) error {
	data := struct {
		Archive      Archive `json:"archive"`
		NewSessionID string  `json:"new_session_id"`
	}{
		Archive:      toArchive(e.Archive),
		NewSessionID: e.NewSession.SessionID,
	}

	return a.publishNotification(ctx, a.channel("quiz"), e.Name(), data)
}

func (a *API) PublishArchiveDeleted(ctx context.Context, e domain.EventArchiveDeleted) error {
	data := DeleteArchiveResponse{
		Success:        true,
		DeletedArchive: e.Archive.Title,
		DeletedTeams:   e.DeletedTeams,
	}

	return a.publishNotification(ctx, a.channel("quiz"), e.Name(), data)
}

func (a *API) PublishVenueUpdated(ctx context.Context, e domain.EventVenueUpdated) error {
	return a.publishNotification(ctx, a.channel("venue", e.Venue.VenueID), e.Name(), toVenue(e.Venue))
}

func (a *API) channel(parts ...string) string {
	ch := a.prefix
	for _, p := range parts {
		ch += ":" + p
	}
	return ch
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
