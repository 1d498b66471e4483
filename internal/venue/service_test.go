package venue_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/store/memory"
	"github.com/victornm/pubquiz/internal/venue"
)

func newService(t *testing.T) (*venue.Service, *event.Bus) {
	t.Helper()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return venue.NewService(venue.Config{Store: memory.New(), EventBus: eb}), eb
}

func TestService_CreateVenue(t *testing.T) {
	tests := map[string]struct {
		req    venue.CreateVenueRequest
		assert func(t *testing.T, got *domain.Venue, err error)
	}{
		"created": {
			req: venue.CreateVenueRequest{
				Name:     " The Crown ",
				Region:   "North",
				Branding: domain.Branding{PrimaryColor: "#fff", LogoURL: "https://cdn.example.com/crown.png"},
			},
			assert: func(t *testing.T, got *domain.Venue, err error) {
				require.NoError(t, err)
				require.Equal(t, "The Crown", got.Name)
				require.Equal(t, "North", got.Region)
				_, perr := uuid.Parse(got.VenueID)
				require.NoError(t, perr)
			},
		},
		"blank name": {
			req: venue.CreateVenueRequest{Name: " "},
			assert: func(t *testing.T, got *domain.Venue, err error) {
				require.True(t, errors.Is(err, errors.ReasonInvalidArgument), "got %v", err)
			},
		},
		"bad color": {
			req: venue.CreateVenueRequest{Name: "A", Branding: domain.Branding{TextColor: "red"}},
			assert: func(t *testing.T, got *domain.Venue, err error) {
				require.True(t, errors.Is(err, errors.ReasonInvalidArgument), "got %v", err)
			},
		},
		"relative logo": {
			req: venue.CreateVenueRequest{Name: "A", Branding: domain.Branding{LogoURL: "/logo.png"}},
			assert: func(t *testing.T, got *domain.Venue, err error) {
				require.True(t, errors.Is(err, errors.ReasonInvalidArgument), "got %v", err)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, _ := newService(t)
			got, err := s.CreateVenue(context.Background(), tc.req)
			tc.assert(t, got, err)
		})
	}
}

func TestService_DuplicateVenue(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.CreateVenue(ctx, venue.CreateVenueRequest{Name: "The Crown"})
	require.NoError(t, err)

	_, err = s.CreateVenue(ctx, venue.CreateVenueRequest{Name: "The Crown"})
	require.Error(t, err)
	require.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)
}

func TestService_UpdateBranding(t *testing.T) {
	s, eb := newService(t)
	ctx := context.Background()

	updated := make(chan domain.Venue, 2)
	eb.Subscribe(domain.EventNameVenueUpdated, func(_ context.Context, e event.Event) error {
		updated <- e.(domain.EventVenueUpdated).Venue
		return nil
	})

	v, err := s.CreateVenue(ctx, venue.CreateVenueRequest{Name: "The Crown", Region: "North"})
	require.NoError(t, err)

	b := domain.Branding{PrimaryColor: "#112233", GradientStart: "#000", GradientEnd: "#FFFFFF"}
	got, err := s.UpdateBranding(ctx, venue.UpdateBrandingRequest{VenueID: v.VenueID, Branding: b})
	require.NoError(t, err)
	require.Equal(t, b, got.Branding)
	require.Equal(t, "North", got.Region)

	stored, err := s.GetVenue(ctx, venue.GetVenueRequest{VenueID: v.VenueID})
	require.NoError(t, err)
	require.Equal(t, b, stored.Branding)

	eb.Wait()
	require.Len(t, updated, 2)

	_, err = s.UpdateBranding(ctx, venue.UpdateBrandingRequest{VenueID: uuid.NewString(), Branding: b})
	require.True(t, errors.Is(err, errors.ReasonVenueNotFound), "got %v", err)
}

func TestService_ListVenues(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	for _, name := range []string{"The Anchor", "The Crown", "Bell Inn"} {
		_, err := s.CreateVenue(ctx, venue.CreateVenueRequest{Name: name})
		require.NoError(t, err)
	}

	venues, err := s.ListVenues(ctx)
	require.NoError(t, err)
	require.Len(t, venues, 3)
	require.Equal(t, "Bell Inn", venues[0].Name)

	_, err = s.GetVenue(ctx, venue.GetVenueRequest{VenueID: "nope"})
	require.True(t, errors.Is(err, errors.ReasonVenueNotFound), "got %v", err)
}
