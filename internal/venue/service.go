package venue

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/pubquiz/internal/domain"
	"github.com/victornm/pubquiz/internal/errors"
	"github.com/victornm/pubquiz/internal/event"
	"github.com/victornm/pubquiz/internal/store"
)

var colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

type Config struct {
	Store    store.Store
	EventBus *event.Bus
}

type Service struct {
	store store.Store
	eb    *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		eb:    c.EventBus,
	}
}

func (s *Service) ListVenues(ctx context.Context) ([]domain.Venue, error) {
	var venues []domain.Venue
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		venues, err = tx.ListVenues(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}

	return venues, nil
}

type GetVenueRequest struct {
	VenueID string
}

func (s *Service) GetVenue(ctx context.Context, req GetVenueRequest) (*domain.Venue, error) {
	if _, err := uuid.Parse(req.VenueID); err != nil {
		return nil, errors.Newf(errors.ReasonVenueNotFound, "venue not found: venue=%s", req.VenueID)
	}

	var v domain.Venue
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		v, err = tx.Venue(ctx, req.VenueID)
		return err
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Newf(errors.ReasonVenueNotFound, "venue not found: venue=%s", req.VenueID)
	}
	if err != nil {
		return nil, fmt.Errorf("get venue: %w", err)
	}

	return &v, nil
}

type CreateVenueRequest struct {
	Name     string
	Region   string
	Branding domain.Branding
}

func (s *Service) CreateVenue(ctx context.Context, req CreateVenueRequest) (*domain.Venue, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.Newf(errors.ReasonInvalidArgument, "venue name is required")
	}

	if err := validateBranding(req.Branding); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate venue ID: %w", err)
	}

	v := domain.Venue{
		VenueID:  id.String(),
		Name:     name,
		Region:   strings.TrimSpace(req.Region),
		Branding: req.Branding,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateVenue(ctx, v)
	})
	if stderrors.Is(err, store.ErrConflict) {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonInvalidArgument),
			errors.WithMessagef("venue already exists: name=%s", name),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("create venue: %w", err)
	}

	s.eb.Publish(ctx, domain.EventVenueUpdated{Venue: v})

	return &v, nil
}

type UpdateBrandingRequest struct {
	VenueID  string
	Branding domain.Branding
}

// UpdateBranding replaces the presentation attributes of a venue.
func (s *Service) UpdateBranding(ctx context.Context, req UpdateBrandingRequest) (*domain.Venue, error) {
	if _, err := uuid.Parse(req.VenueID); err != nil {
		return nil, errors.Newf(errors.ReasonVenueNotFound, "venue not found: venue=%s", req.VenueID)
	}

	if err := validateBranding(req.Branding); err != nil {
		return nil, err
	}

	var v domain.Venue
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateVenueBranding(ctx, req.VenueID, req.Branding); err != nil {
			return err
		}

		var err error
		v, err = tx.Venue(ctx, req.VenueID)
		return err
	})
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Newf(errors.ReasonVenueNotFound, "venue not found: venue=%s", req.VenueID)
	}
	if err != nil {
		return nil, fmt.Errorf("update venue branding: %w", err)
	}

	s.eb.Publish(ctx, domain.EventVenueUpdated{Venue: v})

	return &v, nil
}

func validateBranding(b domain.Branding) error {
	colors := map[string]string{
		"primary_color":   b.PrimaryColor,
		"secondary_color": b.SecondaryColor,
		"gradient_start":  b.GradientStart,
		"gradient_end":    b.GradientEnd,
		"text_color":      b.TextColor,
	}
	for field, c := range colors {
		if c != "" && !colorRe.MatchString(c) {
			return errors.Newf(errors.ReasonInvalidArgument, "%s must be a hex color: %q", field, c)
		}
	}

	if b.LogoURL == "" {
		return nil
	}

	u, err := url.Parse(b.LogoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf(errors.ReasonInvalidArgument, "logo_url must be an absolute http(s) URL: %q", b.LogoURL)
	}

	return nil
}
