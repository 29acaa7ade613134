package places

import (
	"context"
	"errors"
	"strings"

	"github.com/Togather-Foundation/places/internal/geocoding"
	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/Togather-Foundation/places/internal/sanitize"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Togather-Foundation/places/internal/domain/places"

const minDescriptionLength = 5

// Geocoder resolves an address. Failures are *geocoding.GeocodeError.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocoding.Coordinates, error)
}

// AssetReleaser removes a stored asset in the background. Release must not
// block on the removal and reports failures only through its own logging.
type AssetReleaser interface {
	Release(ctx context.Context, ref string)
}

type Service struct {
	repo     Repository
	store    *TransactionalStore
	geocoder Geocoder
	releaser AssetReleaser
	logger   zerolog.Logger
	tracer   trace.Tracer
}

func NewService(repo Repository, geocoder Geocoder, releaser AssetReleaser, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		store:    NewTransactionalStore(repo),
		geocoder: geocoder,
		releaser: releaser,
		logger:   logger.With().Str("component", "places").Logger(),
		tracer:   otel.Tracer(tracerName),
	}
}

func (s *Service) GetByID(ctx context.Context, placeID string) (place *Place, err error) {
	ctx, span := s.tracer.Start(ctx, "places.GetByID", trace.WithAttributes(attribute.String("place.id", placeID)))
	defer func() { s.finish(span, "get", err) }()

	return s.load(ctx, placeID)
}

func (s *Service) load(ctx context.Context, placeID string) (*Place, error) {
	place, err := s.repo.GetByID(ctx, placeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get_place", err)
	}
	return place, nil
}

// GetByUser lists the places owned by userID. An unknown user is
// ErrUserNotFound; a known user without places yields an empty slice.
func (s *Service) GetByUser(ctx context.Context, userID string) (list []Place, err error) {
	ctx, span := s.tracer.Start(ctx, "places.GetByUser", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { s.finish(span, "list_by_user", err) }()

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, storageErr("get_user", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	list, err = s.repo.ListByCreator(ctx, userID)
	if err != nil {
		return nil, storageErr("list_places", err)
	}
	if list == nil {
		list = []Place{}
	}
	return list, nil
}

// Create geocodes the draft address and then persists the place for the
// requester. Nothing is written unless geocoding succeeds.
func (s *Service) Create(ctx context.Context, draft Draft, requesterID string) (place *Place, err error) {
	ctx, span := s.tracer.Start(ctx, "places.Create", trace.WithAttributes(attribute.String("user.id", requesterID)))
	defer func() { s.finish(span, "create", err) }()

	if requesterID == "" || (draft.Creator != "" && draft.Creator != requesterID) {
		return nil, ErrForbidden
	}

	draft.Title = sanitize.Text(strings.TrimSpace(draft.Title))
	draft.Description = sanitize.Text(strings.TrimSpace(draft.Description))
	draft.Address = strings.TrimSpace(draft.Address)
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	location, err := s.geocoder.Geocode(ctx, draft.Address)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Float64("place.lat", location.Lat), attribute.Float64("place.lng", location.Lng))

	place, err = s.store.CreatePlaceForUser(ctx, draft, location, requesterID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("place_id", place.ID).
		Str("creator", place.Creator).
		Msg("place created")
	return place, nil
}

// Update applies patch to a place owned by the requester.
func (s *Service) Update(ctx context.Context, placeID string, patch Patch, requesterID string) (place *Place, err error) {
	ctx, span := s.tracer.Start(ctx, "places.Update", trace.WithAttributes(attribute.String("place.id", placeID)))
	defer func() { s.finish(span, "update", err) }()

	current, err := s.load(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(requesterID, current.Creator); err != nil {
		return nil, err
	}

	patch = sanitizePatch(patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	return s.store.Update(ctx, placeID, patch)
}

// Delete removes a place owned by the requester and then schedules release
// of its image. Release failures never undo the deletion.
func (s *Service) Delete(ctx context.Context, placeID, requesterID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "places.Delete", trace.WithAttributes(attribute.String("place.id", placeID)))
	defer func() { s.finish(span, "delete", err) }()

	place, err := s.load(ctx, placeID)
	if err != nil {
		return err
	}
	if err := Authorize(requesterID, place.Creator); err != nil {
		return err
	}

	if err := s.store.DeletePlaceForUser(ctx, place.ID, place.Creator); err != nil {
		return err
	}

	s.logger.Info().
		Str("place_id", place.ID).
		Str("creator", place.Creator).
		Msg("place deleted")

	if place.Image != "" && s.releaser != nil {
		s.releaseImage(context.WithoutCancel(ctx), place)
	}
	return nil
}

// releaseImage hands the deleted place's image to the releaser unless some
// other place still points at it.
func (s *Service) releaseImage(ctx context.Context, place *Place) {
	used, err := s.repo.ImageReferenced(ctx, place.Image)
	if err != nil {
		s.logger.Warn().Err(err).Str("place_id", place.ID).Str("ref", place.Image).Msg("image reference check failed; image kept")
		return
	}
	if used {
		s.logger.Warn().Str("place_id", place.ID).Str("ref", place.Image).Msg("image still referenced by another place; not released")
		return
	}
	s.releaser.Release(ctx, place.Image)
}

func (s *Service) finish(span trace.Span, operation string, err error) {
	outcome := Outcome(err)
	metrics.PlaceOperationsTotal.WithLabelValues(operation, outcome).Inc()
	if err != nil && outcome == "storage_error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("place.outcome", outcome))
	span.End()
}

// Outcome classifies an operation result for metrics and logs.
func Outcome(err error) string {
	var validation ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.As(err, &validation):
		return "invalid"
	case errors.Is(err, geocoding.ErrNotFound), errors.Is(err, geocoding.ErrServiceUnavailable):
		return "geocode_failed"
	default:
		return "storage_error"
	}
}

func validateDraft(d Draft) error {
	switch {
	case d.Title == "":
		return ValidationError{Field: "title", Message: "is required"}
	case len([]rune(d.Description)) < minDescriptionLength:
		return ValidationError{Field: "description", Message: "must be at least 5 characters"}
	case d.Address == "":
		return ValidationError{Field: "address", Message: "is required"}
	case d.Image == "":
		return ValidationError{Field: "image", Message: "is required"}
	}
	return nil
}

func validatePatch(p Patch) error {
	if !blank(p.Description) && len([]rune(*p.Description)) < minDescriptionLength {
		return ValidationError{Field: "description", Message: "must be at least 5 characters"}
	}
	return nil
}

func sanitizePatch(p Patch) Patch {
	clean := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := sanitize.Text(strings.TrimSpace(*s))
		return &v
	}
	return Patch{Title: clean(p.Title), Description: clean(p.Description)}
}
