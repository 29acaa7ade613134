package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/Togather-Foundation/places/internal/api/middleware"
	"github.com/Togather-Foundation/places/internal/api/problem"
	"github.com/Togather-Foundation/places/internal/assets"
	"github.com/Togather-Foundation/places/internal/domain/ids"
	"github.com/Togather-Foundation/places/internal/domain/places"
	"github.com/Togather-Foundation/places/internal/geocoding"
)

// PlaceService is the part of places.Service the HTTP layer drives.
type PlaceService interface {
	GetByID(ctx context.Context, placeID string) (*places.Place, error)
	GetByUser(ctx context.Context, userID string) ([]places.Place, error)
	Create(ctx context.Context, draft places.Draft, requesterID string) (*places.Place, error)
	Update(ctx context.Context, placeID string, patch places.Patch, requesterID string) (*places.Place, error)
	Delete(ctx context.Context, placeID, requesterID string) error
}

type PlacesHandler struct {
	Service  PlaceService
	Assets   assets.Store
	Releaser places.AssetReleaser
	// MaxUploadBytes caps a single uploaded image.
	MaxUploadBytes int64
	Env            string
}

func NewPlacesHandler(service PlaceService, store assets.Store, releaser places.AssetReleaser, maxUploadBytes int64, env string) *PlacesHandler {
	return &PlacesHandler{
		Service:        service,
		Assets:         store,
		Releaser:       releaser,
		MaxUploadBytes: maxUploadBytes,
		Env:            env,
	}
}

type locationResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type placeResponse struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Address     string           `json:"address"`
	Location    locationResponse `json:"location"`
	Image       string           `json:"image"`
	Creator     string           `json:"creator"`
}

func toPlaceResponse(p places.Place) placeResponse {
	return placeResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Address:     p.Address,
		Location:    locationResponse{Lat: p.Location.Lat, Lng: p.Location.Lng},
		Image:       p.Image,
		Creator:     p.Creator,
	}
}

type createPlaceRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required,min=5,max=5000"`
	Address     string `json:"address" validate:"required,max=500"`
	Image       string `json:"image" validate:"required"`
	Creator     string `json:"creator,omitempty"`
}

type updatePlaceRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
}

func (h *PlacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	placeID, ok := pathULID(w, r, "pid", h.Env)
	if !ok {
		return
	}

	place, err := h.Service.GetByID(r.Context(), placeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"place": toPlaceResponse(*place)})
}

func (h *PlacesHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathULID(w, r, "uid", h.Env)
	if !ok {
		return
	}

	list, err := h.Service.GetByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]placeResponse, 0, len(list))
	for _, p := range list {
		items = append(items, toPlaceResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"places": items})
}

// Create accepts a multipart form carrying the image file. The image is
// always stored by this request, so a place can only point at an asset its
// creator uploaded; it is released again when creation fails.
func (h *PlacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.RequesterID(r)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		problem.Write(w, r, http.StatusUnsupportedMediaType, problem.TypeUnsupportedMedia, "Unsupported media type",
			fmt.Errorf("content type %q, want multipart/form-data", mediaType), h.Env)
		return
	}
	req, uploaded, ok := h.readMultipart(w, r)
	if !ok {
		return
	}

	draft := places.Draft{
		Title:       req.Title,
		Description: req.Description,
		Address:     req.Address,
		Image:       uploaded,
		Creator:     req.Creator,
	}
	place, err := h.Service.Create(r.Context(), draft, requesterID)
	if err != nil {
		if h.Releaser != nil {
			h.Releaser.Release(context.WithoutCancel(r.Context()), uploaded)
		}
		// A verified requester without a user row is a server-side
		// inconsistency, not a missing resource.
		if errors.Is(err, places.ErrUserNotFound) {
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Could not find user", err, h.Env)
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"place": toPlaceResponse(*place)})
}

// readMultipart validates the text fields before storing the image so a
// rejected request never leaves a file behind.
func (h *PlacesHandler) readMultipart(w http.ResponseWriter, r *http.Request) (createPlaceRequest, string, bool) {
	var req createPlaceRequest
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		writeBodyError(w, r, err, h.Env)
		return req, "", false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req.Title = r.FormValue("title")
	req.Description = r.FormValue("description")
	req.Address = r.FormValue("address")
	req.Creator = r.FormValue("creator")

	file, header, err := r.FormFile("image")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeBodyError(w, r, err, h.Env)
		return req, "", false
	}
	if file != nil {
		defer file.Close()
		req.Image = header.Filename
		if req.Image == "" {
			req.Image = "image"
		}
	}
	if err := validate.Struct(req); err != nil {
		writeValidationErrors(w, r, err, h.Env)
		return req, "", false
	}
	if h.Assets == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", errors.New("asset store not configured"), h.Env)
		return req, "", false
	}

	contentType, ext, body, err := assets.SniffImage(assets.LimitReader(file, h.MaxUploadBytes))
	if err != nil {
		h.writeUploadError(w, r, err)
		return req, "", false
	}
	ref, err := h.Assets.Save(r.Context(), ids.New()+"."+ext, contentType, body)
	if err != nil {
		h.writeUploadError(w, r, err)
		return req, "", false
	}
	req.Image = ref
	return req, ref, true
}

func (h *PlacesHandler) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assets.ErrTooLarge):
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Image too large", err, h.Env,
			problem.WithFieldError("image", fmt.Sprintf("must be at most %d bytes", h.MaxUploadBytes)))
	case errors.Is(err, assets.ErrUnsupportedImage):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Validation failed", err, h.Env,
			problem.WithFieldError("image", "must be a PNG or JPEG image"))
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Could not store image", err, h.Env)
	}
}

func (h *PlacesHandler) Update(w http.ResponseWriter, r *http.Request) {
	placeID, ok := pathULID(w, r, "pid", h.Env)
	if !ok {
		return
	}

	var req updatePlaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, r, err, h.Env)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeValidationErrors(w, r, err, h.Env)
		return
	}

	place, err := h.Service.Update(r.Context(), placeID, places.Patch{Title: req.Title, Description: req.Description}, middleware.RequesterID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"place": toPlaceResponse(*place)})
}

func (h *PlacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	placeID, ok := pathULID(w, r, "pid", h.Env)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), placeID, middleware.RequesterID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted place."})
}

// writeError maps place service errors onto problem responses.
func (h *PlacesHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation places.ValidationError
	switch {
	case errors.Is(err, places.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Place not found", err, h.Env)
	case errors.Is(err, places.ErrUserNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "User not found", err, h.Env)
	case errors.Is(err, places.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, h.Env)
	case errors.As(err, &validation):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Validation failed", err, h.Env,
			problem.WithFieldError(validation.Field, validation.Message))
	case errors.Is(err, geocoding.ErrNotFound):
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeAddress, "Could not find location for the specified address", err, h.Env,
			problem.WithFieldError("address", "could not be located"))
	case errors.Is(err, geocoding.ErrServiceUnavailable):
		w.Header().Set("Retry-After", "30")
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Geocoding service unavailable", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}
