package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/Togather-Foundation/places/internal/api/problem"
	"github.com/Togather-Foundation/places/internal/assets"
)

// UploadsHandler serves images kept by the local asset backend.
type UploadsHandler struct {
	Store assets.Store
	Env   string
}

func NewUploadsHandler(store assets.Store, env string) *UploadsHandler {
	return &UploadsHandler{Store: store, Env: env}
}

func (h *UploadsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rc, err := h.Store.Open(r.Context(), assets.LocalPrefix+name)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) || errors.Is(err, assets.ErrInvalidRef) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	defer rc.Close()

	// Names are immutable ULIDs, so responses can be cached for good.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if seeker, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(name), time.Time{}, seeker)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(name))
	_, _ = io.Copy(w, rc)
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".png":
		return "image/png"
	case ".jpeg", ".jpg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
