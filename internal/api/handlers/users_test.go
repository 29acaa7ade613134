package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Togather-Foundation/places/internal/assets"
	"github.com/Togather-Foundation/places/internal/domain/users"
	"github.com/stretchr/testify/assert"
)

type userListerFunc func(ctx context.Context) ([]users.User, error)

func (f userListerFunc) List(ctx context.Context) ([]users.User, error) { return f(ctx) }

func TestUsersHandler_List(t *testing.T) {
	h := NewUsersHandler(userListerFunc(func(ctx context.Context) ([]users.User, error) {
		return []users.User{{ID: "u1", Name: "Ada", Email: "ada@example.com"}}, nil
	}), "test")

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[{"id":"u1","name":"Ada","email":"ada@example.com","places":[]}]}`, rec.Body.String())
}

func TestUsersHandler_ListFailure(t *testing.T) {
	h := NewUsersHandler(userListerFunc(func(ctx context.Context) ([]users.User, error) {
		return nil, errors.New("pool exhausted")
	}), "production")

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pool exhausted")
}

type streamStore struct{ assets.Store }

func (streamStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref != assets.LocalPrefix+"a.jpeg" {
		return nil, assets.ErrNotFound
	}
	return io.NopCloser(strings.NewReader("jpeg-bytes")), nil
}

func TestUploadsHandler_NonSeekable(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /uploads/images/{name}", NewUploadsHandler(streamStore{}, "test"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/a.jpeg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/b.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
