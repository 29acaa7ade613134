package handlers

import (
	"context"
	"net/http"

	"github.com/Togather-Foundation/places/internal/api/problem"
	"github.com/Togather-Foundation/places/internal/domain/users"
)

type UserLister interface {
	List(ctx context.Context) ([]users.User, error)
}

type UsersHandler struct {
	Service UserLister
	Env     string
}

func NewUsersHandler(service UserLister, env string) *UsersHandler {
	return &UsersHandler{Service: service, Env: env}
}

type userResponse struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Places []string `json:"places"`
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.List(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Fetching users failed, please try again later.", err, h.Env)
		return
	}

	items := make([]userResponse, 0, len(list))
	for _, u := range list {
		placeIDs := u.PlaceIDs
		if placeIDs == nil {
			placeIDs = []string{}
		}
		items = append(items, userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Places: placeIDs})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": items})
}
