package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email is already taken")
)

// User owns zero or more places. PlaceIDs is maintained only by place
// creation and deletion.
type User struct {
	ID        string
	Name      string
	Email     string
	PlaceIDs  []string
	CreatedAt time.Time
}

type Repository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}
