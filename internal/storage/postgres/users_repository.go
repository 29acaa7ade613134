package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/places/internal/domain/users"
	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func (s *Store) CreateUser(ctx context.Context, user users.User) (err error) {
	defer func(start time.Time) { metrics.RecordQuery("create_user", start, err) }(time.Now())

	placeIDs := user.PlaceIDs
	if placeIDs == nil {
		placeIDs = []string{}
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, place_ids, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Name, user.Email, placeIDs, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (u *users.User, err error) {
	defer func(start time.Time) { metrics.RecordQuery("get_user", start, err) }(time.Now())

	u, err = scanUser(s.pool.QueryRow(ctx,
		`SELECT id, name, email, place_ids, created_at FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, users.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) (list []users.User, err error) {
	defer func(start time.Time) { metrics.RecordQuery("list_users", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `SELECT id, name, email, place_ids, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	list = []users.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PlaceIDs, &u.CreatedAt); err != nil {
		return nil, err
	}
	if u.PlaceIDs == nil {
		u.PlaceIDs = []string{}
	}
	return &u, nil
}
