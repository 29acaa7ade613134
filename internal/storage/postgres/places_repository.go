package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/places/internal/domain/places"
	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/jackc/pgx/v5"
)

const placeColumns = `id, title, description, address, latitude, longitude, image, creator_id`

func scanPlace(row pgx.Row) (*places.Place, error) {
	var p places.Place
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Address,
		&p.Location.Lat,
		&p.Location.Lng,
		&p.Image,
		&p.Creator,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetByID(ctx context.Context, placeID string) (p *places.Place, err error) {
	defer func(start time.Time) { metrics.RecordQuery("get_place", start, err) }(time.Now())

	p, err = scanPlace(s.pool.QueryRow(ctx, `SELECT `+placeColumns+` FROM places WHERE id = $1`, placeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, places.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get place: %w", err)
	}
	return p, nil
}

func (s *Store) ListByCreator(ctx context.Context, userID string) (list []places.Place, err error) {
	defer func(start time.Time) { metrics.RecordQuery("list_places", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx,
		`SELECT `+placeColumns+` FROM places WHERE creator_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	defer rows.Close()

	list = []places.Place{}
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	return list, nil
}

func (s *Store) UserExists(ctx context.Context, userID string) (exists bool, err error) {
	defer func(start time.Time) { metrics.RecordQuery("user_exists", start, err) }(time.Now())

	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// UpdatePlace writes only the columns present in patch; a nil field keeps
// the stored value even when another request changed it meanwhile.
func (s *Store) UpdatePlace(ctx context.Context, placeID string, patch places.Patch) (p *places.Place, err error) {
	defer func(start time.Time) { metrics.RecordQuery("update_place", start, err) }(time.Now())

	p, err = scanPlace(s.pool.QueryRow(ctx,
		`UPDATE places
		    SET title = COALESCE($2, title),
		        description = COALESCE($3, description),
		        updated_at = NOW()
		  WHERE id = $1
		RETURNING `+placeColumns,
		placeID, patch.Title, patch.Description))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, places.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update place: %w", err)
	}
	return p, nil
}

func (s *Store) ImageReferenced(ctx context.Context, ref string) (used bool, err error) {
	defer func(start time.Time) { metrics.RecordQuery("image_referenced", start, err) }(time.Now())

	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM places WHERE image = $1)`, ref).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check image reference: %w", err)
	}
	return used, nil
}

// Begin starts a unit of work backed by a pgx transaction.
func (s *Store) Begin(ctx context.Context) (places.UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx pgx.Tx
}

// LockUser takes a row lock so that units touching the same user run one
// after the other while units for different users proceed in parallel.
func (u *unitOfWork) LockUser(ctx context.Context, userID string) error {
	var id string
	err := u.tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return places.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (u *unitOfWork) InsertPlace(ctx context.Context, p places.Place) error {
	_, err := u.tx.Exec(ctx,
		`INSERT INTO places (`+placeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Title, p.Description, p.Address, p.Location.Lat, p.Location.Lng, p.Image, p.Creator)
	if err != nil {
		return fmt.Errorf("insert place: %w", err)
	}
	return nil
}

func (u *unitOfWork) AppendUserPlace(ctx context.Context, userID, placeID string) error {
	tag, err := u.tx.Exec(ctx,
		`UPDATE users SET place_ids = array_append(array_remove(place_ids, $2), $2) WHERE id = $1`,
		userID, placeID)
	if err != nil {
		return fmt.Errorf("append user place: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return places.ErrUserNotFound
	}
	return nil
}

func (u *unitOfWork) DeletePlace(ctx context.Context, placeID string) error {
	tag, err := u.tx.Exec(ctx, `DELETE FROM places WHERE id = $1`, placeID)
	if err != nil {
		return fmt.Errorf("delete place: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return places.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) RemoveUserPlace(ctx context.Context, userID, placeID string) error {
	tag, err := u.tx.Exec(ctx,
		`UPDATE users SET place_ids = array_remove(place_ids, $2) WHERE id = $1`,
		userID, placeID)
	if err != nil {
		return fmt.Errorf("remove user place: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return places.ErrUserNotFound
	}
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
