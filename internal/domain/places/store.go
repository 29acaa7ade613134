package places

import (
	"context"
	"errors"

	"github.com/Togather-Foundation/places/internal/domain/ids"
	"github.com/Togather-Foundation/places/internal/geocoding"
)

// UnitOfWork groups the place and user writes of one operation. Nothing it
// writes is visible to other operations until Commit succeeds. Rollback after
// Commit is a no-op.
type UnitOfWork interface {
	// LockUser serializes against other units touching the same user and
	// returns ErrUserNotFound when the user does not exist.
	LockUser(ctx context.Context, userID string) error
	InsertPlace(ctx context.Context, place Place) error
	AppendUserPlace(ctx context.Context, userID, placeID string) error
	// DeletePlace returns ErrNotFound when no row was removed.
	DeletePlace(ctx context.Context, placeID string) error
	RemoveUserPlace(ctx context.Context, userID, placeID string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository is the storage port of the places domain.
type Repository interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	GetByID(ctx context.Context, placeID string) (*Place, error)
	ListByCreator(ctx context.Context, userID string) ([]Place, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	// UpdatePlace writes only the present fields of patch in a single
	// statement and returns the resulting place.
	UpdatePlace(ctx context.Context, placeID string, patch Patch) (*Place, error)
	// ImageReferenced reports whether any place still points at ref.
	ImageReferenced(ctx context.Context, ref string) (bool, error)
}

// TransactionalStore performs the dual place/user writes atomically. It never
// retries: a failed unit is rolled back and the failure returned.
type TransactionalStore struct {
	repo  Repository
	newID func() string
}

func NewTransactionalStore(repo Repository) *TransactionalStore {
	return &TransactionalStore{repo: repo, newID: ids.New}
}

// CreatePlaceForUser inserts a place owned by userID and appends it to the
// user's place set.
func (s *TransactionalStore) CreatePlaceForUser(ctx context.Context, draft Draft, location geocoding.Coordinates, userID string) (place *Place, err error) {
	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback(ctx)
		}
	}()

	if err = uow.LockUser(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr("lock_user", err)
	}

	created := Place{
		ID:          s.newID(),
		Title:       draft.Title,
		Description: draft.Description,
		Address:     draft.Address,
		Location:    location,
		Image:       draft.Image,
		Creator:     userID,
	}
	if err = uow.InsertPlace(ctx, created); err != nil {
		return nil, storageErr("insert_place", err)
	}
	if err = uow.AppendUserPlace(ctx, userID, created.ID); err != nil {
		return nil, storageErr("append_user_place", err)
	}
	if err = uow.Commit(ctx); err != nil {
		return nil, storageErr("commit", err)
	}
	return &created, nil
}

// DeletePlaceForUser removes the place and pulls it from the owner's set.
func (s *TransactionalStore) DeletePlaceForUser(ctx context.Context, placeID, ownerID string) (err error) {
	uow, err := s.repo.Begin(ctx)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback(ctx)
		}
	}()

	if err = uow.LockUser(ctx, ownerID); err != nil {
		return storageErr("lock_user", err)
	}
	if err = uow.DeletePlace(ctx, placeID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storageErr("delete_place", err)
	}
	if err = uow.RemoveUserPlace(ctx, ownerID, placeID); err != nil {
		return storageErr("remove_user_place", err)
	}
	if err = uow.Commit(ctx); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// Update applies the present fields of patch to a single place. Absent
// fields are left to whatever concurrent writers stored. An empty patch
// returns the place unchanged without writing.
func (s *TransactionalStore) Update(ctx context.Context, placeID string, patch Patch) (*Place, error) {
	if patch.IsEmpty() {
		place, err := s.repo.GetByID(ctx, placeID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, storageErr("get_place", err)
		}
		return place, nil
	}
	place, err := s.repo.UpdatePlace(ctx, placeID, patch.present())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("update_place", err)
	}
	return place, nil
}
