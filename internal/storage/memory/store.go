// Package memory is a map-backed store for development and tests. Units of
// work are serialized: one runs at a time and sees a private copy of the
// data that replaces the shared copy on commit.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/Togather-Foundation/places/internal/domain/places"
	"github.com/Togather-Foundation/places/internal/domain/users"
)

// Op names a unit-of-work step that can be made to fail.
type Op string

const (
	OpLockUser        Op = "lock_user"
	OpInsertPlace     Op = "insert_place"
	OpAppendUserPlace Op = "append_user_place"
	OpDeletePlace     Op = "delete_place"
	OpRemoveUserPlace Op = "remove_user_place"
	OpCommit          Op = "commit"
)

type data struct {
	users  map[string]users.User
	places map[string]places.Place
	order  []string // place insertion order
}

func (d *data) clone() *data {
	c := &data{
		users:  make(map[string]users.User, len(d.users)),
		places: make(map[string]places.Place, len(d.places)),
		order:  slices.Clone(d.order),
	}
	for id, u := range d.users {
		u.PlaceIDs = slices.Clone(u.PlaceIDs)
		c.users[id] = u
	}
	for id, p := range d.places {
		c.places[id] = p
	}
	return c
}

type Store struct {
	// tx is a one-slot semaphore held for the lifetime of a unit of work
	// and by single writes.
	tx   chan struct{}
	mu   sync.RWMutex
	data *data

	faultMu sync.Mutex
	faults  map[Op]error
}

func New() *Store {
	return &Store{
		data: &data{
			users:  map[string]users.User{},
			places: map[string]places.Place{},
		},
		faults: map[Op]error{},
		tx:     make(chan struct{}, 1),
	}
}

// acquire takes the write slot or gives up when ctx ends first.
func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.tx <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.tx
}

// FailOn makes every later op step return err until cleared with a nil err.
func (s *Store) FailOn(op Op, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op Op) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[op]
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Begin(ctx context.Context) (places.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	staged := s.data.clone()
	s.mu.RUnlock()
	return &unitOfWork{store: s, staged: staged}, nil
}

func (s *Store) GetByID(ctx context.Context, placeID string) (*places.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.places[placeID]
	if !ok {
		return nil, places.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListByCreator(ctx context.Context, userID string) ([]places.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := []places.Place{}
	for _, id := range s.data.order {
		if p := s.data.places[id]; p.Creator == userID {
			list = append(list, p)
		}
	}
	return list, nil
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.users[userID]
	return ok, nil
}

// UpdatePlace applies patch to the stored place under the write slot, so
// fields absent from patch keep whatever the latest writer stored.
func (s *Store) UpdatePlace(ctx context.Context, placeID string, patch places.Patch) (*places.Place, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data.places[placeID]
	if !ok {
		return nil, places.ErrNotFound
	}
	patch.Apply(&current)
	s.data.places[placeID] = current
	return &current, nil
}

func (s *Store) ImageReferenced(ctx context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.data.places {
		if p.Image == ref {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateUser(ctx context.Context, user users.User) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.users {
		if existing.Email == user.Email {
			return users.ErrEmailTaken
		}
	}
	if user.PlaceIDs == nil {
		user.PlaceIDs = []string{}
	}
	s.data.users[user.ID] = user
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	u.PlaceIDs = slices.Clone(u.PlaceIDs)
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]users.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]users.User, 0, len(s.data.users))
	for _, u := range s.data.users {
		u.PlaceIDs = slices.Clone(u.PlaceIDs)
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

type unitOfWork struct {
	store  *Store
	staged *data
	done   bool
}

var errDone = errors.New("unit of work already finished")

func (u *unitOfWork) step(ctx context.Context, op Op) error {
	if u.done {
		return errDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return u.store.fault(op)
}

func (u *unitOfWork) LockUser(ctx context.Context, userID string) error {
	if err := u.step(ctx, OpLockUser); err != nil {
		return err
	}
	if _, ok := u.staged.users[userID]; !ok {
		return places.ErrUserNotFound
	}
	return nil
}

func (u *unitOfWork) InsertPlace(ctx context.Context, place places.Place) error {
	if err := u.step(ctx, OpInsertPlace); err != nil {
		return err
	}
	if _, exists := u.staged.places[place.ID]; exists {
		return errors.New("duplicate place id")
	}
	u.staged.places[place.ID] = place
	u.staged.order = append(u.staged.order, place.ID)
	return nil
}

func (u *unitOfWork) AppendUserPlace(ctx context.Context, userID, placeID string) error {
	if err := u.step(ctx, OpAppendUserPlace); err != nil {
		return err
	}
	user, ok := u.staged.users[userID]
	if !ok {
		return places.ErrUserNotFound
	}
	if !slices.Contains(user.PlaceIDs, placeID) {
		user.PlaceIDs = append(user.PlaceIDs, placeID)
	}
	u.staged.users[userID] = user
	return nil
}

func (u *unitOfWork) DeletePlace(ctx context.Context, placeID string) error {
	if err := u.step(ctx, OpDeletePlace); err != nil {
		return err
	}
	if _, ok := u.staged.places[placeID]; !ok {
		return places.ErrNotFound
	}
	delete(u.staged.places, placeID)
	u.staged.order = slices.DeleteFunc(u.staged.order, func(id string) bool { return id == placeID })
	return nil
}

func (u *unitOfWork) RemoveUserPlace(ctx context.Context, userID, placeID string) error {
	if err := u.step(ctx, OpRemoveUserPlace); err != nil {
		return err
	}
	user, ok := u.staged.users[userID]
	if !ok {
		return places.ErrUserNotFound
	}
	user.PlaceIDs = slices.DeleteFunc(user.PlaceIDs, func(id string) bool { return id == placeID })
	u.staged.users[userID] = user
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.step(ctx, OpCommit); err != nil {
		return err
	}
	u.store.mu.Lock()
	u.store.data = u.staged
	u.store.mu.Unlock()
	u.finish()
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

func (u *unitOfWork) finish() {
	u.done = true
	u.staged = nil
	u.store.release()
}
