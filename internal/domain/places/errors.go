package places

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("place not found")
	ErrUserNotFound = errors.New("user not found")
	ErrForbidden    = errors.New("requester does not own this place")
)

// StorageError reports a failed read or an aborted unit of work. Nothing the
// failed operation attempted is visible after it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a draft or patch field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
