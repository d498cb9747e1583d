package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RoomNotFoundError is returned when an operation targets a room that is
// neither cached nor stored.
type RoomNotFoundError struct {
	Id string
}

func (e *RoomNotFoundError) Error() string {
	return fmt.Sprintf("room %q not found", e.Id)
}

func (e *RoomNotFoundError) Unwrap() error {
	return ErrNotFound
}
