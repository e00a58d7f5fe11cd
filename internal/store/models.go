package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kisscoffee/site/internal/settings"
)

// ErrNotFound is returned when a user lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Error is a failed read or write of the settings document.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("settings %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// DocumentStore reads and merges the settings document.
type DocumentStore interface {
	Fetch(ctx context.Context) (settings.Settings, error)
	Save(ctx context.Context, patch settings.Patch) error
	Ping(ctx context.Context) error
}

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
