package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/shohag/webhookrouter/internal/models"
)

// Storage is the blocking store client. Implementations are not safe for
// concurrent use; Worker confines one to a single goroutine.
type Storage interface {
	// Channels
	GetChannels(ctx context.Context) ([]models.Channel, error)
	UpsertChannel(ctx context.Context, ch models.Channel) error
	DeleteChannel(ctx context.Context, channel string) (bool, error)

	// Messages
	InsertMessage(ctx context.Context, rec models.MessageRecord) (int64, error)
	ListMessages(ctx context.Context, channel string, limit int) ([]models.MessageRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var (
	ErrNotStarted     = errors.New("store worker not started")
	ErrAlreadyStarted = errors.New("store worker already started")
	ErrClosed         = errors.New("store worker closed")
)

// StoreError is a failure of one store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
