package storage

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shohag/webhookrouter/internal/models"
)

const defaultQueueSize = 256

// Opener creates the store client. It is called on the worker goroutine.
type Opener func() (Storage, error)

// ErrorSink receives every failed write. Failures of executed writes are
// reported from the worker goroutine; writes rejected at submission (worker
// not started or closed) are reported from the submitting goroutine. The
// sink may therefore run concurrently and must be safe for concurrent use.
// It must not submit operations back to the worker.
type ErrorSink func(op string, err error)

type WorkerOption func(*Worker)

func WithErrorSink(sink ErrorSink) WorkerOption {
	return func(w *Worker) {
		if sink != nil {
			w.sink = sink
		}
	}
}

func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

type workerState int

const (
	stateIdle workerState = iota
	stateRunning
	stateClosed
)

type operation struct {
	name  string
	write bool
	run   func(s Storage) error
}

// Worker owns the only store connection and serves operations one at a
// time, in submission order, on a dedicated OS thread.
type Worker struct {
	open      Opener
	log       zerolog.Logger
	sink      ErrorSink
	queueSize int

	mu    sync.Mutex
	state workerState
	ops   chan operation
	done  chan struct{}
}

func NewWorker(open Opener, log zerolog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		open:      open,
		log:       log.With().Str("component", "store").Logger(),
		queueSize: defaultQueueSize,
	}
	w.sink = func(op string, err error) {
		w.log.Error().Err(err).Str("op", op).Msg("store write failed")
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start opens the store and creates the schema before returning. It may
// only be called once.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateClosed:
		return ErrClosed
	}

	ready := make(chan error, 1)
	w.ops = make(chan operation, w.queueSize)
	w.done = make(chan struct{})
	go w.run(ctx, ready)

	if err := <-ready; err != nil {
		w.state = stateClosed
		return storeErr("open", err)
	}
	w.state = stateRunning
	w.log.Info().Msg("store worker started")
	return nil
}

func (w *Worker) run(ctx context.Context, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	store, err := w.open()
	if err != nil {
		ready <- err
		return
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		ready <- err
		return
	}
	ready <- nil

	for op := range w.ops {
		if err := op.run(store); err != nil && op.write {
			w.sink(op.name, err)
		}
	}

	if err := store.Close(); err != nil {
		w.log.Error().Err(err).Msg("failed to close store")
	}
}

// Close stops accepting operations, drains the queue and closes the store.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.state != stateRunning {
		w.state = stateClosed
		w.mu.Unlock()
		return nil
	}
	w.state = stateClosed
	close(w.ops)
	w.mu.Unlock()

	<-w.done
	w.log.Info().Msg("store worker stopped")
	return nil
}

func (w *Worker) submit(op operation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateIdle:
		return ErrNotStarted
	case stateClosed:
		return ErrClosed
	}
	w.ops <- op
	return nil
}

func enqueue[T any](w *Worker, name string, write bool, fn func(s Storage) (T, error)) *Future[T] {
	f := newFuture[T]()
	err := w.submit(operation{
		name:  name,
		write: write,
		run: func(s Storage) error {
			val, err := fn(s)
			err = storeErr(name, err)
			f.resolve(val, err)
			return err
		},
	})
	if err != nil {
		err = storeErr(name, err)
		if write {
			// reported on the caller's goroutine; see ErrorSink
			w.sink(name, err)
		}
		return failedFuture[T](err)
	}
	return f
}

// InsertMessage schedules a message write. The write runs to completion
// independently of the caller; failures resolve the future and are also
// handed to the error sink.
func (w *Worker) InsertMessage(t float64, channel, content, meta string) *Future[int64] {
	rec := models.MessageRecord{Time: t, Channel: channel, Content: content, Meta: meta}
	return enqueue(w, "insert_message", true, func(s Storage) (int64, error) {
		return s.InsertMessage(context.Background(), rec)
	})
}

func (w *Worker) GetMessages(ctx context.Context, channel string, limit int) ([]models.MessageRecord, error) {
	return enqueue(w, "get_messages", false, func(s Storage) ([]models.MessageRecord, error) {
		return s.ListMessages(ctx, channel, limit)
	}).Wait(ctx)
}

func (w *Worker) GetChannels(ctx context.Context) ([]models.Channel, error) {
	return enqueue(w, "get_channels", false, func(s Storage) ([]models.Channel, error) {
		return s.GetChannels(ctx)
	}).Wait(ctx)
}

func (w *Worker) UpsertChannel(ctx context.Context, ch models.Channel) error {
	_, err := enqueue(w, "upsert_channel", true, func(s Storage) (struct{}, error) {
		return struct{}{}, s.UpsertChannel(context.Background(), ch)
	}).Wait(ctx)
	return err
}

func (w *Worker) DeleteChannel(ctx context.Context, channel string) (bool, error) {
	return enqueue(w, "delete_channel", true, func(s Storage) (bool, error) {
		return s.DeleteChannel(context.Background(), channel)
	}).Wait(ctx)
}
