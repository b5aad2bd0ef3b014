package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/webhookrouter/internal/models"
)

type fakeStorage struct {
	mu         sync.Mutex
	inserted   []models.MessageRecord
	insertErr  error
	migrateErr error
	closed     bool
	block      chan struct{}
}

func (f *fakeStorage) GetChannels(ctx context.Context) ([]models.Channel, error) {
	return []models.Channel{{Channel: "orders", Handler: "shop.orders"}}, nil
}

func (f *fakeStorage) UpsertChannel(ctx context.Context, ch models.Channel) error { return nil }

func (f *fakeStorage) DeleteChannel(ctx context.Context, channel string) (bool, error) {
	return false, nil
}

func (f *fakeStorage) InsertMessage(ctx context.Context, rec models.MessageRecord) (int64, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, rec)
	return int64(len(f.inserted)), nil
}

func (f *fakeStorage) ListMessages(ctx context.Context, channel string, limit int) ([]models.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MessageRecord(nil), f.inserted...), nil
}

func (f *fakeStorage) Migrate(ctx context.Context) error { return f.migrateErr }

func (f *fakeStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newFakeWorker(t *testing.T, store *fakeStorage, opts ...WorkerOption) *Worker {
	t.Helper()
	w := NewWorker(func() (Storage, error) { return store, nil }, zerolog.Nop(), opts...)
	return w
}

func TestWorkerRejectsOperationsBeforeStart(t *testing.T) {
	w := newFakeWorker(t, &fakeStorage{})

	_, err := w.GetChannels(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotStarted)
	var se *StoreError
	assert.ErrorAs(t, err, &se)
}

func TestWorkerStartTwice(t *testing.T) {
	w := newFakeWorker(t, &fakeStorage{})
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()

	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}

func TestWorkerStartFailsWhenOpenFails(t *testing.T) {
	w := NewWorker(func() (Storage, error) { return nil, errors.New("disk on fire") }, zerolog.Nop())
	err := w.Start(context.Background())
	require.Error(t, err)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "open", se.Op)

	_, err = w.GetChannels(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWorkerStartFailsWhenMigrateFails(t *testing.T) {
	store := &fakeStorage{migrateErr: errors.New("bad schema")}
	w := newFakeWorker(t, store)
	require.Error(t, w.Start(context.Background()))
	assert.True(t, store.closed)
}

func TestWorkerPreservesSubmissionOrder(t *testing.T) {
	store := &fakeStorage{}
	w := newFakeWorker(t, store)
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()

	var futures []*Future[int64]
	for i := 0; i < 50; i++ {
		futures = append(futures, w.InsertMessage(float64(i), "orders", "{}", "{}"))
	}
	for i, f := range futures {
		id, err := f.Result()
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	recs, err := w.GetMessages(context.Background(), "orders", 100)
	require.NoError(t, err)
	require.Len(t, recs, 50)
	for i, rec := range recs {
		assert.Equal(t, float64(i), rec.Time)
	}
}

func TestWorkerRoutesWriteFailuresToSink(t *testing.T) {
	store := &fakeStorage{insertErr: errors.New("constraint failed")}

	var mu sync.Mutex
	var sunk []error
	w := newFakeWorker(t, store, WithErrorSink(func(op string, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "insert_message", op)
		sunk = append(sunk, err)
	}))
	require.NoError(t, w.Start(context.Background()))

	_, err := w.InsertMessage(1, "orders", "{}", "{}").Result()
	require.Error(t, err)
	var se *StoreError
	assert.ErrorAs(t, err, &se)

	// later operations are still served
	channels, err := w.GetChannels(context.Background())
	require.NoError(t, err)
	assert.Len(t, channels, 1)

	require.NoError(t, w.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, sunk, 1)
}

func TestWorkerSinksWritesSubmittedAfterClose(t *testing.T) {
	var sunk atomic.Int32
	w := newFakeWorker(t, &fakeStorage{}, WithErrorSink(func(op string, err error) { sunk.Add(1) }))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Close())

	_, err := w.InsertMessage(1, "orders", "{}", "{}").Result()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int32(1), sunk.Load())
}

func TestWorkerSinkCalledFromConcurrentSubmitters(t *testing.T) {
	var (
		mu    sync.Mutex
		ops   []string
		calls atomic.Int32
	)
	w := newFakeWorker(t, &fakeStorage{}, WithErrorSink(func(op string, err error) {
		calls.Add(1)
		mu.Lock()
		ops = append(ops, op)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.InsertMessage(1, "orders", "{}", "{}").Result()
			assert.ErrorIs(t, err, ErrNotStarted)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(16), calls.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, ops, 16)
}

func TestWorkerWriteSurvivesCallerGivingUp(t *testing.T) {
	store := &fakeStorage{block: make(chan struct{})}
	w := newFakeWorker(t, store)
	require.NoError(t, w.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	f := w.InsertMessage(1, "orders", "{}", "{}")
	cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(store.block)
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("write did not complete")
	}
	id, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.NoError(t, w.Close())
}

func TestWorkerCloseDrainsQueue(t *testing.T) {
	store := &fakeStorage{}
	w := newFakeWorker(t, store)
	require.NoError(t, w.Start(context.Background()))

	for i := 0; i < 10; i++ {
		w.InsertMessage(float64(i), "orders", "{}", "{}")
	}
	require.NoError(t, w.Close())
	assert.Len(t, store.inserted, 10)
	assert.True(t, store.closed)
}

func TestWorkerWithSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	w := NewWorker(func() (Storage, error) { return NewSQLite(path) }, zerolog.Nop())
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.UpsertChannel(ctx, models.Channel{Channel: "orders", Handler: "shop.orders"}))

	id, err := w.InsertMessage(1700000000.5, "orders", `{"id":42}`, `{"address":"1.2.3.4"}`).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	recs, err := w.GetMessages(ctx, "orders", 20)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, `{"id":42}`, recs[0].Content)
	assert.Equal(t, 1700000000.5, recs[0].Time)

	channels, err := w.GetChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{{Channel: "orders", Handler: "shop.orders"}}, channels)
}
