package router

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/shohag/webhookrouter/internal/storage"
)

type published struct {
	topic string
	event Event
}

type fakeSession struct {
	mu        sync.Mutex
	published []published
	calls     []string
	callFunc  func(ctx context.Context, procedure string, call Call) (any, error)
}

func (f *fakeSession) Publish(topic string, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, event: ev})
	return nil
}

func (f *fakeSession) Call(ctx context.Context, procedure string, call Call) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, procedure)
	fn := f.callFunc
	f.mu.Unlock()
	if fn == nil {
		return map[string]any{"procedure": procedure}, nil
	}
	return fn(ctx, procedure, call)
}

func (f *fakeSession) Published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

func newTestWorker(t *testing.T) *storage.Worker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sqlite")
	w := storage.NewWorker(func() (storage.Storage, error) { return storage.NewSQLite(path) }, zerolog.Nop())
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Close() })
	return w
}
