package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/webhookrouter/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteChannels(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	channels, err := s.GetChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)

	require.NoError(t, s.UpsertChannel(ctx, models.Channel{Channel: "orders", Handler: "shop.orders"}))
	require.NoError(t, s.UpsertChannel(ctx, models.Channel{Channel: "alerts", Handler: "ops.alert"}))
	require.NoError(t, s.UpsertChannel(ctx, models.Channel{Channel: "orders", Handler: "shop.orders.v2"}))

	channels, err = s.GetChannels(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Channel{
		{Channel: "orders", Handler: "shop.orders.v2"},
		{Channel: "alerts", Handler: "ops.alert"},
	}, channels)

	deleted, err := s.DeleteChannel(ctx, "alerts")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteChannel(ctx, "alerts")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSQLiteListMessagesOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	for i := 0; i < 25; i++ {
		_, err := s.InsertMessage(ctx, models.MessageRecord{
			Time:    1000 + float64(i/2),
			Channel: "orders",
			Content: `{}`,
			Meta:    `{}`,
		})
		require.NoError(t, err)
	}
	_, err := s.InsertMessage(ctx, models.MessageRecord{Time: 5000, Channel: "other", Content: `{}`, Meta: `{}`})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "orders", 20)
	require.NoError(t, err)
	require.Len(t, msgs, 20)

	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		assert.Equal(t, "orders", cur.Channel)
		if prev.Time == cur.Time {
			assert.Greater(t, prev.ID, cur.ID)
		} else {
			assert.Greater(t, prev.Time, cur.Time)
		}
	}
	assert.Equal(t, int64(25), msgs[0].ID)
}

func TestSQLiteInsertMessageAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first, err := s.InsertMessage(ctx, models.MessageRecord{Time: 1, Channel: "a", Content: `1`, Meta: `{}`})
	require.NoError(t, err)
	second, err := s.InsertMessage(ctx, models.MessageRecord{Time: 1, Channel: "a", Content: `2`, Meta: `{}`})
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
