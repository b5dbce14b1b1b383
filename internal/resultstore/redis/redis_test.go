package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"anvil/internal/resultstore"
	"anvil/model"
)

func testStore(t *testing.T, ttlSeconds int) (resultstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, ttlSeconds)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t, 60)

	rec := model.ResultRecord{
		Ticket:    "t-1",
		Status:    model.StatusComplete,
		Detail:    model.DetailSucceeded,
		Payload:   "cGF5bG9hZA==",
		WrittenAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, rec.Payload, got.Payload)
	require.Equal(t, rec.Status, got.Status)
	require.Equal(t, rec.Detail, got.Detail)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, model.ErrUnknownTicket)

	require.Error(t, store.Put(ctx, model.ResultRecord{Status: model.StatusRunning}))
}

func TestRedisStore_TerminalRecordsExpire(t *testing.T) {
	ctx := context.Background()
	store, mr := testStore(t, 60)

	require.NoError(t, store.Put(ctx, model.ResultRecord{Ticket: "done", Status: model.StatusComplete}))
	require.NoError(t, store.Put(ctx, model.ResultRecord{Ticket: "inflight", Status: model.StatusRunning}))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "done")
	require.ErrorIs(t, err, model.ErrUnknownTicket)

	_, err = store.Get(ctx, "inflight")
	require.NoError(t, err, "running records must not expire")
}

func TestRedisStore_TerminalOverwriteSetsTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := testStore(t, 60)

	require.NoError(t, store.Put(ctx, model.ResultRecord{Ticket: "t-2", Status: model.StatusRunning}))
	require.NoError(t, store.Put(ctx, model.ResultRecord{Ticket: "t-2", Status: model.StatusError, Payload: "boom"}))

	got, err := store.Get(ctx, "t-2")
	require.NoError(t, err)
	require.Equal(t, model.StatusError, got.Status)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "t-2")
	require.ErrorIs(t, err, model.ErrUnknownTicket)
}
