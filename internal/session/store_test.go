package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, 10*time.Minute), mr
}

func TestPutTakeRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	key := Key{Platform: "red", Channel: "42", User: "alice"}

	err := store.Put(ctx, key, Pending{Server: tsugudto.ServerJP, PlayerID: 10000001})
	require.NoError(t, err)

	p, err := store.Take(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, tsugudto.ServerJP, p.Server)
	assert.Equal(t, int64(10000001), p.PlayerID)
	assert.False(t, p.Unbind)
}

func TestTakeConsumes(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	key := Key{Platform: "red", Channel: "42", User: "alice"}

	require.NoError(t, store.Put(ctx, key, Pending{Server: tsugudto.ServerCN, Unbind: true}))

	first, err := store.Take(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Unbind)

	second, err := store.Take(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestTakeMissing(t *testing.T) {
	store, _ := newStore(t)

	p, err := store.Take(context.Background(), Key{Platform: "red", Channel: "1", User: "nobody"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPutOverwrites(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	key := Key{Platform: "red", Channel: "42", User: "alice"}

	require.NoError(t, store.Put(ctx, key, Pending{Server: tsugudto.ServerJP, PlayerID: 1}))
	require.NoError(t, store.Put(ctx, key, Pending{Server: tsugudto.ServerEN, PlayerID: 2}))

	p, err := store.Take(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, tsugudto.ServerEN, p.Server)
	assert.Equal(t, int64(2), p.PlayerID)
}

func TestPendingExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	key := Key{Platform: "red", Channel: "42", User: "alice"}

	require.NoError(t, store.Put(ctx, key, Pending{Server: tsugudto.ServerJP, PlayerID: 7}))
	mr.FastForward(11 * time.Minute)

	p, err := store.Take(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestKeysAreConversationScoped(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Key{Platform: "red", Channel: "1", User: "a"}, Pending{Server: tsugudto.ServerJP}))

	p, err := store.Take(ctx, Key{Platform: "red", Channel: "1", User: "b"})
	require.NoError(t, err)
	assert.Nil(t, p)
}
