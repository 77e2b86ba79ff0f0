package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korob/internal/engine"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
}

func redisCreate(t *testing.T, r *Redis, entityID string, payload map[string]any) string {
	t.Helper()
	rec, err := r.Create(context.Background(), engine.Descriptor{
		Collection: "shared", EntityID: entityID, Payload: payload,
	})
	require.NoError(t, err)
	return rec.ID
}

func TestRedisCreateFindOne(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	id := redisCreate(t, r, "ent-a", map[string]any{"name": "Mouse"})

	rec, err := r.FindOne(ctx, engine.Descriptor{Collection: "shared", EntityID: "ent-a", RecordID: id})
	require.NoError(t, err)
	assert.Equal(t, "Mouse", rec.Data["name"])

	// чужая сущность той же коллекции не видна
	_, err = r.FindOne(ctx, engine.Descriptor{Collection: "shared", EntityID: "ent-b", RecordID: id})
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)

	_, err = r.FindOne(ctx, engine.Descriptor{Collection: "shared", EntityID: "ent-a", RecordID: "missing"})
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)
}

// Две сущности делят одну коллекцию: выдача и счётчики каждой сущности
// не должны видеть записи соседа.
func TestRedisSharedCollectionIsolation(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		redisCreate(t, r, "ent-a", map[string]any{"n": float64(i)})
	}
	for i := 0; i < 2; i++ {
		redisCreate(t, r, "ent-b", map[string]any{"n": float64(i)})
	}

	nA, err := r.Count(ctx, engine.Descriptor{Collection: "shared", EntityID: "ent-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), nA)
	nB, err := r.Count(ctx, engine.Descriptor{Collection: "shared", EntityID: "ent-b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), nB)

	// страница целиком из своей сущности, без недоборов из-за соседних доков
	recs, err := r.FindMany(ctx, engine.Descriptor{Collection: "shared", EntityID: "ent-a", Take: 3})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		assert.Equal(t, "ent-a", rec.EntityID)
	}
}

func TestRedisFindManyOrderAndPaging(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		redisCreate(t, r, "ent-a", map[string]any{"n": float64(i)})
	}

	d := engine.Descriptor{Collection: "shared", EntityID: "ent-a", Skip: 1, Take: 2}
	recs, err := r.FindMany(ctx, d)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// новые первыми: после skip=1 идут n=3 и n=2
	assert.Equal(t, 3.0, recs[0].Data["n"])
	assert.Equal(t, 2.0, recs[1].Data["n"])

	d.Skip = 100
	recs, err = r.FindMany(ctx, d)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRedisUpdateAndDelete(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	id := redisCreate(t, r, "ent-a", map[string]any{"name": "Mouse"})
	d := engine.Descriptor{Collection: "shared", EntityID: "ent-a", RecordID: id}

	ud := d
	ud.Payload = map[string]any{"name": "Keyboard"}
	rec, err := r.Update(ctx, ud)
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", rec.Data["name"])

	require.NoError(t, r.SoftDelete(ctx, d))
	_, err = r.FindOne(ctx, d)
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)
	assert.ErrorIs(t, r.SoftDelete(ctx, d), engine.ErrRecordNotFound)

	n, err := r.Count(ctx, engine.Descriptor{Collection: "shared", EntityID: "ent-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// hard delete сносит и мягко удалённый документ
	require.NoError(t, r.HardDelete(ctx, d))
	assert.ErrorIs(t, r.HardDelete(ctx, d), engine.ErrRecordNotFound)
}
