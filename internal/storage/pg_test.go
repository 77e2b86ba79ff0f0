package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"korob/internal/engine"
	"korob/internal/pg"
)

// startPostgres поднимает контейнер и возвращает подключение
// с накатанной схемой.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test, needs docker")
	}
	ctx := context.Background()

	pgc, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("korob"),
		tcpostgres.WithUsername("korob"),
		tcpostgres.WithPassword("korob"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgc.Terminate(context.Background()) })

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := pg.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, pg.Bootstrap(db))
	return db
}

func TestPostgresAdapterCRUD(t *testing.T) {
	db := startPostgres(t)
	p := NewPostgres(db)
	ctx := context.Background()

	base := engine.Descriptor{Collection: "products", EntityID: "ent-1"}

	// create + findOne
	cd := base
	cd.Payload = map[string]any{"name": "Mouse", "price": 29.99}
	rec, err := p.Create(ctx, cd)
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	fd := base
	fd.RecordID = rec.ID
	got, err := p.FindOne(ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, "Mouse", got.Data["name"])
	assert.Equal(t, 29.99, got.Data["price"])

	// update
	ud := fd
	ud.Payload = map[string]any{"name": "Keyboard", "price": 49.99}
	upd, err := p.Update(ctx, ud)
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", upd.Data["name"])

	// findMany: новые первыми
	cd.Payload = map[string]any{"name": "Monitor"}
	second, err := p.Create(ctx, cd)
	require.NoError(t, err)

	ld := base
	ld.Take = 10
	list, err := p.FindMany(ctx, ld)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	n, err := p.Count(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// soft delete прячет запись из всех чтений
	require.NoError(t, p.SoftDelete(ctx, fd))
	_, err = p.FindOne(ctx, fd)
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)
	assert.ErrorIs(t, p.SoftDelete(ctx, fd), engine.ErrRecordNotFound)

	n, err = p.Count(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// hard delete видит и мягко удалённые
	require.NoError(t, p.HardDelete(ctx, fd))
	assert.ErrorIs(t, p.HardDelete(ctx, fd), engine.ErrRecordNotFound)
}

func TestPostgresAdapterPagination(t *testing.T) {
	db := startPostgres(t)
	p := NewPostgres(db)
	ctx := context.Background()

	base := engine.Descriptor{Collection: "items", EntityID: "ent-2"}
	for i := 0; i < 7; i++ {
		cd := base
		cd.Payload = map[string]any{"n": float64(i)}
		_, err := p.Create(ctx, cd)
		require.NoError(t, err)
	}

	ld := base
	ld.Skip, ld.Take = 5, 5
	page, err := p.FindMany(ctx, ld)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// jsonb возвращает числа как float64
	assert.Equal(t, 1.0, page[0].Data["n"])
	assert.Equal(t, 0.0, page[1].Data["n"])
}

func TestPostgresAdapterNotFound(t *testing.T) {
	db := startPostgres(t)
	p := NewPostgres(db)
	ctx := context.Background()

	d := engine.Descriptor{Collection: "products", EntityID: "ent-1", RecordID: "missing"}
	_, err := p.FindOne(ctx, d)
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)

	d.Payload = map[string]any{}
	_, err = p.Update(ctx, d)
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)
}
