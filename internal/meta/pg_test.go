package meta

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"korob/internal/pg"
)

func startPGStore(t *testing.T) *PGStore {
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

	return NewPGStore(db)
}

func TestPGStoreSchemaLifecycle(t *testing.T) {
	s := startPGStore(t)
	ctx := context.Background()

	e := &EntityDefinition{EntityName: "Product", DisplayName: "Product", StorageTarget: "products"}
	require.NoError(t, s.CreateEntity(ctx, e))
	require.NotEmpty(t, e.ID)

	// частичный уникальный индекс ловит повтор имени
	assert.ErrorIs(t, s.CreateEntity(ctx, &EntityDefinition{EntityName: "Product"}), ErrDuplicateEntity)

	got, err := s.EntityByName(ctx, "Product")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	_, err = s.EntityByName(ctx, "product")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	f := &FieldDefinition{EntityID: e.ID, FieldName: "productName",
		FieldType: TypeString, IsRequired: true, MaxLength: 255, DisplayOrder: 1}
	require.NoError(t, s.CreateField(ctx, f))

	// уникальность поля — по lower(field_name)
	dup := &FieldDefinition{EntityID: e.ID, FieldName: "PRODUCTNAME", FieldType: TypeString}
	assert.ErrorIs(t, s.CreateField(ctx, dup), ErrDuplicateField)

	fields, err := s.FieldsByEntity(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "productName", fields[0].FieldName)
	assert.Equal(t, 255, fields[0].MaxLength)

	// soft delete поля освобождает имя
	require.NoError(t, s.DeleteField(ctx, f.ID))
	require.NoError(t, s.CreateField(ctx, dup))

	// soft delete сущности прячет её из выборок
	require.NoError(t, s.DeleteEntity(ctx, e.ID))
	_, err = s.EntityByName(ctx, "Product")
	assert.ErrorIs(t, err, ErrEntityNotFound)
	entities, err := s.ListEntities(ctx)
	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.ErrorIs(t, s.DeleteEntity(ctx, e.ID), ErrEntityNotFound)
}

func TestPGStoreUpdate(t *testing.T) {
	s := startPGStore(t)
	ctx := context.Background()

	e := &EntityDefinition{EntityName: "Order"}
	require.NoError(t, s.CreateEntity(ctx, e))

	e.DisplayName = "Customer order"
	e.Description = "orders placed through the storefront"
	require.NoError(t, s.UpdateEntity(ctx, e))

	got, err := s.EntityByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Customer order", got.DisplayName)

	assert.ErrorIs(t, s.UpdateEntity(ctx, &EntityDefinition{ID: "missing", EntityName: "X"}),
		ErrEntityNotFound)
}
