package meta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
)

// PGStore хранит описания схем в Postgres (таблицы entity_definitions и
// field_definitions, DDL — в internal/pg).
type PGStore struct {
	db      *sql.DB
	entropy io.Reader
}

func NewPGStore(db *sql.DB) *PGStore {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &PGStore{db: db, entropy: ulid.Monotonic(src, 0)}
}

func (s *PGStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

const entityCols = `id, entity_name, display_name, storage_target, description, is_deleted, created_at, updated_at`

func scanEntity(row interface{ Scan(...any) error }) (*EntityDefinition, error) {
	var e EntityDefinition
	err := row.Scan(&e.ID, &e.EntityName, &e.DisplayName, &e.StorageTarget,
		&e.Description, &e.IsDeleted, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// isUniqueViolation — 23505 от Postgres (частичный уникальный индекс по
// не удалённым строкам).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PGStore) CreateEntity(ctx context.Context, e *EntityDefinition) error {
	if e.ID == "" {
		e.ID = s.newID()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		insert into entity_definitions (`+entityCols+`)
		values ($1, $2, $3, $4, $5, false, $6, $7)`,
		e.ID, e.EntityName, e.DisplayName, e.StorageTarget, e.Description, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEntity
	}
	if err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateEntity(ctx context.Context, e *EntityDefinition) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		update entity_definitions
		set entity_name = $2, display_name = $3, storage_target = $4,
		    description = $5, updated_at = $6
		where id = $1 and not is_deleted`,
		e.ID, e.EntityName, e.DisplayName, e.StorageTarget, e.Description, e.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEntity
	}
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (s *PGStore) DeleteEntity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update entity_definitions set is_deleted = true, updated_at = $2
		where id = $1 and not is_deleted`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (s *PGStore) EntityByName(ctx context.Context, name string) (*EntityDefinition, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx, `
		select `+entityCols+` from entity_definitions
		where entity_name = $1 and not is_deleted`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("entity by name: %w", err)
	}
	return e, nil
}

func (s *PGStore) EntityByID(ctx context.Context, id string) (*EntityDefinition, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx, `
		select `+entityCols+` from entity_definitions
		where id = $1 and not is_deleted`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("entity by id: %w", err)
	}
	return e, nil
}

func (s *PGStore) ListEntities(ctx context.Context) ([]*EntityDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+entityCols+` from entity_definitions
		where not is_deleted order by entity_name`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*EntityDefinition
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const fieldCols = `id, entity_id, field_name, display_name, field_type, is_required, is_unique,
	max_length, min_length, pattern, default_value, options, display_order, is_deleted, created_at, updated_at`

func scanField(row interface{ Scan(...any) error }) (*FieldDefinition, error) {
	var f FieldDefinition
	err := row.Scan(&f.ID, &f.EntityID, &f.FieldName, &f.DisplayName, &f.FieldType,
		&f.IsRequired, &f.IsUnique, &f.MaxLength, &f.MinLength, &f.Pattern,
		&f.DefaultValue, &f.Options, &f.DisplayOrder, &f.IsDeleted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PGStore) CreateField(ctx context.Context, f *FieldDefinition) error {
	if _, err := s.EntityByID(ctx, f.EntityID); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = s.newID()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		insert into field_definitions (`+fieldCols+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false, $14, $15)`,
		f.ID, f.EntityID, f.FieldName, f.DisplayName, f.FieldType, f.IsRequired, f.IsUnique,
		f.MaxLength, f.MinLength, f.Pattern, f.DefaultValue, f.Options, f.DisplayOrder,
		f.CreatedAt, f.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateField
	}
	if err != nil {
		return fmt.Errorf("create field: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateField(ctx context.Context, f *FieldDefinition) error {
	f.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		update field_definitions
		set field_name = $2, display_name = $3, field_type = $4, is_required = $5,
		    is_unique = $6, max_length = $7, min_length = $8, pattern = $9,
		    default_value = $10, options = $11, display_order = $12, updated_at = $13
		where id = $1 and not is_deleted`,
		f.ID, f.FieldName, f.DisplayName, f.FieldType, f.IsRequired, f.IsUnique,
		f.MaxLength, f.MinLength, f.Pattern, f.DefaultValue, f.Options, f.DisplayOrder, f.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateField
	}
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFieldNotFound
	}
	return nil
}

func (s *PGStore) DeleteField(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update field_definitions set is_deleted = true, updated_at = $2
		where id = $1 and not is_deleted`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFieldNotFound
	}
	return nil
}

func (s *PGStore) FieldByID(ctx context.Context, id string) (*FieldDefinition, error) {
	f, err := scanField(s.db.QueryRowContext(ctx, `
		select `+fieldCols+` from field_definitions
		where id = $1 and not is_deleted`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFieldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("field by id: %w", err)
	}
	return f, nil
}

func (s *PGStore) FieldsByEntity(ctx context.Context, entityID string) ([]*FieldDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+fieldCols+` from field_definitions
		where entity_id = $1 and not is_deleted
		order by display_order, field_name`, entityID)
	if err != nil {
		return nil, fmt.Errorf("fields by entity: %w", err)
	}
	defer rows.Close()

	var out []*FieldDefinition
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
