package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"korob/internal/engine"
	"korob/internal/meta"
)

const BackendPostgres = "postgres"

// Postgres — реляционный адаптер: все записи в одной таблице records,
// открытая карта data сериализуется в jsonb-колонку. Внутри таблицы
// коллекции разделены колонкой collection, фильтр — entity_id.
type Postgres struct {
	db      *sql.DB
	entropy io.Reader
}

func NewPostgres(db *sql.DB) *Postgres {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Postgres{db: db, entropy: ulid.Monotonic(src, 0)}
}

func (p *Postgres) BackendName() string { return BackendPostgres }

func (p *Postgres) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return &engine.StorageError{Backend: BackendPostgres, Err: err}
	}
	return nil
}

func (p *Postgres) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy).String()
}

func (p *Postgres) wrap(err error) error {
	return &engine.StorageError{Backend: BackendPostgres, Err: err}
}

const recordCols = `id, entity_id, data, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*meta.Record, error) {
	var rec meta.Record
	var raw []byte
	if err := row.Scan(&rec.ID, &rec.EntityID, &raw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.Data); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Postgres) Create(ctx context.Context, d engine.Descriptor) (*meta.Record, error) {
	raw, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, p.wrap(err)
	}
	rec := &meta.Record{
		ID:       p.newID(),
		EntityID: d.EntityID,
		Data:     d.Payload,
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = p.db.ExecContext(ctx, `
		insert into records (id, entity_id, collection, data, created_at, updated_at, is_deleted)
		values ($1, $2, $3, $4, $5, $6, false)`,
		rec.ID, rec.EntityID, d.Collection, raw, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, p.wrap(err)
	}
	return rec, nil
}

func (p *Postgres) FindMany(ctx context.Context, d engine.Descriptor) ([]*meta.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		select `+recordCols+` from records
		where entity_id = $1 and not is_deleted
		order by created_at desc, id desc
		limit $2 offset $3`,
		d.EntityID, d.Take, d.Skip)
	if err != nil {
		return nil, p.wrap(err)
	}
	defer rows.Close()

	var out []*meta.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, p.wrap(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap(err)
	}
	return out, nil
}

func (p *Postgres) FindOne(ctx context.Context, d engine.Descriptor) (*meta.Record, error) {
	rec, err := scanRecord(p.db.QueryRowContext(ctx, `
		select `+recordCols+` from records
		where id = $1 and entity_id = $2 and not is_deleted`,
		d.RecordID, d.EntityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrRecordNotFound
	}
	if err != nil {
		return nil, p.wrap(err)
	}
	return rec, nil
}

func (p *Postgres) Count(ctx context.Context, d engine.Descriptor) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `
		select count(*) from records
		where entity_id = $1 and not is_deleted`,
		d.EntityID).Scan(&n)
	if err != nil {
		return 0, p.wrap(err)
	}
	return n, nil
}

func (p *Postgres) Update(ctx context.Context, d engine.Descriptor) (*meta.Record, error) {
	raw, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, p.wrap(err)
	}
	rec, err := scanRecord(p.db.QueryRowContext(ctx, `
		update records set data = $3, updated_at = $4
		where id = $1 and entity_id = $2 and not is_deleted
		returning `+recordCols,
		d.RecordID, d.EntityID, raw, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrRecordNotFound
	}
	if err != nil {
		return nil, p.wrap(err)
	}
	return rec, nil
}

func (p *Postgres) SoftDelete(ctx context.Context, d engine.Descriptor) error {
	res, err := p.db.ExecContext(ctx, `
		update records set is_deleted = true, updated_at = $3
		where id = $1 and entity_id = $2 and not is_deleted`,
		d.RecordID, d.EntityID, time.Now().UTC())
	if err != nil {
		return p.wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrRecordNotFound
	}
	return nil
}

func (p *Postgres) HardDelete(ctx context.Context, d engine.Descriptor) error {
	res, err := p.db.ExecContext(ctx, `
		delete from records where id = $1 and entity_id = $2`,
		d.RecordID, d.EntityID)
	if err != nil {
		return p.wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrRecordNotFound
	}
	return nil
}
