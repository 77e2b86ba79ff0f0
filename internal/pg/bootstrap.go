package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
)

// Open подключается к Postgres через database/sql поверх pgx и проверяет
// соединение пингом. Пул держим умеренным: на каждый запрос движка
// приходится 1-2 коротких запроса, длинных транзакций нет.
func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Системные таблицы фиксированы: описания сущностей, описания полей и
// одна общая таблица записей с jsonb-данными. Динамического DDL под
// каждую сущность нет.
var bootstrapDDL = map[string]string{
	"010_entity_definitions": `
create table if not exists entity_definitions (
  "id" text primary key,
  "entity_name" text not null,
  "display_name" text not null default '',
  "storage_target" text not null default '',
  "description" text not null default '',
  "is_deleted" boolean not null default false,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null
);
create unique index if not exists entity_definitions_name_uq
  on entity_definitions("entity_name") where not "is_deleted";
`,
	"020_field_definitions": `
create table if not exists field_definitions (
  "id" text primary key,
  "entity_id" text not null references entity_definitions("id"),
  "field_name" text not null,
  "display_name" text not null default '',
  "field_type" text not null,
  "is_required" boolean not null default false,
  "is_unique" boolean not null default false,
  "max_length" integer not null default 0,
  "min_length" integer not null default 0,
  "pattern" text not null default '',
  "default_value" text not null default '',
  "options" text not null default '',
  "display_order" integer not null default 0,
  "is_deleted" boolean not null default false,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null
);
create unique index if not exists field_definitions_entity_name_uq
  on field_definitions("entity_id", lower("field_name")) where not "is_deleted";
`,
	"030_records": `
create table if not exists records (
  "id" text primary key,
  "entity_id" text not null,
  "collection" text not null,
  "data" jsonb not null,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null,
  "is_deleted" boolean not null default false
);
create index if not exists records_entity_created_ix
  on records("entity_id", "created_at" desc) where not "is_deleted";
`,
}

// Bootstrap накатывает системный DDL. Все выражения idempotent
// (create ... if not exists), повторный запуск безопасен.
func Bootstrap(db *sql.DB) error {
	return applyDDL(db, bootstrapDDL)
}

// applyDDL выполняет map[key]sql в стабильном порядке ключей,
// duplicate_object (42710) игнорируем.
func applyDDL(db *sql.DB, ddl map[string]string) error {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, k := range keys {
		sqlText := strings.TrimSpace(ddl[k])
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42710" {
				continue
			}
			return fmt.Errorf("DDL apply failed (%s): %w", k, err)
		}
	}
	return nil
}
