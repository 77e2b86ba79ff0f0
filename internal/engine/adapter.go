package engine

import (
	"context"

	"korob/internal/meta"
)

// Adapter — контракт физического бэкенда, одна реализация на хранилище.
// На границе с сервисом всегда единая форма meta.Record, никаких нативных
// типов бэкенда. Чтение всегда с фильтром is_deleted=false; FindMany отдаёт
// записи по created_at по убыванию. Для отсутствующей или уже удалённой
// записи методы возвращают ErrRecordNotFound, отказ бэкенда заворачивается
// в *StorageError. Реализации безопасны для конкурентных вызовов.
type Adapter interface {
	BackendName() string
	HealthCheck(ctx context.Context) error

	Create(ctx context.Context, d Descriptor) (*meta.Record, error)
	FindMany(ctx context.Context, d Descriptor) ([]*meta.Record, error)
	FindOne(ctx context.Context, d Descriptor) (*meta.Record, error)
	Count(ctx context.Context, d Descriptor) (int64, error)
	Update(ctx context.Context, d Descriptor) (*meta.Record, error)
	SoftDelete(ctx context.Context, d Descriptor) error
	HardDelete(ctx context.Context, d Descriptor) error
}
