package engine

import "korob/internal/meta"

// Descriptor — нейтральное к бэкенду описание одного действия над
// хранилищем. Сам билдер хранилище не трогает: дескриптор исполняет ровно
// один адаптер, выбранный маршрутизацией.
//
// Фильтр всегда подразумевает entity_id + is_deleted=false; выдача списка
// всегда упорядочена по created_at по убыванию (новые первыми), чтобы
// пагинация была детерминированной.
type Descriptor struct {
	Collection string         // целевая коллекция (storage target сущности)
	EntityID   string
	RecordID   string         // get/update/delete
	Payload    map[string]any // create/update
	Skip       int            // list
	Take       int            // list
}

// DefaultPageSize применяется, когда клиент не передал page_size.
const DefaultPageSize = 20

// ClampPage приводит page и pageSize к допустимым значениям (оба >= 1).
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	return page, pageSize
}

func BuildList(sc *meta.SchemaContext, page, pageSize int) Descriptor {
	page, pageSize = ClampPage(page, pageSize)
	return Descriptor{
		Collection: sc.Entity.Collection(),
		EntityID:   sc.Entity.ID,
		Skip:       (page - 1) * pageSize,
		Take:       pageSize,
	}
}

func BuildGet(sc *meta.SchemaContext, recordID string) Descriptor {
	return Descriptor{
		Collection: sc.Entity.Collection(),
		EntityID:   sc.Entity.ID,
		RecordID:   recordID,
	}
}

func BuildCreate(sc *meta.SchemaContext, payload map[string]any) Descriptor {
	return Descriptor{
		Collection: sc.Entity.Collection(),
		EntityID:   sc.Entity.ID,
		Payload:    payload,
	}
}

func BuildUpdate(sc *meta.SchemaContext, recordID string, merged map[string]any) Descriptor {
	return Descriptor{
		Collection: sc.Entity.Collection(),
		EntityID:   sc.Entity.ID,
		RecordID:   recordID,
		Payload:    merged,
	}
}

func BuildSoftDelete(sc *meta.SchemaContext, recordID string) Descriptor {
	return Descriptor{
		Collection: sc.Entity.Collection(),
		EntityID:   sc.Entity.ID,
		RecordID:   recordID,
	}
}

func BuildCount(sc *meta.SchemaContext) Descriptor {
	return Descriptor{
		Collection: sc.Entity.Collection(),
		EntityID:   sc.Entity.ID,
	}
}
