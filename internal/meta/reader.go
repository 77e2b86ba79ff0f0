package meta

import "context"

// Reader собирает SchemaContext для одного запроса: сущность по точному
// имени плюс активные поля по DisplayOrder. Побочных эффектов нет.
type Reader struct {
	store SchemaStore
}

func NewReader(store SchemaStore) *Reader {
	return &Reader{store: store}
}

func (r *Reader) LoadContext(ctx context.Context, entityName string) (*SchemaContext, error) {
	e, err := r.store.EntityByName(ctx, entityName)
	if err != nil {
		return nil, err
	}
	fields, err := r.store.FieldsByEntity(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return &SchemaContext{Entity: e, Fields: fields}, nil
}
