package meta

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrEntityNotFound  = errors.New("entity definition not found")
	ErrFieldNotFound   = errors.New("field definition not found")
	ErrDuplicateEntity = errors.New("entity name already taken")
	ErrDuplicateField  = errors.New("field name already taken")
)

// SchemaStore хранит описания сущностей и полей. Движок записей только
// читает метаданные; пишет их административный слой.
type SchemaStore interface {
	CreateEntity(ctx context.Context, e *EntityDefinition) error
	UpdateEntity(ctx context.Context, e *EntityDefinition) error
	DeleteEntity(ctx context.Context, id string) error // soft
	EntityByName(ctx context.Context, name string) (*EntityDefinition, error)
	EntityByID(ctx context.Context, id string) (*EntityDefinition, error)
	ListEntities(ctx context.Context) ([]*EntityDefinition, error)

	CreateField(ctx context.Context, f *FieldDefinition) error
	UpdateField(ctx context.Context, f *FieldDefinition) error
	DeleteField(ctx context.Context, id string) error // soft
	FieldByID(ctx context.Context, id string) (*FieldDefinition, error)
	// FieldsByEntity возвращает активные поля по DisplayOrder.
	FieldsByEntity(ctx context.Context, entityID string) ([]*FieldDefinition, error)
}

// MemoryStore — схемы в памяти под RWMutex. Базовый вариант для разработки
// и тестов; в проде вместо него PGStore.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]*EntityDefinition // id -> def
	fields   map[string]*FieldDefinition  // id -> def
	entropy  io.Reader
}

func NewMemoryStore() *MemoryStore {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &MemoryStore{
		entities: make(map[string]*EntityDefinition),
		fields:   make(map[string]*FieldDefinition),
		entropy:  ulid.Monotonic(src, 0),
	}
}

func (s *MemoryStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *MemoryStore) CreateEntity(_ context.Context, e *EntityDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cur := range s.entities {
		if !cur.IsDeleted && cur.EntityName == e.EntityName {
			return ErrDuplicateEntity
		}
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateEntity(_ context.Context, e *EntityDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entities[e.ID]
	if !ok || cur.IsDeleted {
		return ErrEntityNotFound
	}
	for id, other := range s.entities {
		if id != e.ID && !other.IsDeleted && other.EntityName == e.EntityName {
			return ErrDuplicateEntity
		}
	}
	e.CreatedAt = cur.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteEntity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entities[id]
	if !ok || cur.IsDeleted {
		return ErrEntityNotFound
	}
	cur.IsDeleted = true
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) EntityByName(_ context.Context, name string) (*EntityDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// lookup строго регистрозависимый: "Customer" и "customer" — разные имена
	for _, e := range s.entities {
		if !e.IsDeleted && e.EntityName == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntityNotFound
}

func (s *MemoryStore) EntityByID(_ context.Context, id string) (*EntityDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok || e.IsDeleted {
		return nil, ErrEntityNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) ListEntities(_ context.Context) ([]*EntityDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*EntityDefinition, 0, len(s.entities))
	for _, e := range s.entities {
		if e.IsDeleted {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityName < out[j].EntityName })
	return out, nil
}

func (s *MemoryStore) CreateField(_ context.Context, f *FieldDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entities[f.EntityID]
	if !ok || ent.IsDeleted {
		return ErrEntityNotFound
	}
	for _, cur := range s.fields {
		if !cur.IsDeleted && cur.EntityID == f.EntityID && strings.EqualFold(cur.FieldName, f.FieldName) {
			return ErrDuplicateField
		}
	}
	if f.ID == "" {
		f.ID = s.newID()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	cp := *f
	s.fields[f.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateField(_ context.Context, f *FieldDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.fields[f.ID]
	if !ok || cur.IsDeleted {
		return ErrFieldNotFound
	}
	for id, other := range s.fields {
		if id != f.ID && !other.IsDeleted && other.EntityID == cur.EntityID &&
			strings.EqualFold(other.FieldName, f.FieldName) {
			return ErrDuplicateField
		}
	}
	f.EntityID = cur.EntityID
	f.CreatedAt = cur.CreatedAt
	f.UpdatedAt = time.Now().UTC()
	cp := *f
	s.fields[f.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteField(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.fields[id]
	if !ok || cur.IsDeleted {
		return ErrFieldNotFound
	}
	cur.IsDeleted = true
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) FieldByID(_ context.Context, id string) (*FieldDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fields[id]
	if !ok || f.IsDeleted {
		return nil, ErrFieldNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) FieldsByEntity(_ context.Context, entityID string) ([]*FieldDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FieldDefinition, 0, 8)
	for _, f := range s.fields {
		if f.IsDeleted || f.EntityID != entityID {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].FieldName < out[j].FieldName
	})
	return out, nil
}
