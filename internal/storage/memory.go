// Package storage содержит адаптеры физических бэкендов. Каждый адаптер
// исполняет engine.Descriptor и возвращает единую форму meta.Record.
package storage

import (
	"context"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"korob/internal/engine"
	"korob/internal/meta"
)

const BackendMemory = "memory"

// Memory — записи в памяти процесса под RWMutex. Бэкенд по умолчанию,
// когда внешние хранилища не сконфигурированы; им же пользуются тесты.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]map[string]*meta.Record // collection -> id -> запись
	entropy io.Reader
}

func NewMemory() *Memory {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Memory{
		data:    make(map[string]map[string]*meta.Record),
		entropy: ulid.Monotonic(src, 0),
	}
}

func (m *Memory) BackendName() string { return BackendMemory }

func (m *Memory) HealthCheck(_ context.Context) error { return nil }

func (m *Memory) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

func (m *Memory) Create(_ context.Context, d engine.Descriptor) (*meta.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[d.Collection] == nil {
		m.data[d.Collection] = make(map[string]*meta.Record)
	}
	now := time.Now().UTC()
	rec := &meta.Record{
		ID:        m.newID(),
		EntityID:  d.EntityID,
		Data:      d.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.data[d.Collection][rec.ID] = rec
	cp := *rec
	cp.Data = rec.CloneData()
	return &cp, nil
}

// live отдаёт запись коллекции, если она существует и не удалена.
// Вызывать под блокировкой.
func (m *Memory) live(d engine.Descriptor) *meta.Record {
	rec := m.data[d.Collection][d.RecordID]
	if rec == nil || rec.Deleted || rec.EntityID != d.EntityID {
		return nil
	}
	return rec
}

func (m *Memory) FindMany(_ context.Context, d engine.Descriptor) ([]*meta.Record, error) {
	m.mu.RLock()
	all := make([]*meta.Record, 0, len(m.data[d.Collection]))
	for _, rec := range m.data[d.Collection] {
		if rec.Deleted || rec.EntityID != d.EntityID {
			continue
		}
		cp := *rec
		cp.Data = rec.CloneData()
		all = append(all, &cp)
	}
	m.mu.RUnlock()

	// новые первыми; при равном времени — по id (ULID растёт со временем)
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := d.Skip
	if start > len(all) {
		start = len(all)
	}
	end := start + d.Take
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (m *Memory) FindOne(_ context.Context, d engine.Descriptor) (*meta.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec := m.live(d)
	if rec == nil {
		return nil, engine.ErrRecordNotFound
	}
	cp := *rec
	cp.Data = rec.CloneData()
	return &cp, nil
}

func (m *Memory) Count(_ context.Context, d engine.Descriptor) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.data[d.Collection] {
		if !rec.Deleted && rec.EntityID == d.EntityID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Update(_ context.Context, d engine.Descriptor) (*meta.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.live(d)
	if rec == nil {
		return nil, engine.ErrRecordNotFound
	}
	rec.Data = d.Payload
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	cp.Data = rec.CloneData()
	return &cp, nil
}

func (m *Memory) SoftDelete(_ context.Context, d engine.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.live(d)
	if rec == nil {
		return engine.ErrRecordNotFound
	}
	rec.Deleted = true
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) HardDelete(_ context.Context, d engine.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[d.Collection][d.RecordID]; !ok {
		return engine.ErrRecordNotFound
	}
	delete(m.data[d.Collection], d.RecordID)
	return nil
}
