package engine

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Routing отображает имя сущности на адаптер. Конфигурация читается один
// раз на старте и дальше неизменна: записи одной сущности всегда живут
// ровно в одном бэкенде, никакого split-brain по чтениям.
type Routing struct {
	adapters map[string]Adapter // имя бэкенда -> адаптер
	rules    map[string]string  // lower(entity) -> имя бэкенда
	def      string
}

// NewRouting валидирует правила против набора адаптеров. Правило на
// неизвестный бэкенд — ошибка конфигурации на старте, не в рантайме.
func NewRouting(defaultBackend string, rules map[string]string, adapters ...Adapter) (*Routing, error) {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.BackendName()] = a
	}
	if _, ok := byName[defaultBackend]; !ok {
		return nil, fmt.Errorf("default backend %q is not registered", defaultBackend)
	}

	norm := make(map[string]string, len(rules))
	for entity, backend := range rules {
		if _, ok := byName[backend]; !ok {
			return nil, fmt.Errorf("entity %q routed to unknown backend %q", entity, backend)
		}
		norm[strings.ToLower(strings.TrimSpace(entity))] = backend
	}

	return &Routing{adapters: byName, rules: norm, def: defaultBackend}, nil
}

// Resolve — детерминированная чистая функция от имени сущности.
// Без явного правила работает бэкенд по умолчанию.
func (r *Routing) Resolve(entityName string) Adapter {
	if backend, ok := r.rules[strings.ToLower(strings.TrimSpace(entityName))]; ok {
		return r.adapters[backend]
	}
	return r.adapters[r.def]
}

// Backends возвращает все адаптеры в стабильном порядке (для health check).
func (r *Routing) Backends() []Adapter {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}

// RoutingFile — yaml-файл с правилами:
//
//	default: memory
//	entities:
//	  Customer: postgres
//	  AuditEvent: redis
type RoutingFile struct {
	Default  string            `yaml:"default"`
	Entities map[string]string `yaml:"entities"`
}

func LoadRoutingFile(path string) (*RoutingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf RoutingFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("routing file %s: %w", path, err)
	}
	return &rf, nil
}
