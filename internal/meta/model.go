package meta

import (
	"strings"
	"time"
)

// Типы полей, которые понимает движок.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeDecimal  FieldType = "decimal"
	TypeDatetime FieldType = "datetime"
	TypeBoolean  FieldType = "boolean"
	TypeEnum     FieldType = "enum"
)

func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeDecimal, TypeDatetime, TypeBoolean, TypeEnum:
		return true
	}
	return false
}

// EntityDefinition описывает одну динамическую "таблицу".
// EntityName уникален среди не удалённых сущностей (регистрозависимо).
type EntityDefinition struct {
	ID            string    `json:"id"`
	EntityName    string    `json:"entity_name"`
	DisplayName   string    `json:"display_name"`
	StorageTarget string    `json:"storage_target"` // логическое имя коллекции/таблицы
	Description   string    `json:"description,omitempty"`
	IsDeleted     bool      `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Collection возвращает целевую коллекцию для записей сущности.
func (e *EntityDefinition) Collection() string {
	if strings.TrimSpace(e.StorageTarget) != "" {
		return e.StorageTarget
	}
	return Pluralize(e.EntityName)
}

// EnumOption — одна позиция enum-справочника поля.
type EnumOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// FieldDefinition описывает одно типизированное поле сущности.
// Пара (EntityID, FieldName) уникальна среди не удалённых полей.
type FieldDefinition struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entity_id"`
	FieldName    string    `json:"field_name"`
	DisplayName  string    `json:"display_name"`
	FieldType    FieldType `json:"field_type"`
	IsRequired   bool      `json:"is_required"`
	IsUnique     bool      `json:"is_unique"`
	MaxLength    int       `json:"max_length,omitempty"` // 0 = не задано
	MinLength    int       `json:"min_length,omitempty"` // 0 = не задано
	Pattern      string    `json:"pattern,omitempty"`    // только string
	DefaultValue string    `json:"default_value,omitempty"`
	Options      string    `json:"options,omitempty"` // JSON-массив EnumOption, только enum
	DisplayOrder int       `json:"display_order"`
	IsDeleted    bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SchemaContext — сущность плюс её активные поля в порядке DisplayOrder.
// Собирается заново на каждый запрос, между запросами не кэшируется.
type SchemaContext struct {
	Entity *EntityDefinition
	Fields []*FieldDefinition
}

// FieldByName ищет поле по имени без учёта регистра.
func (c *SchemaContext) FieldByName(name string) (*FieldDefinition, bool) {
	for _, f := range c.Fields {
		if strings.EqualFold(f.FieldName, name) {
			return f, true
		}
	}
	return nil, false
}

// Record — один сохранённый экземпляр сущности. Data — открытая карта
// "имя поля -> значение", единственная часть системы без статической формы.
type Record struct {
	ID        string         `json:"id"`
	EntityID  string         `json:"entity_id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Deleted   bool           `json:"-"`
}

// CloneData отдаёт неглубокую копию Data (вложенные значения общие).
func (r *Record) CloneData() map[string]any {
	out := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		out[k] = v
	}
	return out
}

// Pluralize — элементарная плюрализация для имён коллекций по умолчанию
// (достаточно для products, customers, ...).
func Pluralize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || strings.HasSuffix(s, "s") {
		return s
	}
	return s + "s"
}
