package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Описание сущности в seed-файле (*.yaml). Пример:
//
//	entity: Product
//	displayName: Product
//	fields:
//	  - name: productName
//	    type: string
//	    required: true
//	    maxLength: 255
//	  - name: status
//	    type: enum
//	    options:
//	      - {value: active, label: Active}
//	      - {value: inactive, label: Inactive}
type SeedEntity struct {
	Entity        string      `yaml:"entity"`
	DisplayName   string      `yaml:"displayName"`
	StorageTarget string      `yaml:"storageTarget"`
	Description   string      `yaml:"description"`
	Fields        []SeedField `yaml:"fields"`
}

type SeedField struct {
	Name        string       `yaml:"name"`
	DisplayName string       `yaml:"displayName"`
	Type        string       `yaml:"type"`
	Required    bool         `yaml:"required"`
	Unique      bool         `yaml:"unique"`
	MaxLength   int          `yaml:"maxLength"`
	MinLength   int          `yaml:"minLength"`
	Pattern     string       `yaml:"pattern"`
	Default     string       `yaml:"default"`
	Options     []EnumOption `yaml:"options"`
	Order       int          `yaml:"order"`
}

// SeedFromDir читает все *.yaml/*.yml из каталога и заводит описанные там
// сущности через SchemaStore. Уже существующие имена пропускаются —
// повторный запуск безопасен.
func SeedFromDir(ctx context.Context, store SchemaStore, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return created, err
		}
		var seed SeedEntity
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return created, fmt.Errorf("%s: %w", name, err)
		}
		ok, err := seedOne(ctx, store, &seed)
		if err != nil {
			return created, fmt.Errorf("%s: %w", name, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func seedOne(ctx context.Context, store SchemaStore, seed *SeedEntity) (bool, error) {
	if strings.TrimSpace(seed.Entity) == "" {
		return false, errors.New("seed entity has empty name")
	}
	if _, err := store.EntityByName(ctx, seed.Entity); err == nil {
		return false, nil // уже есть
	} else if !errors.Is(err, ErrEntityNotFound) {
		return false, err
	}

	e := &EntityDefinition{
		EntityName:    seed.Entity,
		DisplayName:   seed.DisplayName,
		StorageTarget: seed.StorageTarget,
		Description:   seed.Description,
	}
	if e.DisplayName == "" {
		e.DisplayName = seed.Entity
	}
	if e.StorageTarget == "" {
		e.StorageTarget = Pluralize(seed.Entity)
	}
	if err := store.CreateEntity(ctx, e); err != nil {
		return false, err
	}

	for i, sf := range seed.Fields {
		f := &FieldDefinition{
			EntityID:     e.ID,
			FieldName:    sf.Name,
			DisplayName:  sf.DisplayName,
			FieldType:    FieldType(strings.ToLower(sf.Type)),
			IsRequired:   sf.Required,
			IsUnique:     sf.Unique,
			MaxLength:    sf.MaxLength,
			MinLength:    sf.MinLength,
			Pattern:      sf.Pattern,
			DefaultValue: sf.Default,
			DisplayOrder: sf.Order,
		}
		if f.DisplayName == "" {
			f.DisplayName = sf.Name
		}
		if f.DisplayOrder == 0 {
			f.DisplayOrder = i + 1
		}
		if !f.FieldType.Valid() {
			return false, fmt.Errorf("field %q: unknown type %q", sf.Name, sf.Type)
		}
		if len(sf.Options) > 0 {
			raw, err := json.Marshal(sf.Options)
			if err != nil {
				return false, err
			}
			f.Options = string(raw)
		}
		if err := store.CreateField(ctx, f); err != nil {
			return false, fmt.Errorf("field %q: %w", sf.Name, err)
		}
	}
	return true, nil
}
