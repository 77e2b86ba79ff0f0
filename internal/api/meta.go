package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"korob/internal/engine"
	"korob/internal/meta"
)

// ===== META HANDLERS =====

type metaEntityListItem struct {
	Entity      string `json:"entity"`
	DisplayName string `json:"display_name"`
}

// GET /api/meta
func MetaListHandler(store meta.SchemaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		entities, err := store.ListEntities(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]metaEntityListItem, 0, len(entities))
		for _, e := range entities {
			out = append(out, metaEntityListItem{Entity: e.EntityName, DisplayName: e.DisplayName})
		}
		c.JSON(http.StatusOK, out)
	}
}

type metaField struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Type        string            `json:"type"`
	Required    bool              `json:"required"`
	Unique      bool              `json:"unique,omitempty"`
	MaxLength   int               `json:"max_length,omitempty"`
	MinLength   int               `json:"min_length,omitempty"`
	Pattern     string            `json:"pattern,omitempty"`
	Default     string            `json:"default,omitempty"`
	Options     []meta.EnumOption `json:"options,omitempty"`
}

// GET /api/meta/:entity — описание схемы для UI/клиентов.
func MetaEntityHandler(reader *meta.Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, err := reader.LoadContext(c.Request.Context(), c.Param("entity"))
		if err != nil {
			writeError(c, err)
			return
		}
		fields := make([]metaField, 0, len(sc.Fields))
		for _, f := range sc.Fields {
			mf := metaField{
				Name:        f.FieldName,
				DisplayName: f.DisplayName,
				Type:        string(f.FieldType),
				Required:    f.IsRequired,
				Unique:      f.IsUnique,
				MaxLength:   f.MaxLength,
				MinLength:   f.MinLength,
				Pattern:     f.Pattern,
				Default:     f.DefaultValue,
			}
			if f.Options != "" {
				// битые options здесь просто не показываем — валидатор о них
				// предупредит сам
				_ = json.Unmarshal([]byte(f.Options), &mf.Options)
			}
			fields = append(fields, mf)
		}
		c.JSON(http.StatusOK, gin.H{
			"entity":       sc.Entity.EntityName,
			"display_name": sc.Entity.DisplayName,
			"fields":       fields,
		})
	}
}

type lookupItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GET /api/lookup/:entity?label=fieldName — тонкая проекция {id, label}
// поверх записей для выпадающих списков. Без label берётся первое
// строковое поле схемы.
func LookupHandler(svc *engine.Service, reader *meta.Reader) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity := c.Param("entity")
		sc, err := reader.LoadContext(c.Request.Context(), entity)
		if err != nil {
			writeError(c, err)
			return
		}

		labelField := c.Query("label")
		if labelField == "" {
			for _, f := range sc.Fields {
				if f.FieldType == meta.TypeString {
					labelField = f.FieldName
					break
				}
			}
		}

		res, err := svc.List(c.Request.Context(), entity, 1, 200)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]lookupItem, 0, len(res.Items))
		for _, rec := range res.Items {
			label, _ := rec.Data[labelField].(string)
			if label == "" {
				label = rec.ID
			}
			out = append(out, lookupItem{ID: rec.ID, Label: label})
		}
		c.JSON(http.StatusOK, out)
	}
}
