package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"korob/internal/meta"
)

// Административный слой: CRUD над описаниями сущностей и полей.
// Движок записей эти таблицы только читает — пишут только эти ручки.
type Admin struct {
	store meta.SchemaStore
	log   *zap.Logger
}

func NewAdmin(store meta.SchemaStore, log *zap.Logger) *Admin {
	if log == nil {
		log = zap.NewNop()
	}
	return &Admin{store: store, log: log}
}

type entityReq struct {
	EntityName    string     `json:"entity_name"`
	DisplayName   string     `json:"display_name"`
	StorageTarget string     `json:"storage_target"`
	Description   string     `json:"description"`
	Fields        []fieldReq `json:"fields"`
}

type fieldReq struct {
	FieldName    string            `json:"field_name"`
	DisplayName  string            `json:"display_name"`
	FieldType    string            `json:"field_type"`
	IsRequired   bool              `json:"is_required"`
	IsUnique     bool              `json:"is_unique"`
	MaxLength    int               `json:"max_length"`
	MinLength    int               `json:"min_length"`
	Pattern      string            `json:"pattern"`
	DefaultValue string            `json:"default_value"`
	Options      []meta.EnumOption `json:"options"`
	DisplayOrder int               `json:"display_order"`
}

// SchemaIssue — проблема описания поля. Блокирующие отдаются как 400,
// не блокирующие (битый pattern) — как warnings в ответе плюс лог.
type SchemaIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// lintField проверяет описание поля до записи в стор.
func lintField(f *fieldReq) (blocking, warnings []SchemaIssue) {
	name := strings.TrimSpace(f.FieldName)
	if name == "" {
		blocking = append(blocking, SchemaIssue{Field: f.FieldName, Code: "name_empty",
			Message: "field name must not be empty"})
	}
	ft := meta.FieldType(strings.ToLower(strings.TrimSpace(f.FieldType)))
	if !ft.Valid() {
		blocking = append(blocking, SchemaIssue{Field: name, Code: "type_unknown",
			Message: "unknown field type '" + f.FieldType + "'"})
	}
	if f.MinLength < 0 || f.MaxLength < 0 || (f.MaxLength > 0 && f.MinLength > f.MaxLength) {
		blocking = append(blocking, SchemaIssue{Field: name, Code: "length_bounds",
			Message: "min_length/max_length bounds are inconsistent"})
	}
	if f.Pattern != "" {
		if ft != meta.TypeString {
			blocking = append(blocking, SchemaIssue{Field: name, Code: "pattern_not_string",
				Message: "pattern is only allowed on string fields"})
		} else if _, err := regexp.Compile(f.Pattern); err != nil {
			// не блокируем: движок в рантайме пропустит ограничение
			warnings = append(warnings, SchemaIssue{Field: name, Code: "pattern_invalid",
				Message: "pattern does not compile and will not be enforced: " + err.Error()})
		}
	}
	if len(f.Options) > 0 && ft != meta.TypeEnum {
		blocking = append(blocking, SchemaIssue{Field: name, Code: "options_not_enum",
			Message: "options are only allowed on enum fields"})
	}
	if ft == meta.TypeEnum && len(f.Options) == 0 {
		warnings = append(warnings, SchemaIssue{Field: name, Code: "options_empty",
			Message: "enum field has no options; every value will be rejected"})
	}
	return blocking, warnings
}

func (a *Admin) buildField(entityID string, order int, req *fieldReq) *meta.FieldDefinition {
	f := &meta.FieldDefinition{
		EntityID:     entityID,
		FieldName:    strings.TrimSpace(req.FieldName),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		FieldType:    meta.FieldType(strings.ToLower(strings.TrimSpace(req.FieldType))),
		IsRequired:   req.IsRequired,
		IsUnique:     req.IsUnique,
		MaxLength:    req.MaxLength,
		MinLength:    req.MinLength,
		Pattern:      req.Pattern,
		DefaultValue: req.DefaultValue,
		DisplayOrder: req.DisplayOrder,
	}
	if f.DisplayName == "" {
		f.DisplayName = f.FieldName
	}
	if f.DisplayOrder == 0 {
		f.DisplayOrder = order
	}
	if len(req.Options) > 0 {
		raw, err := json.Marshal(req.Options)
		if err == nil {
			f.Options = string(raw)
		}
	}
	return f
}

// POST /api/admin/entities — сущность, опционально сразу с полями.
func (a *Admin) CreateEntity(c *gin.Context) {
	var req entityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if strings.TrimSpace(req.EntityName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity_name is required"})
		return
	}

	var blocking, warnings []SchemaIssue
	seen := map[string]bool{}
	for i := range req.Fields {
		b, w := lintField(&req.Fields[i])
		blocking = append(blocking, b...)
		warnings = append(warnings, w...)
		lower := strings.ToLower(strings.TrimSpace(req.Fields[i].FieldName))
		if seen[lower] {
			blocking = append(blocking, SchemaIssue{Field: req.Fields[i].FieldName,
				Code: "name_duplicate", Message: "duplicate field name"})
		}
		seen[lower] = true
	}
	if len(blocking) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schema has blocking issues", "issues": blocking})
		return
	}

	e := &meta.EntityDefinition{
		EntityName:    strings.TrimSpace(req.EntityName),
		DisplayName:   strings.TrimSpace(req.DisplayName),
		StorageTarget: strings.TrimSpace(req.StorageTarget),
		Description:   req.Description,
	}
	if e.DisplayName == "" {
		e.DisplayName = e.EntityName
	}
	if e.StorageTarget == "" {
		e.StorageTarget = meta.Pluralize(e.EntityName)
	}
	if err := a.store.CreateEntity(c.Request.Context(), e); err != nil {
		writeError(c, err)
		return
	}
	for i := range req.Fields {
		f := a.buildField(e.ID, i+1, &req.Fields[i])
		if err := a.store.CreateField(c.Request.Context(), f); err != nil {
			writeError(c, err)
			return
		}
	}
	for _, w := range warnings {
		a.log.Warn("schema warning", zap.String("entity", e.EntityName),
			zap.String("field", w.Field), zap.String("code", w.Code))
	}

	out := gin.H{"entity": e}
	if len(warnings) > 0 {
		out["warnings"] = warnings
	}
	c.JSON(http.StatusCreated, out)
}

// GET /api/admin/entities
func (a *Admin) ListEntities(c *gin.Context) {
	entities, err := a.store.ListEntities(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entities)
}

// GET /api/admin/entities/:entity — сущность вместе с активными полями.
func (a *Admin) GetEntity(c *gin.Context) {
	e, err := a.store.EntityByName(c.Request.Context(), c.Param("entity"))
	if err != nil {
		writeError(c, err)
		return
	}
	fields, err := a.store.FieldsByEntity(c.Request.Context(), e.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity": e, "fields": fields})
}

// PUT /api/admin/entities/:entity
func (a *Admin) UpdateEntity(c *gin.Context) {
	e, err := a.store.EntityByName(c.Request.Context(), c.Param("entity"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req entityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if strings.TrimSpace(req.EntityName) != "" {
		e.EntityName = strings.TrimSpace(req.EntityName)
	}
	if strings.TrimSpace(req.DisplayName) != "" {
		e.DisplayName = strings.TrimSpace(req.DisplayName)
	}
	if strings.TrimSpace(req.StorageTarget) != "" {
		e.StorageTarget = strings.TrimSpace(req.StorageTarget)
	}
	if req.Description != "" {
		e.Description = req.Description
	}
	if err := a.store.UpdateEntity(c.Request.Context(), e); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// DELETE /api/admin/entities/:entity — soft delete; существующие поля
// остаются для аудита, но для новых валидаций сущность мертва.
func (a *Admin) DeleteEntity(c *gin.Context) {
	e, err := a.store.EntityByName(c.Request.Context(), c.Param("entity"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := a.store.DeleteEntity(c.Request.Context(), e.ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/admin/entities/:entity/fields
func (a *Admin) CreateField(c *gin.Context) {
	e, err := a.store.EntityByName(c.Request.Context(), c.Param("entity"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req fieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	blocking, warnings := lintField(&req)
	if len(blocking) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schema has blocking issues", "issues": blocking})
		return
	}

	fields, err := a.store.FieldsByEntity(c.Request.Context(), e.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	f := a.buildField(e.ID, len(fields)+1, &req)
	if err := a.store.CreateField(c.Request.Context(), f); err != nil {
		writeError(c, err)
		return
	}
	for _, w := range warnings {
		a.log.Warn("schema warning", zap.String("entity", e.EntityName),
			zap.String("field", w.Field), zap.String("code", w.Code))
	}

	out := gin.H{"field": f}
	if len(warnings) > 0 {
		out["warnings"] = warnings
	}
	c.JSON(http.StatusCreated, out)
}

// PUT /api/admin/fields/:id
func (a *Admin) UpdateField(c *gin.Context) {
	f, err := a.store.FieldByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req fieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.FieldName == "" {
		req.FieldName = f.FieldName
	}
	if req.FieldType == "" {
		req.FieldType = string(f.FieldType)
	}
	blocking, warnings := lintField(&req)
	if len(blocking) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schema has blocking issues", "issues": blocking})
		return
	}

	upd := a.buildField(f.EntityID, f.DisplayOrder, &req)
	upd.ID = f.ID
	if err := a.store.UpdateField(c.Request.Context(), upd); err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{"field": upd}
	if len(warnings) > 0 {
		out["warnings"] = warnings
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/admin/fields/:id — soft delete поля.
func (a *Admin) DeleteField(c *gin.Context) {
	if err := a.store.DeleteField(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
