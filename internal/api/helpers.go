package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"korob/internal/engine"
	"korob/internal/meta"
)

// writeError — единая раскладка ошибок движка по HTTP-статусам:
// схема/запись не найдены -> 404, нарушения валидации -> 400 полным
// списком (409, если среди них конфликт уникальности), отказ
// бэкенда -> 502.
func writeError(c *gin.Context, err error) {
	var verrs engine.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(statusForErrors(verrs), gin.H{"errors": verrs})
		return
	}
	var serr *engine.StorageError
	if errors.As(err, &serr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Storage backend failed",
			"backend": serr.Backend,
		})
		return
	}
	switch {
	case errors.Is(err, engine.ErrSchemaNotFound), errors.Is(err, meta.ErrEntityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
	case errors.Is(err, engine.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.Is(err, meta.ErrFieldNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Field not found"})
	case errors.Is(err, meta.ErrDuplicateEntity):
		c.JSON(http.StatusConflict, gin.H{"error": "Entity name already taken"})
	case errors.Is(err, meta.ErrDuplicateField):
		c.JSON(http.StatusConflict, gin.H{"error": "Field name already taken"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// statusForErrors — 409, если среди нарушений есть конфликт уникальности,
// иначе 400.
func statusForErrors(errs engine.ValidationErrors) int {
	for _, e := range errs {
		if e.Code == engine.ErrUniqueViolation {
			return http.StatusConflict
		}
	}
	return http.StatusBadRequest
}

// parsePage читает page/page_size из query; некорректные значения молча
// заменяются дефолтами, движок дополнительно прижмёт их к >= 1.
func parsePage(c *gin.Context) (int, int) {
	page := 1
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page = n
		}
	}
	pageSize := engine.DefaultPageSize
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageSize = n
		}
	}
	return page, pageSize
}
