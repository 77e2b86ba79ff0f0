package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaNotFound — неизвестное (или удалённое) имя сущности.
	ErrSchemaNotFound = errors.New("entity not found")
	// ErrRecordNotFound — запись отсутствует или уже soft-deleted.
	ErrRecordNotFound = errors.New("record not found")
)

// Коды ошибок валидации, которыми будем пользоваться
const (
	ErrRequired        = "required"
	ErrTypeMismatch    = "type_mismatch"
	ErrLength          = "length"
	ErrPattern         = "pattern"
	ErrEnumInvalid     = "enum_invalid"
	ErrFieldConflict   = "field_conflict"
	ErrUniqueViolation = "unique_violation"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

// ValidationErrors — полный список нарушений по всем полям, без
// короткого замыкания на первом.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// StorageError — отказ бэкенда: имя бэкенда плюс исходная причина.
// Движок такие ошибки не ретраит.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
