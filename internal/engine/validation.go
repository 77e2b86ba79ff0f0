package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"korob/internal/meta"
)

// Validator проверяет нетипизированный payload по SchemaContext и
// НОРМАЛИЗУЕТ его: ключи приводятся к написанию из метаданных, значения —
// к каноническому виду своего типа. Чистая функция от (схема, payload),
// хранилище не трогает.
type Validator struct {
	log *zap.Logger
}

func NewValidator(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log}
}

// Validate возвращает нормализованную копию payload и полный список
// нарушений. Исходный payload не меняется.
func (v *Validator) Validate(sc *meta.SchemaContext, payload map[string]any) (map[string]any, ValidationErrors) {
	byLower, conflicted, errs := resolveKeys(sc, payload)

	out := make(map[string]any, len(payload))
	claimed := make(map[string]bool, len(sc.Fields)) // ключи payload, разобранные полями

	for _, f := range sc.Fields {
		lower := strings.ToLower(f.FieldName)
		if conflicted[lower] {
			continue
		}
		rawKey, present := byLower[lower]
		var val any
		if present {
			val = payload[rawKey]
			claimed[rawKey] = true
		}

		if absent(val, present) {
			if f.IsRequired {
				errs = append(errs, ferr(ErrRequired, f.FieldName,
					"Field '"+f.FieldName+"' is required"))
			}
			continue
		}

		norm, fieldErrs := v.checkField(f, val)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}
		// в сохранённой записи ключ всегда в написании метаданных
		out[f.FieldName] = norm
	}

	// неизвестные ключи пропускаем как есть, без валидации
	for k, val := range payload {
		if !claimed[k] {
			if _, defined := sc.FieldByName(k); !defined {
				out[k] = val
			}
		}
	}

	return out, errs
}

// resolveKeys матчит ключи payload к полям без учёта регистра:
// email/Email/EMAIL — одно и то же поле. Два ключа, схлопывающихся в одно
// определённое поле, — отказ, а не молчаливый выбор одного из них.
func resolveKeys(sc *meta.SchemaContext, payload map[string]any) (map[string]string, map[string]bool, ValidationErrors) {
	var errs ValidationErrors
	byLower := make(map[string]string, len(payload)) // lower -> ключ из payload
	conflicted := make(map[string]bool)
	for k := range payload {
		l := strings.ToLower(k)
		if _, dup := byLower[l]; dup {
			if _, defined := sc.FieldByName(l); defined && !conflicted[l] {
				conflicted[l] = true
				errs = append(errs, ferr(ErrFieldConflict, l,
					"Payload has multiple keys for field '"+l+"'"))
			}
			continue
		}
		byLower[l] = k
	}
	return byLower, conflicted, errs
}

// CaseConflicts проверяет только коллизии регистра ключей, без остальной
// валидации — нужно сервису до слияния частичного апдейта.
func (v *Validator) CaseConflicts(sc *meta.SchemaContext, payload map[string]any) ValidationErrors {
	_, _, errs := resolveKeys(sc, payload)
	return errs
}

// absent — значение считается отсутствующим, если ключа нет, значение nil
// или пустая строка.
func absent(val any, present bool) bool {
	if !present || val == nil {
		return true
	}
	if s, ok := val.(string); ok && s == "" {
		return true
	}
	return false
}

func (v *Validator) checkField(f *meta.FieldDefinition, val any) (any, []FieldError) {
	name := f.FieldName
	switch f.FieldType {
	case meta.TypeString:
		s, err := toStringStrict(val)
		if err != nil {
			return nil, []FieldError{ferr(ErrTypeMismatch, name, "Field '"+name+"' "+err.Error())}
		}
		var errs []FieldError
		n := utf8.RuneCountInString(s)
		if f.MinLength > 0 && n < f.MinLength {
			errs = append(errs, ferr(ErrLength, name,
				fmt.Sprintf("Field '%s' must be at least %d characters", name, f.MinLength)))
		}
		if f.MaxLength > 0 && n > f.MaxLength {
			errs = append(errs, ferr(ErrLength, name,
				fmt.Sprintf("Field '%s' must be at most %d characters", name, f.MaxLength)))
		}
		if f.Pattern != "" {
			re, err := compileFull(f.Pattern)
			if err != nil {
				// битый regex в метаданных — проблема конфигурации, не запроса:
				// логируем и пропускаем ограничение
				v.log.Warn("invalid field pattern, constraint skipped",
					zap.String("field", name), zap.String("pattern", f.Pattern), zap.Error(err))
			} else if !re.MatchString(s) {
				errs = append(errs, ferr(ErrPattern, name,
					"Field '"+name+"' does not match required pattern"))
			}
		}
		if len(errs) > 0 {
			return nil, errs
		}
		return s, nil

	case meta.TypeInteger:
		n, err := toIntStrict(val)
		if err != nil {
			return nil, []FieldError{ferr(ErrTypeMismatch, name, "Field '"+name+"' "+err.Error())}
		}
		return n, nil

	case meta.TypeDecimal:
		fl, err := toFloatStrict(val)
		if err != nil {
			return nil, []FieldError{ferr(ErrTypeMismatch, name, "Field '"+name+"' "+err.Error())}
		}
		return fl, nil

	case meta.TypeBoolean:
		// строго bool, без коэрсинга из строк
		b, ok := val.(bool)
		if !ok {
			return nil, []FieldError{ferr(ErrTypeMismatch, name, "Field '"+name+"' must be boolean")}
		}
		return b, nil

	case meta.TypeDatetime:
		s, err := toStringStrict(val)
		if err != nil {
			return nil, []FieldError{ferr(ErrTypeMismatch, name, "Field '"+name+"' must be a timestamp string")}
		}
		if _, err := parseDatetime(s); err != nil {
			return nil, []FieldError{ferr(ErrTypeMismatch, name, "Field '"+name+"' must be RFC3339 datetime")}
		}
		return s, nil

	case meta.TypeEnum:
		s, err := toStringStrict(val)
		if err != nil {
			return nil, []FieldError{ferr(ErrTypeMismatch, name, "Field '"+name+"' "+err.Error())}
		}
		allowed := v.enumValues(f)
		for _, ev := range allowed {
			if s == ev {
				return s, nil
			}
		}
		return nil, []FieldError{ferr(ErrEnumInvalid, name, "Invalid value for '"+name+"'")}

	default:
		// неизвестный тип в метаданных — оставляем значение как есть
		v.log.Warn("unknown field type, value passed through",
			zap.String("field", name), zap.String("type", string(f.FieldType)))
		return val, nil
	}
}

// enumValues разбирает options поля. Битый JSON — конфигурационная
// проблема: логируем и считаем, что допустимых значений нет.
func (v *Validator) enumValues(f *meta.FieldDefinition) []string {
	if strings.TrimSpace(f.Options) == "" {
		return nil
	}
	var opts []meta.EnumOption
	if err := json.Unmarshal([]byte(f.Options), &opts); err != nil {
		v.log.Warn("malformed enum options, treated as empty",
			zap.String("field", f.FieldName), zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Value)
	}
	return out
}

// ApplyDefaults подставляет default= для отсутствующих полей (на Create).
// Некорректный дефолт не валит запрос — просто не подставляется.
func (v *Validator) ApplyDefaults(sc *meta.SchemaContext, payload map[string]any) {
	for _, f := range sc.Fields {
		if strings.TrimSpace(f.DefaultValue) == "" {
			continue
		}
		if payloadHasKey(payload, f.FieldName) {
			continue
		}
		if norm, errs := v.checkField(f, f.DefaultValue); len(errs) == 0 {
			payload[f.FieldName] = norm
		} else {
			v.log.Warn("invalid default value, not applied",
				zap.String("field", f.FieldName), zap.String("default", f.DefaultValue))
		}
	}
}

func payloadHasKey(payload map[string]any, field string) bool {
	for k := range payload {
		if strings.EqualFold(k, field) {
			return true
		}
	}
	return false
}

// compileFull анкерит паттерн: значение должно матчиться целиком.
func compileFull(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`\A(?:` + pattern + `)\z`)
}

func parseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func toStringStrict(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.New("must be string")
}

func toIntStrict(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		// JSON-числа приходят как float64 — проверяем целостность
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, errors.New("must be integer")
		}
		return int64(t), nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case json.Number:
		return t.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, errors.New("must be integer")
		}
		return n, nil
	default:
		return 0, errors.New("must be integer")
	}
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, errors.New("must be a finite number")
		}
		return f, nil
	default:
		return 0, errors.New("must be a finite number")
	}
}
