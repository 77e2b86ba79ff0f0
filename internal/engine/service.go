package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"korob/internal/meta"
)

// Service — оркестратор движка записей: схема -> валидация -> дескриптор ->
// маршрутизация -> адаптер. Состояния между запросами нет, каждый вызов
// обслуживается независимо.
type Service struct {
	reader    *meta.Reader
	validator *Validator
	routing   *Routing
	log       *zap.Logger
}

func NewService(reader *meta.Reader, validator *Validator, routing *Routing, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{reader: reader, validator: validator, routing: routing, log: log}
}

// ListResult — страница записей плюс счётчики для пагинации.
type ListResult struct {
	Items      []*meta.Record `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int64          `json:"total_pages"`
}

func (s *Service) loadContext(ctx context.Context, entityName string) (*meta.SchemaContext, error) {
	sc, err := s.reader.LoadContext(ctx, entityName)
	if errors.Is(err, meta.ErrEntityNotFound) {
		return nil, ErrSchemaNotFound
	}
	return sc, err
}

func (s *Service) List(ctx context.Context, entityName string, page, pageSize int) (*ListResult, error) {
	sc, err := s.loadContext(ctx, entityName)
	if err != nil {
		return nil, err
	}

	page, pageSize = ClampPage(page, pageSize)
	adapter := s.routing.Resolve(entityName)

	items, err := adapter.FindMany(ctx, BuildList(sc, page, pageSize))
	if err != nil {
		return nil, err
	}
	total, err := adapter.Count(ctx, BuildCount(sc))
	if err != nil {
		return nil, err
	}

	totalPages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPages++
	}
	if items == nil {
		items = []*meta.Record{}
	}
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) Count(ctx context.Context, entityName string) (int64, error) {
	sc, err := s.loadContext(ctx, entityName)
	if err != nil {
		return 0, err
	}
	return s.routing.Resolve(entityName).Count(ctx, BuildCount(sc))
}

func (s *Service) Get(ctx context.Context, entityName, recordID string) (*meta.Record, error) {
	sc, err := s.loadContext(ctx, entityName)
	if err != nil {
		return nil, err
	}
	return s.routing.Resolve(entityName).FindOne(ctx, BuildGet(sc, recordID))
}

func (s *Service) Create(ctx context.Context, entityName string, payload map[string]any) (*meta.Record, error) {
	sc, err := s.loadContext(ctx, entityName)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}

	s.validator.ApplyDefaults(sc, payload)
	normalized, verrs := s.validator.Validate(sc, payload)
	if len(verrs) > 0 {
		return nil, verrs
	}

	adapter := s.routing.Resolve(entityName)
	uerrs, err := s.checkUnique(ctx, sc, adapter, normalized, "")
	if err != nil {
		return nil, err
	}
	if len(uerrs) > 0 {
		return nil, uerrs
	}

	rec, err := adapter.Create(ctx, BuildCreate(sc, normalized))
	if err != nil {
		return nil, err
	}
	s.log.Debug("record created",
		zap.String("entity", entityName), zap.String("record_id", rec.ID))
	return rec, nil
}

// Update — частичное слияние: входящие ключи перекрывают существующие с тем
// же (без учёта регистра) именем, остальные значения записи сохраняются.
// Слитый результат валидируется заново целиком.
func (s *Service) Update(ctx context.Context, entityName, recordID string, payload map[string]any) (*meta.Record, error) {
	sc, err := s.loadContext(ctx, entityName)
	if err != nil {
		return nil, err
	}
	adapter := s.routing.Resolve(entityName)

	existing, err := adapter.FindOne(ctx, BuildGet(sc, recordID))
	if err != nil {
		return nil, err
	}

	// коллизии регистра ловим до слияния, иначе они схлопнутся молча
	if verrs := s.validator.CaseConflicts(sc, payload); len(verrs) > 0 {
		return nil, verrs
	}
	merged := mergePayload(existing.Data, payload)
	normalized, verrs := s.validator.Validate(sc, merged)
	if len(verrs) > 0 {
		return nil, verrs
	}
	uerrs, err := s.checkUnique(ctx, sc, adapter, normalized, recordID)
	if err != nil {
		return nil, err
	}
	if len(uerrs) > 0 {
		return nil, uerrs
	}

	rec, err := adapter.Update(ctx, BuildUpdate(sc, recordID, normalized))
	if err != nil {
		return nil, err
	}
	s.log.Debug("record updated",
		zap.String("entity", entityName), zap.String("record_id", recordID))
	return rec, nil
}

func (s *Service) SoftDelete(ctx context.Context, entityName, recordID string) error {
	sc, err := s.loadContext(ctx, entityName)
	if err != nil {
		return err
	}
	if err := s.routing.Resolve(entityName).SoftDelete(ctx, BuildSoftDelete(sc, recordID)); err != nil {
		return err
	}
	s.log.Debug("record soft-deleted",
		zap.String("entity", entityName), zap.String("record_id", recordID))
	return nil
}

// uniqueScanPage — размер страницы при проверке unique-полей.
const uniqueScanPage = 500

// checkUnique ищет живую запись с тем же значением любого is_unique поля.
// Запись под апдейтом (excludeID) из сравнения исключается; значения
// сравниваются через fmt.Sprint.
func (s *Service) checkUnique(ctx context.Context, sc *meta.SchemaContext, adapter Adapter,
	payload map[string]any, excludeID string) (ValidationErrors, error) {

	var watched []*meta.FieldDefinition
	for _, f := range sc.Fields {
		if !f.IsUnique {
			continue
		}
		if _, ok := payload[f.FieldName]; ok {
			watched = append(watched, f)
		}
	}
	if len(watched) == 0 {
		return nil, nil
	}

	var errs ValidationErrors
	taken := make(map[string]bool, len(watched))
	for page := 1; ; page++ {
		recs, err := adapter.FindMany(ctx, BuildList(sc, page, uniqueScanPage))
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if rec.ID == excludeID {
				continue
			}
			for _, f := range watched {
				if taken[f.FieldName] {
					continue
				}
				existing, ok := rec.Data[f.FieldName]
				if !ok {
					continue
				}
				if fmt.Sprint(existing) == fmt.Sprint(payload[f.FieldName]) {
					taken[f.FieldName] = true
					errs = append(errs, ferr(ErrUniqueViolation, f.FieldName,
						"Field '"+f.FieldName+"' must be unique"))
				}
			}
		}
		if len(recs) < uniqueScanPage || len(taken) == len(watched) {
			break
		}
	}
	return errs, nil
}

// mergePayload кладёт incoming поверх existing; совпадение ключей — без
// учёта регистра, побеждает написание входящего ключа (валидация потом
// приведёт его к написанию из метаданных).
func mergePayload(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		for mk := range merged {
			if mk != k && strings.EqualFold(mk, k) {
				delete(merged, mk)
			}
		}
		merged[k] = v
	}
	return merged
}
