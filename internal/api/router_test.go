package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"korob/internal/engine"
	"korob/internal/meta"
	"korob/internal/storage"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := meta.NewMemoryStore()
	mem := storage.NewMemory()
	routing, err := engine.NewRouting(storage.BackendMemory, nil, mem)
	require.NoError(t, err)
	reader := meta.NewReader(store)
	svc := engine.NewService(reader, engine.NewValidator(zap.NewNop()), routing, zap.NewNop())

	return NewRouter(svc, store, reader, routing, zap.NewNop())
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

const productEntity = `{
  "entity_name": "Product",
  "fields": [
    {"field_name": "productName", "field_type": "string", "is_required": true, "max_length": 255},
    {"field_name": "price", "field_type": "decimal", "is_required": true},
    {"field_name": "status", "field_type": "enum",
     "options": [{"value": "active"}, {"value": "inactive"}]}
  ]
}`

func TestRecordCRUDOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/admin/entities", productEntity)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// create
	w = do(t, r, http.MethodPost, "/api/Product", `{"productName":"Mouse","price":29.99}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	data := created["data"].(map[string]any)
	assert.Equal(t, "Mouse", data["productName"])

	// get
	w = do(t, r, http.MethodGet, "/api/Product/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	// patch: частичное слияние
	w = do(t, r, http.MethodPatch, "/api/Product/"+id, `{"price":19.99}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	upd := decode(t, w)
	data = upd["data"].(map[string]any)
	assert.Equal(t, 19.99, data["price"])
	assert.Equal(t, "Mouse", data["productName"])

	// list + count
	w = do(t, r, http.MethodGet, "/api/Product", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	assert.Equal(t, 1.0, list["total"])

	w = do(t, r, http.MethodGet, "/api/Product/count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	// delete -> последующий get 404
	w = do(t, r, http.MethodDelete, "/api/Product/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/Product/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodDelete, "/api/Product/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidationErrorsReturnedAsList(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/admin/entities", productEntity)

	// нет обоих required плюс левый enum — все нарушения одним ответом
	w := do(t, r, http.MethodPost, "/api/Product", `{"status":"pending"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	errs := body["errors"].([]any)
	assert.Len(t, errs, 3)
	codes := map[string]bool{}
	for _, e := range errs {
		codes[e.(map[string]any)["code"].(string)] = true
	}
	assert.True(t, codes["required"])
	assert.True(t, codes["enum_invalid"])
}

func TestUnknownEntityIs404(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/Ghost", `{"x":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/Ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminLint(t *testing.T) {
	r := newTestRouter(t)

	// блокирующая проблема: неизвестный тип
	w := do(t, r, http.MethodPost, "/api/admin/entities",
		`{"entity_name":"Bad","fields":[{"field_name":"x","field_type":"blob"}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "type_unknown")

	// не блокирующая: битый pattern -> 201 + warnings
	w = do(t, r, http.MethodPost, "/api/admin/entities",
		`{"entity_name":"Warned","fields":[{"field_name":"code","field_type":"string","pattern":"[unclosed"}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "pattern_invalid")

	// дубль имени сущности -> 409
	w = do(t, r, http.MethodPost, "/api/admin/entities", `{"entity_name":"Warned"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminEntityAndFieldLifecycle(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/admin/entities", `{"entity_name":"Customer"}`)

	// добавление поля
	w := do(t, r, http.MethodPost, "/api/admin/entities/Customer/fields",
		`{"field_name":"email","field_type":"string","is_required":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	field := decode(t, w)["field"].(map[string]any)
	fieldID := field["id"].(string)

	// поле сразу работает в валидации
	w = do(t, r, http.MethodPost, "/api/Customer", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "email")

	// снятие поля — требование исчезает
	w = do(t, r, http.MethodDelete, "/api/admin/fields/"+fieldID, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodPost, "/api/Customer", `{}`)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// удаление сущности закрывает её CRUD
	w = do(t, r, http.MethodDelete, "/api/admin/entities/Customer", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/Customer", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUniqueViolationIs409(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/admin/entities",
		`{"entity_name":"Customer","fields":[{"field_name":"email","field_type":"string","is_unique":true}]}`)

	w := do(t, r, http.MethodPost, "/api/Customer", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/Customer", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "unique_violation")
}

func TestMetaAndLookup(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/admin/entities", productEntity)

	w := do(t, r, http.MethodGet, "/api/meta", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entity":"Product"`)

	w = do(t, r, http.MethodGet, "/api/meta/Product", "")
	require.Equal(t, http.StatusOK, w.Code)
	described := decode(t, w)
	fields := described["fields"].([]any)
	require.Len(t, fields, 3)
	first := fields[0].(map[string]any)
	assert.Equal(t, "productName", first["name"])
	assert.Equal(t, true, first["required"])

	do(t, r, http.MethodPost, "/api/Product", `{"productName":"Mouse","price":1.5}`)
	do(t, r, http.MethodPost, "/api/Product", `{"productName":"Keyboard","price":2.5}`)

	// label по умолчанию — первое строковое поле (productName)
	w = do(t, r, http.MethodGet, "/api/lookup/Product", "")
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 2)
	labels := []string{items[0]["label"].(string), items[1]["label"].(string)}
	assert.ElementsMatch(t, []string{"Mouse", "Keyboard"}, labels)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"memory":"ok"`))
}

func TestListPaginationQuery(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/admin/entities", productEntity)

	for i := 0; i < 25; i++ {
		w := do(t, r, http.MethodPost, "/api/Product", `{"productName":"P","price":1}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, r, http.MethodGet, "/api/Product?page=2&page_size=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Len(t, res["items"].([]any), 10)
	assert.Equal(t, 25.0, res["total"])
	assert.Equal(t, 3.0, res["total_pages"])
}
