package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merliontechs/sales/framework/adapters/storage"
	"github.com/merliontechs/sales/framework/repository"
	frameworktest "github.com/merliontechs/sales/framework/testing"
)

type item = frameworktest.Item

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func newTestServer(t *testing.T, opts ...ResourceOption[item]) (*RESTAdapter, *frameworktest.InMemoryTestEnvironment) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := frameworktest.NewInMemoryTestEnvironment(t)
	store := storage.NewInMemoryStore(storage.DefaultInMemoryConfig(), frameworktest.ItemIdentity, storage.NewInt64Sequence(0))
	repo, err := repository.New[item, int64](store, frameworktest.ItemIdentity, env.Options("items")...)
	require.NoError(t, err)

	adapter := NewRESTAdapter(DefaultRESTConfig(), env.Metrics, zap.NewNop())
	NewResource[item, int64]("items", repo, frameworktest.ItemIdentity, parseInt64, opts...).Register(adapter.API())
	return adapter, env
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestResource_CRUDScenario(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(t, server, http.MethodPost, "/api/items", `{"name":"A"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":1,"name":"A"}`, w.Body.String())
	assert.Equal(t, "/api/items/1", w.Header().Get("Location"))

	w = do(t, server, http.MethodGet, "/api/items/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"name":"A"}`, w.Body.String())

	w = do(t, server, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":1,"name":"A"}]`, w.Body.String())

	w = do(t, server, http.MethodGet, "/api/items/count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":1}`, w.Body.String())

	w = do(t, server, http.MethodDelete, "/api/items/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, server, http.MethodDelete, "/api/items/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, server, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestResource_GetMissingReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(t, server, http.MethodGet, "/api/items/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResource_InvalidInput(t *testing.T) {
	server, _ := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"non numeric id", http.MethodGet, "/api/items/abc", ""},
		{"zero id", http.MethodGet, "/api/items/0", ""},
		{"malformed body", http.MethodPost, "/api/items", `{"name":`},
		{"client supplied id", http.MethodPost, "/api/items", `{"id":5,"name":"A"}`},
		{"zero id delete", http.MethodDelete, "/api/items/0", ""},
		{"zero id put", http.MethodPut, "/api/items/0", `{"name":"A"}`},
		{"non numeric page", http.MethodGet, "/api/items?page=x", ""},
		{"negative page", http.MethodGet, "/api/items?page=-1", ""},
		{"zero size", http.MethodGet, "/api/items?size=0", ""},
		{"oversized page", http.MethodGet, "/api/items?page=0&size=1001", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, server, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body["error"], "INVALID_ARGUMENT")
		})
	}
}

func TestResource_PutUsesPathID(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(t, server, http.MethodPut, "/api/items/7", `{"id":3,"name":"seven"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"name":"seven"}`, w.Body.String())

	w = do(t, server, http.MethodPut, "/api/items/7", `{"name":"SEVEN"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, server, http.MethodGet, "/api/items", "")
	assert.JSONEq(t, `[{"id":7,"name":"SEVEN"}]`, w.Body.String())
}

func TestResource_ZeroIDPutDoesNotCreate(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(t, server, http.MethodPut, "/api/items/0", `{"name":"A"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodGet, "/api/items/count", "")
	assert.JSONEq(t, `{"count":0}`, w.Body.String())
}

func TestResource_ListPage(t *testing.T) {
	server, _ := newTestServer(t)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		w := do(t, server, http.MethodPost, "/api/items", `{"name":"`+name+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, server, http.MethodGet, "/api/items?page=1&size=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":3,"name":"C"},{"id":4,"name":"D"}]`, w.Body.String())
	assert.Equal(t, "5", w.Header().Get(TotalCountHeader))

	w = do(t, server, http.MethodGet, "/api/items?page=5&size=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, "5", w.Header().Get(TotalCountHeader))

	// size по умолчанию
	w = do(t, server, http.MethodGet, "/api/items?page=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	var items []item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 5)

	w = do(t, server, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get(TotalCountHeader))
}

func TestResource_Validator(t *testing.T) {
	server, _ := newTestServer(t, WithValidator(func(i item) error {
		if i.Name == "" {
			return errors.New("name is required")
		}
		return nil
	}))

	w := do(t, server, http.MethodPost, "/api/items", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "name is required")
}

func TestResource_CorrelationIDPropagatesToEvents(t *testing.T) {
	server, env := newTestServer(t)
	env.Record(t, "items.saved")

	req := httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader(`{"name":"A"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", "req-123")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Correlation-ID"))

	received := env.Events()
	require.Len(t, received, 1)
	assert.Equal(t, "req-123", received[0].Metadata().CorrelationID())
}

func TestResource_RecordsRequestMetrics(t *testing.T) {
	server, env := newTestServer(t)

	do(t, server, http.MethodGet, "/api/items", "")
	do(t, server, http.MethodGet, "/api/items/count", "")

	rm := env.CollectMetrics(t)
	assert.Equal(t, int64(2), frameworktest.Sum(rm, "http_requests_total"))
}
