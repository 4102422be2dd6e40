package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	orders  []Order
	listErr error
	limit   int
	offset  int
}

func (m *memoryStore) Create(_ context.Context, o *Order) error {
	o.ID = int64(len(m.orders) + 1)
	m.orders = append(m.orders, *o)
	return nil
}

func (m *memoryStore) FindByNumber(_ context.Context, number string) (Order, error) {
	for _, o := range m.orders {
		if o.Number == number {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (m *memoryStore) List(_ context.Context, limit, offset int) ([]Order, error) {
	m.limit, m.offset = limit, offset
	return m.orders, m.listErr
}

func (m *memoryStore) ListUnsynced(context.Context, int) ([]Order, error) { return nil, nil }

func (m *memoryStore) MarkSynced(context.Context, int64, int64) error { return nil }

func searchRequest(number string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/orders/search/"+number, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("number", number)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestNumberFor(t *testing.T) {
	ts := time.UnixMilli(1717243200123)
	if got := NumberFor(ts); got != "POS-1717243200123" {
		t.Fatalf("unexpected order number %q", got)
	}
}

func TestNormalizeNumber(t *testing.T) {
	require.Equal(t, "POS-42", NormalizeNumber("42"))
	require.Equal(t, "POS-42", NormalizeNumber(" pos-42 "))
	require.Equal(t, "", NormalizeNumber(" "))
}

func TestSearch(t *testing.T) {
	store := &memoryStore{orders: []Order{{ID: 1, Number: "POS-42", Total: "212.40"}}}
	h := &Handler{Store: store}

	rec := httptest.NewRecorder()
	h.Search(rec, searchRequest("42"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "212.40", body.Data.Total)

	rec = httptest.NewRecorder()
	h.Search(rec, searchRequest("POS-7"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPaginates(t *testing.T) {
	store := &memoryStore{}
	h := &Handler{Store: store}

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/orders?page=2&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 10, store.limit)
	require.Equal(t, 10, store.offset)
	require.Contains(t, rec.Body.String(), `"data":[]`)

	store.listErr = errors.New("db down")
	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
