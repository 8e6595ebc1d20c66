package product

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux() (*http.ServeMux, *menuHub) {
	hub := &menuHub{}
	h := NewHandler(NewService(NewMemoryRepository(DefaultMenu()), hub))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", h.List)
	mux.HandleFunc("POST /products", h.Create)
	mux.HandleFunc("PATCH /products/{id}", h.Update)
	return mux, hub
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandler_List(t *testing.T) {
	mux, _ := newTestMux()

	w := serve(mux, http.MethodGet, "/products", "")

	require.Equal(t, http.StatusOK, w.Code)
	var products []*Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	require.Len(t, products, 3)
	assert.Equal(t, int64(1), products[0].ID)
}

func TestHandler_Create(t *testing.T) {
	mux, hub := newTestMux()

	w := serve(mux, http.MethodPost, "/products", `{"name":"Vegetariana","price":180,"category":"Clásicas"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":4`)
	assert.Len(t, hub.events, 1)

	w = serve(mux, http.MethodPost, "/products", `{"name":"X","price":1,"stock":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Update(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		code   int
	}{
		{"Partial", "/products/2", `{"price":205}`, http.StatusOK},
		{"UnknownField", "/products/2", `{"price":205,"id":7}`, http.StatusBadRequest},
		{"InjectedColumn", "/products/2", `{"price = 0, name":"x"}`, http.StatusBadRequest},
		{"Empty", "/products/2", `{}`, http.StatusBadRequest},
		{"BadID", "/products/abc", `{"price":1}`, http.StatusBadRequest},
		{"NotFound", "/products/99", `{"price":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, hub := newTestMux()

			w := serve(mux, http.MethodPatch, tt.target, tt.body)

			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code == http.StatusOK {
				assert.Len(t, hub.events, 1)
			} else {
				assert.Empty(t, hub.events)
			}
		})
	}
}
