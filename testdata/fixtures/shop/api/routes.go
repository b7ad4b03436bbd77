package api

import (
	"encoding/json"
	"net/http"

	"example.com/shop/store"
)

// Handler serves the item endpoints.
type Handler struct {
	items store.Store
	log   Logger
}

// Logger records request outcomes.
type Logger interface {
	Printf(format string, args ...any)
}

// Register mounts the item routes on mux.
func Register(mux *http.ServeMux, items store.Store) {
	h := &Handler{items: items}
	mux.HandleFunc("GET /items", h.list)
	mux.HandleFunc("POST /items", h.create)
	mux.HandleFunc("/health", health)
}

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all := h.items.All()
	h.log.Printf("listed %d items", len(all))
	writeJSON(w, all)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var item store.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "bad item", http.StatusBadRequest)
		return
	}
	h.items.Add(item)
	writeJSON(w, item)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
