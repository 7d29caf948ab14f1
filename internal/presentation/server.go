package presentation

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"chess-crowd/internal/model"
)

// ModelSource returns the current presentation snapshot on demand — the
// engine's model is only ever read through this accessor, never mutated by
// an HTTP handler (spec.md §2: the sink is write-only from the engine's
// perspective; an admin GET reading the latest snapshot doesn't violate
// that since it can't feed anything back into the engine).
type ModelSource func() *model.Model

// NewServer builds the small admin HTTP surface: a websocket upgrade
// endpoint, a health check, and a JSON snapshot of the current model.
// Grounded on the teacher's cmd/server/main.go router wiring (gorilla/mux
// plus rs/cors), trimmed to the handful of routes this engine needs.
func NewServer(hub *Hub, modelSource ModelSource) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/ws", hub.ServeWS)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(modelSource()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})

	return corsMiddleware.Handler(router)
}
