package seskeep

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AdminRouter returns the HTTP control surface. It is what a "Clear All
// Sessions" button talks to:
//
//	GET    /sessions        list cached sessions
//	DELETE /sessions        clear all saved sessions
//	DELETE /sessions/{key}  invalidate one session
//	GET    /stats           cache counters
func (k *Keeper) AdminRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/sessions", k.handleListSessions)
	r.Delete("/sessions", k.handleClearAll)
	r.Delete("/sessions/{key}", k.handleInvalidate)
	r.Get("/stats", k.handleStats)

	return r
}

func (k *Keeper) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := k.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []SessionInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (k *Keeper) handleClearAll(w http.ResponseWriter, r *http.Request) {
	n, err := k.ClearAllSavedSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}

func (k *Keeper) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "key")
	if sessionKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing key"})
		return
	}
	if err := k.InvalidateSession(r.Context(), sessionKey); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": sessionKey})
}

func (k *Keeper) handleStats(w http.ResponseWriter, r *http.Request) {
	s, err := k.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
