package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pipstrip/pipstrip/internal/toggle"
)

type stateResponse struct {
	State string `json:"state"`
}

// Machine is the subset of toggle.Machine the admin API drives.
type Machine interface {
	State() toggle.State
	Handle(toggle.Settings) toggle.State
}

// NewRouter builds the admin API. metrics may be nil.
func NewRouter(machine Machine, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/interceptor", func(w http.ResponseWriter, _ *http.Request) {
		writeState(w, machine.State())
	})
	r.Put("/interceptor", func(w http.ResponseWriter, req *http.Request) {
		var settings toggle.Settings
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			http.Error(w, "invalid settings: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeState(w, machine.Handle(settings))
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}

func writeState(w http.ResponseWriter, state toggle.State) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stateResponse{State: state.String()})
}
