package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// policies maps demo paths to the Feature-Policy header they send.
var policies = map[string][]string{
	"/":          {"camera 'self'; picture-in-picture 'none'; fullscreen *"},
	"/only-pip":  {"picture-in-picture 'none'"},
	"/no-pip":    {"geolocation 'self'"},
	"/duplicate": {"camera 'none'", "picture-in-picture 'self' https://video.example"},
	"/empty":     {""},
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "demo").Logger()

	mux := http.NewServeMux()
	for path, values := range policies {
		values := values
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			for _, v := range values {
				w.Header().Add("Feature-Policy", v)
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<!doctype html><video controls></video>\n"))
		})
	}

	srv := &http.Server{
		Addr:              ":3000",
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("addr", srv.Addr).Msg("demo app listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("demo app stopped")
	}
}
