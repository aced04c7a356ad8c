package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/logs"
)

func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleReadyCheck responds with 503 and the reason reported by
// readinessCheck until it returns nil.
func HandleReadyCheck(readinessCheck func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := readinessCheck(); err != nil {
			logs.WithTag("path", r.URL.Path).Debug(err.Error())
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(version))
	}
}
