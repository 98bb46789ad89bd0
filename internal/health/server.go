package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker holds the probes behind /healthz. Nil probes are skipped.
// LastConfirmed reports the newest archived height, if any.
type Checker struct {
	DBPing        func(ctx context.Context) error
	RPCPing       func(ctx context.Context) error
	LastConfirmed func(ctx context.Context) (uint64, bool, error)
}

// Handler serves the health report. Any failing probe yields 503.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]any{"status": "ok"}
		code := http.StatusOK

		probe := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				status[name] = "fail"
				status[name+"_error"] = err.Error()
				code = http.StatusServiceUnavailable
				return
			}
			status[name] = "ok"
		}
		probe("db", checker.DBPing)
		probe("rpc", checker.RPCPing)

		if checker.LastConfirmed != nil {
			if h, ok, err := checker.LastConfirmed(ctx); err == nil && ok {
				status["last_confirmed"] = h
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}

// Serve starts a minimal /healthz server in the background.
func Serve(addr string, checker Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/healthz", Handler(checker))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
