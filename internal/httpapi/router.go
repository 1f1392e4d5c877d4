package httpapi

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

func Router(h *Handlers, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/accounts", h.Accounts) // GET, POST
	mux.HandleFunc("/v1/accounts/", h.AccountByPath)
	mux.HandleFunc("/v1/transfers", h.PostTransfer) // POST
	mux.HandleFunc("/v1/transfers/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/transfers/validate" {
			h.ValidateTransfer(w, r)
			return
		}
		h.TransferByPath(w, r)
	})

	// Backpressure at the edge.
	// Prevents unbounded goroutine/pool queueing when the store is saturated.
	max := mustIntEnv("TRANSFER_HTTP_MAX_INFLIGHT", 64)
	return withLogging(withConcurrencyLimit(mux, max), log)
}

func mustIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := make(chan struct{}, max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			// Fast fail instead of queueing forever.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server busy"}`))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
