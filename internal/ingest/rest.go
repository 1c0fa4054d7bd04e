package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// StartREST runs a minimal line receiver: POST /lines with one log
// line per body line. Heavier submission goes through the main API.
func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.RawLine, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{Addr: current.Addr, Handler: restMux(ctx, out, logger)}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func restMux(ctx context.Context, out chan<- model.RawLine, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/lines", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		accepted := 0
		dropped := 0
		scanner := bufio.NewScanner(http.MaxBytesReader(w, r.Body, 2<<20))
		scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
		for scanner.Scan() {
			line := NewRawLine(scanner.Text(), "rest")
			if line.Text == "" {
				continue
			}
			if SendNonBlocking(ctx, out, line, logger) {
				accepted++
			} else {
				dropped++
			}
		}
		if err := scanner.Err(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{
			"accepted": accepted,
			"dropped":  dropped,
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
