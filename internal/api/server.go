package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/alpipe/internal/api/middleware"
	"github.com/phrazzld/alpipe/internal/api/shared"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/monitor"
)

// shutdownTimeout bounds how long in-flight requests may take once the
// server is asked to stop.
const shutdownTimeout = 10 * time.Second

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// SnapshotSource provides the latest pipeline snapshot.
type SnapshotSource interface {
	Latest() (monitor.Snapshot, bool)
}

// HistorySource provides saved status records, newest first.
type HistorySource interface {
	History(ctx context.Context, limit int) ([]domain.Status, error)
}

type routerOptions struct {
	history HistorySource
}

// RouterOption customizes NewRouter.
type RouterOption func(*routerOptions)

// WithHistory serves GET /status/history from source.
func WithHistory(source HistorySource) RouterOption {
	return func(o *routerOptions) {
		o.history = source
	}
}

// NewRouter creates the status server's router.
func NewRouter(source SnapshotSource, gatherer prometheus.Gatherer, logger *slog.Logger, opts ...RouterOption) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health check response", "error", err)
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := source.Latest()
		if !ok {
			shared.RespondWithErrorAndLog(w, r, logger, http.StatusServiceUnavailable, "no tick has completed yet", nil)
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, snap)
	})

	if o.history != nil {
		r.Get("/status/history", historyHandler(o.history, logger))
	}

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}))

	return r
}

// historyHandler lists saved status records. The optional limit query
// parameter defaults to 50 and may not exceed 1000.
func historyHandler(source HistorySource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxHistoryLimit {
				shared.RespondWithError(w, r, http.StatusBadRequest,
					fmt.Sprintf("limit must be an integer between 1 and %d", maxHistoryLimit))
				return
			}
			limit = n
		}

		history, err := source.History(r.Context(), limit)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, logger, http.StatusInternalServerError,
				"failed to load status history", err)
			return
		}
		if history == nil {
			history = []domain.Status{}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, history)
	}
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serve(ctx, ln, handler, logger)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting status server", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down status server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("status server shutdown completed")
	return nil
}
