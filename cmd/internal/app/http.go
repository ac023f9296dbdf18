package app

import (
	"net/http"
	"time"

	"glowlogy/cmd/internal/api"
	"glowlogy/cmd/internal/realtime"
	"glowlogy/cmd/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedPath is where the cache invalidation feed is mounted.
const FeedPath = "/ws/cache"

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	metrics *telemetry.Metrics,
	ws *realtime.WSGateway,
	handler *api.Handler,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", metrics.Handler())

	if handler != nil {
		handler.Register(mux)
	}
	if ws != nil {
		mux.Handle("GET "+FeedPath, ws)
	}
}
