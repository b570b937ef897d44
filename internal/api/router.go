package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"archaeoscan-gateway/internal/metrics"
)

// requestLogger logs each request through zap once it completes.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func baseRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	return r
}

// SetupDataRouter serves device translators posting snapshots.
func SetupDataRouter(h *APIHandler, m *metrics.Metrics) *chi.Mux {
	r := baseRouter(h)
	r.Method(http.MethodPost, "/data", m.WrapHandler("/data", http.HandlerFunc(h.HandleDataIngest)))
	r.Get("/health", h.HandleHealth)
	return r
}

// SetupUIRouter serves dashboards: the WebSocket feed, the read API and metrics.
func SetupUIRouter(h *APIHandler, m *metrics.Metrics) *chi.Mux {
	r := baseRouter(h)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/ws", h.HandleWebSocket)
	r.Get("/health", h.HandleHealth)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	route := func(pattern string, fn http.HandlerFunc) http.Handler {
		return m.WrapHandler(pattern, fn)
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Method(http.MethodGet, "/summaries", route("/api/summaries", h.HandleSummaries))
		r.Method(http.MethodGet, "/summaries/history", route("/api/summaries/history", h.HandleSummaryHistory))
		r.Method(http.MethodGet, "/sensors", route("/api/sensors", h.HandleSensors))
		r.Method(http.MethodGet, "/sensors/{id}", route("/api/sensors/{id}", h.HandleSensor))
		r.Method(http.MethodGet, "/status", route("/api/status", h.HandleStatus))
		r.Method(http.MethodGet, "/alerts", route("/api/alerts", h.HandleAlerts))
		r.Method(http.MethodDelete, "/alerts", route("/api/alerts", h.HandleClearAlerts))
		r.Method(http.MethodPost, "/alerts/{id}/ack", route("/api/alerts/{id}/ack", h.HandleAcknowledge))
	})
	return r
}
