package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"go.uber.org/zap"

	"archaeoscan-gateway/internal/alerting"
	"archaeoscan-gateway/internal/anomaly"
	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/pipeline"
	"archaeoscan-gateway/internal/scoring"
	"archaeoscan-gateway/internal/status"
	"archaeoscan-gateway/internal/storage"
	"archaeoscan-gateway/internal/websocket"
)

const defaultMaxBody = 1 << 20

// Submitter accepts parsed snapshots for processing.
type Submitter interface {
	Submit(snap *data.Snapshot) error
}

type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	Scoring        scoring.Options
}

type APIHandler struct {
	store    *storage.MemoryStore
	pipeline Submitter
	detector *anomaly.Detector
	hub      *websocket.Hub
	alerter  *alerting.Alerter
	tracker  *status.Tracker
	log      *zap.Logger

	opts     Options
	upgrader gwebsocket.Upgrader
	now      func() time.Time
}

func NewAPIHandler(opts Options, store *storage.MemoryStore, sub Submitter, detector *anomaly.Detector,
	hub *websocket.Hub, alerter *alerting.Alerter, tracker *status.Tracker, log *zap.Logger) *APIHandler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	h := &APIHandler{
		store:    store,
		pipeline: sub,
		detector: detector,
		hub:      hub,
		alerter:  alerter,
		tracker:  tracker,
		log:      log.With(zap.String("component", "api")),
		opts:     opts,
		now:      time.Now,
	}
	h.upgrader = gwebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *APIHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleDataIngest receives one snapshot from a device translator and queues it.
func (h *APIHandler) HandleDataIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.log.Warn("read request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	defer r.Body.Close()

	source := r.Header.Get("X-Source")
	if source == "" {
		source = "http"
	}

	snap, err := data.Parse(body, source, h.now())
	if err != nil {
		h.log.Debug("rejecting payload", zap.String("source", source), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pipeline.Submit(snap); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrStopped) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.log.Error("submit snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"readings": len(snap.Readings),
	})
}

// HandleWebSocket upgrades connections and registers clients with the hub. The client
// receives recent summaries and the current status before any live message.
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.sendInitialData(client)
	h.hub.RegisterClient(client)

	// Start read/write pumps in separate goroutines
	go client.WritePump()
	go client.ReadPump() // Must run ReadPump to handle control messages (close, pong)
}

// sendInitialData queues history on a client that is not registered yet, so it is
// delivered ahead of broadcasts.
func (h *APIHandler) sendInitialData(client *websocket.Client) {
	history := h.store.RecentSummaries(0)
	if history == nil {
		history = []scoring.BlockSummaries{}
	}
	if msg, err := websocket.Encode(websocket.TypeHistory, history); err == nil {
		client.Send <- msg
	} else {
		h.log.Error("marshal history", zap.Error(err))
	}
	if h.tracker != nil {
		if msg, err := websocket.Encode(websocket.TypeStatus, h.tracker.Status()); err == nil {
			client.Send <- msg
		}
	}
}

// HandleSummaries returns the latest summaries. Before any snapshot arrived they are computed
// from the documented defaults.
func (h *APIHandler) HandleSummaries(w http.ResponseWriter, r *http.Request) {
	if latest, ok := h.store.Latest(); ok {
		writeJSON(w, http.StatusOK, latest)
		return
	}
	now := h.now()
	writeJSON(w, http.StatusOK, scoring.Summarize(h.store.Current(now), h.store.Histories(), h.opts.Scoring, now))
}

// HandleSummaryHistory returns up to ?limit= recent summaries, oldest first.
func (h *APIHandler) HandleSummaryHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	history := h.store.RecentSummaries(limit)
	if history == nil {
		history = []scoring.BlockSummaries{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *APIHandler) HandleSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Current(h.now()))
}

// SensorDetail is one sensor's catalogue entry, current reading and recent values.
type SensorDetail struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name,omitempty"`
	Category   data.Category          `json:"category,omitempty"`
	Unit       string                 `json:"unit,omitempty"`
	Reading    *data.SensorReading    `json:"reading,omitempty"`
	Thresholds *data.SensorThresholds `json:"thresholds,omitempty"`
	History    []float64              `json:"history"`
}

func (h *APIHandler) HandleSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reading, seen := h.store.Reading(id, h.now())
	spec, known := data.Lookup(id)
	if !seen && !known {
		writeError(w, http.StatusNotFound, "unknown sensor "+id)
		return
	}

	detail := SensorDetail{ID: id, History: h.store.History(id, 0)}
	if detail.History == nil {
		detail.History = []float64{}
	}
	if known {
		detail.Name, detail.Category, detail.Unit = spec.Name, spec.Category, spec.Unit
	}
	if seen {
		detail.Reading = &reading
		if detail.Unit == "" {
			detail.Unit = reading.Unit
		}
	}
	if th, ok := h.detector.Thresholds(id); ok {
		detail.Thresholds = &th
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Status())
}

func (h *APIHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.alerter.Recent())
}

func (h *APIHandler) HandleClearAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": h.alerter.Clear()})
}

func (h *APIHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerter.Acknowledge(chi.URLParam(r, "id"))
	if errors.Is(err, alerting.ErrAlertNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}
