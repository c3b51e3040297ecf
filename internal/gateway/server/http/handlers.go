package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pumpgate-io/pumpgate/internal/gateway/state"
	"github.com/pumpgate-io/pumpgate/internal/gateway/storage"
	"github.com/pumpgate-io/pumpgate/internal/pkg/mqtt/paths"
	"github.com/pumpgate-io/pumpgate/pkg/log"
)

const (
	defaultHistoryLimit = 1000
	maxHistoryLimit     = 5000
)

// HistoryReader serves persisted snapshot queries.
type HistoryReader interface {
	Snapshots(ctx context.Context, q storage.SnapshotQuery) ([]state.Snapshot, error)
}

// Publisher is the slice of the MQTT client the control endpoint needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
}

// Handler implements the REST API on top of the state store, the history
// database and the broker.
type Handler struct {
	store     *state.Store
	history   HistoryReader
	publisher Publisher
	logger    log.Logger
}

// NewHandler wires the API dependencies. history may be nil when the
// gateway runs without a database; history queries then fall back to the
// in-memory ring.
func NewHandler(store *state.Store, history HistoryReader, publisher Publisher) *Handler {
	return &Handler{
		store:     store,
		history:   history,
		publisher: publisher,
		logger:    log.Std().WithName("http"),
	}
}

// Register binds all routes on the router.
func (h *Handler) Register(router *mux.Router) {
	router.Use(corsMiddleware)
	router.NotFoundHandler = corsMiddleware(http.HandlerFunc(notFound))
	router.MethodNotAllowedHandler = corsMiddleware(http.HandlerFunc(methodNotAllowed))

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pump/control", h.pumpControl).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/pump/feedback", h.pumpFeedback).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/pump/status", h.pumpStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pump/history", h.pumpHistory).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/gateway/status", h.gatewayStatus).Methods(http.MethodGet, http.MethodOptions)

	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.healthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

type controlRequest struct {
	PumpID *int `json:"pump_id"`
	State  *int `json:"state"`
}

// pumpControl publishes a pump command to the broker and applies it to
// the local record. The response carries the commanded state of both
// pumps; hardware confirmation arrives later via feedback.
func (h *Handler) pumpControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PumpID == nil || req.State == nil {
		writeError(w, http.StatusBadRequest, "pump_id and state are required")
		return
	}
	id := state.PumpID(*req.PumpID)
	if !id.Valid() {
		writeError(w, http.StatusBadRequest, "unknown pump id")
		return
	}
	on := *req.State != 0

	payload, _ := json.Marshal(map[string]int{"pump_id": int(id), "state": boolToInt(on)})
	if err := h.publisher.Publish(r.Context(), paths.Control, 1, false, payload); err != nil {
		h.logger.Warn("control publish failed", "pump_id", int(id), "err", err.Error())
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": "publish failed"})
		return
	}
	if _, err := h.store.SetPumpCommand(r.Context(), id, on, "http"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cur := h.store.ReadCurrent()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "sent",
		"current_state": map[string]int{
			"pump1": boolToInt(cur.Command(state.Pump1)),
			"pump2": boolToInt(cur.Command(state.Pump2)),
		},
	})
}

type feedbackRequest struct {
	PumpID *int `json:"pump_id"`
	Status *int `json:"status"`
	Busy   *int `json:"busy"`
	Alarm  *int `json:"alarm"`
}

// pumpFeedback mirrors the MQTT feedback topic for wired test rigs that
// speak HTTP instead of MQTT.
func (h *Handler) pumpFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PumpID == nil || req.Status == nil {
		writeError(w, http.StatusBadRequest, "pump_id and status are required")
		return
	}
	if _, err := h.store.SetPumpFeedback(r.Context(), state.PumpID(*req.PumpID), *req.Status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Busy != nil || req.Alarm != nil {
		cur := h.store.ReadCurrent()
		busy := cur.Busy
		if req.Busy != nil {
			busy = state.BusyState(*req.Busy)
		}
		alarm := cur.Alarm
		if req.Alarm != nil {
			alarm = *req.Alarm != 0
		}
		// The feedback above already committed; an out-of-range rider is
		// absorbed like on the MQTT path, never turned into a failure.
		if _, err := h.store.SetSystemFlags(r.Context(), busy, alarm); err != nil {
			h.logger.Warn("ignoring system flags", "err", err.Error())
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) pumpStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ReadCurrent().Snapshot())
}

// pumpHistory serves committed snapshots newest first. It prefers the
// database; without one it serves whatever the in-memory ring holds.
func (h *Handler) pumpHistory(w http.ResponseWriter, r *http.Request) {
	q := storage.SnapshotQuery{Limit: defaultHistoryLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = clampLimit(n)
	}
	var err error
	if q.From, err = parseUnixParam(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, "from must be a unix timestamp")
		return
	}
	if q.To, err = parseUnixParam(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, "to must be a unix timestamp")
		return
	}

	var snaps []state.Snapshot
	if h.history != nil {
		snaps, err = h.history.Snapshots(r.Context(), q)
		if err != nil {
			h.logger.Error(err, "history query failed")
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
	} else {
		snaps = filterByRange(h.store.Recent(q.Limit), q.From, q.To)
	}
	if snaps == nil {
		snaps = []state.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(snaps), "data": snaps})
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	st := h.store.GatewayStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                  st.Status,
		"is_online":               st.IsOnline,
		"device_id":               st.DeviceID,
		"firmware":                st.FirmwareVersion,
		"last_seen":               st.LastSeen,
		"seconds_since_last_seen": st.SecondsSinceLastSeen,
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}

func parseUnixParam(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func filterByRange(snaps []state.Snapshot, from, to int64) []state.Snapshot {
	if from == 0 && to == 0 {
		return snaps
	}
	out := snaps[:0]
	for _, s := range snaps {
		if from > 0 && s.Timestamp < from {
			continue
		}
		if to > 0 && s.Timestamp > to {
			continue
		}
		out = append(out, s)
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
