package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"smartcoop/server/internal/model"
)

// maxRecentReadings caps the sensor-data history query.
const maxRecentReadings = 20

// DeviceReader serves the read API lookups.
type DeviceReader interface {
	DeviceByID(ctx context.Context, deviceID string) (*model.Device, error)
	RecentReadings(ctx context.Context, deviceID string, limit int) ([]model.Reading, error)
}

// CommandInterpreter handles one inbound chat message.
type CommandInterpreter interface {
	HandleIncoming(ctx context.Context, from, body string)
}

type handlers struct {
	devices     DeviceReader
	schedules   *ScheduleSynchronizer
	interpreter CommandInterpreter
	logger      *slog.Logger
}

func (h *handlers) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/whatsapp-webhook", h.handleWhatsAppWebhook)
	mux.HandleFunc("/api/check-device", h.handleCheckDevice)
	mux.HandleFunc("/api/sensor-data", h.handleSensorData)
	mux.HandleFunc("/api/schedule", h.handleSchedule)
	mux.HandleFunc("/", h.handleIndex)
	return mux
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, code int, message string) {
	h.writeJSON(w, code, statusResponse{Status: "error", Message: message})
}

// deviceID extracts the required id query parameter, writing a 400 when it
// is missing.
func (h *handlers) deviceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "parameter ?id= is required")
		return "", false
	}
	return id, true
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte("smartcoop backend is running"))
}

// handleWhatsAppWebhook receives inbound chat messages from the provider.
// The provider contract requires a 200 acknowledgment, not a semantic
// result, so the response is always empty 200 regardless of outcome.
func (h *handlers) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Warn("webhook form parse failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	h.logger.Info("inbound message", "from", from)

	h.interpreter.HandleIncoming(r.Context(), from, body)
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) handleCheckDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	device, err := h.devices.DeviceByID(r.Context(), id)
	if err != nil {
		h.logger.Error("check-device lookup failed", "device", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if device == nil {
		h.writeError(w, http.StatusNotFound, "Device not found")
		return
	}

	h.writeJSON(w, http.StatusOK, struct {
		Status string       `json:"status"`
		Device model.Device `json:"device"`
	}{Status: "success", Device: *device})
}

func (h *handlers) handleSensorData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	readings, err := h.devices.RecentReadings(r.Context(), id, maxRecentReadings)
	if err != nil {
		h.logger.Error("sensor-data query failed", "device", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if readings == nil {
		readings = []model.Reading{}
	}

	h.writeJSON(w, http.StatusOK, readings)
}

func (h *handlers) handleSchedule(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveSchedule(w, r)
	case http.MethodPost:
		h.updateSchedule(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *handlers) serveSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	times, err := h.schedules.Times(r.Context(), id)
	if err != nil {
		h.logger.Error("schedule query failed", "device", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if times == nil {
		times = []string{}
	}

	h.writeJSON(w, http.StatusOK, schedulePayload{Times: times})
}

func (h *handlers) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	var body schedulePayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := h.schedules.Push(r.Context(), id, body.Times); err != nil {
		h.logger.Error("schedule update failed", "device", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	h.writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}
