package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/Harshitk-cp/iotpilot/internal/api/middleware"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"go.uber.org/zap"
)

const maxIngestBytes = 4 << 20

// IngestHandler serves the routes devices call with their API key.
type IngestHandler struct {
	commands *bus.CommandBus
	logger   *zap.Logger
}

func NewIngestHandler(cb *bus.CommandBus, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{commands: cb, logger: logger}
}

func (h *IngestHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	dev := middleware.DeviceFromContext(r.Context())
	if dev == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	status, err := bus.Send[domain.DeviceStatus](r.Context(), h.commands, service.RecordHeartbeat{CustomerID: dev.CustomerID, DeviceID: dev.ID})
	if err != nil {
		respondError(w, r, h.logger, err, "record heartbeat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": dev.ID, "status": status})
}

type ingestMetricsRequest struct {
	Points []service.MetricPoint `json:"points"`
}

// Metrics accepts a JSON batch or an InfluxDB line protocol body
// (Content-Type text/plain).
func (h *IngestHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	dev := middleware.DeviceFromContext(r.Context())
	if dev == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		n   int
		err error
	)
	switch mediaType {
	case "text/plain":
		body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
		if readErr != nil {
			var tooBig *http.MaxBytesError
			if errors.As(readErr, &tooBig) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		n, err = bus.Send[int](r.Context(), h.commands, service.IngestLineProtocol{CustomerID: dev.CustomerID, DeviceID: dev.ID, Body: body})
	case "", "application/json":
		var req ingestMetricsRequest
		if !decodeJSONLimit(w, r, &req, maxIngestBytes) {
			return
		}
		n, err = bus.Send[int](r.Context(), h.commands, service.RecordMetrics{CustomerID: dev.CustomerID, DeviceID: dev.ID, Points: req.Points})
	default:
		writeError(w, http.StatusUnsupportedMediaType, "use application/json or text/plain line protocol")
		return
	}
	if err != nil {
		respondError(w, r, h.logger, err, "record metrics")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": n})
}
