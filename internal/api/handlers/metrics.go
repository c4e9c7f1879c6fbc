package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// MetricSubscriber delivers newly recorded points for one device.
type MetricSubscriber interface {
	Subscribe(customerID, deviceID uuid.UUID, buf int) (<-chan domain.Metric, func())
}

type MetricsHandler struct {
	queries        *bus.QueryBus
	stream         MetricSubscriber
	originPatterns []string
	logger         *zap.Logger
}

func NewMetricsHandler(qb *bus.QueryBus, stream MetricSubscriber, originPatterns []string, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{queries: qb, stream: stream, originPatterns: originPatterns, logger: logger}
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t.UTC(), true
}

func (h *MetricsHandler) metricQuery(w http.ResponseWriter, r *http.Request) (domain.MetricQuery, bool) {
	deviceID, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return domain.MetricQuery{}, false
	}
	from, ok := parseTimeParam(w, r, "from")
	if !ok {
		return domain.MetricQuery{}, false
	}
	to, ok := parseTimeParam(w, r, "to")
	if !ok {
		return domain.MetricQuery{}, false
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return domain.MetricQuery{}, false
	}
	return domain.MetricQuery{
		DeviceID:    deviceID,
		Measurement: r.URL.Query().Get("measurement"),
		From:        from,
		To:          to,
		Limit:       limit,
	}, true
}

func (h *MetricsHandler) Query(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	q, ok := h.metricQuery(w, r)
	if !ok {
		return
	}
	points, err := bus.Ask[[]domain.Metric](r.Context(), h.queries, service.QueryMetrics{Actor: p, CustomerID: customerID, Query: q})
	if err != nil {
		respondError(w, r, h.logger, err, "query metrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": points})
}

func (h *MetricsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	deviceID, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	points, err := bus.Ask[[]domain.Metric](r.Context(), h.queries, service.LatestMetrics{Actor: p, CustomerID: customerID, DeviceID: deviceID})
	if err != nil {
		respondError(w, r, h.logger, err, "load latest metrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": points})
}

// Export answers with InfluxDB line protocol, oldest point first.
func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	q, ok := h.metricQuery(w, r)
	if !ok {
		return
	}
	body, err := bus.Ask[[]byte](r.Context(), h.queries, service.ExportMetrics{Actor: p, CustomerID: customerID, Query: q})
	if err != nil {
		respondError(w, r, h.logger, err, "export metrics")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="metrics-`+q.DeviceID.String()+`.lp"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Stream pushes every point recorded for the device over a WebSocket.
func (h *MetricsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	deviceID, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	if _, err := bus.Ask[*domain.Device](r.Context(), h.queries, service.GetDevice{Actor: p, CustomerID: customerID, DeviceID: deviceID}); err != nil {
		respondError(w, r, h.logger, err, "open metrics stream")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	points, unsubscribe := h.stream.Subscribe(customerID, deviceID, streamBuffer)
	defer unsubscribe()

	// The client never sends anything; reading detects when it goes away.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case m := <-points:
			writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, m)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}
