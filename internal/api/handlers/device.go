package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"go.uber.org/zap"
)

type DeviceHandler struct {
	commands *bus.CommandBus
	queries  *bus.QueryBus
	logger   *zap.Logger
}

func NewDeviceHandler(cb *bus.CommandBus, qb *bus.QueryBus, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{commands: cb, queries: qb, logger: logger}
}

// Register answers with the device and its API key. The key is not
// retrievable afterwards.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	var in service.RegisterDeviceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	rd, err := bus.Send[*service.RegisteredDevice](r.Context(), h.commands, service.RegisterDevice{Actor: p, CustomerID: customerID, Input: in})
	if err != nil {
		respondError(w, r, h.logger, err, "register device")
		return
	}
	writeJSON(w, http.StatusCreated, rd)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := domain.DeviceFilter{
		Status: domain.DeviceStatus(q.Get("status")),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	}

	devices, err := bus.Ask[[]domain.Device](r.Context(), h.queries, service.ListDevices{Actor: p, CustomerID: customerID, Filter: filter})
	if err != nil {
		respondError(w, r, h.logger, err, "list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	d, err := bus.Ask[*domain.Device](r.Context(), h.queries, service.GetDevice{Actor: p, CustomerID: customerID, DeviceID: id})
	if err != nil {
		respondError(w, r, h.logger, err, "get device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	var in service.UpdateDeviceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	d, err := bus.Send[*domain.Device](r.Context(), h.commands, service.UpdateDevice{Actor: p, CustomerID: customerID, DeviceID: id, Input: in})
	if err != nil {
		respondError(w, r, h.logger, err, "update device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	if _, err := bus.Send[struct{}](r.Context(), h.commands, service.DeleteDevice{Actor: p, CustomerID: customerID, DeviceID: id}); err != nil {
		respondError(w, r, h.logger, err, "delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	key, err := bus.Send[string](r.Context(), h.commands, service.RotateDeviceKey{Actor: p, CustomerID: customerID, DeviceID: id})
	if err != nil {
		respondError(w, r, h.logger, err, "rotate device key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}
