package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"go.uber.org/zap"
)

type SettingsHandler struct {
	commands *bus.CommandBus
	queries  *bus.QueryBus
	logger   *zap.Logger
}

func NewSettingsHandler(cb *bus.CommandBus, qb *bus.QueryBus, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{commands: cb, queries: qb, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	s, err := bus.Ask[*domain.TenantSettings](r.Context(), h.queries, service.GetSettings{Actor: p, CustomerID: customerID})
	if err != nil {
		respondError(w, r, h.logger, err, "load settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Update applies a partial update; omitted keys keep their current value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	var patch service.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	s, err := bus.Send[*domain.TenantSettings](r.Context(), h.commands, service.UpdateSettings{Actor: p, CustomerID: customerID, Patch: patch})
	if err != nil {
		respondError(w, r, h.logger, err, "update settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}
