package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	queries *bus.QueryBus
	logger  *zap.Logger
}

func NewDashboardHandler(qb *bus.QueryBus, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{queries: qb, logger: logger}
}

func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	d, err := bus.Ask[*service.Dashboard](r.Context(), h.queries, service.GetDashboard{Actor: p, CustomerID: customerID})
	if err != nil {
		respondError(w, r, h.logger, err, "load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
