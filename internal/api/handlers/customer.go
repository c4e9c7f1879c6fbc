package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"go.uber.org/zap"
)

// CustomerHandler serves the superadmin customer panel.
type CustomerHandler struct {
	commands *bus.CommandBus
	queries  *bus.QueryBus
	logger   *zap.Logger
}

func NewCustomerHandler(cb *bus.CommandBus, qb *bus.QueryBus, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{commands: cb, queries: qb, logger: logger}
}

type createCustomerRequest struct {
	Name string `json:"name"`
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := bus.Send[*domain.Customer](r.Context(), h.commands, service.CreateCustomer{Actor: p, Name: req.Name})
	if err != nil {
		respondError(w, r, h.logger, err, "create customer")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := bus.Ask[[]domain.Customer](r.Context(), h.queries, service.ListCustomers{Actor: p})
	if err != nil {
		respondError(w, r, h.logger, err, "list customers")
		return
	}
	if list == nil {
		list = []domain.Customer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": list})
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}
	c, err := bus.Ask[*domain.Customer](r.Context(), h.queries, service.GetCustomer{Actor: p, CustomerID: id})
	if err != nil {
		respondError(w, r, h.logger, err, "get customer")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}
	var in service.UpdateCustomerInput
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := bus.Send[*domain.Customer](r.Context(), h.commands, service.UpdateCustomer{Actor: p, CustomerID: id, Input: in})
	if err != nil {
		respondError(w, r, h.logger, err, "update customer")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}
	if _, err := bus.Send[struct{}](r.Context(), h.commands, service.DeleteCustomer{Actor: p, CustomerID: id}); err != nil {
		respondError(w, r, h.logger, err, "delete customer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
