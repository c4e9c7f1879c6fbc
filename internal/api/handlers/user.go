package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"go.uber.org/zap"
)

type UserHandler struct {
	commands *bus.CommandBus
	queries  *bus.QueryBus
	logger   *zap.Logger
}

func NewUserHandler(cb *bus.CommandBus, qb *bus.QueryBus, logger *zap.Logger) *UserHandler {
	return &UserHandler{commands: cb, queries: qb, logger: logger}
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	var in service.CreateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	u, err := bus.Send[*domain.User](r.Context(), h.commands, service.CreateUser{Actor: p, CustomerID: customerID, Input: in})
	if err != nil {
		respondError(w, r, h.logger, err, "create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	users, err := bus.Ask[[]domain.User](r.Context(), h.queries, service.ListUsers{Actor: p, CustomerID: customerID})
	if err != nil {
		respondError(w, r, h.logger, err, "list users")
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "user")
	if !ok {
		return
	}
	u, err := bus.Ask[*domain.User](r.Context(), h.queries, service.GetUser{Actor: p, CustomerID: customerID, UserID: id})
	if err != nil {
		respondError(w, r, h.logger, err, "get user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "user")
	if !ok {
		return
	}
	var in service.UpdateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	u, err := bus.Send[*domain.User](r.Context(), h.commands, service.UpdateUser{Actor: p, CustomerID: customerID, UserID: id, Input: in})
	if err != nil {
		respondError(w, r, h.logger, err, "update user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "user")
	if !ok {
		return
	}
	if _, err := bus.Send[struct{}](r.Context(), h.commands, service.DeleteUser{Actor: p, CustomerID: customerID, UserID: id}); err != nil {
		respondError(w, r, h.logger, err, "delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "user")
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cmd := service.ResetUserPassword{Actor: p, CustomerID: customerID, UserID: id, Password: req.Password}
	if _, err := bus.Send[struct{}](r.Context(), h.commands, cmd); err != nil {
		respondError(w, r, h.logger, err, "reset password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
