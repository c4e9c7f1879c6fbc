package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"go.uber.org/zap"
)

type SSHHandler struct {
	commands *bus.CommandBus
	queries  *bus.QueryBus
	logger   *zap.Logger
}

func NewSSHHandler(cb *bus.CommandBus, qb *bus.QueryBus, logger *zap.Logger) *SSHHandler {
	return &SSHHandler{commands: cb, queries: qb, logger: logger}
}

type startSessionRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Start opens a session to the device named in the URL.
func (h *SSHHandler) Start(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	deviceID, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	var req startSessionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	in := service.StartSSHSessionInput{DeviceID: deviceID, Username: req.Username, Password: req.Password}
	sess, err := bus.Send[*domain.SSHSession](r.Context(), h.commands, service.StartSSHSession{Actor: p, CustomerID: customerID, Input: in})
	if err != nil {
		respondError(w, r, h.logger, err, "start ssh session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SSHHandler) list(w http.ResponseWriter, r *http.Request, filter domain.SSHSessionFilter) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	filter.Limit = limit
	filter.Status = domain.SSHSessionStatus(r.URL.Query().Get("status"))

	sessions, err := bus.Ask[[]domain.SSHSession](r.Context(), h.queries, service.ListSSHSessions{Actor: p, CustomerID: customerID, Filter: filter})
	if err != nil {
		respondError(w, r, h.logger, err, "list ssh sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *SSHHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, domain.SSHSessionFilter{})
}

func (h *SSHHandler) ListForDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := urlUUID(w, r, "id", "device")
	if !ok {
		return
	}
	h.list(w, r, domain.SSHSessionFilter{DeviceID: &deviceID})
}

func (h *SSHHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "session")
	if !ok {
		return
	}
	detail, err := bus.Ask[*domain.SSHSessionDetail](r.Context(), h.queries, service.GetSSHSession{Actor: p, CustomerID: customerID, SessionID: id})
	if err != nil {
		respondError(w, r, h.logger, err, "get ssh session")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type executeRequest struct {
	Command string `json:"command"`
}

func (h *SSHHandler) Execute(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "session")
	if !ok {
		return
	}
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cmd, err := bus.Send[*domain.SSHCommand](r.Context(), h.commands, service.ExecuteSSHCommand{Actor: p, CustomerID: customerID, SessionID: id, Command: req.Command})
	if err != nil {
		respondError(w, r, h.logger, err, "execute command")
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (h *SSHHandler) End(w http.ResponseWriter, r *http.Request) {
	p, customerID, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "id", "session")
	if !ok {
		return
	}
	sess, err := bus.Send[*domain.SSHSession](r.Context(), h.commands, service.EndSSHSession{Actor: p, CustomerID: customerID, SessionID: id})
	if err != nil {
		respondError(w, r, h.logger, err, "end ssh session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
