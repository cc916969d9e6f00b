package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shuntia/lunaris/pkg/mailbox"
	"github.com/shuntia/lunaris/pkg/pool"
)

// Server wires an orchestrator and mailbox into a gorilla/mux router plus
// the websocket Hub, the way the kernel's native admin surface exposes
// introspection without requiring a client to link against Lunaris
// directly.
type Server struct {
	Mux *mux.Router

	orch DynOrchestrator
	box  *mailbox.Mailbox
	hub  *Hub
}

// DynOrchestrator is the narrow surface the admin HTTP handlers need from
// an orchestrator - a subset of pool.DynOrchestrator's methods, restated
// here so this package doesn't force a hard dependency on pkg/pool's
// concrete Orchestrator type.
type DynOrchestrator interface {
	SubmitJob(priority pool.Priority, fn func()) error
	JoinForeground()
	SetThreads(defaultN, frameN, backgroundN int)
	Profile() pool.Profile
}

// NewServer builds an admin Server bound to orch, box and hub. It does not
// start hub; ServeWS connections are refused until Hub.Start is running.
func NewServer(orch DynOrchestrator, box *mailbox.Mailbox, hub *Hub) *Server {
	s := &Server{Mux: mux.NewRouter(), orch: orch, box: box, hub: hub}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Mux.HandleFunc("/v0/pool/profile", s.handleProfile).Methods(http.MethodGet)
	s.Mux.HandleFunc("/v0/pool/threads", s.handleSetThreads).Methods(http.MethodPost)
	s.Mux.HandleFunc("/v0/mailbox/resolve/{name}", s.handleResolve).Methods(http.MethodGet)
	s.Mux.HandleFunc("/v0/mailbox/send", s.handleSend).Methods(http.MethodPost)
	s.Mux.HandleFunc("/v0/admin/stream", s.hub.ServeWS)
}

// ListenAndServe starts the HTTP server on addr. Blocks until the server
// stops or errors.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Mux)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Profile())
}

type setThreadsRequest struct {
	Default    int `json:"default"`
	Frame      int `json:"frame"`
	Background int `json:"background"`
}

func (s *Server) handleSetThreads(w http.ResponseWriter, r *http.Request) {
	var req setThreadsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.orch.SetThreads(req.Default, req.Frame, req.Background)
	writeJSON(w, http.StatusOK, s.orch.Profile())
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	slot, err := s.box.Resolve(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"slot": slot})
}

type sendRequest struct {
	Source      uint32 `json:"source"`
	Destination uint32 `json:"destination"`
	Opcode      uint32 `json:"opcode"`
	Code        uint32 `json:"code"`
	RequireAck  bool   `json:"require_ack"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if mailbox.IsReserved(req.Opcode) && req.Destination != 0 {
		writeError(w, http.StatusBadRequest, errors.New("reserved opcodes may only target the kernel slot"))
		return
	}

	env := mailbox.NewEnvelope(req.Source, req.Destination, req.RequireAck, mailbox.Message{
		Opcode:  req.Opcode,
		Payload: mailbox.PayloadCode(req.Code),
	})

	if err := s.box.Send(env); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]uint64{"envelope_id": env.ID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
