// Package dialapi serves the call manager to a UI over HTTP. Commands are
// plain JSON endpoints; state, volume, recording and review changes are
// pushed over a websocket that also carries call audio both ways.
package dialapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/eburon/brokerdial/pkg/callsession"
	"github.com/eburon/brokerdial/pkg/crm"
	"github.com/eburon/brokerdial/pkg/persona"
	"github.com/eburon/brokerdial/pkg/review"
	"github.com/eburon/brokerdial/pkg/transport"
	"github.com/gorilla/websocket"
)

// Config wires a Server.
type Config struct {
	Manager  *callsession.Manager
	Gate     *review.Gate
	CRM      crm.Store
	Personas *persona.Store
	// Device is the audio endpoint of calls placed through the API. It
	// must be the device the manager's transports are built with.
	Device *Device
	Logger *slog.Logger
	// CheckOrigin vets websocket upgrades. Nil accepts same-origin
	// requests only.
	CheckOrigin func(r *http.Request) bool
}

// Server is the HTTP surface of a call manager.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	unsub   []func()
}

// NewServer builds a Server and subscribes it to the manager.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Manager == nil:
		return nil, errors.New("dialapi: Manager is required")
	case cfg.Gate == nil:
		return nil, errors.New("dialapi: Gate is required")
	case cfg.CRM == nil:
		return nil, errors.New("dialapi: CRM is required")
	case cfg.Personas == nil:
		return nil, errors.New("dialapi: Personas is required")
	case cfg.Device == nil:
		return nil, errors.New("dialapi: Device is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
	s.routes()
	s.subscribe()
	return s, nil
}

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/call", s.handleCall)
	mux.HandleFunc("POST /api/hangup", s.handleHangup)
	mux.HandleFunc("POST /api/recording", s.handleRecording)
	mux.HandleFunc("POST /api/review/confirm", s.handleConfirm)
	mux.HandleFunc("GET /api/review/download", s.handleDownload)
	mux.HandleFunc("POST /api/review/discard", s.handleDiscard)
	mux.HandleFunc("GET /api/leads", s.handleLeads)
	mux.HandleFunc("GET /api/leads/{id}", s.handleLead)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/persona", s.handleGetPersona)
	mux.HandleFunc("PUT /api/persona", s.handlePutPersona)
	mux.HandleFunc("GET /ws", s.handleWS)
	s.mux = mux
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close unsubscribes from the manager and disconnects websocket clients.
// It does not close the manager.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsub := s.unsub
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, f := range unsub {
		f()
	}
	for _, c := range clients {
		c.close()
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Manager.Snapshot())
}

type callRequest struct {
	Destination string `json:"destination"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.cfg.Manager.StartCall(r.Context(), req.Destination); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Manager.Snapshot())
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Manager.EndCall(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Manager.Snapshot())
}

type recordingRequest struct {
	On bool `json:"on"`
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.cfg.Manager.ToggleRecording(req.On); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Manager.Snapshot())
}

type confirmRequest struct {
	Outcome crm.Outcome `json:"outcome"`
	LeadID  string      `json:"leadId"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.cfg.Gate.Confirm(r.Context(), req.Outcome, req.LeadID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, body, err := s.cfg.Gate.Download()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug("download", "error", err)
	}
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.cfg.Gate.Discard()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.cfg.CRM.GetLeads(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.cfg.CRM.GetLead(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.cfg.CRM.GetTasks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Personas.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPersona(w http.ResponseWriter, r *http.Request) {
	var p persona.Persona
	if !decode(w, r, &p) {
		return
	}
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.cfg.Personas.Set(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		connErr    *transport.ConnectionError
		persistErr *review.PersistenceError
	)
	switch {
	case errors.Is(err, callsession.ErrEmptyDestination),
		errors.Is(err, review.ErrNoLead),
		errors.Is(err, crm.ErrUnknownOutcome):
		return http.StatusBadRequest
	case errors.Is(err, review.ErrNoPending),
		errors.Is(err, crm.ErrLeadNotFound),
		errors.Is(err, crm.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, callsession.ErrInvalidTransition),
		errors.Is(err, callsession.ErrRecordingPending),
		errors.Is(err, callsession.ErrCanceled),
		errors.Is(err, review.ErrPendingOccupied),
		errors.Is(err, review.ErrCommitMismatch):
		return http.StatusConflict
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.As(err, &persistErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, callsession.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= 500 {
		s.logger.Warn("request failed", "status", code, "error", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
