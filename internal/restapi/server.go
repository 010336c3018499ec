// Package restapi exposes the orchestrator's HTTP surface: emergency
// intake, fleet/emergency queries, and a WebSocket feed of dispatch
// lifecycle events.
package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aegis-fleet/orchestrator/internal/dispatch"
	"github.com/aegis-fleet/orchestrator/internal/fleet"
	"github.com/aegis-fleet/orchestrator/internal/fleeterrors"
	"github.com/aegis-fleet/orchestrator/internal/fleetmodel"
	"github.com/aegis-fleet/orchestrator/internal/pubsub"
)

// Server wires the fleet store and dispatcher behind an http.Handler.
type Server struct {
	store     *fleet.Store
	dispatch  *dispatch.Dispatcher
	transport pubsub.Transport
	logger    zerolog.Logger
	hub       *hub
	mux       *http.ServeMux
}

// New constructs a Server and registers its routes. allowedOrigins is
// forwarded to the WebSocket upgrader's CheckOrigin.
func New(store *fleet.Store, d *dispatch.Dispatcher, transport pubsub.Transport, logger zerolog.Logger, allowedOrigins []string) *Server {
	s := &Server{
		store:     store,
		dispatch:  d,
		transport: transport,
		logger:    logger.With().Str("component", "restapi").Logger(),
		hub:       newHub(logger),
	}
	s.mux = http.NewServeMux()
	s.routes(allowedOrigins)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes(allowedOrigins []string) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /emergencies", s.handleCreateEmergency)
	s.mux.HandleFunc("GET /emergencies", s.handleListEmergencies)
	s.mux.HandleFunc("GET /emergencies/{id}", s.handleGetEmergency)
	s.mux.HandleFunc("POST /emergencies/{id}/resolve", s.handleResolveEmergency)
	s.mux.HandleFunc("GET /fleet", s.handleListFleet)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket(allowedOrigins))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createEmergencyRequest struct {
	EmergencyType fleetmodel.EmergencyType  `json:"emergency_type"`
	Severity      int                       `json:"severity"`
	Location      fleetmodel.GeoLocation    `json:"location"`
	Description   string                    `json:"description"`
	UnitsRequired *fleetmodel.UnitsRequired `json:"units_required,omitempty"`
	Fleet         string                    `json:"fleet"`
}

func (s *Server) handleCreateEmergency(w http.ResponseWriter, r *http.Request) {
	var req createEmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Fleet == "" {
		writeError(w, http.StatusBadRequest, "fleet is required")
		return
	}

	units := fleetmodel.EmergencyUnitDefaults[req.EmergencyType]
	if req.UnitsRequired != nil {
		units = *req.UnitsRequired
	}

	emergency := fleetmodel.Emergency{
		EmergencyID:   newEmergencyID(),
		EmergencyType: req.EmergencyType,
		Status:        fleetmodel.EmergencyPending,
		Severity:      req.Severity,
		Location:      req.Location,
		Description:   req.Description,
		UnitsRequired: units,
		CreatedAt:     time.Now().UTC(),
	}

	disp, err := s.dispatch.ProcessEmergency(r.Context(), req.Fleet, emergency)
	if err != nil {
		s.logger.Warn().Err(err).Msg("process_emergency failed")
		writeError(w, http.StatusInternalServerError, "failed to process emergency")
		return
	}

	s.hub.broadcast(event{
		Event:     "emergency.dispatched",
		Data:      disp,
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, http.StatusCreated, disp)
}

func (s *Server) handleListEmergencies(w http.ResponseWriter, r *http.Request) {
	status := fleetmodel.EmergencyStatus(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, s.dispatch.ListEmergencies(status))
}

func (s *Server) handleGetEmergency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	emergency, err := s.dispatch.Emergency(id)
	if err != nil {
		writeFleetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emergency)
}

func (s *Server) handleResolveEmergency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	released, err := s.dispatch.ResolveEmergency(r.Context(), id)
	if err != nil {
		writeFleetError(w, err)
		return
	}

	s.hub.broadcast(event{
		Event:     "emergency.resolved",
		Data:      map[string]interface{}{"emergency_id": id, "released_vehicles": released},
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"emergency_id": id, "released_vehicles": released})
}

func (s *Server) handleListFleet(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.store.ListSnapshots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list fleet")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func writeFleetError(w http.ResponseWriter, err error) {
	switch {
	case isKind(err, fleeterrors.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isKind(err, fleeterrors.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isKind(err, target error) bool {
	fe, ok := err.(*fleeterrors.Error)
	if !ok {
		return false
	}
	return fe.Is(target)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RunWebSocketBridge subscribes to the dispatch-resolution broadcast topics
// and forwards each one as an emergency.resolved event to every connected
// WebSocket client until ctx is cancelled.
func (s *Server) RunWebSocketBridge(ctx context.Context) error {
	sub, err := s.transport.PSubscribe(ctx, pubsub.PatternDispatchResolved)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			var payload interface{}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			s.hub.broadcast(event{Event: "emergency.resolved", Data: payload, Timestamp: time.Now().UTC()})
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(allowedOrigins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up := upgrader
		up.CheckOrigin = func(r *http.Request) bool {
			return isAllowedOrigin(r, allowedOrigins)
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		s.hub.serve(conn)
	}
}

func isAllowedOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
