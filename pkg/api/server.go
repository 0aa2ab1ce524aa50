//nolint:revive // api is a standard package name for API servers
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Controller is the part of a transmitter session the API can drive
type Controller interface {
	RequestReset()
	RequestPairing()
	LastReadingTimestamp() time.Time
}

// Server provides a WebSocket API for monitoring and controlling the bridge.
// It receives every session event as a cgm.Delegate.
type Server struct {
	family     string
	controller Controller

	conn *websocket.Conn
	mtx  sync.Mutex

	connected      *atomic.Bool
	bluetoothState *atomic.String
	transportState func() string

	// Latest values seen in InfoReceived
	stateMtx        sync.RWMutex
	lastSample      *cgm.GlucoseSample
	battery         cgm.BatteryInfo
	firmwareVersion string
	pairing         string
}

// State represents the current state of the bridge
type State struct {
	Family          string             `json:"family"`
	Connected       bool               `json:"connected"`
	Transport       string             `json:"transport,omitempty"`
	BluetoothState  string             `json:"bluetoothState,omitempty"`
	LastReading     *time.Time         `json:"lastReading,omitempty"`
	LastSample      *cgm.GlucoseSample `json:"lastSample,omitempty"`
	Battery         string             `json:"battery,omitempty"`
	FirmwareVersion string             `json:"firmwareVersion,omitempty"`
	Pairing         string             `json:"pairing,omitempty"`

	// Session is what the transmitter session reports about itself
	Session map[string]interface{} `json:"session,omitempty"`
}

// Event represents a session event sent to websocket clients
type Event struct {
	Type    string    `json:"type"`
	Address string    `json:"address,omitempty"`
	Name    string    `json:"name,omitempty"`
	Info    *cgm.Info `json:"info,omitempty"`
	Battery string    `json:"battery,omitempty"`
	Success *bool     `json:"success,omitempty"`
	State   string    `json:"state,omitempty"`
	Role    string    `json:"role,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Data    string    `json:"data,omitempty"`
}

var _ cgm.Delegate = (*Server)(nil)

// New creates a new API server
func New(family string) *Server {
	return &Server{
		family:         family,
		connected:      atomic.NewBool(false),
		bluetoothState: atomic.NewString(""),
	}
}

// SetController sets the session commands are sent to
func (s *Server) SetController(c Controller) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.controller = c
}

// SetTransportState sets the source of the transport connection state
func (s *Server) SetTransportState(f func() string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.transportState = f
}

// Start starts the HTTP/WebSocket server
func (s *Server) Start(listen string) error {
	log.Infof("Bridge web API listening on %s", listen)
	return http.ListenAndServe(listen, s.Routes())
}

// Routes returns the API handler
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintf(w, "CGM Bridge API - Connect via WebSocket at /ws\n\n  GET    /api/state\n  POST   /api/reset\n  POST   /api/pair\n"); err != nil {
			log.Warnf("Failed to write response: %v", err)
		}
	})
	mux.Handle("/ws", http.HandlerFunc(s.serveWebSocket))
	mux.HandleFunc("/api/state", s.handleStateAPI)
	mux.HandleFunc("/api/reset", s.handleCommandAPI("reset"))
	mux.HandleFunc("/api/pair", s.handleCommandAPI("pair"))
	return mux
}

// SendEvent sends an event to the connected websocket client
func (s *Server) SendEvent(event Event) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal event: %v", err)
		return
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Errorf("Failed to send websocket message: %v", err)
	}
}

func (s *Server) DidConnect(address, name string) {
	s.connected.Store(true)
	s.SendEvent(Event{Type: "connected", Address: address, Name: name})
}

func (s *Server) DidDisconnect() {
	s.connected.Store(false)
	s.SendEvent(Event{Type: "disconnected"})
}

func (s *Server) InfoReceived(info cgm.Info) {
	s.stateMtx.Lock()
	if n := len(info.Samples); n > 0 {
		sample := info.Samples[n-1]
		s.lastSample = &sample
	}
	if info.Battery != nil {
		s.battery = info.Battery
	}
	if info.FirmwareVersion != "" {
		s.firmwareVersion = info.FirmwareVersion
	}
	s.stateMtx.Unlock()

	event := Event{Type: "info", Info: &info}
	if info.Battery != nil {
		event.Battery = info.Battery.String()
	}
	s.SendEvent(event)
}

func (s *Server) PairingNeeded() {
	s.setPairing("needed")
	s.SendEvent(Event{Type: "pairing_needed"})
}

func (s *Server) PairingSucceeded() {
	s.setPairing("succeeded")
	s.SendEvent(Event{Type: "pairing_succeeded"})
}

func (s *Server) PairingFailed() {
	s.setPairing("failed")
	s.SendEvent(Event{Type: "pairing_failed"})
}

func (s *Server) ResetCompleted(success bool) {
	s.SendEvent(Event{Type: "reset_completed", Success: &success})
}

func (s *Server) BluetoothStateChanged(state string) {
	s.bluetoothState.Store(state)
	s.SendEvent(Event{Type: "bluetooth_state", State: state})
}

// Diagnostic forwards undecodable input to the websocket client
func (s *Server) Diagnostic(d cgm.Diagnostic) {
	s.SendEvent(Event{
		Type:   "diagnostic",
		Role:   d.Role.String(),
		Reason: d.Reason,
		Data:   hex.EncodeToString(d.Payload),
	})
}

func (s *Server) setPairing(p string) {
	s.stateMtx.Lock()
	defer s.stateMtx.Unlock()
	s.pairing = p
}

// CurrentState returns the bridge state
func (s *Server) CurrentState() State {
	s.mtx.Lock()
	controller, transportState := s.controller, s.transportState
	s.mtx.Unlock()

	state := State{
		Family:         s.family,
		Connected:      s.connected.Load(),
		BluetoothState: s.bluetoothState.Load(),
	}
	if transportState != nil {
		state.Transport = transportState()
	}
	if controller != nil {
		if last := controller.LastReadingTimestamp(); !last.IsZero() {
			state.LastReading = &last
		}
		if reporter, ok := controller.(cgm.StatusReporter); ok {
			state.Session = reporter.Status()
		}
	}

	s.stateMtx.RLock()
	defer s.stateMtx.RUnlock()
	state.LastSample = s.lastSample
	if s.battery != nil {
		state.Battery = s.battery.String()
	}
	state.FirmwareVersion = s.firmwareVersion
	state.Pairing = s.pairing
	return state
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Infof("WebSocket connection from: %s", r.RemoteAddr)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mtx.Lock()
	s.conn = ws
	s.mtx.Unlock()

	// Send initial state
	s.sendState()

	// Listen for messages
	s.reader(ws)
}

func (s *Server) sendState() {
	data, err := json.Marshal(struct {
		Type  string `json:"type"`
		State State  `json:"state"`
	}{"state", s.CurrentState()})
	if err != nil {
		log.Errorf("Failed to marshal state: %v", err)
		return
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.conn != nil {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Errorf("Failed to send state: %v", err)
		}
	}
}

func (s *Server) reader(conn *websocket.Conn) {
	defer func() {
		s.mtx.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mtx.Unlock()
		if err := conn.Close(); err != nil {
			log.Debugf("Error closing websocket: %v", err)
		}
	}()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket read error: %v", err)
			return
		}
		log.Debugf("Received WebSocket message: %s", string(p))
		s.handleCommand(p)
	}
}

func (s *Server) handleCommand(data []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Errorf("Failed to parse command: %v", err)
		return
	}

	command, ok := msg["command"].(string)
	if !ok {
		log.Error("Command field missing or not a string")
		return
	}

	if command == "getState" {
		s.sendState()
		return
	}
	if err := s.runCommand(command); err != nil {
		log.Errorf("Command %s failed: %v", command, err)
	}
}

func (s *Server) runCommand(command string) error {
	s.mtx.Lock()
	controller := s.controller
	s.mtx.Unlock()

	if controller == nil {
		return fmt.Errorf("no transmitter session")
	}

	switch command {
	case "reset":
		log.Info("Reset requested, it is sent on the next connection")
		controller.RequestReset()
	case "pair":
		log.Info("Pairing requested")
		controller.RequestPairing()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// handleStateAPI returns the bridge state
func (s *Server) handleStateAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.CurrentState()); err != nil {
		log.Errorf("Failed to encode state: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleCommandAPI runs command on POST
func (s *Server) handleCommandAPI(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := s.runCommand(command); err != nil {
			http.Error(w, fmt.Sprintf("Failed to run %s: %v", command, err), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "success",
			"command": command,
		}); err != nil {
			log.Errorf("Failed to encode %s response: %v", command, err)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
