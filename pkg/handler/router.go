package handler

import (
	"errors"
	"fmt"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// Router routes inbound messages to the handler for their opcode and applies
// the responses
type Router struct {
	handlers map[protocol.Opcode]MessageHandler
	session  *state.Session
	link     cgm.Link
	delegate cgm.Delegate
	clock    cgm.Clock

	sensorData *SensorDataHandler

	// Default handler for unknown opcodes
	defaultHandler MessageHandler

	routed    int
	unparsed  int
	unhandled int
}

// RouterConfig holds what the handlers need besides the session
type RouterConfig struct {
	KeepAliveSeconds uint8
	Scale            cgm.ScalingFunc
}

// NewRouter creates a router with every handler registered
func NewRouter(session *state.Session, link cgm.Link, delegate cgm.Delegate, clock cgm.Clock, cfg RouterConfig) *Router {
	r := &Router{
		handlers: make(map[protocol.Opcode]MessageHandler),
		session:  session,
		link:     link,
		delegate: delegate,
		clock:    clock,
	}

	r.sensorData = NewSensorDataHandler(cfg.Scale)
	r.registerHandlers(cfg)

	return r
}

// registerHandlers registers all message handlers
func (r *Router) registerHandlers(cfg RouterConfig) {
	// Handshake
	r.RegisterHandler(NewAuthRequestHandler())
	r.RegisterHandler(NewAuthChallengeHandler(cfg.KeepAliveSeconds))
	r.RegisterHandler(NewPairRequestHandler())
	r.RegisterHandler(NewKeepAliveHandler())

	// Data
	r.RegisterHandler(r.sensorData)
	r.RegisterHandler(NewBatteryStatusHandler())
	r.RegisterHandler(NewTransmitterVersionHandler())
	r.RegisterHandler(NewResetHandler())

	r.SetDefaultHandler(NewDefaultHandler())

	log.Debugf("Registered %d message handlers", len(r.handlers))
}

// RegisterHandler registers a message handler
func (r *Router) RegisterHandler(handler MessageHandler) {
	r.handlers[handler.Opcode()] = handler
	log.Tracef("Registered handler: %s", handler.Opcode())
}

// SetDefaultHandler sets the default handler for unknown opcodes
func (r *Router) SetDefaultHandler(handler MessageHandler) {
	r.defaultHandler = handler
}

// SetScaling replaces the scaling strategy used for readings
func (r *Router) SetScaling(scale cgm.ScalingFunc) {
	r.sensorData.SetScaling(scale)
}

// RouteMessage parses one inbound frame and dispatches it. Errors are for
// logging only; the session stays usable after any of them.
func (r *Router) RouteMessage(role cgm.CharacteristicRole, data []byte) error {
	protocol.LogMessage("RX", role, data)

	msg, err := protocol.Parse(data)
	if msg == nil {
		r.unparsed++
		r.diagnose(role, data, err)
		return fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		log.Warnf("Invalid %s payload: %v", msg.Opcode, err)
		r.diagnose(role, data, err)
	}

	r.routed++
	handler, exists := r.handlers[msg.Opcode]
	if !exists || msg.Unknown {
		log.Debugf("No specific handler for %s, using default handler", msg.Opcode)
		r.unhandled++
		handler = r.defaultHandler
	}

	response, herr := handler.HandleMessage(msg, r.session, r.clock.Now())
	if response != nil {
		if response.Diagnostic != nil {
			response.Diagnostic.Role = role
		}
		r.apply(response)
	}
	if herr != nil {
		log.Errorf("Handler error for %s: %v", msg.Opcode, herr)
		return fmt.Errorf("handler error: %w", herr)
	}
	return err
}

// apply hands the command to the transport and reports to the delegate
func (r *Router) apply(response *Response) {
	if response.PhaseEvent != "" {
		r.session.Phase.Fire(response.PhaseEvent)
	}

	if response.Command != nil {
		if err := r.Send(response.Command); err != nil {
			log.Errorf("Failed to send command: %v", err)
		}
	}

	for _, s := range response.Signals {
		log.Debugf("Signal: %s", s)
		s.deliver(r.delegate)
	}

	if response.Info != nil && !response.Info.Empty() {
		r.delegate.InfoReceived(*response.Info)
	}

	if response.Diagnostic != nil {
		cgm.ReportDiagnostic(r.delegate, *response.Diagnostic)
	}
}

// Send logs and applies a command on the link
func (r *Router) Send(cmd *cgm.Command) error {
	switch cmd.Kind {
	case cgm.CommandWrite:
		protocol.LogMessage("TX", cmd.Role, cmd.Data)
	case cgm.CommandSubscribe:
		log.Debugf("Enabling notifications on %s", cmd.Role)
	case cgm.CommandDisconnect:
		log.Debug("Disconnecting")
	}
	return cmd.Apply(r.link)
}

func (r *Router) diagnose(role cgm.CharacteristicRole, data []byte, err error) {
	reason := "undecodable message"
	if err != nil {
		reason = err.Error()
	}
	if errors.Is(err, protocol.ErrEmptyMessage) {
		reason = "empty message"
	}
	cgm.ReportDiagnostic(r.delegate, cgm.Diagnostic{Role: role, Reason: reason, Payload: data})
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"registeredHandlers": len(r.handlers),
		"routedMessages":     r.routed,
		"unparsedMessages":   r.unparsed,
		"unhandledMessages":  r.unhandled,
	}
}
