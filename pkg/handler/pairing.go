package handler

import (
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// PairRequestHandler handles PairRequestRx messages
type PairRequestHandler struct{}

// NewPairRequestHandler creates a new pair request handler
func NewPairRequestHandler() *PairRequestHandler {
	return &PairRequestHandler{}
}

// Opcode returns the opcode this handler processes
func (h *PairRequestHandler) Opcode() protocol.Opcode {
	return protocol.OpPairRequestRx
}

// HandleMessage subscribes to Write/Control. Whether the user accepted the
// pairing is only known from what happens next: a SensorDataRx means yes,
// a disconnect means no.
func (h *PairRequestHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	log.Info("Pairing requested, waiting for confirmation")
	session.WaitingForPairingConfirmation = true

	return &Response{
		Command:    cgm.Subscribe(cgm.RoleWrite),
		PhaseEvent: state.EventPairRequest,
	}, nil
}

// KeepAliveHandler handles KeepAlive messages from the transmitter
type KeepAliveHandler struct{}

// NewKeepAliveHandler creates a new keep alive handler
func NewKeepAliveHandler() *KeepAliveHandler {
	return &KeepAliveHandler{}
}

// Opcode returns the opcode this handler processes
func (h *KeepAliveHandler) Opcode() protocol.Opcode {
	return protocol.OpKeepAlive
}

// HandleMessage does nothing; the pairing dialog is expected next
func (h *KeepAliveHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	log.Debug("Keep alive acknowledged")
	return nil, nil
}
