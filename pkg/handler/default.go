package handler

import (
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// DefaultHandler handles opcodes nothing else is registered for
type DefaultHandler struct{}

// NewDefaultHandler creates a new default handler
func NewDefaultHandler() *DefaultHandler {
	return &DefaultHandler{}
}

// Opcode returns zero; the default handler is never looked up by opcode
func (h *DefaultHandler) Opcode() protocol.Opcode {
	return 0
}

// HandleMessage reports the message as a diagnostic and changes nothing
func (h *DefaultHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	log.Warnf("No handler for opcode %s (%d bytes)", msg.Opcode, len(msg.Raw))

	return &Response{
		Diagnostic: &cgm.Diagnostic{
			Reason:  "unknown opcode " + msg.Opcode.String(),
			Payload: msg.Raw,
		},
	}, nil
}
