package handler

import (
	"fmt"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// ResetHandler handles ResetRx messages
type ResetHandler struct{}

// NewResetHandler creates a new reset handler
func NewResetHandler() *ResetHandler {
	return &ResetHandler{}
}

// Opcode returns the opcode this handler processes
func (h *ResetHandler) Opcode() protocol.Opcode {
	return protocol.OpResetRx
}

// HandleMessage reports the reset outcome. A successful reset starts the
// reset guard.
func (h *ResetHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	r, ok := msg.Payload.(*protocol.ResetRxMessage)
	if !ok {
		return nil, fmt.Errorf("no valid ResetRx payload")
	}

	if r.Status != 0 {
		log.Warnf("Reset status is %d, considering reset failed", r.Status)
		return &Response{Signals: []Signal{SignalResetFailed}}, nil
	}

	log.Info("Reset status is 0, considering reset successful")
	session.LastReset = now
	return &Response{Signals: []Signal{SignalResetSucceeded}}, nil
}
