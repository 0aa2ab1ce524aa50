package handler

import (
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"
)

// MessageHandler handles a specific inbound opcode
type MessageHandler interface {
	// HandleMessage processes a message and returns a response. msg.Payload
	// is nil when the payload failed validation.
	HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error)

	// Opcode returns the opcode this handler processes
	Opcode() protocol.Opcode
}

// Response represents the outcome of handling one message
type Response struct {
	// Command to hand back to the transport (if any)
	Command *cgm.Command

	// Info to report to the delegate (if any)
	Info *cgm.Info

	// Signals to report to the delegate, in order
	Signals []Signal

	// PhaseEvent advances the informational session phase
	PhaseEvent string

	// Diagnostic to report for unknown or unusable input
	Diagnostic *cgm.Diagnostic
}

// Signal identifies a delegate event without payload
type Signal int

const (
	SignalPairingNeeded Signal = iota
	SignalPairingSucceeded
	SignalResetSucceeded
	SignalResetFailed
)

func (s Signal) String() string {
	switch s {
	case SignalPairingNeeded:
		return "PairingNeeded"
	case SignalPairingSucceeded:
		return "PairingSucceeded"
	case SignalResetSucceeded:
		return "ResetSucceeded"
	case SignalResetFailed:
		return "ResetFailed"
	default:
		return "Unknown"
	}
}

func (s Signal) deliver(d cgm.Delegate) {
	switch s {
	case SignalPairingNeeded:
		d.PairingNeeded()
	case SignalPairingSucceeded:
		d.PairingSucceeded()
	case SignalResetSucceeded:
		d.ResetCompleted(true)
	case SignalResetFailed:
		d.ResetCompleted(false)
	}
}
