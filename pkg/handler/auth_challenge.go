package handler

import (
	"fmt"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/auth"
	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// AuthRequestHandler handles AuthRequestRx messages
// This answers the transmitter's challenge
type AuthRequestHandler struct{}

// NewAuthRequestHandler creates a new auth request handler
func NewAuthRequestHandler() *AuthRequestHandler {
	return &AuthRequestHandler{}
}

// Opcode returns the opcode this handler processes
func (h *AuthRequestHandler) Opcode() protocol.Opcode {
	return protocol.OpAuthRequestRx
}

// HandleMessage computes the challenge response and writes it back on the
// Receive/Authentication characteristic. If it can not be computed nothing is
// sent and the handshake stalls until the transport gives up.
func (h *AuthRequestHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	req, ok := msg.Payload.(*protocol.AuthRequestRxMessage)
	if !ok {
		return nil, fmt.Errorf("no valid AuthRequestRx payload")
	}

	log.Info("Transmitter sent authentication challenge")

	hash, err := auth.ComputeResponse(session.ExpectedID, req.Challenge[:])
	if err != nil {
		return nil, fmt.Errorf("failed to compute challenge response: %w", err)
	}

	return &Response{
		Command:    cgm.Write(cgm.RoleReceive, protocol.AuthChallengeTx(hash), cgm.WithResponse),
		PhaseEvent: state.EventChallenge,
	}, nil
}

// AuthChallengeHandler handles AuthChallengeRx messages
// This is the outcome of the handshake
type AuthChallengeHandler struct {
	keepAliveSeconds uint8
}

// NewAuthChallengeHandler creates a new auth challenge handler
func NewAuthChallengeHandler(keepAliveSeconds uint8) *AuthChallengeHandler {
	return &AuthChallengeHandler{
		keepAliveSeconds: keepAliveSeconds,
	}
}

// Opcode returns the opcode this handler processes
func (h *AuthChallengeHandler) Opcode() protocol.Opcode {
	return protocol.OpAuthChallengeRx
}

// HandleMessage either holds the link open for pairing or subscribes to the
// Write/Control characteristic
func (h *AuthChallengeHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	status, ok := msg.Payload.(*protocol.AuthChallengeRxMessage)
	if !ok {
		return nil, fmt.Errorf("no valid AuthChallengeRx payload")
	}

	log.Infof("Authentication status: authenticated=%v, paired=%v", status.Authenticated, status.Paired)
	if !status.Authenticated {
		log.Warn("Transmitter did not accept the challenge response")
	}

	if !status.Paired {
		log.Infof("Transmitter needs pairing, keeping the link open for %d seconds", h.keepAliveSeconds)
		return &Response{
			Command:    cgm.Write(cgm.RoleReceive, protocol.KeepAliveTx(h.keepAliveSeconds), cgm.WithResponse),
			Signals:    []Signal{SignalPairingNeeded},
			PhaseEvent: state.EventPairingNeeded,
		}, nil
	}

	return &Response{
		Command:    cgm.Subscribe(cgm.RoleWrite),
		PhaseEvent: state.EventAuthenticated,
	}, nil
}
