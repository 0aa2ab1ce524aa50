package state

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"
)

// Session phases. They describe where the handshake is; they never decide
// whether a message is handled.
const (
	PhaseIdle                        = "idle"
	PhaseAuthenticating              = "authenticating"
	PhaseChallenged                  = "challenged"
	PhasePairingNeeded               = "pairing_needed"
	PhaseAwaitingPairingConfirmation = "awaiting_pairing_confirmation"
	PhasePaired                      = "paired"
	PhaseOperational                 = "operational"
)

// Phase events
const (
	EventConnect       = "connect"
	EventChallenge     = "challenge"
	EventPairingNeeded = "pairing_needed"
	EventPairRequest   = "pair_request"
	EventAuthenticated = "authenticated"
	EventReading       = "reading"
	EventDisconnect    = "disconnect"
)

var allPhases = []string{
	PhaseIdle,
	PhaseAuthenticating,
	PhaseChallenged,
	PhasePairingNeeded,
	PhaseAwaitingPairingConfirmation,
	PhasePaired,
	PhaseOperational,
}

// Phase tracks the handshake phase of one session. Every event is accepted
// from every phase, so a reordered or missing response can not wedge it.
type Phase struct {
	machine *fsm.FSM
	history []string
}

// NewPhase creates a tracker in PhaseIdle
func NewPhase() *Phase {
	p := &Phase{}
	p.machine = fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: EventConnect, Src: allPhases, Dst: PhaseAuthenticating},
			{Name: EventChallenge, Src: allPhases, Dst: PhaseChallenged},
			{Name: EventPairingNeeded, Src: allPhases, Dst: PhasePairingNeeded},
			{Name: EventPairRequest, Src: allPhases, Dst: PhaseAwaitingPairingConfirmation},
			{Name: EventAuthenticated, Src: allPhases, Dst: PhasePaired},
			{Name: EventReading, Src: allPhases, Dst: PhaseOperational},
			{Name: EventDisconnect, Src: allPhases, Dst: PhaseIdle},
		},
		fsm.Callbacks{
			"enter_state": p.onEnter,
		},
	)
	return p
}

func (p *Phase) onEnter(_ context.Context, e *fsm.Event) {
	log.Debugf("Session phase: %s -> %s (%s)", e.Src, e.Dst, e.Event)
	p.history = append(p.history, e.Dst)
}

// Fire applies event. Staying in the same phase is not an error.
func (p *Phase) Fire(event string) {
	err := p.machine.Event(context.Background(), event)
	if err == nil {
		return
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	log.Debugf("Session phase event %s ignored in %s: %v", event, p.machine.Current(), err)
}

// Current returns the current phase
func (p *Phase) Current() string {
	return p.machine.Current()
}

// History returns every phase entered so far, oldest first
func (p *Phase) History() []string {
	return append([]string(nil), p.history...)
}
