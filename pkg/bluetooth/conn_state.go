package bluetooth

import "go.uber.org/atomic"

// ConnectionState represents where a central is in its connect cycle
type ConnectionState string

const (
	// StateIdle - not started or powered off
	StateIdle ConnectionState = "Idle"
	// StateScanning - looking for the transmitter
	StateScanning ConnectionState = "Scanning"
	// StateConnecting - connection requested, not yet established
	StateConnecting ConnectionState = "Connecting"
	// StateConnected - characteristics discovered and attached
	StateConnected ConnectionState = "Connected"
)

type stateHolder struct {
	value *atomic.String
}

func newStateHolder() *stateHolder {
	return &stateHolder{value: atomic.NewString(string(StateIdle))}
}

func (s *stateHolder) get() ConnectionState {
	return ConnectionState(s.value.Load())
}

func (s *stateHolder) set(state ConnectionState) {
	s.value.Store(string(state))
}
