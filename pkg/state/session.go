package state

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Timing guards of the authenticated protocol
const (
	// ResetGuard discards readings taken this soon after a reset
	ResetGuard = 5 * time.Minute

	// ReadingGuard discards readings taken this soon after an accepted one
	ReadingGuard = time.Minute

	DefaultBatteryReadInterval = 12 * time.Hour
	DefaultKeepAlive           = 60 * time.Second
)

// Session is the state of one authenticated transmitter. It is only touched
// from the session queue, so it carries no lock.
//
// The timestamps and the firmware version outlive a single connection; the
// pairing flag and the phase are reset on every connect and disconnect.
type Session struct {
	ExpectedID string

	FirmwareVersion string

	LastReading     time.Time
	LastBatteryRead time.Time
	LastReset       time.Time

	// ResetRequested is set by a client request and cleared when the reset is sent
	ResetRequested bool

	// WaitingForPairingConfirmation is set by PairRequestRx and cleared by the
	// next SensorDataRx (success) or disconnect (failure)
	WaitingForPairingConfirmation bool

	BatteryReadInterval time.Duration

	Phase *Phase
}

// NewSession creates the state for transmitter id
func NewSession(id string, batteryReadInterval time.Duration) *Session {
	if batteryReadInterval <= 0 {
		batteryReadInterval = DefaultBatteryReadInterval
	}
	return &Session{
		ExpectedID:          id,
		BatteryReadInterval: batteryReadInterval,
		Phase:               NewPhase(),
	}
}

// Begin marks the start of a connection. A stale pairing flag from an
// earlier connection is dropped without reporting anything.
func (s *Session) Begin() {
	if s.WaitingForPairingConfirmation {
		log.Debug("Clearing stale pairing confirmation flag")
	}
	s.WaitingForPairingConfirmation = false
	s.Phase.Fire(EventConnect)
}

// End marks the end of a connection and returns true if a pairing was still
// waiting for confirmation
func (s *Session) End() bool {
	wasWaiting := s.WaitingForPairingConfirmation
	s.WaitingForPairingConfirmation = false
	s.Phase.Fire(EventDisconnect)
	return wasWaiting
}

// ConfirmPairing clears the pairing flag and returns true if it was set
func (s *Session) ConfirmPairing() bool {
	wasWaiting := s.WaitingForPairingConfirmation
	s.WaitingForPairingConfirmation = false
	return wasWaiting
}

// WithinResetGuard returns true if now is less than ResetGuard after the last reset
func (s *Session) WithinResetGuard(now time.Time) bool {
	return !s.LastReset.IsZero() && now.Before(s.LastReset.Add(ResetGuard))
}

// WithinReadingGuard returns true if now is less than ReadingGuard after the last reading
func (s *Session) WithinReadingGuard(now time.Time) bool {
	return !s.LastReading.IsZero() && now.Before(s.LastReading.Add(ReadingGuard))
}

// BatteryReadDue returns true if the last battery read is older than the interval
func (s *Session) BatteryReadDue(now time.Time) bool {
	return s.LastBatteryRead.IsZero() || now.After(s.LastBatteryRead.Add(s.BatteryReadInterval))
}

// TakeResetRequest returns true and clears the flag if a reset was requested
func (s *Session) TakeResetRequest() bool {
	requested := s.ResetRequested
	s.ResetRequested = false
	return requested
}

// Snapshot is a read-only copy of the session for reporting
type Snapshot struct {
	ExpectedID                    string    `json:"transmitterId"`
	FirmwareVersion               string    `json:"firmwareVersion,omitempty"`
	LastReading                   time.Time `json:"lastReading"`
	LastBatteryRead               time.Time `json:"lastBatteryRead"`
	LastReset                     time.Time `json:"lastReset"`
	ResetRequested                bool      `json:"resetRequested"`
	WaitingForPairingConfirmation bool      `json:"waitingForPairingConfirmation"`
	Phase                         string    `json:"phase"`
}

// Snapshot copies the session
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ExpectedID:                    s.ExpectedID,
		FirmwareVersion:               s.FirmwareVersion,
		LastReading:                   s.LastReading,
		LastBatteryRead:               s.LastBatteryRead,
		LastReset:                     s.LastReset,
		ResetRequested:                s.ResetRequested,
		WaitingForPairingConfirmation: s.WaitingForPairingConfirmation,
		Phase:                         s.Phase.Current(),
	}
}
