package cgm

import (
	log "github.com/sirupsen/logrus"
)

// Delegate receives the domain events produced by a transmitter session.
// Implementations must not block; they are called from the session queue.
type Delegate interface {
	DidConnect(address, name string)
	DidDisconnect()
	InfoReceived(info Info)
	PairingNeeded()
	PairingSucceeded()
	PairingFailed()
	ResetCompleted(success bool)
	BluetoothStateChanged(state string)
}

// Diagnostic describes input that was dropped or not understood
type Diagnostic struct {
	Role    CharacteristicRole
	Reason  string
	Payload []byte
}

// DiagnosticReceiver is an optional Delegate extension for diagnostics
type DiagnosticReceiver interface {
	Diagnostic(d Diagnostic)
}

// ReportDiagnostic hands d to delegate if it accepts diagnostics
func ReportDiagnostic(delegate Delegate, d Diagnostic) {
	if r, ok := delegate.(DiagnosticReceiver); ok {
		r.Diagnostic(d)
	}
}

// NoOpDelegate ignores every event
type NoOpDelegate struct{}

func (NoOpDelegate) DidConnect(address, name string)    {}
func (NoOpDelegate) DidDisconnect()                     {}
func (NoOpDelegate) InfoReceived(info Info)             {}
func (NoOpDelegate) PairingNeeded()                     {}
func (NoOpDelegate) PairingSucceeded()                  {}
func (NoOpDelegate) PairingFailed()                     {}
func (NoOpDelegate) ResetCompleted(success bool)        {}
func (NoOpDelegate) BluetoothStateChanged(state string) {}

// MultiDelegate fans every event out to several delegates in order
type MultiDelegate []Delegate

func (m MultiDelegate) DidConnect(address, name string) {
	for _, d := range m {
		d.DidConnect(address, name)
	}
}

func (m MultiDelegate) DidDisconnect() {
	for _, d := range m {
		d.DidDisconnect()
	}
}

func (m MultiDelegate) InfoReceived(info Info) {
	for _, d := range m {
		d.InfoReceived(info)
	}
}

func (m MultiDelegate) PairingNeeded() {
	for _, d := range m {
		d.PairingNeeded()
	}
}

func (m MultiDelegate) PairingSucceeded() {
	for _, d := range m {
		d.PairingSucceeded()
	}
}

func (m MultiDelegate) PairingFailed() {
	for _, d := range m {
		d.PairingFailed()
	}
}

func (m MultiDelegate) ResetCompleted(success bool) {
	for _, d := range m {
		d.ResetCompleted(success)
	}
}

func (m MultiDelegate) BluetoothStateChanged(state string) {
	for _, d := range m {
		d.BluetoothStateChanged(state)
	}
}

func (m MultiDelegate) Diagnostic(diag Diagnostic) {
	for _, d := range m {
		ReportDiagnostic(d, diag)
	}
}

// LogDelegate writes every event to the logger
type LogDelegate struct{}

func (LogDelegate) DidConnect(address, name string) {
	log.Infof("Transmitter connected: address=%s, name=%s", address, name)
}

func (LogDelegate) DidDisconnect() {
	log.Info("Transmitter disconnected")
}

func (LogDelegate) InfoReceived(info Info) {
	for _, s := range info.Samples {
		log.Infof("Reading: raw=%.0f, filtered=%.0f, at %s", s.Raw, s.Filtered, s.Timestamp.Format("15:04:05"))
	}
	if info.Battery != nil {
		log.Infof("Battery (%s): %s", info.Battery.Family(), info.Battery)
	}
	if info.FirmwareVersion != "" {
		log.Infof("Firmware version: %s", info.FirmwareVersion)
	}
}

func (LogDelegate) PairingNeeded() {
	log.Warn("Transmitter needs pairing")
}

func (LogDelegate) PairingSucceeded() {
	log.Info("Pairing succeeded")
}

func (LogDelegate) PairingFailed() {
	log.Warn("Pairing failed")
}

func (LogDelegate) ResetCompleted(success bool) {
	if success {
		log.Info("Transmitter reset succeeded")
	} else {
		log.Warn("Transmitter reset failed")
	}
}

func (LogDelegate) BluetoothStateChanged(state string) {
	log.Infof("Bluetooth state: %s", state)
}

func (LogDelegate) Diagnostic(d Diagnostic) {
	log.Debugf("Diagnostic on %s: %s (% X)", d.Role, d.Reason, d.Payload)
}
