package handler

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/auth"
	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// Radio layout of the authenticated transmitters
const (
	AdvertisementUUID = "0000FEBC-0000-1000-8000-00805F9B34FB"
	ServiceUUID       = "F8083532-849E-531C-C594-30F1F86A4EA5"

	CommunicationCharUUID  = "F8083533-849E-531C-C594-30F1F86A4EA5"
	ControlCharUUID        = "F8083534-849E-531C-C594-30F1F86A4EA5"
	AuthenticationCharUUID = "F8083535-849E-531C-C594-30F1F86A4EA5"
	BackfillCharUUID       = "F8083536-849E-531C-C594-30F1F86A4EA5"
)

// IDLength is the length of an authenticated transmitter's identity
const IDLength = 6

func init() {
	cgm.Register("dexcomg5", func(cfg cgm.FactoryConfig) (cgm.Transmitter, error) {
		return NewTransmitter("dexcomg5", cfg, cgm.IdentityScaling)
	})
	cgm.Register("dexcomg6", func(cfg cgm.FactoryConfig) (cgm.Transmitter, error) {
		return NewTransmitter("dexcomg6", cfg, G6Scaling)
	})
}

// Transmitter is an authenticated transmitter session
type Transmitter struct {
	family   string
	session  *state.Session
	router   *Router
	delegate cgm.Delegate

	// Random source for the auth request token
	Random io.Reader
}

var _ cgm.StatusReporter = (*Transmitter)(nil)

// ValidateID checks that id can key the challenge response
func ValidateID(id string) error {
	if len(id) != IDLength {
		return fmt.Errorf("transmitter id %q must be %d characters", id, IDLength)
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return fmt.Errorf("transmitter id %q contains %q", id, c)
		}
	}
	return nil
}

// NewTransmitter creates a session for an authenticated transmitter family
func NewTransmitter(family string, cfg cgm.FactoryConfig, scale cgm.ScalingFunc) (*Transmitter, error) {
	if err := ValidateID(cfg.ID); err != nil {
		return nil, err
	}
	if cfg.Delegate == nil {
		cfg.Delegate = cgm.NoOpDelegate{}
	}
	if cfg.Clock == nil {
		cfg.Clock = cgm.SystemClock{}
	}

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = state.DefaultKeepAlive
	}
	seconds := int(keepAlive / time.Second)
	if seconds > 255 {
		seconds = 255
	}
	if seconds < 1 {
		seconds = 1
	}

	session := state.NewSession(strings.ToUpper(cfg.ID), cfg.BatteryReadInterval)
	router := NewRouter(session, cfg.Link, cfg.Delegate, cfg.Clock, RouterConfig{
		KeepAliveSeconds: uint8(seconds),
		Scale:            scale,
	})

	return &Transmitter{
		family:   family,
		session:  session,
		router:   router,
		delegate: cfg.Delegate,
		Random:   rand.Reader,
	}, nil
}

// Profile returns the radio layout
func (t *Transmitter) Profile() cgm.Profile {
	return cgm.Profile{
		Family:            t.family,
		AdvertisementUUID: AdvertisementUUID,
		ServiceUUID:       ServiceUUID,
		Characteristics: map[cgm.CharacteristicRole]string{
			cgm.RoleReceive:       AuthenticationCharUUID,
			cgm.RoleWrite:         ControlCharUUID,
			cgm.RoleCommunication: CommunicationCharUUID,
			cgm.RoleBackfill:      BackfillCharUUID,
		},
		Subscribe:    []cgm.CharacteristicRole{cgm.RoleReceive},
		ExpectedName: "DEXCOM" + t.session.ExpectedID[4:],
	}
}

// Connect starts a connection; a stale pairing flag is dropped silently
func (t *Transmitter) Connect(address, name string) {
	t.session.Begin()
	t.delegate.DidConnect(address, name)
}

// Disconnect ends a connection. A disconnect while a pairing waits for
// confirmation means the user rejected it.
func (t *Transmitter) Disconnect(err error) {
	if err != nil {
		log.Debugf("Disconnected: %v", err)
	}
	if t.session.End() {
		log.Warn("Disconnected while waiting for pairing confirmation")
		t.delegate.PairingFailed()
	}
	t.delegate.DidDisconnect()
}

func (t *Transmitter) HandleNotification(role cgm.CharacteristicRole, payload []byte) {
	if err := t.router.RouteMessage(role, payload); err != nil {
		log.Debugf("Message on %s: %v", role, err)
	}
}

// NotificationEnabled starts the handshake on Receive/Authentication and
// requests data (or the pending reset) on Write/Control
func (t *Transmitter) NotificationEnabled(role cgm.CharacteristicRole) {
	var cmd *cgm.Command

	switch role {
	case cgm.RoleReceive:
		token, err := auth.NewToken(t.Random)
		if err != nil {
			log.Errorf("Can not start authentication: %v", err)
			return
		}
		cmd = cgm.Write(cgm.RoleReceive, protocol.AuthRequestTx(token), cgm.WithResponse)
	case cgm.RoleWrite:
		if t.session.TakeResetRequest() {
			log.Info("Sending requested reset")
			cmd = cgm.Write(cgm.RoleWrite, protocol.ResetTx(), cgm.WithResponse)
		} else {
			cmd = cgm.Write(cgm.RoleWrite, protocol.SensorDataTx(), cgm.WithResponse)
		}
	default:
		log.Debugf("Notifications enabled on %s", role)
		return
	}

	if err := t.router.Send(cmd); err != nil {
		log.Errorf("Failed to send after notifications were enabled on %s: %v", role, err)
	}
}

func (t *Transmitter) BluetoothStateChanged(state string) {
	t.delegate.BluetoothStateChanged(state)
}

// RequestReset defers the reset until Write/Control notifications are next enabled
func (t *Transmitter) RequestReset() {
	log.Info("Reset requested")
	t.session.ResetRequested = true
}

// RequestPairing sends the platform pairing trigger
func (t *Transmitter) RequestPairing() {
	if err := t.router.Send(cgm.Write(cgm.RoleReceive, protocol.PairRequestTx(), cgm.WithResponse)); err != nil {
		log.Errorf("Failed to send pair request: %v", err)
	}
}

func (t *Transmitter) SetScalingOverride(scale cgm.ScalingFunc) {
	t.router.SetScaling(scale)
}

func (t *Transmitter) LastReadingTimestamp() time.Time {
	return t.session.LastReading
}

// Snapshot returns a copy of the session state
func (t *Transmitter) Snapshot() state.Snapshot {
	return t.session.Snapshot()
}

// Status reports the session snapshot and router statistics
func (t *Transmitter) Status() map[string]interface{} {
	return map[string]interface{}{
		"family":  t.family,
		"session": t.Snapshot(),
		"router":  t.router.GetStats(),
	}
}
