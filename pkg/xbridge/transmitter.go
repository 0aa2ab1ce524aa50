package xbridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/txid"

	log "github.com/sirupsen/logrus"
)

// Bridge radio layout: one characteristic carries both directions
const (
	ServiceUUID        = "0000FFE0-0000-1000-8000-00805F9B34FB"
	CharacteristicUUID = "0000FFE1-0000-1000-8000-00805F9B34FB"
)

func init() {
	cgm.Register("xbridge", New)
	cgm.Register("dexcomg4", New)
}

// Transmitter is a bridge session. It keeps no state between frames except
// the expected identity.
type Transmitter struct {
	id       string
	link     cgm.Link
	delegate cgm.Delegate
	clock    cgm.Clock
	scale    cgm.ScalingFunc

	lastReading time.Time
}

// New creates a bridge session listening for cfg.ID
func New(cfg cgm.FactoryConfig) (cgm.Transmitter, error) {
	if err := txid.Validate(cfg.ID); err != nil {
		return nil, fmt.Errorf("bridge transmitter: %w", err)
	}
	return &Transmitter{
		id:       strings.ToUpper(cfg.ID),
		link:     cfg.Link,
		delegate: cfg.Delegate,
		clock:    cfg.Clock,
		scale:    cgm.IdentityScaling,
	}, nil
}

// Profile returns the bridge radio layout
func (t *Transmitter) Profile() cgm.Profile {
	return cgm.Profile{
		Family:            "xbridge",
		AdvertisementUUID: ServiceUUID,
		ServiceUUID:       ServiceUUID,
		Characteristics: map[cgm.CharacteristicRole]string{
			cgm.RoleReceive: CharacteristicUUID,
			cgm.RoleWrite:   CharacteristicUUID,
		},
		Subscribe: []cgm.CharacteristicRole{cgm.RoleReceive},
	}
}

func (t *Transmitter) Connect(address, name string) {
	t.delegate.DidConnect(address, name)
}

func (t *Transmitter) Disconnect(err error) {
	if err != nil {
		log.Debugf("Bridge disconnected: %v", err)
	}
	t.delegate.DidDisconnect()
}

func (t *Transmitter) BluetoothStateChanged(state string) {
	t.delegate.BluetoothStateChanged(state)
}

// NotificationEnabled needs no action: the bridge starts sending on its own
func (t *Transmitter) NotificationEnabled(role cgm.CharacteristicRole) {
	log.Debugf("Bridge notifications enabled on %s", role)
}

// RequestReset is not supported by bridges
func (t *Transmitter) RequestReset() {}

// RequestPairing is not supported by bridges
func (t *Transmitter) RequestPairing() {}

func (t *Transmitter) SetScalingOverride(scale cgm.ScalingFunc) {
	if scale == nil {
		scale = cgm.IdentityScaling
	}
	t.scale = scale
}

func (t *Transmitter) LastReadingTimestamp() time.Time {
	return t.lastReading
}

// Status reports the transmitter the bridge is told to listen to
func (t *Transmitter) Status() map[string]interface{} {
	return map[string]interface{}{
		"transmitterId": t.id,
		"lastReading":   t.lastReading,
	}
}

// HandleNotification decodes one frame, checks the identity it carries and
// forwards the reading
func (t *Transmitter) HandleNotification(role cgm.CharacteristicRole, payload []byte) {
	protocol.LogFrame("RX", role, payload)

	frame, err := Decode(payload, t.clock.Now())
	if err != nil {
		log.Debugf("Dropping bridge frame: %v", err)
		cgm.ReportDiagnostic(t.delegate, cgm.Diagnostic{Role: role, Reason: err.Error(), Payload: payload})
		return
	}

	log.Debugf("Bridge %s frame, declared length %d", frame.Kind, frame.DeclaredLength)

	if frame.Identity != nil && *frame.Identity != t.id {
		log.Infof("Bridge reports transmitter %s, sending %s", *frame.Identity, t.id)
		t.write(CorrectionFrame(t.id))
		return
	}

	if frame.Kind == KindData {
		t.write(AckFrame)
	}

	if !frame.HasValue {
		return
	}

	var sample cgm.GlucoseSample
	if frame.Kind == KindLegacy {
		sample = cgm.NewSample(frame.ReceivedAt, t.scale("", float64(frame.Raw)))
	} else {
		sample = cgm.GlucoseSample{
			Timestamp: frame.ReceivedAt,
			Raw:       t.scale("", float64(frame.Raw)),
			Filtered:  t.scale("", float64(frame.Filtered)),
		}
	}
	info := cgm.Info{Samples: []cgm.GlucoseSample{sample}}
	if frame.Battery != nil {
		info.Battery = cgm.G4Battery{Level: *frame.Battery}
	}

	t.lastReading = frame.ReceivedAt
	t.delegate.InfoReceived(info)
}

func (t *Transmitter) write(data []byte) {
	protocol.LogFrame("TX", cgm.RoleWrite, data)
	if err := t.link.Write(cgm.RoleWrite, data, cgm.WithoutResponse); err != nil {
		log.Errorf("Failed to write to bridge: %v", err)
	}
}
