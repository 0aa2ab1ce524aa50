package handler

import (
	"fmt"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// SensorDataHandler handles SensorDataRx messages
type SensorDataHandler struct {
	scale cgm.ScalingFunc
}

// NewSensorDataHandler creates a new sensor data handler
func NewSensorDataHandler(scale cgm.ScalingFunc) *SensorDataHandler {
	h := &SensorDataHandler{}
	h.SetScaling(scale)
	return h
}

// SetScaling replaces the scaling strategy; nil restores the identity
func (h *SensorDataHandler) SetScaling(scale cgm.ScalingFunc) {
	if scale == nil {
		scale = cgm.IdentityScaling
	}
	h.scale = scale
}

// Opcode returns the opcode this handler processes
func (h *SensorDataHandler) Opcode() protocol.Opcode {
	return protocol.OpSensorDataRx
}

// HandleMessage confirms a pending pairing, decides the follow-up request and
// accepts the reading unless a timing guard applies
func (h *SensorDataHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	response := &Response{}

	// Any sensor data after a pair request means the user accepted it
	if session.ConfirmPairing() {
		log.Info("Pairing confirmed by sensor data")
		response.Signals = append(response.Signals, SignalPairingSucceeded)
	}

	data, ok := msg.Payload.(*protocol.SensorDataRxMessage)
	if !ok {
		return response, fmt.Errorf("no valid SensorDataRx payload")
	}

	log.Debugf("Sensor data: status=%d, timestamp=%d, unfiltered=%d, filtered=%d",
		data.Status, data.Timestamp, data.Unfiltered, data.Filtered)

	// Version must be known before battery polling starts
	switch {
	case session.FirmwareVersion == "":
		response.Command = cgm.Write(cgm.RoleWrite, protocol.TransmitterVersionTx(), cgm.WithResponse)
	case session.BatteryReadDue(now):
		log.Info("Last battery reading is too old, requesting battery status")
		response.Command = cgm.Write(cgm.RoleWrite, protocol.BatteryStatusTx(), cgm.WithResponse)
		session.LastBatteryRead = now
	default:
		response.Command = cgm.Disconnect()
	}

	switch {
	case session.WithinResetGuard(now):
		log.Infof("Last reset was less than %v ago, ignoring reading", state.ResetGuard)
	case session.WithinReadingGuard(now):
		log.Infof("Last reading was less than %v ago, ignoring reading", state.ReadingGuard)
	default:
		session.LastReading = now
		sample := cgm.GlucoseSample{
			Timestamp: now,
			Raw:       h.scale(session.FirmwareVersion, float64(data.Unfiltered)),
			Filtered:  h.scale(session.FirmwareVersion, float64(data.Filtered)),
		}
		response.Info = &cgm.Info{Samples: []cgm.GlucoseSample{sample}}
		response.PhaseEvent = state.EventReading
	}

	return response, nil
}
