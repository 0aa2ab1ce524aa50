package handler

import (
	"fmt"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
)

// TransmitterVersionHandler handles TransmitterVersionRx messages
type TransmitterVersionHandler struct{}

// NewTransmitterVersionHandler creates a new transmitter version handler
func NewTransmitterVersionHandler() *TransmitterVersionHandler {
	return &TransmitterVersionHandler{}
}

// Opcode returns the opcode this handler processes
func (h *TransmitterVersionHandler) Opcode() protocol.Opcode {
	return protocol.OpTransmitterVersionRx
}

// HandleMessage stores the firmware version and reports it
func (h *TransmitterVersionHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	v, ok := msg.Payload.(*protocol.TransmitterVersionRxMessage)
	if !ok {
		return nil, fmt.Errorf("no valid TransmitterVersionRx payload")
	}

	firmware := v.Firmware()
	log.Infof("Transmitter firmware version: %s", firmware)
	session.FirmwareVersion = firmware

	return &Response{
		Info: &cgm.Info{FirmwareVersion: firmware},
	}, nil
}
