package handler

import (
	"fmt"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/protocol"
	"github.com/jwoglom/cgmbridge/pkg/state"
)

// BatteryStatusHandler handles BatteryStatusRx messages
type BatteryStatusHandler struct{}

// NewBatteryStatusHandler creates a new battery status handler
func NewBatteryStatusHandler() *BatteryStatusHandler {
	return &BatteryStatusHandler{}
}

// Opcode returns the opcode this handler processes
func (h *BatteryStatusHandler) Opcode() protocol.Opcode {
	return protocol.OpBatteryStatusRx
}

// HandleMessage reports the battery status without a glucose sample
func (h *BatteryStatusHandler) HandleMessage(msg *protocol.Message, session *state.Session, now time.Time) (*Response, error) {
	b, ok := msg.Payload.(*protocol.BatteryStatusRxMessage)
	if !ok {
		return nil, fmt.Errorf("no valid BatteryStatusRx payload")
	}

	return &Response{
		Info: &cgm.Info{
			Battery: cgm.G5Battery{
				Status:      b.Status,
				VoltageA:    int(b.VoltageA),
				VoltageB:    int(b.VoltageB),
				Resist:      int(b.Resist),
				Runtime:     int(b.Runtime),
				Temperature: int(b.Temperature),
			},
		},
	}, nil
}
