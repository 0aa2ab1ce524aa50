package protocol

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned by Parse for a zero length frame
var ErrEmptyMessage = errors.New("empty message")

// Message is one inbound frame. Payload holds the decoded *...RxMessage, or
// nil when the opcode is unknown or its payload failed validation.
type Message struct {
	Opcode  Opcode
	Payload interface{}
	Unknown bool
	Raw     []byte
}

type decoder func([]byte) (interface{}, error)

var decoders = map[Opcode]decoder{
	OpAuthRequestRx:        func(b []byte) (interface{}, error) { return DecodeAuthRequestRx(b) },
	OpAuthChallengeRx:      func(b []byte) (interface{}, error) { return DecodeAuthChallengeRx(b) },
	OpKeepAlive:            func(b []byte) (interface{}, error) { return DecodeKeepAliveRx(b) },
	OpPairRequestRx:        func(b []byte) (interface{}, error) { return DecodePairRequestRx(b) },
	OpBatteryStatusRx:      func(b []byte) (interface{}, error) { return DecodeBatteryStatusRx(b) },
	OpSensorDataRx:         func(b []byte) (interface{}, error) { return DecodeSensorDataRx(b) },
	OpResetRx:              func(b []byte) (interface{}, error) { return DecodeResetRx(b) },
	OpTransmitterVersionRx: func(b []byte) (interface{}, error) { return DecodeTransmitterVersionRx(b) },
}

// Parse classifies an inbound frame by opcode and decodes it. A known opcode
// with an invalid payload returns the message with a nil Payload together
// with the decode error, so the caller still knows which opcode arrived.
func Parse(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}

	msg := &Message{Opcode: Opcode(data[0]), Raw: data}

	decode, ok := decoders[msg.Opcode]
	if !ok {
		msg.Unknown = true
		return msg, nil
	}

	payload, err := decode(data)
	if err != nil {
		return msg, fmt.Errorf("failed to decode %s: %w", msg.Opcode, err)
	}
	msg.Payload = payload
	return msg, nil
}
