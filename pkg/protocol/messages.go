package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortMessage is returned when a message is shorter than its opcode requires
	ErrShortMessage = errors.New("message too short")

	// ErrBadCRC is returned when a message's trailing CRC does not match
	ErrBadCRC = errors.New("message crc mismatch")

	// ErrWrongOpcode is returned when a decoder is handed another opcode's message
	ErrWrongOpcode = errors.New("unexpected opcode")
)

// notPairedFlag in the third byte of AuthChallengeRx means no bond exists
const notPairedFlag = 0x03

func checkHeader(data []byte, op Opcode, min int) error {
	if len(data) == 0 {
		return fmt.Errorf("%s: %w: empty", op, ErrShortMessage)
	}
	if Opcode(data[0]) != op {
		return fmt.Errorf("%s: %w: got %s", op, ErrWrongOpcode, Opcode(data[0]))
	}
	if len(data) < min {
		return fmt.Errorf("%s: %w: %d bytes, need %d", op, ErrShortMessage, len(data), min)
	}
	return nil
}

// --- Outbound ---

// AuthRequestTx starts the handshake with a single use token
func AuthRequestTx(token [8]byte) []byte {
	out := make([]byte, 0, 10)
	out = append(out, byte(OpAuthRequestTx))
	out = append(out, token[:]...)
	return append(out, 0x02)
}

// AuthChallengeTx answers the transmitter's challenge with the computed hash
func AuthChallengeTx(hash []byte) []byte {
	return append([]byte{byte(OpAuthChallengeTx)}, hash...)
}

// KeepAliveTx asks the transmitter to hold the connection for seconds
func KeepAliveTx(seconds uint8) []byte {
	return []byte{byte(OpKeepAlive), seconds}
}

// PairRequestTx triggers the platform pairing dialog
func PairRequestTx() []byte {
	return []byte{byte(OpPairRequestTx)}
}

// BatteryStatusTx requests a BatteryStatusRx
func BatteryStatusTx() []byte {
	return AppendCRC([]byte{byte(OpBatteryStatusTx)})
}

// SensorDataTx requests a SensorDataRx
func SensorDataTx() []byte {
	return AppendCRC([]byte{byte(OpSensorDataTx)})
}

// ResetTx asks the transmitter to reset
func ResetTx() []byte {
	return AppendCRC([]byte{byte(OpResetTx)})
}

// TransmitterVersionTx requests a TransmitterVersionRx
func TransmitterVersionTx() []byte {
	return AppendCRC([]byte{byte(OpTransmitterVersionTx)})
}

// --- Inbound ---

// AuthRequestRxMessage carries the transmitter's challenge
type AuthRequestRxMessage struct {
	TokenHash [8]byte
	Challenge [8]byte
}

// DecodeAuthRequestRx decodes `03 tokenHash[8] challenge[8]`
func DecodeAuthRequestRx(data []byte) (*AuthRequestRxMessage, error) {
	if err := checkHeader(data, OpAuthRequestRx, 17); err != nil {
		return nil, err
	}
	m := &AuthRequestRxMessage{}
	copy(m.TokenHash[:], data[1:9])
	copy(m.Challenge[:], data[9:17])
	return m, nil
}

// AuthChallengeRxMessage reports the outcome of the handshake
type AuthChallengeRxMessage struct {
	Authenticated bool
	Paired        bool
}

// DecodeAuthChallengeRx decodes `05 authenticated paired`
func DecodeAuthChallengeRx(data []byte) (*AuthChallengeRxMessage, error) {
	if err := checkHeader(data, OpAuthChallengeRx, 3); err != nil {
		return nil, err
	}
	return &AuthChallengeRxMessage{
		Authenticated: data[1] == 0x01,
		Paired:        data[2] != notPairedFlag,
	}, nil
}

// KeepAliveRxMessage is informational
type KeepAliveRxMessage struct{}

// DecodeKeepAliveRx accepts any message starting with the keep alive opcode
func DecodeKeepAliveRx(data []byte) (*KeepAliveRxMessage, error) {
	if err := checkHeader(data, OpKeepAlive, 1); err != nil {
		return nil, err
	}
	return &KeepAliveRxMessage{}, nil
}

// PairRequestRxMessage says the pairing dialog was shown
type PairRequestRxMessage struct{}

// DecodePairRequestRx accepts any message starting with the pair request opcode
func DecodePairRequestRx(data []byte) (*PairRequestRxMessage, error) {
	if err := checkHeader(data, OpPairRequestRx, 1); err != nil {
		return nil, err
	}
	return &PairRequestRxMessage{}, nil
}

// BatteryStatusRxMessage is the transmitter battery report. Resist is only
// present in the 12 byte form.
type BatteryStatusRxMessage struct {
	Status      uint8
	VoltageA    uint16
	VoltageB    uint16
	Resist      uint16
	HasResist   bool
	Runtime     uint8
	Temperature int8
}

// DecodeBatteryStatusRx decodes the 10 or 12 byte battery report
func DecodeBatteryStatusRx(data []byte) (*BatteryStatusRxMessage, error) {
	if err := checkHeader(data, OpBatteryStatusRx, 10); err != nil {
		return nil, err
	}
	if len(data) != 10 && len(data) != 12 {
		return nil, fmt.Errorf("%s: %w: %d bytes, want 10 or 12", OpBatteryStatusRx, ErrShortMessage, len(data))
	}
	if !CheckCRC(data) {
		return nil, fmt.Errorf("%s: %w", OpBatteryStatusRx, ErrBadCRC)
	}

	m := &BatteryStatusRxMessage{
		Status:   data[1],
		VoltageA: binary.LittleEndian.Uint16(data[2:4]),
		VoltageB: binary.LittleEndian.Uint16(data[4:6]),
	}
	if len(data) == 12 {
		m.Resist = binary.LittleEndian.Uint16(data[6:8])
		m.HasResist = true
		m.Runtime = data[8]
		m.Temperature = int8(data[9])
	} else {
		m.Runtime = data[6]
		m.Temperature = int8(data[7])
	}
	return m, nil
}

// SensorDataRxMessage is one reading
type SensorDataRxMessage struct {
	Status     uint8
	Timestamp  uint32
	Unfiltered uint32
	Filtered   uint32
}

// DecodeSensorDataRx decodes `2F status ts unfiltered filtered crc`
func DecodeSensorDataRx(data []byte) (*SensorDataRxMessage, error) {
	if err := checkHeader(data, OpSensorDataRx, 16); err != nil {
		return nil, err
	}
	if !CheckCRC(data[:16]) {
		return nil, fmt.Errorf("%s: %w", OpSensorDataRx, ErrBadCRC)
	}
	return &SensorDataRxMessage{
		Status:     data[1],
		Timestamp:  binary.LittleEndian.Uint32(data[2:6]),
		Unfiltered: binary.LittleEndian.Uint32(data[6:10]),
		Filtered:   binary.LittleEndian.Uint32(data[10:14]),
	}, nil
}

// ResetRxMessage reports whether a reset was accepted; zero means success
type ResetRxMessage struct {
	Status uint8
}

// DecodeResetRx decodes `43 status`
func DecodeResetRx(data []byte) (*ResetRxMessage, error) {
	if err := checkHeader(data, OpResetRx, 2); err != nil {
		return nil, err
	}
	return &ResetRxMessage{Status: data[1]}, nil
}

// TransmitterVersionRxMessage carries the firmware version
type TransmitterVersionRxMessage struct {
	Status          uint8
	FirmwareVersion [4]byte
}

// Firmware renders the version as dotted decimal, e.g. "1.6.5.25"
func (m *TransmitterVersionRxMessage) Firmware() string {
	v := m.FirmwareVersion
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// DecodeTransmitterVersionRx decodes `4B status fw[4] ...`
func DecodeTransmitterVersionRx(data []byte) (*TransmitterVersionRxMessage, error) {
	if err := checkHeader(data, OpTransmitterVersionRx, 6); err != nil {
		return nil, err
	}
	m := &TransmitterVersionRxMessage{Status: data[1]}
	copy(m.FirmwareVersion[:], data[2:6])
	return m, nil
}
