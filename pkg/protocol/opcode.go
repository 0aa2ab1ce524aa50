package protocol

import "fmt"

// Opcode is the first byte of every message on the authenticated transmitter
type Opcode byte

const (
	OpAuthRequestTx        Opcode = 0x01
	OpAuthRequestRx        Opcode = 0x03
	OpAuthChallengeTx      Opcode = 0x04
	OpAuthChallengeRx      Opcode = 0x05
	OpKeepAlive            Opcode = 0x06
	OpPairRequestTx        Opcode = 0x07
	OpPairRequestRx        Opcode = 0x08
	OpBatteryStatusTx      Opcode = 0x22
	OpBatteryStatusRx      Opcode = 0x23
	OpSensorDataTx         Opcode = 0x2E
	OpSensorDataRx         Opcode = 0x2F
	OpResetTx              Opcode = 0x42
	OpResetRx              Opcode = 0x43
	OpTransmitterVersionTx Opcode = 0x4A
	OpTransmitterVersionRx Opcode = 0x4B
)

var opcodeNames = map[Opcode]string{
	OpAuthRequestTx:        "AuthRequestTx",
	OpAuthRequestRx:        "AuthRequestRx",
	OpAuthChallengeTx:      "AuthChallengeTx",
	OpAuthChallengeRx:      "AuthChallengeRx",
	OpKeepAlive:            "KeepAlive",
	OpPairRequestTx:        "PairRequestTx",
	OpPairRequestRx:        "PairRequestRx",
	OpBatteryStatusTx:      "BatteryStatusTx",
	OpBatteryStatusRx:      "BatteryStatusRx",
	OpSensorDataTx:         "SensorDataTx",
	OpSensorDataRx:         "SensorDataRx",
	OpResetTx:              "ResetTx",
	OpResetRx:              "ResetRx",
	OpTransmitterVersionTx: "TransmitterVersionTx",
	OpTransmitterVersionRx: "TransmitterVersionRx",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", byte(o))
}

// Known returns true if o is part of the opcode register
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}
