package protocol

import (
	"encoding/hex"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// LogFrame logs a raw frame in a readable format
func LogFrame(direction string, role fmt.Stringer, data []byte) {
	if len(data) == 0 {
		log.Warnf("%s frame on %s is empty", direction, role)
		return
	}
	log.Debugf("%s frame on %s: %d bytes, data=%s", direction, role, len(data), hex.EncodeToString(data))
}

// LogMessage logs a frame of the authenticated protocol with its opcode name
func LogMessage(direction string, role fmt.Stringer, data []byte) {
	if len(data) == 0 {
		log.Warnf("%s message on %s is empty", direction, role)
		return
	}

	op := Opcode(data[0])
	if !op.Known() {
		log.Warnf("%s message on %s with unknown opcode 0x%02X: %s", direction, role, data[0], hex.EncodeToString(data))
		return
	}
	log.Debugf("%s %s on %s: payload=%s", direction, op, role, hex.EncodeToString(data[1:]))
}
