package protocol

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC16 computes CRC-16/XMODEM (poly 0x1021, init 0) over data
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// AppendCRC appends the little-endian CRC of data to data
func AppendCRC(data []byte) []byte {
	return binary.LittleEndian.AppendUint16(data, CRC16(data))
}

// CheckCRC returns true if the last two bytes of data are the CRC of the rest
func CheckCRC(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	n := len(data) - 2
	return binary.LittleEndian.Uint16(data[n:]) == CRC16(data[:n])
}
