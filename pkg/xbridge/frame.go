// Package xbridge implements the unauthenticated bridge protocol: one
// notification per reading, either as a typed packet or as legacy text.
package xbridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jwoglom/cgmbridge/pkg/txid"
)

// Packet type byte at offset 1
const (
	TypeData   byte = 0x00
	TypeBeacon byte = 0xF1
)

const (
	minFrameLength  = 2
	minDataLength   = 10
	beaconLength    = 7
	batteryOffset   = 10
	identityOffset  = 12
	identityMinSize = identityOffset + 4
)

// ErrMalformed is returned for frames that cannot be decoded
var ErrMalformed = errors.New("malformed bridge frame")

// AckFrame tells the bridge it may go back to sleep
var AckFrame = []byte{0x02, 0xF0}

// FrameKind says which framing variant a frame used
type FrameKind int

const (
	KindData FrameKind = iota
	KindBeacon
	KindLegacy
)

func (k FrameKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindBeacon:
		return "beacon"
	case KindLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// Frame is one decoded bridge notification. Optional fields are nil when
// the frame did not carry them.
type Frame struct {
	Kind           FrameKind
	DeclaredLength byte

	// Filtered is zero for legacy text frames, which only carry a raw value
	Raw      uint32
	Filtered uint32
	HasValue bool

	Battery  *int
	Identity *string

	ReceivedAt time.Time
}

// Decode classifies and decodes one notification received at now
func Decode(buf []byte, now time.Time) (*Frame, error) {
	if len(buf) < minFrameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}

	switch buf[1] {
	case TypeData:
		return decodeData(buf, now)
	case TypeBeacon:
		return decodeBeacon(buf, now)
	default:
		return decodeLegacy(buf, now)
	}
}

func decodeData(buf []byte, now time.Time) (*Frame, error) {
	if len(buf) < minDataLength {
		return nil, fmt.Errorf("%w: data packet has %d bytes, need %d", ErrMalformed, len(buf), minDataLength)
	}

	f := &Frame{
		Kind:           KindData,
		DeclaredLength: buf[0],
		Raw:            binary.LittleEndian.Uint32(buf[2:6]),
		Filtered:       binary.LittleEndian.Uint32(buf[6:10]),
		HasValue:       true,
		ReceivedAt:     now,
	}

	if len(buf) > batteryOffset {
		level := int(buf[batteryOffset])
		f.Battery = &level
	}
	if len(buf) >= identityMinSize {
		id := txid.Decode(binary.LittleEndian.Uint32(buf[identityOffset:identityMinSize]))
		f.Identity = &id
	}
	return f, nil
}

func decodeBeacon(buf []byte, now time.Time) (*Frame, error) {
	if buf[0] != beaconLength {
		return nil, fmt.Errorf("%w: beacon declares length %d, want %d", ErrMalformed, buf[0], beaconLength)
	}
	id, err := txid.DecodeBytes(buf[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Frame{
		Kind:           KindBeacon,
		DeclaredLength: buf[0],
		Identity:       &id,
		ReceivedAt:     now,
	}, nil
}

// decodeLegacy parses "<raw> <battery> <bridge battery>" text frames
func decodeLegacy(buf []byte, now time.Time) (*Frame, error) {
	if !utf8.Valid(buf) {
		return nil, fmt.Errorf("%w: legacy frame is not text", ErrMalformed)
	}

	text := strings.TrimRight(string(buf), "\x00\r\n")
	fields := strings.Split(text, " ")
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: legacy frame %q has no separator", ErrMalformed, text)
	}

	raw, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: legacy raw value %q: %v", ErrMalformed, fields[0], err)
	}

	f := &Frame{
		Kind:           KindLegacy,
		DeclaredLength: buf[0],
		Raw:            uint32(raw),
		HasValue:       true,
		ReceivedAt:     now,
	}
	if level, err := strconv.Atoi(fields[1]); err == nil {
		f.Battery = &level
	}
	return f, nil
}

// CorrectionFrame builds the frame that tells a bridge which transmitter to listen to
func CorrectionFrame(expected string) []byte {
	enc := txid.Encode(expected)
	return append([]byte{0x06, 0x01}, enc[:]...)
}
