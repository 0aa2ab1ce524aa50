// Package txid converts 5-character transmitter identifiers to and from the
// packed integer form used on the wire by bridge transmitters.
package txid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Length is the number of characters in a transmitter identifier
const Length = 5

// alphabet holds the 32 symbols an identifier may use. I, O, V and Z are left
// out because they are easily confused with other characters.
const alphabet = "0123456789ABCDEFGHJKLMNPQRSTUWXY"

// ErrInvalid is returned by Validate for identifiers that cannot be encoded faithfully
var ErrInvalid = errors.New("invalid transmitter id")

var shifts = [Length]uint{20, 15, 10, 5, 0}

// Lookup returns the 5-bit index of c in the alphabet.
// Characters outside the alphabet map to 0.
func Lookup(c byte) uint32 {
	idx := strings.IndexByte(alphabet, c)
	if idx < 0 {
		return 0
	}
	return uint32(idx)
}

// EncodeUint32 packs id into the low 25 bits of a 32-bit value
func EncodeUint32(id string) uint32 {
	id = strings.ToUpper(id)

	var v uint32
	for i := 0; i < Length && i < len(id); i++ {
		v |= Lookup(id[i]) << shifts[i]
	}
	return v
}

// Encode returns the little-endian wire form of id
func Encode(id string) [4]byte {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], EncodeUint32(id))
	return out
}

// Decode unpacks a wire value into a 5-character identifier. It never fails:
// each field is masked to 5 bits.
func Decode(v uint32) string {
	var sb strings.Builder
	sb.Grow(Length)
	for _, shift := range shifts {
		sb.WriteByte(alphabet[(v>>shift)&0x1F])
	}
	return sb.String()
}

// DecodeBytes decodes the little-endian 32-bit value at the start of b
func DecodeBytes(b []byte) (string, error) {
	if len(b) < 4 {
		return "", fmt.Errorf("need 4 bytes to decode transmitter id, got %d", len(b))
	}
	return Decode(binary.LittleEndian.Uint32(b)), nil
}

// Validate checks that id has the right length and only uses alphabet symbols
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("%w: %q has length %d, want %d", ErrInvalid, id, len(id), Length)
	}
	upper := strings.ToUpper(id)
	for i := 0; i < len(upper); i++ {
		if strings.IndexByte(alphabet, upper[i]) < 0 {
			return fmt.Errorf("%w: %q contains %q", ErrInvalid, id, upper[i])
		}
	}
	return nil
}
