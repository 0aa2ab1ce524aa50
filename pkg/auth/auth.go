// Package auth computes the challenge response used by authenticated transmitters.
package auth

import (
	"crypto/aes"
	"errors"
	"fmt"
	"io"
)

const (
	// ChallengeLength is the size of the challenge and of the response
	ChallengeLength = 8

	keyLength = 16
)

var (
	// ErrChallengeLength is returned for challenges that are not 8 bytes
	ErrChallengeLength = errors.New("challenge must be 8 bytes")

	// ErrKeyLength is returned when the identity does not yield an AES-128 key
	ErrKeyLength = errors.New("transmitter id does not yield a 16 byte key")
)

// CryptKey derives the AES key for id: "00" + id + "00" + id
func CryptKey(id string) ([]byte, error) {
	key := []byte("00" + id + "00" + id)
	if len(key) != keyLength {
		return nil, fmt.Errorf("%w: id %q gives %d bytes", ErrKeyLength, id, len(key))
	}
	return key, nil
}

// ComputeResponse encrypts the challenge twice over with the key derived from
// id and returns the first 8 bytes of the cipher text
func ComputeResponse(id string, challenge []byte) ([]byte, error) {
	if len(challenge) != ChallengeLength {
		return nil, fmt.Errorf("%w: got %d", ErrChallengeLength, len(challenge))
	}

	key, err := CryptKey(id)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plain := make([]byte, 0, aes.BlockSize)
	plain = append(plain, challenge...)
	plain = append(plain, challenge...)

	out := make([]byte, aes.BlockSize)
	block.Encrypt(out, plain)
	return out[:ChallengeLength], nil
}

// NewToken reads a single use token for AuthRequestTx from r
func NewToken(r io.Reader) ([8]byte, error) {
	var token [8]byte
	if _, err := io.ReadFull(r, token[:]); err != nil {
		return token, fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}
