package rps

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// NonceSize is the required length of the secret committed alongside a move.
const NonceSize = 32

// CommitmentSize is the length of a stored commitment (sha256 output).
const CommitmentSize = sha256.Size

// Commitment binds (move, nonce, identity) before any move is revealed:
//
//	commitment = sha256(moveByte || nonce[32] || identityBytes)
//
// The layout is fixed; clients reproduce it bit-exact when committing.
func Commitment(move Move, nonce []byte, identity string) ([]byte, error) {
	if !move.Valid() {
		return nil, fmt.Errorf("commitment: invalid move %d", uint8(move))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("commitment: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	if identity == "" {
		return nil, fmt.Errorf("commitment: empty identity")
	}
	buf := make([]byte, 0, 1+NonceSize+len(identity))
	buf = append(buf, byte(move))
	buf = append(buf, nonce...)
	buf = append(buf, []byte(identity)...)
	sum := sha256.Sum256(buf)
	return sum[:], nil
}

// VerifyCommitment recomputes the binding and compares it to the stored hash.
func VerifyCommitment(stored []byte, move Move, nonce []byte, identity string) (bool, error) {
	want, err := Commitment(move, nonce, identity)
	if err != nil {
		return false, err
	}
	return bytes.Equal(stored, want), nil
}
