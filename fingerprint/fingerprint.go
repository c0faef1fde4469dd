// Package fingerprint identifies weight sequences.
//
// Two sequences have the same fingerprint exactly when they have the same
// length and the same weights in the same order, regardless of the integer
// type holding them, up to the collision resistance of SHA3-256.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/sha3"
	"golang.org/x/exp/constraints"
)

// Size is the size of a fingerprint in bytes.
const Size = 32

var (
	// ErrShortHash is an error returned when scanning a fingerprint that is
	// too short.
	ErrShortHash = errors.New("short fingerprint")
	// ErrHashType is an error returned when scanning a fingerprint from a type
	// that cannot be handled.
	ErrHashType = errors.New("bad type for fingerprint")
)

// Hash is the fingerprint of a weight sequence.
type Hash [Size]byte

// Of computes the fingerprint of a weight sequence.
func Of[P constraints.Unsigned](weights []P) Hash {
	h := sha3.New256()
	b := make([]byte, 8, 8*(len(weights)+1))
	binary.LittleEndian.PutUint64(b, uint64(len(weights)))
	for _, w := range weights {
		b = binary.LittleEndian.AppendUint64(b, uint64(w))
	}
	h.Write(b)
	var r Hash
	h.Sum(r[:0])
	return r
}

// String formats the fingerprint as hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Scan implements sql.Scanner.
func (h *Hash) Scan(src any) error {
	switch src := src.(type) {
	case []byte:
		n := copy(h[:], src)
		if n != Size {
			return ErrShortHash
		}
	default:
		return ErrHashType
	}
	return nil
}
