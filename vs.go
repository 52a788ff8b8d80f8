package vs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

type (
	// Blob is the type of a blob.
	Blob []byte

	// Key is the key of a blob: its sha256 hash.
	Key [sha256.Size]byte
)

// Key computes the Key of a blob.
func (b Blob) Key() Key {
	return sha256.Sum256(b)
}

// Zero is the zero value of a Key.
var Zero Key

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Less tells whether k sorts before other.
func (k Key) Less(other Key) bool {
	return bytes.Compare(k[:], other[:]) < 0
}

// IsZero tells whether k is the zero Key.
func (k Key) IsZero() bool {
	return k == Zero
}

// FromHex parses the hex string s into k.
func (k *Key) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length")
	}
	_, err := hex.Decode(k[:], []byte(s))
	return err
}

// KeyFromBytes copies b into a Key.
func KeyFromBytes(b []byte) Key {
	var out Key
	copy(out[:], b)
	return out
}

// KeyFromHex parses a hex string into a Key.
func KeyFromHex(s string) (Key, error) {
	var out Key
	err := out.FromHex(s)
	return out, err
}

// KeyPtr returns a pointer to a copy of k.
func KeyPtr(k Key) *Key {
	return &k
}

// SameKey tells whether two optional keys are equal.
// Two nil keys are the same.
func SameKey(a, b *Key) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
