/*
Package sign implements the digest used by the history clock and the blocks,
and the key material nodes use to name themselves and sign transactions.
*/
package sign

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// HashSize is the size of a digest in bytes.
const HashSize = sha256.Size

// Hash is a SHA-256 digest. It is encoded as a hex string in text formats.
type Hash [HashSize]byte

// Zero is the all-zero digest that seeds the history clock and the genesis parent.
var Zero Hash

// Sum hashes the concatenation of parts.
func Sum(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Uint64BE returns the big-endian bytes of v.
func Uint64BE(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func (h Hash) IsZero() bool {
	return h == Zero
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, for logs.
func (h Hash) Short() string {
	return h.String()[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != HashSize {
		return fmt.Errorf("hash must be %d hex characters, got %d", 2*HashSize, len(text))
	}
	_, err := hex.Decode(h[:], text)
	return err
}
