package token

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// New returns a fresh random verification token (UUIDv4 string).
func New() string {
	return uuid.NewString()
}

// Hash returns the hex BLAKE2b-256 digest of a token. Tokens are stored and
// looked up by this digest only.
func Hash(tok string) string {
	sum := blake2b.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
