package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewIdentity generates a fresh opaque caller identity: 32 random bytes,
// hex-encoded. Identities are issued once per handshake and never parsed —
// the data layer treats them as opaque unique keys.
func NewIdentity() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity generation: %w", err)
	}
	return hex.EncodeToString(b), nil
}
