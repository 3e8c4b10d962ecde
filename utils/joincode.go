package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateJoinCode mints a short shareable room code. 4 random bytes give
// 8 hex characters, plenty for the number of concurrently live rooms.
func GenerateJoinCode() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
