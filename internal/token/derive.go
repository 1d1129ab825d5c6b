// Package token derives deterministic on-chain token identifiers for
// achievements. The mapping is recomputable, never stored: the same
// (appID, achievementID) pair always yields the same 256-bit id, across
// processes and over time, which is what makes remint detection idempotent.
package token

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Derive maps (appID, achievementID) to a stable 256-bit token id: the SHA-256
// digest of the app id as a 32-bit big-endian integer followed by the
// achievement's internal name as UTF-8 bytes, read as a big-endian unsigned
// integer.
func Derive(appID uint32, achievementID string) *big.Int {
	buf := make([]byte, 4+len(achievementID))
	binary.BigEndian.PutUint32(buf, appID)
	copy(buf[4:], achievementID)

	sum := sha256.Sum256(buf)
	return new(big.Int).SetBytes(sum[:])
}

// DeriveHex returns the token id as a 0x-prefixed, zero-padded 64-digit hex
// string, the form used in chain RPC calls and log topic comparisons.
func DeriveHex(appID uint32, achievementID string) string {
	return fmt.Sprintf("0x%064x", Derive(appID, achievementID))
}
