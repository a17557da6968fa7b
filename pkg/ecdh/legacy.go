package ecdh

import "crypto/sha256"

// LegacySymmetricKey returns SHA-256 of the raw shared secret.
//
// Deprecated: this derivation ignores the algorithm, the parties and the
// key length, and older callers also reused its output as a cipher IV.
// It is kept to read data produced by such callers only. Use
// DeriveSymmetricKey for anything new.
func LegacySymmetricKey(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:]
}
