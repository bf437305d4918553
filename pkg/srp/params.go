// Package srp provides the SRP6 group parameters, byte-oriented big integer
// helpers, and a reference client for the realm authentication handshake.
//
// The group is the fixed 256-bit one used by the game client: g = 7, k = 3
// and the prime N below. All values on the wire are 32-byte big-endian
// buffers; session keys are 40 bytes.
package srp

import (
	"crypto/sha1" //nolint:gosec // SHA1 is mandated by the wire protocol
	"encoding/hex"
)

// Protocol sizes.
const (
	// SaltLength is the length of an account salt.
	SaltLength = 32

	// VerifierLength is the length of a password verifier.
	VerifierLength = 32

	// EphemeralKeyLength is the length of A, B and the shared secret S.
	EphemeralKeyLength = 32

	// DigestLength is the SHA1 digest length.
	DigestLength = sha1.Size

	// SessionKeyLength is the length of the interleaved session key K.
	SessionKeyLength = 2 * DigestLength
)

// Group parameters. These MUST match the client exactly.
var (
	// N is the 256-bit safe prime, big-endian.
	N = mustDecodeHex("894B645E89E1535BBDAD5B8B290650530801B18EBFBF5E8FAB3C82872A3E9BB7")

	// G is the generator.
	G = []byte{7}

	// K is the SRP6 multiplier.
	K = []byte{3}
)

// ngHash is SHA1(N) XOR SHA1(g), computed once.
var ngHash = computeNgHash()

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func computeNgHash() [DigestLength]byte {
	hashN := sha1.Sum(N) //nolint:gosec // protocol hash
	hashG := sha1.Sum(G) //nolint:gosec // protocol hash

	var out [DigestLength]byte
	for i := range out {
		out[i] = hashN[i] ^ hashG[i]
	}
	return out
}

// NgHash returns SHA1(N) XOR SHA1(g).
func NgHash() [DigestLength]byte {
	return ngHash
}
