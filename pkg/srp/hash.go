package srp

import (
	"crypto/sha1" //nolint:gosec // SHA1 is mandated by the wire protocol
)

// Hash returns SHA1 over the concatenation of parts.
func Hash(parts ...[]byte) [DigestLength]byte {
	h := sha1.New() //nolint:gosec // protocol hash
	for _, p := range parts {
		h.Write(p)
	}

	var out [DigestLength]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SHA1Interleave derives the 40-byte session key from the shared secret S.
//
// Leading zero bytes of S are skipped, rounding the skip up to an even count.
// The remaining bytes are split by even and odd position, each half is hashed,
// and the two digests are interleaved byte by byte.
func SHA1Interleave(s []byte) [SessionKeyLength]byte {
	p := 0
	for p < len(s) && s[p] == 0 {
		p++
	}
	if p&1 == 1 {
		p++
	}
	if p > len(s) {
		p = len(s)
	}

	t := s[p:]
	half := len(t) / 2
	even := make([]byte, half)
	odd := make([]byte, half)
	for i := range half {
		even[i] = t[2*i]
		odd[i] = t[2*i+1]
	}

	hash0 := Hash(even)
	hash1 := Hash(odd)

	var key [SessionKeyLength]byte
	for i := range DigestLength {
		key[2*i] = hash0[i]
		key[2*i+1] = hash1[i]
	}
	return key
}

// DerivePrivateKey computes x = SHA1(salt | SHA1(username ":" password)).
// Both credentials must already be uppercase.
func DerivePrivateKey(username, password string, salt []byte) []byte {
	inner := Hash([]byte(username), []byte(":"), []byte(password))
	x := Hash(salt, inner[:])
	return x[:]
}

// ComputeVerifier computes v = g^x mod N as a 32-byte big-endian buffer.
func ComputeVerifier(username, password string, salt []byte) [VerifierLength]byte {
	x := DerivePrivateKey(username, password, salt)

	var v [VerifierLength]byte
	copy(v[:], ToFixedWidthBytes(ModPow(G, x, N), VerifierLength))
	return v
}

// IdentityHash computes I = SHA1(username).
func IdentityHash(username string) [DigestLength]byte {
	return Hash([]byte(username))
}

// ScramblingParameter computes u = SHA1(A | B).
func ScramblingParameter(a, b []byte) [DigestLength]byte {
	return Hash(a, b)
}

// ClientProof computes M1 = SHA1(NgHash | I | s | A | B | K).
func ClientProof(identity [DigestLength]byte, salt, a, b, key []byte) [DigestLength]byte {
	ng := NgHash()
	return Hash(ng[:], identity[:], salt, a, b, key)
}

// ServerProof computes M2 = SHA1(A | M1 | K).
func ServerProof(a, clientProof, key []byte) [DigestLength]byte {
	return Hash(a, clientProof, key)
}
