package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/fzdarsky/realmgate/pkg/srp"
)

// ReconnectChallengeLength is the size of the random value sent in a
// reconnect challenge.
const ReconnectChallengeLength = 16

// MakeRegistrationData generates a random salt and computes the verifier
// for a new account. Username and password must already be uppercase.
func MakeRegistrationData(username, password string) (salt [srp.SaltLength]byte, verifier [srp.VerifierLength]byte, err error) {
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, verifier, fmt.Errorf("failed to generate random salt: %w", err)
	}
	verifier = CalculateVerifier(username, password, salt[:])
	return salt, verifier, nil
}

// CalculateVerifier computes v = g^x mod N with
// x = SHA1(salt | SHA1(username ":" password)).
func CalculateVerifier(username, password string, salt []byte) [srp.VerifierLength]byte {
	return srp.ComputeVerifier(username, password, salt)
}

// CheckLogin reports whether the password matches the stored verifier.
func CheckLogin(username, password string, salt, verifier []byte) bool {
	v := CalculateVerifier(username, password, salt)
	return subtle.ConstantTimeCompare(v[:], srp.ToFixedWidthBytes(verifier, srp.VerifierLength)) == 1
}

// NewReconnectChallenge returns a fresh random reconnect challenge. It
// panics if the system random source fails.
func NewReconnectChallenge() []byte {
	r := make([]byte, ReconnectChallengeLength)
	if _, err := rand.Read(r); err != nil {
		panic("failed to generate reconnect challenge: " + err.Error())
	}
	return r
}

// VerifyReconnectProof checks R2 = SHA1(username | R1 | challenge | K).
func VerifyReconnectProof(username string, r1, challenge, sessionKey, r2 []byte) bool {
	expected := srp.Hash([]byte(username), r1, challenge, sessionKey)
	return subtle.ConstantTimeCompare(expected[:], r2) == 1
}
