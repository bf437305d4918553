// Package auth implements the server side of the SRP6 handshake, account
// registration data, one-time token checks and failed-logon tracking.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"github.com/fzdarsky/realmgate/pkg/srp"
)

// ErrEngineConsumed is the panic value raised when an engine is asked to
// verify a second proof. Reusing an engine is a programming error.
var ErrEngineConsumed = errors.New("srp engine already consumed")

type engineState int

const (
	stateFresh engineState = iota
	stateConsumed
)

// Engine is the server-side state for one SRP6 logon attempt.
// An engine verifies exactly one client proof and must then be discarded.
type Engine struct {
	identity [srp.DigestLength]byte
	salt     []byte
	verifier []byte
	b        []byte
	bPub     []byte
	state    engineState
}

// NewEngine creates an engine for the given uppercase username and stored
// credentials. It draws a fresh ephemeral secret and panics if the system
// random source fails.
func NewEngine(username string, salt, verifier []byte) *Engine {
	b := make([]byte, srp.EphemeralKeyLength)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate ephemeral secret: " + err.Error())
	}
	return newEngine(username, salt, verifier, b)
}

func newEngine(username string, salt, verifier, b []byte) *Engine {
	// B = (k*v + g^b) % N
	kv := srp.Mul(srp.K, verifier)
	gb := srp.ModPow(srp.G, b, srp.N)
	bPub := srp.ToFixedWidthBytes(srp.ModAdd(kv, gb, srp.N), srp.EphemeralKeyLength)

	return &Engine{
		identity: srp.IdentityHash(username),
		salt:     append([]byte(nil), salt...),
		verifier: append([]byte(nil), verifier...),
		b:        b,
		bPub:     bPub,
		state:    stateFresh,
	}
}

// B returns the server public ephemeral value, 32 bytes big-endian.
func (e *Engine) B() []byte {
	return append([]byte(nil), e.bPub...)
}

// Salt returns the account salt.
func (e *Engine) Salt() []byte {
	return append([]byte(nil), e.salt...)
}

// VerifyChallengeResponse checks the client proof M1 against the client
// public value A. On success it returns the 40-byte session key. It returns
// false when A is congruent to zero mod N or the proof does not match.
//
// The engine is consumed by the first call; a second call panics with
// ErrEngineConsumed.
func (e *Engine) VerifyChallengeResponse(a, m1 []byte) ([]byte, bool) {
	if e.state == stateConsumed {
		panic(ErrEngineConsumed)
	}
	e.state = stateConsumed
	defer e.clearSecrets()

	if srp.IsZeroMod(a, srp.N) {
		return nil, false
	}

	u := srp.ScramblingParameter(a, e.bPub)

	// S = (A * v^u)^b % N
	vu := srp.ModPow(e.verifier, u[:], srp.N)
	avu := srp.ModMul(a, vu, srp.N)
	s := srp.ToFixedWidthBytes(srp.ModPow(avu, e.b, srp.N), srp.EphemeralKeyLength)

	key := srp.SHA1Interleave(s)
	expected := srp.ClientProof(e.identity, e.salt, a, e.bPub, key[:])

	if subtle.ConstantTimeCompare(expected[:], m1) != 1 {
		return nil, false
	}
	return key[:], true
}

// GetSessionVerifier computes the server proof M2 = SHA1(A | M1 | K).
func GetSessionVerifier(a, m1, key []byte) []byte {
	m2 := srp.ServerProof(a, m1, key)
	return m2[:]
}

func (e *Engine) clearSecrets() {
	for i := range e.b {
		e.b[i] = 0
	}
}
