package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHandshakeOrder is returned when client steps are called out of order.
	ErrHandshakeOrder = errors.New("srp: handshake steps called out of order")

	// ErrInvalidServerKey is returned when B is malformed or B mod N == 0.
	ErrInvalidServerKey = errors.New("srp: invalid server ephemeral key")

	// ErrServerProofMismatch is returned when M2 does not match.
	ErrServerProofMismatch = errors.New("srp: server proof mismatch")
)

// Client is the client side of one SRP6 login attempt. It mirrors what the
// game client computes and is used by realmprobe and by tests.
type Client struct {
	Username string // uppercase
	Password string // uppercase
	Salt     []byte
	a        []byte // client ephemeral private value
	A        []byte // client ephemeral public value, 32 bytes
	B        []byte // server ephemeral public value, 32 bytes
	S        []byte // shared secret, 32 bytes
	K        []byte // session key, 40 bytes
	M1       []byte // client proof
	M2       []byte // server proof, set once verified
}

// NewClient creates a client for one login attempt. Credentials are uppercased
// the same way the game client does it.
func NewClient(username, password string) *Client {
	return &Client{
		Username: strings.ToUpper(username),
		Password: strings.ToUpper(password),
	}
}

// GenerateEphemeralKeypair picks a and returns A = g^a mod N (32 bytes).
func (c *Client) GenerateEphemeralKeypair() ([]byte, error) {
	for {
		a := make([]byte, EphemeralKeyLength)
		if _, err := rand.Read(a); err != nil {
			return nil, fmt.Errorf("failed to generate random a: %w", err)
		}

		A := ModPow(G, a, N)
		if IsZeroMod(A, N) {
			continue
		}

		c.a = a
		c.A = ToFixedWidthBytes(A, EphemeralKeyLength)
		return c.A, nil
	}
}

// SetServerResponse records the salt and B from the challenge response.
func (c *Client) SetServerResponse(salt, serverKey []byte) error {
	if len(salt) != SaltLength {
		return fmt.Errorf("invalid salt length %d", len(salt))
	}
	if len(serverKey) != EphemeralKeyLength || IsZeroMod(serverKey, N) {
		return ErrInvalidServerKey
	}

	c.Salt = append([]byte(nil), salt...)
	c.B = append([]byte(nil), serverKey...)
	return nil
}

// ComputeSharedSecret computes S = (B - k*g^x)^(a + u*x) mod N and K.
func (c *Client) ComputeSharedSecret() error {
	if c.a == nil || c.A == nil || c.B == nil || c.Salt == nil {
		return ErrHandshakeOrder
	}

	x := DerivePrivateKey(c.Username, c.Password, c.Salt)
	u := ScramblingParameter(c.A, c.B)

	kgx := ModMul(K, ModPow(G, x, N), N)
	base := ModSub(c.B, kgx, N)
	exponent := Add(c.a, Mul(u[:], x))

	c.S = ToFixedWidthBytes(ModPow(base, exponent, N), EphemeralKeyLength)
	key := SHA1Interleave(c.S)
	c.K = key[:]
	return nil
}

// ComputeClientProof computes M1.
func (c *Client) ComputeClientProof() ([]byte, error) {
	if c.K == nil {
		return nil, ErrHandshakeOrder
	}

	m1 := ClientProof(IdentityHash(c.Username), c.Salt, c.A, c.B, c.K)
	c.M1 = m1[:]
	return c.M1, nil
}

// VerifyServerProof checks M2 = SHA1(A | M1 | K).
func (c *Client) VerifyServerProof(serverProof []byte) error {
	if c.M1 == nil || c.K == nil {
		return ErrHandshakeOrder
	}

	expected := ServerProof(c.A, c.M1, c.K)
	if subtle.ConstantTimeCompare(expected[:], serverProof) != 1 {
		return ErrServerProofMismatch
	}

	c.M2 = append([]byte(nil), serverProof...)
	return nil
}

// SessionKey returns K once ComputeSharedSecret has run.
func (c *Client) SessionKey() []byte {
	return c.K
}

// ReconnectProof answers a reconnect challenge with a previously negotiated
// session key. It returns the client nonce R1 and R2 = SHA1(username | R1 | challenge | K).
func (c *Client) ReconnectProof(sessionKey, challenge []byte) (r1, r2 []byte, err error) {
	if len(sessionKey) != SessionKeyLength {
		return nil, nil, fmt.Errorf("invalid session key length %d", len(sessionKey))
	}

	r1 = make([]byte, 16)
	if _, err := rand.Read(r1); err != nil {
		return nil, nil, fmt.Errorf("failed to generate reconnect nonce: %w", err)
	}

	proof := Hash([]byte(c.Username), r1, challenge, sessionKey)
	return r1, proof[:], nil
}

// ClearSecrets zeroes the private values held by the client.
func (c *Client) ClearSecrets() {
	for _, b := range [][]byte{c.a, c.S, c.K} {
		for i := range b {
			b[i] = 0
		}
	}
	c.a = nil
	c.S = nil
	c.K = nil
}
