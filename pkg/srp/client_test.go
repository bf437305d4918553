package srp_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/fzdarsky/realmgate/pkg/srp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverSide performs the server half of the exchange with the package
// helpers so the client can be exercised on its own.
type serverSide struct {
	salt []byte
	v    []byte
	b    []byte
	B    []byte
}

func newServerSide(t *testing.T, username, password string) *serverSide {
	t.Helper()

	salt := make([]byte, srp.SaltLength)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	v := srp.ComputeVerifier(username, password, salt)

	b := make([]byte, srp.EphemeralKeyLength)
	_, err = rand.Read(b)
	require.NoError(t, err)

	B := srp.ModAdd(srp.Mul(srp.K, v[:]), srp.ModPow(srp.G, b, srp.N), srp.N)
	return &serverSide{salt: salt, v: v[:], b: b, B: srp.ToFixedWidthBytes(B, srp.EphemeralKeyLength)}
}

func (s *serverSide) sessionKey(a []byte) []byte {
	u := srp.ScramblingParameter(a, s.B)
	avu := srp.ModMul(a, srp.ModPow(s.v, u[:], srp.N), srp.N)
	S := srp.ToFixedWidthBytes(srp.ModPow(avu, s.b, srp.N), srp.EphemeralKeyLength)
	key := srp.SHA1Interleave(S)
	return key[:]
}

func TestNewClient_UppercasesCredentials(t *testing.T) {
	client := srp.NewClient("testuser", "testpass")

	assert.Equal(t, "TESTUSER", client.Username)
	assert.Equal(t, "TESTPASS", client.Password)
}

func TestClient_GenerateEphemeralKeypair(t *testing.T) {
	client := srp.NewClient("testuser", "testpass")

	A, err := client.GenerateEphemeralKeypair()
	require.NoError(t, err)
	assert.Len(t, A, srp.EphemeralKeyLength)
	assert.False(t, srp.IsZeroMod(A, srp.N))

	other := srp.NewClient("testuser", "testpass")
	A2, err := other.GenerateEphemeralKeypair()
	require.NoError(t, err)
	assert.NotEqual(t, A, A2, "different clients should generate different ephemeral values")
}

func TestClient_SetServerResponse(t *testing.T) {
	client := srp.NewClient("testuser", "testpass")
	salt := bytes.Repeat([]byte{1}, srp.SaltLength)

	t.Run("rejects short salt", func(t *testing.T) {
		err := client.SetServerResponse(salt[:10], bytes.Repeat([]byte{2}, 32))
		assert.Error(t, err)
	})

	t.Run("rejects B equal to N", func(t *testing.T) {
		err := client.SetServerResponse(salt, srp.N)
		assert.ErrorIs(t, err, srp.ErrInvalidServerKey)
	})

	t.Run("rejects zero B", func(t *testing.T) {
		err := client.SetServerResponse(salt, make([]byte, 32))
		assert.ErrorIs(t, err, srp.ErrInvalidServerKey)
	})

	t.Run("accepts valid response", func(t *testing.T) {
		require.NoError(t, client.SetServerResponse(salt, bytes.Repeat([]byte{2}, 32)))
		assert.Equal(t, salt, client.Salt)
	})
}

func TestClient_StepsOutOfOrder(t *testing.T) {
	client := srp.NewClient("testuser", "testpass")

	assert.ErrorIs(t, client.ComputeSharedSecret(), srp.ErrHandshakeOrder)

	_, err := client.ComputeClientProof()
	assert.ErrorIs(t, err, srp.ErrHandshakeOrder)

	assert.ErrorIs(t, client.VerifyServerProof(make([]byte, 20)), srp.ErrHandshakeOrder)
}

func TestClient_FullExchange(t *testing.T) {
	server := newServerSide(t, "TESTUSER", "PASSWORD")
	client := srp.NewClient("testuser", "password")

	A, err := client.GenerateEphemeralKeypair()
	require.NoError(t, err)
	require.NoError(t, client.SetServerResponse(server.salt, server.B))
	require.NoError(t, client.ComputeSharedSecret())

	M1, err := client.ComputeClientProof()
	require.NoError(t, err)
	assert.Len(t, M1, srp.DigestLength)

	serverKey := server.sessionKey(A)
	assert.Equal(t, serverKey, client.SessionKey(), "both sides must derive the same session key")

	expectedM1 := srp.ClientProof(srp.IdentityHash("TESTUSER"), server.salt, A, server.B, serverKey)
	assert.Equal(t, expectedM1[:], M1)

	M2 := srp.ServerProof(A, M1, serverKey)
	require.NoError(t, client.VerifyServerProof(M2[:]))
	assert.Equal(t, M2[:], client.M2)
}

func TestClient_WrongPasswordDiverges(t *testing.T) {
	server := newServerSide(t, "TESTUSER", "PASSWORD")
	client := srp.NewClient("testuser", "wrong")

	A, err := client.GenerateEphemeralKeypair()
	require.NoError(t, err)
	require.NoError(t, client.SetServerResponse(server.salt, server.B))
	require.NoError(t, client.ComputeSharedSecret())

	assert.NotEqual(t, server.sessionKey(A), client.SessionKey())
}

func TestClient_VerifyServerProofMismatch(t *testing.T) {
	server := newServerSide(t, "TESTUSER", "PASSWORD")
	client := srp.NewClient("testuser", "password")

	_, err := client.GenerateEphemeralKeypair()
	require.NoError(t, err)
	require.NoError(t, client.SetServerResponse(server.salt, server.B))
	require.NoError(t, client.ComputeSharedSecret())
	_, err = client.ComputeClientProof()
	require.NoError(t, err)

	assert.ErrorIs(t, client.VerifyServerProof(make([]byte, srp.DigestLength)), srp.ErrServerProofMismatch)
}

func TestClient_ReconnectProof(t *testing.T) {
	client := srp.NewClient("testuser", "password")
	key := bytes.Repeat([]byte{0x42}, srp.SessionKeyLength)
	challenge := bytes.Repeat([]byte{0x07}, 16)

	r1, r2, err := client.ReconnectProof(key, challenge)
	require.NoError(t, err)
	assert.Len(t, r1, 16)

	expected := srp.Hash([]byte("TESTUSER"), r1, challenge, key)
	assert.Equal(t, expected[:], r2)

	_, _, err = client.ReconnectProof(key[:10], challenge)
	assert.Error(t, err)
}

func TestClient_ClearSecrets(t *testing.T) {
	server := newServerSide(t, "TESTUSER", "PASSWORD")
	client := srp.NewClient("testuser", "password")

	_, err := client.GenerateEphemeralKeypair()
	require.NoError(t, err)
	require.NoError(t, client.SetServerResponse(server.salt, server.B))
	require.NoError(t, client.ComputeSharedSecret())

	client.ClearSecrets()
	assert.Nil(t, client.SessionKey())
}
