package srp_test

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // protocol hash
	"testing"

	"github.com/fzdarsky/realmgate/pkg/srp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA1Interleave_Deterministic(t *testing.T) {
	s := make([]byte, srp.EphemeralKeyLength)
	_, err := rand.Read(s)
	require.NoError(t, err)

	first := srp.SHA1Interleave(s)
	second := srp.SHA1Interleave(s)

	assert.Equal(t, first, second)
	assert.Len(t, first, srp.SessionKeyLength)
}

func TestSHA1Interleave_Avalanche(t *testing.T) {
	s := make([]byte, srp.EphemeralKeyLength)
	for i := range s {
		s[i] = byte(i + 1)
	}
	base := srp.SHA1Interleave(s)

	for i := range s {
		for bit := range 8 {
			flipped := append([]byte(nil), s...)
			flipped[i] ^= 1 << bit

			// Clearing the only set bit of the first byte changes the skip
			// offset; the key must still differ.
			got := srp.SHA1Interleave(flipped)
			assert.NotEqual(t, base, got, "byte %d bit %d", i, bit)
		}
	}
}

func TestSHA1Interleave_MatchesManualDerivation(t *testing.T) {
	s := make([]byte, srp.EphemeralKeyLength)
	for i := range s {
		s[i] = byte(0xA0 + i)
	}

	even := make([]byte, 16)
	odd := make([]byte, 16)
	for i := range 16 {
		even[i] = s[2*i]
		odd[i] = s[2*i+1]
	}
	h0 := sha1.Sum(even) //nolint:gosec // protocol hash
	h1 := sha1.Sum(odd)  //nolint:gosec // protocol hash

	key := srp.SHA1Interleave(s)
	for i := range srp.DigestLength {
		assert.Equal(t, h0[i], key[2*i])
		assert.Equal(t, h1[i], key[2*i+1])
	}
}

func TestSHA1Interleave_LeadingZeroSkip(t *testing.T) {
	t.Run("odd skip rounds up", func(t *testing.T) {
		s := make([]byte, srp.EphemeralKeyLength)
		for i := 1; i < len(s); i++ {
			s[i] = byte(i)
		}
		// p = 1 becomes 2, so T = s[2:], 30 bytes, halves of 15.
		even := make([]byte, 15)
		odd := make([]byte, 15)
		for i := range 15 {
			even[i] = s[2+2*i]
			odd[i] = s[3+2*i]
		}
		h0 := sha1.Sum(even) //nolint:gosec // protocol hash
		h1 := sha1.Sum(odd)  //nolint:gosec // protocol hash

		key := srp.SHA1Interleave(s)
		assert.Equal(t, h0[0], key[0])
		assert.Equal(t, h1[0], key[1])
		assert.Equal(t, h0[19], key[38])
		assert.Equal(t, h1[19], key[39])
	})

	t.Run("31 leading zeros", func(t *testing.T) {
		s := make([]byte, srp.EphemeralKeyLength)
		s[31] = 0x5A

		// p = 31 is odd and becomes 32, leaving nothing to hash.
		empty := sha1.Sum(nil) //nolint:gosec // protocol hash
		key := srp.SHA1Interleave(s)

		require.Len(t, key, srp.SessionKeyLength)
		for i := range srp.DigestLength {
			assert.Equal(t, empty[i], key[2*i])
			assert.Equal(t, empty[i], key[2*i+1])
		}
	})

	t.Run("all zero", func(t *testing.T) {
		key := srp.SHA1Interleave(make([]byte, srp.EphemeralKeyLength))
		assert.Len(t, key, srp.SessionKeyLength)
	})
}

func TestComputeVerifier_Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x11}, srp.SaltLength)

	v1 := srp.ComputeVerifier("TESTUSER", "PASSWORD", salt)
	v2 := srp.ComputeVerifier("TESTUSER", "PASSWORD", salt)
	assert.Equal(t, v1, v2)

	other := srp.ComputeVerifier("TESTUSER", "PASSWORD2", salt)
	assert.NotEqual(t, v1, other)

	otherSalt := srp.ComputeVerifier("TESTUSER", "PASSWORD", bytes.Repeat([]byte{0x22}, srp.SaltLength))
	assert.NotEqual(t, v1, otherSalt)
}

func TestDerivePrivateKey(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, srp.SaltLength)

	inner := sha1.Sum([]byte("USER:PASS")) //nolint:gosec // protocol hash
	h := sha1.New()                        //nolint:gosec // protocol hash
	h.Write(salt)
	h.Write(inner[:])

	assert.Equal(t, h.Sum(nil), srp.DerivePrivateKey("USER", "PASS", salt))
}

func TestNgHash(t *testing.T) {
	hashN := sha1.Sum(srp.N)     //nolint:gosec // protocol hash
	hashG := sha1.Sum([]byte{7}) //nolint:gosec // protocol hash
	ng := srp.NgHash()
	for i := range ng {
		assert.Equal(t, hashN[i]^hashG[i], ng[i])
	}
}
