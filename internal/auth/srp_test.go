package auth_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/pkg/srp"
)

func register(t *testing.T, username, password string) (salt, verifier []byte) {
	t.Helper()

	s, v, err := auth.MakeRegistrationData(username, password)
	if err != nil {
		t.Fatalf("MakeRegistrationData failed: %v", err)
	}
	return s[:], v[:]
}

func TestNewEngine(t *testing.T) {
	salt, verifier := register(t, "ALICE", "PASSWORD")

	engine := auth.NewEngine("ALICE", salt, verifier)

	if len(engine.B()) != srp.EphemeralKeyLength {
		t.Errorf("expected B of %d bytes, got %d", srp.EphemeralKeyLength, len(engine.B()))
	}
	if srp.IsZeroMod(engine.B(), srp.N) {
		t.Error("B must not be zero mod N")
	}
	if !bytes.Equal(engine.Salt(), salt) {
		t.Error("engine salt does not match stored salt")
	}

	other := auth.NewEngine("ALICE", salt, verifier)
	if bytes.Equal(engine.B(), other.B()) {
		t.Error("two engines produced the same B")
	}
}

func TestEngine_RoundTrip(t *testing.T) {
	salt, verifier := register(t, "ALICE", "PASSWORD")
	engine := auth.NewEngine("ALICE", salt, verifier)

	client := srp.NewClient("alice", "password")
	A, err := client.GenerateEphemeralKeypair()
	if err != nil {
		t.Fatalf("GenerateEphemeralKeypair failed: %v", err)
	}
	if err := client.SetServerResponse(engine.Salt(), engine.B()); err != nil {
		t.Fatalf("SetServerResponse failed: %v", err)
	}
	if err := client.ComputeSharedSecret(); err != nil {
		t.Fatalf("ComputeSharedSecret failed: %v", err)
	}
	M1, err := client.ComputeClientProof()
	if err != nil {
		t.Fatalf("ComputeClientProof failed: %v", err)
	}

	K, ok := engine.VerifyChallengeResponse(A, M1)
	if !ok {
		t.Fatal("expected proof to verify")
	}
	if len(K) != srp.SessionKeyLength {
		t.Errorf("expected %d byte session key, got %d", srp.SessionKeyLength, len(K))
	}
	if !bytes.Equal(K, client.SessionKey()) {
		t.Error("server and client session keys differ")
	}

	M2 := auth.GetSessionVerifier(A, M1, K)
	if err := client.VerifyServerProof(M2); err != nil {
		t.Errorf("client rejected M2: %v", err)
	}
}

func TestEngine_WrongPassword(t *testing.T) {
	salt, verifier := register(t, "ALICE", "PASSWORD")
	engine := auth.NewEngine("ALICE", salt, verifier)

	client := srp.NewClient("ALICE", "WRONG")
	A, err := client.GenerateEphemeralKeypair()
	if err != nil {
		t.Fatalf("GenerateEphemeralKeypair failed: %v", err)
	}
	if err := client.SetServerResponse(engine.Salt(), engine.B()); err != nil {
		t.Fatalf("SetServerResponse failed: %v", err)
	}
	if err := client.ComputeSharedSecret(); err != nil {
		t.Fatalf("ComputeSharedSecret failed: %v", err)
	}
	M1, _ := client.ComputeClientProof()

	if K, ok := engine.VerifyChallengeResponse(A, M1); ok || K != nil {
		t.Error("expected verification to fail with wrong password")
	}
}

func TestEngine_RejectsZeroA(t *testing.T) {
	salt, verifier := register(t, "ALICE", "PASSWORD")

	tests := []struct {
		name string
		A    []byte
	}{
		{"all zeros", make([]byte, 32)},
		{"equal to N", append([]byte(nil), srp.N...)},
		{"multiple of N", srp.Mul(srp.N, []byte{2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := auth.NewEngine("ALICE", salt, verifier)
			K, ok := engine.VerifyChallengeResponse(tt.A, make([]byte, 20))
			if ok || K != nil {
				t.Error("expected A = 0 mod N to be rejected")
			}
		})
	}
}

func TestEngine_DoubleVerifyPanics(t *testing.T) {
	salt, verifier := register(t, "ALICE", "PASSWORD")
	engine := auth.NewEngine("ALICE", salt, verifier)

	engine.VerifyChallengeResponse(make([]byte, 32), make([]byte, 20))

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected second verification to panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, auth.ErrEngineConsumed) {
			t.Errorf("expected ErrEngineConsumed, got %v", r)
		}
	}()

	engine.VerifyChallengeResponse(make([]byte, 32), make([]byte, 20))
}

func TestEngine_ConsumedAfterFailedProof(t *testing.T) {
	salt, verifier := register(t, "ALICE", "PASSWORD")
	engine := auth.NewEngine("ALICE", salt, verifier)

	client := srp.NewClient("ALICE", "PASSWORD")
	A, _ := client.GenerateEphemeralKeypair()

	if _, ok := engine.VerifyChallengeResponse(A, make([]byte, 20)); ok {
		t.Fatal("expected bogus proof to fail")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected engine to be consumed after a failed proof")
		}
	}()
	engine.VerifyChallengeResponse(A, make([]byte, 20))
}

func TestGetSessionVerifier(t *testing.T) {
	A := bytes.Repeat([]byte{0x01}, 32)
	M1 := bytes.Repeat([]byte{0x02}, 20)
	K := bytes.Repeat([]byte{0x03}, 40)

	expected := srp.Hash(A, M1, K)
	if !bytes.Equal(auth.GetSessionVerifier(A, M1, K), expected[:]) {
		t.Error("M2 does not equal SHA1(A | M1 | K)")
	}
}
