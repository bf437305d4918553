package server

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/fzdarsky/realmgate/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func challenge(username string) []byte {
	ch := protocol.LogonChallenge{
		Command:  protocol.CmdLogonChallenge,
		GameName: "WoW",
		Version1: 3, Version2: 3, Version3: 5,
		Build:    12340,
		Platform: "x86",
		OS:       "Win",
		Locale:   "enUS",
		ClientIP: "127.0.0.1",
		Username: username,
	}
	return ch.Encode()
}

func TestReadPacket_Sequence(t *testing.T) {
	proof := protocol.LogonProof{A: bytes.Repeat([]byte{1}, 32), M1: bytes.Repeat([]byte{2}, 20)}
	tokenProof := protocol.LogonProof{SecurityFlags: protocol.SecurityFlagToken, Token: "123456"}
	reconnect := protocol.ReconnectProof{}

	packets := [][]byte{
		challenge("ALICE"),
		proof.Encode(),
		tokenProof.Encode(),
		reconnect.Encode(),
		protocol.EncodeRealmListRequest(),
		{0x7F},
	}

	var stream bytes.Buffer
	for _, p := range packets {
		stream.Write(p)
	}

	r := bufio.NewReader(&stream)
	for i, want := range packets {
		got, err := ReadPacket(r)
		require.NoError(t, err, "packet %d", i)
		assert.Equal(t, want, got, "packet %d", i)
	}

	_, err := ReadPacket(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadPacket_Lengths(t *testing.T) {
	tokenProof := protocol.LogonProof{SecurityFlags: protocol.SecurityFlagToken, Token: "654321"}

	tests := []struct {
		name string
		pkt  []byte
		want int
	}{
		{"challenge", challenge("BOB"), protocol.ChallengeMinSize + 3},
		{"proof", (&protocol.LogonProof{}).Encode(), protocol.LogonProofSize},
		{"proof with token", tokenProof.Encode(), protocol.LogonProofSize + 1 + 6},
		{"reconnect proof", (&protocol.ReconnectProof{}).Encode(), protocol.ReconnectProofSize},
		{"realm list", protocol.EncodeRealmListRequest(), protocol.RealmListRequestSize},
		{"transfer", []byte{byte(protocol.CmdXferCancel)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadPacket(bufio.NewReader(bytes.NewReader(tt.pkt)))
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestReadPacket_ShortChallengeIsFramed(t *testing.T) {
	// A challenge whose size field stops short of the username length byte
	// is still framed; the session rejects it.
	pkt := challenge("ALICE")[:33]
	pkt[2], pkt[3] = 29, 0

	got, err := ReadPacket(bufio.NewReader(bytes.NewReader(pkt)))
	require.NoError(t, err)
	assert.Len(t, got, 33)
}

func TestReadPacket_Errors(t *testing.T) {
	t.Run("truncated proof", func(t *testing.T) {
		_, err := ReadPacket(bufio.NewReader(bytes.NewReader([]byte{byte(protocol.CmdLogonProof), 1, 2})))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("truncated challenge body", func(t *testing.T) {
		_, err := ReadPacket(bufio.NewReader(bytes.NewReader(challenge("ALICE")[:20])))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("oversized challenge", func(t *testing.T) {
		_, err := ReadPacket(bufio.NewReader(bytes.NewReader([]byte{0x00, 0x00, 0xFF, 0xFF})))
		assert.True(t, errors.Is(err, ErrFrameTooLarge))
	})

	t.Run("missing token", func(t *testing.T) {
		pkt := (&protocol.LogonProof{SecurityFlags: protocol.SecurityFlagToken}).Encode()
		pkt = pkt[:protocol.LogonProofSize]
		_, err := ReadPacket(bufio.NewReader(bytes.NewReader(pkt)))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}
