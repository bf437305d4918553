package authserver

import (
	"bytes"
	"context"
	"testing"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/audit"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/pkg/protocol"
	"github.com/fzdarsky/realmgate/pkg/srp"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "alice"
	testPassword = "secret"
	testIP       = "127.0.0.1"
	testBuild    = 12340
)

type testEnv struct {
	store   *account.MemoryStore
	manager *account.Manager
	audit   *audit.ChannelSink
	cfg     Config
	deps    Dependencies
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := account.NewMemoryStore()
	manager := account.NewManager(store)
	res, err := manager.CreateAccount(context.Background(), testUser, testPassword, "")
	require.NoError(t, err)
	require.Equal(t, account.OpOK, res)

	sink := audit.NewChannelSink(64)
	return &testEnv{
		store:   store,
		manager: manager,
		audit:   sink,
		deps: Dependencies{
			Accounts: store,
			Realms:   store,
			Recorder: store,
			Audit:    sink,
			Tokens:   auth.NewTOTPVerifier(),
		},
	}
}

func (e *testEnv) accountID(t *testing.T) uint32 {
	t.Helper()
	id, err := e.store.GetID(context.Background(), "ALICE")
	require.NoError(t, err)
	return id
}

// testConn is a session wired to a buffer that collects responses.
type testConn struct {
	t       *testing.T
	session *Session
	out     *bytes.Buffer
}

func (e *testEnv) connect(t *testing.T) *testConn {
	t.Helper()
	h, err := NewHandler(e.cfg, e.deps)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &testConn{t: t, session: h.NewSession(out, "conn-1", testIP), out: out}
}

// send hands pkt to the session and returns what it wrote.
func (c *testConn) send(pkt []byte) ([]byte, error) {
	c.t.Helper()
	err := c.session.Handle(context.Background(), pkt)
	resp := bytes.Clone(c.out.Bytes())
	c.out.Reset()
	return resp, err
}

func (c *testConn) mustSend(pkt []byte) []byte {
	c.t.Helper()
	resp, err := c.send(pkt)
	require.NoError(c.t, err)
	return resp
}

func challengePacket(cmd protocol.AuthCmd, username string, build uint16) []byte {
	ch := protocol.LogonChallenge{
		Command:  cmd,
		Error:    3,
		GameName: "WoW",
		Version1: 3,
		Version2: 3,
		Version3: 5,
		Build:    build,
		Platform: "x86",
		OS:       "Win",
		Locale:   "enUS",
		ClientIP: testIP,
		Username: username,
	}
	return ch.Encode()
}

// logon runs challenge and proof for the given password and returns the
// client, the proof response bytes and the error of the proof step.
func (c *testConn) logon(username, password, token string) (*srp.Client, []byte, error) {
	c.t.Helper()

	resp := c.mustSend(challengePacket(protocol.CmdLogonChallenge, username, testBuild))
	cr, err := protocol.ParseChallengeResponse(resp)
	require.NoError(c.t, err)

	client := srp.NewClient(username, password)
	a, err := client.GenerateEphemeralKeypair()
	require.NoError(c.t, err)
	require.NoError(c.t, client.SetServerResponse(cr.Salt, cr.B))
	require.NoError(c.t, client.ComputeSharedSecret())
	m1, err := client.ComputeClientProof()
	require.NoError(c.t, err)

	proof := protocol.LogonProof{A: a, M1: m1, CRCHash: make([]byte, 20)}
	if cr.SecurityFlags&protocol.SecurityFlagToken != 0 {
		proof.SecurityFlags = protocol.SecurityFlagToken
		proof.Token = token
	}

	out, err := c.send(proof.Encode())
	return client, out, err
}

func drainAudit(sink *audit.ChannelSink) []audit.Event {
	var events []audit.Event
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventTypes(events []audit.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}
