// Package probe implements a logon client for checking a realmgate
// deployment end to end: challenge, proof, realm list and reconnect, as a
// game client performs them.
package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/pkg/protocol"
	"github.com/fzdarsky/realmgate/pkg/srp"
)

const (
	gameName = "WoW"
	platform = "x86"
	clientOS = "Win"

	// Extra challenge response bytes announced by the security flags.
	pinInputSize    = 4 + 16
	matrixInputSize = 4 + 8
	tokenInputSize  = 1
)

// ErrTokenRequired is returned when the account has two-factor logon
// enabled and no token was supplied.
var ErrTokenRequired = errors.New("server requires a two-factor token")

// Credentials identify the account to log on with. Token is sent as is;
// otherwise a code is derived from TOTPSecret when the server asks for one.
type Credentials struct {
	Username   string
	Password   string
	Token      string
	TOTPSecret string
}

// Session is the result of a successful logon.
type Session struct {
	Username      string
	SessionKey    []byte
	SecurityFlags uint8
	AccountFlags  uint32
	Elapsed       time.Duration
}

// Client is one connection to a gateway.
type Client struct {
	conn     net.Conn
	cfg      *Config
	clientIP string
}

// Dial connects to the gateway at cfg.Address().
func Dial(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.RequireHost(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address(), err)
	}

	clientIP := "127.0.0.1"
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok && addr.IP.To4() != nil {
		clientIP = addr.IP.To4().String()
	}

	return &Client{conn: conn, cfg: cfg, clientIP: clientIP}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Logon runs the challenge and proof exchange. Result codes other than
// success are returned as *protocol.ResultError.
func (c *Client) Logon(ctx context.Context, creds Credentials) (*Session, error) {
	start := time.Now()
	if err := c.setDeadline(ctx); err != nil {
		return nil, err
	}

	if err := c.write(c.challenge(protocol.CmdLogonChallenge, creds.Username)); err != nil {
		return nil, err
	}
	cr, err := c.readChallengeResponse()
	if err != nil {
		return nil, err
	}

	client := srp.NewClient(creds.Username, creds.Password)
	defer client.ClearSecrets()

	a, err := client.GenerateEphemeralKeypair()
	if err != nil {
		return nil, err
	}
	if err := client.SetServerResponse(cr.Salt, cr.B); err != nil {
		return nil, fmt.Errorf("invalid server response: %w", err)
	}
	if err := client.ComputeSharedSecret(); err != nil {
		return nil, err
	}
	m1, err := client.ComputeClientProof()
	if err != nil {
		return nil, err
	}

	proof := protocol.LogonProof{A: a, M1: m1, CRCHash: make([]byte, 20)}
	if cr.SecurityFlags&protocol.SecurityFlagToken != 0 {
		token, err := creds.token()
		if err != nil {
			return nil, err
		}
		proof.SecurityFlags = protocol.SecurityFlagToken
		proof.Token = token
	}

	if err := c.write(proof.Encode()); err != nil {
		return nil, err
	}
	pr, err := c.readProofResponse()
	if err != nil {
		return nil, err
	}
	if err := client.VerifyServerProof(pr.M2); err != nil {
		return nil, err
	}

	return &Session{
		Username:      client.Username,
		SessionKey:    append([]byte(nil), client.SessionKey()...),
		SecurityFlags: cr.SecurityFlags,
		AccountFlags:  pr.AccountFlags,
		Elapsed:       time.Since(start),
	}, nil
}

// RealmList requests the realm list. The connection must be logged on.
func (c *Client) RealmList(ctx context.Context) ([]protocol.RealmEntry, error) {
	if err := c.setDeadline(ctx); err != nil {
		return nil, err
	}
	if err := c.write(protocol.EncodeRealmListRequest()); err != nil {
		return nil, err
	}

	header, err := c.read(3)
	if err != nil {
		return nil, err
	}
	if protocol.AuthCmd(header[0]) != protocol.CmdRealmList {
		return nil, fmt.Errorf("%w: got %s", protocol.ErrUnexpectedCommand, protocol.AuthCmd(header[0]))
	}
	body, err := c.read(int(binary.LittleEndian.Uint16(header[1:3])))
	if err != nil {
		return nil, err
	}
	return protocol.ParseRealmList(append(header, body...))
}

// Reconnect proves knowledge of a session key from an earlier logon on a
// fresh connection.
func (c *Client) Reconnect(ctx context.Context, username string, sessionKey []byte) error {
	if err := c.setDeadline(ctx); err != nil {
		return err
	}
	if err := c.write(c.challenge(protocol.CmdReconnectChallenge, username)); err != nil {
		return err
	}

	head, err := c.read(2)
	if err != nil {
		return err
	}
	data := head
	if protocol.AuthResult(head[1]) == protocol.ResultSuccess {
		rest, err := c.read(32)
		if err != nil {
			return err
		}
		data = append(data, rest...)
	}
	rc, err := protocol.ParseReconnectChallengeResponse(data)
	if err != nil {
		return err
	}

	r1, r2, err := srp.NewClient(username, "").ReconnectProof(sessionKey, rc.Challenge)
	if err != nil {
		return err
	}
	proof := protocol.ReconnectProof{R1: r1, R2: r2, R3: make([]byte, 20)}
	if err := c.write(proof.Encode()); err != nil {
		return err
	}

	resp, err := c.read(4)
	if err != nil {
		return err
	}
	if result := protocol.AuthResult(resp[1]); result != protocol.ResultSuccess {
		return &protocol.ResultError{Command: protocol.CmdReconnectProof, Result: result}
	}
	return nil
}

func (c *Client) challenge(cmd protocol.AuthCmd, username string) []byte {
	major, minor, patch, _ := c.cfg.versionTriple()
	ch := protocol.LogonChallenge{
		Command:  cmd,
		Error:    3,
		GameName: gameName,
		Version1: major,
		Version2: minor,
		Version3: patch,
		Build:    c.cfg.Build,
		Platform: platform,
		OS:       clientOS,
		Locale:   c.cfg.Locale,
		ClientIP: c.clientIP,
		Username: strings.ToUpper(username),
	}
	return ch.Encode()
}

// readChallengeResponse reads a challenge response whose length depends on
// the result code, the g and N lengths and the security flags.
func (c *Client) readChallengeResponse() (*protocol.ChallengeResponse, error) {
	data, err := c.read(3)
	if err != nil {
		return nil, err
	}
	if protocol.AuthResult(data[2]) != protocol.ResultSuccess {
		return protocol.ParseChallengeResponse(data)
	}

	// B and the g length.
	chunk, err := c.read(srp.EphemeralKeyLength + 1)
	if err != nil {
		return nil, err
	}
	data = append(data, chunk...)

	// g and the N length.
	chunk, err = c.read(int(data[len(data)-1]) + 1)
	if err != nil {
		return nil, err
	}
	data = append(data, chunk...)

	// N, salt, version challenge and security flags.
	chunk, err = c.read(int(data[len(data)-1]) + srp.SaltLength + len(protocol.VersionChallenge) + 1)
	if err != nil {
		return nil, err
	}
	data = append(data, chunk...)

	flags := data[len(data)-1]
	extra := 0
	if flags&protocol.SecurityFlagPIN != 0 {
		extra += pinInputSize
	}
	if flags&protocol.SecurityFlagMatrix != 0 {
		extra += matrixInputSize
	}
	if flags&protocol.SecurityFlagToken != 0 {
		extra += tokenInputSize
	}
	if extra > 0 {
		if chunk, err = c.read(extra); err != nil {
			return nil, err
		}
		data = append(data, chunk...)
	}

	return protocol.ParseChallengeResponse(data)
}

func (c *Client) readProofResponse() (*protocol.ProofResponse, error) {
	data, err := c.read(2)
	if err != nil {
		return nil, err
	}

	rest := 30
	if protocol.AuthResult(data[1]) != protocol.ResultSuccess {
		rest = 2
	}
	chunk, err := c.read(rest)
	if err != nil {
		return nil, err
	}
	return protocol.ParseProofResponse(append(data, chunk...))
}

func (c *Client) setDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return c.conn.SetDeadline(deadline)
}

func (c *Client) write(data []byte) error {
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

func (c *Client) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("server closed the connection: %w", err)
		}
		return nil, fmt.Errorf("failed to receive: %w", err)
	}
	return buf, nil
}

func (cr Credentials) token() (string, error) {
	if cr.Token != "" {
		return cr.Token, nil
	}
	if cr.TOTPSecret == "" {
		return "", ErrTokenRequired
	}
	secret, err := auth.DecodeTOTPSecret(cr.TOTPSecret)
	if err != nil {
		return "", fmt.Errorf("invalid totp secret: %w", err)
	}
	return auth.TOTPCode(secret, time.Now()), nil
}
