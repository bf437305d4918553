package authserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync/atomic"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/audit"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/internal/logging"
	"github.com/fzdarsky/realmgate/pkg/protocol"
)

var (
	// ErrUnexpectedOpcode is returned for an opcode that is unknown or not
	// allowed in the current status. The connection must be dropped.
	ErrUnexpectedOpcode = errors.New("unexpected opcode")

	// ErrMalformedPacket is returned for a packet that cannot be decoded.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrSessionClosed is returned when a packet arrives after the session
	// was closed, or when the session closed while a query was in flight.
	ErrSessionClosed = errors.New("session closed")
)

// Status is the position of a session in the logon sequence.
type Status int

// Session statuses.
const (
	StatusChallenge Status = iota
	StatusLogonProof
	StatusReconnectProof
	StatusAuthed
	StatusWaitingForRealmList
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusChallenge:
		return "challenge"
	case StatusLogonProof:
		return "logon_proof"
	case StatusReconnectProof:
		return "reconnect_proof"
	case StatusAuthed:
		return "authed"
	case StatusWaitingForRealmList:
		return "waiting_for_realm_list"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type opcodeHandler struct {
	allowed []Status
	handle  func(s *Session, ctx context.Context, pkt []byte) error
}

var opcodeTable = map[protocol.AuthCmd]opcodeHandler{
	protocol.CmdLogonChallenge:     {[]Status{StatusChallenge}, (*Session).handleLogonChallenge},
	protocol.CmdReconnectChallenge: {[]Status{StatusChallenge}, (*Session).handleReconnectChallenge},
	protocol.CmdLogonProof:         {[]Status{StatusLogonProof}, (*Session).handleLogonProof},
	protocol.CmdReconnectProof:     {[]Status{StatusReconnectProof}, (*Session).handleReconnectProof},
	protocol.CmdRealmList:          {[]Status{StatusAuthed, StatusWaitingForRealmList}, (*Session).handleRealmList},
}

// Session is the logon state of one connection. Handle must be called from
// a single goroutine; Close may be called from any.
type Session struct {
	h        *Handler
	w        io.Writer
	connID   string
	remoteIP string
	log      *logging.ContextLogger

	closed   atomic.Bool
	status   atomic.Int32
	username atomic.Value // string

	challenge     *protocol.LogonChallenge
	info          *account.Info
	engine        *auth.Engine
	tokenRequired bool
	reconnect     []byte
	sessionKey    []byte
}

// Status returns the current status. It is safe to call from any goroutine.
func (s *Session) Status() Status {
	if s.closed.Load() {
		return StatusClosed
	}
	return s.current()
}

func (s *Session) current() Status {
	return Status(s.status.Load())
}

func (s *Session) setStatus(st Status) {
	s.status.Store(int32(st))
}

// Close marks the session closed. Queries in flight have their results
// discarded.
func (s *Session) Close() {
	s.closed.Store(true)
}

// Username returns the account name once a challenge has found the
// account. It is safe to call from any goroutine.
func (s *Session) Username() string {
	name, _ := s.username.Load().(string)
	return name
}

func (s *Session) setInfo(info *account.Info) {
	s.info = info
	s.username.Store(info.Username)
}

func (s *Session) open(ctx context.Context) bool {
	return !s.closed.Load() && ctx.Err() == nil
}

// Handle processes one complete packet. A returned error means the
// connection must be dropped. When Handle returns nil and Status is
// StatusClosed, the transport closes the connection after the response.
func (s *Session) Handle(ctx context.Context, pkt []byte) error {
	if !s.open(ctx) || s.current() == StatusClosed {
		return ErrSessionClosed
	}
	if len(pkt) == 0 {
		s.setStatus(StatusClosed)
		return fmt.Errorf("%w: empty packet", ErrMalformedPacket)
	}

	cmd := protocol.AuthCmd(pkt[0])
	entry, ok := opcodeTable[cmd]
	if !ok || !slices.Contains(entry.allowed, s.current()) {
		from := s.current()
		s.setStatus(StatusClosed)
		s.emit(ctx, audit.Event{
			EventType: audit.EventProtocolViolation,
			Metadata:  map[string]string{"opcode": cmd.String(), "status": from.String()},
		})
		return fmt.Errorf("%w: %s in status %s", ErrUnexpectedOpcode, cmd, from)
	}

	s.h.deps.Metrics.PacketHandled(cmd.String())
	return entry.handle(s, ctx, pkt)
}

func (s *Session) send(pkt []byte) error {
	if _, err := s.w.Write(pkt); err != nil {
		s.setStatus(StatusClosed)
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *Session) emit(ctx context.Context, event audit.Event) {
	event.ConnID = s.connID
	event.IP = s.remoteIP
	if s.info != nil {
		event.AccountID = s.info.ID
		if event.Username == "" {
			event.Username = s.info.Username
		}
	}
	s.h.deps.Audit.Emit(context.WithoutCancel(ctx), event)
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedPacket, err)
}
