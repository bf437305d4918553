package authserver

import (
	"context"
	"time"

	"github.com/fzdarsky/realmgate/internal/audit"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/pkg/protocol"
)

func (s *Session) handleReconnectChallenge(ctx context.Context, pkt []byte) error {
	s.setStatus(StatusClosed)

	ch, err := protocol.ParseLogonChallenge(pkt, protocol.CmdReconnectChallenge)
	if err != nil {
		return malformed(err)
	}
	s.challenge = ch
	s.log = s.log.WithFields(map[string]any{"username": ch.Username, "build": ch.Build})

	start := time.Now()
	info, err := s.h.deps.Accounts.LookupForLogon(ctx, s.remoteIP, ch.Username)
	s.h.observe("lookup_for_logon", start)
	if !s.open(ctx) {
		return ErrSessionClosed
	}
	if err != nil {
		s.log.Error("account lookup failed", map[string]any{"error": err.Error()})
		return s.rejectReconnectChallenge(ctx, protocol.ResultDBBusy, "")
	}
	if info == nil {
		return s.rejectReconnectChallenge(ctx, protocol.ResultUnknownAccount, audit.EventUnknownAccount)
	}

	result, eventType, err := s.checkAccess(ctx, info, ch.Build)
	if err != nil {
		return err
	}
	if result != protocol.ResultSuccess {
		return s.rejectReconnectChallenge(ctx, result, eventType)
	}

	start = time.Now()
	_, key, err := s.h.deps.Accounts.SessionKey(ctx, ch.Username)
	s.h.observe("session_key", start)
	if !s.open(ctx) {
		return ErrSessionClosed
	}
	if err != nil {
		s.log.Error("session key lookup failed", map[string]any{"error": err.Error()})
		return s.rejectReconnectChallenge(ctx, protocol.ResultDBBusy, "")
	}
	if len(key) == 0 {
		s.log.Info("reconnect without a previous logon")
		return s.rejectReconnectChallenge(ctx, protocol.ResultUnknownAccount, audit.EventUnknownAccount)
	}

	s.setInfo(info)
	s.sessionKey = key
	s.reconnect = auth.NewReconnectChallenge()

	resp := protocol.ReconnectChallengeResponse{Result: protocol.ResultSuccess, Challenge: s.reconnect}
	if err := s.send(resp.Encode()); err != nil {
		return err
	}

	s.h.deps.Metrics.LogonResult("reconnect_challenge", protocol.ResultSuccess.String())
	s.setStatus(StatusReconnectProof)
	return nil
}

// rejectReconnectChallenge sends the 2-byte failure form. An empty eventType
// skips the audit event.
func (s *Session) rejectReconnectChallenge(ctx context.Context, result protocol.AuthResult, eventType string) error {
	s.h.deps.Metrics.LogonResult("reconnect_challenge", result.String())
	if eventType != "" {
		s.emit(ctx, audit.Event{EventType: eventType, Username: s.challenge.Username, Result: result.String()})
	}
	resp := protocol.ReconnectChallengeResponse{Result: result}
	return s.send(resp.Encode())
}

func (s *Session) handleReconnectProof(ctx context.Context, pkt []byte) error {
	s.setStatus(StatusClosed)

	proof, err := protocol.ParseReconnectProof(pkt)
	if err != nil {
		return malformed(err)
	}

	if s.info == nil || len(s.sessionKey) == 0 || len(s.reconnect) == 0 {
		return s.rejectReconnectProof(protocol.ResultUnknownAccount)
	}
	challenge := s.reconnect
	s.reconnect = nil

	if !auth.VerifyReconnectProof(s.info.Username, proof.R1, challenge, s.sessionKey, proof.R2) {
		s.log.Warn("reconnect proof rejected")
		s.emit(ctx, audit.Event{
			EventType: audit.EventReconnectFailure,
			Result:    protocol.ResultIncorrectPassword.String(),
		})
		return s.rejectReconnectProof(protocol.ResultIncorrectPassword)
	}

	if err := s.send(protocol.EncodeReconnectProofResponse(protocol.ResultSuccess)); err != nil {
		return err
	}

	s.h.deps.Metrics.LogonResult("reconnect_proof", protocol.ResultSuccess.String())
	s.emit(ctx, audit.Event{EventType: audit.EventReconnectSuccess, Success: true, Result: protocol.ResultSuccess.String()})
	s.log.Info("account reconnected")
	s.setStatus(StatusAuthed)
	return nil
}

func (s *Session) rejectReconnectProof(result protocol.AuthResult) error {
	s.h.deps.Metrics.LogonResult("reconnect_proof", result.String())
	return s.send(protocol.EncodeReconnectProofResponse(result))
}
