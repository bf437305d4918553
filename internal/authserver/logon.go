package authserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/audit"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/pkg/protocol"
	"github.com/fzdarsky/realmgate/pkg/srp"
)

func (s *Session) handleLogonChallenge(ctx context.Context, pkt []byte) error {
	s.setStatus(StatusClosed)

	ch, err := protocol.ParseLogonChallenge(pkt, protocol.CmdLogonChallenge)
	if err != nil {
		return malformed(err)
	}
	s.challenge = ch
	s.log = s.log.WithFields(map[string]any{"username": ch.Username, "build": ch.Build})
	s.log.Debug("logon challenge", map[string]any{
		"version":  ch.Version(),
		"platform": ch.Platform,
		"os":       ch.OS,
		"locale":   ch.Locale,
	})

	start := time.Now()
	info, err := s.h.deps.Accounts.LookupForLogon(ctx, s.remoteIP, ch.Username)
	s.h.observe("lookup_for_logon", start)
	if !s.open(ctx) {
		return ErrSessionClosed
	}
	if err != nil {
		s.log.Error("account lookup failed", map[string]any{"error": err.Error()})
		return s.rejectChallenge(ctx, protocol.ResultDBBusy, "")
	}
	if info == nil {
		return s.rejectChallenge(ctx, protocol.ResultUnknownAccount, audit.EventUnknownAccount)
	}
	s.setInfo(info)

	result, eventType, err := s.checkAccess(ctx, info, ch.Build)
	if err != nil {
		return err
	}
	if result != protocol.ResultSuccess {
		return s.rejectChallenge(ctx, result, eventType)
	}

	if len(info.Salt) != srp.SaltLength || len(info.Verifier) != srp.VerifierLength {
		s.log.Error("account has no usable verifier", map[string]any{
			"salt_length":     len(info.Salt),
			"verifier_length": len(info.Verifier),
		})
		return s.rejectChallenge(ctx, protocol.ResultDBBusy, "")
	}

	var flags uint8
	if info.TOTPSecret != "" {
		flags |= protocol.SecurityFlagToken
		s.tokenRequired = true
	}

	s.engine = auth.NewEngine(info.Username, info.Salt, info.Verifier)

	resp := protocol.ChallengeResponse{
		Result:        protocol.ResultSuccess,
		B:             s.engine.B(),
		G:             srp.G,
		N:             srp.N,
		Salt:          s.engine.Salt(),
		SecurityFlags: flags,
	}
	if err := s.send(resp.Encode()); err != nil {
		return err
	}

	s.h.deps.Metrics.LogonResult("challenge", protocol.ResultSuccess.String())
	s.log.Info("logon challenge accepted", map[string]any{"security_flags": flags})
	s.setStatus(StatusLogonProof)
	return nil
}

// checkAccess applies the account and address gates shared by the logon
// and reconnect challenges: IP lock, country lock, bans, the failure
// tracker and the client build. It returns ResultSuccess when all pass, or
// the result to send and the audit event to emit.
func (s *Session) checkAccess(ctx context.Context, info *account.Info, build uint16) (protocol.AuthResult, string, error) {
	if info.IsLockedToIP && info.LastIP != s.remoteIP {
		s.log.Info("account is locked to another address", map[string]any{"last_ip": info.LastIP})
		return protocol.ResultLockedEnforced, audit.EventIPLocked, nil
	}

	if info.HasCountryLock() {
		country := ""
		if s.h.deps.Locations != nil {
			country = s.h.deps.Locations.Country(s.remoteIP)
		}
		if !strings.EqualFold(country, info.LockCountry) {
			s.log.Info("account is locked to another country", map[string]any{
				"lock_country": info.LockCountry,
				"country":      country,
			})
			return protocol.ResultUnknownAccount, audit.EventCountryLocked, nil
		}
	}

	if info.IsBanned {
		if info.IsPermanentlyBanned {
			s.log.Info("banned account tried to log in")
			return protocol.ResultBanned, audit.EventAccountBanned, nil
		}
		s.log.Info("temporarily banned account tried to log in")
		return protocol.ResultSuspended, audit.EventAccountBanned, nil
	}

	if tracker := s.h.deps.Tracker; tracker != nil {
		remaining, err := tracker.Check(ctx, s.remoteIP)
		if !s.open(ctx) {
			return 0, "", ErrSessionClosed
		}
		switch {
		case errors.Is(err, auth.ErrClientLocked):
			s.log.Info("address is locked out", map[string]any{"remaining": remaining.String()})
			return protocol.ResultSuspended, audit.EventClientLocked, nil
		case err != nil:
			s.log.Error("failure tracker check failed", map[string]any{"error": err.Error()})
			return protocol.ResultDBBusy, "", nil
		}
	}

	if !s.h.IsAcceptedBuild(build) {
		s.log.Info("client build rejected")
		return protocol.ResultVersionInvalid, audit.EventVersionRejected, nil
	}

	return protocol.ResultSuccess, "", nil
}

// rejectChallenge sends the 3-byte failure form and leaves the session
// closed. An empty eventType skips the audit event.
func (s *Session) rejectChallenge(ctx context.Context, result protocol.AuthResult, eventType string) error {
	s.h.deps.Metrics.LogonResult("challenge", result.String())
	if eventType != "" {
		username := ""
		if s.challenge != nil {
			username = s.challenge.Username
		}
		s.emit(ctx, audit.Event{EventType: eventType, Username: username, Result: result.String()})
	}
	resp := protocol.ChallengeResponse{Result: result}
	return s.send(resp.Encode())
}

func (s *Session) handleLogonProof(ctx context.Context, pkt []byte) error {
	s.setStatus(StatusClosed)

	proof, err := protocol.ParseLogonProof(pkt)
	if err != nil {
		s.log.Warn("malformed logon proof", map[string]any{"length": len(pkt)})
		return malformed(err)
	}

	if s.engine == nil || s.info == nil {
		s.log.Error("logon proof without an accepted challenge")
		return s.rejectProof(protocol.ResultUnknownAccount)
	}
	engine := s.engine
	s.engine = nil

	key, ok := engine.VerifyChallengeResponse(proof.A, proof.M1)
	if !ok {
		s.log.Warn("wrong password")
		return s.failProof(ctx, audit.EventLogonFailure)
	}

	if s.tokenRequired {
		valid, err := s.h.deps.Tokens.Verify(s.info.ID, s.info.TOTPSecret, proof.Token)
		switch {
		case errors.Is(err, auth.ErrTOTPReplay):
			s.log.Warn("two-factor token reused")
		case err != nil:
			s.log.Error("stored totp secret is unusable", map[string]any{"error": err.Error()})
		}
		if !valid {
			s.log.Warn("invalid two-factor token")
			return s.failProof(ctx, audit.EventTwoFactorFailure)
		}
	}

	start := time.Now()
	err = s.h.deps.Recorder.RecordLogonSuccess(ctx, account.LogonSuccess{
		AccountID:  s.info.ID,
		IP:         s.remoteIP,
		SessionKey: key,
		OS:         s.challenge.OS,
		Locale:     s.challenge.Locale,
		At:         time.Now(),
	})
	s.h.observe("record_logon_success", start)
	if !s.open(ctx) {
		return ErrSessionClosed
	}
	if err != nil {
		s.log.Error("failed to record logon", map[string]any{"error": err.Error()})
		return s.rejectProof(protocol.ResultDBBusy)
	}

	if tracker := s.h.deps.Tracker; tracker != nil {
		if err := tracker.Reset(ctx, s.remoteIP); err != nil {
			s.log.Warn("failed to reset failure tracker", map[string]any{"error": err.Error()})
		}
	}

	resp := protocol.ProofResponse{
		Result:       protocol.ResultSuccess,
		M2:           auth.GetSessionVerifier(proof.A, proof.M1, key),
		AccountFlags: protocol.AccountFlagProPass,
	}
	if err := s.send(resp.Encode()); err != nil {
		return err
	}

	s.sessionKey = key
	s.h.deps.Metrics.LogonResult("proof", protocol.ResultSuccess.String())
	s.emit(ctx, audit.Event{EventType: audit.EventLogonSuccess, Success: true, Result: protocol.ResultSuccess.String()})
	s.log.Info("account authenticated")
	s.setStatus(StatusAuthed)
	return nil
}

func (s *Session) rejectProof(result protocol.AuthResult) error {
	s.h.deps.Metrics.LogonResult("proof", result.String())
	resp := protocol.ProofResponse{Result: result}
	return s.send(resp.Encode())
}

// failProof records a failed proof against the account and the address,
// applies the wrong password policy and answers INCORRECT_PASSWORD.
func (s *Session) failProof(ctx context.Context, eventType string) error {
	s.emit(ctx, audit.Event{EventType: eventType, Result: protocol.ResultIncorrectPassword.String()})

	start := time.Now()
	failed, err := s.h.deps.Recorder.RecordLogonFailure(ctx, s.info.ID, s.remoteIP)
	s.h.observe("record_logon_failure", start)
	if err != nil {
		s.log.Error("failed to record logon failure", map[string]any{"error": err.Error()})
	}

	if tracker := s.h.deps.Tracker; tracker != nil {
		if _, err := tracker.RecordFailure(ctx, s.remoteIP); err != nil {
			s.log.Warn("failed to record address failure", map[string]any{"error": err.Error()})
		}
	}

	policy := s.h.wrongPass
	if err == nil && policy.MaxCount > 0 && policy.BanDuration > 0 && failed >= policy.MaxCount {
		ban := account.Ban{
			Duration: policy.BanDuration,
			BannedBy: bannedBy,
			Reason:   "too many failed logons",
		}
		if err := s.h.deps.Recorder.BanAccount(ctx, s.info.ID, ban); err != nil {
			s.log.Error("failed to ban account", map[string]any{"error": err.Error()})
		} else {
			s.log.Info("account banned after failed logons", map[string]any{
				"failed_logins": failed,
				"duration":      policy.BanDuration.String(),
			})
			s.emit(ctx, audit.Event{
				EventType: audit.EventAccountAutoBanned,
				Metadata:  map[string]string{"duration": policy.BanDuration.String()},
			})
		}
	}

	if !s.open(ctx) {
		return ErrSessionClosed
	}
	return s.rejectProof(protocol.ResultIncorrectPassword)
}
