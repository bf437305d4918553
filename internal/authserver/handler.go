// Package authserver implements the logon session state machine: one
// Session per client connection, driven packet by packet by the transport.
package authserver

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/audit"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/internal/logging"
	"github.com/fzdarsky/realmgate/internal/metrics"
)

// DefaultAcceptedBuilds are the client builds answered with a challenge.
var DefaultAcceptedBuilds = []uint16{8606, 10505, 11159, 11403, 11723, 12340, 13623, 14545, 15595}

// bannedBy is recorded as the author of automatic bans.
const bannedBy = "realmgate"

// AuditHook receives credential and authorization outcomes.
type AuditHook interface {
	Emit(ctx context.Context, event audit.Event)
}

// TokenVerifier checks a two-factor token for an account against its stored
// secret. A token that was already accepted for the account must not verify.
type TokenVerifier interface {
	Verify(accountID uint32, secret, code string) (bool, error)
}

// CountryResolver maps a client address to a lowercase country code, or ""
// when the address is unknown.
type CountryResolver interface {
	Country(ip string) string
}

// WrongPassPolicy bans accounts after repeated failed proofs. A zero MaxCount
// or BanDuration disables automatic bans.
type WrongPassPolicy struct {
	MaxCount    uint32
	BanDuration time.Duration
}

// Config holds the logon policy.
type Config struct {
	AcceptedBuilds []uint16
	WrongPass      WrongPassPolicy
}

// Dependencies are the collaborators shared by every session. Accounts,
// Realms and Recorder are required; the rest may be nil.
type Dependencies struct {
	Accounts  account.AccountLookup
	Realms    account.RealmDirectory
	Recorder  account.LoginRecorder
	Tracker   auth.FailureTracker
	Tokens    TokenVerifier
	Locations CountryResolver
	Audit     AuditHook
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// Handler creates sessions that share one policy and one set of backends.
type Handler struct {
	builds    []uint16
	wrongPass WrongPassPolicy
	deps      Dependencies
}

// NewHandler validates deps and applies defaults to cfg.
func NewHandler(cfg Config, deps Dependencies) (*Handler, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account lookup is required")
	}
	if deps.Realms == nil {
		return nil, errors.New("realm directory is required")
	}
	if deps.Recorder == nil {
		return nil, errors.New("login recorder is required")
	}
	if deps.Tokens == nil {
		deps.Tokens = auth.NewTOTPVerifier()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoOpSink{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	builds := cfg.AcceptedBuilds
	if len(builds) == 0 {
		builds = DefaultAcceptedBuilds
	}

	return &Handler{
		builds:    slices.Clone(builds),
		wrongPass: cfg.WrongPass,
		deps:      deps,
	}, nil
}

// IsAcceptedBuild reports whether clients of build may log in.
func (h *Handler) IsAcceptedBuild(build uint16) bool {
	return slices.Contains(h.builds, build)
}

// NewSession starts a session for one connection. Responses are written to
// w; remoteIP is the peer address used for bans, locks and failure tracking.
func (h *Handler) NewSession(w io.Writer, connID, remoteIP string) *Session {
	s := &Session{
		h:        h,
		w:        w,
		connID:   connID,
		remoteIP: remoteIP,
		log: h.deps.Logger.WithFields(map[string]any{
			"conn_id":   connID,
			"remote_ip": remoteIP,
		}),
	}
	s.setStatus(StatusChallenge)
	return s
}

// observe records the latency of a store query started at start.
func (h *Handler) observe(operation string, start time.Time) {
	h.deps.Metrics.ObserveStore(operation, time.Since(start).Seconds())
}
