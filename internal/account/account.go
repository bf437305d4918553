// Package account provides the credential and realm records consumed by the
// authentication session, the interfaces it queries them through, and GORM
// and in-memory stores implementing them.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccountNotFound is returned when no account matches a lookup.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount is returned when the username is already taken.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrRealmNotFound is returned when no realm matches a lookup.
	ErrRealmNotFound = errors.New("realm not found")

	// ErrDuplicateRealm is returned when the realm name is already taken.
	ErrDuplicateRealm = errors.New("realm already exists")
)

// NoCountryLock is the lock_country value of an account without a country lock.
const NoCountryLock = "00"

// Info is the snapshot of an account taken for one logon attempt.
type Info struct {
	ID                  uint32
	Username            string
	Salt                []byte
	Verifier            []byte
	IsLockedToIP        bool
	LockCountry         string
	LastIP              string
	FailedLogins        uint32
	IsBanned            bool
	IsPermanentlyBanned bool
	SecurityLevel       SecurityLevel
	TOTPSecret          string // base32, empty when two-factor is off
}

// HasCountryLock reports whether the account may only log in from LockCountry.
func (i *Info) HasCountryLock() bool {
	return i.LockCountry != "" && i.LockCountry != NoCountryLock
}

// Realm is one entry of the realm directory.
type Realm struct {
	ID                   uint32        `json:"id"`
	Name                 string        `json:"name"`
	Address              string        `json:"address"`
	LocalAddress         string        `json:"local_address"`
	LocalSubnetMask      string        `json:"local_subnet_mask"`
	Port                 uint16        `json:"port"`
	Icon                 uint8         `json:"icon"`
	Flag                 uint8         `json:"flag"`
	Timezone             uint8         `json:"timezone"`
	AllowedSecurityLevel SecurityLevel `json:"allowed_security_level"`
	Population           float32       `json:"population"`
	GameBuild            uint32        `json:"game_build"`
}

// ApplyDefaults fills unset realm fields.
func (r *Realm) ApplyDefaults() {
	if r.Address == "" {
		r.Address = "127.0.0.1"
	}
	if r.LocalAddress == "" {
		r.LocalAddress = "127.0.0.1"
	}
	if r.LocalSubnetMask == "" {
		r.LocalSubnetMask = "255.255.255.0"
	}
	if r.Port == 0 {
		r.Port = 8085
	}
	if r.GameBuild == 0 {
		r.GameBuild = 12340
	}
}

// LogonSuccess describes a completed logon to be persisted.
type LogonSuccess struct {
	AccountID  uint32
	IP         string
	SessionKey []byte
	OS         string
	Locale     string
	At         time.Time
}

// Ban describes an account or address ban. A zero Duration is permanent.
type Ban struct {
	Duration time.Duration
	BannedBy string
	Reason   string
}

// AccountLookup loads the account snapshot needed by the challenge handlers.
type AccountLookup interface {
	// LookupForLogon returns the account with its ban state evaluated for
	// clientIP. It returns nil, nil when the account does not exist.
	LookupForLogon(ctx context.Context, clientIP, username string) (*Info, error)

	// SessionKey returns the account and the session key stored by its last
	// logon. It returns nil, nil, nil when the account does not exist and a
	// nil key when no logon has been recorded.
	SessionKey(ctx context.Context, username string) (*Info, []byte, error)
}

// RealmDirectory lists realms and per-account character counts.
type RealmDirectory interface {
	Realms(ctx context.Context) ([]Realm, error)
	CharacterCounts(ctx context.Context, accountID uint32) (map[uint32]uint8, error)
}

// LoginRecorder persists the outcome of logon attempts.
type LoginRecorder interface {
	RecordLogonSuccess(ctx context.Context, success LogonSuccess) error

	// RecordLogonFailure increments the failed logon counter and returns the
	// new value.
	RecordLogonFailure(ctx context.Context, accountID uint32, ip string) (uint32, error)

	BanAccount(ctx context.Context, accountID uint32, ban Ban) error
}

// Store is the full account store used by the gateway and the admin CLI.
type Store interface {
	AccountLookup
	RealmDirectory
	LoginRecorder

	GetID(ctx context.Context, username string) (uint32, error)
	InsertAccount(ctx context.Context, rec *Record) (uint32, error)
	UpdateVerifier(ctx context.Context, accountID uint32, salt, verifier []byte) error
	SetTOTPSecret(ctx context.Context, accountID uint32, secret string) error
	SetSecurityLevel(ctx context.Context, accountID uint32, level SecurityLevel) error
	BanIP(ctx context.Context, ip string, ban Ban) error

	AddRealm(ctx context.Context, realm *Realm) (uint32, error)
	InitRealmCharacters(ctx context.Context) error

	Healthcheck(ctx context.Context) error
	Close() error
}

// Record is the data written when an account is created.
type Record struct {
	Username  string
	Salt      []byte
	Verifier  []byte
	Email     string
	Expansion uint8
}

// banState evaluates a ban row the way the logon query does: a ban is active
// while its end lies in the future, and permanent when it ends when it began.
func banState(banDate, unbanDate int64, now time.Time) (active, permanent bool) {
	permanent = unbanDate == banDate
	active = permanent || unbanDate > now.Unix()
	return active, permanent
}
