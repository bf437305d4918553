package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // RFC 6238 default algorithm, required by the game client authenticator
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// TOTPDigits is the number of digits in a token.
	TOTPDigits = 6

	// TOTPPeriod is the token time step.
	TOTPPeriod = 30 * time.Second

	// TOTPSkew is the number of steps accepted on either side of now.
	TOTPSkew = 1

	totpSecretBytes = 20

	// replay entries are pruned once the table holds this many accounts.
	totpPruneThreshold = 1024
)

var (
	// ErrInvalidTOTPSecret is returned when a stored secret is not valid base32.
	ErrInvalidTOTPSecret = errors.New("invalid totp secret")

	// ErrTOTPReplay is returned when a token for an already used time step is
	// presented again.
	ErrTOTPReplay = errors.New("totp token already used")
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPVerifier checks RFC 6238 tokens (HMAC-SHA1, six digits, 30 second step).
// It remembers the last accepted time step per account and refuses tokens for
// that step or an earlier one.
type TOTPVerifier struct {
	now func() time.Time

	mu       sync.Mutex
	lastUsed map[uint32]int64
}

// NewTOTPVerifier creates a verifier using the wall clock.
func NewTOTPVerifier() *TOTPVerifier {
	return newTOTPVerifier(time.Now)
}

func newTOTPVerifier(now func() time.Time) *TOTPVerifier {
	return &TOTPVerifier{now: now, lastUsed: make(map[uint32]int64)}
}

// Verify checks code for the account against a base32 encoded secret at the
// current time. A valid token whose step was already accepted for the account
// yields false and ErrTOTPReplay.
func (v *TOTPVerifier) Verify(accountID uint32, secretBase32, code string) (bool, error) {
	secret, err := DecodeTOTPSecret(secretBase32)
	if err != nil {
		return false, err
	}
	at := v.now()
	counter, ok := MatchTOTPCounter(secret, code, at)
	if !ok {
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if last, seen := v.lastUsed[accountID]; seen && counter <= last {
		return false, ErrTOTPReplay
	}
	v.lastUsed[accountID] = counter
	if len(v.lastUsed) > totpPruneThreshold {
		v.prune(totpCounter(at) - TOTPSkew)
	}
	return true, nil
}

// prune drops accounts whose last step can no longer collide with a token
// inside the skew window. Callers hold mu.
func (v *TOTPVerifier) prune(oldest int64) {
	for id, counter := range v.lastUsed {
		if counter < oldest {
			delete(v.lastUsed, id)
		}
	}
}

// VerifyTOTPAt checks code against secret, accepting TOTPSkew steps of drift.
func VerifyTOTPAt(secret []byte, code string, at time.Time) bool {
	_, ok := MatchTOTPCounter(secret, code, at)
	return ok
}

// MatchTOTPCounter returns the time step code belongs to, searching TOTPSkew
// steps on either side of at.
func MatchTOTPCounter(secret []byte, code string, at time.Time) (int64, bool) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != TOTPDigits || !isNumeric(trimmed) || len(secret) == 0 {
		return 0, false
	}

	base := totpCounter(at)
	for step := -TOTPSkew; step <= TOTPSkew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(secret, counter)), []byte(trimmed)) == 1 {
			return counter, true
		}
	}
	return 0, false
}

// TOTPCode returns the token for secret at the given time.
func TOTPCode(secret []byte, at time.Time) string {
	return hotpCode(secret, totpCounter(at))
}

func totpCounter(at time.Time) int64 {
	return at.Unix() / int64(TOTPPeriod/time.Second)
}

// GenerateTOTPSecret returns a new random secret and its base32 form.
func GenerateTOTPSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return raw, totpEncoding.EncodeToString(raw), nil
}

// DecodeTOTPSecret decodes a base32 secret. Padding and case are ignored.
func DecodeTOTPSecret(s string) ([]byte, error) {
	cleaned := strings.ToUpper(strings.TrimRight(strings.TrimSpace(s), "="))
	secret, err := totpEncoding.DecodeString(cleaned)
	if err != nil || len(secret) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTOTPSecret, s)
	}
	return secret, nil
}

func hotpCode(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%0*d", TOTPDigits, bin%1_000_000)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
