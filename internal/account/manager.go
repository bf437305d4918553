package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fzdarsky/realmgate/internal/auth"
)

// Field limits in bytes.
const (
	MaxAccountLength  = 17
	MaxPasswordLength = 16
	MaxEmailLength    = 255

	// DefaultExpansion is the expansion granted to new accounts.
	DefaultExpansion = 2
)

// AccountOpResult is the outcome of an account management operation.
type AccountOpResult int

// Account operation results.
const (
	OpOK AccountOpResult = iota
	OpNameTooLong
	OpPassTooLong
	OpEmailTooLong
	OpNameAlreadyExist
	OpNameNotExist
	OpDBInternalError
)

var opResultNames = map[AccountOpResult]string{
	OpOK:               "ok",
	OpNameTooLong:      "name too long",
	OpPassTooLong:      "password too long",
	OpEmailTooLong:     "email too long",
	OpNameAlreadyExist: "name already exists",
	OpNameNotExist:     "name does not exist",
	OpDBInternalError:  "database internal error",
}

func (r AccountOpResult) String() string {
	if name, ok := opResultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("AccountOpResult(%d)", int(r))
}

// Manager performs account administration on a Store.
type Manager struct {
	store Store
}

// NewManager creates a manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// CreateAccount registers a new account. Username, password and email are
// uppercased before use. On OpDBInternalError the returned error carries
// the cause.
func (m *Manager) CreateAccount(ctx context.Context, username, password, email string) (AccountOpResult, error) {
	if r := checkLengths(username, password, email); r != OpOK {
		return r, nil
	}

	username = strings.ToUpper(username)
	password = strings.ToUpper(password)
	email = strings.ToUpper(email)

	if _, err := m.store.GetID(ctx, username); err == nil {
		return OpNameAlreadyExist, nil
	} else if !errors.Is(err, ErrAccountNotFound) {
		return OpDBInternalError, err
	}

	salt, verifier, err := auth.MakeRegistrationData(username, password)
	if err != nil {
		return OpDBInternalError, err
	}

	_, err = m.store.InsertAccount(ctx, &Record{
		Username:  username,
		Salt:      salt[:],
		Verifier:  verifier[:],
		Email:     email,
		Expansion: DefaultExpansion,
	})
	if errors.Is(err, ErrDuplicateAccount) {
		return OpNameAlreadyExist, nil
	}
	if err != nil {
		return OpDBInternalError, err
	}

	if err := m.store.InitRealmCharacters(ctx); err != nil {
		return OpDBInternalError, err
	}

	return OpOK, nil
}

// ChangePassword replaces the credentials of an existing account.
func (m *Manager) ChangePassword(ctx context.Context, username, password string) (AccountOpResult, error) {
	if len(password) > MaxPasswordLength {
		return OpPassTooLong, nil
	}

	username = strings.ToUpper(username)
	password = strings.ToUpper(password)

	id, err := m.store.GetID(ctx, username)
	if errors.Is(err, ErrAccountNotFound) {
		return OpNameNotExist, nil
	}
	if err != nil {
		return OpDBInternalError, err
	}

	salt, verifier, err := auth.MakeRegistrationData(username, password)
	if err != nil {
		return OpDBInternalError, err
	}
	if err := m.store.UpdateVerifier(ctx, id, salt[:], verifier[:]); err != nil {
		return OpDBInternalError, err
	}
	return OpOK, nil
}

// CheckPassword reports whether password matches the stored credentials.
func (m *Manager) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	username = strings.ToUpper(username)

	info, err := m.store.LookupForLogon(ctx, "", username)
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, ErrAccountNotFound
	}
	return auth.CheckLogin(username, strings.ToUpper(password), info.Salt, info.Verifier), nil
}

// EnableTOTP generates and stores a new two-factor secret and returns it in
// base32.
func (m *Manager) EnableTOTP(ctx context.Context, username string) (string, error) {
	id, err := m.store.GetID(ctx, strings.ToUpper(username))
	if err != nil {
		return "", err
	}

	_, secret, err := auth.GenerateTOTPSecret()
	if err != nil {
		return "", err
	}
	if err := m.store.SetTOTPSecret(ctx, id, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// DisableTOTP removes the two-factor secret.
func (m *Manager) DisableTOTP(ctx context.Context, username string) error {
	id, err := m.store.GetID(ctx, strings.ToUpper(username))
	if err != nil {
		return err
	}
	return m.store.SetTOTPSecret(ctx, id, "")
}

// Ban bans an account by name.
func (m *Manager) Ban(ctx context.Context, username string, ban Ban) error {
	id, err := m.store.GetID(ctx, strings.ToUpper(username))
	if err != nil {
		return err
	}
	return m.store.BanAccount(ctx, id, ban)
}

// SetSecurityLevel sets the gm level of an account by name.
func (m *Manager) SetSecurityLevel(ctx context.Context, username string, level SecurityLevel) error {
	id, err := m.store.GetID(ctx, strings.ToUpper(username))
	if err != nil {
		return err
	}
	return m.store.SetSecurityLevel(ctx, id, level)
}

// AddRealm registers a realm and creates character count rows for it.
func (m *Manager) AddRealm(ctx context.Context, realm *Realm) (uint32, error) {
	id, err := m.store.AddRealm(ctx, realm)
	if err != nil {
		return 0, err
	}
	if err := m.store.InitRealmCharacters(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func checkLengths(username, password, email string) AccountOpResult {
	switch {
	case len(username) > MaxAccountLength:
		return OpNameTooLong
	case len(password) > MaxPasswordLength:
		return OpPassTooLong
	case len(email) > MaxEmailLength:
		return OpEmailTooLong
	default:
		return OpOK
	}
}
