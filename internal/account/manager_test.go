package account_test

import (
	"context"
	"strings"
	"testing"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateAccount(t *testing.T) {
	store := account.NewMemoryStore()
	m := account.NewManager(store)
	ctx := context.Background()

	_, err := m.AddRealm(ctx, &account.Realm{Name: "Alpha"})
	require.NoError(t, err)

	result, err := m.CreateAccount(ctx, "alice", "password", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.OpOK, result)

	info, err := store.LookupForLogon(ctx, "127.0.0.1", "ALICE")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Len(t, info.Salt, 32)
	assert.Len(t, info.Verifier, 32)
	assert.True(t, auth.CheckLogin("ALICE", "PASSWORD", info.Salt, info.Verifier))

	counts, err := store.CharacterCounts(ctx, info.ID)
	require.NoError(t, err)
	assert.Len(t, counts, 1, "realm character rows are initialised")

	result, err = m.CreateAccount(ctx, "ALICE", "other", "")
	require.NoError(t, err)
	assert.Equal(t, account.OpNameAlreadyExist, result)
}

func TestManager_CreateAccount_Limits(t *testing.T) {
	m := account.NewManager(account.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		email    string
		expected account.AccountOpResult
	}{
		{"name at limit", strings.Repeat("A", 17), "P", "", account.OpOK},
		{"name too long", strings.Repeat("B", 18), "P", "", account.OpNameTooLong},
		{"password at limit", "CAROL", strings.Repeat("P", 16), "", account.OpOK},
		{"password too long", "DAVE", strings.Repeat("P", 17), "", account.OpPassTooLong},
		{"email too long", "ERIN", "P", strings.Repeat("e", 256), account.OpEmailTooLong},
		{"multibyte name counted in bytes", strings.Repeat("é", 9), "P", "", account.OpNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := m.CreateAccount(ctx, tt.username, tt.password, tt.email)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestManager_ChangePassword(t *testing.T) {
	m := account.NewManager(account.NewMemoryStore())
	ctx := context.Background()

	_, err := m.CreateAccount(ctx, "alice", "old", "")
	require.NoError(t, err)

	result, err := m.ChangePassword(ctx, "alice", "new")
	require.NoError(t, err)
	assert.Equal(t, account.OpOK, result)

	ok, err := m.CheckPassword(ctx, "alice", "new")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CheckPassword(ctx, "alice", "old")
	require.NoError(t, err)
	assert.False(t, ok)

	result, err = m.ChangePassword(ctx, "nobody", "x")
	require.NoError(t, err)
	assert.Equal(t, account.OpNameNotExist, result)

	_, err = m.CheckPassword(ctx, "nobody", "x")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestManager_TOTPAndBan(t *testing.T) {
	store := account.NewMemoryStore()
	m := account.NewManager(store)
	ctx := context.Background()

	_, err := m.CreateAccount(ctx, "alice", "pw", "")
	require.NoError(t, err)

	secret, err := m.EnableTOTP(ctx, "alice")
	require.NoError(t, err)
	_, err = auth.DecodeTOTPSecret(secret)
	require.NoError(t, err)

	info, err := store.LookupForLogon(ctx, "127.0.0.1", "ALICE")
	require.NoError(t, err)
	assert.Equal(t, secret, info.TOTPSecret)

	require.NoError(t, m.DisableTOTP(ctx, "alice"))
	require.NoError(t, m.SetSecurityLevel(ctx, "alice", account.SecModerator))
	require.NoError(t, m.Ban(ctx, "alice", account.Ban{}))

	info, err = store.LookupForLogon(ctx, "127.0.0.1", "ALICE")
	require.NoError(t, err)
	assert.Empty(t, info.TOTPSecret)
	assert.Equal(t, account.SecModerator, info.SecurityLevel)
	assert.True(t, info.IsPermanentlyBanned)

	assert.ErrorIs(t, m.Ban(ctx, "nobody", account.Ban{}), account.ErrAccountNotFound)
}

func TestAccountOpResult_String(t *testing.T) {
	assert.Equal(t, "ok", account.OpOK.String())
	assert.Equal(t, "name already exists", account.OpNameAlreadyExist.String())
	assert.Equal(t, "AccountOpResult(42)", account.AccountOpResult(42).String())
}
