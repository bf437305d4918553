package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories runs every contract test against both implementations.
func storeFactories(t *testing.T) map[string]func() account.Store {
	t.Helper()

	return map[string]func() account.Store{
		"memory": func() account.Store { return account.NewMemoryStore() },
		"sqlite": func() account.Store {
			s, err := account.NewGORMStore(&account.Config{
				Type:   account.DatabaseTypeSQLite,
				SQLite: account.SQLiteConfig{Path: ":memory:"},
			})
			require.NoError(t, err)
			return s
		},
	}
}

func insertAccount(t *testing.T, s account.Store, username string) uint32 {
	t.Helper()

	id, err := s.InsertAccount(context.Background(), &account.Record{
		Username:  username,
		Salt:      []byte{0x01, 0x02, 0x03},
		Verifier:  []byte{0xAA, 0xBB},
		Expansion: 2,
	})
	require.NoError(t, err)
	return id
}

func TestStore_LookupForLogon(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()
			ctx := context.Background()

			info, err := s.LookupForLogon(ctx, "10.0.0.1", "NOBODY")
			require.NoError(t, err)
			assert.Nil(t, info)

			id := insertAccount(t, s, "ALICE")

			info, err = s.LookupForLogon(ctx, "10.0.0.1", "ALICE")
			require.NoError(t, err)
			require.NotNil(t, info)
			assert.Equal(t, id, info.ID)
			assert.Equal(t, "ALICE", info.Username)
			assert.Equal(t, []byte{0x01, 0x02, 0x03}, info.Salt)
			assert.Equal(t, []byte{0xAA, 0xBB}, info.Verifier)
			assert.Equal(t, account.NoCountryLock, info.LockCountry)
			assert.False(t, info.HasCountryLock())
			assert.False(t, info.IsBanned)
			assert.False(t, info.IsLockedToIP)
			assert.Equal(t, account.SecPlayer, info.SecurityLevel)
			assert.Empty(t, info.TOTPSecret)
		})
	}
}

func TestStore_DuplicateAccount(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()

			insertAccount(t, s, "ALICE")
			_, err := s.InsertAccount(context.Background(), &account.Record{Username: "ALICE"})
			assert.ErrorIs(t, err, account.ErrDuplicateAccount)

			_, err = s.GetID(context.Background(), "BOB")
			assert.ErrorIs(t, err, account.ErrAccountNotFound)
		})
	}
}

func TestStore_Bans(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()
			ctx := context.Background()

			permID := insertAccount(t, s, "PERM")
			tempID := insertAccount(t, s, "TEMP")
			insertAccount(t, s, "CLEAN")

			require.NoError(t, s.BanAccount(ctx, permID, account.Ban{BannedBy: "test", Reason: "cheating"}))
			require.NoError(t, s.BanAccount(ctx, tempID, account.Ban{Duration: time.Hour, BannedBy: "test"}))
			require.NoError(t, s.BanIP(ctx, "10.9.9.9", account.Ban{Duration: time.Hour}))

			info, err := s.LookupForLogon(ctx, "10.0.0.1", "PERM")
			require.NoError(t, err)
			assert.True(t, info.IsBanned)
			assert.True(t, info.IsPermanentlyBanned)

			info, err = s.LookupForLogon(ctx, "10.0.0.1", "TEMP")
			require.NoError(t, err)
			assert.True(t, info.IsBanned)
			assert.False(t, info.IsPermanentlyBanned)

			info, err = s.LookupForLogon(ctx, "10.0.0.1", "CLEAN")
			require.NoError(t, err)
			assert.False(t, info.IsBanned)

			info, err = s.LookupForLogon(ctx, "10.9.9.9", "CLEAN")
			require.NoError(t, err)
			assert.True(t, info.IsBanned, "address ban applies to any account")
			assert.False(t, info.IsPermanentlyBanned)
		})
	}
}

func TestStore_LogonRecording(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()
			ctx := context.Background()

			id := insertAccount(t, s, "ALICE")

			_, key, err := s.SessionKey(ctx, "ALICE")
			require.NoError(t, err)
			assert.Nil(t, key)

			n, err := s.RecordLogonFailure(ctx, id, "10.0.0.2")
			require.NoError(t, err)
			assert.Equal(t, uint32(1), n)
			n, err = s.RecordLogonFailure(ctx, id, "10.0.0.2")
			require.NoError(t, err)
			assert.Equal(t, uint32(2), n)

			sessionKey := make([]byte, 40)
			for i := range sessionKey {
				sessionKey[i] = byte(i)
			}
			require.NoError(t, s.RecordLogonSuccess(ctx, account.LogonSuccess{
				AccountID:  id,
				IP:         "10.0.0.3",
				SessionKey: sessionKey,
				OS:         "Win",
				Locale:     "enUS",
				At:         time.Now(),
			}))

			info, key, err := s.SessionKey(ctx, "ALICE")
			require.NoError(t, err)
			assert.Equal(t, sessionKey, key)
			assert.Equal(t, "10.0.0.3", info.LastIP)
			assert.Equal(t, uint32(0), info.FailedLogins)

			info, key, err = s.SessionKey(ctx, "NOBODY")
			require.NoError(t, err)
			assert.Nil(t, info)
			assert.Nil(t, key)

			_, err = s.RecordLogonFailure(ctx, 9999, "10.0.0.2")
			assert.ErrorIs(t, err, account.ErrAccountNotFound)
		})
	}
}

func TestStore_CredentialsAndSecurity(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()
			ctx := context.Background()

			id := insertAccount(t, s, "ALICE")
			require.NoError(t, s.RecordLogonSuccess(ctx, account.LogonSuccess{AccountID: id, SessionKey: make([]byte, 40), IP: "127.0.0.1"}))

			require.NoError(t, s.UpdateVerifier(ctx, id, []byte{0x09}, []byte{0x08}))
			info, key, err := s.SessionKey(ctx, "ALICE")
			require.NoError(t, err)
			assert.Equal(t, []byte{0x09}, info.Salt)
			assert.Equal(t, []byte{0x08}, info.Verifier)
			assert.Nil(t, key, "changing the password drops the session key")

			require.NoError(t, s.SetTOTPSecret(ctx, id, "JBSWY3DPEHPK3PXP"))
			require.NoError(t, s.SetSecurityLevel(ctx, id, account.SecGamemaster))
			require.NoError(t, s.SetSecurityLevel(ctx, id, account.SecAdministrator))

			info, err = s.LookupForLogon(ctx, "127.0.0.1", "ALICE")
			require.NoError(t, err)
			assert.Equal(t, "JBSWY3DPEHPK3PXP", info.TOTPSecret)
			assert.Equal(t, account.SecAdministrator, info.SecurityLevel)

			require.NoError(t, s.SetTOTPSecret(ctx, id, ""))
			info, err = s.LookupForLogon(ctx, "127.0.0.1", "ALICE")
			require.NoError(t, err)
			assert.Empty(t, info.TOTPSecret)

			assert.ErrorIs(t, s.SetSecurityLevel(ctx, 9999, account.SecPlayer), account.ErrAccountNotFound)
			assert.ErrorIs(t, s.UpdateVerifier(ctx, 9999, nil, nil), account.ErrAccountNotFound)
		})
	}
}

func TestStore_Realms(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()
			ctx := context.Background()

			aliceID := insertAccount(t, s, "ALICE")

			first := &account.Realm{Name: "Alpha", Icon: 1, Timezone: 1}
			id1, err := s.AddRealm(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, id1, first.ID)

			id2, err := s.AddRealm(ctx, &account.Realm{
				Name:                 "Staff",
				Address:              "10.1.1.1",
				Port:                 8086,
				AllowedSecurityLevel: account.SecGamemaster,
				GameBuild:            8606,
			})
			require.NoError(t, err)

			_, err = s.AddRealm(ctx, &account.Realm{Name: "Alpha"})
			assert.ErrorIs(t, err, account.ErrDuplicateRealm)

			realms, err := s.Realms(ctx)
			require.NoError(t, err)
			require.Len(t, realms, 2)
			assert.Equal(t, "Alpha", realms[0].Name)
			assert.Equal(t, "127.0.0.1", realms[0].Address)
			assert.Equal(t, uint16(8085), realms[0].Port)
			assert.Equal(t, uint32(12340), realms[0].GameBuild)
			assert.Equal(t, uint8(0), realms[0].Flag)
			assert.Equal(t, account.SecGamemaster, realms[1].AllowedSecurityLevel)
			assert.Equal(t, uint32(8606), realms[1].GameBuild)

			require.NoError(t, s.InitRealmCharacters(ctx))
			require.NoError(t, s.InitRealmCharacters(ctx))

			counts, err := s.CharacterCounts(ctx, aliceID)
			require.NoError(t, err)
			assert.Equal(t, map[uint32]uint8{id1: 0, id2: 0}, counts)
		})
	}
}
