package account

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"
)

type memoryAccount struct {
	info       Info
	sessionKey []byte
	email      string
	lastLogin  time.Time
	bans       []memoryBan
}

type memoryBan struct {
	banDate   int64
	unbanDate int64
}

// MemoryStore is an in-process Store for tests and single-node trials.
// Nothing is persisted.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uint32]*memoryAccount
	byName   map[string]uint32
	ipBans   map[string][]memoryBan
	realms   map[uint32]Realm
	chars    map[uint32]map[uint32]uint8 // account id -> realm id -> count
	nextID   uint32
	nextRlm  uint32
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uint32]*memoryAccount),
		byName:   make(map[string]uint32),
		ipBans:   make(map[string][]memoryBan),
		realms:   make(map[uint32]Realm),
		chars:    make(map[uint32]map[uint32]uint8),
		nextID:   1,
		nextRlm:  1,
		now:      time.Now,
	}
}

// LookupForLogon implements AccountLookup.
func (m *MemoryStore) LookupForLogon(_ context.Context, clientIP, username string) (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc := m.byUsername(username)
	if acc == nil {
		return nil, nil
	}

	info := copyInfo(&acc.info)
	now := m.now()
	for _, b := range append(append([]memoryBan(nil), acc.bans...), m.ipBans[clientIP]...) {
		active, permanent := banState(b.banDate, b.unbanDate, now)
		info.IsBanned = info.IsBanned || active
		info.IsPermanentlyBanned = info.IsPermanentlyBanned || permanent
	}
	return info, nil
}

// SessionKey implements AccountLookup.
func (m *MemoryStore) SessionKey(_ context.Context, username string) (*Info, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc := m.byUsername(username)
	if acc == nil {
		return nil, nil, nil
	}
	return copyInfo(&acc.info), bytes.Clone(acc.sessionKey), nil
}

// RecordLogonSuccess implements LoginRecorder.
func (m *MemoryStore) RecordLogonSuccess(_ context.Context, success LogonSuccess) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[success.AccountID]
	if !ok {
		return ErrAccountNotFound
	}
	acc.sessionKey = bytes.Clone(success.SessionKey)
	acc.info.LastIP = success.IP
	acc.info.FailedLogins = 0
	acc.lastLogin = success.At
	return nil
}

// RecordLogonFailure implements LoginRecorder.
func (m *MemoryStore) RecordLogonFailure(_ context.Context, accountID uint32, _ string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	acc.info.FailedLogins++
	return acc.info.FailedLogins, nil
}

// BanAccount implements LoginRecorder.
func (m *MemoryStore) BanAccount(_ context.Context, accountID uint32, ban Ban) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	now := m.now().Unix()
	acc.bans = append(acc.bans, memoryBan{banDate: now, unbanDate: now + int64(ban.Duration.Seconds())})
	return nil
}

// BanIP implements Store.
func (m *MemoryStore) BanIP(_ context.Context, ip string, ban Ban) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().Unix()
	m.ipBans[ip] = append(m.ipBans[ip], memoryBan{banDate: now, unbanDate: now + int64(ban.Duration.Seconds())})
	return nil
}

// Realms implements RealmDirectory. Realms are ordered by id.
func (m *MemoryStore) Realms(_ context.Context) ([]Realm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	realms := make([]Realm, 0, len(m.realms))
	for _, r := range m.realms {
		realms = append(realms, r)
	}
	sort.Slice(realms, func(i, j int) bool { return realms[i].ID < realms[j].ID })
	return realms, nil
}

// CharacterCounts implements RealmDirectory.
func (m *MemoryStore) CharacterCounts(_ context.Context, accountID uint32) (map[uint32]uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[uint32]uint8, len(m.chars[accountID]))
	for realmID, n := range m.chars[accountID] {
		counts[realmID] = n
	}
	return counts, nil
}

// SetCharacterCount sets the number of characters an account has on a realm.
func (m *MemoryStore) SetCharacterCount(accountID, realmID uint32, n uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chars[accountID] == nil {
		m.chars[accountID] = make(map[uint32]uint8)
	}
	m.chars[accountID][realmID] = n
}

// GetID implements Store.
func (m *MemoryStore) GetID(_ context.Context, username string) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[username]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return id, nil
}

// InsertAccount implements Store.
func (m *MemoryStore) InsertAccount(_ context.Context, rec *Record) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[rec.Username]; exists {
		return 0, ErrDuplicateAccount
	}

	id := m.nextID
	m.nextID++
	m.accounts[id] = &memoryAccount{
		info: Info{
			ID:          id,
			Username:    rec.Username,
			Salt:        bytes.Clone(rec.Salt),
			Verifier:    bytes.Clone(rec.Verifier),
			LockCountry: NoCountryLock,
			LastIP:      "127.0.0.1",
		},
		email: rec.Email,
	}
	m.byName[rec.Username] = id
	return id, nil
}

// UpdateVerifier implements Store.
func (m *MemoryStore) UpdateVerifier(_ context.Context, accountID uint32, salt, verifier []byte) error {
	return m.update(accountID, func(acc *memoryAccount) {
		acc.info.Salt = bytes.Clone(salt)
		acc.info.Verifier = bytes.Clone(verifier)
		acc.sessionKey = nil
	})
}

// SetTOTPSecret implements Store.
func (m *MemoryStore) SetTOTPSecret(_ context.Context, accountID uint32, secret string) error {
	return m.update(accountID, func(acc *memoryAccount) {
		acc.info.TOTPSecret = secret
	})
}

// SetSecurityLevel implements Store.
func (m *MemoryStore) SetSecurityLevel(_ context.Context, accountID uint32, level SecurityLevel) error {
	return m.update(accountID, func(acc *memoryAccount) {
		acc.info.SecurityLevel = level
	})
}

// LockToIP enables or disables the address lock of an account.
func (m *MemoryStore) LockToIP(accountID uint32, locked bool, lastIP string) error {
	return m.update(accountID, func(acc *memoryAccount) {
		acc.info.IsLockedToIP = locked
		acc.info.LastIP = lastIP
	})
}

// LockToCountry sets the country lock of an account.
func (m *MemoryStore) LockToCountry(accountID uint32, country string) error {
	return m.update(accountID, func(acc *memoryAccount) {
		acc.info.LockCountry = country
	})
}

// AddRealm implements Store.
func (m *MemoryStore) AddRealm(_ context.Context, realm *Realm) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.realms {
		if r.Name == realm.Name {
			return 0, ErrDuplicateRealm
		}
	}

	realm.ApplyDefaults()
	realm.ID = m.nextRlm
	m.nextRlm++
	m.realms[realm.ID] = *realm
	return realm.ID, nil
}

// InitRealmCharacters implements Store.
func (m *MemoryStore) InitRealmCharacters(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for accountID := range m.accounts {
		if m.chars[accountID] == nil {
			m.chars[accountID] = make(map[uint32]uint8)
		}
		for realmID := range m.realms {
			if _, ok := m.chars[accountID][realmID]; !ok {
				m.chars[accountID][realmID] = 0
			}
		}
	}
	return nil
}

// Healthcheck implements Store.
func (m *MemoryStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) update(accountID uint32, fn func(*memoryAccount)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	fn(acc)
	return nil
}

func (m *MemoryStore) byUsername(username string) *memoryAccount {
	id, ok := m.byName[username]
	if !ok {
		return nil
	}
	return m.accounts[id]
}

func copyInfo(in *Info) *Info {
	out := *in
	out.Salt = bytes.Clone(in.Salt)
	out.Verifier = bytes.Clone(in.Verifier)
	return &out
}
