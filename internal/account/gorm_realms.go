package account

import (
	"context"
	"fmt"
)

// Realms implements RealmDirectory. Realms are ordered by id.
func (s *GORMStore) Realms(ctx context.Context) ([]Realm, error) {
	var rows []realmModel
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list realms: %w", err)
	}

	realms := make([]Realm, 0, len(rows))
	for i := range rows {
		realms = append(realms, rows[i].toRealm())
	}
	return realms, nil
}

// CharacterCounts implements RealmDirectory.
func (s *GORMStore) CharacterCounts(ctx context.Context, accountID uint32) (map[uint32]uint8, error) {
	var rows []realmCharactersModel
	if err := s.db.WithContext(ctx).Where("acctid = ?", accountID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load character counts: %w", err)
	}

	counts := make(map[uint32]uint8, len(rows))
	for _, r := range rows {
		counts[r.RealmID] = r.NumChars
	}
	return counts, nil
}

// AddRealm inserts a realm and returns its id.
func (s *GORMStore) AddRealm(ctx context.Context, realm *Realm) (uint32, error) {
	realm.ApplyDefaults()
	row := realmToModel(realm)
	row.ID = 0

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return 0, ErrDuplicateRealm
		}
		return 0, fmt.Errorf("failed to add realm: %w", err)
	}
	realm.ID = row.ID
	return row.ID, nil
}

// InitRealmCharacters adds a zero character count for every account and
// realm pair that has none.
func (s *GORMStore) InitRealmCharacters(ctx context.Context) error {
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO realmcharacters (realmid, acctid, numchars)
		SELECT r.id, a.id, 0
		FROM realmlist r CROSS JOIN account a
		WHERE NOT EXISTS (
			SELECT 1 FROM realmcharacters rc
			WHERE rc.realmid = r.id AND rc.acctid = a.id
		)`).Error
	if err != nil {
		return fmt.Errorf("failed to initialise realm characters: %w", err)
	}
	return nil
}
