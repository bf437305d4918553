package account

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// GetID returns the id of the account with the given username.
func (s *GORMStore) GetID(ctx context.Context, username string) (uint32, error) {
	var acc accountModel
	if err := s.db.WithContext(ctx).Select("id").Where("username = ?", username).First(&acc).Error; err != nil {
		return 0, convertNotFoundError(err, ErrAccountNotFound)
	}
	return acc.ID, nil
}

// InsertAccount creates an account row.
func (s *GORMStore) InsertAccount(ctx context.Context, rec *Record) (uint32, error) {
	acc := &accountModel{
		Username:  rec.Username,
		Salt:      encodeHex(rec.Salt),
		Verifier:  encodeHex(rec.Verifier),
		Email:     rec.Email,
		RegMail:   rec.Email,
		Expansion: rec.Expansion,
		JoinDate:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(acc).Error; err != nil {
		if isUniqueConstraintError(err) {
			return 0, ErrDuplicateAccount
		}
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}
	return acc.ID, nil
}

// UpdateVerifier replaces the stored credentials and drops the session key.
func (s *GORMStore) UpdateVerifier(ctx context.Context, accountID uint32, salt, verifier []byte) error {
	result := s.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"salt":        encodeHex(salt),
			"verifier":    encodeHex(verifier),
			"session_key": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update verifier: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetTOTPSecret stores a base32 secret. An empty secret disables two-factor.
func (s *GORMStore) SetTOTPSecret(ctx context.Context, accountID uint32, secret string) error {
	var value any
	if secret != "" {
		value = secret
	}

	result := s.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("id = ?", accountID).
		Update("totp_secret", value)
	if result.Error != nil {
		return fmt.Errorf("failed to set totp secret: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetSecurityLevel grants a gm level on all realms.
func (s *GORMStore) SetSecurityLevel(ctx context.Context, accountID uint32, level SecurityLevel) error {
	if err := s.accountExists(ctx, accountID); err != nil {
		return err
	}

	row := &accountAccessModel{ID: accountID, RealmID: -1, GMLevel: uint8(level)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}, {Name: "realm_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"gmlevel"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to set security level: %w", err)
	}
	return nil
}

func (s *GORMStore) accountExists(ctx context.Context, accountID uint32) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&accountModel{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if count == 0 {
		return ErrAccountNotFound
	}
	return nil
}
