package account

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// LookupForLogon implements AccountLookup.
func (s *GORMStore) LookupForLogon(ctx context.Context, clientIP, username string) (*Info, error) {
	var acc accountModel
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	info, err := accountToInfo(&acc)
	if err != nil {
		return nil, err
	}

	if info.SecurityLevel, err = s.securityLevel(ctx, acc.ID); err != nil {
		return nil, err
	}

	now := s.now()

	var accountBans []accountBannedModel
	if err := s.db.WithContext(ctx).
		Where("id = ? AND active = ?", acc.ID, 1).
		Find(&accountBans).Error; err != nil {
		return nil, fmt.Errorf("failed to load account bans: %w", err)
	}
	for _, b := range accountBans {
		active, permanent := banState(b.BanDate, b.UnbanDate, now)
		info.IsBanned = info.IsBanned || active
		info.IsPermanentlyBanned = info.IsPermanentlyBanned || permanent
	}

	var ipBans []ipBannedModel
	if err := s.db.WithContext(ctx).Where("ip = ?", clientIP).Find(&ipBans).Error; err != nil {
		return nil, fmt.Errorf("failed to load address bans: %w", err)
	}
	for _, b := range ipBans {
		active, permanent := banState(b.BanDate, b.UnbanDate, now)
		info.IsBanned = info.IsBanned || active
		info.IsPermanentlyBanned = info.IsPermanentlyBanned || permanent
	}

	return info, nil
}

// SessionKey implements AccountLookup.
func (s *GORMStore) SessionKey(ctx context.Context, username string) (*Info, []byte, error) {
	var acc accountModel
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load account: %w", err)
	}

	info, err := accountToInfo(&acc)
	if err != nil {
		return nil, nil, err
	}
	if info.SecurityLevel, err = s.securityLevel(ctx, acc.ID); err != nil {
		return nil, nil, err
	}

	if len(acc.SessionKey) == 0 {
		return info, nil, nil
	}
	return info, acc.SessionKey, nil
}

// RecordLogonSuccess implements LoginRecorder.
func (s *GORMStore) RecordLogonSuccess(ctx context.Context, success LogonSuccess) error {
	at := success.At
	if at.IsZero() {
		at = s.now()
	}

	result := s.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("id = ?", success.AccountID).
		Updates(map[string]any{
			"session_key":   success.SessionKey,
			"last_ip":       success.IP,
			"last_login":    at,
			"locale":        success.Locale,
			"os":            success.OS,
			"failed_logins": 0,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record logon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordLogonFailure implements LoginRecorder.
func (s *GORMStore) RecordLogonFailure(ctx context.Context, accountID uint32, ip string) (uint32, error) {
	var failed uint32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&accountModel{}).
			Where("id = ?", accountID).
			Updates(map[string]any{
				"failed_logins":   gorm.Expr("failed_logins + ?", 1),
				"last_attempt_ip": ip,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAccountNotFound
		}

		var acc accountModel
		if err := tx.Select("failed_logins").Where("id = ?", accountID).First(&acc).Error; err != nil {
			return err
		}
		failed = acc.FailedLogins
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record logon failure: %w", err)
	}
	return failed, nil
}

// BanAccount implements LoginRecorder.
func (s *GORMStore) BanAccount(ctx context.Context, accountID uint32, ban Ban) error {
	now := s.now().Unix()
	row := &accountBannedModel{
		ID:        accountID,
		BanDate:   now,
		UnbanDate: now + int64(ban.Duration.Seconds()),
		BannedBy:  ban.BannedBy,
		BanReason: ban.Reason,
		Active:    1,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("failed to ban account: %w", err)
	}
	return nil
}

// BanIP bans a client address.
func (s *GORMStore) BanIP(ctx context.Context, ip string, ban Ban) error {
	now := s.now().Unix()
	row := &ipBannedModel{
		IP:        ip,
		BanDate:   now,
		UnbanDate: now + int64(ban.Duration.Seconds()),
		BannedBy:  ban.BannedBy,
		BanReason: ban.Reason,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("failed to ban address: %w", err)
	}
	return nil
}

func (s *GORMStore) securityLevel(ctx context.Context, accountID uint32) (SecurityLevel, error) {
	var rows []accountAccessModel
	if err := s.db.WithContext(ctx).Where("id = ?", accountID).Find(&rows).Error; err != nil {
		return SecPlayer, fmt.Errorf("failed to load account access: %w", err)
	}

	var level uint8
	for _, r := range rows {
		if r.GMLevel > level {
			level = r.GMLevel
		}
	}
	return ClampSecurityLevel(level), nil
}

func accountToInfo(acc *accountModel) (*Info, error) {
	salt, err := hex.DecodeString(acc.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt of account %d: %w", acc.ID, err)
	}
	verifier, err := hex.DecodeString(acc.Verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to decode verifier of account %d: %w", acc.ID, err)
	}

	info := &Info{
		ID:           acc.ID,
		Username:     acc.Username,
		Salt:         salt,
		Verifier:     verifier,
		IsLockedToIP: acc.Locked,
		LockCountry:  acc.LockCountry,
		LastIP:       acc.LastIP,
		FailedLogins: acc.FailedLogins,
	}
	if acc.TOTPSecret != nil {
		info.TOTPSecret = *acc.TOTPSecret
	}
	return info, nil
}

func encodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
