package account

import "time"

// accountModel is a row of the account table.
type accountModel struct {
	ID            uint32     `gorm:"primaryKey;autoIncrement"`
	Username      string     `gorm:"uniqueIndex;size:32;not null"`
	Salt          string     `gorm:"size:64;not null"`
	Verifier      string     `gorm:"size:64;not null"`
	SessionKey    []byte     `gorm:"column:session_key"`
	TOTPSecret    *string    `gorm:"column:totp_secret;size:100"`
	Email         string     `gorm:"size:255;not null"`
	RegMail       string     `gorm:"column:reg_mail;size:255;not null"`
	JoinDate      time.Time  `gorm:"column:joindate;autoCreateTime"`
	LastIP        string     `gorm:"column:last_ip;size:15;not null;default:127.0.0.1"`
	LastAttemptIP string     `gorm:"column:last_attempt_ip;size:15;not null;default:127.0.0.1"`
	FailedLogins  uint32     `gorm:"column:failed_logins;not null"`
	Locked        bool       `gorm:"not null"`
	LockCountry   string     `gorm:"column:lock_country;size:2;not null;default:00"`
	LastLogin     *time.Time `gorm:"column:last_login"`
	Online        bool       `gorm:"not null"`
	Expansion     uint8      `gorm:"not null;default:2"`
	Locale        string     `gorm:"size:4;not null"`
	OS            string     `gorm:"column:os;size:4;not null"`
}

func (accountModel) TableName() string { return "account" }

// accountAccessModel grants a gm level on a realm; RealmID -1 means all realms.
type accountAccessModel struct {
	ID      uint32 `gorm:"primaryKey;autoIncrement:false"`
	RealmID int32  `gorm:"column:realm_id;primaryKey;autoIncrement:false"`
	GMLevel uint8  `gorm:"column:gmlevel;not null"`
	Comment string `gorm:"size:255"`
}

func (accountAccessModel) TableName() string { return "account_access" }

// accountBannedModel is an account ban. Dates are unix seconds.
type accountBannedModel struct {
	ID        uint32 `gorm:"primaryKey;autoIncrement:false"`
	BanDate   int64  `gorm:"column:bandate;primaryKey;autoIncrement:false"`
	UnbanDate int64  `gorm:"column:unbandate;not null"`
	BannedBy  string `gorm:"column:bannedby;size:50;not null"`
	BanReason string `gorm:"column:banreason;size:255;not null"`
	Active    uint8  `gorm:"not null;default:1"`
}

func (accountBannedModel) TableName() string { return "account_banned" }

// ipBannedModel is an address ban. Dates are unix seconds.
type ipBannedModel struct {
	IP        string `gorm:"column:ip;primaryKey;size:15"`
	BanDate   int64  `gorm:"column:bandate;primaryKey;autoIncrement:false"`
	UnbanDate int64  `gorm:"column:unbandate;not null"`
	BannedBy  string `gorm:"column:bannedby;size:50;not null"`
	BanReason string `gorm:"column:banreason;size:255;not null"`
}

func (ipBannedModel) TableName() string { return "ip_banned" }

// realmCharactersModel counts the characters an account has on a realm.
type realmCharactersModel struct {
	RealmID   uint32 `gorm:"column:realmid;primaryKey;autoIncrement:false"`
	AccountID uint32 `gorm:"column:acctid;primaryKey;autoIncrement:false"`
	NumChars  uint8  `gorm:"column:numchars;not null"`
}

func (realmCharactersModel) TableName() string { return "realmcharacters" }

// realmModel is a row of the realm list.
type realmModel struct {
	ID                   uint32  `gorm:"primaryKey;autoIncrement"`
	Name                 string  `gorm:"uniqueIndex;size:32;not null"`
	Address              string  `gorm:"size:255;not null"`
	LocalAddress         string  `gorm:"column:local_address;size:255;not null"`
	LocalSubnetMask      string  `gorm:"column:local_subnet_mask;size:255;not null"`
	Port                 uint16  `gorm:"not null"`
	Icon                 uint8   `gorm:"not null"`
	Flag                 uint8   `gorm:"not null"`
	Timezone             uint8   `gorm:"not null"`
	AllowedSecurityLevel uint8   `gorm:"column:allowed_security_level;not null"`
	Population           float32 `gorm:"not null"`
	GameBuild            uint32  `gorm:"column:gamebuild;not null"`
}

func (realmModel) TableName() string { return "realmlist" }

func (m *realmModel) toRealm() Realm {
	return Realm{
		ID:                   m.ID,
		Name:                 m.Name,
		Address:              m.Address,
		LocalAddress:         m.LocalAddress,
		LocalSubnetMask:      m.LocalSubnetMask,
		Port:                 m.Port,
		Icon:                 m.Icon,
		Flag:                 m.Flag,
		Timezone:             m.Timezone,
		AllowedSecurityLevel: ClampSecurityLevel(m.AllowedSecurityLevel),
		Population:           m.Population,
		GameBuild:            m.GameBuild,
	}
}

func realmToModel(r *Realm) *realmModel {
	return &realmModel{
		ID:                   r.ID,
		Name:                 r.Name,
		Address:              r.Address,
		LocalAddress:         r.LocalAddress,
		LocalSubnetMask:      r.LocalSubnetMask,
		Port:                 r.Port,
		Icon:                 r.Icon,
		Flag:                 r.Flag,
		Timezone:             r.Timezone,
		AllowedSecurityLevel: uint8(r.AllowedSecurityLevel),
		Population:           r.Population,
		GameBuild:            r.GameBuild,
	}
}

// allModels returns every model for AutoMigrate.
func allModels() []any {
	return []any{
		&accountModel{},
		&accountAccessModel{},
		&accountBannedModel{},
		&ipBannedModel{},
		&realmCharactersModel{},
		&realmModel{},
	}
}
