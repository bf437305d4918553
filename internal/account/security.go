package account

import "fmt"

// SecurityLevel is the GM level of an account.
type SecurityLevel uint8

// Security levels in ascending order of privilege.
const (
	SecPlayer SecurityLevel = iota
	SecModerator
	SecGamemaster
	SecAdministrator
	SecConsole
)

var securityLevelNames = map[SecurityLevel]string{
	SecPlayer:        "player",
	SecModerator:     "moderator",
	SecGamemaster:    "gamemaster",
	SecAdministrator: "administrator",
	SecConsole:       "console",
}

// ClampSecurityLevel maps a stored gm level onto the known range.
func ClampSecurityLevel(level uint8) SecurityLevel {
	if level > uint8(SecConsole) {
		return SecConsole
	}
	return SecurityLevel(level)
}

// ParseSecurityLevel accepts a level name or number.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	for level, name := range securityLevelNames {
		if s == name {
			return level, nil
		}
	}
	var n uint8
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && n <= uint8(SecConsole) {
		return SecurityLevel(n), nil
	}
	return 0, fmt.Errorf("unknown security level %q", s)
}

func (l SecurityLevel) String() string {
	if name, ok := securityLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("SecurityLevel(%d)", uint8(l))
}

// IsPlayer reports whether the level is a plain player.
func (l SecurityLevel) IsPlayer() bool {
	return l == SecPlayer
}

// IsGM reports whether the level has game master rights.
func (l SecurityLevel) IsGM() bool {
	return l >= SecGamemaster
}

// IsAdmin reports whether the level has administrator rights.
func (l SecurityLevel) IsAdmin() bool {
	return l >= SecAdministrator && l <= SecConsole
}

// IsConsole reports whether the level is the console.
func (l SecurityLevel) IsConsole() bool {
	return l == SecConsole
}
