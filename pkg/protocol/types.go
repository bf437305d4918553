package protocol

import (
	"fmt"
	"math"
	"strconv"
)

// Realm flags.
const (
	RealmFlagNone            uint8 = 0x00
	RealmFlagVersionMismatch uint8 = 0x01
	RealmFlagOffline         uint8 = 0x02
	RealmFlagSpecifyBuild    uint8 = 0x04
	RealmFlagNewPlayers      uint8 = 0x20
	RealmFlagRecommended     uint8 = 0x40
	RealmFlagFull            uint8 = 0x80
)

// realmListHeaderSize is cmd plus the u16 size field.
const realmListHeaderSize = 3

// MaxRealmID is the largest realm id the realm list can carry.
const MaxRealmID = math.MaxUint8

// RealmEntry is one realm as listed to an authenticated client.
type RealmEntry struct {
	Icon       uint8   `json:"icon" yaml:"icon"`
	Locked     bool    `json:"locked" yaml:"locked"`
	Flags      uint8   `json:"flags" yaml:"flags"`
	Name       string  `json:"name" yaml:"name"`
	Address    string  `json:"address" yaml:"address"`
	Port       uint16  `json:"port" yaml:"port"`
	Population float32 `json:"population" yaml:"population"`
	NumChars   uint8   `json:"num_chars" yaml:"num_chars"`
	Timezone   uint8   `json:"timezone" yaml:"timezone"`
	ID         uint8   `json:"id" yaml:"id"`
}

// Endpoint returns the "address:port" string sent to the client.
func (e RealmEntry) Endpoint() string {
	return e.Address + ":" + strconv.Itoa(int(e.Port))
}

// EncodeRealmListRequest builds the 5-byte realm list request.
func EncodeRealmListRequest() []byte {
	return NewWriter(RealmListRequestSize).U8(uint8(CmdRealmList)).U32(0).Bytes()
}

// EncodeRealmList serializes the realm list response. The size field counts
// every byte after the three-byte header.
func EncodeRealmList(realms []RealmEntry) []byte {
	w := NewWriter(64 * (len(realms) + 1))
	w.U8(uint8(CmdRealmList)).U16(0)
	w.U32(0)
	w.U16(uint16(len(realms)))

	for _, r := range realms {
		locked := uint8(0)
		if r.Locked {
			locked = 1
		}
		w.U8(r.Icon).U8(locked).U8(r.Flags)
		w.CString(r.Name)
		w.CString(r.Endpoint())
		w.F32(r.Population)
		w.U8(r.NumChars).U8(r.Timezone).U8(r.ID)
	}

	w.U8(0x10).U8(0x00)
	w.PutU16At(1, uint16(w.Len()-realmListHeaderSize))
	return w.Bytes()
}

// ParseRealmList decodes a realm list response on the client side.
func ParseRealmList(data []byte) ([]RealmEntry, error) {
	r := NewReader(data)
	cmd, err := r.U8(0)
	if err != nil {
		return nil, err
	}
	if AuthCmd(cmd) != CmdRealmList {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedCommand, AuthCmd(cmd))
	}
	size, err := r.U16(1)
	if err != nil {
		return nil, err
	}
	if int(size)+realmListHeaderSize != r.Len() {
		return nil, fmt.Errorf("%w: size field %d does not match %d byte packet", ErrMalformedPacket, size, r.Len())
	}
	count, err := r.U16(7)
	if err != nil {
		return nil, err
	}

	realms := make([]RealmEntry, 0, count)
	off := 9
	for range count {
		var e RealmEntry
		if e.Icon, err = r.U8(off); err != nil {
			return nil, err
		}
		locked, err := r.U8(off + 1)
		if err != nil {
			return nil, err
		}
		e.Locked = locked != 0
		if e.Flags, err = r.U8(off + 2); err != nil {
			return nil, err
		}

		if e.Name, off, err = r.CString(off + 3); err != nil {
			return nil, err
		}
		var endpoint string
		if endpoint, off, err = r.CString(off); err != nil {
			return nil, err
		}
		e.Address, e.Port = splitEndpoint(endpoint)

		if e.Population, err = r.F32(off); err != nil {
			return nil, err
		}
		if e.NumChars, err = r.U8(off + 4); err != nil {
			return nil, err
		}
		if e.Timezone, err = r.U8(off + 5); err != nil {
			return nil, err
		}
		if e.ID, err = r.U8(off + 6); err != nil {
			return nil, err
		}
		off += 7
		realms = append(realms, e)
	}

	return realms, nil
}

func splitEndpoint(s string) (string, uint16) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			port, err := strconv.ParseUint(s[i+1:], 10, 16)
			if err != nil {
				return s, 0
			}
			return s[:i], uint16(port)
		}
	}
	return s, 0
}
