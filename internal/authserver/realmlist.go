package authserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/pkg/protocol"
)

func (s *Session) handleRealmList(ctx context.Context, pkt []byte) error {
	s.setStatus(StatusClosed)

	if len(pkt) < protocol.RealmListRequestSize {
		return malformed(fmt.Errorf("%w: realm list request is %d bytes", protocol.ErrTruncated, len(pkt)))
	}

	start := time.Now()
	realms, err := s.h.deps.Realms.Realms(ctx)
	s.h.observe("realms", start)
	if err != nil {
		return fmt.Errorf("failed to load realms: %w", err)
	}

	start = time.Now()
	counts, err := s.h.deps.Realms.CharacterCounts(ctx, s.info.ID)
	s.h.observe("character_counts", start)
	if err != nil {
		return fmt.Errorf("failed to load character counts: %w", err)
	}
	if !s.open(ctx) {
		return ErrSessionClosed
	}

	entries := make([]protocol.RealmEntry, 0, len(realms))
	for _, r := range realms {
		if r.AllowedSecurityLevel > s.info.SecurityLevel {
			continue
		}
		if r.ID > protocol.MaxRealmID {
			s.log.Warn("realm id does not fit the realm list, skipping", map[string]any{
				"realm_id": r.ID,
				"realm":    r.Name,
			})
			continue
		}
		entries = append(entries, protocol.RealmEntry{
			Icon:       r.Icon,
			Locked:     s.challenge == nil || uint32(s.challenge.Build) != r.GameBuild,
			Flags:      r.Flag,
			Name:       r.Name,
			Address:    realmAddressFor(r, s.remoteIP),
			Port:       r.Port,
			Population: r.Population,
			NumChars:   counts[r.ID],
			Timezone:   r.Timezone,
			ID:         uint8(r.ID),
		})
	}

	if err := s.send(protocol.EncodeRealmList(entries)); err != nil {
		return err
	}

	s.log.Debug("realm list sent", map[string]any{"realms": len(entries)})
	s.setStatus(StatusWaitingForRealmList)
	return nil
}

// realmAddressFor returns the realm's local address to clients inside its
// local subnet and the public address to everyone else.
func realmAddressFor(r account.Realm, clientIP string) string {
	client := net.ParseIP(clientIP).To4()
	local := net.ParseIP(r.LocalAddress).To4()
	mask := net.ParseIP(r.LocalSubnetMask).To4()
	if client == nil || local == nil || mask == nil {
		return r.Address
	}

	subnet := net.IPMask(mask)
	if client.Mask(subnet).Equal(local.Mask(subnet)) {
		return r.LocalAddress
	}
	return r.Address
}
