package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fzdarsky/realmgate/internal/account"
)

var realmCmd = &cobra.Command{
	Use:   "realm",
	Short: "Realm list management",
	Long: `Manage the realms advertised to authenticated clients.

Examples:
  # Register a realm
  realmgate realm add --name Azeroth --address 203.0.113.10 --port 8085

  # Show the realm list
  realmgate realm list`,
}

var newRealm struct {
	name         string
	address      string
	localAddress string
	subnetMask   string
	port         uint16
	icon         uint8
	flag         uint8
	timezone     uint8
	security     string
	build        uint32
}

var realmAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a realm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		level, err := account.ParseSecurityLevel(newRealm.security)
		if err != nil {
			return err
		}

		realm := &account.Realm{
			Name:                 newRealm.name,
			Address:              newRealm.address,
			LocalAddress:         newRealm.localAddress,
			LocalSubnetMask:      newRealm.subnetMask,
			Port:                 newRealm.port,
			Icon:                 newRealm.icon,
			Flag:                 newRealm.flag,
			Timezone:             newRealm.timezone,
			AllowedSecurityLevel: level,
			GameBuild:            newRealm.build,
		}

		return withStore(cmd.Context(), func(ctx context.Context, store account.Store) error {
			id, err := account.NewManager(store).AddRealm(ctx, realm)
			if err != nil {
				return fmt.Errorf("failed to add realm: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Realm %s added with id %d\n", realm.Name, id)
			return nil
		})
	},
}

var realmListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show registered realms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store account.Store) error {
			realms, err := store.Realms(ctx)
			if err != nil {
				return fmt.Errorf("failed to list realms: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tPORT\tBUILD\tSECURITY")
			for _, r := range realms {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.Name, r.Address, r.Port, r.GameBuild, r.AllowedSecurityLevel)
			}
			return w.Flush()
		})
	},
}

func init() {
	f := realmAddCmd.Flags()
	f.StringVar(&newRealm.name, "name", "", "Realm name shown to clients")
	f.StringVar(&newRealm.address, "address", "", "Public address of the world server (default 127.0.0.1)")
	f.StringVar(&newRealm.localAddress, "local-address", "", "Address advertised to clients on the local network")
	f.StringVar(&newRealm.subnetMask, "local-subnet-mask", "", "Mask selecting clients that get the local address")
	f.Uint16Var(&newRealm.port, "port", 8085, "World server port")
	f.Uint8Var(&newRealm.icon, "icon", 0, "Realm type icon")
	f.Uint8Var(&newRealm.flag, "flag", 0, "Realm flags")
	f.Uint8Var(&newRealm.timezone, "timezone", 1, "Realm timezone category")
	f.StringVar(&newRealm.security, "security", "player", "Lowest security level allowed to see the realm")
	f.Uint32Var(&newRealm.build, "build", 0, "Client build served by the realm (default 12340)")
	_ = realmAddCmd.MarkFlagRequired("name")

	realmCmd.AddCommand(realmAddCmd)
	realmCmd.AddCommand(realmListCmd)
}
