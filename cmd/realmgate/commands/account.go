package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fzdarsky/realmgate/internal/account"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account management",
	Long: `Manage accounts in the account database.

Names and passwords are case-insensitive and stored uppercased.

Examples:
  # Create an account
  realmgate account create alice s3cret --email alice@example.com

  # Change a password
  realmgate account password alice n3wpass

  # Ban for a week, or permanently without --duration
  realmgate account ban alice --duration 168h --reason "gold selling"

  # Enable two-factor logon and print the secret
  realmgate account totp enable alice

  # Promote to game master
  realmgate account gmlevel alice gamemaster`,
}

var (
	accountEmail   string
	banDuration    time.Duration
	banReason      string
	banAuthor      string
	banByIPAddress bool
)

var accountCreateCmd = &cobra.Command{
	Use:   "create <name> <password>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store account.Store) error {
			result, err := account.NewManager(store).CreateAccount(ctx, args[0], args[1], accountEmail)
			if err := opError("create account", result, err); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created\n", args[0])
			return nil
		})
	},
}

var accountPasswordCmd = &cobra.Command{
	Use:   "password <name> <password>",
	Short: "Change the password of an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store account.Store) error {
			result, err := account.NewManager(store).ChangePassword(ctx, args[0], args[1])
			if err := opError("change password", result, err); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password of %s changed\n", args[0])
			return nil
		})
	},
}

var accountBanCmd = &cobra.Command{
	Use:   "ban <name|ip>",
	Short: "Ban an account or, with --ip, an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ban := account.Ban{Duration: banDuration, BannedBy: banAuthor, Reason: banReason}

		return withStore(cmd.Context(), func(ctx context.Context, store account.Store) error {
			if banByIPAddress {
				if err := store.BanIP(ctx, args[0], ban); err != nil {
					return fmt.Errorf("failed to ban address: %w", err)
				}
			} else if err := account.NewManager(store).Ban(ctx, args[0], ban); err != nil {
				return fmt.Errorf("failed to ban account: %w", err)
			}

			length := "permanently"
			if ban.Duration > 0 {
				length = "for " + ban.Duration.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s banned %s\n", args[0], length)
			return nil
		})
	},
}

var accountTOTPCmd = &cobra.Command{
	Use:       "totp <enable|disable> <name>",
	Short:     "Enable or disable two-factor logon",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"enable", "disable"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action, name := args[0], args[1]

		return withStore(cmd.Context(), func(ctx context.Context, store account.Store) error {
			mgr := account.NewManager(store)
			switch action {
			case "enable":
				secret, err := mgr.EnableTOTP(ctx, name)
				if err != nil {
					return fmt.Errorf("failed to enable two-factor logon: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Two-factor logon enabled for %s\nSecret: %s\n", name, secret)
			case "disable":
				if err := mgr.DisableTOTP(ctx, name); err != nil {
					return fmt.Errorf("failed to disable two-factor logon: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Two-factor logon disabled for %s\n", name)
			default:
				return fmt.Errorf("unknown action %q: expected enable or disable", action)
			}
			return nil
		})
	},
}

var accountGMLevelCmd = &cobra.Command{
	Use:   "gmlevel <name> <player|moderator|gamemaster|administrator|console>",
	Short: "Set the security level of an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := account.ParseSecurityLevel(args[1])
		if err != nil {
			return err
		}

		return withStore(cmd.Context(), func(ctx context.Context, store account.Store) error {
			if err := account.NewManager(store).SetSecurityLevel(ctx, args[0], level); err != nil {
				return fmt.Errorf("failed to set security level: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Security level of %s set to %s\n", args[0], level)
			return nil
		})
	},
}

func init() {
	accountCreateCmd.Flags().StringVar(&accountEmail, "email", "", "Contact email address")

	accountBanCmd.Flags().DurationVar(&banDuration, "duration", 0, "Ban length (default: permanent)")
	accountBanCmd.Flags().StringVar(&banReason, "reason", "", "Reason recorded with the ban")
	accountBanCmd.Flags().StringVar(&banAuthor, "by", "console", "Author recorded with the ban")
	accountBanCmd.Flags().BoolVar(&banByIPAddress, "ip", false, "Ban an IP address instead of an account")

	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountPasswordCmd)
	accountCmd.AddCommand(accountBanCmd)
	accountCmd.AddCommand(accountTOTPCmd)
	accountCmd.AddCommand(accountGMLevelCmd)
}
