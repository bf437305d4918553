// Realmprobe logs on to a realmgate server the way a game client does and
// reports the outcome. It is meant for smoke tests of a deployment.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fzdarsky/realmgate/internal/probe"
)

var version = "dev"

var flags struct {
	host       string
	port       int
	build      uint16
	username   string
	password   string
	token      string
	totpSecret string
	output     string
}

var rootCmd = &cobra.Command{
	Use:   "realmprobe",
	Short: "Logon client for checking a realmgate server",
	Long: `Realmprobe performs the SRP6 logon exchange against a realmgate server
and reports the result.

Connection settings are read from <UserConfigDir>/realmgate/probe.yaml, then
REALMPROBE_HOST, REALMPROBE_PORT and REALMPROBE_BUILD, then flags.

Examples:
  # Log on and show the realm list
  realmprobe realms --host logon.example.com --username alice --password s3cret

  # Log on to an account with two-factor logon enabled
  realmprobe logon --host logon.example.com --username alice --totp-secret JBSWY3DPEHPK3PXP

  # Log on, then resume the session on a second connection
  realmprobe reconnect --host logon.example.com --username alice`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var logonCmd = &cobra.Command{
	Use:   "logon",
	Short: "Log on and print the negotiated session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, client, session, err := logon(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Logged on to %s as %s in %v\n", cfg.Address(), session.Username, session.Elapsed.Round(time.Millisecond))
		fmt.Fprintf(out, "Session key: %s\n", hex.EncodeToString(session.SessionKey))
		return nil
	},
}

var realmsCmd = &cobra.Command{
	Use:   "realms",
	Short: "Log on and print the realm list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := probe.ParseFormat(flags.output)
		if err != nil {
			return err
		}

		_, client, _, err := logon(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		realms, err := client.RealmList(cmd.Context())
		if err != nil {
			return fmt.Errorf("realm list failed: %w", err)
		}

		formatted, err := probe.FormatRealms(realms, format)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), formatted)
		return nil
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Log on, then reconnect on a new connection with the session key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, first, session, err := logon(cmd.Context())
		if err != nil {
			return err
		}
		_ = first.Close()

		second, err := probe.Dial(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer second.Close()

		if err := second.Reconnect(cmd.Context(), session.Username, session.SessionKey); err != nil {
			return fmt.Errorf("reconnect failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reconnected to %s as %s\n", cfg.Address(), session.Username)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.host, "host", "", "Gateway hostname or IP")
	pf.IntVar(&flags.port, "port", 0, "Gateway port (default 3724)")
	pf.Uint16Var(&flags.build, "build", 0, "Client build to announce (default 12340)")
	pf.StringVarP(&flags.username, "username", "u", "", "Account name (prompts if not provided)")
	pf.StringVarP(&flags.password, "password", "p", "", "Password (prompts if not provided)")
	pf.StringVar(&flags.token, "token", "", "Two-factor token to send when requested")
	pf.StringVar(&flags.totpSecret, "totp-secret", "", "Base32 secret to derive the two-factor token from")

	realmsCmd.Flags().StringVarP(&flags.output, "output", "o", "table", "Output format (table, yaml or json)")

	rootCmd.AddCommand(logonCmd)
	rootCmd.AddCommand(realmsCmd)
	rootCmd.AddCommand(reconnectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// logon loads the configuration, connects and logs on. The caller closes the
// returned client.
func logon(ctx context.Context) (*probe.Config, *probe.Client, *probe.Session, error) {
	cfg, err := probe.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.ApplyFlags(flags.host, flags.port, flags.build)
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.RequireHost(); err != nil {
		return nil, nil, nil, err
	}

	creds := probe.Credentials{
		Username:   flags.username,
		Password:   flags.password,
		Token:      flags.token,
		TOTPSecret: flags.totpSecret,
	}
	if creds.Username == "" {
		creds.Username = promptUsername()
	}
	if creds.Password == "" {
		if creds.Password, err = promptPassword(); err != nil {
			return nil, nil, nil, err
		}
	}

	client, err := probe.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	session, err := client.Logon(ctx, creds)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("logon failed: %w", err)
	}
	return cfg, client, session, nil
}

func promptUsername() string {
	fmt.Fprint(os.Stderr, "Username: ")
	reader := bufio.NewReader(os.Stdin)
	username, _ := reader.ReadString('\n')
	return strings.TrimSpace(username)
}

// promptPassword reads the password without echo.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
