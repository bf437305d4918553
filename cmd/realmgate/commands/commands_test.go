package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `database:
  type: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "realmgate.db") + `
audit:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// resetFlags restores every flag in the tree to its default. Cobra keeps
// parsed values across Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := GetRootCmd()
	resetFlags(cmd)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	Version, Commit, Date = "1.2.3", "abc123", "2024-01-01"
	t.Cleanup(func() { Version, Commit, Date = "dev", "none", "unknown" })

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "realmgate 1.2.3 (commit: abc123, built: 2024-01-01)\n", out)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file created at: "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "port: 3724")

	_, err = run(t, "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestAccountCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "account", "create", "--config", cfg, "alice", "s3cret", "--email", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Account alice created")

	_, err = run(t, "account", "create", "--config", cfg, "ALICE", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create account")

	_, err = run(t, "account", "create", "--config", cfg, strings.Repeat("x", 18), "pw")
	require.Error(t, err)

	out, err = run(t, "account", "password", "--config", cfg, "alice", "n3wpass")
	require.NoError(t, err)
	assert.Contains(t, out, "Password of alice changed")

	out, err = run(t, "account", "gmlevel", "--config", cfg, "alice", "gamemaster")
	require.NoError(t, err)
	assert.Contains(t, out, "set to gamemaster")

	_, err = run(t, "account", "gmlevel", "--config", cfg, "alice", "overlord")
	require.Error(t, err)

	out, err = run(t, "account", "totp", "--config", cfg, "enable", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Secret: ")

	out, err = run(t, "account", "totp", "--config", cfg, "disable", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled for alice")

	out, err = run(t, "account", "ban", "--config", cfg, "alice", "--duration", "1h", "--reason", "spam")
	require.NoError(t, err)
	assert.Contains(t, out, "alice banned for 1h0m0s")

	out, err = run(t, "account", "ban", "--config", cfg, "--ip", "198.51.100.4")
	require.NoError(t, err)
	assert.Contains(t, out, "198.51.100.4 banned permanently")

	_, err = run(t, "account", "password", "--config", cfg, "nobody", "pw")
	require.Error(t, err)
}

func TestRealmCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "realm", "add", "--config", cfg, "--name", "Azeroth", "--address", "203.0.113.10", "--port", "8086")
	require.NoError(t, err)
	assert.Contains(t, out, "Realm Azeroth added with id")

	_, err = run(t, "realm", "add", "--config", cfg, "--name", "Outland", "--security", "gamemaster")
	require.NoError(t, err)

	_, err = run(t, "realm", "add", "--config", cfg)
	require.Error(t, err)

	out, err = run(t, "realm", "list", "--config", cfg)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "Azeroth")
	assert.Contains(t, lines[1], "203.0.113.10")
	assert.Contains(t, lines[1], "8086")
	assert.Contains(t, lines[2], "Outland")
	assert.Contains(t, lines[2], "127.0.0.1")
	assert.Contains(t, lines[2], "gamemaster")
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 70000\n"), 0o600))

	_, err := run(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}
