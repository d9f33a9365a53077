package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yinsen/internal/infra/config"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestCLI_DefaultCommandIsRun(t *testing.T) {
	cli, kctx := parse(t)
	assert.Equal(t, "run", kctx.Command())
	assert.Equal(t, "config.yaml", filepath.Base(cli.Config))
	assert.False(t, cli.Plain)
}

func TestCLI_GlobalFlags(t *testing.T) {
	cli, kctx := parse(t, "--plain", "--agent", "finance_manager", "-c", "custom.yaml", "run", "--gateway")
	assert.Equal(t, "run", kctx.Command())
	assert.True(t, cli.Plain)
	assert.True(t, cli.Run.Gateway)
	assert.Equal(t, "finance_manager", cli.Agent)
	assert.Equal(t, "custom.yaml", filepath.Base(cli.Config))
}

func TestCLI_Ask(t *testing.T) {
	cli, kctx := parse(t, "ask", "how", "much", "did", "I", "spend?", "--format", "html", "--json")
	assert.Equal(t, "ask <text>", kctx.Command())
	assert.Equal(t, []string{"how", "much", "did", "I", "spend?"}, cli.Ask.Text)
	assert.Equal(t, "html", cli.Ask.Format)
	assert.True(t, cli.Ask.JSON)
}

func TestCLI_AskDefaultsToText(t *testing.T) {
	cli, _ := parse(t, "ask", "hi")
	assert.Equal(t, "text", cli.Ask.Format)
}

func TestCLI_AskRejectsUnknownFormat(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	require.NoError(t, err)
	_, err = parser.Parse([]string{"ask", "hi", "--format", "xml"})
	assert.Error(t, err)
}

func TestCLI_LogsKind(t *testing.T) {
	cli, _ := parse(t, "logs", "calendar")
	assert.Equal(t, "calendar", cli.Logs.Kind)

	var bad CLI
	parser, err := kong.New(&bad, kongVars())
	require.NoError(t, err)
	_, err = parser.Parse([]string{"logs", "diary"})
	assert.Error(t, err)
}

func TestCLI_ServeAddr(t *testing.T) {
	cli, kctx := parse(t, "serve", "--addr", "127.0.0.1:0")
	assert.Equal(t, "serve", kctx.Command())
	assert.Equal(t, "127.0.0.1:0", cli.Serve.Addr)
}

func TestCLI_EncryptPassphraseFromEnv(t *testing.T) {
	t.Setenv("YINSEN_CONFIG_KEY", "hunter2")
	cli, _ := parse(t, "encrypt", "sk-secret")
	assert.Equal(t, "sk-secret", cli.Encrypt.Value)
	assert.Equal(t, "hunter2", cli.Encrypt.Passphrase)
}

func TestEncryptCmd_RoundTrip(t *testing.T) {
	var out bytes.Buffer
	cmd := &EncryptCmd{Value: "sk-secret", Passphrase: "hunter2"}
	require.NoError(t, cmd.Run(&runContext{ctx: t.Context(), globals: &Globals{}, stdout: &out}))

	line := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(line, "enc:"), line)
	plain, err := config.DecryptValue(strings.TrimPrefix(line, "enc:"), "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", plain)
}

func TestEncryptCmd_NeedsPassphrase(t *testing.T) {
	cmd := &EncryptCmd{Value: "sk-secret"}
	err := cmd.Run(&runContext{ctx: t.Context(), globals: &Globals{}, stdout: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YINSEN_CONFIG_KEY")
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLogsCmd(t *testing.T) {
	dir := t.TempDir()
	notif := filepath.Join(dir, "notification_logs.json")
	cal := filepath.Join(dir, "calender_logs.json")
	require.NoError(t, os.WriteFile(notif, []byte(`{"logs": ["Email sent to bob@example.com", "Expense logged"]}`), 0o600))

	cfgPath := writeConfig(t, dir, "tools:\n  notification_log: "+notif+"\n  calendar_log: "+cal+"\n")

	var out bytes.Buffer
	rc := &runContext{ctx: t.Context(), globals: &Globals{Config: cfgPath}, stdout: &out}

	require.NoError(t, (&LogsCmd{Kind: "notifications"}).Run(rc))
	assert.Equal(t, "Email sent to bob@example.com\nExpense logged\n", out.String())

	out.Reset()
	require.NoError(t, (&LogsCmd{Kind: "calendar"}).Run(rc))
	assert.Equal(t, "no calendar\n", out.String())
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&VersionCmd{}).Run(&runContext{stdout: &out}))
	assert.Contains(t, out.String(), "yinsen "+version)
}
