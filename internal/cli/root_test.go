package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"version", "serve", "tables", "palette", "state", "completion"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, flag := range []string{"config", "state", "plan", "lang", "provider-token", "verbose", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRootCommand_Version(t *testing.T) {
	out, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "schemagraph "+Version)
}

func TestRootCommand_FlagsReachConfig(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.db")

	out, _, err := run(t, "--state", state, "--plan", "pro", "-o", "json", "state", "show", "--user", "u1")
	require.NoError(t, err)
	assert.False(t, ansiPattern.MatchString(out), "json output must not carry ANSI codes")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "u1", got["userId"])

	_, err = os.Stat(state)
	assert.NoError(t, err, "state file should be created at the --state path")
}

func TestRootCommand_InvalidPlan(t *testing.T) {
	_, _, err := run(t, "--plan", "enterprise", "palette")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan tier")
}

func TestRootCommand_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output: yaml\nstate_path: nested/state.db\n"), 0600))

	out, _, err := run(t, "--config", cfgPath, "palette")
	require.NoError(t, err)
	assert.Contains(t, out, "fallback:")

	_, _, err = run(t, "--config", cfgPath, "state", "show", "--user", "u1")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "nested", "state.db"))
	assert.NoError(t, err, "relative state path resolves against the config file")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	_, _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "palette")
	require.Error(t, err)
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, _, err := run(t, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, out, "schemagraph")
		})
	}

	_, _, err := run(t, "completion", "tcsh")
	assert.Error(t, err)
}
