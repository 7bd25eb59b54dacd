package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configPath = ""
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
connections:
  - id: plc-1
    type: modbus-tcp
    config:
      host: 10.0.0.7
alertRules:
  - name: errors
    expression: error_rate > 0.1
`), 0o644))

	out, err := runCommand(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "1 connections")
}

func TestValidateCommand_UnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
connections:
  - id: plc-1
    type: dnp3
`), 0o644))

	_, err := runCommand(t, "validate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dnp3")
}

func TestValidateCommand_MissingFlag(t *testing.T) {
	_, err := runCommand(t, "validate")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fieldgate")
}
