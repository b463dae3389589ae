package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const networkCUE = `package network

network: {
	notary: "Notary"
	parties: {
		Notary: seed: "notary"
		Alice: seed:  "alice"
		Bob: {seed: "bob", max_quantity: 100}
		Carly: seed: "carly"
	}
	signature_timeout: "2s"
}
`

// ledgerDirs writes a network configuration and returns it with an empty
// data directory.
func ledgerDirs(t *testing.T) (configDir, dataDir string) {
	t.Helper()
	configDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "network.cue"), []byte(networkCUE), 0644))
	return configDir, filepath.Join(t.TempDir(), "data")
}

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}
