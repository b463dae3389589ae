package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerflow/internal/contract"
	"github.com/roach88/ledgerflow/internal/flow"
)

func TestLedgerCommands_EndToEnd(t *testing.T) {
	configDir, dataDir := ledgerDirs(t)
	saved := t.TempDir()
	global := []string{"--config", configDir, "--data", dataDir, "--format", "json"}
	run := func(args ...string) (string, error) {
		return execute(t, append(append([]string{}, global...), args...)...)
	}

	// Alice issues two records to Bob.
	out, err := run("issue", "--as", "Alice", "Bob:10", "Bob:5")
	require.NoError(t, err)
	issue := decode[TxSummary](t, out)
	require.Equal(t, "ok", issue.Status)
	assert.Equal(t, "issue", issue.Data.Command)
	assert.Equal(t, []string{"Alice"}, issue.Data.Signers)
	assert.Equal(t, []string{
		issue.Data.ID + ":0 Alice->Bob:10",
		issue.Data.ID + ":1 Alice->Bob:5",
	}, issue.Data.Outputs)

	out, err = run("balance", "Bob")
	require.NoError(t, err)
	bal := decode[BalanceResult](t, out)
	assert.Equal(t, map[string]int64{"Alice": 15}, bal.Data.Balance)
	assert.Len(t, bal.Data.Holdings, 2)

	// Bob moves the first record to Carly.
	movePath := filepath.Join(saved, "move.json")
	out, err = run("move", "--as", "Bob", issue.Data.ID+":0", "--output", "Alice:Carly:10", "--save", movePath)
	require.NoError(t, err)
	move := decode[TxSummary](t, out)
	assert.Equal(t, "move", move.Data.Command)
	assert.Equal(t, []string{"Bob"}, move.Data.Signers)
	assert.Equal(t, []string{issue.Data.ID + ":0"}, move.Data.Inputs)

	out, err = run("verify", movePath)
	require.NoError(t, err)
	verdict := decode[VerifyResult](t, out)
	assert.True(t, verdict.Data.Valid)
	assert.Equal(t, move.Data.ID, verdict.Data.ID)

	out, err = run("balance", "Carly")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Alice": 10}, decode[BalanceResult](t, out).Data.Balance)

	// Bob is neither issuer nor holder of Carly's record.
	out, err = run("redeem", "--as", "Bob", move.Data.ID+":0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	refused := decode[any](t, out)
	require.NotNil(t, refused.Error)
	assert.Equal(t, ErrCodeFlow, refused.Error.Code)
	assert.Equal(t, flow.MsgMustBeIssuerOrHolder, refused.Error.Message)

	// The remaining 5 are redeemed exactly, without a split.
	out, err = run("redeem-by-amount", "--as", "Bob", "--issuer", "Alice", "--quantity", "5")
	require.NoError(t, err)
	redeem := decode[TxSummary](t, out)
	assert.Equal(t, "redeem", redeem.Data.Command)
	assert.Equal(t, []string{"Alice", "Bob"}, redeem.Data.Signers)
	assert.Equal(t, []string{issue.Data.ID + ":1"}, redeem.Data.Inputs)

	out, err = run("balance", "Bob")
	require.NoError(t, err)
	bal = decode[BalanceResult](t, out)
	assert.Empty(t, bal.Data.Balance)
	assert.Empty(t, bal.Data.Holdings)

	out, err = run("flows", "Bob")
	require.NoError(t, err)
	assert.Empty(t, decode[FlowsResult](t, out).Data.Flows)
}

func TestVerifyCommand_Tampered(t *testing.T) {
	configDir, dataDir := ledgerDirs(t)
	path := filepath.Join(t.TempDir(), "issue.json")

	_, err := execute(t, "--config", configDir, "--data", dataDir, "issue", "--as", "Alice", "Bob:3", "--save", path)
	require.NoError(t, err)

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	out0 := raw["tx"].(map[string]any)["outputs"].([]any)[0].(map[string]any)
	out0["quantity"] = 300
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	out, err := execute(t, "--config", configDir, "--format", "json", "verify", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode[any](t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	assert.Equal(t, contract.MsgTransactionIDChange, resp.Error.Message)
}

func TestVerifyCommand_MissingSignature(t *testing.T) {
	configDir, dataDir := ledgerDirs(t)
	path := filepath.Join(t.TempDir(), "issue.json")

	_, err := execute(t, "--config", configDir, "--data", dataDir, "issue", "--as", "Alice", "Bob:3", "--save", path)
	require.NoError(t, err)

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["signatures"] = map[string]any{}
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	out, err := execute(t, "--config", configDir, "--format", "json", "verify", path)
	require.Error(t, err)
	assert.Equal(t, contract.MsgMissingSignature, decode[any](t, out).Error.Message)

	// A missing signature may be tolerated explicitly; the contract then
	// still requires the issuer among the proposed signers, which holds.
	out, err = execute(t, "--config", configDir, "--format", "json", "verify", path, "--allow-missing", "Alice")
	require.NoError(t, err)
	assert.True(t, decode[VerifyResult](t, out).Data.Valid)
}

func TestVerifyCommand_Errors(t *testing.T) {
	configDir, _ := ledgerDirs(t)

	_, err := execute(t, "--config", configDir, "verify", "/nonexistent/tx.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read transaction")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"tx": {"outputs": [{"issuer": "A", "holder": "B", "quantity": 0}]}}`), 0644))
	_, err = execute(t, "--config", configDir, "verify", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse transaction")
}

func TestFlowCommands_UsageErrors(t *testing.T) {
	configDir, dataDir := ledgerDirs(t)
	global := []string{"--config", configDir, "--data", dataDir, "--format", "json"}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad held quantity", []string{"issue", "--as", "Alice", "Bob"}, "want holder:quantity"},
		{"bad ref", []string{"redeem", "--as", "Bob", "nope"}, "want txid:index"},
		{"move without outputs", []string{"move", "--as", "Bob", "abc:0"}, "at least one --output"},
		{"bad output", []string{"move", "--as", "Bob", "abc:0", "--output", "Alice:Carly"}, "want issuer:holder:quantity"},
		{"unknown party", []string{"issue", "--as", "Zed", "Bob:1"}, "unknown party"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append(append([]string{}, global...), tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decode[any](t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrCodeUsage, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tt.want)
		})
	}
}

func TestIssueCommand_NonPositiveQuantity(t *testing.T) {
	configDir, dataDir := ledgerDirs(t)

	out, err := execute(t, "--config", configDir, "--data", dataDir, "issue", "--as", "Alice", "Bob:0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, fmt.Sprintf("Error [%s]: quantity must be above 0", ErrCodeFlow))
}

func TestFlowCommands_MissingConfig(t *testing.T) {
	_, err := execute(t, "--config", t.TempDir(), "--data", t.TempDir(), "balance", "Bob")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load network config")
}

func TestBalanceCommand_Text(t *testing.T) {
	configDir, dataDir := ledgerDirs(t)

	out, err := execute(t, "--config", configDir, "--data", dataDir, "balance", "Carly")
	require.NoError(t, err)
	assert.Equal(t, "Carly holds nothing\n", out)

	_, err = execute(t, "--config", configDir, "--data", dataDir, "issue", "--as", "Alice", "Carly:4")
	require.NoError(t, err)

	out, err = execute(t, "--config", configDir, "--data", dataDir, "balance", "Carly")
	require.NoError(t, err)
	assert.Contains(t, out, "Carly holds\n")
	assert.Contains(t, out, "totals:\n  Alice 4\n")
}
