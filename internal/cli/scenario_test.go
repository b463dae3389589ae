package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scenariosDir = "../../testdata/scenarios"
	goldenDir    = "../harness/testdata/golden"
)

const passingScenario = `
name: quick_issue
description: Alice issues to Bob
parties: [Alice, Bob]
flow:
  - id: issued
    party: Alice
    op: issue
    outputs: [{holder: Bob, quantity: 2}]
assertions:
  - type: balance
    party: Bob
    expect: {Alice: 2}
`

func TestScenarioCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "scenario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestScenarioCommand_NonExistentDir(t *testing.T) {
	_, err := execute(t, "scenario", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestScenarioCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "scenario", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = execute(t, "--format", "json", "scenario", t.TempDir())
	require.NoError(t, err)
	resp := decode[ScenarioSummary](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestScenarioCommand_ShippedScenariosMatchGolden(t *testing.T) {
	out, err := execute(t, "--format", "json", "scenario", scenariosDir, "--golden", goldenDir)
	require.NoError(t, err, out)

	resp := decode[ScenarioSummary](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Failed)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
	assert.GreaterOrEqual(t, resp.Data.Total, 5)
}

func TestScenarioCommand_Filter(t *testing.T) {
	out, err := execute(t, "scenario", scenariosDir, "--golden", goldenDir, "--filter", "redeem*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ redeem_by_amount_split")
	assert.NotContains(t, out, "issue_and_move")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick.yaml"), []byte(passingScenario), 0644))

	// No golden file yet: assertions alone decide.
	_, err := execute(t, "scenario", dir)
	require.NoError(t, err)

	_, err = execute(t, "scenario", dir, "--update")
	require.NoError(t, err)
	golden := filepath.Join(dir, "golden", "quick_issue.golden")
	require.FileExists(t, golden)

	_, err = execute(t, "scenario", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{}`), 0644))
	out, err := execute(t, "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestScenarioCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	failing := passingScenario[:len(passingScenario)-len("{Alice: 2}\n")] + "{Alice: 3}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick.yaml"), []byte(failing), 0644))

	out, err := execute(t, "--format", "json", "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode[ScenarioSummary](t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "Bob holds Alice=3")
}

func TestScenarioCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("name: x\nunknown: 1\n"), 0644))

	out, err := execute(t, "scenario", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yml")
	assert.Contains(t, out, "failed to load scenario")
}
