package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/homestar/pkg/config"
	"github.com/Mindburn-Labs/homestar/pkg/ipld"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "--help"}, &stdout, &stderr)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "USAGE:")
}

func TestRunNoArgsPrintsUsageAndFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar"}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode)
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "bogus"}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func writeTestWorkflow(t *testing.T) string {
	t.Helper()
	resource := workflow.NewResourceURL("ipfs://x/add-one.wasm")
	ability, err := workflow.NewAbility("wasm/run")
	require.NoError(t, err)
	instr := workflow.NewInstruction(resource, ability, ipld.List{int64(1)}, workflow.EmptyNonce())
	wf := workflow.NewWorkflow([]workflow.Task{workflow.NewTask(workflow.NewInlineRun(instr))})

	data, err := wf.MarshalJSON()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestShowCmdPrintsSchedule(t *testing.T) {
	path := writeTestWorkflow(t)
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "show", "--workflow", path}, &stdout, &stderr)
	require.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "fingerprint:")
	assert.Contains(t, stdout.String(), "tasks:       1")
}

func TestShowCmdJSONOutput(t *testing.T) {
	path := writeTestWorkflow(t)
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "show", "--workflow", path, "--json"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode, stderr.String())

	var result map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	assert.EqualValues(t, 1, result["num_tasks"])
}

func TestShowCmdMissingWorkflowFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "show"}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "--workflow is required")
}

func TestInitCmdWritesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homestar.yaml")
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "init", path}, &stdout, &stderr)
	require.Equal(t, 0, exitCode, stderr.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, config.Defaults().Node.Network.Libp2p.ListenAddress, cfg.Node.Network.Libp2p.ListenAddress)
}

func TestInitCmdRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homestar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))

	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "init", path}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "already exists")
}

func TestInitCmdNoPathWritesToStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "init"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode, stderr.String())
	assert.Contains(t, stdout.String(), "monitoring:")
}

func TestRunCmdMissingWorkflowFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := Run([]string{"homestar", "run"}, &stdout, &stderr)
	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr.String(), "--workflow is required")
}
