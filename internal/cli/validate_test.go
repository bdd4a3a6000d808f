package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsAreValid(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := "inventory:\n  reorder_point: 500\n  reorder_target: 100\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	out, err := execute(t, "validate", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "error:")
}

func TestValidate_DeterminismCheckPasses(t *testing.T) {
	cfg, _, _ := writeSmallConfig(t)
	out, err := execute(t, "validate", "--config", cfg, "--determinism")
	require.NoError(t, err)
	assert.Contains(t, out, "determinism ok")
}

func TestStatus_NoCheckpointYet(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "status",
		"--db", filepath.Join(dir, "none.db"),
		"--checkpoint", filepath.Join(dir, "none.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "no generation has completed yet")
}

func TestStatus_AfterGenerate(t *testing.T) {
	cfg, db, cp := writeSmallConfig(t)
	_, err := execute(t, "generate", "--config", cfg, "--db", db, "--checkpoint", cp)
	require.NoError(t, err)

	out, err := execute(t, "status", "--db", db, "--checkpoint", cp)
	require.NoError(t, err)
	assert.Contains(t, out, "generated through 2024-05-02")
	assert.Contains(t, out, "receipts")
}
