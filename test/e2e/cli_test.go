//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
)

// unlockctlPath returns the path to the unlockctl binary.
func unlockctlPath() string {
	// Absolute path from environment if set (for CI)
	if p := os.Getenv("UNLOCKCTL_PATH"); p != "" && fileExists(p) {
		return p
	}

	// Assume running from the project root via make
	if p := filepath.Join("bin", "unlockctl"); fileExists(p) {
		return p
	}
	if p := filepath.Join("..", "..", "bin", "unlockctl"); fileExists(p) {
		return p
	}

	return "unlockctl" // Hope it's on PATH
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// runUnlockctl executes the binary and returns stdout, stderr and exit code.
func runUnlockctl(t *testing.T, workDir string, args ...string) (string, string, int) {
	t.Helper()

	cmd := exec.Command(unlockctlPath(), args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		t.Fatalf("run unlockctl: %v", err)
	}

	return stdout.String(), stderr.String(), exitCode
}

func TestCLI_Help(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	stdout, stderr, exitCode := runUnlockctl(t, t.TempDir(), "--help")
	assert.Equal(t, 0, exitCode, "help should succeed: %s", stderr)
	assert.Contains(t, stdout, "scan")
	assert.Contains(t, stdout, "delete")
	assert.Contains(t, stdout, "kill")
}

func TestCLI_LocksDemo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))

	stdout, stderr, exitCode := runUnlockctl(t, dir, "locks", target, "--demo", "-o", "json")
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	var finding resolver.Finding
	require.NoError(t, json.Unmarshal([]byte(stdout), &finding))
	assert.Equal(t, target, finding.Path)
	assert.NotEmpty(t, finding.Owners, "demo mode fabricates lock holders")
}

func TestCLI_ScanDemoExitsLocked(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o600))

	_, stderr, exitCode := runUnlockctl(t, dir, "scan", dir, "--demo", "-o", "json")
	assert.Equal(t, 2, exitCode, "locked findings exit with code 2: %s", stderr)
}

func TestCLI_DeleteRealFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "victim.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))

	stdout, stderr, exitCode := runUnlockctl(t, dir, "delete", target)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Contains(t, stdout, "deleted")

	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestCLI_KillInvalidPID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	_, stderr, exitCode := runUnlockctl(t, t.TempDir(), "kill", "banana")
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "invalid PID")
}

func TestCLI_ConfigShow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output:\n  format: json\n"), 0o600))

	stdout, stderr, exitCode := runUnlockctl(t, dir, "config", "show", "--config", cfgPath)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Contains(t, stdout, "format: json")
}
