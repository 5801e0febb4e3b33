package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "concurra", cmd.Use, "Root command should be 'concurra'")
	assert.Equal(t, "0.1.0", cmd.Version, "Version should be 0.1.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 2, "Should have 2 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd, "buildRunCommand should return a non-nil command")
	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.NotNil(t, cmd, "buildStatusCommand should return a non-nil command")
	assert.Equal(t, "status", cmd.Use, "Command should be 'status'")
	assert.Contains(t, cmd.Short, "status", "Short description should mention 'status'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
scheduler:
  use_worker_threads: true
  thread_count: 4
  cpu_affinity: false
  timeout: 5s

metrics:
  enabled: true
  addr: ":8080"
`

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err, "Failed to write test config file")

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "loadConfig should not return an error")
	require.NotNil(t, cfg, "Config should not be nil")

	assert.True(t, cfg.Scheduler.UseWorkerThreads, "UseWorkerThreads should be true")
	assert.Equal(t, 4, cfg.Scheduler.ThreadCount, "ThreadCount should be 4")
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Timeout, "Timeout should be 5s")

	assert.True(t, cfg.Metrics.Enabled, "Metrics should be enabled")
	assert.Equal(t, ":8080", cfg.Metrics.Addr, "Metrics addr should be :8080")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err, "loadConfig should return an error for nonexistent file")
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file", "Error should mention file reading failure")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
scheduler:
  thread_count: "not a number"
  invalid yaml structure
    broken indentation
`

	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err, "Failed to write invalid YAML file")

	cfg, err := loadConfig(configPath)

	assert.Error(t, err, "loadConfig should return an error for invalid YAML")
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML", "Error should mention YAML parsing failure")
}

func TestLoadConfig_EmptyFile_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")

	err := os.WriteFile(configPath, []byte(""), 0644)
	require.NoError(t, err, "Failed to write empty file")

	cfg, err := loadConfig(configPath)
	assert.NoError(t, err, "Empty YAML file should parse without error")
	assert.NotNil(t, cfg, "Config should not be nil for empty file")
	assert.Equal(t, 0, cfg.Scheduler.ThreadCount, "Empty config should have zero thread count")
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Timeout, "Empty config should fall back to the default timeout")
	assert.Equal(t, ":9090", cfg.Metrics.Addr, "Empty config should fall back to the default metrics addr")
}

func TestLoadConfig_PartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.yaml")

	partialConfig := `
scheduler:
  thread_count: 2
`

	err := os.WriteFile(configPath, []byte(partialConfig), 0644)
	require.NoError(t, err, "Failed to write partial config")

	cfg, err := loadConfig(configPath)
	require.NoError(t, err, "Partial config should parse successfully")
	assert.Equal(t, 2, cfg.Scheduler.ThreadCount, "ThreadCount should be set")
	assert.False(t, cfg.Scheduler.UseWorkerThreads, "Unset fields should have zero values")
}

func TestShowStatus_WithoutRunningScheduler(t *testing.T) {
	err := showStatus()
	assert.NoError(t, err, "showStatus should not return an error when no scheduler is running")
}

func TestConfigStructure(t *testing.T) {
	cfg := Config{}

	cfg.Scheduler.UseWorkerThreads = true
	cfg.Scheduler.ThreadCount = 10
	cfg.Scheduler.CPUAffinity = true
	cfg.Scheduler.Timeout = 5 * time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ":9090"

	assert.True(t, cfg.Scheduler.UseWorkerThreads)
	assert.Equal(t, 10, cfg.Scheduler.ThreadCount)
	assert.True(t, cfg.Scheduler.CPUAffinity)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Timeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}
