package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qcompat/internal/version"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qcompat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ".", cfg.SDKRepoPath)
	assert.Equal(t, version.Defaults, cfg.ProducerVersions)
	assert.Equal(t, version.Defaults, cfg.ConsumerVersions)
	assert.Equal(t, []string{"2.0.0"}, cfg.BreakingBoundaries)
	assert.Equal(t, []string{"poetry", "install", "--all-extras"}, cfg.InstallCommand)
	assert.Equal(t, 10*time.Minute, cfg.PairTimeout)
	assert.Equal(t, "recorded_questions.jsonl", cfg.QuestionsFile)
	assert.Equal(t, "version_compatibility_results.json", cfg.ResultsFile)
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_Independent(t *testing.T) {
	a := DefaultConfig()
	a.ProducerVersions[0] = "9.9.9"
	assert.NotEqual(t, "9.9.9", DefaultConfig().ProducerVersions[0])
	assert.NotEqual(t, "9.9.9", version.Defaults[0])
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
sdk_repo_path: /src/sdk
producer_versions: ["0.41.1", "0.40.0"]
consumer_versions: ["0.42.0"]
untagged_consumer_version_branches:
  "0.42.0": release/0.42
breaking_boundaries: ["2.0.0", "3.0.0"]
pair_timeout: 90s
results_file: out.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/src/sdk", cfg.SDKRepoPath)
	assert.Equal(t, []string{"0.41.1", "0.40.0"}, cfg.ProducerVersions)
	assert.Equal(t, []string{"0.42.0"}, cfg.ConsumerVersions)
	assert.Equal(t, map[string]string{"0.42.0": "release/0.42"}, cfg.UntaggedConsumerVersionBranches)
	assert.Equal(t, []string{"2.0.0", "3.0.0"}, cfg.BreakingBoundaries)
	assert.Equal(t, 90*time.Second, cfg.PairTimeout)
	assert.Equal(t, "out.json", cfg.ResultsFile)
	// Unset keys keep their defaults.
	assert.Equal(t, "recorded_questions.jsonl", cfg.QuestionsFile)
}

func TestLoad_Env(t *testing.T) {
	path := writeConfig(t, "pair_timeout: 90s\n")
	t.Setenv("QCOMPAT_PAIR_TIMEOUT", "30s")
	t.Setenv("QCOMPAT_RESULTS_FILE", "env.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.PairTimeout)
	assert.Equal(t, "env.json", cfg.ResultsFile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad producer", `producer_versions: ["latest"]`},
		{"bad consumer", `consumer_versions: ["1.x"]`},
		{"bad boundary", `breaking_boundaries: ["two"]`},
		{"negative timeout", `pair_timeout: -1s`},
		{"empty install", `install_command: []`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body+"\n"))
			require.Error(t, err)
		})
	}
}

func TestRender_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsumerVersions = []string{"0.42.0"}
	cfg.UntaggedConsumerVersionBranches = map[string]string{"0.42.0": "main"}
	cfg.PairTimeout = 45 * time.Second

	body, err := cfg.Render()
	require.NoError(t, err)
	assert.Contains(t, string(body), "pair_timeout: 45s")

	loaded, err := Load(writeConfig(t, string(body)))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qcompat.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	require.Error(t, WriteDefault(path), "existing file must not be overwritten")
}
