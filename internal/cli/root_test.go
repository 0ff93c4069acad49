package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "qcompat", cmd.Use)
	assert.Contains(t, cmd.Long, "compatibility matrix")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"record-questions", "process-questions",
		"record-question", "process-question",
		"matrix", "history", "config",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestChildCommandsHidden(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"record-question", "process-question"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.True(t, sub.Hidden, name)
	}
	sub, _, err := cmd.Find([]string{"process-questions"})
	require.NoError(t, err)
	assert.False(t, sub.Hidden)
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("history-db"))
}

func TestProcessQuestionsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"process-questions"})
	require.NoError(t, err)

	defaults := map[string]string{
		"sdk-repo-path":                      ".",
		"producer-versions":                  "",
		"consumer-versions":                  "",
		"untagged-consumer-version-branches": "",
		"questions-file":                     "recorded_questions.jsonl",
		"results-file":                       "version_compatibility_results.json",
		"timeout":                            "10m0s",
	}
	for name, def := range defaults {
		flag := sub.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestRecordQuestionsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"record-questions"})
	require.NoError(t, err)

	for _, name := range []string{"sdk-repo-path", "producer-versions", "questions-file"} {
		assert.NotNil(t, sub.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "config"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}

func TestJSONErrorResponse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, writeFile(path, "{not json"))

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--format", "json", "matrix", "--results-file", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, Reported(err))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeCommandError, resp.Error.Code)
	assert.Equal(t, "failed to load results", resp.Error.Message)
	assert.Contains(t, resp.Error.Details, "parse results")
}

func TestTextErrorNotReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, writeFile(path, "{not json"))

	var stdout bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"matrix", "--results-file", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.False(t, Reported(err))
	assert.Empty(t, stdout.String())
}
