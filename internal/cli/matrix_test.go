package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qcompat/internal/results"
)

func writeMatrix(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, results.RecordVerdict(path, "1.2.0", "1.2.0", true))
	require.NoError(t, results.RecordVerdict(path, "1.2.0", "2.0.0", false))
	require.NoError(t, results.RecordVerdict(path, "2.0.0", "2.0.0", true))
	require.NoError(t, results.RecordVerdict(path, "0.16.0", "1.2.0", true))
	return path
}

func runMatrixCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewMatrixCommand(&RootOptions{Format: format})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMatrixText(t *testing.T) {
	out, err := runMatrixCommand(t, "text", "--results-file", writeMatrix(t))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "matrix_text", []byte(out))
}

func TestMatrixJSON(t *testing.T) {
	out, err := runMatrixCommand(t, "json", "--results-file", writeMatrix(t))
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   MatrixResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"2.0.0", "1.2.0", "0.16.0"}, resp.Data.Producers)
	assert.Equal(t, []string{"2.0.0", "1.2.0"}, resp.Data.Consumers)
	assert.False(t, resp.Data.Results["1.2.0"]["2.0.0"])
}

func TestMatrixMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	out, err := runMatrixCommand(t, "text", "--results-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No results recorded in "+path)

	out, err = runMatrixCommand(t, "json", "--results-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"producers":[]`)
}

func TestMatrixMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, writeFile(path, "{not json"))

	_, err := runMatrixCommand(t, "text", "--results-file", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
