package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodesync/internal/config"
	"github.com/roach88/nodesync/internal/testutil"
)

// fixtureRunID is the run id journalRun records under.
const fixtureRunID = "run-cli"

// fixtureDump is the final graph of testdata/playback.yaml.
const fixtureDump = "# main\n" +
	"anchor#0\n" +
	"  panel#1 {\"gap\":0,\"title\":\"hello\"}\n" +
	"    label#2 {\"text\":\"\"}\n"

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// journalRun journals testdata/playback.yaml into a fresh database under a
// fixed run id and returns the database path.
func journalRun(t *testing.T) string {
	t.Helper()
	return journalPlayback(t, "testdata/playback.yaml")
}

// journalPlayback journals one playback script like journalRun.
func journalPlayback(t *testing.T, script string) string {
	t.Helper()

	db := filepath.Join(t.TempDir(), "nodesync.db")
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", Config: config.Default()},
		Database:    db,
		Label:       "fixture",
		RunIDs:      testutil.NewFixedRunIDGenerator(fixtureRunID),
	}
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)

	require.NoError(t, runPlayback(opts, "testdata/defs", script, cmd))
	return db
}

// decodeResponse decodes a CLIResponse whose data is decoded into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()

	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

// copyFile copies src to dst, creating dst's directory.
func copyFile(t *testing.T, src, dst string) {
	t.Helper()

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, data, 0o644))
}

// writeConfig writes a nodesync.toml with content and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nodesync.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
