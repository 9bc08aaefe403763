package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmd_ShowsHelp2(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "--force")
}

func TestIndexCmd_HasForceFlag(t *testing.T) {
	cmd := NewRootCmd()
	indexCmd, _, err := cmd.Find([]string{"index"})
	require.NoError(t, err)

	flag := indexCmd.Flags().Lookup("force")
	require.NotNil(t, flag, "should have --force flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestIndexCmd_HasGitSubcommand(t *testing.T) {
	cmd := NewRootCmd()
	gitCmd, _, err := cmd.Find([]string{"index", "git"})
	require.NoError(t, err)
	require.NotNil(t, gitCmd)

	assert.NotNil(t, gitCmd.Flags().Lookup("since"))
	assert.NotNil(t, gitCmd.Flags().Lookup("max-commits"))
	assert.NotNil(t, gitCmd.Flags().Lookup("include-diff"))
	assert.NotNil(t, gitCmd.Flags().Lookup("force"))
}

func TestIndexCmd_FailsOnNonExistentPath(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "/nonexistent/definitely/missing/path"})

	err := cmd.Execute()

	assert.Error(t, err)
}

func TestIndexCmd_CreatesDataDirectory(t *testing.T) {
	// resolveProject creates .qdrantmcp before any embedding happens, so
	// this much is verifiable without a reachable embedder.
	testDir := t.TempDir()
	createTestProject(t, testDir)

	pc, err := resolveProject(testDir)
	require.NoError(t, err)

	dataDir := filepath.Join(testDir, ".qdrantmcp")
	assert.DirExists(t, dataDir)
	assert.Equal(t, dataDir, pc.DataDir)
}

func TestParseSinceDate_Empty(t *testing.T) {
	ts, err := parseSinceDate("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestParseSinceDate_Valid(t *testing.T) {
	ts, err := parseSinceDate("2026-01-15T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, time.January, ts.Month())
}

func TestParseSinceDate_Invalid(t *testing.T) {
	_, err := parseSinceDate("not-a-date")
	assert.Error(t, err)
}

func TestCodeCollectionFor_Deterministic(t *testing.T) {
	a := codeCollectionFor("/some/project")
	b := codeCollectionFor("/some/project")
	assert.Equal(t, a, b)
}

// createTestProject writes a minimal Go project to dir for tests that
// only need a resolvable project root, not a full index run.
func createTestProject(t *testing.T, dir string) {
	t.Helper()

	mainGo := `package main

import "fmt"

func main() {
	fmt.Println("Hello, World!")
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(mainGo), 0644))

	goMod := "module testproject\n\ngo 1.21\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0644))
}
