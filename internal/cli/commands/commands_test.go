package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRootForTest(repoRoot string) *cobra.Command {
	root := &cobra.Command{Use: "dvc"}
	root.PersistentFlags().String("repo", repoRoot, "")
	AddCommands(root)
	return root
}

func runCLI(t *testing.T, repoRoot string, args ...string) error {
	t.Helper()
	root := newRootForTest(repoRoot)
	root.SetArgs(args)
	return root.Execute()
}

func TestCLIInitAddCommitStatusLog(t *testing.T) {
	repoRoot := t.TempDir()

	t.Run("init", func(t *testing.T) {
		require.NoError(t, runCLI(t, repoRoot, "init"))
		_, err := os.Stat(filepath.Join(repoRoot, ".dvc"))
		require.NoError(t, err)
	})

	t.Run("add and commit", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "data.csv"), []byte("id,val\n1,a\n"), 0o644))
		require.NoError(t, runCLI(t, repoRoot, "add", "data.csv"))
		require.NoError(t, runCLI(t, repoRoot, "commit", "-m", "add data", "--author", "alice"))
	})

	t.Run("status after commit is clean", func(t *testing.T) {
		require.NoError(t, runCLI(t, repoRoot, "status"))
	})

	t.Run("log shows one commit", func(t *testing.T) {
		require.NoError(t, runCLI(t, repoRoot, "log"))
	})

	t.Run("branch create and checkout", func(t *testing.T) {
		require.NoError(t, runCLI(t, repoRoot, "branch", "feature"))
		require.NoError(t, runCLI(t, repoRoot, "branch", "--checkout", "feature"))
	})
}

func TestCLICommitWithoutMessageFails(t *testing.T) {
	repoRoot := t.TempDir()
	require.NoError(t, runCLI(t, repoRoot, "init"))
	err := runCLI(t, repoRoot, "commit")
	assert.Error(t, err)
}
