package commands

import (
	"github.com/outpostml/dvc/internal/repo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// AddCommands registers every subcommand onto rootCmd, the way
// poon-cli/internal/commands/commands.go's AddCommands does.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newAddCommand())
	rootCmd.AddCommand(newCommitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogCommand())
	rootCmd.AddCommand(newBranchCommand())
	rootCmd.AddCommand(newDfCommand())
	rootCmd.AddCommand(newDiffCommand())
	rootCmd.AddCommand(newMigrateCommand())
}

func repoFlag(cmd *cobra.Command) string {
	root, _ := cmd.Flags().GetString("repo")
	if root == "" {
		root = "."
	}
	return root
}

func openRepo(cmd *cobra.Command) (*repo.Repository, error) {
	return repo.Open(repoFlag(cmd), newLogger())
}

func newLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
