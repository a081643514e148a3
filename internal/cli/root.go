package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

// Exit codes
const (
	ExitSuccess        = 0
	ExitUsageError     = 2
	ExitConfigError    = 3
	ExitDiscoveryError = 4
	ExitRuntimeError   = 5
	ExitInterrupted    = 130
)

var rootCmd = &cobra.Command{
	Use:   "local-brain",
	Short: "Code review with local Ollama models",
	Long: `local-brain reviews source files with a locally hosted model.

Pick the files with exactly one of --files, --dir or --git-diff. The model
comes from --model, then --task (via models.json), then MODEL_NAME, then the
registry default.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runReview,
}

// Run executes the root command and returns an exit code.
func Run() int {
	exitCode = ExitSuccess
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		if exitCode == ExitSuccess {
			return ExitUsageError
		}
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print local-brain version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "local-brain version %s\n", version)
	},
}

func init() {
	addReviewFlags(rootCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)
}
