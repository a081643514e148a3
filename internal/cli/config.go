package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/dshills/localbrain/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the local-brain config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file populated with defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store one key in the config file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as TOML",
	Long: `Print the configuration a review would run with: defaults, then the
config file, then LOCAL_BRAIN_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd, configSetCmd, configShowCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		exitCode = ExitConfigError
		return err
	}
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s\n", path)
		return nil
	case !errors.Is(statErr, fs.ErrNotExist):
		exitCode = ExitConfigError
		return statErr
	}

	if err := config.Save(config.Default()); err != nil {
		exitCode = ExitRuntimeError
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg, err := config.LoadFile()
	if err != nil {
		exitCode = ExitConfigError
		return err
	}
	if err := config.SetField(&cfg, key, value); err != nil {
		exitCode = ExitUsageError
		return err
	}
	if err := config.Save(cfg); err != nil {
		exitCode = ExitRuntimeError
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		exitCode = ExitConfigError
		return err
	}

	out := cmd.OutOrStdout()
	if path, err := config.ConfigPath(); err == nil {
		fmt.Fprintf(out, "# file: %s\n", path)
	}
	return toml.NewEncoder(out).Encode(cfg)
}
