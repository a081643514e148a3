package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/localbrain/internal/config"
	"github.com/dshills/localbrain/internal/providers"
	"github.com/dshills/localbrain/internal/registry"
	"github.com/dshills/localbrain/internal/selector"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model registry and the Ollama server",
}

// checker is the subset of the Ollama client used by models doctor.
type checker interface {
	Check(ctx context.Context, model string) (*providers.CheckResult, error)
	BaseURL() string
}

// newChecker builds the health-check client. Tests replace it.
var newChecker = func(cfg config.Config) checker {
	return providers.NewOllama(cfg.OllamaHost)
}

func loadRegistry() (*registry.Registry, error) {
	cfg, err := config.Load(buildOverrides())
	if err != nil {
		return nil, err
	}
	return registry.NewLoader(cfg.RegistryPath).Load()
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models described in models.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			exitCode = ExitConfigError
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tPARAMS\tSIZE\tSPEED\t")
		for _, m := range reg.Models {
			name := m.Name
			if name == reg.DefaultModel {
				name += " (default)"
			}
			size := humanize.Bytes(uint64(m.SizeGB * 1e9))
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", name, m.Parameters, size, m.Speed())
		}
		return tw.Flush()
	},
}

var modelsTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List task types and the models they map to",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			exitCode = ExitConfigError
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TASK\tMODEL\t")
		for _, task := range reg.Tasks() {
			model, _ := reg.Task(task)
			fmt.Fprintf(tw, "%s\t%s\t\n", task, model)
		}
		return tw.Flush()
	},
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that Ollama is reachable and the selected model is pulled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			exitCode = ExitConfigError
			return err
		}
		out := cmd.OutOrStdout()

		in := modelInput()
		var reg *registry.Registry
		if selector.NeedsRegistry(in, 1) {
			reg, err = registry.NewLoader(cfg.RegistryPath).Load()
			if err != nil {
				exitCode = ExitConfigError
				return err
			}
		}
		sel, err := selector.Resolve(in, reg)
		if err != nil {
			exitCode = ExitConfigError
			return err
		}

		c := newChecker(cfg)
		fmt.Fprintf(out, "Checking %s...\n", c.BaseURL())

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		res, err := c.Check(ctx, sel.Model)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		fmt.Fprintf(out, "OK: Ollama is reachable (%d model(s) pulled)\n", len(res.ModelNames))
		if !res.ModelPresent {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: model %s (%s) is not pulled; run: ollama pull %s\n", sel.Model, sel.Source, sel.Model)
			if len(res.ModelNames) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Available: %s\n", strings.Join(res.ModelNames, ", "))
			}
			exitCode = ExitRuntimeError
			return nil
		}
		fmt.Fprintf(out, "OK: model %s (%s) is available\n", sel.Model, sel.Source)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsTasksCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
	for _, c := range []*cobra.Command{modelsListCmd, modelsTasksCmd, modelsDoctorCmd} {
		c.Flags().StringVar(&flagRegistry, "registry", "", "Path to models.json")
	}
	modelsDoctorCmd.Flags().StringVar(&flagModel, "model", "", "Model to check")
	modelsDoctorCmd.Flags().StringVar(&flagTask, "task", "", "Task type whose model to check")
}
