package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"extlayer/internal/app"
	"extlayer/internal/config"
	"extlayer/internal/diagnostics"
	"extlayer/internal/savestore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		config.Exitf("extlayer: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "extlayer",
		Short:         "Per-object extension records for a simulated host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newServeCommand(), newSchemaCommand(), newSavesCommand())
	return root
}

// withRuntime loads configuration from the environment, starts a runtime and
// releases it once fn returns.
func withRuntime(ctx context.Context, fn func(*app.Runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rt, err := app.Start(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	runErr := fn(rt)
	if err := rt.Close(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newRunCommand() *cobra.Command {
	var opts app.ScenarioOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Populate a world, simulate, save to a slot, reload it and verify the checksum",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *app.Runtime) error {
				report, err := app.RunScenario(cmd.Context(), rt, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Frames, "frames", 120, "frames to simulate before saving")
	cmd.Flags().StringVar(&opts.Slot, "slot", "scenario", "save slot to write and reload")
	return cmd
}

func newServeCommand() *cobra.Command {
	var (
		opts    app.ServeOptions
		load    string
		prepare bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Tick a world and serve the diagnostics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, func(rt *app.Runtime) error {
				switch {
				case load != "":
					if err := app.LoadSlot(ctx, rt, load); err != nil {
						return fmt.Errorf("load slot %q: %w", load, err)
					}
				case prepare:
					if err := app.Populate(ctx, rt, app.DefaultPopulation()); err != nil {
						return err
					}
				}
				return app.Serve(ctx, rt, opts)
			})
		},
	}
	cmd.Flags().StringVar(&load, "load", "", "start from a stored save slot")
	cmd.Flags().BoolVar(&prepare, "populate", true, "spawn the default population when no slot is loaded")
	cmd.Flags().Uint64Var(&opts.AutosaveEvery, "autosave-every", 0, "write the autosave slot every n frames (0 disables)")
	return cmd
}

func newSchemaCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the JSON schema of the diagnostics dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := diagnostics.WriteSchema(outPath); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "path to write the JSON schema")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newSavesCommand() *cobra.Command {
	var remove string
	cmd := &cobra.Command{
		Use:   "saves",
		Short: "List stored save slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, func(rt *app.Runtime) error {
				if remove != "" {
					return rt.Saves.Delete(ctx, remove)
				}
				slots, err := rt.Saves.List(ctx)
				if err != nil {
					return err
				}
				if slots == nil {
					slots = []savestore.Summary{}
				}
				return printJSON(cmd, slots)
			})
		},
	}
	cmd.Flags().StringVar(&remove, "delete", "", "delete the named slot instead of listing")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
