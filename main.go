package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"himawari-desktop/internal/handlers/archiveserver"
	"himawari-desktop/internal/pipeline"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var settingsPath string

	cmd := &cobra.Command{
		Use:           "himawari",
		Short:         "Full-disk Himawari imagery as your desktop wallpaper",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Settings file (default: OS data directory/settings.yaml)")

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		app, err := NewApp(ctx, settingsPath)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			app.Shutdown(shutdownCtx)
		}()
		return fn(ctx, app)
	}

	cmd.AddCommand(
		newOnceCommand(withApp),
		newDaemonCommand(withApp),
		newSweepCommand(withApp),
		newServeCommand(withApp),
		newWallpaperCommand(withApp),
		newStatusCommand(withApp),
		newConfigCommand(withApp, &settingsPath),
	)
	return cmd
}

type appRunner func(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error

func newOnceCommand(withApp appRunner) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Compose the latest snapshot once, then sweep and expire the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				var onComposed func(context.Context, pipeline.Result)
				if apply {
					onComposed = applyComposed(app)
				}

				res := app.NewDriver(onComposed).RunOnce(ctx)
				if res.Err != nil {
					return fmt.Errorf("no snapshot for %s: %w", res.Timestamp, res.Err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Apply the composed snapshot as the desktop wallpaper")
	return cmd
}

func newDaemonCommand(withApp appRunner) *cobra.Command {
	var (
		apply bool
		serve bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Compose a snapshot every update interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				var hooks []func(context.Context, pipeline.Result)
				if apply {
					hooks = append(hooks, applyComposed(app))
				}

				var server *archiveserver.Server
				if serve {
					server = app.NewServer()
					defer server.Close()
					hooks = append(hooks, func(context.Context, pipeline.Result) { server.InvalidateLatest() })
				}
				driver := app.NewDriver(chainHooks(hooks))

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return driver.Run(gctx) })
				if server != nil {
					g.Go(func() error { return server.ListenAndServe(gctx, app.cfg.Server.Addr) })
				}
				return g.Wait()
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Apply each composed snapshot as the desktop wallpaper")
	cmd.Flags().BoolVar(&serve, "serve", false, "Also run the archive server")
	return cmd
}

// chainHooks runs every hook in order; nil when there are none
func chainHooks(hooks []func(context.Context, pipeline.Result)) func(context.Context, pipeline.Result) {
	if len(hooks) == 0 {
		return nil
	}
	return func(ctx context.Context, res pipeline.Result) {
		for _, hook := range hooks {
			hook(ctx, res)
		}
	}
}

// applyComposed hands a freshly composed snapshot straight to the wallpaper setter
func applyComposed(app *App) func(context.Context, pipeline.Result) {
	client := app.NewWallpaperClient()
	return func(_ context.Context, res pipeline.Result) {
		if err := client.ApplyFile(res.OutputPath); err != nil {
			app.log.Warn().Err(err).Msg("failed to apply wallpaper")
		}
	}
}

func newSweepCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove scratch tiles and expire old archive days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				removed, failed := app.janitor.SweepScratch()
				expired := app.janitor.ExpireArchive(time.Now())

				fmt.Fprintf(cmd.OutOrStdout(), "scratch: %d removed, %d failed\narchive: %d days expired\n",
					removed, failed, len(expired))
				return nil
			})
		},
	}
}

func newServeCommand(withApp appRunner) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest-image API, the archive and the viewer page",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				if addr == "" {
					addr = app.cfg.Server.Addr
				}
				server := app.NewServer()
				defer server.Close()
				return server.ListenAndServe(ctx, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func newWallpaperCommand(withApp appRunner) *cobra.Command {
	var loop bool

	cmd := &cobra.Command{
		Use:   "wallpaper",
		Short: "Download the latest published snapshot and set it as the desktop wallpaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				client := app.NewWallpaperClient()
				if loop {
					return client.Run(ctx, app.cfg.Schedule.UpdateInterval)
				}
				return client.ApplyLatest(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&loop, "loop", false, "Repeat every update interval until interrupted")
	return cmd
}

func newStatusCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print archive statistics as JSON (live rate limit state is on /api/status)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				status := map[string]interface{}{
					"version":  AppVersion,
					"settings": app.GetSettingsPath(),
					"archive":  app.GetArchiveStats(),
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			})
		},
	}
}

func newConfigCommand(withApp appRunner, settingsPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Settings file operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := InitSettings(*settingsPath, force)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing settings file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings (file merged with HIMAWARI_* environment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				out, err := app.RenderSettings()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
