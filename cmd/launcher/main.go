// Package main is the CLI entry point for the TridentFrame launcher.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tridentframe/launcher/internal/app"
	"github.com/tridentframe/launcher/internal/config"
	"github.com/tridentframe/launcher/internal/desktop"
	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/infra"
	"github.com/tridentframe/launcher/internal/lifecycle"
	"github.com/tridentframe/launcher/internal/logging"
	"github.com/tridentframe/launcher/internal/target"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "launcher",
	Short: "TridentFrame desktop launcher",
	Long: `launcher opens the TridentFrame window and runs the Python backend
next to it on a loopback port. The backend is stopped when the app quits.

Set DEPLOY_ENV=DEV to run main.py from source against the dev server.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the window and start the backend",
	RunE:  runRun,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the backend command for a mode and platform",
	Long: `Prints which executable and arguments the launcher would start.
Defaults to the current host. Exits non-zero when no backend is packaged
for the combination.`,
	RunE: runResolve,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the install layout and backend port",
	RunE:  runDoctor,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath  string
	headless    bool
	metricsAddr string
	modeFlag    string
	platformArg string
	jsonOutput  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <install dir>/launcher.toml)")

	runCmd.Flags().BoolVar(&headless, "headless", false, "Run without a window")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address")

	resolveCmd.Flags().StringVar(&modeFlag, "mode", "", "dev or prod (default from DEPLOY_ENV)")
	resolveCmd.Flags().StringVar(&platformArg, "platform", "", "windows, linux or other (default this host)")

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	logger := logging.NewOrNop(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		OutputPaths: cfg.Log.OutputPaths,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	factory := func(bus *lifecycle.Bus, spec domain.WindowSpec) domain.Surface {
		if headless {
			return desktop.NewHeadlessSurface(bus, logger.Named("surface"))
		}
		return desktop.NewWailsSurface(desktop.WailsConfig{
			Spec:            spec,
			UniqueID:        cfg.Window.SingleInstanceID,
			ShutdownTimeout: cfg.Backend.StopTimeout.Duration + cfg.Backend.KillGrace.Duration + time.Second,
		}, bus, logger.Named("surface"))
	}

	return app.New(cfg, factory, logger).Run(ctx)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	host := infra.DetectHost(cfg.Mode(), cfg.AppDir)
	mode, platform := host.Mode, host.Platform
	if modeFlag != "" {
		if mode, err = domain.ParseModeFlag(modeFlag); err != nil {
			return err
		}
	}
	if platformArg != "" {
		platform = domain.ParsePlatformFlag(platformArg)
	}

	return printResolve(cmd.OutOrStdout(), target.NewMatrix(app.LayoutFor(cfg)), mode, platform, domain.PortAssignment{Port: cfg.Backend.Port})
}

func printResolve(w io.Writer, matrix *target.Matrix, mode domain.DeploymentMode, platform domain.Platform, port domain.PortAssignment) error {
	fmt.Fprintf(w, "Mode: %s\n", mode)
	fmt.Fprintf(w, "Platform: %s\n", platform)
	fmt.Fprintf(w, "Port: %s\n", port)
	fmt.Fprintf(w, "App dir: %s\n", matrix.Layout().AppDir)

	t, err := matrix.Resolve(mode, platform, port)
	if err != nil {
		fmt.Fprintf(w, "Target: UNRESOLVED\n")
		fmt.Fprintf(w, "\nKnown targets:\n")
		for _, r := range matrix.Rules() {
			fmt.Fprintf(w, "  - [%s] %s\n", r.ID(), r.Description())
		}
		return err
	}

	fmt.Fprintf(w, "Rule: %s\n", t.Rule)
	fmt.Fprintf(w, "Command: %s\n", t.CommandLine())
	fmt.Fprintf(w, "Working dir: %s\n", t.WorkDir)
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "Config: ERROR %v\n", err)
		return err
	}

	host := infra.DetectHost(cfg.Mode(), cfg.AppDir)
	fmt.Fprintln(out, "\n=== launcher doctor ===")
	fmt.Fprintf(out, "Host: %s\n", host)
	fmt.Fprintf(out, "Install dir: %s\n", cfg.AppDir)
	fmt.Fprintf(out, "Config file: %s\n", describePath(configFile(cfg)))

	port := domain.PortAssignment{Port: cfg.Backend.Port}
	t, err := target.NewMatrix(app.LayoutFor(cfg)).Resolve(host.Mode, host.Platform, port)
	switch {
	case err != nil:
		fmt.Fprintf(out, "Backend: UNRESOLVED (%v)\n", err)
	case filepath.IsAbs(t.Executable) && !infra.IsExecutable(t.Executable):
		fmt.Fprintf(out, "Backend: %s (missing or not executable)\n", t.CommandLine())
	default:
		fmt.Fprintf(out, "Backend: %s\n", t.CommandLine())
	}

	pm := infra.NewProcessManager()
	if pid, ok, err := pm.ListenerPID(port.Port); err != nil {
		fmt.Fprintf(out, "Port %d: unknown (%v)\n", port.Port, err)
	} else if ok {
		fmt.Fprintf(out, "Port %d: IN USE by pid %d\n", port.Port, pid)
	} else {
		fmt.Fprintf(out, "Port %d: free\n", port.Port)
	}

	win := app.WindowConfigFor(cfg)
	if host.Mode == domain.ModeDevelopment {
		fmt.Fprintf(out, "Content: %s\n", win.DevURL)
	} else {
		fmt.Fprintf(out, "Content: %s\n", describePath(win.ProdContent))
	}
	fmt.Fprintf(out, "Icon: %s\n", describePath(win.IconPath))
	fmt.Fprintln(out, "=======================")
	return nil
}

func configFile(cfg config.Config) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(cfg.AppDir, config.FileName)
}

func describePath(p string) string {
	if infra.Exists(p) {
		return p
	}
	return p + " (missing)"
}

func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		_ = json.NewEncoder(out).Encode(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		return
	}
	fmt.Fprintf(out, "launcher %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
}
