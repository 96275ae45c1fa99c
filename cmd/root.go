// Package cmd implements the devicehub CLI commands.
package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"devicehub/devbroker"
	"devicehub/devicemgr"
	"devicehub/kevent"
	"devicehub/logging"
	"devicehub/sysfsfacade"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags.
var (
	globalSysfs     string
	globalDevfs     string
	globalLog       string
	globalLogFormat string
	globalDebug     bool
	globalMetrics   string
)

// rootCmd is the base command for devicehub.
var rootCmd = &cobra.Command{
	Use:   "devicehub",
	Short: "live kernel device tree and terminal I/O toolkit",
	Long: `devicehub mirrors the kernel's device tree in memory, keeps it in
sync with the netlink uevent stream, and lets you query it and open raw
device handles from the shell.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		maybeServeMetrics()
		return nil
	},
}

// maybeServeMetrics starts a background /metrics HTTP endpoint when
// --metrics-addr was given (spec_full.md §4.12). It never blocks startup:
// a bind failure is logged and the command proceeds without metrics.
func maybeServeMetrics() {
	if globalMetrics == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(globalMetrics, mux); err != nil {
			logging.Warn("metrics server stopped", "addr", globalMetrics, "error", err)
		}
	}()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// GetSysfsRoot returns the configured sysfs mount point.
func GetSysfsRoot() string {
	if globalSysfs != "" {
		return globalSysfs
	}
	return "/sys"
}

// GetDevfsRoot returns the configured managed devfs mount point.
func GetDevfsRoot() string {
	if globalDevfs != "" {
		return globalDevfs
	}
	return "/run/devicehub/devfs"
}

// newManager builds and initializes a Manager against the configured
// sysfs/devfs roots; every subcommand that needs a live tree calls this.
// It also dials the netlink uevent socket and pumps its events into the
// manager's event source, so hot-plug actually reaches the tree — without
// this, Init's event loop has a subscriber but no publisher. A failure to
// dial netlink (e.g. missing CAP_NET_ADMIN, or running outside a real
// kernel) is logged and tolerated: the manager still serves the cold-plug
// snapshot taken at Init.
func newManager(ctx context.Context) *devicemgr.Manager {
	sysfs := sysfsfacade.NewOSRoot(GetSysfsRoot())
	devfs := devbroker.NewOSDevfs(GetDevfsRoot())
	m := devicemgr.New(sysfs, devfs)
	m.Init(ctx)

	nl, err := kevent.DialNetlink()
	if err != nil {
		logging.Warn("netlink uevent socket unavailable, hot-plug disabled", "error", err)
		return m
	}
	go func() {
		<-ctx.Done()
		nl.Close()
	}()
	go func() {
		events, cancel := nl.Subscribe(256)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				m.Events().Publish(ev)
			}
		}
	}()
	go func() {
		if err := nl.Run(ctx); err != nil && ctx.Err() == nil {
			logging.Warn("netlink uevent reader stopped", "error", err)
		}
	}()

	return m
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalSysfs, "sysfs", "", "sysfs mount point (default: /sys)")
	rootCmd.PersistentFlags().StringVar(&globalDevfs, "devfs", "", "managed devfs mount point for ephemeral device nodes (default: /run/devicehub/devfs)")
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&globalMetrics, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090); disabled if empty")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	if globalLogFormat == "json" || globalLog != "" || globalDebug {
		logger := logging.NewLogger(logging.Config{
			Level:  logLevel,
			Format: globalLogFormat,
			Output: logOutput,
		})
		logging.SetDefault(logger)
	}
}
