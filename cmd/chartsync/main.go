package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vango-dev/chartsync/internal/config"
	"github.com/vango-dev/chartsync/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	opts := &rootOptions{}
	if err := newRootCmd(opts).ExecuteContext(context.Background()); err != nil {
		if !colorTerminal(os.Stderr) {
			errors.DisableColors()
		}
		reportError(os.Stderr, opts, err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string

	// logFormat is the log.format of the last loaded configuration.
	logFormat string
}

// colorTerminal reports whether f should receive ANSI colors.
func colorTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// reportError writes a command failure to w, as JSON when the loaded
// configuration logs JSON.
func reportError(w io.Writer, opts *rootOptions, err error) {
	if opts.logFormat == "json" {
		errors.FprintJSON(w, err, "E301")
		return
	}
	errors.Fprint(w, err)
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chartsync",
		Short: "Synchronized hover, series and highlight state for charts",
		Long: `chartsync shares chart interaction state between charts.

Charts rendered in separate tabs or processes connect over HTTP and
WebSocket to share:

  • the hovered data point and its tooltip
  • per-series active state
  • hover sync preferences, persisted to memory, a file or S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to "+config.ConfigFileName+" (default: nearest one above the working directory)")

	rootCmd.AddCommand(
		serveCmd(opts),
		prefsCmd(opts),
		formatCmd(),
		errorsCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads and validates the configuration selected by --config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return nil, err
	}
	o.logFormat = cfg.Log.Format
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.LogLevel()
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}
