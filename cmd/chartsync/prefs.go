package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chartsync/internal/config"
	"github.com/vango-dev/chartsync/internal/errors"
	"github.com/vango-dev/chartsync/pkg/chartsync"
	"github.com/vango-dev/chartsync/pkg/hoversync"
	"github.com/vango-dev/chartsync/pkg/pref"
	"github.com/vango-dev/chartsync/pkg/server"
)

func prefsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read or change the hover sync preferences",
		Long: `Read or change the persisted hover sync preferences.

Turning hover sync off also turns tooltip sync off. Turning tooltip
sync on also turns hover sync on.`,
	}
	cmd.AddCommand(prefsGetCmd(opts), prefsSetCmd(opts))
	return cmd
}

func prefsGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the hover sync preferences as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			storage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			return runPrefsGet(cmd.Context(), cfg, storage, cmd.OutOrStdout())
		},
	}
}

func prefsSetCmd(opts *rootOptions) *cobra.Command {
	var syncHover, syncTooltip bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the hover sync preferences",
		Long: `Change one or both hover sync preferences. Hover is applied first.

Examples:
  chartsync prefs set --sync-hover=false
  chartsync prefs set --sync-tooltip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update server.PrefsUpdate
			if cmd.Flags().Changed("sync-hover") {
				update.SyncHoverEnabled = &syncHover
			}
			if cmd.Flags().Changed("sync-tooltip") {
				update.SyncTooltipEnabled = &syncTooltip
			}
			if update.SyncHoverEnabled == nil && update.SyncTooltipEnabled == nil {
				return errors.New("E301").WithDetail("--sync-hover or --sync-tooltip is required")
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			storage, err := openStorage(cfg)
			if err != nil {
				return err
			}
			return runPrefsSet(cfg, storage, update, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&syncHover, "sync-hover", true, "Share the hovered point between charts")
	cmd.Flags().BoolVar(&syncTooltip, "sync-tooltip", true, "Show tooltips on charts that are not hovered")

	return cmd
}

func runPrefsGet(ctx context.Context, cfg *config.Config, storage pref.Storage, w io.Writer) error {
	// The store only logs read failures, so probe the backend first.
	for _, key := range []string{hoversync.SyncHoverKey, hoversync.SyncTooltipKey} {
		if _, err := storage.Load(ctx, key); err != nil {
			return errors.FromError(err, "E202").WithDetail("key " + key)
		}
	}

	svc := chartsync.New(
		chartsync.WithLogger(newLogger(cfg, os.Stderr)),
		chartsync.WithStorage(storage),
	)
	return printPrefs(w, svc.Hover.State())
}

func runPrefsSet(cfg *config.Config, storage pref.Storage, update server.PrefsUpdate, w io.Writer) error {
	var persistErr error
	svc := chartsync.New(
		chartsync.WithLogger(newLogger(cfg, os.Stderr)),
		chartsync.WithStorage(storage),
		chartsync.OnPersistError(func(key string, err error) {
			if persistErr == nil {
				persistErr = errors.FromError(err, "E203").WithDetail("key " + key)
			}
		}),
	)

	if update.SyncHoverEnabled != nil {
		svc.Hover.SetSyncHoverEnabled(*update.SyncHoverEnabled)
	}
	if update.SyncTooltipEnabled != nil {
		svc.Hover.SetSyncTooltipEnabled(*update.SyncTooltipEnabled)
	}
	if persistErr != nil {
		return persistErr
	}
	return printPrefs(w, svc.Hover.State())
}

func printPrefs(w io.Writer, st hoversync.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(server.Prefs{
		SyncHoverEnabled:   st.SyncHoverEnabled,
		SyncTooltipEnabled: st.SyncTooltipEnabled,
	})
}
