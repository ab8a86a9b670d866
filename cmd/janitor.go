package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"editorfs/core"
	"editorfs/logging"
)

func (a *app) janitorCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Remove stale temp files from the cache directory",
		Long: `Remote loads and saves stream through temp files in the cache directory.
The janitor removes the ones older than janitor.max_age, either once or on the
janitor.cron schedule until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j := core.NewJanitor(a.cfg.CacheDir, a.cfg.Janitor.MaxAge.Duration, logging.L())

			if once {
				n, err := j.Sweep()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale temp files from %s\n", n, a.cfg.CacheDir)
				return nil
			}

			if err := j.Start(a.cfg.Janitor.Cron); err != nil {
				return fmt.Errorf("invalid janitor cron %q: %w", a.cfg.Janitor.Cron, err)
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			logging.L().Info("janitor started")
			<-ctx.Done()

			logging.L().Info("shutting down")
			<-j.Stop().Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "sweep once and exit")
	return cmd
}
