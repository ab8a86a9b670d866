package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the selected server is reachable and accepts the credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.open()
			if err != nil {
				return err
			}
			if err := t.fs.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", t.fs.UUID())
			return nil
		},
	}
}

func (a *app) serversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the configured servers and what they support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UUID\tSCHEME\tADDRESS\tAUTH\tCOPY\tARCHIVES")

			local := a.factory.Local().Capabilities()
			fmt.Fprintf(tw, "%s\tfile\t-\t-\t%t\t%t\n", a.factory.Local().UUID(), local.Copy, local.Compress && local.Extract)

			for _, s := range a.cfg.Servers {
				fsys, err := a.factory.Open(s)
				if err != nil {
					return err
				}
				caps := fsys.Capabilities()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", s.UUID, s.Scheme, s.Addr(), s.AuthMethod, caps.Copy, caps.Compress && caps.Extract)
			}
			return tw.Flush()
		},
	}
}
