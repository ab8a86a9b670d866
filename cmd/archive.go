package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"editorfs/model"
	"editorfs/protocols"
)

func (a *app) zipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zip <archive> <path>...",
		Short: "Pack files and directories into a zip or jar archive",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			t, err := a.open()
			if err != nil {
				return err
			}
			dest, err := t.file(args[0], false)
			if err != nil {
				return err
			}
			sources := make([]model.FileModel, 0, len(args)-1)
			for _, p := range args[1:] {
				src, err := t.stat(ctx, p)
				if err != nil {
					return err
				}
				sources = append(sources, src)
			}

			p, err := t.fs.CompressFiles(ctx, sources, dest)
			if err != nil {
				return err
			}
			return followProgress(cmd, p, "added")
		},
	}
}

func (a *app) unzipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unzip <archive> <dest-dir>",
		Short: "Extract a zip or jar archive into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			t, err := a.open()
			if err != nil {
				return err
			}
			source, err := t.file(args[0], false)
			if err != nil {
				return err
			}
			dest, err := t.file(args[1], true)
			if err != nil {
				return err
			}

			p, err := t.fs.ExtractFiles(ctx, source, dest)
			if err != nil {
				return err
			}
			return followProgress(cmd, p, "extracted")
		},
	}
}

// followProgress prints every entry as it arrives. An interrupted task is
// reported but not treated as a failure.
func followProgress(cmd *cobra.Command, p *protocols.Progress, verb string) error {
	out := cmd.OutOrStdout()
	n := 0
	for entry := range p.C() {
		n++
		fmt.Fprintf(out, "%s %s\n", verb, entry.Path())
	}
	if err := p.Wait(); err != nil {
		return err
	}
	if p.Canceled() {
		fmt.Fprintf(cmd.ErrOrStderr(), "canceled after %d entries\n", n)
		return nil
	}
	summary(out, n)
	return nil
}

func summary(w io.Writer, n int) {
	if n == 1 {
		fmt.Fprintln(w, "1 entry")
		return
	}
	fmt.Fprintf(w, "%d entries\n", n)
}
