package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"editorfs/model"
)

// textFlags carries the charset options shared by cat and put.
type textFlags struct {
	charset   string
	chardet   bool
	lineBreak string
}

func (f *textFlags) register(set *pflag.FlagSet) {
	set.StringVar(&f.charset, "charset", "UTF-8", "charset used to decode or encode the file")
	set.BoolVar(&f.chardet, "chardet", false, "detect the charset from the file content")
	set.StringVar(&f.lineBreak, "linebreak", "LF", "line break written on save: LF, CRLF or CR")
}

func (f *textFlags) params() (model.FileParams, error) {
	lb, err := model.ParseLineBreak(f.lineBreak)
	if err != nil {
		return model.FileParams{}, err
	}
	return model.FileParams{Charset: f.charset, Chardet: f.chardet, LineBreak: lb}, nil
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir]",
		Short: "List the entries of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			t, err := a.open()
			if err != nil {
				return err
			}
			parent, err := t.file(dir, true)
			if err != nil {
				return err
			}
			files, err := t.fs.ListFiles(cmd.Context(), parent)
			if err != nil {
				return err
			}
			return printListing(cmd.OutOrStdout(), files)
		},
	}
}

func printListing(w io.Writer, files []model.FileModel) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, f := range files {
		kind, name := "-", f.Name()
		if f.IsDirectory {
			kind, name = "d", name+"/"
		}
		modified := time.UnixMilli(f.LastModified).Format("2006-01-02 15:04")
		fmt.Fprintf(tw, "%s%s\t%d\t%s\t%s\t%s\t\n", kind, f.Permission, f.Size, modified, f.Type(), name)
	}
	return tw.Flush()
}

func (a *app) catCmd() *cobra.Command {
	var flags textFlags
	cmd := &cobra.Command{
		Use:   "cat <file>",
		Short: "Print a file decoded with the given charset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			t, err := a.open()
			if err != nil {
				return err
			}
			file, err := t.file(args[0], false)
			if err != nil {
				return err
			}
			text, err := t.fs.LoadFile(cmd.Context(), file, params)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func (a *app) putCmd() *cobra.Command {
	var flags textFlags
	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Save standard input to a file, normalizing line breaks and charset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			text, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			t, err := a.open()
			if err != nil {
				return err
			}
			file, err := t.file(args[0], false)
			if err != nil {
				return err
			}
			return t.fs.SaveFile(cmd.Context(), file, string(text), params)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func (a *app) createCmd(use, short string, isDir bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.open()
			if err != nil {
				return err
			}
			file, err := t.file(args[0], isDir)
			if err != nil {
				return err
			}
			return t.fs.CreateFile(cmd.Context(), file)
		},
	}
}

func (a *app) touchCmd() *cobra.Command {
	return a.createCmd("touch <file>", "Create an empty file and any missing parents", false)
}

func (a *app) mkdirCmd() *cobra.Command {
	return a.createCmd("mkdir <dir>", "Create a directory and any missing parents", true)
}

func (a *app) mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <new-name>",
		Short: "Rename a file or directory within its parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.open()
			if err != nil {
				return err
			}
			source, err := t.stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renamed, err := t.fs.RenameFile(cmd.Context(), source, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renamed.FileURI)
			return nil
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or a directory with its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.open()
			if err != nil {
				return err
			}
			// A missing entry is still handed to the backend, which decides
			// whether deleting it is an error.
			file, err := t.stat(cmd.Context(), args[0])
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return t.fs.DeleteFile(cmd.Context(), file)
		},
	}
}

func (a *app) cpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <path> <dest-dir>",
		Short: "Copy a file or directory into another directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.open()
			if err != nil {
				return err
			}
			if !t.fs.Capabilities().Copy {
				return fmt.Errorf("server %s cannot copy files", t.fs.UUID())
			}
			source, err := t.stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			dest, err := t.file(args[1], true)
			if err != nil {
				return err
			}
			copied, err := t.fs.CopyFile(cmd.Context(), source, dest)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), copied.FileURI)
			return nil
		},
	}
}
