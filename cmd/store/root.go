package store

import (
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/dMeta/cmd/util"
	"github.com/ValentinKolb/dMeta/lib/backup"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/spf13/cobra"
)

// StoreCommands represents the offline storage command group. The commands work
// on a store directory directly and must not be used while a server runs on it.
var StoreCommands = &cobra.Command{
	Use:   "store",
	Short: "Create, inspect and back up store directories",
}

var (
	createCmd = &cobra.Command{
		Use:   "create [path] [node-id]",
		Short: "Creates an empty store for a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := util.ParseNodeID(args[1])
			if err != nil {
				return err
			}
			st, err := storage.Create(args[0], id)
			if err != nil {
				return err
			}
			defer st.Close()
			return printInfo(st)
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info [path]",
		Short: "Prints identity and log positions of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storage.Open(args[0])
			if err != nil {
				return err
			}
			defer st.Close()
			return printInfo(st)
		},
	}
	exportCmd = &cobra.Command{
		Use:   "export [path] [file]",
		Short: "Writes the state of a store as snapshot to file ('-' for stdout)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, closeFn, err := create(args[1])
			if err != nil {
				return err
			}
			info, err := backup.Export(args[0], w)
			if cerr := closeFn(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exported %d records at index %d\n", info.Records, info.Applied)
			return nil
		},
	}
	importCmd = &cobra.Command{
		Use:   "import [path] [node-id] [file]",
		Short: "Installs a snapshot into an empty store ('-' reads stdin)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := util.ParseNodeID(args[1])
			if err != nil {
				return err
			}
			r, closeFn, err := open(args[2])
			if err != nil {
				return err
			}
			defer closeFn()
			info, err := backup.Import(args[0], id, r)
			if err != nil {
				return err
			}
			return util.PrintYAML(info)
		},
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect [file]",
		Short: "Validates a snapshot file and prints its header ('-' reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := open(args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			info, err := backup.Inspect(r)
			if err != nil {
				return err
			}
			return util.PrintYAML(info)
		},
	}
)

func init() {
	StoreCommands.AddCommand(createCmd)
	StoreCommands.AddCommand(infoCmd)
	StoreCommands.AddCommand(exportCmd)
	StoreCommands.AddCommand(importCmd)
	StoreCommands.AddCommand(inspectCmd)
}

func printInfo(st *storage.Store) error {
	info, err := st.Info()
	if err != nil {
		return err
	}
	return util.PrintYAML(info)
}

// open opens file for reading, '-' is stdin
func open(file string) (io.Reader, func() error, error) {
	if file == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// create creates file for writing, '-' is stdout. The returned function syncs
// and closes the file.
func create(file string) (io.Writer, func() error, error) {
	if file == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(file)
	if err != nil {
		return nil, nil, err
	}
	return f, func() error {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}, nil
}
