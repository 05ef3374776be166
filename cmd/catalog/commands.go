package catalog

import (
	"fmt"

	"github.com/ValentinKolb/dMeta/cmd/util"
	"github.com/ValentinKolb/dMeta/lib/catalog"
	"github.com/spf13/cobra"
)

var (
	// Databases

	dbCreateCmd = &cobra.Command{
		Use:   "db-create [name]",
		Short: "Creates a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, _ := cmd.Flags().GetStringSlice("option")
			options, err := parseOptions(pairs)
			if err != nil {
				return err
			}
			db, err := rpcCatalog.CreateDatabase(cmd.Context(), args[0], options)
			if err != nil {
				return err
			}
			return util.PrintYAML(db)
		},
	}
	dbGetCmd = &cobra.Command{
		Use:   "db-get [name]",
		Short: "Prints a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rpcCatalog.GetDatabase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return util.PrintYAML(db)
		},
	}
	dbListCmd = &cobra.Command{
		Use:   "db-list",
		Short: "Lists all databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbs, err := rpcCatalog.ListDatabases(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintYAML(dbs)
		},
	}
	dbDropCmd = &cobra.Command{
		Use:   "db-drop [name]",
		Short: "Drops an empty database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcCatalog.DropDatabase(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("database %s dropped\n", args[0])
			return nil
		},
	}

	// Tables

	tableCreateCmd = &cobra.Command{
		Use:   "table-create [database] [name]",
		Short: "Creates a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := tableFromFlags(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			tbl, err := rpcCatalog.CreateTable(cmd.Context(), info)
			if err != nil {
				return err
			}
			return util.PrintYAML(tbl)
		},
	}
	tableGetCmd = &cobra.Command{
		Use:   "table-get [database] [name]",
		Short: "Prints a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := rpcCatalog.GetTable(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return util.PrintYAML(tbl)
		},
	}
	tableListCmd = &cobra.Command{
		Use:   "table-list [database]",
		Short: "Lists the tables of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbls, err := rpcCatalog.ListTables(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return util.PrintYAML(tbls)
		},
	}
	tableUpdateCmd = &cobra.Command{
		Use:   "table-update [database] [name] [expected-version]",
		Short: "Replaces schema and options of a table if its version matches",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expected uint64
			if _, err := fmt.Sscan(args[2], &expected); err != nil {
				return fmt.Errorf("expected-version must be a number: %w", err)
			}
			info, err := tableFromFlags(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			tbl, err := rpcCatalog.UpdateTable(cmd.Context(), info, expected)
			if err != nil {
				return err
			}
			return util.PrintYAML(tbl)
		},
	}
	tableDropCmd = &cobra.Command{
		Use:   "table-drop [database] [name]",
		Short: "Drops a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcCatalog.DropTable(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("table %s.%s dropped\n", args[0], args[1])
			return nil
		},
	}

	// Compute nodes

	nodeRegisterCmd = &cobra.Command{
		Use:   "node-register [id] [address]",
		Short: "Registers a compute node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := util.ParseNodeID(args[0])
			if err != nil {
				return err
			}
			pairs, _ := cmd.Flags().GetStringSlice("label")
			labels, err := parseOptions(pairs)
			if err != nil {
				return err
			}
			if err := rpcCatalog.RegisterNode(cmd.Context(), catalog.NodeInfo{ID: id, Address: args[1], Labels: labels}); err != nil {
				return err
			}
			fmt.Printf("node %d registered\n", id)
			return nil
		},
	}
	nodeUnregisterCmd = &cobra.Command{
		Use:   "node-unregister [id]",
		Short: "Removes a compute node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := util.ParseNodeID(args[0])
			if err != nil {
				return err
			}
			if err := rpcCatalog.UnregisterNode(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("node %d unregistered\n", id)
			return nil
		},
	}
	nodeListCmd = &cobra.Command{
		Use:   "node-list",
		Short: "Lists the compute nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			nodes, err := rpcCatalog.ListNodes(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintYAML(nodes)
		},
	}
)

// tableFromFlags builds a TableInfo from --schema and --option
func tableFromFlags(cmd *cobra.Command, database, name string) (catalog.TableInfo, error) {
	schema, _ := cmd.Flags().GetString("schema")
	pairs, _ := cmd.Flags().GetStringSlice("option")
	options, err := parseOptions(pairs)
	if err != nil {
		return catalog.TableInfo{}, err
	}
	return catalog.TableInfo{Database: database, Name: name, Schema: schema, Options: options}, nil
}

func init() {
	for _, cmd := range []*cobra.Command{dbCreateCmd, tableCreateCmd, tableUpdateCmd} {
		cmd.Flags().StringSlice("option", nil, util.WrapString("Option in the format key=value (repeatable)"))
	}
	for _, cmd := range []*cobra.Command{tableCreateCmd, tableUpdateCmd} {
		cmd.Flags().String("schema", "", util.WrapString("The schema definition of the table"))
	}
	nodeRegisterCmd.Flags().StringSlice("label", nil, util.WrapString("Label in the format key=value (repeatable)"))
}
