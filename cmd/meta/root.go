package meta

import (
	"fmt"

	"github.com/ValentinKolb/dMeta/cmd/util"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/ValentinKolb/dMeta/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore store.IMetaStore

	// MetaCommands represents the meta store command group
	MetaCommands = &cobra.Command{
		Use:                "meta",
		Short:              "Perform metadata store operations",
		PersistentPreRunE:  setupMetaClient,
		PersistentPostRunE: closeMetaClient,
	}
)

func init() {
	// Add common RPC flags to the meta command
	util.SetupRPCClientFlags(MetaCommands)

	MetaCommands.PersistentFlags().String("consistency", "linearizable", util.WrapString("Consistency level of reads (latest, linearizable)"))

	// Add subcommands
	MetaCommands.AddCommand(getCmd)
	MetaCommands.AddCommand(listCmd)
	MetaCommands.AddCommand(putCmd)
	MetaCommands.AddCommand(delCmd)
	MetaCommands.AddCommand(membersCmd)
	MetaCommands.AddCommand(addNodeCmd)
	MetaCommands.AddCommand(removeNodeCmd)
}

// setupMetaClient initializes the RPC store client
func setupMetaClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCStore(*config, t, s, nil)
	return err
}

func closeMetaClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Close()
}

// consistency returns the read consistency selected with --consistency
func consistency() (statemachine.Consistency, error) {
	level, err := statemachine.ParseConsistency(viper.GetString("consistency"))
	if err != nil {
		return 0, fmt.Errorf("invalid --consistency: %w", err)
	}
	return level, nil
}
