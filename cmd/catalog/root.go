package catalog

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dMeta/cmd/util"
	"github.com/ValentinKolb/dMeta/lib/catalog"
	"github.com/ValentinKolb/dMeta/rpc/client"
	"github.com/ValentinKolb/dMeta/rpc/transport"
	"github.com/spf13/cobra"
)

var (
	rpcCatalog catalog.ICatalog
	rpcConn    transport.IRPCClientTransport

	// CatalogCommands represents the catalog command group
	CatalogCommands = &cobra.Command{
		Use:                "catalog",
		Short:              "Manage databases, tables and compute nodes",
		PersistentPreRunE:  setupCatalogClient,
		PersistentPostRunE: closeCatalogClient,
	}
)

func init() {
	util.SetupRPCClientFlags(CatalogCommands)

	CatalogCommands.AddCommand(dbCreateCmd)
	CatalogCommands.AddCommand(dbGetCmd)
	CatalogCommands.AddCommand(dbListCmd)
	CatalogCommands.AddCommand(dbDropCmd)
	CatalogCommands.AddCommand(tableCreateCmd)
	CatalogCommands.AddCommand(tableGetCmd)
	CatalogCommands.AddCommand(tableListCmd)
	CatalogCommands.AddCommand(tableUpdateCmd)
	CatalogCommands.AddCommand(tableDropCmd)
	CatalogCommands.AddCommand(nodeRegisterCmd)
	CatalogCommands.AddCommand(nodeUnregisterCmd)
	CatalogCommands.AddCommand(nodeListCmd)
}

// setupCatalogClient initializes the RPC catalog client
func setupCatalogClient(cmd *cobra.Command, _ []string) error {
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

	rpcConn, err = util.GetTransport()
	if err != nil {
		return err
	}

	rpcCatalog, err = client.NewRPCCatalog(*config, rpcConn, s, nil)
	return err
}

// closeCatalogClient closes the transport, the catalog client does not own it
func closeCatalogClient(_ *cobra.Command, _ []string) error {
	if rpcConn == nil {
		return nil
	}
	return rpcConn.Close()
}

// parseOptions parses key=value pairs
func parseOptions(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	options := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid option %q (expected key=value)", pair)
		}
		options[k] = v
	}
	return options, nil
}
