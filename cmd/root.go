package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/dMeta/cmd/catalog"
	"github.com/ValentinKolb/dMeta/cmd/meta"
	"github.com/ValentinKolb/dMeta/cmd/serve"
	"github.com/ValentinKolb/dMeta/cmd/store"
	"github.com/ValentinKolb/dMeta/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dmeta",
		Short: "replicated metadata service",
		Long: fmt.Sprintf(`dMeta (v%s)

A replicated metadata service written in Go. dMeta keeps the catalog
(databases, tables, compute nodes) of a cluster in a RAFT replicated
store and refuses to serve from storage it can not trust.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dMeta",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dMeta v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(meta.MetaCommands)
	RootCmd.AddCommand(catalog.CatalogCommands)
	RootCmd.AddCommand(store.StoreCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("YAML file with flag values (e.g. 'data-dir: /var/lib/dmeta'), flags and DMETA_* environment variables take precedence"))
}

// initConfig reads the env files, the environment variables and the config file
func initConfig() {
	util.InitConfig()

	path, _ := RootCmd.PersistentFlags().GetString("config")
	if path == "" {
		path = os.Getenv("DMETA_CONFIG")
	}
	if path == "" {
		return
	}
	if err := util.LoadConfigFile(path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
// Client commands are canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
