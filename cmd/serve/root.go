package serve

import (
	"fmt"

	cmdUtil "github.com/ValentinKolb/dMeta/cmd/util"
	"github.com/ValentinKolb/dMeta/lib/shutdown"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dMeta server",
		Long:    `Start the dMeta server with the specified configuration. The configuration can be set via command line flags, environment variables or a YAML config file (--config). The format of the environment variables is DMETA_<flag> (e.g. DMETA_DATA_DIR=/var/lib/dmeta)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "mode"
	ServeCmd.PersistentFlags().String(key, "local", cmdUtil.WrapString("The store to run: 'local' (single replica) or 'replicated' (RAFT via Dragonboat)"))

	key = "shard"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("ID of the shard served by this node"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(replicated) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. The election and heartbeat timeouts are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("(replicated) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied RAFT log entries. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 500, cmdUtil.WrapString("(replicated) CompactionOverhead defines the number of log entries kept after a snapshot"))

	key = "checkpoint-entries"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("(local) Number of applied entries after which a snapshot is saved and the log is compacted. 0 disables checkpoints"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory used for the log, the snapshots and the RAFT state"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The unique identifier of this node (e.g. 'node-1'). Required in replicated mode, defaults to 1 in local mode"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(replicated) Comma-separated list of RAFT addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'. A joining node lists itself"))

	key = "join"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("(replicated) Join a running cluster. The node must have been added with 'dmeta meta add-node' before"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of a single request in seconds"))

	key = "integrity-threshold"
	ServeCmd.PersistentFlags().Int(key, shutdown.DefaultIntegrityThreshold, cmdUtil.WrapString("Number of undecodable records after which the storage is considered damaged and the server shuts down"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/dmeta.sock, ...)"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Concurrent requests per connection (ignored for http)"))

	key = "frame-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("Size of the pooled frame buffers in KB (ignored for http)"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB, ignored for http)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time (in seconds, only for tcp, negative keeps the os default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags, environment
// variables and the config file and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Mode = common.ServerMode(viper.GetString("mode"))
	serveCmdConfig.ShardID = viper.GetUint64("shard")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.CheckpointEntries = viper.GetUint64("checkpoint-entries")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Join = viper.GetBool("join")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.IntegrityErrorThreshold = viper.GetInt("integrity-threshold")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:        viper.GetString("endpoint"),
		WorkersPerConn:  viper.GetInt("workers"),
		FrameBufferSize: viper.GetInt("frame-buffer") * 1024,
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}

	// parse replica id
	if name := viper.GetString("replica-id"); name != "" {
		id, err := cmdUtil.ParseNodeID(name)
		if err != nil {
			return fmt.Errorf("invalid replica id: %w", err)
		}
		serveCmdConfig.ReplicaID = id
	} else if serveCmdConfig.Mode == common.ModeLocal {
		serveCmdConfig.ReplicaID = 1
	}

	// parse cluster members
	if list := viper.GetString("cluster-members"); list != "" {
		members, err := cmdUtil.ParseMembers(list)
		if err != nil {
			return err
		}
		serveCmdConfig.ClusterMembers = members
	}

	// mode specific checks (replica id, cluster members, ...)
	return serveCmdConfig.Validate()
}

// run starts the dMeta server
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}
