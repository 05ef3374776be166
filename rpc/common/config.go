package common

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dMeta/lib/router"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// InitialMembers returns the members passed to Dragonboat when the replica is
// started. A joining replica starts without initial members.
func (c *ServerConfig) InitialMembers() map[uint64]string {
	if c.Join {
		return map[uint64]string{}
	}
	return c.ClusterMembers
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         filepath.Join(c.DataDir, "raft"),
		NodeHostDir:    filepath.Join(c.DataDir, "raft"),
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds the socket options shared by the tcp and unix transports
type SocketConf struct {
	WriteBufferSize int // bytes, 0 keeps the os default
	ReadBufferSize  int // bytes, 0 keeps the os default
}

// TCPConf holds the options of tcp connections
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative keeps the os default
}

// ServerTransportConfig configures the server side of a transport
type ServerTransportConfig struct {
	Endpoint        string // address (tcp, http) or socket path (unix)
	WorkersPerConn  int    // concurrent requests per connection (tcp, unix)
	FrameBufferSize int    // size of the pooled read buffers (tcp, unix)
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the client side of a transport
type ClientTransportConfig struct {
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerMode selects the store a server runs
type ServerMode string

const (
	ModeLocal      ServerMode = "local"      // single replica, lstore
	ModeReplicated ServerMode = "replicated" // Dragonboat replica, dstore
)

// ServerConfig holds all configuration parameters of a server.
type ServerConfig struct {
	Mode    ServerMode
	ShardID uint64

	// Dragenboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	Join               bool // the replica was added with AddNode and joins a running cluster

	// Local store parameters
	CheckpointEntries uint64

	// Request handling
	TimeoutSecond           int64
	IntegrityErrorThreshold int

	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// Timeout returns the per request timeout
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// LocalStorePath returns the storage directory of the local store
func (c *ServerConfig) LocalStorePath() string {
	return filepath.Join(c.DataDir, fmt.Sprintf("shard-%d-local", c.ShardID))
}

// Validate checks the configuration for the selected mode.
func (c *ServerConfig) Validate() error {
	switch c.Mode {
	case ModeLocal:
		if c.ReplicaID == 0 {
			return fmt.Errorf("replica id is required")
		}
	case ModeReplicated:
		if c.ReplicaID == 0 {
			return fmt.Errorf("replica id is required in replicated mode")
		}
		if len(c.ClusterMembers) == 0 {
			return fmt.Errorf("cluster members are required in replicated mode")
		}
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("no address found for replica ID %d in cluster members", c.ReplicaID)
		}
	default:
		return fmt.Errorf("invalid mode %q (expected %s or %s)", c.Mode, ModeLocal, ModeReplicated)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Transport.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Store
	addSection("Store")
	addField("Mode", string(c.Mode))
	addField("Shard", strconv.FormatUint(c.ShardID, 10))
	addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
	addField("Data Directory", c.DataDir)
	addField("Integrity Threshold", strconv.Itoa(c.IntegrityErrorThreshold))
	if c.Mode == ModeLocal {
		addField("Checkpoint Entries", strconv.FormatUint(c.CheckpointEntries, 10))
		return sb.String()
	}

	// Node Identity
	addSection("Node Identity")
	addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
	addField("Join", strconv.FormatBool(c.Join))

	// RAFT parameters
	addSection("RAFT Parameters")
	addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
	addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
	addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
	addField("Check Quorum", fmt.Sprintf("%t", true))
	addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
	addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

	// Cluster configuration
	addSection("Cluster")
	if c.Join {
		return sb.String()
	}
	sb.WriteString("  Initial Cluster Members:\n")
	for _, k := range sortedKeys(c.ClusterMembers) {
		sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the RPC clients
type ClientConfig struct {
	Nodes         map[uint64]string // node id -> endpoint
	ShardID       uint64
	TimeoutSecond int // timeout of a single attempt
	Retry         router.Config
	Transport     ClientTransportConfig
}

// Timeout returns the timeout of a single attempt
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// NodeIDs returns the ids of all configured nodes in ascending order
func (c *ClientConfig) NodeIDs() []uint64 {
	return sortedKeys(c.Nodes)
}

// RouterConfig returns the retry budget of the router
func (c *ClientConfig) RouterConfig() router.Config {
	return c.Retry
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Shard", strconv.FormatUint(c.ShardID, 10))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Attempts", strconv.Itoa(c.Retry.MaxAttempts))
	addField("Max Elapsed", c.Retry.MaxElapsed.String())
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	// Nodes
	addSection("Nodes")
	for _, id := range c.NodeIDs() {
		addField(strconv.FormatUint(id, 10), c.Nodes[id])
	}

	return sb.String()
}

func sortedKeys(m map[uint64]string) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
