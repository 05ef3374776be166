package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dMeta/lib/router"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/serializer"
	"github.com/ValentinKolb/dMeta/rpc/transport"
	"github.com/ValentinKolb/dMeta/rpc/transport/http"
	"github.com/ValentinKolb/dMeta/rpc/transport/tcp"
	"github.com/ValentinKolb/dMeta/rpc/transport/unix"
	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (DMETA_<flag>)
	EnvPrefix = "dmeta"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads the env files and configures viper to read DMETA_* environment
// variables.
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// LoadConfigFile reads a YAML file whose keys are flag names and merges it into
// viper. Values from the file have a lower precedence than flags and environment
// variables.
func LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	values := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return viper.MergeConfigMap(values)
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Node ids
// --------------------------------------------------------------------------

// ParseNodeID converts a node name into a node id. Numbers are used as they are,
// every other name is hashed (e.g. node-1).
func ParseNodeID(name string) (uint64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("node id must not be empty")
	}
	if id, err := strconv.ParseUint(name, 10, 64); err == nil {
		if id == 0 {
			return 0, fmt.Errorf("node id 0 is reserved")
		}
		return id, nil
	}
	return xxhash.Sum64String(name), nil
}

// ParseMembers parses a comma-separated list in the format
// 'node-1=localhost:63001,node-2=localhost:63002,...'.
func ParseMembers(list string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(list, ",") {
		if strings.TrimSpace(member) == "" {
			continue
		}
		parts := strings.SplitN(member, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid member format: %s (expected ID=address)", member)
		}
		id, err := ParseNodeID(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid member %s: %w", member, err)
		}
		if _, ok := members[id]; ok {
			return nil, fmt.Errorf("duplicate member id %s", parts[0])
		}
		members[id] = strings.TrimSpace(parts[1])
	}
	return members, nil
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	defaults := router.DefaultConfig()

	key := "nodes"
	cmd.PersistentFlags().String(key, "1=localhost:8080", WrapString("Comma-separated list of the RPC endpoints of the replicas in the format 'node-1=localhost:8080,node-2=localhost:8081'. The names must match the cluster members of the servers"))

	key = "shard"
	cmd.PersistentFlags().Uint64(key, 100, WrapString("ID of the shard to connect to"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("The timeout in seconds of a single request"))

	key = "max-attempts"
	cmd.PersistentFlags().Int(key, defaults.MaxAttempts, WrapString("How many attempts an operation may take (including leader forwards)"))

	key = "max-elapsed"
	cmd.PersistentFlags().Duration(key, defaults.MaxElapsed, WrapString("How long an operation may take including all retries"))

	key = "backoff-base"
	cmd.PersistentFlags().Duration(key, defaults.BackoffBase, WrapString("The first backoff delay, doubled on every retry"))

	key = "backoff-max"
	cmd.PersistentFlags().Duration(key, defaults.BackoffMax, WrapString("The upper bound of the backoff delay"))

	key = "same-endpoint-retries"
	cmd.PersistentFlags().Int(key, defaults.SameEndpointRetries, WrapString("Connection failures tolerated per endpoint before the next replica is tried"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time for the transport (in seconds, only for tcp, negative keeps the os default)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	nodes, err := ParseMembers(viper.GetString("nodes"))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("at least one node is required")
	}

	conf := &common.ClientConfig{
		Nodes:         nodes,
		ShardID:       viper.GetUint64("shard"),
		TimeoutSecond: viper.GetInt("timeout"),
		Retry: router.Config{
			MaxAttempts:         viper.GetInt("max-attempts"),
			MaxElapsed:          viper.GetDuration("max-elapsed"),
			BackoffBase:         viper.GetDuration("backoff-base"),
			BackoffMax:          viper.GetDuration("backoff-max"),
			SameEndpointRetries: viper.GetInt("same-endpoint-retries"),
		},
		Transport: common.ClientTransportConfig{
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}

	return conf, nil
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetTransport creates the client transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// PrintYAML writes v as YAML to stdout
func PrintYAML(v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
