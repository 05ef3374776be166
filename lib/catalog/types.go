package catalog

// DatabaseInfo describes a database of the catalog.
type DatabaseInfo struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
	Version uint64            `json:"version"` // Version of the catalog record, set on read
}

// TableInfo describes a table of the catalog.
type TableInfo struct {
	Database string            `json:"database"`
	Name     string            `json:"name"`
	Schema   string            `json:"schema"` // Opaque schema definition of the compute layer
	Options  map[string]string `json:"options,omitempty"`
	Version  uint64            `json:"version"` // Version of the catalog record, set on read
}

// NodeInfo describes a compute node of the cluster topology.
type NodeInfo struct {
	ID      uint64            `json:"id"`
	Address string            `json:"address"`
	Labels  map[string]string `json:"labels,omitempty"`
	Version uint64            `json:"version"`
}
