package catalog

import "context"

// ICatalog defines the interface of the cluster catalog. Every operation is a
// conditional write or a linearizable read on a store.IMetaStore, failures are
// returned as *metaerr.MetaError. Business conflicts (e.g. an existing database)
// are MetaErrors of kind ErrorCode.
type ICatalog interface {
	// CreateDatabase creates a database. Fails with DatabaseAlreadyExists if a
	// database with the name exists.
	CreateDatabase(ctx context.Context, name string, options map[string]string) (DatabaseInfo, error)

	// GetDatabase returns the database with the given name or UnknownDatabase.
	GetDatabase(ctx context.Context, name string) (DatabaseInfo, error)

	// ListDatabases returns all databases ordered by name.
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)

	// DropDatabase deletes an empty database. Fails with DatabaseNotEmpty while
	// the database has tables and with UnknownDatabase if it does not exist.
	DropDatabase(ctx context.Context, name string) error

	// CreateTable creates a table in an existing database. Fails with
	// UnknownDatabase or TableAlreadyExists.
	CreateTable(ctx context.Context, info TableInfo) (TableInfo, error)

	// GetTable returns the table or UnknownTable.
	GetTable(ctx context.Context, database, name string) (TableInfo, error)

	// ListTables returns all tables of a database ordered by name.
	ListTables(ctx context.Context, database string) ([]TableInfo, error)

	// UpdateTable replaces the schema and options of a table if its current
	// version is expected (compare-and-swap). Fails with TableVersionMismatched
	// if the table was changed in the meantime.
	UpdateTable(ctx context.Context, info TableInfo, expected uint64) (TableInfo, error)

	// DropTable deletes a table. Fails with UnknownTable if it does not exist.
	DropTable(ctx context.Context, database, name string) error

	// RegisterNode adds a compute node to the topology. Fails with NodeAlreadyExists.
	RegisterNode(ctx context.Context, info NodeInfo) error

	// UnregisterNode removes a compute node. Fails with UnknownNode.
	UnregisterNode(ctx context.Context, id uint64) error

	// ListNodes returns all registered compute nodes ordered by id.
	ListNodes(ctx context.Context) ([]NodeInfo, error)
}
