package catalog

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/errcode"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("catalog")

// maxCatalogAttempts bounds the conditional write loops under contention
const maxCatalogAttempts = 16

type catalogImpl struct {
	store store.IMetaStore
}

// NewCatalog creates a catalog on top of s. The catalog has no state of its own,
// so any number of catalogs can share a store.
func NewCatalog(s store.IMetaStore) ICatalog {
	return &catalogImpl{
		store: s,
	}
}

// --------------------------------------------------------------------------
// Databases
// --------------------------------------------------------------------------

func (c *catalogImpl) CreateDatabase(ctx context.Context, name string, options map[string]string) (DatabaseInfo, error) {
	if err := validateName("database", name); err != nil {
		return DatabaseInfo{}, err
	}
	value, err := encode(DatabaseInfo{Name: name, Options: options})
	if err != nil {
		return DatabaseInfo{}, err
	}

	// create-if-absent is atomic, only one of concurrent creators wins
	out, err := c.store.Upsert(ctx, dbKey(name), statemachine.Absent(), value)
	if err != nil {
		return DatabaseInfo{}, err
	}
	if !out.Applied {
		return DatabaseInfo{}, conflict(errcode.DatabaseAlreadyExists(fmt.Sprintf("database %s already exists", name)))
	}
	log.Infof("created database %s", name)
	return decodeDatabase(*out.Result)
}

func (c *catalogImpl) GetDatabase(ctx context.Context, name string) (DatabaseInfo, error) {
	if err := validateName("database", name); err != nil {
		return DatabaseInfo{}, err
	}
	rec, found, err := c.store.Get(ctx, dbKey(name), statemachine.Linearizable)
	if err != nil {
		return DatabaseInfo{}, err
	}
	if !found {
		return DatabaseInfo{}, conflict(errcode.UnknownDatabase(fmt.Sprintf("unknown database %s", name)))
	}
	return decodeDatabase(rec)
}

func (c *catalogImpl) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	recs, err := c.store.List(ctx, dbPrefix, statemachine.Linearizable)
	if err != nil {
		return nil, err
	}
	res := make([]DatabaseInfo, 0, len(recs))
	for _, rec := range recs {
		info, err := decodeDatabase(rec)
		if err != nil {
			return nil, err
		}
		res = append(res, info)
	}
	return res, nil
}

func (c *catalogImpl) DropDatabase(ctx context.Context, name string) error {
	for attempt := 0; ; attempt++ {
		db, err := c.GetDatabase(ctx, name)
		if err != nil {
			return err
		}
		tables, err := c.store.List(ctx, tablesOf(name), statemachine.Linearizable)
		if err != nil {
			return err
		}
		if len(tables) > 0 {
			return conflict(errcode.DatabaseNotEmpty(fmt.Sprintf("database %s has %d tables", name, len(tables))))
		}

		// CreateTable rewrites the database record after inserting a table, so
		// the delete fails if a table was created since the tables were listed
		out, err := c.store.Delete(ctx, dbKey(name), statemachine.Exact(db.Version))
		if err != nil {
			return err
		}
		switch out.Conflict {
		case statemachine.ConflictNone:
			log.Infof("dropped database %s", name)
			return nil
		case statemachine.ConflictNotFound:
			return conflict(errcode.UnknownDatabase(fmt.Sprintf("unknown database %s", name)))
		}
		if attempt+1 >= maxCatalogAttempts {
			return conflict(errcode.DatabaseNotEmpty(fmt.Sprintf("database %s was changed concurrently", name)))
		}
	}
}

// --------------------------------------------------------------------------
// Tables
// --------------------------------------------------------------------------

func (c *catalogImpl) CreateTable(ctx context.Context, info TableInfo) (TableInfo, error) {
	if err := validateName("table", info.Name); err != nil {
		return TableInfo{}, err
	}
	if _, err := c.GetDatabase(ctx, info.Database); err != nil {
		return TableInfo{}, err
	}

	info.Version = 0
	value, err := encode(info)
	if err != nil {
		return TableInfo{}, err
	}
	key := tableKey(info.Database, info.Name)
	out, err := c.store.Upsert(ctx, key, statemachine.Absent(), value)
	if err != nil {
		return TableInfo{}, err
	}
	if !out.Applied {
		return TableInfo{}, conflict(errcode.TableAlreadyExists(fmt.Sprintf("table %s.%s already exists", info.Database, info.Name)))
	}

	// The database could have been dropped between the check and the create.
	// Remove the orphan again in that case.
	exists, err := c.touchDatabase(ctx, info.Database)
	if err != nil {
		return TableInfo{}, err
	}
	if !exists {
		if _, err := c.store.Delete(ctx, key, statemachine.Exact(out.Result.Version)); err != nil {
			return TableInfo{}, err
		}
		return TableInfo{}, conflict(errcode.UnknownDatabase(fmt.Sprintf("unknown database %s", info.Database)))
	}

	log.Infof("created table %s.%s", info.Database, info.Name)
	return decodeTable(*out.Result)
}

// touchDatabase rewrites the database record unchanged, which gives it a new
// version. A DropDatabase that listed the tables before the rewrite fails its
// conditional delete. Returns false if the database does not exist.
func (c *catalogImpl) touchDatabase(ctx context.Context, name string) (bool, error) {
	for attempt := 0; attempt < maxCatalogAttempts; attempt++ {
		rec, found, err := c.store.Get(ctx, dbKey(name), statemachine.Linearizable)
		if err != nil || !found {
			return false, err
		}
		out, err := c.store.Upsert(ctx, dbKey(name), statemachine.Exact(rec.Version), rec.Value)
		if err != nil {
			return false, err
		}
		switch out.Conflict {
		case statemachine.ConflictNone:
			return true, nil
		case statemachine.ConflictNotFound:
			return false, nil
		}
		// another table was created concurrently, read the new version
	}
	return false, conflict(errcode.MetaServiceError(fmt.Sprintf("database %s was changed concurrently", name)))
}

func (c *catalogImpl) GetTable(ctx context.Context, database, name string) (TableInfo, error) {
	if err := validateName("database", database); err != nil {
		return TableInfo{}, err
	}
	if err := validateName("table", name); err != nil {
		return TableInfo{}, err
	}
	rec, found, err := c.store.Get(ctx, tableKey(database, name), statemachine.Linearizable)
	if err != nil {
		return TableInfo{}, err
	}
	if !found {
		return TableInfo{}, conflict(errcode.UnknownTable(fmt.Sprintf("unknown table %s.%s", database, name)))
	}
	return decodeTable(rec)
}

func (c *catalogImpl) ListTables(ctx context.Context, database string) ([]TableInfo, error) {
	if _, err := c.GetDatabase(ctx, database); err != nil {
		return nil, err
	}
	recs, err := c.store.List(ctx, tablesOf(database), statemachine.Linearizable)
	if err != nil {
		return nil, err
	}
	res := make([]TableInfo, 0, len(recs))
	for _, rec := range recs {
		info, err := decodeTable(rec)
		if err != nil {
			return nil, err
		}
		res = append(res, info)
	}
	return res, nil
}

func (c *catalogImpl) UpdateTable(ctx context.Context, info TableInfo, expected uint64) (TableInfo, error) {
	if err := validateName("database", info.Database); err != nil {
		return TableInfo{}, err
	}
	if err := validateName("table", info.Name); err != nil {
		return TableInfo{}, err
	}

	info.Version = 0
	value, err := encode(info)
	if err != nil {
		return TableInfo{}, err
	}
	out, err := c.store.Upsert(ctx, tableKey(info.Database, info.Name), statemachine.Exact(expected), value)
	if err != nil {
		return TableInfo{}, err
	}
	switch out.Conflict {
	case statemachine.ConflictNone:
		return decodeTable(*out.Result)
	case statemachine.ConflictNotFound:
		return TableInfo{}, conflict(errcode.UnknownTable(fmt.Sprintf("unknown table %s.%s", info.Database, info.Name)))
	default:
		return TableInfo{}, conflict(errcode.TableVersionMismatched(fmt.Sprintf(
			"table %s.%s has version %d, expected %d", info.Database, info.Name, out.Result.Version, expected)))
	}
}

func (c *catalogImpl) DropTable(ctx context.Context, database, name string) error {
	if err := validateName("database", database); err != nil {
		return err
	}
	if err := validateName("table", name); err != nil {
		return err
	}
	out, err := c.store.Delete(ctx, tableKey(database, name), statemachine.Any())
	if err != nil {
		return err
	}
	if !out.Applied {
		return conflict(errcode.UnknownTable(fmt.Sprintf("unknown table %s.%s", database, name)))
	}
	log.Infof("dropped table %s.%s", database, name)
	return nil
}

// --------------------------------------------------------------------------
// Nodes
// --------------------------------------------------------------------------

func (c *catalogImpl) RegisterNode(ctx context.Context, info NodeInfo) error {
	if info.ID == 0 || info.Address == "" {
		return conflict(errcode.BadArguments("node id and address are required"))
	}
	info.Version = 0
	value, err := encode(info)
	if err != nil {
		return err
	}
	out, err := c.store.Upsert(ctx, nodeKey(info.ID), statemachine.Absent(), value)
	if err != nil {
		return err
	}
	if !out.Applied {
		return conflict(errcode.NodeAlreadyExists(fmt.Sprintf("node %d already exists", info.ID)))
	}
	log.Infof("registered node %d (%s)", info.ID, info.Address)
	return nil
}

func (c *catalogImpl) UnregisterNode(ctx context.Context, id uint64) error {
	out, err := c.store.Delete(ctx, nodeKey(id), statemachine.Any())
	if err != nil {
		return err
	}
	if !out.Applied {
		return conflict(errcode.UnknownNode(fmt.Sprintf("unknown node %d", id)))
	}
	log.Infof("unregistered node %d", id)
	return nil
}

func (c *catalogImpl) ListNodes(ctx context.Context) ([]NodeInfo, error) {
	recs, err := c.store.List(ctx, nodePrefix, statemachine.Linearizable)
	if err != nil {
		return nil, err
	}
	res := make([]NodeInfo, 0, len(recs))
	for _, rec := range recs {
		info, err := decodeNode(rec)
		if err != nil {
			return nil, err
		}
		res = append(res, info)
	}
	return res, nil
}
