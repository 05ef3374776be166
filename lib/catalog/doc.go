// Package catalog implements the cluster catalog (databases, tables and the
// compute node topology) on top of a store.IMetaStore. It provides the
// application level view of the metadata service.
//
// The catalog only ever stores in the provided IMetaStore and has no other
// internal state. Therefore it is safe to be created multiple times on the same
// store, e.g. once per RPC request.
//
// Key Layout:
//
//	__db/<database>             DatabaseInfo (JSON)
//	__tbl/<database>/<table>    TableInfo (JSON)
//	__node/<id, 20 digits>      NodeInfo (JSON)
//
// Names must be non-empty, valid UTF-8 and must not contain '/'.
//
// Implementation Approach:
//
//	Every mutation is a single conditional write of the store:
//
//	- Create: Upsert with MatchAbsent, so only one of concurrent creators wins.
//	  The loser gets DatabaseAlreadyExists / TableAlreadyExists / NodeAlreadyExists.
//
//	- UpdateTable: Upsert with MatchExact(expected), a compare-and-swap on the
//	  version of the record. A concurrent change yields TableVersionMismatched.
//
//	- DropDatabase: lists the tables and deletes the database with
//	  MatchExact(version). CreateTable re-checks the database after the create
//	  and removes the table again if the database was dropped meanwhile.
//
// Errors:
//
//	Conflicts are returned as MetaErrors of kind ErrorCode carrying an
//	errcode.ErrorCode. The retry router never retries them. Records that can not
//	be decoded yield SerdeJsonError, failures of the store are returned unchanged.
//
// Usage Example:
//
//	cat := catalog.NewCatalog(store)
//	db, err := cat.CreateDatabase(ctx, "db1", nil)
//	tbl, err := cat.CreateTable(ctx, catalog.TableInfo{Database: "db1", Name: "t1", Schema: "id INT"})
//	tbl.Schema = "id INT, name TEXT"
//	tbl, err = cat.UpdateTable(ctx, tbl, tbl.Version)
package catalog
