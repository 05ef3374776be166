package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ValentinKolb/dMeta/lib/errcode"
	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
)

// key prefixes of the catalog records
const (
	dbPrefix    = "__db/"
	tablePrefix = "__tbl/"
	nodePrefix  = "__node/"
)

func dbKey(name string) string {
	return dbPrefix + name
}

func tableKey(database, name string) string {
	return tablePrefix + database + "/" + name
}

func tablesOf(database string) string {
	return tablePrefix + database + "/"
}

// nodeKey pads the id, so the key order equals the numeric order
func nodeKey(id uint64) string {
	return fmt.Sprintf("%s%020d", nodePrefix, id)
}

// validateName checks a database or table name
func validateName(kind, name string) error {
	switch {
	case name == "":
		return conflict(errcode.BadArguments(kind + " name must not be empty"))
	case !utf8.ValidString(name):
		return conflict(errcode.BadArguments(kind + " name is not valid utf-8"))
	case strings.Contains(name, "/"):
		return conflict(errcode.BadArguments(fmt.Sprintf("%s name %q must not contain '/'", kind, name)))
	}
	return nil
}

// conflict wraps an application error so it crosses the store boundary
func conflict(ec *errcode.ErrorCode) error {
	return metaerr.FromErrorCode(ec)
}

// encode marshals a catalog value. The version is part of the record, not the value.
func encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, metaerr.FromJSONError(err)
	}
	return data, nil
}

// decode unmarshals the value of rec into v
func decode(rec statemachine.Record, v interface{}) error {
	if err := json.Unmarshal(rec.Value, v); err != nil {
		return metaerr.SerdeJSON(fmt.Sprintf("catalog record %s: %v", rec.Key, err))
	}
	return nil
}

func decodeDatabase(rec statemachine.Record) (DatabaseInfo, error) {
	var info DatabaseInfo
	if err := decode(rec, &info); err != nil {
		return DatabaseInfo{}, err
	}
	info.Version = rec.Version
	return info, nil
}

func decodeTable(rec statemachine.Record) (TableInfo, error) {
	var info TableInfo
	if err := decode(rec, &info); err != nil {
		return TableInfo{}, err
	}
	info.Version = rec.Version
	return info, nil
}

func decodeNode(rec statemachine.Record) (NodeInfo, error) {
	var info NodeInfo
	if err := decode(rec, &info); err != nil {
		return NodeInfo{}, err
	}
	info.Version = rec.Version
	return info, nil
}
