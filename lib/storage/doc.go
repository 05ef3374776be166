/*
Package storage implements the durable storage of a replica.

A store is a directory containing an IDENTITY file and a pebble database:

	<path>/IDENTITY   json: node id, random incarnation uuid, format version
	<path>/db/        pebble: "log/<index>" entries and "meta/snapshot"

Every value is prefixed with its index and an xxhash64 checksum over index and
payload. Reads verify both, so a flipped byte, a truncated value or a value copied
to the wrong key is reported as MetaStoreDamaged. Corruption is never skipped or
repaired.

Lifecycle:

	s, err := storage.Create(path, id) // MetaStoreAlreadyExists if path belongs to another id
	s, err := storage.Open(path)       // MetaStoreNotFound if there is no store at path

Append commits with pebble.Sync: once it returns, the entries survive a crash.
SaveSnapshot stores a state machine snapshot and compacts the log up to the
snapshot index in one atomic batch.
*/
package storage
