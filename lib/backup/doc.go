// Package backup contains the operator tooling to move the state of a store
// between nodes: Export writes the state of a stopped store as a snapshot,
// Import seeds an empty store from such a snapshot and Inspect shows the header.
//
// The snapshot format is the one of statemachine.StateMachine.Snapshot, it is
// checksummed, so a damaged file is rejected with MetaStoreDamaged.
//
//	f, _ := os.Create("backup.snap")
//	info, err := backup.Export("/data/node-1", f)
//
//	f, _ = os.Open("backup.snap")
//	info, err = backup.Import("/data/node-2", 2, f)
package backup
