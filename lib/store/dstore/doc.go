// Package dstore implements a replicated, fault-tolerant metadata store using the
// Dragonboat RAFT consensus library. It implements the store.IMetaStore interface
// on top of a Dragonboat NodeHost.
//
// Architecture:
//
//   - Store Client (store.go): serializes operations into statemachine.Commands and
//     proposes them via SyncPropose. Before proposing it asks Dragonboat who the
//     leader is: a follower answers ForwardToLeader naming the leader, while no
//     leader is known (election in progress) ForwardToLeader without a leader.
//
//   - State Machine (statemachine.go): a Dragonboat IOnDiskStateMachine. Every
//     committed batch is first journaled to the storage backend (fsync), then
//     applied to the deterministic statemachine.StateMachine. Open returns the
//     applied index recovered from the journal, so Dragonboat only replays what is
//     missing.
//
//   - Error Mapping (errors.go): Dragonboat errors are classified into MetaErrors.
//
// Write Operations:
//
//	1. The key is validated (BadBytes for invalid UTF-8)
//	2. The shutdown supervisor is asked whether writes are still allowed
//	3. The local replica must be the leader (else ForwardToLeader)
//	4. The Command is proposed via SyncPropose, ErrSystemBusy is retried up to 5 times
//	5. Once committed, Update journals and applies the entry on every replica
//	6. The ApplyOutcome (or the MetaError of the apply) is returned as sm.Result
//
// Read Operations:
//
//   - Linearizable: SyncRead (ReadIndex), served by every replica, waits until the
//     committed index observed at request time is applied. A timeout is reported as
//     ReadTimeout.
//   - Latest: StaleRead, returns the latest applied state of the local replica.
//
// Reads are never answered with ForwardToLeader.
//
// Error Mapping:
//
//	ErrTimeout             read: ReadTimeout, write: ConnectionError
//	ErrSystemBusy,
//	ErrShardNotReady,
//	ErrCanceled, ErrAborted ConnectionError
//	ErrRejected            ChangeMembershipError (membership operations)
//	everything else        UnknownError
//
// Snapshotting and Recovery:
//
//	PrepareSnapshot captures the state machine snapshot on the update path,
//	SaveSnapshot writes it to Dragonboat and stores it as checkpoint in the
//	storage backend, which compacts the journal. RecoverFromSnapshot installs a
//	snapshot sent by the leader. A snapshot that fails validation is reported as
//	MetaStoreDamaged and escalated to the shutdown supervisor.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	err = nh.StartOnDiskReplica(members, false,
//	    dstore.CreateStateMachineFactory(dataDir, supervisor), shardConfig)
//	s := dstore.NewDistributedStore(nh, shardID, replicaID, 5*time.Second, supervisor)
package dstore
