package store

import (
	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// Recover rebuilds sm from st: the latest snapshot is restored, then every log
// entry after it is applied again. sm must be empty.
//
// An entry that can not be applied means the log and the state machine disagree,
// this is reported as MetaStoreDamaged.
func Recover(st *storage.Store, sm *statemachine.StateMachine) error {
	index, data, found, err := st.Snapshot()
	if err != nil {
		return err
	}
	if found {
		if err := sm.Restore(data); err != nil {
			return err
		}
		if sm.AppliedIndex() != index {
			return metaerr.Damagedf("snapshot stored at index %d describes index %d", index, sm.AppliedIndex())
		}
	}

	entries, err := st.Entries(sm.AppliedIndex())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := sm.Apply(e.Index, e.Data); err != nil {
			return metaerr.Damagedf("failed to replay log entry %d: %v", e.Index, err)
		}
	}

	log.Infof("recovered %s: snapshot at %d, replayed %d entries, applied index %d",
		st.Path(), index, len(entries), sm.AppliedIndex())
	return nil
}
