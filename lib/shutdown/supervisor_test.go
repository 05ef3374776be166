package shutdown

import (
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isDone(s *Supervisor) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

func TestSupervisorStartsSafe(t *testing.T) {
	s := NewSupervisor(0)
	assert.NoError(t, s.CheckWrite())
	assert.NoError(t, s.CheckRead())
	assert.False(t, s.Unsafe())
	assert.False(t, isDone(s))
	assert.Nil(t, s.Err())
}

func TestUnsafeStorage(t *testing.T) {
	tests := []struct {
		name       string
		consistent []bool
		readsOK    bool
	}{
		{"consistent", []bool{true}, true},
		{"inconsistent", []bool{false}, false},
		{"consistent then inconsistent", []bool{true, false}, false},
		{"inconsistent then consistent", []bool{false, true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupervisor(3)
			cause := errors.New("fsync failed")
			for _, c := range tt.consistent {
				s.OnUnsafeStorage(cause, c)
			}

			assert.True(t, s.Unsafe())
			assert.True(t, isDone(s))

			kind, ok := metaerr.KindOf(s.CheckWrite())
			require.True(t, ok)
			assert.Equal(t, metaerr.KindMetaStoreDamaged, kind)

			if tt.readsOK {
				assert.NoError(t, s.CheckRead())
			} else {
				assert.Error(t, s.CheckRead())
			}

			err := s.Err()
			assert.ErrorIs(t, err, metaerr.ErrUnsafeStorage)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestObserve(t *testing.T) {
	t.Run("damaged escalates immediately", func(t *testing.T) {
		s := NewSupervisor(10)
		err := metaerr.Damaged("checksum mismatch")
		assert.Same(t, err, s.Observe(err))
		assert.True(t, s.Unsafe())
		assert.NoError(t, s.CheckRead())
	})

	t.Run("integrity errors escalate at the threshold", func(t *testing.T) {
		s := NewSupervisor(3)
		s.Observe(metaerr.BadBytes("bad"))
		s.Observe(metaerr.SerdeJSON("bad json"))
		assert.False(t, s.Unsafe())
		s.Observe(metaerr.BadBytes("bad again"))
		assert.True(t, s.Unsafe())
	})

	t.Run("other errors are ignored", func(t *testing.T) {
		s := NewSupervisor(1)
		s.Observe(nil)
		s.Observe(errors.New("plain"))
		s.Observe(metaerr.ForwardUnknown())
		s.Observe(metaerr.Connection("dial", errors.New("refused")))
		s.Observe(metaerr.InvalidConfig("bad"))
		assert.False(t, s.Unsafe())
	})
}

func TestConcurrentTransition(t *testing.T) {
	s := NewSupervisor(1)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.OnUnsafeStorage(errors.New("boom"), true)
		}()
	}
	wg.Wait()
	assert.True(t, isDone(s))
	assert.Error(t, s.CheckWrite())
}
