package store

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	clocktest "github.com/rileyhilliard/instsync/internal/clock/testing"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *logger.BufferLogger) {
	t.Helper()
	log := logger.NewBufferLogger()
	return New(WithLogger(log), WithClock(clocktest.NewFakeClock())), log
}

func rec(id string, status instance.Status) instance.Record {
	return instance.Record{
		ID:           instance.ID(id),
		InstanceName: "db-" + id,
		Host:         "10.0.0." + id,
		Port:         3306,
		DBType:       "MySQL",
		Status:       status,
	}
}

func ids(records []instance.Record) []instance.ID {
	out := make([]instance.ID, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestApplySnapshot_Stats(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplySnapshot([]instance.Record{
		rec("1", instance.StatusRunning),
		rec("2", instance.StatusError),
	})

	assert.Equal(t, instance.Stats{Total: 2, Running: 1, Error: 1}, s.Stats())
}

func TestApplySnapshot_ReplacesEverything(t *testing.T) {
	s, _ := newTestStore(t)
	s.ApplySnapshot([]instance.Record{rec("1", instance.StatusRunning), rec("2", instance.StatusRunning), rec("9", instance.StatusRunning)})

	s.ApplySnapshot([]instance.Record{rec("3", instance.StatusRunning), rec("4", instance.StatusError), rec("5", instance.StatusRunning)})

	assert.Equal(t, []instance.ID{"3", "4", "5"}, ids(s.List()))
	_, ok := s.Get("1")
	assert.False(t, ok, "records missing from the snapshot are dropped")
}

func TestApplySnapshot_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	snap := []instance.Record{rec("1", instance.StatusRunning), rec("2", instance.StatusError)}

	s.ApplySnapshot(snap)
	once := s.List()
	s.ApplySnapshot(snap)

	assert.Equal(t, once, s.List())
}

func TestApplySnapshot_DuplicateIDsCollapse(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplySnapshot([]instance.Record{
		rec("1", instance.StatusRunning),
		rec("2", instance.StatusRunning),
		rec("1", instance.StatusError),
	})

	assert.Equal(t, []instance.ID{"1", "2"}, ids(s.List()))
	r, _ := s.Get("1")
	assert.Equal(t, instance.StatusError, r.Status, "last occurrence wins")
}

func TestApplySnapshot_NormalizesStatus(t *testing.T) {
	s, _ := newTestStore(t)
	s.ApplySnapshot([]instance.Record{{ID: "1"}, {ID: "2", Status: "paused"}})

	for _, r := range s.List() {
		assert.Equal(t, instance.StatusError, r.Status)
	}
}

func TestApplyPatch(t *testing.T) {
	s, _ := newTestStore(t)
	s.ApplySnapshot([]instance.Record{rec("1", instance.StatusRunning), rec("2", instance.StatusError)})

	status := instance.StatusError
	ok := s.ApplyPatch("1", instance.Patch{Status: &status})
	require.True(t, ok)

	r1, _ := s.Get("1")
	r2, _ := s.Get("2")
	assert.Equal(t, instance.StatusError, r1.Status)
	assert.Equal(t, "db-1", r1.InstanceName, "identity fields survive patches")
	assert.Equal(t, rec("2", instance.StatusError), r2)
}

func TestApplyPatch_UnknownID(t *testing.T) {
	s, log := newTestStore(t)
	s.ApplySnapshot([]instance.Record{rec("1", instance.StatusRunning)})
	before := s.List()

	status := instance.StatusError
	assert.False(t, s.ApplyPatch("404", instance.Patch{Status: &status}))

	assert.Equal(t, before, s.List())
	assert.True(t, log.HasLevel("warn"))
}

func TestApplyCreate_DuplicateIsUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	s.ApplySnapshot([]instance.Record{rec("1", instance.StatusRunning)})

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.ApplyCreate(instance.Record{ID: "1", Status: instance.StatusError})

	require.Equal(t, 1, s.Len())
	r, _ := s.Get("1")
	assert.Equal(t, instance.StatusError, r.Status)
	assert.Equal(t, "db-1", r.InstanceName)
	assert.Equal(t, []Change{{Kind: ChangeUpdate, ID: "1"}}, changes)
}

func TestApplyCreate_Appends(t *testing.T) {
	s, _ := newTestStore(t)
	s.ApplySnapshot([]instance.Record{rec("1", instance.StatusRunning)})

	s.ApplyCreate(rec("2", instance.StatusRunning))

	assert.Equal(t, []instance.ID{"1", "2"}, ids(s.List()))
}

func TestApplyUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	s.ApplySnapshot([]instance.Record{rec("1", instance.StatusRunning)})

	assert.True(t, s.ApplyUpdate(instance.Record{ID: "1", Status: instance.StatusError, IsMonitoring: true}))
	r, _ := s.Get("1")
	assert.Equal(t, instance.StatusError, r.Status)
	assert.True(t, r.IsMonitoring)
	assert.Equal(t, "10.0.0.1", r.Host)

	assert.False(t, s.ApplyUpdate(rec("2", instance.StatusRunning)), "unknown id is not inserted")
	assert.Equal(t, 1, s.Len())
}

func TestApplyDelete(t *testing.T) {
	s, _ := newTestStore(t)
	s.ApplySnapshot([]instance.Record{rec("1", instance.StatusRunning), rec("2", instance.StatusRunning), rec("3", instance.StatusRunning)})

	assert.True(t, s.ApplyDelete("2"))
	assert.False(t, s.ApplyDelete("2"))
	assert.Equal(t, []instance.ID{"1", "3"}, ids(s.List()))
}

func TestGet_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := rec("1", instance.StatusRunning)
	r.LastCheckTime = &ts
	s.ApplySnapshot([]instance.Record{r})

	got, _ := s.Get("1")
	got.Host = "mutated"
	*got.LastCheckTime = ts.Add(time.Hour)

	again, _ := s.Get("1")
	assert.Equal(t, "10.0.0.1", again.Host)
	assert.Equal(t, ts, *again.LastCheckTime)
}

func TestLastUpdate(t *testing.T) {
	clk := clocktest.NewFakeClock()
	s := New(WithClock(clk), WithLogger(logger.Noop()))
	assert.True(t, s.LastUpdate().IsZero())

	clk.Advance(time.Minute)
	s.ApplySnapshot(nil)
	assert.Equal(t, clk.Now(), s.LastUpdate())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	count := 0
	unsub := s.Subscribe(func(Change) { count++ })

	s.ApplySnapshot(nil)
	unsub()
	s.ApplySnapshot(nil)

	assert.Equal(t, 1, count)
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "snapshot", ChangeSnapshot.String())
	assert.Equal(t, "delete", ChangeDelete.String())
	assert.Equal(t, "unknown", ChangeKind(42).String())
}

// Random operation sequences must never leave two records with one ID or a
// record without a valid status.
func TestStore_InvariantsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []instance.Status{instance.StatusRunning, instance.StatusError, "", "bogus"}

	for run := 0; run < 50; run++ {
		s := New(WithLogger(logger.Noop()))
		for step := 0; step < 200; step++ {
			id := instance.ID(fmt.Sprint(rng.Intn(8)))
			status := statuses[rng.Intn(len(statuses))]

			switch rng.Intn(5) {
			case 0:
				n := rng.Intn(6)
				snap := make([]instance.Record, 0, n)
				for i := 0; i < n; i++ {
					snap = append(snap, instance.Record{ID: instance.ID(fmt.Sprint(rng.Intn(8))), Status: status})
				}
				s.ApplySnapshot(snap)
			case 1:
				s.ApplyPatch(id, instance.Patch{Status: &status})
			case 2:
				s.ApplyCreate(instance.Record{ID: id, Status: status})
			case 3:
				s.ApplyUpdate(instance.Record{ID: id, Status: status})
			case 4:
				s.ApplyDelete(id)
			}

			list := s.List()
			seen := make(map[instance.ID]bool)
			for _, r := range list {
				require.False(t, seen[r.ID], "duplicate id %s", r.ID)
				seen[r.ID] = true
				require.Contains(t, []instance.Status{instance.StatusRunning, instance.StatusError}, r.Status)
			}
			require.Equal(t, len(list), s.Len())
			st := s.Stats()
			require.Equal(t, st.Total, st.Running+st.Error)
		}
	}
}
