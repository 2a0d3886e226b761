package fdb

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"
)

var (
	macA = MustParseMAC("aa:aa:aa:aa:aa:01")
	macB = MustParseMAC("bb:bb:bb:bb:bb:02")
	macC = MustParseMAC("cc:cc:cc:cc:cc:03")
	macD = MustParseMAC("de:dd:dd:dd:dd:04")
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakePorts is a static attached ports set.
type fakePorts struct {
	addrs map[PortID]MAC
}

func newFakePorts(addrs map[PortID]MAC) *fakePorts {
	return &fakePorts{addrs: addrs}
}

func (m *fakePorts) SharingPort(addr MAC, except PortID) (PortID, bool) {
	best := NoPort
	for port, portAddr := range m.addrs {
		if port == except || portAddr != addr {
			continue
		}
		if best == NoPort || port < best {
			best = port
		}
	}

	return best, best != NoPort
}

func (m *fakePorts) Attached(port PortID) bool {
	_, ok := m.addrs[port]
	return ok
}

type testFDB struct {
	*FDB
	timers *BridgeTimers
	clock  *testingclock.FakeClock
}

func newTestFDB(t *testing.T, options ...Option) *testFDB {
	logger, _ := zap.NewDevelopment()
	clock := testingclock.NewFakeClock(t0)
	timers := NewBridgeTimers(DefaultTimersConfig())

	options = append([]Option{WithLog(logger.Sugar()), WithClock(clock)}, options...)

	return &testFDB{
		FDB:    NewFDB(timers, options...),
		timers: timers,
		clock:  clock,
	}
}

func (m *testFDB) mustResolve(t *testing.T, addr MAC) (PortID, bool) {
	port, local, ok := m.Resolve(addr)
	require.True(t, ok, "%s must be resolvable", addr)
	return port, local
}

func (m *testFDB) requireMiss(t *testing.T, addr MAC) {
	_, _, ok := m.Resolve(addr)
	require.False(t, ok, "%s must not be resolvable", addr)
}

////////////////////////////////////////////////////////////////////////////////

func TestLearnAndAge(t *testing.T) {
	fdb := newTestFDB(t)
	local := MustParseMAC("AA:AA:AA:AA:AA:01")
	learned := MustParseMAC("BB:BB:BB:BB:BB:02")

	require.NoError(t, fdb.InsertLocal(1, local))
	fdb.Update(2, learned, t0)

	port, isLocal := fdb.mustResolve(t, learned)
	require.Equal(t, PortID(2), port)
	require.False(t, isLocal)

	require.Equal(t, 0, fdb.Sweep(t0.Add(299*time.Second)))
	fdb.mustResolve(t, learned)

	require.Equal(t, 1, fdb.Sweep(t0.Add(301*time.Second)))
	fdb.requireMiss(t, learned)

	// Local entries survive any sweep.
	port, isLocal = fdb.mustResolve(t, local)
	require.Equal(t, PortID(1), port)
	require.True(t, isLocal)
	require.Equal(t, 1, fdb.Len())
	require.Equal(t, uint64(1), fdb.Stats().Aged)
}

func TestInsertLocalInvalidAddress(t *testing.T) {
	cases := []string{
		"00:00:00:00:00:00",
		"ff:ff:ff:ff:ff:ff",
		"01:00:5e:00:00:fb",
	}

	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			fdb := newTestFDB(t)

			err := fdb.InsertLocal(1, MustParseMAC(c))
			require.ErrorIs(t, err, ErrInvalidAddress)
			require.Equal(t, 0, fdb.Len())
		})
	}
}

func TestInsertLocalIdempotent(t *testing.T) {
	fdb := newTestFDB(t)

	require.NoError(t, fdb.InsertLocal(1, macA))
	once := fdb.Snapshot(16, 0)

	fdb.clock.Step(time.Minute)
	require.NoError(t, fdb.InsertLocal(1, macA))
	twice := fdb.Snapshot(16, 0)

	require.Empty(t, cmp.Diff(once, twice))
	require.Equal(t, 1, fdb.Len())
}

func TestInsertLocalReplacesLearned(t *testing.T) {
	fdb := newTestFDB(t)

	fdb.Update(2, macC, t0)
	learned, ok := fdb.Lookup(macC)
	require.True(t, ok)

	require.NoError(t, fdb.InsertLocal(1, macC))

	port, local := fdb.mustResolve(t, macC)
	require.Equal(t, PortID(1), port)
	require.True(t, local)
	require.Equal(t, 1, fdb.Len())
	require.Equal(t, uint64(1), fdb.Stats().Conflicts)

	// The replaced entry is still readable by its borrower.
	require.Equal(t, StateUnlinking, learned.State())
	require.Equal(t, PortID(2), learned.Port())
	require.False(t, learned.IsLocal())

	fdb.Release(learned)
	require.Equal(t, StateReclaimed, learned.State())
	require.Equal(t, uint64(1), fdb.Stats().Reclaimed)
}

func TestLocalPrecedence(t *testing.T) {
	fdb := newTestFDB(t)

	require.NoError(t, fdb.InsertLocal(1, macA))
	for port := PortID(2); port < 6; port++ {
		fdb.Update(port, macA, t0.Add(time.Duration(port)*time.Second))
	}

	port, local := fdb.mustResolve(t, macA)
	require.Equal(t, PortID(1), port)
	require.True(t, local)
	require.Equal(t, uint64(4), fdb.Stats().OwnAddress)
	require.Equal(t, uint64(0), fdb.Stats().Learned)
}

func TestUpdateRelocates(t *testing.T) {
	fdb := newTestFDB(t)

	fdb.Update(2, macB, t0)
	fdb.Update(3, macB, t0.Add(10*time.Second))

	e, ok := fdb.Lookup(macB)
	require.True(t, ok)
	defer fdb.Release(e)

	require.Equal(t, PortID(3), e.Port())
	require.True(t, e.LastSeen().Equal(t0.Add(10*time.Second)))
	require.Equal(t, 2, e.Refs())
	require.Equal(t, 1, fdb.Len())

	stats := fdb.Stats()
	require.Equal(t, uint64(1), stats.Learned)
	require.Equal(t, uint64(1), stats.Refreshed)
}

func TestUpdateLearnsAnySource(t *testing.T) {
	fdb := newTestFDB(t)

	// Source filtering belongs to the relay, the table learns what it is told.
	fdb.Update(2, MustParseMAC("BB:BB:BB:BB:BB:02"), t0)
	fdb.Update(3, MustParseMAC("01:00:5e:00:00:01"), t0)

	port, local := fdb.mustResolve(t, macB)
	require.Equal(t, PortID(2), port)
	require.False(t, local)
	require.Equal(t, 2, fdb.Len())
}

func TestUpdateDisabledWithZeroHoldTime(t *testing.T) {
	fdb := newTestFDB(t)
	fdb.timers.SetAgeingTime(0)

	fdb.Update(2, macB, t0)
	require.Equal(t, 0, fdb.Len())

	// The forward delay applies during a topology change.
	fdb.timers.SetTopologyChange(true)
	fdb.Update(2, macB, t0)
	require.Equal(t, 1, fdb.Len())
}

func TestAllocationFailure(t *testing.T) {
	fail := func(o *options) {
		o.Alloc = func(MAC, PortID, bool, time.Time) *Entry {
			return nil
		}
	}
	fdb := newTestFDB(t, fail)

	fdb.Update(2, macB, t0)
	require.Equal(t, 0, fdb.Len())

	err := fdb.InsertLocal(1, macA)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.Equal(t, 0, fdb.Len())
	require.Equal(t, uint64(2), fdb.Stats().LearnFailures)
}

func TestSharedLocalAddress(t *testing.T) {
	ports := newFakePorts(map[PortID]MAC{1: macC, 2: macC})
	fdb := newTestFDB(t, WithPorts(ports))

	require.NoError(t, fdb.InsertLocal(1, macC))
	require.NoError(t, fdb.InsertLocal(2, macC))

	require.Equal(t, 1, fdb.Len())
	port, local := fdb.mustResolve(t, macC)
	require.Equal(t, PortID(2), port)
	require.True(t, local)

	// Port 2 leaves the bridge: the address stays ours via port 1.
	delete(ports.addrs, 2)
	require.Equal(t, 0, fdb.DeleteByPort(2))

	port, local = fdb.mustResolve(t, macC)
	require.Equal(t, PortID(1), port)
	require.True(t, local)

	// The last owner leaves.
	delete(ports.addrs, 1)
	require.Equal(t, 1, fdb.DeleteByPort(1))
	fdb.requireMiss(t, macC)
}

func TestDeleteByPort(t *testing.T) {
	ports := newFakePorts(map[PortID]MAC{1: macA, 2: macC, 3: macD})
	fdb := newTestFDB(t, WithPorts(ports))

	require.NoError(t, fdb.InsertLocal(1, macA))
	require.NoError(t, fdb.InsertLocal(2, macC))

	learned := make([]MAC, 0, 16)
	for i := range 16 {
		addr := MAC{0x02, 0, 0, 0, 0, byte(i + 1)}
		fdb.Update(PortID(2+i%2), addr, t0)
		learned = append(learned, addr)
	}
	require.NoError(t, fdb.SetStatic(learned[0], true))

	delete(ports.addrs, 2)
	// 8 learned (one static) + the local one.
	require.Equal(t, 9, fdb.DeleteByPort(2))

	fdb.requireMiss(t, macC)
	for i, addr := range learned {
		if i%2 == 0 {
			fdb.requireMiss(t, addr)
			continue
		}

		port, _ := fdb.mustResolve(t, addr)
		require.Equal(t, PortID(3), port)
	}
	fdb.mustResolve(t, macA)
}

func TestFlushPortKeepsStatic(t *testing.T) {
	fdb := newTestFDB(t)

	require.NoError(t, fdb.InsertLocal(2, macA))
	fdb.Update(2, macB, t0)
	fdb.Update(2, macC, t0)
	fdb.Update(3, macD, t0)
	require.NoError(t, fdb.SetStatic(macC, true))

	require.Equal(t, 1, fdb.FlushPort(2))
	fdb.mustResolve(t, macA)
	fdb.requireMiss(t, macB)
	fdb.mustResolve(t, macC)
	fdb.mustResolve(t, macD)

	require.Equal(t, 1, fdb.Flush())
	fdb.requireMiss(t, macD)
	require.Equal(t, 2, fdb.Len())
}

func TestChangeAddress(t *testing.T) {
	t.Run("exclusive", func(t *testing.T) {
		ports := newFakePorts(map[PortID]MAC{1: macA})
		fdb := newTestFDB(t, WithPorts(ports))
		require.NoError(t, fdb.InsertLocal(1, macA))

		ports.addrs[1] = macD
		require.NoError(t, fdb.ChangeAddress(1, macD))

		fdb.requireMiss(t, macA)
		port, local := fdb.mustResolve(t, macD)
		require.Equal(t, PortID(1), port)
		require.True(t, local)
		require.Equal(t, 1, fdb.Len())
	})

	t.Run("old address shared", func(t *testing.T) {
		ports := newFakePorts(map[PortID]MAC{1: macA, 2: macA})
		fdb := newTestFDB(t, WithPorts(ports))
		require.NoError(t, fdb.InsertLocal(2, macA))
		require.NoError(t, fdb.InsertLocal(1, macA))

		ports.addrs[1] = macD
		require.NoError(t, fdb.ChangeAddress(1, macD))

		port, local := fdb.mustResolve(t, macA)
		require.Equal(t, PortID(2), port)
		require.True(t, local)
		port, _ = fdb.mustResolve(t, macD)
		require.Equal(t, PortID(1), port)
		require.Equal(t, 2, fdb.Len())
	})

	t.Run("new address owned by another port", func(t *testing.T) {
		ports := newFakePorts(map[PortID]MAC{1: macA, 3: macD})
		fdb := newTestFDB(t, WithPorts(ports))
		require.NoError(t, fdb.InsertLocal(1, macA))
		require.NoError(t, fdb.InsertLocal(3, macD))

		ports.addrs[1] = macD
		require.NoError(t, fdb.ChangeAddress(1, macD))

		fdb.requireMiss(t, macA)
		port, local := fdb.mustResolve(t, macD)
		require.Equal(t, PortID(1), port)
		require.True(t, local)
		require.Equal(t, 1, fdb.Len())
	})

	t.Run("new address learned", func(t *testing.T) {
		fdb := newTestFDB(t)
		require.NoError(t, fdb.InsertLocal(1, macA))
		fdb.Update(4, macD, t0)

		require.NoError(t, fdb.ChangeAddress(1, macD))

		port, local := fdb.mustResolve(t, macD)
		require.Equal(t, PortID(1), port)
		require.True(t, local)
	})

	t.Run("unchanged", func(t *testing.T) {
		fdb := newTestFDB(t)
		require.NoError(t, fdb.InsertLocal(1, macA))

		require.NoError(t, fdb.ChangeAddress(1, macA))
		port, _ := fdb.mustResolve(t, macA)
		require.Equal(t, PortID(1), port)
		require.Equal(t, 1, fdb.Len())
	})

	t.Run("invalid", func(t *testing.T) {
		fdb := newTestFDB(t)
		require.NoError(t, fdb.InsertLocal(1, macA))

		require.ErrorIs(t, fdb.ChangeAddress(1, BroadcastMAC), ErrInvalidAddress)
		fdb.mustResolve(t, macA)
	})
}

func TestDeleteAndSetStatic(t *testing.T) {
	fdb := newTestFDB(t)

	require.NoError(t, fdb.InsertLocal(1, macA))
	fdb.Update(2, macB, t0)

	require.ErrorIs(t, fdb.Delete(macA), ErrLocalEntry)
	require.ErrorIs(t, fdb.Delete(macC), ErrNotFound)
	require.NoError(t, fdb.Delete(macB))
	fdb.requireMiss(t, macB)

	require.ErrorIs(t, fdb.SetStatic(macA, false), ErrLocalEntry)
	require.NoError(t, fdb.SetStatic(macA, true))
	require.ErrorIs(t, fdb.SetStatic(macB, true), ErrNotFound)
}

func TestLookupTreatsExpiredAsMiss(t *testing.T) {
	fdb := newTestFDB(t)

	fdb.Update(2, macB, t0)
	fdb.clock.Step(300 * time.Second)

	fdb.requireMiss(t, macB)
	// Not swept yet.
	require.Equal(t, 1, fdb.Len())

	// Learning refreshes the same entry.
	fdb.Update(2, macB, fdb.clock.Now())
	fdb.mustResolve(t, macB)
	require.Equal(t, 1, fdb.Len())
}

func TestBorrowSurvivesUnlink(t *testing.T) {
	fdb := newTestFDB(t)
	fdb.Update(2, macB, t0)

	first, ok := fdb.Lookup(macB)
	require.True(t, ok)
	second, ok := fdb.Lookup(macB)
	require.True(t, ok)
	require.Same(t, first, second)
	require.Equal(t, 3, first.Refs())

	require.NoError(t, fdb.Delete(macB))
	fdb.requireMiss(t, macB)

	require.Equal(t, StateUnlinking, first.State())
	require.Equal(t, macB, first.Addr())
	require.Equal(t, PortID(2), first.Port())

	fdb.Release(first)
	require.Equal(t, StateUnlinking, second.State())
	fdb.Release(second)
	require.Equal(t, StateReclaimed, second.State())

	// A reclaimed entry cannot be borrowed again.
	require.False(t, second.tryAcquire())
	require.Equal(t, uint64(1), fdb.Stats().Reclaimed)
}
