package fdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweepHoldTimeBoundary(t *testing.T) {
	cases := []struct {
		age     time.Duration
		evicted bool
	}{
		{0, false},
		{299 * time.Second, false},
		{300*time.Second - time.Nanosecond, false},
		{300 * time.Second, true},
		{301 * time.Second, true},
		{time.Hour, true},
	}

	for _, c := range cases {
		t.Run(c.age.String(), func(t *testing.T) {
			fdb := newTestFDB(t)
			fdb.Update(2, macB, t0)

			swept := fdb.Sweep(t0.Add(c.age))
			if c.evicted {
				require.Equal(t, 1, swept)
				require.Equal(t, 0, fdb.Len())
			} else {
				require.Equal(t, 0, swept)
				require.Equal(t, 1, fdb.Len())
			}
		})
	}
}

func TestSweepKeepsStatic(t *testing.T) {
	fdb := newTestFDB(t)

	require.NoError(t, fdb.InsertLocal(1, macA))
	fdb.Update(2, macB, t0)
	require.NoError(t, fdb.SetStatic(macB, true))
	fdb.Update(3, macC, t0)

	require.Equal(t, 1, fdb.Sweep(t0.Add(24*time.Hour)))
	require.Equal(t, 2, fdb.Len())
	fdb.clock.SetTime(t0.Add(24 * time.Hour))
	fdb.mustResolve(t, macA)
	fdb.mustResolve(t, macB)

	// Unpinned entries age from their last confirmation.
	require.NoError(t, fdb.SetStatic(macB, false))
	require.Equal(t, 1, fdb.Sweep(t0.Add(24*time.Hour)))
	require.Equal(t, 1, fdb.Len())
}

func TestSweepTopologyChange(t *testing.T) {
	fdb := newTestFDB(t)
	fdb.Update(2, macB, t0)

	// 20s is young for the ageing time, old for the forward delay.
	now := t0.Add(20 * time.Second)
	require.Equal(t, 0, fdb.Sweep(now))

	fdb.timers.SetTopologyChange(true)
	require.Equal(t, 15*time.Second, fdb.HoldTime())
	require.Equal(t, 1, fdb.Sweep(now))
}

func TestSweepDisabledWithZeroHoldTime(t *testing.T) {
	fdb := newTestFDB(t)
	fdb.Update(2, macB, t0)

	fdb.timers.SetAgeingTime(0)
	require.Equal(t, 0, fdb.Sweep(t0.Add(time.Hour)))
	require.Equal(t, 1, fdb.Len())

	// Flood everything: leftovers are never used.
	fdb.requireMiss(t, macB)
	require.Empty(t, fdb.Snapshot(16, 0))
}

func TestSweepRemovesEntriesOfDetachedPortsWithZeroHoldTime(t *testing.T) {
	ports := newFakePorts(map[PortID]MAC{1: macA, 2: macC})
	fdb := newTestFDB(t, WithPorts(ports))

	require.NoError(t, fdb.InsertLocal(1, macA))
	fdb.Update(2, macC, t0)
	fdb.Update(7, macD, t0)
	fdb.timers.SetAgeingTime(0)

	require.Equal(t, 1, fdb.Sweep(t0.Add(time.Hour)))
	require.Equal(t, 2, fdb.Len())
	require.Equal(t, uint64(0), fdb.Stats().Aged)
	require.Equal(t, uint64(1), fdb.Stats().Deleted)
}

func TestSweepRemovesEntriesOfDetachedPorts(t *testing.T) {
	ports := newFakePorts(map[PortID]MAC{1: macA, 2: macB})
	fdb := newTestFDB(t, WithPorts(ports))

	require.NoError(t, fdb.InsertLocal(1, macA))
	fdb.Update(2, macC, t0)
	fdb.Update(7, macD, t0)

	require.Equal(t, 1, fdb.Sweep(t0))
	fdb.requireMiss(t, macD)
	fdb.mustResolve(t, macA)
	fdb.mustResolve(t, macC)
	require.Equal(t, uint64(0), fdb.Stats().Aged)
	require.Equal(t, uint64(1), fdb.Stats().Deleted)
}

func TestSweepMany(t *testing.T) {
	fdb := newTestFDB(t, WithBuckets(16))

	for i := range 1000 {
		addr := MAC{0x02, 0, 0, 0, byte(i >> 8), byte(i)}
		fdb.Update(PortID(1+i%4), addr, t0.Add(time.Duration(i)*time.Second))
	}
	require.Equal(t, 1000, fdb.Len())

	// Entries seen at [0s, 500s] are older than 300s at t=800s.
	swept := fdb.Sweep(t0.Add(800 * time.Second))
	require.Equal(t, 501, swept, fmt.Sprintf("len=%d", fdb.Len()))
	require.Equal(t, 499, fdb.Len())
}
