package fdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEntryLastSeenKeepsMonotonicClock(t *testing.T) {
	now := time.Now()
	e := newEntry(macA, 1, false, now)
	require.Contains(t, e.LastSeen().String(), "m=")
	require.True(t, e.LastSeen().Equal(now))

	e.touch(2, now.Add(5*time.Second))
	require.Contains(t, e.LastSeen().String(), "m=")
	require.Equal(t, 5*time.Second, e.LastSeen().Sub(now))
	require.Equal(t, PortID(2), e.Port())
}

func TestEntryLastSeenWallClock(t *testing.T) {
	e := newEntry(macA, 1, false, t0)
	e.touch(1, t0.Add(-time.Second))

	require.True(t, e.LastSeen().Equal(t0.Add(-time.Second)))
}
