package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanet-platform/yabridge/bridge/api"
	"github.com/yanet-platform/yabridge/bridge/fdb"
)

func TestDaemonRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Endpoint = filepath.Join(t.TempDir(), "api.sock")
	cfg.Bridge.GCInterval = 10 * time.Millisecond

	logger, _ := zap.NewDevelopment()
	d := NewDaemon(cfg, WithLog(logger.Sugar()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	local := fdb.MustParseMAC("02:00:00:00:00:01")
	_, err := d.Ports().Attach(3, "eth0", local)
	require.NoError(t, err)

	// Learned long ago: the ager must remove it.
	d.FDB().Update(1, fdb.MustParseMAC("02:aa:00:00:00:01"), time.Now().Add(-time.Hour))

	client, err := api.Dial(cfg.API.Endpoint, cfg.API.MaxMessageSize)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool {
		stats, err := client.Stats(ctx, &api.StatsRequest{})
		return err == nil && stats.Entries == 1 && stats.Counters.Aged == 1
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := client.Lookup(ctx, &api.LookupRequest{Addr: local})
	require.NoError(t, err)
	require.Equal(t, "eth0", resp.PortName)
	require.True(t, resp.IsLocal)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
