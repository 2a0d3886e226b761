package xcmd

import (
	"context"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsInterrupted(t *testing.T) {
	err := fmt.Errorf("daemon stopped: %w", Interrupted{Signal: syscall.SIGTERM})
	require.True(t, IsInterrupted(err))
	require.Equal(t, "daemon stopped: terminated", err.Error())

	require.False(t, IsInterrupted(context.Canceled))
}

func TestWaitInterruptedCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, WaitInterrupted(ctx), context.Canceled)
}
