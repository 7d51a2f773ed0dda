//go:build !windows

package signalctx

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelThenSignal(t *testing.T) {
	ctx, cancel := New(syscall.SIGHUP)
	cancel()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
	require.EqualError(t, ctx.Err(), "context canceled")
}

func TestSignalThenCancel(t *testing.T) {
	ctx, cancel := New(syscall.SIGHUP)

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGHUP))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("expected Done channel to be closed")
	}
	cancel()

	assert.EqualError(t, ctx.Err(), "hangup signal")
}
