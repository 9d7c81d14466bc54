package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/chat-stats-bot/pkg/lifecycle"
)

func newHandles(t *testing.T) (graceful, forceful *lifecycle.Manager, gh, fh *lifecycle.Handle) {
	t.Helper()
	graceful = lifecycle.NewManager("graceful")
	forceful = lifecycle.NewManager("forceful")
	var err error
	gh, err = graceful.NewServiceHandle("worker")
	require.NoError(t, err)
	fh, err = forceful.NewServiceHandle("worker")
	require.NoError(t, err)
	return graceful, forceful, gh, fh
}

func TestShutdown_GracefulPhaseIsEnough(t *testing.T) {
	graceful, forceful, gh, fh := newHandles(t)
	go func() {
		<-gh.Done()
		gh.Close()
		fh.Close()
	}()

	finalized := false
	c := NewCoordinator(graceful, forceful)
	c.Shutdown(nil, func() error {
		finalized = true
		return nil
	})

	assert.True(t, finalized)
	assert.NoError(t, fh.Err(), "forceful phase must not start")
}

func TestShutdown_EscalatesToForcefulPhase(t *testing.T) {
	graceful, forceful, gh, fh := newHandles(t)
	// 服务忽略优雅信号，只响应强制信号
	go func() {
		<-fh.Done()
		gh.Close()
		fh.Close()
	}()

	c := NewCoordinator(graceful, forceful)
	c.GracefulTimeout = 20 * time.Millisecond
	c.ForcefulTimeout = time.Second

	finalizeErr := errors.New("close failed")
	called := false
	c.Shutdown(nil, func() error {
		called = true
		return finalizeErr
	})

	assert.True(t, called)
	assert.ErrorIs(t, fh.Err(), context.Canceled)
}
