package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/chat-stats-bot/pkg/lifecycle"
)

type fakeTarget struct {
	mu    sync.Mutex
	err   error
	runID string
	pings int
}

func (f *fakeTarget) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.err
}

func (f *fakeTarget) RunID(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runID, nil
}

func (f *fakeTarget) set(err error, runID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.runID = runID
}

func (f *fakeTarget) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// plainTarget 不提供 run_id
type plainTarget struct{ err error }

func (p plainTarget) Ping(ctx context.Context) error { return p.err }

func TestChecker_StateTransitions(t *testing.T) {
	target := &fakeTarget{runID: "aaa"}
	c := NewChecker(target, time.Second)
	ctx := context.Background()

	c.PerformCheck(ctx)
	assert.Equal(t, StateHealthy, c.Status().State)
	assert.Equal(t, "healthy", c.Status().StateName)

	target.set(errors.New("connection refused"), "aaa")
	c.PerformCheck(ctx)
	status := c.Status()
	assert.Equal(t, StateDegraded, status.State)
	assert.Equal(t, "connection refused", status.LastError)

	target.set(nil, "aaa")
	c.PerformCheck(ctx)
	assert.Equal(t, StateHealthy, c.Status().State)
	assert.Empty(t, c.Status().LastError)
	assert.Zero(t, c.Status().Restarts)
}

func TestChecker_DetectsRestart(t *testing.T) {
	target := &fakeTarget{runID: "aaa"}
	c := NewChecker(target, time.Second)
	ctx := context.Background()

	c.PerformCheck(ctx)
	target.set(nil, "bbb")
	c.PerformCheck(ctx)
	c.PerformCheck(ctx)

	assert.Equal(t, 1, c.Status().Restarts)
	assert.Equal(t, StateHealthy, c.Status().State)
}

func TestChecker_WithoutRunID(t *testing.T) {
	c := NewChecker(plainTarget{err: errors.New("down")}, 0)
	c.PerformCheck(context.Background())
	assert.Equal(t, StateDegraded, c.Status().State)
	assert.Equal(t, defaultInterval, c.interval)
}

func TestChecker_RunStopsOnShutdown(t *testing.T) {
	target := &fakeTarget{}
	c := NewChecker(target, 10*time.Millisecond)

	m := lifecycle.NewManager("test")
	h, err := m.NewServiceHandle("health")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Run(h)
		close(done)
	}()

	require.Eventually(t, func() bool { return target.pingCount() >= 2 }, time.Second, 5*time.Millisecond)
	m.Shutdown()
	assert.Empty(t, m.WaitWithTimeout(time.Second))
	<-done
}
