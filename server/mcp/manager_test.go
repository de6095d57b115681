package mcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/schema"
)

func newTestManager(t *testing.T) *mcp.Manager {
	t.Helper()
	m := mcp.NewManager(zap.NewNop(), schema.Implementation{Name: "graphmem-test", Version: "0.0.1"})
	t.Cleanup(m.Shutdown)
	return m
}

func TestCreateAndGetSession(t *testing.T) {
	m := newTestManager(t)

	session := m.CreateSession(nil)
	require.NotEmpty(t, session.GetID())
	assert.Equal(t, 1, m.SessionCount())

	found, err := m.GetSession(session.GetID())
	require.NoError(t, err)
	assert.Equal(t, session.GetID(), found.GetID())
}

func TestGetSessionUnknownID(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetSession("no-such-session")
	assert.ErrorIs(t, err, mcp.ErrSessionNotFound)
}

func TestSessionIDsAreUnique(t *testing.T) {
	m := newTestManager(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := m.CreateSession(nil).GetID()
		require.False(t, seen[id], "duplicate session id issued")
		seen[id] = true
	}
}

func TestCloseSessionRemovesIt(t *testing.T) {
	m := newTestManager(t)

	session := m.CreateSession(nil)
	m.CloseSession(session.GetID())

	assert.Equal(t, 0, m.SessionCount())
	_, err := m.GetSession(session.GetID())
	assert.Error(t, err)

	// Closing again is harmless.
	m.CloseSession(session.GetID())
}

func TestCloseAllSessions(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 5; i++ {
		m.CreateSession(nil)
	}
	require.Equal(t, 5, m.SessionCount())

	m.CloseAllSessions()
	assert.Equal(t, 0, m.SessionCount())
}

func TestTouchSessionRefreshesActivity(t *testing.T) {
	m := newTestManager(t)

	session := m.CreateSession(nil)
	before := session.GetLastActivity()
	time.Sleep(5 * time.Millisecond)

	touched, err := m.TouchSession(session.GetID())
	require.NoError(t, err)
	assert.True(t, touched.GetLastActivity().After(before))
}

func TestCleanupIdleSessions(t *testing.T) {
	m := newTestManager(t)

	idle := m.CreateSession(nil)
	fresh := m.CreateSession(nil)

	time.Sleep(30 * time.Millisecond)
	fresh.UpdateLastActivity()

	m.CleanupIdleSessions(20 * time.Millisecond)

	_, err := m.GetSession(idle.GetID())
	assert.Error(t, err, "idle session should have been swept")
	_, err = m.GetSession(fresh.GetID())
	assert.NoError(t, err, "active session must survive the sweep")
}

func TestStartSweeperRunsPeriodically(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := m.CreateSession(nil)
	m.StartSweeper(ctx, 10*time.Millisecond, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := m.GetSession(session.GetID())
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestStartSweeperIgnoresZeroIntervals(t *testing.T) {
	m := newTestManager(t)
	// Must not panic or spin; nothing to assert beyond it returning.
	m.StartSweeper(context.Background(), 0, 0)
}

func TestCloseSessionCancelsInflight(t *testing.T) {
	m := newTestManager(t)

	session := m.CreateSession(nil)
	ctx, cancel := context.WithCancelCause(context.Background())
	session.Inflight().Register(&schema.RequestID{Value: "r1"}, cancel)

	m.CloseSession(session.GetID())

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, context.Cause(ctx), shared.ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("in-flight request was not cancelled on session close")
	}
}
