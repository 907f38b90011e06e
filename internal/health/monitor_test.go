package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidekit/aide-be/shared/logger"
)

// scriptedProber returns one scripted error per probe and repeats the
// last entry once the script runs out. It signals done after the whole
// script has been consumed.
type scriptedProber struct {
	mu     sync.Mutex
	script []error
	calls  int
	done   chan struct{}
	closed bool
}

func newScriptedProber(script ...error) *scriptedProber {
	return &scriptedProber{script: script, done: make(chan struct{})}
}

func (p *scriptedProber) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.calls
	p.calls++
	if p.calls == len(p.script) {
		close(p.done)
	}

	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	return p.script[idx]
}

func (p *scriptedProber) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *scriptedProber) wasClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// memoryStore keeps the last persisted record in memory.
type memoryStore struct {
	mu      sync.Mutex
	record  *Record
	lastTTL time.Duration
	getErr  error
}

func (s *memoryStore) Set(ctx context.Context, record *Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.record = &copied
	s.lastTTL = ttl
	return nil
}

func (s *memoryStore) Get(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.record == nil {
		return nil, nil
	}
	copied := *s.record
	return &copied, nil
}

type transition struct {
	newStatus  Status
	prevStatus Status
}

func testMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Dependency:   "llm",
		Interval:     5 * time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
		TTL:          time.Minute,
	}
}

func TestMonitor_CheckHealthy(t *testing.T) {
	prober := newScriptedProber(nil)
	store := &memoryStore{}

	m := NewMonitor(prober, store, nil, testMonitorConfig(), logger.NewDefault().Logger)
	status := m.check(context.Background())

	assert.Equal(t, StatusHealthy, status)

	require.NotNil(t, store.record)
	assert.Equal(t, StatusHealthy, store.record.Status)
	assert.Zero(t, store.record.ConsecutiveFailures)
	assert.False(t, store.record.LastSuccess.IsZero())
	assert.True(t, store.record.LastFailure.IsZero())
	assert.Equal(t, time.Minute, store.lastTTL)
}

func TestMonitor_ConsecutiveFailuresAccumulate(t *testing.T) {
	prober := newScriptedProber(errors.New("connection refused"))
	store := &memoryStore{}

	m := NewMonitor(prober, store, nil, testMonitorConfig(), logger.NewDefault().Logger)

	m.check(context.Background())
	m.check(context.Background())
	status := m.check(context.Background())

	assert.Equal(t, StatusUnhealthy, status)
	assert.Equal(t, 3, store.record.ConsecutiveFailures)
	assert.False(t, store.record.LastFailure.IsZero())
}

func TestMonitor_RecoveryResetsFailures(t *testing.T) {
	prober := newScriptedProber(errors.New("connection refused"), nil)
	store := &memoryStore{}

	m := NewMonitor(prober, store, nil, testMonitorConfig(), logger.NewDefault().Logger)

	assert.Equal(t, StatusUnhealthy, m.check(context.Background()))
	assert.Equal(t, StatusHealthy, m.check(context.Background()))

	assert.Zero(t, store.record.ConsecutiveFailures)
	assert.False(t, store.record.LastSuccess.IsZero())
	// The last failure timestamp survives recovery.
	assert.False(t, store.record.LastFailure.IsZero())
}

func TestMonitor_CarryForwardFromStore(t *testing.T) {
	prober := newScriptedProber(errors.New("connection refused"))
	store := &memoryStore{
		record: &Record{
			Status:              StatusUnhealthy,
			ConsecutiveFailures: 2,
		},
	}

	m := NewMonitor(prober, store, nil, testMonitorConfig(), logger.NewDefault().Logger)
	m.check(context.Background())

	// A restarted monitor continues the persisted failure streak.
	assert.Equal(t, 3, store.record.ConsecutiveFailures)
}

func TestMonitor_CallbackOnTransitionsOnly(t *testing.T) {
	probeErr := errors.New("connection refused")
	prober := newScriptedProber(probeErr, probeErr, nil, nil, probeErr)
	store := &memoryStore{}

	var mu sync.Mutex
	var transitions []transition
	onChange := func(ctx context.Context, newStatus, prevStatus Status) error {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, transition{newStatus: newStatus, prevStatus: prevStatus})
		return nil
	}

	m := NewMonitor(prober, store, onChange, testMonitorConfig(), logger.NewDefault().Logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-prober.done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never consumed the probe script")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()

	// First check never fires the callback; only the two actual
	// transitions within the script do.
	require.Len(t, transitions, 2)
	assert.Equal(t, transition{newStatus: StatusHealthy, prevStatus: StatusUnhealthy}, transitions[0])
	assert.Equal(t, transition{newStatus: StatusUnhealthy, prevStatus: StatusHealthy}, transitions[1])
}

func TestMonitor_ClosesProberOnExit(t *testing.T) {
	prober := newScriptedProber(nil)
	store := &memoryStore{}

	m := NewMonitor(prober, store, nil, testMonitorConfig(), logger.NewDefault().Logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-prober.done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never probed")
	}
	cancel()
	<-done

	assert.True(t, prober.wasClosed())
}

func TestMonitor_StoreReadFailureStillPersists(t *testing.T) {
	prober := newScriptedProber(nil)
	store := &memoryStore{getErr: errors.New("db down")}

	m := NewMonitor(prober, store, nil, testMonitorConfig(), logger.NewDefault().Logger)
	status := m.check(context.Background())

	assert.Equal(t, StatusHealthy, status)
	assert.Equal(t, StatusHealthy, store.record.Status)
}
