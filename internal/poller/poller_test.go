package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/fake"
	"github.com/woozymasta/herald/internal/models"
	"github.com/woozymasta/herald/internal/targets"
)

type memStore struct {
	statuses map[string]models.ServerStatus
	mu       sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{statuses: make(map[string]models.ServerStatus)}
}

func (m *memStore) UpsertStatus(s models.ServerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.Online = true
	m.statuses[s.Key] = s
	return nil
}

func (m *memStore) MarkFailed(s models.ServerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.statuses[s.Key]
	s.Failures = prev.Failures + 1
	m.statuses[s.Key] = s
	return nil
}

func (m *memStore) get(key string) (models.ServerStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statuses[key]
	return s, ok
}

type staticLocator string

func (l staticLocator) LookupCountry(context.Context, string) string {
	return string(l)
}

func startServer(t *testing.T, name string, h func(fake.InfoFields) fake.Handler) targets.Target {
	t.Helper()

	info := fake.RandomInfo()
	info.Name = name

	r, err := fake.Listen("127.0.0.1:0", h(info))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return targets.Target{Name: name, Host: r.Host(), Port: r.Port()}
}

func replying(info fake.InfoFields) fake.Handler {
	return fake.Reply(fake.EncodeInfo(info))
}

func silent(fake.InfoFields) fake.Handler {
	return fake.Silent()
}

func TestPollOnce(t *testing.T) {
	up := startServer(t, "up", replying)
	challenged := startServer(t, "challenged", func(info fake.InfoFields) fake.Handler {
		return fake.DevHandler(info, []byte{9, 9, 9, 9})
	})
	down := startServer(t, "down", silent)

	store := newMemStore()
	p := New(a2s.New(200*time.Millisecond), store, staticLocator("NL"), Options{Workers: 2})
	p.SetTargets([]targets.Target{up, down, challenged})

	results := p.PollOnce(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, "up", results[0].Target.Name)
	assert.True(t, results[0].Online())
	assert.Equal(t, "up", results[0].Info.Name)

	assert.Equal(t, "down", results[1].Target.Name)
	assert.False(t, results[1].Online())
	assert.ErrorIs(t, results[1].Err, a2s.ErrTimeout)

	assert.True(t, results[2].Online())

	s, ok := store.get(up.Key())
	require.True(t, ok)
	assert.True(t, s.Online)
	assert.Equal(t, "NL", s.CountryCode)
	assert.Equal(t, "up", s.ServerName)

	s, ok = store.get(down.Key())
	require.True(t, ok)
	assert.Equal(t, "timeout", s.LastErrorKind)
	assert.Equal(t, 1, s.Failures)

	p.PollOnce(context.Background())
	s, _ = store.get(down.Key())
	assert.Equal(t, 2, s.Failures)
}

func TestPollOnceEmpty(t *testing.T) {
	p := New(a2s.New(time.Second), newMemStore(), nil, Options{})
	assert.Empty(t, p.PollOnce(context.Background()))
}

func TestPollCanceledStoresNothing(t *testing.T) {
	down := startServer(t, "down", silent)

	store := newMemStore()
	p := New(a2s.New(5*time.Second), store, nil, Options{})
	p.SetTargets([]targets.Target{down})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results := p.PollOnce(ctx)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)

	_, ok := store.get(down.Key())
	assert.False(t, ok)
}

func TestRateLimit(t *testing.T) {
	var list []targets.Target
	for _, name := range []string{"a", "b", "c", "d"} {
		list = append(list, startServer(t, name, replying))
	}

	p := New(a2s.New(time.Second), newMemStore(), nil, Options{Workers: 4, QueriesPerSecond: 10})
	p.SetTargets(list)

	start := time.Now()
	results := p.PollOnce(context.Background())
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	// burst of one, then 100ms per query
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestTargetsEditing(t *testing.T) {
	p := New(a2s.New(time.Second), newMemStore(), nil, Options{})
	a := targets.Target{Name: "a", Host: "10.0.0.1", Port: 27015}
	b := targets.Target{Name: "b", Host: "10.0.0.2", Port: 27015}

	p.SetTargets([]targets.Target{a})
	before := p.Targets()

	assert.True(t, p.AddTarget(b))
	assert.False(t, p.AddTarget(b))
	assert.Equal(t, []string{a.Key(), b.Key()}, p.Keys())
	assert.Len(t, before, 1)

	assert.True(t, p.RemoveTarget(a.Key()))
	assert.False(t, p.RemoveTarget(a.Key()))
	assert.Equal(t, []string{b.Key()}, p.Keys())
}

func TestRunTrigger(t *testing.T) {
	up := startServer(t, "up", replying)

	cycles := make(chan []Result, 4)
	store := newMemStore()
	p := New(a2s.New(time.Second), store, nil, Options{
		Interval: time.Hour,
		OnCycle:  func(r []Result) { cycles <- r },
	})
	p.SetTargets([]targets.Target{up})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		s, ok := store.get(up.Key())
		return ok && s.Online
	}, 3*time.Second, 10*time.Millisecond, "initial cycle did not store the status")
	assert.Empty(t, cycles, "initial cycle is not announced")

	p.Trigger()
	select {
	case r := <-cycles:
		require.Len(t, r, 1)
		assert.True(t, r[0].Online())
	case <-time.After(3 * time.Second):
		t.Fatal("trigger did not start a cycle")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestTraceObserver(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf syncBuffer
	obs := TraceObserver(zerolog.New(&buf).Level(zerolog.TraceLevel))

	up := startServer(t, "up", replying)
	c := a2s.New(time.Second)
	c.Observer = obs

	_, err := c.Query(context.Background(), up.Host, up.Port)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"event":"send"`)
	assert.Contains(t, out, `"event":"done"`)
}

type syncBuffer struct {
	b  []byte
	mu sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b = append(s.b, p...)
	return len(p), nil
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.b)
}
