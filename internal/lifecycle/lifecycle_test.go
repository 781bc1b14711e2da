package lifecycle

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/order-history/registry"
	"github.com/webitel/order-history/registry/registrytest"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// recordingClient records registry calls into the same log as the server.
type recordingClient struct {
	*registrytest.Registry
	events *eventLog
}

func (c recordingClient) Register(ctx context.Context, instance registry.ServiceInstance, check registry.TTLCheckSpec) error {
	c.events.add("register")
	return c.Registry.Register(ctx, instance, check)
}

func (c recordingClient) Deregister(ctx context.Context, instanceID string) error {
	c.events.add("deregister")
	return c.Registry.Deregister(ctx, instanceID)
}

func (c recordingClient) FindCheckID(ctx context.Context, instanceID string) (registry.CheckID, bool, error) {
	c.events.add("find")
	return c.Registry.FindCheckID(ctx, instanceID)
}

func (c recordingClient) PassTTL(ctx context.Context, checkID registry.CheckID) error {
	c.events.add("pass")
	return c.Registry.PassTTL(ctx, checkID)
}

type fakeServer struct {
	events    *eventLog
	listenErr error

	stopOnce sync.Once
	stop     chan struct{}
	fail     chan error
}

func newFakeServer(events *eventLog) *fakeServer {
	return &fakeServer{events: events, stop: make(chan struct{}), fail: make(chan error, 1)}
}

func (s *fakeServer) Listen() error {
	s.events.add("listen")
	return s.listenErr
}

func (s *fakeServer) Serve() error {
	s.events.add("serve")
	select {
	case <-s.stop:
		return nil
	case err := <-s.fail:
		return err
	}
}

func (s *fakeServer) GracefulStop(ctx context.Context) {
	s.events.add("graceful_stop")
	s.stopOnce.Do(func() { close(s.stop) })
}

const instanceID = "history.service-test-50051"

func testConfig() Config {
	return Config{
		Instance: registry.ServiceInstance{
			Name:    "history.service",
			ID:      instanceID,
			Address: "127.0.0.1",
			Port:    50051,
			Tags:    []string{"saga", "api"},
		},
		Check:             registry.NewTTLCheckSpec(100*time.Millisecond, 0),
		HeartbeatInterval: 10 * time.Millisecond,
		Discovery: registry.DiscoveryOptions{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			AttemptTimeout: time.Second,
		},
		DrainTimeout:      time.Second,
		DeregisterTimeout: time.Second,
	}
}

type harness struct {
	fake   *registrytest.Registry
	events *eventLog
	server *fakeServer
	lc     *Lifecycle
}

func newHarness(config Config) *harness {
	events := &eventLog{}
	fake := registrytest.New()
	server := newFakeServer(events)
	return &harness{
		fake:   fake,
		events: events,
		server: server,
		lc:     New(recordingClient{Registry: fake, events: events}, server, config, nil),
	}
}

func (h *harness) start(t *testing.T, ctx context.Context) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.lc.Run(ctx) }()
	require.Eventually(t, h.lc.Serving, 2*time.Second, time.Millisecond)
	return done
}

func wait(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not terminate")
		return nil
	}
}

func indexOf(events []string, e string) int { return slices.Index(events, e) }

func lastIndexOf(events []string, e string) int {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i] == e {
			return i
		}
	}
	return -1
}

func TestRegisteredBeforeServing(t *testing.T) {
	h := newHarness(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	require.Eventually(t, func() bool { return indexOf(h.events.snapshot(), "serve") >= 0 }, time.Second, time.Millisecond)
	events := h.events.snapshot()

	assert.Equal(t, []string{"deregister", "register", "find", "listen"}, events[:4])
	assert.Less(t, indexOf(events, "register"), indexOf(events, "serve"))
	assert.True(t, h.fake.Registered(instanceID))

	inst, ok := h.fake.Instance(instanceID)
	require.True(t, ok)
	assert.Equal(t, "history.service", inst.Name)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestCheckStaysPassingWhileServing(t *testing.T) {
	config := testConfig()
	config.HeartbeatInterval = config.Check.TTL / 2
	h := newHarness(config)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, h.fake.Count("pass"), 2)
	assert.True(t, h.fake.Passing(instanceID, config.Check.TTL))

	cancel()
	require.NoError(t, wait(t, done))
}

func TestShutdownOrdering(t *testing.T) {
	h := newHarness(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)
	require.Eventually(t, func() bool { return h.fake.Count("pass") >= 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))
	assert.Equal(t, Terminated, h.lc.State())

	events := h.events.snapshot()
	lastPass := lastIndexOf(events, "pass")
	stop := indexOf(events, "graceful_stop")
	finalDeregister := lastIndexOf(events, "deregister")

	assert.Less(t, lastPass, stop, "heartbeat must stop before the server drains")
	assert.Less(t, stop, finalDeregister, "deregister happens after the drain")
	assert.Equal(t, len(events)-1, finalDeregister)
	assert.Equal(t, 2, h.fake.Count("deregister"), "pre-emptive and final deregister")
	assert.False(t, h.fake.Registered(instanceID))

	passes := h.fake.Count("pass")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, passes, h.fake.Count("pass"), "no heartbeat after deregistration")
}

func TestStopDrains(t *testing.T) {
	h := newHarness(testConfig())
	done := h.start(t, context.Background())

	h.lc.Stop()
	h.lc.Stop()
	require.NoError(t, wait(t, done))
	assert.Equal(t, Terminated, h.lc.State())
	assert.False(t, h.fake.Registered(instanceID))
}

func TestStopBeforeRun(t *testing.T) {
	h := newHarness(testConfig())
	h.lc.Stop()

	require.NoError(t, h.lc.Run(context.Background()))
	assert.Empty(t, h.events.snapshot())
	assert.Equal(t, Terminated, h.lc.State())
}

func TestRegisterFailure(t *testing.T) {
	h := newHarness(testConfig())
	h.fake.RegisterErr = errors.New("dial tcp 127.0.0.1:8500: connection refused")

	err := h.lc.Run(context.Background())

	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, PhaseRegister, startupErr.Phase)
	assert.Equal(t, Failed, h.lc.State())
	assert.Zero(t, h.fake.Count("pass"))
	assert.NotContains(t, h.events.snapshot(), "listen")
}

func TestDiscoveryExhaustedRollsBack(t *testing.T) {
	h := newHarness(testConfig())
	h.fake.NoCheck = true

	err := h.lc.Run(context.Background())

	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, PhaseDiscover, startupErr.Phase)
	assert.ErrorIs(t, err, registry.ErrCheckNotFound)
	assert.Equal(t, 3, h.fake.Count("find"))
	assert.False(t, h.fake.Registered(instanceID), "partially visible instance is removed")
	assert.NotContains(t, h.events.snapshot(), "listen")
	assert.Equal(t, Failed, h.lc.State())
}

func TestListenFailureRollsBack(t *testing.T) {
	h := newHarness(testConfig())
	h.server.listenErr = errors.New("bind: address already in use")

	err := h.lc.Run(context.Background())

	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, PhaseListen, startupErr.Phase)
	assert.False(t, h.fake.Registered(instanceID))
	assert.Zero(t, h.fake.Count("pass"), "an unbindable instance never reports passing")
	assert.NotContains(t, h.events.snapshot(), "serve")
}

func TestRunTwiceRejected(t *testing.T) {
	h := newHarness(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	assert.ErrorIs(t, h.lc.Run(ctx), ErrAlreadyStarted)

	cancel()
	require.NoError(t, wait(t, done))
	assert.ErrorIs(t, h.lc.Run(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 1, h.fake.Count("register"))
}

func TestDeregisterFailureAtShutdownIsNotFatal(t *testing.T) {
	h := newHarness(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	h.fake.SetDeregisterErr(errors.New("agent went away"))
	cancel()

	require.NoError(t, wait(t, done))
	assert.Equal(t, Terminated, h.lc.State())
}

func TestServerFailureDrains(t *testing.T) {
	h := newHarness(testConfig())
	done := h.start(t, context.Background())
	serveErr := errors.New("accept: too many open files")

	h.server.fail <- serveErr

	assert.ErrorIs(t, wait(t, done), serveErr)
	assert.Equal(t, Terminated, h.lc.State())
	assert.False(t, h.fake.Registered(instanceID))
}

func TestStaleRegistrationIsReplaced(t *testing.T) {
	h := newHarness(testConfig())
	// a crashed predecessor left the same instance id behind
	require.NoError(t, h.fake.Register(context.Background(), testConfig().Instance, testConfig().Check))

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)
	cancel()
	require.NoError(t, wait(t, done))

	calls := h.fake.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, "register", calls[0].Op)
	assert.Equal(t, "deregister", calls[1].Op)
	assert.Equal(t, "register", calls[2].Op)
}
