package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/order-history/registry"
	"github.com/webitel/order-history/registry/registrytest"
)

func TestResolveInterval(t *testing.T) {
	tests := []struct {
		name      string
		ttl       time.Duration
		requested time.Duration
		want      time.Duration
	}{
		{name: "default is half the ttl", ttl: 10 * time.Second, want: 5 * time.Second},
		{name: "shorter request kept", ttl: 10 * time.Second, requested: 2 * time.Second, want: 2 * time.Second},
		{name: "request above half clamped", ttl: 10 * time.Second, requested: 9 * time.Second, want: 5 * time.Second},
		{name: "floor of one second", ttl: 10 * time.Second, requested: 100 * time.Millisecond, want: time.Second},
		{name: "odd ttl", ttl: 3 * time.Second, want: 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := registry.ResolveInterval(tt.ttl, tt.requested)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, tt.ttl/2)
		})
	}
}

func TestResolveIntervalNeverExceedsHalfTTL(t *testing.T) {
	for ttl := 2 * time.Second; ttl <= 2*time.Minute; ttl += 700 * time.Millisecond {
		for _, requested := range []time.Duration{0, time.Second, ttl / 3, ttl, 2 * ttl} {
			assert.LessOrEqual(t, registry.ResolveInterval(ttl, requested), ttl/2, "ttl=%s requested=%s", ttl, requested)
		}
	}
}

func TestHeartbeatPassesPeriodically(t *testing.T) {
	fake := registrytest.New()
	checkID := registry.CheckID("service:history-1")

	hb := registry.NewHeartbeat(fake, checkID, 10*time.Millisecond, 100*time.Millisecond, nil)
	require.NoError(t, hb.Start(context.Background()))
	defer hb.Stop()

	require.Eventually(t, func() bool { return hb.Passes() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, hb.Running())
}

func TestHeartbeatFirstBeatIsImmediate(t *testing.T) {
	fake := registrytest.New()
	hb := registry.NewHeartbeat(fake, "service:history-1", time.Hour, 2*time.Hour, nil)
	require.NoError(t, hb.Start(context.Background()))
	defer hb.Stop()

	require.Eventually(t, func() bool { return fake.Count("pass") == 1 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeatNoPassAfterStop(t *testing.T) {
	fake := registrytest.New()
	hb := registry.NewHeartbeat(fake, "service:history-1", 5*time.Millisecond, 50*time.Millisecond, nil)
	require.NoError(t, hb.Start(context.Background()))
	require.Eventually(t, func() bool { return fake.Count("pass") >= 2 }, time.Second, time.Millisecond)

	hb.Stop()
	assert.False(t, hb.Running())
	stopped := fake.Count("pass")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, fake.Count("pass"))

	// Stop is idempotent.
	hb.Stop()
}

func TestHeartbeatSurvivesFailures(t *testing.T) {
	fake := registrytest.New()
	fake.PassErr = errors.New("agent unreachable")

	hb := registry.NewHeartbeat(fake, "service:history-1", 5*time.Millisecond, 20*time.Millisecond, nil)
	require.NoError(t, hb.Start(context.Background()))
	defer hb.Stop()

	require.Eventually(t, func() bool { return hb.ConsecutiveFailures() >= 5 }, 2*time.Second, time.Millisecond)
	assert.True(t, hb.Running())

	fake.SetPassErr(nil)
	require.Eventually(t, func() bool { return hb.ConsecutiveFailures() == 0 && hb.Passes() > 0 }, 2*time.Second, time.Millisecond)
}

func TestHeartbeatRejectsSecondStart(t *testing.T) {
	fake := registrytest.New()
	hb := registry.NewHeartbeat(fake, "service:history-1", time.Hour, 2*time.Hour, nil)
	require.NoError(t, hb.Start(context.Background()))
	defer hb.Stop()

	assert.ErrorIs(t, hb.Start(context.Background()), registry.ErrHeartbeatRunning)
}

func TestHeartbeatStopsWithParentContext(t *testing.T) {
	fake := registrytest.New()
	ctx, cancel := context.WithCancel(context.Background())
	hb := registry.NewHeartbeat(fake, "service:history-1", 5*time.Millisecond, 50*time.Millisecond, nil)
	require.NoError(t, hb.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return !hb.Running() }, time.Second, time.Millisecond)
	hb.Stop()
}
