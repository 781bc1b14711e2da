package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/order-history/internal/metrics"
)

// ErrHeartbeatRunning is returned by Start when the loop is already active.
var ErrHeartbeatRunning = errors.New("registry: heartbeat already running")

// ResolveInterval returns the heartbeat interval for a TTL. A requested interval is kept only
// when it leaves room for one more beat before the TTL expires.
func ResolveInterval(ttl, requested time.Duration) time.Duration {
	limit := ttl / 2
	interval := requested
	if interval <= 0 || interval > limit {
		interval = limit
	}
	if interval < MinHeartbeatInterval {
		interval = MinHeartbeatInterval
	}
	return interval
}

// Heartbeat periodically passes one TTL check until stopped.
type Heartbeat struct {
	client   TTLPasser
	checkID  CheckID
	interval time.Duration
	// degradedAfter is the number of consecutive failures after which the check is
	// considered expired on the registry side.
	degradedAfter int64
	log           *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	running  atomic.Bool
	failures atomic.Int64
	passes   atomic.Int64
}

// NewHeartbeat builds a heartbeat for checkID. ttl is only used for the degraded signal.
func NewHeartbeat(client TTLPasser, checkID CheckID, interval, ttl time.Duration, log *slog.Logger) *Heartbeat {
	if log == nil {
		log = slog.Default()
	}
	degradedAfter := int64(1)
	if interval > 0 && ttl > interval {
		degradedAfter = int64(ttl / interval)
	}
	return &Heartbeat{
		client:        client,
		checkID:       checkID,
		interval:      interval,
		degradedAfter: degradedAfter,
		log:           log.With(slog.String("check_id", string(checkID))),
	}
}

// Start launches the loop. The loop ends when ctx is cancelled or Stop is called.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running.Load() {
		return ErrHeartbeatRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	h.running.Store(true)

	go h.run(ctx, h.done)
	h.log.Info("consul: started service checker", slog.Duration("interval", h.interval))
	return nil
}

// Stop cancels the loop and waits for it to exit. No PassTTL call is issued after Stop returns.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

func (h *Heartbeat) Running() bool { return h.running.Load() }

// Passes returns the number of successful pass-assertions.
func (h *Heartbeat) Passes() int64 { return h.passes.Load() }

// ConsecutiveFailures returns the number of failed beats since the last success.
func (h *Heartbeat) ConsecutiveFailures() int64 { return h.failures.Load() }

func (h *Heartbeat) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer h.running.Store(false)
	defer h.log.Info("consul: stopped service checker")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			h.beat(ctx)
			timer.Reset(h.interval)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	err := h.client.PassTTL(ctx, h.checkID)
	metrics.Heartbeats.WithLabelValues(metrics.Result(err)).Inc()
	if err == nil {
		h.passes.Add(1)
		h.failures.Store(0)
		metrics.HeartbeatConsecutiveFailures.Set(0)
		return
	}
	if ctx.Err() != nil {
		return
	}

	failures := h.failures.Add(1)
	metrics.HeartbeatConsecutiveFailures.Set(float64(failures))
	h.log.Error("consul: failed to complete regular check-in",
		slog.Any("error", err),
		slog.Int64("consecutive_failures", failures),
	)
	if failures == h.degradedAfter {
		h.log.Error("consul: ttl check is likely critical, registry unreachable for a whole ttl",
			slog.Int64("consecutive_failures", failures),
		)
	}
}
