package registry

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultServiceName = "history.service"
	DefaultTTL         = 10 * time.Second
	// DeregisterCriticalFactor multiplies the TTL into the default reap timeout.
	DeregisterCriticalFactor = 20
	// MinHeartbeatInterval is the floor applied by ResolveInterval.
	MinHeartbeatInterval = time.Second
	// PassNote is attached to every pass-assertion.
	PassNote = "SERVING"
)

var (
	// ErrServiceNotFound is returned by Deregister when the instance is not registered.
	ErrServiceNotFound = errors.New("registry: service instance not found")
	// ErrCheckNotFound is returned by DiscoverCheck when no TTL check shows up in time.
	ErrCheckNotFound = errors.New("registry: ttl check not found")
)

// ServiceInstance is the identity of this process in the registry.
type ServiceInstance struct {
	Name    string
	ID      string
	Address string
	Port    int
	Tags    []string
	Meta    map[string]string
}

// TTLCheckSpec describes the TTL health check registered together with the instance.
type TTLCheckSpec struct {
	TTL                     time.Duration
	DeregisterCriticalAfter time.Duration
	Notes                   string
}

// NewTTLCheckSpec fills DeregisterCriticalAfter with its default when zero.
func NewTTLCheckSpec(ttl, deregisterAfter time.Duration) TTLCheckSpec {
	if deregisterAfter <= 0 {
		deregisterAfter = DeregisterCriticalFactor * ttl
	}
	return TTLCheckSpec{
		TTL:                     ttl,
		DeregisterCriticalAfter: deregisterAfter,
		Notes:                   "TTL heartbeat from the service process",
	}
}

// CheckID identifies a health check inside the registry agent.
type CheckID string

// TTLPasser asserts liveness of a TTL check.
type TTLPasser interface {
	PassTTL(ctx context.Context, checkID CheckID) error
}

// CheckFinder looks up the TTL check owned by an instance.
type CheckFinder interface {
	// FindCheckID reports false when the check is not (yet) known to the agent.
	FindCheckID(ctx context.Context, instanceID string) (CheckID, bool, error)
}

// Client is the narrow view of the registry agent used by the service.
type Client interface {
	TTLPasser
	CheckFinder

	// Register replaces any existing registration under the same instance id.
	Register(ctx context.Context, instance ServiceInstance, check TTLCheckSpec) error
	// Deregister returns ErrServiceNotFound when nothing was registered under instanceID.
	Deregister(ctx context.Context, instanceID string) error
}
