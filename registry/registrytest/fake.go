// Package registrytest provides an in-memory registry.Client for tests.
package registrytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webitel/order-history/registry"
)

// Call is one recorded client invocation.
type Call struct {
	Op string
	ID string
	At time.Time
}

// Registry is a thread-safe fake agent. Errors and discovery delays are injected through
// the exported fields before use.
type Registry struct {
	mu sync.Mutex

	RegisterErr   error
	DeregisterErr error
	FindErr       error
	PassErr       error
	// ChecksVisibleAfter hides the TTL check from the first N FindCheckID calls.
	ChecksVisibleAfter int
	// NoCheck registers instances without a TTL check.
	NoCheck bool
	// OnPass runs inside PassTTL before the result is returned.
	OnPass func(checkID registry.CheckID)

	instances map[string]registry.ServiceInstance
	checks    map[string]registry.TTLCheckSpec
	passing   map[registry.CheckID]time.Time
	finds     int
	calls     []Call
}

func New() *Registry {
	return &Registry{
		instances: make(map[string]registry.ServiceInstance),
		checks:    make(map[string]registry.TTLCheckSpec),
		passing:   make(map[registry.CheckID]time.Time),
	}
}

// CheckIDFor is the id the fake assigns to the TTL check of an instance.
func CheckIDFor(instanceID string) registry.CheckID {
	return registry.CheckID(fmt.Sprintf("service:%s", instanceID))
}

func (r *Registry) record(op, id string) {
	r.calls = append(r.calls, Call{Op: op, ID: id, At: time.Now()})
}

func (r *Registry) Register(ctx context.Context, instance registry.ServiceInstance, check registry.TTLCheckSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("register", instance.ID)
	if r.RegisterErr != nil {
		return r.RegisterErr
	}
	r.instances[instance.ID] = instance
	if !r.NoCheck {
		r.checks[instance.ID] = check
	}
	return nil
}

func (r *Registry) Deregister(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("deregister", instanceID)
	if r.DeregisterErr != nil {
		return r.DeregisterErr
	}
	if _, ok := r.instances[instanceID]; !ok {
		return registry.ErrServiceNotFound
	}
	delete(r.instances, instanceID)
	delete(r.checks, instanceID)
	delete(r.passing, CheckIDFor(instanceID))
	return nil
}

func (r *Registry) FindCheckID(ctx context.Context, instanceID string) (registry.CheckID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("find", instanceID)
	r.finds++
	if r.FindErr != nil {
		return "", false, r.FindErr
	}
	if r.finds <= r.ChecksVisibleAfter {
		return "", false, nil
	}
	if _, ok := r.checks[instanceID]; !ok {
		return "", false, nil
	}
	return CheckIDFor(instanceID), true, nil
}

func (r *Registry) PassTTL(ctx context.Context, checkID registry.CheckID) error {
	r.mu.Lock()
	r.record("pass", string(checkID))
	err := r.PassErr
	if err == nil {
		r.passing[checkID] = time.Now()
	}
	onPass := r.OnPass
	r.mu.Unlock()

	if onPass != nil {
		onPass(checkID)
	}
	return err
}

// SetPassErr changes the PassTTL result while a heartbeat is running.
func (r *Registry) SetPassErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PassErr = err
}

// SetDeregisterErr changes the Deregister result while a lifecycle is running.
func (r *Registry) SetDeregisterErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DeregisterErr = err
}

// Registered reports whether the instance is currently registered.
func (r *Registry) Registered(instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.instances[instanceID]
	return ok
}

// Instance returns the stored registration.
func (r *Registry) Instance(instanceID string) (registry.ServiceInstance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	return inst, ok
}

// Passing reports whether the check of instanceID got a pass within ttl and still exists.
func (r *Registry) Passing(instanceID string, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checks[instanceID]; !ok {
		return false
	}
	last, ok := r.passing[CheckIDFor(instanceID)]
	return ok && time.Since(last) <= ttl
}

// Calls returns a copy of the recorded calls.
func (r *Registry) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns the number of recorded calls of op.
func (r *Registry) Count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}
