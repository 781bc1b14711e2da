package consul

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/webitel/order-history/internal/errors"
	"github.com/webitel/order-history/internal/metrics"
	"github.com/webitel/order-history/registry"
)

const (
	DefaultAddress = "127.0.0.1:8500"
	DefaultScheme  = "http"
	DefaultTimeout = 5 * time.Second

	checkTypeTTL = "ttl"
)

// Config locates the consul agent.
type Config struct {
	Address string
	Scheme  string
	Token   string
	// Timeout bounds every agent call.
	Timeout time.Duration
}

// ConsulRegistry implements registry.Client on top of the consul agent API.
type ConsulRegistry struct {
	client  *consulapi.Client
	timeout time.Duration
}

var _ registry.Client = (*ConsulRegistry)(nil)

// NewConsulRegistry creates a new Consul registry client.
func NewConsulRegistry(config Config) (*ConsulRegistry, error) {
	consulConfig := consulapi.DefaultConfig()
	consulConfig.Address = DefaultAddress
	if config.Address != "" {
		consulConfig.Address = config.Address
	}
	consulConfig.Scheme = DefaultScheme
	if config.Scheme != "" {
		consulConfig.Scheme = config.Scheme
	}
	if config.Token != "" {
		consulConfig.Token = config.Token
	}

	client, err := consulapi.NewClient(consulConfig)
	if err != nil {
		return nil, errors.Internal(
			"unable to create consul client",
			errors.WithID("consul.registry.new_consul_registry.consulapi_creation.error"),
			errors.WithCause(err),
		)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ConsulRegistry{client: client, timeout: timeout}, nil
}

// Register registers the service together with its TTL check, replacing any previous checks.
func (c *ConsulRegistry) Register(ctx context.Context, instance registry.ServiceInstance, check registry.TTLCheckSpec) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	registration := &consulapi.AgentServiceRegistration{
		ID:      instance.ID,
		Name:    instance.Name,
		Address: instance.Address,
		Port:    instance.Port,
		Tags:    instance.Tags,
		Meta:    instance.Meta,
		Check: &consulapi.AgentServiceCheck{
			Name:                           fmt.Sprintf("Service '%s' TTL check", instance.Name),
			Notes:                          check.Notes,
			TTL:                            check.TTL.String(),
			DeregisterCriticalServiceAfter: check.DeregisterCriticalAfter.String(),
		},
	}

	opts := consulapi.ServiceRegisterOpts{ReplaceExistingChecks: true}.WithContext(ctx)
	err := c.client.Agent().ServiceRegisterOpts(registration, opts)
	metrics.RegistryOperations.WithLabelValues("register", metrics.Result(err)).Inc()
	if err != nil {
		return errors.Unavailable(
			"consul: service registration failed",
			errors.WithID("consul.registry.consul.register.error"),
			errors.WithCause(err),
		)
	}
	slog.InfoContext(ctx, fmtConsulLog("service was registered"),
		slog.String("service_id", instance.ID),
		slog.String("service_name", instance.Name),
		slog.String("address", fmt.Sprintf("%s:%d", instance.Address, instance.Port)),
	)
	return nil
}

// Deregister removes the instance and its checks. A missing instance yields registry.ErrServiceNotFound.
func (c *ConsulRegistry) Deregister(ctx context.Context, instanceID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.client.Agent().ServiceDeregisterOpts(instanceID, (&consulapi.QueryOptions{}).WithContext(ctx))
	if isNotFound(err) {
		metrics.RegistryOperations.WithLabelValues("deregister", "not_found").Inc()
		return registry.ErrServiceNotFound
	}
	metrics.RegistryOperations.WithLabelValues("deregister", metrics.Result(err)).Inc()
	if err != nil {
		return errors.Unavailable(
			"consul: service deregistration failed",
			errors.WithID("consul.registry.consul.deregister.error"),
			errors.WithCause(err),
		)
	}
	slog.InfoContext(ctx, fmtConsulLog("service was deregistered"), slog.String("service_id", instanceID))
	return nil
}

// FindCheckID scans the agent checks for the TTL check owned by instanceID.
func (c *ConsulRegistry) FindCheckID(ctx context.Context, instanceID string) (registry.CheckID, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	checks, err := c.client.Agent().ChecksWithFilterOpts(
		fmt.Sprintf("ServiceID == %q", instanceID),
		(&consulapi.QueryOptions{}).WithContext(ctx),
	)
	metrics.RegistryOperations.WithLabelValues("find_check", metrics.Result(err)).Inc()
	if err != nil {
		return "", false, errors.Unavailable(
			"consul: unable to list agent checks",
			errors.WithID("consul.registry.consul.register.get_checks.error"),
			errors.WithCause(err),
		)
	}

	for checkID, check := range checks {
		if check.ServiceID == instanceID && strings.EqualFold(check.Type, checkTypeTTL) {
			if check.CheckID != "" {
				checkID = check.CheckID
			}
			return registry.CheckID(checkID), true, nil
		}
	}
	return "", false, nil
}

// PassTTL marks the check as passing.
func (c *ConsulRegistry) PassTTL(ctx context.Context, checkID registry.CheckID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.client.Agent().UpdateTTLOpts(string(checkID), registry.PassNote, consulapi.HealthPassing,
		(&consulapi.QueryOptions{}).WithContext(ctx))
	metrics.RegistryOperations.WithLabelValues("pass_ttl", metrics.Result(err)).Inc()
	if err != nil {
		return errors.Unavailable(
			"consul: ttl update failed",
			errors.WithID("consul.registry.consul.update_ttl.error"),
			errors.WithCause(err),
		)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var statusErr consulapi.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 404
	}
	return strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "Unknown service")
}

func fmtConsulLog(s string) string {
	return fmt.Sprintf("consul: %s", s)
}
