package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/webitel/order-history/internal/errors"
	"github.com/webitel/order-history/registry"
)

const (
	DefaultConsulAddress     = "127.0.0.1:8500"
	DefaultBindHost          = "0.0.0.0"
	DefaultPort              = 50051
	DefaultAdvertiseHost     = "127.0.0.1"
	DefaultMetricsAddress    = ":9090"
	DefaultDiscoveryAttempts = 5
	DefaultDiscoveryBackoff  = 200 * time.Millisecond
	DefaultDrainTimeout      = 10 * time.Second
	DefaultConsulTimeout     = 5 * time.Second

	// MinTTL keeps ttl/2 above the one second heartbeat floor.
	MinTTL = 2 * registry.MinHeartbeatInterval
)

var DefaultTags = []string{"saga", "api", "example", "go"}

type AppConfig struct {
	File      string           `json:"-"`
	Consul    *ConsulConfig    `json:"consul,omitempty"`
	Grpc      *GrpcConfig      `json:"grpc,omitempty"`
	Service   *ServiceConfig   `json:"service,omitempty"`
	Discovery *DiscoveryConfig `json:"discovery,omitempty"`
	Metrics   *MetricsConfig   `json:"metrics,omitempty"`
}

type ConsulConfig struct {
	Id      string        `json:"id"`
	Address string        `json:"address"`
	Scheme  string        `json:"scheme"`
	Token   string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

type GrpcConfig struct {
	BindHost      string        `json:"bindHost"`
	BindPort      int           `json:"bindPort"`
	AdvertiseHost string        `json:"advertiseHost"`
	AdvertisePort int           `json:"advertisePort"`
	DrainTimeout  time.Duration `json:"drainTimeout"`
	RateLimit     float64       `json:"rateLimit"`
	RateBurst     int           `json:"rateBurst"`
}

type ServiceConfig struct {
	Name              string        `json:"name"`
	Tags              []string      `json:"tags"`
	TTL               time.Duration `json:"ttl"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`
	DeregisterAfter   time.Duration `json:"deregisterAfter"`
}

type DiscoveryConfig struct {
	Attempts int           `json:"attempts"`
	Backoff  time.Duration `json:"backoff"`
}

type MetricsConfig struct {
	Address string `json:"address"`
}

// BindAddress is the host:port the gRPC listener binds.
func (c *GrpcConfig) BindAddress() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.BindPort))
}

// LoadConfig reads the process arguments and environment.
func LoadConfig() (*AppConfig, error) {
	return Load(os.Args[1:])
}

// Load resolves the configuration from args, environment and an optional JSON file,
// in that order of precedence.
func Load(args []string) (*AppConfig, error) {
	v := viper.New()
	flags := pflag.NewFlagSet("order-history", pflag.ContinueOnError)
	if err := bindFlagsAndEnv(v, flags, args); err != nil {
		return nil, err
	}

	configFile := getConfigFilePath(v)
	if configFile != "" {
		if err := loadFromFile(v, configFile); err != nil {
			return nil, err
		}
	}

	cfg := buildAppConfig(v, configFile)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Consul.Id == "" {
		cfg.Consul.Id = deriveInstanceID(cfg.Service.Name, cfg.Grpc.AdvertisePort)
	}

	return cfg, nil
}

func bindFlagsAndEnv(v *viper.Viper, flags *pflag.FlagSet, args []string) error {
	flags.String("config_file", "", "Configuration file in JSON format")

	// consul
	flags.String("id", "", "Service instance id (derived from name, host and port when empty)")
	flags.String("consul", DefaultConsulAddress, "Host to consul")
	flags.String("consul_scheme", "http", "Consul agent scheme")
	flags.String("consul_token", "", "Consul ACL token")
	flags.Duration("consul_timeout", DefaultConsulTimeout, "Timeout of a single consul call")

	// grpc
	flags.String("bind_host", DefaultBindHost, "gRPC bind host")
	flags.Int("bind_port", DefaultPort, "gRPC bind port")
	flags.String("advertise_host", DefaultAdvertiseHost, "Address published to consul")
	flags.Int("advertise_port", 0, "Port published to consul (bind_port when 0)")
	flags.Duration("drain_timeout", DefaultDrainTimeout, "Graceful stop deadline")
	flags.Float64("rate_limit", 0, "Max unary calls per second (disabled when 0)")
	flags.Int("rate_burst", 0, "Rate limiter burst (rate_limit rounded up when 0)")

	// service
	flags.String("service_name", registry.DefaultServiceName, "Logical service name")
	flags.StringSlice("tags", DefaultTags, "Service tags")
	flags.Duration("ttl", registry.DefaultTTL, "TTL of the health check")
	flags.Duration("heartbeat_interval", 0, "Heartbeat interval (ttl/2 when 0)")
	flags.Duration("deregister_after", 0, "Deregister critical service after (20 x ttl when 0)")

	// discovery
	flags.Int("discovery_attempts", DefaultDiscoveryAttempts, "Check discovery attempts")
	flags.Duration("discovery_backoff", DefaultDiscoveryBackoff, "Initial check discovery backoff")

	// metrics
	flags.String("metrics_addr", DefaultMetricsAddress, "Probe and metrics HTTP address (disabled when empty)")

	if err := flags.Parse(args); err != nil {
		return errors.InvalidArgument("invalid command line", errors.WithID("config.flags.parse"), errors.WithCause(err))
	}

	_ = v.BindPFlags(flags)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit mapping
	_ = v.BindEnv("id", "CONSUL_ID")
	_ = v.BindEnv("consul", "CONSUL_HOST")
	_ = v.BindEnv("consul_scheme", "CONSUL_SCHEME")
	_ = v.BindEnv("consul_token", "CONSUL_HTTP_TOKEN")
	_ = v.BindEnv("consul_timeout", "CONSUL_TIMEOUT")
	_ = v.BindEnv("bind_host", "BIND_HOST")
	_ = v.BindEnv("bind_port", "BIND_PORT")
	_ = v.BindEnv("advertise_host", "ADVERTISE_HOST")
	_ = v.BindEnv("advertise_port", "ADVERTISE_PORT")
	_ = v.BindEnv("drain_timeout", "DRAIN_TIMEOUT")
	_ = v.BindEnv("rate_limit", "RATE_LIMIT")
	_ = v.BindEnv("rate_burst", "RATE_BURST")
	_ = v.BindEnv("service_name", "SERVICE_NAME")
	_ = v.BindEnv("tags", "SERVICE_TAGS")
	_ = v.BindEnv("ttl", "SERVICE_TTL")
	_ = v.BindEnv("heartbeat_interval", "HEARTBEAT_INTERVAL")
	_ = v.BindEnv("deregister_after", "DEREGISTER_CRITICAL_AFTER")
	_ = v.BindEnv("discovery_attempts", "DISCOVERY_ATTEMPTS")
	_ = v.BindEnv("discovery_backoff", "DISCOVERY_BACKOFF")
	_ = v.BindEnv("metrics_addr", "METRICS_ADDR")
	return nil
}

func getConfigFilePath(v *viper.Viper) string {
	file := v.GetString("config_file")
	if file == "" {
		file = os.Getenv("ORDER_HISTORY_CONFIG_FILE")
	}
	return file
}

func loadFromFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return errors.New(fmt.Sprintf("could not load config file: %s", err.Error()), errors.WithCause(err))
	}
	return nil
}

func buildAppConfig(v *viper.Viper, file string) *AppConfig {
	advertisePort := v.GetInt("advertise_port")
	if advertisePort == 0 {
		advertisePort = v.GetInt("bind_port")
	}
	return &AppConfig{
		File: file,
		Consul: &ConsulConfig{
			Id:      v.GetString("id"),
			Address: v.GetString("consul"),
			Scheme:  v.GetString("consul_scheme"),
			Token:   v.GetString("consul_token"),
			Timeout: v.GetDuration("consul_timeout"),
		},
		Grpc: &GrpcConfig{
			BindHost:      v.GetString("bind_host"),
			BindPort:      v.GetInt("bind_port"),
			AdvertiseHost: v.GetString("advertise_host"),
			AdvertisePort: advertisePort,
			DrainTimeout:  v.GetDuration("drain_timeout"),
			RateLimit:     v.GetFloat64("rate_limit"),
			RateBurst:     rateBurst(v.GetFloat64("rate_limit"), v.GetInt("rate_burst")),
		},
		Service: &ServiceConfig{
			Name:              v.GetString("service_name"),
			Tags:              splitTags(v.GetStringSlice("tags")),
			TTL:               v.GetDuration("ttl"),
			HeartbeatInterval: v.GetDuration("heartbeat_interval"),
			DeregisterAfter:   v.GetDuration("deregister_after"),
		},
		Discovery: &DiscoveryConfig{
			Attempts: v.GetInt("discovery_attempts"),
			Backoff:  v.GetDuration("discovery_backoff"),
		},
		Metrics: &MetricsConfig{Address: v.GetString("metrics_addr")},
	}
}

func rateBurst(limit float64, burst int) int {
	if burst > 0 {
		return burst
	}
	return int(math.Ceil(limit))
}

// splitTags accepts both repeated values and a single comma separated env value.
func splitTags(raw []string) []string {
	var tags []string
	for _, item := range raw {
		for _, tag := range strings.Split(item, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func validateConfig(cfg *AppConfig) error {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		return errors.InvalidArgument("Service name is required")
	}
	if cfg.Consul.Address == "" {
		return errors.InvalidArgument("Consul address is required")
	}
	if cfg.Service.TTL < MinTTL {
		return errors.InvalidArgument(fmt.Sprintf("ttl must be at least %s, got %s", MinTTL, cfg.Service.TTL))
	}
	if cfg.Service.HeartbeatInterval < 0 {
		return errors.InvalidArgument("heartbeat interval must not be negative")
	}
	if !validPort(cfg.Grpc.BindPort) {
		return errors.InvalidArgument(fmt.Sprintf("bind port %d out of range", cfg.Grpc.BindPort))
	}
	if !validPort(cfg.Grpc.AdvertisePort) {
		return errors.InvalidArgument(fmt.Sprintf("advertise port %d out of range", cfg.Grpc.AdvertisePort))
	}
	if cfg.Grpc.AdvertiseHost == "" {
		return errors.InvalidArgument("Advertise host is required")
	}
	if cfg.Grpc.RateLimit < 0 {
		return errors.InvalidArgument("rate limit must not be negative")
	}
	if cfg.Discovery.Attempts < 1 {
		return errors.InvalidArgument("discovery attempts must be at least 1")
	}
	if cfg.Consul.Timeout <= 0 {
		return errors.InvalidArgument("consul timeout must be positive")
	}
	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

// deriveInstanceID is stable across restarts of the same host and port, so a restarted
// process replaces the registration its predecessor left behind.
func deriveInstanceID(name string, port int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}
	return fmt.Sprintf("%s-%s-%d", name, host, port)
}
