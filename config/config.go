package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	ProtocolHTTP = "http"
	ProtocolRPC  = "rpc"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type HealthCheckConfig struct {
	Interval           string `mapstructure:"interval"`
	Timeout            string `mapstructure:"timeout"`
	DegradedThreshold  int    `mapstructure:"degraded_threshold"`
	UnhealthyThreshold int    `mapstructure:"unhealthy_threshold"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	Window           string `mapstructure:"window"`
	Cooldown         string `mapstructure:"cooldown"`
}

type RetryConfig struct {
	Backoff string `mapstructure:"backoff"`
}

type ServiceConfig struct {
	Name       string `mapstructure:"name"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	RPCPort    int    `mapstructure:"rpc_port"`
	Protocol   string `mapstructure:"protocol"`
	Required   bool   `mapstructure:"required"`
	Timeout    string `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type RouteConfig struct {
	Prefix  string `mapstructure:"prefix"`
	Service string `mapstructure:"service"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Retry          RetryConfig          `mapstructure:"retry"`
	Services       []ServiceConfig      `mapstructure:"services"`
	Routes         []RouteConfig        `mapstructure:"routes"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("health_check.interval", "10s")
	viper.SetDefault("health_check.timeout", "5s")
	viper.SetDefault("health_check.degraded_threshold", 2)
	viper.SetDefault("health_check.unhealthy_threshold", 5)
	viper.SetDefault("circuit_breaker.failure_threshold", 5)
	viper.SetDefault("circuit_breaker.window", "60s")
	viper.SetDefault("circuit_breaker.cooldown", "30s")
	viper.SetDefault("retry.backoff", "100ms")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices()
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// DefaultServices is the built-in service catalog, used when the config file
// declares no services of its own.
func DefaultServices() []ServiceConfig {
	catalog := []struct {
		name     string
		port     int
		rpcPort  int
		required bool
	}{
		{"ai-kernel", 8001, 50051, true},
		{"identity", 8002, 50052, true},
		{"cv-engine", 8003, 50053, true},
		{"conversational", 8004, 50054, false},
		{"analytics", 8005, 50055, false},
		{"automation", 8006, 50056, false},
		{"vision", 8007, 50057, false},
		{"plugin", 8008, 50058, false},
	}

	services := make([]ServiceConfig, 0, len(catalog))
	for _, c := range catalog {
		services = append(services, ServiceConfig{
			Name:       c.name,
			Host:       "localhost",
			Port:       c.port,
			RPCPort:    c.rpcPort,
			Protocol:   ProtocolHTTP,
			Required:   c.required,
			Timeout:    "30s",
			MaxRetries: 2,
		})
	}

	return services
}

// DefaultRoutes is the built-in route table matching the default catalog.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Prefix: "/api/v1/ai/", Service: "ai-kernel"},
		{Prefix: "/api/v2/ai/", Service: "ai-kernel"},
		{Prefix: "/api/v1/auth/", Service: "identity"},
		{Prefix: "/api/v1/users/", Service: "identity"},
		{Prefix: "/api/v1/cv/", Service: "cv-engine"},
		{Prefix: "/api/v2/cv/", Service: "cv-engine"},
		{Prefix: "/api/v1/chat/", Service: "conversational"},
		{Prefix: "/api/v1/analytics/", Service: "analytics"},
		{Prefix: "/api/v2/analytics/", Service: "analytics"},
		{Prefix: "/api/v1/automation/", Service: "automation"},
		{Prefix: "/api/v1/vision/", Service: "vision"},
		{Prefix: "/api/v1/plugins/", Service: "plugin"},
	}
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.DegradedThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&hc.UnhealthyThreshold,
						validation.Required,
						validation.Min(hc.DegradedThreshold),
					),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				cb, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cb,
					validation.Field(&cb.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&cb.Window,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&cb.Cooldown,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Retry,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RetryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RetryConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.Backoff,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Services,
			validation.Required,
			validation.Length(1, 0),
			validation.By(validateUniqueServiceNames),
			validation.Each(validation.By(validateServiceConfig)),
		),
		validation.Field(&c.Routes,
			validation.Each(validation.By(validateRouteConfig)),
			validation.By(c.validateRouteReferences),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be a positive duration")
	}

	return nil
}

func validateServiceConfig(value interface{}) error {
	svc, ok := value.(ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ServiceConfig")
	}

	return validation.ValidateStruct(&svc,
		validation.Field(&svc.Name, validation.Required),
		validation.Field(&svc.Host,
			validation.Required,
			validation.By(func(value interface{}) error {
				host, _ := value.(string)
				if err := is.Host.Validate(host); err != nil {
					return validation.NewError("validation_invalid_host", "invalid host")
				}
				return nil
			}),
		),
		validation.Field(&svc.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&svc.RPCPort, validation.Min(0), validation.Max(65535)),
		validation.Field(&svc.Protocol,
			validation.Required,
			validation.In(ProtocolHTTP, ProtocolRPC),
		),
		validation.Field(&svc.Timeout,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&svc.MaxRetries, validation.Min(0)),
	)
}

func validateUniqueServiceNames(value interface{}) error {
	services, ok := value.([]ServiceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a []ServiceConfig")
	}

	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if seen[svc.Name] {
			return validation.NewError("validation_duplicate_service",
				fmt.Sprintf("duplicate service name: %s", svc.Name))
		}
		seen[svc.Name] = true
	}

	return nil
}

func validateRouteConfig(value interface{}) error {
	rt, ok := value.(RouteConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RouteConfig")
	}

	if rt.Prefix == "" || !strings.HasPrefix(rt.Prefix, "/") {
		return validation.NewError("validation_invalid_prefix", "route prefix must start with /")
	}

	if rt.Service == "" {
		return validation.NewError("validation_empty_service", "route must name a target service")
	}

	return nil
}

// validateRouteReferences checks that every route targets a declared service.
func (c *Config) validateRouteReferences(value interface{}) error {
	routes, ok := value.([]RouteConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a []RouteConfig")
	}

	known := make(map[string]bool, len(c.Services))
	for _, svc := range c.Services {
		known[svc.Name] = true
	}

	for _, rt := range routes {
		if !known[rt.Service] {
			return validation.NewError("validation_unknown_service",
				fmt.Sprintf("route %s references undeclared service %s", rt.Prefix, rt.Service))
		}
	}

	return nil
}
