package config

import (
	"time"

	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/retry"
)

// GatewayConfig is the root configuration of the gateway.
type GatewayConfig struct {
	Server        ServerConfig        `yaml:"server" json:"server" envconfig:"SERVER"`
	Auth          AuthConfig          `yaml:"auth" json:"auth" envconfig:"AUTH"`
	Redis         RedisConfig         `yaml:"redis" json:"redis" envconfig:"REDIS"`
	Cache         CacheConfig         `yaml:"cache" json:"cache" envconfig:"CACHE"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit" json:"rateLimit" envconfig:"RATE_LIMIT"`
	Security      SecurityConfig      `yaml:"security" json:"security" envconfig:"SECURITY"`
	Backend       BackendConfig       `yaml:"backend" json:"backend" envconfig:"BACKEND"`
	CORS          CORSConfig          `yaml:"cors" json:"cors" envconfig:"CORS"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" envconfig:"OBSERVABILITY"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Host               string   `yaml:"host" json:"host" envconfig:"HOST"`
	Port               int      `yaml:"port" json:"port" envconfig:"PORT" validate:"gte=1,lte=65535"`
	ReadTimeout        Duration `yaml:"readTimeout" json:"readTimeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout       Duration `yaml:"writeTimeout" json:"writeTimeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout        Duration `yaml:"idleTimeout" json:"idleTimeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout    Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxRequestBodySize int64    `yaml:"maxRequestBodySize" json:"maxRequestBodySize" envconfig:"MAX_REQUEST_BODY_SIZE" validate:"gt=0"`
	TrustedProxies     []string `yaml:"trustedProxies" json:"trustedProxies" envconfig:"TRUSTED_PROXIES"`
}

// AuthConfig configures token signing, session lifetime and password hashing.
type AuthConfig struct {
	Secret     string       `yaml:"secret" json:"-" envconfig:"SECRET" validate:"required,min=16"`
	Issuer     string       `yaml:"issuer" json:"issuer" envconfig:"ISSUER"`
	TokenTTL   Duration     `yaml:"tokenTTL" json:"tokenTTL" envconfig:"TOKEN_TTL"`
	SessionTTL Duration     `yaml:"sessionTTL" json:"sessionTTL" envconfig:"SESSION_TTL"`
	Argon2     Argon2Config `yaml:"argon2" json:"argon2" envconfig:"ARGON2"`
}

// Argon2Config holds argon2id cost parameters.
type Argon2Config struct {
	Memory      uint32 `yaml:"memory" json:"memory" envconfig:"MEMORY" validate:"gte=8192"`
	Iterations  uint32 `yaml:"iterations" json:"iterations" envconfig:"ITERATIONS" validate:"gte=1"`
	Parallelism uint8  `yaml:"parallelism" json:"parallelism" envconfig:"PARALLELISM" validate:"gte=1"`
	SaltLength  uint32 `yaml:"saltLength" json:"saltLength" envconfig:"SALT_LENGTH" validate:"gte=16"`
	KeyLength   uint32 `yaml:"keyLength" json:"keyLength" envconfig:"KEY_LENGTH" validate:"gte=16"`
}

// RedisConfig configures the durable key-value store. An empty Address
// selects the in-process store.
type RedisConfig struct {
	Address     string       `yaml:"address" json:"address" envconfig:"ADDRESS" validate:"omitempty,hostname_port"`
	Password    string       `yaml:"password" json:"-" envconfig:"PASSWORD"`
	DB          int          `yaml:"db" json:"db" envconfig:"DB" validate:"gte=0"`
	KeyPrefix   string       `yaml:"keyPrefix" json:"keyPrefix" envconfig:"KEY_PREFIX"`
	PoolSize    int          `yaml:"poolSize" json:"poolSize" envconfig:"POOL_SIZE" validate:"gte=0"`
	DialTimeout Duration     `yaml:"dialTimeout" json:"dialTimeout" envconfig:"DIAL_TIMEOUT"`
	Retry       retry.Config `yaml:"retry" json:"retry" envconfig:"RETRY"`
}

// CacheConfig configures the tiered cache and its category TTLs.
type CacheConfig struct {
	DefaultTTL         Duration `yaml:"defaultTTL" json:"defaultTTL" envconfig:"DEFAULT_TTL"`
	APIResponseTTL     Duration `yaml:"apiResponseTTL" json:"apiResponseTTL" envconfig:"API_RESPONSE_TTL"`
	ExternalSessionTTL Duration `yaml:"externalSessionTTL" json:"externalSessionTTL" envconfig:"EXTERNAL_SESSION_TTL"`
	PermissionsTTL     Duration `yaml:"permissionsTTL" json:"permissionsTTL" envconfig:"PERMISSIONS_TTL"`
	MaxEntries         int      `yaml:"maxEntries" json:"maxEntries" envconfig:"MAX_ENTRIES" validate:"gte=0"`
	CleanupInterval    Duration `yaml:"cleanupInterval" json:"cleanupInterval" envconfig:"CLEANUP_INTERVAL"`
	CacheResponses     bool     `yaml:"cacheResponses" json:"cacheResponses" envconfig:"CACHE_RESPONSES"`
}

// RatePolicy is a fixed window allowance.
type RatePolicy struct {
	Requests int      `yaml:"requests" json:"requests" envconfig:"REQUESTS" validate:"gte=1"`
	Window   Duration `yaml:"window" json:"window" envconfig:"WINDOW" validate:"gt=0"`
}

// RateLimitConfig configures the endpoint and per-source limiters.
type RateLimitConfig struct {
	Enabled         bool                  `yaml:"enabled" json:"enabled" envconfig:"ENABLED"`
	Default         RatePolicy            `yaml:"default" json:"default" envconfig:"DEFAULT"`
	PerSource       RatePolicy            `yaml:"perSource" json:"perSource" envconfig:"PER_SOURCE"`
	Endpoints       map[string]RatePolicy `yaml:"endpoints" json:"endpoints" ignored:"true" validate:"dive"`
	CleanupInterval Duration              `yaml:"cleanupInterval" json:"cleanupInterval" envconfig:"CLEANUP_INTERVAL"`
}

// SecurityConfig configures the request security scan.
type SecurityConfig struct {
	MaxRequestSize  int      `yaml:"maxRequestSize" json:"maxRequestSize" envconfig:"MAX_REQUEST_SIZE" validate:"gt=0"`
	MaxStringLength int      `yaml:"maxStringLength" json:"maxStringLength" envconfig:"MAX_STRING_LENGTH" validate:"gt=0"`
	AllowedDomains  []string `yaml:"allowedDomains" json:"allowedDomains" envconfig:"ALLOWED_DOMAINS" validate:"dive,hostname"`
}

// BackendConfig configures the upstream backend.
type BackendConfig struct {
	URL             string               `yaml:"url" json:"url" envconfig:"URL" validate:"required,url"`
	DefaultEndpoint string               `yaml:"defaultEndpoint" json:"defaultEndpoint" envconfig:"DEFAULT_ENDPOINT" validate:"startswith=/"`
	HealthPath      string               `yaml:"healthPath" json:"healthPath" envconfig:"HEALTH_PATH" validate:"startswith=/"`
	Timeout         Duration             `yaml:"timeout" json:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	Retries         int                  `yaml:"retries" json:"retries" envconfig:"RETRIES" validate:"gte=0,lte=10"`
	RequestsPerSec  float64              `yaml:"requestsPerSecond" json:"requestsPerSecond" envconfig:"REQUESTS_PER_SECOND" validate:"gte=0"`
	Burst           int                  `yaml:"burst" json:"burst" envconfig:"BURST" validate:"gte=0"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker" envconfig:"CIRCUIT_BREAKER"`
}

// CircuitBreakerConfig configures the breaker in front of the backend.
type CircuitBreakerConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled" envconfig:"ENABLED"`
	Threshold   uint32   `yaml:"threshold" json:"threshold" envconfig:"THRESHOLD"`
	MaxRequests uint32   `yaml:"maxRequests" json:"maxRequests" envconfig:"MAX_REQUESTS"`
	Interval    Duration `yaml:"interval" json:"interval" envconfig:"INTERVAL"`
	Timeout     Duration `yaml:"timeout" json:"timeout" envconfig:"TIMEOUT"`
}

// CORSConfig configures cross-origin access to the HTTP surface.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins" json:"allowOrigins" envconfig:"ALLOW_ORIGINS"`
	AllowMethods     []string `yaml:"allowMethods" json:"allowMethods" envconfig:"ALLOW_METHODS"`
	AllowHeaders     []string `yaml:"allowHeaders" json:"allowHeaders" envconfig:"ALLOW_HEADERS"`
	AllowCredentials bool     `yaml:"allowCredentials" json:"allowCredentials" envconfig:"ALLOW_CREDENTIALS"`
	MaxAge           Duration `yaml:"maxAge" json:"maxAge" envconfig:"MAX_AGE"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" envconfig:"ENABLED"`
	Port    int    `yaml:"port" json:"port" envconfig:"PORT" validate:"omitempty,gte=1,lte=65535"`
	Path    string `yaml:"path" json:"path" envconfig:"PATH" validate:"omitempty,startswith=/"`
}

// ObservabilityConfig groups logging, metrics and tracing.
type ObservabilityConfig struct {
	Log     observability.LogConfig    `yaml:"log" json:"log" envconfig:"LOG"`
	Metrics MetricsConfig              `yaml:"metrics" json:"metrics" envconfig:"METRICS"`
	Tracing observability.TracerConfig `yaml:"tracing" json:"tracing" envconfig:"TRACING"`
}

// Endpoint overrides applied on top of the default policy.
const (
	EndpointLogin        = "/api/auth/login"
	EndpointNvidiaLaunch = "/api/nvidia/launch"
	EndpointNvidiaStream = "/api/nvidia/stream"
	EndpointGithubCreate = "/api/github/create"
	EndpointVercelDeploy = "/api/vercel/deploy"
)

// DefaultEndpointPolicies returns the built-in endpoint overrides.
func DefaultEndpointPolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		EndpointLogin:        {Requests: 5, Window: Duration(5 * time.Minute)},
		EndpointNvidiaLaunch: {Requests: 5, Window: Duration(time.Minute)},
		EndpointNvidiaStream: {Requests: 10, Window: Duration(time.Minute)},
		EndpointGithubCreate: {Requests: 10, Window: Duration(time.Hour)},
		EndpointVercelDeploy: {Requests: 20, Window: Duration(time.Hour)},
	}
}

// DefaultAllowedDomains returns the hosts URL fields may point at.
func DefaultAllowedDomains() []string {
	return []string{
		"github.com", "api.github.com",
		"vercel.com", "api.vercel.com",
		"developer.nvidia.com", "api.nvidia.com",
		"openai.com", "api.openai.com",
		"pinecone.io", "api.pinecone.io",
	}
}

// DefaultConfig returns a configuration populated with defaults. The
// signing secret is left empty and must be supplied.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        Duration(30 * time.Second),
			WriteTimeout:       Duration(30 * time.Second),
			IdleTimeout:        Duration(120 * time.Second),
			ShutdownTimeout:    Duration(30 * time.Second),
			MaxRequestBodySize: 10 << 20,
		},
		Auth: AuthConfig{
			Issuer:     "omnigw",
			TokenTTL:   Duration(24 * time.Hour),
			SessionTTL: Duration(time.Hour),
			Argon2: Argon2Config{
				Memory:      64 * 1024,
				Iterations:  1,
				Parallelism: 4,
				SaltLength:  16,
				KeyLength:   32,
			},
		},
		Redis: RedisConfig{
			KeyPrefix:   "omnigw:",
			DialTimeout: Duration(5 * time.Second),
			Retry:       *retry.DefaultConfig(),
		},
		Cache: CacheConfig{
			DefaultTTL:         Duration(300 * time.Second),
			APIResponseTTL:     Duration(60 * time.Second),
			ExternalSessionTTL: Duration(3600 * time.Second),
			PermissionsTTL:     Duration(1800 * time.Second),
			MaxEntries:         10000,
			CleanupInterval:    Duration(time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			Default:         RatePolicy{Requests: 100, Window: Duration(time.Minute)},
			PerSource:       RatePolicy{Requests: 1000, Window: Duration(time.Hour)},
			Endpoints:       DefaultEndpointPolicies(),
			CleanupInterval: Duration(time.Minute),
		},
		Security: SecurityConfig{
			MaxRequestSize:  10 << 20,
			MaxStringLength: 10000,
			AllowedDomains:  DefaultAllowedDomains(),
		},
		Backend: BackendConfig{
			URL:             "http://127.0.0.1:5000",
			DefaultEndpoint: "/api/status",
			HealthPath:      "/health",
			Timeout:         Duration(30 * time.Second),
			Retries:         2,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				Threshold:   5,
				MaxRequests: 1,
				Interval:    Duration(time.Minute),
				Timeout:     Duration(30 * time.Second),
			},
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			MaxAge:       Duration(12 * time.Hour),
		},
		Observability: ObservabilityConfig{
			Log:     observability.LogConfig{Level: "info", Format: "json", Output: "stdout"},
			Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
			Tracing: observability.TracerConfig{ServiceName: "omnigw", SamplingRate: 1},
		},
	}
}
