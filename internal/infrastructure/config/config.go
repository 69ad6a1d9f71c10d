package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/beautyops/backend/internal/domain/integration"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Naver     NaverConfig
	Relay     RelayConfig
	Proxy     ProxyConfig
	Sync      SyncConfig
	Scheduler SchedulerConfig
	Archive   ArchiveConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings.
// An empty Host selects the in-memory run locker.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration // zero disables the write deadline so SSE streams can run long
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// NaverConfig holds Naver Commerce API settings
type NaverConfig struct {
	BaseURL         string
	Grant           string // client_credentials or jwt_bearer
	SignatureScheme string // bcrypt or hmac-sha256
	TokenType       string // SELF or SELLER
	AccountID       string
	JWTAudience     string
	Timezone        string

	// ClientID and ClientSecret are used by scheduled and CLI runs.
	// Interactive runs carry their own credentials.
	ClientID     string
	ClientSecret string

	TokenTimeout      time.Duration
	PageTimeout       time.Duration
	DetailTimeout     time.Duration
	DetailChunkSize   int
	DetailWorkers     int
	PageLimit         int
	RequestsPerSecond float64
	Burst             int
}

// HasCredential reports whether a stored credential is configured
func (n *NaverConfig) HasCredential() bool {
	return n.ClientID != "" && n.ClientSecret != ""
}

// RelayConfig holds settings for the relay server binary
type RelayConfig struct {
	Port string
	// APIKey is the value clients must send in x-proxy-api-key
	APIKey string
}

// ProxyConfig selects relay mode for the orchestrator.
// Populated from the bare PROXY_URL and PROXY_API_KEY variables as well.
type ProxyConfig struct {
	URL         string
	APIKey      string
	TestTimeout time.Duration
	SyncTimeout time.Duration
}

// Enabled reports whether relay mode is active
func (p *ProxyConfig) Enabled() bool {
	return p.URL != "" && p.APIKey != ""
}

// SyncConfig holds orchestrator settings
type SyncConfig struct {
	LockTTL        time.Duration
	ProgressBuffer int
}

// SchedulerConfig holds order sync scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	Interval          time.Duration
	LookbackDays      int
	Channels          []string
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// ArchiveConfig selects where raw upstream payloads are kept
type ArchiveConfig struct {
	Driver string // none, s3, mongo

	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	S3Prefix         string
	S3ForcePathStyle bool

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	// Profiling
	ProfilingEnabled  bool
	PyroscopeEndpoint string
}

// Archive drivers
const (
	ArchiveDriverNone  = "none"
	ArchiveDriverS3    = "s3"
	ArchiveDriverMongo = "mongo"
)

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BEAUTYOPS_ prefix (e.g., BEAUTYOPS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
//
// PROXY_URL and PROXY_API_KEY are read without the prefix.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/beautyops")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("BEAUTYOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare proxy variables shared with the relay deployment
	_ = v.BindEnv("proxy.url", "BEAUTYOPS_PROXY_URL", "PROXY_URL")
	_ = v.BindEnv("proxy.api_key", "BEAUTYOPS_PROXY_API_KEY", "PROXY_API_KEY")
	_ = v.BindEnv("relay.api_key", "BEAUTYOPS_RELAY_API_KEY", "PROXY_API_KEY")

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Naver: NaverConfig{
			BaseURL:           v.GetString("naver.base_url"),
			Grant:             v.GetString("naver.grant"),
			SignatureScheme:   v.GetString("naver.signature_scheme"),
			TokenType:         v.GetString("naver.token_type"),
			AccountID:         v.GetString("naver.account_id"),
			JWTAudience:       v.GetString("naver.jwt_audience"),
			Timezone:          v.GetString("naver.timezone"),
			ClientID:          v.GetString("naver.client_id"),
			ClientSecret:      v.GetString("naver.client_secret"),
			TokenTimeout:      v.GetDuration("naver.token_timeout"),
			PageTimeout:       v.GetDuration("naver.page_timeout"),
			DetailTimeout:     v.GetDuration("naver.detail_timeout"),
			DetailChunkSize:   v.GetInt("naver.detail_chunk_size"),
			DetailWorkers:     v.GetInt("naver.detail_workers"),
			PageLimit:         v.GetInt("naver.page_limit"),
			RequestsPerSecond: v.GetFloat64("naver.requests_per_second"),
			Burst:             v.GetInt("naver.burst"),
		},
		Relay: RelayConfig{
			Port:   v.GetString("relay.port"),
			APIKey: v.GetString("relay.api_key"),
		},
		Proxy: ProxyConfig{
			URL:         v.GetString("proxy.url"),
			APIKey:      v.GetString("proxy.api_key"),
			TestTimeout: v.GetDuration("proxy.test_timeout"),
			SyncTimeout: v.GetDuration("proxy.sync_timeout"),
		},
		Sync: SyncConfig{
			LockTTL:        v.GetDuration("sync.lock_ttl"),
			ProgressBuffer: v.GetInt("sync.progress_buffer"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			Interval:          v.GetDuration("scheduler.interval"),
			LookbackDays:      v.GetInt("scheduler.lookback_days"),
			Channels:          v.GetStringSlice("scheduler.channels"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
		},
		Archive: ArchiveConfig{
			Driver:           v.GetString("archive.driver"),
			S3Bucket:         v.GetString("archive.s3_bucket"),
			S3Region:         v.GetString("archive.s3_region"),
			S3Endpoint:       v.GetString("archive.s3_endpoint"),
			S3AccessKey:      v.GetString("archive.s3_access_key"),
			S3SecretKey:      v.GetString("archive.s3_secret_key"),
			S3Prefix:         v.GetString("archive.s3_prefix"),
			S3ForcePathStyle: v.GetBool("archive.s3_force_path_style"),
			MongoURI:         v.GetString("archive.mongo_uri"),
			MongoDatabase:    v.GetString("archive.mongo_database"),
			MongoCollection:  v.GetString("archive.mongo_collection"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeEndpoint: v.GetString("telemetry.pyroscope_endpoint"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "beautyops-ordersync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "beautyops"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 60
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// An empty origin list means no cross-origin requests are allowed until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if cfg.Naver.Timezone == "" {
		cfg.Naver.Timezone = "Asia/Seoul"
	}
	if cfg.Relay.Port == "" {
		cfg.Relay.Port = "8090"
	}
	if cfg.Proxy.TestTimeout == 0 {
		cfg.Proxy.TestTimeout = 30 * time.Second
	}
	if cfg.Proxy.SyncTimeout == 0 {
		cfg.Proxy.SyncTimeout = 5 * time.Minute
	}
	if cfg.Sync.LockTTL == 0 {
		cfg.Sync.LockTTL = 30 * time.Minute
	}
	if cfg.Sync.ProgressBuffer == 0 {
		cfg.Sync.ProgressBuffer = 64
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = time.Hour
	}
	if cfg.Scheduler.LookbackDays == 0 {
		cfg.Scheduler.LookbackDays = 1
	}
	if len(cfg.Scheduler.Channels) == 0 {
		cfg.Scheduler.Channels = []string{"naver"}
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 2
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = ArchiveDriverNone
	}
	if cfg.Archive.S3Region == "" {
		cfg.Archive.S3Region = "ap-northeast-2"
	}
	if cfg.Archive.S3Prefix == "" {
		cfg.Archive.S3Prefix = "raw"
	}
	if cfg.Archive.MongoDatabase == "" {
		cfg.Archive.MongoDatabase = "beautyops"
	}
	if cfg.Archive.MongoCollection == "" {
		cfg.Archive.MongoCollection = "order_payloads"
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeEndpoint == "" {
		cfg.Telemetry.PyroscopeEndpoint = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if _, err := time.LoadLocation(c.Naver.Timezone); err != nil {
		return fmt.Errorf("naver.timezone %q is not a valid location: %w", c.Naver.Timezone, err)
	}
	if (c.Naver.ClientID == "") != (c.Naver.ClientSecret == "") {
		return fmt.Errorf("naver.client_id and naver.client_secret must be set together")
	}

	if c.Proxy.URL != "" {
		u, err := url.Parse(c.Proxy.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("proxy.url must be an absolute http(s) url")
		}
	}

	if c.Sync.ProgressBuffer < 1 {
		return fmt.Errorf("sync.progress_buffer must be positive")
	}
	if c.Scheduler.LookbackDays < 0 {
		return fmt.Errorf("scheduler.lookback_days cannot be negative")
	}

	switch c.Archive.Driver {
	case ArchiveDriverNone:
	case ArchiveDriverS3:
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("archive.s3_bucket is required when archive.driver is s3")
		}
	case ArchiveDriverMongo:
		if c.Archive.MongoURI == "" {
			return fmt.Errorf("archive.mongo_uri is required when archive.driver is mongo")
		}
	default:
		return fmt.Errorf("archive.driver must be one of none, s3, mongo, got %q", c.Archive.Driver)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Proxy.URL != "" && !strings.HasPrefix(c.Proxy.URL, "https://") {
			return fmt.Errorf("proxy.url must use https in production")
		}
		// Full SQL in traces would expose order contents
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// Location returns the configured channel time zone
func (n *NaverConfig) Location() *time.Location {
	if n.Timezone == "" || n.Timezone == "Asia/Seoul" {
		return integration.DefaultChannelLocation()
	}
	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
