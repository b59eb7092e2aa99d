package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr      string
	ServerPort      int
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	// Platform database (tenant registry, platform users, sessions)
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Tenant databases live on their own server, one database per school.
	TenantDB TenantDBConfig

	// Tenant connection pool
	TenantPool TenantPoolConfig

	// Redis caches tenant registry lookups. Optional.
	Redis RedisConfig

	// JWT
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// MFA for platform operators
	MFAIssuer        string
	MFAEncryptionKey string // hex encoded, 32 bytes

	// Comma separated list of allowed browser origins
	CORSAllowedOrigins []string

	// Root domain schools are served under, e.g. "schoolcrm.app" for
	// greenfield.schoolcrm.app.
	RootDomain string

	// Auth cookies
	CookieDomain string
	CookieSecure bool

	// Bootstrap platform owner, created on first start when no platform
	// user exists.
	BootstrapOwnerEmail    string
	BootstrapOwnerPassword string

	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig
	SessionSecurity SessionSecurityConfig
	PasswordPolicy  PasswordPolicyConfig
}

// TenantDBConfig describes the server that hosts school databases.
type TenantDBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// TenantPoolConfig bounds the number of open school connection pools.
type TenantPoolConfig struct {
	MaxTenants    int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// RedisConfig configures the registry cache.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	RegistryTTL time.Duration
}

// Enabled reports whether a Redis address is set.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// RateLimitConfig holds per-route-group rate limits.
type RateLimitConfig struct {
	Enabled bool

	// Login and MFA verification, per IP
	AuthRequestsPerMinute int
	AuthWindowMinutes     int

	// Token refresh, per IP
	RefreshRequestsPerMinute int
	RefreshWindowMinutes     int

	// Authenticated API calls, per user
	APIRequestsPerMinute int
	APIWindowMinutes     int

	// Spreadsheet exports, per user
	ExportRequestsPerWindow int
	ExportWindowMinutes     int
}

// SecurityHeadersConfig holds response security headers.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// ValidationConfig holds request validation limits.
type ValidationConfig struct {
	MaxRequestBodySize int64
	MaxPageSize        int
}

// SessionSecurityConfig controls refresh token binding.
type SessionSecurityConfig struct {
	FingerprintEnabled bool
	DetectReuse        bool
}

// PasswordPolicyConfig holds password complexity rules.
type PasswordPolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr:      getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort:      getEnvInt("SERVER_PORT", 8080),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),

		// Platform database defaults (matches podman setup: make postgres-start)
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnvInt("DB_PORT", 25432),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "school_crm_platform"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		// JWT defaults
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "school-crm"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		MFAIssuer:        getEnv("MFA_ISSUER", "School CRM"),
		MFAEncryptionKey: getEnv("MFA_ENCRYPTION_KEY", ""),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		RootDomain:         getEnv("ROOT_DOMAIN", ""),

		CookieDomain: getEnv("COOKIE_DOMAIN", ""),
		CookieSecure: getEnvBool("COOKIE_SECURE", true),

		BootstrapOwnerEmail:    getEnv("BOOTSTRAP_OWNER_EMAIL", ""),
		BootstrapOwnerPassword: getEnv("BOOTSTRAP_OWNER_PASSWORD", ""),
	}

	// Tenant databases default to the platform server.
	cfg.TenantDB = TenantDBConfig{
		Host:            getEnv("TENANT_DB_HOST", cfg.DBHost),
		Port:            getEnvInt("TENANT_DB_PORT", cfg.DBPort),
		User:            getEnv("TENANT_DB_USER", cfg.DBUser),
		Password:        getEnv("TENANT_DB_PASSWORD", cfg.DBPassword),
		SSLMode:         getEnv("TENANT_DB_SSLMODE", cfg.DBSSLMode),
		MaxOpenConns:    getEnvInt("TENANT_DB_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    getEnvInt("TENANT_DB_MAX_IDLE_CONNS", 2),
		ConnMaxIdleTime: getEnvDuration("TENANT_DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
	}

	cfg.TenantPool = TenantPoolConfig{
		MaxTenants:    getEnvInt("TENANT_POOL_MAX_TENANTS", 100),
		IdleTimeout:   getEnvDuration("TENANT_POOL_IDLE_TIMEOUT", 10*time.Minute),
		SweepInterval: getEnvDuration("TENANT_POOL_SWEEP_INTERVAL", time.Minute),
	}

	cfg.Redis = RedisConfig{
		Addr:        getEnv("REDIS_ADDR", ""),
		Password:    getEnv("REDIS_PASSWORD", ""),
		DB:          getEnvInt("REDIS_DB", 0),
		RegistryTTL: getEnvDuration("REDIS_REGISTRY_TTL", 30*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:                  getEnvBool("RATE_LIMIT_ENABLED", true),
		AuthRequestsPerMinute:    getEnvInt("RATE_LIMIT_AUTH_REQUESTS", 10),
		AuthWindowMinutes:        getEnvInt("RATE_LIMIT_AUTH_WINDOW_MINUTES", 1),
		RefreshRequestsPerMinute: getEnvInt("RATE_LIMIT_REFRESH_REQUESTS", 30),
		RefreshWindowMinutes:     getEnvInt("RATE_LIMIT_REFRESH_WINDOW_MINUTES", 1),
		APIRequestsPerMinute:     getEnvInt("RATE_LIMIT_API_REQUESTS", 300),
		APIWindowMinutes:         getEnvInt("RATE_LIMIT_API_WINDOW_MINUTES", 1),
		ExportRequestsPerWindow:  getEnvInt("RATE_LIMIT_EXPORT_REQUESTS", 5),
		ExportWindowMinutes:      getEnvInt("RATE_LIMIT_EXPORT_WINDOW_MINUTES", 10),
	}

	cfg.SecurityHeaders = SecurityHeadersConfig{
		Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
		CSP:                getEnv("SECURITY_HEADERS_CSP", "default-src 'none'; frame-ancestors 'none'"),
		HSTSMaxAge:         getEnvInt("SECURITY_HEADERS_HSTS_MAX_AGE", 31536000),
		FrameOptions:       getEnv("SECURITY_HEADERS_FRAME_OPTIONS", "DENY"),
		ContentTypeOptions: getEnv("SECURITY_HEADERS_CONTENT_TYPE_OPTIONS", "nosniff"),
		XSSProtection:      getEnv("SECURITY_HEADERS_XSS_PROTECTION", "0"),
		ReferrerPolicy:     getEnv("SECURITY_HEADERS_REFERRER_POLICY", "no-referrer"),
		PermissionsPolicy:  getEnv("SECURITY_HEADERS_PERMISSIONS_POLICY", "geolocation=(), camera=(), microphone=()"),
	}

	cfg.Validation = ValidationConfig{
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		MaxPageSize:        getEnvInt("MAX_PAGE_SIZE", 200),
	}

	cfg.SessionSecurity = SessionSecurityConfig{
		FingerprintEnabled: getEnvBool("SESSION_FINGERPRINT_ENABLED", true),
		DetectReuse:        getEnvBool("SESSION_DETECT_REUSE", false),
	}

	cfg.PasswordPolicy = PasswordPolicyConfig{
		MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 10),
		RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", false),
		RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", false),
		RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", true),
		RequireSpecial:   getEnvBool("PASSWORD_REQUIRE_SPECIAL", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MFAEncryptionKey != "" {
		if _, err := c.MFAKey(); err != nil {
			return err
		}
	}
	if c.TenantPool.MaxTenants < 1 {
		return fmt.Errorf("TENANT_POOL_MAX_TENANTS must be at least 1")
	}
	if c.TenantPool.IdleTimeout <= 0 {
		return fmt.Errorf("TENANT_POOL_IDLE_TIMEOUT must be positive")
	}
	if c.TenantDB.MaxOpenConns < 1 {
		return fmt.Errorf("TENANT_DB_MAX_OPEN_CONNS must be at least 1")
	}
	return nil
}

// MFAKey decodes MFAEncryptionKey. It returns nil when MFA is not configured.
func (c *Config) MFAKey() ([]byte, error) {
	if c.MFAEncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.MFAEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
