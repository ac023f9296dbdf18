package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	Version   string `env:"VERSION" envDefault:"dev"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" envDefault:"65536"`

	DatabaseURL   string `env:"DATABASE_URL"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns    int32  `env:"DB_MIN_CONNS" envDefault:"0"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB" envDefault:"false"`

	// CachePath is the SQLite file of the durable cache tier. Empty keeps the
	// durable tier in memory.
	CachePath       string `env:"CACHE_PATH"`
	CacheKeyPrefix  string `env:"CACHE_KEY_PREFIX" envDefault:"glowlogy_"`
	CacheQuotaPages int    `env:"CACHE_QUOTA_PAGES" envDefault:"0"`

	PolicyFile string `env:"POLICY_FILE"`

	// SharedRateLimits backs the in-process windows with Postgres so limits
	// hold across replicas. Requires DatabaseURL.
	SharedRateLimits bool          `env:"SHARED_RATE_LIMITS" envDefault:"false"`
	BatchWindow      time.Duration `env:"BATCH_WINDOW" envDefault:"10ms"`
	JanitorInterval  time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"glowlogy.events"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	IdentitySecret   string `env:"IDENTITY_SECRET"`
	IdentityIssuer   string `env:"IDENTITY_ISSUER"`
	IdentityAudience string `env:"IDENTITY_AUDIENCE"`

	SessionCookie  string `env:"SESSION_COOKIE" envDefault:"glowlogy_session"`
	CookieDomain   string `env:"COOKIE_DOMAIN"`
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieSameSite string `env:"COOKIE_SAMESITE" envDefault:"lax"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS" envDefault:"600"`

	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost,http://127.0.0.1"`
	WSOriginRequired bool     `env:"WS_ORIGIN_REQUIRED" envDefault:"true"`
}
