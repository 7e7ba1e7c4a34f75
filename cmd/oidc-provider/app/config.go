package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/keys"
	"github.com/giantswarm/jwt-oidc/storage/memory"
)

// Configuration keys. Each is a flag name and is also read from the
// environment variables listed in envBindings.
const (
	keyClientID          = "client-id"
	keyClientSecret      = "client-secret"
	keyClientSecretHash  = "client-secret-hash"
	keyBaseURL           = "base-url"
	keyPrivateKey        = "private-key"
	keyPrivateKeyFile    = "private-key-file"
	keyRedisURL          = "redis-url"
	keyRedisKeyPrefix    = "redis-key-prefix"
	keyReplayMaxEntries  = "replay-max-entries"
	keyListenAddress     = "listen-address"
	keyLogFormat         = "log-format"
	keyDebug             = "debug"
	keyAudit             = "audit"
	keyRateLimitRPS      = "rate-limit-rps"
	keyRateLimitBurst    = "rate-limit-burst"
	keyTrustProxy        = "trust-proxy"
	keyTrustedProxyCount = "trusted-proxy-count"
	keyMetricsEnabled    = "metrics-enabled"
	keyMetricsExporter   = "metrics-exporter"
	keyLogClientIPs      = "log-client-ips"
	keyShutdownTimeout   = "shutdown-timeout"
)

// envBindings maps configuration keys to environment variables. When several
// variables are listed the first one set wins.
var envBindings = map[string][]string{
	keyClientID:          {"CLIENT_ID"},
	keyClientSecret:      {"CLIENT_SECRET"},
	keyClientSecretHash:  {"CLIENT_SECRET_HASH"},
	keyBaseURL:           {"BASE_URL", "NEXT_PUBLIC_BASE_URL"},
	keyPrivateKey:        {"PRIVATE_KEY"},
	keyPrivateKeyFile:    {"PRIVATE_KEY_FILE"},
	keyRedisURL:          {"REDIS_URL"},
	keyRedisKeyPrefix:    {"REDIS_KEY_PREFIX"},
	keyReplayMaxEntries:  {"REPLAY_MAX_ENTRIES"},
	keyListenAddress:     {"LISTEN_ADDRESS"},
	keyLogFormat:         {"LOG_FORMAT"},
	keyDebug:             {"DEBUG"},
	keyAudit:             {"AUDIT_LOGGING"},
	keyRateLimitRPS:      {"RATE_LIMIT_RPS"},
	keyRateLimitBurst:    {"RATE_LIMIT_BURST"},
	keyTrustProxy:        {"TRUST_PROXY"},
	keyTrustedProxyCount: {"TRUSTED_PROXY_COUNT"},
	keyMetricsEnabled:    {"METRICS_ENABLED"},
	keyMetricsExporter:   {"METRICS_EXPORTER"},
	keyLogClientIPs:      {"LOG_CLIENT_IPS"},
	keyShutdownTimeout:   {"SHUTDOWN_TIMEOUT"},
}

// options is the resolved binary configuration.
type options struct {
	ClientID         string
	ClientSecret     string
	ClientSecretHash string
	BaseURL          string

	PrivateKey     string
	PrivateKeyFile string

	RedisURL         string
	RedisKeyPrefix   string
	ReplayMaxEntries int

	ListenAddress   string
	ShutdownTimeout time.Duration

	LogFormat string
	Debug     bool
	Audit     bool

	RateLimitRPS      float64
	RateLimitBurst    int
	TrustProxy        bool
	TrustedProxyCount int

	MetricsEnabled  bool
	MetricsExporter string
	LogClientIPs    bool
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.String(keyClientID, "", "Registered client id")
	flags.String(keyClientSecret, "", "Registered client secret")
	flags.String(keyClientSecretHash, "", "bcrypt hash of the client secret, used instead of --client-secret")
	flags.String(keyBaseURL, "", "Public base URL of the provider, used as the issuer")
	flags.String(keyPrivateKey, "", "PEM encoded RSA signing key")
	flags.String(keyPrivateKeyFile, "", "Path to a PEM encoded RSA signing key")
	flags.String(keyRedisURL, "", "redis:// or rediss:// URL of the replay cache; in-memory when empty")
	flags.String(keyRedisKeyPrefix, "", "Key prefix in the replay cache (default \"oidc:\")")
	flags.Int(keyReplayMaxEntries, memory.DefaultMaxEntries, "Consumed ids held by the in-memory replay cache; the soonest expiring are dropped when full")
	flags.String(keyListenAddress, ":8080", "Address to listen on")
	flags.Duration(keyShutdownTimeout, 30*time.Second, "Time allowed for in-flight requests on shutdown")
	flags.String(keyLogFormat, "json", "Log format: json or text")
	flags.Bool(keyDebug, false, "Enable debug logging")
	flags.Bool(keyAudit, true, "Write security audit events to the log")
	flags.Float64(keyRateLimitRPS, 10, "Token endpoint requests per second per client IP; 0 disables rate limiting")
	flags.Int(keyRateLimitBurst, 20, "Token endpoint burst per client IP")
	flags.Bool(keyTrustProxy, false, "Take the client IP from X-Forwarded-For")
	flags.Int(keyTrustedProxyCount, 1, "Number of reverse proxies in front of the provider")
	flags.Bool(keyMetricsEnabled, true, "Enable metrics and tracing")
	flags.String(keyMetricsExporter, instrumentation.ExporterPrometheus, "Metrics exporter: prometheus or none")
	flags.Bool(keyLogClientIPs, false, "Record client IPs on traces")
}

// bindConfig binds flags and environment variables into v.
func bindConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

func loadOptions(v *viper.Viper) (*options, error) {
	opts := &options{
		ClientID:          v.GetString(keyClientID),
		ClientSecret:      v.GetString(keyClientSecret),
		ClientSecretHash:  v.GetString(keyClientSecretHash),
		BaseURL:           strings.TrimRight(v.GetString(keyBaseURL), "/"),
		PrivateKey:        v.GetString(keyPrivateKey),
		PrivateKeyFile:    v.GetString(keyPrivateKeyFile),
		RedisURL:          v.GetString(keyRedisURL),
		RedisKeyPrefix:    v.GetString(keyRedisKeyPrefix),
		ReplayMaxEntries:  v.GetInt(keyReplayMaxEntries),
		ListenAddress:     v.GetString(keyListenAddress),
		ShutdownTimeout:   v.GetDuration(keyShutdownTimeout),
		LogFormat:         strings.ToLower(v.GetString(keyLogFormat)),
		Debug:             v.GetBool(keyDebug),
		Audit:             v.GetBool(keyAudit),
		RateLimitRPS:      v.GetFloat64(keyRateLimitRPS),
		RateLimitBurst:    v.GetInt(keyRateLimitBurst),
		TrustProxy:        v.GetBool(keyTrustProxy),
		TrustedProxyCount: v.GetInt(keyTrustedProxyCount),
		MetricsEnabled:    v.GetBool(keyMetricsEnabled),
		MetricsExporter:   v.GetString(keyMetricsExporter),
		LogClientIPs:      v.GetBool(keyLogClientIPs),
	}

	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required (BASE_URL or NEXT_PUBLIC_BASE_URL)")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("client id is required (CLIENT_ID)")
	}
	if opts.ClientSecret == "" && opts.ClientSecretHash == "" {
		return nil, fmt.Errorf("client secret is required (CLIENT_SECRET)")
	}
	switch opts.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.LogFormat)
	}
	switch opts.MetricsExporter {
	case instrumentation.ExporterPrometheus, instrumentation.ExporterNone:
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", opts.MetricsExporter)
	}
	return opts, nil
}

func newLogger(w io.Writer, format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// loadKeys resolves the signing key: inline PEM first, then the key file.
// Without either an ephemeral key is generated.
func loadKeys(opts *options, logger *slog.Logger) (*keys.Manager, error) {
	switch {
	case opts.PrivateKey != "":
		return keys.LoadPEM([]byte(opts.PrivateKey))
	case opts.PrivateKeyFile != "":
		return keys.LoadFile(opts.PrivateKeyFile)
	}

	logger.Warn("⚠️  No signing key configured, generating an ephemeral key",
		"risk", "Issued credentials become invalid on restart and differ between replicas",
		"recommendation", "Set PRIVATE_KEY or PRIVATE_KEY_FILE")
	return keys.Generate(0)
}
