package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an optional .env file for local runs).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Webhook WebhookConfig
	Mgmt    MgmtAuthConfig
	Secrets SecretsConfig
	SIP     SIPConfig
	Carrier CarrierConfig
}

type AppConfig struct {
	Env  string
	Port int

	// DefaultAgentID takes calls for DIDs with no binding. Optional; when
	// empty such calls fail routing and no agent is dispatched.
	DefaultAgentID string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// WebhookConfig controls inbound platform webhook verification.
type WebhookConfig struct {
	// Keys maps API key -> API secret. More than one pair may be active
	// at once so the platform credential can be rotated without a gap.
	Keys map[string]string

	// Enabled gates the whole telephony webhook surface. When false the
	// endpoint answers 503 and nothing is processed.
	Enabled bool

	// EventTTL bounds the idempotency set: event ids older than the
	// platform's redelivery window can be forgotten.
	EventTTL time.Duration
}

type MgmtAuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type SecretsConfig struct {
	// Key is the 32-byte AES key for credential sealing, base64 (std) encoded
	// in SECRETBOX_KEY.
	Key []byte
}

// SIPConfig describes the platform SIP control surface and the fixed names
// of the resources this process reconciles.
type SIPConfig struct {
	ControlURL string
	APIKey     string
	APISecret  string

	// InboundURI is the platform's SIP ingress, handed to carriers as the
	// origination target for attached numbers (e.g. "sip.example.com:5060").
	InboundURI string

	TrunkName        string
	DispatchRuleName string
	RoomPrefix       string

	// IdentityPrefix classifies webhook participants as SIP legs.
	IdentityPrefix string
	// AcceptAllJoins forces every participant_joined to count as a SIP leg.
	// Useful in single-purpose deployments where only SIP traffic exists.
	AcceptAllJoins bool
}

type CarrierConfig struct {
	// HTTPTimeout applies per outbound carrier request.
	HTTPTimeout time.Duration

	// TrunkName labels the trunk-like resource this platform creates inside
	// each customer's carrier account.
	TrunkName string
}

func Load() (Config, error) {
	// Best-effort .env for local runs; real env always wins.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	keys, err := parseKeyPairs(os.Getenv("WEBHOOK_API_KEYS"))
	if err != nil {
		parseErrs = append(parseErrs, err)
	}
	c.Webhook.Keys = keys
	c.Webhook.Enabled = boolOrDefault("TELEPHONY_ENABLED", true)
	c.Webhook.EventTTL = durationOrDefault("WEBHOOK_EVENT_TTL", 48*time.Hour)

	c.Mgmt.JWTSecret = os.Getenv("MGMT_JWT_SECRET")
	c.Mgmt.JWTIssuer = strings.TrimSpace(os.Getenv("MGMT_JWT_ISSUER"))

	if raw := strings.TrimSpace(os.Getenv("SECRETBOX_KEY")); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("SECRETBOX_KEY must be base64: %w", err))
		}
		c.Secrets.Key = key
	}

	c.SIP.ControlURL = strings.TrimSpace(os.Getenv("SIP_CONTROL_URL"))
	c.SIP.APIKey = strings.TrimSpace(os.Getenv("SIP_API_KEY"))
	c.SIP.APISecret = os.Getenv("SIP_API_SECRET")
	c.SIP.InboundURI = strings.TrimSpace(os.Getenv("SIP_INBOUND_URI"))
	c.SIP.TrunkName = stringOrDefault("SIP_TRUNK_NAME", "byoc-inbound")
	c.SIP.DispatchRuleName = stringOrDefault("SIP_DISPATCH_RULE_NAME", "byoc-dispatch")
	c.SIP.RoomPrefix = stringOrDefault("SIP_ROOM_PREFIX", "call-")
	c.SIP.IdentityPrefix = stringOrDefault("SIP_IDENTITY_PREFIX", "sip_")
	c.SIP.AcceptAllJoins = boolOrDefault("SIP_ACCEPT_ALL_JOINS", false)

	c.Carrier.HTTPTimeout = durationOrDefault("CARRIER_HTTP_TIMEOUT", 10*time.Second)
	c.Carrier.TrunkName = stringOrDefault("CARRIER_TRUNK_NAME", "byoc-platform")
	c.App.DefaultAgentID = strings.TrimSpace(os.Getenv("DEFAULT_AGENT_ID"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if len(c.Webhook.Keys) == 0 {
		errs = append(errs, errors.New("WEBHOOK_API_KEYS is required (key:secret[,key:secret...])"))
	}
	if c.Webhook.EventTTL <= 0 {
		c.Webhook.EventTTL = 48 * time.Hour
	}

	if c.Mgmt.JWTSecret == "" {
		errs = append(errs, errors.New("MGMT_JWT_SECRET is required"))
	}
	if c.IsProduction() && c.Mgmt.JWTIssuer == "" {
		errs = append(errs, errors.New("MGMT_JWT_ISSUER is required in production"))
	}

	if len(c.Secrets.Key) != 32 {
		errs = append(errs, fmt.Errorf("SECRETBOX_KEY must decode to 32 bytes, got %d", len(c.Secrets.Key)))
	}

	if c.SIP.ControlURL == "" {
		errs = append(errs, errors.New("SIP_CONTROL_URL is required"))
	}
	if c.SIP.APIKey == "" || c.SIP.APISecret == "" {
		errs = append(errs, errors.New("SIP_API_KEY and SIP_API_SECRET are required"))
	}
	if c.SIP.InboundURI == "" {
		errs = append(errs, errors.New("SIP_INBOUND_URI is required"))
	}
	if c.SIP.TrunkName == "" || c.SIP.DispatchRuleName == "" {
		errs = append(errs, errors.New("SIP trunk and dispatch rule names must not be empty"))
	}

	if c.Carrier.HTTPTimeout <= 0 {
		c.Carrier.HTTPTimeout = 10 * time.Second
	}
	if c.Carrier.TrunkName == "" {
		c.Carrier.TrunkName = "byoc-platform"
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// parseKeyPairs parses "key:secret[,key:secret...]" into a lookup map.
func parseKeyPairs(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, secret, ok := strings.Cut(pair, ":")
		if !ok || key == "" || secret == "" {
			return nil, fmt.Errorf("WEBHOOK_API_KEYS entry %q must be key:secret", pair)
		}
		out[key] = secret
	}
	return out, nil
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func stringOrDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func boolOrDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durationOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
