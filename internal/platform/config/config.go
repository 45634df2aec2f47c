package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultPortalLocale      = "en-US"
	defaultPortalCurrency    = "USD"
	defaultCurrencyDecimals  = 2
	defaultTermDays          = 365
	defaultRenewalWindowDays = 30
	defaultRenewalGraceDays  = 30
	defaultOfferCacheTTL     = 5 * time.Minute

	defaultPayPalBaseURL    = "https://api-m.sandbox.paypal.com"
	defaultPayUMoneyBaseURL = "https://www.payumoney.com"

	defaultAuthJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	defaultAuthIssuer  = "https://accounts.google.com"

	secretScheme = "sm://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firestore     FirestoreConfig
	Blob          BlobConfig
	PartnerCenter PartnerCenterConfig
	PayPal        PayPalConfig
	PayUMoney     PayUMoneyConfig
	Stripe        StripeConfig
	Portal        PortalConfig
	Auth          AuthConfig
	Events        EventsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// BlobConfig names the bucket and object holding the partner offer catalog.
type BlobConfig struct {
	Bucket       string
	OffersObject string
}

// PartnerCenterConfig holds credentials for the commerce platform partner API.
type PartnerCenterConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// PayPalConfig holds the redirect gateway's REST credentials.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// PayUMoneyConfig holds the regional provider's API settings.
type PayUMoneyConfig struct {
	BaseURL    string
	ClientID   string
	AuthHeader string
}

// StripeConfig holds the card checkout gateway key.
type StripeConfig struct {
	APIKey string
}

// PortalConfig carries storefront-wide commerce settings.
type PortalConfig struct {
	Locale            string
	Currency          string
	CurrencyDecimals  int
	TermDays          int
	RenewalWindowDays int
	RenewalGraceDays  int
	OfferCacheTTL     time.Duration
	BaseURL           string
}

// AuthConfig groups bearer-token verification settings.
type AuthConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// EventsConfig names the commerce event topic.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// SecretResolver resolves sm:// references into secret values.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to the SecretResolver interface.
type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError reports configuration fields that failed validation.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields: %s", strings.Join(e.fields, ", "))
}

// Fields lists the invalid field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError wraps a failure resolving one secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: failed to resolve secret %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided
// maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// EnvironmentValues returns the effective key/value environment map after
// applying the same precedence rules as Load (dotenv < OS env < explicit map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
				continue
			}
			values[strings.TrimSpace(parts[0])] = parts[1]
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env
// overrides, environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STORE_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "STORE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STORE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STORE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STORE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STORE_FIRESTORE_EMULATOR_HOST", ""),
		},
		Blob: BlobConfig{
			Bucket:       stringWithDefault(lookup, "STORE_BLOB_BUCKET", ""),
			OffersObject: stringWithDefault(lookup, "STORE_BLOB_OFFERS_OBJECT", "partneroffers.json"),
		},
		PartnerCenter: PartnerCenterConfig{
			BaseURL:      stringWithDefault(lookup, "STORE_PARTNER_CENTER_BASE_URL", ""),
			TokenURL:     stringWithDefault(lookup, "STORE_PARTNER_CENTER_TOKEN_URL", ""),
			ClientID:     stringWithDefault(lookup, "STORE_PARTNER_CENTER_CLIENT_ID", ""),
			ClientSecret: stringWithDefault(lookup, "STORE_PARTNER_CENTER_CLIENT_SECRET", ""),
		},
		PayPal: PayPalConfig{
			BaseURL:      stringWithDefault(lookup, "STORE_PAYPAL_BASE_URL", defaultPayPalBaseURL),
			ClientID:     stringWithDefault(lookup, "STORE_PAYPAL_CLIENT_ID", ""),
			ClientSecret: stringWithDefault(lookup, "STORE_PAYPAL_CLIENT_SECRET", ""),
		},
		PayUMoney: PayUMoneyConfig{
			BaseURL:    stringWithDefault(lookup, "STORE_PAYUMONEY_BASE_URL", defaultPayUMoneyBaseURL),
			ClientID:   stringWithDefault(lookup, "STORE_PAYUMONEY_CLIENT_ID", ""),
			AuthHeader: stringWithDefault(lookup, "STORE_PAYUMONEY_AUTH_HEADER", ""),
		},
		Stripe: StripeConfig{
			APIKey: stringWithDefault(lookup, "STORE_STRIPE_API_KEY", ""),
		},
		Portal: PortalConfig{
			Locale:            stringWithDefault(lookup, "STORE_PORTAL_LOCALE", defaultPortalLocale),
			Currency:          stringWithDefault(lookup, "STORE_PORTAL_CURRENCY", defaultPortalCurrency),
			CurrencyDecimals:  intWithDefault(lookup, "STORE_PORTAL_CURRENCY_DECIMALS", defaultCurrencyDecimals),
			TermDays:          intWithDefault(lookup, "STORE_PORTAL_TERM_DAYS", defaultTermDays),
			RenewalWindowDays: intWithDefault(lookup, "STORE_PORTAL_RENEWAL_WINDOW_DAYS", defaultRenewalWindowDays),
			RenewalGraceDays:  intWithDefault(lookup, "STORE_PORTAL_RENEWAL_GRACE_DAYS", defaultRenewalGraceDays),
			OfferCacheTTL:     durationWithDefault(lookup, "STORE_PORTAL_OFFER_CACHE_TTL", defaultOfferCacheTTL),
			BaseURL:           stringWithDefault(lookup, "STORE_PORTAL_BASE_URL", ""),
		},
		Auth: AuthConfig{
			JWKSURL:  stringWithDefault(lookup, "STORE_AUTH_JWKS_URL", defaultAuthJWKSURL),
			Issuer:   stringWithDefault(lookup, "STORE_AUTH_ISSUER", defaultAuthIssuer),
			Audience: stringWithDefault(lookup, "STORE_AUTH_AUDIENCE", ""),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "STORE_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "STORE_EVENTS_TOPIC", "commerce-events"),
		},
	}

	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}

	// Resolve secrets when values reference Secret Manager.
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PartnerCenter.ClientSecret", &cfg.PartnerCenter.ClientSecret},
		{"PayPal.ClientSecret", &cfg.PayPal.ClientSecret},
		{"PayUMoney.AuthHeader", &cfg.PayUMoney.AuthHeader},
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !strings.HasPrefix(value, secretScheme) {
		return value, nil
	}
	ref := strings.TrimPrefix(value, secretScheme)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Portal.CurrencyDecimals < 0 || cfg.Portal.CurrencyDecimals > 4 {
		invalid = append(invalid, "Portal.CurrencyDecimals")
	}
	if cfg.Portal.TermDays <= 0 {
		invalid = append(invalid, "Portal.TermDays")
	}
	if cfg.Portal.RenewalWindowDays < 0 {
		invalid = append(invalid, "Portal.RenewalWindowDays")
	}
	if cfg.Portal.RenewalGraceDays < 0 {
		invalid = append(invalid, "Portal.RenewalGraceDays")
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
