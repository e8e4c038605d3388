// Package config loads reelroll settings from command-line flags and
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/reelroll/reelroll/internal/loader"
	"github.com/reelroll/reelroll/internal/pexels"
)

const (
	SourcePexels  = "pexels"
	SourceLibrary = "library"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

func (c configVar[T]) bind(v *viper.Viper) {
	lo.Must0(v.BindEnv(c.flagKey, c.envKey))
	v.SetDefault(c.flagKey, c.defaultValue)
}

type binder interface {
	bind(v *viper.Viper)
}

var (
	port = configVar[int]{
		envKey:       "PORT",
		flagKey:      "port",
		defaultValue: 8080,
	}
	baseURL = configVar[string]{
		envKey:       "BASE_URL",
		flagKey:      "base-url",
		defaultValue: "http://localhost:8080",
	}
	logLevel = configVar[string]{
		envKey:       "LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	source = configVar[string]{
		envKey:       "VIDEO_SOURCE",
		flagKey:      "source",
		defaultValue: SourcePexels,
	}
	pexelsAPIKey = configVar[string]{
		envKey:       "PEXELS_API_KEY",
		flagKey:      "pexels-api-key",
		defaultValue: "",
	}
	pexelsURL = configVar[string]{
		envKey:       "PEXELS_API_URL",
		flagKey:      "pexels-url",
		defaultValue: pexels.DefaultBaseURL,
	}
	redisAddr = configVar[string]{
		envKey:       "REDIS_ADDR",
		flagKey:      "redis-addr",
		defaultValue: "",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	searchCacheTTL = configVar[time.Duration]{
		envKey:       "SEARCH_CACHE_TTL",
		flagKey:      "search-cache-ttl",
		defaultValue: 10 * time.Minute,
	}
	s3Endpoint = configVar[string]{
		envKey:       "S3_ENDPOINT",
		flagKey:      "s3-endpoint",
		defaultValue: "",
	}
	s3PublicEndpoint = configVar[string]{
		envKey:       "S3_PUBLIC_ENDPOINT",
		flagKey:      "s3-public-endpoint",
		defaultValue: "",
	}
	s3Bucket = configVar[string]{
		envKey:       "S3_BUCKET",
		flagKey:      "s3-bucket",
		defaultValue: "",
	}
	s3AccessKey = configVar[string]{
		envKey:       "S3_ACCESS_KEY",
		flagKey:      "s3-access-key",
		defaultValue: "",
	}
	s3SecretKey = configVar[string]{
		envKey:       "S3_SECRET_KEY",
		flagKey:      "s3-secret-key",
		defaultValue: "",
	}
	s3Region = configVar[string]{
		envKey:       "S3_REGION",
		flagKey:      "s3-region",
		defaultValue: "eu-central-1",
	}
	s3Prefix = configVar[string]{
		envKey:       "S3_PREFIX",
		flagKey:      "s3-prefix",
		defaultValue: "",
	}
	geoIPDB = configVar[string]{
		envKey:       "GEOIP_DB",
		flagKey:      "geoip-db",
		defaultValue: "",
	}
	maxRetries = configVar[int]{
		envKey:       "MAX_RETRIES",
		flagKey:      "max-retries",
		defaultValue: loader.DefaultMaxRetries,
	}
	retryDelay = configVar[time.Duration]{
		envKey:       "RETRY_DELAY",
		flagKey:      "retry-delay",
		defaultValue: loader.DefaultDelay,
	}
	rateLimit = configVar[float64]{
		envKey:       "RATE_LIMIT",
		flagKey:      "rate-limit",
		defaultValue: 2,
	}
	rateBurst = configVar[int]{
		envKey:       "RATE_BURST",
		flagKey:      "rate-burst",
		defaultValue: 10,
	}
)

var serverVars = []binder{
	port, baseURL, logLevel, source, pexelsAPIKey, pexelsURL,
	redisAddr, redisPassword, searchCacheTTL,
	s3Endpoint, s3PublicEndpoint, s3Bucket, s3AccessKey, s3SecretKey, s3Region, s3Prefix,
	geoIPDB, maxRetries, retryDelay, rateLimit, rateBurst,
}

// Config holds everything the serve command needs.
type Config struct {
	Port     int    `flag:"port" validate:"min=1,max=65535"`
	BaseURL  string `flag:"base-url" validate:"required,url"`
	LogLevel string `flag:"log-level"`

	Source       string `flag:"source" validate:"oneof=pexels library"`
	PexelsAPIKey string `flag:"pexels-api-key" validate:"required_if=Source pexels"`
	PexelsURL    string `flag:"pexels-url" validate:"omitempty,url"`

	RedisAddr      string        `flag:"redis-addr"`
	RedisPassword  string        `flag:"redis-password"`
	SearchCacheTTL time.Duration `flag:"search-cache-ttl" validate:"gte=0"`

	S3Endpoint       string `flag:"s3-endpoint"`
	S3PublicEndpoint string `flag:"s3-public-endpoint"`
	S3Bucket         string `flag:"s3-bucket" validate:"required_if=Source library"`
	S3AccessKey      string `flag:"s3-access-key"`
	S3SecretKey      string `flag:"s3-secret-key"`
	S3Region         string `flag:"s3-region"`
	S3Prefix         string `flag:"s3-prefix"`

	GeoIPDB string `flag:"geoip-db"`

	MaxRetries int           `flag:"max-retries" validate:"gte=0"`
	RetryDelay time.Duration `flag:"retry-delay" validate:"gte=0"`
	RateLimit  float64       `flag:"rate-limit" validate:"gt=0"`
	RateBurst  int           `flag:"rate-burst" validate:"gte=1"`
}

// RegisterServerFlags adds every serve setting to fs.
func RegisterServerFlags(fs *pflag.FlagSet) {
	fs.Int(port.flagKey, port.defaultValue, "HTTP listen port")
	fs.String(baseURL.flagKey, baseURL.defaultValue, "Public base URL of the server")
	fs.String(logLevel.flagKey, logLevel.defaultValue, "Logging level (DEBUG, INFO, WARN, ERROR)")
	fs.String(source.flagKey, source.defaultValue, "Video source: pexels or library")
	fs.String(pexelsAPIKey.flagKey, pexelsAPIKey.defaultValue, "Pexels API key")
	fs.String(pexelsURL.flagKey, pexelsURL.defaultValue, "Pexels video search endpoint")
	fs.String(redisAddr.flagKey, redisAddr.defaultValue, "Redis address for the search cache; empty disables caching")
	fs.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	fs.Duration(searchCacheTTL.flagKey, searchCacheTTL.defaultValue, "How long cached search pages stay valid")
	fs.String(s3Endpoint.flagKey, s3Endpoint.defaultValue, "S3 endpoint of the clip library")
	fs.String(s3PublicEndpoint.flagKey, s3PublicEndpoint.defaultValue, "S3 endpoint used in presigned clip URLs")
	fs.String(s3Bucket.flagKey, s3Bucket.defaultValue, "S3 bucket of the clip library")
	fs.String(s3AccessKey.flagKey, s3AccessKey.defaultValue, "S3 access key")
	fs.String(s3SecretKey.flagKey, s3SecretKey.defaultValue, "S3 secret key")
	fs.String(s3Region.flagKey, s3Region.defaultValue, "S3 region")
	fs.String(s3Prefix.flagKey, s3Prefix.defaultValue, "Key prefix of clips in the bucket")
	fs.String(geoIPDB.flagKey, geoIPDB.defaultValue, "Path to a MaxMind country database")
	fs.Int(maxRetries.flagKey, maxRetries.defaultValue, "Retries after a failed fetch")
	fs.Duration(retryDelay.flagKey, retryDelay.defaultValue, "Delay between fetch attempts")
	fs.Float64(rateLimit.flagKey, rateLimit.defaultValue, "Requests per second allowed per client")
	fs.Int(rateBurst.flagKey, rateBurst.defaultValue, "Request burst allowed per client")
}

// Load resolves settings with flags taking precedence over environment
// variables, and environment variables over defaults.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	lo.Must0(v.BindPFlags(fs))
	for _, cv := range serverVars {
		cv.bind(v)
	}

	cfg := Config{
		Port:             v.GetInt(port.flagKey),
		BaseURL:          strings.TrimRight(v.GetString(baseURL.flagKey), "/"),
		LogLevel:         v.GetString(logLevel.flagKey),
		Source:           strings.ToLower(v.GetString(source.flagKey)),
		PexelsAPIKey:     v.GetString(pexelsAPIKey.flagKey),
		PexelsURL:        v.GetString(pexelsURL.flagKey),
		RedisAddr:        v.GetString(redisAddr.flagKey),
		RedisPassword:    v.GetString(redisPassword.flagKey),
		SearchCacheTTL:   v.GetDuration(searchCacheTTL.flagKey),
		S3Endpoint:       v.GetString(s3Endpoint.flagKey),
		S3PublicEndpoint: v.GetString(s3PublicEndpoint.flagKey),
		S3Bucket:         v.GetString(s3Bucket.flagKey),
		S3AccessKey:      v.GetString(s3AccessKey.flagKey),
		S3SecretKey:      v.GetString(s3SecretKey.flagKey),
		S3Region:         v.GetString(s3Region.flagKey),
		S3Prefix:         v.GetString(s3Prefix.flagKey),
		GeoIPDB:          v.GetString(geoIPDB.flagKey),
		MaxRetries:       v.GetInt(maxRetries.flagKey),
		RetryDelay:       v.GetDuration(retryDelay.flagKey),
		RateLimit:        v.GetFloat64(rateLimit.flagKey),
		RateBurst:        v.GetInt(rateBurst.flagKey),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("flag")
	})
	return v
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}

	first := validationErrors[0]
	switch first.Tag() {
	case "required":
		return fmt.Errorf("--%s is required", first.Field())
	case "required_if":
		return fmt.Errorf("--%s is required for source %q", first.Field(), c.Source)
	case "oneof":
		return fmt.Errorf("--%s must be one of: %s", first.Field(), first.Param())
	case "gte", "gt", "min", "max":
		return fmt.Errorf("--%s is out of range: %v", first.Field(), first.Value())
	}
	return fmt.Errorf("--%s is invalid: %v", first.Field(), first.Value())
}

// Policy is the retry policy the server-rendered player uses.
func (c Config) Policy() loader.Policy {
	return loader.Policy{
		MaxRetries: c.MaxRetries,
		Delay:      c.RetryDelay,
	}
}

// MediaOrigins lists the hosts video URLs from the configured source point at.
func (c Config) MediaOrigins() []string {
	if c.Source == SourcePexels {
		return []string{"https://videos.pexels.com", "https://images.pexels.com", "https://player.vimeo.com"}
	}

	endpoint := c.S3PublicEndpoint
	if endpoint == "" {
		endpoint = c.S3Endpoint
	}
	u, err := url.Parse(endpoint)
	if endpoint == "" || err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Scheme + "://" + u.Host}
}

// ParseLevel accepts slog level names in any case.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("--%s: %w", logLevel.flagKey, err)
	}
	return l, nil
}
