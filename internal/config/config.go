package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const (
	defaultPort         = "8123"
	defaultFetchTimeout = 10 * time.Second
	defaultServiceName  = "imageloader"
)

type Config struct {
	port                 string
	sentryDSN            string
	allowedUpstreamHosts []string
	allowedOrigins       []string
	fetchTimeout         time.Duration
	fetchRetryMax        int
	serviceName          string
	googleCloudProject   string
	env                  environment
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

// Host suffixes (e.g. "example.com") images may be fetched from
func (c *Config) AllowedUpstreamHosts() []string {
	return c.allowedUpstreamHosts
}

// Domain suffixes of browser origins allowed to embed images (CORS)
func (c *Config) AllowedOrigins() []string {
	return c.allowedOrigins
}

func (c *Config) FetchTimeout() time.Duration {
	return c.fetchTimeout
}

func (c *Config) FetchRetryMax() int {
	return c.fetchRetryMax
}

func (c *Config) ServiceName() string {
	return c.serviceName
}

// Used to link logs to traces. Empty when not running in Google Cloud
func (c *Config) GoogleCloudProject() string {
	return c.googleCloudProject
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, port: %s, allowedUpstreamHosts: %v, allowedOrigins: %v, fetchTimeout: %s, fetchRetryMax: %d, ...}",
		string(c.env),
		c.port,
		c.allowedUpstreamHosts,
		c.allowedOrigins,
		c.fetchTimeout,
		c.fetchRetryMax,
	)
}

func parseHostList(raw string) []string {
	hosts := []string{}
	for _, host := range strings.Split(raw, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key, value string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, value)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("IMAGELOADER_ENVIRONMENT")
	if !ok {
		return missingKey("IMAGELOADER_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return invalidValue("IMAGELOADER_ENVIRONMENT", rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	fetchTimeout := defaultFetchTimeout
	if rawTimeout := os.Getenv("FETCH_TIMEOUT"); rawTimeout != "" {
		parsed, err := time.ParseDuration(rawTimeout)
		if err != nil || parsed <= 0 {
			return invalidValue("FETCH_TIMEOUT", rawTimeout)
		}
		fetchTimeout = parsed
	}

	fetchRetryMax := 0
	if rawRetryMax := os.Getenv("FETCH_RETRY_MAX"); rawRetryMax != "" {
		parsed, err := strconv.Atoi(rawRetryMax)
		if err != nil || parsed < 0 {
			return invalidValue("FETCH_RETRY_MAX", rawRetryMax)
		}
		fetchRetryMax = parsed
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	googleCloudProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	sentryDSN := os.Getenv("SENTRY_DSN")
	allowedUpstreamHosts := parseHostList(os.Getenv("ALLOWED_UPSTREAM_HOSTS"))
	allowedOrigins := parseHostList(os.Getenv("ALLOWED_ORIGINS"))

	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
		if len(allowedUpstreamHosts) == 0 {
			return missingKey("ALLOWED_UPSTREAM_HOSTS")
		}
	}

	return Config{
		port:                 port,
		sentryDSN:            sentryDSN,
		allowedUpstreamHosts: allowedUpstreamHosts,
		allowedOrigins:       allowedOrigins,
		fetchTimeout:         fetchTimeout,
		fetchRetryMax:        fetchRetryMax,
		serviceName:          serviceName,
		googleCloudProject:   googleCloudProject,
		env:                  env,
	}, nil
}
