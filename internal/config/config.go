// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/mcwatch/internal/logger"
	"github.com/woozymasta/mcwatch/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"MCWATCH"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"MCWATCH_DB"`
	Upstream  Upstream      `group:"Upstream Options" namespace:"upstream" env-namespace:"MCWATCH_UPSTREAM"`
	Events    Events        `group:"Event Stream Options" namespace:"events" env-namespace:"MCWATCH_EVENTS"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"MCWATCH_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"MCWATCH_RATE_LIMIT"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"MCWATCH_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token (votes, metrics)"`
	WebToken    string `short:"w" long:"web-token" env:"WEB_TOKEN" description:"API token that page views are attributed to"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"1024"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust CF-Connecting-IP and X-Forwarded-For headers"`
}

// Storage holds database configuration and maintenance tasks.
type Storage struct {
	// betteralign:ignore

	Path          string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"mcwatch.db"`
	RefreshAll    bool   `long:"refresh-all" description:"Re-resolve every stored server as a BOT check and exit"`
	CreateToken   string `long:"create-token" description:"Create an API token with the given name, print it and exit"`
	GenerateCount int    `long:"gen-fake-data" hidden:"true"`
}

// Upstream holds the status provider configuration.
type Upstream struct {
	// betteralign:ignore

	URL     string        `short:"u" long:"url" env:"URL" description:"Base URL of the upstream status provider" default:"https://api.ismcserver.online"`
	Token   string        `long:"token" env:"TOKEN" description:"Authorization token sent to the upstream status provider"`
	Timeout time.Duration `long:"timeout" env:"TIMEOUT" description:"Upper bound for one upstream request" default:"5s"`
}

// Events holds server-sent event stream configuration.
type Events struct {
	// betteralign:ignore

	Buffer    int           `long:"buffer" env:"BUFFER" description:"Per-subscriber event buffer; events are dropped for a full subscriber" default:"16"`
	Heartbeat time.Duration `long:"heartbeat" env:"HEARTBEAT" description:"Interval of keep-alive comments on idle streams" default:"15s"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file, empty disables country detection" default:"mcwatch.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"30"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print(os.Stdout)
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args into a Config and validates it without exiting.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Version {
		return &cfg, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate reports every invalid option at once.
func (c *Config) validate() error {
	// maintenance tasks run without the HTTP surface
	if c.Storage.CreateToken != "" || c.Storage.GenerateCount > 0 {
		return nil
	}

	var problems []error
	if c.Server.WebToken == "" {
		problems = append(problems, errors.New("required flag `-w, --web-token' or environment variable `MCWATCH_WEB_TOKEN` was not specified"))
	}
	if c.Server.AuthToken == "" && !c.Storage.RefreshAll {
		problems = append(problems, errors.New("required flag `-t, --auth-token' or environment variable `MCWATCH_AUTH_TOKEN` was not specified"))
	}
	if u, err := url.Parse(c.Upstream.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Errorf("upstream url must be an absolute http(s) URL, got %q", c.Upstream.URL))
	}
	if c.Upstream.Timeout <= 0 {
		problems = append(problems, fmt.Errorf("upstream timeout must be positive, got %s", c.Upstream.Timeout))
	}
	if c.Events.Buffer < 1 {
		problems = append(problems, fmt.Errorf("events buffer must be at least 1, got %d", c.Events.Buffer))
	}
	if c.RateLimit.HardLimitCount < 1 || c.RateLimit.HardLimitWin <= 0 {
		problems = append(problems, fmt.Errorf("rate limit must allow at least one request per positive window, got %d per %s",
			c.RateLimit.HardLimitCount, c.RateLimit.HardLimitWin))
	}

	return errors.Join(problems...)
}
