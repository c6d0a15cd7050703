// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/herald/internal/logger"
	"github.com/woozymasta/herald/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"HERALD"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"HERALD_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"HERALD_GEOIP"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"HERALD_A2S"`
	Poll      Poll          `group:"Poll Options" namespace:"poll" env-namespace:"HERALD_POLL"`
	Targets   Targets       `group:"Target Options" env-namespace:"HERALD"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"HERALD_RATE_LIMIT"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"HERALD_LOG"`

	FakeListen string `long:"fake-listen" env:"HERALD_FAKE_LISTEN" hidden:"true"`
	Version    bool   `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"1024"`
	QueueSize   int    `long:"queue-size" env:"QUEUE_SIZE" description:"Target registration queue size" default:"64"`
	Workers     int    `long:"workers" env:"WORKERS" description:"Target registration workers" default:"2"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path         string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"herald.db"`
	PruneOffline bool   `long:"prune-offline" description:"Delete statuses of servers that are currently offline and exit"`
	PruneUnknown bool   `long:"prune-unknown" description:"Delete statuses of servers missing from the target list and exit"`
	CheckAll     bool   `long:"check-all" description:"Query every configured target once, store the results and exit"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"herald.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Do not tag servers with a country code"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Timeout of every single response wait" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response datagram buffer size" default:"1400"`
}

// Poll holds the periodic status poller configuration.
type Poll struct {
	// betteralign:ignore

	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Interval between poll cycles" default:"1m"`
	Workers  int           `long:"workers" env:"WORKERS" description:"Concurrent queries per cycle" default:"10"`
	Rate     float64       `long:"rate" env:"RATE" description:"Max queries per second, 0 for unlimited" default:"20"`
}

// Targets holds the list of game servers to poll.
type Targets struct {
	// betteralign:ignore

	List []string `short:"T" long:"target" env:"TARGETS" env-delim:"," description:"Server to poll as host:port or name=host:port, repeatable"`
	File string   `long:"targets-file" env:"TARGETS_FILE" description:"YAML file with servers to poll, reloaded on change"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"30"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
}

// ErrNoAuthToken is returned when the admin token is missing.
var ErrNoAuthToken = errors.New("required flag `-t, --auth-token' or environment variable `HERALD_AUTH_TOKEN' was not specified")

// Maintenance reports whether a one-shot database task was requested.
func (c *Config) Maintenance() bool {
	return c.Storage.PruneOffline || c.Storage.PruneUnknown || c.Storage.CheckAll
}

// Validate checks values the flag parser cannot.
func (c *Config) Validate() error {
	if c.Server.AuthToken == "" && !c.Maintenance() {
		return ErrNoAuthToken
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.Workers < 1 {
		return fmt.Errorf("poll workers must be at least 1, got %d", c.Poll.Workers)
	}
	if c.Poll.Rate < 0 {
		return fmt.Errorf("poll rate must not be negative, got %g", c.Poll.Rate)
	}
	if c.Server.Workers < 1 || c.Server.QueueSize < 1 {
		return fmt.Errorf("registration workers and queue size must be at least 1")
	}

	return nil
}

// ParseArgs reads the configuration from args and environment variables.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Parse reads the configuration from os.Args and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	return cfg
}
