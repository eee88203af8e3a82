package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// configRelPath is the config file location relative to the XDG config dirs.
const configRelPath = "mpdtouch/config.yaml"

const defaultMPDPort = "6600"

// Config is the top-level YAML configuration of the mpdtouch daemon.
//
// Defaults and validation live here so the rest of the program can assume a
// well-formed config. The precedence is defaults, file, environment, flags.
type Config struct {
	MPD      MPDConfig      `yaml:"mpd"`
	Remote   RemoteConfig   `yaml:"remote"`
	StatusWS StatusWSConfig `yaml:"status_ws"`
	Frontend FrontendConfig `yaml:"frontend"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type MPDConfig struct {
	Network        string `yaml:"network"` // tcp | unix
	Address        string `yaml:"address"`
	Password       string `yaml:"password"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	MaxFailures    int    `yaml:"max_failures"`
}

type RemoteConfig struct {
	// Port is optional; nil disables the UDP listener.
	Port *int   `yaml:"port"`
	Bind string `yaml:"bind"`
}

type StatusWSConfig struct {
	// Listen is the HTTP listen address; empty disables the server.
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

type FrontendConfig struct {
	VolumeStep int `yaml:"volume_step"`
	PageSize   int `yaml:"page_size"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		MPD: MPDConfig{
			Network:        "tcp",
			Address:        "localhost:" + defaultMPDPort,
			PollIntervalMS: 100,
			MaxFailures:    5,
		},
		StatusWS: StatusWSConfig{
			Path: "/ws",
		},
		Frontend: FrontendConfig{
			VolumeStep: 5,
			PageSize:   10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the
// defaults. Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		// An empty file decodes to io.EOF; that simply means "all defaults".
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file in the XDG search
// path.
func findConfigFile() (string, bool) {
	p, err := xdg.SearchConfigFile(configRelPath)
	if err != nil {
		return "", false
	}
	return p, true
}

// defaultConfigPath returns the user config path, creating its directory.
func defaultConfigPath() (string, error) {
	return xdg.ConfigFile(configRelPath)
}

// loadConfig resolves the config file (explicit path or XDG search) and
// returns it with the path actually used. No file at all means defaults.
func loadConfig(explicit string) (Config, string, error) {
	if explicit != "" {
		cfg, err := LoadConfigFile(explicit)
		return cfg, explicit, err
	}
	if p, ok := findConfigFile(); ok {
		cfg, err := LoadConfigFile(p)
		return cfg, p, err
	}
	return DefaultConfig(), "", nil
}

const configHeader = `# mpdtouch configuration
#
# remote.port enables the UDP remote control listener when set.
# status_ws.listen enables the status websocket server when set (e.g. ":8090").
`

// writeDefaultConfig writes the defaults to path. It refuses to replace an
// existing file.
func writeDefaultConfig(path string) error {
	body, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config file %s already exists", path)
		}
		return fmt.Errorf("create config file: %w", err)
	}
	if _, err := f.WriteString(configHeader + string(body)); err != nil {
		f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}

// ApplyEnv applies MPD_HOST and MPD_PORT the way mpc does: MPD_HOST may be
// "password@host" and an absolute path selects a unix socket.
func (c *Config) ApplyEnv(getenv func(string) string) {
	host := getenv("MPD_HOST")
	port := getenv("MPD_PORT")

	if host != "" {
		if at := strings.LastIndex(host, "@"); at >= 0 {
			c.MPD.Password = host[:at]
			host = host[at+1:]
		}
	}

	switch {
	case strings.HasPrefix(host, "/"):
		c.MPD.Network = "unix"
		c.MPD.Address = host
	case host != "":
		if port == "" {
			port = defaultMPDPort
		}
		c.MPD.Network = "tcp"
		c.MPD.Address = net.JoinHostPort(host, port)
	case port != "" && c.MPD.Network == "tcp":
		h, _, err := net.SplitHostPort(c.MPD.Address)
		if err != nil {
			h = c.MPD.Address
		}
		c.MPD.Address = net.JoinHostPort(h, port)
	}
}

// FlagOverrides carries flag values; each non-nil pointer is applied, even
// when it holds a zero value.
type FlagOverrides struct {
	LogLevel   *string
	MPDAddress *string
	MPDNetwork *string
	RemotePort *int
	WSListen   *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.MPDAddress != nil {
		cfg.MPD.Address = *o.MPDAddress
	}
	if o.MPDNetwork != nil {
		cfg.MPD.Network = *o.MPDNetwork
	}
	if o.RemotePort != nil {
		port := *o.RemotePort
		cfg.Remote.Port = &port
	}
	if o.WSListen != nil {
		cfg.StatusWS.Listen = *o.WSListen
	}
}

// Validate checks config invariants and returns a user-friendly error. Call
// it after defaults, file, environment and overrides are applied.
func (c *Config) Validate() error {
	// MPD
	if c.MPD.Network != "tcp" && c.MPD.Network != "unix" {
		return fmt.Errorf("mpd.network must be %q or %q", "tcp", "unix")
	}
	if c.MPD.Address == "" {
		return errors.New("mpd.address must not be empty")
	}
	if c.MPD.PollIntervalMS < 1 || c.MPD.PollIntervalMS > 10000 {
		return errors.New("mpd.poll_interval_ms must be between 1 and 10000")
	}
	if c.MPD.MaxFailures < 1 {
		return errors.New("mpd.max_failures must be >= 1")
	}

	// Remote
	if c.Remote.Port != nil && (*c.Remote.Port < 1 || *c.Remote.Port > 65535) {
		return errors.New("remote.port must be between 1 and 65535")
	}

	// Status websocket
	if c.StatusWS.Listen != "" && !strings.HasPrefix(c.StatusWS.Path, "/") {
		return errors.New("status_ws.path must start with /")
	}

	// Frontend
	if c.Frontend.VolumeStep < 1 || c.Frontend.VolumeStep > 100 {
		return errors.New("frontend.volume_step must be between 1 and 100")
	}
	if c.Frontend.PageSize < 1 {
		return errors.New("frontend.page_size must be >= 1")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// PollInterval returns the coordinator's bounded wait.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.MPD.PollIntervalMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
