// ABOUTME: Layered configuration for the server and client binaries
// ABOUTME: Defaults, then anomaly.yaml, then ANOMALY_* environment variables; flags are applied by the commands
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/anomaly-engine/anomaly/internal/script"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFile is read from the working directory when no file is named
	DefaultFile = "anomaly.yaml"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "ANOMALY_"
)

// Log selects the log level and an optional log file
type Log struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file" env:"FILE"`
}

// Server configures anomaly-server
type Server struct {
	Port int    `yaml:"port" env:"PORT"`
	Name string `yaml:"name" env:"NAME"`

	Images  string `yaml:"images" env:"IMAGES"`
	Fonts   string `yaml:"fonts" env:"FONTS"`
	Sounds  string `yaml:"sounds" env:"SOUNDS"`
	Scripts string `yaml:"scripts" env:"SCRIPTS"`

	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	ContentPoll  time.Duration `yaml:"content_poll" env:"CONTENT_POLL"`
	WatchContent bool          `yaml:"watch_content" env:"WATCH_CONTENT"`
	ReloadKey    string        `yaml:"reload_key" env:"RELOAD_KEY"`

	MDNS bool `yaml:"mdns" env:"MDNS"`
	TUI  bool `yaml:"tui" env:"TUI"`

	Log Log `yaml:"log" envPrefix:"LOG_"`
}

// Client configures the anomaly client
type Client struct {
	// Server is host:port or a ws:// URL; empty means browse with mDNS
	Server string `yaml:"server" env:"SERVER"`

	Touch         bool          `yaml:"touch" env:"TOUCH"`
	Volume        int           `yaml:"volume" env:"VOLUME"`
	Audio         bool          `yaml:"audio" env:"AUDIO"`
	TUI           bool          `yaml:"tui" env:"TUI"`
	FrameInterval time.Duration `yaml:"frame_interval" env:"FRAME_INTERVAL"`
	Retries       uint64        `yaml:"retries" env:"RETRIES"`
	Discovery     time.Duration `yaml:"discovery_timeout" env:"DISCOVERY_TIMEOUT"`

	Log Log `yaml:"log" envPrefix:"LOG_"`
}

// File is the layout of anomaly.yaml
type File struct {
	Server Server `yaml:"server" envPrefix:"SERVER_"`
	Client Client `yaml:"client" envPrefix:"CLIENT_"`
}

// Default returns the built-in configuration
func Default() File {
	return File{
		Server: Server{
			Port:         7777,
			Name:         "anomaly-server",
			Images:       "Content/Images",
			Fonts:        "Content/Fonts",
			Sounds:       "Content/Sounds",
			Scripts:      "Content/Scripts",
			TickInterval: 30 * time.Millisecond,
			ContentPoll:  time.Second,
			WatchContent: true,
			ReloadKey:    "F5",
			MDNS:         true,
			TUI:          false,
			Log:          Log{Level: "info", File: "anomaly-server.log"},
		},
		Client: Client{
			Volume:        100,
			Audio:         true,
			TUI:           true,
			FrameInterval: 16 * time.Millisecond,
			Retries:       5,
			Discovery:     10 * time.Second,
			Log:           Log{Level: "info", File: "anomaly-client.log"},
		},
	}
}

// Loader reads configuration. Env replaces the process environment when set.
type Loader struct {
	FS  afero.Fs
	Env map[string]string
}

// Load reads the default file from the OS filesystem and the process environment
func Load(path string) (File, error) {
	return Loader{FS: afero.NewOsFs()}.Load(path)
}

// Load applies the file at path (DefaultFile when empty, which may be
// missing) and then the environment on top of the defaults
func (l Loader) Load(path string) (File, error) {
	cfg := Default()

	fsys := l.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	optional := path == ""
	if optional {
		path = DefaultFile
	}

	raw, err := afero.ReadFile(fsys, path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	opts := env.Options{Prefix: EnvPrefix}
	if l.Env != nil {
		opts.Environment = l.Env
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Validate checks the server settings
func (s Server) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.TickInterval < 0 {
		return fmt.Errorf("tick_interval must not be negative")
	}
	if s.ContentPoll < 0 {
		return fmt.Errorf("content_poll must not be negative")
	}
	if _, err := s.ReloadKeyCode(); err != nil {
		return err
	}
	return nil
}

// ReloadKeyCode resolves the reload key name to a keycode
func (s Server) ReloadKeyCode() (int32, error) {
	code, ok := script.KeyCode(s.ReloadKey)
	if !ok {
		return 0, fmt.Errorf("unknown reload key %q", s.ReloadKey)
	}
	return code, nil
}

// Validate checks the client settings
func (c Client) Validate() error {
	if c.Volume < 0 || c.Volume > 100 {
		return fmt.Errorf("volume %d out of range 0..100", c.Volume)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive")
	}
	return nil
}
