package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"lsgw/internal/paths"
)

// CurrentVersion is the only config schema version accepted by Validate.
const CurrentVersion = 1

// Communication kinds understood by the backend transport.
const (
	CommSocket    = "socket"
	CommWebSocket = "websocket"
	CommProcess   = "process"
	CommEmbedded  = "embedded"
)

// Config represents the complete lsgw configuration
type Config struct {
	Version       int    `json:"version" mapstructure:"version"`
	WorkspaceRoot string `json:"workspaceRoot" mapstructure:"workspaceRoot"`
	ProjectsRoot  string `json:"projectsRoot" mapstructure:"projectsRoot"`

	Backends []BackendConfig `json:"backends" mapstructure:"backends"`
	Gateway  GatewayConfig   `json:"gateway" mapstructure:"gateway"`
	Server   ServerConfig    `json:"server" mapstructure:"server"`
	Watcher  WatcherConfig   `json:"watcher" mapstructure:"watcher"`
	Install  InstallConfig   `json:"install" mapstructure:"install"`
	Logging  LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// BackendConfig is the raw per-backend configuration produced by every
// descriptor provider. The same struct is decoded from JSON, TOML and YAML.
type BackendConfig struct {
	ID string `json:"id" mapstructure:"id" toml:"id" yaml:"id"`
	// Languages maps a language id to a file-name regular expression.
	Languages map[string]string `json:"languages" mapstructure:"languages" toml:"languages" yaml:"languages"`
	// Watch lists glob patterns of workspace paths whose changes the backend wants.
	Watch         []string            `json:"watch,omitempty" mapstructure:"watch" toml:"watch" yaml:"watch"`
	Communication CommunicationConfig `json:"communication" mapstructure:"communication" toml:"communication" yaml:"communication"`
	Local         bool                `json:"local,omitempty" mapstructure:"local" toml:"local" yaml:"local"`
	// InstallCheck is the executable that must be resolvable for a local backend.
	InstallCheck          string                 `json:"installCheck,omitempty" mapstructure:"installCheck" toml:"install_check" yaml:"installCheck"`
	ProjectsRoot          string                 `json:"projectsRoot,omitempty" mapstructure:"projectsRoot" toml:"projects_root" yaml:"projectsRoot"`
	InitializationOptions map[string]interface{} `json:"initializationOptions,omitempty" mapstructure:"initializationOptions" toml:"initialization_options" yaml:"initializationOptions"`
}

// CommunicationConfig describes how to reach a backend.
type CommunicationConfig struct {
	Kind    string            `json:"kind" mapstructure:"kind" toml:"kind" yaml:"kind"`
	Command string            `json:"command,omitempty" mapstructure:"command" toml:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" mapstructure:"args" toml:"args" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" mapstructure:"env" toml:"env" yaml:"env"`
	Dir     string            `json:"dir,omitempty" mapstructure:"dir" toml:"dir" yaml:"dir"`
	// Address is tcp://host:port for sockets or ws://host:port/path for websockets.
	Address string `json:"address,omitempty" mapstructure:"address" toml:"address" yaml:"address"`
}

// GatewayConfig contains fan-out and lifecycle tuning
type GatewayConfig struct {
	WorkerPoolSize       int `json:"workerPoolSize" mapstructure:"workerPoolSize"`
	DialTimeoutMs        int `json:"dialTimeoutMs" mapstructure:"dialTimeoutMs"`
	MessageRequestTimeMs int `json:"messageRequestTimeoutMs" mapstructure:"messageRequestTimeoutMs"`
	ShutdownTimeoutMs    int `json:"shutdownTimeoutMs" mapstructure:"shutdownTimeoutMs"`
}

// ServerConfig contains caller-facing transport settings
type ServerConfig struct {
	// Transport is "stdio" or "websocket".
	Transport   string `json:"transport" mapstructure:"transport"`
	Addr        string `json:"addr" mapstructure:"addr"`
	Path        string `json:"path" mapstructure:"path"`
	MetricsPath string `json:"metricsPath" mapstructure:"metricsPath"`
}

// WatcherConfig contains file watcher settings
type WatcherConfig struct {
	Enabled    bool     `json:"enabled" mapstructure:"enabled"`
	DebounceMs int      `json:"debounceMs" mapstructure:"debounceMs"`
	Ignore     []string `json:"ignore" mapstructure:"ignore"`
}

// InstallConfig locates the install-status database
type InstallConfig struct {
	DBPath string `json:"dbPath" mapstructure:"dbPath"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file,omitempty" mapstructure:"file"`
	MaxSize    string `json:"maxSize,omitempty" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups,omitempty" mapstructure:"maxBackups"`
	// Backend is the level of per-backend stderr logs.
	Backend string `json:"backend,omitempty" mapstructure:"backend"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       CurrentVersion,
		WorkspaceRoot: ".",
		ProjectsRoot:  "/projects",
		Backends:      []BackendConfig{},
		Gateway: GatewayConfig{
			WorkerPoolSize:       8,
			DialTimeoutMs:        5000,
			MessageRequestTimeMs: 60000,
			ShutdownTimeoutMs:    5000,
		},
		Server: ServerConfig{
			Transport:   "stdio",
			Addr:        "127.0.0.1:4389",
			Path:        "/lsp",
			MetricsPath: "/metrics",
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 200,
			Ignore:     []string{".git", "node_modules", ".lsgw"},
		},
		Install: InstallConfig{
			DBPath: ".lsgw/install.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
			Backend:    "info",
		},
	}
}

// LoadConfig loads configuration from .lsgw/config.json under root.
// LSGW_-prefixed environment variables override file values.
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("version", def.Version)
	v.SetDefault("workspaceRoot", root)
	v.SetDefault("projectsRoot", def.ProjectsRoot)
	v.SetDefault("gateway.workerPoolSize", def.Gateway.WorkerPoolSize)
	v.SetDefault("gateway.dialTimeoutMs", def.Gateway.DialTimeoutMs)
	v.SetDefault("gateway.messageRequestTimeoutMs", def.Gateway.MessageRequestTimeMs)
	v.SetDefault("gateway.shutdownTimeoutMs", def.Gateway.ShutdownTimeoutMs)
	v.SetDefault("server.transport", def.Server.Transport)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.path", def.Server.Path)
	v.SetDefault("server.metricsPath", def.Server.MetricsPath)
	v.SetDefault("watcher.enabled", def.Watcher.Enabled)
	v.SetDefault("watcher.debounceMs", def.Watcher.DebounceMs)
	v.SetDefault("watcher.ignore", def.Watcher.Ignore)
	v.SetDefault("install.dbPath", def.Install.DBPath)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.maxSize", def.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", def.Logging.MaxBackups)
	v.SetDefault("logging.backend", def.Logging.Backend)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(paths.GetRepoDir(root))

	v.SetEnvPrefix("LSGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Backends == nil {
		cfg.Backends = []BackendConfig{}
	}

	return &cfg, nil
}

// Save writes the configuration to .lsgw/config.json
func (c *Config) Save(root string) error {
	dir := paths.GetRepoDir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid. Backend entries are
// validated one by one during ingestion so that a single bad entry does
// not reject the whole file.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Gateway.WorkerPoolSize < 1 {
		return &ConfigError{Field: "gateway.workerPoolSize", Message: "must be at least 1"}
	}
	switch c.Server.Transport {
	case "stdio", "websocket":
	default:
		return &ConfigError{Field: "server.transport", Message: fmt.Sprintf("unknown transport %q", c.Server.Transport)}
	}
	return nil
}

// Validate checks a single backend entry.
func (b *BackendConfig) Validate() error {
	if b.ID == "" {
		return &ConfigError{Field: "id", Message: "backend id is required"}
	}
	if len(b.Languages) == 0 {
		return &ConfigError{Field: b.ID + ".languages", Message: "at least one language pattern is required"}
	}
	for lang, pattern := range b.Languages {
		if _, err := regexp.Compile(pattern); err != nil {
			return &ConfigError{Field: b.ID + ".languages." + lang, Message: err.Error()}
		}
	}
	switch b.Communication.Kind {
	case CommProcess:
		if b.Communication.Command == "" {
			return &ConfigError{Field: b.ID + ".communication.command", Message: "required for process backends"}
		}
	case CommSocket, CommWebSocket:
		if b.Communication.Address == "" {
			return &ConfigError{Field: b.ID + ".communication.address", Message: "required for socket backends"}
		}
	case CommEmbedded:
	default:
		return &ConfigError{Field: b.ID + ".communication.kind", Message: fmt.Sprintf("unknown kind %q", b.Communication.Kind)}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
