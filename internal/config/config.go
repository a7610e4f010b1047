// Package config provides Viper-based configuration loading for the
// tileworld server and client.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport names accepted by network.transport.
const (
	TransportUDP       = "udp"
	TransportWebSocket = "websocket"
)

// NetworkConfig holds the game endpoint settings.
type NetworkConfig struct {
	// Host is the bind address for the server and the dial address for the client.
	Host string `mapstructure:"host"`
	// Port is the game port.
	Port int `mapstructure:"port"`
	// Transport is "udp" or "websocket".
	Transport string `mapstructure:"transport"`
	// IdleTimeout disconnects silent peers. 0 disables it for UDP.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// SendQueue bounds outbound messages per transport (UDP) or per peer (websocket).
	SendQueue int `mapstructure:"send_queue"`
	// EventQueue bounds received events waiting for the next tick.
	EventQueue int `mapstructure:"event_queue"`
}

// Addr returns the "host:port" game address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (n NetworkConfig) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, sends logs to a rotating file instead of stderr.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file rotates.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// GameConfig holds simulation settings.
type GameConfig struct {
	// TickRate is the simulation tick interval.
	TickRate time.Duration `mapstructure:"tick_rate"`
	// MapPath is the map file loaded at startup.
	MapPath string `mapstructure:"map_path"`
	// TilesetPath is the tileset file the map's gids resolve against.
	TilesetPath string `mapstructure:"tileset_path"`
	// PlayerStep is how far one Move action walks, in pixels.
	PlayerStep float64 `mapstructure:"player_step"`
	// Footprint is the number of tiles a player occupies.
	Footprint int `mapstructure:"footprint"`
	// RequireRemoveOwnership restricts RemovePlayer to the player's own address.
	RequireRemoveOwnership bool `mapstructure:"require_remove_ownership"`
	// ItemScript is a Lua file or directory of item and combat hooks. Empty disables scripting.
	ItemScript string `mapstructure:"item_script"`
	// ScriptInstructionLimit bounds opcodes per hook call. 0 uses the default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// AdminConfig holds the gRPC admin endpoint settings.
type AdminConfig struct {
	// Enabled starts the admin endpoint.
	Enabled bool `mapstructure:"enabled"`
	// GRPCHost is the bind address for the admin gRPC service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the admin gRPC service.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" admin address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.GRPCHost, a.GRPCPort)
}

// ClientConfig holds client mode settings.
type ClientConfig struct {
	// Name is the player name sent in Connect.
	Name string `mapstructure:"name"`
	// Skin selects the outfit the client draws players with.
	Skin string `mapstructure:"skin"`
	// ConnectRetry is how many ticks the client waits for its InsertPlayer
	// before resending Connect.
	ConnectRetry int `mapstructure:"connect_retry"`
}

// Config is the top-level application configuration.
type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	Logging LoggingConfig `mapstructure:"logging"`
	Game    GameConfig    `mapstructure:"game"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Client  ClientConfig  `mapstructure:"client"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateNetwork(c.Network); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAdmin(c.Admin); err != nil {
		errs = append(errs, err.Error())
	}
	if strings.TrimSpace(c.Client.Name) == "" {
		errs = append(errs, "client.name must not be empty")
	}
	if c.Client.ConnectRetry < 0 {
		errs = append(errs, fmt.Sprintf("client.connect_retry must be >= 0, got %d", c.Client.ConnectRetry))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateNetwork(n NetworkConfig) error {
	var errs []string
	if n.Host == "" {
		errs = append(errs, "network.host must not be empty")
	}
	if n.Port < 1 || n.Port > 65535 {
		errs = append(errs, fmt.Sprintf("network.port must be 1-65535, got %d", n.Port))
	}
	if n.Transport != TransportUDP && n.Transport != TransportWebSocket {
		errs = append(errs, fmt.Sprintf("network.transport must be one of [udp, websocket], got %q", n.Transport))
	}
	if n.IdleTimeout < 0 {
		errs = append(errs, "network.idle_timeout must not be negative")
	}
	if n.SendQueue < 1 {
		errs = append(errs, fmt.Sprintf("network.send_queue must be >= 1, got %d", n.SendQueue))
	}
	if n.EventQueue < 1 {
		errs = append(errs, fmt.Sprintf("network.event_queue must be >= 1, got %d", n.EventQueue))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && (l.MaxSizeMB < 1 || l.MaxBackups < 0 || l.MaxAgeDays < 0) {
		return errors.New("logging rotation requires max_size_mb >= 1 and non-negative max_backups, max_age_days")
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.TickRate <= 0 {
		errs = append(errs, fmt.Sprintf("game.tick_rate must be positive, got %s", g.TickRate))
	}
	if g.MapPath == "" {
		errs = append(errs, "game.map_path must not be empty")
	}
	if g.TilesetPath == "" {
		errs = append(errs, "game.tileset_path must not be empty")
	}
	if g.PlayerStep <= 0 {
		errs = append(errs, fmt.Sprintf("game.player_step must be positive, got %v", g.PlayerStep))
	}
	if g.Footprint < 1 {
		errs = append(errs, fmt.Sprintf("game.footprint must be >= 1, got %d", g.Footprint))
	}
	if g.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("game.script_instruction_limit must be >= 0, got %d", g.ScriptInstructionLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if a.GRPCHost == "" {
		errs = append(errs, "admin.grpc_host must not be empty")
	}
	if a.GRPCPort < 1 || a.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("admin.grpc_port must be 1-65535, got %d", a.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadOrDefault behaves like Load but falls back to defaults and
// environment overrides when path is empty or names a missing file.
//
// Postcondition: Returns a valid Config or a non-nil error.
func LoadOrDefault(path string) (Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}
	return LoadFromViper(newViper())
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	// Environment variable overrides with TILEWORLD_ prefix
	v.SetEnvPrefix("TILEWORLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.host", "127.0.0.1")
	v.SetDefault("network.port", 8080)
	v.SetDefault("network.transport", TransportUDP)
	v.SetDefault("network.idle_timeout", "30s")
	v.SetDefault("network.send_queue", 256)
	v.SetDefault("network.event_queue", 4096)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)

	v.SetDefault("game.tick_rate", "50ms")
	v.SetDefault("game.map_path", "content/maps/first.yaml")
	v.SetDefault("game.tileset_path", "content/tilesets/master16.yaml")
	v.SetDefault("game.player_step", 16)
	v.SetDefault("game.footprint", 1)
	v.SetDefault("game.require_remove_ownership", false)
	v.SetDefault("game.item_script", "")
	v.SetDefault("game.script_instruction_limit", 0)

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.grpc_host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 50051)

	v.SetDefault("client.name", "player")
	v.SetDefault("client.skin", "female")
	v.SetDefault("client.connect_retry", 20)
}
