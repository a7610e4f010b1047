package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Network: NetworkConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			Transport:   TransportUDP,
			IdleTimeout: 30 * time.Second,
			SendQueue:   256,
			EventQueue:  4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Game: GameConfig{
			TickRate:    50 * time.Millisecond,
			MapPath:     "content/maps/first.yaml",
			TilesetPath: "content/tilesets/master16.yaml",
			PlayerStep:  16,
			Footprint:   1,
		},
		Admin: AdminConfig{
			GRPCHost: "127.0.0.1",
			GRPCPort: 50051,
		},
		Client: ClientConfig{Name: "player"},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestNetworkAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "127.0.0.1:8080", cfg.Network.Addr())
}

func TestAdminAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "127.0.0.1:50051", cfg.Admin.Addr())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
network:
  host: 0.0.0.0
  port: 9000
  transport: websocket
logging:
  level: debug
  format: console
game:
  tick_rate: 100ms
  map_path: maps/other.yaml
  player_step: 8
  require_remove_ownership: true
client:
  name: alice
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Network.Host)
	assert.Equal(t, 9000, cfg.Network.Port)
	assert.Equal(t, TransportWebSocket, cfg.Network.Transport)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 100*time.Millisecond, cfg.Game.TickRate)
	assert.Equal(t, "maps/other.yaml", cfg.Game.MapPath)
	assert.Equal(t, float64(8), cfg.Game.PlayerStep)
	assert.True(t, cfg.Game.RequireRemoveOwnership)
	assert.Equal(t, "alice", cfg.Client.Name)

	// untouched keys keep their defaults
	assert.Equal(t, "content/tilesets/master16.yaml", cfg.Game.TilesetPath)
	assert.Equal(t, 1, cfg.Game.Footprint)
	assert.Equal(t, 30*time.Second, cfg.Network.IdleTimeout)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network:
  transport: carrier-pigeon
game:
  footprint: 0
`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.transport")
	assert.Contains(t, err.Error(), "game.footprint")
}

func TestLoadOrDefault_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Network.Addr())
	assert.Equal(t, TransportUDP, cfg.Network.Transport)
	assert.Equal(t, 50*time.Millisecond, cfg.Game.TickRate)
	assert.Equal(t, float64(16), cfg.Game.PlayerStep)
	assert.False(t, cfg.Admin.Enabled)
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "player", cfg.Client.Name)
	assert.Equal(t, 20, cfg.Client.ConnectRetry)
}

func TestLoadOrDefault_PresentFileIsRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  port: 7777\n"), 0644))
	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Network.Port)
}

func TestLoadOrDefault_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: [unclosed\n"), 0644))
	_, err := LoadOrDefault(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TILEWORLD_NETWORK_PORT", "9100")
	t.Setenv("TILEWORLD_CLIENT_NAME", "bob")
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Network.Port)
	assert.Equal(t, "bob", cfg.Client.Name)
}

func TestValidateTransport(t *testing.T) {
	for _, tr := range []string{TransportUDP, TransportWebSocket} {
		cfg := validConfig()
		cfg.Network.Transport = tr
		assert.NoError(t, cfg.Validate(), "transport %q should be valid", tr)
	}
	cfg := validConfig()
	cfg.Network.Transport = "tcp"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingRotation(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.File = "tileworld.log"
	cfg.Logging.MaxSizeMB = 0
	assert.Error(t, cfg.Validate())

	cfg.Logging.MaxSizeMB = 5
	assert.NoError(t, cfg.Validate())
}

func TestValidateGame(t *testing.T) {
	cases := map[string]func(*Config){
		"tick rate":    func(c *Config) { c.Game.TickRate = 0 },
		"map path":     func(c *Config) { c.Game.MapPath = "" },
		"tileset path": func(c *Config) { c.Game.TilesetPath = "" },
		"player step":  func(c *Config) { c.Game.PlayerStep = -1 },
		"footprint":    func(c *Config) { c.Game.Footprint = 0 },
		"script limit": func(c *Config) { c.Game.ScriptInstructionLimit = -5 },
		"client name":  func(c *Config) { c.Client.Name = "  " },
		"retry ticks":  func(c *Config) { c.Client.ConnectRetry = -1 },
		"send queue":   func(c *Config) { c.Network.SendQueue = 0 },
		"event queue":  func(c *Config) { c.Network.EventQueue = 0 },
		"idle timeout": func(c *Config) { c.Network.IdleTimeout = -time.Second },
		"network host": func(c *Config) { c.Network.Host = "" },
		"network port": func(c *Config) { c.Network.Port = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAdminOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Admin.GRPCPort = 0
	assert.NoError(t, cfg.Validate(), "disabled admin is not validated")

	cfg.Admin.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Admin.GRPCPort = 50052
	cfg.Admin.GRPCHost = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Network.Port = 0
	cfg.Logging.Level = "loud"
	cfg.Game.Footprint = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.port")
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "game.footprint")
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.Network.Port = port
		err := cfg.Validate()
		if err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Generate ports outside valid range
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.Network.Port = port
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}

func TestPropertyFootprintPositive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fp := rapid.IntRange(-10, 10).Draw(t, "footprint")
		cfg := validConfig()
		cfg.Game.Footprint = fp
		err := cfg.Validate()
		if (fp >= 1) != (err == nil) {
			t.Fatalf("footprint %d: validate returned %v", fp, err)
		}
	})
}
