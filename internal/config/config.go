package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GameServer holds all configuration for the creature game server.
type GameServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	LogLevel string `yaml:"log_level"`

	// InternalSecret encrypts server-owned secure blobs (pending
	// queues, compete entries). Not a player secret.
	InternalSecret string `yaml:"internal_secret"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Game
	Game GameConfig `yaml:"game"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// GameConfig holds the gameplay tuning knobs. Loaded once at startup,
// read-only afterwards.
type GameConfig struct {
	// Spawning
	CreaturesPerCell8        int  `yaml:"creatures_per_cell8"`
	MinWalkableSpacesOnSpawn int  `yaml:"min_walkable_spaces_on_spawn"`
	MinOtherSpacesOnSpawn    int  `yaml:"min_other_spaces_on_spawn"`
	CreatureCountToRespawn   int  `yaml:"creature_count_to_respawn"`
	CreatureDurationMin      int  `yaml:"creature_duration_min"` // seconds
	CreatureDurationMax      int  `yaml:"creature_duration_max"` // seconds
	NestsEnabled             bool `yaml:"nests_enabled"`

	// Control minigame: whether a lone remaining defender also counts
	// as a collapse boundary when the weakest claim is knocked out.
	CollapseOnSingleDefender bool `yaml:"collapse_on_single_defender"`

	// Catch flow
	CoinGrantLockoutSeconds int `yaml:"coin_grant_lockout_seconds"`

	// Play area: Cell4 prefixes the game is active in. Empty include
	// list means everywhere. Exclude wins over include.
	PlayAreas    []string `yaml:"play_areas"`
	ExcludeAreas []string `yaml:"exclude_areas"`
}

// DefaultGameServer returns GameServer config with sensible defaults.
func DefaultGameServer() GameServer {
	return GameServer{
		BindAddress: "0.0.0.0",
		Port:        5001,
		LogLevel:    "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "collector",
			Password: "collector",
			DBName:   "collector",
			SSLMode:  "disable",
		},
		Game: GameConfig{
			CreaturesPerCell8:        18,
			MinWalkableSpacesOnSpawn: 6,
			MinOtherSpacesOnSpawn:    6,
			CreatureCountToRespawn:   6,
			CreatureDurationMin:      1800,
			CreatureDurationMax:      3600,
			NestsEnabled:             true,
			CollapseOnSingleDefender: false,
			CoinGrantLockoutSeconds:  86400,
		},
	}
}

// LoadGameServer loads game server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadGameServer(path string) (GameServer, error) {
	cfg := DefaultGameServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// InPlayArea reports whether the given cell code falls inside the
// configured play region. Cell codes are compared by prefix.
func (g GameConfig) InPlayArea(cell string) bool {
	for _, ex := range g.ExcludeAreas {
		if strings.HasPrefix(cell, ex) {
			return false
		}
	}
	if len(g.PlayAreas) == 0 {
		return true
	}
	for _, in := range g.PlayAreas {
		if strings.HasPrefix(cell, in) {
			return true
		}
	}
	return false
}
