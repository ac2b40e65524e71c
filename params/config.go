// Package params holds node configuration. Values come from the
// environment, optionally seeded by a .env file; defaults suit a local
// devnet.
package params

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Server is the HTTP/websocket surface
type Server struct {
	ListenAddr   string   `env:"LISTEN_ADDR" envDefault:":8080"`
	AllowOrigins []string `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Engine tunes the matching core and its collaborators
type Engine struct {
	// TickResolution is how often the execution scheduler wakes to
	// release due TWAP/VWAP slices.
	TickResolution time.Duration `env:"TICK_RESOLUTION" envDefault:"1s"`
	// MaxExposure is the per-account notional cap enforced by the risk
	// gate, in price ticks times quantity units. Zero disables the gate.
	MaxExposure int64 `env:"MAX_EXPOSURE" envDefault:"0"`
	// RecentTrades bounds the per-book trade ring served over the API.
	RecentTrades int `env:"RECENT_TRADES" envDefault:"128"`
}

// Storage locates the durable stores
type Storage struct {
	DataDir string `env:"DATA_DIR" envDefault:"data"`
	// Journal disables the trade/event journal when false (tests, dry runs)
	Journal bool `env:"JOURNAL" envDefault:"true"`
}

type Config struct {
	Server  Server  `envPrefix:"SERVER_"`
	Engine  Engine  `envPrefix:"ENGINE_"`
	Storage Storage `envPrefix:"STORAGE_"`
	LogPath string  `env:"LOG_PATH"`
}

// Load reads configuration. Priority: environment > .env file > defaults.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Default returns the devnet configuration without consulting the
// environment.
func Default() Config {
	return Config{
		Server:  Server{ListenAddr: ":8080", AllowOrigins: []string{"*"}},
		Engine:  Engine{TickResolution: time.Second, RecentTrades: 128},
		Storage: Storage{DataDir: "data", Journal: true},
	}
}
