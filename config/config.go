// Package config loads broker configuration from flags and an optional
// TOML file (flags win, then TOML, then built-in defaults). It also loads
// a .env file into the process environment on a best-effort basis; Load
// itself reads no environment variables.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the broker's fully-resolved runtime configuration.
type Config struct {
	Bind          string `toml:"bind"`
	StoragePath   string `toml:"storage_path"`
	StorageSizeMB uint64 `toml:"storage_size_mb"`
	Verbose       bool   `toml:"verbose"`
}

func defaults() Config {
	return Config{
		Bind:          "0.0.0.0:9999",
		StoragePath:   "hermes_data.dat",
		StorageSizeMB: 64,
		Verbose:       false,
	}
}

// StorageCapacityBytes returns the storage capacity in bytes implied by
// StorageSizeMB.
func (c Config) StorageCapacityBytes() uint64 {
	return c.StorageSizeMB * 1 << 20
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// Load resolves configuration from args (normally os.Args[1:]):
//  1. best-effort loads a .env file into the process environment,
//  2. parses an optional TOML file named by --config (default
//     "hermes.toml"; missing file is not an error),
//  3. parses the remaining flags, which take precedence over the TOML
//     file, which takes precedence over built-in defaults,
//  4. validates that the resulting storage capacity in bytes is a power
//     of two.
//
// --help prints usage to stderr and returns flag.ErrHelp, which callers
// should treat as a request to exit 0.
func Load(args []string) (*Config, error) {
	godotenv.Load() // best-effort; absence of a .env file is not an error

	fs := flag.NewFlagSet("hermes-broker", flag.ContinueOnError)

	cfgPath := fs.String("config", "hermes.toml", "path to an optional TOML config file")
	bind := fs.String("bind", "", "address to listen on (default 0.0.0.0:9999)")
	storagePath := fs.String("storage", "", "path to the storage file (default hermes_data.dat)")
	sizeMB := fs.Uint64("size", 0, "storage capacity in MiB, must yield a power-of-two byte size (default 64)")
	verbose := fs.Bool("verbose", false, "enable verbose per-connection logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults()

	if fileCfg, err := loadTOML(*cfgPath); err != nil {
		return nil, err
	} else if fileCfg != nil {
		applyTOML(&cfg, fileCfg)
	}

	if *bind != "" {
		cfg.Bind = *bind
	}
	if *storagePath != "" {
		cfg.StoragePath = *storagePath
	}
	if *sizeMB != 0 {
		cfg.StorageSizeMB = *sizeMB
	}
	if *verbose {
		cfg.Verbose = true
	}

	if !isPowerOfTwo(cfg.StorageCapacityBytes()) {
		return nil, fmt.Errorf("config: storage size %dMB (%d bytes) is not a power of two", cfg.StorageSizeMB, cfg.StorageCapacityBytes())
	}

	return &cfg, nil
}

func loadTOML(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}

func applyTOML(cfg *Config, fileCfg *Config) {
	if fileCfg.Bind != "" {
		cfg.Bind = fileCfg.Bind
	}
	if fileCfg.StoragePath != "" {
		cfg.StoragePath = fileCfg.StoragePath
	}
	if fileCfg.StorageSizeMB != 0 {
		cfg.StorageSizeMB = fileCfg.StorageSizeMB
	}
	if fileCfg.Verbose {
		cfg.Verbose = true
	}
}
