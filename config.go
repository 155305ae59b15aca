// Completion: 100% - Configuration complete
package lego

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/xyproto/env/v2"
)

// Backend names accepted by Config.Backend
const (
	BackendAuto   = "auto"
	BackendAmd64  = "amd64"
	BackendInterp = "interp"
)

// Config controls a Context
type Config struct {
	// Backend is auto, amd64 or interp. Auto picks amd64 when the host can
	// run native code.
	Backend string `toml:"backend"`
	Verbose bool   `toml:"verbose"`
	// DumpIR prints the SSA of every function built to stderr
	DumpIR bool `toml:"dump_ir"`
	// CodeCacheBytes sizes the machine code cache of the amd64 backend
	CodeCacheBytes int `toml:"code_cache_bytes"`
}

// DefaultConfig returns the configuration used when nothing else is given
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		CodeCacheBytes: 32 << 20,
	}
}

// ConfigFromEnv returns the default configuration overridden by
// LEGO_BACKEND, LEGO_VERBOSE, LEGO_DUMP_IR and LEGO_CODE_CACHE_BYTES
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Backend = env.Str("LEGO_BACKEND", cfg.Backend)
	cfg.Verbose = env.Bool("LEGO_VERBOSE")
	cfg.DumpIR = env.Bool("LEGO_DUMP_IR")
	cfg.CodeCacheBytes = env.Int("LEGO_CODE_CACHE_BYTES", cfg.CodeCacheBytes)
	return cfg
}

// LoadConfig reads a TOML file on top of the default configuration.
// Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("lego: config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values New cannot use
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendAmd64, BackendInterp:
	default:
		return fmt.Errorf("lego: unknown backend %q (want %s, %s or %s)", c.Backend, BackendAuto, BackendAmd64, BackendInterp)
	}
	if c.CodeCacheBytes < 0 {
		return fmt.Errorf("lego: negative code cache size %d", c.CodeCacheBytes)
	}
	return nil
}
