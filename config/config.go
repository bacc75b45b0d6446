// Package config handles tuuvm.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "tuuvm.toml"

// JIT modes.
const (
	JITOff   = "off"
	JITLazy  = "lazy"
	JITEager = "eager"
)

// JIT architectures.
const (
	ArchHost  = "host"
	ArchAMD64 = "amd64"
	ArchARM64 = "arm64"
)

// ErrInvalid is wrapped by validation errors.
var ErrInvalid = errors.New("invalid configuration")

// Config represents a tuuvm.toml configuration.
type Config struct {
	Heap     Heap     `toml:"heap"`
	Dispatch Dispatch `toml:"dispatch"`
	JIT      JIT      `toml:"jit"`
	Log      Log      `toml:"log"`
	Profile  Profile  `toml:"profile"`

	// Dir is the directory containing the tuuvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Heap configures the object memory.
type Heap struct {
	ChunkSize   int `toml:"chunk_size"`
	GCThreshold int `toml:"gc_threshold"`
}

// Dispatch configures message sends.
type Dispatch struct {
	PICSize int `toml:"pic_size"`
}

// JIT configures the native code backend.
type JIT struct {
	Mode      string `toml:"mode"`
	Threshold int    `toml:"threshold"`
	Arch      string `toml:"arch"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Profile configures the execution statistics store.
type Profile struct {
	Database string `toml:"database"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Heap.ChunkSize == 0 {
		c.Heap.ChunkSize = 4 << 20
	}
	if c.Heap.GCThreshold == 0 {
		c.Heap.GCThreshold = 8 << 20
	}
	if c.Dispatch.PICSize == 0 {
		c.Dispatch.PICSize = 6
	}
	if c.JIT.Mode == "" {
		c.JIT.Mode = JITOff
	}
	if c.JIT.Threshold == 0 {
		c.JIT.Threshold = 2
	}
	if c.JIT.Arch == "" {
		c.JIT.Arch = ArchHost
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Heap.ChunkSize < 4096 {
		return fmt.Errorf("%w: heap.chunk_size %d is below 4096", ErrInvalid, c.Heap.ChunkSize)
	}
	if c.Heap.GCThreshold < 0 {
		return fmt.Errorf("%w: heap.gc_threshold %d", ErrInvalid, c.Heap.GCThreshold)
	}
	if c.Dispatch.PICSize < 1 || c.Dispatch.PICSize > 64 {
		return fmt.Errorf("%w: dispatch.pic_size %d not in [1, 64]", ErrInvalid, c.Dispatch.PICSize)
	}
	switch c.JIT.Mode {
	case JITOff, JITLazy, JITEager:
	default:
		return fmt.Errorf("%w: jit.mode %q", ErrInvalid, c.JIT.Mode)
	}
	switch c.JIT.Arch {
	case ArchHost, ArchAMD64, ArchARM64:
	default:
		return fmt.Errorf("%w: jit.arch %q", ErrInvalid, c.JIT.Arch)
	}
	if c.JIT.Threshold < 1 {
		return fmt.Errorf("%w: jit.threshold %d", ErrInvalid, c.JIT.Threshold)
	}
	return nil
}

// Parse decodes TOML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load parses the tuuvm.toml file in dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a tuuvm.toml file and loads
// it. It returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// ProfilePath returns the statistics database path, resolved against Dir.
// It returns "" when profiling is disabled.
func (c *Config) ProfilePath() string {
	if c.Profile.Database == "" {
		return ""
	}
	if filepath.IsAbs(c.Profile.Database) || c.Dir == "" {
		return c.Profile.Database
	}
	return filepath.Join(c.Dir, c.Profile.Database)
}
