// Package config handles luma.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/luma/vm"
)

// FileName is the name of the configuration file.
const FileName = "luma.toml"

// Config represents a luma.toml configuration.
type Config struct {
	Runtime Runtime `toml:"runtime"`
	GC      GC      `toml:"gc"`
	Log     Log     `toml:"log"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Runtime configures stack and string limits.
type Runtime struct {
	MaxStack         int `toml:"max-stack"`
	MaxNativeDepth   int `toml:"max-native-depth"`
	ShortStringLimit int `toml:"short-string-limit"`
}

// GC configures the collector.
type GC struct {
	Mode           string `toml:"mode"` // "incremental" or "stopped"
	Pause          int    `toml:"pause"`
	StepMultiplier int    `toml:"step-multiplier"`
	MemoryLimitKB  int64  `toml:"memory-limit-kb"`
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	o := vm.DefaultOptions()
	return &Config{
		Runtime: Runtime{
			MaxStack:         o.MaxStackSize,
			MaxNativeDepth:   o.MaxNativeDepth,
			ShortStringLimit: o.ShortStringLen,
		},
		GC: GC{
			Mode:           "incremental",
			Pause:          o.GCPause,
			StepMultiplier: o.GCStepMul,
		},
	}
}

// LoadFile parses the configuration file at path. Settings it leaves out
// keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// Load parses the luma.toml file in dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// FindAndLoad walks up from startDir to find a luma.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	switch c.GC.Mode {
	case "", "incremental", "stopped":
	default:
		return fmt.Errorf("unknown gc mode %q", c.GC.Mode)
	}
	if c.Runtime.MaxStack < 0 || c.Runtime.MaxNativeDepth < 0 || c.Runtime.ShortStringLimit < 0 {
		return fmt.Errorf("runtime limits must not be negative")
	}
	if c.GC.Pause < 0 || c.GC.StepMultiplier < 0 || c.GC.MemoryLimitKB < 0 {
		return fmt.Errorf("gc parameters must not be negative")
	}
	return nil
}

// Options returns the runtime options the configuration resolves to.
func (c *Config) Options() vm.Options {
	o := vm.DefaultOptions()
	if c.Runtime.MaxStack > 0 {
		o.MaxStackSize = c.Runtime.MaxStack
	}
	if c.Runtime.MaxNativeDepth > 0 {
		o.MaxNativeDepth = c.Runtime.MaxNativeDepth
	}
	if c.Runtime.ShortStringLimit > 0 {
		o.ShortStringLen = c.Runtime.ShortStringLimit
	}
	if c.GC.Pause > 0 {
		o.GCPause = c.GC.Pause
	}
	if c.GC.StepMultiplier > 0 {
		o.GCStepMul = c.GC.StepMultiplier
	}
	o.GCStopped = c.GC.Mode == "stopped"
	o.MemoryLimit = c.GC.MemoryLimitKB * 1024
	return o
}

// ConfigureLogging applies the [log] section to commonlog. extra raises
// the verbosity, as repeated -v flags do.
func (c *Config) ConfigureLogging(extra int) {
	var path *string
	if c.Log.File != "" {
		path = &c.Log.File
	}
	commonlog.Configure(c.Log.Verbosity+extra, path)
}
