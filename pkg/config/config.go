// Package config loads the debugger's YAML configuration file.
package config

import (
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/mvkh/linux-debugger/pkg/proc"
)

// Config carries the settings the front-end applies before handing control
// to the core.
type Config struct {
	// Components to enable diagnostic logging for ("debugger", "dwarf").
	LogComponents []string `yaml:"log_components"`
	// Syscall numbers to stop on. Empty means no syscall tracing unless
	// CatchAllSyscalls is set.
	CatchSyscalls []uint64 `yaml:"catch_syscalls"`
	// Stop on every syscall entry and exit.
	CatchAllSyscalls bool `yaml:"catch_all_syscalls"`
	// File to redirect the inferior's stdout into.
	StdoutPath string `yaml:"stdout_path"`
}

// LoadConfig reads and decodes the configuration at file.
func LoadConfig(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode config data: %w", err)
	}
	return &c, nil
}

// CatchPolicy translates the configured syscall selection into a policy.
func (c *Config) CatchPolicy() proc.SyscallCatchPolicy {
	if c.CatchAllSyscalls {
		return proc.CatchAllSyscalls()
	}
	if len(c.CatchSyscalls) > 0 {
		return proc.CatchSyscalls(c.CatchSyscalls...)
	}
	return proc.CatchNothing()
}
