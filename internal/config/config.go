// Package config is the boot configuration. It can be loaded from YAML at
// any afs URL; zero fields inherit the defaults.
package config

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"ember/internal/klog"
)

// Config is the serialisable boot configuration.
type Config struct {
	Kernel  KernelConfig  `json:"kernel" yaml:"kernel"`
	FS      FSConfig      `json:"fs" yaml:"fs"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Display DisplayConfig `json:"display" yaml:"display"`
	Trace   TraceConfig   `json:"trace" yaml:"trace"`

	// Init is the command line of the first process, e.g. "init" or
	// "forktest 4".
	Init string `json:"init" yaml:"init"`
}

type KernelConfig struct {
	NProc     int `json:"nproc" yaml:"nproc"`
	MemoryMiB int `json:"memoryMiB" yaml:"memoryMiB"`
}

type FSConfig struct {
	// URL is the afs base URL inodes are stored under.
	URL string `json:"url" yaml:"url"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`

	// ConsolePrefix is prepended to lines programs write to stdout.
	ConsolePrefix string `json:"consolePrefix" yaml:"consolePrefix"`
}

type DisplayConfig struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type TraceConfig struct {
	// File receives one JSON span per syscall. Empty disables tracing.
	File string `json:"file" yaml:"file"`
}

// Default returns a Config with every default filled in.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			NProc:     16,
			MemoryMiB: 16,
		},
		FS:      FSConfig{URL: "mem://localhost/ember"},
		Log:     LogConfig{Level: "info", ConsolePrefix: "| "},
		Display: DisplayConfig{Width: 320, Height: 320},
		Init:    "init",
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.fill()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load downloads and parses the config at URL.
func Load(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", URL, err)
	}
	return Parse(data)
}

// fill restores defaults for fields the YAML zeroed explicitly.
func (c *Config) fill() {
	d := Default()
	if c.Kernel.NProc == 0 {
		c.Kernel.NProc = d.Kernel.NProc
	}
	if c.Kernel.MemoryMiB == 0 {
		c.Kernel.MemoryMiB = d.Kernel.MemoryMiB
	}
	if c.FS.URL == "" {
		c.FS.URL = d.FS.URL
	}
	if c.Display.Width == 0 {
		c.Display.Width = d.Display.Width
	}
	if c.Display.Height == 0 {
		c.Display.Height = d.Display.Height
	}
	if c.Init == "" {
		c.Init = d.Init
	}
}

// Validate returns an error describing the first invalid setting, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Kernel.NProc < 1 || c.Kernel.NProc > 1024 {
		return fmt.Errorf("config: kernel.nproc must be in [1, 1024], got %d", c.Kernel.NProc)
	}
	if c.Kernel.MemoryMiB < 1 || c.Kernel.MemoryMiB > 1024 {
		return fmt.Errorf("config: kernel.memoryMiB must be in [1, 1024], got %d", c.Kernel.MemoryMiB)
	}
	if c.Display.Width < 0 || c.Display.Height < 0 || c.Display.Width > 4096 || c.Display.Height > 4096 {
		return fmt.Errorf("config: display %dx%d out of range", c.Display.Width, c.Display.Height)
	}
	if _, err := klog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
