// Package config handles zpzhost.toml host configuration and the command
// line flags that override it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the configuration file looked for when -config is not
// given.
const DefaultFile = "zpzhost.toml"

const (
	RendererBlit   = "blit"
	RendererShader = "shader"
)

// Config is the full host configuration.
type Config struct {
	Guest     Guest     `toml:"guest"`
	Arena     Arena     `toml:"arena"`
	Display   Display   `toml:"display"`
	Scheduler Scheduler `toml:"scheduler"`
	Headless  Headless  `toml:"headless"`
	Journal   Journal   `toml:"journal"`
	Drives    Drives    `toml:"drives"`

	// Dir is the directory relative paths resolve against.
	Dir string `toml:"-"`
}

// Guest selects the simulation module.
type Guest struct {
	Path string `toml:"path"`
	WASI bool   `toml:"wasi"`
}

// Arena sizes the memory shared with the guest.
type Arena struct {
	Pages   uint32 `toml:"pages"`
	Checked bool   `toml:"checked"`
}

// Display is the host window and framebuffer geometry. Height is the host
// height; the guest renders half as many rows.
type Display struct {
	Width    int    `toml:"width"`
	Height   int    `toml:"height"`
	Scale    int    `toml:"scale"`
	Renderer string `toml:"renderer"`
	VSync    bool   `toml:"vsync"`
	Overlay  bool   `toml:"overlay"`
	Title    string `toml:"title"`
}

type Scheduler struct {
	Quantum uint32 `toml:"quantum"`
}

// Headless runs without a window, paced by a timer and fed from the
// terminal.
type Headless struct {
	Enabled    bool   `toml:"enabled"`
	Frames     uint64 `toml:"frames"`
	IntervalMS int    `toml:"interval_ms"`
	Screenshot string `toml:"screenshot"`
	Terminal   bool   `toml:"terminal"`
}

func (h Headless) Interval() time.Duration {
	return time.Duration(h.IntervalMS) * time.Millisecond
}

// Journal is the sqlite session record. An empty path disables it.
type Journal struct {
	Path string `toml:"path"`
}

// Drives are disk images inserted at startup.
type Drives struct {
	A string `toml:"a"`
	B string `toml:"b"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Arena: Arena{
			Pages:   1000,
			Checked: true,
		},
		Display: Display{
			Width:    768,
			Height:   544,
			Scale:    1,
			Renderer: RendererBlit,
			VSync:    true,
			Overlay:  true,
			Title:    "zpzhost",
		},
		Scheduler: Scheduler{
			Quantum: 16,
		},
		Headless: Headless{
			IntervalMS: 16,
			Terminal:   true,
		},
		Dir: ".",
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// LoadOptional is Load, except a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// Resolve returns p relative to the configuration's directory. Absolute and
// empty paths are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Guest.Path == "" {
		errs = append(errs, errors.New("guest.path is required"))
	}
	if c.Arena.Pages == 0 || c.Arena.Pages > 65536 {
		errs = append(errs, fmt.Errorf("arena.pages must be between 1 and 65536, got %d", c.Arena.Pages))
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		errs = append(errs, fmt.Errorf("display size must be positive, got %dx%d", c.Display.Width, c.Display.Height))
	}
	if c.Display.Scale < 1 {
		errs = append(errs, fmt.Errorf("display.scale must be at least 1, got %d", c.Display.Scale))
	}
	switch c.Display.Renderer {
	case RendererBlit, RendererShader:
	default:
		errs = append(errs, fmt.Errorf("display.renderer must be %q or %q, got %q", RendererBlit, RendererShader, c.Display.Renderer))
	}
	if c.Scheduler.Quantum == 0 {
		errs = append(errs, errors.New("scheduler.quantum must be positive"))
	}
	if c.Headless.IntervalMS < 0 {
		errs = append(errs, fmt.Errorf("headless.interval_ms must not be negative, got %d", c.Headless.IntervalMS))
	}
	return errors.Join(errs...)
}
