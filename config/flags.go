package config

import (
	"flag"
	"path/filepath"
)

// Flags are the command line settings. Those that mirror a configuration
// key only override it when given explicitly.
type Flags struct {
	ConfigPath string
	Wasm       string
	DiskA      string
	DiskB      string
	Renderer   string
	Journal    string
	Screenshot string
	Headless   bool
	Frames     uint64
	History    int
	Verbose    bool

	fs *flag.FlagSet
}

func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", DefaultFile, "Path to the configuration file")
	fs.StringVar(&f.Wasm, "wasm", "", "Path to the guest module")
	fs.StringVar(&f.DiskA, "disk-a", "", "Disk image to insert in drive A at startup")
	fs.StringVar(&f.DiskB, "disk-b", "", "Disk image to insert in drive B at startup")
	fs.StringVar(&f.Renderer, "renderer", "", "Display path: blit or shader")
	fs.StringVar(&f.Journal, "journal", "", "Path to the session journal database")
	fs.StringVar(&f.Screenshot, "screenshot", "", "Write the last frame to this PNG when a headless run ends")
	fs.BoolVar(&f.Headless, "headless", false, "Run without a window")
	fs.Uint64Var(&f.Frames, "frames", 0, "Stop after this many frames (headless)")
	fs.IntVar(&f.History, "history", 0, "Print this many recent journal events and exit")
	fs.BoolVar(&f.Verbose, "v", false, "Enable debug logging")
	return f
}

// ConfigGiven reports whether -config was passed explicitly.
func (f *Flags) ConfigGiven() bool {
	given := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "config" {
			given = true
		}
	})
	return given
}

// Apply copies explicitly given flags over c. Paths from flags are taken
// relative to the working directory, not the configuration file.
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "wasm":
			c.Guest.Path = abs(f.Wasm)
		case "disk-a":
			c.Drives.A = abs(f.DiskA)
		case "disk-b":
			c.Drives.B = abs(f.DiskB)
		case "renderer":
			c.Display.Renderer = f.Renderer
		case "journal":
			c.Journal.Path = abs(f.Journal)
		case "screenshot":
			c.Headless.Screenshot = abs(f.Screenshot)
		case "headless":
			c.Headless.Enabled = f.Headless
		case "frames":
			c.Headless.Frames = f.Frames
		}
	})
}

func abs(p string) string {
	if p == "" {
		return p
	}
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}
