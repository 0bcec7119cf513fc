// Package config handles acsrun.toml configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/skyjake/Doomsday-Engine-sub054/pkg/vm"
)

// FileName is the configuration file looked up next to the modules.
const FileName = "acsrun.toml"

// Config represents an acsrun.toml configuration.
type Config struct {
	VM    VMConfig    `toml:"vm"`
	World WorldConfig `toml:"world"`
	Maps  MapsConfig  `toml:"maps"`
	Sound SoundConfig `toml:"sound"`

	// Dir is the directory containing the configuration file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig sizes the interpreter.
type VMConfig struct {
	StackDepth     int    `toml:"stack_depth"`
	ScriptVars     int    `toml:"script_vars"`
	MapVars        int    `toml:"map_vars"`
	WorldVars      int    `toml:"world_vars"`
	StoreSize      int    `toml:"store_size"`
	PrintBuffer    int    `toml:"print_buffer"`
	OpenScriptBase int32  `toml:"open_script_base"`
	OpenDelay      int    `toml:"open_delay"`
	MaxRunSteps    int    `toml:"max_run_steps"`
	Sound3D        bool   `toml:"sound_3d"`
	Seed           uint64 `toml:"seed"`
	Charset        string `toml:"charset"`
}

// WorldConfig describes the map used by the reference world.
type WorldConfig struct {
	Players       []int          `toml:"players"`
	ConsolePlayer int            `toml:"console_player"`
	Skill         int32          `toml:"skill"`
	GameMode      string         `toml:"game_mode"`
	MoverTics     int            `toml:"mover_tics"`
	Materials     []string       `toml:"materials"`
	Sectors       []SectorConfig `toml:"sectors"`
	Lines         []LineConfig   `toml:"lines"`
	Things        []ThingConfig  `toml:"things"`
	Polyobjects   []int32        `toml:"polyobjects"`
}

// SectorConfig is one sector. Sectors are numbered from 1 in file order.
type SectorConfig struct {
	Tag     int32  `toml:"tag"`
	Floor   string `toml:"floor"`
	Ceiling string `toml:"ceiling"`
}

// LineConfig is one line. Lines are numbered from 1 in file order.
type LineConfig struct {
	Tag         int32   `toml:"tag"`
	Special     int32   `toml:"special"`
	Args        []int32 `toml:"args"`
	FrontSector int32   `toml:"front_sector"`
	Blocking    bool    `toml:"blocking"`
}

// ThingConfig is one thing. Things are numbered from 1 in file order.
type ThingConfig struct {
	Type   int32      `toml:"type"`
	TID    int32      `toml:"tid"`
	Player *int       `toml:"player"` // set for player avatars
	Pos    [3]float64 `toml:"pos"`
}

// SoundConfig locates the WAV files played for script sounds.
type SoundConfig struct {
	Dir string `toml:"dir"` // empty disables playback
}

// SoundDir returns the sound directory resolved against Dir, or "".
func (c *Config) SoundDir() string {
	d := c.Sound.Dir
	if d == "" || filepath.IsAbs(d) || c.Dir == "" {
		return d
	}
	return filepath.Join(c.Dir, d)
}

// MapsConfig maps map numbers to module files.
type MapsConfig struct {
	Start int               `toml:"start"`
	Files map[string]string `toml:"files"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	l := vm.DefaultLimits()
	return &Config{
		VM: VMConfig{
			StackDepth:     l.StackDepth,
			ScriptVars:     l.ScriptVars,
			MapVars:        l.MapVars,
			WorldVars:      l.WorldVars,
			StoreSize:      l.StoreSize,
			PrintBuffer:    l.PrintBuffer,
			OpenScriptBase: l.OpenScriptBase,
			OpenDelay:      l.OpenDelay,
			MaxRunSteps:    l.MaxRunSteps,
			Charset:        "IBM437",
		},
		World: WorldConfig{
			Players:   []int{0},
			Skill:     2,
			GameMode:  "single",
			MoverTics: vm.TicsPerSecond * 2,
		},
		Maps: MapsConfig{Start: 1},
	}
}

// Load parses the configuration file at path. Keys missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad loads FileName from dir, or returns the defaults if there is
// none.
func FindAndLoad(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c := Default()
		c.Dir = dir
		return c, nil
	}
	return Load(path)
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if err := c.Limits().Validate(); err != nil {
		return fmt.Errorf("vm: %w", err)
	}
	if _, err := c.Charmap(); err != nil {
		return fmt.Errorf("vm: %w", err)
	}
	if _, err := ParseGameMode(c.World.GameMode); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	if c.World.MoverTics <= 0 {
		return fmt.Errorf("world: mover_tics must be positive, got %d", c.World.MoverTics)
	}
	for i, l := range c.World.Lines {
		if len(l.Args) > 5 {
			return fmt.Errorf("world: line %d has %d args, at most 5 allowed", i+1, len(l.Args))
		}
		if l.FrontSector < 0 || int(l.FrontSector) > len(c.World.Sectors) {
			return fmt.Errorf("world: line %d front sector %d does not exist", i+1, l.FrontSector)
		}
	}
	for key := range c.Maps.Files {
		if _, err := strconv.Atoi(key); err != nil {
			return fmt.Errorf("maps: key %q is not a map number", key)
		}
	}
	return nil
}

// Limits returns the VM limits of the configuration.
func (c *Config) Limits() vm.Limits {
	return vm.Limits{
		StackDepth:     c.VM.StackDepth,
		ScriptVars:     c.VM.ScriptVars,
		MapVars:        c.VM.MapVars,
		WorldVars:      c.VM.WorldVars,
		StoreSize:      c.VM.StoreSize,
		PrintBuffer:    c.VM.PrintBuffer,
		OpenScriptBase: c.VM.OpenScriptBase,
		OpenDelay:      c.VM.OpenDelay,
		MaxRunSteps:    c.VM.MaxRunSteps,
	}
}

// Charmap resolves the configured charset by its IANA name or alias.
func (c *Config) Charmap() (*charmap.Charmap, error) {
	enc, err := ianaindex.IANA.Encoding(c.VM.Charset)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", c.VM.Charset, err)
	}
	cm, ok := enc.(*charmap.Charmap)
	if !ok {
		return nil, fmt.Errorf("charset %q is not a single-byte code page", c.VM.Charset)
	}
	return cm, nil
}

// SessionOptions returns the VM options the configuration selects.
func (c *Config) SessionOptions() ([]vm.Option, error) {
	cm, err := c.Charmap()
	if err != nil {
		return nil, err
	}
	return []vm.Option{
		vm.WithLimits(c.Limits()),
		vm.WithSeed(c.VM.Seed),
		vm.WithSound3D(c.VM.Sound3D),
		vm.WithCharset(cm),
	}, nil
}

// MapFiles returns the configured map modules by map number, with relative
// paths resolved against Dir.
func (c *Config) MapFiles() map[int]string {
	out := make(map[int]string, len(c.Maps.Files))
	for key, file := range c.Maps.Files {
		n, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(file) && c.Dir != "" {
			file = filepath.Join(c.Dir, file)
		}
		out[n] = file
	}
	return out
}

// MapNumbers returns the configured map numbers in ascending order.
func (c *Config) MapNumbers() []int {
	files := c.MapFiles()
	out := make([]int, 0, len(files))
	for n := range files {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// ParseGameMode converts a game mode name.
func ParseGameMode(name string) (vm.GameMode, error) {
	switch name {
	case "", "single":
		return vm.GameSingle, nil
	case "coop", "cooperative":
		return vm.GameCooperative, nil
	case "deathmatch", "dm":
		return vm.GameDeathmatch, nil
	}
	return 0, fmt.Errorf("unknown game mode %q", name)
}
