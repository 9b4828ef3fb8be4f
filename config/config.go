// Package config loads the YAML configuration shared by the sfmmaps tools.
//
// The file is named by the --config flag or the SFMMAPS_CONFIG environment
// variable. There is no discovery: without either, Default is used as is.
// ${VAR} and ${VAR:-default} are expanded in path fields after loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvVar = "SFMMAPS_CONFIG"

type Config struct {
	// Indent is used when writing level files. Empty writes the compact
	// form the game itself produces.
	Indent string `yaml:"indent"`

	// PrefabDir overrides embedded prefab specs and scripts with files on disk.
	PrefabDir string `yaml:"prefab_dir"`

	Preview  PreviewConfig  `yaml:"preview"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Watch    WatchConfig    `yaml:"watch"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

type PreviewConfig struct {
	// Scale is pixels per game unit before fitting to MaxWidth x MaxHeight.
	Scale      float64 `yaml:"scale"`
	MarkerSize int     `yaml:"marker_size"`
	MaxWidth   int     `yaml:"max_width"`
	MaxHeight  int     `yaml:"max_height"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Dirs     []string      `yaml:"dirs"`
}

type SnapshotConfig struct {
	// Level is the zstd encoder level: fastest, default, better or best.
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		PrefabDir: "prefabs",
		Preview: PreviewConfig{
			Scale:      0.5,
			MarkerSize: 6,
			MaxWidth:   1024,
			MaxHeight:  1024,
		},
		Catalog: CatalogConfig{
			Path: "${SFMMAPS_HOME:-.}/levels.db",
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
			Dirs:     []string{"levels"},
		},
		Snapshot: SnapshotConfig{
			Level: "default",
		},
	}
}

// Load reads the file named by SFMMAPS_CONFIG, or returns Default when the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.PrefabDir = expandVars(c.PrefabDir)
	c.Catalog.Path = expandVars(c.Catalog.Path)
	for i, dir := range c.Watch.Dirs {
		c.Watch.Dirs[i] = expandVars(dir)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

func (c *Config) Validate() error {
	var errs []error

	if c.Preview.Scale <= 0 {
		errs = append(errs, fmt.Errorf("preview.scale must be positive, got %v", c.Preview.Scale))
	}
	if c.Preview.MarkerSize <= 0 {
		errs = append(errs, fmt.Errorf("preview.marker_size must be positive, got %d", c.Preview.MarkerSize))
	}
	if c.Preview.MaxWidth <= 0 || c.Preview.MaxHeight <= 0 {
		errs = append(errs, fmt.Errorf("preview.max_width and preview.max_height must be positive"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative"))
	}
	switch c.Snapshot.Level {
	case "fastest", "default", "better", "best":
	default:
		errs = append(errs, fmt.Errorf("snapshot.level must be one of fastest, default, better, best; got %q", c.Snapshot.Level))
	}

	return errors.Join(errs...)
}
