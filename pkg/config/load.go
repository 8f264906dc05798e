package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
)

// EnvConfig is the environment variable naming an explicit config file.
const EnvConfig = "FEL4_CONFIG"

// Filename is the config file name inside each search directory.
const Filename = "config.toml"

var toolConfigValidator = validator.New()

// Discover returns the config file path the tool should load. An explicit
// path (or one from FEL4_CONFIG) must exist; otherwise the XDG directories
// are searched and an empty path means no file was found.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if env := os.Getenv(EnvConfig); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("config file from %s not found: %s", EnvConfig, env)
		}
		return env, nil
	}

	for _, dir := range searchDirs() {
		candidate := filepath.Join(dir, Filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", nil
}

// UserConfigPath returns where a per-user config file belongs, whether or
// not one exists yet. This is the first directory Discover searches.
func UserConfigPath() (string, error) {
	dirs := searchDirs()
	if len(dirs) == 0 {
		return "", fmt.Errorf("no user configuration directory available")
	}
	return filepath.Join(dirs[0], Filename), nil
}

// searchDirs returns the XDG-ordered directories a config.toml may live in.
func searchDirs() []string {
	var dirs []string

	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		dirs = append(dirs, filepath.Join(xdgHome, "fel4"))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "fel4"))
	}

	if xdgDirs := os.Getenv("XDG_CONFIG_DIRS"); xdgDirs != "" {
		for _, dir := range filepath.SplitList(xdgDirs) {
			dirs = append(dirs, filepath.Join(dir, "fel4"))
		}
	} else {
		dirs = append(dirs,
			filepath.Join("/etc/xdg", "fel4"),
			filepath.Join("/etc", "fel4"),
		)
	}

	return dirs
}

// LoadOrDefault discovers and loads the tool configuration, falling back to
// defaults when no file exists.
func LoadOrDefault(explicit string) (*ToolConfig, error) {
	path, err := Discover(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		log.Debug().Msg("No tool configuration found, using defaults")
		return Default(), nil
	}
	return Load(path)
}

// Load reads and validates a tool configuration file.
func Load(path string) (*ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path

	log.Debug().Str("path", path).Msg("Tool configuration loaded")
	return cfg, nil
}

// Parse decodes tool configuration TOML over the defaults. Unknown keys are
// an error so typos surface instead of silently reverting to defaults.
func Parse(data []byte) (*ToolConfig, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := toolConfigValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
