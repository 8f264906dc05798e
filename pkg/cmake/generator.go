// Package cmake renders CMake cache initialization scripts from resolved
// fel4 configurations. The generated script is passed to cmake with -C so
// every manifest property reaches the seL4 build system as a typed cache
// entry without quoting games on the command line.
//
// Generation is pure text work and deterministic: the same configuration
// always renders byte-identical output, with properties in sorted order and
// no timestamps. That keeps the script diffable and lets the pipeline skip
// reconfiguration when nothing changed.
package cmake

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fel4os/fel4/pkg/manifest"
)

// Well-known cache entries emitted ahead of the manifest properties. The
// seL4 target specifications read these to locate the selection the build
// was resolved for.
const (
	EntryTarget          = "FEL4_TARGET"
	EntryPlatform        = "FEL4_PLATFORM"
	EntryBuildProfile    = "FEL4_BUILD_PROFILE"
	EntryArtifactPath    = "FEL4_ARTIFACT_PATH"
	EntryTargetSpecsPath = "FEL4_TARGET_SPECS_PATH"
)

// CacheInitFileName is the conventional file name for the generated script
// inside a build directory.
const CacheInitFileName = "fel4-cache-init.cmake"

// cacheEntryName matches CMake variable names the generator will forward.
// Anything else would need quoting tricks inside set() and is rejected
// instead.
var cacheEntryName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Generator renders cache initialization scripts for resolved
// configurations.
type Generator struct {
	logger zerolog.Logger
}

// NewGenerator creates a cache-init generator.
func NewGenerator(logger zerolog.Logger) *Generator {
	return &Generator{
		logger: logger.With().Str("component", "cmake-generator").Logger(),
	}
}

// CacheInit renders the cache initialization script for cfg. Entries appear
// in a fixed order: a header comment, the well-known selection entries, the
// CMake build type, then every manifest property sorted by name.
func (g *Generator) CacheInit(cfg *manifest.Fel4Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("nil configuration")
	}

	var b strings.Builder
	b.WriteString("# fel4 CMake cache initialization\n")
	fmt.Fprintf(&b, "# selection: %s / %s / %s\n",
		cfg.Target.FullName(), cfg.Platform.FullName(), cfg.BuildProfile.FullName())
	b.WriteString("# Generated by fel4. Do not edit.\n\n")

	writeEntry(&b, EntryTarget, cfg.Target.FullName(), "STRING")
	writeEntry(&b, EntryPlatform, cfg.Platform.FullName(), "STRING")
	writeEntry(&b, EntryBuildProfile, cfg.BuildProfile.FullName(), "STRING")
	writeEntry(&b, EntryArtifactPath, cfg.ArtifactPath, "STRING")
	writeEntry(&b, EntryTargetSpecsPath, cfg.TargetSpecsPath, "STRING")
	writeEntry(&b, "CMAKE_BUILD_TYPE", buildType(cfg.BuildProfile), "STRING")
	b.WriteString("\n")

	for _, name := range cfg.PropertyNames() {
		if !cacheEntryName.MatchString(name) {
			return "", fmt.Errorf("property %q is not a valid CMake cache entry name", name)
		}

		value := cfg.Properties[name]
		if flag, ok := value.AsBoolean(); ok {
			writeBoolEntry(&b, name, flag)
			continue
		}
		writeEntry(&b, name, value.String(), "STRING")
	}

	g.logger.Debug().
		Str("target", cfg.Target.FullName()).
		Str("platform", cfg.Platform.FullName()).
		Str("profile", cfg.BuildProfile.FullName()).
		Int("properties", len(cfg.Properties)).
		Msg("Rendered cache initialization script")

	return b.String(), nil
}

// WriteCacheInit renders the script for cfg and writes it into dir under
// CacheInitFileName, creating dir if needed. It returns the path of the
// written file.
func (g *Generator) WriteCacheInit(cfg *manifest.Fel4Config, dir string) (string, error) {
	script, err := g.CacheInit(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	path := filepath.Join(dir, CacheInitFileName)
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("failed to write cache initialization script: %w", err)
	}

	g.logger.Debug().Str("path", path).Msg("Wrote cache initialization script")
	return path, nil
}

// writeEntry emits one string-typed set() with an escaped value.
func writeEntry(b *strings.Builder, name, value, entryType string) {
	fmt.Fprintf(b, "set(%s \"%s\" CACHE %s \"\")\n", name, escapeValue(value), entryType)
}

// writeBoolEntry emits a BOOL-typed set() using CMake's ON/OFF spelling.
func writeBoolEntry(b *strings.Builder, name string, value bool) {
	state := "OFF"
	if value {
		state = "ON"
	}
	fmt.Fprintf(b, "set(%s %s CACHE BOOL \"\")\n", name, state)
}

// escapeValue makes a value safe inside a double-quoted CMake argument.
// Backslashes and quotes are escaped, dollar signs are escaped so values
// never trigger variable expansion, and newlines become the \n escape.
func escapeValue(value string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`$`, `\$`,
		"\n", `\n`,
		"\r", ``,
	)
	return r.Replace(value)
}

// buildType maps a fel4 profile to the matching CMAKE_BUILD_TYPE value.
func buildType(profile manifest.BuildProfile) string {
	if profile == manifest.ProfileRelease {
		return "Release"
	}
	return "Debug"
}
