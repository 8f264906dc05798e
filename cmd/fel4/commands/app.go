package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fel4os/fel4/pkg/config"
	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/stores"
	"github.com/fel4os/fel4/pkg/toolchain"
)

// appContext carries the dependencies commands share: the tool
// configuration, the history store, and the tool prober backed by it.
type appContext struct {
	cfg    *config.ToolConfig
	store  *stores.SQLiteStore
	prober *toolchain.Prober
	logDir string
}

// openApp loads the tool configuration and opens the history store.
func openApp(ctx context.Context) (*appContext, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	storeCfg := cfg.StoreConfig()
	if err := os.MkdirAll(filepath.Dir(storeCfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	prober := toolchain.NewProber(store, cfg.Toolchain.Overrides)
	prober.SetTTL(cfg.Toolchain.ProbeTTL)

	return &appContext{
		cfg:    cfg,
		store:  store,
		prober: prober,
		logDir: filepath.Join(filepath.Dir(storeCfg.Path), "logs"),
	}, nil
}

// Close releases the store.
func (a *appContext) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

// loadManifest locates and parses the project manifest. The --manifest flag
// wins; otherwise the search walks upward from the current directory.
func loadManifest() (*manifest.FullFel4Manifest, string, error) {
	path := manifestFlag
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		path, err = manifest.FindManifest(cwd)
		if err != nil {
			return nil, "", err
		}
	}

	m, err := manifest.LoadFullManifest(path)
	if err != nil {
		return nil, "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return m, abs, nil
}

// selectionFromFlags resolves a single triple, with unset flags falling
// back to the [fel4] header defaults.
func selectionFromFlags(m *manifest.FullFel4Manifest, targetName, platformName, profileName string) (pipeline.Selection, error) {
	if targetName == "" {
		targetName = m.Header.DefaultTarget
	}
	if platformName == "" {
		platformName = m.Header.DefaultPlatform
	}
	if profileName == "" {
		profileName = m.Header.DefaultBuildProfile
	}

	if targetName == "" {
		return pipeline.Selection{}, fmt.Errorf("no target selected: pass --target or set default-target in [fel4]")
	}
	if platformName == "" {
		return pipeline.Selection{}, fmt.Errorf("no platform selected: pass --platform or set default-platform in [fel4]")
	}
	if profileName == "" {
		return pipeline.Selection{}, fmt.Errorf("no build profile selected: pass --profile or set default-build-profile in [fel4]")
	}

	target, err := manifest.ParseTarget(targetName)
	if err != nil {
		return pipeline.Selection{}, err
	}
	platform, err := manifest.ParsePlatform(platformName)
	if err != nil {
		return pipeline.Selection{}, err
	}
	profile, err := manifest.ParseBuildProfile(profileName)
	if err != nil {
		return pipeline.Selection{}, err
	}

	return pipeline.Selection{Target: target, Platform: platform, Profile: profile}, nil
}

// parseSelection parses a target/platform/profile triple.
func parseSelection(s string) (pipeline.Selection, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return pipeline.Selection{}, fmt.Errorf("invalid selection %q: expected target/platform/profile", s)
	}

	target, err := manifest.ParseTarget(parts[0])
	if err != nil {
		return pipeline.Selection{}, err
	}
	platform, err := manifest.ParsePlatform(parts[1])
	if err != nil {
		return pipeline.Selection{}, err
	}
	profile, err := manifest.ParseBuildProfile(parts[2])
	if err != nil {
		return pipeline.Selection{}, err
	}

	return pipeline.Selection{Target: target, Platform: platform, Profile: profile}, nil
}

// buildSelections combines explicit --select triples with the single-triple
// flags. With no selects, the single triple (or header defaults) is used.
func buildSelections(m *manifest.FullFel4Manifest, selects []string, targetName, platformName, profileName string) ([]pipeline.Selection, error) {
	if len(selects) == 0 {
		sel, err := selectionFromFlags(m, targetName, platformName, profileName)
		if err != nil {
			return nil, err
		}
		return []pipeline.Selection{sel}, nil
	}

	if targetName != "" || platformName != "" || profileName != "" {
		return nil, fmt.Errorf("--select cannot be combined with --target/--platform/--profile")
	}

	seen := make(map[string]bool, len(selects))
	selections := make([]pipeline.Selection, 0, len(selects))
	for _, s := range selects {
		sel, err := parseSelection(s)
		if err != nil {
			return nil, err
		}
		if seen[sel.String()] {
			return nil, fmt.Errorf("duplicate selection: %s", sel)
		}
		seen[sel.String()] = true
		selections = append(selections, sel)
	}
	return selections, nil
}

// allSelections expands the full identifier matrix.
func allSelections() []pipeline.Selection {
	var selections []pipeline.Selection
	for _, target := range manifest.Targets() {
		for _, platform := range manifest.Platforms() {
			for _, profile := range manifest.BuildProfiles() {
				selections = append(selections, pipeline.Selection{
					Target:   target,
					Platform: platform,
					Profile:  profile,
				})
			}
		}
	}
	return selections
}

// optional returns a pointer filter for non-empty values.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
