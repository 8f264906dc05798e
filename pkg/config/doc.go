// Package config loads the fel4 tool's own configuration.
//
// This is the configuration of the tool itself (where build history lives,
// which policies run, how loud the logs are), not the project manifest;
// fel4.toml is handled by the manifest package.
//
// # Discovery
//
// The configuration file is fel4/config.toml, searched in order:
//
//  1. The path given explicitly (--config)
//  2. $FEL4_CONFIG
//  3. $XDG_CONFIG_HOME/fel4/config.toml (or ~/.config/fel4/config.toml)
//  4. /etc/xdg/fel4/config.toml
//  5. /etc/fel4/config.toml
//
// A missing file is not an error; the tool runs on defaults. The project
// directory is deliberately not searched so that the tool config can never
// be confused with the fel4.toml manifest.
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(configFlag)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(version))
//	store, err := stores.NewSQLiteStore(cfg.StoreConfig())
//
// # Format
//
// TOML, decoded strictly: unknown keys are an error so typos surface
// immediately instead of silently falling back to defaults.
//
//	[telemetry.logging]
//	level = "debug"
//	format = "console"
//
//	[store]
//	path = "~/.local/state/fel4/history.db"
//
//	[policy]
//	paths = ["policy"]
//
//	[deploy]
//	inventory = "boards.yaml"
//
//	[toolchain]
//	probe_ttl = "1h"
//	[toolchain.overrides]
//	cmake = "/opt/cmake/bin/cmake"
//
//	[build]
//	max_parallel = 4
package config
