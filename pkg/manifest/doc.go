// Package manifest provides the layered build-configuration model for fel4
// projects and the resolver that collapses it into a single flat view.
//
// # Overview
//
// A fel4 project is configured through a fel4.toml manifest. The manifest is
// made of layers, one per scope, and resolution merges them in a fixed
// precedence order:
//
//  1. Global - properties shared by every build
//  2. Target - properties for one compilation target (e.g. x86_64-sel4-fel4)
//  3. Platform - properties for one hardware platform (e.g. pc99)
//  4. Profile - properties for one build profile (debug or release)
//
// Later layers win: a property defined in the profile layer replaces the same
// property from any earlier layer, as a whole value.
//
// # Core Domain Types
//
//   - SupportedTarget, SupportedPlatform, BuildProfile: the closed identifier
//     sets a build can select, with exact, case-sensitive parsing
//   - FlatTomlValue: a single scalar configuration value (string, integer,
//     float, boolean, or datetime); tables and arrays are rejected
//   - FlatTomlProperty: a named value inside one layer
//   - Layer: the properties and reserved paths contributed by one scope
//   - FullFel4Manifest: the raw layered model as read from fel4.toml
//   - Fel4Config: the resolved flat configuration for one
//     target/platform/profile selection
//
// # Resolution
//
// Resolve validates the layered model and merges the layers selected by the
// given target, platform, and profile:
//
//	m, err := manifest.LoadFullManifest("fel4.toml")
//	cfg, err := manifest.Resolve(m, manifest.TargetX8664Sel4Fel4,
//	    manifest.PlatformPC99, manifest.ProfileDebug)
//
// Validation rejects unknown scope names, duplicate layers for the same
// scope, and duplicate property names within a layer. Resolution fails if
// neither path survives the merge: every build needs artifact-path and
// target-specs-path.
//
// # Error Classification
//
// All model and resolution failures are reported as *ConfigError values
// carrying a machine-readable kind. Use the helper predicates to inspect
// them:
//
//	if manifest.IsUnknownIdentifier(err) {
//	    // the caller passed a name outside the closed sets
//	}
//
// # Thread Safety
//
// FullFel4Manifest and Fel4Config are plain value holders. Resolve does not
// mutate its inputs, so a manifest may be resolved concurrently for different
// selections.
package manifest
