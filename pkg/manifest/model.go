package manifest

import "fmt"

// ScopeKind identifies which precedence level a configuration layer belongs
// to. Precedence from lowest to highest: global, target, platform, profile.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeTarget   ScopeKind = "target"
	ScopePlatform ScopeKind = "platform"
	ScopeProfile  ScopeKind = "profile"
)

// GlobalSectionName is the manifest section name of the global layer.
const GlobalSectionName = "global"

// HeaderSectionName is the reserved manifest section holding selection
// defaults. It is a header, not a layer, and never contributes properties.
const HeaderSectionName = "fel4"

// Layer is one scope-specific slice of raw configuration: a set of flat
// properties plus optional path overrides, contributed at the precedence of
// its scope. Layers preserve their source order and are not deduplicated;
// rejecting duplicates is the resolver's responsibility.
type Layer struct {
	// Kind is the layer's precedence scope.
	Kind ScopeKind

	// Name is the canonical identifier the layer is scoped to: a target,
	// platform, or profile name, or "global" for the global layer.
	Name string

	// Properties holds the layer's flat properties in source order.
	Properties []FlatTomlProperty

	// ArtifactPath and TargetSpecsPath are optional per-layer path values.
	// Empty means the layer does not define them.
	ArtifactPath    string
	TargetSpecsPath string
}

// String describes the layer for error messages, e.g. `target "tx1"`.
func (l Layer) String() string {
	if l.Kind == ScopeGlobal {
		return "global"
	}
	return fmt.Sprintf("%s %q", l.Kind, l.Name)
}

// Header carries the optional selection defaults from the [fel4] manifest
// section. All fields are optional; when set they must be canonical names.
type Header struct {
	DefaultTarget       string `mapstructure:"default-target" validate:"omitempty,oneof=x86_64-sel4-fel4 armv7-sel4-fel4 aarch64-sel4-fel4"`
	DefaultPlatform     string `mapstructure:"default-platform" validate:"omitempty,oneof=pc99 sabre tx1"`
	DefaultBuildProfile string `mapstructure:"default-build-profile" validate:"omitempty,oneof=debug release"`
}

// FullFel4Manifest is the raw, pre-resolution form of a fel4 manifest: the
// optional header plus every configuration layer in source order. It can be
// produced by ParseFullManifest or constructed programmatically; either way
// Resolve validates it before merging.
type FullFel4Manifest struct {
	Header Header
	Layers []Layer
}

// AddLayer appends a layer, preserving insertion order.
func (m *FullFel4Manifest) AddLayer(l Layer) {
	m.Layers = append(m.Layers, l)
}

// GlobalLayer returns the first global layer, or nil if none is defined.
func (m *FullFel4Manifest) GlobalLayer() *Layer {
	return m.layerFor(ScopeGlobal, GlobalSectionName)
}

// TargetLayer returns the layer scoped to the given target, or nil.
func (m *FullFel4Manifest) TargetLayer(t SupportedTarget) *Layer {
	return m.layerFor(ScopeTarget, t.FullName())
}

// PlatformLayer returns the layer scoped to the given platform, or nil.
func (m *FullFel4Manifest) PlatformLayer(p SupportedPlatform) *Layer {
	return m.layerFor(ScopePlatform, p.FullName())
}

// ProfileLayer returns the layer scoped to the given profile, or nil.
func (m *FullFel4Manifest) ProfileLayer(b BuildProfile) *Layer {
	return m.layerFor(ScopeProfile, b.FullName())
}

func (m *FullFel4Manifest) layerFor(kind ScopeKind, name string) *Layer {
	for i := range m.Layers {
		if m.Layers[i].Kind == kind && m.Layers[i].Name == name {
			return &m.Layers[i]
		}
	}
	return nil
}
