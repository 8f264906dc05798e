package manifest

import "sort"

// Fel4Config is a fully resolved configuration for one
// (target, platform, profile) triple. It is constructed only by Resolve,
// carries no reference back to the raw layered source, and must be treated
// as immutable by callers.
type Fel4Config struct {
	// ArtifactPath is where build outputs are placed, resolved by layer
	// precedence.
	ArtifactPath string `json:"artifact_path" yaml:"artifact-path"`

	// TargetSpecsPath is where target specifications live, resolved by layer
	// precedence.
	TargetSpecsPath string `json:"target_specs_path" yaml:"target-specs-path"`

	// Target, Platform, and BuildProfile are the identifiers the
	// configuration was resolved for.
	Target       SupportedTarget   `json:"target" yaml:"target"`
	Platform     SupportedPlatform `json:"platform" yaml:"platform"`
	BuildProfile BuildProfile      `json:"build_profile" yaml:"build-profile"`

	// Properties is the merged flat property set. Higher-precedence layers
	// replace lower-precedence values whole; there is no partial merging.
	Properties map[string]FlatTomlValue `json:"properties" yaml:"properties"`
}

// Property returns the named resolved property.
func (c *Fel4Config) Property(name string) (FlatTomlValue, bool) {
	v, ok := c.Properties[name]
	return v, ok
}

// PropertyNames returns the resolved property names in sorted order, for
// deterministic iteration and output.
func (c *Fel4Config) PropertyNames() []string {
	names := make([]string, 0, len(c.Properties))
	for name := range c.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the structural invariants of the raw manifest: every layer
// scoped to a known identifier, at most one layer per scope, and unique
// non-empty property names within each layer. It does not require any
// particular layer to exist.
func (m *FullFel4Manifest) Validate() error {
	seen := make(map[ScopeKind]map[string]bool)

	for _, layer := range m.Layers {
		if err := validateLayerScope(layer); err != nil {
			return err
		}

		if seen[layer.Kind] == nil {
			seen[layer.Kind] = make(map[string]bool)
		}
		if seen[layer.Kind][layer.Name] {
			return NewDuplicateLayerError(layer.String())
		}
		seen[layer.Kind][layer.Name] = true

		names := make(map[string]bool, len(layer.Properties))
		for _, prop := range layer.Properties {
			if prop.Name == "" {
				return NewManifestShapeError("property with empty name", nil).
					WithScope(layer.String())
			}
			if names[prop.Name] {
				return NewDuplicatePropertyError(layer.String(), prop.Name)
			}
			names[prop.Name] = true
		}
	}

	return nil
}

// validateLayerScope checks that a layer's scope names a known identifier.
func validateLayerScope(layer Layer) error {
	switch layer.Kind {
	case ScopeGlobal:
		if layer.Name != GlobalSectionName {
			return NewUnknownIdentifierError(IdentifierScope, layer.Name, []string{GlobalSectionName})
		}
	case ScopeTarget:
		if _, err := ParseTarget(layer.Name); err != nil {
			return err
		}
	case ScopePlatform:
		if _, err := ParsePlatform(layer.Name); err != nil {
			return err
		}
	case ScopeProfile:
		if _, err := ParseBuildProfile(layer.Name); err != nil {
			return err
		}
	default:
		return NewUnknownIdentifierError(IdentifierScope, string(layer.Kind), scopeKindNames())
	}
	return nil
}

func scopeKindNames() []string {
	return []string{
		string(ScopeGlobal),
		string(ScopeTarget),
		string(ScopePlatform),
		string(ScopeProfile),
	}
}

// Resolve merges the layered manifest into a single configuration for the
// requested triple. Properties merge in strict precedence order
// global -> target -> platform -> profile, with whole-value replacement per
// name. Paths resolve by the same precedence and both must end up defined.
//
// Resolve is a pure function of its inputs: it performs no I/O, mutates
// nothing it is given, and may be called concurrently for different triples
// over the same manifest.
func Resolve(m *FullFel4Manifest, target SupportedTarget, platform SupportedPlatform, profile BuildProfile) (*Fel4Config, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	// Precedence order, lowest first. Absent layers contribute nothing.
	layers := make([]*Layer, 0, 4)
	for _, l := range []*Layer{
		m.GlobalLayer(),
		m.TargetLayer(target),
		m.PlatformLayer(platform),
		m.ProfileLayer(profile),
	} {
		if l != nil {
			layers = append(layers, l)
		}
	}

	properties := make(map[string]FlatTomlValue)
	artifactPath := ""
	targetSpecsPath := ""

	for _, layer := range layers {
		for _, prop := range layer.Properties {
			properties[prop.Name] = prop.Value
		}
		if layer.ArtifactPath != "" {
			artifactPath = layer.ArtifactPath
		}
		if layer.TargetSpecsPath != "" {
			targetSpecsPath = layer.TargetSpecsPath
		}
	}

	if artifactPath == "" {
		return nil, NewMissingPathError(PathArtifact)
	}
	if targetSpecsPath == "" {
		return nil, NewMissingPathError(PathTargetSpecs)
	}

	return &Fel4Config{
		ArtifactPath:    artifactPath,
		TargetSpecsPath: targetSpecsPath,
		Target:          target,
		Platform:        platform,
		BuildProfile:    profile,
		Properties:      properties,
	}, nil
}

// ResolveNamed is the raw-string entry point for resolution: it parses the
// three identifier tokens and then resolves. Callers handing user input
// straight through (CLI flags, manifest header defaults) use this form so
// unknown identifiers fail with the full valid-name listing.
func ResolveNamed(m *FullFel4Manifest, targetName, platformName, profileName string) (*Fel4Config, error) {
	target, err := ParseTarget(targetName)
	if err != nil {
		return nil, err
	}
	platform, err := ParsePlatform(platformName)
	if err != nil {
		return nil, err
	}
	profile, err := ParseBuildProfile(profileName)
	if err != nil {
		return nil, err
	}
	return Resolve(m, target, platform, profile)
}
