package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// ManifestFilename is the conventional name of a fel4 manifest file.
const ManifestFilename = "fel4.toml"

// ErrManifestNotFound is returned when no manifest file can be located.
var ErrManifestNotFound = errors.New("manifest not found")

var headerValidator = validator.New()

// ParseFullManifest reads a fel4 manifest and builds the raw layered model.
//
// Every top-level entry must be a table. The reserved [fel4] table is the
// header; [global] is the global layer; every other table name must be a
// canonical target, platform, or profile name and becomes a layer of that
// scope. Within a layer, the reserved keys "artifact-path" and
// "target-specs-path" set the layer's paths; every other key is converted
// through FlattenTomlValue, so nested tables and arrays are rejected here
// with the offending property named.
func ParseFullManifest(r io.Reader) (*FullFel4Manifest, error) {
	var data map[string]any
	md, err := toml.NewDecoder(r).Decode(&data)
	if err != nil {
		return nil, NewManifestSyntaxError(err)
	}

	manifest := &FullFel4Manifest{}

	for _, section := range topLevelSections(md) {
		raw, ok := data[section]
		if !ok {
			continue
		}

		table, ok := raw.(map[string]any)
		if !ok {
			if _, isArray := raw.([]map[string]any); isArray {
				return nil, NewManifestShapeError(
					fmt.Sprintf("section %q must be a table, not an array of tables", section), nil)
			}
			return nil, NewManifestShapeError(
				fmt.Sprintf("top-level key %q must be a table", section), nil)
		}

		if section == HeaderSectionName {
			header, err := decodeHeader(table)
			if err != nil {
				return nil, err
			}
			manifest.Header = header
			continue
		}

		kind, err := parseScopeName(section)
		if err != nil {
			return nil, err
		}

		layer, err := buildLayer(kind, section, table, md)
		if err != nil {
			return nil, err
		}
		manifest.AddLayer(layer)
	}

	return manifest, nil
}

// LoadFullManifest reads and parses the manifest at path.
func LoadFullManifest(path string) (*FullFel4Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	manifest, err := ParseFullManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

// FindManifest walks upward from startDir looking for a fel4.toml, the way
// build tools locate their project file. It returns the manifest path.
func FindManifest(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ManifestFilename)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s in %s or any parent directory",
				ErrManifestNotFound, ManifestFilename, startDir)
		}
		dir = parent
	}
}

// topLevelSections returns the top-level key names in source order,
// de-duplicated, with map members not covered by the metadata appended in
// sorted order.
func topLevelSections(md toml.MetaData) []string {
	seen := make(map[string]bool)
	sections := make([]string, 0)
	for _, key := range md.Keys() {
		if len(key) != 1 || seen[key[0]] {
			continue
		}
		seen[key[0]] = true
		sections = append(sections, key[0])
	}
	return sections
}

// parseScopeName maps a section name onto a layer scope. Unknown names fail
// with the full listing of valid section names.
func parseScopeName(section string) (ScopeKind, error) {
	if section == GlobalSectionName {
		return ScopeGlobal, nil
	}
	if _, err := ParseTarget(section); err == nil {
		return ScopeTarget, nil
	}
	if _, err := ParsePlatform(section); err == nil {
		return ScopePlatform, nil
	}
	if _, err := ParseBuildProfile(section); err == nil {
		return ScopeProfile, nil
	}
	return "", NewUnknownIdentifierError(IdentifierScope, section, SectionNames())
}

// SectionNames returns every accepted top-level section name of a manifest:
// the header, the global layer, and the canonical identifier names.
func SectionNames() []string {
	names := []string{HeaderSectionName, GlobalSectionName}
	names = append(names, TargetNames()...)
	names = append(names, PlatformNames()...)
	names = append(names, BuildProfileNames()...)
	return names
}

// buildLayer converts one decoded section table into a Layer. Property order
// follows the source file where the TOML metadata records it; keys the
// metadata does not cover (e.g. created through dotted intermediate tables)
// are appended in sorted order so output stays deterministic.
func buildLayer(kind ScopeKind, section string, table map[string]any, md toml.MetaData) (Layer, error) {
	layer := Layer{Kind: kind, Name: section}

	order := make(map[string]int)
	for i, key := range md.Keys() {
		if len(key) == 2 && key[0] == section {
			if _, ok := order[key[1]]; !ok {
				order[key[1]] = i
			}
		}
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, iOK := order[names[i]]
		oj, jOK := order[names[j]]
		if iOK && jOK {
			return oi < oj
		}
		if iOK != jOK {
			return iOK
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		raw := table[name]

		if name == string(PathArtifact) || name == string(PathTargetSpecs) {
			path, ok := raw.(string)
			if !ok {
				return Layer{}, NewManifestShapeError(
					fmt.Sprintf("%s must be a string", name), nil).
					WithScope(layer.String()).WithProperty(name)
			}
			if name == string(PathArtifact) {
				layer.ArtifactPath = path
			} else {
				layer.TargetSpecsPath = path
			}
			continue
		}

		value, err := FlattenTomlValue(raw)
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return Layer{}, cfgErr.WithScope(layer.String()).WithProperty(name)
			}
			return Layer{}, err
		}
		layer.Properties = append(layer.Properties, FlatTomlProperty{Name: name, Value: value})
	}

	return layer, nil
}

// decodeHeader decodes and validates the reserved [fel4] header section.
func decodeHeader(table map[string]any) (Header, error) {
	var header Header

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &header,
		ErrorUnused: true,
	})
	if err != nil {
		return Header{}, fmt.Errorf("failed to create header decoder: %w", err)
	}

	if err := decoder.Decode(table); err != nil {
		return Header{}, NewManifestShapeError("invalid [fel4] header section", err)
	}

	if err := headerValidator.Struct(header); err != nil {
		return Header{}, NewManifestShapeError("invalid [fel4] header section", err)
	}

	return header, nil
}
