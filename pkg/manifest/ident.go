package manifest

// SupportedTarget identifies a CPU architecture and kernel base that a build
// can compile for. The set is closed; new targets require a release of this
// package, never runtime registration.
type SupportedTarget int

const (
	TargetX8664Sel4Fel4 SupportedTarget = iota
	TargetArmv7Sel4Fel4
	TargetAarch64Sel4Fel4
)

// SupportedPlatform identifies a hardware board or board family that a build
// can run on. The set is closed.
type SupportedPlatform int

const (
	PlatformPC99 SupportedPlatform = iota
	PlatformSabre
	PlatformTX1
)

// BuildProfile identifies the compilation mode of a build.
type BuildProfile int

const (
	ProfileDebug BuildProfile = iota
	ProfileRelease
)

// FullName returns the canonical lowercase hyphenated name for the target.
// The returned string parses back to the same variant.
func (t SupportedTarget) FullName() string {
	switch t {
	case TargetX8664Sel4Fel4:
		return "x86_64-sel4-fel4"
	case TargetArmv7Sel4Fel4:
		return "armv7-sel4-fel4"
	case TargetAarch64Sel4Fel4:
		return "aarch64-sel4-fel4"
	}
	return ""
}

// FullName returns the canonical name for the platform.
func (p SupportedPlatform) FullName() string {
	switch p {
	case PlatformPC99:
		return "pc99"
	case PlatformSabre:
		return "sabre"
	case PlatformTX1:
		return "tx1"
	}
	return ""
}

// FullName returns the canonical name for the build profile.
func (b BuildProfile) FullName() string {
	switch b {
	case ProfileDebug:
		return "debug"
	case ProfileRelease:
		return "release"
	}
	return ""
}

func (t SupportedTarget) String() string   { return t.FullName() }
func (p SupportedPlatform) String() string { return p.FullName() }
func (b BuildProfile) String() string      { return b.FullName() }

// Targets returns every supported target in stable declaration order.
func Targets() []SupportedTarget {
	return []SupportedTarget{TargetX8664Sel4Fel4, TargetArmv7Sel4Fel4, TargetAarch64Sel4Fel4}
}

// Platforms returns every supported platform in stable declaration order.
func Platforms() []SupportedPlatform {
	return []SupportedPlatform{PlatformPC99, PlatformSabre, PlatformTX1}
}

// BuildProfiles returns every build profile in stable declaration order.
func BuildProfiles() []BuildProfile {
	return []BuildProfile{ProfileDebug, ProfileRelease}
}

// TargetNames returns the canonical target names, ordered as Targets.
func TargetNames() []string {
	targets := Targets()
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.FullName())
	}
	return names
}

// PlatformNames returns the canonical platform names, ordered as Platforms.
func PlatformNames() []string {
	platforms := Platforms()
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, p.FullName())
	}
	return names
}

// BuildProfileNames returns the canonical profile names, ordered as BuildProfiles.
func BuildProfileNames() []string {
	profiles := BuildProfiles()
	names := make([]string, 0, len(profiles))
	for _, b := range profiles {
		names = append(names, b.FullName())
	}
	return names
}

// ParseTarget matches s against the canonical target names. Matching is
// case-sensitive and exact; no trimming or fuzzy matching is applied.
func ParseTarget(s string) (SupportedTarget, error) {
	for _, t := range Targets() {
		if s == t.FullName() {
			return t, nil
		}
	}
	return 0, NewUnknownIdentifierError(IdentifierTarget, s, TargetNames())
}

// ParsePlatform matches s against the canonical platform names exactly.
func ParsePlatform(s string) (SupportedPlatform, error) {
	for _, p := range Platforms() {
		if s == p.FullName() {
			return p, nil
		}
	}
	return 0, NewUnknownIdentifierError(IdentifierPlatform, s, PlatformNames())
}

// ParseBuildProfile matches s against the canonical profile names exactly.
func ParseBuildProfile(s string) (BuildProfile, error) {
	for _, b := range BuildProfiles() {
		if s == b.FullName() {
			return b, nil
		}
	}
	return 0, NewUnknownIdentifierError(IdentifierProfile, s, BuildProfileNames())
}

// MarshalText implements encoding.TextMarshaler.
func (t SupportedTarget) MarshalText() ([]byte, error) {
	return []byte(t.FullName()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SupportedTarget) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p SupportedPlatform) MarshalText() ([]byte, error) {
	return []byte(p.FullName()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *SupportedPlatform) UnmarshalText(text []byte) error {
	parsed, err := ParsePlatform(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b BuildProfile) MarshalText() ([]byte, error) {
	return []byte(b.FullName()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BuildProfile) UnmarshalText(text []byte) error {
	parsed, err := ParseBuildProfile(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
