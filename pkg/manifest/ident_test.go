package manifest

import (
	"testing"
)

func TestTargets_EnumeratesAllVariants(t *testing.T) {
	targets := Targets()

	expected := []SupportedTarget{
		TargetX8664Sel4Fel4,
		TargetArmv7Sel4Fel4,
		TargetAarch64Sel4Fel4,
	}

	if len(targets) != len(expected) {
		t.Fatalf("Expected %d targets, got %d", len(expected), len(targets))
	}

	for i, target := range expected {
		if targets[i] != target {
			t.Errorf("Expected target %v at position %d, got %v", target, i, targets[i])
		}
	}
}

func TestPlatforms_EnumeratesAllVariants(t *testing.T) {
	platforms := Platforms()

	expected := []SupportedPlatform{PlatformPC99, PlatformSabre, PlatformTX1}

	if len(platforms) != len(expected) {
		t.Fatalf("Expected %d platforms, got %d", len(expected), len(platforms))
	}

	for i, platform := range expected {
		if platforms[i] != platform {
			t.Errorf("Expected platform %v at position %d, got %v", platform, i, platforms[i])
		}
	}
}

func TestBuildProfiles_EnumeratesAllVariants(t *testing.T) {
	profiles := BuildProfiles()

	expected := []BuildProfile{ProfileDebug, ProfileRelease}

	if len(profiles) != len(expected) {
		t.Fatalf("Expected %d profiles, got %d", len(expected), len(profiles))
	}

	for i, profile := range expected {
		if profiles[i] != profile {
			t.Errorf("Expected profile %v at position %d, got %v", profile, i, profiles[i])
		}
	}
}

func TestTargetNames_MatchVariantOrder(t *testing.T) {
	names := TargetNames()

	expected := []string{"x86_64-sel4-fel4", "armv7-sel4-fel4", "aarch64-sel4-fel4"}

	if len(names) != len(expected) {
		t.Fatalf("Expected %d names, got %d", len(expected), len(names))
	}

	for i, name := range expected {
		if names[i] != name {
			t.Errorf("Expected name %q at position %d, got %q", name, i, names[i])
		}
	}
}

func TestPlatformNames_MatchVariantOrder(t *testing.T) {
	names := PlatformNames()

	expected := []string{"pc99", "sabre", "tx1"}

	if len(names) != len(expected) {
		t.Fatalf("Expected %d names, got %d", len(expected), len(names))
	}

	for i, name := range expected {
		if names[i] != name {
			t.Errorf("Expected name %q at position %d, got %q", name, i, names[i])
		}
	}
}

func TestBuildProfileNames_MatchVariantOrder(t *testing.T) {
	names := BuildProfileNames()

	expected := []string{"debug", "release"}

	if len(names) != len(expected) {
		t.Fatalf("Expected %d names, got %d", len(expected), len(names))
	}

	for i, name := range expected {
		if names[i] != name {
			t.Errorf("Expected name %q at position %d, got %q", name, i, names[i])
		}
	}
}

func TestParseTarget_RoundTrip(t *testing.T) {
	for _, target := range Targets() {
		parsed, err := ParseTarget(target.FullName())
		if err != nil {
			t.Fatalf("Expected %q to parse, got: %v", target.FullName(), err)
		}
		if parsed != target {
			t.Errorf("Expected %v after round trip, got %v", target, parsed)
		}
	}
}

func TestParsePlatform_RoundTrip(t *testing.T) {
	for _, platform := range Platforms() {
		parsed, err := ParsePlatform(platform.FullName())
		if err != nil {
			t.Fatalf("Expected %q to parse, got: %v", platform.FullName(), err)
		}
		if parsed != platform {
			t.Errorf("Expected %v after round trip, got %v", platform, parsed)
		}
	}
}

func TestParseBuildProfile_RoundTrip(t *testing.T) {
	for _, profile := range BuildProfiles() {
		parsed, err := ParseBuildProfile(profile.FullName())
		if err != nil {
			t.Fatalf("Expected %q to parse, got: %v", profile.FullName(), err)
		}
		if parsed != profile {
			t.Errorf("Expected %v after round trip, got %v", profile, parsed)
		}
	}
}

func TestParseTarget_RejectsNonCanonicalInput(t *testing.T) {
	inputs := []string{
		"",
		"X86_64-sel4-fel4",
		"x86_64-SEL4-fel4",
		" x86_64-sel4-fel4",
		"x86_64-sel4-fel4 ",
		"x86_64_sel4_fel4",
		"x86_64-sel4",
		"riscv64-sel4-fel4",
	}

	for _, input := range inputs {
		_, err := ParseTarget(input)
		if err == nil {
			t.Errorf("Expected error for input %q, got nil", input)
			continue
		}
		if !IsUnknownIdentifier(err) {
			t.Errorf("Expected unknown identifier error for %q, got: %v", input, err)
		}
	}
}

func TestParsePlatform_RejectsNonCanonicalInput(t *testing.T) {
	inputs := []string{"", "PC99", "pc-99", " pc99", "sabre ", "tx2"}

	for _, input := range inputs {
		_, err := ParsePlatform(input)
		if err == nil {
			t.Errorf("Expected error for input %q, got nil", input)
			continue
		}
		if !IsUnknownIdentifier(err) {
			t.Errorf("Expected unknown identifier error for %q, got: %v", input, err)
		}
	}
}

func TestParseBuildProfile_RejectsNonCanonicalInput(t *testing.T) {
	inputs := []string{"", "Debug", "RELEASE", " debug", "release ", "profile"}

	for _, input := range inputs {
		_, err := ParseBuildProfile(input)
		if err == nil {
			t.Errorf("Expected error for input %q, got nil", input)
			continue
		}
		if !IsUnknownIdentifier(err) {
			t.Errorf("Expected unknown identifier error for %q, got: %v", input, err)
		}
	}
}

func TestParseTarget_ErrorListsValidNames(t *testing.T) {
	_, err := ParseTarget("riscv64-sel4-fel4")
	if err == nil {
		t.Fatal("Expected error for unknown target, got nil")
	}

	cfgErr, ok := AsConfigError(err)
	if !ok {
		t.Fatalf("Expected *ConfigError, got %T", err)
	}

	if cfgErr.Identifier != "riscv64-sel4-fel4" {
		t.Errorf("Expected offending identifier in error, got %q", cfgErr.Identifier)
	}

	if len(cfgErr.ValidNames) != len(TargetNames()) {
		t.Errorf("Expected %d valid names, got %d", len(TargetNames()), len(cfgErr.ValidNames))
	}
}

func TestFullName_InvalidVariantIsEmpty(t *testing.T) {
	if name := SupportedTarget(99).FullName(); name != "" {
		t.Errorf("Expected empty name for invalid target, got %q", name)
	}
	if name := SupportedPlatform(99).FullName(); name != "" {
		t.Errorf("Expected empty name for invalid platform, got %q", name)
	}
	if name := BuildProfile(99).FullName(); name != "" {
		t.Errorf("Expected empty name for invalid profile, got %q", name)
	}
}

func TestSupportedTarget_TextMarshalling(t *testing.T) {
	data, err := TargetArmv7Sel4Fel4.MarshalText()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(data) != "armv7-sel4-fel4" {
		t.Errorf("Expected canonical text, got %q", string(data))
	}

	var target SupportedTarget
	if err := target.UnmarshalText([]byte("aarch64-sel4-fel4")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if target != TargetAarch64Sel4Fel4 {
		t.Errorf("Expected aarch64 target, got %v", target)
	}

	if err := target.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("Expected error for unknown text, got nil")
	}
}

func TestTargets_ReturnsFreshSlice(t *testing.T) {
	first := Targets()
	first[0] = TargetAarch64Sel4Fel4

	second := Targets()
	if second[0] != TargetX8664Sel4Fel4 {
		t.Error("Expected Targets to return a fresh slice, caller mutation leaked")
	}
}
