package policy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fel4os/fel4/pkg/manifest"
)

func testConfig(target, platform, profile string) *ConfigDocument {
	return &ConfigDocument{
		Target:          target,
		Platform:        platform,
		BuildProfile:    profile,
		ArtifactPath:    "artifacts",
		TargetSpecsPath: "target-specs",
		Properties:      map[string]interface{}{},
	}
}

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	// Check that built-in policies are loaded
	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"target-platform-pairing",
		"release-hygiene",
		"property-naming",
		"path-sanity",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateConfig_TargetPlatformPairing(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name            string
		config          *ConfigDocument
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name:            "conventional x86 pairing",
			config:          testConfig("x86_64-sel4-fel4", "pc99", "debug"),
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:            "conventional arm pairing",
			config:          testConfig("armv7-sel4-fel4", "sabre", "debug"),
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:            "conventional aarch64 pairing",
			config:          testConfig("aarch64-sel4-fel4", "tx1", "debug"),
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:   "cross pairing warns but does not block",
			config: testConfig("x86_64-sel4-fel4", "sabre", "debug"),
			// Pairing violations are warnings, so the config stays allowed
			expectAllowed:   true,
			expectViolation: true,
		},
		{
			name:            "aarch64 on pc99 warns",
			config:          testConfig("aarch64-sel4-fel4", "pc99", "debug"),
			expectAllowed:   true,
			expectViolation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateConfig(context.Background(), tt.config)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			hasViolation := len(result.Violations) > 0
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}

			for _, v := range result.Violations {
				if v.Policy != "target-platform-pairing" {
					t.Errorf("Unexpected policy in violation: %s", v.Policy)
				}
				if v.Severity != SeverityWarning {
					t.Errorf("Expected warning severity, got %s", v.Severity)
				}
			}
		})
	}
}

func TestEvaluateConfig_ReleaseHygiene(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name            string
		profile         string
		properties      map[string]interface{}
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name:            "clean release build",
			profile:         "release",
			properties:      map[string]interface{}{"KernelOptimisation": "-O2"},
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:            "debug property in release warns",
			profile:         "release",
			properties:      map[string]interface{}{"KernelDebugBuild": true},
			expectAllowed:   true,
			expectViolation: true,
		},
		{
			name:            "printing in release warns",
			profile:         "release",
			properties:      map[string]interface{}{"KernelPrinting": true},
			expectAllowed:   true,
			expectViolation: true,
		},
		{
			name:            "code injection in release blocks",
			profile:         "release",
			properties:      map[string]interface{}{"KernelDangerousCodeInjection": true},
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name:            "simulation settings in release warn",
			profile:         "release",
			properties:      map[string]interface{}{"BuildWithCommonSimulationSettings": true},
			expectAllowed:   true,
			expectViolation: true,
		},
		{
			name:    "debug build keeps debug properties",
			profile: "debug",
			properties: map[string]interface{}{
				"KernelDebugBuild":             true,
				"KernelPrinting":               true,
				"KernelDangerousCodeInjection": true,
			},
			expectAllowed:   true,
			expectViolation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig("armv7-sel4-fel4", "sabre", tt.profile)
			config.Properties = tt.properties

			result, err := eng.EvaluateConfig(context.Background(), config)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			hasViolation := len(result.Violations) > 0
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}
		})
	}
}

func TestEvaluateConfig_PropertyNaming(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name            string
		property        string
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name:            "conventional kernel property",
			property:        "KernelStackBits",
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:            "underscores allowed",
			property:        "LIB_SEL4_STACK_SIZE",
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name:            "whitespace rejected",
			property:        "Kernel Stack Bits",
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name:            "leading digit rejected",
			property:        "9KernelStackBits",
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name:            "equals sign rejected",
			property:        "Kernel=Bits",
			expectAllowed:   false,
			expectViolation: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig("x86_64-sel4-fel4", "pc99", "debug")
			config.Properties = map[string]interface{}{tt.property: int64(12)}

			result, err := eng.EvaluateConfig(context.Background(), config)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			if tt.expectViolation {
				if len(result.Violations) == 0 {
					t.Fatal("Expected a violation")
				}
				v := result.Violations[0]
				if v.Policy != "property-naming" {
					t.Errorf("Expected property-naming violation, got %s", v.Policy)
				}
				if v.Property != tt.property {
					t.Errorf("Expected violation attributed to %q, got %q", tt.property, v.Property)
				}
			}
		})
	}
}

func TestEvaluateConfig_PathSanity(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name           string
		artifactPath   string
		specsPath      string
		expectAllowed  bool
		expectPolicy   string
		expectProperty string
	}{
		{
			name:          "relative paths pass",
			artifactPath:  "artifacts",
			specsPath:     "target-specs",
			expectAllowed: true,
		},
		{
			name:           "absolute artifact path warns",
			artifactPath:   "/srv/fel4/artifacts",
			specsPath:      "target-specs",
			expectAllowed:  true,
			expectPolicy:   "path-sanity",
			expectProperty: "artifact-path",
		},
		{
			name:           "parent reference blocks",
			artifactPath:   "artifacts",
			specsPath:      "../shared/target-specs",
			expectAllowed:  false,
			expectPolicy:   "path-sanity",
			expectProperty: "target-specs-path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig("x86_64-sel4-fel4", "pc99", "debug")
			config.ArtifactPath = tt.artifactPath
			config.TargetSpecsPath = tt.specsPath

			result, err := eng.EvaluateConfig(context.Background(), config)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			if tt.expectPolicy == "" {
				if len(result.Violations) != 0 {
					t.Errorf("Expected no violations, got %+v", result.Violations)
				}
				return
			}

			if len(result.Violations) == 0 {
				t.Fatal("Expected a violation")
			}
			v := result.Violations[0]
			if v.Policy != tt.expectPolicy {
				t.Errorf("Expected %s violation, got %s", tt.expectPolicy, v.Policy)
			}
			if v.Property != tt.expectProperty {
				t.Errorf("Expected violation attributed to %q, got %q", tt.expectProperty, v.Property)
			}
		})
	}
}

func TestEvaluateConfig_FromResolvedManifest(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	const manifestToml = `
[global]
artifact-path = "artifacts"
target-specs-path = "target-specs"
KernelOptimisation = "-O2"

[debug]
KernelDebugBuild = true
KernelPrinting = true

[release]
KernelDebugBuild = false
KernelPrinting = true
`

	m, err := manifest.ParseFullManifest(strings.NewReader(manifestToml))
	if err != nil {
		t.Fatalf("Failed to parse manifest: %v", err)
	}

	cfg, err := manifest.ResolveNamed(m, "armv7-sel4-fel4", "sabre", "release")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}

	result, err := eng.EvaluateConfig(context.Background(), NewConfigDocument(cfg))
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	// KernelPrinting survives into the release layer, which the hygiene
	// policy reports as a warning
	if !result.Allowed {
		t.Errorf("Warnings should not block: %+v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "release-hygiene" && v.Property == "KernelPrinting" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a release-hygiene violation for KernelPrinting, got %+v", result.Violations)
	}
}

func TestEvaluate_CustomPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	customRego := `# Every build must pin KernelOptimisation
# severity: error
package fel4.policies.pinned_optimisation

import rego.v1

deny contains violation if {
	input.config
	not input.config.properties.KernelOptimisation

	violation := {
		"message": "KernelOptimisation must be set explicitly",
		"severity": "error",
		"property": "KernelOptimisation",
	}
}
`

	dir := t.TempDir()
	policyFile := filepath.Join(dir, "pinned-optimisation.rego")
	if err := os.WriteFile(policyFile, []byte(customRego), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	// Without the property the custom policy blocks
	config := testConfig("x86_64-sel4-fel4", "pc99", "debug")
	result, err := eng.EvaluateConfig(context.Background(), config)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Errorf("Expected custom policy to block, got %+v", result.Violations)
	}

	// With the property it passes again
	config.Properties["KernelOptimisation"] = "-O2"
	result, err = eng.EvaluateConfig(context.Background(), config)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected config to pass, got %+v", result.Violations)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policyName := "target-platform-pairing"

	// Disable the policy
	err = eng.DisablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	policy, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if policy.Enabled {
		t.Error("Policy should be disabled")
	}

	// Cross-paired config should pass while the policy is disabled
	config := testConfig("x86_64-sel4-fel4", "tx1", "debug")
	result, err := eng.EvaluateConfig(context.Background(), config)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	for _, v := range result.Violations {
		if v.Policy == policyName {
			t.Error("Disabled policy should not generate violations")
		}
	}

	// Re-enable the policy
	err = eng.EnablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	policy, err = eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if !policy.Enabled {
		t.Error("Policy should be enabled")
	}

	result, err = eng.EvaluateConfig(context.Background(), config)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == policyName {
			found = true
		}
	}
	if !found {
		t.Error("Re-enabled policy should generate violations again")
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	initialCount := len(eng.ListPolicies())

	// Reload policies
	err = eng.ReloadPolicies(context.Background())
	if err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}

	afterReloadCount := len(eng.ListPolicies())

	if initialCount != afterReloadCount {
		t.Errorf("Expected %d policies after reload, got %d", initialCount, afterReloadCount)
	}
}

func TestListPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policies := eng.ListPolicies()

	if len(policies) == 0 {
		t.Fatal("No policies returned")
	}

	// Check that all policies have required fields
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			t.Error("Policy has empty name")
		}
		if p.Rego == "" {
			t.Error("Policy has empty Rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("Policy has zero CreatedAt")
		}
		names = append(names, p.Name)
	}

	if !sort.StringsAreSorted(names) {
		t.Errorf("Expected policies in name order, got %v", names)
	}
}

func TestExtractPackageName(t *testing.T) {
	tests := []struct {
		name     string
		rego     string
		expected string
	}{
		{
			name:     "builtin package",
			rego:     "package fel4.policies.pairing\n\nimport rego.v1\n",
			expected: "fel4.policies.pairing",
		},
		{
			name:     "leading comments",
			rego:     "# A policy\n# severity: error\npackage fel4.custom\n",
			expected: "fel4.custom",
		},
		{
			name:     "missing package falls back",
			rego:     "deny contains msg if { msg := \"x\" }\n",
			expected: "fel4.policies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractPackageName(tt.rego)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	result := &Result{
		Allowed: false,
		Violations: []Violation{
			{Policy: "release-hygiene", Severity: SeverityWarning},
			{Policy: "release-hygiene", Severity: SeverityError},
			{Policy: "path-sanity", Severity: SeverityWarning},
		},
		EvaluatedPolicies: []string{"path-sanity", "property-naming", "release-hygiene", "target-platform-pairing"},
		EvaluatedAt:       time.Now(),
		Duration:          25 * time.Millisecond,
	}

	summary := Summarize(result)

	if summary.TotalPolicies != 4 {
		t.Errorf("Expected 4 policies, got %d", summary.TotalPolicies)
	}
	if summary.TotalViolations != 3 {
		t.Errorf("Expected 3 violations, got %d", summary.TotalViolations)
	}
	if summary.ViolationsBySeverity[SeverityWarning] != 2 {
		t.Errorf("Expected 2 warnings, got %d", summary.ViolationsBySeverity[SeverityWarning])
	}
	if summary.ViolationsBySeverity[SeverityError] != 1 {
		t.Errorf("Expected 1 error, got %d", summary.ViolationsBySeverity[SeverityError])
	}
	if !summary.Blocked {
		t.Error("Expected summary to report blocked")
	}
}
