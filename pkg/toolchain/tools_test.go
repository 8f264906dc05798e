package toolchain

import (
	"testing"

	"github.com/fel4os/fel4/pkg/manifest"
)

func TestToolsFor(t *testing.T) {
	tests := []struct {
		target    manifest.SupportedTarget
		cross     string
		simulator string
	}{
		{manifest.TargetX8664Sel4Fel4, "gcc", "qemu-system-x86_64"},
		{manifest.TargetArmv7Sel4Fel4, "arm-linux-gnueabihf-gcc", "qemu-system-arm"},
		{manifest.TargetAarch64Sel4Fel4, "aarch64-linux-gnu-gcc", "qemu-system-aarch64"},
	}

	for _, tt := range tests {
		t.Run(tt.target.FullName(), func(t *testing.T) {
			tools := ToolsFor(tt.target)
			if len(tools) != 4 {
				t.Fatalf("Expected 4 tools, got %d", len(tools))
			}

			if tools[0].Name != "cmake" || tools[1].Name != "ninja" {
				t.Errorf("Expected cmake and ninja first, got %s and %s", tools[0].Name, tools[1].Name)
			}
			if tools[2].Name != tt.cross {
				t.Errorf("Expected cross compiler %s, got %s", tt.cross, tools[2].Name)
			}
			if tools[3].Name != tt.simulator {
				t.Errorf("Expected simulator %s, got %s", tt.simulator, tools[3].Name)
			}

			// Only the simulator is optional
			for i, tool := range tools {
				if tool.Optional != (i == 3) {
					t.Errorf("Tool %s: expected Optional=%v", tool.Name, i == 3)
				}
			}
		})
	}
}

func TestToolsForStep(t *testing.T) {
	tools := ToolsForStep("toolchain", manifest.TargetArmv7Sel4Fel4)
	if len(tools) != 3 {
		t.Fatalf("Expected 3 toolchain step tools, got %d", len(tools))
	}
	if tools[2].Name != "arm-linux-gnueabihf-gcc" {
		t.Errorf("Expected cross compiler, got %s", tools[2].Name)
	}

	tools = ToolsForStep("simulate", manifest.TargetAarch64Sel4Fel4)
	if len(tools) != 1 || tools[0].Name != "qemu-system-aarch64" {
		t.Fatalf("Expected qemu-system-aarch64, got %v", tools)
	}

	// In-process kinds need no host tools
	for _, kind := range []string{"resolve", "generate", "package", "deploy"} {
		if tools := ToolsForStep(kind, manifest.TargetX8664Sel4Fel4); tools != nil {
			t.Errorf("Expected no tools for kind %s, got %v", kind, tools)
		}
	}
}

func TestAllTools(t *testing.T) {
	tools := AllTools()
	if len(tools) != 8 {
		t.Fatalf("Expected 8 tools across all targets, got %d", len(tools))
	}

	seen := make(map[string]bool)
	for _, tool := range tools {
		if seen[tool.Name] {
			t.Errorf("Duplicate tool %s", tool.Name)
		}
		seen[tool.Name] = true
	}

	for _, name := range []string{
		"cmake", "ninja",
		"gcc", "arm-linux-gnueabihf-gcc", "aarch64-linux-gnu-gcc",
		"qemu-system-x86_64", "qemu-system-arm", "qemu-system-aarch64",
	} {
		if !seen[name] {
			t.Errorf("Expected tool %s in the full set", name)
		}
	}

	if tools[0].Name != "cmake" || tools[1].Name != "ninja" {
		t.Errorf("Expected build tools first, got %s and %s", tools[0].Name, tools[1].Name)
	}
}

func TestAllTools_SingleTarget(t *testing.T) {
	tools := AllTools(manifest.TargetArmv7Sel4Fel4)
	if len(tools) != 4 {
		t.Fatalf("Expected 4 tools for one target, got %d", len(tools))
	}
	for _, tool := range tools {
		if tool.Name == "aarch64-linux-gnu-gcc" || tool.Name == "qemu-system-x86_64" {
			t.Errorf("Unexpected tool %s for armv7 only", tool.Name)
		}
	}
}
