// Package toolchain locates the host tools the build pipeline shells out
// to, from cmake and ninja through per-target cross-compilers and QEMU.
// Probe results are cached in the history store with a TTL so repeated
// builds skip rediscovery.
package toolchain

import (
	"github.com/fel4os/fel4/pkg/manifest"
)

// Tool describes one host tool the pipeline may invoke.
type Tool struct {
	Name     string `json:"name"`
	Purpose  string `json:"purpose"`
	Optional bool   `json:"optional"`
}

// baseTools are required for every build regardless of target.
func baseTools() []Tool {
	return []Tool{
		{Name: "cmake", Purpose: "configures the kernel and root task build trees"},
		{Name: "ninja", Purpose: "compiles the configured build trees"},
	}
}

// CrossCompiler returns the C compiler a target's kernel build expects.
func CrossCompiler(target manifest.SupportedTarget) Tool {
	switch target {
	case manifest.TargetArmv7Sel4Fel4:
		return Tool{Name: "arm-linux-gnueabihf-gcc", Purpose: "cross-compiles for ARMv7 targets"}
	case manifest.TargetAarch64Sel4Fel4:
		return Tool{Name: "aarch64-linux-gnu-gcc", Purpose: "cross-compiles for AArch64 targets"}
	default:
		return Tool{Name: "gcc", Purpose: "compiles for the host x86_64 target"}
	}
}

// Simulator returns the QEMU system binary that boots images for target.
// Simulators are optional: their absence degrades fel4 simulate, not builds.
func Simulator(target manifest.SupportedTarget) Tool {
	var name string
	switch target {
	case manifest.TargetArmv7Sel4Fel4:
		name = "qemu-system-arm"
	case manifest.TargetAarch64Sel4Fel4:
		name = "qemu-system-aarch64"
	default:
		name = "qemu-system-x86_64"
	}
	return Tool{Name: name, Purpose: "boots built images under emulation", Optional: true}
}

// ToolsFor returns every tool a build for target can invoke, required
// build tools first.
func ToolsFor(target manifest.SupportedTarget) []Tool {
	tools := baseTools()
	tools = append(tools, CrossCompiler(target))
	tools = append(tools, Simulator(target))
	return tools
}

// ToolsForStep returns the host tools a pipeline step of the given kind
// invokes for target. Kinds follow the pipeline step kinds; kinds that run
// in process need no host tools.
func ToolsForStep(kind string, target manifest.SupportedTarget) []Tool {
	switch kind {
	case "toolchain":
		return append(baseTools(), CrossCompiler(target))
	case "simulate":
		return []Tool{Simulator(target)}
	default:
		return nil
	}
}

// AllTools returns the union of tools for the given targets, deduplicated,
// in stable probe order. With no targets it covers every supported target.
func AllTools(targets ...manifest.SupportedTarget) []Tool {
	if len(targets) == 0 {
		targets = manifest.Targets()
	}

	var tools []Tool
	seen := make(map[string]bool)
	add := func(t Tool) {
		if !seen[t.Name] {
			seen[t.Name] = true
			tools = append(tools, t)
		}
	}

	for _, t := range baseTools() {
		add(t)
	}
	for _, target := range targets {
		add(CrossCompiler(target))
	}
	for _, target := range targets {
		add(Simulator(target))
	}

	return tools
}
