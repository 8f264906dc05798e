package simulate

import (
	"errors"
	"strings"
	"testing"

	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/stores"
)

func packagedBuild(target manifest.SupportedTarget, platform manifest.SupportedPlatform, props map[string]manifest.FlatTomlValue) *pipeline.BuildRecord {
	if props == nil {
		props = map[string]manifest.FlatTomlValue{}
	}

	build := &pipeline.BuildRecord{
		BuildID:  "build1",
		Target:   target,
		Platform: platform,
		Profile:  manifest.ProfileDebug,
		Config: &manifest.Fel4Config{
			ArtifactPath:    "artifacts",
			TargetSpecsPath: "target-specs",
			Target:          target,
			Platform:        platform,
			BuildProfile:    manifest.ProfileDebug,
			Properties:      props,
		},
		ImagePath: "/stage/feL4img",
		Artifacts: []pipeline.ArtifactInfo{
			{Kind: stores.ArtifactKindKernel, Path: "/stage/kernel"},
			{Kind: stores.ArtifactKindRootTask, Path: "/stage/rootserver"},
			{Kind: stores.ArtifactKindBootImage, Path: "/stage/feL4img"},
		},
	}
	return build
}

func argsContain(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func argsHave(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

func TestBuildInvocation_PC99(t *testing.T) {
	build := packagedBuild(manifest.TargetX8664Sel4Fel4, manifest.PlatformPC99,
		map[string]manifest.FlatTomlValue{
			"KernelX86MicroArch": manifest.StringValue("nehalem"),
			"KernelMaxNumNodes":  manifest.IntegerValue(4),
		})

	inv, err := BuildInvocation(build, Options{})
	if err != nil {
		t.Fatalf("BuildInvocation failed: %v", err)
	}

	if inv.Binary != "qemu-system-x86_64" {
		t.Errorf("Expected qemu-system-x86_64, got %s", inv.Binary)
	}
	if !argsContain(inv.Args, "-machine", "pc") {
		t.Errorf("Expected -machine pc in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-cpu", "Nehalem") {
		t.Errorf("Expected -cpu Nehalem in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-m", "512M") {
		t.Errorf("Expected -m 512M in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-kernel", "/stage/kernel") {
		t.Errorf("Expected the kernel artifact in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-initrd", "/stage/feL4img") {
		t.Errorf("Expected the boot image as initrd in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-smp", "4") {
		t.Errorf("Expected -smp 4 in %v", inv.Args)
	}
	if !argsHave(inv.Args, "-nographic") {
		t.Errorf("Expected -nographic in %v", inv.Args)
	}
}

func TestBuildInvocation_Sabre(t *testing.T) {
	build := packagedBuild(manifest.TargetArmv7Sel4Fel4, manifest.PlatformSabre, nil)
	// Exercise the ImagePath fallback used before artifact rows exist
	build.Artifacts = nil

	inv, err := BuildInvocation(build, Options{})
	if err != nil {
		t.Fatalf("BuildInvocation failed: %v", err)
	}

	if inv.Binary != "qemu-system-arm" {
		t.Errorf("Expected qemu-system-arm, got %s", inv.Binary)
	}
	if !argsContain(inv.Args, "-machine", "sabrelite") {
		t.Errorf("Expected -machine sabrelite in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-m", "1024M") {
		t.Errorf("Expected -m 1024M in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-kernel", "/stage/feL4img") {
		t.Errorf("Expected the boot image as kernel in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-serial", "null") {
		t.Errorf("Expected the first UART routed to null in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-serial", "mon:stdio") {
		t.Errorf("Expected the debug UART on stdio in %v", inv.Args)
	}
}

func TestBuildInvocation_Options(t *testing.T) {
	build := packagedBuild(manifest.TargetX8664Sel4Fel4, manifest.PlatformPC99, nil)

	inv, err := BuildInvocation(build, Options{
		Memory:    "2048M",
		QMPSocket: "/tmp/fel4-qmp.sock",
		Graphic:   true,
		ExtraArgs: []string{"-d", "guest_errors"},
	})
	if err != nil {
		t.Fatalf("BuildInvocation failed: %v", err)
	}

	if !argsContain(inv.Args, "-m", "2048M") {
		t.Errorf("Expected the memory override in %v", inv.Args)
	}
	if !argsContain(inv.Args, "-qmp", "unix:/tmp/fel4-qmp.sock,server,nowait") {
		t.Errorf("Expected the QMP socket in %v", inv.Args)
	}
	if argsHave(inv.Args, "-nographic") {
		t.Errorf("Expected no -nographic with Graphic set, got %v", inv.Args)
	}
	if !argsContain(inv.Args, "-d", "guest_errors") {
		t.Errorf("Expected extra args appended in %v", inv.Args)
	}
}

func TestBuildInvocation_TX1Unsupported(t *testing.T) {
	build := packagedBuild(manifest.TargetAarch64Sel4Fel4, manifest.PlatformTX1, nil)

	_, err := BuildInvocation(build, Options{})
	if err == nil {
		t.Fatal("Expected an error for tx1")
	}

	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected UnsupportedError, got %v", err)
	}
	if !strings.Contains(unsupported.Reason, "Tegra") {
		t.Errorf("Expected the reason to name the missing machine model, got %q", unsupported.Reason)
	}
}

func TestBuildInvocation_MismatchedPairing(t *testing.T) {
	build := packagedBuild(manifest.TargetX8664Sel4Fel4, manifest.PlatformSabre, nil)

	_, err := BuildInvocation(build, Options{})
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected UnsupportedError, got %v", err)
	}
}

func TestBuildInvocation_MissingArtifacts(t *testing.T) {
	build := packagedBuild(manifest.TargetX8664Sel4Fel4, manifest.PlatformPC99, nil)
	build.Artifacts = nil
	build.ImagePath = ""

	_, err := BuildInvocation(build, Options{})
	if err == nil {
		t.Fatal("Expected an error without staged artifacts")
	}

	var perr *pipeline.PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PipelineError, got %v", err)
	}
	if perr.Code != pipeline.ErrCodeArtifactMissing {
		t.Errorf("Expected code %s, got %s", pipeline.ErrCodeArtifactMissing, perr.Code)
	}
}

func TestBuildInvocation_NilBuild(t *testing.T) {
	if _, err := BuildInvocation(nil, Options{}); err == nil {
		t.Error("Expected an error for a nil build")
	}
}

func TestX86CPU(t *testing.T) {
	tests := []struct {
		arch string
		want string
	}{
		{"nehalem", "Nehalem"},
		{"westmere", "Westmere"},
		{"sandy", "SandyBridge"},
		{"ivy", "IvyBridge"},
		{"haswell", "Haswell"},
		{"broadwell", "Broadwell"},
		{"skylake", "Skylake-Client"},
		{"unknown", "qemu64"},
	}

	for _, tt := range tests {
		t.Run(tt.arch, func(t *testing.T) {
			cfg := &manifest.Fel4Config{Properties: map[string]manifest.FlatTomlValue{
				"KernelX86MicroArch": manifest.StringValue(tt.arch),
			}}
			if got := x86CPU(cfg); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	// Without the property the generic model is used
	if got := x86CPU(&manifest.Fel4Config{Properties: map[string]manifest.FlatTomlValue{}}); got != "qemu64" {
		t.Errorf("Expected qemu64, got %s", got)
	}
}

func TestInvocation_String(t *testing.T) {
	inv := &Invocation{Binary: "qemu-system-arm", Args: []string{"-machine", "sabrelite"}}
	want := "qemu-system-arm -machine sabrelite"
	if inv.String() != want {
		t.Errorf("Expected %q, got %q", want, inv.String())
	}
}
