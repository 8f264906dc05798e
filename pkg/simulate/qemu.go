// Package simulate boots built feL4 images under QEMU and controls running
// guests over the QEMU Machine Protocol.
package simulate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/stores"
)

// UnsupportedError reports a selection that no emulator machine model can
// boot.
type UnsupportedError struct {
	Target   manifest.SupportedTarget
	Platform manifest.SupportedPlatform
	Reason   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("cannot simulate %s on %s: %s",
		e.Target.FullName(), e.Platform.FullName(), e.Reason)
}

// Invocation is a fully expanded QEMU command line, before PATH resolution.
type Invocation struct {
	Binary string   `json:"binary"`
	Args   []string `json:"args"`
}

// String renders the invocation for logs and dry runs.
func (inv *Invocation) String() string {
	return inv.Binary + " " + strings.Join(inv.Args, " ")
}

// BuildInvocation expands the QEMU command line for a packaged build.
// Only selections the emulator has a machine model for are supported:
// x86_64 on pc99 and armv7 on sabre.
func BuildInvocation(build *pipeline.BuildRecord, opts Options) (*Invocation, error) {
	if build == nil || build.Config == nil {
		return nil, pipeline.NewPermanentError("no resolved build to simulate", nil).
			WithCode(pipeline.ErrCodeValidation)
	}

	switch {
	case build.Target == manifest.TargetX8664Sel4Fel4 && build.Platform == manifest.PlatformPC99:
		return pc99Invocation(build, opts)
	case build.Target == manifest.TargetArmv7Sel4Fel4 && build.Platform == manifest.PlatformSabre:
		return sabreInvocation(build, opts)
	case build.Platform == manifest.PlatformTX1:
		return nil, &UnsupportedError{
			Target:   build.Target,
			Platform: build.Platform,
			Reason:   "QEMU has no Tegra X1 machine model; deploy to hardware instead",
		}
	default:
		return nil, &UnsupportedError{
			Target:   build.Target,
			Platform: build.Platform,
			Reason:   "no machine model boots this target and platform pairing",
		}
	}
}

// pc99Invocation boots the kernel over multiboot with the feL4 image as the
// boot module.
func pc99Invocation(build *pipeline.BuildRecord, opts Options) (*Invocation, error) {
	kernel, err := artifactPath(build, stores.ArtifactKindKernel)
	if err != nil {
		return nil, err
	}
	image, err := artifactPath(build, stores.ArtifactKindBootImage)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-machine", "pc",
		"-cpu", x86CPU(build.Config),
		"-m", memory(opts, "512M"),
		"-no-reboot",
		"-kernel", kernel,
		"-initrd", image,
	}
	args = appendSMP(args, build.Config)
	args = appendCommon(args, opts)

	return &Invocation{Binary: "qemu-system-x86_64", Args: args}, nil
}

// sabreInvocation boots the single elfloader image. The sabre debug console
// is the second UART, so the first is routed to null.
func sabreInvocation(build *pipeline.BuildRecord, opts Options) (*Invocation, error) {
	image, err := artifactPath(build, stores.ArtifactKindBootImage)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-machine", "sabrelite",
		"-m", memory(opts, "1024M"),
		"-serial", "null",
		"-serial", "mon:stdio",
		"-kernel", image,
	}
	args = appendSMP(args, build.Config)
	args = appendCommon(args, opts)

	return &Invocation{Binary: "qemu-system-arm", Args: args}, nil
}

// artifactPath finds a staged artifact of the given kind.
func artifactPath(build *pipeline.BuildRecord, kind string) (string, error) {
	for _, artifact := range build.Artifacts {
		if artifact.Kind == kind {
			return artifact.Path, nil
		}
	}
	if kind == stores.ArtifactKindBootImage && build.ImagePath != "" {
		return build.ImagePath, nil
	}

	return "", pipeline.NewPermanentError(
		fmt.Sprintf("no %s artifact staged for build %s", kind, build.BuildID), nil).
		WithCode(pipeline.ErrCodeArtifactMissing)
}

// x86CPU maps the KernelX86MicroArch property onto a QEMU cpu model.
func x86CPU(cfg *manifest.Fel4Config) string {
	prop, ok := cfg.Property("KernelX86MicroArch")
	if !ok {
		return "qemu64"
	}
	arch, ok := prop.AsString()
	if !ok {
		return "qemu64"
	}

	switch strings.ToLower(arch) {
	case "nehalem":
		return "Nehalem"
	case "westmere":
		return "Westmere"
	case "sandy":
		return "SandyBridge"
	case "ivy":
		return "IvyBridge"
	case "haswell":
		return "Haswell"
	case "broadwell":
		return "Broadwell"
	case "skylake":
		return "Skylake-Client"
	default:
		return "qemu64"
	}
}

// appendSMP maps KernelMaxNumNodes onto the emulated core count.
func appendSMP(args []string, cfg *manifest.Fel4Config) []string {
	prop, ok := cfg.Property("KernelMaxNumNodes")
	if !ok {
		return args
	}
	nodes, ok := prop.AsInteger()
	if !ok || nodes < 2 {
		return args
	}
	return append(args, "-smp", strconv.FormatInt(nodes, 10))
}

// appendCommon applies the options shared by every machine.
func appendCommon(args []string, opts Options) []string {
	if !opts.Graphic {
		args = append(args, "-nographic")
	}
	if opts.QMPSocket != "" {
		args = append(args, "-qmp", fmt.Sprintf("unix:%s,server,nowait", opts.QMPSocket))
	}
	return append(args, opts.ExtraArgs...)
}

// memory picks the guest memory size, falling back to the platform default.
func memory(opts Options, fallback string) string {
	if opts.Memory != "" {
		return opts.Memory
	}
	return fallback
}
