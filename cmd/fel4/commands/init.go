package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/config"
)

// starterManifest is the fel4.toml a fresh project starts from. It covers
// every supported target, platform, and profile so a new project builds
// any selection out of the box.
const starterManifest = `# fel4 project manifest.
#
# Layers apply in order: [global], then the target section, then the
# platform section, then the profile section. A later layer replaces a
# property wholesale; values never merge.

[fel4]
default-target = "x86_64-sel4-fel4"
default-platform = "pc99"
default-build-profile = "debug"

[global]
artifact-path = "artifacts"
target-specs-path = "targets"
KernelVerificationBuild = false
KernelMaxNumNodes = 1

[x86_64-sel4-fel4]
KernelArch = "x86"
KernelSel4Arch = "x86_64"

[armv7-sel4-fel4]
KernelArch = "arm"
KernelSel4Arch = "aarch32"

[aarch64-sel4-fel4]
KernelArch = "arm"
KernelSel4Arch = "aarch64"

[pc99]
KernelX86MicroArch = "nehalem"

[sabre]
KernelARMPlatform = "imx6"

[tx1]
KernelARMPlatform = "tx1"

[debug]
KernelDebugBuild = true
KernelPrinting = true

[release]
KernelDebugBuild = false
KernelPrinting = false
`

// starterCMakeLists is the CMakeLists.txt a fresh project starts from. The
// pipeline passes the generated cache initialization script via -C, so the
// selection entries are already set when this file runs.
const starterCMakeLists = `cmake_minimum_required(VERSION 3.16)
project(%s C ASM)

# The fel4 cache initialization script provides FEL4_TARGET,
# FEL4_PLATFORM, FEL4_BUILD_PROFILE, and every manifest property as
# cache entries. Include the seL4 build system here.
message(STATUS "fel4 target:   ${FEL4_TARGET}")
message(STATUS "fel4 platform: ${FEL4_PLATFORM}")
message(STATUS "fel4 profile:  ${FEL4_BUILD_PROFILE}")
`

// starterToolConfig is the commented tool configuration --full writes.
const starterToolConfig = `# fel4 tool configuration.

[telemetry]
environment = "developer"

[telemetry.logging]
level = "info"
format = "console"
output = "stderr"

[telemetry.tracing]
enabled = false
exporter = "stdout"
sampling_rate = 1.0

[telemetry.metrics]
enabled = false
listen_address = ":9464"

[store]
path = "~/.local/state/fel4/history.db"

[policy]
# Extra Rego policy files evaluated alongside the built-in ones.
# paths = ["~/.config/fel4/policies"]

[deploy]
# Board inventory used when --inventory is not passed.
# inventory = "~/.config/fel4/boards.yaml"

[build]
max_parallel = 4
fail_fast = false
`

func newInitCommand() *cobra.Command {
	var (
		full  bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a feL4 project",
		Long: `Initialize creates a new feL4 project: a starter fel4.toml covering
every supported selection, the artifact and target-spec directories,
and a minimal CMakeLists.txt for the seL4 build system to grow from.

With --full a commented tool configuration is written to the user
config directory as well.`,
		Example: `  # Initialize a project in the current directory
  fel4 init

  # Initialize a new project directory
  fel4 init hello-sel4

  # Also write the tool configuration
  fel4 init --full`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			log.Info().
				Str("directory", absDir).
				Bool("full", full).
				Msg("Initializing project")

			fmt.Printf("Initializing feL4 project in %s\n\n", absDir)

			// Step 1: Create the directory structure
			dirs := []string{
				absDir,
				filepath.Join(absDir, "artifacts"),
				filepath.Join(absDir, "targets"),
			}

			for _, d := range dirs {
				if err := os.MkdirAll(d, 0755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", d, err)
				}
				fmt.Printf("✓ Created directory: %s\n", d)
			}

			// Step 2: Write the starter manifest
			manifestPath := filepath.Join(absDir, "fel4.toml")
			if err := writeStarterFile(manifestPath, starterManifest, force); err != nil {
				return err
			}

			// Step 3: Write the CMakeLists.txt placeholder
			cmakePath := filepath.Join(absDir, "CMakeLists.txt")
			cmakeContent := fmt.Sprintf(starterCMakeLists, filepath.Base(absDir))
			if err := writeStarterFile(cmakePath, cmakeContent, force); err != nil {
				return err
			}

			// Step 4: Write the tool configuration when requested
			if full {
				cfgPath, err := config.UserConfigPath()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(cfgPath), 0700); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
				if err := writeStarterFile(cfgPath, starterToolConfig, force); err != nil {
					return err
				}
			}

			fmt.Printf("\n✅ Project initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Review fel4.toml and adjust the kernel properties\n\n")
			fmt.Printf("  2. Check the host toolchain:\n")
			fmt.Printf("     fel4 doctor\n\n")
			fmt.Printf("  3. Build the default selection:\n")
			fmt.Printf("     fel4 build\n\n")

			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Also write the tool configuration to the user config directory")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite files that already exist")

	return cmd
}

// writeStarterFile writes content to path, refusing to overwrite existing
// files unless force is set.
func writeStarterFile(path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("✓ Created file: %s\n", path)
	return nil
}
