package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		targetPlatformPairingPolicy(),
		releaseHygienePolicy(),
		propertyNamingPolicy(),
		pathSanityPolicy(),
	}
}

// targetPlatformPairingPolicy warns about unconventional target and
// platform combinations. The resolver accepts any pairing; this rule is
// where the conventional ones are encoded.
func targetPlatformPairingPolicy() Policy {
	return Policy{
		Name:        "target-platform-pairing",
		Description: "Warns when a platform is paired with an unconventional build target",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"pairing", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package fel4.policies.pairing

import rego.v1

# Conventional platform to target pairings
conventional_targets := {
	"pc99": "x86_64-sel4-fel4",
	"sabre": "armv7-sel4-fel4",
	"tx1": "aarch64-sel4-fel4",
}

deny contains violation if {
	input.config
	config := input.config

	# Look up the conventional target for this platform
	expected := conventional_targets[config.platform]
	expected != config.target

	violation := {
		"message": sprintf("Platform %s conventionally pairs with target %s, not %s", [config.platform, expected, config.target]),
		"severity": "warning",
	}
}`,
	}
}

// releaseHygienePolicy flags debug-oriented settings in release builds.
func releaseHygienePolicy() Policy {
	return Policy{
		Name:        "release-hygiene",
		Description: "Flags debug-oriented properties left enabled in release builds",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"release", "hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package fel4.policies.release

import rego.v1

# Debug-oriented properties that should be off in release images
debug_properties := ["KernelDebugBuild", "KernelPrinting", "KernelColourPrinting", "HardwareDebugAPI"]

deny contains violation if {
	input.config
	config := input.config
	config.build_profile == "release"

	some prop in debug_properties
	config.properties[prop] == true

	violation := {
		"message": sprintf("Release build enables debug property %s", [prop]),
		"severity": "warning",
		"property": prop,
	}
}

deny contains violation if {
	input.config
	config := input.config
	config.build_profile == "release"

	config.properties.KernelDangerousCodeInjection == true

	violation := {
		"message": "Release build must not enable KernelDangerousCodeInjection",
		"severity": "error",
		"property": "KernelDangerousCodeInjection",
	}
}

deny contains violation if {
	input.config
	config := input.config
	config.build_profile == "release"

	config.properties.BuildWithCommonSimulationSettings == true

	violation := {
		"message": "Release build enables simulation settings intended for QEMU runs",
		"severity": "warning",
		"property": "BuildWithCommonSimulationSettings",
	}
}`,
	}
}

// propertyNamingPolicy enforces property names the build system can
// accept as cache entries.
func propertyNamingPolicy() Policy {
	return Policy{
		Name:        "property-naming",
		Description: "Enforces property names that can be forwarded to the build system",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package fel4.policies.naming

import rego.v1

deny contains violation if {
	input.config
	some name, _ in input.config.properties

	# Property names are forwarded verbatim as build system cache entries
	not regex.match("^[A-Za-z_][A-Za-z0-9_-]*$", name)

	violation := {
		"message": sprintf("Property name '%s' cannot be forwarded to the build system", [name]),
		"severity": "error",
		"property": name,
	}
}`,
	}
}

// pathSanityPolicy checks resolved path settings for portability.
func pathSanityPolicy() Policy {
	return Policy{
		Name:        "path-sanity",
		Description: "Checks resolved artifact and target-specs paths for portability",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"paths", "portability"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package fel4.policies.paths

import rego.v1

# Resolved path settings and the manifest keys they come from
path_settings := {
	"artifact-path": "artifact_path",
	"target-specs-path": "target_specs_path",
}

deny contains violation if {
	input.config
	config := input.config
	some key, field in path_settings
	value := config[field]

	# Absolute paths tie the manifest to one machine
	startswith(value, "/")

	violation := {
		"message": sprintf("%s '%s' is absolute and not portable across machines", [key, value]),
		"severity": "warning",
		"property": key,
	}
}

deny contains violation if {
	input.config
	config := input.config
	some key, field in path_settings
	value := config[field]

	# Parent references escape the project directory
	contains(value, "..")

	violation := {
		"message": sprintf("%s '%s' escapes the project directory", [key, value]),
		"severity": "error",
		"property": key,
	}
}`,
	}
}
