// Package policy provides Open Policy Agent (OPA) integration for feL4.
//
// This package implements advisory and blocking checks over resolved
// build configurations using the Rego policy language. It includes
// built-in policies for common manifest hygiene requirements and
// supports custom policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine:
//
//	logger := zerolog.New(os.Stdout)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating a resolved configuration:
//
//	cfg, err := manifest.ResolveNamed(m, "armv7-sel4-fel4", "sabre", "release")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := engine.EvaluateConfig(ctx, policy.NewConfigDocument(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "policies",
//	    "/opt/fel4/policies/site.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. target-platform-pairing - Warns about unconventional target and platform combinations
//  2. release-hygiene - Flags debug-oriented properties in release builds
//  3. property-naming - Enforces property names the build system can accept
//  4. path-sanity - Checks resolved path settings for portability
//
// The resolver itself accepts any combination of supported target and
// platform. The conventional pairings (pc99 with x86_64, sabre with
// armv7, tx1 with aarch64) are encoded only in the pairing policy, so
// sites that cross-pair on purpose can disable or replace it.
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	# Require an explicit optimisation level in release builds
//	# severity: error
//	package fel4.policies.optimisation
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.config
//	    config := input.config
//
//	    config.build_profile == "release"
//	    not config.properties.KernelOptimisation
//
//	    violation := {
//	        "message": "Release builds must pin KernelOptimisation",
//	        "severity": "error",
//	        "property": "KernelOptimisation",
//	    }
//	}
//
// A "# severity: <level>" comment sets the default severity for a .rego
// file; individual violations may still override it.
//
// # Policy Evaluation Points
//
// Policies are evaluated at multiple points in the feL4 workflow:
//
//  1. Manifest validation - fel4 validate
//  2. Build gating - before the pipeline runs
//  3. Deployment gating - before an image is flashed to a board
//
// # Severity Levels
//
// Violations have four severity levels:
//
//  - info: Informational messages
//  - warning: Issues that should be reviewed but don't block operations
//  - error: Issues that block operations
//  - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The
// engine prepares each policy's deny query with OPA's PreparedEvalQuery
// at compile time. Caching is implemented at both the loader and engine
// levels.
package policy
