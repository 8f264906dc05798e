// Package pipeline plans and executes feL4 build pipelines.
//
// # Overview
//
// A build of a feL4 project moves through a fixed chain of stages for each
// target/platform/profile selection:
//
//  1. Resolve - Layer the manifest tables into a flat configuration (Planner)
//  2. Generate - Emit the CMake cache initialization file (Planner)
//  3. Configure - Run cmake against the generated cache file
//  4. Compile - Run ninja to build the kernel and root task
//  5. Package - Stage boot images and record their checksums
//  6. Simulate/Deploy - Optionally boot the image in QEMU or push it to a board
//
// The Planner turns one or more selections into a Plan whose steps are wired
// with dependencies, the GraphBuilder validates the result and computes
// execution levels, and the Scheduler walks the levels with a bounded worker
// pool.
//
// # Core Domain Types
//
// The package defines the types that represent the execution model:
//
//   - Step: A unit of work, either an external tool invocation or an
//     in-process function
//   - Dependency: An edge in the execution graph (require/order)
//   - BuildRecord: Everything known about one selection's build (resolved
//     configuration, directories, staged artifacts)
//   - StepResult: The outcome of executing a step
//   - Plan: A complete pipeline with steps, builds, and DAG
//   - Run: An execution of a plan with status tracking
//
// # Error Classification
//
// Errors are classified for retry logic:
//
//   - Transient: Temporary failures that may succeed on retry
//   - Throttled: Rate limiting that requires backoff
//   - Conflict: Resource conflicts requiring retry
//   - Permanent: Non-recoverable errors such as compile failures
//
// Use the error helper functions to classify and inspect errors:
//
//	if pipeline.IsRetryable(err) {
//	    // Retry the operation
//	}
//
// # Example Usage
//
// Basic workflow for building one selection:
//
//	// 1. Plan the pipeline
//	planner := pipeline.NewPlanner(generator, logger)
//	plan, err := planner.BuildPlan(ctx, &pipeline.Request{
//	    ProjectRoot:  root,
//	    ManifestPath: manifestPath,
//	    Manifest:     m,
//	    Selections:   []pipeline.Selection{{Target: target, Platform: platform, Profile: profile}},
//	})
//
//	// 2. Execute it
//	executor := pipeline.NewBuildExecutor(tools, logDir, logger)
//	scheduler := pipeline.NewScheduler(0, executor, store, events, logger)
//	run, err := scheduler.Execute(ctx, plan, pipeline.Options{})
//
//	// 3. Check results
//	if run.Status == pipeline.RunStatusSucceeded {
//	    // Boot image staged under the artifact directory
//	}
//
// # Thread Safety
//
// The Scheduler synchronizes its shared state internally and may run steps
// from multiple goroutines. A Plan must not be mutated while a run is in
// progress.
package pipeline
