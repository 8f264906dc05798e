package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fel4os/fel4/pkg/cmake"
	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/telemetry"
)

// pipelineOptions bundles what a single pipeline run needs beyond the
// manifest itself.
type pipelineOptions struct {
	selections  []pipeline.Selection
	simulate    pipeline.SimulateHook
	deploy      pipeline.DeployHook
	maxParallel int
	failFast    bool
	dryRun      bool
}

// openTelemetry builds the telemetry context from the tool configuration
// and starts the metrics endpoint when one is configured.
func openTelemetry(app *appContext) (*telemetry.Telemetry, error) {
	tel, err := telemetry.NewTelemetry(app.cfg.TelemetryConfig(toolVersion))
	if err != nil {
		return nil, err
	}
	if err := tel.StartMetricsServer(); err != nil {
		log.Warn().Err(err).Msg("Failed to start metrics server")
	}
	return tel, nil
}

// shutdownTelemetry flushes exporters with a bounded grace period.
func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// runPipeline plans the requested selections and executes the plan. The
// returned error reflects the run outcome so failed builds exit non-zero.
func runPipeline(ctx context.Context, app *appContext, tel *telemetry.Telemetry, m *manifest.FullFel4Manifest, manifestPath string, opts pipelineOptions) error {
	zlog := tel.Logger.Zerolog()

	planner := pipeline.NewPlanner(cmake.NewGenerator(zlog), zlog)
	plan, err := planner.BuildPlan(ctx, &pipeline.Request{
		ProjectRoot:  filepath.Dir(manifestPath),
		ManifestPath: manifestPath,
		Manifest:     m,
		Selections:   opts.selections,
		Simulate:     opts.simulate,
		Deploy:       opts.deploy,
	})
	if err != nil {
		return err
	}

	if opts.dryRun {
		if jsonOutput {
			return renderJSON(plan)
		}
		printPlan(plan)
		return nil
	}

	executor := pipeline.NewBuildExecutor(app.prober, app.logDir, zlog)

	maxParallel := opts.maxParallel
	if maxParallel <= 0 {
		maxParallel = app.cfg.Build.MaxParallel
	}
	scheduler := pipeline.NewScheduler(maxParallel, executor, app.store, tel.Events, zlog)

	run, err := scheduler.Execute(ctx, plan, pipeline.Options{
		FailFast: opts.failFast || app.cfg.Build.FailFast,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := renderJSON(run); err != nil {
			return err
		}
	} else {
		printRun(plan, run)
	}

	switch run.Status {
	case pipeline.RunStatusSucceeded:
		return nil
	case pipeline.RunStatusCancelled:
		return fmt.Errorf("run cancelled")
	default:
		return fmt.Errorf("run %s: %d of %d steps failed", run.Status, run.Summary.Failed, run.Summary.Total)
	}
}

// printPlan renders the step chain of each build without executing it.
func printPlan(plan *pipeline.Plan) {
	fmt.Printf("Plan %s: %d steps across %d builds\n", plan.ID, plan.Summary.TotalSteps, plan.Summary.Builds)
	for _, build := range plan.Builds {
		fmt.Println()
		fmt.Printf("%s/%s/%s\n", build.Target, build.Platform, build.Profile)
		for i := range plan.Steps {
			step := &plan.Steps[i]
			if step.BuildID != build.BuildID {
				continue
			}
			if step.Tool != "" {
				fmt.Printf("  %-10s %s %s\n", step.Name, step.Tool, strings.Join(step.Args, " "))
			} else {
				fmt.Printf("  %-10s (in-process)\n", step.Name)
			}
		}
	}
}

// printRun renders per-build outcomes followed by the run summary.
func printRun(plan *pipeline.Plan, run *pipeline.Run) {
	fmt.Println()
	for _, build := range plan.Builds {
		failed := failedSteps(plan, build.BuildID)
		if len(failed) == 0 {
			fmt.Printf("✓ %s/%s/%s", build.Target, build.Platform, build.Profile)
			if build.ImagePath != "" {
				fmt.Printf("  %s (%s)", build.ImagePath, formatSize(build.ImageSize))
			}
			fmt.Println()
			continue
		}

		fmt.Printf("✗ %s/%s/%s\n", build.Target, build.Platform, build.Profile)
		for _, step := range failed {
			fmt.Printf("    step %s failed", step.Name)
			if step.Result != nil {
				if step.Result.Error != nil {
					fmt.Printf(": %s", step.Result.Error.Message)
				}
				if step.Result.LogPath != "" {
					fmt.Printf(" (log: %s)", step.Result.LogPath)
				}
			}
			fmt.Println()
		}
	}

	fmt.Println()
	fmt.Printf("Run %s: %s in %s (%d succeeded, %d failed, %d skipped)\n",
		run.ID, run.Status, run.Duration.Round(time.Millisecond),
		run.Summary.Succeeded, run.Summary.Failed, run.Summary.Skipped)
}

// failedSteps collects the failed steps of one build in plan order.
func failedSteps(plan *pipeline.Plan, buildID string) []*pipeline.Step {
	var failed []*pipeline.Step
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.BuildID != buildID || step.Result == nil {
			continue
		}
		if step.Result.Status == pipeline.StepStatusFailed {
			failed = append(failed, step)
		}
	}
	return failed
}

// formatSize renders a byte count in the nearest binary unit.
func formatSize(size int64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(size)/(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
