package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fel4os/fel4/pkg/cmake"
	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/stores"
)

// Step names used within each build.
const (
	StepNameResolve   = "resolve"
	StepNameGenerate  = "generate"
	StepNameConfigure = "configure"
	StepNameCompile   = "compile"
	StepNamePackage   = "package"
	StepNameSimulate  = "simulate"
	StepNameDeploy    = "deploy"
)

// Default execution limits per step. The compile step dominates build time
// on real projects, everything else is bounded tightly.
const (
	defaultResolveTimeout   = 30 * time.Second
	defaultGenerateTimeout  = 30 * time.Second
	defaultConfigureTimeout = 10 * time.Minute
	defaultCompileTimeout   = 30 * time.Minute
	defaultPackageTimeout   = 2 * time.Minute
	defaultSimulateTimeout  = 5 * time.Minute
	defaultDeployTimeout    = 10 * time.Minute

	defaultMaxRetries = 2
)

// ResolvedConfigFileName is written into the build directory by the resolve
// step so the flattened configuration a build used stays inspectable.
const ResolvedConfigFileName = "resolved-config.json"

// Selection names one (target, platform, profile) triple to build.
type Selection struct {
	Target   manifest.SupportedTarget   `json:"target"`
	Platform manifest.SupportedPlatform `json:"platform"`
	Profile  manifest.BuildProfile      `json:"profile"`
}

// String returns the selection in target/platform/profile form.
func (s Selection) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Target.FullName(), s.Platform.FullName(), s.Profile.FullName())
}

// SimulateHook runs a built image under an emulator. The build record
// carries the staged artifacts by the time the hook runs.
type SimulateHook func(ctx context.Context, build *BuildRecord, result *StepResult) error

// DeployHook transfers a built image to a board.
type DeployHook func(ctx context.Context, build *BuildRecord, result *StepResult) error

// Request describes the work a plan should cover.
type Request struct {
	// ProjectRoot is the directory containing the fel4 manifest.
	// Defaults to the current directory.
	ProjectRoot string

	// ManifestPath is the manifest file the configuration came from,
	// recorded in build history.
	ManifestPath string

	// Manifest is the parsed manifest the selections resolve against.
	Manifest *manifest.FullFel4Manifest

	// SourceDir is the CMake source tree. Defaults to ProjectRoot.
	SourceDir string

	// Selections are the triples to build. At least one is required.
	Selections []Selection

	// Simulate, when set, appends a simulate step after packaging for
	// every selection.
	Simulate SimulateHook

	// Deploy, when set, appends a deploy step after packaging for every
	// selection.
	Deploy DeployHook
}

// Planner builds execution plans for one or more selections. Every
// selection expands into the same step chain: resolve the configuration,
// generate the cache initialization script, configure with cmake, compile
// with ninja, then stage artifacts. Selections are independent, so a matrix
// plan runs them in parallel level by level.
type Planner struct {
	gen    *cmake.Generator
	logger zerolog.Logger
}

// NewPlanner creates a planner that renders build system inputs with gen.
func NewPlanner(gen *cmake.Generator, logger zerolog.Logger) *Planner {
	return &Planner{
		gen:    gen,
		logger: logger.With().Str("component", "planner").Logger(),
	}
}

// BuildPlan resolves every selection in the request and expands it into
// pipeline steps, then builds and validates the execution graph.
func (p *Planner) BuildPlan(ctx context.Context, req *Request) (*Plan, error) {
	if req == nil {
		return nil, NewPermanentError("plan request is nil", nil).
			WithCode(ErrCodeValidation)
	}
	if req.Manifest == nil {
		return nil, NewPermanentError("plan request has no manifest", nil).
			WithCode(ErrCodeValidation)
	}
	if len(req.Selections) == 0 {
		return nil, NewPermanentError("plan request has no selections", nil).
			WithCode(ErrCodeValidation)
	}

	projectRoot := req.ProjectRoot
	if projectRoot == "" {
		projectRoot = "."
	}
	sourceDir := req.SourceDir
	if sourceDir == "" {
		sourceDir = projectRoot
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Steps:     make([]Step, 0, len(req.Selections)*5),
		Builds:    make([]*BuildRecord, 0, len(req.Selections)),
		Metadata: map[string]interface{}{
			"project_root": projectRoot,
		},
	}
	if req.ManifestPath != "" {
		plan.Metadata["manifest_path"] = req.ManifestPath
	}

	seen := make(map[string]bool, len(req.Selections))
	for _, sel := range req.Selections {
		if seen[sel.String()] {
			return nil, NewPermanentError(fmt.Sprintf("duplicate selection %s", sel), nil).
				WithCode(ErrCodeValidation)
		}
		seen[sel.String()] = true

		cfg, err := manifest.Resolve(req.Manifest, sel.Target, sel.Platform, sel.Profile)
		if err != nil {
			return nil, NewPermanentError(fmt.Sprintf("failed to resolve %s", sel), err).
				WithCode(ErrCodeValidation)
		}

		rec := p.newBuildRecord(projectRoot, req.ManifestPath, sel, cfg)
		plan.Builds = append(plan.Builds, rec)
		plan.Steps = append(plan.Steps, p.buildSteps(req, rec, sourceDir)...)

		p.logger.Debug().
			Str("selection", sel.String()).
			Str("build_id", rec.BuildID).
			Str("build_dir", rec.BuildDir).
			Msg("Planned selection")
	}

	builder := NewGraphBuilder()
	graph, err := builder.BuildGraph(plan.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to build step graph: %w", err)
	}
	if err := builder.ValidateGraph(graph); err != nil {
		return nil, fmt.Errorf("step graph validation failed: %w", err)
	}
	plan.Graph = graph
	plan.Summary = summarizePlan(plan)

	return plan, nil
}

// SelectionDirs returns the artifact root and stage directory the planner
// lays out for a selection. A relative artifact path is joined to the
// project root.
func SelectionDirs(projectRoot string, cfg *manifest.Fel4Config, sel Selection) (artifactRoot, stageDir string) {
	artifactRoot = cfg.ArtifactPath
	if !filepath.IsAbs(artifactRoot) {
		artifactRoot = filepath.Join(projectRoot, artifactRoot)
	}
	stageDir = filepath.Join(artifactRoot, sel.Target.FullName(), sel.Platform.FullName(), sel.Profile.FullName())
	return artifactRoot, stageDir
}

// newBuildRecord lays out the per-selection directories and creates the
// record its steps share.
func (p *Planner) newBuildRecord(projectRoot, manifestPath string, sel Selection, cfg *manifest.Fel4Config) *BuildRecord {
	_, stageDir := SelectionDirs(projectRoot, cfg, sel)
	buildDir := filepath.Join(stageDir, "build")

	return &BuildRecord{
		BuildID:       uuid.New().String(),
		Target:        sel.Target,
		Platform:      sel.Platform,
		Profile:       sel.Profile,
		Config:        cfg,
		ManifestPath:  manifestPath,
		BuildDir:      buildDir,
		StageDir:      stageDir,
		CacheInitPath: filepath.Join(buildDir, cmake.CacheInitFileName),
	}
}

// buildSteps expands one selection into its step chain.
func (p *Planner) buildSteps(req *Request, rec *BuildRecord, sourceDir string) []Step {
	resolve := p.newStep(rec, StepNameResolve, StepKindResolve, defaultResolveTimeout)
	resolve.Run = p.resolveStepFunc(rec)

	generate := p.newStep(rec, StepNameGenerate, StepKindGenerate, defaultGenerateTimeout)
	generate.Run = p.generateStepFunc(rec)
	generate.Dependencies = requireStep(resolve.ID)

	configure := p.newStep(rec, StepNameConfigure, StepKindToolchain, defaultConfigureTimeout)
	configure.Tool = "cmake"
	configure.Args = []string{
		"-G", "Ninja",
		"-C", rec.CacheInitPath,
		"-S", sourceDir,
		"-B", rec.BuildDir,
	}
	configure.Dir = sourceDir
	configure.Dependencies = requireStep(generate.ID)

	compile := p.newStep(rec, StepNameCompile, StepKindToolchain, defaultCompileTimeout)
	compile.Tool = "ninja"
	compile.Args = []string{"-C", rec.BuildDir}
	compile.Dir = sourceDir
	compile.Dependencies = requireStep(configure.ID)

	pack := p.newStep(rec, StepNamePackage, StepKindPackage, defaultPackageTimeout)
	pack.Run = p.packageStepFunc(rec)
	pack.Dependencies = requireStep(compile.ID)

	steps := []Step{resolve, generate, configure, compile, pack}

	if req.Simulate != nil {
		hook := req.Simulate
		sim := p.newStep(rec, StepNameSimulate, StepKindSimulate, defaultSimulateTimeout)
		sim.Run = func(ctx context.Context, result *StepResult) error {
			return hook(ctx, rec, result)
		}
		sim.Dependencies = requireStep(pack.ID)
		steps = append(steps, sim)
	}

	if req.Deploy != nil {
		hook := req.Deploy
		dep := p.newStep(rec, StepNameDeploy, StepKindDeploy, defaultDeployTimeout)
		dep.Run = func(ctx context.Context, result *StepResult) error {
			return hook(ctx, rec, result)
		}
		dep.Dependencies = requireStep(pack.ID)
		steps = append(steps, dep)
	}

	return steps
}

// newStep creates a pending step bound to the record's selection.
func (p *Planner) newStep(rec *BuildRecord, name string, kind StepKind, timeout time.Duration) Step {
	return Step{
		ID:         StepID(rec, name),
		Name:       name,
		Kind:       kind,
		BuildID:    rec.BuildID,
		Target:     rec.Target.FullName(),
		Platform:   rec.Platform.FullName(),
		Profile:    rec.Profile.FullName(),
		Status:     StepStatusPending,
		Timeout:    timeout,
		MaxRetries: defaultMaxRetries,
	}
}

// StepID derives the plan-unique step ID for a build record and step name.
func StepID(rec *BuildRecord, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s",
		rec.Target.FullName(), rec.Platform.FullName(), rec.Profile.FullName(), name)
}

// requireStep is shorthand for a single require dependency.
func requireStep(targetID string) []Dependency {
	return []Dependency{{TargetID: targetID, Type: DependencyRequire}}
}

// resolveStepFunc prepares the build workspace and materializes the
// resolved configuration next to the build outputs.
func (p *Planner) resolveStepFunc(rec *BuildRecord) StepFunc {
	return func(ctx context.Context, result *StepResult) error {
		if err := os.MkdirAll(rec.BuildDir, 0o755); err != nil {
			return NewPermanentError("failed to create build directory", err).
				WithCode(ErrCodeInternal)
		}

		blob, err := json.MarshalIndent(rec.Config, "", "  ")
		if err != nil {
			return NewPermanentError("failed to encode resolved configuration", err).
				WithCode(ErrCodeInternal)
		}

		path := filepath.Join(rec.BuildDir, ResolvedConfigFileName)
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			return NewPermanentError("failed to write resolved configuration", err).
				WithCode(ErrCodeInternal)
		}

		return nil
	}
}

// generateStepFunc renders the CMake cache initialization script for the
// selection.
func (p *Planner) generateStepFunc(rec *BuildRecord) StepFunc {
	return func(ctx context.Context, result *StepResult) error {
		if _, err := p.gen.WriteCacheInit(rec.Config, rec.BuildDir); err != nil {
			return NewPermanentError("failed to generate cache initialization script", err).
				WithCode(ErrCodeInternal)
		}
		return nil
	}
}

// packageStepFunc stages the images the build produced into the artifact
// path with checksums. The staged files are recorded on both the result,
// for history, and the build record, for simulate and deploy steps.
func (p *Planner) packageStepFunc(rec *BuildRecord) StepFunc {
	return func(ctx context.Context, result *StepResult) error {
		imagesDir := filepath.Join(rec.BuildDir, "images")
		entries, err := os.ReadDir(imagesDir)
		if err != nil {
			return NewPermanentError("build produced no images directory", err).
				WithCode(ErrCodeArtifactMissing)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			kind := ClassifyArtifact(entry.Name())
			art, stageErr := StageArtifact(filepath.Join(imagesDir, entry.Name()), rec.StageDir, kind)
			if stageErr != nil {
				return stageErr
			}
			result.Artifacts = append(result.Artifacts, art)

			if kind == stores.ArtifactKindBootImage && result.ImagePath == "" {
				result.ImagePath = art.Path
				result.ImageSize = art.Size
			}
		}

		if len(result.Artifacts) == 0 {
			return NewPermanentError("build produced no images", nil).
				WithCode(ErrCodeArtifactMissing)
		}

		rec.Artifacts = result.Artifacts
		rec.ImagePath = result.ImagePath
		rec.ImageSize = result.ImageSize
		return nil
	}
}

// summarizePlan computes the plan summary.
func summarizePlan(plan *Plan) PlanSummary {
	summary := PlanSummary{
		TotalSteps: len(plan.Steps),
		Builds:     len(plan.Builds),
		Kinds:      make(map[StepKind]int),
	}
	for i := range plan.Steps {
		summary.Kinds[plan.Steps[i].Kind]++
	}
	return summary
}

// ValidatePlan validates a plan for correctness before scheduling.
func (p *Planner) ValidatePlan(plan *Plan) error {
	if plan == nil {
		return NewPermanentError("plan is nil", nil).
			WithCode(ErrCodeValidation)
	}
	if len(plan.Steps) == 0 {
		return NewPermanentError("plan has no steps", nil).
			WithCode(ErrCodeValidation)
	}

	buildIDs := make(map[string]bool, len(plan.Builds))
	for _, rec := range plan.Builds {
		if rec.BuildID == "" {
			return NewPermanentError("build record has empty ID", nil).
				WithCode(ErrCodeValidation)
		}
		if rec.Config == nil {
			return NewPermanentError(fmt.Sprintf("build %s has no resolved configuration", rec.BuildID), nil).
				WithCode(ErrCodeValidation)
		}
		buildIDs[rec.BuildID] = true
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		if err := p.validateStep(step, buildIDs); err != nil {
			return fmt.Errorf("invalid step %s: %w", step.ID, err)
		}
	}

	if plan.Graph != nil {
		builder := NewGraphBuilder()
		if _, err := builder.BuildGraph(plan.Steps); err != nil {
			return fmt.Errorf("graph validation failed: %w", err)
		}
	}

	return nil
}

// validateStep validates a single step.
func (p *Planner) validateStep(step *Step, buildIDs map[string]bool) error {
	if step.ID == "" {
		return NewPermanentError("step has empty ID", nil).
			WithCode(ErrCodeValidation)
	}
	if err := step.Kind.Validate(); err != nil {
		return err
	}
	if err := step.Status.Validate(); err != nil {
		return err
	}
	if !buildIDs[step.BuildID] {
		return NewPermanentError("step references unknown build", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.ID)
	}
	if step.Run == nil && step.Tool == "" {
		return NewPermanentError("step has neither a run function nor a tool", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.ID)
	}
	if step.Timeout <= 0 {
		return NewPermanentError("step has invalid timeout", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.ID)
	}
	if step.MaxRetries < 0 {
		return NewPermanentError("step has negative max retries", nil).
			WithCode(ErrCodeValidation).
			WithStep(step.ID)
	}
	return nil
}
