package policy

import (
	"time"

	"github.com/fel4os/fel4/pkg/manifest"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity fails the
// evaluation. Warnings and informational violations are reported but do
// not block.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Property is the configuration property at fault, when the rule can
	// attribute the failure to one.
	Property string `json:"property,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level. Rules may override the
	// policy default per violation.
	Severity Severity `json:"severity"`

	// Remediation provides suggested fixes.
	Remediation string `json:"remediation,omitempty"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result represents the result of evaluating a resolved configuration
// against all enabled policies.
type Result struct {
	// Allowed indicates if the configuration passed. It is false when any
	// violation carries error or critical severity.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate. Evaluation
	// failures are reported but never block.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation started.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// CountBySeverity tallies violations per severity level.
func (r *Result) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, v := range r.Violations {
		counts[v.Severity]++
	}
	return counts
}

// Input represents the input data for policy evaluation.
type Input struct {
	// Config is the resolved configuration being evaluated.
	Config *ConfigDocument `json:"config,omitempty"`

	// Context provides additional evaluation context.
	Context *EvalContext `json:"context"`
}

// EvalContext provides context information for policy evaluation.
type EvalContext struct {
	// Operation is what triggered the evaluation (e.g., "validate",
	// "build", "deploy").
	Operation string `json:"operation,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ConfigDocument is the shape a resolved configuration takes as the
// input.config document of a Rego evaluation. Property values carry
// their native JSON forms so rules compare them directly; datetimes
// become RFC 3339 strings.
type ConfigDocument struct {
	// Target is the canonical build target name.
	Target string `json:"target"`

	// Platform is the canonical platform name.
	Platform string `json:"platform"`

	// BuildProfile is the canonical build profile name.
	BuildProfile string `json:"build_profile"`

	// ArtifactPath is the resolved artifact output path.
	ArtifactPath string `json:"artifact_path"`

	// TargetSpecsPath is the resolved target specifications path.
	TargetSpecsPath string `json:"target_specs_path"`

	// Properties is the merged flat property set.
	Properties map[string]interface{} `json:"properties"`
}

// NewConfigDocument converts a resolved configuration into the document
// shape policies evaluate.
func NewConfigDocument(cfg *manifest.Fel4Config) *ConfigDocument {
	props := make(map[string]interface{}, len(cfg.Properties))
	for name, value := range cfg.Properties {
		props[name] = propertyValue(value)
	}
	return &ConfigDocument{
		Target:          cfg.Target.String(),
		Platform:        cfg.Platform.String(),
		BuildProfile:    cfg.BuildProfile.String(),
		ArtifactPath:    cfg.ArtifactPath,
		TargetSpecsPath: cfg.TargetSpecsPath,
		Properties:      props,
	}
}

func propertyValue(v manifest.FlatTomlValue) interface{} {
	switch v.Kind() {
	case manifest.KindString:
		s, _ := v.AsString()
		return s
	case manifest.KindInteger:
		i, _ := v.AsInteger()
		return i
	case manifest.KindFloat:
		f, _ := v.AsFloat()
		return f
	case manifest.KindBoolean:
		b, _ := v.AsBoolean()
		return b
	case manifest.KindDatetime:
		t, _ := v.AsDatetime()
		return t.Format(time.RFC3339)
	default:
		return v.String()
	}
}

// Bundle represents a collection of related policies.
type Bundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}

// Summary provides aggregate statistics for a policy evaluation.
type Summary struct {
	// TotalPolicies is the total number of policies evaluated.
	TotalPolicies int `json:"total_policies"`

	// TotalViolations is the total number of violations.
	TotalViolations int `json:"total_violations"`

	// ViolationsBySeverity breaks down violations by severity.
	ViolationsBySeverity map[Severity]int `json:"violations_by_severity"`

	// Blocked indicates if the evaluation blocked the operation.
	Blocked bool `json:"blocked"`

	// EvaluationDuration is the total evaluation time.
	EvaluationDuration time.Duration `json:"evaluation_duration"`
}

// Summarize builds aggregate statistics from an evaluation result.
func Summarize(result *Result) *Summary {
	return &Summary{
		TotalPolicies:        len(result.EvaluatedPolicies),
		TotalViolations:      len(result.Violations),
		ViolationsBySeverity: result.CountBySeverity(),
		Blocked:              !result.Allowed,
		EvaluationDuration:   result.Duration,
	}
}
