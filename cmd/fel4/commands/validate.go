package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fel4os/fel4/pkg/config"
	"github.com/fel4os/fel4/pkg/manifest"
	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/policy"
)

// validationReport is the per-triple outcome of a validate run.
type validationReport struct {
	Selection string         `json:"selection"`
	Valid     bool           `json:"valid"`
	Error     string         `json:"error,omitempty"`
	Policy    *policy.Result `json:"policy,omitempty"`
}

// newValidateCommand checks the manifest structurally, resolves it, and
// evaluates the resolved configurations against the policy engine.
func newValidateCommand() *cobra.Command {
	var (
		targetFlag   string
		platformFlag string
		profileFlag  string
		skipPolicy   bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest and its resolved configurations",
		Long: `Validate checks the fel4.toml manifest in three passes:

  1. Structural validation of the manifest itself (section names,
     header defaults, property value kinds).
  2. Resolution of each selected target/platform/profile triple.
  3. Policy evaluation of every resolved configuration.

Without selection flags every combination of target, platform, and
profile is checked. Policy violations of error or critical severity
cause a non-zero exit; warnings are reported but do not fail the run.`,
		Example: `  # Validate every target/platform/profile combination
  fel4 validate

  # Validate a single triple
  fel4 validate --target x86_64-sel4-fel4 --platform pc99 --profile debug

  # Structural and resolution checks only
  fel4 validate --skip-policy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, path, err := loadManifest()
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("manifest %s is invalid: %w", path, err)
			}

			var selections []pipeline.Selection
			if targetFlag == "" && platformFlag == "" && profileFlag == "" {
				selections = allSelections()
			} else {
				sel, err := selectionFromFlags(m, targetFlag, platformFlag, profileFlag)
				if err != nil {
					return err
				}
				selections = []pipeline.Selection{sel}
			}

			var engine *policy.Engine
			if !skipPolicy {
				cfg, err := config.LoadOrDefault(configPath)
				if err != nil {
					return err
				}
				engine, err = policy.NewEngine(log.Logger)
				if err != nil {
					return err
				}
				if err := engine.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
					return err
				}
			}

			log.Info().
				Str("manifest", path).
				Int("selections", len(selections)).
				Bool("policy", engine != nil).
				Msg("Validating manifest")

			reports := make([]validationReport, 0, len(selections))
			failed := 0
			for _, sel := range selections {
				report := validateSelection(ctx, m, sel, engine)
				if !report.Valid {
					failed++
				}
				reports = append(reports, report)
			}

			if jsonOutput {
				if err := renderJSON(reports); err != nil {
					return err
				}
			} else {
				printValidation(reports)
			}

			if failed > 0 {
				return fmt.Errorf("validation failed for %d of %d configurations", failed, len(reports))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Target triple to validate")
	cmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Platform to validate")
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Build profile to validate")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "Skip policy evaluation")

	return cmd
}

// validateSelection resolves one triple and runs it through the policy
// engine. A nil engine limits the check to resolution.
func validateSelection(ctx context.Context, m *manifest.FullFel4Manifest, sel pipeline.Selection, engine *policy.Engine) validationReport {
	report := validationReport{Selection: sel.String()}

	cfg, err := manifest.Resolve(m, sel.Target, sel.Platform, sel.Profile)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	if engine == nil {
		report.Valid = true
		return report
	}

	result, err := engine.EvaluateConfig(ctx, policy.NewConfigDocument(cfg))
	if err != nil {
		report.Error = fmt.Sprintf("policy evaluation failed: %v", err)
		return report
	}

	report.Policy = result
	report.Valid = result.Allowed
	return report
}

// printValidation renders per-triple outcomes with their violations.
func printValidation(reports []validationReport) {
	for _, report := range reports {
		if report.Valid {
			fmt.Printf("✓ %s\n", report.Selection)
		} else {
			fmt.Printf("✗ %s\n", report.Selection)
		}
		if report.Error != "" {
			fmt.Printf("    %s\n", report.Error)
		}
		if report.Policy == nil {
			continue
		}
		for _, v := range report.Policy.Violations {
			fmt.Printf("    [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
			if v.Remediation != "" {
				fmt.Printf("      remediation: %s\n", v.Remediation)
			}
		}
		for _, w := range report.Policy.Warnings {
			fmt.Printf("    [policy warning] %s\n", w)
		}
	}
}
