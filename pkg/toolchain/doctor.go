package toolchain

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fel4os/fel4/pkg/manifest"
)

// CheckStatus classifies a single doctor check.
type CheckStatus string

const (
	// CheckStatusFound means the tool is present on the host.
	CheckStatusFound CheckStatus = "found"

	// CheckStatusMissing means the tool could not be located.
	CheckStatusMissing CheckStatus = "missing"
)

// Check is the doctor's verdict on one host tool.
type Check struct {
	Tool     string      `json:"tool"`
	Purpose  string      `json:"purpose"`
	Status   CheckStatus `json:"status"`
	Optional bool        `json:"optional"`
	Path     string      `json:"path,omitempty"`
	Version  string      `json:"version,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

// Report is the outcome of a toolchain health check.
type Report struct {
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Healthy reports whether every required tool was found. Missing optional
// tools do not make a host unhealthy.
func (r *Report) Healthy() bool {
	for _, check := range r.Checks {
		if check.Status == CheckStatusMissing && !check.Optional {
			return false
		}
	}
	return true
}

// Missing returns the required tools that were not found.
func (r *Report) Missing() []Check {
	var missing []Check
	for _, check := range r.Checks {
		if check.Status == CheckStatusMissing && !check.Optional {
			missing = append(missing, check)
		}
	}
	return missing
}

// Doctor runs toolchain health checks for fel4 doctor.
type Doctor struct {
	prober *Prober
}

// NewDoctor creates a doctor that probes through prober.
func NewDoctor(prober *Prober) *Doctor {
	return &Doctor{prober: prober}
}

// Check probes every tool the given targets need and reports the results.
// With no targets it covers every supported target. Probes bypass the cache
// so the report reflects the live host.
func (d *Doctor) Check(ctx context.Context, targets ...manifest.SupportedTarget) *Report {
	tools := AllTools(targets...)

	report := &Report{
		Checks:    make([]Check, 0, len(tools)),
		CheckedAt: time.Now().UTC(),
	}

	for _, tool := range tools {
		check := Check{
			Tool:     tool.Name,
			Purpose:  tool.Purpose,
			Optional: tool.Optional,
		}

		probe, err := d.prober.Probe(ctx, tool.Name, true)
		if err != nil {
			check.Status = CheckStatusMissing
			check.Detail = err.Error()
		} else {
			check.Status = CheckStatusFound
			check.Path = probe.Path
			check.Version = probe.Version
		}

		report.Checks = append(report.Checks, check)
	}

	log.Info().
		Int("tools", len(report.Checks)).
		Int("missing", len(report.Missing())).
		Bool("healthy", report.Healthy()).
		Msg("Toolchain check completed")

	return report
}
