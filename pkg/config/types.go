package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fel4os/fel4/pkg/stores"
	"github.com/fel4os/fel4/pkg/telemetry"
)

// ToolConfig is the fel4 tool's own configuration.
type ToolConfig struct {
	// Telemetry configures logging, tracing, and metrics.
	Telemetry TelemetrySection `mapstructure:"telemetry"`

	// Store configures the build-history database.
	Store StoreSection `mapstructure:"store"`

	// Policy configures the validation policy set.
	Policy PolicySection `mapstructure:"policy"`

	// Deploy configures board deployment.
	Deploy DeploySection `mapstructure:"deploy"`

	// Toolchain configures host tool discovery.
	Toolchain ToolchainSection `mapstructure:"toolchain"`

	// Build configures pipeline execution.
	Build BuildSection `mapstructure:"build"`

	// Path is where the configuration was loaded from, empty when the
	// tool runs on defaults.
	Path string `mapstructure:"-"`
}

// TelemetrySection configures observability.
type TelemetrySection struct {
	// Environment names where the tool runs: developer, ci, or lab.
	Environment string `mapstructure:"environment" validate:"oneof=developer ci lab"`

	Logging LoggingSection `mapstructure:"logging"`
	Tracing TracingSection `mapstructure:"tracing"`
	Metrics MetricsSection `mapstructure:"metrics"`
}

// LoggingSection configures structured logging.
type LoggingSection struct {
	// Level is the minimum log level. FEL4_LOG_LEVEL overrides it.
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal"`

	// Format selects console or json output.
	Format string `mapstructure:"format" validate:"oneof=console json"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`

	// Caller adds file:line caller information.
	Caller bool `mapstructure:"caller"`
}

// TracingSection configures distributed tracing.
type TracingSection struct {
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects otlp, stdout, or none.
	Exporter string `mapstructure:"exporter" validate:"oneof=otlp stdout none"`

	// Endpoint is the OTLP collector address.
	Endpoint string `mapstructure:"endpoint"`

	// SamplingRate is the trace sampling ratio between 0 and 1.
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool `mapstructure:"enabled"`

	// ListenAddress is where /metrics is served.
	ListenAddress string `mapstructure:"listen_address"`
}

// StoreSection configures the build-history database.
type StoreSection struct {
	// Path is the SQLite database file. A leading ~ expands to the
	// user's home directory.
	Path string `mapstructure:"path" validate:"required"`

	MaxOpenConns int `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns int `mapstructure:"max_idle_conns" validate:"min=1"`
}

// PolicySection configures which policies validate resolved configurations.
type PolicySection struct {
	// Paths lists .rego files or directories loaded before validation.
	Paths []string `mapstructure:"paths"`
}

// DeploySection configures board deployment.
type DeploySection struct {
	// Inventory is the boards.yaml path.
	Inventory string `mapstructure:"inventory"`
}

// ToolchainSection configures host tool discovery.
type ToolchainSection struct {
	// ProbeTTL is how long cached tool probes stay fresh.
	ProbeTTL time.Duration `mapstructure:"probe_ttl"`

	// Overrides pin tools to explicit paths, bypassing PATH lookup.
	Overrides map[string]string `mapstructure:"overrides"`
}

// BuildSection configures pipeline execution.
type BuildSection struct {
	// MaxParallel caps the scheduler worker count.
	MaxParallel int `mapstructure:"max_parallel" validate:"min=1,max=64"`

	// FailFast stops a matrix build at the first failure.
	FailFast bool `mapstructure:"fail_fast"`
}

// Default returns the configuration the tool runs on when no config file
// is found.
func Default() *ToolConfig {
	return &ToolConfig{
		Telemetry: TelemetrySection{
			Environment: "developer",
			Logging: LoggingSection{
				Level:  "info",
				Format: "console",
				Output: "stderr",
			},
			Tracing: TracingSection{
				Enabled:      false,
				Exporter:     "stdout",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsSection{
				Enabled:       false,
				ListenAddress: ":9464",
			},
		},
		Store: StoreSection{
			Path:         filepath.Join(defaultStateDir(), "history.db"),
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Policy: PolicySection{
			Paths: nil,
		},
		Deploy: DeploySection{
			Inventory: "",
		},
		Toolchain: ToolchainSection{
			ProbeTTL:  time.Hour,
			Overrides: make(map[string]string),
		},
		Build: BuildSection{
			MaxParallel: 4,
			FailFast:    false,
		},
	}
}

// TelemetryConfig maps the telemetry section onto the telemetry package's
// configuration.
func (c *ToolConfig) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Environment = c.Telemetry.Environment

	// DefaultConfig already folded FEL4_LOG_LEVEL in; the file only wins
	// when the environment is silent.
	if os.Getenv(telemetry.EnvLogLevel) == "" {
		cfg.Logging.Level = c.Telemetry.Logging.Level
	}
	cfg.Logging.Format = c.Telemetry.Logging.Format
	cfg.Logging.Output = c.Telemetry.Logging.Output
	cfg.Logging.EnableCaller = c.Telemetry.Logging.Caller

	cfg.Tracing.Enabled = c.Telemetry.Tracing.Enabled
	cfg.Tracing.Exporter = c.Telemetry.Tracing.Exporter
	cfg.Tracing.Endpoint = c.Telemetry.Tracing.Endpoint
	cfg.Tracing.SamplingRate = c.Telemetry.Tracing.SamplingRate
	cfg.Tracing.Insecure = c.Telemetry.Tracing.Insecure

	cfg.Metrics.Enabled = c.Telemetry.Metrics.Enabled
	cfg.Metrics.ListenAddress = c.Telemetry.Metrics.ListenAddress

	return cfg
}

// StoreConfig maps the store section onto the history store's configuration.
func (c *ToolConfig) StoreConfig() stores.Config {
	return stores.Config{
		Path:         ExpandHome(c.Store.Path),
		MaxOpenConns: c.Store.MaxOpenConns,
		MaxIdleConns: c.Store.MaxIdleConns,
	}
}

// ExpandHome replaces a leading ~ with the user's home directory. Paths
// without the prefix come back unchanged.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// defaultStateDir returns where mutable tool state lives, honoring
// XDG_STATE_HOME.
func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "fel4")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".fel4")
	}
	return filepath.Join(home, ".local", "state", "fel4")
}
