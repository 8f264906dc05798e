package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fel4os/fel4/pkg/stores"
)

// ErrToolNotFound reports that a tool could not be located on the host.
var ErrToolNotFound = errors.New("tool not found")

// versionPattern matches the first dotted version number in tool output.
var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// ProbeStore is the slice of the history store the prober caches through.
type ProbeStore interface {
	UpsertToolProbe(ctx context.Context, probe *stores.ToolProbe) error
	GetToolProbe(ctx context.Context, tool string) (*stores.ToolProbe, error)
	DeleteExpiredToolProbes(ctx context.Context) (int64, error)
}

// Probe records where a host tool was found and which version it reports.
type Probe struct {
	Tool     string    `json:"tool"`
	Path     string    `json:"path"`
	Version  string    `json:"version"`
	Cached   bool      `json:"cached"`
	ProbedAt time.Time `json:"probed_at"`
}

// Prober locates host tools and caches the results.
type Prober struct {
	store      ProbeStore
	overrides  map[string]string
	defaultTTL int
	timeout    time.Duration
}

// NewProber creates a prober backed by store. A nil store disables caching.
// Overrides pin tools to explicit paths and bypass both PATH and the cache.
func NewProber(store ProbeStore, overrides map[string]string) *Prober {
	pinned := make(map[string]string, len(overrides))
	for tool, path := range overrides {
		pinned[tool] = path
	}

	return &Prober{
		store:      store,
		overrides:  pinned,
		defaultTTL: 3600, // 1 hour default TTL
		timeout:    5 * time.Second,
	}
}

// Probe locates a tool and reports its version. Cached results are served
// until they expire unless refresh is set.
func (p *Prober) Probe(ctx context.Context, name string, refresh bool) (*Probe, error) {
	if path, ok := p.overrides[name]; ok {
		return p.probePinned(ctx, name, path)
	}

	// Check cache if not refreshing
	if !refresh && p.store != nil {
		if rec, err := p.store.GetToolProbe(ctx, name); err == nil {
			return &Probe{
				Tool:     rec.Tool,
				Path:     rec.Path,
				Version:  rec.Version,
				Cached:   true,
				ProbedAt: rec.UpdatedAt,
			}, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	probe := &Probe{
		Tool:     name,
		Path:     path,
		Version:  p.detectVersion(ctx, name, path),
		ProbedAt: time.Now().UTC(),
	}

	// Store probe
	if p.store != nil {
		if err := p.storeProbe(ctx, probe); err != nil {
			log.Error().Err(err).Str("tool", name).Msg("Failed to store tool probe")
		}
	}

	return probe, nil
}

// Resolve returns the path of a tool, probing the host on cache misses.
// It satisfies the pipeline's tool resolver contract.
func (p *Prober) Resolve(ctx context.Context, tool string) (string, error) {
	probe, err := p.Probe(ctx, tool, false)
	if err != nil {
		return "", err
	}
	return probe.Path, nil
}

// SweepExpired removes expired cached probes and returns the number removed.
func (p *Prober) SweepExpired(ctx context.Context) (int64, error) {
	if p.store == nil {
		return 0, nil
	}
	return p.store.DeleteExpiredToolProbes(ctx)
}

// SetTTL overrides how long cached probe results stay fresh. Non-positive
// durations are ignored.
func (p *Prober) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		p.defaultTTL = int(ttl / time.Second)
	}
}

// probePinned verifies an overridden tool path. Pinned tools are not cached;
// there is nothing to rediscover.
func (p *Prober) probePinned(ctx context.Context, name, path string) (*Probe, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s (override %s)", ErrToolNotFound, name, path)
	}

	return &Probe{
		Tool:     name,
		Path:     path,
		Version:  p.detectVersion(ctx, name, path),
		ProbedAt: time.Now().UTC(),
	}, nil
}

// detectVersion runs a tool's version command and extracts the version
// number. Tools that do not understand --version report an empty version.
func (p *Prober) detectVersion(ctx context.Context, name, path string) string {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, path, "--version").CombinedOutput()
	if err != nil {
		log.Debug().Err(err).Str("tool", name).Msg("Version probe failed")
		return ""
	}

	return parseVersion(string(out))
}

// storeProbe caches a probe result through the history store.
func (p *Prober) storeProbe(ctx context.Context, probe *Probe) error {
	now := time.Now()
	expiresAt := now.Add(time.Duration(p.defaultTTL) * time.Second)

	rec := &stores.ToolProbe{
		ID:        uuid.New().String(),
		Tool:      probe.Tool,
		Path:      probe.Path,
		Version:   probe.Version,
		TTL:       p.defaultTTL,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.store.UpsertToolProbe(ctx, rec); err != nil {
		return fmt.Errorf("failed to store tool probe: %w", err)
	}

	return nil
}

// parseVersion extracts the version number from the first line of tool
// output. cmake, ninja, gcc and QEMU all print it there.
func parseVersion(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	return versionPattern.FindString(line)
}
