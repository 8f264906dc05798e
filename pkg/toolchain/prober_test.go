package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/stores"
)

// The prober is what the build executor resolves tools through.
var _ pipeline.ToolResolver = (*Prober)(nil)

// writeFakeTool creates an executable script that prints firstLine, standing
// in for a real tool's --version output.
func writeFakeTool(t *testing.T, dir, name, firstLine string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	script := fmt.Sprintf("#!/bin/sh\necho '%s'\n", firstLine)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write fake tool %s: %v", name, err)
	}

	return path
}

type mockProbeStore struct {
	mu      sync.Mutex
	probes  map[string]*stores.ToolProbe
	upserts int
}

func newMockProbeStore() *mockProbeStore {
	return &mockProbeStore{probes: make(map[string]*stores.ToolProbe)}
}

func (m *mockProbeStore) UpsertToolProbe(ctx context.Context, probe *stores.ToolProbe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[probe.Tool] = probe
	m.upserts++
	return nil
}

func (m *mockProbeStore) GetToolProbe(ctx context.Context, tool string) (*stores.ToolProbe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	probe, ok := m.probes[tool]
	if !ok || (probe.ExpiresAt != nil && probe.ExpiresAt.Before(time.Now())) {
		return nil, fmt.Errorf("tool probe not found or expired: %s", tool)
	}
	return probe, nil
}

func (m *mockProbeStore) DeleteExpiredToolProbes(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for tool, probe := range m.probes {
		if probe.ExpiresAt != nil && probe.ExpiresAt.Before(time.Now()) {
			delete(m.probes, tool)
			removed++
		}
	}
	return removed, nil
}

func TestProber_Probe_FindsTool(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "cmake", "cmake version 3.27.4")
	t.Setenv("PATH", dir)

	prober := NewProber(nil, nil)
	probe, err := prober.Probe(context.Background(), "cmake", false)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if probe.Path != want {
		t.Errorf("Expected path %s, got %s", want, probe.Path)
	}
	if probe.Version != "3.27.4" {
		t.Errorf("Expected version 3.27.4, got %q", probe.Version)
	}
	if probe.Cached {
		t.Error("Expected a fresh probe, got a cached one")
	}
	if probe.ProbedAt.IsZero() {
		t.Error("Expected ProbedAt to be set")
	}
}

func TestProber_Probe_ToolMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	prober := NewProber(nil, nil)
	_, err := prober.Probe(context.Background(), "ninja", false)
	if err == nil {
		t.Fatal("Expected error for missing tool")
	}
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestProber_Probe_CachesResult(t *testing.T) {
	dir := t.TempDir()
	writeFakeTool(t, dir, "ninja", "1.11.1")
	t.Setenv("PATH", dir)

	store := newMockProbeStore()
	prober := NewProber(store, nil)

	first, err := prober.Probe(context.Background(), "ninja", false)
	if err != nil {
		t.Fatalf("First probe failed: %v", err)
	}
	if first.Cached {
		t.Error("Expected first probe to be fresh")
	}
	if store.upserts != 1 {
		t.Fatalf("Expected 1 upsert, got %d", store.upserts)
	}

	// Verify the cached record carries the TTL
	rec := store.probes["ninja"]
	if rec.TTL != 3600 {
		t.Errorf("Expected TTL 3600, got %d", rec.TTL)
	}
	if rec.ExpiresAt == nil {
		t.Fatal("Expected ExpiresAt to be set")
	}
	if !rec.ExpiresAt.After(time.Now()) {
		t.Error("Expected ExpiresAt in the future")
	}
	if rec.Version != "1.11.1" {
		t.Errorf("Expected version 1.11.1, got %q", rec.Version)
	}

	second, err := prober.Probe(context.Background(), "ninja", false)
	if err != nil {
		t.Fatalf("Second probe failed: %v", err)
	}
	if !second.Cached {
		t.Error("Expected second probe to be served from cache")
	}
	if second.Path != first.Path {
		t.Errorf("Expected cached path %s, got %s", first.Path, second.Path)
	}
	if store.upserts != 1 {
		t.Errorf("Expected cache hit to skip the upsert, got %d upserts", store.upserts)
	}
}

func TestProber_Probe_RefreshBypassesCache(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	// Seed a cached probe for a tool that is not on PATH
	store := newMockProbeStore()
	store.probes["arm-linux-gnueabihf-gcc"] = &stores.ToolProbe{
		ID:        "probe1",
		Tool:      "arm-linux-gnueabihf-gcc",
		Path:      "/opt/cross/bin/arm-linux-gnueabihf-gcc",
		Version:   "12.3.0",
		UpdatedAt: time.Now(),
	}

	prober := NewProber(store, nil)

	cached, err := prober.Probe(context.Background(), "arm-linux-gnueabihf-gcc", false)
	if err != nil {
		t.Fatalf("Cached probe failed: %v", err)
	}
	if !cached.Cached {
		t.Error("Expected a cached probe")
	}
	if cached.Path != "/opt/cross/bin/arm-linux-gnueabihf-gcc" {
		t.Errorf("Expected cached path, got %s", cached.Path)
	}

	_, err = prober.Probe(context.Background(), "arm-linux-gnueabihf-gcc", true)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected refresh to probe the live host, got %v", err)
	}
}

func TestProber_Probe_ExpiredCacheReprobed(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "cmake", "cmake version 3.27.4")
	t.Setenv("PATH", dir)

	expired := time.Now().Add(-time.Minute)
	store := newMockProbeStore()
	store.probes["cmake"] = &stores.ToolProbe{
		ID:        "probe1",
		Tool:      "cmake",
		Path:      "/stale/cmake",
		ExpiresAt: &expired,
	}

	prober := NewProber(store, nil)
	probe, err := prober.Probe(context.Background(), "cmake", false)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if probe.Cached {
		t.Error("Expected expired cache entry to be ignored")
	}
	if probe.Path != want {
		t.Errorf("Expected fresh path %s, got %s", want, probe.Path)
	}
}

func TestProber_Probe_Override(t *testing.T) {
	dir := t.TempDir()
	pinned := writeFakeTool(t, dir, "custom-cmake", "cmake version 3.30.0")
	t.Setenv("PATH", t.TempDir())

	store := newMockProbeStore()
	prober := NewProber(store, map[string]string{"cmake": pinned})

	probe, err := prober.Probe(context.Background(), "cmake", false)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if probe.Path != pinned {
		t.Errorf("Expected pinned path %s, got %s", pinned, probe.Path)
	}
	if probe.Version != "3.30.0" {
		t.Errorf("Expected version 3.30.0, got %q", probe.Version)
	}
	if store.upserts != 0 {
		t.Errorf("Expected pinned tools to skip the cache, got %d upserts", store.upserts)
	}
}

func TestProber_Probe_OverrideMissing(t *testing.T) {
	prober := NewProber(nil, map[string]string{"cmake": "/nonexistent/cmake"})

	_, err := prober.Probe(context.Background(), "cmake", false)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound for a bad override, got %v", err)
	}
}

func TestProber_Resolve(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "ninja", "1.11.1")
	t.Setenv("PATH", dir)

	prober := NewProber(nil, nil)

	path, err := prober.Resolve(context.Background(), "ninja")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if path != want {
		t.Errorf("Expected %s, got %s", want, path)
	}

	_, err = prober.Resolve(context.Background(), "qemu-system-arm")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestProber_SweepExpired(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	live := time.Now().Add(time.Hour)

	store := newMockProbeStore()
	store.probes["cmake"] = &stores.ToolProbe{Tool: "cmake", ExpiresAt: &expired}
	store.probes["ninja"] = &stores.ToolProbe{Tool: "ninja", ExpiresAt: &live}

	prober := NewProber(store, nil)
	removed, err := prober.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed probe, got %d", removed)
	}
	if _, ok := store.probes["ninja"]; !ok {
		t.Error("Expected the live probe to survive the sweep")
	}
}

func TestProber_SweepExpired_NoStore(t *testing.T) {
	prober := NewProber(nil, nil)
	removed, err := prober.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected 0 removed probes, got %d", removed)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "cmake",
			output: "cmake version 3.27.4\n\nCMake suite maintained by Kitware\n",
			want:   "3.27.4",
		},
		{
			name:   "ninja",
			output: "1.11.1\n",
			want:   "1.11.1",
		},
		{
			name:   "gcc",
			output: "gcc (Ubuntu 12.3.0-1ubuntu1~22.04) 12.3.0\nCopyright (C) 2022\n",
			want:   "12.3.0",
		},
		{
			name:   "qemu",
			output: "QEMU emulator version 7.2.9 (Debian 1:7.2+dfsg-7)\n",
			want:   "7.2.9",
		},
		{
			name:   "two part version",
			output: "tool 4.2\n",
			want:   "4.2",
		},
		{
			name:   "no version",
			output: "usage: tool [options]\n",
			want:   "",
		},
		{
			name:   "first line only",
			output: "banner\n9.9.9\n",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseVersion(tt.output)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
