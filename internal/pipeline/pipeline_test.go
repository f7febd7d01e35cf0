package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/render"
	"github.com/marrusl/yoinkc/pkg/types"
)

func sealedSnapshot() *types.Snapshot {
	return &types.Snapshot{
		SchemaVersion: types.SchemaVersion,
		Sealed:        true,
		Host: types.HostInfo{
			Hostname:    "db01",
			OSID:        "centos",
			OSName:      "CentOS Stream",
			PrettyName:  "CentOS Stream 9",
			VersionID:   "9",
			InspectedAt: time.Date(2025, 7, 15, 8, 30, 0, 0, time.UTC),
		},
		Target: &types.TargetImage{
			Image:      "quay.io/centos-bootc/centos-bootc:stream9",
			Resolution: types.TargetAuto,
		},
		Baseline: &types.BaselineInfo{Mode: types.BaselineSupplied, PackageNames: []string{"bash"}},
		Packages: &types.PackageSection{
			Added: []types.PackageEntry{{Name: "postgresql-server", Epoch: "0", Version: "15.6", Release: "1.el9", Arch: "x86_64"}},
		},
		Services: &types.ServiceSection{States: []types.ServiceState{
			{Unit: "postgresql.service", Current: types.UnitEnabled, Default: types.UnitAbsent, Action: types.ActionEnable},
		}},
		Warnings: []types.Warning{
			{Severity: types.SeverityInfo, Source: "storage", Message: "lvs unavailable"},
		},
		SecretsReview: []types.Redaction{
			{Path: "/etc/app.conf", Pattern: "PASSWORD", Line: "4"},
		},
	}
}

func TestSaveLoadSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspection-snapshot.json")
	original := sealedSnapshot()
	require.NoError(t, SaveSnapshot(original, path))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

// Snapshot round-trip: rendering from a loaded snapshot produces artifacts
// byte-identical to rendering the in-memory one.
func TestRenderFromLoadedSnapshotIsIdentical(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "inspection-snapshot.json")
	original := sealedSnapshot()
	require.NoError(t, SaveSnapshot(original, snapshotPath))

	dirDirect := t.TempDir()
	require.NoError(t, render.RunAll(original, dirDirect))

	loaded, err := LoadSnapshot(snapshotPath)
	require.NoError(t, err)
	dirLoaded := t.TempDir()
	require.NoError(t, render.RunAll(loaded, dirLoaded))

	for _, name := range []string{"Containerfile", "audit-report.md", "report.html", "README.md"} {
		direct, err := os.ReadFile(filepath.Join(dirDirect, name))
		require.NoError(t, err)
		fromLoaded, err := os.ReadFile(filepath.Join(dirLoaded, name))
		require.NoError(t, err)
		assert.Equal(t, string(direct), string(fromLoaded), name)
	}
}

func TestLoadSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadSnapshot(path)
	assert.Error(t, err)
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
