package render

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/pkg/types"
)

func sampleSnapshot() *types.Snapshot {
	return &types.Snapshot{
		SchemaVersion: types.SchemaVersion,
		Sealed:        true,
		Host: types.HostInfo{
			Hostname:    "web01.example.com",
			OSID:        "rhel",
			OSName:      "Red Hat Enterprise Linux",
			PrettyName:  "Red Hat Enterprise Linux 9.4 (Plow)",
			VersionID:   "9.4",
			InspectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Target: &types.TargetImage{
			Image:      "registry.redhat.io/rhel9/rhel-bootc:9.6",
			Resolution: types.TargetAuto,
		},
		Baseline: &types.BaselineInfo{
			Mode:         types.BaselineQueried,
			PackageNames: []string{"b", "c", "d"},
		},
		Packages: &types.PackageSection{
			Added: []types.PackageEntry{
				{Name: "a", Epoch: "0", Version: "1", Release: "1", Arch: "x86_64"},
			},
			Removed: []types.PackageEntry{
				{Name: "d", Epoch: "0", Arch: "noarch"},
			},
			RepoFiles: []types.RepoFile{
				{Path: "etc/yum.repos.d/custom.repo", Content: "[custom]\nbaseurl=https://repo.internal\n"},
			},
		},
		Services: &types.ServiceSection{States: []types.ServiceState{
			{Unit: "httpd.service", Current: types.UnitEnabled, Default: types.UnitAbsent, Action: types.ActionEnable},
			{Unit: "cups.service", Current: types.UnitDisabled, Default: types.UnitEnabled, Action: types.ActionDisable},
			{Unit: "bluetooth.service", Current: types.UnitMasked, Default: types.UnitEnabled, Action: types.ActionMask},
			{Unit: "sshd.service", Current: types.UnitEnabled, Default: types.UnitEnabled, Action: types.ActionNone},
		}},
		Configs: &types.ConfigSection{Files: []types.ConfigFile{
			{Path: "/etc/myapp/app.conf", Kind: types.ConfigUnowned, Content: "setting = 1\n"},
		}},
		Scheduled: &types.ScheduledSection{GeneratedTimers: []types.GeneratedTimer{
			{
				Name:           "cron-crontab",
				CronExpr:       "0 3 * * *",
				SourcePath:     "etc/crontab",
				Command:        "/usr/local/bin/backup.sh",
				OnCalendar:     "*-*-* 03:00:00",
				Converted:      true,
				TimerContent:   "[Unit]\nDescription=x\n\n[Timer]\nOnCalendar=*-*-* 03:00:00\n",
				ServiceContent: "[Unit]\nDescription=x\n\n[Service]\nExecStart=/usr/local/bin/backup.sh\n",
			},
		}},
		NonRPM: &types.NonRPMSection{Items: []types.NonRPMItem{
			{Path: "usr/local/bin/mytool", Name: "mytool", Provenance: types.ProvUnknown, Confidence: types.ConfidenceUnknown},
		}},
	}
}

// Added/removed diff directives: install for a, remove for d.
func TestContainerfilePackageDirectives(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	require.NoError(t, WriteConfigTree(s, outputDir))
	content := RenderContainerfile(s, outputDir)

	assert.Contains(t, content, "FROM registry.redhat.io/rhel9/rhel-bootc:9.6")
	assert.Contains(t, content, "RUN dnf install -y \\\n    a \\\n    && dnf clean all")
	assert.Contains(t, content, "RUN dnf remove -y d && dnf clean all")
}

func TestContainerfileServiceDirectives(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	require.NoError(t, WriteConfigTree(s, outputDir))
	content := RenderContainerfile(s, outputDir)

	assert.Contains(t, content, "RUN systemctl enable httpd.service")
	assert.Contains(t, content, "RUN systemctl disable cups.service")
	assert.Contains(t, content, "RUN systemctl mask bluetooth.service")
	assert.NotContains(t, content, "enable sshd.service")
}

func TestContainerfileTimerEnable(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	require.NoError(t, WriteConfigTree(s, outputDir))
	content := RenderContainerfile(s, outputDir)

	assert.Contains(t, content, "RUN systemctl enable cron-crontab.timer")
}

// Unknown-provenance items get a FIXME-marked copy directive, not a guess.
func TestContainerfileUnknownProvenanceFixme(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	require.NoError(t, WriteConfigTree(s, outputDir))
	content := RenderContainerfile(s, outputDir)

	assert.Contains(t, content, "# FIXME: unknown provenance — determine upstream source and installation method for /usr/local/bin/mytool")
	assert.Contains(t, content, "# COPY config/usr/local/bin/mytool /usr/local/bin/mytool")
}

func TestContainerfileConsolidatedCopy(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	require.NoError(t, WriteConfigTree(s, outputDir))
	content := RenderContainerfile(s, outputDir)

	assert.Contains(t, content, "COPY config/etc/ /etc/")
}

func TestContainerfileAllPackagesComment(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	s.Baseline = &types.BaselineInfo{Mode: types.BaselineEmpty}
	s.Packages.Removed = nil
	require.NoError(t, WriteConfigTree(s, outputDir))
	content := RenderContainerfile(s, outputDir)

	assert.Contains(t, content, "# No baseline — including all installed packages")
}

func TestContainerfileCrossMajorWarningBlock(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	s.Target.CrossMajor = true
	s.Target.Image = "registry.redhat.io/rhel10/rhel-bootc:10.0"
	require.NoError(t, WriteConfigTree(s, outputDir))
	content := RenderContainerfile(s, outputDir)

	assert.Contains(t, content, "CROSS-MAJOR-VERSION MIGRATION")
}

// Idempotent re-render: two renders of the same snapshot produce
// byte-identical artifacts.
func TestRenderIdempotent(t *testing.T) {
	s := sampleSnapshot()
	dirA := t.TempDir()
	dirB := t.TempDir()
	require.NoError(t, RunAll(s, dirA))
	require.NoError(t, RunAll(s, dirB))

	for _, name := range []string{
		"Containerfile", "audit-report.md", "kickstart-suggestion.ks",
		"secrets-review.md", "report.html", "README.md",
	} {
		a, err := os.ReadFile(filepath.Join(dirA, name))
		require.NoError(t, err, name)
		b, err := os.ReadFile(filepath.Join(dirB, name))
		require.NoError(t, err, name)
		assert.Equal(t, string(a), string(b), "artifact %s differs between renders", name)
	}
}

func TestRunAllRefusesUnsealedSnapshot(t *testing.T) {
	s := sampleSnapshot()
	s.Sealed = false
	err := RunAll(s, t.TempDir())
	assert.ErrorIs(t, err, ErrUnsealed)
}

func TestConfigTreeMirrorsFiles(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	require.NoError(t, WriteConfigTree(s, outputDir))

	data, err := os.ReadFile(filepath.Join(outputDir, "config/etc/myapp/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "setting = 1\n", string(data))

	timer, err := os.ReadFile(filepath.Join(outputDir, "config/etc/systemd/system/cron-crontab.timer"))
	require.NoError(t, err)
	assert.Contains(t, string(timer), "OnCalendar=*-*-* 03:00:00")

	service, err := os.ReadFile(filepath.Join(outputDir, "config/etc/systemd/system/cron-crontab.service"))
	require.NoError(t, err)
	assert.Contains(t, string(service), "ExecStart=/usr/local/bin/backup.sh")
}

func TestREADMECollectsFixmes(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	require.NoError(t, RunAll(s, outputDir))

	readme, err := os.ReadFile(filepath.Join(outputDir, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "Unresolved Items")
	assert.Contains(t, string(readme), "unknown provenance")
}

func TestHTMLReportSelfContained(t *testing.T) {
	outputDir := t.TempDir()
	s := sampleSnapshot()
	s.Warnings = []types.Warning{
		{Severity: types.SeverityWarn, Source: "baseline", Message: "no baseline available"},
	}
	require.NoError(t, RunAll(s, outputDir))

	html, err := os.ReadFile(filepath.Join(outputDir, "report.html"))
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "<style>")
	assert.Contains(t, page, "<script>")
	assert.NotContains(t, page, "src=\"http")
	assert.NotContains(t, page, "href=\"http")
	assert.Contains(t, page, "no baseline available")
	assert.Contains(t, page, "web01.example.com")
}
