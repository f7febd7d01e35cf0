package inspectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/pkg/types"
)

func findItem(section *types.NonRPMSection, path string) (types.NonRPMItem, bool) {
	for _, item := range section.Items {
		if item.Path == path {
			return item, true
		}
	}
	return types.NonRPMItem{}, false
}

// Unknown-provenance scenario: a file with no ecosystem metadata and no
// self-identifying section gets provenance unknown, confidence unknown.
func TestUnknownBinaryClassification(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "usr/local/bin/mytool", "\x00\x01opaque")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	item, ok := findItem(c.Snapshot.NonRPM, "usr/local/bin/mytool")
	require.True(t, ok)
	assert.Equal(t, types.ProvUnknown, item.Provenance)
	assert.Equal(t, types.ConfidenceUnknown, item.Confidence)
}

func TestGoBinaryClassification(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "usr/local/bin/gotool", "ELF")

	fake := hostexec.NewFake()
	fake.On("readelf -S", hostexec.Result{Stdout: `Section Headers:
  [12] .note.go.buildid NOTE
  [13] .gopclntab PROGBITS
`})
	fake.On("readelf -d", hostexec.Result{Stdout: "There is no dynamic section in this file.\n"})

	c := newTestContext(t, hostRoot, fake)
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	item, ok := findItem(c.Snapshot.NonRPM, "usr/local/bin/gotool")
	require.True(t, ok)
	assert.Equal(t, types.ProvGoBinary, item.Provenance)
	assert.Equal(t, types.ConfidenceHigh, item.Confidence)
	assert.True(t, item.Static)
}

func TestDynamicCBinarySharedLibs(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "usr/local/bin/ctool", "ELF")

	fake := hostexec.NewFake()
	fake.On("readelf -S", hostexec.Result{Stdout: "  [10] .text PROGBITS\n"})
	fake.On("readelf -d", hostexec.Result{Stdout: ` 0x0000000000000001 (NEEDED)  Shared library: [libc.so.6]
 0x0000000000000001 (NEEDED)  Shared library: [libssl.so.3]
`})

	c := newTestContext(t, hostRoot, fake)
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	item, ok := findItem(c.Snapshot.NonRPM, "usr/local/bin/ctool")
	require.True(t, ok)
	assert.Equal(t, types.ProvCBinary, item.Provenance)
	assert.False(t, item.Static)
	assert.Equal(t, []string{"libc.so.6", "libssl.so.3"}, item.SharedLibs)
}

func TestVenvDetection(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "opt/appenv/pyvenv.cfg",
		"home = /usr/bin\ninclude-system-site-packages = true\nversion = 3.9.18\n")
	writeHostFile(t, hostRoot, "opt/appenv/lib/python3.9/site-packages/requests-2.31.0.dist-info/METADATA", "Name: requests\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	item, ok := findItem(c.Snapshot.NonRPM, "opt/appenv")
	require.True(t, ok)
	assert.Equal(t, types.ProvVenv, item.Provenance)
	assert.True(t, item.SystemSitePackages)
	require.Len(t, item.Packages, 1)
	assert.Equal(t, "requests", item.Packages[0].Name)
	assert.Equal(t, "2.31.0", item.Packages[0].Version)
}

func TestPipDistInfoWithCExtensions(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "usr/lib/python3/3.9/site-packages/numpy-1.24.0.dist-info/RECORD",
		"numpy/core/_multiarray.so,sha256=x,123\n")
	writeHostFile(t, hostRoot, "usr/lib/python3/3.9/site-packages/requests-2.31.0.dist-info/RECORD",
		"requests/__init__.py,sha256=y,10\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	var numpy, requests types.NonRPMItem
	for _, item := range c.Snapshot.NonRPM.Items {
		switch item.Name {
		case "numpy":
			numpy = item
		case "requests":
			requests = item
		}
	}
	assert.True(t, numpy.HasCExtensions)
	assert.False(t, requests.HasCExtensions)
	assert.Equal(t, "1.24.0", numpy.Version)
}

func TestGitDirDetection(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "opt/webapp/.git/config",
		"[remote \"origin\"]\n\turl = https://git.example.com/team/webapp.git\n")
	writeHostFile(t, hostRoot, "opt/webapp/.git/HEAD", "ref: refs/heads/main\n")
	writeHostFile(t, hostRoot, "opt/webapp/.git/refs/heads/main", "0123456789abcdef0123456789abcdef01234567\n")
	writeHostFile(t, hostRoot, "opt/webapp/app.py", "print('hi')\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	item, ok := findItem(c.Snapshot.NonRPM, "opt/webapp")
	require.True(t, ok)
	assert.Equal(t, types.ProvGit, item.Provenance)
	assert.Equal(t, "https://git.example.com/team/webapp.git", item.GitRemote)
	assert.Equal(t, "main", item.GitBranch)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", item.GitCommit)
}

func TestLockfileDetection(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "opt/webui/package-lock.json", "{\"name\": \"webui\"}\n")
	writeHostFile(t, hostRoot, "opt/webui/package.json", "{\"name\": \"webui\"}\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	item, ok := findItem(c.Snapshot.NonRPM, "opt/webui")
	require.True(t, ok)
	assert.Equal(t, types.ProvNpm, item.Provenance)
	assert.Contains(t, item.Files, "package-lock.json")
	assert.Contains(t, item.Files, "package.json")
}

func TestHomeNeverScanned(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "home/dev/project/package-lock.json", "{}\n")
	writeHostFile(t, hostRoot, "home/dev/bin/tool", "\x7fELF")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	for _, item := range c.Snapshot.NonRPM.Items {
		assert.NotContains(t, item.Path, "home/", "user homes are never scanned")
	}
}

func TestDevCheckoutPruned(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "opt/checkout/sub/.git/config", "[core]\n")
	writeHostFile(t, hostRoot, "opt/checkout/sub/requirements.txt", "flask==2.0\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NonRPMInspector{}).Run(c))

	_, ok := findItem(c.Snapshot.NonRPM, "opt/checkout/sub/requirements.txt")
	assert.False(t, ok, "requirements inside a VCS checkout are pruned")
}

func TestSplitDistInfo(t *testing.T) {
	name, version := splitDistInfo("typing-extensions-4.8.0.dist-info")
	assert.Equal(t, "typing-extensions", name)
	assert.Equal(t, "4.8.0", version)
}
