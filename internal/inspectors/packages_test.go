package inspectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/pkg/types"
)

func TestParseNEVRA(t *testing.T) {
	tests := []struct {
		input string
		want  types.PackageEntry
		ok    bool
	}{
		{"0:bash-5.1.8-9.el9.x86_64", types.PackageEntry{Name: "bash", Epoch: "0", Version: "5.1.8", Release: "9.el9", Arch: "x86_64"}, true},
		{"(none):vim-enhanced-8.2.2637-20.el9.x86_64", types.PackageEntry{Name: "vim-enhanced", Epoch: "0", Version: "8.2.2637", Release: "20.el9", Arch: "x86_64"}, true},
		{"1:openssl-3.0.7-27.el9.x86_64", types.PackageEntry{Name: "openssl", Epoch: "1", Version: "3.0.7", Release: "27.el9", Arch: "x86_64"}, true},
		{"0:kernel-tools-libs-5.14.0-362.el9.x86_64", types.PackageEntry{Name: "kernel-tools-libs", Epoch: "0", Version: "5.14.0", Release: "362.el9", Arch: "x86_64"}, true},
		{"garbage", types.PackageEntry{}, false},
		{"x:broken-1-1.noarch", types.PackageEntry{}, false},
	}
	for _, tt := range tests {
		got, ok := parseNEVRA(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.input)
		}
	}
}

func TestParseVerify(t *testing.T) {
	out := `S.5....T.  c /etc/ssh/sshd_config
.M.......    /usr/bin/tool
.......T.  d /var/lib/thing
`
	entries := ParseVerify(out)
	require.Len(t, entries, 3)
	assert.Equal(t, "/etc/ssh/sshd_config", entries[0].Path)
	assert.Equal(t, "S.5....T.", entries[0].Flags)
	assert.Equal(t, "/usr/bin/tool", entries[1].Path)
	assert.Equal(t, "/var/lib/thing", entries[2].Path)
}

// Set-arithmetic correctness: added = H\B, removed = B\H, disjoint.
func TestPackageDiffSetArithmetic(t *testing.T) {
	hostRoot := t.TempDir()
	fake := hostexec.NewFake()
	fake.On("rpm --dbpath", hostexec.Result{Stdout: "0:a-1-1.x86_64\n0:b-1-1.x86_64\n0:c-1-1.x86_64\n"})

	c := newTestContext(t, hostRoot, fake)
	c.Snapshot.Baseline = &types.BaselineInfo{
		Mode:         types.BaselineQueried,
		PackageNames: []string{"b", "c", "d"},
	}

	require.NoError(t, (&PackageInspector{}).Run(c))
	section := c.Snapshot.Packages
	require.NotNil(t, section)

	var added, removed []string
	for _, p := range section.Added {
		added = append(added, p.Name)
	}
	for _, p := range section.Removed {
		removed = append(removed, p.Name)
	}
	assert.Equal(t, []string{"a"}, added)
	assert.Equal(t, []string{"d"}, removed)

	for _, a := range added {
		assert.NotContains(t, removed, a, "added and removed must be disjoint")
	}
	require.NoError(t, c.Snapshot.Validate())
}

// All-packages mode: with an empty baseline every installed package is added.
func TestPackageDiffAllPackagesMode(t *testing.T) {
	hostRoot := t.TempDir()
	fake := hostexec.NewFake()
	fake.On("rpm --dbpath", hostexec.Result{Stdout: "0:a-1-1.x86_64\n0:b-1-1.x86_64\n"})

	c := newTestContext(t, hostRoot, fake)
	c.Snapshot.Baseline = &types.BaselineInfo{Mode: types.BaselineEmpty}

	require.NoError(t, (&PackageInspector{}).Run(c))
	assert.Len(t, c.Snapshot.Packages.Added, 2)
	assert.Empty(t, c.Snapshot.Packages.Removed)
	assert.Empty(t, c.Snapshot.Packages.Unchanged)
}

func TestPackageVirtualFiltered(t *testing.T) {
	hostRoot := t.TempDir()
	fake := hostexec.NewFake()
	fake.On("rpm --dbpath", hostexec.Result{Stdout: "0:gpg-pubkey-1-1.noarch\n0:zsh-5.8-9.el9.x86_64\n"})

	c := newTestContext(t, hostRoot, fake)
	c.Snapshot.Baseline = &types.BaselineInfo{Mode: types.BaselineEmpty}
	require.NoError(t, (&PackageInspector{}).Run(c))

	require.Len(t, c.Snapshot.Packages.Added, 1)
	assert.Equal(t, "zsh", c.Snapshot.Packages.Added[0].Name)
}

func TestPackageAddedIsNameSorted(t *testing.T) {
	hostRoot := t.TempDir()
	fake := hostexec.NewFake()
	fake.On("rpm --dbpath", hostexec.Result{Stdout: "0:zeta-1-1.noarch\n0:alpha-1-1.noarch\n0:mid-1-1.noarch\n"})

	c := newTestContext(t, hostRoot, fake)
	c.Snapshot.Baseline = &types.BaselineInfo{Mode: types.BaselineEmpty}
	require.NoError(t, (&PackageInspector{}).Run(c))

	var names []string
	for _, p := range c.Snapshot.Packages.Added {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestPackageRepoFiles(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/yum.repos.d/custom.repo", "[custom]\nbaseurl=https://repo.internal\n")
	writeHostFile(t, hostRoot, "etc/yum.repos.d/README", "not a repo file\n")
	writeHostFile(t, hostRoot, "etc/dnf/dnf.conf", "[main]\ngpgcheck=1\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	c.Snapshot.Baseline = &types.BaselineInfo{Mode: types.BaselineEmpty}
	require.NoError(t, (&PackageInspector{}).Run(c))

	var paths []string
	for _, repo := range c.Snapshot.Packages.RepoFiles {
		paths = append(paths, repo.Path)
	}
	assert.Contains(t, paths, "etc/yum.repos.d/custom.repo")
	assert.Contains(t, paths, "etc/dnf/dnf.conf")
	assert.NotContains(t, paths, "etc/yum.repos.d/README")
}
