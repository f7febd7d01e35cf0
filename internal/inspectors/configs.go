package inspectors

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/marrusl/yoinkc/pkg/types"
)

// Volatile or machine-generated files under /etc that never belong in an
// image. Keep this list maintainable: literal paths first, globs below.
var unownedExcludeLiterals = []string{
	"/etc/machine-id",
	"/etc/machine-info",
	"/etc/mtab",
	"/etc/ld.so.cache",
	"/etc/adjtime",
	"/etc/resolv.conf",
	"/etc/hostname",
	"/etc/localtime",
	"/etc/.updated",
	"/etc/aliases.db",
	"/etc/shadow-",
	"/etc/gshadow-",
	"/etc/passwd-",
	"/etc/group-",
	"/etc/subuid-",
	"/etc/subgid-",
	"/etc/fstab",
}

var unownedExcludeGlobs = []string{
	"/etc/lvm/backup/**",
	"/etc/lvm/archive/**",
	"/etc/selinux/targeted/**",
	"/etc/udev/hwdb.bin",
	"/etc/pki/ca-trust/extracted/**",
	"/etc/alternatives/**",
	"/etc/systemd/system/**.wants/**",
	"/etc/ssl/certs/**",
	"/etc/**.bak",
	"/etc/**.rpmnew",
	"/etc/**.rpmsave",
	"/etc/**.cache",
}

// ConfigInspector captures modified owned files, unowned files under the
// system configuration root, and orphans from uninstalled packages. All
// captured content flows through the redaction pass before sealing.
type ConfigInspector struct{}

func (ci *ConfigInspector) Name() string            { return "configs" }
func (ci *ConfigInspector) DependsOnBaseline() bool { return false }

func (ci *ConfigInspector) Run(c *Context) error {
	section := &types.ConfigSection{}
	c.Snapshot.Configs = section

	ownedPaths, pathOwner := ci.ownedPathSet(c)
	if ownedPaths == nil {
		section.Partial = true
	}

	ci.collectModified(c, section, pathOwner)
	ci.collectUnowned(c, section, ownedPaths)
	ci.collectOrphaned(c, section, ownedPaths)

	sort.Slice(section.Files, func(i, j int) bool {
		if section.Files[i].Kind != section.Files[j].Kind {
			return section.Files[i].Kind < section.Files[j].Kind
		}
		return section.Files[i].Path < section.Files[j].Path
	})
	return nil
}

// ownedPathSet builds the complete package-owned path set with one bulk
// query. Per-file ownership queries are forbidden.
func (ci *ConfigInspector) ownedPathSet(c *Context) (map[string]struct{}, map[string]string) {
	res, err := c.Exec.Run(c.Ctx, []string{
		"rpm", "--root", c.HostRoot,
		"--define", "_rpmlock_path /var/tmp/.rpm.lock",
		"-qa", "--queryformat", `[%{=NAME} %{FILENAMES}\n]`,
	})
	if err != nil || !res.OK() {
		c.Info(ci.Name(), "bulk file-ownership query failed — unowned-file detection skipped")
		return nil, nil
	}
	paths := map[string]struct{}{}
	owner := map[string]string{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		pkg, file, found := strings.Cut(strings.TrimSpace(line), " ")
		if !found || !strings.HasPrefix(file, "/") {
			continue
		}
		paths[file] = struct{}{}
		owner[file] = pkg
	}
	return paths, owner
}

// collectModified captures every config file the verify pass flagged.
func (ci *ConfigInspector) collectModified(c *Context, section *types.ConfigSection, owner map[string]string) {
	if c.Snapshot.Packages == nil {
		return
	}
	for _, entry := range c.Snapshot.Packages.Verify {
		if !strings.HasPrefix(entry.Path, "/etc/") {
			continue
		}
		full := c.Host(entry.Path)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		file := types.ConfigFile{
			Path:        entry.Path,
			Kind:        types.ConfigModified,
			Content:     safeRead(full),
			VerifyFlags: entry.Flags,
			Package:     owner[entry.Path],
		}
		if c.Opts.ConfigDiffs {
			ci.attachDiff(c, &file)
		}
		section.Files = append(section.Files, file)
	}
}

// attachDiff computes a unified diff against the package-shipped original,
// extracted from a cached copy of the package archive. When the original
// cannot be retrieved, the full file stays captured with a note.
func (ci *ConfigInspector) attachDiff(c *Context, file *types.ConfigFile) {
	original, ok := ci.pristineContent(c, file)
	if !ok {
		file.Note = "package-shipped original unavailable; full file captured"
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(file.Content),
		FromFile: file.Path + " (package)",
		ToFile:   file.Path + " (host)",
		Context:  3,
	})
	if err != nil || diff == "" {
		file.Note = "diff computation failed; full file captured"
		return
	}
	file.Diff = diff
}

// pristineContent extracts one file from a cached package archive found in
// the host's package-manager cache.
func (ci *ConfigInspector) pristineContent(c *Context, file *types.ConfigFile) (string, bool) {
	if file.Package == "" {
		return "", false
	}
	var rpmPath string
	for _, cacheDir := range []string{"var/cache/dnf", "var/cache/libdnf5", "var/cache/yum"} {
		matches := filteredGlob(c.Host(cacheDir), file.Package+"-*.rpm")
		if len(matches) > 0 {
			rpmPath = matches[0]
			break
		}
	}
	if rpmPath == "" {
		return "", false
	}
	res, err := c.Exec.Run(c.Ctx, []string{
		"sh", "-c",
		"rpm2cpio '" + rpmPath + "' | cpio -i --quiet --to-stdout '." + file.Path + "'",
	})
	if err != nil || !res.OK() || res.Stdout == "" {
		return "", false
	}
	return res.Stdout, true
}

// excluder compiles the two-layer exclusion list. Exclusion is monotone:
// once any rule matches, the file is excluded.
type excluder struct {
	literals map[string]struct{}
	globs    []glob.Glob
}

func newExcluder(extraLiterals, extraGlobs []string) *excluder {
	e := &excluder{literals: map[string]struct{}{}}
	for _, p := range append(append([]string{}, unownedExcludeLiterals...), extraLiterals...) {
		e.literals[p] = struct{}{}
	}
	for _, p := range append(append([]string{}, unownedExcludeGlobs...), extraGlobs...) {
		if g, err := glob.Compile(p, '/'); err == nil {
			e.globs = append(e.globs, g)
		}
	}
	return e
}

func (e *excluder) Excluded(path string) bool {
	if _, ok := e.literals[path]; ok {
		return true
	}
	for _, g := range e.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// collectUnowned walks the system configuration root and keeps files absent
// from the package-owned set, after exclusion filtering.
func (ci *ConfigInspector) collectUnowned(c *Context, section *types.ConfigSection, owned map[string]struct{}) {
	if owned == nil {
		return
	}
	exclude := newExcluder(c.Opts.ExtraExcludePaths, c.Opts.ExtraExcludeGlobs)

	root := c.Host("etc")
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		hostPath := "/" + c.Rel(path)
		if _, ok := owned[hostPath]; ok {
			return nil
		}
		if exclude.Excluded(hostPath) {
			return nil
		}
		section.Files = append(section.Files, types.ConfigFile{
			Path:    hostPath,
			Kind:    types.ConfigUnowned,
			Content: safeRead(path),
		})
		return nil
	})
}

// collectOrphaned cross-references install-then-remove history against files
// still present below the orphaned package's former configuration footprint.
func (ci *ConfigInspector) collectOrphaned(c *Context, section *types.ConfigSection, owned map[string]struct{}) {
	if c.Snapshot.Packages == nil {
		return
	}
	seen := map[string]struct{}{}
	for _, f := range section.Files {
		seen[f.Path] = struct{}{}
	}
	for _, pkg := range c.Snapshot.Packages.HistoryRemoved {
		dir := c.Host("etc", pkg)
		if !isDir(dir) {
			continue
		}
		_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			hostPath := "/" + c.Rel(path)
			if _, dup := seen[hostPath]; dup {
				return nil
			}
			if owned != nil {
				if _, own := owned[hostPath]; own {
					return nil
				}
			}
			seen[hostPath] = struct{}{}
			section.Files = append(section.Files, types.ConfigFile{
				Path:    hostPath,
				Kind:    types.ConfigOrphaned,
				Content: safeRead(path),
				Package: pkg,
			})
			return nil
		})
	}
}
