package inspectors

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/pkg/types"
)

const rpmQueryFormat = `%{EPOCH}:%{NAME}-%{VERSION}-%{RELEASE}.%{ARCH}\n`

// Packages without real files on disk; never part of the delta.
var virtualPackages = map[string]struct{}{
	"gpg-pubkey": {}, "gpg-pubkey-release": {},
}

// PackageInspector enumerates installed packages through the read-only
// mount and diffs them against the resolved baseline. The diff is pure set
// arithmetic on package names: one bulk query plus set subtraction, never
// per-file queries.
type PackageInspector struct{}

func (p *PackageInspector) Name() string            { return "packages" }
func (p *PackageInspector) DependsOnBaseline() bool { return true }

func (p *PackageInspector) Run(c *Context) error {
	section := &types.PackageSection{}
	c.Snapshot.Packages = section

	installed := p.queryInstalled(c, section)

	baselineSet := map[string]struct{}{}
	allPackages := true
	if b := c.Snapshot.Baseline; b != nil && b.Mode != types.BaselineEmpty {
		baselineSet = b.PackageNameSet()
		allPackages = false
	}

	installedNames := map[string]struct{}{}
	for _, pkg := range installed {
		installedNames[pkg.Name] = struct{}{}
	}

	for _, pkg := range installed {
		if _, inBase := baselineSet[pkg.Name]; inBase && !allPackages {
			section.Unchanged = append(section.Unchanged, pkg)
		} else {
			section.Added = append(section.Added, pkg)
		}
	}
	if !allPackages {
		var removed []string
		for name := range baselineSet {
			if _, onHost := installedNames[name]; !onHost {
				removed = append(removed, name)
			}
		}
		sort.Strings(removed)
		for _, name := range removed {
			section.Removed = append(section.Removed, types.PackageEntry{
				Name: name, Epoch: "0", Arch: "noarch",
			})
		}
	}
	sort.Slice(section.Added, func(i, j int) bool { return section.Added[i].Name < section.Added[j].Name })

	p.queryVerify(c, section)
	p.collectRepoFiles(c, section)
	p.collectHistory(c, section)
	return nil
}

// queryInstalled runs one bulk rpm -qa against the host database, trying the
// fast --dbpath form first and falling back to --root.
func (p *PackageInspector) queryInstalled(c *Context, section *types.PackageSection) []types.PackageEntry {
	dbPath := c.Host("var", "lib", "rpm")
	res, err := c.Exec.Run(c.Ctx, []string{
		"rpm", "--dbpath", dbPath, "-qa", "--queryformat", rpmQueryFormat,
	})
	if err != nil || !res.OK() {
		res, err = c.Exec.Run(c.Ctx, []string{
			"rpm", "--root", c.HostRoot,
			"--define", "_rpmlock_path /var/tmp/.rpm.lock",
			"-qa", "--queryformat", rpmQueryFormat,
		})
		if err != nil {
			if errors.Is(err, hostexec.ErrToolMissing) {
				c.Info(p.Name(), "rpm not available in the inspection container — package list unavailable")
			} else {
				c.Info(p.Name(), "rpm -qa failed: "+err.Error())
			}
			section.Partial = true
			return nil
		}
		if !res.OK() {
			c.Info(p.Name(), "rpm -qa failed; package list unavailable")
			section.Partial = true
			return nil
		}
		c.Info(p.Name(), "rpm -qa used --root fallback; results are correct but may be slower")
	}
	return p.parseQA(c, res.Stdout)
}

// parseQA parses NEVRA lines of the form epoch:name-version-release.arch.
// The epoch is numeric or "(none)" when the package carries no epoch tag.
func (p *PackageInspector) parseQA(c *Context, stdout string) []types.PackageEntry {
	var packages []types.PackageEntry
	failed := 0
	total := 0
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		pkg, ok := parseNEVRA(line)
		if !ok {
			failed++
			continue
		}
		if _, virtual := virtualPackages[pkg.Name]; virtual {
			continue
		}
		packages = append(packages, pkg)
	}
	if failed > 0 && total > 0 {
		pct := failed * 100 / total
		sev := types.SeverityInfo
		if pct >= 5 {
			sev = types.SeverityWarn
		}
		c.Warnings.Addf(sev, p.Name(),
			strconv.Itoa(failed)+" package line(s) could not be parsed — package list may be incomplete")
	}
	return packages
}

func parseNEVRA(s string) (types.PackageEntry, bool) {
	epochPart, rest, found := strings.Cut(s, ":")
	if !found {
		return types.PackageEntry{}, false
	}
	epoch := epochPart
	if epochPart == "(none)" {
		epoch = "0"
	} else if _, err := strconv.Atoi(epochPart); err != nil {
		return types.PackageEntry{}, false
	}
	dot := strings.LastIndex(rest, ".")
	if dot < 0 {
		return types.PackageEntry{}, false
	}
	base, arch := rest[:dot], rest[dot+1:]
	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return types.PackageEntry{}, false
	}
	return types.PackageEntry{
		Name:    strings.Join(parts[:len(parts)-2], "-"),
		Epoch:   epoch,
		Version: parts[len(parts)-2],
		Release: parts[len(parts)-1],
		Arch:    arch,
	}, true
}

// queryVerify runs the package manager's own verify pass once, bulk.
func (p *PackageInspector) queryVerify(c *Context, section *types.PackageSection) {
	argv := []string{"rpm", "--root", c.HostRoot,
		"--define", "_rpmlock_path /var/tmp/.rpm.lock",
		"-Va", "--nodeps", "--noscripts"}
	if c.HostRoot == "/" {
		argv = []string{"rpm", "-Va", "--nodeps", "--noscripts"}
	}
	res, err := c.Exec.Run(c.Ctx, argv)
	if err != nil {
		c.Info(p.Name(), "rpm -Va unavailable — modified-file detection skipped")
		section.Partial = true
		return
	}
	section.Verify = ParseVerify(res.Stdout)
}

// ParseVerify parses rpm -Va output lines: "S.5....T.  c /etc/foo".
func ParseVerify(stdout string) []types.VerifyEntry {
	var entries []types.VerifyEntry
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 11 || strings.TrimSpace(line) == "" {
			continue
		}
		flags := strings.TrimSpace(line[:9])
		rest := strings.TrimLeft(line[9:], " \t")
		if strings.HasPrefix(rest, "c ") || strings.HasPrefix(rest, "d ") {
			rest = strings.TrimSpace(rest[2:])
		} else {
			rest = strings.TrimSpace(rest)
		}
		if rest == "" || !strings.HasPrefix(rest, "/") {
			continue
		}
		entries = append(entries, types.VerifyEntry{Path: rest, Flags: flags})
	}
	return entries
}

func (p *PackageInspector) collectRepoFiles(c *Context, section *types.PackageSection) {
	for _, subdir := range []string{"etc/yum.repos.d", "etc/dnf"} {
		dir := c.Host(subdir)
		for _, e := range safeList(dir) {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if subdir == "etc/yum.repos.d" && !strings.HasSuffix(name, ".repo") {
				continue
			}
			if subdir == "etc/dnf" && !strings.HasSuffix(name, ".conf") && !strings.HasSuffix(name, ".repo") {
				continue
			}
			section.RepoFiles = append(section.RepoFiles, types.RepoFile{
				Path:    subdir + "/" + name,
				Content: safeRead(dir + "/" + name),
			})
		}
	}
}

var historyNameRe = regexp.MustCompile(`^(.+?)-\d`)

// collectHistory recovers install-then-remove package names from dnf
// transaction history. Drives orphaned config detection.
func (p *PackageInspector) collectHistory(c *Context, section *types.PackageSection) {
	res, err := c.Exec.Run(c.Ctx, []string{"dnf", "--installroot", c.HostRoot, "history", "list", "-q"})
	if err != nil || !res.OK() {
		c.Info(p.Name(), "dnf history unavailable — orphaned config detection is incomplete")
		return
	}
	var removed []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) < 4 || !strings.Contains(parts[3], "Removed") {
			continue
		}
		tid := strings.TrimSpace(parts[0])
		if _, err := strconv.Atoi(tid); err != nil {
			continue
		}
		info, err := c.Exec.Run(c.Ctx, []string{"dnf", "--installroot", c.HostRoot, "history", "info", tid, "-q"})
		if err != nil || !info.OK() {
			continue
		}
		for _, iline := range strings.Split(info.Stdout, "\n") {
			if !strings.Contains(iline, "Removed") {
				continue
			}
			fields := strings.Fields(strings.TrimSpace(strings.SplitN(iline, "Removed", 2)[1]))
			if len(fields) == 0 {
				continue
			}
			nevra := fields[0]
			if m := historyNameRe.FindStringSubmatch(nevra); m != nil {
				removed = append(removed, m[1])
			} else if idx := strings.Index(nevra, "-"); idx > 0 {
				removed = append(removed, nevra[:idx])
			}
		}
	}
	section.HistoryRemoved = removed
}
