package inspectors

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// NonRPMInspector discovers software that did not arrive through the package
// manager: language-ecosystem installs and loose binaries under a whitelist
// of path roots. User home directories are deliberately never scanned;
// artifacts there are overwhelmingly development checkouts, not deployed
// services.
type NonRPMInspector struct{}

func (n *NonRPMInspector) Name() string            { return "non_package" }
func (n *NonRPMInspector) DependsOnBaseline() bool { return false }

// Quick patterns applied to the leading 4 KB of a binary.
var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)version\s*[=:]\s*["']?([0-9]+\.[0-9]+(?:\.[0-9]+)?)`),
	regexp.MustCompile(`v([0-9]+\.[0-9]+(?:\.[0-9]+)?)[\s\-]`),
	regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)(?:\s|$|\))`),
}

// Extended patterns for --deep-binary-scan over full strings output: the
// quick patterns plus toolchain, library, and release-tag version shapes.
var deepVersionPatterns = append(append([]*regexp.Regexp{}, versionPatterns...),
	regexp.MustCompile(`go([0-9]+\.[0-9]+(?:\.[0-9]+)?)\b`),
	regexp.MustCompile(`rustc\s+([0-9]+\.[0-9]+\.[0-9]+)`),
	regexp.MustCompile(`(?i)(?:built|compiled|linked)\s+(?:with|against)\s+\S+\s+([0-9]+\.[0-9]+\.[0-9]+)`),
	regexp.MustCompile(`(?:release|tag)[/\-]v?([0-9]+\.[0-9]+\.[0-9]+)`),
	regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+-[a-zA-Z0-9.]+)`),
	regexp.MustCompile(`v([0-9]+\.[0-9]+\.[0-9]+)-[0-9]+-g[0-9a-f]+`),
	regexp.MustCompile(`(?i)(?:OpenSSL|LibreSSL|BoringSSL)\s+([0-9]+\.[0-9]+\.[0-9]+[a-z]?)`),
	regexp.MustCompile(`(?i)java\s+version\s+["']([0-9]+\.[0-9]+\.[0-9]+)`),
	regexp.MustCompile(`(?i)node\s+v([0-9]+\.[0-9]+\.[0-9]+)`),
	regexp.MustCompile(`Python\s+([0-9]+\.[0-9]+\.[0-9]+)`),
)

var fhsDirs = map[string]struct{}{
	"bin": {}, "etc": {}, "games": {}, "include": {}, "lib": {}, "lib64": {},
	"libexec": {}, "sbin": {}, "share": {}, "src": {}, "man": {},
}

var fhsBinDirs = map[string]struct{}{"bin": {}, "sbin": {}, "libexec": {}}
var fhsLibDirs = map[string]struct{}{"lib": {}, "lib64": {}}

func (n *NonRPMInspector) Run(c *Context) error {
	section := &types.NonRPMSection{}
	c.Snapshot.NonRPM = section

	n.scanRoots(c, section)
	n.scanVenvs(c, section)
	n.scanPip(c, section)
	n.scanLockfiles(c, section)

	dedupeByPath(section)
	return nil
}

// binaryClass is the readelf-based fast classification pass: read the
// section table for ecosystem-identifying sections and list dynamic
// dependencies from the file header, without resolving them.
type binaryClass struct {
	provenance types.Provenance
	static     bool
	sharedLibs []string
}

func (n *NonRPMInspector) classifyBinary(c *Context, path string) (binaryClass, bool) {
	res, err := c.Exec.Run(c.Ctx, []string{"readelf", "-S", path})
	if err != nil || !res.OK() {
		return binaryClass{}, false
	}
	sections := res.Stdout

	dyn, err := c.Exec.Run(c.Ctx, []string{"readelf", "-d", path})
	dynOut := ""
	if err == nil && dyn.OK() {
		dynOut = dyn.Stdout
	}

	var cls binaryClass
	switch {
	case strings.Contains(sections, ".note.go.buildid"), strings.Contains(sections, ".gopclntab"):
		cls.provenance = types.ProvGoBinary
	case strings.Contains(sections, ".rustc"):
		cls.provenance = types.ProvRustBin
	default:
		cls.provenance = types.ProvCBinary
	}
	cls.static = strings.TrimSpace(dynOut) == "" ||
		strings.Contains(strings.ToLower(dynOut), "no dynamic section")
	needed := regexp.MustCompile(`\(NEEDED\).*\[(.+?)\]`)
	for _, line := range strings.Split(dynOut, "\n") {
		if m := needed.FindStringSubmatch(line); m != nil {
			cls.sharedLibs = append(cls.sharedLibs, m[1])
		}
	}
	return cls, true
}

func (n *NonRPMInspector) isBinary(c *Context, path string) bool {
	res, err := c.Exec.Run(c.Ctx, []string{"file", "-b", path})
	if err != nil || !res.OK() {
		return false
	}
	out := strings.ToLower(res.Stdout)
	return strings.Contains(out, "elf") || strings.Contains(out, "executable") || strings.Contains(out, "script")
}

// stringsVersion runs the version-string scan: head-limited by default, the
// full binary in deep mode.
func (n *NonRPMInspector) stringsVersion(c *Context, path string, deep bool) string {
	var argv []string
	if deep {
		argv = []string{"strings", path}
	} else {
		argv = []string{"sh", "-c", "head -c 4096 '" + path + "' | strings"}
	}
	res, err := c.Exec.Run(c.Ctx, argv)
	if err != nil || !res.OK() {
		return ""
	}
	patterns := versionPatterns
	if deep {
		patterns = deepVersionPatterns
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(res.Stdout); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// classifyFile produces an item for one loose file. Unknown-provenance
// entries keep confidence unknown so the recipe marks them FIXME instead of
// guessing.
func (n *NonRPMInspector) classifyFile(c *Context, path string) types.NonRPMItem {
	item := types.NonRPMItem{
		Path:       c.Rel(path),
		Name:       filepath.Base(path),
		Provenance: types.ProvUnknown,
		Confidence: types.ConfidenceUnknown,
		Method:     "file scan",
	}
	if cls, ok := n.classifyBinary(c, path); ok {
		item.Provenance = cls.provenance
		item.Static = cls.static
		item.SharedLibs = cls.sharedLibs
		item.Confidence = types.ConfidenceHigh
		item.Method = "readelf (" + string(cls.provenance) + ")"
		return item
	}
	if n.isBinary(c, path) {
		if ver := n.stringsVersion(c, path, c.Opts.DeepBinaryScan); ver != "" {
			item.Version = ver
			item.Confidence = types.ConfidenceMedium
			if c.Opts.DeepBinaryScan {
				item.Method = "strings"
			} else {
				item.Method = "strings (first 4KB)"
			}
		}
	}
	return item
}

// scanRoots walks the whitelist roots. FHS bin/lib directories under
// /usr/local are enumerated file by file; other directories are classified
// as a unit.
func (n *NonRPMInspector) scanRoots(c *Context, section *types.NonRPMSection) {
	for _, base := range []string{"opt", "usr/local", "srv"} {
		dir := c.Host(base)
		for _, e := range safeList(dir) {
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			full := filepath.Join(dir, name)
			if !e.IsDir() {
				if base == "srv" {
					continue
				}
				section.Items = append(section.Items, n.classifyFile(c, full))
				continue
			}
			if base == "usr/local" {
				if _, bin := fhsBinDirs[name]; bin {
					n.scanFHSFiles(c, section, full, false)
					continue
				}
				if _, lib := fhsLibDirs[name]; lib {
					n.scanFHSFiles(c, section, full, true)
					continue
				}
				if _, fhs := fhsDirs[name]; fhs && !dirHasFile(full) {
					continue
				}
			}
			if git := n.scanGitDir(c, full); git != nil {
				section.Items = append(section.Items, *git)
				continue
			}
			if exists(filepath.Join(full, "pyvenv.cfg")) {
				continue // handled by the venv pass
			}
			section.Items = append(section.Items, n.classifyDir(c, full))
		}
	}
}

func dirHasFile(dir string) bool {
	found := false
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// scanFHSFiles enumerates individual files inside an FHS directory. For lib
// directories (recurse set) it descends into every subdirectory.
func (n *NonRPMInspector) scanFHSFiles(c *Context, section *types.NonRPMSection, dir string, recurse bool) {
	for _, e := range safeList(dir) {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if recurse {
				n.scanFHSFiles(c, section, full, true)
			}
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if !exists(full) {
				continue // dangling symlink
			}
		}
		section.Items = append(section.Items, n.classifyFile(c, full))
	}
}

// classifyDir classifies one directory under a whitelist root by probing its files for
// the first identifiable binary.
func (n *NonRPMInspector) classifyDir(c *Context, dir string) types.NonRPMItem {
	item := types.NonRPMItem{
		Path:       c.Rel(dir),
		Name:       filepath.Base(dir),
		Provenance: types.ProvUnknown,
		Confidence: types.ConfidenceUnknown,
		Method:     "directory scan",
	}
	for _, path := range filteredGlob(dir, "*") {
		if cls, ok := n.classifyBinary(c, path); ok {
			item.Provenance = cls.provenance
			item.Static = cls.static
			item.SharedLibs = cls.sharedLibs
			item.Confidence = types.ConfidenceHigh
			item.Method = "readelf (" + string(cls.provenance) + ")"
			return item
		}
		if n.isBinary(c, path) {
			if ver := n.stringsVersion(c, path, c.Opts.DeepBinaryScan); ver != "" {
				item.Version = ver
				item.Confidence = types.ConfidenceMedium
				item.Method = "strings"
				return item
			}
		}
	}
	return item
}

// scanGitDir extracts remote, commit, and branch from a version-control
// directory without running git.
func (n *NonRPMInspector) scanGitDir(c *Context, dir string) *types.NonRPMItem {
	gitDir := filepath.Join(dir, ".git")
	if !isDir(gitDir) {
		return nil
	}
	item := &types.NonRPMItem{
		Path:       c.Rel(dir),
		Name:       filepath.Base(dir),
		Provenance: types.ProvGit,
		Confidence: types.ConfidenceHigh,
		Method:     "git repository",
	}
	for _, raw := range strings.Split(safeRead(filepath.Join(gitDir, "config")), "\n") {
		line := strings.TrimSpace(raw)
		if value, ok := strings.CutPrefix(line, "url ="); ok {
			item.GitRemote = strings.TrimSpace(value)
			break
		}
	}
	head := strings.TrimSpace(safeRead(filepath.Join(gitDir, "HEAD")))
	if ref, ok := strings.CutPrefix(head, "ref:"); ok {
		ref = strings.TrimSpace(ref)
		item.GitCommit = strings.TrimSpace(safeRead(filepath.Join(gitDir, ref)))
		item.GitBranch = strings.TrimPrefix(ref, "refs/heads/")
	} else {
		item.GitCommit = head
	}
	return item
}

// scanVenvs discovers Python virtual environments and their package sets.
func (n *NonRPMInspector) scanVenvs(c *Context, section *types.NonRPMSection) {
	for _, root := range []string{"opt", "srv"} {
		for _, cfg := range filteredGlob(c.Host(root), "pyvenv.cfg") {
			venvDir := filepath.Dir(cfg)
			systemSP := false
			for _, raw := range strings.Split(safeRead(cfg), "\n") {
				line := strings.ToLower(strings.TrimSpace(raw))
				if strings.HasPrefix(line, "include-system-site-packages") {
					systemSP = strings.Contains(line, "true")
					break
				}
			}
			item := types.NonRPMItem{
				Path:               c.Rel(venvDir),
				Name:               filepath.Base(venvDir),
				Provenance:         types.ProvVenv,
				Confidence:         types.ConfidenceHigh,
				Method:             "python venv",
				SystemSitePackages: systemSP,
			}
			_ = filepath.Walk(venvDir, func(path string, info os.FileInfo, err error) error {
				if err != nil || !info.IsDir() || info.Name() != "site-packages" {
					return nil
				}
				for _, di := range safeList(path) {
					if di.IsDir() && strings.HasSuffix(di.Name(), ".dist-info") {
						name, version := splitDistInfo(di.Name())
						item.Packages = append(item.Packages, types.EcosystemPackage{Name: name, Version: version})
					}
				}
				return filepath.SkipDir
			})
			section.Items = append(section.Items, item)
		}
	}
}

// splitDistInfo parses "requests-2.31.0.dist-info" into name and version.
func splitDistInfo(name string) (string, string) {
	stem := strings.TrimSuffix(name, ".dist-info")
	parts := strings.Split(stem, "-")
	for i, part := range parts {
		if part != "" && part[0] >= '0' && part[0] <= '9' {
			return strings.Join(parts[:i], "-"), strings.Join(parts[i:], "-")
		}
	}
	return stem, ""
}

// scanPip detects system-level pip installs via dist-info directories and
// captured requirements files. A RECORD entry ending in .so marks a package
// with compiled extensions, which routes it to the recipe's build stage.
func (n *NonRPMInspector) scanPip(c *Context, section *types.NonRPMSection) {
	for _, root := range []string{"usr/lib/python3", "usr/lib64/python3", "usr/local/lib/python3"} {
		base := c.Host(root)
		for _, parent := range safeList(base) {
			if !parent.IsDir() {
				continue
			}
			sitePackages := filepath.Join(base, parent.Name(), "site-packages")
			if !isDir(sitePackages) {
				sitePackages = filepath.Join(base, parent.Name())
			}
			for _, di := range safeList(sitePackages) {
				if !di.IsDir() || !strings.HasSuffix(di.Name(), ".dist-info") {
					continue
				}
				name, version := splitDistInfo(di.Name())
				item := types.NonRPMItem{
					Path:       c.Rel(filepath.Join(sitePackages, di.Name())),
					Name:       name,
					Version:    version,
					Provenance: types.ProvPip,
					Confidence: types.ConfidenceHigh,
					Method:     "pip dist-info",
				}
				record := safeRead(filepath.Join(sitePackages, di.Name(), "RECORD"))
				for _, line := range strings.Split(record, "\n") {
					if strings.HasSuffix(strings.TrimSpace(line), ".so") || strings.Contains(line, ".so,") {
						item.HasCExtensions = true
						break
					}
				}
				section.Items = append(section.Items, item)
			}
		}
	}

	for _, root := range []string{"opt", "srv"} {
		for _, req := range filteredGlob(c.Host(root), "requirements.txt") {
			section.Items = append(section.Items, types.NonRPMItem{
				Path:       c.Rel(req),
				Name:       "requirements.txt",
				Provenance: types.ProvPip,
				Confidence: types.ConfidenceHigh,
				Method:     "pip requirements.txt",
				Content:    safeRead(req),
			})
		}
	}
}

var lockfileNames = []string{
	"package.json", "package-lock.json", "yarn.lock", "Gemfile", "Gemfile.lock",
}

func readLockfileDir(dir string) map[string]string {
	files := map[string]string{}
	for _, name := range lockfileNames {
		if text := safeRead(filepath.Join(dir, name)); text != "" {
			files[name] = text
		}
	}
	return files
}

func (n *NonRPMInspector) scanLockfiles(c *Context, section *types.NonRPMSection) {
	for _, root := range []string{"opt", "srv", "usr/local"} {
		base := c.Host(root)
		for _, scan := range []struct {
			pattern    string
			provenance types.Provenance
			method     string
		}{
			{"package-lock.json", types.ProvNpm, "npm package-lock.json"},
			{"yarn.lock", types.ProvYarn, "yarn.lock"},
			{"Gemfile.lock", types.ProvGem, "gem Gemfile.lock"},
		} {
			for _, lock := range filteredGlob(base, scan.pattern) {
				dir := filepath.Dir(lock)
				section.Items = append(section.Items, types.NonRPMItem{
					Path:       c.Rel(dir),
					Name:       filepath.Base(dir),
					Provenance: scan.provenance,
					Confidence: types.ConfidenceHigh,
					Method:     scan.method,
					Files:      readLockfileDir(dir),
				})
			}
		}
	}
}

var confidenceRank = map[types.Confidence]int{
	types.ConfidenceHigh: 3, types.ConfidenceMedium: 2,
	types.ConfidenceLow: 1, types.ConfidenceUnknown: 0,
}

// dedupeByPath keeps the highest-confidence item per path, preserving a
// stable order.
func dedupeByPath(section *types.NonRPMSection) {
	best := map[string]types.NonRPMItem{}
	var order []string
	for _, item := range section.Items {
		prev, seen := best[item.Path]
		if !seen {
			order = append(order, item.Path)
			best[item.Path] = item
			continue
		}
		if confidenceRank[item.Confidence] > confidenceRank[prev.Confidence] {
			best[item.Path] = item
		}
	}
	sort.Strings(order)
	items := make([]types.NonRPMItem, 0, len(order))
	for _, path := range order {
		items = append(items, best[path])
	}
	section.Items = items
}
