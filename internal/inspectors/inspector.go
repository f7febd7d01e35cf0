// Package inspectors holds the twelve collectors that each contribute a
// named section to the snapshot. Every inspector reads the host only through
// the read-only mount, tolerates missing files and tools, and never aborts
// the pipeline.
package inspectors

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/internal/nsenter"
	"github.com/marrusl/yoinkc/pkg/types"
)

// Options are the opt-in inspection knobs from the command line.
type Options struct {
	ConfigDiffs    bool
	DeepBinaryScan bool
	QueryPodman    bool

	ExtraExcludePaths []string
	ExtraExcludeGlobs []string
}

// Context carries everything an inspector needs: the read-only host root,
// options, the resolved baseline, the tool adapters, and the shared
// warnings sink. Each inspector owns a disjoint section of Snapshot.
type Context struct {
	Ctx      context.Context
	HostRoot string
	Opts     Options
	Exec     hostexec.Executor
	Bridge   *nsenter.Bridge
	Log      logger.Logger
	Warnings *types.WarningSink
	Snapshot *types.Snapshot
}

// Host joins parts under the host root.
func (c *Context) Host(parts ...string) string {
	return filepath.Join(append([]string{c.HostRoot}, parts...)...)
}

// Rel strips the host root prefix, returning a host-relative path.
func (c *Context) Rel(path string) string {
	rel, err := filepath.Rel(c.HostRoot, path)
	if err != nil {
		return strings.TrimPrefix(path, c.HostRoot)
	}
	return rel
}

// Info records an info-grade warning from the named inspector.
func (c *Context) Info(source, message string) {
	c.Warnings.Addf(types.SeverityInfo, source, message)
}

// Warn records a warn-grade warning from the named inspector.
func (c *Context) Warn(source, message string) {
	c.Warnings.Addf(types.SeverityWarn, source, message)
}

// Inspector is one collector. DependsOnBaseline gates ordering: the baseline
// resolver must complete before such inspectors run.
type Inspector interface {
	Name() string
	DependsOnBaseline() bool
	Run(c *Context) error
}

// All returns the static inspector registry in execution order.
func All() []Inspector {
	return []Inspector{
		&PackageInspector{},
		&ServiceInspector{},
		&ConfigInspector{},
		&NetworkInspector{},
		&StorageInspector{},
		&ScheduledInspector{},
		&ContainerInspector{},
		&NonRPMInspector{},
		&KernelInspector{},
		&SecurityInspector{},
		&UserInspector{},
		&SecretRefInspector{},
	}
}

// --- shared read helpers ---

// safeRead returns the file's text, or "" on any error.
func safeRead(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// safeList returns the directory's entries sorted by name, or nil.
func safeList(dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// pruneMarkers cause a whole subtree to be skipped during recursive scans:
// source checkouts and build trees are development artifacts, not deployed
// software.
var pruneMarkers = map[string]struct{}{".git": {}, ".svn": {}, ".hg": {}}

var skipDirNames = map[string]struct{}{
	"__pycache__": {}, ".mypy_cache": {}, ".pytest_cache": {}, ".tox": {}, ".nox": {},
	"node_modules": {}, ".eggs": {},
	".vscode": {}, ".idea": {}, ".cursor": {},
}

// filteredGlob walks root collecting files whose base name matches pattern,
// pruning VCS checkouts and build directories.
func filteredGlob(root, pattern string) []string {
	var results []string
	var walk func(dir string)
	walk = func(dir string) {
		entries := safeList(dir)
		for _, e := range entries {
			if _, marker := pruneMarkers[e.Name()]; marker {
				return
			}
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			if e.IsDir() {
				if _, skip := skipDirNames[e.Name()]; !skip {
					walk(full)
				}
				continue
			}
			if ok, _ := filepath.Match(pattern, e.Name()); ok {
				results = append(results, full)
			}
		}
	}
	walk(root)
	return results
}
