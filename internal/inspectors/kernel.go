package inspectors

import (
	"sort"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// KernelInspector captures the boot command line, sysctl divergences with
// source attribution, module configuration drop-ins, and loaded modules
// after dependency filtering.
type KernelInspector struct{}

func (k *KernelInspector) Name() string            { return "kernel" }
func (k *KernelInspector) DependsOnBaseline() bool { return false }

func (k *KernelInspector) Run(c *Context) error {
	section := &types.KernelSection{}
	c.Snapshot.Kernel = section

	section.Cmdline = strings.TrimSpace(safeRead(c.Host("proc", "cmdline")))
	if section.Cmdline == "" {
		c.Info(k.Name(), "/proc/cmdline unreadable — kernel command line unavailable")
	}
	section.GrubDefaults = truncate(strings.TrimSpace(safeRead(c.Host("etc", "default", "grub"))), 500)

	section.SysctlOverrides = k.diffSysctl(c)

	for _, scan := range []struct {
		dir    string
		target *[]types.ConfigSnippet
	}{
		{"etc/modules-load.d", &section.ModulesLoadD},
		{"etc/modprobe.d", &section.ModprobeD},
		{"etc/dracut.conf.d", &section.DracutConf},
	} {
		for _, e := range safeList(c.Host(scan.dir)) {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
				continue
			}
			*scan.target = append(*scan.target, types.ConfigSnippet{
				Path:    scan.dir + "/" + e.Name(),
				Content: safeRead(c.Host(scan.dir, e.Name())),
			})
		}
	}

	k.diffModules(c, section)
	return nil
}

func parseSysctlConf(text string) map[string]string {
	out := map[string]string{}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

type sysctlValue struct {
	value  string
	source string
}

func (k *KernelInspector) readSysctlDir(c *Context, dir string, into map[string]sysctlValue) {
	// Later files (sorted by name) override earlier ones, matching systemd.
	for _, e := range safeList(c.Host(dir)) {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
			continue
		}
		rel := dir + "/" + e.Name()
		for key, value := range parseSysctlConf(safeRead(c.Host(rel))) {
			into[key] = sysctlValue{value: value, source: rel}
		}
	}
}

// diffSysctl compares runtime sysctl values against shipped defaults,
// keeping keys where the runtime diverges.
func (k *KernelInspector) diffSysctl(c *Context) []types.SysctlOverride {
	defaults := map[string]sysctlValue{}
	k.readSysctlDir(c, "usr/lib/sysctl.d", defaults)

	overrides := map[string]sysctlValue{}
	k.readSysctlDir(c, "etc/sysctl.d", overrides)
	for key, value := range parseSysctlConf(safeRead(c.Host("etc", "sysctl.conf"))) {
		overrides[key] = sysctlValue{value: value, source: "etc/sysctl.conf"}
	}

	if len(defaults) == 0 && isDir(c.Host("usr", "lib", "sysctl.d")) {
		c.Info(k.Name(), "shipped sysctl defaults unreadable — sysctl diff may be incomplete")
	}

	keys := map[string]struct{}{}
	for key := range defaults {
		keys[key] = struct{}{}
	}
	for key := range overrides {
		keys[key] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	var results []types.SysctlOverride
	for _, key := range sorted {
		def, hasDefault := defaults[key]
		over, hasOverride := overrides[key]

		runtime := strings.TrimSpace(safeRead(c.Host("proc", "sys", strings.ReplaceAll(key, ".", "/"))))
		if runtime == "" {
			if hasOverride {
				runtime = over.value
			} else {
				runtime = def.value
			}
		}
		if hasDefault && runtime == def.value {
			continue
		}
		source := def.source
		if hasOverride {
			source = over.source
		}
		results = append(results, types.SysctlOverride{
			Key: key, Runtime: runtime, Default: def.value, Source: source,
		})
	}
	return results
}

func parseLsmod(text string) []types.KernelModule {
	var modules []types.KernelModule
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return modules
	}
	for _, line := range lines[1:] { // skip header
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		mod := types.KernelModule{Name: parts[0], Size: parts[1]}
		if len(parts) > 3 {
			mod.UsedBy = parts[3]
		}
		modules = append(modules, mod)
	}
	return modules
}

// diffModules keeps loaded modules that are neither explicitly configured
// to load nor pulled in as a dependency of another module.
func (k *KernelInspector) diffModules(c *Context, section *types.KernelSection) {
	res, err := c.Exec.Run(c.Ctx, []string{"lsmod"})
	if err != nil || !res.OK() {
		c.Info(k.Name(), "lsmod unavailable — loaded module diff skipped")
		section.Partial = true
		return
	}
	section.LoadedModules = parseLsmod(res.Stdout)

	expected := map[string]struct{}{}
	for _, dir := range []string{"usr/lib/modules-load.d", "etc/modules-load.d"} {
		for _, e := range safeList(c.Host(dir)) {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
				continue
			}
			for _, raw := range strings.Split(safeRead(c.Host(dir, e.Name())), "\n") {
				line := strings.TrimSpace(raw)
				if line != "" && !strings.HasPrefix(line, "#") {
					expected[line] = struct{}{}
				}
			}
		}
	}

	for _, mod := range section.LoadedModules {
		if _, ok := expected[mod.Name]; ok {
			continue
		}
		if strings.TrimSpace(mod.UsedBy) != "" && mod.UsedBy != "-" {
			continue // dependency load, not a top-level one
		}
		section.NonDefaultModules = append(section.NonDefaultModules, mod)
	}
}
