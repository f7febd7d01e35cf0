package render

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/marrusl/yoinkc/internal/baseline"
	"github.com/marrusl/yoinkc/pkg/types"
)

// Python version shipped per distribution major, for the multi-stage COPY.
var pythonVersionByMajor = map[string]string{"9": "3.9", "10": "3.12"}

var safeShellValue = regexp.MustCompile(`^[A-Za-z0-9._+:@/=,-]+$`)

func shellSafe(value string) bool {
	return value != "" && safeShellValue.MatchString(value)
}

func baseImage(s *types.Snapshot) string {
	if s.Target != nil && s.Target.Image != "" {
		return s.Target.Image
	}
	if image, _ := baseline.SelectImage(s.Host.OSID, s.Host.VersionID, ""); image != "" {
		return image
	}
	return baseline.DefaultFallbackImage
}

// RenderContainerfile builds the layered recipe. Layer order is fixed so
// that layers that change least come first, which maximizes build-cache
// reuse: build stage, base, repos, packages, services, firewall, scheduled
// tasks, consolidated config COPY, non-package software, quadlets, users,
// kernel, security policy, network deferrals, transient declarations.
func RenderContainerfile(s *types.Snapshot, outputDir string) string {
	var lines []string
	add := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	base := baseImage(s)

	cExtPip, purePip := splitPipPackages(s)

	if len(cExtPip) > 0 {
		add("# === Build stage: compile pip packages with C extensions ===")
		add("FROM %s AS builder", base)
		add("RUN dnf install -y gcc python3-devel make && dnf clean all")
		add("RUN python3 -m venv /tmp/pip-build")
		specs := make([]string, 0, len(cExtPip))
		for _, p := range cExtPip {
			specs = append(specs, p.Name+"=="+p.Version)
		}
		add("RUN /tmp/pip-build/bin/pip install %s", strings.Join(specs, " "))
		add("")
	}

	add("# === Base Image ===")
	osDesc := s.Host.PrettyName
	if osDesc == "" {
		osDesc = s.Host.OSName
	}
	if osDesc == "" {
		osDesc = "unknown"
	}
	add("# Detected: %s", osDesc)
	add("FROM %s", base)

	if s.Target != nil && s.Target.CrossMajor {
		add("")
		add("# !! CROSS-MAJOR-VERSION MIGRATION !!")
		add("# Source: %s (%s)", osDesc, s.Host.VersionID)
		add("# Target: %s", s.Target.Image)
		add("# Package names, service names, and config formats may have changed.")
		add("# This Containerfile requires heavier manual review than a same-version migration.")
	}
	add("")

	if len(cExtPip) > 0 {
		add("# === Install pre-built pip packages with C extensions ===")
		pyVer := pythonVersionByMajor[s.Host.Major()]
		if pyVer == "" && s.Host.OSID == "fedora" {
			pyVer = "3.12"
		}
		if pyVer != "" {
			add("COPY --from=builder /tmp/pip-build/lib/python%s/site-packages/ /usr/lib/python%s/site-packages/", pyVer, pyVer)
		} else {
			add("# FIXME: replace python3.X with the actual Python version in the base image")
			add("COPY --from=builder /tmp/pip-build/lib/python3.X/site-packages/ /usr/lib/python3.X/site-packages/")
		}
		add("")
	}

	if s.Packages != nil && len(s.Packages.RepoFiles) > 0 {
		add("# === Repository Configuration ===")
		add("# Detected: %d repo file(s) — included in COPY config/etc/ below", len(s.Packages.RepoFiles))
		add("")
	}

	renderPackageLayers(s, add)
	renderServiceLayers(s, add)
	renderFirewallLayer(s, add)
	renderScheduledLayer(s, add)
	renderConfigLayer(s, outputDir, add)
	renderNonRPMLayer(s, purePip, add)
	renderQuadletLayer(s, add)
	renderUserLayer(s, add)
	renderKernelLayer(s, add)
	renderSecurityLayer(s, add)
	renderNetworkLayer(s, add)

	add("# === Transient state declarations ===")
	add("# Directories created on every boot; /var is not updated after bootstrap.")
	add("# tmpfiles.d/yoinkc-var.conf included in COPY config/etc/ above")
	add("")

	return strings.Join(lines, "\n")
}

func splitPipPackages(s *types.Snapshot) (cExt, pure []types.NonRPMItem) {
	if s.NonRPM == nil {
		return nil, nil
	}
	for _, item := range s.NonRPM.Items {
		if item.Method == "pip dist-info" && item.Version != "" {
			if item.HasCExtensions {
				cExt = append(cExt, item)
			} else {
				pure = append(pure, item)
			}
		}
	}
	sort.Slice(cExt, func(i, j int) bool { return cExt[i].Name < cExt[j].Name })
	sort.Slice(pure, func(i, j int) bool { return pure[i].Name < pure[j].Name })
	return cExt, pure
}

func renderPackageLayers(s *types.Snapshot, add func(string, ...interface{})) {
	if s.Packages == nil || len(s.Packages.Added) == 0 && len(s.Packages.Removed) == 0 {
		return
	}
	nameSet := map[string]struct{}{}
	var names []string
	for _, p := range s.Packages.Added {
		if _, dup := nameSet[p.Name]; dup {
			continue
		}
		nameSet[p.Name] = struct{}{}
		names = append(names, p.Name)
	}
	// Stable codepoint sort: build-cache determinism depends on this.
	sort.Strings(names)

	add("# === Package Installation ===")
	var safe []string
	for _, name := range names {
		if shellSafe(name) {
			safe = append(safe, name)
		} else {
			add("# FIXME: package name contains unsafe characters, skipped: %q", name)
		}
	}
	if s.Baseline != nil && s.Baseline.Mode == types.BaselineEmpty {
		add("# No baseline — including all installed packages")
	} else {
		add("# Detected: %d packages added beyond base image", len(safe))
	}
	if len(safe) > 0 {
		add("RUN dnf install -y \\")
		for _, name := range safe[:len(safe)-1] {
			add("    %s \\", name)
		}
		add("    %s \\", safe[len(safe)-1])
		add("    && dnf clean all")
	}
	if len(s.Packages.Removed) > 0 {
		var removed []string
		for _, p := range s.Packages.Removed {
			if shellSafe(p.Name) {
				removed = append(removed, p.Name)
			}
		}
		sort.Strings(removed)
		if len(removed) > 0 {
			add("# Detected: %d base-image packages absent on the host", len(removed))
			add("RUN dnf remove -y %s && dnf clean all", strings.Join(removed, " "))
		}
	}
	add("")
}

func renderServiceLayers(s *types.Snapshot, add func(string, ...interface{})) {
	if s.Services == nil {
		return
	}
	enabled := s.Services.ByAction(types.ActionEnable)
	disabled := s.Services.ByAction(types.ActionDisable)
	masked := s.Services.ByAction(types.ActionMask)
	if len(enabled) == 0 && len(disabled) == 0 && len(masked) == 0 {
		return
	}
	filterSafe := func(units []string) []string {
		var out []string
		for _, u := range units {
			if shellSafe(u) {
				out = append(out, u)
			}
		}
		sort.Strings(out)
		return out
	}
	enabled, disabled, masked = filterSafe(enabled), filterSafe(disabled), filterSafe(masked)

	add("# === Service Enablement ===")
	add("# Detected: %d non-default enabled, %d disabled, %d masked", len(enabled), len(disabled), len(masked))
	if len(enabled) > 0 {
		add("RUN systemctl enable %s", strings.Join(enabled, " "))
	}
	if len(disabled) > 0 {
		add("RUN systemctl disable %s", strings.Join(disabled, " "))
	}
	if len(masked) > 0 {
		add("RUN systemctl mask %s", strings.Join(masked, " "))
	}
	add("")
}

func renderFirewallLayer(s *types.Snapshot, add func(string, ...interface{})) {
	net := s.Network
	if net == nil || len(net.FirewallZones) == 0 && len(net.DirectRules) == 0 {
		return
	}
	add("# === Firewall Configuration (bake into image) ===")
	if len(net.FirewallZones) > 0 {
		totalRich := 0
		for _, z := range net.FirewallZones {
			totalRich += len(z.RichRules)
		}
		suffix := ""
		if totalRich > 0 {
			suffix = fmt.Sprintf(", %d rich rule(s)", totalRich)
		}
		add("# Detected: %d zone(s)%s — included in COPY config/etc/ below", len(net.FirewallZones), suffix)
	}
	if len(net.DirectRules) > 0 {
		add("# Detected: %d direct rule(s) — included in COPY config/etc/ below", len(net.DirectRules))
	}
	add("")
	add("# firewall-cmd equivalents (alternative to the consolidated COPY below):")
	for _, z := range net.FirewallZones {
		for _, svc := range z.Services {
			add("# RUN firewall-offline-cmd --zone=%s --add-service=%s", z.Name, svc)
		}
		for _, port := range z.Ports {
			add("# RUN firewall-offline-cmd --zone=%s --add-port=%s", z.Name, port)
		}
		for _, rule := range z.RichRules {
			if rule != "" {
				add("# RUN firewall-offline-cmd --zone=%s --add-rich-rule='%s'", z.Name, rule)
			}
		}
	}
	for _, r := range net.DirectRules {
		add("# RUN firewall-offline-cmd --direct --add-rule %s %s %s 0 %s", r.IPV, r.Table, r.Chain, r.Args)
	}
	add("")
}

func renderScheduledLayer(s *types.Snapshot, add func(string, ...interface{})) {
	st := s.Scheduled
	if st == nil || len(st.GeneratedTimers) == 0 && len(st.Timers) == 0 && len(st.CronJobs) == 0 && len(st.AtJobs) == 0 {
		return
	}
	add("# === Scheduled Tasks ===")

	var local, vendor []types.TimerUnit
	for _, t := range st.Timers {
		if t.Source == "local" {
			local = append(local, t)
		} else {
			vendor = append(vendor, t)
		}
	}
	if len(local) > 0 {
		add("# Existing local timers (%d): timer files included in COPY config/etc/ below", len(local))
		for _, t := range local {
			if shellSafe(t.Name) {
				add("RUN systemctl enable %s.timer", t.Name)
			}
		}
	}
	if len(vendor) > 0 {
		add("# Vendor timers (%d): already in base image, no action needed", len(vendor))
		for _, t := range vendor {
			add("#   - %s (%s)", t.Name, t.OnCalendar)
		}
	}
	if len(st.GeneratedTimers) > 0 {
		add("# Converted from cron: %d timer(s) — included in COPY config/etc/ below", len(st.GeneratedTimers))
		for _, g := range st.GeneratedTimers {
			if shellSafe(g.Name) {
				add("RUN systemctl enable %s.timer", g.Name)
			}
		}
	}
	if len(st.AtJobs) > 0 {
		add("# FIXME: %d at job(s) found — convert to systemd timers or drop", len(st.AtJobs))
		for _, a := range st.AtJobs {
			add("#   at job: %s", a.Command)
		}
	}
	add("")
}

// summarizeDiff turns a unified diff into key-level change summaries for
// the adjacent comment block.
func summarizeDiff(diff string) []string {
	additions := map[string]string{}
	removals := map[string]string{}
	var other []string
	for _, line := range strings.Split(strings.TrimSpace(diff), "\n") {
		if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "@@") {
			continue
		}
		if len(line) < 2 {
			continue
		}
		stripped := strings.TrimSpace(line[1:])
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		sep := ""
		if strings.Contains(stripped, "=") {
			sep = "="
		} else if strings.Contains(stripped, ":") {
			sep = ":"
		}
		switch {
		case strings.HasPrefix(line, "-") && sep != "":
			key, value, _ := strings.Cut(stripped, sep)
			removals[strings.TrimSpace(key)] = strings.TrimSpace(value)
		case strings.HasPrefix(line, "-"):
			other = append(other, "removed: "+stripped)
		case strings.HasPrefix(line, "+") && sep != "":
			key, value, _ := strings.Cut(stripped, sep)
			additions[strings.TrimSpace(key)] = strings.TrimSpace(value)
		case strings.HasPrefix(line, "+"):
			other = append(other, "added: "+stripped)
		}
	}
	keys := make([]string, 0, len(additions))
	for key := range additions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var results []string
	matched := map[string]struct{}{}
	for _, key := range keys {
		if old, ok := removals[key]; ok {
			results = append(results, fmt.Sprintf("%s: %s -> %s", key, old, additions[key]))
			matched[key] = struct{}{}
		} else {
			results = append(results, fmt.Sprintf("%s: added (%s)", key, additions[key]))
		}
	}
	removedKeys := make([]string, 0, len(removals))
	for key := range removals {
		removedKeys = append(removedKeys, key)
	}
	sort.Strings(removedKeys)
	for _, key := range removedKeys {
		if _, ok := matched[key]; !ok {
			results = append(results, key+": removed")
		}
	}
	return append(results, other...)
}

func renderConfigLayer(s *types.Snapshot, outputDir string, add func(string, ...interface{})) {
	add("# === Configuration Files ===")
	dynamicPaths := dynamicConnectionPaths(s)

	if s.Configs != nil {
		var modified, unowned, orphaned []types.ConfigFile
		for _, f := range s.Configs.Files {
			if _, dynamic := dynamicPaths[strings.TrimPrefix(f.Path, "/")]; dynamic {
				continue
			}
			switch f.Kind {
			case types.ConfigModified:
				modified = append(modified, f)
			case types.ConfigUnowned:
				unowned = append(unowned, f)
			case types.ConfigOrphaned:
				orphaned = append(orphaned, f)
			}
		}
		if len(modified) > 0 {
			add("# Modified package-owned configs (%d):", len(modified))
			for _, f := range modified {
				rel := strings.TrimPrefix(f.Path, "/")
				if f.Diff != "" {
					pkg := f.Package
					if pkg == "" {
						pkg = "package"
					}
					add("#   %s (modified from %s default):", rel, pkg)
					changes := summarizeDiff(f.Diff)
					for i, change := range changes {
						if i >= 5 {
							add("#     ... and %d more change(s)", len(changes)-5)
							break
						}
						add("#     - %s", change)
					}
					add("#     See audit-report.md for the full diff")
				} else if f.VerifyFlags != "" {
					add("#   %s (verify: %s)", rel, f.VerifyFlags)
				} else {
					add("#   %s", rel)
				}
			}
		}
		if len(unowned) > 0 {
			add("# Unowned configs (%d):", len(unowned))
			for i, f := range unowned {
				if i >= 10 {
					add("#   ... and %d more", len(unowned)-10)
					break
				}
				add("#   %s", strings.TrimPrefix(f.Path, "/"))
			}
		}
		if len(orphaned) > 0 {
			add("# Orphaned configs from removed packages (%d):", len(orphaned))
			for i, f := range orphaned {
				if i >= 5 {
					break
				}
				add("#   %s", strings.TrimPrefix(f.Path, "/"))
			}
		}
	}
	add("")

	roots := configCopyRoots(outputDir)
	for _, root := range roots {
		add("COPY config/%s/ /%s/", root, root)
	}
	if len(roots) == 0 {
		add("# (no config files captured)")
	}
	add("")
}

func renderNonRPMLayer(s *types.Snapshot, purePip []types.NonRPMItem, add func(string, ...interface{})) {
	if s.NonRPM == nil || len(s.NonRPM.Items) == 0 {
		return
	}
	add("# === Non-Package Software ===")

	var unknown []types.NonRPMItem
	for _, item := range s.NonRPM.Items {
		path := item.Path
		if path == "" {
			path = item.Name
		}
		switch item.Provenance {
		case types.ProvGoBinary, types.ProvRustBin:
			linking := "dynamically linked"
			if item.Static {
				linking = "statically linked"
			}
			add("# FIXME: %s at /%s (%s)", item.Provenance, path, linking)
			add("# Obtain source and rebuild for the target image, or COPY the binary directly")
			add("# COPY config/%s /%s", path, path)
		case types.ProvCBinary:
			if item.Static {
				add("# FIXME: static C/C++ binary at /%s — COPY or rebuild from source", path)
			} else {
				libs := item.SharedLibs
				if len(libs) > 5 {
					libs = libs[:5]
				}
				add("# FIXME: dynamic C/C++ binary at /%s — needs: %s", path, strings.Join(libs, ", "))
			}
			add("# COPY config/%s /%s", path, path)
		case types.ProvVenv:
			if item.SystemSitePackages {
				add("# FIXME: venv at /%s uses --system-site-packages — verify RPM deps are in the base image", path)
			}
			if len(item.Packages) > 0 {
				add("# Python venv at /%s: %d package(s)", path, len(item.Packages))
				add("RUN python3 -m venv /%s", path)
				var specs []string
				for _, p := range item.Packages {
					if p.Version != "" {
						specs = append(specs, p.Name+"=="+p.Version)
					}
				}
				if len(specs) > 0 {
					add("RUN /%s/bin/pip install %s", path, strings.Join(specs, " "))
				}
			} else {
				add("# FIXME: venv at /%s — no packages detected, verify manually", path)
			}
		case types.ProvGit:
			add("# Git-managed: /%s", path)
			if item.GitRemote != "" {
				commit := item.GitCommit
				if len(commit) > 12 {
					commit = commit[:12]
				}
				add("# FIXME: clone from %s (branch: %s, commit: %s)", item.GitRemote, item.GitBranch, commit)
				add("# RUN git clone %s /%s && cd /%s && git checkout %s", item.GitRemote, path, path, commit)
			} else {
				add("# FIXME: git repo at /%s has no remote — COPY or reconstruct", path)
			}
		case types.ProvPip:
			if item.Method == "pip requirements.txt" {
				add("# FIXME: verify pip packages in /%s install correctly from PyPI", path)
				add("COPY config/%s /%s", path, path)
				add("RUN pip install -r /%s", path)
			}
			// dist-info packages are consolidated below.
		case types.ProvNpm:
			add("# FIXME: verify npm packages in /%s install correctly", path)
			add("COPY config/%s/ /%s/", path, path)
			add("RUN cd /%s && npm ci", path)
		case types.ProvYarn:
			add("# FIXME: verify yarn packages in /%s install correctly", path)
			add("COPY config/%s/ /%s/", path, path)
			add("RUN cd /%s && yarn install --frozen-lockfile", path)
		case types.ProvGem:
			add("# FIXME: verify Ruby gems in /%s install correctly", path)
			add("COPY config/%s/ /%s/", path, path)
			add("RUN cd /%s && bundle install", path)
		default:
			unknown = append(unknown, item)
		}
	}

	if len(purePip) > 0 {
		add("# Detected: %d pip package(s) via dist-info", len(purePip))
		add("# FIXME: verify these pip packages install correctly from PyPI")
		add("RUN pip install \\")
		for i, p := range purePip {
			terminator := " \\"
			if i == len(purePip)-1 {
				terminator = ""
			}
			add("    %s==%s%s", p.Name, p.Version, terminator)
		}
	}

	for i, item := range unknown {
		if i >= 20 {
			break
		}
		path := item.Path
		if path == "" {
			path = item.Name
		}
		add("# FIXME: unknown provenance — determine upstream source and installation method for /%s", path)
		add("# COPY config/%s /%s", path, path)
	}
	add("")
}

func renderQuadletLayer(s *types.Snapshot, add func(string, ...interface{})) {
	if s.Container == nil || len(s.Container.Quadlets) == 0 && len(s.Container.ComposeFiles) == 0 {
		return
	}
	add("# === Container Workloads (Quadlet) ===")
	if len(s.Container.ComposeFiles) > 0 {
		add("# FIXME: %d compose file(s) found — convert services to quadlet units", len(s.Container.ComposeFiles))
		for _, cf := range s.Container.ComposeFiles {
			for _, svc := range cf.Services {
				add("#   %s: service %q uses image %s", cf.Path, svc.Service, svc.Image)
			}
		}
	}
	if len(s.Container.Quadlets) > 0 {
		add("COPY quadlet/ /etc/containers/systemd/")
	}
	add("")
}

func renderUserLayer(s *types.Snapshot, add func(string, ...interface{})) {
	ug := s.Users
	if ug == nil || len(ug.PasswdEntries) == 0 && len(ug.Users) == 0 {
		return
	}
	add("# === Users and Groups ===")
	if len(ug.PasswdEntries) > 0 {
		var catParts []string
		for _, db := range []struct {
			name    string
			entries []string
		}{
			{"group", ug.GroupEntries},
			{"passwd", ug.PasswdEntries},
			{"shadow", ug.ShadowEntries},
			{"gshadow", ug.GshadowEntries},
			{"subuid", ug.SubUIDEntries},
			{"subgid", ug.SubGIDEntries},
		} {
			if len(db.entries) > 0 {
				catParts = append(catParts, fmt.Sprintf("cat /tmp/%s.append >> /etc/%s", db.name, db.name))
			}
		}
		if len(catParts) > 0 {
			add("COPY config/tmp/ /tmp/")
			catParts = append(catParts, "rm -f /tmp/*.append")
			add("RUN %s", strings.Join(catParts, " && \\\n    "))
		}
		for _, user := range ug.Users {
			if user.Home != "" && user.Home != "/" && user.Name != "" && user.UID != 0 {
				add("RUN mkdir -p %s && chown %d:%d %s", user.Home, user.UID, user.GID, user.Home)
			}
		}
	} else {
		for i, group := range ug.Groups {
			if i >= 10 {
				break
			}
			add("RUN groupadd -g %d %s", group.GID, group.Name)
		}
		for i, user := range ug.Users {
			if i >= 10 {
				break
			}
			shellOpt := ""
			if user.Shell != "" && user.Shell != "/sbin/nologin" {
				shellOpt = " -s " + user.Shell
			}
			add("RUN useradd -u %d -g %d%s -m %s", user.UID, user.GID, shellOpt, user.Name)
		}
	}
	if len(ug.SudoersRules) > 0 {
		add("# FIXME: %d sudoers rule(s) detected — review and bake into /etc/sudoers.d/", len(ug.SudoersRules))
		for i, rule := range ug.SudoersRules {
			if i >= 10 {
				add("#   ... and %d more", len(ug.SudoersRules)-10)
				break
			}
			add("#   %s", rule)
		}
	}
	if len(ug.SSHKeyRefs) > 0 {
		add("# FIXME: %d SSH authorized_keys file(s) detected", len(ug.SSHKeyRefs))
		add("# Do NOT bake SSH keys into the image — inject at deploy time via:")
		add("#   - cloud-init (ssh_authorized_keys)")
		add("#   - kickstart (%%post with curl from metadata service)")
		add("#   - Ignition (for CoreOS/bootc systems)")
		for i, ref := range ug.SSHKeyRefs {
			if i >= 5 {
				break
			}
			add("#   Found: %s (user: %s)", ref.Path, ref.User)
		}
	}
	add("")
}

func renderKernelLayer(s *types.Snapshot, add func(string, ...interface{})) {
	kb := s.Kernel
	if kb == nil || kb.Cmdline == "" && len(kb.ModulesLoadD) == 0 && len(kb.ModprobeD) == 0 &&
		len(kb.DracutConf) == 0 && len(kb.SysctlOverrides) == 0 && len(kb.NonDefaultModules) == 0 {
		return
	}
	add("# === Kernel Configuration ===")
	if kb.Cmdline != "" {
		add("# FIXME: review detected kernel args and add the ones needed for this image")
		for _, karg := range strings.Fields(kb.Cmdline) {
			if key, value, found := strings.Cut(karg, "="); found {
				if shellSafe(key) && shellSafe(value) {
					add("# RUN rpm-ostree kargs --append=%s=%s", key, value)
				} else {
					add("# FIXME: karg contains unsafe characters, skipped: %q", karg)
				}
			} else if shellSafe(karg) {
				add("# RUN rpm-ostree kargs --append=%s", karg)
			}
		}
	}
	if len(kb.NonDefaultModules) > 0 {
		var names []string
		for i, mod := range kb.NonDefaultModules {
			if i >= 10 {
				break
			}
			names = append(names, mod.Name)
		}
		add("# %d non-default kernel module(s) loaded at runtime: %s", len(kb.NonDefaultModules), strings.Join(names, ", "))
		add("# FIXME: if these modules are needed, add them to /etc/modules-load.d/ in the image")
	}
	if len(kb.ModulesLoadD) > 0 {
		add("# modules-load.d: %d file(s) — included in COPY config/etc/ above", len(kb.ModulesLoadD))
	}
	if len(kb.ModprobeD) > 0 {
		add("# modprobe.d: %d file(s) — included in COPY config/etc/ above", len(kb.ModprobeD))
	}
	if len(kb.DracutConf) > 0 {
		add("# dracut.conf.d: %d file(s) — included in COPY config/etc/ above", len(kb.DracutConf))
	}
	if len(kb.SysctlOverrides) > 0 {
		add("# sysctl: %d non-default value(s) — included in COPY config/etc/ above", len(kb.SysctlOverrides))
	}
	add("")
}

func renderSecurityLayer(s *types.Snapshot, add func(string, ...interface{})) {
	sec := s.Security
	if sec == nil {
		return
	}
	nonDefault := make([]types.BooleanOverride, 0, len(sec.Booleans))
	for _, b := range sec.Booleans {
		if b.NonDefault {
			nonDefault = append(nonDefault, b)
		}
	}
	if len(sec.CustomModules) == 0 && len(nonDefault) == 0 && len(sec.FContextRules) == 0 &&
		len(sec.AuditRules) == 0 && !sec.FIPSMode {
		return
	}
	add("# === Security Policy Customizations ===")
	if len(sec.CustomModules) > 0 {
		add("# FIXME: %d custom policy module(s) detected — export .pp files to config/selinux/ and uncomment below", len(sec.CustomModules))
		add("# COPY config/selinux/ /tmp/selinux/")
		add("# RUN semodule -i /tmp/selinux/*.pp && rm -rf /tmp/selinux/")
	}
	if len(nonDefault) > 0 {
		add("# FIXME: %d non-default boolean(s) detected — verify each is still needed", len(nonDefault))
		for i, b := range nonDefault {
			if i >= 20 {
				break
			}
			if shellSafe(b.Name) && shellSafe(b.Current) {
				add("RUN setsebool -P %s %s", b.Name, b.Current)
			}
		}
	}
	if len(sec.FContextRules) > 0 {
		add("# FIXME: %d custom fcontext rule(s) detected — apply in image", len(sec.FContextRules))
		for i, rule := range sec.FContextRules {
			if i >= 10 {
				break
			}
			add("# RUN semanage fcontext -a %s", rule)
		}
		add("# RUN restorecon -Rv /  # apply fcontext changes after all COPYs")
	}
	if len(sec.AuditRules) > 0 {
		add("# %d audit rule file(s) — included in COPY config/etc/ above", len(sec.AuditRules))
	}
	if sec.FIPSMode {
		add("# FIXME: host has FIPS mode enabled — enable FIPS in the image via fips-mode-setup")
	}
	add("")
}

func renderNetworkLayer(s *types.Snapshot, add func(string, ...interface{})) {
	net := s.Network
	add("# === Network / Deploy-time Configuration ===")
	if net != nil && len(net.Connections) > 0 {
		var static, dynamic []string
		for _, conn := range net.Connections {
			if conn.Method == types.MethodStatic {
				static = append(static, conn.Name)
			} else {
				dynamic = append(dynamic, conn.Name)
			}
		}
		if len(static) > 0 {
			add("# Static connections (baked into image): %s — included in COPY config/etc/ above", strings.Join(static, ", "))
		}
		if len(dynamic) > 0 {
			add("# Dynamic connections (kickstart at deploy time): %s", strings.Join(dynamic, ", "))
			add("# FIXME: configure these interfaces via kickstart — see kickstart-suggestion.ks")
		}
	} else {
		add("# NOTE: interface-specific config (DHCP, DNS) should be applied via kickstart at deploy time.")
		add("# FIXME: review kickstart-suggestion.ks for deployment-time config")
	}
	if net != nil {
		switch net.DNS {
		case types.DNSNetworkManager:
			add("# resolv.conf: NM-managed — DNS assigned at deploy time via DHCP/kickstart")
		case types.DNSResolved:
			add("# resolv.conf: systemd-resolved — DNS assigned at deploy time")
		case types.DNSHandEdited:
			add("# resolv.conf: hand-edited — review whether to bake into image or manage at deploy")
		}

		if len(net.HostsAdditions) > 0 {
			add("# %d custom /etc/hosts entries detected", len(net.HostsAdditions))
			add("RUN cat >> /etc/hosts << 'HOSTSEOF'")
			for _, h := range net.HostsAdditions {
				add("%s", h)
			}
			add("HOSTSEOF")
		}

		var envProxies, dnfProxies []types.ProxyEntry
		for _, p := range net.Proxy {
			if p.Source == "etc/dnf/dnf.conf" || p.Source == "etc/yum.conf" {
				dnfProxies = append(dnfProxies, p)
			} else {
				envProxies = append(envProxies, p)
			}
		}
		if len(envProxies) > 0 {
			add("# Proxy settings detected — bake as environment defaults")
			add("RUN mkdir -p /etc/environment.d && cat > /etc/environment.d/proxy.conf << 'PROXYEOF'")
			for _, p := range envProxies {
				if strings.Contains(p.Line, "=") {
					add("%s", strings.TrimPrefix(p.Line, "export "))
				}
			}
			add("PROXYEOF")
		}
		if len(dnfProxies) > 0 {
			add("# DNF proxy configured — preserved in etc/dnf/dnf.conf (included in COPY config/etc/)")
			for _, p := range dnfProxies {
				add("#   %s", p.Line)
			}
		}

		if len(net.StaticRoutes) > 0 {
			add("# %d static route file(s) detected", len(net.StaticRoutes))
			add("# FIXME: add static routes via NM connection or nmstatectl config")
			for i, route := range net.StaticRoutes {
				if i >= 10 {
					break
				}
				add("# Route file: %s — translate to an NM connection (+ipv4.routes)", route.Path)
			}
		}
	}
	add("")
}

// WriteContainerfile renders and writes the recipe.
func WriteContainerfile(s *types.Snapshot, outputDir string) error {
	return writeFile(filepath.Join(outputDir, "Containerfile"), RenderContainerfile(s, outputDir)+"\n")
}
