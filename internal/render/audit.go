package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// RenderAuditReport produces the human-readable markdown report: what was
// found, what the recipe does about it, and what needs operator attention.
func RenderAuditReport(s *types.Snapshot) string {
	var b strings.Builder
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	w("# Migration Audit Report")
	w("")
	w("- Host: `%s`", orDash(s.Host.Hostname))
	w("- OS: %s (%s)", orDash(s.Host.PrettyName), orDash(s.Host.VersionID))
	w("- Inspected: %s", s.Host.InspectedAt.Format("2006-01-02 15:04:05 UTC"))
	if s.Target != nil {
		w("- Target image: `%s` (resolved via %s)", s.Target.Image, s.Target.Resolution)
		if s.Target.CrossMajor {
			w("- **Cross-major migration** — review everything below carefully.")
		}
	}
	if s.Baseline != nil {
		w("- Baseline mode: %s (%d packages)", s.Baseline.Mode, len(s.Baseline.PackageNames))
	}
	w("")

	if len(s.Warnings) > 0 {
		w("## Warnings (%d)", len(s.Warnings))
		w("")
		for _, warn := range s.Warnings {
			line := fmt.Sprintf("- **%s** [%s] %s", warn.Severity, warn.Source, warn.Message)
			if warn.Action != "" {
				line += " — " + warn.Action
			}
			w("%s", line)
		}
		w("")
	}

	if s.Packages != nil {
		w("## Packages")
		w("")
		w("- Added beyond base image: %d", len(s.Packages.Added))
		w("- Present in base image but absent on host: %d", len(s.Packages.Removed))
		w("- Files failing package verification: %d", len(s.Packages.Verify))
		if len(s.Packages.HistoryRemoved) > 0 {
			w("- Install-then-remove history names: %s", strings.Join(s.Packages.HistoryRemoved, ", "))
		}
		w("")
		if len(s.Packages.Added) > 0 {
			w("| Package | Version | Arch |")
			w("|---|---|---|")
			for _, p := range s.Packages.Added {
				w("| %s | %s-%s | %s |", p.Name, p.Version, p.Release, p.Arch)
			}
			w("")
		}
	}

	if s.Services != nil {
		var changed []types.ServiceState
		for _, st := range s.Services.States {
			if st.Action != types.ActionNone {
				changed = append(changed, st)
			}
		}
		w("## Services")
		w("")
		w("%d unit(s) diverge from base-image defaults:", len(changed))
		w("")
		if len(changed) > 0 {
			w("| Unit | Current | Default | Action |")
			w("|---|---|---|---|")
			for _, st := range changed {
				w("| %s | %s | %s | %s |", st.Unit, st.Current, st.Default, st.Action)
			}
			w("")
		}
	}

	if s.Configs != nil {
		modified := s.Configs.ByKind(types.ConfigModified)
		unowned := s.Configs.ByKind(types.ConfigUnowned)
		orphaned := s.Configs.ByKind(types.ConfigOrphaned)
		w("## Configuration Files")
		w("")
		w("- Modified package-owned: %d", len(modified))
		w("- Unowned under /etc: %d", len(unowned))
		w("- Orphaned from removed packages: %d", len(orphaned))
		w("")
		for _, f := range modified {
			if f.Diff != "" {
				w("### %s", f.Path)
				w("")
				w("```diff")
				w("%s", strings.TrimRight(f.Diff, "\n"))
				w("```")
				w("")
			}
		}
	}

	if s.Storage != nil && len(s.Storage.VarDirectories) > 0 {
		w("## Data Migration Plan (/var)")
		w("")
		w("| Directory | Size | Recommendation |")
		w("|---|---|---|")
		for _, d := range s.Storage.VarDirectories {
			w("| /%s | %s | %s |", d.Path, d.SizeEstimate, d.Recommendation)
		}
		w("")
	}

	if s.Storage != nil && len(s.Storage.Mounts) > 0 {
		w("## Mounts")
		w("")
		w("| Target | Source | Type | Strategy |")
		w("|---|---|---|---|")
		for _, m := range s.Storage.Mounts {
			w("| %s | %s | %s | %s |", m.Target, m.Source, m.FSType, m.Strategy)
		}
		w("")
	}

	if s.Scheduled != nil && (len(s.Scheduled.CronJobs) > 0 || len(s.Scheduled.AtJobs) > 0) {
		w("## Scheduled Tasks")
		w("")
		for _, job := range s.Scheduled.CronJobs {
			if job.Schedule != "" {
				w("- `%s` (%s): `%s` → converted to a systemd timer", job.Path, job.Schedule, job.Command)
			} else {
				w("- `%s` (%s)", job.Path, job.Source)
			}
		}
		for _, at := range s.Scheduled.AtJobs {
			w("- at job `%s`: `%s` — **manual conversion required**", at.File, at.Command)
		}
		w("")
	}

	if s.NonRPM != nil && len(s.NonRPM.Items) > 0 {
		w("## Non-Package Software")
		w("")
		w("| Path | Provenance | Confidence | Detail |")
		w("|---|---|---|---|")
		for _, item := range s.NonRPM.Items {
			detail := item.Method
			if item.Version != "" {
				detail += ", version " + item.Version
			}
			w("| /%s | %s | %s | %s |", item.Path, item.Provenance, item.Confidence, detail)
		}
		w("")
	}

	if s.Kernel != nil && len(s.Kernel.SysctlOverrides) > 0 {
		w("## Kernel Tuning")
		w("")
		w("| Key | Runtime | Default | Source |")
		w("|---|---|---|---|")
		for _, o := range s.Kernel.SysctlOverrides {
			w("| %s | %s | %s | %s |", o.Key, o.Runtime, orDash(o.Default), o.Source)
		}
		w("")
	}

	if s.Security != nil {
		w("## Security Policy")
		w("")
		w("- Mode: %s", orDash(s.Security.Mode))
		w("- Custom modules: %d", len(s.Security.CustomModules))
		nonDefault := 0
		for _, bo := range s.Security.Booleans {
			if bo.NonDefault {
				nonDefault++
			}
		}
		w("- Non-default booleans: %d", nonDefault)
		w("- Audit rule files: %d", len(s.Security.AuditRules))
		if s.Security.FIPSMode {
			w("- **FIPS mode enabled on host**")
		}
		w("")
	}

	if s.Users != nil && len(s.Users.Users) > 0 {
		w("## Users")
		w("")
		for _, user := range s.Users.Users {
			w("- %s (uid %d, home %s)", user.Name, user.UID, user.Home)
		}
		w("")
	}

	if len(s.SecretsReview) > 0 {
		w("## Secrets")
		w("")
		w("%d redaction event(s) — see secrets-review.md for details.", len(s.SecretsReview))
		w("")
	}

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// WriteAuditReport writes audit-report.md.
func WriteAuditReport(s *types.Snapshot, outputDir string) error {
	return writeFile(filepath.Join(outputDir, "audit-report.md"), RenderAuditReport(s))
}
