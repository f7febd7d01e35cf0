package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// RenderREADME maps the artifact layout and collects the FIXME inventory so
// an operator knows where to start.
func RenderREADME(s *types.Snapshot, outputDir string) string {
	var b strings.Builder
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	w("# Image Migration Output")
	w("")
	w("Generated from host `%s` (%s).", orDash(s.Host.Hostname), orDash(s.Host.PrettyName))
	if s.Target != nil {
		w("Target base image: `%s`.", s.Target.Image)
	}
	w("")
	w("## Artifacts")
	w("")
	w("| File | Purpose |")
	w("|---|---|")
	w("| `Containerfile` | Layered build recipe — the starting point, not a finished product |")
	w("| `config/` | Mirror of captured configuration (config/etc/ maps to /etc) |")
	w("| `config/tmp/` | Account-database append fragments staged for the user layer |")
	w("| `quadlet/` | Container workload unit files |")
	w("| `audit-report.md` | Human-readable findings |")
	w("| `report.html` | Self-contained interactive dashboard |")
	w("| `kickstart-suggestion.ks` | Deploy-time provisioning fragment |")
	w("| `secrets-review.md` | Every redaction event, for operator review |")
	w("| `inspection-snapshot.json` | Canonical snapshot; re-render with --from-snapshot |")
	w("")
	w("## Build")
	w("")
	w("```sh")
	w("podman build -t my-bootc-image -f Containerfile .")
	w("```")
	w("")

	fixmes := extractFixmes(outputDir)
	if len(fixmes) > 0 {
		w("## Unresolved Items (%d)", len(fixmes))
		w("")
		w("The Containerfile contains FIXME markers that need operator decisions:")
		w("")
		for _, fixme := range fixmes {
			w("- %s", fixme)
		}
		w("")
	}

	if len(s.Warnings) > 0 {
		counts := map[types.Severity]int{}
		for _, warn := range s.Warnings {
			counts[warn.Severity]++
		}
		w("## Inspection Warnings")
		w("")
		w("%d error, %d warn, %d info — see audit-report.md.",
			counts[types.SeverityError], counts[types.SeverityWarn], counts[types.SeverityInfo])
		w("")
	}

	return b.String()
}

// extractFixmes pulls the FIXME lines out of the rendered Containerfile.
func extractFixmes(outputDir string) []string {
	data, err := os.ReadFile(filepath.Join(outputDir, "Containerfile"))
	if err != nil {
		return nil
	}
	var fixmes []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
		if strings.HasPrefix(trimmed, "FIXME:") {
			fixmes = append(fixmes, strings.TrimSpace(strings.TrimPrefix(trimmed, "FIXME:")))
		}
	}
	return fixmes
}

// WriteREADME writes README.md. Must run after the Containerfile so the
// FIXME inventory is complete.
func WriteREADME(s *types.Snapshot, outputDir string) error {
	return writeFile(filepath.Join(outputDir, "README.md"), RenderREADME(s, outputDir))
}
