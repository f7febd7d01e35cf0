// Package validate optionally builds the generated recipe through the host
// container runtime and captures failures. Build failures never abort the
// run; they are surfaced in the reports.
package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/internal/nsenter"
)

const buildTimeout = 600 * time.Second

// Result reports a validation run.
type Result struct {
	Ran       bool
	Succeeded bool
	LogPath   string
}

// Run executes podman build --no-cache in outputDir, preferring the
// privilege bridge (podman lives on the host, not in the inspection
// container) and falling back to direct invocation.
func Run(ctx context.Context, exec hostexec.Executor, bridge *nsenter.Bridge, outputDir string, log logger.Logger) Result {
	containerfile := filepath.Join(outputDir, "Containerfile")
	if _, err := os.Stat(containerfile); err != nil {
		return Result{}
	}

	argv := []string{"podman", "build", "--no-cache", "-f", containerfile, outputDir}

	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	var res hostexec.Result
	var err error
	if bridge != nil && bridge.Probe(ctx).OK {
		res, err = bridge.Run(ctx, argv)
	} else {
		res, err = exec.Run(ctx, argv)
	}
	if err != nil {
		log.Error("build validation could not run", err)
		return Result{}
	}

	if res.OK() {
		log.Info("build validation succeeded")
		return Result{Ran: true, Succeeded: true}
	}

	logPath := filepath.Join(outputDir, "build-errors.log")
	content := "Podman build failed.\n\nstdout:\n" + res.Stdout + "\n\nstderr:\n" + res.Stderr + "\n"
	if werr := os.WriteFile(logPath, []byte(content), 0o644); werr != nil {
		log.Error("cannot write build log", werr)
	}
	appendFailureToReports(outputDir, res.Stderr+res.Stdout)
	log.Warn("build validation failed — see build-errors.log")
	return Result{Ran: true, LogPath: logPath}
}

// appendFailureToReports annotates the audit report and the HTML dashboard
// with the failure summary.
func appendFailureToReports(outputDir, summary string) {
	if len(summary) > 1500 {
		summary = summary[:1500]
	}

	auditPath := filepath.Join(outputDir, "audit-report.md")
	if data, err := os.ReadFile(auditPath); err == nil {
		section := "\n## Build validation failed\n\n" +
			"See `build-errors.log` for full output.\n\n```\n" +
			strings.ReplaceAll(summary, "```", "` ` `") + "\n```\n"
		_ = os.WriteFile(auditPath, append(data, []byte(section)...), 0o644)
	}

	htmlPath := filepath.Join(outputDir, "report.html")
	if data, err := os.ReadFile(htmlPath); err == nil {
		html := string(data)
		escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(summary)
		if len(escaped) > 500 {
			escaped = escaped[:500]
		}
		inject := `<div class="warning-panel" style="border-color:var(--error);">` +
			`<h3>Build validation failed</h3><p>See build-errors.log</p>` +
			`<pre style="font-size:0.85em">` + escaped + `</pre></div>`
		if strings.Contains(html, "</body>") {
			html = strings.Replace(html, "</body>", inject+"\n</body>", 1)
			_ = os.WriteFile(htmlPath, []byte(html), 0o644)
		}
	}
}
