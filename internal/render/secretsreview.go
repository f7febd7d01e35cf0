package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// RenderSecretsReview lists every redaction event in discovery order so an
// operator can verify nothing sensitive leaked and re-provision what the
// image needs.
func RenderSecretsReview(s *types.Snapshot) string {
	var b strings.Builder
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	w("# Secrets Review")
	w("")
	if len(s.SecretsReview) == 0 {
		w("No secrets were detected or excluded during inspection.")
		w("")
		return b.String()
	}
	w("%d redaction event(s). Redacted values are replaced with stable", len(s.SecretsReview))
	w("`REDACTED_<class>_<hash>` tokens; excluded files carry no content at all.")
	w("")
	w("| Path | Class | Location | Remediation |")
	w("|---|---|---|---|")
	for _, event := range s.SecretsReview {
		w("| `%s` | %s | %s | %s |", event.Path, event.Pattern, event.Line, event.Remediation)
	}
	w("")
	w("Re-provision these values at deploy time (systemd credentials, a secret")
	w("store, or kickstart %%post) — never commit them to the image.")
	return b.String()
}

// WriteSecretsReview writes secrets-review.md.
func WriteSecretsReview(s *types.Snapshot, outputDir string) error {
	return writeFile(filepath.Join(outputDir, "secrets-review.md"), RenderSecretsReview(s))
}
