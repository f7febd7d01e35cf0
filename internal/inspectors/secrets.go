package inspectors

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// SecretRefInspector surveys /etc for files whose entire contents are
// policy-excluded (account shadow files, ssh host keys, private keys,
// keytabs) and records one secrets-review reference per existing file. The
// redaction pass handles content; this inspector makes every such file under
// /etc appear in the review even when no other inspector captured it.
type SecretRefInspector struct{}

func (s *SecretRefInspector) Name() string            { return "secrets" }
func (s *SecretRefInspector) DependsOnBaseline() bool { return false }

func (s *SecretRefInspector) Run(c *Context) error {
	seen := map[string]struct{}{}
	add := func(rel string) {
		if _, dup := seen[rel]; dup {
			return
		}
		seen[rel] = struct{}{}
		c.Snapshot.SecretsReview = append(c.Snapshot.SecretsReview, types.Redaction{
			Path:        "/" + rel,
			Pattern:     "EXCLUDED_PATH",
			Line:        "entire file",
			Remediation: "File not included; handle credentials manually (e.g. systemd credential, secret store).",
		})
	}

	for _, rel := range []string{"etc/shadow", "etc/gshadow"} {
		if exists(c.Host(rel)) {
			add(rel)
		}
	}

	for _, e := range safeList(c.Host("etc", "ssh")) {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "ssh_host_") {
			add("etc/ssh/" + e.Name())
		}
	}

	// Private keys and keytabs anywhere under the configuration root.
	_ = filepath.Walk(c.Host("etc"), func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasSuffix(name, ".key") || strings.HasSuffix(name, ".keytab") || strings.HasSuffix(name, "keytab") {
			add(c.Rel(path))
		}
		return nil
	})

	if len(seen) > 0 {
		c.Info(s.Name(), "sensitive files referenced in the secrets review; contents are never captured")
	}
	return nil
}
