// Package redact is the mandatory gate between inspection and rendering.
// Every captured content blob traverses it exactly once; no output artifact
// is written before the pass completes.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/marrusl/yoinkc/pkg/types"
)

// ExcludedPlaceholder replaces the content of path-excluded files.
const ExcludedPlaceholder = "# Content excluded (sensitive path). Handle manually.\n"

// excludedPathPatterns suppress entire files: the file is referenced in the
// secrets review, but no bytes are carried in the snapshot.
var excludedPathPatterns = []string{
	"/etc/shadow",
	"/etc/gshadow",
	"/etc/ssh/ssh_host_*",
	"/etc/pki/**.key",
	"**.key",
	"**.keytab",
	"**keytab",
}

type pattern struct {
	re    *regexp.Regexp
	class string
	// group is the capture group holding the secret value; 0 means the
	// whole match.
	group int
}

// Order matters: more specific patterns run first.
var patterns = []pattern{
	{regexp.MustCompile(`(?s)-----BEGIN [^-]*PRIVATE KEY-----.+?-----END [^-]*-----`), "PRIVATE_KEY", 0},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?([a-zA-Z0-9_\-]{20,})['"]?`), "API_KEY", 2},
	{regexp.MustCompile(`(?i)(token)\s*[:=]\s*['"]?([a-zA-Z0-9_\-]{20,})['"]?`), "TOKEN", 2},
	{regexp.MustCompile(`(?i)(password|passwd|passphrase)\s*[:=]\s*['"]?([^\s'"]+)['"]?`), "PASSWORD", 2},
	{regexp.MustCompile(`(?i)(secret)\s*[:=]\s*['"]?([^\s'"]+)['"]?`), "SECRET", 2},
	{regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9_\-.]{20,})`), "BEARER_TOKEN", 1},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS_KEY", 0},
	{regexp.MustCompile(`gh[pu]_[a-zA-Z0-9]{36}`), "GITHUB_TOKEN", 0},
	{regexp.MustCompile(`(?i)(?:gcp|google)[_-]?(?:api[_-]?key|credentials?)\s*[:=]\s*['"]?([^\s'"]{10,})['"]?`), "GCP_CREDENTIAL", 1},
	{regexp.MustCompile(`(?i)(?:azure|az)[_-]?(?:storage[_-]?key|account[_-]?key|secret)\s*[:=]\s*['"]?([^\s'"]{10,})['"]?`), "AZURE_CREDENTIAL", 1},
	{regexp.MustCompile(`(?i)jdbc:[^:\s]+://[^:\s]+:([^@\s]+)@`), "JDBC_PASSWORD", 1},
	{regexp.MustCompile(`(?i)postgres(?:ql)?://[^:\s]+:([^@\s]+)@`), "POSTGRES_PASSWORD", 1},
	{regexp.MustCompile(`(?i)mongodb(?:\+srv)?://[^:\s]+:([^@\s]+)@`), "MONGODB_PASSWORD", 1},
	{regexp.MustCompile(`(?i)redis://[^:\s]*:([^@\s]+)@`), "REDIS_PASSWORD", 1},
}

// Values that commonly follow "password:" in nsswitch, PAM, and sudoers
// configuration but are not secrets.
var falsePositiveValues = map[string]struct{}{
	"files": {}, "sss": {}, "compat": {}, "nis": {}, "ldap": {}, "systemd": {},
	"winbind": {}, "dns": {},
	"required": {}, "requisite": {}, "sufficient": {}, "optional": {},
	"include": {}, "substack": {},
	"prompt": {}, "true": {}, "false": {}, "yes": {}, "no": {}, "none": {},
	"null": {}, "disabled": {}, "all": {},
	"sha512": {}, "sha256": {}, "md5": {}, "blowfish": {}, "yescrypt": {}, "des": {},
	"pam_unix.so": {}, "pam_deny.so": {}, "pam_permit.so": {}, "pam_pwquality.so": {},
	"pam_sss.so": {}, "pam_faildelay.so": {}, "pam_env.so": {}, "pam_localuser.so": {},
	"pam_systemd.so": {}, "pam_faillock.so": {}, "pam_succeed_if.so": {},
}

// Redactor applies the three-stage gate. Extra rules from configuration are
// merged with the built-ins.
type Redactor struct {
	pathGlobs []glob.Glob
	events    []types.Redaction
}

// New builds a redactor; extraPaths are additional whole-file exclusion
// globs.
func New(extraPaths ...string) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range append(append([]string{}, excludedPathPatterns...), extraPaths...) {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("bad exclusion pattern %q: %w", p, err)
		}
		r.pathGlobs = append(r.pathGlobs, g)
	}
	return r, nil
}

// PathExcluded reports whether the file at path is suppressed entirely.
func (r *Redactor) PathExcluded(path string) bool {
	normalized := "/" + strings.TrimLeft(path, "/")
	for _, g := range r.pathGlobs {
		if g.Match(normalized) || g.Match(strings.TrimPrefix(normalized, "/")) {
			return true
		}
	}
	return false
}

func truncatedHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:8]
}

func lineOf(text string, offset int) string {
	return fmt.Sprintf("%d", 1+strings.Count(text[:offset], "\n"))
}

// isCommentAt reports whether the match at offset sits on a comment line.
func isCommentAt(text string, offset int) bool {
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	prefix := strings.TrimSpace(text[lineStart:offset])
	return strings.HasPrefix(prefix, "#") || strings.HasPrefix(prefix, ";") || strings.HasPrefix(prefix, "!")
}

func isFalsePositive(value string) bool {
	_, ok := falsePositiveValues[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Text rewrites matched secret values in text, recording one secrets-review
// event per substitution attributed to path.
func (r *Redactor) Text(text, path string) string {
	out := text
	for _, p := range patterns {
		out = r.applyPattern(out, path, p)
	}
	return out
}

func (r *Redactor) applyPattern(text, path string, p pattern) string {
	var b strings.Builder
	pos := 0
	for pos < len(text) {
		loc := p.re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		value := text[start:end]
		if p.group > 0 && loc[2*p.group] >= 0 {
			value = text[pos+loc[2*p.group] : pos+loc[2*p.group+1]]
		}
		if isCommentAt(text, start) || (p.class == "PASSWORD" && isFalsePositive(value)) {
			b.WriteString(text[pos:end])
			pos = end
			continue
		}
		replacement := "REDACTED_" + p.class + "_" + truncatedHash(value)
		r.events = append(r.events, types.Redaction{
			Path:        path,
			Pattern:     p.class,
			Line:        lineOf(text, start),
			Remediation: "Use a secret store or inject at deploy time.",
		})
		b.WriteString(text[pos:start])
		b.WriteString(replacement)
		pos = end
	}
	if pos == 0 {
		return text
	}
	b.WriteString(text[pos:])
	return b.String()
}

// Snapshot applies the gate to every content-bearing field, appends the
// secrets-review events, and seals the snapshot. Mutates s in place; after
// sealing the snapshot is read-only by contract.
func (r *Redactor) Snapshot(s *types.Snapshot) {
	if s.Configs != nil {
		for i := range s.Configs.Files {
			f := &s.Configs.Files[i]
			if r.PathExcluded(f.Path) {
				if f.Content != ExcludedPlaceholder {
					r.events = append(r.events, types.Redaction{
						Path:        f.Path,
						Pattern:     "EXCLUDED_PATH",
						Line:        "entire file",
						Remediation: "File not included; handle credentials manually (e.g. systemd credential, secret store).",
					})
				}
				f.Content = ExcludedPlaceholder
				f.Diff = ""
				continue
			}
			f.Content = r.Text(f.Content, f.Path)
			if f.Diff != "" {
				f.Diff = r.Text(f.Diff, f.Path+":diff")
			}
		}
	}

	if s.Network != nil {
		for i := range s.Network.FirewallZones {
			z := &s.Network.FirewallZones[i]
			z.Content = r.Text(z.Content, "network:firewall_zone/"+z.Name)
		}
	}

	if s.Container != nil {
		for i := range s.Container.Quadlets {
			q := &s.Container.Quadlets[i]
			q.Content = r.Text(q.Content, "containers:quadlet/"+q.Name)
		}
		for i := range s.Container.Live {
			c := &s.Container.Live[i]
			name := c.Name
			if name == "" && len(c.ID) >= 12 {
				name = c.ID[:12]
			}
			for j, env := range c.Env {
				c.Env[j] = r.Text(env, "containers:live/"+name+":env")
			}
		}
	}

	if s.Scheduled != nil {
		for i := range s.Scheduled.GeneratedTimers {
			g := &s.Scheduled.GeneratedTimers[i]
			g.ServiceContent = r.Text(g.ServiceContent, "scheduled:timer/"+g.Name+":service")
			g.Command = r.Text(g.Command, "scheduled:timer/"+g.Name+":command")
		}
		for i := range s.Scheduled.Timers {
			t := &s.Scheduled.Timers[i]
			if t.Source != "local" {
				continue
			}
			t.ServiceContent = r.Text(t.ServiceContent, "scheduled:systemd_timer/"+t.Name+":service")
			t.TimerContent = r.Text(t.TimerContent, "scheduled:systemd_timer/"+t.Name+":timer")
		}
	}

	if s.Kernel != nil {
		s.Kernel.GrubDefaults = r.Text(s.Kernel.GrubDefaults, "kernel:grub_defaults")
		for _, snippets := range [][]types.ConfigSnippet{
			s.Kernel.ModulesLoadD, s.Kernel.ModprobeD, s.Kernel.DracutConf,
		} {
			for i := range snippets {
				snippets[i].Content = r.Text(snippets[i].Content, "kernel:"+snippets[i].Path)
			}
		}
	}

	if s.NonRPM != nil {
		for i := range s.NonRPM.Items {
			item := &s.NonRPM.Items[i]
			if item.Content != "" {
				item.Content = r.Text(item.Content, item.Path)
			}
			for name, content := range item.Files {
				item.Files[name] = r.Text(content, item.Path+"/"+name)
			}
		}
	}

	if s.Users != nil {
		for i, rule := range s.Users.SudoersRules {
			s.Users.SudoersRules[i] = r.Text(rule, "users:sudoers")
		}
	}

	// The secrets inspector may have referenced excluded files already;
	// keep exactly one review entry per excluded path.
	existing := map[string]struct{}{}
	for _, ev := range s.SecretsReview {
		if ev.Pattern == "EXCLUDED_PATH" {
			existing[ev.Path] = struct{}{}
		}
	}
	for _, ev := range r.events {
		if ev.Pattern == "EXCLUDED_PATH" {
			if _, dup := existing[ev.Path]; dup {
				continue
			}
			existing[ev.Path] = struct{}{}
		}
		s.SecretsReview = append(s.SecretsReview, ev)
	}
	s.Sealed = true
}

// containsSecret reports whether text carries a live (not already redacted,
// not false-positive) secret match.
func containsSecret(text string) bool {
	for _, p := range patterns {
		pos := 0
		for pos < len(text) {
			loc := p.re.FindStringSubmatchIndex(text[pos:])
			if loc == nil {
				break
			}
			start, end := pos+loc[0], pos+loc[1]
			value := text[start:end]
			if p.group > 0 && loc[2*p.group] >= 0 {
				value = text[pos+loc[2*p.group] : pos+loc[2*p.group+1]]
			}
			switch {
			case strings.Contains(value, "REDACTED_"):
			case isCommentAt(text, start):
			case p.class == "PASSWORD" && isFalsePositive(value):
			default:
				return true
			}
			pos = end
		}
	}
	return false
}

// ScanDir re-scans every emitted byte under root for residual secret
// patterns. Returns the relative path of the first hit, or "" when clean.
// This is the second, belt-and-braces pass guarding the push.
func ScanDir(root string) (string, error) {
	var hit string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || hit != "" {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if containsSecret(string(data)) {
			rel, _ := filepath.Rel(root, path)
			hit = rel
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return hit, nil
}
