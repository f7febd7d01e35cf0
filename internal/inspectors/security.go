package inspectors

import (
	"regexp"
	"sort"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// SecurityInspector captures SELinux mode, operator-installed policy
// modules, non-default booleans, fcontext customizations, audit rules,
// FIPS state, and PAM configuration.
type SecurityInspector struct{}

func (s *SecurityInspector) Name() string            { return "security" }
func (s *SecurityInspector) DependsOnBaseline() bool { return false }

func (s *SecurityInspector) Run(c *Context) error {
	section := &types.SecuritySection{}
	c.Snapshot.Security = section

	for _, raw := range strings.Split(safeRead(c.Host("etc", "selinux", "config")), "\n") {
		line := strings.TrimSpace(raw)
		if value, ok := strings.CutPrefix(line, "SELINUX="); ok {
			section.Mode = strings.TrimSpace(value)
			break
		}
	}

	policyType := s.policyType(c)
	section.CustomModules = s.customModules(c, policyType)
	section.Booleans = s.booleans(c, section)
	section.FContextRules = s.fcontextRules(c, policyType)

	for _, e := range safeList(c.Host("etc", "audit", "rules.d")) {
		if !e.IsDir() {
			section.AuditRules = append(section.AuditRules, "etc/audit/rules.d/"+e.Name())
		}
	}

	section.FIPSMode = strings.TrimSpace(safeRead(c.Host("proc", "sys", "crypto", "fips_enabled"))) == "1"

	for _, e := range safeList(c.Host("etc", "pam.d")) {
		if !e.IsDir() {
			section.PAMConfigs = append(section.PAMConfigs, "etc/pam.d/"+e.Name())
		}
	}
	return nil
}

func (s *SecurityInspector) policyType(c *Context) string {
	for _, raw := range strings.Split(safeRead(c.Host("etc", "selinux", "config")), "\n") {
		line := strings.TrimSpace(raw)
		if value, ok := strings.CutPrefix(line, "SELINUXTYPE="); ok {
			return strings.TrimSpace(value)
		}
	}
	return "targeted"
}

// customModules lists the priority-400 module store: modules installed
// locally by the operator, discoverable without running semodule.
func (s *SecurityInspector) customModules(c *Context, policyType string) []string {
	store := c.Host("etc", "selinux", policyType, "active", "modules", "400")
	var names []string
	for _, e := range safeList(store) {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

var booleanRe = regexp.MustCompile(`^(\S+)\s+\((\w+)\s*,\s*(\w+)\)\s+(.*)`)

// booleans queries boolean state via the host's own semanage through chroot,
// with a filesystem fallback against the selinuxfs boolean files.
func (s *SecurityInspector) booleans(c *Context, section *types.SecuritySection) []types.BooleanOverride {
	res, err := c.Exec.Run(c.Ctx, []string{"chroot", c.HostRoot, "semanage", "boolean", "-l"})
	if err == nil && res.OK() && strings.TrimSpace(res.Stdout) != "" {
		var out []types.BooleanOverride
		for _, raw := range strings.Split(res.Stdout, "\n") {
			line := strings.TrimSpace(raw)
			if line == "" || strings.HasPrefix(line, "SELinux boolean") {
				continue
			}
			m := booleanRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			out = append(out, types.BooleanOverride{
				Name:        m[1],
				Current:     m[2],
				Default:     m[3],
				NonDefault:  m[2] != m[3],
				Description: strings.TrimSpace(m[4]),
			})
		}
		return out
	}

	boolDir := c.Host("sys", "fs", "selinux", "booleans")
	if !isDir(boolDir) {
		c.Info(s.Name(), "boolean override detection unavailable — semanage failed and selinuxfs not accessible")
		section.Partial = true
		return nil
	}
	var out []types.BooleanOverride
	for _, e := range safeList(boolDir) {
		if e.IsDir() {
			continue
		}
		parts := strings.Fields(strings.TrimSpace(safeRead(boolDir + "/" + e.Name())))
		if len(parts) < 2 {
			continue
		}
		onOff := func(v string) string {
			if v == "1" {
				return "on"
			}
			return "off"
		}
		current, pending := onOff(parts[0]), onOff(parts[1])
		if current != pending {
			out = append(out, types.BooleanOverride{
				Name: e.Name(), Current: current, Default: pending, NonDefault: true,
			})
		}
	}
	return out
}

func (s *SecurityInspector) fcontextRules(c *Context, policyType string) []string {
	res, err := c.Exec.Run(c.Ctx, []string{"chroot", c.HostRoot, "semanage", "fcontext", "-l", "-C"})
	if err == nil && res.OK() && strings.TrimSpace(res.Stdout) != "" {
		var rules []string
		for _, raw := range strings.Split(res.Stdout, "\n") {
			line := strings.TrimSpace(raw)
			if line != "" && !strings.HasPrefix(line, "SELinux") {
				rules = append(rules, line)
			}
		}
		if len(rules) > 0 {
			return rules
		}
	}
	var rules []string
	local := c.Host("etc", "selinux", policyType, "contexts", "files", "file_contexts.local")
	for _, raw := range strings.Split(safeRead(local), "\n") {
		line := strings.TrimSpace(raw)
		if line != "" && !strings.HasPrefix(line, "#") {
			rules = append(rules, line)
		}
	}
	return rules
}
