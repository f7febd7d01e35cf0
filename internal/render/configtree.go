package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// dynamicConnectionPaths returns the profiles that are NOT static; those
// belong in the kickstart fragment, not baked into the image.
func dynamicConnectionPaths(s *types.Snapshot) map[string]struct{} {
	paths := map[string]struct{}{}
	if s.Network == nil {
		return paths
	}
	for _, conn := range s.Network.Connections {
		if conn.Method != types.MethodStatic && conn.Path != "" {
			paths[strings.TrimPrefix(conn.Path, "/")] = struct{}{}
		}
	}
	return paths
}

// WriteConfigTree mirrors every captured file from the snapshot under
// outputDir/config/, plus the quadlet/ subtree and the config/tmp/ staging
// area for account-database append fragments.
func WriteConfigTree(s *types.Snapshot, outputDir string) error {
	configDir := filepath.Join(outputDir, "config")
	dynamicPaths := dynamicConnectionPaths(s)

	if s.Configs != nil {
		for _, file := range s.Configs.Files {
			rel := strings.TrimPrefix(file.Path, "/")
			if _, dynamic := dynamicPaths[rel]; dynamic {
				continue
			}
			if err := writeFile(filepath.Join(configDir, rel), file.Content); err != nil {
				return err
			}
		}
	}

	if s.Packages != nil {
		for _, repo := range s.Packages.RepoFiles {
			if err := writeFile(filepath.Join(configDir, repo.Path), repo.Content); err != nil {
				return err
			}
		}
	}

	if s.Network != nil {
		for _, zone := range s.Network.FirewallZones {
			if zone.Path == "" {
				continue
			}
			if err := writeFile(filepath.Join(configDir, zone.Path), zone.Content); err != nil {
				return err
			}
		}
		if len(s.Network.DirectRules) > 0 {
			if err := writeFile(filepath.Join(configDir, "etc/firewalld/direct.xml"), directRulesXML(s.Network.DirectRules)); err != nil {
				return err
			}
		}
	}

	if s.Scheduled != nil {
		unitDir := filepath.Join(configDir, "etc/systemd/system")
		for _, gen := range s.Scheduled.GeneratedTimers {
			if err := writeFile(filepath.Join(unitDir, gen.Name+".timer"), gen.TimerContent); err != nil {
				return err
			}
			if err := writeFile(filepath.Join(unitDir, gen.Name+".service"), gen.ServiceContent); err != nil {
				return err
			}
		}
		for _, timer := range s.Scheduled.Timers {
			if timer.Source != "local" || timer.Name == "" {
				continue
			}
			if timer.TimerContent != "" {
				if err := writeFile(filepath.Join(unitDir, timer.Name+".timer"), timer.TimerContent); err != nil {
					return err
				}
			}
			if timer.ServiceContent != "" {
				if err := writeFile(filepath.Join(unitDir, timer.Name+".service"), timer.ServiceContent); err != nil {
					return err
				}
			}
		}
	}

	if s.Container != nil {
		for _, q := range s.Container.Quadlets {
			if q.Name == "" || q.Content == "" {
				continue
			}
			if err := writeFile(filepath.Join(outputDir, "quadlet", q.Name), q.Content); err != nil {
				return err
			}
		}
	}

	if s.NonRPM != nil {
		for _, item := range s.NonRPM.Items {
			rel := strings.TrimPrefix(item.Path, "/")
			if rel == "" {
				continue
			}
			if len(item.Files) > 0 {
				names := make([]string, 0, len(item.Files))
				for name := range item.Files {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					if err := writeFile(filepath.Join(configDir, rel, name), item.Files[name]); err != nil {
						return err
					}
				}
			} else if item.Content != "" {
				if err := writeFile(filepath.Join(configDir, rel), item.Content); err != nil {
					return err
				}
			}
		}
	}

	if s.Users != nil {
		tmpDir := filepath.Join(configDir, "tmp")
		for _, frag := range []struct {
			name    string
			entries []string
		}{
			{"passwd.append", s.Users.PasswdEntries},
			{"shadow.append", s.Users.ShadowEntries},
			{"group.append", s.Users.GroupEntries},
			{"gshadow.append", s.Users.GshadowEntries},
			{"subuid.append", s.Users.SubUIDEntries},
			{"subgid.append", s.Users.SubGIDEntries},
		} {
			if len(frag.entries) == 0 {
				continue
			}
			if err := writeFile(filepath.Join(tmpDir, frag.name), strings.Join(frag.entries, "\n")+"\n"); err != nil {
				return err
			}
		}
	}

	if s.Kernel != nil {
		for _, snippets := range [][]types.ConfigSnippet{s.Kernel.ModulesLoadD, s.Kernel.ModprobeD, s.Kernel.DracutConf} {
			for _, snippet := range snippets {
				if snippet.Path == "" {
					continue
				}
				if err := writeFile(filepath.Join(configDir, snippet.Path), snippet.Content); err != nil {
					return err
				}
			}
		}
		if len(s.Kernel.SysctlOverrides) > 0 {
			lines := []string{"# Non-default sysctl values detected on the source host"}
			for _, o := range s.Kernel.SysctlOverrides {
				lines = append(lines, o.Key+" = "+o.Runtime)
			}
			if err := writeFile(filepath.Join(configDir, "etc/sysctl.d/99-yoinkc.conf"), strings.Join(lines, "\n")+"\n"); err != nil {
				return err
			}
		}
	}

	return writeFile(filepath.Join(configDir, "etc/tmpfiles.d/yoinkc-var.conf"), tmpfilesConf(s))
}

// tmpfilesConf declares directories created on every boot. The mutable state
// root is seeded at initial bootstrap only; the image does not update it.
func tmpfilesConf(s *types.Snapshot) string {
	lines := []string{
		"# Directories created on every boot.",
		"# /var is seeded at initial bootstrap only; bootc does not update it.",
		"# Add d lines for application dirs under /var or /home as needed.",
	}
	count := 0
	if s.Users != nil {
		for _, user := range s.Users.Users {
			if count >= 20 {
				break
			}
			if user.Name != "" && user.Name != "root" && user.Home != "" && user.Home != "/" {
				lines = append(lines, fmt.Sprintf("d %s 0755 %s - -", user.Home, user.Name))
				count++
			}
		}
	}
	if count == 0 {
		lines = append(lines, "d /var/lib/app 0755 root root -")
	}
	return strings.Join(lines, "\n") + "\n"
}

func directRulesXML(rules []types.FirewallDirectRule) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<direct>\n")
	for _, r := range rules {
		b.WriteString(fmt.Sprintf("  <rule priority=%q table=%q ipv=%q chain=%q>%s</rule>\n",
			r.Priority, r.Table, r.IPV, r.Chain, xmlEscape(r.Args)))
	}
	b.WriteString("</direct>\n")
	return b.String()
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}

// configCopyRoots lists the non-empty top-level subdirectories under
// config/, excluding tmp/, which the user layer copies on its own.
func configCopyRoots(outputDir string) []string {
	configDir := filepath.Join(outputDir, "config")
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return nil
	}
	var roots []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "tmp" {
			continue
		}
		hasFile := false
		_ = filepath.Walk(filepath.Join(configDir, e.Name()), func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				hasFile = true
				return filepath.SkipAll
			}
			return nil
		})
		if hasFile {
			roots = append(roots, e.Name())
		}
	}
	sort.Strings(roots)
	return roots
}
