package inspectors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// Directories under the mutable state root surveyed for the migration plan,
// with the category each maps to.
var varScanDirs = []struct{ dir, category string }{
	{"var/lib", "application data"},
	{"var/log", "log retention"},
	{"var/data", "application data"},
	{"var/www", "web content"},
	{"var/opt", "add-on packages"},
}

// OS-managed directories under var/lib that never belong in a migration plan.
var varLibSkip = map[string]struct{}{
	"alternatives": {}, "authselect": {}, "dbus": {}, "dnf": {}, "logrotate": {},
	"misc": {}, "NetworkManager": {}, "os-prober": {}, "plymouth": {},
	"polkit-1": {}, "portables": {}, "private": {}, "rpm": {}, "rpm-state": {},
	"selinux": {}, "sss": {}, "systemd": {}, "tuned": {}, "unbound": {}, "tpm2-tss": {},
}

// StorageInspector reads the mount landscape and surveys mutable state for
// the migration plan.
type StorageInspector struct{}

func (s *StorageInspector) Name() string            { return "storage" }
func (s *StorageInspector) DependsOnBaseline() bool { return false }

func (s *StorageInspector) Run(c *Context) error {
	section := &types.StorageSection{}
	c.Snapshot.Storage = section

	s.collectFstab(c, section)
	s.collectMounts(c, section)
	s.collectLVM(c, section)
	s.collectAutomount(c, section)
	s.collectBlockSpecial(c, section)
	section.VarDirectories = s.surveyVar(c)
	return nil
}

func (s *StorageInspector) collectFstab(c *Context, section *types.StorageSection) {
	for _, raw := range strings.Split(safeRead(c.Host("etc", "fstab")), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		section.Fstab = append(section.Fstab, types.FstabEntry{
			Device: fields[0], MountPoint: fields[1], FSType: fields[2],
		})
	}
}

// MountStrategy labels a mount with the recommended migration approach.
func MountStrategy(target, fstype string) string {
	switch {
	case fstype == "nfs" || fstype == "nfs4" || fstype == "cifs":
		return "network mount — reattach at deploy time, not baked into the image"
	case target == "/" || target == "/boot" || target == "/boot/efi":
		return "image-managed — replaced by the bootc deployment layout"
	case strings.HasPrefix(target, "/var"):
		return "persistent volume — survives image updates, size it from the survey below"
	case strings.HasPrefix(target, "/home"):
		return "persistent volume — user data, never image content"
	case fstype == "swap":
		return "deploy-time — declare swap in the kickstart, not the image"
	default:
		return "review — decide between image content and a persistent volume"
	}
}

func (s *StorageInspector) collectMounts(c *Context, section *types.StorageSection) {
	res, err := c.Exec.Run(c.Ctx, []string{"findmnt", "--json", "--real"})
	if err != nil || !res.OK() {
		c.Info(s.Name(), "findmnt unavailable — live mount table not captured")
		section.Partial = true
		return
	}
	var payload struct {
		Filesystems []mountNode `json:"filesystems"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &payload); err != nil {
		c.Info(s.Name(), "findmnt output unparseable — live mount table not captured")
		section.Partial = true
		return
	}
	var flatten func(nodes []mountNode)
	flatten = func(nodes []mountNode) {
		for _, node := range nodes {
			section.Mounts = append(section.Mounts, types.Mount{
				Target:   node.Target,
				Source:   node.Source,
				FSType:   node.FSType,
				Options:  node.Options,
				Strategy: MountStrategy(node.Target, node.FSType),
			})
			flatten(node.Children)
		}
	}
	flatten(payload.Filesystems)
}

// mountNode mirrors findmnt's nested JSON tree.
type mountNode struct {
	Target   string      `json:"target"`
	Source   string      `json:"source"`
	FSType   string      `json:"fstype"`
	Options  string      `json:"options"`
	Children []mountNode `json:"children"`
}

func (s *StorageInspector) collectLVM(c *Context, section *types.StorageSection) {
	res, err := c.Exec.Run(c.Ctx, []string{"lvs", "--reportformat", "json", "--units", "g"})
	if err != nil || !res.OK() {
		return
	}
	var payload struct {
		Report []struct {
			LV []struct {
				LVName string `json:"lv_name"`
				VGName string `json:"vg_name"`
				LVSize string `json:"lv_size"`
			} `json:"lv"`
		} `json:"report"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &payload); err != nil {
		return
	}
	for _, report := range payload.Report {
		for _, lv := range report.LV {
			section.LogicalVolumes = append(section.LogicalVolumes, types.LogicalVolume{
				Name: lv.LVName, Group: lv.VGName, Size: lv.LVSize,
			})
		}
	}
}

func (s *StorageInspector) collectAutomount(c *Context, section *types.StorageSection) {
	master := c.Host("etc", "auto.master")
	if exists(master) {
		section.Mounts = append(section.Mounts, types.Mount{
			Target:   "automount",
			Source:   "etc/auto.master",
			FSType:   "autofs",
			Options:  truncate(strings.TrimSpace(safeRead(master)), 500),
			Strategy: "review — automount maps need per-map migration decisions",
		})
	}
	for _, e := range safeList(c.Host("etc")) {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "auto.") && e.Name() != "auto.master" {
			section.Mounts = append(section.Mounts, types.Mount{
				Target:   "automount (" + e.Name() + ")",
				Source:   "etc/" + e.Name(),
				FSType:   "autofs",
				Strategy: "review — automount maps need per-map migration decisions",
			})
		}
	}
}

func (s *StorageInspector) collectBlockSpecial(c *Context, section *types.StorageSection) {
	if exists(c.Host("etc", "iscsi", "initiatorname.iscsi")) {
		section.Mounts = append(section.Mounts, types.Mount{
			Target: "iSCSI", Source: "etc/iscsi/initiatorname.iscsi", FSType: "iscsi",
			Strategy: "deploy-time — initiator identity belongs in provisioning, not the image",
		})
	}
	if exists(c.Host("etc", "multipath.conf")) {
		section.Mounts = append(section.Mounts, types.Mount{
			Target: "multipath", Source: "etc/multipath.conf", FSType: "dm-multipath",
			Strategy: "review — multipath topology is host-specific",
		})
	}
}

// surveyVar walks the mutable state root, estimating sizes (walk capped at
// 10 MB per directory) and attaching a migration recommendation.
func (s *StorageInspector) surveyVar(c *Context) []types.VarDirectory {
	var results []types.VarDirectory
	for _, scan := range varScanDirs {
		base := c.Host(scan.dir)
		for _, e := range safeList(base) {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if scan.dir == "var/lib" {
				if _, skip := varLibSkip[e.Name()]; skip {
					continue
				}
			}
			dir := filepath.Join(base, e.Name())
			hasFile, size := estimateSize(dir, 10*1024*1024)
			if !hasFile {
				continue
			}
			rel := scan.dir + "/" + e.Name()
			results = append(results, types.VarDirectory{
				Path:           rel,
				SizeEstimate:   humanSize(size),
				Recommendation: varRecommendation(rel, scan.category),
			})
		}
	}
	return results
}

func estimateSize(dir string, limit int64) (bool, int64) {
	hasFile := false
	var total int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		hasFile = true
		total += info.Size()
		if total > limit {
			return filepath.SkipAll
		}
		return nil
	})
	return hasFile, total
}

func humanSize(n int64) string {
	switch {
	case n > 1<<30:
		return fmt.Sprintf("~%.1f GB", float64(n)/(1<<30))
	case n > 1<<20:
		return fmt.Sprintf("~%.0f MB", float64(n)/(1<<20))
	case n > 1<<10:
		return fmt.Sprintf("~%.0f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func varRecommendation(path, category string) string {
	p := "/" + path
	lower := strings.ToLower(p)
	switch {
	case strings.Contains(p, "mysql"), strings.Contains(p, "pgsql"),
		strings.Contains(p, "postgres"), strings.Contains(p, "mongodb"),
		strings.Contains(p, "mariadb"):
		return "PVC / volume mount — database storage, must persist independently"
	case strings.Contains(p, "containers"), strings.Contains(p, "docker"):
		return "PVC / volume mount — container storage"
	case strings.HasPrefix(p, "/var/log"):
		return "PVC / volume mount — log retention (or ship to external logging)"
	case strings.HasPrefix(p, "/var/www"):
		return "Image-embedded or PVC — depends on whether content is static"
	case strings.Contains(lower, "cache"):
		return "Ephemeral — rebuilds on next run, no migration needed"
	case strings.Contains(p, "spool"):
		return "PVC / volume mount — spool data (mail, print, at jobs)"
	default:
		return "PVC / volume mount — " + category + ", review application needs"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
