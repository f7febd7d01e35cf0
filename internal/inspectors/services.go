package inspectors

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// ServiceInspector classifies every unit file's enablement state against the
// base image preset defaults.
type ServiceInspector struct{}

func (s *ServiceInspector) Name() string            { return "services" }
func (s *ServiceInspector) DependsOnBaseline() bool { return true }

// DeriveAction is the pure service state machine. Masked always overrides
// enable/disable; a host-enabled unit absent from the baseline was
// operator-added and must be enabled in the image.
func DeriveAction(current, defaultState types.UnitState) types.ServiceAction {
	switch current {
	case types.UnitMasked:
		return types.ActionMask
	case types.UnitEnabled:
		if defaultState == types.UnitEnabled {
			return types.ActionNone
		}
		return types.ActionEnable
	case types.UnitDisabled:
		if defaultState == types.UnitEnabled {
			return types.ActionDisable
		}
		return types.ActionNone
	default: // static
		return types.ActionNone
	}
}

func (s *ServiceInspector) Run(c *Context) error {
	section := &types.ServiceSection{}
	c.Snapshot.Services = section

	current := s.listUnitFiles(c)
	if len(current) == 0 {
		current = s.scanFilesystem(c)
		if len(current) > 0 {
			c.Info(s.Name(), "systemctl unavailable; unit states derived from filesystem scan")
		}
	}
	if len(current) == 0 {
		c.Info(s.Name(), "no unit files found — service section is empty")
		section.Partial = true
		return nil
	}

	defaults := s.baselineDefaults(c)

	units := make([]string, 0, len(current))
	for unit := range current {
		units = append(units, unit)
	}
	sort.Strings(units)

	for _, unit := range units {
		state := current[unit]
		def := defaults(unit)
		section.States = append(section.States, types.ServiceState{
			Unit:    unit,
			Current: state,
			Default: def,
			Action:  DeriveAction(state, def),
		})
	}
	return nil
}

// baselineDefaults returns a lookup from unit name to its base-image default
// state. Preset data comes from the resolved baseline; when none was
// obtained, the host's own preset files stand in.
func (s *ServiceInspector) baselineDefaults(c *Context) func(string) types.UnitState {
	enabled := map[string]struct{}{}
	disabled := map[string]struct{}{}
	disableAll := false

	b := c.Snapshot.Baseline
	if b != nil && (len(b.PresetEnabled) > 0 || len(b.PresetDisabled) > 0 || b.DisableAll) {
		for _, u := range b.PresetEnabled {
			enabled[u] = struct{}{}
		}
		for _, u := range b.PresetDisabled {
			disabled[u] = struct{}{}
		}
		disableAll = b.DisableAll
	} else {
		en, dis, all := s.hostPresets(c)
		enabled, disabled, disableAll = en, dis, all
		c.Info(s.Name(), "baseline presets unavailable; using host preset files for service defaults")
	}

	return func(unit string) types.UnitState {
		if _, ok := enabled[unit]; ok {
			return types.UnitEnabled
		}
		if _, ok := disabled[unit]; ok {
			return types.UnitDisabled
		}
		if disableAll {
			return types.UnitDisabled
		}
		return types.UnitAbsent
	}
}

func (s *ServiceInspector) hostPresets(c *Context) (map[string]struct{}, map[string]struct{}, bool) {
	enabled := map[string]struct{}{}
	disabled := map[string]struct{}{}
	disableAll := false
	for _, dir := range []string{"etc/systemd/system-preset", "usr/lib/systemd/system-preset"} {
		for _, e := range safeList(c.Host(dir)) {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".preset") {
				continue
			}
			for _, raw := range strings.Split(safeRead(c.Host(dir, e.Name())), "\n") {
				line := strings.TrimSpace(raw)
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				parts := strings.Fields(line)
				if len(parts) < 2 {
					continue
				}
				action, pattern := strings.ToLower(parts[0]), parts[1]
				if strings.ContainsAny(pattern, "*?") {
					if pattern == "*" && action == "disable" {
						disableAll = true
					}
					continue
				}
				if _, seen := enabled[pattern]; seen {
					continue
				}
				if _, seen := disabled[pattern]; seen {
					continue
				}
				switch action {
				case "enable":
					enabled[pattern] = struct{}{}
				case "disable":
					disabled[pattern] = struct{}{}
				}
			}
		}
	}
	return enabled, disabled, disableAll
}

func trackedUnit(name string) bool {
	return strings.HasSuffix(name, ".service") || strings.HasSuffix(name, ".timer")
}

// listUnitFiles is the primary path: systemctl list-unit-files rooted at the
// host filesystem.
func (s *ServiceInspector) listUnitFiles(c *Context) map[string]types.UnitState {
	argv := []string{"systemctl", "list-unit-files", "--no-pager", "--no-legend"}
	if c.HostRoot != "/" {
		argv = []string{"systemctl", "--root", c.HostRoot, "list-unit-files", "--no-pager", "--no-legend"}
	}
	res, err := c.Exec.Run(c.Ctx, argv)
	if err != nil || !res.OK() || strings.TrimSpace(res.Stdout) == "" {
		return nil
	}
	units := map[string]types.UnitState{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 2 || !trackedUnit(parts[0]) {
			continue
		}
		switch parts[1] {
		case "enabled", "enabled-runtime":
			units[parts[0]] = types.UnitEnabled
		case "disabled":
			units[parts[0]] = types.UnitDisabled
		case "masked", "masked-runtime":
			units[parts[0]] = types.UnitMasked
		case "static", "indirect", "generated", "transient":
			units[parts[0]] = types.UnitStatic
		}
	}
	return units
}

// scanFilesystem is the fallback: scan the .wants link farm for enablement,
// detect masks as links to the null device, and use the [Install] stanza to
// distinguish static from disabled.
func (s *ServiceInspector) scanFilesystem(c *Context) map[string]types.UnitState {
	adminDir := c.Host("etc", "systemd", "system")
	vendorDir := c.Host("usr", "lib", "systemd", "system")

	enabled := map[string]struct{}{}
	masked := map[string]struct{}{}

	for _, e := range safeList(adminDir) {
		full := filepath.Join(adminDir, e.Name())
		if e.IsDir() && strings.HasSuffix(e.Name(), ".wants") {
			for _, link := range safeList(full) {
				enabled[link.Name()] = struct{}{}
			}
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if target, err := os.Readlink(full); err == nil && target == "/dev/null" {
				masked[e.Name()] = struct{}{}
			}
		}
	}

	vendor := map[string]struct{}{}
	for _, e := range safeList(vendorDir) {
		if trackedUnit(e.Name()) {
			vendor[e.Name()] = struct{}{}
		}
	}

	units := map[string]types.UnitState{}
	for _, set := range []map[string]struct{}{vendor, enabled, masked} {
		for name := range set {
			if !trackedUnit(name) {
				continue
			}
			if _, ok := masked[name]; ok {
				units[name] = types.UnitMasked
				continue
			}
			if _, ok := enabled[name]; ok {
				units[name] = types.UnitEnabled
				continue
			}
			text := safeRead(filepath.Join(vendorDir, name))
			if strings.Contains(text, "[Install]") {
				units[name] = types.UnitDisabled
			} else {
				units[name] = types.UnitStatic
			}
		}
	}
	return units
}
