// Package baseline resolves the target base image and queries it for the
// package list and systemd preset defaults the host delta is computed
// against.
package baseline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/internal/nsenter"
	"github.com/marrusl/yoinkc/pkg/types"
)

// Minimum bootc-supported release per RHEL major; older hosts are clamped up.
var rhelMinimum = map[string]string{"9": "9.6", "10": "10.0"}

var centosStreamImages = map[string]string{
	"9":  "quay.io/centos-bootc/centos-bootc:stream9",
	"10": "quay.io/centos-bootc/centos-bootc:stream10",
}

// DefaultFallbackImage is used when nothing better can be resolved, so
// renderers always have a usable FROM line.
const DefaultFallbackImage = "registry.redhat.io/rhel9/rhel-bootc:9.6"

func clampVersion(version, minimum string) string {
	cmp := func(s string) ([]int, bool) {
		var out []int
		for _, part := range strings.Split(s, ".") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	v, okV := cmp(version)
	m, okM := cmp(minimum)
	if !okV || !okM {
		return minimum
	}
	for i := 0; i < len(v) && i < len(m); i++ {
		if v[i] < m[i] {
			return minimum
		}
		if v[i] > m[i] {
			return version
		}
	}
	if len(v) < len(m) {
		return minimum
	}
	return version
}

// SelectImage maps the host OS identity to the bootc base image reference.
// targetVersion overrides the auto-detected version. Returns ("", "") when
// the OS is unmapped.
func SelectImage(osID, versionID, targetVersion string) (image, effective string) {
	osID = strings.ToLower(osID)
	major := ""
	if versionID != "" {
		major = strings.SplitN(versionID, ".", 2)[0]
	}

	if osID == "rhel" {
		if min, ok := rhelMinimum[major]; ok {
			eff := versionID
			if targetVersion != "" {
				eff = targetVersion
			}
			eff = clampVersion(eff, min)
			return fmt.Sprintf("registry.redhat.io/rhel%s/rhel-bootc:%s", major, eff), eff
		}
	}
	if strings.Contains(osID, "centos") {
		if img, ok := centosStreamImages[major]; ok {
			return img, major
		}
	}
	if osID == "fedora" && major != "" {
		return "quay.io/fedora/fedora-bootc:" + major, versionID
	}
	return "", ""
}

// ResolveTarget picks the image reference per the priority chain:
// explicit image override > version override mapped via the distribution
// table > auto mapping from host identity.
func ResolveTarget(host types.HostInfo, targetVersion, targetImage string) *types.TargetImage {
	if targetImage != "" {
		return &types.TargetImage{
			Image:      targetImage,
			Resolution: types.TargetOverride,
			CrossMajor: crossMajor(host, targetImage),
		}
	}
	image, _ := SelectImage(host.OSID, host.VersionID, targetVersion)
	if image == "" {
		image = DefaultFallbackImage
	}
	res := types.TargetAuto
	if targetVersion != "" {
		res = types.TargetFlag
	}
	return &types.TargetImage{
		Image:      image,
		Resolution: res,
		CrossMajor: crossMajor(host, image),
	}
}

func crossMajor(host types.HostInfo, image string) bool {
	hostMajor := host.Major()
	if hostMajor == "" {
		return false
	}
	tag := ""
	if idx := strings.LastIndex(image, ":"); idx >= 0 {
		tag = image[idx+1:]
	}
	tag = strings.TrimPrefix(tag, "stream")
	targetMajor := strings.SplitN(tag, ".", 2)[0]
	return targetMajor != "" && targetMajor != hostMajor
}

// LoadPackagesFile reads a newline-separated package-name list for air-gapped
// environments.
func LoadPackagesFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, line := range strings.Split(string(data), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// ParsePresets parses systemd preset content into explicit enable/disable
// sets. First match wins per unit. Glob rules are skipped, except that
// "disable *" sets disableAll.
func ParsePresets(text string) (enabled, disabled []string, disableAll bool) {
	seen := map[string]struct{}{}
	var en, dis []string
	for _, raw := range strings.Split(text, "\n") {
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
		if _, ok := seen[pattern]; ok {
			continue
		}
		seen[pattern] = struct{}{}
		switch action {
		case "enable":
			en = append(en, pattern)
		case "disable":
			dis = append(dis, pattern)
		}
	}
	sort.Strings(en)
	sort.Strings(dis)
	return en, dis, disableAll
}

// Resolver obtains the baseline for one inspection run.
type Resolver struct {
	Bridge *nsenter.Bridge
	Log    logger.Logger
}

// queryPackages runs the base image via the bridge and asks it for its
// package-name list.
func (r *Resolver) queryPackages(ctx context.Context, image string) ([]string, error) {
	argv := []string{
		"podman", "run", "--rm", "--cgroups=disabled", image,
		"rpm", "-qa", "--queryformat", `%{NAME}\n`,
	}
	res, err := r.Bridge.Run(ctx, argv)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("base image package query exited %d: %s",
			res.ExitCode, firstLine(res.Stderr))
	}
	set := map[string]struct{}{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			set[name] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("base image %s returned no packages", image)
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// queryPresets dumps the base image's concatenated preset files.
func (r *Resolver) queryPresets(ctx context.Context, image string) (string, error) {
	argv := []string{
		"podman", "run", "--rm", "--cgroups=disabled", image,
		"bash", "-c", "cat /usr/lib/systemd/system-preset/*.preset 2>/dev/null || true",
	}
	res, err := r.Bridge.Run(ctx, argv)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("preset query exited %d: %s", res.ExitCode, firstLine(res.Stderr))
	}
	if strings.TrimSpace(res.Stdout) == "" {
		return "", fmt.Errorf("base image %s returned no preset data", image)
	}
	return res.Stdout, nil
}

// Resolve obtains the baseline per the priority chain: supplied file >
// queried base image > empty (all-packages mode). Cross-major transitions
// always warn, regardless of mode.
func (r *Resolver) Resolve(
	ctx context.Context,
	host types.HostInfo,
	target *types.TargetImage,
	packagesFile string,
	sink *types.WarningSink,
) *types.BaselineInfo {
	if target.CrossMajor {
		sink.Add(types.Warning{
			Severity: types.SeverityWarn,
			Source:   "baseline",
			Resource: target.Image,
			Message: fmt.Sprintf("cross-major migration: host %s targets %s; package names, "+
				"service names, and config formats may have changed", host.VersionID, target.Image),
			Action: "review the generated recipe more carefully than a same-version migration",
		})
	}

	if packagesFile != "" {
		names, err := LoadPackagesFile(packagesFile)
		if err == nil && len(names) > 0 {
			r.Log.WithField("count", len(names)).Info("baseline loaded from package list file")
			return &types.BaselineInfo{Mode: types.BaselineSupplied, PackageNames: names}
		}
		sink.Add(types.Warning{
			Severity: types.SeverityWarn,
			Source:   "baseline",
			Resource: packagesFile,
			Message:  "baseline packages file is empty or unreadable; falling back to image query",
		})
	}

	if r.Bridge != nil {
		if probe := r.Bridge.Probe(ctx); probe.OK {
			names, err := r.queryPackages(ctx, target.Image)
			if err == nil {
				info := &types.BaselineInfo{Mode: types.BaselineQueried, PackageNames: names}
				if presets, perr := r.queryPresets(ctx, target.Image); perr == nil {
					info.PresetEnabled, info.PresetDisabled, info.DisableAll = ParsePresets(presets)
				} else {
					sink.Addf(types.SeverityInfo, "baseline",
						"base image preset query failed; service defaults fall back to host preset files: "+perr.Error())
				}
				return info
			}
			r.Log.Error("base image package query failed", err)
		}
	}

	sink.Add(types.Warning{
		Severity: types.SeverityWarn,
		Source:   "baseline",
		Message: "could not obtain a baseline package list; running in all-packages mode — " +
			"every installed package will appear in the recipe",
		Action: "pull the base image on the host first, or supply --baseline-packages FILE",
	})
	return &types.BaselineInfo{Mode: types.BaselineEmpty}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
