package types

import (
	"errors"
	"strings"
	"time"
)

// SchemaVersion is bumped whenever the snapshot JSON shape changes in a way
// that older readers cannot ignore.
const SchemaVersion = 2

// Snapshot is the canonical document produced by the inspection half and
// consumed by the renderers. Every section pointer is optional; nil means
// "not inspected". Once sealed by the redaction pass the snapshot is
// read-only; renderers never mutate it.
type Snapshot struct {
	SchemaVersion int `json:"schema_version"`

	Host     HostInfo      `json:"host"`
	Target   *TargetImage  `json:"target,omitempty"`
	Baseline *BaselineInfo `json:"baseline,omitempty"`

	Packages  *PackageSection   `json:"packages,omitempty"`
	Services  *ServiceSection   `json:"services,omitempty"`
	Configs   *ConfigSection    `json:"configs,omitempty"`
	Network   *NetworkSection   `json:"network,omitempty"`
	Storage   *StorageSection   `json:"storage,omitempty"`
	Scheduled *ScheduledSection `json:"scheduled,omitempty"`
	Container *ContainerSection `json:"containers,omitempty"`
	NonRPM    *NonRPMSection    `json:"non_package,omitempty"`
	Kernel    *KernelSection    `json:"kernel,omitempty"`
	Security  *SecuritySection  `json:"security,omitempty"`
	Users     *UserSection      `json:"users,omitempty"`

	Warnings      []Warning   `json:"warnings,omitempty"`
	SecretsReview []Redaction `json:"secrets_review,omitempty"`

	// Sealed is set by the redaction pass. Renderers refuse unsealed snapshots.
	Sealed bool `json:"sealed"`
}

// HostInfo identifies the inspected host.
type HostInfo struct {
	Hostname     string    `json:"hostname"`
	RunID        string    `json:"run_id"`
	OSID         string    `json:"os_id"`
	OSName       string    `json:"os_name"`
	PrettyName   string    `json:"pretty_name,omitempty"`
	VersionID    string    `json:"version_id"`
	Version      string    `json:"version,omitempty"`
	IDLike       string    `json:"id_like,omitempty"`
	Architecture string    `json:"architecture,omitempty"`
	InspectedAt  time.Time `json:"inspected_at"`
}

// Major returns the major component of the host version ("9.4" -> "9").
func (h HostInfo) Major() string {
	if h.VersionID == "" {
		return ""
	}
	return strings.SplitN(h.VersionID, ".", 2)[0]
}

// TargetResolution records how the target image reference was chosen.
type TargetResolution string

const (
	TargetAuto     TargetResolution = "auto"
	TargetFlag     TargetResolution = "flag"
	TargetOverride TargetResolution = "override"
)

// TargetImage is the resolved base image the host delta is computed against.
type TargetImage struct {
	Image      string           `json:"image"`
	Resolution TargetResolution `json:"resolution"`
	CrossMajor bool             `json:"cross_major"`
}

// BaselineMode describes how the baseline was obtained.
type BaselineMode string

const (
	// BaselineQueried means the target base image was run and asked directly.
	BaselineQueried BaselineMode = "queried"
	// BaselineSupplied means an operator-provided package list was loaded.
	BaselineSupplied BaselineMode = "supplied"
	// BaselineEmpty is all-packages mode: every installed package is treated
	// as operator-added.
	BaselineEmpty BaselineMode = "all-packages"
)

// BaselineInfo is the resolved baseline, embedded in the snapshot so that
// re-render mode needs no network.
type BaselineInfo struct {
	Mode           BaselineMode `json:"mode"`
	PackageNames   []string     `json:"package_names,omitempty"`
	PresetEnabled  []string     `json:"preset_enabled,omitempty"`
	PresetDisabled []string     `json:"preset_disabled,omitempty"`
	// DisableAll is set when the preset files carry a trailing "disable *".
	DisableAll bool `json:"disable_all,omitempty"`
}

// HasPackage reports whether the baseline contains the named package.
func (b *BaselineInfo) HasPackage(name string) bool {
	for _, n := range b.PackageNames {
		if n == name {
			return true
		}
	}
	return false
}

// PackageNameSet returns the baseline package names as a set.
func (b *BaselineInfo) PackageNameSet() map[string]struct{} {
	set := make(map[string]struct{}, len(b.PackageNames))
	for _, n := range b.PackageNames {
		set[n] = struct{}{}
	}
	return set
}

// Validate checks the structural invariants that must hold before rendering.
func (s *Snapshot) Validate() error {
	if s.SchemaVersion == 0 {
		return errors.New("snapshot schema_version is required")
	}
	if s.Host.InspectedAt.IsZero() {
		return errors.New("snapshot inspection timestamp is required")
	}
	if s.Packages != nil {
		added := make(map[string]struct{}, len(s.Packages.Added))
		for _, p := range s.Packages.Added {
			added[p.Name] = struct{}{}
		}
		for _, p := range s.Packages.Removed {
			if _, ok := added[p.Name]; ok {
				return errors.New("package " + p.Name + " appears in both added and removed")
			}
		}
	}
	for _, w := range s.Warnings {
		if !w.Severity.Valid() {
			return errors.New("warning for " + w.Source + " has invalid severity " + string(w.Severity))
		}
		if w.Source == "" {
			return errors.New("warning without a source inspector: " + w.Message)
		}
	}
	return nil
}
