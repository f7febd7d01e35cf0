package inspectors

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marrusl/yoinkc/pkg/types"
)

// ProbeHost reads the host's identity from its OS-release file and hostname.
// This is the environment probe; it runs before the baseline resolver.
func ProbeHost(hostRoot string) (types.HostInfo, error) {
	info := types.HostInfo{
		RunID:       uuid.NewString(),
		InspectedAt: time.Now().UTC(),
	}

	osRelease := safeRead(hostRoot + "/etc/os-release")
	if osRelease == "" {
		return info, fmt.Errorf("cannot read %s/etc/os-release — is the host root mounted?", hostRoot)
	}
	fields := parseOSRelease(osRelease)
	info.OSID = fields["ID"]
	info.OSName = fields["NAME"]
	info.PrettyName = fields["PRETTY_NAME"]
	info.VersionID = fields["VERSION_ID"]
	info.Version = fields["VERSION"]
	info.IDLike = fields["ID_LIKE"]

	if hostname := strings.TrimSpace(safeRead(hostRoot + "/etc/hostname")); hostname != "" {
		info.Hostname = strings.SplitN(hostname, "\n", 2)[0]
	}

	// Architecture from the kernel's os-release ARCH is not standard; read
	// the platform from the rpm platform file when present.
	if platform := strings.TrimSpace(safeRead(hostRoot + "/etc/rpm/platform")); platform != "" {
		info.Architecture = strings.SplitN(platform, "-", 2)[0]
	}

	return info, nil
}

func parseOSRelease(text string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		fields[key] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return fields
}
