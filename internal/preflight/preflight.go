// Package preflight checks the container environment for the flags the
// privilege bridge needs: rootful, --pid=host, --privileged, and an
// unconfined SELinux label. The checks apply only when inspecting through a
// mounted host root.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const capSysAdmin = 21

// Checker reads /proc state. ProcRoot is overridable for tests.
type Checker struct {
	ProcRoot string
}

// New returns a checker against the real /proc.
func New() *Checker { return &Checker{ProcRoot: "/proc"} }

func (c *Checker) read(parts ...string) (string, error) {
	data, err := os.ReadFile(filepath.Join(append([]string{c.ProcRoot}, parts...)...))
	return string(data), err
}

// InUserNamespace reports whether uid 0 maps to an unprivileged host uid.
func (c *Checker) InUserNamespace() bool {
	text, err := c.read("self", "uid_map")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		parts := strings.Fields(line)
		if len(parts) >= 3 && parts[0] == "0" && parts[1] != "0" {
			return true
		}
	}
	return false
}

func (c *Checker) checkRootful() string {
	if !c.InUserNamespace() {
		return ""
	}
	hostUID := "?"
	if text, err := c.read("self", "uid_map"); err == nil {
		if parts := strings.Fields(text); len(parts) >= 2 {
			hostUID = parts[1]
		}
	}
	return fmt.Sprintf("container is running rootless (uid 0 maps to host uid %s); run with: sudo podman run …", hostUID)
}

func (c *Checker) checkPIDHost() string {
	data, err := c.read("1", "cmdline")
	if err != nil {
		return ""
	}
	argv0 := strings.SplitN(data, "\x00", 2)[0]
	base := filepath.Base(argv0)
	switch base {
	case "systemd", "init", "launchd":
		return ""
	}
	if argv0 == "/sbin/init" || argv0 == "/usr/lib/systemd/systemd" {
		return ""
	}
	return fmt.Sprintf("PID namespace is not shared (PID 1 is %q, expected host init); add --pid=host", base)
}

func (c *Checker) checkPrivileged() string {
	text, err := c.read("self", "status")
	if err != nil {
		return ""
	}
	var capEff string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "CapEff:") {
			capEff = strings.TrimSpace(strings.TrimPrefix(line, "CapEff:"))
			break
		}
	}
	if capEff == "" {
		return ""
	}
	bits, err := strconv.ParseUint(capEff, 16, 64)
	if err != nil {
		return ""
	}
	if bits&(1<<capSysAdmin) != 0 {
		return ""
	}
	return "container is missing CAP_SYS_ADMIN (needed for nsenter); add --privileged"
}

func (c *Checker) checkSELinuxLabel() string {
	text, err := c.read("self", "attr", "current")
	if err != nil {
		return ""
	}
	context := strings.TrimRight(strings.TrimSpace(text), "\x00")
	if context == "" || strings.Contains(context, "unconfined") {
		return ""
	}
	if strings.Contains(context, "container_t") {
		return fmt.Sprintf("container is confined by SELinux (%s); add --security-opt label=disable", context)
	}
	return ""
}

// Check runs all preflight checks. An empty slice means all passed.
func (c *Checker) Check() []string {
	var errs []string
	for _, check := range []func() string{
		c.checkRootful, c.checkPIDHost, c.checkPrivileged, c.checkSELinuxLabel,
	} {
		if msg := check(); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}
