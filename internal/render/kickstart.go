package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// RenderKickstart produces the deploy-time provisioning fragment: the
// settings that belong at deployment, not baked into the image.
func RenderKickstart(s *types.Snapshot) string {
	var b strings.Builder
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	w("# Kickstart suggestion — review and adapt for your environment")
	w("# These settings belong at deploy time, not baked into the image.")
	w("")

	net := s.Network
	if net != nil {
		var dynamic, static []types.Connection
		for _, conn := range net.Connections {
			if conn.Method == types.MethodStatic {
				static = append(static, conn)
			} else {
				dynamic = append(dynamic, conn)
			}
		}
		if len(dynamic) > 0 {
			w("# --- Dynamic connections (deploy-time config) ---")
			for _, conn := range dynamic {
				w("network --bootproto=dhcp --device=%s", conn.Name)
			}
			w("")
		}
		if len(static) > 0 {
			w("# --- Static connections (baked into image — shown for reference) ---")
			for _, conn := range static {
				w("# network --bootproto=static --device=%s  # already in image", conn.Name)
			}
			w("")
		}
		if len(net.HostsAdditions) > 0 {
			w("# --- /etc/hosts additions detected ---")
			for _, h := range net.HostsAdditions {
				w("# %s", h)
			}
			w("")
		}
		if net.DNS != "" {
			w("# --- DNS configuration (%s) ---", net.DNS)
			w("# network --nameserver=<DNS_IP>")
			w("")
		}
		if len(net.Proxy) > 0 {
			w("# --- Proxy settings detected ---")
			for _, p := range net.Proxy {
				w("# %s", p.Line)
			}
			w("")
		}
		if len(net.StaticRoutes) > 0 {
			w("# --- Static route files detected ---")
			w("# These were active on the source host. Add to an NM connection or kickstart.")
			for _, route := range net.StaticRoutes {
				w("# route file: %s (interface %s)", route.Path, route.Name)
			}
			w("")
		}
		if len(net.Rules) > 0 {
			w("# --- Policy routing rules detected ---")
			for i, rule := range net.Rules {
				if i >= 10 {
					break
				}
				w("# ip rule: %s", rule)
			}
			w("")
		}
	}

	if s.Host.Hostname != "" {
		w("# network --hostname=%s", s.Host.Hostname)
		w("")
	}

	if s.Storage != nil {
		var swap, network []types.FstabEntry
		for _, entry := range s.Storage.Fstab {
			switch {
			case entry.FSType == "swap":
				swap = append(swap, entry)
			case entry.FSType == "nfs" || entry.FSType == "nfs4" || entry.FSType == "cifs":
				network = append(network, entry)
			}
		}
		if len(swap) > 0 {
			w("# --- Swap detected on source host ---")
			for _, entry := range swap {
				w("# swap device: %s", entry.Device)
			}
			w("")
		}
		if len(network) > 0 {
			w("# --- Network mounts: reattach at deploy time ---")
			for _, entry := range network {
				w("# mount %s at %s (%s)", entry.Device, entry.MountPoint, entry.FSType)
			}
			w("")
		}
	}

	if s.Users != nil && len(s.Users.SSHKeyRefs) > 0 {
		w("# --- SSH keys: inject at deploy time, never bake into the image ---")
		w("# %%post")
		for _, ref := range s.Users.SSHKeyRefs {
			w("# install authorized_keys for %s (source: %s)", ref.User, ref.Path)
		}
		w("# %%end")
		w("")
	}

	return b.String()
}

// WriteKickstart writes kickstart-suggestion.ks.
func WriteKickstart(s *types.Snapshot, outputDir string) error {
	return writeFile(filepath.Join(outputDir, "kickstart-suggestion.ks"), RenderKickstart(s))
}
