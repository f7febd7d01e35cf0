package inspectors

import (
	"encoding/xml"
	"os"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// NetworkInspector captures NetworkManager profiles, firewall state, routing,
// DNS provenance, hosts additions, and proxy configuration.
type NetworkInspector struct{}

func (n *NetworkInspector) Name() string            { return "network" }
func (n *NetworkInspector) DependsOnBaseline() bool { return false }

func (n *NetworkInspector) Run(c *Context) error {
	section := &types.NetworkSection{}
	c.Snapshot.Network = section

	n.collectConnections(c, section)
	n.collectFirewall(c, section)
	n.collectRoutes(c, section)
	n.collectDNS(c, section)
	n.collectHosts(c, section)
	n.collectProxy(c, section)
	return nil
}

// collectConnections classifies NM keyfile profiles: an explicitly fixed
// method is static, anything unspecified or dynamic is dynamic.
func (n *NetworkInspector) collectConnections(c *Context, section *types.NetworkSection) {
	dir := c.Host("etc", "NetworkManager", "system-connections")
	for _, e := range safeList(dir) {
		if e.IsDir() {
			continue
		}
		path := dir + "/" + e.Name()
		text := safeRead(path)
		conn := types.Connection{
			Path:   "etc/NetworkManager/system-connections/" + e.Name(),
			Name:   strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".nmconnection"), ".conf"),
			Method: types.MethodDynamic,
		}
		inIPv4 := false
		inConnection := false
		for _, raw := range strings.Split(text, "\n") {
			line := strings.TrimSpace(raw)
			switch {
			case strings.HasPrefix(line, "["):
				inIPv4 = line == "[ipv4]"
				inConnection = line == "[connection]"
			case inConnection && strings.HasPrefix(line, "type="):
				conn.Type = strings.TrimPrefix(line, "type=")
			case inConnection && strings.HasPrefix(line, "id="):
				conn.Name = strings.TrimPrefix(line, "id=")
			case inIPv4 && strings.HasPrefix(line, "method="):
				if strings.TrimPrefix(line, "method=") == "manual" {
					conn.Method = types.MethodStatic
				}
			}
		}
		section.Connections = append(section.Connections, conn)
	}

	// Legacy ifcfg files carry BOOTPROTO.
	ifcfgDir := c.Host("etc", "sysconfig", "network-scripts")
	for _, e := range safeList(ifcfgDir) {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(name, "route-") {
			section.StaticRoutes = append(section.StaticRoutes, types.StaticRouteFile{
				Path: "etc/sysconfig/network-scripts/" + name,
				Name: strings.TrimPrefix(name, "route-"),
			})
			continue
		}
		if !strings.HasPrefix(name, "ifcfg-") || name == "ifcfg-lo" {
			continue
		}
		text := safeRead(ifcfgDir + "/" + name)
		conn := types.Connection{
			Path:   "etc/sysconfig/network-scripts/" + name,
			Name:   strings.TrimPrefix(name, "ifcfg-"),
			Method: types.MethodDynamic,
		}
		for _, raw := range strings.Split(text, "\n") {
			line := strings.TrimSpace(raw)
			if strings.HasPrefix(line, "BOOTPROTO=") {
				proto := strings.Trim(strings.TrimPrefix(line, "BOOTPROTO="), `"`)
				if proto == "static" || proto == "none" {
					conn.Method = types.MethodStatic
				}
			}
		}
		section.Connections = append(section.Connections, conn)
	}
}

type zoneXML struct {
	Services []struct {
		Name string `xml:"name,attr"`
	} `xml:"service"`
	Ports []struct {
		Port     string `xml:"port,attr"`
		Protocol string `xml:"protocol,attr"`
	} `xml:"port"`
	Rules []struct {
		Raw string `xml:",innerxml"`
	} `xml:"rule"`
}

func (n *NetworkInspector) collectFirewall(c *Context, section *types.NetworkSection) {
	zoneDir := c.Host("etc", "firewalld", "zones")
	for _, e := range safeList(zoneDir) {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		content := safeRead(zoneDir + "/" + e.Name())
		zone := types.FirewallZone{
			Path:    "etc/firewalld/zones/" + e.Name(),
			Name:    strings.TrimSuffix(e.Name(), ".xml"),
			Content: content,
		}
		var parsed zoneXML
		if err := xml.Unmarshal([]byte(content), &parsed); err == nil {
			for _, s := range parsed.Services {
				zone.Services = append(zone.Services, s.Name)
			}
			for _, p := range parsed.Ports {
				zone.Ports = append(zone.Ports, p.Port+"/"+p.Protocol)
			}
			for _, r := range parsed.Rules {
				zone.RichRules = append(zone.RichRules, strings.TrimSpace(r.Raw))
			}
		}
		section.FirewallZones = append(section.FirewallZones, zone)
	}

	directPath := c.Host("etc", "firewalld", "direct.xml")
	if text := safeRead(directPath); text != "" {
		var direct struct {
			Rules []struct {
				IPV      string `xml:"ipv,attr"`
				Table    string `xml:"table,attr"`
				Chain    string `xml:"chain,attr"`
				Priority string `xml:"priority,attr"`
				Args     string `xml:",chardata"`
			} `xml:"rule"`
		}
		if err := xml.Unmarshal([]byte(text), &direct); err == nil {
			for _, r := range direct.Rules {
				section.DirectRules = append(section.DirectRules, types.FirewallDirectRule{
					IPV:      r.IPV,
					Table:    r.Table,
					Chain:    r.Chain,
					Priority: r.Priority,
					Args:     strings.TrimSpace(r.Args),
				})
			}
		}
	}
}

// collectRoutes captures the live route tables with default rules filtered.
func (n *NetworkInspector) collectRoutes(c *Context, section *types.NetworkSection) {
	if res, err := c.Exec.Run(c.Ctx, []string{"ip", "route", "show"}); err == nil && res.OK() {
		for _, line := range strings.Split(res.Stdout, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "default ") {
				continue
			}
			// Kernel-generated per-interface routes are not operator state.
			if strings.Contains(line, "proto kernel") || strings.Contains(line, "proto dhcp") {
				continue
			}
			section.Routes = append(section.Routes, line)
		}
	} else {
		c.Info(n.Name(), "ip route unavailable — route table not captured")
		section.Partial = true
	}

	if res, err := c.Exec.Run(c.Ctx, []string{"ip", "rule", "show"}); err == nil && res.OK() {
		for _, line := range strings.Split(res.Stdout, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			// The three default policy rules ship with every kernel.
			if strings.HasSuffix(line, "lookup local") ||
				strings.HasSuffix(line, "lookup main") ||
				strings.HasSuffix(line, "lookup default") {
				continue
			}
			section.Rules = append(section.Rules, line)
		}
	}
}

// collectDNS determines resolver provenance: follow the symlink, then match
// a header signature, else hand-edited.
func (n *NetworkInspector) collectDNS(c *Context, section *types.NetworkSection) {
	resolvPath := c.Host("etc", "resolv.conf")
	if target, err := os.Readlink(resolvPath); err == nil {
		switch {
		case strings.Contains(target, "systemd"):
			section.DNS = types.DNSResolved
		case strings.Contains(target, "NetworkManager"):
			section.DNS = types.DNSNetworkManager
		default:
			section.DNS = types.DNSHandEdited
		}
		return
	}
	text := safeRead(resolvPath)
	if text == "" {
		return
	}
	switch {
	case strings.Contains(text, "Generated by NetworkManager"):
		section.DNS = types.DNSNetworkManager
	case strings.Contains(text, "systemd-resolved"), strings.Contains(text, "run \"resolvectl status\""):
		section.DNS = types.DNSResolved
	default:
		section.DNS = types.DNSHandEdited
		c.Warn(n.Name(), "resolv.conf is hand-edited — decide whether DNS belongs in the image or at deploy time")
	}
}

func (n *NetworkInspector) collectHosts(c *Context, section *types.NetworkSection) {
	text := safeRead(c.Host("etc", "hosts"))
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Stock localhost lines ship with every install.
		if fields[0] == "127.0.0.1" || fields[0] == "::1" {
			if len(fields) >= 2 && (fields[1] == "localhost" || strings.HasPrefix(fields[1], "localhost.")) {
				continue
			}
		}
		section.HostsAdditions = append(section.HostsAdditions, line)
	}
}

func (n *NetworkInspector) collectProxy(c *Context, section *types.NetworkSection) {
	for _, source := range []string{"etc/environment", "etc/profile.d/proxy.sh"} {
		text := safeRead(c.Host(source))
		for _, raw := range strings.Split(text, "\n") {
			line := strings.TrimSpace(raw)
			lower := strings.ToLower(line)
			if strings.Contains(lower, "http_proxy") || strings.Contains(lower, "https_proxy") ||
				strings.Contains(lower, "no_proxy") || strings.Contains(lower, "ftp_proxy") {
				if !strings.HasPrefix(line, "#") {
					section.Proxy = append(section.Proxy, types.ProxyEntry{Source: source, Line: line})
				}
			}
		}
	}
	for _, source := range []string{"etc/dnf/dnf.conf", "etc/yum.conf"} {
		text := safeRead(c.Host(source))
		for _, raw := range strings.Split(text, "\n") {
			line := strings.TrimSpace(raw)
			if strings.HasPrefix(line, "proxy") && !strings.HasPrefix(line, "#") {
				section.Proxy = append(section.Proxy, types.ProxyEntry{Source: source, Line: line})
			}
		}
	}
}
