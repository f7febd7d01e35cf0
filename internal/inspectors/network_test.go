package inspectors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/pkg/types"
)

func TestConnectionClassification(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/NetworkManager/system-connections/static0.nmconnection",
		"[connection]\nid=static0\ntype=ethernet\n\n[ipv4]\nmethod=manual\naddress1=10.0.0.5/24\n")
	writeHostFile(t, hostRoot, "etc/NetworkManager/system-connections/dhcp0.nmconnection",
		"[connection]\nid=dhcp0\ntype=ethernet\n\n[ipv4]\nmethod=auto\n")
	writeHostFile(t, hostRoot, "etc/sysconfig/network-scripts/ifcfg-eth1",
		"DEVICE=eth1\nBOOTPROTO=none\nIPADDR=192.168.1.10\n")
	writeHostFile(t, hostRoot, "etc/sysconfig/network-scripts/route-eth1",
		"10.10.0.0/16 via 192.168.1.1\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NetworkInspector{}).Run(c))

	methods := map[string]types.ConnectionMethod{}
	for _, conn := range c.Snapshot.Network.Connections {
		methods[conn.Name] = conn.Method
	}
	assert.Equal(t, types.MethodStatic, methods["static0"])
	assert.Equal(t, types.MethodDynamic, methods["dhcp0"])
	assert.Equal(t, types.MethodStatic, methods["eth1"], "BOOTPROTO=none is static")

	require.Len(t, c.Snapshot.Network.StaticRoutes, 1)
	assert.Equal(t, "eth1", c.Snapshot.Network.StaticRoutes[0].Name)
}

func TestFirewallZoneParsing(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/firewalld/zones/public.xml", `<?xml version="1.0" encoding="utf-8"?>
<zone>
  <short>Public</short>
  <service name="ssh"/>
  <service name="https"/>
  <port port="8443" protocol="tcp"/>
  <rule family="ipv4"><source address="10.0.0.0/8"/><accept/></rule>
</zone>
`)

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NetworkInspector{}).Run(c))

	require.Len(t, c.Snapshot.Network.FirewallZones, 1)
	zone := c.Snapshot.Network.FirewallZones[0]
	assert.Equal(t, "public", zone.Name)
	assert.Equal(t, []string{"ssh", "https"}, zone.Services)
	assert.Equal(t, []string{"8443/tcp"}, zone.Ports)
	assert.Len(t, zone.RichRules, 1)
}

// Hand-edited resolver scenario: a plain file with no header signature.
func TestDNSHandEditedWarns(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/resolv.conf", "nameserver 10.0.0.2\nsearch corp.example\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NetworkInspector{}).Run(c))

	assert.Equal(t, types.DNSHandEdited, c.Snapshot.Network.DNS)
	warned := false
	for _, warn := range c.Warnings.All() {
		if warn.Source == "network" && warn.Severity == types.SeverityWarn {
			warned = true
		}
	}
	assert.True(t, warned, "hand-edited resolv.conf must raise a warning")
}

func TestDNSSymlinkProvenance(t *testing.T) {
	hostRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(hostRoot, "etc"), 0o755))
	require.NoError(t, os.Symlink("/run/systemd/resolve/stub-resolv.conf",
		filepath.Join(hostRoot, "etc/resolv.conf")))

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NetworkInspector{}).Run(c))
	assert.Equal(t, types.DNSResolved, c.Snapshot.Network.DNS)
}

func TestDNSHeaderSignature(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/resolv.conf", "# Generated by NetworkManager\nnameserver 192.168.1.1\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NetworkInspector{}).Run(c))
	assert.Equal(t, types.DNSNetworkManager, c.Snapshot.Network.DNS)
}

func TestHostsAdditionsFilterStockLines(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/hosts",
		"127.0.0.1 localhost localhost.localdomain\n::1 localhost\n10.1.2.3 app.internal app\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NetworkInspector{}).Run(c))

	require.Len(t, c.Snapshot.Network.HostsAdditions, 1)
	assert.Contains(t, c.Snapshot.Network.HostsAdditions[0], "app.internal")
}

func TestRouteDefaultFiltering(t *testing.T) {
	hostRoot := t.TempDir()
	fake := hostexec.NewFake()
	fake.On("ip route show", hostexec.Result{Stdout: `default via 192.168.1.1 dev eth0
10.0.0.0/8 via 192.168.1.254 dev eth0
192.168.1.0/24 dev eth0 proto kernel scope link
`})
	fake.On("ip rule show", hostexec.Result{Stdout: `0:	from all lookup local
100:	from 10.1.0.0/16 lookup vpn
32766:	from all lookup main
32767:	from all lookup default
`})

	c := newTestContext(t, hostRoot, fake)
	require.NoError(t, (&NetworkInspector{}).Run(c))

	require.Len(t, c.Snapshot.Network.Routes, 1)
	assert.Contains(t, c.Snapshot.Network.Routes[0], "10.0.0.0/8")
	require.Len(t, c.Snapshot.Network.Rules, 1)
	assert.Contains(t, c.Snapshot.Network.Rules[0], "vpn")
}

func TestProxyCollection(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/environment", "http_proxy=http://proxy.corp:3128\nEDITOR=vim\n")
	writeHostFile(t, hostRoot, "etc/dnf/dnf.conf", "[main]\nproxy=http://proxy.corp:3128\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&NetworkInspector{}).Run(c))

	sources := map[string]bool{}
	for _, p := range c.Snapshot.Network.Proxy {
		sources[p.Source] = true
	}
	assert.True(t, sources["etc/environment"])
	assert.True(t, sources["etc/dnf/dnf.conf"])
	assert.Len(t, c.Snapshot.Network.Proxy, 2)
}
