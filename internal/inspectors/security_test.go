package inspectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/hostexec"
)

func TestSecurityModeAndModules(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/selinux/config", "SELINUX=enforcing\nSELINUXTYPE=targeted\n")
	writeHostFile(t, hostRoot, "etc/selinux/targeted/active/modules/400/myapp/cil", "(block myapp)\n")
	writeHostFile(t, hostRoot, "etc/selinux/targeted/active/modules/400/other/cil", "(block other)\n")
	writeHostFile(t, hostRoot, "etc/audit/rules.d/audit.rules", "-w /etc/passwd -p wa\n")
	writeHostFile(t, hostRoot, "proc/sys/crypto/fips_enabled", "1\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&SecurityInspector{}).Run(c))

	section := c.Snapshot.Security
	assert.Equal(t, "enforcing", section.Mode)
	assert.Equal(t, []string{"myapp", "other"}, section.CustomModules)
	assert.Equal(t, []string{"etc/audit/rules.d/audit.rules"}, section.AuditRules)
	assert.True(t, section.FIPSMode)
}

func TestSecurityBooleansViaSemanage(t *testing.T) {
	hostRoot := t.TempDir()
	fake := hostexec.NewFake()
	fake.On("chroot "+hostRoot+" semanage boolean -l", hostexec.Result{Stdout: `SELinux boolean                State  Default Description
httpd_can_network_connect      (on   ,  off)  Allow httpd to connect to the network
httpd_enable_cgi               (on   ,   on)  Allow httpd cgi support
`})

	c := newTestContext(t, hostRoot, fake)
	require.NoError(t, (&SecurityInspector{}).Run(c))

	booleans := map[string]bool{}
	for _, b := range c.Snapshot.Security.Booleans {
		booleans[b.Name] = b.NonDefault
	}
	assert.True(t, booleans["httpd_can_network_connect"])
	assert.False(t, booleans["httpd_enable_cgi"])
}

func TestSecurityBooleanFilesystemFallback(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "sys/fs/selinux/booleans/httpd_can_network_connect", "1 0")
	writeHostFile(t, hostRoot, "sys/fs/selinux/booleans/httpd_enable_cgi", "1 1")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&SecurityInspector{}).Run(c))

	require.Len(t, c.Snapshot.Security.Booleans, 1)
	b := c.Snapshot.Security.Booleans[0]
	assert.Equal(t, "httpd_can_network_connect", b.Name)
	assert.Equal(t, "on", b.Current)
	assert.True(t, b.NonDefault)
}

func TestSecurityFcontextFallbackFile(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/selinux/targeted/contexts/files/file_contexts.local",
		"# local customizations\n/opt/app(/.*)? system_u:object_r:httpd_sys_content_t:s0\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&SecurityInspector{}).Run(c))

	require.Len(t, c.Snapshot.Security.FContextRules, 1)
	assert.Contains(t, c.Snapshot.Security.FContextRules[0], "/opt/app")
}
