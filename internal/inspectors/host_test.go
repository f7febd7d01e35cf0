package inspectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeHost(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/os-release", `NAME="Red Hat Enterprise Linux"
VERSION="9.4 (Plow)"
ID="rhel"
ID_LIKE="fedora"
VERSION_ID="9.4"
PRETTY_NAME="Red Hat Enterprise Linux 9.4 (Plow)"
`)
	writeHostFile(t, hostRoot, "etc/hostname", "web01.example.com\n")

	info, err := ProbeHost(hostRoot)
	require.NoError(t, err)
	assert.Equal(t, "rhel", info.OSID)
	assert.Equal(t, "9.4", info.VersionID)
	assert.Equal(t, "9", info.Major())
	assert.Equal(t, "web01.example.com", info.Hostname)
	assert.Equal(t, "Red Hat Enterprise Linux 9.4 (Plow)", info.PrettyName)
	assert.NotEmpty(t, info.RunID)
	assert.False(t, info.InspectedAt.IsZero())
}

func TestProbeHostMissingOSRelease(t *testing.T) {
	_, err := ProbeHost(t.TempDir())
	assert.Error(t, err, "a host root without os-release is not inspectable")
}

func TestSecretRefInspector(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/shadow", "root:x:\n")
	writeHostFile(t, hostRoot, "etc/ssh/ssh_host_ed25519_key", "PRIVATE\n")
	writeHostFile(t, hostRoot, "etc/pki/tls/private/server.key", "PRIVATE\n")
	writeHostFile(t, hostRoot, "etc/krb5.keytab", "\x05\x02\n")
	writeHostFile(t, hostRoot, "etc/hosts", "127.0.0.1 localhost\n")

	c := newTestContext(t, hostRoot, nil)
	require.NoError(t, (&SecretRefInspector{}).Run(c))

	paths := map[string]bool{}
	for _, event := range c.Snapshot.SecretsReview {
		assert.Equal(t, "EXCLUDED_PATH", event.Pattern)
		assert.Equal(t, "entire file", event.Line)
		paths[event.Path] = true
	}
	assert.True(t, paths["/etc/shadow"])
	assert.True(t, paths["/etc/ssh/ssh_host_ed25519_key"])
	assert.True(t, paths["/etc/pki/tls/private/server.key"])
	assert.True(t, paths["/etc/krb5.keytab"])
	assert.False(t, paths["/etc/hosts"])
}
