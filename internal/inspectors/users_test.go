package inspectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/hostexec"
)

const passwdFixture = `root:x:0:0:root:/root:/bin/bash
bin:x:1:1:bin:/bin:/sbin/nologin
svcapp:x:1001:1001::/home/svcapp:/bin/bash
nobody:x:65534:65534:Kernel Overflow User:/:/sbin/nologin
`

const groupFixture = `root:x:0:
wheel:x:10:svcapp
svcapp:x:1001:
`

func TestUserInspectorSystemAccountsFiltered(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/passwd", passwdFixture)
	writeHostFile(t, hostRoot, "etc/group", groupFixture)
	writeHostFile(t, hostRoot, "etc/shadow", "root:$6$r:19000::::::\nsvcapp:$6$h:19000::::::\n")
	writeHostFile(t, hostRoot, "etc/subuid", "svcapp:100000:65536\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&UserInspector{}).Run(c))

	section := c.Snapshot.Users
	require.Len(t, section.Users, 1)
	assert.Equal(t, "svcapp", section.Users[0].Name)
	assert.Equal(t, 1001, section.Users[0].UID)

	require.Len(t, section.Groups, 1)
	assert.Equal(t, "svcapp", section.Groups[0].Name)

	assert.Equal(t, []string{"svcapp:x:1001:1001::/home/svcapp:/bin/bash"}, section.PasswdEntries)
	assert.Equal(t, []string{"svcapp:$6$h:19000::::::"}, section.ShadowEntries)
	assert.Equal(t, []string{"svcapp:x:1001:"}, section.GroupEntries)
	assert.Equal(t, []string{"svcapp:100000:65536"}, section.SubUIDEntries)
}

func TestSudoersStockRulesFiltered(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/passwd", passwdFixture)
	writeHostFile(t, hostRoot, "etc/group", groupFixture)
	writeHostFile(t, hostRoot, "etc/sudoers",
		"Defaults env_reset\nroot ALL=(ALL) ALL\n%wheel ALL=(ALL) ALL\nsvcapp ALL=(ALL) NOPASSWD: /usr/bin/systemctl restart app\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&UserInspector{}).Run(c))

	require.Len(t, c.Snapshot.Users.SudoersRules, 1)
	assert.Contains(t, c.Snapshot.Users.SudoersRules[0], "svcapp")
}

func TestSSHKeyRefsNeverCarryContent(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/passwd", passwdFixture)
	writeHostFile(t, hostRoot, "etc/group", groupFixture)
	writeHostFile(t, hostRoot, "home/svcapp/.ssh/authorized_keys", "ssh-ed25519 AAAAC3Nza... user@host\n")
	writeHostFile(t, hostRoot, "root/.ssh/authorized_keys", "ssh-rsa AAAAB3Nza... root@host\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&UserInspector{}).Run(c))

	refs := c.Snapshot.Users.SSHKeyRefs
	require.Len(t, refs, 2)
	users := map[string]string{}
	for _, ref := range refs {
		users[ref.User] = ref.Path
	}
	assert.Equal(t, "home/svcapp/.ssh/authorized_keys", users["svcapp"])
	assert.Equal(t, "root/.ssh/authorized_keys", users["root"])
}
