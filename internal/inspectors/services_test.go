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

// Service state determinism: every (current, default) pair maps to exactly
// the action given by the state-machine table.
func TestDeriveActionFullTable(t *testing.T) {
	tests := []struct {
		current types.UnitState
		def     types.UnitState
		want    types.ServiceAction
	}{
		{types.UnitEnabled, types.UnitEnabled, types.ActionNone},
		{types.UnitEnabled, types.UnitDisabled, types.ActionEnable},
		{types.UnitEnabled, types.UnitAbsent, types.ActionEnable},
		{types.UnitDisabled, types.UnitEnabled, types.ActionDisable},
		{types.UnitDisabled, types.UnitDisabled, types.ActionNone},
		{types.UnitDisabled, types.UnitAbsent, types.ActionNone},
		{types.UnitMasked, types.UnitEnabled, types.ActionMask},
		{types.UnitMasked, types.UnitDisabled, types.ActionMask},
		{types.UnitMasked, types.UnitAbsent, types.ActionMask},
		{types.UnitStatic, types.UnitEnabled, types.ActionNone},
		{types.UnitStatic, types.UnitDisabled, types.ActionNone},
		{types.UnitStatic, types.UnitAbsent, types.ActionNone},
	}
	for _, tt := range tests {
		got := DeriveAction(tt.current, tt.def)
		assert.Equal(t, tt.want, got, "current=%s default=%s", tt.current, tt.def)
	}
}

func TestServiceInspectorSystemctlPath(t *testing.T) {
	hostRoot := t.TempDir()
	fake := hostexec.NewFake()
	fake.On("systemctl --root", hostexec.Result{Stdout: `UNIT FILE            STATE     PRESET
httpd.service        enabled   disabled
sshd.service         enabled   enabled
cups.service         disabled  enabled
bluetooth.service    masked    enabled
dbus.service         static    -
getty@.service       ignored   -
`})

	c := newTestContext(t, hostRoot, fake)
	c.Snapshot.Baseline = &types.BaselineInfo{
		Mode:          types.BaselineQueried,
		PresetEnabled: []string{"sshd.service", "cups.service", "bluetooth.service"},
	}
	require.NoError(t, (&ServiceInspector{}).Run(c))

	actions := map[string]types.ServiceAction{}
	for _, st := range c.Snapshot.Services.States {
		actions[st.Unit] = st.Action
	}
	assert.Equal(t, types.ActionEnable, actions["httpd.service"], "enabled but absent from presets")
	assert.Equal(t, types.ActionNone, actions["sshd.service"])
	assert.Equal(t, types.ActionDisable, actions["cups.service"])
	assert.Equal(t, types.ActionMask, actions["bluetooth.service"], "masked overrides the enabled default")
	assert.Equal(t, types.ActionNone, actions["dbus.service"])
	_, tracked := actions["getty@.service"]
	assert.False(t, tracked, "unknown states are not tracked")
}

// Masked service scenario: current masked, default enabled, action mask.
func TestServiceMaskedOverridesEnabledDefault(t *testing.T) {
	assert.Equal(t, types.ActionMask, DeriveAction(types.UnitMasked, types.UnitEnabled))
}

func TestServiceFilesystemFallback(t *testing.T) {
	hostRoot := t.TempDir()

	writeHostFile(t, hostRoot, "usr/lib/systemd/system/httpd.service", "[Unit]\n[Service]\n[Install]\nWantedBy=multi-user.target\n")
	writeHostFile(t, hostRoot, "usr/lib/systemd/system/helper.service", "[Unit]\n[Service]\n")
	writeHostFile(t, hostRoot, "usr/lib/systemd/system/cups.service", "[Unit]\n[Service]\n[Install]\nWantedBy=multi-user.target\n")

	wants := filepath.Join(hostRoot, "etc/systemd/system/multi-user.target.wants")
	require.NoError(t, os.MkdirAll(wants, 0o755))
	require.NoError(t, os.Symlink("/usr/lib/systemd/system/httpd.service", filepath.Join(wants, "httpd.service")))
	require.NoError(t, os.Symlink("/dev/null", filepath.Join(hostRoot, "etc/systemd/system/bluetooth.service")))

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	c.Snapshot.Baseline = &types.BaselineInfo{Mode: types.BaselineEmpty}
	require.NoError(t, (&ServiceInspector{}).Run(c))

	states := map[string]types.UnitState{}
	for _, st := range c.Snapshot.Services.States {
		states[st.Unit] = st.Current
	}
	assert.Equal(t, types.UnitEnabled, states["httpd.service"])
	assert.Equal(t, types.UnitStatic, states["helper.service"], "no [Install] stanza means static")
	assert.Equal(t, types.UnitDisabled, states["cups.service"])
	assert.Equal(t, types.UnitMasked, states["bluetooth.service"], "symlink to /dev/null is a mask")
}

func TestServiceHostPresetFallback(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "usr/lib/systemd/system-preset/90-default.preset",
		"enable sshd.service\ndisable cups.service\ndisable *\n")

	fake := hostexec.NewFake()
	fake.On("systemctl --root", hostexec.Result{Stdout: "sshd.service enabled\nhttpd.service enabled\n"})

	c := newTestContext(t, hostRoot, fake)
	c.Snapshot.Baseline = &types.BaselineInfo{Mode: types.BaselineEmpty}
	require.NoError(t, (&ServiceInspector{}).Run(c))

	actions := map[string]types.ServiceAction{}
	defaults := map[string]types.UnitState{}
	for _, st := range c.Snapshot.Services.States {
		actions[st.Unit] = st.Action
		defaults[st.Unit] = st.Default
	}
	assert.Equal(t, types.ActionNone, actions["sshd.service"])
	assert.Equal(t, types.UnitDisabled, defaults["httpd.service"], "disable * catches unlisted units")
	assert.Equal(t, types.ActionEnable, actions["httpd.service"])
}
