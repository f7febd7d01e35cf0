package inspectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/pkg/types"
)

func TestCronToCalendar(t *testing.T) {
	tests := []struct {
		expr      string
		want      string
		converted bool
	}{
		{"0 3 * * *", "*-*-* 03:00:00", true},
		{"30 2 * * *", "*-*-* 02:30:00", true},
		{"*/5 * * * *", "*-*-* *:*/5:00", true},
		{"0 0 1 * *", "*-*-1 00:00:00", true},
		{"15 4 * * 1", "Mon *-*-* 04:15:00", true},
		{"0 9-17 * * *", "*-*-* 9..17:00:00", true},
		{"0 8 * * 1,5", "1,5 *-*-* 08:00:00", true},
		{"@daily", "*-*-* 00:00:00", true},
		{"@hourly", "*-*-* *:00:00", true},
		{"@weekly", "Mon *-*-* 00:00:00", true},
		{"@reboot", "@reboot", false},
		{"bogus", "*-*-* 02:00:00", false},
	}
	for _, tt := range tests {
		got, converted := CronToCalendar(tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
		assert.Equal(t, tt.converted, converted, tt.expr)
	}
}

// The crontab entry "0 3 * * * root /usr/local/bin/backup.sh" produces a
// timer with OnCalendar=*-*-* 03:00:00 and a paired service whose ExecStart
// is the script.
func TestCronToTimerConversion(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/crontab",
		"SHELL=/bin/bash\n0 3 * * * root /usr/local/bin/backup.sh\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&ScheduledInspector{}).Run(c))

	section := c.Snapshot.Scheduled
	require.Len(t, section.GeneratedTimers, 1)
	gen := section.GeneratedTimers[0]
	assert.Equal(t, "*-*-* 03:00:00", gen.OnCalendar)
	assert.True(t, gen.Converted)
	assert.Equal(t, "/usr/local/bin/backup.sh", gen.Command)
	assert.Contains(t, gen.TimerContent, "OnCalendar=*-*-* 03:00:00")
	assert.Contains(t, gen.TimerContent, "WantedBy=timers.target")
	assert.Contains(t, gen.ServiceContent, "ExecStart=/usr/local/bin/backup.sh")
	assert.Contains(t, gen.ServiceContent, "Type=oneshot")

	require.Len(t, section.CronJobs, 1)
	assert.Equal(t, "0 3 * * *", section.CronJobs[0].Schedule)
	assert.Equal(t, "root", section.CronJobs[0].User)
}

func TestUserSpoolCrontabHasNoUserField(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "var/spool/cron/alice", "30 1 * * * /home/alice/backup.sh\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&ScheduledInspector{}).Run(c))

	section := c.Snapshot.Scheduled
	require.Len(t, section.GeneratedTimers, 1)
	assert.Equal(t, "/home/alice/backup.sh", section.GeneratedTimers[0].Command)
}

func TestCronPeriodDirs(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/cron.daily/logrotate", "#!/bin/sh\nlogrotate /etc/logrotate.conf\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&ScheduledInspector{}).Run(c))

	section := c.Snapshot.Scheduled
	require.Len(t, section.GeneratedTimers, 1)
	gen := section.GeneratedTimers[0]
	assert.Equal(t, "cron-daily-logrotate", gen.Name)
	assert.Equal(t, "*-*-* 03:00:00", gen.OnCalendar)
	assert.Equal(t, "/etc/cron.daily/logrotate", gen.Command)
}

func TestExistingTimersLabelledBySource(t *testing.T) {
	hostRoot := t.TempDir()
	writeHostFile(t, hostRoot, "etc/systemd/system/backup.timer",
		"[Unit]\nDescription=Nightly backup\n[Timer]\nOnCalendar=*-*-* 01:00:00\n[Install]\nWantedBy=timers.target\n")
	writeHostFile(t, hostRoot, "etc/systemd/system/backup.service",
		"[Unit]\nDescription=Nightly backup\n[Service]\nExecStart=/opt/backup/run.sh\n")
	writeHostFile(t, hostRoot, "usr/lib/systemd/system/fstrim.timer",
		"[Unit]\nDescription=Discard unused blocks\n[Timer]\nOnCalendar=weekly\n")

	c := newTestContext(t, hostRoot, hostexec.NewFake())
	require.NoError(t, (&ScheduledInspector{}).Run(c))

	timers := map[string]types.TimerUnit{}
	for _, timer := range c.Snapshot.Scheduled.Timers {
		timers[timer.Name] = timer
	}
	require.Contains(t, timers, "backup")
	require.Contains(t, timers, "fstrim")
	assert.Equal(t, "local", timers["backup"].Source)
	assert.Equal(t, "vendor", timers["fstrim"].Source)
	assert.Equal(t, "*-*-* 01:00:00", timers["backup"].OnCalendar)
	assert.Equal(t, "/opt/backup/run.sh", timers["backup"].ExecStart)
}

func TestParseAtJob(t *testing.T) {
	text := `#!/bin/sh
# atrun uid=0 gid=0
# mail root 0
umask 22
cd /root || {
	 echo 'Execution directory inaccessible' >&2
	 exit 1
}
/usr/local/bin/oneoff.sh --flag
`
	job := parseAtJob("var/spool/at/a00001", text)
	assert.Equal(t, "root", job.User)
	assert.Equal(t, "/root", job.WorkingDir)
	assert.Contains(t, job.Command, "/usr/local/bin/oneoff.sh --flag")
}
