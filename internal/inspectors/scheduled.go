package inspectors

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	systemdunit "github.com/coreos/go-systemd/v22/unit"

	"github.com/marrusl/yoinkc/pkg/types"
)

// ScheduledInspector captures cron entries, existing timer units, and
// pending at-jobs, converting cron schedules to calendar-expression timers.
type ScheduledInspector struct{}

func (s *ScheduledInspector) Name() string            { return "scheduled" }
func (s *ScheduledInspector) DependsOnBaseline() bool { return false }

// cronShortcuts maps named schedules to calendar expressions.
var cronShortcuts = map[string]string{
	"@yearly":   "*-01-01 00:00:00",
	"@annually": "*-01-01 00:00:00",
	"@monthly":  "*-*-01 00:00:00",
	"@weekly":   "Mon *-*-* 00:00:00",
	"@daily":    "*-*-* 00:00:00",
	"@midnight": "*-*-* 00:00:00",
	"@hourly":   "*-*-* *:00:00",
}

var dowNames = map[string]string{
	"0": "Sun", "1": "Mon", "2": "Tue", "3": "Wed",
	"4": "Thu", "5": "Fri", "6": "Sat", "7": "Sun",
}

// periodSchedules spread the cron.{period} script directories across fixed
// calendar slots, matching anacron's stock timing.
var periodSchedules = map[string]string{
	"hourly":  "*-*-* *:01:00",
	"daily":   "*-*-* 03:00:00",
	"weekly":  "Mon *-*-* 03:00:00",
	"monthly": "*-*-01 03:00:00",
}

func cronFieldToCalendar(field, kind string) string {
	if field == "*" {
		return "*"
	}
	if step, ok := strings.CutPrefix(field, "*/"); ok {
		if _, err := strconv.Atoi(step); err == nil {
			switch kind {
			case "minute":
				return "*/" + step
			case "hour":
				return "00/" + step
			}
		}
		return field
	}
	if strings.Contains(field, "-") && !strings.Contains(field, "/") {
		lo, hi, _ := strings.Cut(field, "-")
		if _, err1 := strconv.Atoi(lo); err1 == nil {
			if _, err2 := strconv.Atoi(hi); err2 == nil {
				return lo + ".." + hi
			}
		}
	}
	if strings.Contains(field, ",") {
		return field
	}
	if kind == "dow" {
		if name, ok := dowNames[field]; ok {
			return name
		}
	}
	if n, err := strconv.Atoi(field); err == nil {
		if kind == "minute" || kind == "hour" {
			return twoDigits(n)
		}
		return field
	}
	return field
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// CronToCalendar converts a 5-field cron expression to a systemd OnCalendar
// value. converted is false when a fallback was used and the result needs
// operator review.
func CronToCalendar(expr string) (calendar string, converted bool) {
	expr = strings.TrimSpace(expr)
	lower := strings.ToLower(expr)
	if cal, ok := cronShortcuts[lower]; ok {
		return cal, true
	}
	if lower == "@reboot" {
		return "@reboot", false
	}
	parts := strings.Fields(expr)
	if len(parts) < 5 {
		return "*-*-* 02:00:00", false
	}
	minute := cronFieldToCalendar(parts[0], "minute")
	hour := cronFieldToCalendar(parts[1], "hour")
	dom := cronFieldToCalendar(parts[2], "dom")
	month := cronFieldToCalendar(parts[3], "month")
	dow := cronFieldToCalendar(parts[4], "dow")

	datePart := "*-" + month + "-" + dom
	timePart := hour + ":" + minute + ":00"
	if dow != "*" {
		return dow + " " + datePart + " " + timePart, true
	}
	return datePart + " " + timePart, true
}

func serializeUnit(opts []*systemdunit.UnitOption) string {
	data, err := io.ReadAll(systemdunit.Serialize(opts))
	if err != nil {
		return ""
	}
	return string(data)
}

// makeTimerPair builds the .timer/.service contents for one cron entry.
func makeTimerPair(name, cronExpr, sourcePath, command string) types.GeneratedTimer {
	calendar, converted := CronToCalendar(cronExpr)

	var prefix string
	if !converted {
		if calendar == "@reboot" {
			prefix = "# FIXME: @reboot has no OnCalendar equivalent.\n" +
				"# Use a oneshot service with WantedBy=multi-user.target instead.\n"
			calendar = "*-*-* 02:00:00"
		} else {
			prefix = "# FIXME: cron expression '" + cronExpr + "' could not be fully converted.\n" +
				"# Review and correct the OnCalendar value below.\n"
		}
	}

	timer := prefix + serializeUnit([]*systemdunit.UnitOption{
		systemdunit.NewUnitOption("Unit", "Description", "Converted from cron: "+sourcePath+" ("+cronExpr+")"),
		systemdunit.NewUnitOption("Timer", "OnCalendar", calendar),
		systemdunit.NewUnitOption("Timer", "Persistent", "true"),
		systemdunit.NewUnitOption("Install", "WantedBy", "timers.target"),
	})

	execStart := command
	servicePrefix := ""
	if execStart == "" {
		execStart = "/bin/true"
		servicePrefix = "# FIXME: could not extract command from cron entry\n"
	}
	service := servicePrefix + serializeUnit([]*systemdunit.UnitOption{
		systemdunit.NewUnitOption("Unit", "Description", "Converted from cron: "+sourcePath),
		systemdunit.NewUnitOption("Service", "Type", "oneshot"),
		systemdunit.NewUnitOption("Service", "ExecStart", execStart),
	})

	return types.GeneratedTimer{
		Name:           name,
		CronExpr:       cronExpr,
		SourcePath:     sourcePath,
		Command:        command,
		OnCalendar:     calendar,
		Converted:      converted,
		TimerContent:   timer,
		ServiceContent: service,
	}
}

var cronLineRe = regexp.MustCompile(`^[\d*@]`)

func (s *ScheduledInspector) Run(c *Context) error {
	section := &types.ScheduledSection{}
	c.Snapshot.Scheduled = section

	s.scanCron(c, section)
	s.scanPeriodDirs(c, section)
	s.scanSpool(c, section)
	s.scanTimers(c, section)
	s.scanAtJobs(c, section)
	return nil
}

// scanCronFile parses one crontab-format file. System crontabs carry a user
// field between the schedule and the command; user spool files do not.
func (s *ScheduledInspector) scanCronFile(c *Context, section *types.ScheduledSection, rel, source string, hasUserField bool) {
	text := safeRead(c.Host(rel))
	if text == "" {
		section.CronJobs = append(section.CronJobs, types.CronJob{Path: rel, Source: source})
		return
	}
	found := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || !cronLineRe.MatchString(line) {
			continue
		}
		parts := strings.Fields(line)
		var expr, user, command string
		if strings.HasPrefix(line, "@") {
			expr = parts[0]
			rest := parts[1:]
			if hasUserField && len(rest) > 0 {
				user, rest = rest[0], rest[1:]
			}
			command = strings.Join(rest, " ")
		} else {
			if len(parts) < 6 {
				continue
			}
			expr = strings.Join(parts[:5], " ")
			rest := parts[5:]
			if hasUserField {
				user, rest = rest[0], rest[1:]
			}
			command = strings.Join(rest, " ")
		}
		found = true
		section.CronJobs = append(section.CronJobs, types.CronJob{
			Path: rel, Source: source, Schedule: expr, User: user, Command: command,
		})
		base := strings.ReplaceAll(strings.TrimSuffix(lastPathElement(rel), "/"), ".", "-")
		section.GeneratedTimers = append(section.GeneratedTimers,
			makeTimerPair("cron-"+base, expr, rel, command))
	}
	if !found {
		section.CronJobs = append(section.CronJobs, types.CronJob{Path: rel, Source: source})
	}
}

func lastPathElement(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func (s *ScheduledInspector) scanCron(c *Context, section *types.ScheduledSection) {
	for _, e := range safeList(c.Host("etc", "cron.d")) {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			s.scanCronFile(c, section, "etc/cron.d/"+e.Name(), "cron.d", true)
		}
	}
	if exists(c.Host("etc", "crontab")) {
		s.scanCronFile(c, section, "etc/crontab", "crontab", true)
	}
}

func (s *ScheduledInspector) scanPeriodDirs(c *Context, section *types.ScheduledSection) {
	for _, period := range []string{"hourly", "daily", "weekly", "monthly"} {
		for _, e := range safeList(c.Host("etc", "cron."+period)) {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			rel := "etc/cron." + period + "/" + e.Name()
			section.CronJobs = append(section.CronJobs, types.CronJob{
				Path: rel, Source: "cron." + period, Command: "/" + rel,
			})
			name := "cron-" + period + "-" + strings.ReplaceAll(e.Name(), ".", "-")
			gen := makeTimerPair(name, "@"+period, rel, "/"+rel)
			// Period scripts run on anacron's fixed slots, not midnight.
			gen.OnCalendar = periodSchedules[period]
			gen.Converted = true
			gen.TimerContent = serializeUnit([]*systemdunit.UnitOption{
				systemdunit.NewUnitOption("Unit", "Description", "Converted from cron."+period+": "+rel),
				systemdunit.NewUnitOption("Timer", "OnCalendar", gen.OnCalendar),
				systemdunit.NewUnitOption("Timer", "Persistent", "true"),
				systemdunit.NewUnitOption("Install", "WantedBy", "timers.target"),
			})
			section.GeneratedTimers = append(section.GeneratedTimers, gen)
		}
	}
}

func (s *ScheduledInspector) scanSpool(c *Context, section *types.ScheduledSection) {
	for _, e := range safeList(c.Host("var", "spool", "cron")) {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			s.scanCronFile(c, section, "var/spool/cron/"+e.Name(), "spool/cron ("+e.Name()+")", false)
		}
	}
}

// scanTimers collects existing .timer units and their .service pairs,
// labelled local or vendor by directory.
func (s *ScheduledInspector) scanTimers(c *Context, section *types.ScheduledSection) {
	for _, scan := range []struct{ dir, label string }{
		{"etc/systemd/system", "local"},
		{"usr/lib/systemd/system", "vendor"},
	} {
		for _, e := range safeList(c.Host(scan.dir)) {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".timer") {
				continue
			}
			timerPath := scan.dir + "/" + e.Name()
			timerText := safeRead(c.Host(timerPath))
			if timerText == "" {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".timer")
			servicePath := scan.dir + "/" + name + ".service"
			serviceText := safeRead(c.Host(servicePath))
			section.Timers = append(section.Timers, types.TimerUnit{
				Name:           name,
				OnCalendar:     unitField(timerText, "OnCalendar"),
				ExecStart:      unitField(serviceText, "ExecStart"),
				Description:    unitField(timerText, "Description"),
				Source:         scan.label,
				Path:           timerPath,
				TimerContent:   timerText,
				ServiceContent: serviceText,
			})
		}
	}
}

// unitField extracts the first value of field= from a unit file.
func unitField(text, field string) string {
	reader := strings.NewReader(text)
	opts, err := systemdunit.Deserialize(reader)
	if err == nil {
		for _, opt := range opts {
			if opt.Name == field {
				return opt.Value
			}
		}
		return ""
	}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if value, ok := strings.CutPrefix(line, field+"="); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var atUIDRe = regexp.MustCompile(`# atrun uid=(\d+)`)

func (s *ScheduledInspector) scanAtJobs(c *Context, section *types.ScheduledSection) {
	for _, e := range safeList(c.Host("var", "spool", "at")) {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rel := "var/spool/at/" + e.Name()
		section.AtJobs = append(section.AtJobs, parseAtJob(rel, safeRead(c.Host(rel))))
	}
}

// parseAtJob extracts the command, user, and working directory from an at
// spool file, skipping the shell preamble at writes.
func parseAtJob(rel, text string) types.AtJob {
	job := types.AtJob{File: rel}
	if text == "" {
		return job
	}
	inPreamble := true
	var commands []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if m := atUIDRe.FindStringSubmatch(line); m != nil {
			job.User = "uid=" + m[1]
		}
		if strings.HasPrefix(line, "# mail ") {
			if fields := strings.Fields(line); len(fields) >= 3 {
				job.User = fields[2]
			}
		}
		if inPreamble && strings.HasPrefix(line, "cd ") {
			dir := strings.Fields(line)[1]
			job.WorkingDir = strings.TrimSpace(strings.Split(dir, "||")[0])
			continue
		}
		if inPreamble && (line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "umask") || strings.Contains(line, "export") ||
			strings.HasPrefix(line, "SHELL=") || strings.HasPrefix(line, "exit") ||
			line == "}" || (strings.HasPrefix(line, "echo") && strings.Contains(line, "inaccessible"))) {
			continue
		}
		inPreamble = false
		if line != "" {
			commands = append(commands, line)
		}
	}
	job.Command = strings.Join(commands, "; ")
	return job
}
