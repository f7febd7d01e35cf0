package inspectors

import (
	"strconv"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// System accounts live below this threshold and ship with packages; only
// operator-created accounts belong in the recipe.
const systemIDThreshold = 1000

// UserInspector captures non-system users and groups as raw account-database
// lines, plus sudoers rules and authorized_keys references (never contents).
type UserInspector struct{}

func (u *UserInspector) Name() string            { return "users" }
func (u *UserInspector) DependsOnBaseline() bool { return false }

func (u *UserInspector) Run(c *Context) error {
	section := &types.UserSection{}
	c.Snapshot.Users = section

	keepUsers := u.collectUsers(c, section)
	keepGroups := u.collectGroups(c, section)
	u.collectAppendLines(c, section, keepUsers, keepGroups)
	u.collectSudoers(c, section)
	u.collectSSHKeyRefs(c, section)
	return nil
}

func (u *UserInspector) collectUsers(c *Context, section *types.UserSection) map[string]struct{} {
	keep := map[string]struct{}{}
	for _, line := range strings.Split(safeRead(c.Host("etc", "passwd")), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil || uid < systemIDThreshold || fields[0] == "nobody" {
			continue
		}
		gid, _ := strconv.Atoi(fields[3])
		section.Users = append(section.Users, types.UserRecord{
			Name: fields[0], UID: uid, GID: gid, Home: fields[5], Shell: fields[6],
		})
		keep[fields[0]] = struct{}{}
	}
	return keep
}

func (u *UserInspector) collectGroups(c *Context, section *types.UserSection) map[string]struct{} {
	keep := map[string]struct{}{}
	for _, line := range strings.Split(safeRead(c.Host("etc", "group")), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 3 {
			continue
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil || gid < systemIDThreshold || fields[0] == "nobody" {
			continue
		}
		section.Groups = append(section.Groups, types.GroupRecord{Name: fields[0], GID: gid})
		keep[fields[0]] = struct{}{}
	}
	return keep
}

// collectAppendLines captures the raw account-database lines for the kept
// accounts; the recipe concatenates them onto the image's own files instead
// of re-creating accounts with different IDs.
func (u *UserInspector) collectAppendLines(c *Context, section *types.UserSection, users, groups map[string]struct{}) {
	pick := func(path string, keep map[string]struct{}) []string {
		var lines []string
		for _, line := range strings.Split(safeRead(c.Host("etc", path)), "\n") {
			name, _, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			if _, ok := keep[name]; ok {
				lines = append(lines, line)
			}
		}
		return lines
	}
	section.PasswdEntries = pick("passwd", users)
	section.ShadowEntries = pick("shadow", users)
	section.GroupEntries = pick("group", groups)
	section.GshadowEntries = pick("gshadow", groups)
	section.SubUIDEntries = pick("subuid", users)
	section.SubGIDEntries = pick("subgid", users)

	if len(section.Users) > 0 && len(section.ShadowEntries) == 0 {
		c.Info(u.Name(), "shadow entries unreadable — password hashes will not carry into the image")
	}
}

func (u *UserInspector) collectSudoers(c *Context, section *types.UserSection) {
	collect := func(text string) {
		for _, raw := range strings.Split(text, "\n") {
			line := strings.TrimSpace(raw)
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "Defaults") {
				continue
			}
			// Stock rules ship with the sudo package.
			if line == "root ALL=(ALL) ALL" || line == "%wheel ALL=(ALL) ALL" ||
				line == "root\tALL=(ALL) \tALL" || line == "%wheel\tALL=(ALL)\tALL" {
				continue
			}
			section.SudoersRules = append(section.SudoersRules, line)
		}
	}
	collect(safeRead(c.Host("etc", "sudoers")))
	for _, e := range safeList(c.Host("etc", "sudoers.d")) {
		if !e.IsDir() {
			collect(safeRead(c.Host("etc", "sudoers.d", e.Name())))
		}
	}
}

// collectSSHKeyRefs records where authorized_keys files live without carrying
// key material; keys are injected at deploy time, never baked into images.
func (u *UserInspector) collectSSHKeyRefs(c *Context, section *types.UserSection) {
	for _, user := range section.Users {
		if user.Home == "" || user.Home == "/" {
			continue
		}
		path := c.Host(strings.TrimPrefix(user.Home, "/"), ".ssh", "authorized_keys")
		if exists(path) {
			section.SSHKeyRefs = append(section.SSHKeyRefs, types.SSHKeyRef{
				User: user.Name,
				Path: strings.TrimPrefix(user.Home, "/") + "/.ssh/authorized_keys",
			})
		}
	}
	if exists(c.Host("root", ".ssh", "authorized_keys")) {
		section.SSHKeyRefs = append(section.SSHKeyRefs, types.SSHKeyRef{
			User: "root", Path: "root/.ssh/authorized_keys",
		})
	}
}
