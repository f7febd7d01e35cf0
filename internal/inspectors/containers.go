package inspectors

import (
	"encoding/json"
	"strings"

	systemdunit "github.com/coreos/go-systemd/v22/unit"
	"gopkg.in/yaml.v3"

	"github.com/marrusl/yoinkc/pkg/types"
)

// ContainerInspector captures quadlet workload units and compose files, and
// optionally enumerates live containers through the host runtime.
type ContainerInspector struct{}

func (ci *ContainerInspector) Name() string            { return "containers" }
func (ci *ContainerInspector) DependsOnBaseline() bool { return false }

func (ci *ContainerInspector) Run(c *Context) error {
	section := &types.ContainerSection{}
	c.Snapshot.Container = section

	ci.collectQuadlets(c, section)
	ci.collectCompose(c, section)
	if c.Opts.QueryPodman {
		ci.collectLive(c, section)
	}
	return nil
}

func (ci *ContainerInspector) collectQuadlets(c *Context, section *types.ContainerSection) {
	for _, dir := range []string{
		"etc/containers/systemd",
		"usr/share/containers/systemd",
	} {
		for _, e := range safeList(c.Host(dir)) {
			name := e.Name()
			if e.IsDir() {
				continue
			}
			switch {
			case strings.HasSuffix(name, ".container"),
				strings.HasSuffix(name, ".pod"),
				strings.HasSuffix(name, ".volume"),
				strings.HasSuffix(name, ".network"),
				strings.HasSuffix(name, ".kube"):
			default:
				continue
			}
			content := safeRead(c.Host(dir, name))
			section.Quadlets = append(section.Quadlets, types.QuadletUnit{
				Path:    dir + "/" + name,
				Name:    name,
				Content: content,
				Image:   quadletImage(content),
			})
		}
	}
}

// quadletImage extracts the Image= value from a quadlet unit.
func quadletImage(content string) string {
	opts, err := systemdunit.Deserialize(strings.NewReader(content))
	if err == nil {
		for _, opt := range opts {
			if opt.Section == "Container" && opt.Name == "Image" {
				return opt.Value
			}
		}
		return ""
	}
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if value, ok := strings.CutPrefix(line, "Image="); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// composeDoc matches just the parts of a compose file the recipe needs.
type composeDoc struct {
	Services map[string]struct {
		Image string `yaml:"image"`
	} `yaml:"services"`
}

func (ci *ContainerInspector) collectCompose(c *Context, section *types.ContainerSection) {
	for _, root := range []string{"opt", "srv"} {
		for _, pattern := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
			for _, path := range filteredGlob(c.Host(root), pattern) {
				var doc composeDoc
				if err := yaml.Unmarshal([]byte(safeRead(path)), &doc); err != nil {
					c.Info(ci.Name(), "unparseable compose file: "+c.Rel(path))
					continue
				}
				file := types.ComposeFile{Path: c.Rel(path)}
				for name, svc := range doc.Services {
					if svc.Image != "" {
						file.Services = append(file.Services, types.ComposeService{
							Service: name, Image: svc.Image,
						})
					}
				}
				if len(file.Services) > 0 {
					section.ComposeFiles = append(section.ComposeFiles, file)
				}
			}
		}
	}
}

// collectLive enumerates running containers through the host runtime. This
// is the only inspector path that needs the privilege bridge.
func (ci *ContainerInspector) collectLive(c *Context, section *types.ContainerSection) {
	if c.Bridge == nil {
		return
	}
	res, err := c.Bridge.Run(c.Ctx, []string{"podman", "ps", "--format", "json"})
	if err != nil || !res.OK() {
		c.Info(ci.Name(), "live container enumeration unavailable — section marked partial")
		section.Partial = true
		return
	}
	var rows []struct {
		ID     string   `json:"Id"`
		Names  []string `json:"Names"`
		Image  string   `json:"Image"`
		Status string   `json:"Status"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &rows); err != nil {
		c.Info(ci.Name(), "podman ps output unparseable")
		section.Partial = true
		return
	}
	for _, row := range rows {
		live := types.LiveContainer{ID: row.ID, Image: row.Image, Status: row.Status}
		if len(row.Names) > 0 {
			live.Name = row.Names[0]
		}
		if inspect, err := c.Bridge.Run(c.Ctx, []string{"podman", "inspect", row.ID}); err == nil && inspect.OK() {
			var details []struct {
				Config struct {
					Env []string `json:"Env"`
				} `json:"Config"`
			}
			if json.Unmarshal([]byte(inspect.Stdout), &details) == nil && len(details) > 0 {
				live.Env = details[0].Config.Env
			}
		}
		section.Live = append(section.Live, live)
	}
}
