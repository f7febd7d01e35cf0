package render

import (
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"github.com/marrusl/yoinkc/pkg/types"
)

// htmlPage is the single self-contained dashboard: styles and scripts are
// inlined, no external fetches.
const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Migration Report — {{.Hostname}}</title>
<style>
:root {
  --bg: #f6f7f9; --card: #ffffff; --ink: #1c2733; --muted: #5b6b7b;
  --accent: #2563eb; --error: #dc2626; --warn: #d97706; --info: #0891b2;
  --border: #e2e8f0;
}
* { box-sizing: border-box; }
body { margin: 0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
       background: var(--bg); color: var(--ink); }
header { background: var(--card); border-bottom: 1px solid var(--border);
         padding: 1.2rem 2rem; }
header h1 { margin: 0 0 .3rem; font-size: 1.4rem; }
header .sub { color: var(--muted); font-size: .9rem; }
.banner { display: flex; gap: 1rem; padding: 1rem 2rem; flex-wrap: wrap; }
.stat { background: var(--card); border: 1px solid var(--border); border-radius: 8px;
        padding: .8rem 1.2rem; min-width: 120px; }
.stat .num { font-size: 1.6rem; font-weight: 700; }
.stat .label { color: var(--muted); font-size: .8rem; text-transform: uppercase; }
.stat.error .num { color: var(--error); }
.stat.warn .num { color: var(--warn); }
.stat.info .num { color: var(--info); }
main { padding: 0 2rem 2rem; }
.warning-panel { background: var(--card); border: 1px solid var(--warn);
                 border-radius: 8px; padding: 1rem; margin-bottom: 1.5rem; }
.warning-panel h3 { margin-top: 0; }
.warning { display: flex; justify-content: space-between; align-items: baseline;
           padding: .4rem 0; border-bottom: 1px solid var(--border); gap: 1rem; }
.warning:last-child { border-bottom: none; }
.warning .sev { font-weight: 700; text-transform: uppercase; font-size: .75rem;
                padding: .1rem .5rem; border-radius: 4px; color: #fff; }
.sev-error { background: var(--error); }
.sev-warn { background: var(--warn); }
.sev-info { background: var(--info); }
.warning button { border: none; background: transparent; color: var(--muted);
                  cursor: pointer; font-size: 1rem; }
.cards { display: grid; grid-template-columns: repeat(auto-fill, minmax(280px, 1fr));
         gap: 1rem; }
.card { background: var(--card); border: 1px solid var(--border); border-radius: 8px;
        padding: 1rem; }
.card h3 { margin: 0 0 .4rem; font-size: 1rem; }
.card .count { color: var(--accent); font-weight: 700; }
.card .hint { color: var(--muted); font-size: .85rem; }
details { margin-top: .6rem; }
summary { cursor: pointer; color: var(--accent); font-size: .9rem; }
table { width: 100%; border-collapse: collapse; margin-top: .6rem; font-size: .85rem; }
th, td { text-align: left; padding: .35rem .5rem; border-bottom: 1px solid var(--border); }
th { color: var(--muted); font-weight: 600; }
code { background: var(--bg); padding: .1rem .3rem; border-radius: 3px; font-size: .85em; }
</style>
</head>
<body>
<header>
  <h1>Image Migration Report</h1>
  <div class="sub">{{.Hostname}} — {{.OSDesc}} → <code>{{.TargetImage}}</code> — inspected {{.Inspected}}</div>
</header>

<div class="banner">
  <div class="stat error"><div class="num">{{.ErrorCount}}</div><div class="label">Errors</div></div>
  <div class="stat warn"><div class="num">{{.WarnCount}}</div><div class="label">Warnings</div></div>
  <div class="stat info"><div class="num">{{.InfoCount}}</div><div class="label">Info</div></div>
  <div class="stat"><div class="num">{{.FixmeCount}}</div><div class="label">FIXMEs</div></div>
  <div class="stat"><div class="num">{{.RedactionCount}}</div><div class="label">Redactions</div></div>
</div>

<main>
{{if .Warnings}}
<div class="warning-panel" id="warning-panel">
  <h3>Warnings</h3>
  {{range $i, $w := .Warnings}}
  <div class="warning" id="warning-{{$i}}">
    <span><span class="sev sev-{{$w.Severity}}">{{$w.Severity}}</span>
      <strong>{{$w.Source}}</strong> {{$w.Message}}{{if $w.Action}} — <em>{{$w.Action}}</em>{{end}}</span>
    <button onclick="dismiss({{$i}})" title="Dismiss">&times;</button>
  </div>
  {{end}}
</div>
{{end}}

<div class="cards">
{{range .Cards}}
  <div class="card">
    <h3>{{.Title}}</h3>
    <div><span class="count">{{.Count}}</span> <span class="hint">{{.Hint}}</span></div>
    {{if .Rows}}
    <details>
      <summary>Details</summary>
      <table>
        <tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
        {{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}
      </table>
    </details>
    {{end}}
  </div>
{{end}}
</div>
</main>

<script>
function dismiss(i) {
  var el = document.getElementById("warning-" + i);
  if (el) { el.style.display = "none"; }
  var panel = document.getElementById("warning-panel");
  if (panel) {
    var visible = panel.querySelectorAll(".warning:not([style*='display: none'])");
    if (visible.length === 0) { panel.style.display = "none"; }
  }
}
</script>
</body>
</html>
`

type htmlCard struct {
	Title   string
	Count   int
	Hint    string
	Headers []string
	Rows    [][]string
}

type htmlView struct {
	Hostname       string
	OSDesc         string
	TargetImage    string
	Inspected      string
	ErrorCount     int
	WarnCount      int
	InfoCount      int
	FixmeCount     int
	RedactionCount int
	Warnings       []types.Warning
	Cards          []htmlCard
}

func buildHTMLView(s *types.Snapshot, outputDir string) htmlView {
	view := htmlView{
		Hostname:       orDash(s.Host.Hostname),
		OSDesc:         orDash(s.Host.PrettyName),
		Inspected:      s.Host.InspectedAt.Format("2006-01-02 15:04 UTC"),
		TargetImage:    "-",
		Warnings:       s.Warnings,
		FixmeCount:     len(extractFixmes(outputDir)),
		RedactionCount: len(s.SecretsReview),
	}
	if s.Target != nil {
		view.TargetImage = s.Target.Image
	}
	for _, warn := range s.Warnings {
		switch warn.Severity {
		case types.SeverityError:
			view.ErrorCount++
		case types.SeverityWarn:
			view.WarnCount++
		case types.SeverityInfo:
			view.InfoCount++
		}
	}

	if s.Packages != nil {
		card := htmlCard{
			Title:   "Packages",
			Count:   len(s.Packages.Added),
			Hint:    "added beyond base image",
			Headers: []string{"Package", "Version", "Arch"},
		}
		for _, p := range s.Packages.Added {
			card.Rows = append(card.Rows, []string{p.Name, p.Version + "-" + p.Release, p.Arch})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Services != nil {
		card := htmlCard{
			Title:   "Services",
			Hint:    "units diverging from defaults",
			Headers: []string{"Unit", "Current", "Default", "Action"},
		}
		for _, st := range s.Services.States {
			if st.Action == types.ActionNone {
				continue
			}
			card.Count++
			card.Rows = append(card.Rows, []string{st.Unit, string(st.Current), string(st.Default), string(st.Action)})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Configs != nil {
		card := htmlCard{
			Title:   "Config Files",
			Count:   len(s.Configs.Files),
			Hint:    "captured (modified / unowned / orphaned)",
			Headers: []string{"Path", "Kind", "Package"},
		}
		for _, f := range s.Configs.Files {
			card.Rows = append(card.Rows, []string{f.Path, string(f.Kind), orDash(f.Package)})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Network != nil {
		card := htmlCard{
			Title:   "Network",
			Count:   len(s.Network.Connections),
			Hint:    "connection profiles; DNS " + orDash(string(s.Network.DNS)),
			Headers: []string{"Profile", "Method"},
		}
		for _, conn := range s.Network.Connections {
			card.Rows = append(card.Rows, []string{conn.Name, string(conn.Method)})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Storage != nil {
		card := htmlCard{
			Title:   "Storage",
			Count:   len(s.Storage.VarDirectories),
			Hint:    "/var directories needing migration decisions",
			Headers: []string{"Directory", "Size", "Recommendation"},
		}
		for _, d := range s.Storage.VarDirectories {
			card.Rows = append(card.Rows, []string{"/" + d.Path, d.SizeEstimate, d.Recommendation})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Scheduled != nil {
		card := htmlCard{
			Title:   "Scheduled Tasks",
			Count:   len(s.Scheduled.GeneratedTimers),
			Hint:    "cron entries converted to timers",
			Headers: []string{"Timer", "Schedule", "Command"},
		}
		for _, g := range s.Scheduled.GeneratedTimers {
			card.Rows = append(card.Rows, []string{g.Name, g.OnCalendar, g.Command})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Container != nil {
		card := htmlCard{
			Title:   "Containers",
			Count:   len(s.Container.Quadlets) + len(s.Container.ComposeFiles),
			Hint:    "quadlet units and compose files",
			Headers: []string{"Source", "Image"},
		}
		for _, q := range s.Container.Quadlets {
			card.Rows = append(card.Rows, []string{q.Name, orDash(q.Image)})
		}
		for _, cf := range s.Container.ComposeFiles {
			for _, svc := range cf.Services {
				card.Rows = append(card.Rows, []string{cf.Path + " (" + svc.Service + ")", svc.Image})
			}
		}
		view.Cards = append(view.Cards, card)
	}

	if s.NonRPM != nil {
		card := htmlCard{
			Title:   "Non-Package Software",
			Count:   len(s.NonRPM.Items),
			Hint:    "artifacts outside the package manager",
			Headers: []string{"Path", "Provenance", "Confidence"},
		}
		for _, item := range s.NonRPM.Items {
			card.Rows = append(card.Rows, []string{"/" + item.Path, string(item.Provenance), string(item.Confidence)})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Kernel != nil {
		card := htmlCard{
			Title:   "Kernel",
			Count:   len(s.Kernel.SysctlOverrides),
			Hint:    "non-default sysctl values",
			Headers: []string{"Key", "Runtime", "Default"},
		}
		for _, o := range s.Kernel.SysctlOverrides {
			card.Rows = append(card.Rows, []string{o.Key, o.Runtime, orDash(o.Default)})
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Security != nil {
		nonDefault := 0
		for _, bo := range s.Security.Booleans {
			if bo.NonDefault {
				nonDefault++
			}
		}
		card := htmlCard{
			Title: "Security Policy",
			Count: len(s.Security.CustomModules) + nonDefault,
			Hint:  fmt.Sprintf("mode %s; %d custom modules, %d non-default booleans", orDash(s.Security.Mode), len(s.Security.CustomModules), nonDefault),
		}
		view.Cards = append(view.Cards, card)
	}

	if s.Users != nil {
		card := htmlCard{
			Title:   "Users",
			Count:   len(s.Users.Users),
			Hint:    "non-system accounts",
			Headers: []string{"User", "UID", "Home"},
		}
		for _, user := range s.Users.Users {
			card.Rows = append(card.Rows, []string{user.Name, fmt.Sprintf("%d", user.UID), user.Home})
		}
		view.Cards = append(view.Cards, card)
	}

	card := htmlCard{
		Title:   "Secrets Review",
		Count:   len(s.SecretsReview),
		Hint:    "redaction events",
		Headers: []string{"Path", "Class", "Location"},
	}
	for _, event := range s.SecretsReview {
		card.Rows = append(card.Rows, []string{event.Path, event.Pattern, event.Line})
	}
	view.Cards = append(view.Cards, card)

	return view
}

// WriteHTMLReport writes the self-contained report.html dashboard.
func WriteHTMLReport(s *types.Snapshot, outputDir string) error {
	tmpl, err := template.New("report").Parse(htmlPage)
	if err != nil {
		return err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, buildHTMLView(s, outputDir)); err != nil {
		return err
	}
	return writeFile(filepath.Join(outputDir, "report.html"), b.String())
}
