// Package pipeline orchestrates the run: host probe, baseline resolution,
// inspectors, the redaction gate, snapshot materialization, and renderers.
// Preflight checks run in the command layer before the pipeline starts.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marrusl/yoinkc/internal/baseline"
	"github.com/marrusl/yoinkc/internal/config"
	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/inspectors"
	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/internal/nsenter"
	"github.com/marrusl/yoinkc/internal/redact"
	"github.com/marrusl/yoinkc/internal/render"
	"github.com/marrusl/yoinkc/internal/yerrors"
	"github.com/marrusl/yoinkc/pkg/types"
)

// SnapshotFileName is the canonical snapshot artifact name.
const SnapshotFileName = "inspection-snapshot.json"

// Pipeline wires the stages together for one run.
type Pipeline struct {
	Cfg    *config.Config
	Exec   hostexec.Executor
	Bridge *nsenter.Bridge
	Log    logger.Logger
}

// New builds a pipeline with the real executor and bridge.
func New(cfg *config.Config, log logger.Logger) *Pipeline {
	execer := hostexec.NewSystem()
	return &Pipeline{
		Cfg:    cfg,
		Exec:   execer,
		Bridge: nsenter.New(execer, cfg.BridgeTimeout, log),
		Log:    log,
	}
}

// LoadSnapshot reads and validates a previously sealed snapshot.
func LoadSnapshot(path string) (*types.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, yerrors.Wrap(yerrors.KindSnapshot, "cannot read snapshot", err)
	}
	var s types.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, yerrors.Wrap(yerrors.KindSnapshot, "snapshot is not valid JSON", err)
	}
	if err := s.Validate(); err != nil {
		return nil, yerrors.Wrap(yerrors.KindSnapshot, "snapshot failed validation", err)
	}
	return &s, nil
}

// SaveSnapshot writes the snapshot JSON with stable indentation so
// re-rendering from it is byte-identical.
func SaveSnapshot(s *types.Snapshot, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Inspect runs the inspection half: probe, baseline, inspectors, redaction.
// The returned snapshot is sealed.
func (p *Pipeline) Inspect(ctx context.Context) (*types.Snapshot, error) {
	host, err := inspectors.ProbeHost(p.Cfg.HostRoot)
	if err != nil {
		return nil, yerrors.Wrap(yerrors.KindFileSystem, "host probe failed", err)
	}
	p.Log.WithFields(map[string]interface{}{
		"os": host.OSID, "version": host.VersionID, "hostname": host.Hostname,
	}).Info("host identified")

	sink := types.NewWarningSink()
	snapshot := &types.Snapshot{
		SchemaVersion: types.SchemaVersion,
		Host:          host,
	}

	snapshot.Target = baseline.ResolveTarget(host, p.Cfg.TargetVersion, p.Cfg.TargetImage)
	p.Log.WithField("image", snapshot.Target.Image).Info("target base image resolved")

	resolver := &baseline.Resolver{Bridge: p.Bridge, Log: p.Log}
	snapshot.Baseline = resolver.Resolve(ctx, host, snapshot.Target, p.Cfg.BaselinePackages, sink)

	ic := &inspectors.Context{
		Ctx:      ctx,
		HostRoot: p.Cfg.HostRoot,
		Opts: inspectors.Options{
			ConfigDiffs:       p.Cfg.ConfigDiffs,
			DeepBinaryScan:    p.Cfg.DeepBinaryScan,
			QueryPodman:       p.Cfg.QueryPodman,
			ExtraExcludePaths: p.Cfg.ExtraExcludePaths,
			ExtraExcludeGlobs: p.Cfg.ExtraExcludeGlobs,
		},
		Exec:     p.Exec,
		Bridge:   p.Bridge,
		Log:      p.Log,
		Warnings: sink,
		Snapshot: snapshot,
	}

	for _, inspector := range inspectors.All() {
		log := p.Log.WithField("inspector", inspector.Name())
		log.Debug("running")
		if err := inspector.Run(ic); err != nil {
			// Inspectors never abort the pipeline.
			sink.Addf(types.SeverityWarn, inspector.Name(), "inspector failed: "+err.Error())
			log.Error("inspector failed", err)
		}
	}

	snapshot.Warnings = sink.All()

	redactor, err := redact.New(p.Cfg.ExtraExcludePaths...)
	if err != nil {
		return nil, yerrors.Wrap(yerrors.KindRedaction, "redaction setup failed", err)
	}
	redactor.Snapshot(snapshot)
	p.Log.WithField("events", len(snapshot.SecretsReview)).Info("redaction pass complete")

	return snapshot, nil
}

// Run executes the full pipeline per the configuration: inspect or load,
// seal, save, render.
func (p *Pipeline) Run(ctx context.Context) (*types.Snapshot, error) {
	var snapshot *types.Snapshot
	var err error

	if p.Cfg.FromSnapshot != "" {
		snapshot, err = LoadSnapshot(p.Cfg.FromSnapshot)
		if err != nil {
			return nil, err
		}
		if !snapshot.Sealed {
			// Snapshots produced by older runs may predate the seal marker;
			// re-run the gate rather than trusting them.
			redactor, rerr := redact.New(p.Cfg.ExtraExcludePaths...)
			if rerr != nil {
				return nil, yerrors.Wrap(yerrors.KindRedaction, "redaction setup failed", rerr)
			}
			redactor.Snapshot(snapshot)
		}
	} else {
		snapshot, err = p.Inspect(ctx)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(p.Cfg.OutputDir, 0o755); err != nil {
			return nil, yerrors.Wrap(yerrors.KindFileSystem, "cannot create output directory", err)
		}
		if err := SaveSnapshot(snapshot, filepath.Join(p.Cfg.OutputDir, SnapshotFileName)); err != nil {
			return nil, yerrors.Wrap(yerrors.KindFileSystem, "cannot save snapshot", err)
		}
	}

	if p.Cfg.InspectOnly {
		return snapshot, nil
	}

	if err := os.MkdirAll(p.Cfg.OutputDir, 0o755); err != nil {
		return nil, yerrors.Wrap(yerrors.KindFileSystem, "cannot create output directory", err)
	}
	if err := render.RunAll(snapshot, p.Cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("rendering failed: %w", err)
	}
	p.Log.WithField("dir", p.Cfg.OutputDir).Info("artifacts written")
	return snapshot, nil
}
