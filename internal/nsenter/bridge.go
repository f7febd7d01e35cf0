// Package nsenter is the privilege bridge: the only code path that reaches
// across the host/container boundary to run programs. Everything else reads
// the host through the read-only mount.
package nsenter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/logger"
)

// Reason classifies the probe outcome.
type Reason string

const (
	ReasonOK                  Reason = "ok"
	ReasonRootless            Reason = "rootless"
	ReasonMissingPIDNamespace Reason = "missing-pid-namespace"
	ReasonMissingCapability   Reason = "missing-capability"
	ReasonNoRuntime           Reason = "no-runtime"
)

// ProbeResult is the memoized outcome of the minimal namespace-enter probe.
type ProbeResult struct {
	OK     bool
	Reason Reason
	Detail string
}

// ErrPrivilege is returned by Run when the probe is not ok.
var ErrPrivilege = errors.New("privilege bridge unavailable")

// ErrTimeout is returned when a bridge call exceeds its deadline.
var ErrTimeout = errors.New("bridge call timed out")

var nsenterPrefix = []string{"nsenter", "-t", "1", "-m", "-u", "-i", "-n", "--"}

// Bridge executes commands in PID 1's mount, UTS, IPC, and network
// namespaces. Never used to mutate the host.
type Bridge struct {
	exec    hostexec.Executor
	timeout time.Duration
	log     logger.Logger

	// ProcRoot is /proc by default; tests point it at a fixture.
	ProcRoot string

	probeOnce sync.Once
	probe     ProbeResult
}

// New returns a bridge with the given call timeout.
func New(exec hostexec.Executor, timeout time.Duration, log logger.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Bridge{exec: exec, timeout: timeout, log: log, ProcRoot: "/proc"}
}

// inUserNamespace reports whether uid 0 maps to an unprivileged host uid.
// nsenter into PID 1 requires real CAP_SYS_ADMIN in the target namespace,
// which is impossible from inside a user namespace.
func (b *Bridge) inUserNamespace() bool {
	data, err := os.ReadFile(filepath.Join(b.ProcRoot, "self", "uid_map"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		parts := strings.Fields(line)
		if len(parts) >= 3 && parts[0] == "0" && parts[1] != "0" {
			return true
		}
	}
	return false
}

// Probe attempts a minimal namespace-enter call against PID 1 and reports a
// structured reason on failure. The result is memoized for the bridge's
// lifetime.
func (b *Bridge) Probe(ctx context.Context) ProbeResult {
	b.probeOnce.Do(func() {
		b.probe = b.runProbe(ctx)
		b.log.WithField("reason", string(b.probe.Reason)).Debug("privilege probe")
	})
	return b.probe
}

func (b *Bridge) runProbe(ctx context.Context) ProbeResult {
	if b.inUserNamespace() {
		return ProbeResult{Reason: ReasonRootless,
			Detail: "uid 0 maps to an unprivileged host uid; run the container with sudo"}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	probe := append(append([]string{}, nsenterPrefix...), "true")
	res, err := b.exec.Run(ctx, probe)
	if err != nil {
		if errors.Is(err, hostexec.ErrToolMissing) {
			return ProbeResult{Reason: ReasonNoRuntime, Detail: "nsenter not found in the inspection container"}
		}
		return ProbeResult{Reason: ReasonNoRuntime, Detail: err.Error()}
	}
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(res.Stderr)
		switch {
		case strings.Contains(stderr, "Operation not permitted"):
			return ProbeResult{Reason: ReasonMissingCapability, Detail: stderr}
		case strings.Contains(stderr, "No such process"):
			return ProbeResult{Reason: ReasonMissingPIDNamespace,
				Detail: stderr + " (is --pid=host set on the container?)"}
		default:
			return ProbeResult{Reason: ReasonNoRuntime,
				Detail: fmt.Sprintf("probe exited %d: %s", res.ExitCode, stderr)}
		}
	}
	return ProbeResult{OK: true, Reason: ReasonOK}
}

// Run executes argv in the host's namespaces. Fails with ErrPrivilege when
// the probe is not ok, and ErrTimeout when the bounded wall-clock timeout
// elapses.
func (b *Bridge) Run(ctx context.Context, argv []string) (hostexec.Result, error) {
	if probe := b.Probe(ctx); !probe.OK {
		return hostexec.Result{}, fmt.Errorf("%w: %s (%s)", ErrPrivilege, probe.Reason, probe.Detail)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := append(append([]string{}, nsenterPrefix...), argv...)
	res, err := b.exec.Run(ctx, cmd)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s: %s", ErrTimeout, b.timeout, strings.Join(argv, " "))
		}
		return res, err
	}
	if res.ExitCode == 127 {
		b.log.Warn("bridge command exited 127 — is --pid=host set on the container?")
	}
	return res, nil
}
