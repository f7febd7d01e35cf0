package inspectors

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/pkg/types"
)

// newTestContext builds a Context over a synthetic host root and a canned
// executor.
func newTestContext(t *testing.T, hostRoot string, fake *hostexec.Fake) *Context {
	t.Helper()
	if fake == nil {
		fake = hostexec.NewFake()
	}
	return &Context{
		Ctx:      context.Background(),
		HostRoot: hostRoot,
		Exec:     fake,
		Log:      logger.NewNop(),
		Warnings: types.NewWarningSink(),
		Snapshot: &types.Snapshot{
			SchemaVersion: types.SchemaVersion,
			Host:          types.HostInfo{InspectedAt: time.Now().UTC()},
		},
	}
}

// writeHostFile creates a file under the synthetic host root.
func writeHostFile(t *testing.T, hostRoot, rel, content string) {
	t.Helper()
	path := filepath.Join(hostRoot, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
