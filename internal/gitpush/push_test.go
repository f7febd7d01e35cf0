package gitpush

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/internal/yerrors"
)

// Push safety: a residual secret planted after the first redaction pass
// aborts the push before any remote write.
func TestPushAbortsOnResidualSecret(t *testing.T) {
	outputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "Containerfile"),
		[]byte("FROM quay.io/centos-bootc/centos-bootc:stream9\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "planted.env"),
		[]byte("password=plantedsecret123\n"), 0o644))

	fake := hostexec.NewFake()
	pusher := &Pusher{Exec: fake, Log: logger.NewNop()}

	err := pusher.Push(context.Background(), outputDir, Options{
		Repo: "owner/repo", Token: "tok", Yes: true,
	})
	require.Error(t, err)

	var ye *yerrors.Error
	require.ErrorAs(t, err, &ye)
	assert.Equal(t, yerrors.KindPush, ye.Kind)
	assert.Contains(t, err.Error(), "planted.env")
	assert.Empty(t, fake.Calls, "no git command may run after a residual-secret hit")
}

func TestPushRequiresToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	pusher := &Pusher{Exec: hostexec.NewFake(), Log: logger.NewNop()}
	err := pusher.Push(context.Background(), t.TempDir(), Options{Repo: "owner/repo", Yes: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestPushCancelledByOperator(t *testing.T) {
	outputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "README.md"), []byte("clean\n"), 0o644))

	fake := hostexec.NewFake()
	pusher := &Pusher{Exec: fake, Log: logger.NewNop()}
	err := pusher.Push(context.Background(), outputDir, Options{
		Repo:    "owner/repo",
		Token:   "tok",
		Confirm: func(string) bool { return false },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Empty(t, fake.Calls)
}

func TestCollectStats(t *testing.T) {
	outputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "Containerfile"),
		[]byte("# FIXME: one\n# FIXME: two\nFROM x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "README.md"), []byte("hello\n"), 0o644))

	stats := CollectStats(outputDir)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 2, stats.FixmeCount)
	assert.Greater(t, stats.SizeBytes, int64(0))
}
