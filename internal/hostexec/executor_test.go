package hostexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeLongestPrefixWins(t *testing.T) {
	fake := NewFake()
	fake.On("rpm", Result{Stdout: "generic"})
	fake.On("rpm --dbpath", Result{Stdout: "specific"})

	res, err := fake.Run(context.Background(), []string{"rpm", "--dbpath", "/x", "-qa"})
	require.NoError(t, err)
	assert.Equal(t, "specific", res.Stdout)
}

func TestFakeUnknownCommandIsMissingTool(t *testing.T) {
	fake := NewFake()
	_, err := fake.Run(context.Background(), []string{"lvs"})
	assert.ErrorIs(t, err, ErrToolMissing)
}

func TestFakeRecordsCalls(t *testing.T) {
	fake := NewFake()
	fake.On("true", Result{})
	_, _ = fake.Run(context.Background(), []string{"true"})
	require.Len(t, fake.Calls, 1)
	assert.Equal(t, []string{"true"}, fake.Calls[0])
}

func TestSystemRunCapturesOutput(t *testing.T) {
	sys := NewSystem()
	res, err := sys.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.OK())
}

func TestSystemRunMissingTool(t *testing.T) {
	sys := NewSystem()
	_, err := sys.Run(context.Background(), []string{"definitely-not-a-real-binary-xyz"})
	assert.ErrorIs(t, err, ErrToolMissing)
}
