package toolrun_test

import (
	"context"
	"testing"
	"time"

	"github.com/hbomb79/Harvest/internal/toolrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	t.Parallel()
	runner := toolrun.New()

	result, err := runner.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2; exit 3"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
}

func TestRun_TimesOut(t *testing.T) {
	t.Parallel()
	runner := toolrun.New()

	result, err := runner.Run(context.Background(), "sh", []string{"-c", "sleep 5"}, 100*time.Millisecond)
	assert.ErrorIs(t, err, toolrun.ErrTimedOut)
	assert.NotNil(t, result)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestRun_RequiresTimeout(t *testing.T) {
	t.Parallel()
	_, err := toolrun.New().Run(context.Background(), "true", nil, 0)
	assert.ErrorIs(t, err, toolrun.ErrNoTimeout)
}

func TestRun_MissingBinary(t *testing.T) {
	t.Parallel()
	_, err := toolrun.New().Run(context.Background(), "definitely-not-a-real-binary-harvest", nil, time.Second)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, toolrun.ErrTimedOut)
}
