package cloudcli_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/imageport/pkg/cloudcli"
)

func TestExecRunner_CapturesStdout(t *testing.T) {
	r := cloudcli.NewExecRunner("sh")

	res, err := r.Run(context.Background(), "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Ok())
	assert.Equal(t, "hello", string(res.Stdout))
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	r := cloudcli.NewExecRunner("sh")

	res, err := r.Run(context.Background(), "-c", "echo boom >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Ok())
	assert.Equal(t, "boom", res.Diagnostic())
}

func TestExecRunner_MissingTool(t *testing.T) {
	r := cloudcli.NewExecRunner("definitely-not-a-real-tool-xyz")

	_, err := r.Run(context.Background())
	require.Error(t, err)
}

func TestExecRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := cloudcli.NewExecRunner("sh")
	_, err := r.Run(ctx, "-c", "sleep 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_DiagnosticPrefersStderr(t *testing.T) {
	res := &cloudcli.Result{
		Stdout: []byte("out text\n"),
		Stderr: []byte("err text\n"),
	}
	assert.Equal(t, "err text", res.Diagnostic())

	res.Stderr = nil
	assert.Equal(t, "out text", res.Diagnostic())
}
