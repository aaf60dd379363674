package runner

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunSuccess(t *testing.T) {
	ex := NewExecutor(5*time.Second, nil)
	var out bytes.Buffer

	res := ex.Run(context.Background(), CommandSpec{
		Name: "/bin/sh",
		Args: []string{"-c", "echo hello"},
	}, &out)

	assert.True(t, res.OK())
	assert.False(t, res.TimedOut)
	assert.Contains(t, out.String(), "hello")
}

func TestExecutorRunFailure(t *testing.T) {
	ex := NewExecutor(5*time.Second, nil)
	var out bytes.Buffer

	res := ex.Run(context.Background(), CommandSpec{
		Name: "/bin/sh",
		Args: []string{"-c", "echo boom >&2; exit 3"},
	}, &out)

	assert.False(t, res.OK())
	assert.False(t, res.TimedOut)
	require.Error(t, res.Err)
	assert.Contains(t, out.String(), "boom")
}

func TestExecutorTimeoutKillsProcessTree(t *testing.T) {
	ex := NewExecutor(200*time.Millisecond, nil)
	var out bytes.Buffer

	start := time.Now()
	// The child forks a grandchild holding the pipe; a plain kill of the
	// child would leave Wait blocked until the grandchild exits.
	res := ex.Run(context.Background(), CommandSpec{
		Name: "/bin/sh",
		Args: []string{"-c", "sleep 30 & sleep 30"},
	}, &out)
	elapsed := time.Since(start)

	assert.True(t, res.TimedOut)
	assert.False(t, res.OK())
	// Control must return within the budget plus bounded overhead.
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecutorAppliesEnvAndDir(t *testing.T) {
	ex := NewExecutor(5*time.Second, nil)
	var out bytes.Buffer
	dir := t.TempDir()

	res := ex.Run(context.Background(), CommandSpec{
		Name: "/bin/sh",
		Args: []string{"-c", "pwd; echo $MTW_PROBE"},
		Dir:  dir,
		Env:  []string{"MTW_PROBE=probe-value"},
	}, &out)

	require.True(t, res.OK())
	assert.Contains(t, out.String(), dir)
	assert.Contains(t, out.String(), "probe-value")
}

func TestExecutorDefaultTimeout(t *testing.T) {
	ex := NewExecutor(0, nil)
	assert.Equal(t, DefaultPhaseTimeout, ex.Timeout())
}
