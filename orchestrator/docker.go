package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/thomcc/miri-tools/types"
)

// DockerProvider runs each worker in its own container with tmpfs
// workspaces and hard memory limits, so a misbehaving package can take
// down at most its own context.
type DockerProvider struct {
	Delimiter     string
	PhaseTimeout  time.Duration
	MemoryLimitGB int
	Log           *zap.SugaredLogger
}

var _ ContextProvider = (*DockerProvider)(nil)

// BuildImage builds the variant's execution context image. Called once
// per run before any Acquire. The build context is the repo root so the
// image can compile the worker binary from source.
func (p *DockerProvider) BuildImage(ctx context.Context, variant types.ToolVariant) error {
	cmd := exec.CommandContext(ctx, "docker",
		"build", "-t", variant.DockerTag(), "-f", variant.Dockerfile(), ".")
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "docker image build failed for %s", variant)
	}
	return nil
}

// Acquire starts a worker container wired up for the stdin/stdout
// protocol.
func (p *DockerProvider) Acquire(ctx context.Context, variant types.ToolVariant) (ExecutionContext, error) {
	memory := p.MemoryLimitGB
	if memory <= 0 {
		memory = 8
	}
	args := []string{
		"run",
		"--rm",
		"--interactive",
		// One CPU at reduced priority keeps instrumented measurements
		// attributable and the host responsive.
		"--cpus=1",
		"--cpu-shares=2",
		// tmpfs for every location the worker writes, to minimize disk I/O.
		"--tmpfs=/root/build:exec",
		"--tmpfs=/root/.cache",
		"--tmpfs=/tmp:exec",
		"--env", fmt.Sprintf("%s=%s", types.EnvTestEndDelimiter, p.Delimiter),
		"--env", fmt.Sprintf("MIRI_TOOLS_PHASE_TIMEOUT=%s", p.PhaseTimeout),
		fmt.Sprintf("--memory=%dg", memory),
		// Same value for memory-swap turns swap off.
		fmt.Sprintf("--memory-swap=%dg", memory),
		fmt.Sprintf("%s:latest", variant.DockerTag()),
	}

	cmd := exec.Command("docker", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open worker stdout")
	}
	// Worker diagnostics go to our stderr; stdout stays protocol-only.
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start execution context for %s", variant)
	}
	if p.Log != nil {
		p.Log.Infow("execution context started", "variant", variant, "pid", cmd.Process.Pid)
	}
	return newProcContext(cmd, stdin, stdout, p.Delimiter), nil
}

// Release tears the context down. A nil context is a no-op.
func (p *DockerProvider) Release(ec ExecutionContext) {
	if ec == nil {
		return
	}
	if err := ec.Close(); err != nil && p.Log != nil {
		p.Log.Debugw("execution context close", "err", err)
	}
}

// procContext adapts a piped child process to ExecutionContext.
type procContext struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	delimiter string
	done      chan struct{}
}

func newProcContext(cmd *exec.Cmd, stdin io.WriteCloser, stdout io.Reader, delimiter string) *procContext {
	pc := &procContext{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewReaderSize(stdout, 256*1024),
		delimiter: delimiter,
		done:      make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(pc.done)
	}()
	return pc
}

func (c *procContext) Feed(spec string) error {
	_, err := io.WriteString(c.stdin, spec+"\n")
	return errors.Wrap(err, "failed to feed worker")
}

func (c *procContext) NextBlock() ([]byte, bool, error) {
	var block []byte
	for {
		line, err := c.stdout.ReadString('\n')
		if types.IsDelimiterLine(line, c.delimiter) {
			return block, true, nil
		}
		block = append(block, line...)
		if err == io.EOF {
			return block, false, nil
		}
		if err != nil {
			return block, false, err
		}
	}
}

func (c *procContext) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *procContext) Close() error {
	_ = c.stdin.Close()
	select {
	case <-c.done:
		return nil
	case <-time.After(30 * time.Second):
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		<-c.done
		return errors.New("execution context did not exit cleanly")
	}
}
