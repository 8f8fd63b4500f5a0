package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DockerRunner shells out to `docker run --rm`. One invocation is one
// container; the project directory is shared via volume mounts.
type DockerRunner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewDockerRunner(binary string, timeout time.Duration, logger *slog.Logger) *DockerRunner {
	if binary == "" {
		binary = "docker"
	}
	return &DockerRunner{
		binary:  binary,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *DockerRunner) Invoke(ctx context.Context, inv Invocation) error {
	if inv.Image == "" {
		return fmt.Errorf("%w: no image configured", ErrRunnerUnavailable)
	}
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("%w: %s not found", ErrRunnerUnavailable, r.binary)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := []string{"run", "--rm"}
	for _, m := range inv.Mounts {
		args = append(args, "-v", m.Host+":"+m.Container)
	}
	for _, e := range inv.Env {
		args = append(args, "-e", e)
	}
	args = append(args, inv.Image)
	args = append(args, inv.Args...)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		r.logger.Info("pipeline container finished",
			"image", inv.Image, "elapsed", elapsed.String())
		return nil
	}

	if ctx.Err() != nil {
		r.logger.Error("pipeline container timed out",
			"image", inv.Image, "elapsed", elapsed.String())
		return fmt.Errorf("%w: timed out after %s", ErrPipelineFailed, elapsed.Round(time.Second))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Error("pipeline container failed",
			"image", inv.Image, "exit_code", exitErr.ExitCode(), "output", tail(output.String(), 2000))
		return fmt.Errorf("%w: exit code %d", ErrPipelineFailed, exitErr.ExitCode())
	}

	// Could not start the container at all.
	return fmt.Errorf("%w: %v", ErrRunnerUnavailable, err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
