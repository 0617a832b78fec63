package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// stderrTailSize bounds how much subprocess stderr is retained. FFmpeg puts
// the actionable message at the end of its output.
const stderrTailSize = 4096

// tailWriter keeps only the last N bytes written to it.
type tailWriter struct {
	limit int
	buf   []byte
}

func newTailWriter(limit int) *tailWriter {
	return &tailWriter{limit: limit}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}

// Runner executes FFmpeg tool subprocesses with bounded stderr capture.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes the binary with the given arguments, honoring context
// cancellation. On a non-zero exit the returned error carries the retained
// stderr tail.
func (r *Runner) Run(ctx context.Context, binary string, args ...string) error {
	_, err := r.run(ctx, binary, false, args...)
	return err
}

// RunOutput is Run but additionally returns captured stdout.
func (r *Runner) RunOutput(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return r.run(ctx, binary, true, args...)
}

func (r *Runner) run(ctx context.Context, binary string, wantStdout bool, args ...string) ([]byte, error) {
	start := time.Now()
	stderr := newTailWriter(stderrTailSize)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = stderr

	var stdout []byte
	var err error
	if wantStdout {
		stdout, err = cmd.Output()
	} else {
		err = cmd.Run()
	}

	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s canceled after %s: %w", binary, elapsed.Round(time.Millisecond), ctx.Err())
		}
		r.logger.Error("subprocess failed",
			slog.String("binary", binary),
			slog.Duration("elapsed", elapsed),
			slog.String("stderr_tail", stderr.String()),
		)
		return nil, fmt.Errorf("%s: %w: %s", binary, err, stderr.String())
	}

	r.logger.Debug("subprocess finished",
		slog.String("binary", binary),
		slog.Duration("elapsed", elapsed),
	)
	return stdout, nil
}
