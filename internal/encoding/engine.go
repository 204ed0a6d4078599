package encoding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"rendition/internal/config"
	"rendition/internal/logging"
	"rendition/internal/services"
)

// EncodeRequest describes one transcode: a source file rendered to an output
// path, optionally constrained to a target height.
type EncodeRequest struct {
	InputPath  string
	OutputPath string
	// TargetHeight caps the output height in pixels. Zero means keep the
	// source resolution.
	TargetHeight int
}

// Engine renders a single variant of a source file. Implementations must be
// safe for sequential reuse; the worker loop issues one encode at a time.
type Engine interface {
	Encode(ctx context.Context, req EncodeRequest) error
}

// FFmpegEngine shells out to ffmpeg for each encode.
type FFmpegEngine struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// stderrTailBytes bounds how much ffmpeg stderr is kept for failure reasons.
const stderrTailBytes = 2048

// NewFFmpegEngine builds an engine from configuration.
func NewFFmpegEngine(cfg *config.Config, logger *slog.Logger) *FFmpegEngine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpegEngine{
		binary:  cfg.FFmpeg.Binary,
		timeout: time.Duration(cfg.FFmpeg.EncodeTimeoutSeconds) * time.Second,
		logger:  logging.NewComponentLogger(logger, "encoding"),
	}
}

// Encode runs ffmpeg and verifies the output file exists afterwards. A
// non-zero exit, a timeout, or a missing output all fail the encode.
func (e *FFmpegEngine) Encode(ctx context.Context, req EncodeRequest) error {
	if strings.TrimSpace(req.InputPath) == "" || strings.TrimSpace(req.OutputPath) == "" {
		return services.Wrap(services.ErrValidation, "encoding", "encode", "input and output paths are required", nil)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := e.buildArgs(req)
	e.logger.Info("launching ffmpeg encode",
		logging.String("input", req.InputPath),
		logging.String("output", req.OutputPath),
		logging.String("command", e.binary+" "+strings.Join(args, " ")),
	)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		reason := stderrTail(stderr.Bytes())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrExternalTool, "encoding", "encode",
				fmt.Sprintf("ffmpeg timed out after %s", elapsed.Round(time.Second)), ctx.Err())
		}
		if reason != "" {
			return services.Wrap(services.ErrExternalTool, "encoding", "encode", reason, runErr)
		}
		return services.Wrap(services.ErrExternalTool, "encoding", "encode", "ffmpeg failed", runErr)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "encoding", "encode", "ffmpeg produced no output file", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "encoding", "encode", "ffmpeg produced an empty output file", nil)
	}

	e.logger.Info("ffmpeg encode finished",
		logging.String("output", req.OutputPath),
		logging.Int64("output_bytes", info.Size()),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

func (e *FFmpegEngine) buildArgs(req EncodeRequest) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", req.InputPath}
	if req.TargetHeight > 0 {
		// -2 keeps the width even while preserving aspect ratio.
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", req.TargetHeight))
	}
	args = append(args, "-y", req.OutputPath)
	return args
}

func stderrTail(output []byte) string {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return ""
	}
	if len(trimmed) > stderrTailBytes {
		trimmed = trimmed[len(trimmed)-stderrTailBytes:]
	}
	// Keep the last line; ffmpeg prints the decisive error last.
	lines := strings.Split(trimmed, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
