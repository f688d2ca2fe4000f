package detector

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	maxOutputInError = 2048
	// waitDelay bounds how long a killed engine's children may hold the output pipes.
	waitDelay = 5 * time.Second
)

// CommandDetector runs an external engine as `<binary> [args...] <input> <output>`.
type CommandDetector struct {
	binary string
	args   []string
	logger *zap.Logger
}

func NewCommandDetector(binary string, args []string, logger *zap.Logger) *CommandDetector {
	return &CommandDetector{binary: binary, args: args, logger: logger}
}

func (d *CommandDetector) Detect(ctx context.Context, inputPath string, outputPath string) error {
	argv := append(append([]string{}, d.args...), inputPath, outputPath)
	cmd := exec.CommandContext(ctx, d.binary, argv...)
	cmd.WaitDelay = waitDelay

	output, err := cmd.CombinedOutput()
	if err == nil {
		d.logger.Debug("detection engine finished",
			zap.String("binary", d.binary),
			zap.String("input", inputPath),
		)
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return entity.NewDetectionError(entity.ReasonEngineUnavailable, fmt.Errorf("start %s: %w", d.binary, err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return entity.NewDetectionError(entity.ReasonOf(ctxErr), fmt.Errorf("%s interrupted: %w", d.binary, ctxErr))
	}

	msg := strings.TrimSpace(string(output))
	if len(msg) > maxOutputInError {
		msg = msg[len(msg)-maxOutputInError:]
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg == "" {
			return entity.NewDetectionError(entity.ReasonEngineFailed, fmt.Errorf("%s exited with code %d", d.binary, exitErr.ExitCode()))
		}
		return entity.NewDetectionError(entity.ReasonEngineFailed, fmt.Errorf("%s exited with code %d: %s", d.binary, exitErr.ExitCode(), msg))
	}
	return entity.NewDetectionError(entity.ReasonEngineUnavailable, fmt.Errorf("run %s: %w", d.binary, err))
}
