package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Prober reads container metadata of processed videos with ffprobe.
type Prober struct {
	binary string
	logger *zap.Logger
}

func NewProber(binary string, logger *zap.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary, logger: logger}
}

func (p *Prober) Duration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	duration, err := parseDuration(string(output))
	if err != nil {
		return 0, err
	}
	p.logger.Debug("probed video", zap.String("path", videoPath), zap.Float64("duration", duration))
	return duration, nil
}

func parseDuration(raw string) (float64, error) {
	durationStr := strings.TrimSpace(raw)
	if durationStr == "" || durationStr == "N/A" {
		return 0, fmt.Errorf("parse duration: no duration reported")
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
