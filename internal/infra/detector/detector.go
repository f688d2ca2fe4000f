// Package detector holds the detection engines behind port.HumanDetector.
package detector

import (
	"errors"
	"fmt"

	"github.com/humandetect/humandetect-service/internal/domain/port"
	"go.uber.org/zap"
)

var ErrHOGUnavailable = errors.New("hog detector requires a build with -tags gocv")

const (
	KindCommand = "exec"
	KindHOG     = "hog"
)

type Config struct {
	Kind   string
	Binary string
	Args   []string
	HOG    HOGConfig
}

// HOGConfig mirrors the OpenCV detectMultiScale parameters.
type HOGConfig struct {
	WinStride      int
	Padding        int
	Scale          float64
	FinalThreshold float64
	Codec          string
	BoxThickness   int
}

func DefaultHOGConfig() HOGConfig {
	return HOGConfig{
		WinStride:      8,
		Padding:        0,
		Scale:          1.05,
		FinalThreshold: 2.0,
		Codec:          "mp4v",
		BoxThickness:   2,
	}
}

func New(cfg Config, logger *zap.Logger) (port.HumanDetector, error) {
	switch cfg.Kind {
	case KindCommand, "":
		if cfg.Binary == "" {
			return nil, fmt.Errorf("detector %q: binary is required", KindCommand)
		}
		return NewCommandDetector(cfg.Binary, cfg.Args, logger), nil
	case KindHOG:
		d, err := NewHOGDetector(cfg.HOG, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector kind %q", cfg.Kind)
	}
}
