//go:build !gocv

package detector

import (
	"context"

	"go.uber.org/zap"
)

type HOGDetector struct{}

func NewHOGDetector(HOGConfig, *zap.Logger) (*HOGDetector, error) {
	return nil, ErrHOGUnavailable
}

func (d *HOGDetector) Detect(context.Context, string, string) error {
	return ErrHOGUnavailable
}
