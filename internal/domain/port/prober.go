package port

import "context"

type VideoProber interface {
	Duration(ctx context.Context, videoPath string) (float64, error)
}
