package port

import "context"

// HumanDetector reads the video at inputPath and writes an annotated copy to outputPath.
// It blocks until done, ctx is cancelled, or the engine fails.
type HumanDetector interface {
	Detect(ctx context.Context, inputPath string, outputPath string) error
}
