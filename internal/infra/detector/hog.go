//go:build gocv

package detector

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var boxColor = color.RGBA{G: 255}

// HOGDetector finds people with OpenCV's HOG descriptor and the default
// people SVM, boxing every hit in green on a re-encoded copy of the video.
type HOGDetector struct {
	cfg    HOGConfig
	logger *zap.Logger
}

func NewHOGDetector(cfg HOGConfig, logger *zap.Logger) (*HOGDetector, error) {
	return &HOGDetector{cfg: cfg, logger: logger}, nil
}

func (d *HOGDetector) Detect(ctx context.Context, inputPath string, outputPath string) error {
	hog := gocv.NewHOGDescriptor()
	defer hog.Close()
	svm := gocv.HOGDefaultPeopleDetector()
	defer svm.Close()
	if err := hog.SetSVMDetector(svm); err != nil {
		return entity.NewDetectionError(entity.ReasonEngineFailed, fmt.Errorf("set svm detector: %w", err))
	}

	capture, err := gocv.VideoCaptureFile(inputPath)
	if err != nil {
		return entity.NewDetectionError(entity.ReasonInputUnreadable, fmt.Errorf("open %s: %w", inputPath, err))
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)
	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))

	writer, err := gocv.VideoWriterFile(outputPath, d.cfg.Codec, fps, width, height, true)
	if err != nil {
		return entity.NewDetectionError(entity.ReasonEngineFailed, fmt.Errorf("open writer %s: %w", outputPath, err))
	}
	defer writer.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	gray := gocv.NewMat()
	defer gray.Close()

	stride := image.Pt(d.cfg.WinStride, d.cfg.WinStride)
	padding := image.Pt(d.cfg.Padding, d.cfg.Padding)

	frames, people := 0, 0
	for capture.Read(&frame) {
		if frame.Empty() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
		rects := hog.DetectMultiScaleWithParams(gray, 0, stride, padding, d.cfg.Scale, d.cfg.FinalThreshold, false)
		for _, r := range rects {
			gocv.Rectangle(&frame, r, boxColor, d.cfg.BoxThickness)
		}
		if err := writer.Write(frame); err != nil {
			return entity.NewDetectionError(entity.ReasonEngineFailed, fmt.Errorf("write frame %d: %w", frames, err))
		}
		frames++
		people += len(rects)
	}

	d.logger.Info("hog detection finished",
		zap.String("input", inputPath),
		zap.Int("frames", frames),
		zap.Int("detections", people),
	)
	return nil
}
