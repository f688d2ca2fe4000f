package usecase

import (
	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/shim"
)

// InputKey is the storage key of a job's uploaded video.
func InputKey(jobID uuid.UUID, t entity.VideoType) string {
	return jobID.String() + "/input" + t.Extension()
}

// OutputKey is the storage key of a job's processed video.
func OutputKey(jobID uuid.UUID) string {
	return jobID.String() + "/" + shim.DownloadFilename
}
