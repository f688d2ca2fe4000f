package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, email string, jobID string, videoName string, errorMsg string) error
}
