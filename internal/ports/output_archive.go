package ports

import "context"

// OutputArchive keeps the captured output of objective commands per trial.
type OutputArchive interface {
	Store(ctx context.Context, studyName string, number int, output []byte) (string, error)
	Get(ctx context.Context, studyName string, number int) ([]byte, error)
	Exists(ctx context.Context, studyName string, number int) (bool, error)
	DeleteStudy(ctx context.Context, studyName string) error
}
