package ports

import (
	"context"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

// StudyRepository persists studies. Lookups return (nil, nil) when the study
// does not exist.
type StudyRepository interface {
	// Create fails with domain.ErrDuplicatedStudy when the name is taken.
	Create(ctx context.Context, name string, directions []domain.StudyDirection) (*domain.Study, error)
	GetByID(ctx context.Context, id int64) (*domain.Study, error)
	GetByName(ctx context.Context, name string) (*domain.Study, error)
	List(ctx context.Context) ([]*domain.StudySummary, error)
	// Delete removes the study with its trials. Unknown ids fail with domain.ErrStudyNotFound.
	Delete(ctx context.Context, id int64) error
	SetUserAttr(ctx context.Context, id int64, key string, value any) error
}
