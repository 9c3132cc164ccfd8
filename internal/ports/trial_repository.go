package ports

import (
	"context"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

type TrialRepository interface {
	// Create adds a trial with the next free number of the study. A nil
	// template creates a RUNNING trial started now.
	Create(ctx context.Context, studyID int64, template *domain.Trial) (*domain.Trial, error)
	GetByID(ctx context.Context, id int64) (*domain.Trial, error)
	GetByNumber(ctx context.Context, studyID int64, number int) (*domain.Trial, error)
	// List returns trials ordered by number, optionally filtered by state.
	List(ctx context.Context, studyID int64, states ...domain.TrialState) ([]*domain.Trial, error)

	// The setters below fail with domain.ErrTrialNotUpdatable on finished trials.
	SetParam(ctx context.Context, trialID int64, name string, internal float64, dist domain.Distribution) error
	// SetStateValues returns false without changes when asked to move a
	// trial that is not WAITING to RUNNING.
	SetStateValues(ctx context.Context, trialID int64, state domain.TrialState, values []float64) (bool, error)
	SetIntermediateValue(ctx context.Context, trialID int64, step int, value float64) error
	SetSystemAttr(ctx context.Context, trialID int64, key string, value any) error
}
