package domain

import "errors"

var (
	ErrStudyNotFound            = errors.New("study not found")
	ErrDuplicatedStudy          = errors.New("study already exists")
	ErrTrialNotFound            = errors.New("trial not found")
	ErrTrialNotUpdatable        = errors.New("trial is already finished")
	ErrIncompatibleDistribution = errors.New("incompatible parameter distribution")
	ErrInvalidDistribution      = errors.New("invalid distribution")
	ErrNoCompletedTrials        = errors.New("no trials are completed yet")
	ErrMultiObjective           = errors.New("a single best trial cannot be retrieved from a multi-objective study")
	ErrInvalidValues            = errors.New("invalid objective values")
	ErrSchemaOutdated           = errors.New("storage schema is out of date")
	ErrSchemaUnknown            = errors.New("storage schema version is unknown")
	ErrSchemaDirty              = errors.New("storage schema is in a dirty state")
)
