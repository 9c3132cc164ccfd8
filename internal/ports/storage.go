package ports

// Storage groups the repositories of one backend.
type Storage interface {
	Studies() StudyRepository
	Trials() TrialRepository
	Schema() SchemaManager
	Close() error
}
