package repository

import "database/sql"

// Store bundles the MySQL repositories.  The embedded SpotRepo and
// HistoryRepo together form the spot store consumed by the confirmation
// service; Events serves as its event directory.
type Store struct {
	*SpotRepo
	*HistoryRepo
	Events *EventRepo
}

// NewStore builds all repositories on a shared connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		SpotRepo:    NewSpotRepo(db),
		HistoryRepo: NewHistoryRepo(db),
		Events:      NewEventRepo(db),
	}
}
