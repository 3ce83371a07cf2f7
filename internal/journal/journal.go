package journal

import (
	"time"

	"github.com/hbomb79/Harvest/internal/database"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/hbomb79/Harvest/pkg/logger"
)

// Journal binds a Store to a database connection, exposing the operations
// the rest of Harvest needs.
type Journal struct {
	db    database.Manager
	store *Store
	now   func() time.Time
}

func New(db database.Manager) *Journal {
	return &Journal{db: db, store: NewStore(), now: time.Now}
}

// RecordOutcome writes the terminal state of the task.
func (journal *Journal) RecordOutcome(t task.Task) error {
	entry, err := EntryFromTask(t, journal.now())
	if err != nil {
		return err
	}

	if err := journal.store.Record(journal.db.GetSqlxDb(), entry); err != nil {
		return err
	}

	log.Emit(logger.DEBUG, "Recorded %s outcome for task %s\n", t.Status, t.ID)
	return nil
}

func (journal *Journal) Prune(cutoff time.Time) (int64, error) {
	return journal.store.PruneOlderThan(journal.db.GetSqlxDb(), cutoff)
}

func (journal *Journal) Get(taskID string) (*Entry, error) {
	return journal.store.Get(journal.db.GetSqlxDb(), taskID)
}

func (journal *Journal) List(filter Filter) ([]Entry, error) {
	return journal.store.List(journal.db.GetSqlxDb(), filter)
}
