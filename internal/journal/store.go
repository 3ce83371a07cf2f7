// Package journal persists the terminal outcome of every acquisition task
// so that history survives the in-memory registry's retention window.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/Harvest/internal/database"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/hbomb79/Harvest/pkg/logger"
)

const (
	tableName    = "acquisition_journal"
	defaultLimit = 50
	maxLimit     = 500
)

var (
	log = logger.Get("Journal")

	ErrEntryNotFound = errors.New("journal entry does not exist")
)

type (
	Entry struct {
		TaskID     string      `db:"task_id" json:"taskId"`
		URL        string      `db:"url" json:"url"`
		Platform   string      `db:"platform" json:"platform"`
		MediaType  string      `db:"media_type" json:"mediaType,omitempty"`
		Status     task.Status `db:"status" json:"status"`
		Error      string      `db:"error" json:"error,omitempty"`
		ResultURL  string      `db:"result_url" json:"downloadUrl,omitempty"`
		CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
		FinishedAt time.Time   `db:"finished_at" json:"finishedAt"`
	}

	// Filter narrows a List query. Zero values are ignored.
	Filter struct {
		Platform string
		Status   task.Status
		Limit    int
	}

	Store struct{}
)

func NewStore() *Store { return &Store{} }

// EntryFromTask builds a journal entry from a task in a terminal state.
func EntryFromTask(t task.Task, finishedAt time.Time) (Entry, error) {
	if !t.Status.IsTerminal() {
		return Entry{}, fmt.Errorf("task %s is not in a terminal state (%s)", t.ID, t.Status)
	}

	return Entry{
		TaskID:     t.ID,
		URL:        t.URL,
		Platform:   t.Platform,
		MediaType:  t.MediaType,
		Status:     t.Status,
		Error:      t.Error,
		ResultURL:  t.ResultURL,
		CreatedAt:  normaliseTime(t.CreatedAt),
		FinishedAt: normaliseTime(finishedAt),
	}, nil
}

// Record inserts the entry, replacing any previous outcome recorded for
// the same task.
func (store *Store) Record(db database.Queryable, entry Entry) error {
	query, args, err := squirrel.
		Insert(tableName).
		Columns("task_id", "url", "platform", "media_type", "status", "error", "result_url", "created_at", "finished_at").
		Values(entry.TaskID, entry.URL, entry.Platform, entry.MediaType, entry.Status, entry.Error, entry.ResultURL, normaliseTime(entry.CreatedAt), normaliseTime(entry.FinishedAt)).
		Suffix(`ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			result_url = excluded.result_url,
			finished_at = excluded.finished_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct journal insert query: %w", err)
	}

	if _, err := db.Exec(db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to record journal entry for task %s: %w", entry.TaskID, err)
	}

	return nil
}

func (store *Store) Get(db database.Queryable, taskID string) (*Entry, error) {
	query, args, err := selectEntryBuilder().Where(squirrel.Eq{"task_id": taskID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select journal entry query: %w", err)
	}

	var entry Entry
	if err := db.Get(&entry, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}

		return nil, fmt.Errorf("failed to find journal entry for task %s: %w", taskID, err)
	}

	return &entry, nil
}

// List returns the most recently finished entries matching the filter,
// newest first.
func (store *Store) List(db database.Queryable, filter Filter) ([]Entry, error) {
	builder := selectEntryBuilder().OrderBy("finished_at DESC", "task_id").Limit(uint64(clampLimit(filter.Limit)))
	if filter.Platform != "" {
		builder = builder.Where(squirrel.Eq{"platform": filter.Platform})
	}
	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"status": filter.Status})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list journal query: %w", err)
	}

	results := make([]Entry, 0)
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}

	return results, nil
}

// PruneOlderThan deletes every entry which finished before the cutoff,
// returning the number of entries removed.
func (store *Store) PruneOlderThan(db database.Queryable, cutoff time.Time) (int64, error) {
	query, args, err := squirrel.Delete(tableName).Where(squirrel.Lt{"finished_at": normaliseTime(cutoff)}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to construct journal prune query: %w", err)
	}

	res, err := db.Exec(db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned journal entries: %w", err)
	}

	log.Emit(logger.DEBUG, "Pruned %d journal entries finished before %s\n", removed, cutoff.Format(time.RFC3339))
	return removed, nil
}

func selectEntryBuilder() squirrel.SelectBuilder {
	return squirrel.
		Select("task_id", "url", "platform", "media_type", "status", "error", "result_url", "created_at", "finished_at").
		From(tableName)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}

	return min(limit, maxLimit)
}

// normaliseTime stores all timestamps in UTC at second precision so that
// values compare consistently across drivers.
func normaliseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
