package migration

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

type step struct {
	name string
	run  func(*Migration) error
}

var (
	steps    []step
	initOnce sync.Once
)

// Migration is passed to each migration step. DB is set by RunAll.
type Migration struct {
	DB   *gorm.DB
	logs []string
}

func (m *Migration) Log(v ...interface{}) {
	m.logs = append(m.logs, fmt.Sprint(v...))
}

func (m *Migration) Logs() []string {
	return append([]string(nil), m.logs...)
}

func register(name string, run func(*Migration) error) {
	steps = append(steps, step{name: name, run: run})
}

// Init registers the built-in steps once per process.
func Init() {
	initOnce.Do(func() {
		register("abandon_pending_journal_rows", abandonPendingJournalRows)
	})
}

// RunAll runs all registered migrations in order. Used for data/behavior one-shots; schema is synced via db.SyncSchema.
func RunAll(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	ctx := &Migration{DB: db}
	for _, s := range steps {
		ctx.logs = nil
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", s.name, err)
		}
	}
	return nil
}

// A pending row at startup belongs to a process that exited before its
// collect request finished; nothing will ever resolve it.
func abandonPendingJournalRows(m *Migration) error {
	res := m.DB.Exec(
		`UPDATE action_journal SET status = 'failed', last_error = 'abandoned' WHERE status = 'pending'`,
	)
	if res.Error != nil {
		return res.Error
	}
	m.Log("abandoned pending journal rows: ", res.RowsAffected)
	return nil
}
