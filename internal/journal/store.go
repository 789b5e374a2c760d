package journal

import (
	"errors"
	"strings"
	"time"

	dbmodel "shoplist/internal/db"

	"gorm.io/gorm"
)

type Entry struct {
	ID         int64
	Deployment string
	ItemID     string
	Name       string
	ActionType string
	Status     string
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store records the crossed/uncrossed actions made on this machine.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps an open DB. Caller owns the db and closes it.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Append stores a pending entry and returns its id.
func (s *Store) Append(e Entry) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("journal store is not initialized")
	}
	if strings.TrimSpace(e.ActionType) == "" {
		return 0, errors.New("action type is required")
	}
	now := s.now().UTC().Unix()
	row := dbmodel.ActionJournal{
		Deployment: e.Deployment,
		ItemID:     e.ItemID,
		Name:       e.Name,
		ActionType: e.ActionType,
		Status:     dbmodel.JournalPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// MarkStatus resolves an entry. cause is stored for failed entries.
func (s *Store) MarkStatus(id int64, status string, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("journal store is not initialized")
	}
	switch status {
	case dbmodel.JournalPending, dbmodel.JournalSent, dbmodel.JournalFailed:
	default:
		return errors.New("unknown journal status: " + status)
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	res := s.db.Model(&dbmodel.ActionJournal{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"last_error": lastError,
		"updated_at": s.now().UTC().Unix(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns the newest entries first.
func (s *Store) List(limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("journal store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows := make([]dbmodel.ActionJournal, 0, limit)
	if err := s.db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			ID:         row.ID,
			Deployment: row.Deployment,
			ItemID:     row.ItemID,
			Name:       row.Name,
			ActionType: row.ActionType,
			Status:     row.Status,
			LastError:  row.LastError,
			CreatedAt:  time.Unix(row.CreatedAt, 0).UTC(),
			UpdatedAt:  time.Unix(row.UpdatedAt, 0).UTC(),
		})
	}
	return entries, nil
}
